package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// TokenRepo is the token ledger: one row per outstanding refresh token or
// blacklisted token, keyed by the SHA-256 hash of the token string.  The
// UNIQUE index on token_hash is what makes concurrent blacklist attempts
// first-writer-wins.
type TokenRepo struct{ DB *sql.DB }

func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{DB: db} }

// StoreRefresh records a freshly issued refresh token as outstanding.
// A unique-index collision means the exact token string is already in the
// ledger and surfaces as ErrDuplicateToken.
func (r *TokenRepo) StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO ledger_entries (user_id, token_hash, kind, expires_at) VALUES (?,?,'refresh',?)",
		userID, tokenHash, exp)
	if isDuplicateKey(err) {
		return ErrDuplicateToken
	}
	return err
}

// HasActiveRefresh reports whether an outstanding, unexpired refresh entry
// exists for the hash.  Rotation requires this: once any rotation has wiped
// the user's outstanding entries, every previously issued refresh token
// stops being accepted even though its signature still verifies.
func (r *TokenRepo) HasActiveRefresh(ctx context.Context, tokenHash string) (bool, error) {
	var expiresAt time.Time
	err := r.DB.QueryRowContext(ctx,
		"SELECT expires_at FROM ledger_entries WHERE token_hash=? AND kind='refresh' AND revoked_at IS NULL LIMIT 1",
		tokenHash).Scan(&expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return time.Now().UTC().Before(expiresAt), nil
}

// IsRevoked reports whether a non-expired blacklist entry exists for the
// hash.  Expired rows never count, whether or not the sweeper has removed
// them yet.
func (r *TokenRepo) IsRevoked(ctx context.Context, tokenHash string) (bool, error) {
	var (
		revokedAt sql.NullTime
		expiresAt time.Time
	)
	err := r.DB.QueryRowContext(ctx,
		"SELECT revoked_at, expires_at FROM ledger_entries WHERE token_hash=? LIMIT 1",
		tokenHash).Scan(&revokedAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !revokedAt.Valid {
		return false, nil
	}
	return time.Now().UTC().Before(expiresAt), nil
}

// Blacklist marks the hash as revoked.  The first return value reports
// whether this caller performed the revocation; false means an entry was
// already revoked (a duplicate revoke, or the losing side of a concurrent
// rotation).  An existing outstanding row is consumed in place via the
// revoked_at IS NULL guard; a previously unseen token gets a fresh row,
// where the unique index resolves racing inserts.
func (r *TokenRepo) Blacklist(ctx context.Context, userID uint64, tokenHash, kind string, exp time.Time) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE ledger_entries SET revoked_at=UTC_TIMESTAMP() WHERE token_hash=? AND revoked_at IS NULL",
		tokenHash)
	if err != nil {
		return false, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return false, err
	} else if n == 1 {
		return true, nil
	}

	// No outstanding row to consume: either the hash is unknown or it is
	// already revoked.
	var one int
	err = r.DB.QueryRowContext(ctx,
		"SELECT 1 FROM ledger_entries WHERE token_hash=? LIMIT 1", tokenHash).Scan(&one)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, err
	}

	_, err = r.DB.ExecContext(ctx,
		"INSERT INTO ledger_entries (user_id, token_hash, kind, revoked_at, expires_at) VALUES (?,?,?,UTC_TIMESTAMP(),?)",
		userID, tokenHash, kind, exp)
	if err != nil {
		if isDuplicateKey(err) {
			return false, nil // lost the race to a concurrent revoke
		}
		return false, err
	}
	return true, nil
}

// DeleteRefreshForUser removes every outstanding refresh entry for the
// user.  Blacklist rows are kept so already-revoked tokens stay rejected.
func (r *TokenRepo) DeleteRefreshForUser(ctx context.Context, userID uint64) error {
	_, err := r.DB.ExecContext(ctx,
		"DELETE FROM ledger_entries WHERE user_id=? AND kind='refresh' AND revoked_at IS NULL",
		userID)
	return err
}

// DeleteExpired purges rows whose expiry has passed and returns how many
// were removed.  Runs as a single statement so it is safe alongside
// concurrent inserts and reads.
func (r *TokenRepo) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		"DELETE FROM ledger_entries WHERE expires_at <= UTC_TIMESTAMP()")
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
