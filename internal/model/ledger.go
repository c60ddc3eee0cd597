package model

import "time"

// LedgerEntry models a row in the `ledger_entries` table.  A row is either
// an outstanding refresh token (RevokedAt nil) or a blacklisted token of
// either kind (RevokedAt set).  The plain token is never stored; only its
// SHA-256 hash.  Rows past ExpiresAt are dead regardless of whether the
// sweeper has physically removed them yet.
//
// Fields:
//
//	ID        – primary key identifier.
//	UserID    – owner of the token.
//	TokenHash – SHA-256 hex digest of the token string.
//	Kind      – "access" or "refresh".
//	RevokedAt – when the token was blacklisted (nil while outstanding).
//	ExpiresAt – expiration timestamp copied from the token's exp claim.
//	CreatedAt – timestamp of creation.
type LedgerEntry struct {
	ID        uint64     // ledger_entries.id
	UserID    uint64     // ledger_entries.user_id
	TokenHash string     // ledger_entries.token_hash
	Kind      string     // ledger_entries.kind
	RevokedAt *time.Time // ledger_entries.revoked_at (nullable)
	ExpiresAt time.Time  // ledger_entries.expires_at
	CreatedAt time.Time  // ledger_entries.created_at
}
