// Package auth implements the token lifecycle: issuing signed access and
// refresh pairs, verifying them, rotating refresh tokens and blacklisting
// tokens on logout.  Signature verification is pure computation; every
// revocation decision goes through the ledger, which is the sole source of
// truth for whether a structurally valid token is still honored.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Tien2003deptrai/Auth-BlackListToken/internal/model"
	"github.com/Tien2003deptrai/Auth-BlackListToken/internal/utils"
)

// Kind distinguishes the two token variants.  Each kind is signed with its
// own secret, so a leaked access token can never be presented for rotation.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// ErrTokenInvalid covers every verification failure: bad signature,
// malformed payload, expiry, unknown or inactive user, reuse of a rotated
// token.  Callers must not tell the presenter which check failed.
var ErrTokenInvalid = errors.New("invalid or expired token")

// ErrRevocation is returned when a token cannot be blacklisted (malformed
// token or unresolvable user).  Logout flows treat it as best-effort and
// carry on.
var ErrRevocation = errors.New("revocation failed")

// Claims is the decoded content of a verified token.
type Claims struct {
	UserID    uint64
	Role      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenPair is what Issue and Rotate hand back to the client.
type TokenPair struct {
	AccessToken    string
	AccessExpires  time.Time
	RefreshToken   string
	RefreshExpires time.Time
}

// UserProvider resolves identities at rotation and revocation time.
// *repository.UserRepo satisfies it.
type UserProvider interface {
	GetByID(ctx context.Context, id uint64) (model.User, error)
}

// Ledger persists outstanding refresh tokens and blacklist entries.
// *repository.TokenRepo satisfies it.
type Ledger interface {
	StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error
	HasActiveRefresh(ctx context.Context, tokenHash string) (bool, error)
	IsRevoked(ctx context.Context, tokenHash string) (bool, error)
	Blacklist(ctx context.Context, userID uint64, tokenHash, kind string, exp time.Time) (bool, error)
	DeleteRefreshForUser(ctx context.Context, userID uint64) error
}

// Engine issues, verifies, rotates and revokes tokens.
type Engine struct {
	log           *slog.Logger
	users         UserProvider
	ledger        Ledger
	accessSecret  string
	refreshSecret string
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

// NewEngine wires the engine with its stores, kind-specific secrets and
// lifetimes.
func NewEngine(logger *slog.Logger, users UserProvider, ledger Ledger, accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *Engine {
	return &Engine{
		log:           logger,
		users:         users,
		ledger:        ledger,
		accessSecret:  accessSecret,
		refreshSecret: refreshSecret,
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}
}

// Issue signs an access/refresh pair for the user and records the refresh
// token in the ledger so it can later be rotated or revoked.  The caller is
// responsible for only passing active users.
func (e *Engine) Issue(ctx context.Context, u model.User) (TokenPair, error) {
	const op = "auth.Issue"

	access, accessExp, err := e.sign(u, KindAccess)
	if err != nil {
		return TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}
	refresh, refreshExp, err := e.sign(u, KindRefresh)
	if err != nil {
		return TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}
	if err := e.ledger.StoreRefresh(ctx, u.ID, utils.HashToken(refresh), refreshExp); err != nil {
		e.log.Error("store refresh failed", slog.String("op", op), slog.Uint64("user_id", u.ID), slog.Any("err", err))
		return TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	e.log.Info("token pair issued", slog.String("op", op), slog.Uint64("user_id", u.ID))
	return TokenPair{
		AccessToken:    access,
		AccessExpires:  accessExp,
		RefreshToken:   refresh,
		RefreshExpires: refreshExp,
	}, nil
}

// Verify checks the signature against the kind-specific secret and the
// expiry embedded in the token.  It never touches the ledger: revocation is
// a separate, explicit check so that verification stays usable in contexts
// without storage access.
func (e *Engine) Verify(raw string, kind Kind) (Claims, error) {
	const op = "auth.Verify"

	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(e.secret(kind)), nil
	})
	if err != nil || !tok.Valid {
		// The reason stays in internal logs only; the presenter sees a
		// uniform failure.
		e.log.Debug("token rejected", slog.String("op", op), slog.String("kind", string(kind)), slog.Any("err", err))
		return Claims{}, ErrTokenInvalid
	}

	mc, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, ErrTokenInvalid
	}
	uid := subjectID(mc)
	role, _ := mc["role"].(string)
	if uid == 0 || role == "" {
		return Claims{}, ErrTokenInvalid
	}
	exp, err := mc.GetExpirationTime()
	if err != nil || exp == nil {
		return Claims{}, ErrTokenInvalid
	}
	iat, _ := mc.GetIssuedAt()

	c := Claims{UserID: uid, Role: role, ExpiresAt: exp.Time}
	if iat != nil {
		c.IssuedAt = iat.Time
	}
	return c, nil
}

// Rotate exchanges a refresh token for a fresh pair.  The presented token
// is consumed: it is blacklisted until its natural expiry, and every other
// outstanding refresh token for the same user is retired in the same step.
// Presenting the same token twice, including concurrently, succeeds at most
// once.
func (e *Engine) Rotate(ctx context.Context, raw string) (model.User, TokenPair, error) {
	const op = "auth.Rotate"

	claims, err := e.Verify(raw, KindRefresh)
	if err != nil {
		return model.User{}, TokenPair{}, ErrTokenInvalid
	}
	hash := utils.HashToken(raw)

	active, err := e.ledger.HasActiveRefresh(ctx, hash)
	if err != nil {
		e.log.Error("ledger lookup failed", slog.String("op", op), slog.Any("err", err))
		return model.User{}, TokenPair{}, ErrTokenInvalid
	}
	if !active {
		e.log.Warn("refresh token not outstanding", slog.String("op", op), slog.Uint64("user_id", claims.UserID))
		return model.User{}, TokenPair{}, ErrTokenInvalid
	}

	// A missing or deactivated account is indistinguishable from a bad
	// token on purpose.
	u, err := e.users.GetByID(ctx, claims.UserID)
	if err != nil || !u.IsActive {
		e.log.Warn("rotation for unusable identity", slog.String("op", op), slog.Uint64("user_id", claims.UserID), slog.Any("err", err))
		return model.User{}, TokenPair{}, ErrTokenInvalid
	}

	// First writer wins: the losing side of a concurrent rotation sees
	// first == false and is rejected as reuse.
	first, err := e.ledger.Blacklist(ctx, u.ID, hash, string(KindRefresh), claims.ExpiresAt)
	if err != nil {
		e.log.Error("blacklist failed", slog.String("op", op), slog.Uint64("user_id", u.ID), slog.Any("err", err))
		return model.User{}, TokenPair{}, ErrTokenInvalid
	}
	if !first {
		e.log.Warn("refresh token reuse detected", slog.String("op", op), slog.Uint64("user_id", u.ID))
		return model.User{}, TokenPair{}, ErrTokenInvalid
	}

	// Session-wide invalidation: one rotation retires every outstanding
	// refresh token for the user, not just the presented one.
	if err := e.ledger.DeleteRefreshForUser(ctx, u.ID); err != nil {
		e.log.Error("retire sessions failed", slog.String("op", op), slog.Uint64("user_id", u.ID), slog.Any("err", err))
		return model.User{}, TokenPair{}, ErrTokenInvalid
	}

	pair, err := e.Issue(ctx, u)
	if err != nil {
		return model.User{}, TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}
	return u, pair, nil
}

// Revoke blacklists a token.  The blacklist row expires when the token
// would have expired anyway, so the ledger never grows without bound.  A
// duplicate revoke is a silent no-op.  Malformed tokens and unresolvable
// users fail with ErrRevocation, which logout flows tolerate.
func (e *Engine) Revoke(ctx context.Context, raw string, userID uint64, kind Kind) error {
	const op = "auth.Revoke"

	if userID == 0 {
		return fmt.Errorf("%s: missing user id: %w", op, ErrRevocation)
	}
	// Decode without verifying: an expired token can still be revoked, we
	// only need its exp claim to bound the blacklist row's lifetime.
	tok, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return fmt.Errorf("%s: malformed token: %w", op, ErrRevocation)
	}
	exp, err := tok.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return fmt.Errorf("%s: token has no expiry: %w", op, ErrRevocation)
	}
	if _, err := e.users.GetByID(ctx, userID); err != nil {
		return fmt.Errorf("%s: unknown user %d: %w", op, userID, ErrRevocation)
	}

	first, err := e.ledger.Blacklist(ctx, userID, utils.HashToken(raw), string(kind), exp.Time)
	if err != nil {
		e.log.Error("blacklist failed", slog.String("op", op), slog.Uint64("user_id", userID), slog.Any("err", err))
		return fmt.Errorf("%s: %w", op, ErrRevocation)
	}
	if first {
		e.log.Info("token revoked", slog.String("op", op), slog.Uint64("user_id", userID), slog.String("kind", string(kind)))
	}
	return nil
}

// IsRevoked reports whether a non-expired blacklist entry exists for the
// token.  Must be consulted before trusting any access token.
func (e *Engine) IsRevoked(ctx context.Context, raw string) (bool, error) {
	return e.ledger.IsRevoked(ctx, utils.HashToken(raw))
}

func (e *Engine) secret(kind Kind) string {
	if kind == KindRefresh {
		return e.refreshSecret
	}
	return e.accessSecret
}

func (e *Engine) ttl(kind Kind) time.Duration {
	if kind == KindRefresh {
		return e.refreshTTL
	}
	return e.accessTTL
}

// sign builds an HS256 JWT carrying the user's id and role.  Claims:
// subject (sub), role, expiration (exp), issued at (iat) and a random jti.
// The jti keeps token strings unique even when two are issued within the
// same second, which the ledger's one-row-per-token keying depends on.
func (e *Engine) sign(u model.User, kind Kind) (string, time.Time, error) {
	now := time.Now().UTC()
	exp := now.Add(e.ttl(kind))
	jti, err := utils.RandomHex(16)
	if err != nil {
		return "", time.Time{}, err
	}
	claims := jwt.MapClaims{
		"sub":  u.ID,
		"role": u.Role,
		"exp":  exp.Unix(),
		"iat":  now.Unix(),
		"jti":  jti,
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString([]byte(e.secret(kind)))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// subjectID pulls the user id out of the sub claim.  JWT numeric values
// decode as float64; some issuers encode them as strings.
func subjectID(mc jwt.MapClaims) uint64 {
	switch v := mc["sub"].(type) {
	case float64:
		return uint64(v)
	case string:
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			return n
		}
	}
	return 0
}
