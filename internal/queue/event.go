// Package queue defines message payloads exchanged over the message broker.
package queue

// Event types published to the auth.events queue.
const (
	EventUserRegistered = "user.registered"
	EventUserLogin      = "user.login"
	EventTokenRevoked   = "token.revoked"
)

// AuthEvent is published on registration, login and token revocation.  It
// carries enough for downstream consumers to build an audit trail without
// querying the primary database.  Token strings are never included.
type AuthEvent struct {
	Type       string `json:"type"`
	UserID     uint64 `json:"user_id"`
	Email      string `json:"email,omitempty"`
	TokenKind  string `json:"token_kind,omitempty"`
	OccurredAt string `json:"occurred_at"`
}
