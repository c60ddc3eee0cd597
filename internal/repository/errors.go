// Package repository defines error types that are reused across multiple
// repositories.  These sentinel values allow higher layers such as
// handlers to distinguish between different failure scenarios, for
// example translating a unique-constraint violation on users.email
// into an HTTP 400 with a field-level message.
package repository

import (
	"errors"
	"strings"
)

// ErrNotFound is returned when a requested row does not exist.  Handlers
// should translate this into an HTTP 404 response.
var ErrNotFound = errors.New("not found")

// ErrEmailExists is returned when an insert or update would violate the
// unique constraint on users.email.
var ErrEmailExists = errors.New("email already exists")

// ErrUsernameExists is returned when an insert or update would violate the
// unique constraint on users.username.
var ErrUsernameExists = errors.New("username already exists")

// ErrDuplicateToken is returned by StoreRefresh when a freshly issued
// token hashes to a row already present in the ledger.  Tokens carry a
// random jti, so hitting this means something upstream reissued the same
// token string.
var ErrDuplicateToken = errors.New("token already recorded")

// isDuplicateKey reports whether err is a MySQL 1062 unique-index
// violation.  The driver exposes the code only inside the message text.
func isDuplicateKey(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "1062")
}
