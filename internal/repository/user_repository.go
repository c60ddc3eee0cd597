package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/Tien2003deptrai/Auth-BlackListToken/internal/model"
	"github.com/Tien2003deptrai/Auth-BlackListToken/internal/utils"
)

// UserRepo is the credential store: it owns the `users` table and knows
// nothing about tokens.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

const userColumns = "id,username,email,password_hash,role,is_active,created_at,updated_at"

// Create hashes the password and inserts a user, returning the stored row.
func (r *UserRepo) Create(ctx context.Context, username, email, password, role string, cost int) (model.User, error) {
	username = strings.TrimSpace(username)
	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return model.User{}, err
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (username, email, password_hash, role) VALUES (?,?,?,?)",
		username, email, hash, role)
	if err != nil {
		return model.User{}, mapDuplicate(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.User{}, err
	}
	return r.GetByID(ctx, uint64(id))
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return r.scanOne(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", email))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return r.scanOne(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
}

// UpdateProfile updates the caller's own username and/or email.  Nil fields
// are left untouched.  Returns the updated row.
func (r *UserRepo) UpdateProfile(ctx context.Context, id uint64, username, email *string) (model.User, error) {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET username=COALESCE(?, username), email=COALESCE(?, email) WHERE id=?",
		nullTrimmed(username), nullLower(email), id)
	if err != nil {
		return model.User{}, mapDuplicate(err)
	}
	return r.GetByID(ctx, id)
}

// UpdateByAdmin updates any combination of username, email, role and active
// flag on the target user.  Nil fields are left untouched.
func (r *UserRepo) UpdateByAdmin(ctx context.Context, id uint64, username, email, role *string, isActive *bool) (model.User, error) {
	var active sql.NullBool
	if isActive != nil {
		active = sql.NullBool{Bool: *isActive, Valid: true}
	}
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET username=COALESCE(?, username), email=COALESCE(?, email), role=COALESCE(?, role), is_active=COALESCE(?, is_active) WHERE id=?",
		nullTrimmed(username), nullLower(email), nullTrimmed(role), active, id)
	if err != nil {
		return model.User{}, mapDuplicate(err)
	}
	return r.GetByID(ctx, id)
}

// Delete removes a user row.  Returns ErrNotFound when no row matched.
func (r *UserRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM users WHERE id=?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns one page of users, newest first, plus the total row count.
func (r *UserRepo) List(ctx context.Context, page, limit int) ([]model.User, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	offset := (page - 1) * limit

	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?",
		limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	users := make([]model.User, 0, limit)
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, 0, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&total); err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func (r *UserRepo) scanOne(row *sql.Row) (model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	return u, err
}

// mapDuplicate turns a MySQL 1062 duplicate-key error into the matching
// sentinel, using the index name embedded in the driver's error message.
func mapDuplicate(err error) error {
	if !isDuplicateKey(err) {
		return err
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "username") {
		return ErrUsernameExists
	}
	if strings.Contains(msg, "email") {
		return ErrEmailExists
	}
	return ErrEmailExists
}

func nullTrimmed(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: strings.TrimSpace(*s), Valid: true}
}

func nullLower(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: strings.ToLower(strings.TrimSpace(*s)), Valid: true}
}
