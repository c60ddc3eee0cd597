package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Tien2003deptrai/Auth-BlackListToken/internal/middleware"
	"github.com/Tien2003deptrai/Auth-BlackListToken/internal/model"
	"github.com/Tien2003deptrai/Auth-BlackListToken/internal/repository"
)

// UserHandler serves the self-service profile endpoints and the admin-only
// user management endpoints.
type UserHandler struct {
	Users UserStore
}

func NewUserHandler(users UserStore) *UserHandler { return &UserHandler{Users: users} }

type updateProfileReq struct {
	Username *string `json:"username"`
	Email    *string `json:"email"`
}

type adminUpdateReq struct {
	Username *string `json:"username"`
	Email    *string `json:"email"`
	Role     *string `json:"role"`
	IsActive *bool   `json:"isActive"`
}

type listData struct {
	Users      []userView `json:"users"`
	Pagination pagination `json:"pagination"`
}

type pagination struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Pages int `json:"pages"`
}

// Profile returns the authenticated user's own record.
func (h *UserHandler) Profile(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()

	u, err := h.Users.GetByID(ctx, middleware.UserID(c))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fail(c, http.StatusNotFound, "User not found")
		}
		return fail(c, http.StatusInternalServerError, "Failed to load user")
	}
	return respond(c, http.StatusOK, "Profile retrieved successfully", echo.Map{"user": toUserView(u)})
}

// UpdateProfile lets the authenticated user change their own username
// and/or email.  Omitted fields are untouched.
func (h *UserHandler) UpdateProfile(c echo.Context) error {
	var req updateProfileReq
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "Invalid request body")
	}
	if req.Username == nil && req.Email == nil {
		return fail(c, http.StatusBadRequest, "Nothing to update")
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	u, err := h.Users.UpdateProfile(ctx, middleware.UserID(c), req.Username, req.Email)
	if err != nil {
		return h.updateError(c, err)
	}
	return respond(c, http.StatusOK, "Profile updated successfully", echo.Map{"user": toUserView(u)})
}

// List returns a page of users, newest first.  Admin only.
func (h *UserHandler) List(c echo.Context) error {
	page := queryInt(c, "page", 1)
	limit := queryInt(c, "limit", 10)

	ctx, cancel := reqCtx(c)
	defer cancel()

	users, total, err := h.Users.List(ctx, page, limit)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "Failed to list users")
	}
	views := make([]userView, 0, len(users))
	for _, u := range users {
		views = append(views, toUserView(u))
	}
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return respond(c, http.StatusOK, "Users retrieved successfully", listData{
		Users: views,
		Pagination: pagination{
			Total: total,
			Page:  page,
			Limit: limit,
			Pages: pages,
		},
	})
}

// Get returns a single user by id.  Admin only.
func (h *UserHandler) Get(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return fail(c, http.StatusBadRequest, "Invalid user id")
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	u, err := h.Users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fail(c, http.StatusNotFound, "User not found")
		}
		return fail(c, http.StatusInternalServerError, "Failed to load user")
	}
	return respond(c, http.StatusOK, "User retrieved successfully", echo.Map{"user": toUserView(u)})
}

// Update modifies any of username, email, role and active flag.  Admin
// only.  The target's live sessions are unaffected: already-issued access
// tokens keep their role snapshot until they expire.
func (h *UserHandler) Update(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return fail(c, http.StatusBadRequest, "Invalid user id")
	}
	var req adminUpdateReq
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "Invalid request body")
	}
	if req.Role != nil && !model.ValidRole(strings.TrimSpace(*req.Role)) {
		return fail(c, http.StatusBadRequest, "Role must be either user or admin")
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	// Existence check first so a bad id gets 404, not a silent no-op.
	if _, err := h.Users.GetByID(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fail(c, http.StatusNotFound, "User not found")
		}
		return fail(c, http.StatusInternalServerError, "Failed to load user")
	}

	u, err := h.Users.UpdateByAdmin(ctx, id, req.Username, req.Email, req.Role, req.IsActive)
	if err != nil {
		return h.updateError(c, err)
	}
	return respond(c, http.StatusOK, "User updated successfully", echo.Map{"user": toUserView(u)})
}

// Delete removes a user.  Admin only; an admin cannot delete their own
// account, and the guard runs before the store is touched.
func (h *UserHandler) Delete(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return fail(c, http.StatusBadRequest, "Invalid user id")
	}
	if id == middleware.UserID(c) {
		return fail(c, http.StatusBadRequest, "You cannot delete your own account")
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Users.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fail(c, http.StatusNotFound, "User not found")
		}
		return fail(c, http.StatusInternalServerError, "Failed to delete user")
	}
	return respond(c, http.StatusOK, "User deleted successfully", nil)
}

func (h *UserHandler) updateError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, repository.ErrUsernameExists):
		return fail(c, http.StatusBadRequest, "Username is already taken")
	case errors.Is(err, repository.ErrEmailExists):
		return fail(c, http.StatusBadRequest, "Email is already taken")
	case errors.Is(err, repository.ErrNotFound):
		return fail(c, http.StatusNotFound, "User not found")
	default:
		return fail(c, http.StatusInternalServerError, "Failed to update user")
	}
}

func reqCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), 5*time.Second)
}

func pathID(c echo.Context) (uint64, error) {
	return strconv.ParseUint(c.Param("id"), 10, 64)
}

func queryInt(c echo.Context, name string, def int) int {
	if v := c.QueryParam(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}
