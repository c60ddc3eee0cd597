package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Tien2003deptrai/Auth-BlackListToken/internal/auth"
	"github.com/Tien2003deptrai/Auth-BlackListToken/internal/config"
	"github.com/Tien2003deptrai/Auth-BlackListToken/internal/model"
	"github.com/Tien2003deptrai/Auth-BlackListToken/internal/queue"
	"github.com/Tien2003deptrai/Auth-BlackListToken/internal/repository"
	queue_publisher "github.com/Tien2003deptrai/Auth-BlackListToken/internal/service"
	"github.com/Tien2003deptrai/Auth-BlackListToken/internal/utils"
)

// UserStore is the slice of the credential store the handlers need.
// *repository.UserRepo satisfies it.
type UserStore interface {
	Create(ctx context.Context, username, email, password, role string, cost int) (model.User, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	GetByID(ctx context.Context, id uint64) (model.User, error)
	UpdateProfile(ctx context.Context, id uint64, username, email *string) (model.User, error)
	UpdateByAdmin(ctx context.Context, id uint64, username, email, role *string, isActive *bool) (model.User, error)
	Delete(ctx context.Context, id uint64) error
	List(ctx context.Context, page, limit int) ([]model.User, int, error)
}

// AuthHandler bundles dependencies for the auth endpoints.  Publish is
// best-effort audit eventing; it is a field so tests can silence it.
type AuthHandler struct {
	Cfg     config.Config
	Users   UserStore
	Engine  *auth.Engine
	Publish func(ctx context.Context, ev queue.AuthEvent)
}

func NewAuthHandler(cfg config.Config, users UserStore, engine *auth.Engine) *AuthHandler {
	return &AuthHandler{
		Cfg:    cfg,
		Users:  users,
		Engine: engine,
		Publish: func(ctx context.Context, ev queue.AuthEvent) {
			_ = queue_publisher.PublishAuthEvent(ctx, ev)
		},
	}
}

// ----- DTOs -----

type registerReq struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}
type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type refreshReq struct {
	RefreshToken string `json:"refreshToken"`
}

type authData struct {
	User   userView  `json:"user"`
	Tokens tokenPart `json:"tokens"`
}

// Register creates a user and returns it with a token pair immediately.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "Invalid request body")
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if len(req.Username) < 3 {
		return fail(c, http.StatusBadRequest, "Username must be at least 3 characters")
	}
	if !strings.Contains(req.Email, "@") {
		return fail(c, http.StatusBadRequest, "A valid email is required")
	}
	if len(req.Password) < 6 {
		return fail(c, http.StatusBadRequest, "Password must be at least 6 characters")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.Create(ctx, req.Username, req.Email, req.Password, model.RoleUser, h.Cfg.BcryptCost)
	if err != nil {
		if errors.Is(err, repository.ErrEmailExists) || errors.Is(err, repository.ErrUsernameExists) {
			return fail(c, http.StatusBadRequest, "User with this email or username already exists")
		}
		return fail(c, http.StatusInternalServerError, "Failed to create user")
	}

	pair, err := h.Engine.Issue(ctx, u)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "Failed to issue tokens")
	}

	h.Publish(ctx, queue.AuthEvent{
		Type:       queue.EventUserRegistered,
		UserID:     u.ID,
		Email:      u.Email,
		OccurredAt: time.Now().UTC().Format(time.RFC3339),
	})

	return respond(c, http.StatusCreated, "User registered successfully", authData{
		User:   toUserView(u),
		Tokens: tokenPart{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken},
	})
}

// Login verifies credentials and returns a fresh pair.  Unknown email,
// deactivated account and wrong password all produce the same 401.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "Invalid request body")
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return fail(c, http.StatusBadRequest, "Email and password are required")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fail(c, http.StatusUnauthorized, "Invalid credentials")
		}
		return fail(c, http.StatusInternalServerError, "Failed to query user")
	}
	if !u.IsActive || !utils.VerifyPassword(u.PasswordHash, req.Password) {
		return fail(c, http.StatusUnauthorized, "Invalid credentials")
	}

	pair, err := h.Engine.Issue(ctx, u)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "Failed to issue tokens")
	}

	h.Publish(ctx, queue.AuthEvent{
		Type:       queue.EventUserLogin,
		UserID:     u.ID,
		Email:      u.Email,
		OccurredAt: time.Now().UTC().Format(time.RFC3339),
	})

	return respond(c, http.StatusOK, "Login successful", authData{
		User:   toUserView(u),
		Tokens: tokenPart{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken},
	})
}

// Refresh rotates a refresh token: the presented token is consumed and a
// new pair is returned.  A reused token fails here with 401.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return fail(c, http.StatusBadRequest, "Refresh token is required")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, pair, err := h.Engine.Rotate(ctx, strings.TrimSpace(req.RefreshToken))
	if err != nil {
		if errors.Is(err, auth.ErrTokenInvalid) {
			return fail(c, http.StatusUnauthorized, "Invalid or expired token")
		}
		return fail(c, http.StatusInternalServerError, "Failed to refresh token")
	}

	return respond(c, http.StatusOK, "Token refreshed successfully", authData{
		User:   toUserView(u),
		Tokens: tokenPart{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken},
	})
}

// Logout blacklists the presented access token and, when supplied in the
// body, the refresh token.  Both revocations are best-effort: a session
// that already expired still gets a 200 so the client can tear down its
// local state.
func (h *AuthHandler) Logout(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	var accessRaw string
	var uid uint64
	if header := c.Request().Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		accessRaw = strings.TrimPrefix(header, "Bearer ")
		if claims, err := h.Engine.Verify(accessRaw, auth.KindAccess); err == nil {
			uid = claims.UserID
		}
	}

	var req refreshReq
	_ = c.Bind(&req)
	refreshRaw := strings.TrimSpace(req.RefreshToken)

	if uid == 0 && refreshRaw != "" {
		if claims, err := h.Engine.Verify(refreshRaw, auth.KindRefresh); err == nil {
			uid = claims.UserID
		}
	}

	if accessRaw != "" {
		if err := h.Engine.Revoke(ctx, accessRaw, uid, auth.KindAccess); err == nil {
			h.publishRevoked(ctx, uid, auth.KindAccess)
		}
	}
	if refreshRaw != "" {
		if err := h.Engine.Revoke(ctx, refreshRaw, uid, auth.KindRefresh); err == nil {
			h.publishRevoked(ctx, uid, auth.KindRefresh)
		}
	}

	return respond(c, http.StatusOK, "User logged out successfully", nil)
}

func (h *AuthHandler) publishRevoked(ctx context.Context, uid uint64, kind auth.Kind) {
	h.Publish(ctx, queue.AuthEvent{
		Type:       queue.EventTokenRevoked,
		UserID:     uid,
		TokenKind:  string(kind),
		OccurredAt: time.Now().UTC().Format(time.RFC3339),
	})
}
