package handler

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Tien2003deptrai/Auth-BlackListToken/internal/model"
)

// envelope is the uniform response body: {success, message, data?}.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func respond(c echo.Context, code int, msg string, data any) error {
	return c.JSON(code, envelope{Success: true, Message: msg, Data: data})
}

func fail(c echo.Context, code int, msg string) error {
	return c.JSON(code, envelope{Success: false, Message: msg})
}

// userView is the sanitized user representation returned to clients.  The
// password hash never leaves the repository layer.
type userView struct {
	ID        uint64    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
}

func toUserView(u model.User) userView {
	return userView{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Role:      u.Role,
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt,
	}
}

// tokenPart mirrors the token pair shape clients store.
type tokenPart struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}
