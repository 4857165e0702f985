package auth

import (
	"time"

	"github.com/angelmondragon/bookstore-backend/internal/users"
)

// RegisterRequest is the body of the public sign-up endpoint.
type RegisterRequest struct {
	Name     string  `json:"name" validate:"required"`
	Email    string  `json:"email" validate:"required"`
	Password string  `json:"password" validate:"required"`
	Phone    *string `json:"phone,omitempty"`
}

// LoginRequest captures the user credentials sent to the login endpoints.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// SocialLoginRequest carries the identity asserted by the Google sign-in widget.
type SocialLoginRequest struct {
	Email  string  `json:"email" validate:"required,email"`
	Name   string  `json:"name"`
	Avatar *string `json:"avatar,omitempty"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type ResetPasswordRequest struct {
	NewPassword string `json:"newPassword" validate:"required"`
}

// LoginResponse is returned by every flow that opens a session. Token is also
// written to the session cookie by the controller.
type LoginResponse struct {
	Token     string         `json:"token"`
	ExpiresAt time.Time      `json:"expiresAt"`
	User      *users.UserDTO `json:"user"`
}
