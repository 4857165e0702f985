package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/bookstore-backend/api/responses"
	"github.com/angelmondragon/bookstore-backend/api/validators"
	"github.com/angelmondragon/bookstore-backend/internal/auth"
	"github.com/angelmondragon/bookstore-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/bookstore-backend/pkg/errors"
	"github.com/angelmondragon/bookstore-backend/pkg/logger"
)

func AuthRegister(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "auth service unavailable"))
			return
		}

		var body auth.RegisterRequest
		if err := validators.DecodeJSONBodyLenient(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		user, err := svc.Register(r.Context(), body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, "User registered successfully", user)
	}
}

// AuthLogin signs the customer in and sets the session cookie.
func AuthLogin(svc auth.Service, cookie config.CookieConfig, logg *logger.Logger) http.HandlerFunc {
	return loginHandler(svc, cookie, logg, "Login successful", func(r *http.Request, svc auth.Service) (*auth.LoginResponse, error) {
		var body auth.LoginRequest
		if err := validators.DecodeJSONBodyLenient(r, &body); err != nil {
			return nil, err
		}
		return svc.Login(r.Context(), body)
	})
}

// AdminAuthLogin is AuthLogin restricted to admin accounts.
func AdminAuthLogin(svc auth.Service, cookie config.CookieConfig, logg *logger.Logger) http.HandlerFunc {
	return loginHandler(svc, cookie, logg, "Admin login successful", func(r *http.Request, svc auth.Service) (*auth.LoginResponse, error) {
		var body auth.LoginRequest
		if err := validators.DecodeJSONBodyLenient(r, &body); err != nil {
			return nil, err
		}
		return svc.AdminLogin(r.Context(), body)
	})
}

// AuthGoogle finds or creates the account asserted by Google sign-in.
func AuthGoogle(svc auth.Service, cookie config.CookieConfig, logg *logger.Logger) http.HandlerFunc {
	return loginHandler(svc, cookie, logg, "Login successful", func(r *http.Request, svc auth.Service) (*auth.LoginResponse, error) {
		var body auth.SocialLoginRequest
		if err := validators.DecodeJSONBodyLenient(r, &body); err != nil {
			return nil, err
		}
		return svc.SocialLogin(r.Context(), body)
	})
}

func loginHandler(
	svc auth.Service,
	cookie config.CookieConfig,
	logg *logger.Logger,
	message string,
	login func(*http.Request, auth.Service) (*auth.LoginResponse, error),
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "auth service unavailable"))
			return
		}

		result, err := login(r, svc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		setSessionCookie(w, cookie, result.Token, result.ExpiresAt)
		responses.WriteSuccessStatus(w, http.StatusOK, message, result)
	}
}

func AuthLogout(cookie config.CookieConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		clearSessionCookie(w, cookie)
		responses.WriteMessage(w, "Logged out successfully")
	}
}

func AuthForgotPassword(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "auth service unavailable"))
			return
		}

		var body auth.ForgotPasswordRequest
		if err := validators.DecodeJSONBodyLenient(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.ForgotPassword(r.Context(), body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteMessage(w, "Password reset link sent to your email")
	}
}

func AuthResetPassword(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "auth service unavailable"))
			return
		}

		var body auth.ResetPasswordRequest
		if err := validators.DecodeJSONBodyLenient(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.ResetPassword(r.Context(), chi.URLParam(r, "token"), body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteMessage(w, "Password has been reset successfully")
	}
}
