package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/bookstore-backend/internal/activity"
	pkgerrors "github.com/angelmondragon/bookstore-backend/pkg/errors"
	"github.com/angelmondragon/bookstore-backend/pkg/mailer"
	"github.com/angelmondragon/bookstore-backend/pkg/security"
)

const defaultResetTTL = 10 * time.Minute

// ForgotPassword stores a hashed single-use token and emails the raw token as
// a link into the storefront.
func (s *service) ForgotPassword(ctx context.Context, req ForgotPasswordRequest) error {
	user, err := s.findByEmail(ctx, req.Email, "No user found with this email.")
	if err != nil {
		return err
	}

	raw, hashed, err := security.NewResetToken()
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate reset token")
	}
	ttl := s.passwordCfg.ResetTokenTTL
	if ttl <= 0 {
		ttl = defaultResetTTL
	}
	if err := s.users.SetResetToken(ctx, user.ID, hashed, s.now().UTC().Add(ttl)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store reset token")
	}

	resetURL := s.clientURL + "/reset-password/" + raw
	msg, err := mailer.Render(mailer.TemplatePasswordReset, user.Email, user.Name, map[string]string{"resetUrl": resetURL})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "render reset email")
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		// The token stays valid; the user can ask again.
		if s.logg != nil {
			s.logg.Error(s.logg.WithUserID(ctx, user.ID.String()), "send reset email", err)
		}
	}
	return nil
}

func (s *service) ResetPassword(ctx context.Context, token string, req ResetPasswordRequest) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "Token is invalid or has expired")
	}
	if len(req.NewPassword) < s.minPasswordLength() {
		return pkgerrors.New(pkgerrors.CodeValidation, "Password too weak (min 8 characters)")
	}

	user, err := s.users.FindByResetToken(ctx, security.HashResetToken(token), s.now().UTC())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeValidation, "Token is invalid or has expired")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup reset token")
	}

	hash, err := security.HashPassword(req.NewPassword, s.passwordCfg)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}
	if err := s.users.ResetPassword(ctx, user.ID, hash); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store password")
	}

	s.activity.Record(ctx, activity.Entry{
		UserID: &user.ID,
		Actor:  user.Name,
		Action: "reset",
		Target: "password",
	})
	return nil
}
