package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bookstore-backend/internal/activity"
	"github.com/angelmondragon/bookstore-backend/internal/users"
	pkgAuth "github.com/angelmondragon/bookstore-backend/pkg/auth"
	"github.com/angelmondragon/bookstore-backend/pkg/config"
	"github.com/angelmondragon/bookstore-backend/pkg/db/models"
	"github.com/angelmondragon/bookstore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bookstore-backend/pkg/errors"
	"github.com/angelmondragon/bookstore-backend/pkg/logger"
	"github.com/angelmondragon/bookstore-backend/pkg/mailer"
	"github.com/angelmondragon/bookstore-backend/pkg/outbox"
	"github.com/angelmondragon/bookstore-backend/pkg/security"
)

const (
	deactivatedMessage = "Your account has been deactivated. Please contact support."
	defaultMinPassword = 8
)

// Service defines the behavior needed by the auth controllers.
type Service interface {
	Register(ctx context.Context, req RegisterRequest) (*users.UserDTO, error)
	Login(ctx context.Context, req LoginRequest) (*LoginResponse, error)
	SocialLogin(ctx context.Context, req SocialLoginRequest) (*LoginResponse, error)
	AdminLogin(ctx context.Context, req LoginRequest) (*LoginResponse, error)
	ForgotPassword(ctx context.Context, req ForgotPasswordRequest) error
	ResetPassword(ctx context.Context, token string, req ResetPasswordRequest) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams bundles the dependencies required to build an auth service.
type ServiceParams struct {
	Users          *users.Repository
	Tx             txRunner
	Activity       activity.Recorder
	Outbox         outbox.Emitter
	Mailer         mailer.Sender
	JWTConfig      config.JWTConfig
	PasswordConfig config.PasswordConfig
	ClientURL      string
	Logger         *logger.Logger
	Clock          func() time.Time
}

type service struct {
	users       *users.Repository
	tx          txRunner
	activity    activity.Recorder
	outbox      outbox.Emitter
	mailer      mailer.Sender
	jwtCfg      config.JWTConfig
	passwordCfg config.PasswordConfig
	clientURL   string
	logg        *logger.Logger
	now         func() time.Time
	validate    *validator.Validate
}

// NewService constructs the auth service with the provided dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Users == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner is required")
	}
	if params.Activity == nil {
		return nil, fmt.Errorf("activity recorder is required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter is required")
	}
	if params.Mailer == nil {
		return nil, fmt.Errorf("mailer is required")
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &service{
		users:       params.Users,
		tx:          params.Tx,
		activity:    params.Activity,
		outbox:      params.Outbox,
		mailer:      params.Mailer,
		jwtCfg:      params.JWTConfig,
		passwordCfg: params.PasswordConfig,
		clientURL:   strings.TrimRight(params.ClientURL, "/"),
		logg:        params.Logger,
		now:         clock,
		validate:    validator.New(),
	}, nil
}

func (s *service) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	user, err := s.findByEmail(ctx, req.Email, "User not found")
	if err != nil {
		return nil, err
	}
	if err := s.checkPassword(ctx, user, req.Password, "Password does not match"); err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, deactivatedMessage)
	}
	return s.openSession(ctx, user, "logged in")
}

func (s *service) AdminLogin(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	user, err := s.findByEmail(ctx, req.Email, "Admin not found")
	if err != nil {
		return nil, err
	}
	if user.Role != enums.RoleAdmin {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "Access denied: Not an admin")
	}
	if err := s.checkPassword(ctx, user, req.Password, "Incorrect password"); err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, deactivatedMessage)
	}
	return s.openSession(ctx, user, "logged in to the dashboard")
}

// SocialLogin signs in the owner of an externally verified email, creating a
// password-less account on first use.
func (s *service) SocialLogin(ctx context.Context, req SocialLoginRequest) (*LoginResponse, error) {
	email := users.NormalizeEmail(req.Email)
	if err := s.validate.Var(email, "required,email"); err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "Invalid email address")
	}

	user, err := s.users.FindByEmail(ctx, email)
	switch {
	case err == nil:
	case errors.Is(err, gorm.ErrRecordNotFound):
		name := strings.TrimSpace(req.Name)
		if name == "" {
			name = strings.Split(email, "@")[0]
		}
		user, err = s.users.Create(ctx, users.CreateUserDTO{
			Name:   name,
			Email:  email,
			Avatar: req.Avatar,
		})
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create social account")
		}
	default:
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup user")
	}

	if !user.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, deactivatedMessage)
	}
	return s.openSession(ctx, user, "logged in with Google")
}

func (s *service) findByEmail(ctx context.Context, email, notFound string) (*models.User, error) {
	input := users.NormalizeEmail(email)
	if input == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	user, err := s.users.FindByEmail(ctx, input)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, notFound)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup user")
	}
	return user, nil
}

func (s *service) checkPassword(ctx context.Context, user *models.User, password, mismatch string) error {
	if !user.HasPassword() {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, mismatch)
	}
	valid, err := security.VerifyPassword(password, *user.PasswordHash)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify password")
	}
	if !valid {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, mismatch)
	}
	if security.NeedsRehash(*user.PasswordHash) {
		s.upgradeHash(ctx, user, password)
	}
	return nil
}

// upgradeHash re-encodes a legacy bcrypt hash with argon2id after a
// successful verification. Failures only cost the upgrade.
func (s *service) upgradeHash(ctx context.Context, user *models.User, password string) {
	hash, err := security.HashPassword(password, s.passwordCfg)
	if err == nil {
		err = s.users.Updates(ctx, user.ID, map[string]any{"password_hash": hash})
	}
	if err != nil && s.logg != nil {
		s.logg.Warn(s.logg.WithUserID(ctx, user.ID.String()), "password rehash failed: "+err.Error())
	}
}

func (s *service) openSession(ctx context.Context, user *models.User, action string) (*LoginResponse, error) {
	now := s.now().UTC()
	token, err := pkgAuth.MintAccessToken(s.jwtCfg, now, pkgAuth.AccessTokenPayload{
		UserID: user.ID,
		Role:   user.Role,
		JTI:    uuid.NewString(),
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint jwt")
	}
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update last login")
	}
	user.LastLoginAt = &now

	s.activity.Record(ctx, activity.Entry{
		UserID: &user.ID,
		Actor:  user.Name,
		Action: action,
		Target: "account",
	})
	return &LoginResponse{
		Token:     token,
		ExpiresAt: now.Add(s.jwtCfg.TTL()),
		User:      users.FromModel(user),
	}, nil
}

func (s *service) minPasswordLength() int {
	if s.passwordCfg.MinLength > 0 {
		return s.passwordCfg.MinLength
	}
	return defaultMinPassword
}
