package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bookstore-backend/internal/activity"
	"github.com/angelmondragon/bookstore-backend/pkg/config"
	"github.com/angelmondragon/bookstore-backend/pkg/db"
	"github.com/angelmondragon/bookstore-backend/pkg/db/models"
	"github.com/angelmondragon/bookstore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bookstore-backend/pkg/errors"
	"github.com/angelmondragon/bookstore-backend/pkg/outbox"
	"github.com/angelmondragon/bookstore-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/bookstore-backend/pkg/pagination"
	"github.com/angelmondragon/bookstore-backend/pkg/security"
)

// Service covers self-service account management and the admin user list.
type Service interface {
	Profile(ctx context.Context, userID uuid.UUID) (*UserDTO, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, input ProfileUpdate) (*UserDTO, error)
	ChangePassword(ctx context.Context, userID uuid.UUID, req ChangePasswordRequest) error
	Deactivate(ctx context.Context, userID uuid.UUID) error

	Search(ctx context.Context, params SearchParams) (*SearchResult, error)
	AdminUpdate(ctx context.Context, adminID, userID uuid.UUID, input AdminUpdate) (*UserDTO, error)
	Reactivate(ctx context.Context, adminID, userID uuid.UUID) error
	Delete(ctx context.Context, adminID, userID uuid.UUID) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ServiceParams struct {
	Repo           *Repository
	Tx             txRunner
	Activity       activity.Recorder
	Outbox         outbox.Emitter
	PasswordConfig config.PasswordConfig
}

type service struct {
	repo        *Repository
	tx          txRunner
	activity    activity.Recorder
	outbox      outbox.Emitter
	passwordCfg config.PasswordConfig
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "users repository required")
	}
	if params.Tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	}
	if params.Activity == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "activity recorder required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "outbox emitter required")
	}
	return &service{
		repo:        params.Repo,
		tx:          params.Tx,
		activity:    params.Activity,
		outbox:      params.Outbox,
		passwordCfg: params.PasswordConfig,
	}, nil
}

func (s *service) Profile(ctx context.Context, userID uuid.UUID) (*UserDTO, error) {
	user, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return FromModel(user), nil
}

func (s *service) UpdateProfile(ctx context.Context, userID uuid.UUID, input ProfileUpdate) (*UserDTO, error) {
	fields := map[string]any{}
	if input.Name != nil && strings.TrimSpace(*input.Name) != "" {
		fields["name"] = strings.TrimSpace(*input.Name)
	}
	if input.Email != nil && strings.TrimSpace(*input.Email) != "" {
		fields["email"] = NormalizeEmail(*input.Email)
	}
	if input.Phone != nil && strings.TrimSpace(*input.Phone) != "" {
		fields["phone"] = strings.TrimSpace(*input.Phone)
	}
	if input.Avatar != nil && strings.TrimSpace(*input.Avatar) != "" {
		fields["avatar"] = strings.TrimSpace(*input.Avatar)
	}

	if err := s.repo.Updates(ctx, userID, fields); err != nil {
		s.activity.Record(ctx, activity.Entry{
			UserID: &userID,
			Action: "failed to update",
			Target: "profile",
			Status: enums.ActivityStatusFailed,
		})
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "User not found")
		case db.IsUniqueViolation(err, ""):
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "email already in use")
		default:
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update profile")
		}
	}

	user, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.activity.Record(ctx, activity.Entry{
		UserID: &user.ID,
		Actor:  user.Name,
		Action: "updated",
		Target: "profile",
	})
	return FromModel(user), nil
}

func (s *service) ChangePassword(ctx context.Context, userID uuid.UUID, req ChangePasswordRequest) error {
	if req.CurrentPassword == "" || req.NewPassword == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "Both current and new passwords are required")
	}
	if len(req.NewPassword) < 8 {
		return pkgerrors.New(pkgerrors.CodeValidation, "Password too weak (min 8 characters)")
	}
	user, err := s.load(ctx, userID)
	if err != nil {
		return err
	}

	var valid bool
	if user.HasPassword() {
		valid, err = security.VerifyPassword(req.CurrentPassword, *user.PasswordHash)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify password")
		}
	}
	if !valid {
		return pkgerrors.New(pkgerrors.CodeValidation, "Current password is incorrect")
	}

	hash, err := security.HashPassword(req.NewPassword, s.passwordCfg)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}
	if err := s.repo.Updates(ctx, user.ID, map[string]any{"password_hash": hash}); err != nil {
		s.activity.Record(ctx, activity.Entry{
			UserID: &user.ID,
			Actor:  user.Name,
			Action: "failed to change",
			Target: "password",
			Status: enums.ActivityStatusFailed,
		})
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store password")
	}
	s.activity.Record(ctx, activity.Entry{
		UserID: &user.ID,
		Actor:  user.Name,
		Action: "changed",
		Target: "password",
	})
	return nil
}

func (s *service) Deactivate(ctx context.Context, userID uuid.UUID) error {
	user, err := s.load(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.repo.Updates(ctx, user.ID, map[string]any{"is_active": false}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "deactivate account")
	}
	s.activity.Record(ctx, activity.Entry{
		UserID: &user.ID,
		Actor:  user.Email,
		Action: "Deactivated own account",
		Target: "User: " + user.Email,
		Status: enums.ActivityStatusWarning,
	})
	return nil
}

func (s *service) Search(ctx context.Context, params SearchParams) (*SearchResult, error) {
	page := pagination.Page{Page: params.Page, Limit: params.Limit}.Normalize()
	params.Page, params.Limit = page.Page, page.Limit
	switch params.Status {
	case "", StatusAll, StatusActive, StatusInactive:
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "status must be all, active or inactive")
	}
	if params.Role != "" && !params.Role.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid role")
	}

	list, total, err := s.repo.Search(ctx, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "search users")
	}
	return &SearchResult{
		Users:   FromModels(list),
		Total:   total,
		Page:    page.Page,
		Limit:   page.Limit,
		HasMore: page.HasMore(total),
	}, nil
}

func (s *service) AdminUpdate(ctx context.Context, adminID, userID uuid.UUID, input AdminUpdate) (*UserDTO, error) {
	fields := map[string]any{}
	data := map[string]string{}
	roleLabel, statusLabel := "unchanged", "unchanged"
	if input.Role != nil {
		if !input.Role.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid role")
		}
		fields["role"] = *input.Role
		roleLabel = input.Role.String()
		data["role"] = roleLabel
	}
	if input.IsActive != nil {
		fields["is_active"] = *input.IsActive
		statusLabel = activeLabel(*input.IsActive)
		data["status"] = statusLabel
	}
	if len(fields) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "nothing to update")
	}

	admin := s.actorLabel(ctx, adminID)
	var updated *models.User
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Updates(ctx, userID, fields); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "User not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update user")
		}
		user, err := repo.FindByID(ctx, userID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload user")
		}
		updated = user

		if strings.TrimSpace(user.Email) != "" {
			if err := s.outbox.Emit(ctx, tx, accountStatusEmail(adminID, user, data)); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "queue account email")
			}
		}
		return s.activity.RecordTx(ctx, tx, activity.Entry{
			UserID: &adminID,
			Actor:  admin,
			Action: fmt.Sprintf("Admin updated user %s - Role: %s, Status: %s", user.Email, roleLabel, statusLabel),
			Target: "User: " + user.Email,
		})
	})
	if err != nil {
		return nil, err
	}
	return FromModel(updated), nil
}

func (s *service) Reactivate(ctx context.Context, adminID, userID uuid.UUID) error {
	user, err := s.load(ctx, userID)
	if err != nil {
		return err
	}
	if user.IsActive {
		return pkgerrors.New(pkgerrors.CodeValidation, "Account is already active")
	}
	if err := s.repo.Updates(ctx, user.ID, map[string]any{"is_active": true}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reactivate account")
	}
	s.activity.Record(ctx, activity.Entry{
		UserID: &adminID,
		Actor:  s.actorLabel(ctx, adminID),
		Action: "Reactivated a user account",
		Target: "User: " + user.Email,
	})
	return nil
}

func (s *service) Delete(ctx context.Context, adminID, userID uuid.UUID) error {
	user, err := s.load(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, user.ID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "User not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete user")
	}
	s.activity.Record(ctx, activity.Entry{
		UserID: &adminID,
		Actor:  s.actorLabel(ctx, adminID),
		Action: "deleted",
		Target: "User: " + user.Email,
		Status: enums.ActivityStatusWarning,
	})
	return nil
}

func (s *service) load(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "User not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user")
	}
	return user, nil
}

// actorLabel names the acting admin in the activity log.
func (s *service) actorLabel(ctx context.Context, id uuid.UUID) string {
	if user, err := s.repo.FindByID(ctx, id); err == nil {
		return user.Email
	}
	return "admin"
}

func activeLabel(active bool) string {
	if active {
		return "active"
	}
	return "inactive"
}

func accountStatusEmail(adminID uuid.UUID, user *models.User, data map[string]string) outbox.DomainEvent {
	return outbox.DomainEvent{
		EventType:     enums.EventEmailRequested,
		AggregateType: enums.AggregateUser,
		AggregateID:   user.ID,
		Actor:         &outbox.ActorRef{UserID: adminID, Role: enums.RoleAdmin.String()},
		Data: payloads.EmailRequestedEvent{
			To:       strings.TrimSpace(user.Email),
			Name:     user.Name,
			Template: payloads.EmailAccountStatus,
			Data:     data,
		},
	}
}
