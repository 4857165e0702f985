package activity

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bookstore-backend/pkg/db/models"
	"github.com/angelmondragon/bookstore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bookstore-backend/pkg/errors"
	"github.com/angelmondragon/bookstore-backend/pkg/logger"
)

// LatestLimit is the size of the dashboard activity widget.
const LatestLimit = 20

// Entry describes one significant action.
type Entry struct {
	UserID *uuid.UUID
	Actor  string
	Action string
	Target string
	Status enums.ActivityStatus
}

// Recorder appends activity entries. Record never fails the caller; RecordTx
// joins the caller's transaction and reports errors.
type Recorder interface {
	Record(ctx context.Context, entry Entry)
	RecordTx(ctx context.Context, tx *gorm.DB, entry Entry) error
}

// Service is the activity log read and write API.
type Service interface {
	Recorder
	Latest(ctx context.Context) ([]EntryView, error)
}

type service struct {
	repo *Repository
	logg *logger.Logger
}

func NewService(repo *Repository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "activity repository required")
	}
	return &service{repo: repo, logg: logg}, nil
}

func (s *service) Record(ctx context.Context, entry Entry) {
	if err := s.repo.Create(ctx, toModel(entry)); err != nil && s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"action": entry.Action,
			"target": entry.Target,
		})
		s.logg.Error(logCtx, "record activity", err)
	}
}

func (s *service) RecordTx(ctx context.Context, tx *gorm.DB, entry Entry) error {
	return s.repo.WithTx(tx).Create(ctx, toModel(entry))
}

func (s *service) Latest(ctx context.Context) ([]EntryView, error) {
	rows, err := s.repo.Latest(ctx, LatestLimit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list activities")
	}
	return rows, nil
}

func toModel(entry Entry) *models.Activity {
	status := entry.Status
	if !status.IsValid() {
		status = enums.ActivityStatusSuccess
	}
	actor := entry.Actor
	if actor == "" {
		actor = "system"
	}
	return &models.Activity{
		UserID: entry.UserID,
		Actor:  actor,
		Action: entry.Action,
		Target: entry.Target,
		Status: status,
	}
}
