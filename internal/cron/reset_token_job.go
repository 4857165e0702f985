package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/bookstore-backend/pkg/logger"
)

type ResetTokenJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository resetTokenRepo
}

type resetTokenRepo interface {
	ClearExpiredResetTokens(ctx context.Context, tx *gorm.DB, now time.Time) (int64, error)
}

// NewResetTokenJob wipes password reset tokens whose window has closed, so
// stale hashes do not linger on user rows.
func NewResetTokenJob(params ResetTokenJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("users repository required")
	}
	return &resetTokenJob{
		logg: params.Logger,
		db:   params.DB,
		repo: params.Repository,
		now:  time.Now,
	}, nil
}

type resetTokenJob struct {
	logg *logger.Logger
	db   txRunner
	repo resetTokenRepo
	now  func() time.Time
}

func (j *resetTokenJob) Name() string { return "reset-token-cleanup" }

func (j *resetTokenJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	var cleared int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := j.repo.ClearExpiredResetTokens(ctx, tx, now)
		cleared = rows
		return err
	})
	if err != nil {
		return fmt.Errorf("reset token cleanup: %w", err)
	}
	j.logg.Info(j.logg.WithField(ctx, "rows_cleared", cleared), "expired reset tokens cleared")
	return nil
}
