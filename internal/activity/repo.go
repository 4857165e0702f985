package activity

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bookstore-backend/pkg/db/models"
	"github.com/angelmondragon/bookstore-backend/pkg/enums"
)

// Repository persists activity entries.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

func (r *Repository) Create(ctx context.Context, entry *models.Activity) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// EntryView is an activity row joined with its actor.
type EntryView struct {
	ID         uuid.UUID            `json:"id"`
	UserID     *uuid.UUID           `json:"userId,omitempty"`
	Actor      string               `json:"actor"`
	ActorName  *string              `json:"actorName,omitempty"`
	ActorEmail *string              `json:"actorEmail,omitempty"`
	Action     string               `json:"action"`
	Target     string               `json:"target"`
	Status     enums.ActivityStatus `json:"status"`
	CreatedAt  time.Time            `json:"createdAt"`
}

// Latest returns the newest entries with the actor's current name and email.
func (r *Repository) Latest(ctx context.Context, limit int) ([]EntryView, error) {
	var rows []EntryView
	err := r.db.WithContext(ctx).
		Table("activities AS a").
		Select("a.id, a.user_id, a.actor, u.name AS actor_name, u.email AS actor_email, a.action, a.target, a.status, a.created_at").
		Joins("LEFT JOIN users u ON u.id = a.user_id").
		Order("a.created_at DESC, a.id DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
