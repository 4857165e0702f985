package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bookstore-backend/pkg/enums"
)

// Activity is an append-only audit entry.
type Activity struct {
	ID        uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID    *uuid.UUID           `gorm:"column:user_id;type:uuid"`
	Actor     string               `gorm:"column:actor;not null"`
	Action    string               `gorm:"column:action;not null"`
	Target    string               `gorm:"column:target;not null"`
	Status    enums.ActivityStatus `gorm:"column:status;not null"`
	CreatedAt time.Time            `gorm:"column:created_at;autoCreateTime"`
}

func (a *Activity) BeforeCreate(*gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
