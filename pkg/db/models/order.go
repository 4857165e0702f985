package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/bookstore-backend/pkg/enums"
	"github.com/angelmondragon/bookstore-backend/pkg/types"
)

// Order is a placed purchase. Items are a frozen snapshot of the catalog.
// UserID goes nil when the customer account is deleted; the order stays.
type Order struct {
	ID               uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID           *uuid.UUID            `gorm:"column:user_id;type:uuid"`
	Items            types.OrderItems      `gorm:"column:items;type:jsonb;not null"`
	Amount           decimal.Decimal       `gorm:"column:amount;type:numeric(12,2);not null"`
	Address          types.ShippingAddress `gorm:"column:address;type:jsonb;not null"`
	Status           string                `gorm:"column:status;not null"`
	Payment          bool                  `gorm:"column:payment;not null;default:false"`
	PaymentMethod    enums.PaymentMethod   `gorm:"column:payment_method;not null"`
	PaymentSessionID *string               `gorm:"column:payment_session_id;uniqueIndex"`
	TrackingNumber   *string               `gorm:"column:tracking_number"`
	TrackingEvents   types.TrackingEvents  `gorm:"column:tracking_events;type:jsonb;not null"`
	CreatedAt        time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if o.TrackingEvents == nil {
		o.TrackingEvents = types.TrackingEvents{}
	}
	return nil
}
