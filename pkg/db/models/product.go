package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/bookstore-backend/pkg/types"
)

// Product is a catalog listing.
type Product struct {
	ID          uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name        string           `gorm:"column:name;not null"`
	Description string           `gorm:"column:description;not null;default:''"`
	Category    string           `gorm:"column:category;not null"`
	Price       decimal.Decimal  `gorm:"column:price;type:numeric(12,2);not null"`
	Images      types.StringList `gorm:"column:images;type:jsonb;not null"`
	Popular     bool             `gorm:"column:popular;not null;default:false"`
	Location    *string          `gorm:"column:location"`
	CreatedAt   time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Images == nil {
		p.Images = types.StringList{}
	}
	return nil
}
