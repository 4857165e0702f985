package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bookstore-backend/pkg/enums"
	"github.com/angelmondragon/bookstore-backend/pkg/types"
)

// User represents a customer, manager or admin account.
type User struct {
	ID             uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name           string             `gorm:"column:name;not null"`
	Email          string             `gorm:"column:email;type:text;not null;uniqueIndex"`
	PasswordHash   *string            `gorm:"column:password_hash"`
	Phone          *string            `gorm:"column:phone"`
	Avatar         *string            `gorm:"column:avatar"`
	Role           enums.Role         `gorm:"column:role;not null;default:user"`
	IsActive       bool               `gorm:"column:is_active;not null;default:true"`
	ResetTokenHash *string            `gorm:"column:reset_token_hash"`
	ResetExpiresAt *time.Time         `gorm:"column:reset_expires_at"`
	Cart           types.CartDocument `gorm:"column:cart;type:jsonb;not null"`
	LastLoginAt    *time.Time         `gorm:"column:last_login_at"`
	CreatedAt      time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.Role == "" {
		u.Role = enums.RoleUser
	}
	if u.Cart.Kind == "" {
		u.Cart = types.NewCart()
	}
	return nil
}

// HasPassword reports whether the account can sign in with a password.
func (u User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}
