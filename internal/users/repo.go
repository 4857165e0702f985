package users

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgdb "github.com/angelmondragon/bookstore-backend/pkg/db"
	"github.com/angelmondragon/bookstore-backend/pkg/db/models"
	"github.com/angelmondragon/bookstore-backend/pkg/enums"
	"github.com/angelmondragon/bookstore-backend/pkg/pagination"
	"github.com/angelmondragon/bookstore-backend/pkg/types"
)

// Repository exposes user-related persistence operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a users repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// Create inserts a new user and returns the persisted model.
func (r *Repository) Create(ctx context.Context, dto CreateUserDTO) (*models.User, error) {
	user := dto.ToModel()
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// FindByEmail retrieves the user matching the provided email.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("email = ?", NormalizeEmail(email)).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByID loads a user by their UUID.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByResetToken loads the user holding hashed whose reset window is still open.
func (r *Repository) FindByResetToken(ctx context.Context, hashed string, now time.Time) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).
		Where("reset_token_hash = ? AND reset_expires_at > ?", hashed, now).
		First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateLastLogin refreshes the user's last_login_at timestamp.
func (r *Repository) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumn("last_login_at", at).Error
}

// Updates applies a partial column update and bumps updated_at.
func (r *Repository) Updates(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	fields["updated_at"] = time.Now().UTC()
	result := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumns(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SetResetToken stores a hashed reset token and its expiry.
func (r *Repository) SetResetToken(ctx context.Context, id uuid.UUID, hashed string, expiresAt time.Time) error {
	return r.Updates(ctx, id, map[string]any{
		"reset_token_hash": hashed,
		"reset_expires_at": expiresAt,
	})
}

// ResetPassword stores a new hash and clears the reset fields.
func (r *Repository) ResetPassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	return r.Updates(ctx, id, map[string]any{
		"password_hash":    passwordHash,
		"reset_token_hash": nil,
		"reset_expires_at": nil,
	})
}

// SaveCart overwrites the user's cart column. Concurrent writers race and the
// last one wins; a user deleted in between yields gorm.ErrRecordNotFound.
func (r *Repository) SaveCart(ctx context.Context, id uuid.UUID, cart types.CartDocument) error {
	result := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumn("cart", cart)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Delete removes the user row.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&models.User{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Search pages through users newest first.
func (r *Repository) Search(ctx context.Context, params SearchParams) ([]models.User, int64, error) {
	page := pagination.Page{Page: params.Page, Limit: params.Limit}.Normalize()
	query := r.db.WithContext(ctx).Model(&models.User{})

	if term := strings.TrimSpace(params.Search); term != "" {
		like := pkgdb.ContainsPattern(term)
		query = query.Where(`LOWER(name) LIKE ? ESCAPE '\' OR LOWER(email) LIKE ? ESCAPE '\'`, like, like)
	}
	switch params.Status {
	case StatusActive:
		query = query.Where("is_active = ?", true)
	case StatusInactive:
		query = query.Where("is_active = ?", false)
	}
	if params.Role != "" {
		query = query.Where("role = ?", params.Role)
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var list []models.User
	if err := query.Order("created_at DESC, id DESC").
		Offset(page.Offset()).
		Limit(page.Limit).
		Find(&list).Error; err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// ListAdmins returns active admins, optionally excluding one account.
func (r *Repository) ListAdmins(ctx context.Context, exclude *uuid.UUID) ([]models.User, error) {
	query := r.db.WithContext(ctx).
		Where("role = ? AND is_active = ?", enums.RoleAdmin, true)
	if exclude != nil {
		query = query.Where("id <> ?", *exclude)
	}
	var list []models.User
	if err := query.Order("created_at ASC, id ASC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// CountActive counts accounts with the active flag set.
func (r *Repository) CountActive(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.User{}).Where("is_active = ?", true).Count(&count).Error
	return count, err
}

// ClearExpiredResetTokens drops reset tokens whose window closed before now.
func (r *Repository) ClearExpiredResetTokens(ctx context.Context, tx *gorm.DB, now time.Time) (int64, error) {
	conn := r.db
	if tx != nil {
		conn = tx
	}
	result := conn.WithContext(ctx).
		Model(&models.User{}).
		Where("reset_expires_at IS NOT NULL AND reset_expires_at < ?", now).
		Updates(map[string]any{"reset_token_hash": nil, "reset_expires_at": nil})
	return result.RowsAffected, result.Error
}
