package users

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/bookstore-backend/internal/activity"
	"github.com/angelmondragon/bookstore-backend/internal/testutil"
	"github.com/angelmondragon/bookstore-backend/pkg/config"
	"github.com/angelmondragon/bookstore-backend/pkg/db/models"
	"github.com/angelmondragon/bookstore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bookstore-backend/pkg/errors"
	"github.com/angelmondragon/bookstore-backend/pkg/outbox"
	"github.com/angelmondragon/bookstore-backend/pkg/security"
)

var testPasswordCfg = config.PasswordConfig{
	ArgonMemoryKB:    32768,
	ArgonTime:        1,
	ArgonParallelism: 1,
	ArgonSaltLen:     16,
	ArgonKeyLen:      32,
}

type fixture struct {
	conn *gorm.DB
	svc  Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	client := testutil.OpenClient(t)
	conn := client.DB()
	recorder, err := activity.NewService(activity.NewRepository(conn), nil)
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{
		Repo:           NewRepository(conn),
		Tx:             client,
		Activity:       recorder,
		Outbox:         outbox.NewService(outbox.NewRepository(conn), nil),
		PasswordConfig: testPasswordCfg,
	})
	require.NoError(t, err)
	return fixture{conn: conn, svc: svc}
}

func (f fixture) createUser(t *testing.T, name, email, password string) *models.User {
	t.Helper()
	var hash *string
	if password != "" {
		encoded, err := security.HashPassword(password, testPasswordCfg)
		require.NoError(t, err)
		hash = &encoded
	}
	user, err := NewRepository(f.conn).Create(context.Background(), CreateUserDTO{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
	})
	require.NoError(t, err)
	return user
}

func (f fixture) activities(t *testing.T) []models.Activity {
	t.Helper()
	var rows []models.Activity
	require.NoError(t, f.conn.Order("created_at ASC").Find(&rows).Error)
	return rows
}

func strPtr(v string) *string { return &v }

func TestProfileAndUpdateProfile(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	user := fx.createUser(t, "Ada", "ada@example.com", "password123")

	profile, err := fx.svc.Profile(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", profile.Email)

	updated, err := fx.svc.UpdateProfile(ctx, user.ID, ProfileUpdate{
		Name:  strPtr("Ada Lovelace"),
		Email: strPtr(" ADA.L@Example.com "),
		Phone: strPtr("555-0100"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", updated.Name)
	assert.Equal(t, "ada.l@example.com", updated.Email)
	require.NotNil(t, updated.Phone)
	assert.Equal(t, "555-0100", *updated.Phone)

	rows := fx.activities(t)
	require.Len(t, rows, 1)
	assert.Equal(t, "updated", rows[0].Action)
	assert.Equal(t, "profile", rows[0].Target)

	_, err = fx.svc.Profile(ctx, uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestUpdateProfileRejectsTakenEmail(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.createUser(t, "Ada", "ada@example.com", "password123")
	other := fx.createUser(t, "Grace", "grace@example.com", "password123")

	_, err := fx.svc.UpdateProfile(ctx, other.ID, ProfileUpdate{Email: strPtr("ada@example.com")})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	rows := fx.activities(t)
	require.Len(t, rows, 1)
	assert.Equal(t, enums.ActivityStatusFailed, rows[0].Status)
}

func TestChangePassword(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	user := fx.createUser(t, "Ada", "ada@example.com", "password123")

	err := fx.svc.ChangePassword(ctx, user.ID, ChangePasswordRequest{CurrentPassword: "wrong-pass", NewPassword: "newpassword1"})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	err = fx.svc.ChangePassword(ctx, user.ID, ChangePasswordRequest{CurrentPassword: "password123", NewPassword: "short"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	require.NoError(t, fx.svc.ChangePassword(ctx, user.ID, ChangePasswordRequest{CurrentPassword: "password123", NewPassword: "newpassword1"}))

	stored, err := NewRepository(fx.conn).FindByID(ctx, user.ID)
	require.NoError(t, err)
	ok, err := security.VerifyPassword("newpassword1", *stored.PasswordHash)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestChangePasswordWithoutPasswordFails(t *testing.T) {
	fx := newFixture(t)
	user := fx.createUser(t, "Social", "social@example.com", "")

	err := fx.svc.ChangePassword(context.Background(), user.ID, ChangePasswordRequest{CurrentPassword: "anything1", NewPassword: "newpassword1"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestDeactivateAndReactivate(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	admin := fx.createUser(t, "Admin", "admin@example.com", "password123")
	user := fx.createUser(t, "Ada", "ada@example.com", "password123")

	err := fx.svc.Reactivate(ctx, admin.ID, user.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	require.NoError(t, fx.svc.Deactivate(ctx, user.ID))
	profile, err := fx.svc.Profile(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, profile.IsActive)

	require.NoError(t, fx.svc.Reactivate(ctx, admin.ID, user.ID))
	profile, err = fx.svc.Profile(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, profile.IsActive)

	rows := fx.activities(t)
	require.Len(t, rows, 2)
	assert.Equal(t, enums.ActivityStatusWarning, rows[0].Status)
	assert.Equal(t, "Reactivated a user account", rows[1].Action)
	assert.Equal(t, "admin@example.com", rows[1].Actor)
}

func TestSearchFiltersAndPages(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	repo := NewRepository(fx.conn)

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 12; i++ {
		user := fx.createUser(t, fmt.Sprintf("Reader %02d", i), fmt.Sprintf("reader%02d@example.com", i), "")
		require.NoError(t, fx.conn.Model(&models.User{}).Where("id = ?", user.ID).
			UpdateColumn("created_at", base.Add(time.Duration(i)*time.Minute)).Error)
		if i%3 == 0 {
			require.NoError(t, repo.Updates(ctx, user.ID, map[string]any{"is_active": false}))
		}
	}

	first, err := fx.svc.Search(ctx, SearchParams{})
	require.NoError(t, err)
	assert.Equal(t, int64(12), first.Total)
	assert.Len(t, first.Users, 10)
	assert.True(t, first.HasMore)
	assert.Equal(t, "Reader 11", first.Users[0].Name)

	second, err := fx.svc.Search(ctx, SearchParams{Page: 2})
	require.NoError(t, err)
	assert.Len(t, second.Users, 2)
	assert.False(t, second.HasMore)

	inactive, err := fx.svc.Search(ctx, SearchParams{Status: StatusInactive})
	require.NoError(t, err)
	assert.Equal(t, int64(4), inactive.Total)

	byTerm, err := fx.svc.Search(ctx, SearchParams{Search: "READER05"})
	require.NoError(t, err)
	require.Len(t, byTerm.Users, 1)
	assert.Equal(t, "reader05@example.com", byTerm.Users[0].Email)

	wildcard, err := fx.svc.Search(ctx, SearchParams{Search: "%"})
	require.NoError(t, err)
	assert.Zero(t, wildcard.Total)

	_, err = fx.svc.Search(ctx, SearchParams{Status: "banned"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestAdminUpdateQueuesEmailAndActivity(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	admin := fx.createUser(t, "Admin", "admin@example.com", "password123")
	user := fx.createUser(t, "Ada", "ada@example.com", "password123")

	role := enums.RoleManager
	inactive := false
	updated, err := fx.svc.AdminUpdate(ctx, admin.ID, user.ID, AdminUpdate{Role: &role, IsActive: &inactive})
	require.NoError(t, err)
	assert.Equal(t, enums.RoleManager, updated.Role)
	assert.False(t, updated.IsActive)

	var jobs []models.OutboxEvent
	require.NoError(t, fx.conn.Find(&jobs).Error)
	require.Len(t, jobs, 1)
	assert.Equal(t, enums.EventEmailRequested, jobs[0].EventType)
	assert.Equal(t, user.ID, jobs[0].AggregateID)

	rows := fx.activities(t)
	require.Len(t, rows, 1)
	assert.Equal(t, "Admin updated user ada@example.com - Role: manager, Status: inactive", rows[0].Action)

	_, err = fx.svc.AdminUpdate(ctx, admin.ID, uuid.New(), AdminUpdate{Role: &role})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	bogus := enums.Role("owner")
	_, err = fx.svc.AdminUpdate(ctx, admin.ID, user.ID, AdminUpdate{Role: &bogus})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestDeleteUser(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	admin := fx.createUser(t, "Admin", "admin@example.com", "password123")
	user := fx.createUser(t, "Ada", "ada@example.com", "password123")

	require.NoError(t, fx.svc.Delete(ctx, admin.ID, user.ID))
	_, err := fx.svc.Profile(ctx, user.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	err = fx.svc.Delete(ctx, admin.ID, user.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestDeleteUserKeepsOrderHistory(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	admin := fx.createUser(t, "Admin", "admin@example.com", "password123")
	user := fx.createUser(t, "Ada", "ada@example.com", "password123")

	orderID := uuid.New()
	require.NoError(t, fx.conn.Exec(
		`INSERT INTO orders (id, user_id, items, amount, address, status, payment, payment_method, tracking_events)
		 VALUES (?, ?, '[]', 20, '{"street":"1 Main St"}', 'Delivered', 1, 'COD', '[]')`,
		orderID.String(), user.ID.String(),
	).Error)
	require.NoError(t, fx.conn.Create(&models.Notification{
		UserID:  user.ID,
		Type:    enums.NotificationTypeOrder,
		Message: "order update",
	}).Error)

	require.NoError(t, fx.svc.Delete(ctx, admin.ID, user.ID))

	var order models.Order
	require.NoError(t, fx.conn.First(&order, "id = ?", orderID).Error)
	assert.Nil(t, order.UserID)
	assert.Equal(t, "Delivered", order.Status)

	var notifications int64
	require.NoError(t, fx.conn.Model(&models.Notification{}).Where("user_id = ?", user.ID).Count(&notifications).Error)
	assert.Zero(t, notifications)
}
