package notifications

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/bookstore-backend/internal/testutil"
	"github.com/angelmondragon/bookstore-backend/pkg/db/models"
	"github.com/angelmondragon/bookstore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bookstore-backend/pkg/errors"
)

type failingRepository struct {
	Repository
	err error
}

func (f *failingRepository) ListForUser(context.Context, uuid.UUID) ([]models.Notification, error) {
	return nil, f.err
}

func (f *failingRepository) MarkRead(context.Context, uuid.UUID, uuid.UUID) (notificationMarkResult, error) {
	return notificationMarkResult{}, f.err
}

func seedNotifications(t *testing.T, conn *gorm.DB, userID uuid.UUID, readFlags ...bool) []models.Notification {
	t.Helper()
	base := time.Now().Add(-time.Hour)
	rows := make([]models.Notification, 0, len(readFlags))
	for i, read := range readFlags {
		row := models.Notification{
			UserID:    userID,
			Type:      enums.NotificationTypeOrder,
			Message:   "order update",
			Read:      read,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, conn.Create(&row).Error)
		rows = append(rows, row)
	}
	return rows
}

func TestService_ListNewestFirstWithUnreadCount(t *testing.T) {
	conn := testutil.OpenDB(t)
	svc, err := NewService(NewRepository(conn))
	require.NoError(t, err)

	userID := testutil.SeedUser(t, conn)
	rows := seedNotifications(t, conn, userID, true, false, false)
	seedNotifications(t, conn, testutil.SeedUser(t, conn), false)

	result, err := svc.List(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, result.Items, 3)
	assert.Equal(t, rows[2].ID, result.Items[0].ID)
	assert.Equal(t, rows[0].ID, result.Items[2].ID)
	assert.Equal(t, 2, result.Unread)
}

func TestService_ListRequiresUser(t *testing.T) {
	svc, err := NewService(NewRepository(testutil.OpenDB(t)))
	require.NoError(t, err)

	_, err = svc.List(context.Background(), uuid.Nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestService_ListWrapsRepositoryErrors(t *testing.T) {
	svc, err := NewService(&failingRepository{err: errors.New("boom")})
	require.NoError(t, err)

	_, err = svc.List(context.Background(), uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}

func TestService_MarkRead(t *testing.T) {
	conn := testutil.OpenDB(t)
	svc, err := NewService(NewRepository(conn))
	require.NoError(t, err)
	ctx := context.Background()

	userID := testutil.SeedUser(t, conn)
	rows := seedNotifications(t, conn, userID, false)

	require.NoError(t, svc.MarkRead(ctx, userID, rows[0].ID))
	// marking an already read row is not an error
	require.NoError(t, svc.MarkRead(ctx, userID, rows[0].ID))

	var stored models.Notification
	require.NoError(t, conn.First(&stored, "id = ?", rows[0].ID).Error)
	assert.True(t, stored.Read)

	err = svc.MarkRead(ctx, uuid.New(), rows[0].ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	err = svc.MarkRead(ctx, userID, uuid.Nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestService_MarkAllReadAndClear(t *testing.T) {
	conn := testutil.OpenDB(t)
	svc, err := NewService(NewRepository(conn))
	require.NoError(t, err)
	ctx := context.Background()

	userID := testutil.SeedUser(t, conn)
	other := testutil.SeedUser(t, conn)
	seedNotifications(t, conn, userID, false, false, true)
	seedNotifications(t, conn, other, false)

	updated, err := svc.MarkAllRead(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated)

	result, err := svc.List(ctx, userID)
	require.NoError(t, err)
	assert.Zero(t, result.Unread)

	removed, err := svc.Clear(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed)

	result, err = svc.List(ctx, other)
	require.NoError(t, err)
	assert.Len(t, result.Items, 1)
	assert.Equal(t, 1, result.Unread)
}

func TestNewServiceRequiresRepository(t *testing.T) {
	_, err := NewService(nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}
