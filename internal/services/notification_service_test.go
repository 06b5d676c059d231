package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/subwatch/subwatch/internal/database/testutil"
	"github.com/subwatch/subwatch/internal/models"
	"github.com/subwatch/subwatch/internal/notify"
	apperrors "github.com/subwatch/subwatch/pkg/errors"
)

func createTestUser(t *testing.T, db *gorm.DB, username string) models.User {
	t.Helper()

	user := models.User{
		Username: username,
		Email:    username + "@example.com",
	}
	require.NoError(t, db.Create(&user).Error)
	return user
}

func TestCreateIfAbsentIsIdempotent(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	svc, err := NewNotificationService(db)
	require.NoError(t, err)

	user := createTestUser(t, db, "alice")
	ctx := context.Background()

	input := CreateNotificationInput{
		Audience: models.AudienceUser,
		UserID:   &user.ID,
		Type:     notify.TypePaymentDue,
		Title:    "Payment due soon",
		Message:  "Invoice INV-1 is due in 3 days.",
		UniqKey:  notify.EventKey(notify.TypePaymentDue, models.AudienceUser, "inv-1", time.Now()),
		Data:     map[string]any{"invoice_id": "inv-1"},
	}

	first, err := svc.CreateIfAbsent(ctx, input)
	require.NoError(t, err)
	require.True(t, first.Created)
	require.Equal(t, models.StatusPending, first.Notification.Status)
	require.NotEmpty(t, first.Notification.ID)

	second, err := svc.CreateIfAbsent(ctx, input)
	require.NoError(t, err)
	require.False(t, second.Created)
	require.Equal(t, first.Notification.ID, second.Notification.ID)

	var count int64
	require.NoError(t, db.Model(&models.Notification{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestCreateIfAbsentValidatesAudience(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	svc, err := NewNotificationService(db)
	require.NoError(t, err)

	ctx := context.Background()

	_, err = svc.CreateIfAbsent(ctx, CreateNotificationInput{
		Audience: models.AudienceUser,
		Type:     notify.TypeBroadcast,
		Title:    "t",
		UniqKey:  "key-1",
	})
	require.Error(t, err)

	userID := "some-user"
	_, err = svc.CreateIfAbsent(ctx, CreateNotificationInput{
		Audience: models.AudienceAdmin,
		UserID:   &userID,
		Type:     notify.TypeBroadcast,
		Title:    "t",
		UniqKey:  "key-2",
	})
	require.Error(t, err)

	_, err = svc.CreateIfAbsent(ctx, CreateNotificationInput{
		Audience: "everyone",
		Type:     notify.TypeBroadcast,
		Title:    "t",
		UniqKey:  "key-3",
	})
	require.Error(t, err)
}

func TestUpdateStatusTransitionsOnce(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	svc, err := NewNotificationService(db)
	require.NoError(t, err)

	user := createTestUser(t, db, "bob")
	ctx := context.Background()

	created, err := svc.CreateIfAbsent(ctx, CreateNotificationInput{
		Audience: models.AudienceUser,
		UserID:   &user.ID,
		Type:     notify.TypeBroadcast,
		Title:    "hello",
		UniqKey:  "status-key",
	})
	require.NoError(t, err)

	sentAt := time.Now().UTC()
	require.NoError(t, svc.UpdateStatus(ctx, created.Notification.ID, models.StatusSent, &sentAt))

	var record models.Notification
	require.NoError(t, db.First(&record, "id = ?", created.Notification.ID).Error)
	require.Equal(t, models.StatusSent, record.Status)
	require.NotNil(t, record.SentAt)

	// A second transition attempt must not overwrite the settled status.
	require.NoError(t, svc.UpdateStatus(ctx, created.Notification.ID, models.StatusFailed, nil))
	require.NoError(t, db.First(&record, "id = ?", created.Notification.ID).Error)
	require.Equal(t, models.StatusSent, record.Status)
}

func TestUpdateStatusRejectsInvalidTransition(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	svc, err := NewNotificationService(db)
	require.NoError(t, err)

	require.Error(t, svc.UpdateStatus(context.Background(), "any", models.StatusPending, nil))
	require.Error(t, svc.UpdateStatus(context.Background(), "any", "delivered", nil))
}

func TestListForUserFiltersAndPaginates(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	svc, err := NewNotificationService(db)
	require.NoError(t, err)

	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")
	ctx := context.Background()

	seed := func(owner models.User, typ, key string, read bool) {
		created, err := svc.CreateIfAbsent(ctx, CreateNotificationInput{
			Audience: models.AudienceUser,
			UserID:   &owner.ID,
			Type:     typ,
			Title:    "t",
			UniqKey:  key,
		})
		require.NoError(t, err)
		if read {
			_, err = svc.MarkRead(ctx, owner.ID, created.Notification.ID)
			require.NoError(t, err)
		}
	}

	seed(alice, notify.TypePaymentDue, "a-1", false)
	seed(alice, notify.TypePaymentDue, "a-2", true)
	seed(alice, notify.TypeBroadcast, "a-3", false)
	seed(bob, notify.TypePaymentDue, "b-1", false)

	rows, total, err := svc.ListForUser(ctx, ListNotificationsInput{UserID: alice.ID})
	require.NoError(t, err)
	require.Equal(t, int64(3), total)
	require.Len(t, rows, 3)

	rows, total, err = svc.ListForUser(ctx, ListNotificationsInput{
		UserID: alice.ID,
		Type:   notify.TypePaymentDue,
	})
	require.NoError(t, err)
	require.Equal(t, int64(2), total)
	require.Len(t, rows, 2)

	rows, total, err = svc.ListForUser(ctx, ListNotificationsInput{
		UserID:     alice.ID,
		UnreadOnly: true,
	})
	require.NoError(t, err)
	require.Equal(t, int64(2), total)
	require.Len(t, rows, 2)

	rows, total, err = svc.ListForUser(ctx, ListNotificationsInput{
		UserID: alice.ID,
		Limit:  2,
		Offset: 2,
	})
	require.NoError(t, err)
	require.Equal(t, int64(3), total)
	require.Len(t, rows, 1)
}

func TestMarkReadIsScopedAndIdempotent(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	svc, err := NewNotificationService(db)
	require.NoError(t, err)

	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")
	ctx := context.Background()

	created, err := svc.CreateIfAbsent(ctx, CreateNotificationInput{
		Audience: models.AudienceUser,
		UserID:   &alice.ID,
		Type:     notify.TypeBroadcast,
		Title:    "t",
		UniqKey:  "read-key",
	})
	require.NoError(t, err)

	// Another user cannot read someone else's notification.
	_, err = svc.MarkRead(ctx, bob.ID, created.Notification.ID)
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	first, err := svc.MarkRead(ctx, alice.ID, created.Notification.ID)
	require.NoError(t, err)
	require.NotNil(t, first.ReadAt)

	again, err := svc.MarkRead(ctx, alice.ID, created.Notification.ID)
	require.NoError(t, err)
	require.NotNil(t, again.ReadAt)
	require.WithinDuration(t, *first.ReadAt, *again.ReadAt, time.Second)

	count, err := svc.CountUnread(ctx, alice.ID)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestMarkAllReadAndDeleteAllRead(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	svc, err := NewNotificationService(db)
	require.NoError(t, err)

	alice := createTestUser(t, db, "alice")
	ctx := context.Background()

	for _, key := range []string{"k-1", "k-2", "k-3"} {
		_, err := svc.CreateIfAbsent(ctx, CreateNotificationInput{
			Audience: models.AudienceUser,
			UserID:   &alice.ID,
			Type:     notify.TypeBroadcast,
			Title:    "t",
			UniqKey:  key,
		})
		require.NoError(t, err)
	}

	updated, err := svc.MarkAllRead(ctx, alice.ID)
	require.NoError(t, err)
	require.Equal(t, int64(3), updated)

	count, err := svc.CountUnread(ctx, alice.ID)
	require.NoError(t, err)
	require.Zero(t, count)

	deleted, err := svc.DeleteAllRead(ctx, alice.ID)
	require.NoError(t, err)
	require.Equal(t, int64(3), deleted)

	_, total, err := svc.ListForUser(ctx, ListNotificationsInput{UserID: alice.ID})
	require.NoError(t, err)
	require.Zero(t, total)
}

func TestDeleteRequiresOwnership(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	svc, err := NewNotificationService(db)
	require.NoError(t, err)

	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")
	ctx := context.Background()

	created, err := svc.CreateIfAbsent(ctx, CreateNotificationInput{
		Audience: models.AudienceUser,
		UserID:   &alice.ID,
		Type:     notify.TypeBroadcast,
		Title:    "t",
		UniqKey:  "del-key",
	})
	require.NoError(t, err)

	require.ErrorIs(t, svc.Delete(ctx, bob.ID, created.Notification.ID), apperrors.ErrNotFound)
	require.NoError(t, svc.Delete(ctx, alice.ID, created.Notification.ID))
	require.ErrorIs(t, svc.Delete(ctx, alice.ID, created.Notification.ID), apperrors.ErrNotFound)
}

func TestStatsCountsByStatus(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	svc, err := NewNotificationService(db)
	require.NoError(t, err)

	alice := createTestUser(t, db, "alice")
	ctx := context.Background()

	created, err := svc.CreateIfAbsent(ctx, CreateNotificationInput{
		Audience: models.AudienceUser,
		UserID:   &alice.ID,
		Type:     notify.TypeBroadcast,
		Title:    "t",
		UniqKey:  "stat-1",
	})
	require.NoError(t, err)
	require.NoError(t, svc.UpdateStatus(ctx, created.Notification.ID, models.StatusSent, nil))

	_, err = svc.CreateIfAbsent(ctx, CreateNotificationInput{
		Audience: models.AudienceAdmin,
		Type:     notify.TypeBroadcast,
		Title:    "t",
		UniqKey:  "stat-2",
	})
	require.NoError(t, err)

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), stats.Total)
	require.Equal(t, int64(2), stats.Unread)
	require.Equal(t, int64(1), stats.ByStatus[models.StatusSent])
	require.Equal(t, int64(1), stats.ByStatus[models.StatusPending])
}

func TestPurgeHonoursCutoffBoundaries(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	svc, err := NewNotificationService(db)
	require.NoError(t, err)

	alice := createTestUser(t, db, "alice")
	ctx := context.Background()
	now := time.Now().UTC()

	seed := func(key string, createdAt time.Time, readAt *time.Time) {
		record := models.Notification{
			Audience: models.AudienceUser,
			UserID:   &alice.ID,
			Type:     notify.TypeBroadcast,
			Title:    "t",
			UniqKey:  key,
			Status:   models.StatusSent,
			ReadAt:   readAt,
		}
		require.NoError(t, db.Create(&record).Error)
		require.NoError(t, db.Model(&record).UpdateColumn("created_at", createdAt).Error)
	}

	oldRead := now.AddDate(0, 0, -40)
	freshRead := now.AddDate(0, 0, -10)
	seed("purge-old-read", oldRead, &oldRead)
	seed("purge-fresh-read", freshRead, &freshRead)
	seed("purge-old-unread", now.AddDate(0, 0, -100), nil)
	seed("purge-fresh-unread", now.AddDate(0, 0, -50), nil)

	purged, err := svc.PurgeReadBefore(ctx, now.AddDate(0, 0, -30))
	require.NoError(t, err)
	require.Equal(t, int64(1), purged)

	purged, err = svc.PurgeUnreadBefore(ctx, now.AddDate(0, 0, -90))
	require.NoError(t, err)
	require.Equal(t, int64(1), purged)

	var remaining int64
	require.NoError(t, db.Model(&models.Notification{}).Count(&remaining).Error)
	require.Equal(t, int64(2), remaining)
}
