package sweep

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/subwatch/subwatch/internal/database/testutil"
	"github.com/subwatch/subwatch/internal/models"
	"github.com/subwatch/subwatch/internal/notify"
)

func TestSchedulerRunOnce(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	delivery := newSweepFixture(t, db)

	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	user := createSweepUser(t, db, "alice")

	sub := models.Subscription{
		UserID:  user.ID,
		Name:    "Netflix",
		Status:  models.SubscriptionStatusActive,
		EndDate: now.AddDate(0, 0, 1),
	}
	require.NoError(t, db.Create(&sub).Error)

	events, err := NewEventSweeper(db, delivery, WithClock(fixedClock(now)))
	require.NoError(t, err)
	retention := newRetentionFixture(t, db,
		WithRetentionClock(fixedClock(now)),
		WithOptimize(false),
	)

	scheduler := NewScheduler(events, retention)
	require.NoError(t, scheduler.RunOnce(context.Background()))

	var count int64
	require.NoError(t, db.Model(&models.Notification{}).
		Where("type = ?", notify.TypeRenewalUpcoming).
		Count(&count).Error)
	require.Equal(t, int64(2), count)
}

func TestSchedulerStartStop(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	delivery := newSweepFixture(t, db)

	events, err := NewEventSweeper(db, delivery)
	require.NoError(t, err)
	retention := newRetentionFixture(t, db, WithOptimize(false))

	scheduler := NewScheduler(events, retention,
		WithEventSchedule("@every 1h"),
		WithRetentionSchedule("@every 2h"),
	)
	require.NoError(t, scheduler.Start())

	select {
	case <-scheduler.Stop().Done():
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop in time")
	}
}

func TestSchedulerRejectsBadSchedule(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	delivery := newSweepFixture(t, db)

	events, err := NewEventSweeper(db, delivery)
	require.NoError(t, err)

	scheduler := NewScheduler(events, nil, WithEventSchedule("not a schedule"))
	require.Error(t, scheduler.Start())
}

func TestSchedulerSkipsNilSweepers(t *testing.T) {
	scheduler := NewScheduler(nil, nil)
	require.NoError(t, scheduler.Start())
	<-scheduler.Stop().Done()
	require.NoError(t, scheduler.RunOnce(context.Background()))
}
