package sweep

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/epetcare/notifier/internal/models"
)

type fakeDispatcher struct {
	mu      sync.Mutex
	db      *gorm.DB
	order   []string
	failing map[string]bool
}

func (f *fakeDispatcher) DispatchNotification(_ context.Context, notificationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.order = append(f.order, notificationID)
	if f.failing[notificationID] {
		return errors.New("provider unavailable")
	}
	return f.db.Model(&models.Notification{}).
		Where("id = ?", notificationID).
		Update("emailed", true).Error
}

func openSweepTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(&models.Owner{}, &models.Notification{}, &models.PasswordResetOTP{}))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	return db
}

func seedPending(t *testing.T, db *gorm.DB, ownerID string, count int) []string {
	t.Helper()

	base := time.Now().UTC().Add(-time.Hour)
	ids := make([]string, 0, count)
	for i := 0; i < count; i++ {
		notif := models.Notification{
			OwnerID: ownerID,
			Kind:    models.KindGeneric,
			Title:   "Update",
			Message: "Something happened",
		}
		require.NoError(t, db.Create(&notif).Error)
		require.NoError(t, db.Model(&notif).Update("created_at", base.Add(time.Duration(i)*time.Minute)).Error)
		ids = append(ids, notif.ID)
	}
	return ids
}

func TestRunDeliversOldestFirst(t *testing.T) {
	db := openSweepTestDB(t)
	ids := seedPending(t, db, "owner-1", 3)
	dispatcher := &fakeDispatcher{db: db}

	sweeper, err := NewSweeper(db, dispatcher, 10)
	require.NoError(t, err)

	stats, err := sweeper.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, Stats{Processed: 3, Sent: 3}, stats)
	require.Equal(t, ids, dispatcher.order)

	var pending int64
	require.NoError(t, db.Model(&models.Notification{}).Where("emailed = ?", false).Count(&pending).Error)
	require.Zero(t, pending)
}

func TestRunKeepsFailedRowsPending(t *testing.T) {
	db := openSweepTestDB(t)
	ids := seedPending(t, db, "owner-1", 3)
	dispatcher := &fakeDispatcher{db: db, failing: map[string]bool{ids[1]: true}}

	sweeper, err := NewSweeper(db, dispatcher, 10)
	require.NoError(t, err)

	stats, err := sweeper.Run(context.Background())
	require.Error(t, err)
	require.Equal(t, Stats{Processed: 3, Sent: 2, Failed: 1}, stats)

	var pending []models.Notification
	require.NoError(t, db.Where("emailed = ?", false).Find(&pending).Error)
	require.Len(t, pending, 1)
	require.Equal(t, ids[1], pending[0].ID)
}

func TestRunHonoursBatchLimit(t *testing.T) {
	db := openSweepTestDB(t)
	seedPending(t, db, "owner-1", 5)
	dispatcher := &fakeDispatcher{db: db}

	sweeper, err := NewSweeper(db, dispatcher, 2)
	require.NoError(t, err)

	stats, err := sweeper.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, Stats{Processed: 2, Sent: 2}, stats)

	var pending int64
	require.NoError(t, db.Model(&models.Notification{}).Where("emailed = ?", false).Count(&pending).Error)
	require.EqualValues(t, 3, pending)
}

func TestProcessSkipsAlreadyEmailedRows(t *testing.T) {
	db := openSweepTestDB(t)
	ids := seedPending(t, db, "owner-1", 1)
	require.NoError(t, db.Model(&models.Notification{}).
		Where("id = ?", ids[0]).
		Update("emailed", true).Error)

	dispatcher := &fakeDispatcher{db: db}
	sweeper, err := NewSweeper(db, dispatcher, 10)
	require.NoError(t, err)

	stats, errs := sweeper.process(context.Background(), ids)
	require.NoError(t, errs)
	require.Equal(t, Stats{Processed: 1, Skipped: 1}, stats)
	require.Empty(t, dispatcher.order)
}

func TestRunForOwnerScopesToOwner(t *testing.T) {
	db := openSweepTestDB(t)
	mine := seedPending(t, db, "owner-1", 2)
	seedPending(t, db, "owner-2", 2)
	dispatcher := &fakeDispatcher{db: db}

	sweeper, err := NewSweeper(db, dispatcher, 10)
	require.NoError(t, err)

	stats, err := sweeper.RunForOwner(context.Background(), "owner-1", 10)
	require.NoError(t, err)
	require.Equal(t, Stats{Processed: 2, Sent: 2}, stats)
	require.Equal(t, mine, dispatcher.order)

	var pending int64
	require.NoError(t, db.Model(&models.Notification{}).Where("emailed = ?", false).Count(&pending).Error)
	require.EqualValues(t, 2, pending)
}
