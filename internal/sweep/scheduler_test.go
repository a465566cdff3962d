package sweep

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakePurger struct {
	calls atomic.Int32
}

func (f *fakePurger) PurgeExpired(context.Context) (int64, error) {
	f.calls.Add(1)
	return 0, nil
}

func TestSchedulerRunOnce(t *testing.T) {
	db := openSweepTestDB(t)
	seedPending(t, db, "owner-1", 2)
	dispatcher := &fakeDispatcher{db: db}

	sweeper, err := NewSweeper(db, dispatcher, 10)
	require.NoError(t, err)

	purger := &fakePurger{}
	scheduler := NewScheduler(sweeper, purger)

	require.NoError(t, scheduler.RunOnce(context.Background()))
	require.Len(t, dispatcher.order, 2)
	require.EqualValues(t, 1, purger.calls.Load())
}

func TestSchedulerRunOnceAggregatesFailures(t *testing.T) {
	db := openSweepTestDB(t)
	ids := seedPending(t, db, "owner-1", 1)
	dispatcher := &fakeDispatcher{db: db, failing: map[string]bool{ids[0]: true}}

	sweeper, err := NewSweeper(db, dispatcher, 10)
	require.NoError(t, err)

	scheduler := NewScheduler(sweeper, nil)
	require.Error(t, scheduler.RunOnce(context.Background()))
}

func TestSchedulerStartAndStop(t *testing.T) {
	db := openSweepTestDB(t)
	dispatcher := &fakeDispatcher{db: db}

	sweeper, err := NewSweeper(db, dispatcher, 10)
	require.NoError(t, err)

	scheduler := NewScheduler(sweeper, &fakePurger{},
		WithSweepSchedule("@every 1h"),
		WithGCSchedule("@every 1h"))
	require.NoError(t, scheduler.Start())
	<-scheduler.Stop().Done()
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	db := openSweepTestDB(t)
	dispatcher := &fakeDispatcher{db: db}

	sweeper, err := NewSweeper(db, dispatcher, 10)
	require.NoError(t, err)

	scheduler := NewScheduler(sweeper, nil, WithSweepSchedule("not-a-spec"))
	require.Error(t, scheduler.Start())
}
