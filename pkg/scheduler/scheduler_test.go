package scheduler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netrep/proxyd/pkg/config"
	"github.com/netrep/proxyd/pkg/store"
)

func newTestScheduler(t *testing.T, csvURL string) *Scheduler {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Open(filepath.Join(dir, "proxyd.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	cfg := config.Config{DataDir: dir, SyncHourUTC: 2, CSVURL: csvURL}
	return New(s, cfg)
}

func TestShouldSyncNowFiresOncePerDay(t *testing.T) {
	sched := newTestScheduler(t, "")
	now := time.Date(2026, 7, 30, 2, 15, 0, 0, time.UTC)

	assert.True(t, sched.shouldSyncNow(now), "expected first check in the sync hour to fire")
	assert.False(t, sched.shouldSyncNow(now.Add(10*time.Minute)), "expected a second check the same day to not fire")
}

func TestShouldSyncNowOutsideWindow(t *testing.T) {
	sched := newTestScheduler(t, "")
	now := time.Date(2026, 7, 30, 9, 0, 0, 0, time.UTC)
	assert.False(t, sched.shouldSyncNow(now), "expected sync outside the configured hour to not fire")
}

func TestShouldSyncNowFiresAgainNextDay(t *testing.T) {
	sched := newTestScheduler(t, "")
	day1 := time.Date(2026, 7, 30, 2, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 7, 31, 2, 0, 0, 0, time.UTC)

	assert.True(t, sched.shouldSyncNow(day1))
	assert.True(t, sched.shouldSyncNow(day2), "expected day2 to fire again")
}

func TestInitialSyncDownloadsWhenEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ip,proxy\n203.0.113.5,true\n"))
	}))
	defer srv.Close()

	sched := newTestScheduler(t, srv.URL)

	require.NoError(t, sched.InitialSync(context.Background()))

	empty, err := sched.store.IsEmpty()
	require.NoError(t, err)
	assert.False(t, empty, "expected initial sync to populate the store")
}

func TestInitialSyncSkipsWhenAlreadyPopulated(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte("ip,proxy\n203.0.113.5,true\n"))
	}))
	defer srv.Close()

	sched := newTestScheduler(t, srv.URL)
	require.NoError(t, sched.InitialSync(context.Background()))
	require.NoError(t, sched.InitialSync(context.Background()))
	assert.Equal(t, 1, hits, "expected only one download across two initial syncs")
}

func TestRunStopsOnContextCancel(t *testing.T) {
	sched := newTestScheduler(t, "")
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected Run to return promptly after cancellation")
	}
}
