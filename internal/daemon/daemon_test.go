package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fenilsonani/repotidy/internal/backup"
	"github.com/fenilsonani/repotidy/internal/config"
	"github.com/fenilsonani/repotidy/internal/logging"
	"github.com/fenilsonani/repotidy/internal/rollback"
	"github.com/fenilsonani/repotidy/internal/scanner"
	"github.com/fenilsonani/repotidy/internal/testutil"
)

func newTestDaemon(t *testing.T, p *testutil.Project) (*Daemon, *rollback.System, *rollback.Store) {
	t.Helper()
	cfg := config.GetDefault()
	cfg.Workers = 2
	state := cfg.StatePath(p.RootDir)

	store, err := rollback.NewStore(filepath.Join(state, "rollback"))
	require.NoError(t, err)
	rb := rollback.New(p.RootDir, store, backup.New(p.RootDir, state, logging.Discard()), logging.Discard())

	return New(p.RootDir, cfg, rb, logging.Discard()), rb, store
}

func TestRunScanWritesReport(t *testing.T) {
	p := testutil.NewProject(t)
	p.CreateFiles(map[string]string{
		"README.md":    "# App",
		"temp/a.tmp":   "scratch",
		"src/index.js": "console.log('hi')",
	})
	d, _, _ := newTestDaemon(t, p)

	report, err := d.RunScan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.TotalFiles)
	assert.Same(t, report, d.LastScan())

	data, err := os.ReadFile(p.Path(".repotidy/reports/" + LatestScanReport))
	require.NoError(t, err)

	var saved scanner.FileAnalysisReport
	require.NoError(t, json.Unmarshal(data, &saved))
	assert.Equal(t, 3, saved.TotalFiles)
	assert.Contains(t, saved.Categories[scanner.CategoryTemporary], "temp/a.tmp")

	// The report itself lives in the state directory and is never scanned
	again, err := d.RunScan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, again.TotalFiles)
}

func TestPurgeRollbackPoints(t *testing.T) {
	p := testutil.NewProject(t)
	p.CreateFile("old.log", "old")
	d, rb, store := newTestDaemon(t, p)

	id, err := rb.CreateRollbackPoint("temporary-cleanup", "")
	require.NoError(t, err)
	_, err = rb.RecordRemoval("old.log", "log")
	require.NoError(t, err)
	require.NoError(t, rb.ClosePoint())

	freshID, err := rb.CreateRollbackPoint("fresh", "")
	require.NoError(t, err)
	require.NoError(t, rb.ClosePoint())

	point, err := store.Load(id)
	require.NoError(t, err)
	point.CreatedAt = time.Now().Add(-30 * 24 * time.Hour)
	require.NoError(t, store.Save(point))

	purged, err := d.PurgeRollbackPoints(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{id}, purged)

	_, err = rb.GetRollbackPoint(freshID)
	assert.NoError(t, err)
	_, err = rb.GetRollbackPoint(id)
	assert.True(t, errors.Is(err, rollback.ErrPointNotFound))
}

func TestPurgeRollbackPointsCancelled(t *testing.T) {
	p := testutil.NewProject(t)
	d, _, _ := newTestDaemon(t, p)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.PurgeRollbackPoints(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunRegistersJobsAndStops(t *testing.T) {
	p := testutil.NewProject(t)
	d, _, _ := newTestDaemon(t, p)
	d.config.Schedule.Scan = "@hourly"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	require.Eventually(t, d.IsRunning, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return len(d.Scheduler().ListJobs()) == 2 }, 2*time.Second, 10*time.Millisecond)

	jobs := d.Scheduler().ListJobs()
	assert.Equal(t, JobPurge, jobs[0].Name)
	assert.Equal(t, "@daily", jobs[0].Schedule)
	assert.Equal(t, JobScan, jobs[1].Name)
	assert.True(t, p.Exists(".repotidy/watch.lock"))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}
	assert.False(t, d.IsRunning())
	assert.False(t, p.Exists(".repotidy/watch.lock"), "lock is released on shutdown")
}

func TestRunRefusesHeldLock(t *testing.T) {
	p := testutil.NewProject(t)
	d, _, _ := newTestDaemon(t, p)

	// Our own pid is always alive
	p.CreateFile(".repotidy/watch.lock", fmt.Sprintf("%d\n", os.Getpid()))

	err := d.Run(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRunning)
}

func TestRunTakesOverStaleLock(t *testing.T) {
	p := testutil.NewProject(t)
	d, _, _ := newTestDaemon(t, p)
	p.CreateFile(".repotidy/watch.lock", "not-a-pid\n")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	require.Eventually(t, d.IsRunning, 2*time.Second, 10*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}

func TestRunRejectsBadSchedule(t *testing.T) {
	p := testutil.NewProject(t)
	d, _, _ := newTestDaemon(t, p)
	d.config.Schedule.Purge = "every now and then"

	err := d.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), JobPurge)
	assert.False(t, p.Exists(".repotidy/watch.lock"))
}

func TestWatchTriggersRescan(t *testing.T) {
	p := testutil.NewProject(t)
	p.CreateFile("src/index.js", "x")
	d, _, _ := newTestDaemon(t, p)
	d.config.Watch.Debounce = "50ms"
	d.config.Schedule.Purge = ""
	d.SetWatch(true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	// Keep touching the tree until a re-scan has seen the new file
	require.Eventually(t, func() bool {
		p.CreateFile("src/new.js", "y")
		scan := d.LastScan()
		return scan != nil && scan.TotalFiles == 2
	}, 5*time.Second, 100*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}
