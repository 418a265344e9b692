package rollback

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fenilsonani/repotidy/internal/backup"
	"github.com/fenilsonani/repotidy/internal/logging"
	"github.com/fenilsonani/repotidy/internal/testutil"
)

func newTestSystem(t *testing.T, p *testutil.Project) *System {
	t.Helper()
	state := p.Path(".repotidy")
	store, err := NewStore(filepath.Join(state, "rollback"))
	require.NoError(t, err)
	return New(p.RootDir, store, backup.New(p.RootDir, state, logging.Discard()), logging.Discard())
}

// failingArchiver refuses every archival
type failingArchiver struct{}

func (failingArchiver) ArchiveFile(rel, reason string) (backup.Result, error) {
	return backup.Result{}, errors.New("disk on fire")
}

func (failingArchiver) Restore(archivedPath, rel string) error {
	return errors.New("disk on fire")
}

func TestRemovalRollbackRestoresBytes(t *testing.T) {
	p := testutil.NewProject(t)
	p.CreateFiles(map[string]string{
		"logs/app.log": "line 1\nline 2\n",
		"docs/old.md":  "# Old",
		"scripts/x.sh": "#!/bin/sh\necho x\n",
	})
	before := p.Snapshot(".repotidy")
	s := newTestSystem(t, p)

	id, err := s.CreateRollbackPoint("temporary-cleanup", "remove temp files")
	require.NoError(t, err)

	for _, rel := range []string{"logs/app.log", "docs/old.md", "scripts/x.sh"} {
		op, err := s.RecordRemoval(rel, "cleanup")
		require.NoError(t, err)
		assert.NotEmpty(t, op.BackupPath)
		require.NoError(t, os.Remove(p.Path(rel)))
	}
	require.NoError(t, s.ClosePoint())

	result, err := s.RollbackToPoint(id, false)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Empty(t, result.Errors)
	assert.Len(t, result.RestoredFiles, 3)

	assert.Equal(t, before, p.Snapshot(".repotidy"))
}

func TestRollbackReplaysInReverse(t *testing.T) {
	p := testutil.NewProject(t)
	p.CreateFile("config.yml", "v1")
	s := newTestSystem(t, p)

	id, err := s.CreateRollbackPoint("phase", "")
	require.NoError(t, err)

	_, err = s.RecordModification("config.yml", "rewrite")
	require.NoError(t, err)
	p.CreateFile("config.yml", "v2")

	_, err = s.RecordRemoval("config.yml", "drop")
	require.NoError(t, err)
	require.NoError(t, os.Remove(p.Path("config.yml")))

	result, err := s.RollbackToPoint(id, false)
	require.NoError(t, err)
	require.True(t, result.Success, result.Errors)

	p.AssertFileContent("config.yml", "v1")
}

func TestMoveRollback(t *testing.T) {
	p := testutil.NewProject(t)
	p.CreateFile("tsconfig.build.json", "{}")
	s := newTestSystem(t, p)

	id, err := s.CreateRollbackPoint("folder-reorganization", "")
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(p.Path("config"), 0755))
	require.NoError(t, os.Rename(p.Path("tsconfig.build.json"), p.Path("config/tsconfig.build.json")))
	_, err = s.RecordMove("tsconfig.build.json", "config/tsconfig.build.json", "group config")
	require.NoError(t, err)

	result, err := s.RollbackToPoint(id, false)
	require.NoError(t, err)
	assert.True(t, result.Success)

	p.AssertFileContent("tsconfig.build.json", "{}")
	p.AssertFileNotExists("config")
}

func TestMoveRollbackRefusesOccupiedOrigin(t *testing.T) {
	p := testutil.NewProject(t)
	p.CreateFile("a.json", "new")
	p.CreateFile("config/a.json", "moved")
	s := newTestSystem(t, p)

	id, err := s.CreateRollbackPoint("phase", "")
	require.NoError(t, err)
	_, err = s.RecordMove("a.json", "config/a.json", "group")
	require.NoError(t, err)

	result, err := s.RollbackToPoint(id, false)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Len(t, result.Errors, 1)
	p.AssertFileContent("a.json", "new")
}

func TestBackupFailureRecordsNothing(t *testing.T) {
	p := testutil.NewProject(t)
	p.CreateFile("important.md", "keep")

	store, err := NewStore(p.Path(".repotidy/rollback"))
	require.NoError(t, err)
	s := New(p.RootDir, store, failingArchiver{}, logging.Discard())

	id, err := s.CreateRollbackPoint("phase", "")
	require.NoError(t, err)

	_, err = s.RecordRemoval("important.md", "cleanup")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBackupFailed))

	_, err = s.RecordModification("important.md", "edit")
	assert.True(t, errors.Is(err, ErrBackupFailed))

	point, err := s.GetRollbackPoint(id)
	require.NoError(t, err)
	assert.Empty(t, point.Operations)
	p.AssertFileContent("important.md", "keep")
}

func TestPendingOperationsAdoptedByNextPoint(t *testing.T) {
	p := testutil.NewProject(t)
	p.CreateFile("a.tmp", "a")
	s := newTestSystem(t, p)

	_, err := s.RecordRemoval("a.tmp", "early")
	require.NoError(t, err)
	assert.Len(t, s.PendingOperations(), 1)

	first, err := s.CreateRollbackPoint("first", "")
	require.NoError(t, err)
	assert.Empty(t, s.PendingOperations())
	assert.Equal(t, first, s.CurrentPointID())

	second, err := s.CreateRollbackPoint("second", "")
	require.NoError(t, err)

	// Creating the second point closed the first
	point, err := s.GetRollbackPoint(first)
	require.NoError(t, err)
	assert.False(t, point.IsOpen())
	require.Len(t, point.Operations, 1)
	assert.Equal(t, OpRemove, point.Operations[0].Type)

	point, err = s.GetRollbackPoint(second)
	require.NoError(t, err)
	assert.True(t, point.IsOpen())
	assert.Empty(t, point.Operations)
}

func TestPointPersistenceRoundTrip(t *testing.T) {
	p := testutil.NewProject(t)
	p.CreateFile("x.log", "x")
	s := newTestSystem(t, p)

	id, err := s.CreateRollbackPoint("temporary-cleanup", "logs")
	require.NoError(t, err)
	op, err := s.RecordRemoval("x.log", "log file")
	require.NoError(t, err)
	require.NoError(t, s.ClosePoint())

	// A fresh system over the same directory sees the same point
	reopened := newTestSystem(t, p)
	point, err := reopened.GetRollbackPoint(id)
	require.NoError(t, err)

	assert.Equal(t, "temporary-cleanup", point.Name)
	assert.Equal(t, "logs", point.Description)
	require.NotNil(t, point.ClosedAt)
	require.Len(t, point.Operations, 1)
	assert.True(t, op.Timestamp.Equal(point.Operations[0].Timestamp))
	assert.Equal(t, op.BackupPath, point.Operations[0].BackupPath)

	points, err := reopened.ListRollbackPoints()
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, id, points[0].ID)
}

func readPointFile(t *testing.T, s *System, id string) Point {
	t.Helper()
	data, err := os.ReadFile(s.store.path(id))
	require.NoError(t, err)
	var point Point
	require.NoError(t, json.Unmarshal(data, &point))
	return point
}

func TestOperationsAreLoggedUntilClose(t *testing.T) {
	p := testutil.NewProject(t)
	s := newTestSystem(t, p)

	id, err := s.CreateRollbackPoint("folder-reorganization", "")
	require.NoError(t, err)
	for _, name := range []string{"a", "b", "c"} {
		_, err := s.RecordMove(name+".json", "config/"+name+".json", "config file")
		require.NoError(t, err)
	}

	// Recording appends to the log and leaves the point file alone
	assert.Empty(t, readPointFile(t, s, id).Operations)
	assert.FileExists(t, s.store.logPath(id))

	point, err := s.GetRollbackPoint(id)
	require.NoError(t, err)
	require.Len(t, point.Operations, 3)
	assert.Equal(t, "c.json", point.Operations[2].OriginalPath)

	require.NoError(t, s.ClosePoint())
	assert.Len(t, readPointFile(t, s, id).Operations, 3)
	assert.NoFileExists(t, s.store.logPath(id))
}

func TestStaleAndTruncatedLogEntriesAreIgnored(t *testing.T) {
	p := testutil.NewProject(t)
	s := newTestSystem(t, p)

	id, err := s.CreateRollbackPoint("phase", "")
	require.NoError(t, err)
	op, err := s.RecordMove("a.json", "config/a.json", "config file")
	require.NoError(t, err)
	require.NoError(t, s.ClosePoint())

	// A log left behind after the point file was written, ending mid-line
	require.NoError(t, s.store.AppendOperation(id, 0, op))
	f, err := os.OpenFile(s.store.logPath(id), os.O_WRONLY|os.O_APPEND, 0644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"index":1,"op":{"ty`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	point, err := s.GetRollbackPoint(id)
	require.NoError(t, err)
	assert.Len(t, point.Operations, 1)
}

func TestMarkNotAppliedSurvivesReload(t *testing.T) {
	p := testutil.NewProject(t)
	p.CreateFile("x.log", "x")
	s := newTestSystem(t, p)

	id, err := s.CreateRollbackPoint("temporary-cleanup", "")
	require.NoError(t, err)
	op, err := s.RecordRemoval("x.log", "log file")
	require.NoError(t, err)
	require.NoError(t, s.MarkNotApplied(op))

	// Never closed: a fresh system reads the log
	point, err := newTestSystem(t, p).GetRollbackPoint(id)
	require.NoError(t, err)
	require.Len(t, point.Operations, 1)
	assert.True(t, point.Operations[0].NotApplied)

	err = s.MarkNotApplied(Operation{Type: OpRemove, OriginalPath: "y.log", Timestamp: time.Now()})
	assert.Error(t, err)

	p.CreateFile("x.log", "edited")
	result, err := s.RollbackToPoint(id, false)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Empty(t, result.RestoredFiles)
	p.AssertFileContent("x.log", "edited")
}

func TestRollbackTwiceRequiresForce(t *testing.T) {
	p := testutil.NewProject(t)
	p.CreateFile("x.tmp", "x")
	s := newTestSystem(t, p)

	id, err := s.CreateRollbackPoint("phase", "")
	require.NoError(t, err)
	_, err = s.RecordRemoval("x.tmp", "tmp")
	require.NoError(t, err)
	require.NoError(t, os.Remove(p.Path("x.tmp")))

	// Rolling back the open point closes it first
	_, err = s.RollbackToPoint(id, false)
	require.NoError(t, err)
	assert.Empty(t, s.CurrentPointID())

	_, err = s.RollbackToPoint(id, false)
	assert.True(t, errors.Is(err, ErrAlreadyRolledBack))

	result, err := s.RollbackToPoint(id, true)
	require.NoError(t, err)
	assert.True(t, result.Success)
	p.AssertFileContent("x.tmp", "x")
}

func TestRollbackUnknownPoint(t *testing.T) {
	s := newTestSystem(t, testutil.NewProject(t))

	_, err := s.RollbackToPoint("does-not-exist", false)
	assert.True(t, errors.Is(err, ErrPointNotFound))

	_, err = s.RollbackToPoint("../escape", false)
	assert.True(t, errors.Is(err, ErrPointNotFound))
}

func TestPurgeOlderThan(t *testing.T) {
	p := testutil.NewProject(t)
	p.CreateFile("old.log", "old")
	s := newTestSystem(t, p)

	oldID, err := s.CreateRollbackPoint("old", "")
	require.NoError(t, err)
	op, err := s.RecordRemoval("old.log", "log")
	require.NoError(t, err)
	require.NoError(t, s.ClosePoint())

	// Age the point on disk
	point, err := s.store.Load(oldID)
	require.NoError(t, err)
	point.CreatedAt = time.Now().Add(-10 * 24 * time.Hour)
	require.NoError(t, s.store.Save(point))

	openID, err := s.CreateRollbackPoint("current", "")
	require.NoError(t, err)

	purged, err := s.PurgeOlderThan(7 * 24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, []string{oldID}, purged)

	_, err = s.GetRollbackPoint(oldID)
	assert.True(t, errors.Is(err, ErrPointNotFound))
	_, err = os.Stat(op.BackupPath)
	assert.True(t, os.IsNotExist(err))

	_, err = s.GetRollbackPoint(openID)
	assert.NoError(t, err)
}

func TestPathLocksSerialize(t *testing.T) {
	s := newTestSystem(t, testutil.NewProject(t))

	var (
		wg      sync.WaitGroup
		active  int
		maxSeen int
		mu      sync.Mutex
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := s.LockPath("same/file.txt", "other/file.txt")
			defer unlock()

			mu.Lock()
			active++
			if active > maxSeen {
				maxSeen = active
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Equal(t, 0, s.locks.size())
}

func TestStoreListNewestFirst(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	base := time.Now()
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.Save(&Point{ID: id, CreatedAt: base.Add(time.Duration(i) * time.Minute)}))
	}
	require.NoError(t, os.WriteFile(filepath.Join(store.Dir(), "junk.json"), []byte("{"), 0644))

	points, err := store.List()
	require.NoError(t, err)
	require.Len(t, points, 3)
	assert.Equal(t, "c", points[0].ID)
	assert.Equal(t, "a", points[2].ID)

	assert.True(t, errors.Is(store.Delete("missing"), ErrPointNotFound))
}
