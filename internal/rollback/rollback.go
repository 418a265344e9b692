// Package rollback records every mutation the executor makes and replays
// them in reverse. Points are persisted under <state>/rollback/<id>.json.
package rollback

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phuslu/log"

	"github.com/fenilsonani/repotidy/internal/backup"
	"github.com/fenilsonani/repotidy/internal/fsutil"
)

var (
	// ErrBackupFailed is returned when a removal or modification cannot be
	// backed up; nothing is recorded and the caller must not mutate the file
	ErrBackupFailed = errors.New("backup failed")

	// ErrAlreadyRolledBack is returned when replaying a point twice without force
	ErrAlreadyRolledBack = errors.New("rollback point already rolled back")
)

// Archiver is the backup contract the rollback system depends on
type Archiver interface {
	ArchiveFile(rel, reason string) (backup.Result, error)
	Restore(archivedPath, rel string) error
}

// System is the rollback ledger. Operations recorded while a point is open
// are appended to its operation log immediately; operations recorded with no
// open point stay pending until the next point adopts them.
type System struct {
	root     string
	store    *Store
	archiver Archiver
	logger   *log.Logger

	mu      sync.Mutex
	open    *Point
	pending []Operation

	locks *pathLocks
}

// New creates a rollback system for the project at root
func New(root string, store *Store, archiver Archiver, logger *log.Logger) *System {
	return &System{
		root:     root,
		store:    store,
		archiver: archiver,
		logger:   logger,
		locks:    newPathLocks(),
	}
}

// LockPath serializes mutations of the given project-relative paths.
// Callers hold it across record-and-mutate and call the returned function
// when done.
func (s *System) LockPath(paths ...string) func() {
	return s.locks.lock(paths...)
}

// CreateRollbackPoint closes the open point, if any, and opens a new one
// that adopts all pending operations
func (s *System) CreateRollbackPoint(name, description string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.closeLocked(); err != nil {
		return "", err
	}

	point := &Point{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		CreatedAt:   time.Now(),
		Operations:  s.pending,
	}
	if point.Operations == nil {
		point.Operations = []Operation{}
	}

	if err := s.store.Save(point); err != nil {
		return "", err
	}

	s.pending = nil
	s.open = point

	s.logger.Debug().Str("id", point.ID).Str("name", name).Int("adopted", len(point.Operations)).Msg("rollback point created")
	return point.ID, nil
}

// ClosePoint closes the open point. It is a no-op when none is open.
func (s *System) ClosePoint() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

func (s *System) closeLocked() error {
	if s.open == nil {
		return nil
	}

	now := time.Now()
	s.open.ClosedAt = &now
	if err := s.store.Save(s.open); err != nil {
		s.open.ClosedAt = nil
		return err
	}

	s.logger.Debug().Str("id", s.open.ID).Int("operations", len(s.open.Operations)).Msg("rollback point closed")
	s.open = nil
	return nil
}

// CurrentPointID returns the id of the open point, or ""
func (s *System) CurrentPointID() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.open == nil {
		return ""
	}
	return s.open.ID
}

// RecordRemoval archives rel and records its removal. The file itself is
// left in place for the caller to delete.
func (s *System) RecordRemoval(rel, reason string) (Operation, error) {
	return s.recordBackedUp(OpRemove, rel, reason)
}

// RecordModification archives rel before the caller modifies it
func (s *System) RecordModification(rel, reason string) (Operation, error) {
	return s.recordBackedUp(OpModify, rel, reason)
}

func (s *System) recordBackedUp(opType OperationType, rel, reason string) (Operation, error) {
	result, err := s.archiver.ArchiveFile(rel, reason)
	if err != nil {
		return Operation{}, fmt.Errorf("%w for %s: %w", ErrBackupFailed, rel, err)
	}

	op := Operation{
		Type:         opType,
		OriginalPath: rel,
		BackupPath:   result.ArchivedPath,
		Timestamp:    time.Now(),
		Reason:       reason,
	}
	if err := s.append(op); err != nil {
		return Operation{}, err
	}
	return op, nil
}

// RecordMove records a completed move of from to to
func (s *System) RecordMove(from, to, reason string) (Operation, error) {
	op := Operation{
		Type:         OpMove,
		OriginalPath: from,
		NewPath:      to,
		Timestamp:    time.Now(),
		Reason:       reason,
	}
	if err := s.append(op); err != nil {
		return Operation{}, err
	}
	return op, nil
}

func (s *System) append(op Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.open == nil {
		s.pending = append(s.pending, op)
		return nil
	}

	if err := s.store.AppendOperation(s.open.ID, len(s.open.Operations), op); err != nil {
		return fmt.Errorf("failed to persist %s of %s: %w", op.Type, op.OriginalPath, err)
	}
	s.open.Operations = append(s.open.Operations, op)
	return nil
}

// MarkNotApplied flags a recorded operation whose mutation did not happen,
// so replaying its point leaves the path alone
func (s *System) MarkNotApplied(op Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.open == nil {
		if i := indexOf(s.pending, op); i >= 0 {
			s.pending[i].NotApplied = true
			return nil
		}
		return fmt.Errorf("%s of %s is not recorded", op.Type, op.OriginalPath)
	}

	i := indexOf(s.open.Operations, op)
	if i < 0 {
		return fmt.Errorf("%s of %s is not in point %s", op.Type, op.OriginalPath, s.open.ID)
	}
	if err := s.store.MarkNotApplied(s.open.ID, i); err != nil {
		return err
	}
	s.open.Operations[i].NotApplied = true
	return nil
}

func indexOf(ops []Operation, op Operation) int {
	for i := len(ops) - 1; i >= 0; i-- {
		o := ops[i]
		if o.Type == op.Type && o.OriginalPath == op.OriginalPath && o.Timestamp.Equal(op.Timestamp) {
			return i
		}
	}
	return -1
}

// PendingOperations returns the operations not yet adopted by a point
func (s *System) PendingOperations() []Operation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Operation(nil), s.pending...)
}

// GetRollbackPoint returns a point by id
func (s *System) GetRollbackPoint(id string) (*Point, error) {
	return s.store.Load(id)
}

// ListRollbackPoints returns all persisted points, newest first
func (s *System) ListRollbackPoints() ([]*Point, error) {
	return s.store.List()
}

// RollbackToPoint replays the operations of a point in reverse order. It is
// best effort: every operation is attempted and failures are collected.
// A point already rolled back is refused unless force is set.
func (s *System) RollbackToPoint(id string, force bool) (*Result, error) {
	s.mu.Lock()
	if s.open != nil && s.open.ID == id {
		if err := s.closeLocked(); err != nil {
			s.mu.Unlock()
			return nil, err
		}
	}
	s.mu.Unlock()

	point, err := s.store.Load(id)
	if err != nil {
		return nil, err
	}
	if point.RolledBackAt != nil && !force {
		return nil, fmt.Errorf("%w: %s at %s", ErrAlreadyRolledBack, id, point.RolledBackAt.Format(time.RFC3339))
	}

	result := &Result{
		PointID:       id,
		RestoredFiles: []string{},
		Errors:        []string{},
	}

	for i := len(point.Operations) - 1; i >= 0; i-- {
		op := point.Operations[i]
		if op.NotApplied {
			continue
		}
		if err := s.undo(op); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s %s: %v", op.Type, op.OriginalPath, err))
			s.logger.Warn().Err(err).Str("path", op.OriginalPath).Str("type", string(op.Type)).Msg("rollback operation failed")
			continue
		}
		result.RestoredFiles = append(result.RestoredFiles, op.OriginalPath)
	}

	now := time.Now()
	point.RolledBackAt = &now
	if err := s.store.Save(point); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("failed to mark point rolled back: %v", err))
	}

	result.Success = len(result.Errors) == 0

	s.logger.Info().Str("id", id).Int("restored", len(result.RestoredFiles)).Int("errors", len(result.Errors)).Msg("rollback complete")
	return result, nil
}

func (s *System) undo(op Operation) error {
	switch op.Type {
	case OpRemove, OpModify:
		if op.BackupPath == "" {
			return fmt.Errorf("no backup recorded")
		}
		unlock := s.LockPath(op.OriginalPath)
		defer unlock()
		return s.archiver.Restore(op.BackupPath, op.OriginalPath)

	case OpMove:
		if op.NewPath == "" {
			return fmt.Errorf("no destination recorded")
		}
		unlock := s.LockPath(op.OriginalPath, op.NewPath)
		defer unlock()
		return s.moveBack(op)

	default:
		return fmt.Errorf("unknown operation type %q", op.Type)
	}
}

func (s *System) moveBack(op Operation) error {
	src := fsutil.Abs(s.root, op.NewPath)
	dst := fsutil.Abs(s.root, op.OriginalPath)

	if _, err := os.Lstat(src); err != nil {
		return fmt.Errorf("moved file missing: %w", err)
	}
	if _, err := os.Lstat(dst); err == nil {
		return fmt.Errorf("original location %s is occupied", op.OriginalPath)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("failed to move back: %w", err)
	}

	fsutil.PruneEmptyDirs(s.root, filepath.Dir(src))
	return nil
}

// PurgeOlderThan deletes closed points created more than age ago together
// with the backups they reference. It returns the purged ids.
func (s *System) PurgeOlderThan(age time.Duration) ([]string, error) {
	old, err := s.store.OlderThan(age)
	if err != nil {
		return nil, err
	}

	openID := s.CurrentPointID()
	stateRoot := filepath.Dir(s.store.Dir())

	var purged []string
	for _, point := range old {
		if point.ID == openID {
			continue
		}

		for _, op := range point.Operations {
			if op.BackupPath == "" {
				continue
			}
			if err := os.Remove(op.BackupPath); err == nil {
				fsutil.PruneEmptyDirs(stateRoot, filepath.Dir(op.BackupPath))
			}
		}

		if err := s.store.Delete(point.ID); err != nil {
			s.logger.Warn().Err(err).Str("id", point.ID).Msg("failed to purge rollback point")
			continue
		}
		purged = append(purged, point.ID)
	}

	if len(purged) > 0 {
		s.logger.Info().Int("count", len(purged)).Str("older_than", age.String()).Msg("rollback points purged")
	}
	return purged, nil
}
