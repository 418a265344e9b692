// Package cleaner executes cleanup plans. Every removal goes through the
// rollback system, which archives the file before the removal is recorded;
// a file whose backup fails is never deleted.
package cleaner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/phuslu/log"
	"golang.org/x/sync/errgroup"

	"github.com/fenilsonani/repotidy/internal/config"
	"github.com/fenilsonani/repotidy/internal/fsutil"
	"github.com/fenilsonani/repotidy/internal/planner"
	"github.com/fenilsonani/repotidy/internal/progress"
	"github.com/fenilsonani/repotidy/internal/rollback"
	"github.com/fenilsonani/repotidy/internal/security"
	"github.com/fenilsonani/repotidy/internal/validation"
)

// PhaseResult represents the result of executing one cleanup phase
type PhaseResult struct {
	Phase        string             `json:"phase" yaml:"phase"`
	RollbackID   string             `json:"rollback_id,omitempty" yaml:"rollback_id,omitempty"`
	Removed      []string           `json:"removed" yaml:"removed"`
	Archived     []string           `json:"archived" yaml:"archived"`
	ArchivePaths map[string]string  `json:"archive_paths,omitempty" yaml:"archive_paths,omitempty"`
	Moved        []planner.FileMove `json:"moved" yaml:"moved"`
	Skipped      map[string]string  `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	BytesSaved   int64              `json:"bytes_saved" yaml:"bytes_saved"`
	Errors       []*OperationError  `json:"-" yaml:"-"`
	DryRun       bool               `json:"dry_run" yaml:"dry_run"`
	Duration     time.Duration      `json:"duration" yaml:"duration"`
}

func newPhaseResult(name string, dryRun bool) *PhaseResult {
	return &PhaseResult{
		Phase:        name,
		Removed:      []string{},
		Archived:     []string{},
		ArchivePaths: make(map[string]string),
		Moved:        []planner.FileMove{},
		Skipped:      make(map[string]string),
		Errors:       []*OperationError{},
		DryRun:       dryRun,
	}
}

// ErrorMessages returns the user-facing message of every error
func (r *PhaseResult) ErrorMessages() []string {
	msgs := make([]string, 0, len(r.Errors))
	for _, err := range r.Errors {
		msgs = append(msgs, err.UserMessage())
	}
	return msgs
}

func (r *PhaseResult) fail(err *OperationError) {
	r.Errors = append(r.Errors, err)
}

// Executor applies cleanup phases to a project tree
type Executor struct {
	root              string
	config            *config.Config
	logger            *log.Logger
	rollback          *rollback.System
	archiver          rollback.Archiver
	validator         *validation.Engine
	pathValidator     *security.PathValidator
	permissionManager *PermissionManager
	progressReporter  *progress.ProgressReporter
	retryDelays       []time.Duration
	remove            func(name string) error
}

// New creates an Executor. The validator must already hold the dependency
// graph the plan was built from.
func New(root string, cfg *config.Config, logger *log.Logger, rb *rollback.System, archiver rollback.Archiver, v *validation.Engine) *Executor {
	return &Executor{
		root:              root,
		config:            cfg,
		logger:            logger,
		rollback:          rb,
		archiver:          archiver,
		validator:         v,
		pathValidator:     security.NewPathValidator(root, cfg.StatePath(root), cfg.Manifest),
		permissionManager: NewPermissionManager(),
		progressReporter:  progress.NewProgressReporter(),
		retryDelays: []time.Duration{
			100 * time.Millisecond,
			500 * time.Millisecond,
			2 * time.Second,
		},
		remove: os.Remove,
	}
}

// SetProgressReporter sets a custom progress reporter
func (e *Executor) SetProgressReporter(pr *progress.ProgressReporter) {
	e.progressReporter = pr
}

// GetProgressReporter returns the executor's progress reporter
func (e *Executor) GetProgressReporter() *progress.ProgressReporter {
	return e.progressReporter
}

// ExecutePhase runs one phase inside its own rollback point. Per-file
// failures are collected in the result and the phase continues; the
// returned error is reserved for failures that stop the phase (rollback
// ledger errors, cancellation).
func (e *Executor) ExecutePhase(ctx context.Context, phase *planner.Phase) (*PhaseResult, error) {
	start := time.Now()
	result := newPhaseResult(phase.Name, e.config.DryRun)
	defer func() { result.Duration = time.Since(start) }()

	if phase.IsEmpty() {
		e.logger.Info().Str("phase", phase.Name).Msg("nothing to do")
		return result, nil
	}

	remove, archive, err := e.partition(ctx, phase)
	if err != nil {
		return result, err
	}

	tracker := e.newTracker(phase.Name, len(remove)+len(archive)+len(phase.FilesToMove), start)

	if e.config.DryRun {
		e.simulate(result, remove, archive, phase.FilesToMove)
		tracker.finish(nil)
		return result, nil
	}

	id, err := e.rollback.CreateRollbackPoint(phase.Name, phase.Description)
	if err != nil {
		tracker.finish(err)
		return result, fmt.Errorf("failed to create rollback point for %s: %w", phase.Name, err)
	}
	result.RollbackID = id

	remove, moves := e.preflight(result, remove, phase.FilesToMove)

	e.archiveFiles(result, phase.Name, archive, tracker)
	runErr := e.removeFiles(ctx, result, phase.Name, remove, tracker)
	if runErr == nil {
		runErr = e.moveFiles(ctx, result, moves, tracker)
	}

	e.pruneDirs(result)

	if err := e.rollback.ClosePoint(); err != nil && runErr == nil {
		runErr = fmt.Errorf("failed to close rollback point %s: %w", id, err)
	}

	tracker.finish(runErr)

	e.logger.Info().
		Str("phase", phase.Name).
		Str("rollback_id", id).
		Int("removed", len(result.Removed)).
		Int("archived", len(result.Archived)).
		Int("moved", len(result.Moved)).
		Int("errors", len(result.Errors)).
		Msg("phase executed")

	return result, runErr
}

// partition re-validates the removal list. Files that are no longer safe
// are archived instead.
func (e *Executor) partition(ctx context.Context, phase *planner.Phase) (remove, archive []string, err error) {
	archive = append(archive, phase.FilesToArchive...)

	if len(phase.FilesToRemove) > 0 {
		batch, err := e.validator.ValidateBatchRemoval(ctx, phase.FilesToRemove)
		if err != nil {
			return nil, nil, fmt.Errorf("bulk validation of %s failed: %w", phase.Name, err)
		}
		for _, rel := range batch.Unsafe {
			e.logger.Warn().Str("path", rel).Strs("reasons", batch.Warnings[rel]).Msg("no longer safe to remove, archiving instead")
			archive = append(archive, rel)
		}
		remove = batch.Safe
	}

	return remove, dedupe(archive), nil
}

// preflight drops sources whose parent directory we cannot write
func (e *Executor) preflight(result *PhaseResult, remove []string, moves []planner.FileMove) ([]string, []planner.FileMove) {
	ops := make(map[string]Operation, len(remove)+len(moves))
	sources := make([]string, 0, len(remove)+len(moves))
	for _, rel := range remove {
		ops[rel] = OpRemove
		sources = append(sources, fsutil.Abs(e.root, rel))
	}
	for _, m := range moves {
		ops[m.From] = OpMove
		sources = append(sources, fsutil.Abs(e.root, m.From))
	}

	report := e.permissionManager.AnalyzePermissions(sources)
	if len(report.ReadOnly) == 0 && len(report.Inaccessible) == 0 {
		return remove, moves
	}

	blocked := make(map[string]bool)
	for _, abs := range report.ReadOnly {
		rel, _ := fsutil.Rel(e.root, abs)
		blocked[rel] = true
		result.fail(&OperationError{Path: rel, Op: ops[rel], Reason: ErrorPermissionDenied, Original: os.ErrPermission})
	}
	for abs, err := range report.Inaccessible {
		rel, _ := fsutil.Rel(e.root, abs)
		blocked[rel] = true
		result.fail(CategorizeError(ops[rel], rel, err))
	}

	var keptRemove []string
	for _, rel := range remove {
		if !blocked[rel] {
			keptRemove = append(keptRemove, rel)
		}
	}
	var keptMoves []planner.FileMove
	for _, m := range moves {
		if !blocked[m.From] {
			keptMoves = append(keptMoves, m)
		}
	}

	return keptRemove, keptMoves
}

// simulate fills result with what the phase would do, without touching disk
func (e *Executor) simulate(result *PhaseResult, remove, archive []string, moves []planner.FileMove) {
	for _, rel := range remove {
		info, err := os.Lstat(fsutil.Abs(e.root, rel))
		if err != nil {
			result.Skipped[rel] = "already gone"
			continue
		}
		if e.tooNew(info) {
			result.Skipped[rel] = "modified within min_file_age"
			continue
		}
		result.Removed = append(result.Removed, rel)
		result.BytesSaved += info.Size()
	}
	result.Archived = append(result.Archived, archive...)
	result.Moved = append(result.Moved, moves...)
}

// archiveFiles copies each file into the archive. The original stays.
func (e *Executor) archiveFiles(result *PhaseResult, phase string, paths []string, t *tracker) {
	for _, rel := range paths {
		archived, opErr := e.archiveFile(rel, phase+": archived before cleanup")
		if opErr != nil {
			result.fail(opErr)
			e.logger.Warn().Str("path", rel).Err(opErr).Msg("archive failed")
		} else {
			result.Archived = append(result.Archived, rel)
			result.ArchivePaths[rel] = archived
		}
		t.step(rel, OpArchive, 0, opErr != nil)
	}
}

func (e *Executor) archiveFile(rel, reason string) (string, *OperationError) {
	unlock := e.rollback.LockPath(rel)
	defer unlock()

	if err := e.pathValidator.ValidatePathForDeletion(rel); err != nil {
		if os.IsNotExist(err) {
			return "", CategorizeError(OpArchive, rel, err)
		}
		return "", invalidPath(OpArchive, rel, err)
	}

	res, err := e.archiver.ArchiveFile(rel, reason)
	if err != nil {
		return "", CategorizeError(OpArchive, rel, err)
	}
	return res.ArchivedPath, nil
}

// removal is the outcome of one file removal
type removal struct {
	attempted bool
	removed   bool
	size      int64
	skipped   string
	err       *OperationError
}

// removeFiles deletes files on the worker pool. A removal that has started
// runs to completion; cancellation only stops new ones from starting.
func (e *Executor) removeFiles(ctx context.Context, result *PhaseResult, phase string, paths []string, t *tracker) error {
	outcomes := make([]removal, len(paths))
	reason := phase + ": safe to remove"

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.config.WorkerCount())

	for i, rel := range paths {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			o := e.removeFile(rel, reason)
			outcomes[i] = o
			if o.skipped != "" {
				t.skip(rel)
			} else {
				t.step(rel, OpRemove, o.size, o.err != nil)
			}
			return nil
		})
	}
	_ = g.Wait()

	for i, rel := range paths {
		o := outcomes[i]
		switch {
		case !o.attempted:
			result.Skipped[rel] = "cancelled"
		case o.err != nil:
			result.fail(o.err)
		case o.skipped != "":
			result.Skipped[rel] = o.skipped
		case o.removed:
			result.Removed = append(result.Removed, rel)
			result.BytesSaved += o.size
		}
	}

	return ctx.Err()
}

func (e *Executor) removeFile(rel, reason string) removal {
	unlock := e.rollback.LockPath(rel)
	defer unlock()

	out := removal{attempted: true}

	if err := e.pathValidator.ValidatePathForDeletion(rel); err != nil {
		if os.IsNotExist(err) {
			out.skipped = "already gone"
			return out
		}
		out.err = invalidPath(OpRemove, rel, err)
		return out
	}

	abs := fsutil.Abs(e.root, rel)
	info, err := os.Lstat(abs)
	if err != nil {
		out.err = CategorizeError(OpRemove, rel, err)
		return out
	}

	if e.tooNew(info) {
		out.skipped = "modified within min_file_age"
		return out
	}

	// Backup first; without it there is nothing to roll back to
	op, err := e.rollback.RecordRemoval(rel, reason)
	if err != nil {
		out.err = CategorizeError(OpRemove, rel, err)
		e.logger.Warn().Str("path", rel).Err(err).Msg("backup failed, file kept")
		return out
	}

	if opErr := e.deleteWithRetry(rel, abs); opErr != nil {
		// The file is still live; replaying the point must not overwrite it
		if err := e.rollback.MarkNotApplied(op); err != nil {
			e.logger.Error().Str("path", rel).Err(err).Msg("failed to mark removal as not applied")
		}
		out.err = opErr
		return out
	}
	e.validator.Forget(rel)

	out.removed = true
	out.size = info.Size()
	e.logger.Debug().Str("path", rel).Int64("bytes", info.Size()).Msg("removed")
	return out
}

// deleteWithRetry removes abs, retrying transient errors with back-off
func (e *Executor) deleteWithRetry(rel, abs string) *OperationError {
	for attempt := 0; ; attempt++ {
		err := e.remove(abs)
		if err == nil || os.IsNotExist(err) {
			return nil
		}

		opErr := CategorizeError(OpRemove, rel, err)
		if !opErr.Retryable || attempt >= len(e.retryDelays) {
			return opErr
		}
		time.Sleep(e.retryDelays[attempt])
	}
}

// moveFiles relocates files one at a time; moves share target directories
func (e *Executor) moveFiles(ctx context.Context, result *PhaseResult, moves []planner.FileMove, t *tracker) error {
	for _, m := range moves {
		if err := ctx.Err(); err != nil {
			result.Skipped[m.From] = "cancelled"
			continue
		}

		opErr := e.moveFile(m)
		if opErr != nil {
			result.fail(opErr)
			e.logger.Warn().Str("from", m.From).Str("to", m.To).Err(opErr).Msg("move failed")
		} else {
			result.Moved = append(result.Moved, m)
		}
		t.step(m.From, OpMove, 0, opErr != nil)
	}
	return ctx.Err()
}

func (e *Executor) moveFile(m planner.FileMove) *OperationError {
	unlock := e.rollback.LockPath(m.From, m.To)
	defer unlock()

	if err := e.pathValidator.ValidatePathForDeletion(m.From); err != nil {
		if os.IsNotExist(err) {
			return CategorizeError(OpMove, m.From, err)
		}
		return invalidPath(OpMove, m.From, err)
	}
	if err := e.pathValidator.ValidateDestination(m.To); err != nil {
		if opErr := CategorizeError(OpMove, m.To, err); opErr.Reason == ErrorDestinationExists {
			return opErr
		}
		return invalidPath(OpMove, m.To, err)
	}

	from := fsutil.Abs(e.root, m.From)
	to := fsutil.Abs(e.root, m.To)

	if err := os.MkdirAll(filepath.Dir(to), 0755); err != nil {
		return CategorizeError(OpMove, m.From, err)
	}
	if err := os.Rename(from, to); err != nil {
		fsutil.PruneEmptyDirs(e.root, filepath.Dir(to))
		return CategorizeError(OpMove, m.From, err)
	}

	if _, err := e.rollback.RecordMove(m.From, m.To, m.Reason); err != nil {
		// An unrecorded move could not be undone later; put it back now
		if rerr := os.Rename(to, from); rerr != nil {
			e.logger.Error().Str("from", m.From).Str("to", m.To).Err(rerr).Msg("failed to revert unrecorded move")
		}
		fsutil.PruneEmptyDirs(e.root, filepath.Dir(to))
		return CategorizeError(OpMove, m.From, err)
	}

	e.validator.Forget(m.From, m.To)
	return nil
}

// pruneDirs removes directories left empty by removals and moves
func (e *Executor) pruneDirs(result *PhaseResult) {
	dirs := make(map[string]bool)
	for _, rel := range result.Removed {
		dirs[filepath.Dir(fsutil.Abs(e.root, rel))] = true
	}
	for _, m := range result.Moved {
		dirs[filepath.Dir(fsutil.Abs(e.root, m.From))] = true
	}

	// Deepest first so parents see their children gone
	ordered := make([]string, 0, len(dirs))
	for d := range dirs {
		ordered = append(ordered, d)
	}
	sort.Slice(ordered, func(i, j int) bool { return len(ordered[i]) > len(ordered[j]) })

	for _, d := range ordered {
		for _, removed := range fsutil.PruneEmptyDirs(e.root, d) {
			e.logger.Debug().Str("dir", removed).Msg("pruned empty directory")
		}
	}
}

func (e *Executor) tooNew(info os.FileInfo) bool {
	if e.config.MinFileAge <= 0 {
		return false
	}
	minAge := time.Duration(e.config.MinFileAge) * time.Hour
	return time.Since(info.ModTime()) < minAge
}

func dedupe(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

// tracker aggregates per-file progress from concurrent workers
type tracker struct {
	mu       sync.Mutex
	reporter *progress.ProgressReporter
	state    progress.ExecuteProgress
}

func (e *Executor) newTracker(phase string, total int, start time.Time) *tracker {
	t := &tracker{
		reporter: e.progressReporter,
		state: progress.ExecuteProgress{
			Phase:        progress.PhaseExecuting,
			CleanupPhase: phase,
			TotalFiles:   total,
			StartTime:    start,
		},
	}
	t.publish()
	return t
}

func (t *tracker) step(rel string, op Operation, bytes int64, failed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.state.CurrentFile = rel
	t.state.Processed++
	switch {
	case failed:
		t.state.ErrorCount++
	case op == OpRemove:
		t.state.Removed++
		t.state.BytesSaved += bytes
	case op == OpArchive:
		t.state.Archived++
	case op == OpMove:
		t.state.Moved++
	}
	t.publish()
}

// skip counts a file that was looked at but left alone
func (t *tracker) skip(rel string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.state.CurrentFile = rel
	t.state.Processed++
	t.publish()
}

func (t *tracker) finish(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.state.CurrentFile = ""
	t.state.Phase = progress.PhaseComplete
	if err != nil {
		t.state.Phase = progress.PhaseError
		t.state.Error = err
	}
	t.publish()
}

func (t *tracker) publish() {
	if t.reporter == nil {
		return
	}
	snapshot := t.state
	t.reporter.UpdateExecuteProgress(&snapshot)
}
