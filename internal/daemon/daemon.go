package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/phuslu/log"
	"github.com/shirou/gopsutil/v4/process"
	"golang.org/x/sync/errgroup"

	"github.com/fenilsonani/repotidy/internal/config"
	"github.com/fenilsonani/repotidy/internal/planner"
	"github.com/fenilsonani/repotidy/internal/reporter"
	"github.com/fenilsonani/repotidy/internal/rollback"
	"github.com/fenilsonani/repotidy/internal/scanner"
)

// Job names registered by the daemon
const (
	JobPurge = "purge-rollback-points"
	JobScan  = "scan-report"
)

// LatestScanReport is the file name of the most recent background scan
const LatestScanReport = "scan-latest.json"

// ErrAlreadyRunning is returned when another watch process holds the lock
var ErrAlreadyRunning = errors.New("watch already running for this project")

// Daemon keeps a project's state directory maintained in the background.
// It runs the configured cron jobs and, when watching is enabled,
// re-scans the project once the tree has been quiet for the debounce
// interval.
type Daemon struct {
	root      string
	config    *config.Config
	logger    *log.Logger
	rollback  *rollback.System
	scheduler *Scheduler
	watch     bool
	running   bool
	mu        sync.RWMutex

	// Serializes scans triggered by cron and by the watcher
	scanMu   sync.Mutex
	lastScan *scanner.FileAnalysisReport
}

// New creates a daemon for the project at root
func New(root string, cfg *config.Config, rb *rollback.System, logger *log.Logger) *Daemon {
	d := &Daemon{
		root:     root,
		config:   cfg,
		logger:   logger,
		rollback: rb,
		watch:    cfg.Watch.Enabled,
	}
	d.scheduler = NewScheduler(logger)
	return d
}

// SetWatch enables or disables filesystem watching, overriding the config
func (d *Daemon) SetWatch(enabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.watch = enabled
}

// Scheduler returns the daemon's job scheduler
func (d *Daemon) Scheduler() *Scheduler {
	return d.scheduler
}

// IsRunning returns whether the daemon is running
func (d *Daemon) IsRunning() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.running
}

// LastScan returns the report of the most recent background scan, or nil
func (d *Daemon) LastScan() *scanner.FileAnalysisReport {
	d.scanMu.Lock()
	defer d.scanMu.Unlock()
	return d.lastScan
}

// Run registers the configured jobs and blocks until ctx is cancelled
func (d *Daemon) Run(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return ErrAlreadyRunning
	}
	d.running = true
	watch := d.watch
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.running = false
		d.mu.Unlock()
	}()

	release, err := d.acquireLock()
	if err != nil {
		return err
	}
	defer release()

	if err := d.registerJobs(); err != nil {
		return err
	}

	d.scheduler.Start(ctx)
	defer d.scheduler.Stop()

	d.logger.Info().
		Str("root", d.root).
		Int("jobs", len(d.scheduler.ListJobs())).
		Bool("watch", watch).
		Msg("daemon started")

	g, gctx := errgroup.WithContext(ctx)
	if watch {
		sc := scanner.New(d.root, d.config, d.logger)
		w := NewWatcher(d.root, sc, d.config.WatchDebounce(), d.onChange, d.logger)
		g.Go(func() error {
			return w.Run(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	err = g.Wait()
	d.logger.Info().Msg("daemon shutting down")
	return err
}

func (d *Daemon) registerJobs() error {
	jobs := []*Job{
		{Name: JobPurge, Schedule: d.config.Schedule.Purge, Run: d.purgeJob},
		{Name: JobScan, Schedule: d.config.Schedule.Scan, Run: d.scanJob},
	}
	for _, job := range jobs {
		if job.Schedule == "" {
			continue
		}
		if err := d.scheduler.AddJob(job); err != nil {
			return fmt.Errorf("failed to schedule %s: %w", job.Name, err)
		}
	}
	return nil
}

func (d *Daemon) purgeJob(ctx context.Context) error {
	_, err := d.PurgeRollbackPoints(ctx)
	return err
}

func (d *Daemon) scanJob(ctx context.Context) error {
	_, err := d.RunScan(ctx)
	return err
}

func (d *Daemon) onChange(ctx context.Context, changed []string) {
	d.logger.Info().Int("changed", len(changed)).Strs("paths", head(changed, 10)).Msg("project changed")
	if _, err := d.RunScan(ctx); err != nil && ctx.Err() == nil {
		d.logger.Error().Err(err).Msg("re-scan failed")
	}
}

// PurgeRollbackPoints deletes rollback points past the retention period
func (d *Daemon) PurgeRollbackPoints(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	purged, err := d.rollback.PurgeOlderThan(d.config.RollbackRetention())
	if err != nil {
		return nil, fmt.Errorf("failed to purge rollback points: %w", err)
	}

	d.logger.Info().Int("purged", len(purged)).Strs("ids", purged).Msg("rollback points purged")
	return purged, nil
}

// RunScan scans the project and writes the report to
// <state>/reports/scan-latest.json
func (d *Daemon) RunScan(ctx context.Context) (*scanner.FileAnalysisReport, error) {
	d.scanMu.Lock()
	defer d.scanMu.Unlock()

	engine := planner.NewForProject(d.root, d.config, d.logger)
	report, err := engine.ScanProject(ctx)
	if err != nil {
		return nil, err
	}

	dir := filepath.Join(d.config.StatePath(d.root), "reports")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create reports directory: %w", err)
	}
	path := filepath.Join(dir, LatestScanReport)
	if err := reporter.SaveToFile(report, path, reporter.FormatJSON); err != nil {
		return nil, fmt.Errorf("failed to save scan report: %w", err)
	}

	d.lastScan = report
	d.logger.Info().Str("report", path).Int("files", report.TotalFiles).Msg("scan report written")
	return report, nil
}

// acquireLock creates <state>/watch.lock holding our pid. A lock left by a
// process that no longer exists is taken over.
func (d *Daemon) acquireLock() (func(), error) {
	stateDir := d.config.StatePath(d.root)
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	lockFile := filepath.Join(stateDir, "watch.lock")

	for attempt := 0; attempt < 2; attempt++ {
		file, err := os.OpenFile(lockFile, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0644)
		if err == nil {
			_, err = fmt.Fprintf(file, "%d\n", os.Getpid())
			file.Close()
			if err != nil {
				os.Remove(lockFile)
				return nil, fmt.Errorf("failed to write lock file: %w", err)
			}
			return func() { os.Remove(lockFile) }, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("failed to create lock file: %w", err)
		}
		if !staleLock(lockFile) {
			return nil, fmt.Errorf("%w (lock file %s)", ErrAlreadyRunning, lockFile)
		}
		d.logger.Warn().Str("lock", lockFile).Msg("removing stale lock file")
		os.Remove(lockFile)
	}
	return nil, fmt.Errorf("%w (lock file %s)", ErrAlreadyRunning, lockFile)
}

// staleLock reports whether the pid in lockFile names no live process
func staleLock(lockFile string) bool {
	data, err := os.ReadFile(lockFile)
	if err != nil {
		return false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return true
	}
	if pid == os.Getpid() {
		return false
	}
	return !processAlive(pid)
}

func head(paths []string, n int) []string {
	if len(paths) <= n {
		return paths
	}
	return paths[:n]
}

// processAlive errs on the side of a live process when the lookup fails
func processAlive(pid int) bool {
	alive, err := process.PidExists(int32(pid))
	return err != nil || alive
}
