package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/phuslu/log"
	"github.com/spf13/cobra"

	"github.com/fenilsonani/repotidy/internal/backup"
	"github.com/fenilsonani/repotidy/internal/cleaner"
	"github.com/fenilsonani/repotidy/internal/config"
	"github.com/fenilsonani/repotidy/internal/logging"
	"github.com/fenilsonani/repotidy/internal/planner"
	"github.com/fenilsonani/repotidy/internal/progress"
	"github.com/fenilsonani/repotidy/internal/reporter"
	"github.com/fenilsonani/repotidy/internal/rollback"
	"github.com/fenilsonani/repotidy/internal/ui"
)

var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

var (
	configPath string
	rootDir    string
	verbose    bool
	noProgress bool
)

// errCleanupFailed makes the process exit non-zero after a report that
// has already been printed
var errCleanupFailed = errors.New("cleanup finished with errors")

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "repotidy",
	Short: "Safe, reversible repository cleanup",
	Long: `repotidy scans a source repository for temporary, obsolete, duplicate and
misplaced files, plans a phased cleanup that never touches referenced files,
and executes it with a rollback point per phase.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default: <root>/.repotidy.yaml or ~/.config/repotidy/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&rootDir, "root", ".", "project root")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&noProgress, "no-progress", false, "disable the live progress line")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(executeCmd)
	rootCmd.AddCommand(integrityCmd)
	rootCmd.AddCommand(rollbackCmd)
	rootCmd.AddCommand(listRollbackPointsCmd)
	rootCmd.AddCommand(purgeRollbackPointsCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(configCmd)
}

// app holds what every command needs: the resolved project root, its
// configuration and a logger
type app struct {
	root   string
	cfg    *config.Config
	logger *log.Logger
	closer io.Closer
}

func newApp() (*app, error) {
	root, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project root: %w", err)
	}
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("project root is not a directory: %s", root)
	}

	cfg, err := loadConfig(root)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if verbose {
		cfg.Verbose = true
		cfg.LogLevel = logging.LevelDebug
	}

	logger, closer, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return nil, err
	}

	return &app{root: root, cfg: cfg, logger: logger, closer: closer}, nil
}

func (a *app) Close() {
	a.closer.Close()
}

func loadConfig(root string) (*config.Config, error) {
	if configPath != "" {
		return config.Load(configPath)
	}

	cfgPath, err := config.GetConfigPath(root)
	if err != nil {
		return nil, err
	}

	return config.Load(cfgPath)
}

// startProgress returns a reporter rendered as a live progress line on
// stderr. Both are nil when progress is disabled.
func (a *app) startProgress() (*progress.ProgressReporter, *ui.LiveProgress) {
	if noProgress {
		return nil, nil
	}
	pr := progress.NewProgressReporter()
	lp := ui.NewLiveProgress()
	lp.Watch(pr)
	return pr, lp
}

func (a *app) engine(pr *progress.ProgressReporter) *planner.Engine {
	e := planner.NewForProject(a.root, a.cfg, a.logger)
	if pr != nil {
		e.SetProgressReporter(pr)
	}
	return e
}

// rollbackSystem opens the rollback ledger and the backup store under the
// project's state directory
func (a *app) rollbackSystem() (*rollback.System, *backup.System, error) {
	state := a.cfg.StatePath(a.root)
	store, err := rollback.NewStore(filepath.Join(state, "rollback"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open rollback store: %w", err)
	}
	archiver := backup.New(a.root, state, a.logger)
	return rollback.New(a.root, store, archiver, a.logger), archiver, nil
}

// executor builds a cleanup executor sharing engine's validator
func (a *app) executor(e *planner.Engine, pr *progress.ProgressReporter) (*cleaner.Executor, error) {
	rb, archiver, err := a.rollbackSystem()
	if err != nil {
		return nil, err
	}
	x := cleaner.New(a.root, a.cfg, a.logger, rb, archiver, e.Validator())
	if pr != nil {
		x.SetProgressReporter(pr)
	}
	return x, nil
}

func stopProgress(lp *ui.LiveProgress) {
	if lp != nil {
		lp.Stop()
	}
}

// emit writes v to stdout, or to file when one is given
func emit(v any, format, file string) error {
	f, err := reporter.ParseFormat(format)
	if err != nil {
		return err
	}

	if file != "" {
		if err := reporter.SaveToFile(v, file, f); err != nil {
			return fmt.Errorf("failed to save report: %w", err)
		}
		fmt.Printf("Report saved to: %s\n", file)
		return nil
	}

	if err := reporter.New(os.Stdout, f).Report(v); err != nil {
		return fmt.Errorf("failed to generate report: %w", err)
	}
	return nil
}
