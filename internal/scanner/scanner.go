package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/phuslu/log"
	"golang.org/x/sync/errgroup"

	"github.com/fenilsonani/repotidy/internal/config"
	"github.com/fenilsonani/repotidy/internal/fsutil"
	"github.com/fenilsonani/repotidy/internal/progress"
)

// progressEvery is how many files pass between progress updates
const progressEvery = 100

// Scanner walks a project tree and classifies its files
type Scanner struct {
	root             string
	cfg              *config.Config
	logger           *log.Logger
	excluded         []string
	stateRel         string
	progressReporter *progress.ProgressReporter
}

// New creates a new Scanner rooted at root
func New(root string, cfg *config.Config, logger *log.Logger) *Scanner {
	excluded := make([]string, 0, len(cfg.ExcludeDirs))
	for _, name := range cfg.ExcludeDirs {
		if name != "" {
			excluded = append(excluded, strings.ToLower(name))
		}
	}

	// The state directory is skipped wherever it lives under the root
	stateRel := ""
	if rel, err := fsutil.Rel(root, cfg.StatePath(root)); err == nil && fsutil.WithinRoot(rel) && rel != "." {
		stateRel = rel
	}

	return &Scanner{
		root:             root,
		cfg:              cfg,
		logger:           logger,
		excluded:         excluded,
		stateRel:         stateRel,
		progressReporter: progress.NewProgressReporter(),
	}
}

// SetProgressReporter sets a custom progress reporter
func (s *Scanner) SetProgressReporter(pr *progress.ProgressReporter) {
	s.progressReporter = pr
}

// GetProgressReporter returns the scanner's progress reporter
func (s *Scanner) GetProgressReporter() *progress.ProgressReporter {
	return s.progressReporter
}

// Root returns the project root
func (s *Scanner) Root() string {
	return s.root
}

// IsExcludedDir reports whether a directory at the slash-separated relative
// path is skipped by the walk. An exclude name matches anywhere inside the
// directory name as long as it is not glued to other letters or digits:
// "build" skips build/, build-output/ and app_build/ but not rebuild/,
// ".cache" skips app.cache/, and ".git" does not skip .github/.
func (s *Scanner) IsExcludedDir(rel string) bool {
	if s.stateRel != "" && rel == s.stateRel {
		return true
	}
	name := strings.ToLower(path.Base(rel))
	for _, ex := range s.excluded {
		if containsWord(name, ex) {
			return true
		}
	}
	return false
}

// containsWord reports whether word occurs in name without running into
// letters or digits on either side. A word that starts with punctuation,
// like ".cache", brings its own left boundary.
func containsWord(name, word string) bool {
	openStart := !isWordByte(word[0])
	for from := 0; from <= len(name)-len(word); {
		i := strings.Index(name[from:], word)
		if i < 0 {
			return false
		}
		start, end := from+i, from+i+len(word)
		left := openStart || start == 0 || !isWordByte(name[start-1])
		right := end == len(name) || !isWordByte(name[end])
		if left && right {
			return true
		}
		from = start + 1
	}
	return false
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9' || b >= 0x80
}

// ScanAllFiles walks the project and returns every regular file as a sorted,
// slash-separated path relative to the root. Excluded directories are not
// entered, unreadable directories are logged and skipped, and the walk
// stops early when ctx is cancelled.
func (s *Scanner) ScanAllFiles(ctx context.Context) ([]string, error) {
	info, err := os.Stat(s.root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat project root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("project root is not a directory: %s", s.root)
	}

	startTime := time.Now()
	var files []string

	err = filepath.WalkDir(s.root, func(p string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		if walkErr != nil {
			if p == s.root {
				return walkErr
			}
			s.logger.Warn().Str("path", p).Err(walkErr).Msg("skipping unreadable entry")
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if p == s.root {
			return nil
		}

		rel, err := fsutil.Rel(s.root, p)
		if err != nil {
			return nil
		}

		if d.IsDir() {
			if s.IsExcludedDir(rel) {
				return filepath.SkipDir
			}
			return nil
		}

		// Symlinks, sockets and devices are never cleanup candidates
		if !d.Type().IsRegular() {
			return nil
		}

		files = append(files, rel)
		if len(files)%progressEvery == 0 {
			s.reportProgress(progress.PhaseScanning, "walk", rel, len(files), 0, startTime)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	s.reportProgress(progress.PhaseComplete, "walk", "", len(files), len(files), startTime)

	s.logger.Debug().Int("files", len(files)).Dur("elapsed", time.Since(startTime)).Msg("scan complete")
	return files, nil
}

// IdentifyLargeFiles returns files above the large-file threshold, largest
// first. Files that cannot be stat'ed are logged and skipped.
func (s *Scanner) IdentifyLargeFiles(ctx context.Context, paths []string) ([]LargeFileInfo, error) {
	infos, errs, err := s.statFiles(ctx, "large-files", paths)
	if err != nil {
		return nil, err
	}

	threshold := s.cfg.LargeFileThresholdBytes()

	var large []LargeFileInfo
	for i, rel := range paths {
		if errs[i] != nil {
			s.logger.Warn().Str("path", rel).Err(errs[i]).Msg("failed to stat file")
			continue
		}
		if infos[i].Size() <= threshold {
			continue
		}

		fileType := extOf(rel)
		if fileType == "" {
			fileType = "no-extension"
		}

		large = append(large, LargeFileInfo{
			Path:    rel,
			Size:    infos[i].Size(),
			Type:    fileType,
			ModTime: infos[i].ModTime(),
		})
	}

	sort.Slice(large, func(i, j int) bool {
		if large[i].Size != large[j].Size {
			return large[i].Size > large[j].Size
		}
		return large[i].Path < large[j].Path
	})

	return large, nil
}

// statFiles stats every path on the worker pool. Results line up with
// paths by index.
func (s *Scanner) statFiles(ctx context.Context, stage string, paths []string) ([]os.FileInfo, []error, error) {
	infos := make([]os.FileInfo, len(paths))
	errs := make([]error, len(paths))

	startTime := time.Now()
	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.WorkerCount())

	for i, rel := range paths {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			infos[i], errs[i] = os.Stat(fsutil.Abs(s.root, rel))

			if n := done.Add(1); n%progressEvery == 0 {
				s.reportProgress(progress.PhaseAnalyzing, stage, rel, int(n), len(paths), startTime)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	return infos, errs, nil
}

// reportProgress reports scan progress to listeners
func (s *Scanner) reportProgress(phase progress.Phase, stage, currentPath string, done, total int, startTime time.Time) {
	if s.progressReporter == nil {
		return
	}

	s.progressReporter.UpdateScanProgress(&progress.ScanProgress{
		Phase:       phase,
		Stage:       stage,
		CurrentPath: currentPath,
		FilesDone:   done,
		FilesTotal:  total,
		StartTime:   startTime,
	})
}
