// Package backup copies files into the archive before anything destroys
// them. Archives live under <state>/archive/<run-stamp>/<relative path>;
// a path archived twice in one run gets a numeric suffix, so concurrent
// archivals never collide.
package backup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/phuslu/log"
	"github.com/shirou/gopsutil/v4/disk"

	"github.com/fenilsonani/repotidy/internal/fsutil"
	"github.com/fenilsonani/repotidy/pkg/utils"
)

// ErrInsufficientSpace is returned when the archive volume cannot hold the file
var ErrInsufficientSpace = errors.New("insufficient disk space for archive")

// maxSuffix bounds the collision search for a single path
const maxSuffix = 1000

// logName is the per-run audit log inside the archive directory
const logName = "archive.log"

// Result describes a successful archival
type Result struct {
	Path         string `json:"path"`
	ArchivedPath string `json:"archived_path"`
	Reason       string `json:"reason"`
	Checksum     string `json:"checksum"`
	Size         int64  `json:"size"`
}

// System archives project files
type System struct {
	root   string
	dir    string
	logger *log.Logger

	mu sync.Mutex // guards the audit log

	// freeSpace reports free bytes on the volume holding path
	freeSpace func(path string) (uint64, error)
}

// New creates a backup system archiving files of root under
// <stateDir>/archive/<run-stamp>
func New(root, stateDir string, logger *log.Logger) *System {
	stamp := time.Now().Format("20060102-150405")
	return &System{
		root:      root,
		dir:       filepath.Join(stateDir, "archive", stamp),
		logger:    logger,
		freeSpace: diskFree,
	}
}

// Dir returns the archive directory of this run
func (s *System) Dir() string {
	return s.dir
}

// ArchiveFile copies the project-relative file rel into the archive and
// verifies the copy. The original is left untouched.
func (s *System) ArchiveFile(rel, reason string) (Result, error) {
	src := fsutil.Abs(s.root, rel)

	info, err := os.Lstat(src)
	if err != nil {
		return Result{}, fmt.Errorf("failed to stat %s: %w", rel, err)
	}
	if !info.Mode().IsRegular() {
		return Result{}, fmt.Errorf("cannot archive %s: not a regular file", rel)
	}

	if err := s.checkSpace(info.Size()); err != nil {
		return Result{}, err
	}

	checksum, err := utils.HashFile(src)
	if err != nil {
		return Result{}, fmt.Errorf("failed to hash %s: %w", rel, err)
	}

	target, size, err := s.copyUnique(src, filepath.Join(s.dir, filepath.FromSlash(fsutil.ToSlash(rel))))
	if err != nil {
		return Result{}, fmt.Errorf("failed to archive %s: %w", rel, err)
	}

	if err := utils.VerifyFile(target, checksum); err != nil {
		os.Remove(target)
		return Result{}, fmt.Errorf("archive verification failed for %s: %w", rel, err)
	}

	result := Result{
		Path:         rel,
		ArchivedPath: target,
		Reason:       reason,
		Checksum:     checksum,
		Size:         size,
	}

	s.appendLog(result)
	s.logger.Debug().Str("path", rel).Str("archive", target).Str("reason", reason).Msg("file archived")

	return result, nil
}

// Restore copies an archived file back to the project-relative path rel,
// replacing whatever is there
func (s *System) Restore(archivedPath, rel string) error {
	if _, err := os.Stat(archivedPath); err != nil {
		return fmt.Errorf("backup unavailable: %w", err)
	}

	dst := fsutil.Abs(s.root, rel)
	if _, err := fsutil.CopyFile(archivedPath, dst, false); err != nil {
		return fmt.Errorf("failed to restore %s: %w", rel, err)
	}

	equal, err := utils.FilesEqual(archivedPath, dst)
	if err != nil {
		return fmt.Errorf("failed to verify restored %s: %w", rel, err)
	}
	if !equal {
		return fmt.Errorf("restored %s differs from its backup", rel)
	}
	return nil
}

// copyUnique copies src to target, or to target.N when target exists
func (s *System) copyUnique(src, target string) (string, int64, error) {
	candidate := target
	for i := 1; i <= maxSuffix; i++ {
		n, err := fsutil.CopyFile(src, candidate, true)
		if err == nil {
			return candidate, n, nil
		}
		if !os.IsExist(err) {
			return "", 0, err
		}
		candidate = target + "." + strconv.Itoa(i)
	}
	return "", 0, fmt.Errorf("too many archived copies of %s", target)
}

// checkSpace refuses the archival when the archive volume is too small.
// An unknown free-space figure does not block.
func (s *System) checkSpace(size int64) error {
	if s.freeSpace == nil {
		return nil
	}

	free, err := s.freeSpace(existingAncestor(s.dir))
	if err != nil {
		s.logger.Debug().Err(err).Msg("free space unavailable, skipping preflight")
		return nil
	}
	if free < uint64(size) {
		return fmt.Errorf("%w: need %s, have %s", ErrInsufficientSpace,
			utils.FormatBytes(size), utils.FormatBytes(int64(free)))
	}
	return nil
}

func (s *System) appendLog(r Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return
	}
	f, err := os.OpenFile(filepath.Join(s.dir, logName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to open archive log")
		return
	}
	defer f.Close()

	fmt.Fprintf(f, "%s\t%s\t%s\t%s\n", time.Now().Format(time.RFC3339), r.Path, r.ArchivedPath, r.Reason)
}

func diskFree(path string) (uint64, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return 0, err
	}
	return usage.Free, nil
}

// existingAncestor walks up from p to the first directory that exists
func existingAncestor(p string) string {
	for {
		if _, err := os.Stat(p); err == nil {
			return p
		}
		parent := filepath.Dir(p)
		if parent == p {
			return p
		}
		p = parent
	}
}
