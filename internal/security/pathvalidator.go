package security

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/fenilsonani/repotidy/internal/fsutil"
)

// PathValidator handles secure path validation for file operations inside
// a project root. Paths are project-relative and slash-separated.
type PathValidator struct {
	root           string
	resolvedRoot   string
	protectedPaths []string
}

// NewPathValidator creates a validator for root. VCS metadata is always
// protected; protected adds more project-relative files or directories.
func NewPathValidator(root string, protected ...string) *PathValidator {
	resolved, err := filepath.EvalSymlinks(root)
	if err != nil {
		resolved = root
	}

	pv := &PathValidator{
		root:         filepath.Clean(root),
		resolvedRoot: filepath.Clean(resolved),
		protectedPaths: []string{
			".git",
			".hg",
			".svn",
		},
	}
	for _, p := range protected {
		pv.AddProtectedPath(p)
	}
	return pv
}

// ValidatePathForDeletion performs comprehensive validation on a path before deletion
// This is the single source of truth for all path validation in the application
func (pv *PathValidator) ValidatePathForDeletion(rel string) error {
	if err := pv.validateRelative(rel); err != nil {
		return err
	}

	abs := fsutil.Abs(pv.root, rel)
	info, err := os.Lstat(abs)
	if err != nil {
		return err
	}

	// Only regular files are ever deleted; a symlink swapped in after the
	// scan is refused rather than followed
	if !info.Mode().IsRegular() {
		return fmt.Errorf("refusing to delete non-regular file: %s (%s)", rel, describeMode(info.Mode()))
	}

	return pv.checkResolvedParent(rel)
}

// ValidateDestination validates a path a file is about to be written to.
// The destination must not exist yet.
func (pv *PathValidator) ValidateDestination(rel string) error {
	if err := pv.validateRelative(rel); err != nil {
		return err
	}

	if _, err := os.Lstat(fsutil.Abs(pv.root, rel)); err == nil {
		return fmt.Errorf("destination %s: %w", rel, fs.ErrExist)
	}

	return pv.checkResolvedParent(rel)
}

func (pv *PathValidator) validateRelative(rel string) error {
	if rel == "" {
		return fmt.Errorf("path must not be empty")
	}

	// Control characters never appear in files this tool created a plan for
	for _, char := range []string{"\x00", "\n", "\r"} {
		if strings.Contains(rel, char) {
			return fmt.Errorf("path contains dangerous characters: %q", rel)
		}
	}

	if filepath.IsAbs(rel) || path.IsAbs(rel) {
		return fmt.Errorf("path must be project-relative: %s", rel)
	}

	// A cleaned path that differs from the input hides traversal
	if fsutil.ToSlash(rel) != rel {
		return fmt.Errorf("path contains suspicious elements: %s", rel)
	}

	if !fsutil.WithinRoot(rel) {
		return fmt.Errorf("path escapes the project root: %s", rel)
	}

	if pv.IsProtectedPath(rel) {
		return fmt.Errorf("refusing to touch protected path: %s", rel)
	}

	return nil
}

// checkResolvedParent resolves the nearest existing ancestor of rel and
// verifies it is still inside the root. This prevents attacks through a
// symlinked directory pointing outside the project.
func (pv *PathValidator) checkResolvedParent(rel string) error {
	dir := filepath.Dir(fsutil.Abs(pv.root, rel))

	for {
		resolved, err := filepath.EvalSymlinks(dir)
		if err == nil {
			if resolved != pv.resolvedRoot && !strings.HasPrefix(resolved, pv.resolvedRoot+string(filepath.Separator)) {
				return fmt.Errorf("path resolves outside the project root: %s", rel)
			}
			return nil
		}
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to resolve symlinks: %w", err)
		}

		parent := filepath.Dir(dir)
		if parent == dir || !strings.HasPrefix(parent, pv.root) {
			return nil
		}
		dir = parent
	}
}

// IsProtectedPath checks if a path is, or lies under, a protected path
func (pv *PathValidator) IsProtectedPath(rel string) bool {
	clean := fsutil.ToSlash(rel)
	for _, protected := range pv.protectedPaths {
		if clean == protected || strings.HasPrefix(clean, protected+"/") {
			return true
		}
	}
	return false
}

// AddProtectedPath adds a custom protected path. Paths outside the root
// are ignored.
func (pv *PathValidator) AddProtectedPath(p string) {
	if filepath.IsAbs(p) {
		rel, err := fsutil.Rel(pv.root, p)
		if err != nil {
			return
		}
		p = rel
	}

	clean := fsutil.ToSlash(p)
	if clean == "." || clean == "" || !fsutil.WithinRoot(clean) {
		return
	}
	pv.protectedPaths = append(pv.protectedPaths, clean)
}

func describeMode(mode os.FileMode) string {
	switch {
	case mode&os.ModeSymlink != 0:
		return "symlink"
	case mode.IsDir():
		return "directory"
	case mode&os.ModeNamedPipe != 0:
		return "named pipe"
	case mode&os.ModeSocket != 0:
		return "socket"
	case mode&os.ModeDevice != 0:
		return "device"
	default:
		return "special file"
	}
}
