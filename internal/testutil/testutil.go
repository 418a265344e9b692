// Package testutil provides test helpers and fixtures for repotidy tests.
// All file operations use t.TempDir() for safe, isolated testing.
package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"testing"
	"time"
)

// Project is a throwaway source tree rooted in a temp directory
type Project struct {
	T       *testing.T
	RootDir string // Root temp directory (auto-cleaned)
}

// NewProject creates an empty project fixture
func NewProject(t *testing.T) *Project {
	t.Helper()
	return &Project{T: t, RootDir: t.TempDir()}
}

// =============================================================================
// File Creation Helpers
// =============================================================================

// CreateFile creates a file at a slash-separated relative path and returns
// its absolute path
func (p *Project) CreateFile(relPath string, content string) string {
	p.T.Helper()

	fullPath := p.Path(relPath)
	dir := filepath.Dir(fullPath)

	if err := os.MkdirAll(dir, 0755); err != nil {
		p.T.Fatalf("failed to create directory %s: %v", dir, err)
	}

	if err := os.WriteFile(fullPath, []byte(content), 0644); err != nil {
		p.T.Fatalf("failed to create file %s: %v", fullPath, err)
	}

	return fullPath
}

// CreateFileWithAge creates a file and sets its modification time to the past
func (p *Project) CreateFileWithAge(relPath string, content string, age time.Duration) string {
	p.T.Helper()

	fullPath := p.CreateFile(relPath, content)
	oldTime := time.Now().Add(-age)

	if err := os.Chtimes(fullPath, oldTime, oldTime); err != nil {
		p.T.Fatalf("failed to set file time for %s: %v", fullPath, err)
	}

	return fullPath
}

// CreateSizedFile creates a file of exactly size bytes
func (p *Project) CreateSizedFile(relPath string, size int) string {
	p.T.Helper()
	return p.CreateFile(relPath, strings.Repeat("x", size))
}

// CreateFiles creates every relPath -> content pair
func (p *Project) CreateFiles(files map[string]string) {
	p.T.Helper()
	for rel, content := range files {
		p.CreateFile(rel, content)
	}
}

// WriteManifest writes a package.json with the given scripts
func (p *Project) WriteManifest(name string, scripts map[string]string) string {
	p.T.Helper()

	manifest := map[string]interface{}{
		"name":    name,
		"version": "1.0.0",
	}
	if scripts != nil {
		manifest["scripts"] = scripts
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		p.T.Fatalf("failed to marshal manifest: %v", err)
	}

	return p.CreateFile("package.json", string(data))
}

// CreateDir creates a directory and returns its path
func (p *Project) CreateDir(relPath string) string {
	p.T.Helper()

	fullPath := p.Path(relPath)
	if err := os.MkdirAll(fullPath, 0755); err != nil {
		p.T.Fatalf("failed to create directory %s: %v", fullPath, err)
	}

	return fullPath
}

// CreateSymlink creates a symbolic link at linkPath pointing to target
func (p *Project) CreateSymlink(target, linkPath string) string {
	p.T.Helper()

	fullLinkPath := p.Path(linkPath)
	if err := os.MkdirAll(filepath.Dir(fullLinkPath), 0755); err != nil {
		p.T.Fatalf("failed to create directory for %s: %v", fullLinkPath, err)
	}

	if err := os.Symlink(target, fullLinkPath); err != nil {
		p.T.Fatalf("failed to create symlink %s -> %s: %v", fullLinkPath, target, err)
	}

	return fullLinkPath
}

// CreateUnreadableDir creates a directory with no permissions. Permissions
// are restored on cleanup so TempDir removal works.
func (p *Project) CreateUnreadableDir(relPath string) string {
	p.T.Helper()

	dirPath := p.CreateDir(relPath)
	p.CreateFile(filepath.Join(relPath, "hidden.txt"), "hidden")
	if err := os.Chmod(dirPath, 0000); err != nil {
		p.T.Fatalf("failed to chmod directory %s: %v", dirPath, err)
	}

	p.T.Cleanup(func() {
		os.Chmod(dirPath, 0755)
	})

	return dirPath
}

// CreateReadOnlyDir makes a directory read-only so files inside can't be
// deleted
func (p *Project) CreateReadOnlyDir(relPath string) string {
	p.T.Helper()

	dirPath := p.CreateDir(relPath)
	if err := os.Chmod(dirPath, 0555); err != nil {
		p.T.Fatalf("failed to chmod directory %s: %v", dirPath, err)
	}

	p.T.Cleanup(func() {
		os.Chmod(dirPath, 0755)
	})

	return dirPath
}

// =============================================================================
// Path Helpers
// =============================================================================

// Path returns the full path for a slash-separated relative path
func (p *Project) Path(relPath string) string {
	return filepath.Join(p.RootDir, filepath.FromSlash(relPath))
}

// ReadFile returns the content of a relative path
func (p *Project) ReadFile(relPath string) string {
	p.T.Helper()

	data, err := os.ReadFile(p.Path(relPath))
	if err != nil {
		p.T.Fatalf("failed to read %s: %v", relPath, err)
	}
	return string(data)
}

// Snapshot returns relPath -> content for every regular file under the
// root, skipping the directories named in skip
func (p *Project) Snapshot(skip ...string) map[string]string {
	p.T.Helper()

	skipSet := make(map[string]bool, len(skip))
	for _, s := range skip {
		skipSet[s] = true
	}

	files := make(map[string]string)
	err := filepath.Walk(p.RootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if path != p.RootDir && skipSet[info.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		rel, _ := filepath.Rel(p.RootDir, path)
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	if err != nil {
		p.T.Fatalf("failed to snapshot project: %v", err)
	}

	return files
}

// =============================================================================
// Assertion Helpers
// =============================================================================

// Exists reports whether a relative path exists
func (p *Project) Exists(relPath string) bool {
	_, err := os.Lstat(p.Path(relPath))
	return err == nil
}

// AssertFileExists fails the test if the file doesn't exist
func (p *Project) AssertFileExists(relPath string) {
	p.T.Helper()
	if !p.Exists(relPath) {
		p.T.Errorf("expected file to exist: %s", relPath)
	}
}

// AssertFileNotExists fails the test if the file exists
func (p *Project) AssertFileNotExists(relPath string) {
	p.T.Helper()
	if p.Exists(relPath) {
		p.T.Errorf("expected file to not exist: %s", relPath)
	}
}

// AssertFileContent fails the test unless the file holds exactly want
func (p *Project) AssertFileContent(relPath, want string) {
	p.T.Helper()
	data, err := os.ReadFile(p.Path(relPath))
	if err != nil {
		p.T.Errorf("failed to read %s: %v", relPath, err)
		return
	}
	if string(data) != want {
		p.T.Errorf("file %s has content %q, want %q", relPath, string(data), want)
	}
}

// =============================================================================
// Utility Functions
// =============================================================================

// SortedKeys returns the keys of a string set in order
func SortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// IsRoot returns true if running as root/admin
func IsRoot() bool {
	return os.Geteuid() == 0
}

// SkipIfRoot skips the test if running as root
func SkipIfRoot(t *testing.T) {
	t.Helper()
	if IsRoot() {
		t.Skip("skipping test when running as root")
	}
}

// SkipOnWindows skips permission-dependent tests on Windows
func SkipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("skipping test on windows")
	}
}

// DangerousRelPaths returns relative paths that must be rejected by the
// path validator
func DangerousRelPaths() []string {
	return []string{
		"../../../etc/passwd",
		"../outside.txt",
		"src/../../escape.js",
		"file\x00.txt",
		"",
	}
}
