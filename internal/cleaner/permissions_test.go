package cleaner

import (
	"os"
	"testing"

	"github.com/fenilsonani/repotidy/internal/testutil"
)

func TestCanModify(t *testing.T) {
	p := testutil.NewProject(t)
	pm := NewPermissionManager()

	tests := []struct {
		name      string
		setup     func() string // Returns path to test file
		canModify bool
		wantErr   bool
	}{
		{
			name:      "writable file by user",
			setup:     func() string { return p.CreateFile("writable.txt", "test") },
			canModify: true,
		},
		{
			name: "read-only file in writable dir",
			setup: func() string {
				path := p.CreateFile("readonly.txt", "test")
				os.Chmod(path, 0444)
				return path
			},
			canModify: true, // Unlinking needs the parent dir, not the file
		},
		{
			name:      "directory with write permission",
			setup:     func() string { return p.CreateDir("writable-dir") },
			canModify: true,
		},
		{
			name:    "non-existent file",
			setup:   func() string { return p.Path("non-existent.txt") },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := tt.setup()

			ok, err := pm.CanModify(path)
			if tt.wantErr {
				if err == nil {
					t.Errorf("CanModify(%s) expected error", path)
				}
				return
			}
			if err != nil {
				t.Fatalf("CanModify(%s) unexpected error: %v", path, err)
			}
			if ok != tt.canModify {
				t.Errorf("CanModify(%s) = %v, want %v", path, ok, tt.canModify)
			}
		})
	}
}

func TestCanModifyReadOnlyDir(t *testing.T) {
	testutil.SkipIfRoot(t)

	p := testutil.NewProject(t)
	p.CreateFile("locked/file.txt", "test")
	p.CreateReadOnlyDir("locked")

	ok, err := NewPermissionManager().CanModify(p.Path("locked/file.txt"))
	if err != nil {
		t.Fatalf("CanModify unexpected error: %v", err)
	}
	if ok {
		t.Error("file in a read-only directory should not be modifiable")
	}
}

func TestPermissionManager_AnalyzePermissions(t *testing.T) {
	testutil.SkipIfRoot(t)

	p := testutil.NewProject(t)
	normal := p.CreateFile("normal.txt", "test")
	locked := p.CreateFile("locked/file.txt", "test")
	p.CreateReadOnlyDir("locked")
	missing := p.Path("missing.txt")

	report := NewPermissionManager().AnalyzePermissions([]string{normal, locked, missing})

	if len(report.Writable) != 1 || report.Writable[0] != normal {
		t.Errorf("Writable = %v, want [%s]", report.Writable, normal)
	}
	if len(report.ReadOnly) != 1 || report.ReadOnly[0] != locked {
		t.Errorf("ReadOnly = %v, want [%s]", report.ReadOnly, locked)
	}
	if len(report.Missing) != 1 || report.Missing[0] != missing {
		t.Errorf("Missing = %v, want [%s]", report.Missing, missing)
	}
	if len(report.Inaccessible) != 0 {
		t.Errorf("Inaccessible = %v, want none", report.Inaccessible)
	}
}

func TestPermissionManager_IsRunningAsRoot(t *testing.T) {
	pm := NewPermissionManager()
	if pm.IsRunningAsRoot() != testutil.IsRoot() {
		t.Errorf("IsRunningAsRoot() = %v, want %v", pm.IsRunningAsRoot(), testutil.IsRoot())
	}
}
