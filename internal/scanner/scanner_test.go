package scanner

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/fenilsonani/repotidy/internal/config"
	"github.com/fenilsonani/repotidy/internal/logging"
	"github.com/fenilsonani/repotidy/internal/testutil"
)

func newTestScanner(t *testing.T, p *testutil.Project) *Scanner {
	t.Helper()
	cfg := config.GetDefault()
	cfg.Workers = 4
	return New(p.RootDir, cfg, logging.Discard())
}

// =============================================================================
// ScanAllFiles Tests
// =============================================================================

func TestScanAllFilesExcludesDirectories(t *testing.T) {
	p := testutil.NewProject(t)
	p.CreateFiles(map[string]string{
		"src/index.ts":                 "export {}",
		"README.md":                    "# app",
		"node_modules/lodash/index.js": "module.exports = {}",
		".git/HEAD":                    "ref: refs/heads/main",
		"dist/bundle.js":               "bundle",
		"coverage/lcov.info":           "lcov",
		".github/workflows/ci.yml":     "on: push",
		".repotidy/rollback/x.json":    "{}",
		"packages/a/build/out.js":      "nested build output",
	})

	s := newTestScanner(t, p)
	files, err := s.ScanAllFiles(context.Background())
	if err != nil {
		t.Fatalf("ScanAllFiles failed: %v", err)
	}

	want := []string{".github/workflows/ci.yml", "README.md", "src/index.ts"}
	if !reflect.DeepEqual(files, want) {
		t.Errorf("ScanAllFiles() = %v, want %v", files, want)
	}
}

func TestScanAllFilesExcludesNameVariants(t *testing.T) {
	p := testutil.NewProject(t)
	p.CreateFiles(map[string]string{
		"build-output/bundle.js": "bundle",
		"dist_old/app.js":        "old bundle",
		"Coverage.Report/x.html": "report",
		"app.cache/entry":        "cached",
		"rebuild/notes.md":       "not a build dir",
		"distribution/terms.md":  "legal",
		"scripts/build.sh":       "#!/bin/sh",
		"src/main.ts":            "export {}",
	})

	files, err := newTestScanner(t, p).ScanAllFiles(context.Background())
	if err != nil {
		t.Fatalf("ScanAllFiles failed: %v", err)
	}

	want := []string{"distribution/terms.md", "rebuild/notes.md", "scripts/build.sh", "src/main.ts"}
	if !reflect.DeepEqual(files, want) {
		t.Errorf("ScanAllFiles() = %v, want %v", files, want)
	}
}

func TestIsExcludedDir(t *testing.T) {
	s := newTestScanner(t, testutil.NewProject(t))

	tests := []struct {
		rel  string
		want bool
	}{
		{"node_modules", true},
		{"packages/a/node_modules", true},
		{"build", true},
		{"build-output", true},
		{"app_build", true},
		{"dist.old", true},
		{".next", true},
		{"app.cache", true},
		{".repotidy", true},
		{"rebuild", false},
		{"distribution", false},
		{".github", false},
		{"src", false},
	}

	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			if got := s.IsExcludedDir(tt.rel); got != tt.want {
				t.Errorf("IsExcludedDir(%q) = %v, want %v", tt.rel, got, tt.want)
			}
		})
	}
}

func TestScanAllFilesSkipsSymlinks(t *testing.T) {
	testutil.SkipOnWindows(t)

	p := testutil.NewProject(t)
	p.CreateFile("real.txt", "data")
	p.CreateSymlink(p.Path("real.txt"), "link.txt")

	files, err := newTestScanner(t, p).ScanAllFiles(context.Background())
	if err != nil {
		t.Fatalf("ScanAllFiles failed: %v", err)
	}

	if !reflect.DeepEqual(files, []string{"real.txt"}) {
		t.Errorf("ScanAllFiles() = %v, want only real.txt", files)
	}
}

func TestScanAllFilesSkipsUnreadableDirectory(t *testing.T) {
	testutil.SkipIfRoot(t)
	testutil.SkipOnWindows(t)

	p := testutil.NewProject(t)
	p.CreateFile("visible.md", "hi")
	p.CreateUnreadableDir("locked")

	files, err := newTestScanner(t, p).ScanAllFiles(context.Background())
	if err != nil {
		t.Fatalf("unreadable subtree should not be fatal: %v", err)
	}

	if !reflect.DeepEqual(files, []string{"visible.md"}) {
		t.Errorf("ScanAllFiles() = %v, want [visible.md]", files)
	}
}

func TestScanAllFilesCancelled(t *testing.T) {
	p := testutil.NewProject(t)
	p.CreateFile("a.txt", "a")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := newTestScanner(t, p).ScanAllFiles(ctx); err == nil {
		t.Error("expected error from cancelled scan")
	}
}

func TestScanAllFilesMissingRoot(t *testing.T) {
	cfg := config.GetDefault()
	s := New("/nonexistent/repotidy/root", cfg, logging.Discard())

	if _, err := s.ScanAllFiles(context.Background()); err == nil {
		t.Error("expected error for missing root")
	}
}

// =============================================================================
// CategorizeFiles Tests
// =============================================================================

func TestCategorize(t *testing.T) {
	tests := []struct {
		path string
		want Category
		ok   bool
	}{
		{"server.log", CategoryLogs, true},
		{"logs/app.log.1", CategoryLogs, true},
		{"npm-debug.log.123", CategoryLogs, true},
		{"docs/server.log", CategoryLogs, true},
		{"README.md", CategoryDocumentation, true},
		{"docs/notes.txt", CategoryDocumentation, true},
		{"notes.txt", "", false},
		{"scripts/deploy.js", CategoryScripts, true},
		{"build.sh", CategoryScripts, true},
		{"tools/gen.py", CategoryScripts, true},
		{"src/app.js", "", false},
		{"src/app.test.ts", CategoryTests, true},
		{"pkg/util_test.go", CategoryTests, true},
		{"__tests__/render.tsx", CategoryTests, true},
		{"test_parser.py", CategoryTests, true},
		{"tsconfig.json", CategoryConfiguration, true},
		{".eslintrc.js", CategoryConfiguration, true},
		{".env.local", CategoryConfiguration, true},
		{"webpack.config.js", CategoryConfiguration, true},
		{"temp/cache.tmp", CategoryTemporary, true},
		{"~lockfile", CategoryTemporary, true},
		{"tmp/upload.bin", CategoryTemporary, true},
		{"src/main.go", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, ok := Categorize(tt.path)
			if ok != tt.ok || got != tt.want {
				t.Errorf("Categorize(%q) = (%q, %v), want (%q, %v)", tt.path, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestCategorizeFilesIsExclusive(t *testing.T) {
	p := testutil.NewProject(t)
	s := newTestScanner(t, p)

	paths := []string{
		"scripts/test_config.sh", // script rule precedes tests and configuration
		"tests/fixtures/config.json",
		"docs/setup.md",
		"app.log",
		"tmp/x.tmp",
	}

	categories := s.CategorizeFiles(paths)

	seen := make(map[string]Category)
	for c, files := range categories {
		for _, f := range files {
			if prev, dup := seen[f]; dup {
				t.Errorf("%s in both %s and %s", f, prev, c)
			}
			seen[f] = c
		}
	}

	if c, _ := categories.CategoryOf("scripts/test_config.sh"); c != CategoryScripts {
		t.Errorf("scripts/test_config.sh categorized as %q, want scripts", c)
	}
	if c, _ := categories.CategoryOf("tests/fixtures/config.json"); c != CategoryTests {
		t.Errorf("tests/fixtures/config.json categorized as %q, want tests", c)
	}
	if categories.Count() != len(paths) {
		t.Errorf("Count() = %d, want %d", categories.Count(), len(paths))
	}
}

// =============================================================================
// IdentifyLargeFiles Tests
// =============================================================================

func TestIdentifyLargeFilesSortedDescending(t *testing.T) {
	p := testutil.NewProject(t)
	p.CreateSizedFile("small.txt", 10)
	p.CreateSizedFile("assets/video.mp4", 3*1024)
	p.CreateSizedFile("data/dump", 2*1024)
	p.CreateSizedFile("b.bin", 2*1024)

	s := newTestScanner(t, p)
	s.cfg.LargeFileThreshold = "1KB"

	paths := []string{"small.txt", "assets/video.mp4", "data/dump", "b.bin", "missing.bin"}
	large, err := s.IdentifyLargeFiles(context.Background(), paths)
	if err != nil {
		t.Fatalf("IdentifyLargeFiles failed: %v", err)
	}

	if len(large) != 3 {
		t.Fatalf("expected 3 large files, got %d: %+v", len(large), large)
	}

	wantOrder := []string{"assets/video.mp4", "b.bin", "data/dump"}
	for i, want := range wantOrder {
		if large[i].Path != want {
			t.Errorf("large[%d] = %s, want %s", i, large[i].Path, want)
		}
	}

	if large[0].Type != ".mp4" {
		t.Errorf("Type = %q, want .mp4", large[0].Type)
	}
	if large[2].Type != "no-extension" {
		t.Errorf("Type = %q, want no-extension", large[2].Type)
	}
}

// =============================================================================
// IdentifyObsoleteFiles Tests
// =============================================================================

func TestIdentifyObsoleteFiles(t *testing.T) {
	p := testutil.NewProject(t)
	old := 60 * 24 * time.Hour

	p.CreateFile("server.log", "x")
	p.CreateFile("notes.bak", "x")
	p.CreateFile("old_guide.md", "DEPRECATED: use the new guide")
	p.CreateFile("deprecated-api.md", "x")
	p.CreateFile("analysis-2024.json", "{}")
	p.CreateFile("report.json", "{}")
	p.CreateFile("backup.sql", "x")
	p.CreateFile("template.html", "x") // temp* must not match template
	p.CreateFile("golden.txt", "x")    // old* only as a leading token
	p.CreateFile("older.md", "x")      // old* needs a separator
	p.CreateFile("patch.orig", "x")    // recent, age-gated
	p.CreateFileWithAge("merge.orig", "x", old)
	p.CreateFile("src/index.ts", "x")

	s := newTestScanner(t, p)
	paths := []string{
		"server.log", "notes.bak", "old_guide.md", "deprecated-api.md",
		"analysis-2024.json", "report.json", "backup.sql", "template.html",
		"golden.txt", "older.md", "patch.orig", "merge.orig", "src/index.ts",
		"vanished.txt",
	}

	obsolete, err := s.IdentifyObsoleteFiles(context.Background(), paths)
	if err != nil {
		t.Fatalf("IdentifyObsoleteFiles failed: %v", err)
	}

	want := []string{
		"analysis-2024.json",
		"backup.sql",
		"deprecated-api.md",
		"merge.orig",
		"notes.bak",
		"old_guide.md",
		"report.json",
		"server.log",
		"vanished.txt", // stat failure is treated as obsolete
	}
	if !reflect.DeepEqual(obsolete, want) {
		t.Errorf("IdentifyObsoleteFiles() = %v, want %v", obsolete, want)
	}
}

// =============================================================================
// IdentifyDuplicates Tests
// =============================================================================

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		path        string
		wantKey     string
		wantMarkers int
	}{
		{"docs/guide.md", "guide.md", 0},
		{"guide_v2.md", "guide.md", 0},
		{"guide_v2_old.md", "guide.md", 1},
		{"Guide (1).md", "guide.md", 1},
		{"setup copy.md", "setup.md", 1},
		{"setup-backup-2023.md", "setup.md", 1},
		{"final_report_new.md", "report.md", 0},
		{"old.md", "", 1},
		{"2024.md", "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			key, markers := normalizeName(tt.path)
			if key != tt.wantKey {
				t.Errorf("key = %q, want %q", key, tt.wantKey)
			}
			if len(markers) != tt.wantMarkers {
				t.Errorf("markers = %v, want %d", markers, tt.wantMarkers)
			}
		})
	}
}

func TestIdentifyDuplicatesRequiresMarker(t *testing.T) {
	s := newTestScanner(t, testutil.NewProject(t))

	groups := s.IdentifyDuplicates([]string{
		"guide.md",
		"guide_v2_old.md",
		"src/index.ts",
		"lib/index.ts", // same name, no marker
		"api.md",
		"docs/api copy.md",
		"docs/api.old.md",
	})

	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d: %+v", len(groups), groups)
	}

	api := groups[0]
	if api.Key != "api.md" {
		t.Fatalf("groups[0].Key = %q, want api.md", api.Key)
	}
	if api.Files[0] != "api.md" {
		t.Errorf("unmarked original should be first, got %v", api.Files)
	}
	if api.Reason != "copy" {
		t.Errorf("Reason = %q, want copy", api.Reason)
	}

	guide := groups[1]
	if !reflect.DeepEqual(guide.Files, []string{"guide.md", "guide_v2_old.md"}) {
		t.Errorf("guide group = %v", guide.Files)
	}
	if guide.Reason != "old" {
		t.Errorf("Reason = %q, want old", guide.Reason)
	}
	if guide.Similarity <= 0 || guide.Similarity >= 1 {
		t.Errorf("Similarity = %f, want in (0,1)", guide.Similarity)
	}
}

func TestIdentifyDuplicatesIgnoresVersionOnly(t *testing.T) {
	s := newTestScanner(t, testutil.NewProject(t))

	if groups := s.IdentifyDuplicates([]string{"guide.md", "guide_v2.md", "guide v3.md"}); len(groups) != 0 {
		t.Errorf("version-only collisions should not group, got %+v", groups)
	}

	groups := s.IdentifyDuplicates([]string{"guide.md", "guide_v2.md", "guide.backup.md"})
	if len(groups) != 1 || len(groups[0].Files) != 3 {
		t.Fatalf("expected one group of 3, got %+v", groups)
	}
	if groups[0].Reason != "backup" {
		t.Errorf("Reason = %q, want backup", groups[0].Reason)
	}
}

func TestScanIsIdempotent(t *testing.T) {
	p := testutil.NewProject(t)
	p.CreateFiles(map[string]string{
		"README.md":        "# readme",
		"guide.md":         "guide",
		"guide.backup.md":  "guide",
		"temp/cache.tmp":   "tmp",
		"logs/app.log":     "log",
		"scripts/build.sh": "#!/bin/sh",
	})

	s := newTestScanner(t, p)
	ctx := context.Background()

	run := func() (FileCategoryMap, []string, []DuplicateGroup) {
		files, err := s.ScanAllFiles(ctx)
		if err != nil {
			t.Fatalf("ScanAllFiles failed: %v", err)
		}
		obsolete, err := s.IdentifyObsoleteFiles(ctx, files)
		if err != nil {
			t.Fatalf("IdentifyObsoleteFiles failed: %v", err)
		}
		return s.CategorizeFiles(files), obsolete, s.IdentifyDuplicates(files)
	}

	c1, o1, d1 := run()
	c2, o2, d2 := run()

	if !reflect.DeepEqual(c1, c2) || !reflect.DeepEqual(o1, o2) || !reflect.DeepEqual(d1, d2) {
		t.Error("scan results differ between identical runs")
	}
}
