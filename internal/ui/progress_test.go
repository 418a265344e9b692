package ui

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fenilsonani/repotidy/internal/planner"
	"github.com/fenilsonani/repotidy/internal/progress"
)

func TestPrintPlanTree(t *testing.T) {
	plan := &planner.Plan{
		Phases: []planner.Phase{
			{Name: planner.PhaseTemporaryCleanup, FilesToRemove: []string{"temp/a.tmp", "temp/b.tmp"}, FilesToArchive: []string{"logs/error.log"}},
			{Name: planner.PhaseDocumentation},
			{Name: planner.PhaseFolders, FilesToMove: []planner.FileMove{{From: "settings.json", To: "config/settings.json"}}},
		},
		RiskLevel: planner.RiskLow,
	}

	var buf bytes.Buffer
	PrintPlanTree(&buf, plan)
	out := buf.String()

	for _, want := range []string{"📁 temp", "a.tmp", "📁 logs", "error.log", "📁 .", "settings.json", "Total: 4 files"} {
		if !strings.Contains(out, want) {
			t.Errorf("tree should contain %q, got:\n%s", want, out)
		}
	}
	if strings.Contains(out, planner.PhaseDocumentation) {
		t.Error("empty phases should be left out")
	}
}

func TestPrintPlanTreeCapsFiles(t *testing.T) {
	var files []string
	for _, c := range "abcdefg" {
		files = append(files, "temp/"+string(c)+".tmp")
	}
	plan := &planner.Plan{Phases: []planner.Phase{{Name: planner.PhaseTemporaryCleanup, FilesToRemove: files}}}

	var buf bytes.Buffer
	PrintPlanTree(&buf, plan)
	if !strings.Contains(buf.String(), "... and 2 more files") {
		t.Errorf("expected overflow line, got:\n%s", buf.String())
	}
}

func TestLiveProgressRender(t *testing.T) {
	var buf bytes.Buffer
	lp := &LiveProgress{out: &buf, termWidth: 200, enabled: true}

	lp.render(&progress.ExecuteProgress{
		Phase:        progress.PhaseComplete,
		CleanupPhase: planner.PhaseScripts,
		Removed:      2,
		StartTime:    time.Now(),
	})

	out := buf.String()
	if !strings.Contains(out, "script-cleanup complete: 2 removed") {
		t.Errorf("unexpected render: %q", out)
	}
	if !strings.HasSuffix(out, "\n") {
		t.Error("a final update should end the line")
	}

	buf.Reset()
	lp.render("not an update")
	if buf.Len() != 0 {
		t.Error("unknown updates should be ignored")
	}
}

func TestLiveProgressWatch(t *testing.T) {
	var buf syncBuffer
	lp := &LiveProgress{out: &buf, termWidth: 200, enabled: true}
	pr := progress.NewProgressReporter()

	lp.Watch(pr)
	pr.UpdateScanProgress(&progress.ScanProgress{Phase: progress.PhaseComplete, FilesDone: 7, StartTime: time.Now()})

	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(buf.String(), "Scan complete: 7 files") {
		if time.Now().After(deadline) {
			t.Fatalf("update never rendered, got %q", buf.String())
		}
		time.Sleep(10 * time.Millisecond)
	}
	lp.Stop()
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdefghij", 8); got != "abcde..." {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("short", 80); got != "short" {
		t.Errorf("truncate = %q", got)
	}
}

// syncBuffer is a bytes.Buffer safe for the watcher goroutine
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
