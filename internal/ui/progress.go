package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"

	"github.com/fenilsonani/repotidy/internal/planner"
	"github.com/fenilsonani/repotidy/internal/progress"
	"github.com/fenilsonani/repotidy/internal/ui/styles"
	"github.com/fenilsonani/repotidy/pkg/utils"
)

// LiveProgress redraws a single status line from a ProgressReporter's
// updates. It is disabled when the output is not a terminal.
type LiveProgress struct {
	mu         sync.Mutex
	out        io.Writer
	lastUpdate time.Time
	lastLine   string
	termWidth  int
	enabled    bool
	done       chan struct{}
}

// NewLiveProgress creates a live progress display on stderr
func NewLiveProgress() *LiveProgress {
	fd := int(os.Stderr.Fd())
	width := 80
	if w, _, err := term.GetSize(fd); err == nil && w > 0 {
		width = w
	}

	return &LiveProgress{
		out:       os.Stderr,
		termWidth: width,
		enabled:   term.IsTerminal(fd),
	}
}

// Watch renders every update published by pr until Stop is called
func (lp *LiveProgress) Watch(pr *progress.ProgressReporter) {
	lp.mu.Lock()
	if !lp.enabled || lp.done != nil {
		lp.mu.Unlock()
		return
	}
	lp.done = make(chan struct{})
	done := lp.done
	lp.mu.Unlock()

	ch := pr.Subscribe()
	go func() {
		defer pr.Unsubscribe(ch)
		for {
			select {
			case <-done:
				return
			case update, ok := <-ch:
				if !ok {
					return
				}
				lp.render(update)
			}
		}
	}()
}

func (lp *LiveProgress) render(update progress.Update) {
	var line string
	switch u := update.(type) {
	case *progress.ScanProgress:
		line = "🔍 " + progress.FormatScanProgress(u)
	case *progress.ExecuteProgress:
		line = "🧹 " + progress.FormatExecuteProgress(u)
		if u.Phase == progress.PhaseExecuting && u.TotalFiles > 0 {
			line = styles.ProgressBar(u.Processed, u.TotalFiles, 20) + " " + line
		}
	default:
		return
	}
	final := update.Done()

	lp.mu.Lock()
	defer lp.mu.Unlock()

	// Throttle updates to avoid flickering (max 10 updates per second)
	now := time.Now()
	if !final && now.Sub(lp.lastUpdate) < 100*time.Millisecond {
		return
	}
	lp.lastUpdate = now

	fmt.Fprintf(lp.out, "\r\033[K%s", truncate(line, lp.termWidth-1))
	lp.lastLine = line
	if final {
		fmt.Fprint(lp.out, "\n")
		lp.lastLine = ""
	}
}

// Stop stops watching and ends any partial status line
func (lp *LiveProgress) Stop() {
	lp.mu.Lock()
	defer lp.mu.Unlock()

	if lp.done != nil {
		close(lp.done)
		lp.done = nil
	}
	if lp.enabled && lp.lastLine != "" {
		fmt.Fprint(lp.out, "\n")
		lp.lastLine = ""
	}
}

// SetEnabled enables or disables live progress
func (lp *LiveProgress) SetEnabled(enabled bool) {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	lp.enabled = enabled
}

// truncate truncates a string to fit width
func truncate(s string, width int) string {
	if width <= 3 || len(s) <= width {
		return s
	}
	return s[:width-3] + "..."
}

// PrintPlanTree prints each phase's files grouped by directory
func PrintPlanTree(w io.Writer, plan *planner.Plan) {
	for i := range plan.Phases {
		phase := &plan.Phases[i]
		if phase.IsEmpty() {
			continue
		}

		fmt.Fprintf(w, "\n╭─ %s (%d files)\n", styles.BoldStyle.Render(phase.Name), phase.FileCount())

		entries := make(map[string][]string)
		var dirs []string
		add := func(rel, label string) {
			dir := getParentDir(rel)
			if _, ok := entries[dir]; !ok {
				dirs = append(dirs, dir)
			}
			entries[dir] = append(entries[dir], label)
		}
		for _, rel := range phase.FilesToRemove {
			add(rel, "🗑  "+getFileName(rel))
		}
		for _, rel := range phase.FilesToArchive {
			add(rel, "📦 "+getFileName(rel))
		}
		for _, m := range phase.FilesToMove {
			add(m.From, "➜  "+getFileName(m.From)+styles.DimStyle.Render(" → "+m.To))
		}

		const maxFiles = 5
		for d, dir := range dirs {
			isLastDir := d == len(dirs)-1
			connector, indent := "├", "│   "
			if isLastDir {
				connector, indent = "╰", "    "
			}
			fmt.Fprintf(w, "%s── 📁 %s\n", connector, dir)

			files := entries[dir]
			shown := min(len(files), maxFiles)
			for j := 0; j < shown; j++ {
				branch := "├"
				if j == shown-1 && len(files) <= maxFiles {
					branch = "╰"
				}
				fmt.Fprintf(w, "%s%s── %s\n", indent, branch, files[j])
			}
			if len(files) > maxFiles {
				fmt.Fprintf(w, "%s╰── ... and %d more files\n", indent, len(files)-maxFiles)
			}
		}
	}

	fmt.Fprintf(w, "\n%s\n", strings.Repeat("═", 56))
	fmt.Fprintf(w, "Total: %d files | risk %s | ~%s\n",
		plan.TotalFiles(), plan.RiskLevel, utils.FormatBytes(plan.EstimatedBytesSaved))
}

// getParentDir extracts the parent directory from a path
func getParentDir(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}

// getFileName extracts the file name from a path
func getFileName(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}
