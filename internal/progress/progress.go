package progress

import (
	"fmt"
	"sync"
	"time"

	"github.com/fenilsonani/repotidy/pkg/utils"
)

// Phase represents the current phase of operation
type Phase string

const (
	PhaseScanning  Phase = "scanning"
	PhaseAnalyzing Phase = "analyzing"
	PhaseExecuting Phase = "executing"
	PhaseComplete  Phase = "complete"
	PhaseError     Phase = "error"
)

// ScanProgress represents progress while scanning and analyzing the tree
type ScanProgress struct {
	Phase       Phase
	Stage       string // walk, large-files, obsolete, dependencies, validation
	CurrentPath string
	FilesDone   int
	FilesTotal  int
	StartTime   time.Time
	Error       error
}

// ExecuteProgress represents progress while executing a cleanup phase
type ExecuteProgress struct {
	Phase        Phase
	CleanupPhase string
	CurrentFile  string
	Processed    int
	TotalFiles   int
	Removed      int
	Archived     int
	Moved        int
	BytesSaved   int64
	ErrorCount   int
	StartTime    time.Time
	Error        error
}

// Update is a snapshot published to subscribers
type Update interface {
	// Done reports whether this is the last update of its run
	Done() bool
}

func (p *ScanProgress) Done() bool    { return p.Phase == PhaseComplete || p.Phase == PhaseError }
func (p *ExecuteProgress) Done() bool { return p.Phase == PhaseComplete || p.Phase == PhaseError }

// Buffered updates per subscriber before new ones are dropped
const subscriberBuffer = 10

// ProgressReporter fans snapshots out to subscribers without ever blocking
// the scanner or cleaner that publishes them
type ProgressReporter struct {
	mu        sync.RWMutex
	scan      *ScanProgress
	execute   *ExecuteProgress
	listeners map[<-chan Update]chan Update
}

// NewProgressReporter creates a reporter with no subscribers
func NewProgressReporter() *ProgressReporter {
	return &ProgressReporter{listeners: make(map[<-chan Update]chan Update)}
}

// Subscribe returns a channel that receives every later update until
// Unsubscribe. Updates that find the buffer full are dropped.
func (pr *ProgressReporter) Subscribe() <-chan Update {
	ch := make(chan Update, subscriberBuffer)

	pr.mu.Lock()
	pr.listeners[ch] = ch
	pr.mu.Unlock()
	return ch
}

// Unsubscribe closes ch and stops delivering to it
func (pr *ProgressReporter) Unsubscribe(ch <-chan Update) {
	pr.mu.Lock()
	defer pr.mu.Unlock()

	if c, ok := pr.listeners[ch]; ok {
		delete(pr.listeners, ch)
		close(c)
	}
}

// UpdateScanProgress records update as the current scan state and publishes it
func (pr *ProgressReporter) UpdateScanProgress(update *ScanProgress) {
	pr.mu.Lock()
	pr.scan = update
	pr.mu.Unlock()
	pr.publish(update)
}

// UpdateExecuteProgress records update as the current execution state and publishes it
func (pr *ProgressReporter) UpdateExecuteProgress(update *ExecuteProgress) {
	pr.mu.Lock()
	pr.execute = update
	pr.mu.Unlock()
	pr.publish(update)
}

func (pr *ProgressReporter) publish(update Update) {
	// Read lock held across sends so Unsubscribe cannot close mid-send
	pr.mu.RLock()
	defer pr.mu.RUnlock()

	for _, ch := range pr.listeners {
		select {
		case ch <- update:
		default:
		}
	}
}

// GetScanProgress returns the latest scan update, or nil
func (pr *ProgressReporter) GetScanProgress() *ScanProgress {
	pr.mu.RLock()
	defer pr.mu.RUnlock()
	return pr.scan
}

// GetExecuteProgress returns the latest execution update, or nil
func (pr *ProgressReporter) GetExecuteProgress() *ExecuteProgress {
	pr.mu.RLock()
	defer pr.mu.RUnlock()
	return pr.execute
}

// FormatScanProgress returns a human-readable scan progress string
func FormatScanProgress(p *ScanProgress) string {
	if p == nil {
		return "Initializing..."
	}

	elapsed := time.Since(p.StartTime)

	switch p.Phase {
	case PhaseScanning:
		return fmt.Sprintf("Scanning (%s)... %d files [%s]",
			p.Stage,
			p.FilesDone,
			FormatDuration(elapsed))
	case PhaseAnalyzing:
		return fmt.Sprintf("Analyzing %s... %d/%d files%s [%s]",
			p.Stage,
			p.FilesDone,
			p.FilesTotal,
			percent(p.FilesDone, p.FilesTotal),
			FormatDuration(elapsed))
	case PhaseComplete:
		return fmt.Sprintf("Scan complete: %d files in %s",
			p.FilesDone,
			FormatDuration(elapsed))
	case PhaseError:
		return fmt.Sprintf("Scan error: %v", p.Error)
	default:
		return "Scanning..."
	}
}

// FormatExecuteProgress returns a human-readable execution progress string
func FormatExecuteProgress(p *ExecuteProgress) string {
	if p == nil {
		return "Preparing..."
	}

	elapsed := time.Since(p.StartTime)

	switch p.Phase {
	case PhaseExecuting:
		eta := ""
		if p.Processed > 0 && p.TotalFiles > p.Processed {
			avgTime := elapsed / time.Duration(p.Processed)
			remaining := time.Duration(p.TotalFiles-p.Processed) * avgTime
			eta = fmt.Sprintf(" ETA: %s", FormatDuration(remaining))
		}

		return fmt.Sprintf("%s... %d/%d files%s - %s freed%s",
			p.CleanupPhase,
			p.Processed,
			p.TotalFiles,
			percent(p.Processed, p.TotalFiles),
			utils.FormatBytes(p.BytesSaved),
			eta)
	case PhaseComplete:
		return fmt.Sprintf("%s complete: %d removed, %d archived, %d moved (%s) in %s",
			p.CleanupPhase,
			p.Removed,
			p.Archived,
			p.Moved,
			utils.FormatBytes(p.BytesSaved),
			FormatDuration(elapsed))
	case PhaseError:
		return fmt.Sprintf("%s error: %v", p.CleanupPhase, p.Error)
	default:
		return "Preparing cleanup..."
	}
}

func percent(done, total int) string {
	if total <= 0 {
		return ""
	}
	return fmt.Sprintf(" (%d%%)", done*100/total)
}

// FormatDuration formats duration in human-readable format
func FormatDuration(d time.Duration) string {
	d = d.Round(time.Second)

	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
