package cleaner

import (
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fenilsonani/repotidy/internal/planner"
	"github.com/fenilsonani/repotidy/internal/validation"
	"github.com/fenilsonani/repotidy/pkg/utils"
)

// AllPhases selects every phase of a plan
const AllPhases = "all"

// Report is the consolidated outcome of an execution run
type Report struct {
	Root            string                     `json:"root" yaml:"root"`
	StartedAt       time.Time                  `json:"started_at" yaml:"started_at"`
	FinishedAt      time.Time                  `json:"finished_at" yaml:"finished_at"`
	DryRun          bool                       `json:"dry_run" yaml:"dry_run"`
	Phases          []*PhaseResult             `json:"phases" yaml:"phases"`
	Integrity       validation.IntegrityResult `json:"integrity" yaml:"integrity"`
	IndexPath       string                     `json:"index_path,omitempty" yaml:"index_path,omitempty"`
	IndexRollbackID string                     `json:"index_rollback_id,omitempty" yaml:"index_rollback_id,omitempty"`
	StructurePath   string                     `json:"structure_path,omitempty" yaml:"structure_path,omitempty"`
	ReportPath      string                     `json:"report_path,omitempty" yaml:"report_path,omitempty"`
	Failures        []string                   `json:"failures,omitempty" yaml:"failures,omitempty"`
}

// Execute runs the named phases of plan in plan order, then the integrity
// tests, and writes the run's reports. No names, or "all", selects every
// phase. A phase that stops with an error ends the run; the partial report
// is returned with the error.
func (e *Executor) Execute(ctx context.Context, plan *planner.Plan, names ...string) (*Report, error) {
	phases, err := selectPhases(plan, names)
	if err != nil {
		return nil, err
	}

	report := &Report{
		Root:      e.root,
		StartedAt: time.Now(),
		DryRun:    e.config.DryRun,
		Phases:    []*PhaseResult{},
	}

	for _, phase := range phases {
		result, err := e.ExecutePhase(ctx, phase)
		report.Phases = append(report.Phases, result)
		if err != nil {
			report.Failures = append(report.Failures, fmt.Sprintf("%s: %v", phase.Name, err))
			report.FinishedAt = time.Now()
			return report, fmt.Errorf("phase %s failed: %w", phase.Name, err)
		}
	}

	if !e.config.DryRun && report.Moved(planner.PhaseDocumentation) > 0 {
		id, err := e.WriteDocumentationIndex()
		if err != nil {
			report.Failures = append(report.Failures, fmt.Sprintf("documentation index: %v", err))
		} else {
			report.IndexPath = IndexPath
			report.IndexRollbackID = id
		}
	}

	report.Integrity = e.validator.RunIntegrityTests()

	if !e.config.DryRun {
		structure, err := e.WriteProjectStructure(ctx)
		if err != nil {
			report.Failures = append(report.Failures, fmt.Sprintf("project structure: %v", err))
		} else {
			report.StructurePath = structure
		}
	}

	report.FinishedAt = time.Now()

	if !e.config.DryRun {
		path, err := e.saveReport(report)
		if err != nil {
			report.Failures = append(report.Failures, fmt.Sprintf("cleanup report: %v", err))
		} else {
			report.ReportPath = path
		}
	}

	return report, nil
}

func selectPhases(plan *planner.Plan, names []string) ([]*planner.Phase, error) {
	if len(names) == 0 || (len(names) == 1 && names[0] == AllPhases) {
		phases := make([]*planner.Phase, 0, len(plan.Phases))
		for i := range plan.Phases {
			phases = append(phases, &plan.Phases[i])
		}
		return phases, nil
	}

	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		if _, ok := plan.Phase(name); !ok {
			return nil, fmt.Errorf("unknown phase %q (valid: %s, %s)", name, strings.Join(planner.PhaseNames, ", "), AllPhases)
		}
		wanted[name] = true
	}

	// Plan order, whatever order the names came in
	var phases []*planner.Phase
	for i := range plan.Phases {
		if wanted[plan.Phases[i].Name] {
			phases = append(phases, &plan.Phases[i])
		}
	}
	return phases, nil
}

// Errors returns every per-file error across phases
func (r *Report) Errors() []*OperationError {
	var errs []*OperationError
	for _, p := range r.Phases {
		errs = append(errs, p.Errors...)
	}
	return errs
}

// Failed reports whether any phase had an error or integrity failed
func (r *Report) Failed() bool {
	return len(r.Errors()) > 0 || len(r.Failures) > 0 || !r.Integrity.Passed
}

// BytesSaved returns the bytes freed across phases
func (r *Report) BytesSaved() int64 {
	var total int64
	for _, p := range r.Phases {
		total += p.BytesSaved
	}
	return total
}

// Counts returns the number of removed, archived and moved files
func (r *Report) Counts() (removed, archived, moved int) {
	for _, p := range r.Phases {
		removed += len(p.Removed)
		archived += len(p.Archived)
		moved += len(p.Moved)
	}
	return removed, archived, moved
}

// Moved returns the number of files moved by the named phase
func (r *Report) Moved(phase string) int {
	for _, p := range r.Phases {
		if p.Phase == phase {
			return len(p.Moved)
		}
	}
	return 0
}

// RollbackIDs returns the rollback point ids created by the run, in order
func (r *Report) RollbackIDs() []string {
	var ids []string
	for _, p := range r.Phases {
		if p.RollbackID != "" {
			ids = append(ids, p.RollbackID)
		}
	}
	if r.IndexRollbackID != "" {
		ids = append(ids, r.IndexRollbackID)
	}
	return ids
}

// WriteText writes the plain-text cleanup report
func (r *Report) WriteText(w io.Writer) error {
	var b strings.Builder

	removed, archived, moved := r.Counts()

	b.WriteString("Cleanup Report\n")
	b.WriteString("==============\n")
	fmt.Fprintf(&b, "Project:  %s\n", r.Root)
	fmt.Fprintf(&b, "Started:  %s\n", r.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Finished: %s\n", r.FinishedAt.Format(time.RFC3339))
	if r.DryRun {
		b.WriteString("Mode:     dry run (no files were changed)\n")
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "Removed:     %d files\n", removed)
	fmt.Fprintf(&b, "Archived:    %d files\n", archived)
	fmt.Fprintf(&b, "Moved:       %d files\n", moved)
	fmt.Fprintf(&b, "Space saved: %s\n", utils.FormatBytes(r.BytesSaved()))
	fmt.Fprintf(&b, "Errors:      %d\n", len(r.Errors()))

	for _, p := range r.Phases {
		fmt.Fprintf(&b, "\n[%s]", p.Phase)
		if p.RollbackID != "" {
			fmt.Fprintf(&b, " rollback point %s", p.RollbackID)
		}
		b.WriteString("\n")

		for _, rel := range p.Removed {
			fmt.Fprintf(&b, "  removed   %s\n", rel)
		}
		for _, rel := range p.Archived {
			if dst, ok := p.ArchivePaths[rel]; ok {
				fmt.Fprintf(&b, "  archived  %s -> %s\n", rel, dst)
			} else {
				fmt.Fprintf(&b, "  archived  %s\n", rel)
			}
		}
		for _, m := range p.Moved {
			fmt.Fprintf(&b, "  moved     %s -> %s\n", m.From, m.To)
		}
		for _, rel := range slices.Sorted(maps.Keys(p.Skipped)) {
			fmt.Fprintf(&b, "  skipped   %s (%s)\n", rel, p.Skipped[rel])
		}
		for _, msg := range p.ErrorMessages() {
			fmt.Fprintf(&b, "  error     %s\n", msg)
		}
	}

	b.WriteString(FormatErrorSummary(r.Errors()))

	b.WriteString("\nIntegrity: ")
	if r.Integrity.Passed {
		b.WriteString("passed\n")
	} else {
		b.WriteString("FAILED\n")
	}
	for _, msg := range r.Integrity.Errors {
		fmt.Fprintf(&b, "  error   %s\n", msg)
	}
	for _, msg := range r.Integrity.Warnings {
		fmt.Fprintf(&b, "  warning %s\n", msg)
	}

	for _, f := range r.Failures {
		fmt.Fprintf(&b, "\nFailure: %s\n", f)
	}

	if ids := r.RollbackIDs(); len(ids) > 0 {
		b.WriteString("\nUndo with:\n")
		for i := len(ids) - 1; i >= 0; i-- {
			fmt.Fprintf(&b, "  repotidy rollback %s\n", ids[i])
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// saveReport writes the text report to <state>/reports/cleanup-<stamp>.txt
func (e *Executor) saveReport(r *Report) (string, error) {
	dir := filepath.Join(e.config.StatePath(e.root), "reports")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create reports directory: %w", err)
	}

	path := filepath.Join(dir, "cleanup-"+r.StartedAt.Format("20060102-150405")+".txt")
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create report: %w", err)
	}
	defer file.Close()

	if err := r.WriteText(file); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return path, nil
}
