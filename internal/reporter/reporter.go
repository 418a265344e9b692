package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fenilsonani/repotidy/internal/cleaner"
	"github.com/fenilsonani/repotidy/internal/planner"
	"github.com/fenilsonani/repotidy/internal/rollback"
	"github.com/fenilsonani/repotidy/internal/scanner"
	"github.com/fenilsonani/repotidy/pkg/utils"
)

// OutputFormat represents the output format type
type OutputFormat string

const (
	FormatTable   OutputFormat = "table"
	FormatJSON    OutputFormat = "json"
	FormatYAML    OutputFormat = "yaml"
	FormatSummary OutputFormat = "summary"
)

// Formats lists every supported output format
var Formats = []OutputFormat{FormatSummary, FormatTable, FormatJSON, FormatYAML}

// ParseFormat validates a user-supplied format name
func ParseFormat(s string) (OutputFormat, error) {
	for _, f := range Formats {
		if string(f) == strings.ToLower(s) {
			return f, nil
		}
	}
	return "", fmt.Errorf("unsupported format: %s (valid: %s)", s, strings.Join(FormatNames(), ", "))
}

// FormatNames returns the supported format names for help text
func FormatNames() []string {
	names := make([]string, len(Formats))
	for i, f := range Formats {
		names[i] = string(f)
	}
	return names
}

// Reporter handles report generation
type Reporter struct {
	writer io.Writer
	format OutputFormat
}

// New creates a new Reporter
func New(writer io.Writer, format OutputFormat) *Reporter {
	return &Reporter{
		writer: writer,
		format: format,
	}
}

// Report renders a scan report, plan, execution report or rollback point
// list in the reporter's format
func (r *Reporter) Report(v any) error {
	switch v := v.(type) {
	case *scanner.FileAnalysisReport:
		return r.ReportScan(v)
	case *planner.Plan:
		return r.ReportPlan(v)
	case *cleaner.Report:
		return r.ReportExecution(v)
	case []*rollback.Point:
		return r.ReportRollbackPoints(v)
	default:
		return fmt.Errorf("cannot report %T", v)
	}
}

// SaveToFile saves the report to a file
func SaveToFile(v any, path string, format OutputFormat) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	reporter := New(file, format)
	return reporter.Report(v)
}

func (r *Reporter) encode(v any) error {
	switch r.format {
	case FormatJSON:
		encoder := json.NewEncoder(r.writer)
		encoder.SetIndent("", "  ")
		return encoder.Encode(v)
	case FormatYAML:
		encoder := yaml.NewEncoder(r.writer)
		defer encoder.Close()
		encoder.SetIndent(2)
		return encoder.Encode(v)
	default:
		return fmt.Errorf("unsupported format: %s", r.format)
	}
}

func (r *Reporter) rule() {
	fmt.Fprintf(r.writer, "%s\n", strings.Repeat("─", 100))
}

// =============================================================================
// Scan
// =============================================================================

// ReportScan renders a FileAnalysisReport
func (r *Reporter) ReportScan(report *scanner.FileAnalysisReport) error {
	switch r.format {
	case FormatSummary:
		return r.scanSummary(report)
	case FormatTable:
		return r.scanTable(report)
	default:
		return r.encode(report)
	}
}

func (r *Reporter) scanSummary(report *scanner.FileAnalysisReport) error {
	fmt.Fprintf(r.writer, "=== Scan Summary ===\n")
	fmt.Fprintf(r.writer, "Project: %s\n", report.Root)
	fmt.Fprintf(r.writer, "Total Files: %d\n", report.TotalFiles)
	fmt.Fprintf(r.writer, "\nBreakdown by Category:\n")

	for _, c := range scanner.AllCategories {
		if n := len(report.Categories.Get(c)); n > 0 {
			fmt.Fprintf(r.writer, "  %-14s %d files\n", c+":", n)
		}
	}

	fmt.Fprintf(r.writer, "\nObsolete Files: %d\n", len(report.ObsoleteFiles))
	fmt.Fprintf(r.writer, "Duplicate Groups: %d\n", len(report.DuplicateFiles))
	fmt.Fprintf(r.writer, "Large Files: %d\n", len(report.LargeFiles))

	if len(report.Warnings) > 0 {
		fmt.Fprintf(r.writer, "\nWarnings: %d\n", len(report.Warnings))
	}

	return nil
}

func (r *Reporter) scanTable(report *scanner.FileAnalysisReport) error {
	fmt.Fprintf(r.writer, "%-60s | %-14s | %s\n", "Path", "Category", "Flags")
	r.rule()

	for _, c := range scanner.AllCategories {
		for _, rel := range report.Categories.Get(c) {
			flags := ""
			if report.IsObsolete(rel) {
				flags = "obsolete"
			}
			fmt.Fprintf(r.writer, "%-60s | %-14s | %s\n", shorten(rel, 60), c, flags)
		}
	}

	if len(report.DuplicateFiles) > 0 {
		fmt.Fprintf(r.writer, "\nDuplicate groups:\n")
		for _, g := range report.DuplicateFiles {
			fmt.Fprintf(r.writer, "  %s (%s, %.0f%% similar): %s\n", g.Key, g.Reason, g.Similarity*100, strings.Join(g.Files, ", "))
		}
	}

	if len(report.LargeFiles) > 0 {
		fmt.Fprintf(r.writer, "\nLarge files:\n")
		for _, f := range report.LargeFiles {
			fmt.Fprintf(r.writer, "  %-60s %12s  %s\n", shorten(f.Path, 60), utils.FormatBytes(f.Size), f.ModTime.Format("2006-01-02 15:04:05"))
		}
	}

	fmt.Fprintf(r.writer, "\n")
	r.rule()
	fmt.Fprintf(r.writer, "Total: %d files, %d categorized\n", report.TotalFiles, report.Categories.Count())

	return nil
}

// =============================================================================
// Plan
// =============================================================================

// ReportPlan renders a cleanup plan
func (r *Reporter) ReportPlan(plan *planner.Plan) error {
	switch r.format {
	case FormatSummary:
		return r.planSummary(plan)
	case FormatTable:
		return r.planTable(plan)
	default:
		return r.encode(plan)
	}
}

func (r *Reporter) planSummary(plan *planner.Plan) error {
	fmt.Fprintf(r.writer, "=== Cleanup Plan ===\n")
	fmt.Fprintf(r.writer, "Project: %s\n", plan.Root)
	fmt.Fprintf(r.writer, "Risk Level: %s\n", plan.RiskLevel)
	fmt.Fprintf(r.writer, "Estimated Savings: %s\n", utils.FormatBytes(plan.EstimatedBytesSaved))
	fmt.Fprintf(r.writer, "Files Affected: %d\n", plan.TotalFiles())

	fmt.Fprintf(r.writer, "\nPhases:\n")
	for i := range plan.Phases {
		p := &plan.Phases[i]
		fmt.Fprintf(r.writer, "  %d. %-28s remove %d, archive %d, move %d\n",
			i+1, p.Name, len(p.FilesToRemove), len(p.FilesToArchive), len(p.FilesToMove))
		if len(p.Warnings) > 0 {
			fmt.Fprintf(r.writer, "     %d files flagged\n", len(p.Warnings))
		}
	}

	if len(plan.Validation) > 0 {
		fmt.Fprintf(r.writer, "\nValidation:\n")
		for _, v := range plan.Validation {
			req := "optional"
			if v.Required {
				req = "required"
			}
			fmt.Fprintf(r.writer, "  %-18s %-9s %s\n", v.Kind, req, v.Description)
		}
	}

	return nil
}

func (r *Reporter) planTable(plan *planner.Plan) error {
	fmt.Fprintf(r.writer, "%-28s | %-8s | %-50s | %s\n", "Phase", "Action", "Path", "Detail")
	r.rule()

	for i := range plan.Phases {
		p := &plan.Phases[i]
		for _, rel := range p.FilesToRemove {
			fmt.Fprintf(r.writer, "%-28s | %-8s | %-50s |\n", p.Name, "remove", shorten(rel, 50))
		}
		for _, rel := range p.FilesToArchive {
			fmt.Fprintf(r.writer, "%-28s | %-8s | %-50s | %s\n", p.Name, "archive", shorten(rel, 50), strings.Join(p.Warnings[rel], "; "))
		}
		for _, m := range p.FilesToMove {
			fmt.Fprintf(r.writer, "%-28s | %-8s | %-50s | -> %s\n", p.Name, "move", shorten(m.From, 50), m.To)
		}
	}

	fmt.Fprintf(r.writer, "\n")
	r.rule()
	fmt.Fprintf(r.writer, "Total: %d files, risk %s, ~%s saved\n", plan.TotalFiles(), plan.RiskLevel, utils.FormatBytes(plan.EstimatedBytesSaved))

	return nil
}

// =============================================================================
// Execution
// =============================================================================

// executionDoc adds the per-file error messages PhaseResult keeps out of
// its serialized form
type executionDoc struct {
	cleaner.Report `yaml:",inline"`
	Failed         bool     `json:"failed" yaml:"failed"`
	Errors         []string `json:"errors" yaml:"errors"`
}

// ReportExecution renders the outcome of an execution run
func (r *Reporter) ReportExecution(report *cleaner.Report) error {
	switch r.format {
	case FormatSummary:
		return report.WriteText(r.writer)
	case FormatTable:
		return r.executionTable(report)
	default:
		doc := executionDoc{Report: *report, Failed: report.Failed(), Errors: []string{}}
		for _, err := range report.Errors() {
			doc.Errors = append(doc.Errors, err.Error())
		}
		return r.encode(doc)
	}
}

func (r *Reporter) executionTable(report *cleaner.Report) error {
	fmt.Fprintf(r.writer, "%-28s | %-8s | %-50s | %s\n", "Phase", "Result", "Path", "Detail")
	r.rule()

	for _, p := range report.Phases {
		for _, rel := range p.Removed {
			fmt.Fprintf(r.writer, "%-28s | %-8s | %-50s |\n", p.Phase, "removed", shorten(rel, 50))
		}
		for _, rel := range p.Archived {
			fmt.Fprintf(r.writer, "%-28s | %-8s | %-50s | %s\n", p.Phase, "archived", shorten(rel, 50), p.ArchivePaths[rel])
		}
		for _, m := range p.Moved {
			fmt.Fprintf(r.writer, "%-28s | %-8s | %-50s | -> %s\n", p.Phase, "moved", shorten(m.From, 50), m.To)
		}
		for rel, why := range p.Skipped {
			fmt.Fprintf(r.writer, "%-28s | %-8s | %-50s | %s\n", p.Phase, "skipped", shorten(rel, 50), why)
		}
		for _, err := range p.Errors {
			fmt.Fprintf(r.writer, "%-28s | %-8s | %-50s | %s\n", p.Phase, "error", shorten(err.Path, 50), err.Reason)
		}
	}

	removed, archived, moved := report.Counts()
	fmt.Fprintf(r.writer, "\n")
	r.rule()
	fmt.Fprintf(r.writer, "Total: %d removed, %d archived, %d moved, %s saved, %d errors\n",
		removed, archived, moved, utils.FormatBytes(report.BytesSaved()), len(report.Errors()))

	status := "passed"
	if !report.Integrity.Passed {
		status = "FAILED"
	}
	fmt.Fprintf(r.writer, "Integrity: %s\n", status)

	return nil
}

// =============================================================================
// Rollback Points
// =============================================================================

// ReportRollbackPoints renders a list of rollback points, newest first as
// given
func (r *Reporter) ReportRollbackPoints(points []*rollback.Point) error {
	switch r.format {
	case FormatSummary, FormatTable:
		return r.pointsTable(points)
	default:
		if points == nil {
			points = []*rollback.Point{}
		}
		return r.encode(points)
	}
}

func (r *Reporter) pointsTable(points []*rollback.Point) error {
	if len(points) == 0 {
		fmt.Fprintf(r.writer, "No rollback points.\n")
		return nil
	}

	fmt.Fprintf(r.writer, "%-36s | %-28s | %-19s | %-5s | %s\n", "ID", "Name", "Created", "Ops", "Status")
	r.rule()

	for _, p := range points {
		fmt.Fprintf(r.writer, "%-36s | %-28s | %-19s | %-5d | %s\n",
			p.ID, shorten(p.Name, 28), p.CreatedAt.Format("2006-01-02 15:04:05"), len(p.Operations), pointStatus(p))
	}

	return nil
}

func pointStatus(p *rollback.Point) string {
	switch {
	case p.RolledBackAt != nil:
		return "rolled back " + p.RolledBackAt.Format(time.DateTime)
	case p.IsOpen():
		return "open"
	default:
		return "available"
	}
}

// shorten keeps the tail of long paths
func shorten(s string, width int) string {
	if len(s) <= width {
		return s
	}
	return "..." + s[len(s)-(width-3):]
}
