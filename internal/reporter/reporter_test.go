package reporter

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/fenilsonani/repotidy/internal/cleaner"
	"github.com/fenilsonani/repotidy/internal/planner"
	"github.com/fenilsonani/repotidy/internal/rollback"
	"github.com/fenilsonani/repotidy/internal/scanner"
	"github.com/fenilsonani/repotidy/internal/validation"
)

func samplePlan() *planner.Plan {
	return &planner.Plan{
		Root:      "/work/app",
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Phases: []planner.Phase{
			{
				Name:           planner.PhaseTemporaryCleanup,
				FilesToRemove:  []string{"temp/cache.tmp"},
				FilesToArchive: []string{"logs/deploy-error.log"},
				Warnings:       map[string][]string{"logs/deploy-error.log": {"critical path"}},
			},
			{
				Name:        planner.PhaseFolders,
				FilesToMove: []planner.FileMove{{From: "settings.json", To: "config/settings.json", Reason: "configuration file"}},
			},
		},
		EstimatedBytesSaved: 2048,
		RiskLevel:           planner.RiskLow,
		Validation: []planner.ValidationStep{
			{Kind: planner.ValidationReferenceCheck, Description: "re-check references", Required: true},
		},
	}
}

func sampleExecution() *cleaner.Report {
	temp := &cleaner.PhaseResult{
		Phase:        planner.PhaseTemporaryCleanup,
		RollbackID:   "point-1",
		Removed:      []string{"temp/cache.tmp"},
		Archived:     []string{},
		ArchivePaths: map[string]string{},
		Moved:        []planner.FileMove{},
		Skipped:      map[string]string{"temp/new.tmp": "modified within min_file_age"},
		BytesSaved:   6,
		Errors: []*cleaner.OperationError{
			{Path: "locked/a.tmp", Op: cleaner.OpRemove, Reason: cleaner.ErrorPermissionDenied, Original: os.ErrPermission},
		},
	}
	return &cleaner.Report{
		Root:      "/work/app",
		Phases:    []*cleaner.PhaseResult{temp},
		Integrity: validation.IntegrityResult{Passed: true, Errors: []string{}, Warnings: []string{}},
	}
}

func TestParseFormat(t *testing.T) {
	for _, name := range []string{"summary", "table", "json", "YAML"} {
		_, err := ParseFormat(name)
		assert.NoError(t, err, name)
	}

	_, err := ParseFormat("xml")
	assert.Error(t, err)
}

func TestReportPlanSummary(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, New(&buf, FormatSummary).Report(samplePlan()))

	out := buf.String()
	assert.Contains(t, out, "Risk Level: low")
	assert.Contains(t, out, "Estimated Savings: 2.00 KB")
	assert.Contains(t, out, "temporary-cleanup")
	assert.Contains(t, out, "remove 1, archive 1, move 0")
	assert.Contains(t, out, "reference-check")
}

func TestReportPlanTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, New(&buf, FormatTable).ReportPlan(samplePlan()))

	out := buf.String()
	assert.Contains(t, out, "temp/cache.tmp")
	assert.Contains(t, out, "critical path")
	assert.Contains(t, out, "-> config/settings.json")
	assert.Contains(t, out, "Total: 3 files")
}

func TestReportPlanJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, New(&buf, FormatJSON).ReportPlan(samplePlan()))

	var decoded planner.Plan
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, samplePlan().Phases, decoded.Phases)
	assert.Equal(t, planner.RiskLow, decoded.RiskLevel)
}

func TestReportPlanYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, New(&buf, FormatYAML).ReportPlan(samplePlan()))

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "low", decoded["risk_level"])
	assert.Len(t, decoded["phases"], 2)
}

func TestReportExecutionJSONCarriesErrors(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, New(&buf, FormatJSON).Report(sampleExecution()))

	var decoded struct {
		Root   string   `json:"root"`
		Failed bool     `json:"failed"`
		Errors []string `json:"errors"`
		Phases []struct {
			RollbackID string `json:"rollback_id"`
		} `json:"phases"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))

	assert.Equal(t, "/work/app", decoded.Root)
	assert.True(t, decoded.Failed)
	require.Len(t, decoded.Errors, 1)
	assert.Contains(t, decoded.Errors[0], "locked/a.tmp")
	require.Len(t, decoded.Phases, 1)
	assert.Equal(t, "point-1", decoded.Phases[0].RollbackID)
}

func TestReportExecutionYAMLInlinesReport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, New(&buf, FormatYAML).ReportExecution(sampleExecution()))

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "/work/app", decoded["root"])
	assert.Equal(t, true, decoded["failed"])
}

func TestReportExecutionTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, New(&buf, FormatTable).ReportExecution(sampleExecution()))

	out := buf.String()
	assert.Contains(t, out, "removed")
	assert.Contains(t, out, "modified within min_file_age")
	assert.Contains(t, out, "Permission denied")
	assert.Contains(t, out, "1 removed, 0 archived, 0 moved")
	assert.Contains(t, out, "Integrity: passed")
}

func TestReportExecutionSummary(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, New(&buf, FormatSummary).ReportExecution(sampleExecution()))

	out := buf.String()
	assert.Contains(t, out, "Cleanup Report")
	assert.Contains(t, out, "repotidy rollback point-1")
}

func TestReportScan(t *testing.T) {
	report := &scanner.FileAnalysisReport{
		Root:       "/work/app",
		TotalFiles: 3,
		Categories: scanner.FileCategoryMap{
			scanner.CategoryLogs:          {"logs/app.log"},
			scanner.CategoryDocumentation: {"README.md", "old_guide.md"},
		},
		ObsoleteFiles: []string{"old_guide.md"},
		DuplicateFiles: []scanner.DuplicateGroup{
			{Key: "guide.md", Files: []string{"guide.md", "guide_old.md"}, Similarity: 0.8, Reason: "old"},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, New(&buf, FormatSummary).ReportScan(report))
	assert.Contains(t, buf.String(), "Total Files: 3")
	assert.Contains(t, buf.String(), "Obsolete Files: 1")

	buf.Reset()
	require.NoError(t, New(&buf, FormatTable).ReportScan(report))
	assert.Contains(t, buf.String(), "obsolete")
	assert.Contains(t, buf.String(), "guide.md, guide_old.md")
}

func TestReportRollbackPoints(t *testing.T) {
	closed := time.Now()
	points := []*rollback.Point{
		{ID: "a", Name: "temporary-cleanup", CreatedAt: closed, ClosedAt: &closed, Operations: make([]rollback.Operation, 2)},
		{ID: "b", Name: "script-cleanup", CreatedAt: closed, ClosedAt: &closed, RolledBackAt: &closed},
	}

	var buf bytes.Buffer
	require.NoError(t, New(&buf, FormatTable).Report(points))
	assert.Contains(t, buf.String(), "available")
	assert.Contains(t, buf.String(), "rolled back")

	buf.Reset()
	require.NoError(t, New(&buf, FormatTable).ReportRollbackPoints(nil))
	assert.Contains(t, buf.String(), "No rollback points")

	buf.Reset()
	require.NoError(t, New(&buf, FormatJSON).ReportRollbackPoints(nil))
	assert.Equal(t, "[]\n", buf.String())
}

func TestReportUnsupported(t *testing.T) {
	err := New(&bytes.Buffer{}, FormatJSON).Report(errors.New("not a report"))
	assert.Error(t, err)
}

func TestSaveToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.json")
	require.NoError(t, SaveToFile(samplePlan(), path, FormatJSON))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, json.Valid(data))
}
