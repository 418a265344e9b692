package planner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fenilsonani/repotidy/internal/config"
	"github.com/fenilsonani/repotidy/internal/deps"
	"github.com/fenilsonani/repotidy/internal/logging"
	"github.com/fenilsonani/repotidy/internal/scanner"
	"github.com/fenilsonani/repotidy/internal/testutil"
	"github.com/fenilsonani/repotidy/pkg/utils"
)

func newTestEngine(t *testing.T, p *testutil.Project) *Engine {
	t.Helper()
	cfg := config.GetDefault()
	cfg.Workers = 4
	return NewForProject(p.RootDir, cfg, logging.Discard())
}

func scenarioProject(t *testing.T) *testutil.Project {
	p := testutil.NewProject(t)
	p.CreateFiles(map[string]string{
		"README.md":             "# App\n\n## Setup\n\nRun npm install first.\n",
		"temp/cache.tmp":        "cached",
		"old_guide.md":          "DEPRECATED: use the new guide instead.\n",
		"old_setup.md":          "login with password: hunter2\n",
		"scripts/deploy.js":     "console.log('shipping')\n",
		"scripts/unused.sh":     "echo unused\n",
		"logs/app.log":          "started\n",
		"logs/deploy-error.log": "failed\n",
		"docs/api.md":           "Endpoints are listed here.\n",
		"docs/user-guide.md":    "Click the button.\n",
		"guide.md":              "Read this first.\n",
		"guide_v2.md":           "Read this first, again.\n",
		"settings.json":         "{\"theme\": \"dark\"}",
		"tsconfig.json":         "{}",
		"src/index.ts":          "export const x = 1\n",
	})
	p.WriteManifest("app", map[string]string{"deploy": "node scripts/deploy.js"})
	return p
}

func TestGenerateCleanupPlan(t *testing.T) {
	p := scenarioProject(t)
	e := newTestEngine(t, p)

	plan, err := e.GenerateCleanupPlan(context.Background())
	require.NoError(t, err)

	require.Len(t, plan.Phases, 4)
	for i, name := range PhaseNames {
		assert.Equal(t, name, plan.Phases[i].Name)
	}

	temp, _ := plan.Phase(PhaseTemporaryCleanup)
	assert.Equal(t, []string{"logs/app.log", "old_guide.md", "temp/cache.tmp"}, temp.FilesToRemove)
	assert.Equal(t, []string{"logs/deploy-error.log", "old_setup.md"}, temp.FilesToArchive)
	assert.Contains(t, temp.Warnings["old_setup.md"], "contains credentials or secrets")
	assert.True(t, temp.ValidationRequired)

	docs, _ := plan.Phase(PhaseDocumentation)
	assert.Equal(t, []string{"guide_v2.md"}, docs.FilesToRemove)
	assert.Equal(t, []FileMove{
		{From: "docs/api.md", To: "docs/technical/api.md", Reason: "technical documentation"},
		{From: "docs/user-guide.md", To: "docs/user/user-guide.md", Reason: "user documentation"},
		{From: "guide.md", To: "docs/user/guide.md", Reason: "user documentation"},
	}, docs.FilesToMove)

	scripts, _ := plan.Phase(PhaseScripts)
	assert.Equal(t, []string{"scripts/unused.sh"}, scripts.FilesToRemove)
	assert.Equal(t, []string{"scripts/deploy.js"}, scripts.FilesToArchive)

	folders, _ := plan.Phase(PhaseFolders)
	assert.Empty(t, folders.FilesToRemove)
	assert.Empty(t, folders.FilesToArchive)
	assert.Equal(t, []FileMove{{From: "settings.json", To: "config/settings.json", Reason: "configuration file"}}, folders.FilesToMove)
	assert.False(t, folders.ValidationRequired)

	assert.Equal(t, RiskLow, plan.RiskLevel)
	assert.Equal(t, int64(3*utils.MB), plan.EstimatedBytesSaved)

	require.Len(t, plan.Validation, 3)
	assert.Equal(t, ValidationReferenceCheck, plan.Validation[0].Kind)
	assert.True(t, plan.Validation[0].Required)
	assert.False(t, plan.Validation[1].Required, "manifest declares no build or test script")

	// Planning never touches the tree
	p.AssertFileExists("temp/cache.tmp")
	p.AssertFileExists("guide_v2.md")
}

func TestVersionedDocsAreNotDuplicates(t *testing.T) {
	p := testutil.NewProject(t)
	p.CreateFiles(map[string]string{
		"guide.md":    "Read this first.\n",
		"guide_v2.md": "The rewritten guide.\n",
	})
	p.WriteManifest("app", nil)
	e := newTestEngine(t, p)

	plan, err := e.GenerateCleanupPlan(context.Background())
	require.NoError(t, err)

	assert.Empty(t, e.Report().DuplicateFiles)
	docs, _ := plan.Phase(PhaseDocumentation)
	assert.Empty(t, docs.FilesToRemove)
	assert.Contains(t, docs.FilesToMove, FileMove{From: "guide_v2.md", To: "docs/user/guide_v2.md", Reason: "user documentation"})
}

func TestPlanInvariants(t *testing.T) {
	p := scenarioProject(t)
	e := newTestEngine(t, p)

	plan, err := e.GenerateCleanupPlan(context.Background())
	require.NoError(t, err)

	validator := e.Validator()
	seen := make(map[string]string)

	for _, phase := range plan.Phases {
		archive := make(map[string]bool)
		for _, rel := range phase.FilesToArchive {
			archive[rel] = true
		}

		if len(phase.FilesToRemove) > 0 {
			result, err := validator.ValidateBatchRemoval(context.Background(), phase.FilesToRemove)
			require.NoError(t, err)
			assert.Empty(t, result.Unsafe, "phase %s removes unsafe files", phase.Name)
		}

		touched := append([]string{}, phase.FilesToRemove...)
		touched = append(touched, phase.FilesToArchive...)
		for _, m := range phase.FilesToMove {
			touched = append(touched, m.From)
		}

		for _, rel := range phase.FilesToRemove {
			assert.False(t, archive[rel], "%s both removed and archived", rel)
		}
		for _, rel := range touched {
			prev, dup := seen[rel]
			assert.False(t, dup, "%s planned by %s and %s", rel, prev, phase.Name)
			seen[rel] = phase.Name
		}
	}

	for _, critical := range []string{"README.md", "package.json", "tsconfig.json"} {
		_, planned := seen[critical]
		assert.False(t, planned, "%s must never be planned", critical)
	}
}

func TestScanProjectIsIdempotent(t *testing.T) {
	p := scenarioProject(t)
	e := newTestEngine(t, p)

	first, err := e.ScanProject(context.Background())
	require.NoError(t, err)
	second, err := e.ScanProject(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first.Categories, second.Categories)
	assert.Equal(t, first.ObsoleteFiles, second.ObsoleteFiles)
	assert.Equal(t, first.DuplicateFiles, second.DuplicateFiles)
	assert.Equal(t, first.TotalFiles, second.TotalFiles)
	assert.Same(t, second, e.Report())
}

func TestAnalyzeDependenciesSeedsValidator(t *testing.T) {
	p := scenarioProject(t)
	e := newTestEngine(t, p)

	_, err := e.Validator().CheckFileReferences("scripts/deploy.js")
	require.Error(t, err)

	graph, err := e.AnalyzeDependencies(context.Background(), []string{"package.json", "scripts/deploy.js"})
	require.NoError(t, err)
	assert.True(t, graph.IsReferenced("scripts/deploy.js"))

	check, err := e.Validator().CheckFileReferences("scripts/deploy.js")
	require.NoError(t, err)
	assert.False(t, check.SafeToRemove)
}

func TestEstimateSpaceSavings(t *testing.T) {
	report := &scanner.FileAnalysisReport{
		Categories: scanner.FileCategoryMap{
			scanner.CategoryLogs:      {"a.log", "b.log"},
			scanner.CategoryTemporary: {"dump.bak"},
		},
		ObsoleteFiles: []string{"a.log", "dump.bak"},
		LargeFiles: []scanner.LargeFileInfo{
			{Path: "dump.bak", Size: 5 * utils.MB},
			{Path: "video.mp4", Size: 50 * utils.MB},
		},
	}

	e := &Engine{}
	assert.Equal(t, int64(5*utils.MB+3*utils.MB), e.EstimateSpaceSavings(report))
}

func TestAssessRiskLevel(t *testing.T) {
	build := func(referencedObsolete, criticalScripts int) (*scanner.FileAnalysisReport, *deps.Graph) {
		report := &scanner.FileAnalysisReport{Categories: scanner.FileCategoryMap{}}
		var nodes []string
		var edges []deps.Edge
		for i := 0; i < referencedObsolete; i++ {
			rel := "old-" + string(rune('a'+i)) + ".log"
			report.ObsoleteFiles = append(report.ObsoleteFiles, rel)
			nodes = append(nodes, rel)
			edges = append(edges, deps.Edge{From: "index.md", To: rel, Type: deps.EdgeReference})
		}
		for i := 0; i < criticalScripts; i++ {
			report.Categories[scanner.CategoryScripts] = append(report.Categories[scanner.CategoryScripts],
				"scripts/deploy-"+string(rune('a'+i))+".sh")
		}
		nodes = append(nodes, "index.md")
		return report, deps.NewGraph(nodes, edges)
	}

	tests := []struct {
		name       string
		referenced int
		critical   int
		want       RiskLevel
	}{
		{"clean", 0, 0, RiskLow},
		{"at medium bounds", 5, 2, RiskLow},
		{"referenced medium", 6, 0, RiskMedium},
		{"scripts medium", 0, 3, RiskMedium},
		{"at high bounds", 10, 5, RiskMedium},
		{"referenced high", 11, 0, RiskHigh},
		{"scripts high", 0, 6, RiskHigh},
	}

	e := &Engine{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, graph := build(tt.referenced, tt.critical)
			assert.Equal(t, tt.want, e.AssessRiskLevel(report, graph))
		})
	}
}

func TestNameHelpers(t *testing.T) {
	assert.Equal(t, []string{"getting", "started"}, nameTokens("docs/Getting_Started.md"))
	assert.True(t, inRetiredDir("scripts/archive/run.sh"))
	assert.False(t, inRetiredDir("scripts/run.sh"))

	for _, name := range []string{"tsconfig.app.json", ".eslintrc.json", "vite.config.ts", "package-lock.json", "babelrc.json"} {
		assert.True(t, isToolConfig(name), name)
	}
	assert.False(t, isToolConfig("settings.json"))
}
