// Package planner turns a scan of the project into an ordered cleanup plan.
// Planning never touches the tree; every file it schedules for removal has
// been through the validation engine.
package planner

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/phuslu/log"

	"github.com/fenilsonani/repotidy/internal/config"
	"github.com/fenilsonani/repotidy/internal/deps"
	"github.com/fenilsonani/repotidy/internal/fsutil"
	"github.com/fenilsonani/repotidy/internal/progress"
	"github.com/fenilsonani/repotidy/internal/scanner"
	"github.com/fenilsonani/repotidy/internal/validation"
	"github.com/fenilsonani/repotidy/pkg/utils"
)

// estimatedBytesPerFile stands in for unmeasured log and temporary files
const estimatedBytesPerFile = utils.MB

// Engine builds cleanup plans
type Engine struct {
	root      string
	cfg       *config.Config
	logger    *log.Logger
	scanner   *scanner.Scanner
	analyzer  *deps.Analyzer
	validator *validation.Engine

	report *scanner.FileAnalysisReport
	graph  *deps.Graph
}

// New creates a planning engine from its collaborators
func New(root string, cfg *config.Config, logger *log.Logger, s *scanner.Scanner, a *deps.Analyzer, v *validation.Engine) *Engine {
	return &Engine{
		root:      root,
		cfg:       cfg,
		logger:    logger,
		scanner:   s,
		analyzer:  a,
		validator: v,
	}
}

// NewForProject wires a scanner, analyzer and validator over a shared
// content cache
func NewForProject(root string, cfg *config.Config, logger *log.Logger) *Engine {
	cache := fsutil.NewContentCache(root, cfg.ContentCacheEntries, cfg.MaxAnalyzeBytes())
	s := scanner.New(root, cfg, logger)
	a := deps.NewAnalyzer(root, cfg, logger, cache)
	v := validation.New(root, cfg, logger, a, cache)
	return New(root, cfg, logger, s, a, v)
}

// SetProgressReporter routes scan and analysis progress to pr
func (e *Engine) SetProgressReporter(pr *progress.ProgressReporter) {
	e.scanner.SetProgressReporter(pr)
	e.analyzer.SetProgressReporter(pr)
}

// Validator returns the validation engine seeded by AnalyzeDependencies
func (e *Engine) Validator() *validation.Engine {
	return e.validator
}

// Root returns the project root
func (e *Engine) Root() string {
	return e.root
}

// Report returns the last scan report, or nil
func (e *Engine) Report() *scanner.FileAnalysisReport {
	return e.report
}

// Graph returns the last dependency graph, or nil
func (e *Engine) Graph() *deps.Graph {
	return e.graph
}

// ScanProject runs every scanner analysis and assembles the report
func (e *Engine) ScanProject(ctx context.Context) (*scanner.FileAnalysisReport, error) {
	files, err := e.scanner.ScanAllFiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	obsolete, err := e.scanner.IdentifyObsoleteFiles(ctx, files)
	if err != nil {
		return nil, fmt.Errorf("obsolete detection failed: %w", err)
	}

	large, err := e.scanner.IdentifyLargeFiles(ctx, files)
	if err != nil {
		return nil, fmt.Errorf("large file detection failed: %w", err)
	}

	report := &scanner.FileAnalysisReport{
		Root:           e.root,
		TotalFiles:     len(files),
		Files:          files,
		Categories:     e.scanner.CategorizeFiles(files),
		ObsoleteFiles:  obsolete,
		DuplicateFiles: e.scanner.IdentifyDuplicates(files),
		LargeFiles:     large,
		Timestamp:      time.Now(),
	}

	e.report = report

	e.logger.Info().
		Int("files", report.TotalFiles).
		Int("categorized", report.Categories.Count()).
		Int("obsolete", len(report.ObsoleteFiles)).
		Int("duplicate_groups", len(report.DuplicateFiles)).
		Int("large", len(report.LargeFiles)).
		Msg("project scanned")

	return report, nil
}

// AnalyzeDependencies builds the reference graph over paths and seeds the
// validation engine with it
func (e *Engine) AnalyzeDependencies(ctx context.Context, paths []string) (*deps.Graph, error) {
	graph, err := e.analyzer.AnalyzeDependencies(ctx, paths)
	if err != nil {
		return nil, fmt.Errorf("dependency analysis failed: %w", err)
	}

	e.validator.UseGraph(graph)
	e.graph = graph

	e.logger.Info().Int("nodes", len(graph.Nodes)).Int("edges", len(graph.Edges)).Msg("dependencies analyzed")
	return graph, nil
}

// GenerateCleanupPlan scans the project, analyzes its references and
// builds the four cleanup phases
func (e *Engine) GenerateCleanupPlan(ctx context.Context) (*Plan, error) {
	report, err := e.ScanProject(ctx)
	if err != nil {
		return nil, err
	}

	// Every scanned file can hold a reference, categorized or not
	graph, err := e.AnalyzeDependencies(ctx, report.Files)
	if err != nil {
		return nil, err
	}

	b := &phaseBuilder{
		engine:  e,
		report:  report,
		graph:   graph,
		claimed: make(map[string]bool),
		targets: make(map[string]bool),
	}

	plan := &Plan{
		Root:      e.root,
		CreatedAt: time.Now(),
	}

	builders := []func(context.Context) (Phase, error){
		b.temporaryCleanup,
		b.documentationOrganization,
		b.scriptCleanup,
		b.folderReorganization,
	}
	for _, build := range builders {
		phase, err := build(ctx)
		if err != nil {
			return nil, err
		}
		plan.Phases = append(plan.Phases, phase)
	}

	plan.EstimatedBytesSaved = e.EstimateSpaceSavings(report)
	plan.RiskLevel = e.AssessRiskLevel(report, graph)
	plan.Validation = e.validationSteps(plan.RiskLevel)

	e.logger.Info().
		Int("files", plan.TotalFiles()).
		Str("risk", string(plan.RiskLevel)).
		Str("estimated_savings", utils.FormatBytes(plan.EstimatedBytesSaved)).
		Msg("cleanup plan generated")

	return plan, nil
}

// EstimateSpaceSavings sums the sizes of large obsolete files and charges a
// flat estimate for each log or temporary file
func (e *Engine) EstimateSpaceSavings(report *scanner.FileAnalysisReport) int64 {
	var total int64

	for _, lf := range report.LargeFiles {
		if report.IsObsolete(lf.Path) {
			total += lf.Size
		}
	}

	perFile := len(report.Categories.Get(scanner.CategoryLogs)) + len(report.Categories.Get(scanner.CategoryTemporary))
	total += int64(perFile) * estimatedBytesPerFile

	return total
}

// AssessRiskLevel grades a report by how many obsolete files are still
// referenced and how many scripts look deployment-critical
func (e *Engine) AssessRiskLevel(report *scanner.FileAnalysisReport, graph *deps.Graph) RiskLevel {
	referencedObsolete := 0
	if graph != nil {
		for _, rel := range report.ObsoleteFiles {
			if graph.IsReferenced(rel) {
				referencedObsolete++
			}
		}
	}

	criticalScripts := 0
	for _, rel := range report.Categories.Get(scanner.CategoryScripts) {
		if containsAny(strings.ToLower(rel), riskyScriptTokens) {
			criticalScripts++
		}
	}

	switch {
	case referencedObsolete > 10 || criticalScripts > 5:
		return RiskHigh
	case referencedObsolete > 5 || criticalScripts > 2:
		return RiskMedium
	default:
		return RiskLow
	}
}

var riskyScriptTokens = []string{"deploy", "build", "production"}

func (e *Engine) validationSteps(risk RiskLevel) []ValidationStep {
	buildable := false
	if m := e.validator.Manifest(); m != nil {
		buildable = m.HasScript("build") || m.HasScript("test")
	}

	return []ValidationStep{
		{
			Kind:        ValidationReferenceCheck,
			Description: "re-validate removal candidates against the reference graph",
			Required:    true,
		},
		{
			Kind:        ValidationBuildTest,
			Description: "run the manifest build and test scripts after cleanup",
			Required:    buildable,
		},
		{
			Kind:        ValidationDependencyCheck,
			Description: "run integrity checks on the manifest and critical files",
			Required:    risk != RiskLow,
		},
	}
}

func containsAny(s string, tokens []string) bool {
	for _, t := range tokens {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

func sortedUnique(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}
