// Package validation decides which files are safe to remove. It combines
// the dependency graph with script-usage and sensitive-content heuristics
// and never fails a file by returning an error: unsafe files are routed to
// the unsafe partition with the reasons attached.
package validation

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/phuslu/log"
	"golang.org/x/sync/errgroup"

	"github.com/fenilsonani/repotidy/internal/config"
	"github.com/fenilsonani/repotidy/internal/deps"
	"github.com/fenilsonani/repotidy/internal/fsutil"
	"github.com/fenilsonani/repotidy/internal/manifest"
	"github.com/fenilsonani/repotidy/internal/scanner"
)

// ErrNotInitialized is returned by queries made before a dependency graph
// has been set
var ErrNotInitialized = errors.New("validation engine not initialized: no dependency graph")

// GraphBuilder builds a dependency graph over a set of files
type GraphBuilder interface {
	AnalyzeDependencies(ctx context.Context, paths []string) (*deps.Graph, error)
}

// primaryDocs are always unsafe to remove
var primaryDocs = map[string]bool{
	"readme.md":          true,
	"getting_started.md": true,
	"installation.md":    true,
	"setup.md":           true,
}

// Engine validates removal candidates against the dependency graph
type Engine struct {
	root     string
	cfg      *config.Config
	logger   *log.Logger
	analyzer GraphBuilder
	cache    *fsutil.ContentCache

	mu       sync.RWMutex
	graph    *deps.Graph
	manifest *manifest.Manifest
	loaded   bool
}

// New creates a validation engine
func New(root string, cfg *config.Config, logger *log.Logger, analyzer GraphBuilder, cache *fsutil.ContentCache) *Engine {
	return &Engine{
		root:     root,
		cfg:      cfg,
		logger:   logger,
		analyzer: analyzer,
		cache:    cache,
	}
}

// SetDependencyGraph analyzes paths and keeps the resulting graph for
// subsequent queries
func (e *Engine) SetDependencyGraph(ctx context.Context, paths []string) error {
	if e.analyzer == nil {
		return errors.New("validation engine has no dependency analyzer")
	}

	graph, err := e.analyzer.AnalyzeDependencies(ctx, paths)
	if err != nil {
		return fmt.Errorf("failed to analyze dependencies: %w", err)
	}

	e.UseGraph(graph)
	return nil
}

// UseGraph installs an already built graph
func (e *Engine) UseGraph(graph *deps.Graph) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.graph = graph
	// Manifest is re-read lazily against the new state
	e.manifest = nil
	e.loaded = false
}

// Graph returns the current graph
func (e *Engine) Graph() (*deps.Graph, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.graph == nil {
		return nil, ErrNotInitialized
	}
	return e.graph, nil
}

// loadManifest returns the parsed manifest, or nil when it is missing or
// broken. The result is cached until the graph changes.
func (e *Engine) loadManifest() *manifest.Manifest {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.loaded {
		return e.manifest
	}

	m, err := manifest.Load(e.root, e.cfg.Manifest)
	if err != nil {
		e.logger.Debug().Err(err).Msg("manifest unavailable for script usage checks")
	}
	e.manifest = m
	e.loaded = true
	return m
}

// ReferenceCheck is the result of CheckFileReferences
type ReferenceCheck struct {
	IsReferenced bool     `json:"is_referenced"`
	ReferencedBy []string `json:"referenced_by"`
	SafeToRemove bool     `json:"safe_to_remove"`
}

// CheckFileReferences reports who references rel
func (e *Engine) CheckFileReferences(rel string) (ReferenceCheck, error) {
	graph, err := e.Graph()
	if err != nil {
		return ReferenceCheck{}, err
	}

	referencedBy := graph.ReferencingFiles(rel)
	return ReferenceCheck{
		IsReferenced: len(referencedBy) > 0,
		ReferencedBy: referencedBy,
		SafeToRemove: len(referencedBy) == 0,
	}, nil
}

// ScriptUsage is the result of ValidateScriptUsage
type ScriptUsage struct {
	IsUsed     bool     `json:"is_used"`
	UsedBy     []string `json:"used_by"`
	IsCritical bool     `json:"is_critical"`
}

// ValidateScriptUsage reports whether a script is invoked by a manifest
// script or referenced by another file, and whether it looks critical.
// Manifest usage is reported as "<manifest>:scripts.<name>".
func (e *Engine) ValidateScriptUsage(rel string) (ScriptUsage, error) {
	graph, err := e.Graph()
	if err != nil {
		return ScriptUsage{}, err
	}

	var usage ScriptUsage
	seen := make(map[string]bool)
	add := func(entry string) {
		if !seen[entry] {
			seen[entry] = true
			usage.UsedBy = append(usage.UsedBy, entry)
		}
	}

	if m := e.loadManifest(); m != nil {
		for _, name := range m.ScriptsReferencing(rel) {
			add(fmt.Sprintf("%s:scripts.%s", m.Path, name))
			if e.isCriticalScriptName(name) {
				usage.IsCritical = true
			}
		}
	}

	for _, from := range graph.ReferencingFiles(rel) {
		add(from)
	}

	usage.IsUsed = len(usage.UsedBy) > 0
	if e.hasCriticalPathToken(rel) {
		usage.IsCritical = true
	}

	return usage, nil
}

func (e *Engine) isCriticalScriptName(name string) bool {
	for _, critical := range e.cfg.CriticalScriptNames {
		if name == critical || strings.HasPrefix(name, critical+":") {
			return true
		}
	}
	return false
}

func (e *Engine) hasCriticalPathToken(rel string) bool {
	lower := strings.ToLower(rel)
	for _, token := range e.cfg.CriticalPathTokens {
		if strings.Contains(lower, token) {
			return true
		}
	}
	return false
}

// DocSafety is the result of VerifyDocumentationSafety
type DocSafety struct {
	IsSafe               bool     `json:"is_safe"`
	ContainsCriticalInfo bool     `json:"contains_critical_info"`
	Warnings             []string `json:"warnings"`
}

// VerifyDocumentationSafety flags documents that carry setup, credential,
// configuration, database or deployment information, primary documents,
// and documents referenced elsewhere. A document that cannot be read is
// unsafe.
func (e *Engine) VerifyDocumentationSafety(rel string) (DocSafety, error) {
	graph, err := e.Graph()
	if err != nil {
		return DocSafety{}, err
	}

	var warnings []string

	if IsPrimaryDoc(rel) {
		warnings = append(warnings, "primary project document")
	}

	if refs := graph.ReferencingFiles(rel); len(refs) > 0 {
		warnings = append(warnings, "referenced by "+strings.Join(refs, ", "))
	}

	content, err := e.cache.Read(rel)
	if err != nil {
		warnings = append(warnings, fmt.Sprintf("unreadable: %v", err))
	} else {
		for _, topic := range SensitiveTopics(content) {
			warnings = append(warnings, "contains "+topic)
		}
	}

	critical := len(warnings) > 0
	return DocSafety{
		IsSafe:               !critical,
		ContainsCriticalInfo: critical,
		Warnings:             warnings,
	}, nil
}

// BatchResult partitions removal candidates. Every input path lands in
// exactly one of Safe or Unsafe, in input order.
type BatchResult struct {
	Safe     []string            `json:"safe"`
	Unsafe   []string            `json:"unsafe"`
	Warnings map[string][]string `json:"warnings"`
}

// IsUnsafe reports whether rel was placed in the unsafe partition
func (r *BatchResult) IsUnsafe(rel string) bool {
	_, flagged := r.Warnings[rel]
	return flagged
}

// ValidateBatchRemoval runs every applicable check on each candidate and
// partitions them. Reference checks always run; script checks run for
// script-like files and documentation checks for doc-like files.
func (e *Engine) ValidateBatchRemoval(ctx context.Context, paths []string) (*BatchResult, error) {
	if _, err := e.Graph(); err != nil {
		return nil, err
	}

	// Duplicates would break the partition
	unique := make([]string, 0, len(paths))
	seen := make(map[string]bool, len(paths))
	for _, p := range paths {
		if !seen[p] {
			seen[p] = true
			unique = append(unique, p)
		}
	}

	reasons := make([][]string, len(unique))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.WorkerCount())

	for i, rel := range unique {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r, err := e.evaluate(rel)
			if err != nil {
				return err
			}
			reasons[i] = r
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &BatchResult{
		Safe:     []string{},
		Unsafe:   []string{},
		Warnings: make(map[string][]string),
	}
	for i, rel := range unique {
		if len(reasons[i]) == 0 {
			result.Safe = append(result.Safe, rel)
			continue
		}
		result.Unsafe = append(result.Unsafe, rel)
		result.Warnings[rel] = reasons[i]
	}

	return result, nil
}

// evaluate returns every reason rel is unsafe, or nil when it is safe
func (e *Engine) evaluate(rel string) ([]string, error) {
	var reasons []string

	if e.isCriticalFile(rel) {
		reasons = append(reasons, "critical project file")
	}

	refs, err := e.CheckFileReferences(rel)
	if err != nil {
		return nil, err
	}
	if refs.IsReferenced {
		reasons = append(reasons, "referenced by "+strings.Join(refs.ReferencedBy, ", "))
	}

	category, _ := scanner.Categorize(rel)

	if category == scanner.CategoryScripts || deps.Classify(rel) == deps.KindScript {
		usage, err := e.ValidateScriptUsage(rel)
		if err != nil {
			return nil, err
		}
		for _, entry := range usage.UsedBy {
			if strings.Contains(entry, ":scripts.") {
				reasons = append(reasons, "used by "+entry)
			}
		}
		if usage.IsCritical {
			reasons = append(reasons, "critical script")
		}
	}

	if category == scanner.CategoryDocumentation {
		safety, err := e.VerifyDocumentationSafety(rel)
		if err != nil {
			return nil, err
		}
		for _, w := range safety.Warnings {
			// Reference warnings were already added above
			if !strings.HasPrefix(w, "referenced by ") {
				reasons = append(reasons, w)
			}
		}
	}

	return reasons, nil
}

// IsPrimaryDoc reports whether rel is one of the project's entry documents
func IsPrimaryDoc(rel string) bool {
	return primaryDocs[strings.ToLower(path.Base(rel))]
}

// Forget drops cached contents of paths the executor has changed
func (e *Engine) Forget(paths ...string) {
	for _, rel := range paths {
		e.cache.Invalidate(rel)
	}
}

// Manifest returns the project manifest, or nil when it is missing or broken
func (e *Engine) Manifest() *manifest.Manifest {
	return e.loadManifest()
}

// IsCriticalFile reports whether rel is the manifest or a configured
// critical file
func (e *Engine) IsCriticalFile(rel string) bool {
	return e.isCriticalFile(rel)
}

func (e *Engine) isCriticalFile(rel string) bool {
	if rel == e.cfg.Manifest {
		return true
	}
	for _, critical := range e.cfg.CriticalFiles {
		if rel == critical {
			return true
		}
	}
	return false
}
