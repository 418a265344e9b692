package deps

import (
	"context"
	"errors"
	"os"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/phuslu/log"
	"golang.org/x/sync/errgroup"

	"github.com/fenilsonani/repotidy/internal/config"
	"github.com/fenilsonani/repotidy/internal/fsutil"
	"github.com/fenilsonani/repotidy/internal/progress"
)

// candidateExtensions are tried in order when resolving a reference
var candidateExtensions = []string{"", ".ts", ".tsx", ".js", ".jsx", ".json", ".md"}

// Analyzer extracts references from files and assembles the graph
type Analyzer struct {
	root             string
	cfg              *config.Config
	logger           *log.Logger
	cache            *fsutil.ContentCache
	progressReporter *progress.ProgressReporter

	// exists memoizes regular-file checks during one analysis
	exists *sync.Map
}

// NewAnalyzer creates an analyzer reading file content through cache
func NewAnalyzer(root string, cfg *config.Config, logger *log.Logger, cache *fsutil.ContentCache) *Analyzer {
	return &Analyzer{
		root:   root,
		cfg:    cfg,
		logger: logger,
		cache:  cache,
		exists: &sync.Map{},
	}
}

// SetProgressReporter sets a progress reporter for analysis updates
func (a *Analyzer) SetProgressReporter(pr *progress.ProgressReporter) {
	a.progressReporter = pr
}

// AnalyzeDependencies builds the graph over paths. Unreadable files are
// logged and contribute no edges. The analysis stops early when ctx is
// cancelled.
func (a *Analyzer) AnalyzeDependencies(ctx context.Context, paths []string) (*Graph, error) {
	a.exists = &sync.Map{}

	perFile := make([][]Edge, len(paths))
	startTime := time.Now()
	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.WorkerCount())

	for i, rel := range paths {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			perFile[i] = a.analyzeFile(rel)

			n := done.Add(1)
			if n%100 == 0 || int(n) == len(paths) {
				a.reportProgress(rel, int(n), len(paths), startTime)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var edges []Edge
	for _, fileEdges := range perFile {
		edges = append(edges, fileEdges...)
	}

	graph := NewGraph(paths, edges)
	a.logger.Debug().Int("nodes", len(graph.Nodes)).Int("edges", len(graph.Edges)).Dur("elapsed", time.Since(startTime)).Msg("dependency analysis complete")
	return graph, nil
}

// analyzeFile extracts and resolves the outgoing edges of one file
func (a *Analyzer) analyzeFile(rel string) []Edge {
	extractor, ok := ExtractorFor(rel)
	if !ok {
		return nil
	}

	content, err := a.cache.Read(rel)
	if err != nil {
		if errors.Is(err, fsutil.ErrTooLarge) {
			a.logger.Debug().Str("path", rel).Msg("skipping oversized file")
		} else {
			a.logger.Warn().Str("path", rel).Err(err).Msg("failed to read file for analysis")
		}
		return nil
	}

	var edges []Edge
	for _, ref := range extractor.ExtractReferences(content) {
		target, ok := a.Resolve(rel, ref)
		if !ok {
			continue
		}
		edges = append(edges, Edge{From: rel, To: target, Type: ref.Type})
	}
	return edges
}

// Resolve turns a reference found in from into a project-relative path.
// Non-relative module specifiers and targets outside the root are dropped.
func (a *Analyzer) Resolve(from string, ref Reference) (string, bool) {
	target := stripFragment(ref.Target)
	if target == "" {
		return "", false
	}

	switch {
	case ref.Bare:
		// Try the referring file's directory, then the root; must exist
		for _, base := range []string{path.Join(path.Dir(from), target), path.Clean(target)} {
			if !fsutil.WithinRoot(base) {
				continue
			}
			if found, ok := a.withExtensions(base); ok {
				return found, true
			}
		}
		return "", false

	case ref.RootRelative:
		base := path.Clean(strings.TrimPrefix(target, "/"))
		if base == "." || !fsutil.WithinRoot(base) {
			return "", false
		}
		if found, ok := a.withExtensions(base); ok {
			return found, true
		}
		return base, true

	case isRelative(target):
		base := path.Join(path.Dir(from), target)
		if base == "." || !fsutil.WithinRoot(base) {
			return "", false
		}
		if found, ok := a.withExtensions(base); ok {
			return found, true
		}
		// Fall back to the lexical path
		return base, true

	default:
		return "", false
	}
}

// withExtensions tries base with each candidate extension, then as a directory index
func (a *Analyzer) withExtensions(base string) (string, bool) {
	for _, ext := range candidateExtensions {
		if a.isFile(base + ext) {
			return base + ext, true
		}
	}
	for _, ext := range candidateExtensions[1:] {
		index := base + "/index" + ext
		if a.isFile(index) {
			return index, true
		}
	}
	return "", false
}

func (a *Analyzer) isFile(rel string) bool {
	if v, ok := a.exists.Load(rel); ok {
		return v.(bool)
	}
	info, err := os.Stat(fsutil.Abs(a.root, rel))
	found := err == nil && info.Mode().IsRegular()
	a.exists.Store(rel, found)
	return found
}

func (a *Analyzer) reportProgress(currentPath string, done, total int, startTime time.Time) {
	if a.progressReporter == nil {
		return
	}
	a.progressReporter.UpdateScanProgress(&progress.ScanProgress{
		Phase:       progress.PhaseAnalyzing,
		Stage:       "dependencies",
		CurrentPath: currentPath,
		FilesDone:   done,
		FilesTotal:  total,
		StartTime:   startTime,
	})
}
