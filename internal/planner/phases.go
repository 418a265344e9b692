package planner

import (
	"context"
	"fmt"
	"os"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/fenilsonani/repotidy/internal/deps"
	"github.com/fenilsonani/repotidy/internal/fsutil"
	"github.com/fenilsonani/repotidy/internal/scanner"
	"github.com/fenilsonani/repotidy/internal/validation"
)

// Target directories for reorganized files
const (
	TechnicalDocsDir = "docs/technical"
	UserDocsDir      = "docs/user"
	ConfigDir        = "config"
)

var (
	// Paths containing these are archived instead of removed
	archiveTokens = []string{"error", "critical", "deploy", "config"}

	// Name tokens marking a document as superseded
	staleDocTokens = map[string]bool{"old": true, "deprecated": true, "archive": true, "archived": true, "legacy": true, "backup": true}

	technicalDocTokens = map[string]bool{"technical": true, "implementation": true, "architecture": true, "api": true}
	userDocTokens      = map[string]bool{"guide": true, "tutorial": true, "readme": true}

	// Directories whose scripts are already retired
	retiredDirs = map[string]bool{"archive": true, "archived": true, "old": true, "deprecated": true, "legacy": true}

	// Config files that tools discover by location; never relocated
	toolConfigNames = map[string]bool{
		"package-lock.json": true, "yarn.lock": true, "pnpm-lock.yaml": true, "pnpm-workspace.yaml": true,
		"lerna.json": true, "nx.json": true, "turbo.json": true, "vercel.json": true, "netlify.toml": true,
		"renovate.json": true, "docker-compose.yml": true, "docker-compose.yaml": true, "compose.yaml": true,
		"pyproject.toml": true, "cargo.toml": true, "deno.json": true, "bunfig.toml": true, "jsconfig.json": true,
		"composer.json": true, "app.json": true, "angular.json": true, "firebase.json": true,
	}

	tokenSplit = regexp.MustCompile(`[^a-z0-9]+`)
)

// phaseBuilder carries the state shared between phases of one plan
type phaseBuilder struct {
	engine *Engine
	report *scanner.FileAnalysisReport
	graph  *deps.Graph

	claimed  map[string]bool // scheduled by an earlier phase
	targets  map[string]bool // planned move destinations
	outgoing map[string]bool // files with resolved references of their own
}

func (b *phaseBuilder) hasOutgoing(rel string) bool {
	if b.outgoing == nil {
		b.outgoing = make(map[string]bool)
		for _, edge := range b.graph.Edges {
			b.outgoing[edge.From] = true
		}
	}
	return b.outgoing[rel]
}

func (b *phaseBuilder) unclaimed(paths []string) []string {
	var out []string
	for _, p := range sortedUnique(paths) {
		if !b.claimed[p] {
			out = append(out, p)
		}
	}
	return out
}

// temporaryCleanup removes logs, temporary and obsolete files. Referenced
// files and paths that look operationally important are archived instead.
func (b *phaseBuilder) temporaryCleanup(ctx context.Context) (Phase, error) {
	var candidates []string
	candidates = append(candidates, b.report.Categories.Get(scanner.CategoryLogs)...)
	candidates = append(candidates, b.report.Categories.Get(scanner.CategoryTemporary)...)
	candidates = append(candidates, b.report.ObsoleteFiles...)

	var remove, archive []string
	for _, rel := range b.unclaimed(candidates) {
		if b.needsArchiving(rel) {
			archive = append(archive, rel)
		} else {
			remove = append(remove, rel)
		}
	}

	phase := Phase{
		Name:               PhaseTemporaryCleanup,
		Description:        "Remove log, temporary and obsolete files",
		ValidationRequired: true,
	}
	return phase, b.finalize(ctx, &phase, remove, archive, nil)
}

func (b *phaseBuilder) needsArchiving(rel string) bool {
	return b.graph.IsReferenced(rel) || containsAny(strings.ToLower(rel), archiveTokens)
}

// documentationOrganization drops duplicate documents, archives superseded
// ones and files the rest under docs/technical or docs/user
func (b *phaseBuilder) documentationOrganization(ctx context.Context) (Phase, error) {
	docs := b.unclaimed(b.report.Categories.Get(scanner.CategoryDocumentation))
	isDoc := make(map[string]bool, len(docs))
	for _, d := range docs {
		isDoc[d] = true
	}

	var remove, archive []string
	handled := make(map[string]bool)

	for _, group := range b.report.DuplicateFiles {
		if len(group.Files) < 2 {
			continue
		}
		// The first member is the one kept
		for _, rel := range group.Files[1:] {
			if isDoc[rel] && !handled[rel] {
				remove = append(remove, rel)
				handled[rel] = true
			}
		}
	}

	var moves []FileMove
	for _, rel := range docs {
		if handled[rel] {
			continue
		}
		tokens := nameTokens(rel)

		if hasToken(tokens, staleDocTokens) {
			archive = append(archive, rel)
			continue
		}

		if move, ok := b.docMove(rel, tokens); ok {
			moves = append(moves, move)
		}
	}

	phase := Phase{
		Name:               PhaseDocumentation,
		Description:        "Remove duplicate documents, archive superseded ones and organize the rest under docs/",
		ValidationRequired: true,
	}
	return phase, b.finalize(ctx, &phase, remove, archive, moves)
}

func (b *phaseBuilder) docMove(rel string, tokens []string) (FileMove, bool) {
	dir := path.Dir(rel)
	if dir != "." && dir != "docs" {
		return FileMove{}, false
	}
	if validation.IsPrimaryDoc(rel) || b.pinned(rel) {
		return FileMove{}, false
	}

	var target, reason string
	switch {
	case hasToken(tokens, technicalDocTokens):
		target, reason = TechnicalDocsDir, "technical documentation"
	case hasToken(tokens, userDocTokens) || strings.Contains(strings.Join(tokens, "_"), "getting_started"):
		target, reason = UserDocsDir, "user documentation"
	default:
		return FileMove{}, false
	}

	return b.planMove(rel, target, reason)
}

// scriptCleanup removes unused or retired scripts and archives the ones
// that are both critical and in use
func (b *phaseBuilder) scriptCleanup(ctx context.Context) (Phase, error) {
	var remove, archive []string

	for _, rel := range b.unclaimed(b.report.Categories.Get(scanner.CategoryScripts)) {
		usage, err := b.engine.validator.ValidateScriptUsage(rel)
		if err != nil {
			return Phase{}, fmt.Errorf("script usage check failed for %s: %w", rel, err)
		}

		switch {
		case usage.IsCritical && usage.IsUsed:
			archive = append(archive, rel)
		case !usage.IsUsed || inRetiredDir(rel):
			remove = append(remove, rel)
		}
	}

	phase := Phase{
		Name:               PhaseScripts,
		Description:        "Remove unused and retired scripts; archive critical scripts in use",
		ValidationRequired: true,
	}
	return phase, b.finalize(ctx, &phase, remove, archive, nil)
}

// folderReorganization consolidates loose root-level configuration files
// under config/. It never removes anything.
func (b *phaseBuilder) folderReorganization(ctx context.Context) (Phase, error) {
	var moves []FileMove

	for _, rel := range b.unclaimed(b.report.Categories.Get(scanner.CategoryConfiguration)) {
		if path.Dir(rel) != "." || isToolConfig(rel) {
			continue
		}
		if b.engine.validator.IsCriticalFile(rel) || b.pinned(rel) {
			continue
		}
		if move, ok := b.planMove(rel, ConfigDir, "configuration file"); ok {
			moves = append(moves, move)
		}
	}

	phase := Phase{
		Name:        PhaseFolders,
		Description: "Consolidate configuration files under config/",
	}
	return phase, b.finalize(ctx, &phase, nil, nil, moves)
}

// pinned reports whether moving rel would break a reference to or from it
func (b *phaseBuilder) pinned(rel string) bool {
	return b.graph.IsReferenced(rel) || b.hasOutgoing(rel)
}

func (b *phaseBuilder) planMove(rel, dir, reason string) (FileMove, bool) {
	if strings.HasPrefix(rel, dir+"/") {
		return FileMove{}, false
	}

	to := path.Join(dir, path.Base(rel))
	if b.targets[to] || b.exists(to) {
		return FileMove{}, false
	}

	b.targets[to] = true
	return FileMove{From: rel, To: to, Reason: reason}, true
}

func (b *phaseBuilder) exists(rel string) bool {
	_, err := os.Lstat(fsutil.Abs(b.engine.root, rel))
	return err == nil
}

// finalize re-validates the removal list, demoting unsafe entries to the
// archive list, and claims every file the phase touches
func (b *phaseBuilder) finalize(ctx context.Context, phase *Phase, remove, archive []string, moves []FileMove) error {
	phase.FilesToRemove = []string{}
	phase.FilesToArchive = []string{}
	phase.FilesToMove = []FileMove{}

	archiveSet := make(map[string]bool)
	for _, rel := range archive {
		archiveSet[rel] = true
	}

	if len(remove) > 0 {
		result, err := b.engine.validator.ValidateBatchRemoval(ctx, sortedUnique(remove))
		if err != nil {
			return fmt.Errorf("validation of %s failed: %w", phase.Name, err)
		}

		for _, rel := range result.Safe {
			if !archiveSet[rel] {
				phase.FilesToRemove = append(phase.FilesToRemove, rel)
			}
		}
		for _, rel := range result.Unsafe {
			archiveSet[rel] = true
		}
		if len(result.Warnings) > 0 {
			phase.Warnings = result.Warnings
		}
	}

	for rel := range archiveSet {
		phase.FilesToArchive = append(phase.FilesToArchive, rel)
	}
	sort.Strings(phase.FilesToRemove)
	sort.Strings(phase.FilesToArchive)

	phase.FilesToMove = append(phase.FilesToMove, moves...)
	sort.Slice(phase.FilesToMove, func(i, j int) bool {
		return phase.FilesToMove[i].From < phase.FilesToMove[j].From
	})

	for _, rel := range phase.FilesToRemove {
		b.claimed[rel] = true
	}
	for _, rel := range phase.FilesToArchive {
		b.claimed[rel] = true
	}
	for _, m := range phase.FilesToMove {
		b.claimed[m.From] = true
	}

	b.engine.logger.Debug().
		Str("phase", phase.Name).
		Int("remove", len(phase.FilesToRemove)).
		Int("archive", len(phase.FilesToArchive)).
		Int("move", len(phase.FilesToMove)).
		Msg("phase planned")

	return nil
}

// nameTokens splits the lowercase file stem into alphanumeric tokens
func nameTokens(rel string) []string {
	base := strings.ToLower(path.Base(rel))
	stem := strings.TrimSuffix(base, path.Ext(base))

	var tokens []string
	for _, t := range tokenSplit.Split(stem, -1) {
		if t != "" {
			tokens = append(tokens, t)
		}
	}
	return tokens
}

func hasToken(tokens []string, set map[string]bool) bool {
	for _, t := range tokens {
		if set[t] {
			return true
		}
	}
	return false
}

func inRetiredDir(rel string) bool {
	segments := strings.Split(strings.ToLower(path.Dir(rel)), "/")
	for _, s := range segments {
		if retiredDirs[s] {
			return true
		}
	}
	return false
}

func isToolConfig(rel string) bool {
	base := strings.ToLower(path.Base(rel))
	if strings.HasPrefix(base, ".") || toolConfigNames[base] {
		return true
	}
	if strings.HasPrefix(base, "tsconfig") || strings.Contains(base, ".config.") {
		return true
	}
	stem := strings.TrimSuffix(base, path.Ext(base))
	return strings.HasSuffix(stem, "rc")
}
