package cleaner

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/fenilsonani/repotidy/internal/fsutil"
	"github.com/fenilsonani/repotidy/internal/rollback"
	"github.com/fenilsonani/repotidy/internal/scanner"
)

// IndexPath is the generated documentation index
const IndexPath = "docs/INDEX.md"

// structureDepth bounds the directory tree in project-structure.md
const structureDepth = 3

// WriteDocumentationIndex regenerates docs/INDEX.md from the documents
// under docs/. Overwriting an existing index is recorded as a modification
// in its own rollback point, whose id is returned.
func (e *Executor) WriteDocumentationIndex() (string, error) {
	docs, err := e.collectDocs()
	if err != nil {
		return "", err
	}

	content := renderIndex(docs, time.Now())
	abs := fsutil.Abs(e.root, IndexPath)

	unlock := e.rollback.LockPath(IndexPath)
	defer unlock()

	var (
		id       string
		recorded *rollback.Operation
	)
	if _, err := os.Lstat(abs); err == nil {
		id, err = e.rollback.CreateRollbackPoint("documentation-index", "Regenerate "+IndexPath)
		if err != nil {
			return "", fmt.Errorf("failed to create rollback point: %w", err)
		}
		defer func() {
			if err := e.rollback.ClosePoint(); err != nil {
				e.logger.Error().Err(err).Msg("failed to close rollback point")
			}
		}()

		op, err := e.rollback.RecordModification(IndexPath, "regenerated documentation index")
		if err != nil {
			return id, fmt.Errorf("index left untouched: %w", err)
		}
		recorded = &op
	}

	if err := writeAtomic(abs, []byte(content)); err != nil {
		if recorded != nil {
			if merr := e.rollback.MarkNotApplied(*recorded); merr != nil {
				e.logger.Error().Err(merr).Msg("failed to mark index rewrite as not applied")
			}
		}
		return id, fmt.Errorf("failed to write %s: %w", IndexPath, err)
	}
	e.validator.Forget(IndexPath)

	e.logger.Info().Str("path", IndexPath).Int("documents", len(docs)).Msg("documentation index written")
	return id, nil
}

// indexedDoc is one entry of the documentation index
type indexedDoc struct {
	rel   string // relative to docs/
	title string
}

func (e *Executor) collectDocs() ([]indexedDoc, error) {
	docsDir := fsutil.Abs(e.root, "docs")
	var docs []indexedDoc

	err := filepath.WalkDir(docsDir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && p == docsDir {
				return filepath.SkipDir
			}
			e.logger.Warn().Str("path", p).Err(err).Msg("skipping unreadable entry")
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		rel, err := fsutil.Rel(e.root, p)
		if err != nil || rel == IndexPath {
			return nil
		}
		if c, ok := scanner.Categorize(rel); !ok || c != scanner.CategoryDocumentation {
			return nil
		}

		title := ""
		if content, err := os.ReadFile(p); err == nil {
			title = documentTitle(content)
		}
		if title == "" {
			title = path.Base(rel)
		}

		docs = append(docs, indexedDoc{rel: strings.TrimPrefix(rel, "docs/"), title: title})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk docs: %w", err)
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].rel < docs[j].rel })
	return docs, nil
}

func renderIndex(docs []indexedDoc, now time.Time) string {
	groups := make(map[string][]indexedDoc)
	for _, d := range docs {
		dir := path.Dir(d.rel)
		groups[dir] = append(groups[dir], d)
	}

	dirs := make([]string, 0, len(groups))
	for dir := range groups {
		dirs = append(dirs, dir)
	}
	sort.Slice(dirs, func(i, j int) bool {
		// Loose top-level documents first
		if (dirs[i] == ".") != (dirs[j] == ".") {
			return dirs[i] == "."
		}
		return dirs[i] < dirs[j]
	})

	var b strings.Builder
	b.WriteString("# Documentation Index\n\n")
	fmt.Fprintf(&b, "_Generated by repotidy on %s._\n", now.Format("2006-01-02"))

	for _, dir := range dirs {
		b.WriteString("\n## ")
		b.WriteString(sectionTitle(dir))
		b.WriteString("\n\n")
		for _, d := range groups[dir] {
			fmt.Fprintf(&b, "- [%s](./%s)\n", d.title, d.rel)
		}
	}

	if len(docs) == 0 {
		b.WriteString("\nNo documents found.\n")
	}
	return b.String()
}

func sectionTitle(dir string) string {
	switch dir {
	case ".":
		return "General"
	case "technical":
		return "Technical Documentation"
	case "user":
		return "User Documentation"
	default:
		words := strings.FieldsFunc(dir, func(r rune) bool { return r == '/' || r == '-' || r == '_' })
		for i, w := range words {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
		return strings.Join(words, " / ")
	}
}

// documentTitle returns the text of the first level-one heading
func documentTitle(content []byte) string {
	doc := goldmark.New().Parser().Parse(text.NewReader(content))

	var title string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || title != "" {
			return ast.WalkContinue, nil
		}
		if h, ok := n.(*ast.Heading); ok && h.Level == 1 {
			title = strings.TrimSpace(inlineText(h, content))
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})
	return title
}

func inlineText(n ast.Node, source []byte) string {
	var buf bytes.Buffer
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch t := c.(type) {
		case *ast.Text:
			buf.Write(t.Segment.Value(source))
			if t.SoftLineBreak() {
				buf.WriteByte(' ')
			}
		default:
			buf.WriteString(inlineText(c, source))
		}
	}
	return buf.String()
}

// WriteProjectStructure writes <state>/reports/project-structure.md, a
// directory overview of the tree as it is after cleanup
func (e *Executor) WriteProjectStructure(ctx context.Context) (string, error) {
	files, err := scanner.New(e.root, e.config, e.logger).ScanAllFiles(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to scan project: %w", err)
	}

	dir := filepath.Join(e.config.StatePath(e.root), "reports")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create reports directory: %w", err)
	}

	out := filepath.Join(dir, "project-structure.md")
	if err := writeAtomic(out, []byte(renderStructure(files, time.Now()))); err != nil {
		return "", fmt.Errorf("failed to write project structure: %w", err)
	}
	return out, nil
}

// dirNode is a directory in the rendered tree
type dirNode struct {
	name     string
	files    []string
	total    int // files at or below this directory
	children map[string]*dirNode
}

func newDirNode(name string) *dirNode {
	return &dirNode{name: name, children: make(map[string]*dirNode)}
}

func renderStructure(files []string, now time.Time) string {
	root := newDirNode(".")
	for _, rel := range files {
		node := root
		node.total++
		parts := strings.Split(rel, "/")
		for _, part := range parts[:len(parts)-1] {
			child, ok := node.children[part]
			if !ok {
				child = newDirNode(part)
				node.children[part] = child
			}
			child.total++
			node = child
		}
		node.files = append(node.files, parts[len(parts)-1])
	}

	var b strings.Builder
	b.WriteString("# Project Structure\n\n")
	fmt.Fprintf(&b, "_Generated by repotidy on %s. %d files._\n\n", now.Format("2006-01-02 15:04"), root.total)
	b.WriteString("```\n.\n")
	writeTree(&b, root, "", 1)
	b.WriteString("```\n")

	counts := make(map[scanner.Category]int)
	for _, rel := range files {
		if c, ok := scanner.Categorize(rel); ok {
			counts[c]++
		}
	}
	if len(counts) > 0 {
		b.WriteString("\n## Files by category\n\n")
		b.WriteString("| Category | Files |\n|---|---|\n")
		for _, c := range scanner.AllCategories {
			if counts[c] > 0 {
				fmt.Fprintf(&b, "| %s | %d |\n", c, counts[c])
			}
		}
	}

	return b.String()
}

func writeTree(b *strings.Builder, node *dirNode, prefix string, depth int) {
	names := make([]string, 0, len(node.children))
	for name := range node.children {
		names = append(names, name)
	}
	sort.Strings(names)

	files := append([]string(nil), node.files...)
	sort.Strings(files)

	// Directories, then the files of this level
	entries := len(names) + len(files)
	i := 0
	for _, name := range names {
		i++
		child := node.children[name]
		branch, next := "├── ", "│   "
		if i == entries {
			branch, next = "└── ", "    "
		}
		fmt.Fprintf(b, "%s%s%s/ (%d files)\n", prefix, branch, name, child.total)
		if depth < structureDepth {
			writeTree(b, child, prefix+next, depth+1)
		}
	}
	for _, name := range files {
		i++
		branch := "├── "
		if i == entries {
			branch = "└── "
		}
		fmt.Fprintf(b, "%s%s%s\n", prefix, branch, name)
	}
}

// writeAtomic writes data next to path and renames it into place
func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
