package deps

import (
	"bytes"
	"encoding/json"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"
)

// Reference is a textual reference found in a file, before resolution
type Reference struct {
	Target string
	Type   EdgeType
	// Bare targets carry no ./ prefix ("scripts/deploy.js"). They resolve
	// against the referring file's directory or the root, and only when the
	// file exists.
	Bare bool
	// RootRelative targets start with "/" and resolve from the root
	RootRelative bool
}

// Extractor finds references in a file's content
type Extractor interface {
	ExtractReferences(content []byte) []Reference
}

// ExtractorFor returns the extractor for rel, or false when its kind has no
// reference grammar.
func ExtractorFor(rel string) (Extractor, bool) {
	switch Classify(rel) {
	case KindSourceLike:
		return sourceExtractor{}, true
	case KindConfig:
		return configExtractor{
			format:   configFormat(rel),
			manifest: strings.EqualFold(path.Base(rel), "package.json"),
		}, true
	case KindMarkdown:
		return markdownExtractor{}, true
	case KindScript:
		return scriptExtractor{}, true
	default:
		return nil, false
	}
}

// =============================================================================
// Source-like files
// =============================================================================

var (
	importPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?m)\bimport\s+(?:[\w*{}\s,$]+\s+from\s+)?["']([^"'\n]+)["']`),
		regexp.MustCompile(`(?m)\bexport\s+[\w*{}\s,$]+\s+from\s+["']([^"'\n]+)["']`),
		regexp.MustCompile(`\brequire\s*\(\s*["']([^"'\n]+)["']\s*\)`),
		regexp.MustCompile(`\bimport\s*\(\s*["']([^"'\n]+)["']\s*\)`),
		regexp.MustCompile(`@import\s+(?:url\()?["']([^"'\n]+)["']`),
	}
	quotedRelative = regexp.MustCompile(`["'\x60](\.{1,2}/[^"'\x60\s]+)["'\x60]`)
)

type sourceExtractor struct{}

func (sourceExtractor) ExtractReferences(content []byte) []Reference {
	var refs []Reference
	for _, re := range importPatterns {
		for _, m := range re.FindAllSubmatch(content, -1) {
			refs = append(refs, Reference{Target: string(m[1]), Type: EdgeImport})
		}
	}
	for _, m := range quotedRelative.FindAllSubmatch(content, -1) {
		refs = append(refs, Reference{Target: string(m[1]), Type: EdgeReference})
	}
	return refs
}

// =============================================================================
// Config files
// =============================================================================

// pathKeys hold values that name files even without a ./ prefix
var pathKeys = map[string]bool{
	"extends":    true,
	"include":    true,
	"exclude":    true,
	"references": true,
	"files":      true,
	"main":       true,
	"module":     true,
	"types":      true,
	"typings":    true,
	"bin":        true,
	"path":       true,
	"paths":      true,
	"entry":      true,
	"source":     true,
	"setupfiles": true,
	"preset":     true,
}

type configExtractor struct {
	format   string
	manifest bool
}

func configFormat(rel string) string {
	switch strings.ToLower(path.Ext(rel)) {
	case ".yaml", ".yml":
		return "yaml"
	case ".toml":
		return "toml"
	default:
		return "json"
	}
}

func (c configExtractor) ExtractReferences(content []byte) []Reference {
	var tree interface{}
	var err error

	switch c.format {
	case "yaml":
		err = yaml.Unmarshal(content, &tree)
	case "toml":
		var m map[string]interface{}
		err = toml.Unmarshal(content, &m)
		tree = m
	default:
		err = json.Unmarshal(stripJSONComments(content), &tree)
	}
	if err != nil {
		// Unparseable config still gets a textual pass for ./ paths
		return quotedRelativeRefs(content, EdgeConfigReference)
	}

	var refs []Reference
	walkConfig(tree, false, func(value string, underPathKey bool) {
		if ref, ok := configReference(value, underPathKey); ok {
			refs = append(refs, ref)
		}
	})

	if c.manifest {
		refs = append(refs, manifestScriptRefs(tree)...)
	}

	return refs
}

// walkConfig visits every string value in a decoded config tree
func walkConfig(node interface{}, underPathKey bool, visit func(value string, underPathKey bool)) {
	switch v := node.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if k == "scripts" {
				continue
			}
			walkConfig(v[k], underPathKey || pathKeys[strings.ToLower(k)], visit)
		}
	case []interface{}:
		for _, item := range v {
			walkConfig(item, underPathKey, visit)
		}
	case string:
		visit(v, underPathKey)
	}
}

func configReference(value string, underPathKey bool) (Reference, bool) {
	value = strings.TrimSpace(value)
	if isRelative(value) {
		return Reference{Target: value, Type: EdgeConfigReference}, true
	}
	if underPathKey && looksLikeBarePath(value) {
		return Reference{Target: value, Type: EdgeConfigReference, Bare: true}, true
	}
	return Reference{}, false
}

// manifestScriptRefs scans package.json script commands for invoked files
func manifestScriptRefs(tree interface{}) []Reference {
	root, ok := tree.(map[string]interface{})
	if !ok {
		return nil
	}
	scripts, ok := root["scripts"].(map[string]interface{})
	if !ok {
		return nil
	}

	names := make([]string, 0, len(scripts))
	for name := range scripts {
		names = append(names, name)
	}
	sort.Strings(names)

	var refs []Reference
	for _, name := range names {
		command, ok := scripts[name].(string)
		if !ok {
			continue
		}
		refs = append(refs, commandRefs(command)...)
	}
	return refs
}

var commandSeparators = regexp.MustCompile(`\s+|&&|\|\||;|\|`)

// commandRefs returns the path-like tokens of a shell command line
func commandRefs(command string) []Reference {
	var refs []Reference
	for _, token := range commandSeparators.Split(command, -1) {
		token = strings.Trim(token, `"'`)
		if strings.HasPrefix(token, "-") {
			// --config=./x.json style flags carry a value
			i := strings.Index(token, "=")
			if i < 0 {
				continue
			}
			token = strings.Trim(token[i+1:], `"'`)
		}
		if token == "" {
			continue
		}
		switch {
		case isRelative(token):
			refs = append(refs, Reference{Target: token, Type: EdgeScriptCall})
		case looksLikeBarePath(token):
			refs = append(refs, Reference{Target: token, Type: EdgeScriptCall, Bare: true})
		}
	}
	return refs
}

var jsonLineComment = regexp.MustCompile(`(?m)^\s*//.*$`)

// stripJSONComments removes whole-line // comments so tsconfig-style JSON
// parses
func stripJSONComments(content []byte) []byte {
	return jsonLineComment.ReplaceAll(content, nil)
}

// =============================================================================
// Markdown
// =============================================================================

type markdownExtractor struct{}

func (markdownExtractor) ExtractReferences(content []byte) []Reference {
	doc := goldmark.New().Parser().Parse(text.NewReader(content))

	var refs []Reference
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		switch node := n.(type) {
		case *ast.Link:
			if ref, ok := linkReference(string(node.Destination)); ok {
				refs = append(refs, ref)
			}
		case *ast.Image:
			if ref, ok := linkReference(string(node.Destination)); ok {
				refs = append(refs, ref)
			}
		case *ast.CodeSpan:
			code := strings.TrimSpace(codeSpanText(node, content))
			switch {
			case isRelative(code):
				refs = append(refs, Reference{Target: code, Type: EdgeReference})
			case looksLikeBarePath(code):
				refs = append(refs, Reference{Target: code, Type: EdgeReference, Bare: true})
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})

	return refs
}

func codeSpanText(n ast.Node, source []byte) string {
	var buf bytes.Buffer
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			buf.Write(t.Segment.Value(source))
		}
	}
	return buf.String()
}

func linkReference(dest string) (Reference, bool) {
	dest = stripFragment(strings.TrimSpace(dest))
	if dest == "" || isURL(dest) {
		return Reference{}, false
	}
	if strings.HasPrefix(dest, "/") {
		return Reference{Target: dest, Type: EdgeReference, RootRelative: true}, true
	}
	if isRelative(dest) {
		return Reference{Target: dest, Type: EdgeReference}, true
	}
	// A link target is a path even without ./
	return Reference{Target: "./" + dest, Type: EdgeReference}, true
}

// =============================================================================
// Shell and batch scripts
// =============================================================================

var scriptPathToken = regexp.MustCompile(`(?:^|[\s"'=(])((?:\.{1,2}/)?[\w@.-]+(?:/[\w@.-]+)*\.[A-Za-z0-9]+)`)

type scriptExtractor struct{}

func (scriptExtractor) ExtractReferences(content []byte) []Reference {
	// Batch files use backslashes and %~dp0 for their own directory
	normalized := strings.ReplaceAll(string(content), `%~dp0`, "./")
	normalized = strings.ReplaceAll(normalized, `\`, "/")

	var refs []Reference
	for _, line := range strings.Split(normalized, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#!") {
			continue
		}
		for _, m := range scriptPathToken.FindAllStringSubmatch(trimmed, -1) {
			token := m[1]
			switch {
			case isRelative(token):
				refs = append(refs, Reference{Target: token, Type: EdgeScriptCall})
			case looksLikeBarePath(token) && strings.Contains(token, "/"):
				refs = append(refs, Reference{Target: token, Type: EdgeScriptCall, Bare: true})
			}
		}
	}
	return refs
}

// =============================================================================
// Helpers
// =============================================================================

func quotedRelativeRefs(content []byte, edgeType EdgeType) []Reference {
	var refs []Reference
	for _, m := range quotedRelative.FindAllSubmatch(content, -1) {
		refs = append(refs, Reference{Target: string(m[1]), Type: edgeType})
	}
	return refs
}

func isRelative(s string) bool {
	return strings.HasPrefix(s, "./") || strings.HasPrefix(s, "../")
}

func isURL(s string) bool {
	return strings.Contains(s, "://") ||
		strings.HasPrefix(s, "mailto:") ||
		strings.HasPrefix(s, "#") ||
		strings.HasPrefix(s, "data:")
}

func stripFragment(s string) string {
	if i := strings.IndexAny(s, "#?"); i >= 0 {
		return s[:i]
	}
	return s
}

// looksLikeBarePath accepts "src/index.ts" and "tsconfig.base.json" but not
// package names, globs, URLs, flags or absolute paths.
func looksLikeBarePath(s string) bool {
	if s == "" || len(s) > 256 || strings.Trim(s, ".") == "" {
		return false
	}
	if strings.HasPrefix(s, "/") || strings.HasPrefix(s, "@") || strings.HasPrefix(s, "-") {
		return false
	}
	if strings.ContainsAny(s, "*?{}[]:$ \t<>|") || isURL(s) {
		return false
	}
	return strings.Contains(s, "/") || path.Ext(s) != ""
}
