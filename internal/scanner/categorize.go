package scanner

import (
	"path"
	"sort"
	"strings"
)

// CategoryRule pairs a category with the predicate that selects it
type CategoryRule struct {
	Category Category
	Match    func(rel string) bool
}

// CategoryRules is evaluated in order and the first match wins, so every
// file lands in at most one category. Order matters: a rotated log under
// docs/ is a log, a test helper script is a script.
var CategoryRules = []CategoryRule{
	{CategoryLogs, isLogFile},
	{CategoryDocumentation, isDocumentationFile},
	{CategoryScripts, isScriptFile},
	{CategoryTests, isTestFile},
	{CategoryConfiguration, isConfigurationFile},
	{CategoryTemporary, isTemporaryFile},
}

// Categorize returns the first category whose rule matches rel
func Categorize(rel string) (Category, bool) {
	for _, rule := range CategoryRules {
		if rule.Match(rel) {
			return rule.Category, true
		}
	}
	return "", false
}

// CategorizeFiles buckets paths by category. Unmatched files are absent.
func (s *Scanner) CategorizeFiles(paths []string) FileCategoryMap {
	categories := make(FileCategoryMap)

	for _, rel := range paths {
		if c, ok := Categorize(rel); ok {
			categories[c] = append(categories[c], rel)
		}
	}

	for c := range categories {
		sort.Strings(categories[c])
	}

	return categories
}

var (
	docExtensions    = set(".md", ".mdx", ".markdown", ".rst", ".adoc")
	shellExtensions  = set(".sh", ".bash", ".zsh", ".ps1", ".bat", ".cmd")
	sourceScriptExts = set(".js", ".ts", ".mjs", ".cjs", ".py")
	scriptDirs       = []string{"scripts", "script", "bin", "tools"}
	testDirs         = []string{"test", "tests", "__tests__", "spec", "e2e"}
	configExtensions = set(".json", ".yaml", ".yml", ".toml", ".ini", ".env", ".conf", ".cfg", ".properties")
	tempExtensions   = set(".tmp", ".temp", ".swp", ".swo", ".bak", ".cache")
	tempDirs         = []string{"tmp", "temp", ".tmp"}
)

func isLogFile(rel string) bool {
	name := baseName(rel)
	if extOf(rel) == ".log" || strings.Contains(name, ".log.") {
		return true
	}
	for _, prefix := range []string{"npm-debug", "yarn-error", "yarn-debug", "pnpm-debug", "lerna-debug"} {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

func isDocumentationFile(rel string) bool {
	ext := extOf(rel)
	if docExtensions[ext] {
		return true
	}
	return ext == ".txt" && inDir(rel, "docs", "doc", "documentation")
}

func isScriptFile(rel string) bool {
	ext := extOf(rel)
	if shellExtensions[ext] {
		return true
	}
	if !sourceScriptExts[ext] {
		return false
	}
	return inDir(rel, scriptDirs...) || strings.Contains(stemOf(rel), "script")
}

func isTestFile(rel string) bool {
	name := baseName(rel)
	stem := stemOf(rel)
	if strings.Contains(name, ".test.") || strings.Contains(name, ".spec.") {
		return true
	}
	if strings.HasSuffix(stem, "_test") || strings.HasPrefix(stem, "test_") {
		return true
	}
	return inDir(rel, testDirs...)
}

func isConfigurationFile(rel string) bool {
	name := baseName(rel)
	if configExtensions[extOf(rel)] {
		return true
	}
	if strings.HasPrefix(name, ".env") {
		return true
	}
	// rc dotfiles: .npmrc, .eslintrc, .eslintrc.js, .babelrc.cjs
	if strings.HasPrefix(name, ".") {
		trimmed := strings.TrimPrefix(name, ".")
		if i := strings.Index(trimmed, "."); i >= 0 {
			trimmed = trimmed[:i]
		}
		if strings.HasSuffix(trimmed, "rc") {
			return true
		}
	}
	return strings.Contains(stemOf(rel), "config")
}

func isTemporaryFile(rel string) bool {
	name := baseName(rel)
	if tempExtensions[extOf(rel)] {
		return true
	}
	if strings.HasPrefix(name, "~") || strings.HasSuffix(name, "~") {
		return true
	}
	return inDir(rel, tempDirs...)
}

func set(values ...string) map[string]bool {
	m := make(map[string]bool, len(values))
	for _, v := range values {
		m[v] = true
	}
	return m
}

func baseName(rel string) string {
	return strings.ToLower(path.Base(rel))
}

func extOf(rel string) string {
	return strings.ToLower(path.Ext(rel))
}

func stemOf(rel string) string {
	name := baseName(rel)
	return strings.TrimSuffix(name, path.Ext(name))
}

// inDir reports whether any directory segment of rel equals one of names
func inDir(rel string, names ...string) bool {
	dir := path.Dir(rel)
	if dir == "." {
		return false
	}
	for _, segment := range strings.Split(strings.ToLower(dir), "/") {
		for _, name := range names {
			if segment == name {
				return true
			}
		}
	}
	return false
}
