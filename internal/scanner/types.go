package scanner

import (
	"sort"
	"time"
)

// Category is a file classification bucket
type Category string

const (
	CategoryLogs          Category = "logs"
	CategoryDocumentation Category = "documentation"
	CategoryScripts       Category = "scripts"
	CategoryTests         Category = "tests"
	CategoryConfiguration Category = "configuration"
	CategoryTemporary     Category = "temporary"
)

// AllCategories lists every category in report order
var AllCategories = []Category{
	CategoryLogs,
	CategoryDocumentation,
	CategoryScripts,
	CategoryTests,
	CategoryConfiguration,
	CategoryTemporary,
}

// FileCategoryMap maps a category to the sorted project-relative paths in it.
// A path appears under at most one category.
type FileCategoryMap map[Category][]string

// Get returns the paths of a category (nil when empty)
func (m FileCategoryMap) Get(c Category) []string {
	return m[c]
}

// Count returns the number of categorized files
func (m FileCategoryMap) Count() int {
	total := 0
	for _, paths := range m {
		total += len(paths)
	}
	return total
}

// CategoryOf returns the category a path was placed in
func (m FileCategoryMap) CategoryOf(rel string) (Category, bool) {
	for c, paths := range m {
		i := sort.SearchStrings(paths, rel)
		if i < len(paths) && paths[i] == rel {
			return c, true
		}
	}
	return "", false
}

// LargeFileInfo describes a file above the large-file threshold
type LargeFileInfo struct {
	Path    string    `json:"path" yaml:"path"`
	Size    int64     `json:"size" yaml:"size"`
	Type    string    `json:"type" yaml:"type"` // Extension, or "no-extension"
	ModTime time.Time `json:"mod_time" yaml:"mod_time"`
}

// DuplicateGroup is a set of files whose normalized basenames collide
type DuplicateGroup struct {
	Key        string   `json:"key" yaml:"key"`
	Files      []string `json:"files" yaml:"files"` // Unmarked original first
	Similarity float64  `json:"similarity" yaml:"similarity"`
	Reason     string   `json:"reason" yaml:"reason"` // copy, backup, old or version
}

// FileAnalysisReport is the scan snapshot consumed by planning
type FileAnalysisReport struct {
	Root           string           `json:"root" yaml:"root"`
	TotalFiles     int              `json:"total_files" yaml:"total_files"`
	Files          []string         `json:"-" yaml:"-"`
	Categories     FileCategoryMap  `json:"categories" yaml:"categories"`
	ObsoleteFiles  []string         `json:"obsolete_files" yaml:"obsolete_files"`
	DuplicateFiles []DuplicateGroup `json:"duplicate_files" yaml:"duplicate_files"`
	LargeFiles     []LargeFileInfo  `json:"large_files" yaml:"large_files"`
	Timestamp      time.Time        `json:"timestamp" yaml:"timestamp"`
	Warnings       []string         `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// IsObsolete reports whether a path is in the obsolete list
func (r *FileAnalysisReport) IsObsolete(rel string) bool {
	i := sort.SearchStrings(r.ObsoleteFiles, rel)
	return i < len(r.ObsoleteFiles) && r.ObsoleteFiles[i] == rel
}

// CategorizedFiles returns every categorized path, sorted
func (r *FileAnalysisReport) CategorizedFiles() []string {
	var all []string
	for _, c := range AllCategories {
		all = append(all, r.Categories[c]...)
	}
	sort.Strings(all)
	return all
}
