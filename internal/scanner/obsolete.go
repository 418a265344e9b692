package scanner

import (
	"context"
	"path"
	"sort"
	"time"
)

// obsoletePatterns always mark a file obsolete. They are matched against the
// lowercased basename.
var obsoletePatterns = []string{
	"*.log",
	"*.bak",
	"*.backup",
	"*.tmp",
	"*.temp",
	"*.old",
	"*_old.*",
	"*-old.*",
	"temp",
	"temp[-_.]*",
	"tmp[-_.]*",
	"backup*",
	"old[-_.]*",
	"deprecated*",
	"archive[-_.]*",
	"analysis*.json",
	"report*.json",
}

// agedPatterns mark a file obsolete only once it is older than the
// configured obsolete age.
var agedPatterns = []string{
	"*.orig",
	"*.rej",
	"*.swp",
	"*~",
	"*.out",
}

// MatchesObsoletePattern reports whether rel matches an unconditional pattern
func MatchesObsoletePattern(rel string) bool {
	return matchAny(obsoletePatterns, baseName(rel))
}

func matchesAgedPattern(rel string) bool {
	return matchAny(agedPatterns, baseName(rel))
}

func matchAny(patterns []string, name string) bool {
	for _, pattern := range patterns {
		if ok, _ := path.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

// IdentifyObsoleteFiles returns files that match an obsolete pattern, or an
// age-gated pattern and are older than the obsolete age. A file that can no
// longer be stat'ed is treated as obsolete. The result is sorted.
func (s *Scanner) IdentifyObsoleteFiles(ctx context.Context, paths []string) ([]string, error) {
	infos, errs, err := s.statFiles(ctx, "obsolete", paths)
	if err != nil {
		return nil, err
	}

	maxAge := s.cfg.ObsoleteAge()
	now := time.Now()

	var obsolete []string
	for i, rel := range paths {
		if errs[i] != nil {
			s.logger.Warn().Str("path", rel).Err(errs[i]).Msg("stat failed, treating file as obsolete")
			obsolete = append(obsolete, rel)
			continue
		}

		if MatchesObsoletePattern(rel) {
			obsolete = append(obsolete, rel)
			continue
		}

		if matchesAgedPattern(rel) && now.Sub(infos[i].ModTime()) > maxAge {
			obsolete = append(obsolete, rel)
		}
	}

	sort.Strings(obsolete)
	return obsolete, nil
}
