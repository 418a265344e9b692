package scanner

import (
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/agext/levenshtein"
)

var (
	tokenSeparators = regexp.MustCompile(`[\s_\-.()\[\]]+`)
	versionToken    = regexp.MustCompile(`^v\d+$`)
	digitsToken     = regexp.MustCompile(`^\d+$`)
	copyNumberMark  = regexp.MustCompile(`\(\d+\)`)
)

// markerTokens are stripped from names before comparison. A non-empty value
// is the reason tag the token contributes.
var markerTokens = map[string]string{
	"copy":   "copy",
	"backup": "backup",
	"bak":    "backup",
	"old":    "old",
	"orig":   "old",
	"new":    "",
	"temp":   "",
	"final":  "",
}

// reasonPriority orders reason tags when a group carries several
var reasonPriority = []string{"copy", "backup", "old"}

// normalizeName returns the duplicate key for rel and the copy markers found
// in its name. Version tokens like v2 are dropped from the key but are not
// markers: guide_v2.md is usually the newer document, not a copy. An empty
// key means the name has nothing left to compare.
func normalizeName(rel string) (string, []string) {
	name := baseName(rel)
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	var markers []string
	if copyNumberMark.MatchString(stem) {
		markers = append(markers, "copy")
	}

	var kept []string
	for _, token := range tokenSeparators.Split(stem, -1) {
		if token == "" {
			continue
		}
		if reason, ok := markerTokens[token]; ok {
			if reason != "" {
				markers = append(markers, reason)
			}
			continue
		}
		if versionToken.MatchString(token) || digitsToken.MatchString(token) {
			continue
		}
		kept = append(kept, token)
	}

	if len(kept) == 0 {
		return "", markers
	}
	return strings.Join(kept, "-") + ext, markers
}

// IdentifyDuplicates groups files whose normalized basenames collide. A
// group is reported only when it has two or more members and at least one
// of them carries a copy, backup or old marker.
func (s *Scanner) IdentifyDuplicates(paths []string) []DuplicateGroup {
	type member struct {
		rel     string
		markers []string
	}

	groups := make(map[string][]member)
	for _, rel := range paths {
		key, markers := normalizeName(rel)
		if key == "" {
			continue
		}
		groups[key] = append(groups[key], member{rel: rel, markers: markers})
	}

	var result []DuplicateGroup
	for key, members := range groups {
		if len(members) < 2 {
			continue
		}

		reasons := make(map[string]bool)
		for _, m := range members {
			for _, r := range m.markers {
				reasons[r] = true
			}
		}
		if len(reasons) == 0 {
			continue
		}

		// Unmarked originals first, then by path
		sort.Slice(members, func(i, j int) bool {
			mi, mj := len(members[i].markers) > 0, len(members[j].markers) > 0
			if mi != mj {
				return !mi
			}
			return members[i].rel < members[j].rel
		})

		files := make([]string, len(members))
		for i, m := range members {
			files[i] = m.rel
		}

		result = append(result, DuplicateGroup{
			Key:        key,
			Files:      files,
			Similarity: nameSimilarity(files),
			Reason:     primaryReason(reasons),
		})
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Key < result[j].Key
	})

	return result
}

// nameSimilarity is the mean pairwise Levenshtein similarity of the
// members' basenames, in [0, 1].
func nameSimilarity(files []string) float64 {
	var total float64
	pairs := 0
	for i := 0; i < len(files); i++ {
		for j := i + 1; j < len(files); j++ {
			total += levenshtein.Similarity(baseName(files[i]), baseName(files[j]), nil)
			pairs++
		}
	}
	if pairs == 0 {
		return 1
	}
	return total / float64(pairs)
}

func primaryReason(reasons map[string]bool) string {
	for _, r := range reasonPriority {
		if reasons[r] {
			return r
		}
	}
	return ""
}
