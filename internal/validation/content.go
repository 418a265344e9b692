package validation

import "regexp"

type sensitivePattern struct {
	topic string
	re    *regexp.Regexp
}

// sensitivePatterns flag documentation that should be archived rather than
// deleted. Several patterns may share a topic.
var sensitivePatterns = []sensitivePattern{
	{"credentials or secrets", regexp.MustCompile(`(?i)\b(password|passwd|pwd|secret|token|credentials?)\b\s*[:=]`)},
	{"credentials or secrets", regexp.MustCompile(`(?i)\b(private[ _-]?key|secret[ _-]?key|credentials)\b`)},
	{"API keys", regexp.MustCompile(`(?i)\bapi[ _-]?keys?\b`)},
	{"setup or installation instructions", regexp.MustCompile(`(?im)^#{1,6}\s*(setup|set up|installation|install|getting started|prerequisites)\b`)},
	{"setup or installation instructions", regexp.MustCompile(`(?i)\b(npm|yarn|pnpm)\s+(install|i|add|ci)\b|\b(pip|brew|apt|apt-get)\s+install\b`)},
	{"configuration details", regexp.MustCompile(`(?im)^#{1,6}\s*(configuration|config|environment variables|environment)\b`)},
	{"configuration details", regexp.MustCompile(`(?i)(^|[\s/"'\x60])\.env\b`)},
	{"database connection info", regexp.MustCompile(`(?i)\b(postgres(ql)?|mysql|mongodb(\+srv)?|redis|mssql)://`)},
	{"database connection info", regexp.MustCompile(`(?i)\b(database[_ ]url|connection[_ ]string|db[_ ]host)\b`)},
	{"deployment instructions", regexp.MustCompile(`(?im)^#{1,6}\s*(deploy|deployment|deploying|release process|production)\b`)},
}

// SensitiveTopics returns the distinct sensitive topics found in content,
// in pattern order
func SensitiveTopics(content []byte) []string {
	var topics []string
	seen := make(map[string]bool)

	for _, p := range sensitivePatterns {
		if seen[p.topic] {
			continue
		}
		if p.re.Match(content) {
			seen[p.topic] = true
			topics = append(topics, p.topic)
		}
	}

	return topics
}
