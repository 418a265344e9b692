package deps

import (
	"path"
	"strings"
)

// Kind selects the reference extractor for a file
type Kind int

const (
	KindNone Kind = iota
	KindSourceLike
	KindConfig
	KindMarkdown
	KindScript
)

func (k Kind) String() string {
	switch k {
	case KindSourceLike:
		return "source"
	case KindConfig:
		return "config"
	case KindMarkdown:
		return "markdown"
	case KindScript:
		return "script"
	default:
		return "none"
	}
}

var kindByExtension = map[string]Kind{
	".js":       KindSourceLike,
	".jsx":      KindSourceLike,
	".ts":       KindSourceLike,
	".tsx":      KindSourceLike,
	".mjs":      KindSourceLike,
	".cjs":      KindSourceLike,
	".mts":      KindSourceLike,
	".cts":      KindSourceLike,
	".vue":      KindSourceLike,
	".svelte":   KindSourceLike,
	".html":     KindSourceLike,
	".css":      KindSourceLike,
	".scss":     KindSourceLike,
	".json":     KindConfig,
	".jsonc":    KindConfig,
	".yaml":     KindConfig,
	".yml":      KindConfig,
	".toml":     KindConfig,
	".md":       KindMarkdown,
	".mdx":      KindMarkdown,
	".markdown": KindMarkdown,
	".sh":       KindScript,
	".bash":     KindScript,
	".zsh":      KindScript,
	".ps1":      KindScript,
	".bat":      KindScript,
	".cmd":      KindScript,
}

// Classify picks the extractor kind for a project-relative path. It looks
// only at the name, never the content.
func Classify(rel string) Kind {
	return kindByExtension[strings.ToLower(path.Ext(rel))]
}
