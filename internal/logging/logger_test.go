package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/phuslu/log"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want log.Level
	}{
		{"debug", log.DebugLevel},
		{"DEBUG", log.DebugLevel},
		{"info", log.InfoLevel},
		{"warn", log.WarnLevel},
		{"warning", log.WarnLevel},
		{"error", log.ErrorLevel},
		{"bogus", log.InfoLevel},
		{"", log.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := parseLevel(tt.in); got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNewWritesToFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "logs", "repotidy.log")

	logger, closer, err := New("info", logPath)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	logger.Info().Str("path", "docs/old.md").Msg("archived")
	logger.Debug().Msg("hidden at info level")

	if err := closer.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("failed to read log: %v", err)
	}

	content := string(data)
	if !strings.Contains(content, "archived") || !strings.Contains(content, "docs/old.md") {
		t.Errorf("log file missing entry: %q", content)
	}
	if strings.Contains(content, "hidden at info level") {
		t.Error("debug entry should be filtered at info level")
	}
}

func TestDiscard(t *testing.T) {
	logger := Discard()
	// Must not panic on any level
	logger.Debug().Msg("x")
	logger.Warn().Str("k", "v").Msg("x")
	logger.Error().Msg("x")
}
