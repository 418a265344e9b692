package validation

import (
	"os"
	"path/filepath"
)

// requiredScripts should be declared by the manifest
var requiredScripts = []string{"build", "test"}

// IntegrityResult is the outcome of RunIntegrityTests. Only a missing or
// unparseable manifest fails it; everything else is a warning.
type IntegrityResult struct {
	Passed   bool     `json:"passed"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// RunIntegrityTests checks that the project still has a parseable
// manifest, its critical files and its build and test entry points. It
// does not need a dependency graph.
func (e *Engine) RunIntegrityTests() IntegrityResult {
	result := IntegrityResult{
		Passed:   true,
		Errors:   []string{},
		Warnings: []string{},
	}

	// Always re-read from disk; the executor may have just changed the tree
	e.mu.Lock()
	e.loaded = false
	e.mu.Unlock()

	m := e.loadManifest()
	if m == nil {
		result.Passed = false
		if _, err := os.Stat(filepath.Join(e.root, e.cfg.Manifest)); os.IsNotExist(err) {
			result.Errors = append(result.Errors, "manifest "+e.cfg.Manifest+" is missing")
		} else {
			result.Errors = append(result.Errors, "manifest "+e.cfg.Manifest+" cannot be parsed")
		}
	}

	for _, critical := range e.cfg.CriticalFiles {
		if critical == e.cfg.Manifest {
			continue
		}
		if _, err := os.Stat(filepath.Join(e.root, filepath.FromSlash(critical))); err != nil {
			result.Warnings = append(result.Warnings, "critical file missing: "+critical)
		}
	}

	if m != nil {
		for _, name := range requiredScripts {
			if !m.HasScript(name) {
				result.Warnings = append(result.Warnings, "manifest does not declare a "+name+" script")
			}
		}
	}

	e.logger.Info().Bool("passed", result.Passed).Int("errors", len(result.Errors)).Int("warnings", len(result.Warnings)).Msg("integrity tests complete")
	return result
}
