// Package manifest reads the project's package manifest. It is never
// written.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNotFound is returned when the manifest file does not exist
var ErrNotFound = errors.New("manifest not found")

// Manifest is the subset of package.json the engine consults
type Manifest struct {
	Path    string            `json:"-"`
	Name    string            `json:"name"`
	Version string            `json:"version"`
	Main    string            `json:"main"`
	Scripts map[string]string `json:"scripts"`
}

// Load reads and parses the manifest named name under root
func Load(root, name string) (*Manifest, error) {
	p := filepath.Join(root, name)

	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", name, err)
	}

	m.Path = filepath.ToSlash(name)
	if m.Scripts == nil {
		m.Scripts = map[string]string{}
	}
	return &m, nil
}

// ScriptNames returns the declared script names in order
func (m *Manifest) ScriptNames() []string {
	names := make([]string, 0, len(m.Scripts))
	for name := range m.Scripts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasScript reports whether name is declared
func (m *Manifest) HasScript(name string) bool {
	_, ok := m.Scripts[name]
	return ok
}

// ScriptsReferencing returns the sorted names of scripts whose command
// contains rel. A "./" prefixed spelling counts as the same path.
func (m *Manifest) ScriptsReferencing(rel string) []string {
	rel = strings.TrimPrefix(filepath.ToSlash(rel), "./")

	var names []string
	for name, command := range m.Scripts {
		if strings.Contains(filepath.ToSlash(command), rel) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
