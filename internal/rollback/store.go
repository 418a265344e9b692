package rollback

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ErrPointNotFound is returned when no rollback point has the given id
var ErrPointNotFound = errors.New("rollback point not found")

// Store persists rollback points as one JSON file per point. Operations
// recorded while a point is open go to an append-only log next to it
// (<id>.oplog, one JSON entry per line) and are folded into the point file
// by the next Save.
type Store struct {
	dir string
}

// NewStore creates a store rooted at dir, creating it if needed
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create rollback directory: %w", err)
	}

	return &Store{dir: dir}, nil
}

// Dir returns the directory holding the point files
func (s *Store) Dir() string {
	return s.dir
}

// Save writes a point to disk, replacing any previous version
func (s *Store) Save(point *Point) error {
	if point.ID == "" {
		return fmt.Errorf("rollback point has no id")
	}

	data, err := json.MarshalIndent(point, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal rollback point: %w", err)
	}

	// Write then rename so a crash never leaves a truncated point
	filename := s.path(point.ID)
	tmp := filename + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write rollback point: %w", err)
	}
	if err := os.Rename(tmp, filename); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write rollback point: %w", err)
	}

	// The point file now holds every logged entry
	if err := os.Remove(s.logPath(point.ID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to compact operation log: %w", err)
	}
	return nil
}

// logEntry is one line of a point's operation log. Index is the position
// the entry applies to; entries at positions the point file already covers
// are stale and ignored on load.
type logEntry struct {
	Index      int        `json:"index"`
	Op         *Operation `json:"op,omitempty"`
	NotApplied bool       `json:"not_applied,omitempty"`
}

// AppendOperation logs op as operation number index of point id
func (s *Store) AppendOperation(id string, index int, op Operation) error {
	return s.appendLog(id, logEntry{Index: index, Op: &op})
}

// MarkNotApplied logs that operation number index of point id was not applied
func (s *Store) MarkNotApplied(id string, index int) error {
	return s.appendLog(id, logEntry{Index: index, NotApplied: true})
}

func (s *Store) appendLog(id string, entry logEntry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal operation: %w", err)
	}

	f, err := os.OpenFile(s.logPath(id), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open operation log: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return fmt.Errorf("failed to append operation: %w", err)
	}
	return f.Close()
}

// replayLog applies the operation log of point to it. A truncated last
// line, left by a crash mid-write, ends the replay.
func (s *Store) replayLog(point *Point) error {
	f, err := os.Open(s.logPath(point.ID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read operation log: %w", err)
	}
	defer f.Close()

	lines := bufio.NewScanner(f)
	for lines.Scan() {
		var entry logEntry
		if err := json.Unmarshal(lines.Bytes(), &entry); err != nil {
			break
		}
		switch {
		case entry.Op != nil && entry.Index == len(point.Operations):
			point.Operations = append(point.Operations, *entry.Op)
		case entry.NotApplied && entry.Index >= 0 && entry.Index < len(point.Operations):
			point.Operations[entry.Index].NotApplied = true
		}
	}
	return lines.Err()
}

// Load reads a point by id
func (s *Store) Load(id string) (*Point, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return nil, fmt.Errorf("%w: %q", ErrPointNotFound, id)
	}

	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrPointNotFound, id)
		}
		return nil, fmt.Errorf("failed to read rollback point: %w", err)
	}

	var point Point
	if err := json.Unmarshal(data, &point); err != nil {
		return nil, fmt.Errorf("failed to unmarshal rollback point %s: %w", id, err)
	}
	if err := s.replayLog(&point); err != nil {
		return nil, fmt.Errorf("rollback point %s: %w", id, err)
	}

	return &point, nil
}

// List returns all stored points, newest first. Unreadable files are skipped.
func (s *Store) List() ([]*Point, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read rollback directory: %w", err)
	}

	var points []*Point
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		point, err := s.Load(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			continue
		}
		points = append(points, point)
	}

	sort.SliceStable(points, func(i, j int) bool {
		if points[i].CreatedAt.Equal(points[j].CreatedAt) {
			return points[i].ID < points[j].ID
		}
		return points[i].CreatedAt.After(points[j].CreatedAt)
	})

	return points, nil
}

// Delete removes a point and its operation log by id
func (s *Store) Delete(id string) error {
	os.Remove(s.logPath(id))
	if err := os.Remove(s.path(id)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrPointNotFound, id)
		}
		return fmt.Errorf("failed to delete rollback point: %w", err)
	}
	return nil
}

// OlderThan returns the stored points created before now-age
func (s *Store) OlderThan(age time.Duration) ([]*Point, error) {
	points, err := s.List()
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().Add(-age)

	var old []*Point
	for _, p := range points {
		if p.CreatedAt.Before(cutoff) {
			old = append(old, p)
		}
	}
	return old, nil
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func (s *Store) logPath(id string) string {
	return filepath.Join(s.dir, id+".oplog")
}
