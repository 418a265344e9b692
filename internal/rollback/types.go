package rollback

import "time"

// OperationType identifies a recorded mutation
type OperationType string

const (
	OpRemove OperationType = "remove"
	OpMove   OperationType = "move"
	OpModify OperationType = "modify"
)

// Operation is one recorded mutation. BackupPath is set for removals and
// modifications, NewPath for moves. NotApplied marks an operation whose
// mutation failed after it was recorded; replay skips it.
type Operation struct {
	Type         OperationType `json:"type"`
	OriginalPath string        `json:"original_path"`
	BackupPath   string        `json:"backup_path,omitempty"`
	NewPath      string        `json:"new_path,omitempty"`
	Timestamp    time.Time     `json:"timestamp"`
	Reason       string        `json:"reason"`
	NotApplied   bool          `json:"not_applied,omitempty"`
}

// Point groups the operations of one phase so they can be replayed
// together
type Point struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Description  string      `json:"description"`
	CreatedAt    time.Time   `json:"created_at"`
	ClosedAt     *time.Time  `json:"closed_at,omitempty"`
	RolledBackAt *time.Time  `json:"rolled_back_at,omitempty"`
	Operations   []Operation `json:"operations"`
}

// IsOpen reports whether the point still accepts operations
func (p *Point) IsOpen() bool {
	return p.ClosedAt == nil
}

// Result is the outcome of replaying a point
type Result struct {
	PointID       string   `json:"point_id"`
	Success       bool     `json:"success"`
	RestoredFiles []string `json:"restored_files"`
	Errors        []string `json:"errors"`
}
