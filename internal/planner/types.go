package planner

import "time"

// Phase names, in execution order
const (
	PhaseTemporaryCleanup = "temporary-cleanup"
	PhaseDocumentation    = "documentation-organization"
	PhaseScripts          = "script-cleanup"
	PhaseFolders          = "folder-reorganization"
)

// PhaseNames lists every phase in the order a plan runs them
var PhaseNames = []string{
	PhaseTemporaryCleanup,
	PhaseDocumentation,
	PhaseScripts,
	PhaseFolders,
}

// RiskLevel grades how likely a plan is to break the project
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// ValidationKind names a check to run around execution
type ValidationKind string

const (
	ValidationReferenceCheck  ValidationKind = "reference-check"
	ValidationBuildTest       ValidationKind = "build-test"
	ValidationDependencyCheck ValidationKind = "dependency-check"
)

// ValidationStep is a check the plan asks for
type ValidationStep struct {
	Kind        ValidationKind `json:"kind" yaml:"kind"`
	Description string         `json:"description" yaml:"description"`
	Required    bool           `json:"required" yaml:"required"`
}

// FileMove is a planned relocation
type FileMove struct {
	From   string `json:"from" yaml:"from"`
	To     string `json:"to" yaml:"to"`
	Reason string `json:"reason" yaml:"reason"`
}

// Phase is one ordered stage of a plan. FilesToRemove and FilesToArchive
// are disjoint; a file flagged unsafe never appears in FilesToRemove.
type Phase struct {
	Name               string              `json:"name" yaml:"name"`
	Description        string              `json:"description" yaml:"description"`
	FilesToRemove      []string            `json:"files_to_remove" yaml:"files_to_remove"`
	FilesToArchive     []string            `json:"files_to_archive" yaml:"files_to_archive"`
	FilesToMove        []FileMove          `json:"files_to_move" yaml:"files_to_move"`
	ValidationRequired bool                `json:"validation_required" yaml:"validation_required"`
	Warnings           map[string][]string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// FileCount returns the number of files the phase touches
func (p *Phase) FileCount() int {
	return len(p.FilesToRemove) + len(p.FilesToArchive) + len(p.FilesToMove)
}

// IsEmpty reports whether the phase has nothing to do
func (p *Phase) IsEmpty() bool {
	return p.FileCount() == 0
}

// Plan is an ordered set of cleanup phases with its risk assessment
type Plan struct {
	Root                string           `json:"root" yaml:"root"`
	CreatedAt           time.Time        `json:"created_at" yaml:"created_at"`
	Phases              []Phase          `json:"phases" yaml:"phases"`
	EstimatedBytesSaved int64            `json:"estimated_bytes_saved" yaml:"estimated_bytes_saved"`
	RiskLevel           RiskLevel        `json:"risk_level" yaml:"risk_level"`
	Validation          []ValidationStep `json:"validation" yaml:"validation"`
}

// Phase returns the phase with the given name
func (p *Plan) Phase(name string) (*Phase, bool) {
	for i := range p.Phases {
		if p.Phases[i].Name == name {
			return &p.Phases[i], true
		}
	}
	return nil, false
}

// TotalFiles returns the number of files touched across all phases
func (p *Plan) TotalFiles() int {
	total := 0
	for i := range p.Phases {
		total += p.Phases[i].FileCount()
	}
	return total
}
