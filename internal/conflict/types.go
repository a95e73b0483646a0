// Package conflict classifies the merge conflicts a promotion leaves in the
// working copy and resolves them, either with an explicit strategy or with a
// strategy recommended for the target environment.
package conflict

import (
	"fmt"
	"path/filepath"
	"strings"

	"netpromote/internal/environment"
)

// Type is the shape of a conflict
type Type int

const (
	TypeContent Type = iota
	TypeAddAdd
	TypeDeleteModify
	TypeModifyDelete
	TypeRenameAdd
	TypeRenameRename
	TypeSubmodule
	TypeBinary
)

var typeNames = []string{
	TypeContent:      "content",
	TypeAddAdd:       "add_add",
	TypeDeleteModify: "delete_modify",
	TypeModifyDelete: "modify_delete",
	TypeRenameAdd:    "rename_add",
	TypeRenameRename: "rename_rename",
	TypeSubmodule:    "submodule",
	TypeBinary:       "binary",
}

// String returns the string representation of Type
func (t Type) String() string {
	if t >= 0 && int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// AutoResolvable reports whether the engine has a deterministic rule for t
func (t Type) AutoResolvable() bool {
	switch t {
	case TypeDeleteModify, TypeModifyDelete, TypeAddAdd:
		return true
	default:
		return false
	}
}

// ParseType converts a type name into a Type
func ParseType(s string) (Type, error) {
	normalized := strings.ReplaceAll(strings.ToLower(s), "-", "_")
	for i, name := range typeNames {
		if name == normalized {
			return Type(i), nil
		}
	}
	return TypeContent, fmt.Errorf("unknown conflict type %q", s)
}

// MarshalText implements encoding.TextMarshaler
func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (t *Type) UnmarshalText(text []byte) error {
	parsed, err := ParseType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Strategy is a way of resolving a conflict. The zero value is Manual.
type Strategy int

const (
	Manual Strategy = iota
	UseOurs
	UseTheirs
	AutoMerge
	Custom
	Abort
)

// String returns the string representation of Strategy
func (s Strategy) String() string {
	switch s {
	case Manual:
		return "manual"
	case UseOurs:
		return "ours"
	case UseTheirs:
		return "theirs"
	case AutoMerge:
		return "auto-merge"
	case Custom:
		return "custom"
	case Abort:
		return "abort"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// ParseStrategy converts a strategy name into a Strategy
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ReplaceAll(strings.ToLower(s), "_", "-") {
	case "manual":
		return Manual, nil
	case "ours", "use-ours":
		return UseOurs, nil
	case "theirs", "use-theirs":
		return UseTheirs, nil
	case "auto-merge", "automerge", "auto":
		return AutoMerge, nil
	case "custom":
		return Custom, nil
	case "abort":
		return Abort, nil
	default:
		return Manual, fmt.Errorf("unknown resolution strategy %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler
func (s Strategy) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *Strategy) UnmarshalText(text []byte) error {
	parsed, err := ParseStrategy(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// safeExtensions are file types whose automatic resolution is low risk
var safeExtensions = map[string]bool{
	"json": true,
	"yaml": true,
	"yml":  true,
	"toml": true,
	"ini":  true,
	"cfg":  true,
	"conf": true,
	"txt":  true,
	"md":   true,
}

// Info describes one conflicted path
type Info struct {
	Path              string            `json:"path"`
	Type              Type              `json:"type"`
	OurContent        *string           `json:"our_content,omitempty"`
	TheirContent      *string           `json:"their_content,omitempty"`
	BaseContent       *string           `json:"base_content,omitempty"`
	SuggestedStrategy Strategy          `json:"suggested_strategy"`
	AutoResolvable    bool              `json:"auto_resolvable"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

// NewInfo creates an Info whose auto-resolvability follows its type
func NewInfo(path string, t Type) Info {
	return Info{
		Path:              path,
		Type:              t,
		SuggestedStrategy: Manual,
		AutoResolvable:    t.AutoResolvable(),
		Metadata:          make(map[string]string),
	}
}

// IsSafeForAutoResolution reports whether the conflict is auto-resolvable
// and lives in a file type considered safe to rewrite automatically
func (i Info) IsSafeForAutoResolution() bool {
	if !i.AutoResolvable {
		return false
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(i.Path)), ".")
	return safeExtensions[ext]
}

// Analysis aggregates the conflicts found in a working copy
type Analysis struct {
	Conflicts           []Info `json:"conflicts"`
	Total               int    `json:"total"`
	AutoResolvableCount int    `json:"auto_resolvable_count"`
	ManualCount         int    `json:"manual_count"`
	CanAutoResolve      bool   `json:"can_auto_resolve"`
	RecommendedApproach string `json:"recommended_approach"`
}

// NewAnalysis computes the aggregate counts for conflicts
func NewAnalysis(conflicts []Info) *Analysis {
	a := &Analysis{
		Conflicts: conflicts,
		Total:     len(conflicts),
	}
	for _, c := range conflicts {
		if c.AutoResolvable {
			a.AutoResolvableCount++
		}
	}
	a.ManualCount = a.Total - a.AutoResolvableCount
	a.CanAutoResolve = a.ManualCount == 0

	switch {
	case a.Total == 0:
		a.RecommendedApproach = "No conflicts detected"
	case a.CanAutoResolve:
		a.RecommendedApproach = "All conflicts can be resolved automatically"
	case a.AutoResolvableCount == 0:
		a.RecommendedApproach = "All conflicts require manual resolution"
	default:
		a.RecommendedApproach = fmt.Sprintf(
			"Resolve %d conflict(s) automatically, then %d manually",
			a.AutoResolvableCount, a.ManualCount)
	}
	return a
}

// Result is the outcome of resolving one conflict. A failed resolution is
// data: Success is false and RequiresManualIntervention tells the caller
// whether the file still needs a human.
type Result struct {
	Path                       string   `json:"path"`
	Success                    bool     `json:"success"`
	Strategy                   Strategy `json:"strategy"`
	ResolvedContent            *string  `json:"resolved_content,omitempty"`
	Error                      string   `json:"error,omitempty"`
	RequiresManualIntervention bool     `json:"requires_manual_intervention"`
}

// Recommendation is an environment-aware suggestion, not an executed resolution
type Recommendation struct {
	Path            string           `json:"path"`
	Environment     string           `json:"environment"`
	EnvironmentType environment.Type `json:"environment_type"`
	Strategy        Strategy         `json:"strategy"`
	Reasoning       string           `json:"reasoning"`
	Confidence      float64          `json:"confidence"`
}
