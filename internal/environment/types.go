// Package environment owns the environment registry and the promotion
// workflow that moves changes from one environment branch into another.
package environment

import (
	"fmt"
	"time"
)

// Type is the deployment stage an environment represents
type Type int

const (
	TypeDevelopment Type = iota
	TypeStaging
	TypeProduction
	TypeCustom
)

// String returns the string representation of Type
func (t Type) String() string {
	switch t {
	case TypeDevelopment:
		return "development"
	case TypeStaging:
		return "staging"
	case TypeProduction:
		return "production"
	case TypeCustom:
		return "custom"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// ParseType converts a type name into a Type
func ParseType(s string) (Type, error) {
	switch s {
	case "development", "dev":
		return TypeDevelopment, nil
	case "staging", "stage":
		return TypeStaging, nil
	case "production", "prod":
		return TypeProduction, nil
	case "custom":
		return TypeCustom, nil
	default:
		return TypeCustom, fmt.Errorf("unknown environment type %q", s)
	}
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

// rank orders types along the promotion hierarchy for listings
func (t Type) rank() int {
	return int(t)
}

// Protection holds the review, status-check and push rules gating an environment
type Protection struct {
	RequiredReviewers    int      `yaml:"required_reviewers" json:"required_reviewers"`
	DismissStaleReviews  bool     `yaml:"dismiss_stale_reviews" json:"dismiss_stale_reviews"`
	RequireStatusChecks  bool     `yaml:"require_status_checks" json:"require_status_checks"`
	RequiredStatusChecks []string `yaml:"required_status_checks,omitempty" json:"required_status_checks,omitempty"`
	RestrictPushes       bool     `yaml:"restrict_pushes" json:"restrict_pushes"`
	AllowedPushers       []string `yaml:"allowed_pushers,omitempty" json:"allowed_pushers,omitempty"`
}

// Config describes one environment bound to one branch
type Config struct {
	Name             string     `yaml:"name" json:"name"`
	Type             Type       `yaml:"type" json:"type"`
	Branch           string     `yaml:"branch" json:"branch"`
	Description      string     `yaml:"description,omitempty" json:"description,omitempty"`
	AllowedSources   []string   `yaml:"allowed_sources,omitempty" json:"allowed_sources,omitempty"`
	RequiresApproval bool       `yaml:"requires_approval" json:"requires_approval"`
	Protection       Protection `yaml:"protection" json:"protection"`
	CreatedAt        time.Time  `yaml:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `yaml:"updated_at" json:"updated_at"`
}

// AllowsSource reports whether source may promote into this environment
func (c *Config) AllowsSource(source string) bool {
	if len(c.AllowedSources) == 0 {
		return true
	}
	for _, s := range c.AllowedSources {
		if s == source {
			return true
		}
	}
	return false
}

// Status is the lifecycle state of a promotion request
type Status int

const (
	StatusPending Status = iota
	StatusApproved
	StatusInProgress
	StatusCompleted
	StatusFailed
	StatusCancelled
	StatusRejected
)

// transitions lists every allowed status change. Failed requests may be
// approved again for a retry or abandoned; rejected ones may be withdrawn.
var transitions = map[Status][]Status{
	StatusPending:    {StatusApproved, StatusRejected, StatusCancelled},
	StatusApproved:   {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusFailed},
	StatusFailed:     {StatusApproved, StatusCancelled},
	StatusRejected:   {StatusCancelled},
}

// CanTransitionTo reports whether s may move to next
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible
func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// IsActive reports whether the request still holds its target environment
func (s Status) IsActive() bool {
	return s == StatusPending || s == StatusApproved || s == StatusInProgress
}

// String returns the string representation of Status
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusApproved:
		return "approved"
	case StatusInProgress:
		return "in_progress"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	case StatusRejected:
		return "rejected"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// ParseStatus converts a status name into a Status
func ParseStatus(s string) (Status, error) {
	for st := StatusPending; st <= StatusRejected; st++ {
		if st.String() == s {
			return st, nil
		}
	}
	return StatusPending, fmt.Errorf("unknown promotion status %q", s)
}

// MarshalText implements encoding.TextMarshaler
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// PromotionRequest is one attempt to merge a source environment into a target
type PromotionRequest struct {
	ID           string            `yaml:"id" json:"id"`
	Source       string            `yaml:"source" json:"source"`
	Target       string            `yaml:"target" json:"target"`
	SourceBranch string            `yaml:"source_branch" json:"source_branch"`
	TargetBranch string            `yaml:"target_branch" json:"target_branch"`
	SourceCommit string            `yaml:"source_commit" json:"source_commit"`
	TargetCommit string            `yaml:"target_commit,omitempty" json:"target_commit,omitempty"`
	Status       Status            `yaml:"status" json:"status"`
	Message      string            `yaml:"message,omitempty" json:"message,omitempty"`
	RequestedBy  string            `yaml:"requested_by" json:"requested_by"`
	ApprovedBy   string            `yaml:"approved_by,omitempty" json:"approved_by,omitempty"`
	RejectedBy   string            `yaml:"rejected_by,omitempty" json:"rejected_by,omitempty"`
	CancelReason string            `yaml:"cancel_reason,omitempty" json:"cancel_reason,omitempty"`
	Error        string            `yaml:"error,omitempty" json:"error,omitempty"`
	Conflicts    []string          `yaml:"conflicts,omitempty" json:"conflicts,omitempty"`
	CreatedAt    time.Time         `yaml:"created_at" json:"created_at"`
	UpdatedAt    time.Time         `yaml:"updated_at" json:"updated_at"`
	CompletedAt  *time.Time        `yaml:"completed_at,omitempty" json:"completed_at,omitempty"`
	Metadata     map[string]string `yaml:"metadata,omitempty" json:"metadata,omitempty"`
}

// PromotionResult is the outcome of executing a request
type PromotionResult struct {
	RequestID    string    `json:"request_id"`
	Success      bool      `json:"success"`
	ChangedFiles []string  `json:"changed_files,omitempty"`
	Conflicts    []string  `json:"conflicts,omitempty"`
	TargetCommit string    `json:"target_commit,omitempty"`
	Error        string    `json:"error,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
}

// Duration returns how long execution took
func (r *PromotionResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// State is a serializable snapshot of a Manager
type State struct {
	Environments []Config           `yaml:"environments"`
	Promotions   []PromotionRequest `yaml:"promotions"`
}

// Recorder receives a copy of a request after each terminal status change
type Recorder interface {
	RecordPromotion(req PromotionRequest) error
}
