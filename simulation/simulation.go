// Package simulation owns the Simulation entity and its lifecycle: creation,
// validation, background-task dispatch, status transitions, retrieval,
// listing, deletion and rerun.
package simulation

import (
	"errors"
	"time"
)

// Status is the lifecycle state of a simulation.
type Status string

const (
	// StatusPending means the simulation is persisted and queued for execution.
	StatusPending Status = "pending"
	// StatusRunning means a background task is executing the simulation.
	StatusRunning Status = "running"
	// StatusCompleted means the run finished and result_summary is set.
	StatusCompleted Status = "completed"
	// StatusFailed means the run errored and error_message is set.
	StatusFailed Status = "failed"
)

// Terminal reports whether the status is a terminal state.
func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusFailed }

// Sentinel errors surfaced by lifecycle operations.
var (
	// ErrValidation covers rejected create requests (empty or invalid participants).
	ErrValidation = errors.New("validation error")
	// ErrNotFound is returned when no simulation exists for an id.
	ErrNotFound = errors.New("simulation not found")
	// ErrForbidden is returned when a non-creator attempts delete or rerun.
	ErrForbidden = errors.New("only the creator may perform this operation")
	// ErrConflict is returned when delete or rerun hits a still-running simulation.
	ErrConflict = errors.New("simulation is still running")
)

// Simulation is the persisted record of one orchestration run.
type Simulation struct {
	ID                 string     `json:"id"`
	Name               string     `json:"name"`
	Instruction        string     `json:"instruction"`
	ParticipantUserIDs []string   `json:"participant_user_ids"`
	Status             Status     `json:"status"`
	CreatedBy          string     `json:"created_by"`
	CreatedAt          time.Time  `json:"created_at"`
	StartedAt          *time.Time `json:"started_at,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	ResultSummary      *string    `json:"result_summary,omitempty"`
	ErrorMessage       *string    `json:"error_message,omitempty"`

	// RunGeneration increments on every dispatch; terminal writes from a
	// stale generation are discarded so a superseded background task cannot
	// clobber a newer run's fields.
	RunGeneration int64 `json:"-"`
}

// Clone returns a deep copy safe for independent mutation.
func (s *Simulation) Clone() *Simulation {
	if s == nil {
		return nil
	}
	clone := *s
	clone.ParticipantUserIDs = append([]string(nil), s.ParticipantUserIDs...)
	if s.StartedAt != nil {
		t := *s.StartedAt
		clone.StartedAt = &t
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		clone.CompletedAt = &t
	}
	if s.ResultSummary != nil {
		v := *s.ResultSummary
		clone.ResultSummary = &v
	}
	if s.ErrorMessage != nil {
		v := *s.ErrorMessage
		clone.ErrorMessage = &v
	}
	return &clone
}

// ResetForRerun returns the mutable fields to their initial values while
// keeping the identifier, creator and creation timestamp, and bumps the run
// generation for the next dispatch.
func (s *Simulation) ResetForRerun() {
	s.Status = StatusPending
	s.StartedAt = nil
	s.CompletedAt = nil
	s.ResultSummary = nil
	s.ErrorMessage = nil
	s.RunGeneration++
}
