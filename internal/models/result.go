package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// TaskStatus represents the lifecycle state of a reconciliation task
type TaskStatus string

const (
	// TaskPending means the task is queued and not yet picked up by a worker
	TaskPending TaskStatus = "pending"
	// TaskRunning means a worker is executing the pipeline
	TaskRunning TaskStatus = "running"
	// TaskCompleted means the pipeline finished and a result artifact exists
	TaskCompleted TaskStatus = "completed"
	// TaskFailed means a fatal error stopped the pipeline
	TaskFailed TaskStatus = "failed"
	// TaskCanceled means the task was canceled or timed out
	TaskCanceled TaskStatus = "canceled"
)

// IsTerminal reports whether the status admits no further transitions.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskCompleted, TaskFailed, TaskCanceled:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether the state machine allows moving from s to
// next. Terminal states are immutable; pending may start or be canceled.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	switch s {
	case TaskPending:
		return next == TaskRunning || next == TaskCanceled
	case TaskRunning:
		return next == TaskCompleted || next == TaskFailed || next == TaskCanceled
	default:
		return false
	}
}

// Valid reports whether the status is one of the known states.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskPending, TaskRunning, TaskCompleted, TaskFailed, TaskCanceled:
		return true
	default:
		return false
	}
}

// Issue records one discrepancy found by a validation rule or by unmatched
// key detection. BusinessValue and FinanceValue carry the stringified
// amount-role cells when the corresponding row is present.
type Issue struct {
	KeyValue      string  `json:"key_value"`
	IssueType     string  `json:"issue_type"`
	BusinessValue *string `json:"business_value,omitempty"`
	FinanceValue  *string `json:"finance_value,omitempty"`
	Detail        string  `json:"detail"`
}

// String returns a one-line rendering for logs
func (i Issue) String() string {
	return fmt.Sprintf("[%s] key=%s: %s", i.IssueType, i.KeyValue, i.Detail)
}

// Summary aggregates the counts of a finished reconciliation run.
type Summary struct {
	TotalBusinessRecords int `json:"total_business_records"`
	TotalFinanceRecords  int `json:"total_finance_records"`
	MatchedRecords       int `json:"matched_records"`
	UnmatchedRecords     int `json:"unmatched_records"`
}

// Metadata carries provenance for a result artifact.
type Metadata struct {
	RuleVersion     string              `json:"rule_version"`
	ProcessedAt     time.Time           `json:"processed_at"`
	FileAssignments map[string][]string `json:"file_assignments"`
	Warnings        []string            `json:"warnings"`
}

// Result is the artifact produced when a task reaches a terminal state.
// Completed tasks carry the full summary and issue list; failed and canceled
// tasks carry status and error with zeroed counts.
type Result struct {
	TaskID   string     `json:"task_id"`
	Status   TaskStatus `json:"status"`
	Summary  Summary    `json:"summary"`
	Issues   []Issue    `json:"issues"`
	Metadata Metadata   `json:"metadata"`
	Error    string     `json:"error,omitempty"`
}

// MarshalJSON keeps issues and warnings as empty arrays rather than null so
// artifact consumers can index without nil checks.
func (r Result) MarshalJSON() ([]byte, error) {
	type Alias Result
	out := (Alias)(r)
	if out.Issues == nil {
		out.Issues = []Issue{}
	}
	if out.Metadata.Warnings == nil {
		out.Metadata.Warnings = []string{}
	}
	if out.Metadata.FileAssignments == nil {
		out.Metadata.FileAssignments = map[string][]string{}
	}
	return json.Marshal(out)
}

// CallbackEnvelope is the JSON body POSTed to a task's callback URL when the
// task reaches a terminal state.
type CallbackEnvelope struct {
	TaskID  string     `json:"task_id"`
	Status  TaskStatus `json:"status"`
	Summary *Summary   `json:"summary,omitempty"`
	Error   string     `json:"error,omitempty"`
}

// NewResult creates a result artifact for the given task and status.
func NewResult(taskID string, status TaskStatus) *Result {
	return &Result{
		TaskID: taskID,
		Status: status,
		Issues: []Issue{},
		Metadata: Metadata{
			ProcessedAt:     time.Now(),
			FileAssignments: map[string][]string{},
			Warnings:        []string{},
		},
	}
}
