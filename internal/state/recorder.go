// Package state implements the State Recorder (C10): an append-only
// interface over auditable task/process/QA-attempt/audit-log lifecycle
// events.
package state

import (
	"context"
	"time"
)

// Task is one row of the tasks table.
type Task struct {
	TaskID       string
	AnalysisType string
	Status       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Process is one row of the processing_state table.
type Process struct {
	ProcessID  string
	TaskID     string
	WorkerID   string
	State      string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// QAAttempt is one row of the qa_attempts table.
type QAAttempt struct {
	AttemptID             string
	TaskID                string
	QAStage               string
	ValidationResult      map[string]interface{}
	FailureReasons        map[string]interface{}
	CorrectivePromptUsed  *string
	CreatedAt             time.Time
}

// AuditLogEntry is one row of the audit_logs table.
type AuditLogEntry struct {
	LogID     string
	ProcessID string
	EventType string
	EventData map[string]interface{}
	Timestamp time.Time
}

// terminalStates stamp a finish time on UpdateProcess.
var terminalStates = map[string]bool{"completed": true, "failed": true}

// IsTerminal reports whether state is one of the terminal process states.
func IsTerminal(s string) bool { return terminalStates[s] }

// State is the append-only lifecycle recorder every backing store must
// implement. All writes are atomic per row; a failed write must never
// leave partial state visible to other callers.
type State interface {
	CreateTask(ctx context.Context, analysisType, status string) (string, error)
	UpdateTaskStatus(ctx context.Context, taskID, status string) error
	GetTaskByID(ctx context.Context, taskID string) (*Task, error)

	CreateProcess(ctx context.Context, taskID, workerID, initialState string) (string, error)
	UpdateProcess(ctx context.Context, processID, newState string) error
	GetProcessByID(ctx context.Context, processID string) (*Process, error)

	LogQAAttempt(ctx context.Context, taskID, stage string, validationResult map[string]interface{}, failureReasons map[string]interface{}, correctivePromptUsed *string) (string, error)
	AttemptCountForTask(ctx context.Context, taskID string) (int, error)

	AppendAudit(ctx context.Context, processID, eventType string, eventData map[string]interface{}) (string, error)
	ListAudit(ctx context.Context, processID string) ([]AuditLogEntry, error)

	// WithTx runs fn against a State bound to a single transactional scope:
	// every call fn makes through it either all commit together or all roll
	// back together. Cross-row consistency (e.g. a task, its process row,
	// and its first audit entry) is only guaranteed when grouped this way.
	WithTx(ctx context.Context, fn func(State) error) error

	Close() error
}
