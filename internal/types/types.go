package types

import "time"

// DomainItem is one candidate row. Label is carried through unchanged.
type DomainItem struct {
	Label  string `json:"label"`
	Domain string `json:"domain"` // lowercase, trimmed, recognized suffix
}

// CheckOutcome is the result of one availability check.
type CheckOutcome struct {
	Domain    string `json:"domain"`
	Available bool   `json:"available"`
	Error     bool   `json:"error"` // true when retries were exhausted
}

// Progress is the snapshot served to pollers.
type Progress struct {
	Total      int  `json:"total"`
	Processed  int  `json:"processed"`
	Available  int  `json:"available"`
	Processing bool `json:"processing"`
}

// EventType identifies a push event.
type EventType string

const (
	EventProgress EventType = "progress"
	EventComplete EventType = "complete"
	EventPartial  EventType = "partial"
)

// Event is pushed to subscribers of a queue.
type Event struct {
	Type        EventType      `json:"type"`
	RunID       string         `json:"runId"`
	Progress    Progress       `json:"progress"`
	TimeElapsed int64          `json:"timeElapsed"` // milliseconds since the run started
	Partial     *PartialResult `json:"partial,omitempty"`
}

// PartialResult is emitted when a run is cut short by its wall-clock budget.
type PartialResult struct {
	Results   []DomainItem `json:"results"`
	Processed int          `json:"processed"`
	Total     int          `json:"total"`
	Available int          `json:"available"`
	Error     string       `json:"error"`
}

// RunStatus is the terminal status of a run.
type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	RunTimedOut  RunStatus = "timed_out"
	RunCleared   RunStatus = "cleared"
	RunCanceled  RunStatus = "canceled"
)

// RunSummary describes a finished run; handed to completion hooks.
type RunSummary struct {
	ID         string
	Status     RunStatus
	StartedAt  time.Time
	FinishedAt time.Time
	Total      int
	Processed  int
	Available  []DomainItem
	Err        error
}
