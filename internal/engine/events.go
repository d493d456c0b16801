package engine

import (
	"time"

	"github.com/nft-repin/internal/models"
	"github.com/nft-repin/internal/types"
)

// EventType identifies what a progress event reports
type EventType string

const (
	// EventTaskStarted fires when a worker picks up a task
	EventTaskStarted EventType = "task_started"
	// EventTaskCompleted fires when a task reaches a terminal state
	EventTaskCompleted EventType = "task_completed"
	// EventRunAborted fires once when a fatal failure stops the run
	EventRunAborted EventType = "run_aborted"
)

// Event is a progress notification. The task is a snapshot: consumers may
// hold it without observing later worker mutations.
type Event struct {
	Type      EventType             `json:"type"`
	Task      *models.MigrationTask `json:"task,omitempty"`
	Timestamp time.Time             `json:"timestamp"`
}

// EventHandler receives progress events. Called from worker goroutines;
// handlers must be safe for concurrent use.
type EventHandler func(Event)

// Summary is the final accounting of a run
type Summary struct {
	Status     types.RunStatus `json:"status"`
	TotalTasks int             `json:"totalTasks"`
	Pinned     int             `json:"pinned"`
	Failed     int             `json:"failed"`
	FromCache  int             `json:"fromCache"`
	Unverified int             `json:"unverified"`
	Duration   time.Duration   `json:"duration"`
}
