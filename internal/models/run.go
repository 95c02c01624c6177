package models

import "time"

// RunStatus represents the state of a measurement run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run represents one execution of the prompt-sensitivity pipeline: a
// dataset crossed with tasks, prompt styles, and providers.
type Run struct {
	ID           string
	Name         string
	DatasetID    string
	Tasks        []Task
	Styles       []string
	Providers    []string
	SampleSize   int // reviews actually included in the run
	Status       RunStatus
	Error        string
	ResultCount  int
	ErrorCount   int // results whose provider call failed
	ArtifactPath string
	StartedAt    time.Time
	CompletedAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
