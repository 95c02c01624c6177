package models

import "time"

// Result records a single provider call: one review classified under one
// task with one prompt style. Label is the canonical label extracted from
// RawResponse, empty when the call failed or the response was unparseable.
type Result struct {
	ID          string
	RunID       string
	ReviewID    string
	Task        Task
	Style       string
	Provider    string
	Model       string
	RawResponse string
	Label       string
	LatencyMs   int64
	Error       string
	CreatedAt   time.Time
}
