package models

import "time"

// Dataset represents a loaded and validated set of app reviews.
type Dataset struct {
	ID          string
	Name        string
	SourcePath  string
	Format      string // csv or json
	ReviewCount int
	Skipped     int // rows rejected during load
	LoadedAt    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
