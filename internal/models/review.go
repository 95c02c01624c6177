package models

import "time"

// Review represents a single app-store review within a dataset.
// Rows are validated once at load time: rating in 1..5, non-empty text,
// parseable date, no duplicate text within the dataset.
type Review struct {
	ID        string
	DatasetID string
	SourceID  string // id column from the source file, if any
	Text      string
	Rating    int
	Date      time.Time
	CreatedAt time.Time
}
