package store

import (
	"context"

	"github.com/promptsense/promptsense/internal/models"
)

// ResultFilter specifies filters for listing run results.
type ResultFilter struct {
	RunID    string
	ReviewID string
	Task     models.Task
	Style    string
	Provider string
}

// Store defines the persistence interface for promptsense.
type Store interface {
	// Datasets
	CreateDataset(ctx context.Context, d *models.Dataset) error
	GetDataset(ctx context.Context, id string) (*models.Dataset, error)
	GetDatasetByName(ctx context.Context, name string) (*models.Dataset, error)
	ListDatasets(ctx context.Context) ([]*models.Dataset, error)
	UpdateDataset(ctx context.Context, d *models.Dataset) error
	DeleteDataset(ctx context.Context, id string) error

	// Reviews
	InsertReviews(ctx context.Context, reviews []*models.Review) error
	GetReview(ctx context.Context, id string) (*models.Review, error)
	ListReviews(ctx context.Context, datasetID string, limit int) ([]*models.Review, error)

	// Runs
	CreateRun(ctx context.Context, r *models.Run) error
	GetRun(ctx context.Context, id string) (*models.Run, error)
	GetRunByName(ctx context.Context, name string) (*models.Run, error)
	ListRuns(ctx context.Context, datasetID string, limit int) ([]*models.Run, error)
	UpdateRun(ctx context.Context, r *models.Run) error
	DeleteRun(ctx context.Context, id string) error

	// Results
	AppendResults(ctx context.Context, results []*models.Result) error
	ListResults(ctx context.Context, filter ResultFilter) ([]*models.Result, error)

	// Metrics
	ReplaceMetrics(ctx context.Context, runID string, metrics []*models.Metric) error
	ListMetrics(ctx context.Context, runID string) ([]*models.Metric, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
