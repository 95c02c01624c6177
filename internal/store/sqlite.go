package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/promptsense/promptsense/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer. Limiting to a single connection
	// serializes all DB access through Go's connection pool, preventing
	// "database is locked" errors while a run streams results concurrently.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	// Set busy timeout so concurrent writes wait instead of failing immediately
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// newULID generates a new ULID string.
func newULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	// Create migrations tracking table
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	// Sort by filename
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()

		// Check if already applied
		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Datasets ---

func (s *SQLiteStore) CreateDataset(ctx context.Context, d *models.Dataset) error {
	if d.ID == "" {
		d.ID = newULID()
	}
	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now
	if d.LoadedAt.IsZero() {
		d.LoadedAt = now
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO datasets (id, name, source_path, format, review_count, skipped, loaded_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Name, d.SourcePath, d.Format, d.ReviewCount, d.Skipped, d.LoadedAt, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create dataset: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetDataset(ctx context.Context, id string) (*models.Dataset, error) {
	d := &models.Dataset{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, source_path, format, review_count, skipped, loaded_at, created_at, updated_at
		FROM datasets WHERE id = ?`, id,
	).Scan(&d.ID, &d.Name, &d.SourcePath, &d.Format, &d.ReviewCount, &d.Skipped, &d.LoadedAt, &d.CreatedAt, &d.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("dataset not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get dataset: %w", err)
	}
	return d, nil
}

func (s *SQLiteStore) GetDatasetByName(ctx context.Context, name string) (*models.Dataset, error) {
	d := &models.Dataset{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, source_path, format, review_count, skipped, loaded_at, created_at, updated_at
		FROM datasets WHERE name = ?`, name,
	).Scan(&d.ID, &d.Name, &d.SourcePath, &d.Format, &d.ReviewCount, &d.Skipped, &d.LoadedAt, &d.CreatedAt, &d.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("dataset not found: %s", name)
	}
	if err != nil {
		return nil, fmt.Errorf("get dataset by name: %w", err)
	}
	return d, nil
}

func (s *SQLiteStore) ListDatasets(ctx context.Context) ([]*models.Dataset, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, source_path, format, review_count, skipped, loaded_at, created_at, updated_at
		FROM datasets ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var datasets []*models.Dataset
	for rows.Next() {
		d := &models.Dataset{}
		if err := rows.Scan(&d.ID, &d.Name, &d.SourcePath, &d.Format, &d.ReviewCount, &d.Skipped, &d.LoadedAt, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan dataset: %w", err)
		}
		datasets = append(datasets, d)
	}
	return datasets, rows.Err()
}

func (s *SQLiteStore) UpdateDataset(ctx context.Context, d *models.Dataset) error {
	d.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`UPDATE datasets SET name=?, source_path=?, format=?, review_count=?, skipped=?, loaded_at=?, updated_at=?
		WHERE id=?`,
		d.Name, d.SourcePath, d.Format, d.ReviewCount, d.Skipped, d.LoadedAt, d.UpdatedAt, d.ID,
	)
	if err != nil {
		return fmt.Errorf("update dataset: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("dataset not found: %s", d.ID)
	}
	return nil
}

func (s *SQLiteStore) DeleteDataset(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM datasets WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete dataset: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("dataset not found: %s", id)
	}
	return nil
}

// --- Reviews ---

// InsertReviews inserts a batch of reviews in a single transaction.
func (s *SQLiteStore) InsertReviews(ctx context.Context, reviews []*models.Review) error {
	if len(reviews) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO reviews (id, dataset_id, source_id, text, rating, review_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert review: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	now := time.Now().UTC()
	for _, r := range reviews {
		if r.ID == "" {
			r.ID = newULID()
		}
		r.CreatedAt = now
		if _, err := stmt.ExecContext(ctx, r.ID, r.DatasetID, r.SourceID, r.Text, r.Rating, r.Date, r.CreatedAt); err != nil {
			return fmt.Errorf("insert review: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetReview(ctx context.Context, id string) (*models.Review, error) {
	r := &models.Review{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, dataset_id, source_id, text, rating, review_date, created_at
		FROM reviews WHERE id = ?`, id,
	).Scan(&r.ID, &r.DatasetID, &r.SourceID, &r.Text, &r.Rating, &r.Date, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("review not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get review: %w", err)
	}
	return r, nil
}

func (s *SQLiteStore) ListReviews(ctx context.Context, datasetID string, limit int) ([]*models.Review, error) {
	query := `SELECT id, dataset_id, source_id, text, rating, review_date, created_at
		FROM reviews WHERE dataset_id = ? ORDER BY review_date, id`
	args := []any{datasetID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var reviews []*models.Review
	for rows.Next() {
		r := &models.Review{}
		if err := rows.Scan(&r.ID, &r.DatasetID, &r.SourceID, &r.Text, &r.Rating, &r.Date, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		reviews = append(reviews, r)
	}
	return reviews, rows.Err()
}

// --- Runs ---

func (s *SQLiteStore) CreateRun(ctx context.Context, r *models.Run) error {
	if r.ID == "" {
		r.ID = newULID()
	}
	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now
	if r.StartedAt.IsZero() {
		r.StartedAt = now
	}
	if r.Status == "" {
		r.Status = models.RunStatusPending
	}

	tasksJSON, stylesJSON, providersJSON, err := marshalRunLists(r)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, name, dataset_id, tasks, styles, providers, sample_size, status, error, result_count, error_count, artifact_path, started_at, completed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Name, r.DatasetID, tasksJSON, stylesJSON, providersJSON,
		r.SampleSize, string(r.Status), r.Error, r.ResultCount, r.ErrorCount,
		r.ArtifactPath, r.StartedAt, r.CompletedAt, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*models.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, dataset_id, tasks, styles, providers, sample_size, status, error, result_count, error_count, artifact_path, started_at, completed_at, created_at, updated_at
		FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

func (s *SQLiteStore) GetRunByName(ctx context.Context, name string) (*models.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, dataset_id, tasks, styles, providers, sample_size, status, error, result_count, error_count, artifact_path, started_at, completed_at, created_at, updated_at
		FROM runs WHERE name = ? ORDER BY created_at DESC LIMIT 1`, name)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run not found: %s", name)
	}
	if err != nil {
		return nil, fmt.Errorf("get run by name: %w", err)
	}
	return r, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, datasetID string, limit int) ([]*models.Run, error) {
	query := `SELECT id, name, dataset_id, tasks, styles, providers, sample_size, status, error, result_count, error_count, artifact_path, started_at, completed_at, created_at, updated_at
		FROM runs`
	var args []any

	if datasetID != "" {
		query += " WHERE dataset_id = ?"
		args = append(args, datasetID)
	}
	query += " ORDER BY started_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*models.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (s *SQLiteStore) UpdateRun(ctx context.Context, r *models.Run) error {
	r.UpdatedAt = time.Now().UTC()

	tasksJSON, stylesJSON, providersJSON, err := marshalRunLists(r)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE runs SET name=?, tasks=?, styles=?, providers=?, sample_size=?, status=?, error=?, result_count=?, error_count=?, artifact_path=?, started_at=?, completed_at=?, updated_at=?
		WHERE id=?`,
		r.Name, tasksJSON, stylesJSON, providersJSON, r.SampleSize,
		string(r.Status), r.Error, r.ResultCount, r.ErrorCount, r.ArtifactPath,
		r.StartedAt, r.CompletedAt, r.UpdatedAt, r.ID,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("run not found: %s", r.ID)
	}
	return nil
}

func (s *SQLiteStore) DeleteRun(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM runs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("run not found: %s", id)
	}
	return nil
}

// marshalRunLists encodes the task/style/provider lists for storage.
func marshalRunLists(r *models.Run) (tasks, styles, providers string, err error) {
	tasksJSON, err := json.Marshal(r.Tasks)
	if err != nil {
		return "", "", "", fmt.Errorf("marshal run tasks: %w", err)
	}
	stylesJSON, err := json.Marshal(r.Styles)
	if err != nil {
		return "", "", "", fmt.Errorf("marshal run styles: %w", err)
	}
	providersJSON, err := json.Marshal(r.Providers)
	if err != nil {
		return "", "", "", fmt.Errorf("marshal run providers: %w", err)
	}
	return string(tasksJSON), string(stylesJSON), string(providersJSON), nil
}

// scanRun scans a run row from either *sql.Row or *sql.Rows.
func scanRun(row interface{ Scan(dest ...any) error }) (*models.Run, error) {
	r := &models.Run{}
	var status, tasksJSON, stylesJSON, providersJSON string
	var completedAt sql.NullTime

	err := row.Scan(&r.ID, &r.Name, &r.DatasetID, &tasksJSON, &stylesJSON, &providersJSON,
		&r.SampleSize, &status, &r.Error, &r.ResultCount, &r.ErrorCount,
		&r.ArtifactPath, &r.StartedAt, &completedAt, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}

	r.Status = models.RunStatus(status)
	if completedAt.Valid {
		r.CompletedAt = &completedAt.Time
	}
	_ = json.Unmarshal([]byte(tasksJSON), &r.Tasks)
	_ = json.Unmarshal([]byte(stylesJSON), &r.Styles)
	_ = json.Unmarshal([]byte(providersJSON), &r.Providers)
	return r, nil
}

// --- Results ---

// AppendResults inserts a batch of results in a single transaction.
func (s *SQLiteStore) AppendResults(ctx context.Context, results []*models.Result) error {
	if len(results) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO results (id, run_id, review_id, task, style, provider, model, raw_response, label, latency_ms, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert result: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	now := time.Now().UTC()
	for _, res := range results {
		if res.ID == "" {
			res.ID = newULID()
		}
		res.CreatedAt = now
		if _, err := stmt.ExecContext(ctx,
			res.ID, res.RunID, res.ReviewID, string(res.Task), res.Style, res.Provider,
			res.Model, res.RawResponse, res.Label, res.LatencyMs, res.Error, res.CreatedAt); err != nil {
			return fmt.Errorf("insert result: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListResults(ctx context.Context, filter ResultFilter) ([]*models.Result, error) {
	query := `SELECT id, run_id, review_id, task, style, provider, model, raw_response, label, latency_ms, error, created_at FROM results`
	var conditions []string
	var args []any

	if filter.RunID != "" {
		conditions = append(conditions, "run_id = ?")
		args = append(args, filter.RunID)
	}
	if filter.ReviewID != "" {
		conditions = append(conditions, "review_id = ?")
		args = append(args, filter.ReviewID)
	}
	if filter.Task != "" {
		conditions = append(conditions, "task = ?")
		args = append(args, string(filter.Task))
	}
	if filter.Style != "" {
		conditions = append(conditions, "style = ?")
		args = append(args, filter.Style)
	}
	if filter.Provider != "" {
		conditions = append(conditions, "provider = ?")
		args = append(args, filter.Provider)
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY review_id, task, provider, style"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []*models.Result
	for rows.Next() {
		res := &models.Result{}
		var task string
		if err := rows.Scan(&res.ID, &res.RunID, &res.ReviewID, &task, &res.Style, &res.Provider,
			&res.Model, &res.RawResponse, &res.Label, &res.LatencyMs, &res.Error, &res.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		res.Task = models.Task(task)
		results = append(results, res)
	}
	return results, rows.Err()
}

// --- Metrics ---

// ReplaceMetrics replaces all persisted metrics for a run. Evaluation is
// idempotent, so re-running eval overwrites the previous snapshot.
func (s *SQLiteStore) ReplaceMetrics(ctx context.Context, runID string, metrics []*models.Metric) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM metrics WHERE run_id = ?", runID); err != nil {
		return fmt.Errorf("clear run metrics: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO metrics (id, run_id, task, provider, name, style, other, value, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert metric: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	now := time.Now().UTC()
	for _, m := range metrics {
		if m.ID == "" {
			m.ID = newULID()
		}
		m.RunID = runID
		m.CreatedAt = now
		if _, err := stmt.ExecContext(ctx,
			m.ID, m.RunID, string(m.Task), m.Provider, m.Name, m.Style, m.Other, m.Value, m.CreatedAt); err != nil {
			return fmt.Errorf("insert metric: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListMetrics(ctx context.Context, runID string) ([]*models.Metric, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, task, provider, name, style, other, value, created_at
		FROM metrics WHERE run_id = ? ORDER BY task, provider, name, style, other`, runID)
	if err != nil {
		return nil, fmt.Errorf("list metrics: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var metrics []*models.Metric
	for rows.Next() {
		m := &models.Metric{}
		var task string
		if err := rows.Scan(&m.ID, &m.RunID, &task, &m.Provider, &m.Name, &m.Style, &m.Other, &m.Value, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan metric: %w", err)
		}
		m.Task = models.Task(task)
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}
