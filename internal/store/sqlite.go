package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/joescharf/iq/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer. Limiting to a single
	// connection serializes all DB access through Go's connection pool.
	db.SetMaxOpenConns(1)

	// WAL for concurrent reads, busy timeout so writers wait instead of
	// failing immediately.
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
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

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()

		var count int
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count); err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}
	return nil
}

// Close releases the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// SaveFeedback appends one feedback revision. IDs are unique per revision, so
// this never updates an existing row.
func (s *SQLiteStore) SaveFeedback(ctx context.Context, fb *models.Feedback) error {
	strengths, _ := json.Marshal(fb.Strengths)
	improvements, _ := json.Marshal(fb.Improvements)
	suggestions, _ := json.Marshal(fb.Suggestions)
	breakdown, _ := json.Marshal(fb.Breakdown)
	resources, _ := json.Marshal(fb.Resources)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO feedback (id, issue_key, score, grade, assessment, strengths,
			improvements, suggestions, breakdown, improved_ac, resources,
			degraded, posted, notified, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		fb.ID, fb.IssueKey, fb.Score, string(fb.Grade), fb.OverallAssessment,
		string(strengths), string(improvements), string(suggestions),
		string(breakdown), fb.ImprovedAC, string(resources),
		boolToInt(fb.Degraded), boolToInt(fb.PostedToTracker), boolToInt(fb.Notified),
		fb.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("save feedback %s: %w", fb.ID, err)
	}
	return nil
}

// GetFeedback returns one feedback revision by ID, or nil when absent.
func (s *SQLiteStore) GetFeedback(ctx context.Context, id string) (*models.Feedback, error) {
	row := s.db.QueryRowContext(ctx, selectFeedback+" WHERE id = ?", id)
	fb, err := scanFeedback(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return fb, err
}

// ListFeedback returns revisions for an issue, newest first.
func (s *SQLiteStore) ListFeedback(ctx context.Context, issueKey string, limit int) ([]*models.Feedback, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		selectFeedback+" WHERE issue_key = ? ORDER BY created_at DESC LIMIT ?", issueKey, limit)
	if err != nil {
		return nil, fmt.Errorf("list feedback for %s: %w", issueKey, err)
	}
	defer rows.Close()

	var out []*models.Feedback
	for rows.Next() {
		fb, err := scanFeedback(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, fb)
	}
	return out, rows.Err()
}

const selectFeedback = `SELECT id, issue_key, score, grade, assessment, strengths,
	improvements, suggestions, breakdown, improved_ac, resources,
	degraded, posted, notified, created_at FROM feedback`

type scanner interface {
	Scan(dest ...any) error
}

func scanFeedback(row scanner) (*models.Feedback, error) {
	var fb models.Feedback
	var grade, strengths, improvements, suggestions, breakdown, resources string
	var degraded, posted, notified int

	err := row.Scan(&fb.ID, &fb.IssueKey, &fb.Score, &grade, &fb.OverallAssessment,
		&strengths, &improvements, &suggestions, &breakdown, &fb.ImprovedAC,
		&resources, &degraded, &posted, &notified, &fb.CreatedAt)
	if err != nil {
		return nil, err
	}

	fb.Grade = models.Grade(grade)
	fb.Degraded = degraded != 0
	fb.PostedToTracker = posted != 0
	fb.Notified = notified != 0
	_ = json.Unmarshal([]byte(strengths), &fb.Strengths)
	_ = json.Unmarshal([]byte(improvements), &fb.Improvements)
	_ = json.Unmarshal([]byte(suggestions), &fb.Suggestions)
	_ = json.Unmarshal([]byte(breakdown), &fb.Breakdown)
	_ = json.Unmarshal([]byte(resources), &fb.Resources)
	return &fb, nil
}

// SaveJob inserts a new job record.
func (s *SQLiteStore) SaveJob(ctx context.Context, job *models.AnalysisJob) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, query, max_results, workers, dry_run, post, notify,
			status, total, processed, skipped, failed, current_issue,
			score_count, score_mean, score_min, score_max, error, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.Query, job.MaxResults, job.Workers,
		boolToInt(job.DryRun), boolToInt(job.PostToTracker), boolToInt(job.Notify),
		string(job.Status), job.Total, job.Processed, job.Skipped, job.Failed,
		job.CurrentIssue, job.Stats.Count, job.Stats.Mean, job.Stats.Min, job.Stats.Max,
		job.Error, nullTime(job.StartedAt), nullTime(job.EndedAt))
	if err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}
	return nil
}

// UpdateJob rewrites the mutable fields of a job record.
func (s *SQLiteStore) UpdateJob(ctx context.Context, job *models.AnalysisJob) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, total = ?, processed = ?, skipped = ?, failed = ?,
			current_issue = ?, score_count = ?, score_mean = ?, score_min = ?, score_max = ?,
			error = ?, started_at = ?, ended_at = ?
		WHERE id = ?`,
		string(job.Status), job.Total, job.Processed, job.Skipped, job.Failed,
		job.CurrentIssue, job.Stats.Count, job.Stats.Mean, job.Stats.Min, job.Stats.Max,
		job.Error, nullTime(job.StartedAt), nullTime(job.EndedAt), job.ID)
	if err != nil {
		return fmt.Errorf("update job %s: %w", job.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update job %s: not found", job.ID)
	}
	return nil
}

// GetJob returns one job by ID, or nil when absent.
func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*models.AnalysisJob, error) {
	row := s.db.QueryRowContext(ctx, selectJob+" WHERE id = ?", id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return job, err
}

// ListJobs returns jobs, newest first.
func (s *SQLiteStore) ListJobs(ctx context.Context, limit int) ([]*models.AnalysisJob, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, selectJob+" ORDER BY started_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []*models.AnalysisJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

const selectJob = `SELECT id, query, max_results, workers, dry_run, post, notify,
	status, total, processed, skipped, failed, current_issue,
	score_count, score_mean, score_min, score_max, error, started_at, ended_at FROM jobs`

func scanJob(row scanner) (*models.AnalysisJob, error) {
	var job models.AnalysisJob
	var status string
	var dryRun, post, notify int
	var started, ended sql.NullTime

	err := row.Scan(&job.ID, &job.Query, &job.MaxResults, &job.Workers,
		&dryRun, &post, &notify, &status, &job.Total, &job.Processed,
		&job.Skipped, &job.Failed, &job.CurrentIssue,
		&job.Stats.Count, &job.Stats.Mean, &job.Stats.Min, &job.Stats.Max,
		&job.Error, &started, &ended)
	if err != nil {
		return nil, err
	}

	job.Status = models.JobStatus(status)
	job.DryRun = dryRun != 0
	job.PostToTracker = post != 0
	job.Notify = notify != 0
	if started.Valid {
		job.StartedAt = started.Time
	}
	if ended.Valid {
		job.EndedAt = ended.Time
	}
	return &job, nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
