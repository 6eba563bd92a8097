package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/dannyviti/gh-pr-analyzer/internal/domain"
	apperrors "github.com/dannyviti/gh-pr-analyzer/internal/errors"
	"github.com/dannyviti/gh-pr-analyzer/internal/storage"
)

// sqliteStorage implements the Storage interface for SQLite
type sqliteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (storage.Storage, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	s := &sqliteStorage{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		return nil, err
	}

	return s, nil
}

// Migrate runs database migrations
func (s *sqliteStorage) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS analysis_runs (
		id TEXT PRIMARY KEY,
		owner TEXT NOT NULL,
		repo TEXT NOT NULL,
		mode TEXT NOT NULL,
		months INTEGER NOT NULL,
		started_at TIMESTAMP NOT NULL,
		completed_at TIMESTAMP NOT NULL,
		total_prs INTEGER NOT NULL,
		complete INTEGER NOT NULL,
		partial INTEGER NOT NULL,
		failed INTEGER NOT NULL,
		output_path TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_runs_owner_repo ON analysis_runs(owner, repo);
	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON analysis_runs(started_at);

	CREATE TABLE IF NOT EXISTS pr_results (
		run_id TEXT NOT NULL,
		pr_number INTEGER NOT NULL,
		title TEXT NOT NULL,
		state TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		merged_at TIMESTAMP,
		repository TEXT NOT NULL,
		creator_id TEXT NOT NULL,
		creator_login TEXT NOT NULL,
		time_to_first_review_hours REAL,
		time_to_merge_hours REAL,
		commit_lead_time_hours REAL,
		has_reviews INTEGER NOT NULL,
		review_count INTEGER NOT NULL,
		comment_count INTEGER NOT NULL,
		commit_count INTEGER NOT NULL,
		is_merged INTEGER NOT NULL,
		fetch_status TEXT NOT NULL,
		missing_parts TEXT NOT NULL DEFAULT '[]',
		PRIMARY KEY (run_id, pr_number),
		FOREIGN KEY (run_id) REFERENCES analysis_runs(id)
	);

	CREATE INDEX IF NOT EXISTS idx_pr_results_run ON pr_results(run_id);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// SaveRun saves an analysis run record
func (s *sqliteStorage) SaveRun(ctx context.Context, run *domain.AnalysisRun) error {
	query := `
		INSERT OR REPLACE INTO analysis_runs
			(id, owner, repo, mode, months, started_at, completed_at, total_prs, complete, partial, failed, output_path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		run.ID,
		run.Owner,
		run.Repo,
		run.Mode,
		run.Months,
		run.StartedAt,
		run.CompletedAt,
		run.TotalPRs,
		run.Complete,
		run.Partial,
		run.Failed,
		run.OutputPath,
	)
	return err
}

// GetRun retrieves a run by its id
func (s *sqliteStorage) GetRun(ctx context.Context, id string) (*domain.AnalysisRun, error) {
	query := `
		SELECT id, owner, repo, mode, months, started_at, completed_at, total_prs, complete, partial, failed, output_path
		FROM analysis_runs WHERE id = ?
	`
	run := &domain.AnalysisRun{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&run.ID, &run.Owner, &run.Repo, &run.Mode, &run.Months,
		&run.StartedAt, &run.CompletedAt, &run.TotalPRs,
		&run.Complete, &run.Partial, &run.Failed, &run.OutputPath,
	)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError("analysis run " + id)
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns retrieves runs, newest first, optionally filtered by repository
func (s *sqliteStorage) ListRuns(ctx context.Context, owner, repo string, limit int) ([]*domain.AnalysisRun, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, owner, repo, mode, months, started_at, completed_at, total_prs, complete, partial, failed, output_path
		FROM analysis_runs
	`
	args := []interface{}{}
	if owner != "" && repo != "" {
		query += ` WHERE owner = ? AND repo = ?`
		args = append(args, owner, repo)
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*domain.AnalysisRun
	for rows.Next() {
		run := &domain.AnalysisRun{}
		if err := rows.Scan(
			&run.ID, &run.Owner, &run.Repo, &run.Mode, &run.Months,
			&run.StartedAt, &run.CompletedAt, &run.TotalPRs,
			&run.Complete, &run.Partial, &run.Failed, &run.OutputPath,
		); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// SavePRResults saves the per-PR detail rows for a run
func (s *sqliteStorage) SavePRResults(ctx context.Context, runID string, details []domain.PRDetail) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT OR REPLACE INTO pr_results
			(run_id, pr_number, title, state, created_at, merged_at, repository,
			 creator_id, creator_login,
			 time_to_first_review_hours, time_to_merge_hours, commit_lead_time_hours,
			 has_reviews, review_count, comment_count, commit_count, is_merged,
			 fetch_status, missing_parts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, d := range details {
		missing, err := json.Marshal(d.MissingParts)
		if err != nil {
			return err
		}
		_, err = stmt.ExecContext(ctx,
			runID,
			d.Number,
			d.Title,
			d.State,
			d.CreatedAt,
			nullableTime(d.MergedAt),
			d.Repository,
			d.CreatorID,
			d.CreatorLogin,
			nullableFloat(d.TimeToFirstReviewHours),
			nullableFloat(d.TimeToMergeHours),
			nullableFloat(d.CommitLeadTimeHours),
			d.HasReviews,
			d.ReviewCount,
			d.CommentCount,
			d.CommitCount,
			d.Merged,
			string(d.FetchStatus),
			string(missing),
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetPRResults retrieves the per-PR detail rows for a run, ordered by number
func (s *sqliteStorage) GetPRResults(ctx context.Context, runID string) ([]domain.PRDetail, error) {
	query := `
		SELECT pr_number, title, state, created_at, merged_at, repository,
		       creator_id, creator_login,
		       time_to_first_review_hours, time_to_merge_hours, commit_lead_time_hours,
		       has_reviews, review_count, comment_count, commit_count, is_merged,
		       fetch_status, missing_parts
		FROM pr_results WHERE run_id = ? ORDER BY pr_number
	`
	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var details []domain.PRDetail
	for rows.Next() {
		var (
			d        domain.PRDetail
			mergedAt sql.NullTime
			ttfr     sql.NullFloat64
			ttm      sql.NullFloat64
			lead     sql.NullFloat64
			status   string
			missing  string
		)
		if err := rows.Scan(
			&d.Number, &d.Title, &d.State, &d.CreatedAt, &mergedAt, &d.Repository,
			&d.CreatorID, &d.CreatorLogin,
			&ttfr, &ttm, &lead,
			&d.HasReviews, &d.ReviewCount, &d.CommentCount, &d.CommitCount, &d.Merged,
			&status, &missing,
		); err != nil {
			return nil, err
		}
		if mergedAt.Valid {
			t := mergedAt.Time
			d.MergedAt = &t
		}
		d.TimeToFirstReviewHours = floatPtr(ttfr)
		d.TimeToMergeHours = floatPtr(ttm)
		d.CommitLeadTimeHours = floatPtr(lead)
		d.FetchStatus = domain.FetchStatus(status)
		if err := json.Unmarshal([]byte(missing), &d.MissingParts); err != nil {
			d.MissingParts = nil
		}
		details = append(details, d)
	}
	return details, rows.Err()
}

// Close closes the database connection
func (s *sqliteStorage) Close() error {
	return s.db.Close()
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

func nullableFloat(f *float64) interface{} {
	if f == nil {
		return nil
	}
	return *f
}

func floatPtr(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}
