package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/lib/pq"

	"github.com/dannyviti/gh-pr-analyzer/internal/domain"
	apperrors "github.com/dannyviti/gh-pr-analyzer/internal/errors"
	"github.com/dannyviti/gh-pr-analyzer/internal/storage"
)

// postgresStorage implements the Storage interface for PostgreSQL
type postgresStorage struct {
	db *sql.DB
}

// NewPostgresStorage creates a new PostgreSQL storage instance
func NewPostgresStorage(connStr string) (storage.Storage, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, err
	}

	s := &postgresStorage{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		return nil, err
	}

	return s, nil
}

// Migrate runs database migrations
func (s *postgresStorage) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS analysis_runs (
		id UUID PRIMARY KEY,
		owner TEXT NOT NULL,
		repo TEXT NOT NULL,
		mode TEXT NOT NULL,
		months INTEGER NOT NULL,
		started_at TIMESTAMPTZ NOT NULL,
		completed_at TIMESTAMPTZ NOT NULL,
		total_prs INTEGER NOT NULL,
		complete INTEGER NOT NULL,
		partial INTEGER NOT NULL,
		failed INTEGER NOT NULL,
		output_path TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_runs_owner_repo ON analysis_runs(owner, repo);
	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON analysis_runs(started_at);

	CREATE TABLE IF NOT EXISTS pr_results (
		run_id UUID NOT NULL REFERENCES analysis_runs(id),
		pr_number INTEGER NOT NULL,
		title TEXT NOT NULL,
		state TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		merged_at TIMESTAMPTZ,
		repository TEXT NOT NULL,
		creator_id TEXT NOT NULL,
		creator_login TEXT NOT NULL,
		time_to_first_review_hours DOUBLE PRECISION,
		time_to_merge_hours DOUBLE PRECISION,
		commit_lead_time_hours DOUBLE PRECISION,
		has_reviews BOOLEAN NOT NULL,
		review_count INTEGER NOT NULL,
		comment_count INTEGER NOT NULL,
		commit_count INTEGER NOT NULL,
		is_merged BOOLEAN NOT NULL,
		fetch_status TEXT NOT NULL,
		missing_parts JSONB NOT NULL DEFAULT '[]',
		PRIMARY KEY (run_id, pr_number)
	);

	CREATE INDEX IF NOT EXISTS idx_pr_results_run ON pr_results(run_id);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// SaveRun saves an analysis run record
func (s *postgresStorage) SaveRun(ctx context.Context, run *domain.AnalysisRun) error {
	query := `
		INSERT INTO analysis_runs
			(id, owner, repo, mode, months, started_at, completed_at, total_prs, complete, partial, failed, output_path)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			completed_at = EXCLUDED.completed_at,
			total_prs = EXCLUDED.total_prs,
			complete = EXCLUDED.complete,
			partial = EXCLUDED.partial,
			failed = EXCLUDED.failed,
			output_path = EXCLUDED.output_path
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
func (s *postgresStorage) GetRun(ctx context.Context, id string) (*domain.AnalysisRun, error) {
	query := `
		SELECT id, owner, repo, mode, months, started_at, completed_at, total_prs, complete, partial, failed, output_path
		FROM analysis_runs WHERE id = $1
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
func (s *postgresStorage) ListRuns(ctx context.Context, owner, repo string, limit int) ([]*domain.AnalysisRun, error) {
	if limit <= 0 {
		limit = 50
	}

	var (
		rows *sql.Rows
		err  error
	)
	if owner != "" && repo != "" {
		query := `
			SELECT id, owner, repo, mode, months, started_at, completed_at, total_prs, complete, partial, failed, output_path
			FROM analysis_runs WHERE owner = $1 AND repo = $2
			ORDER BY started_at DESC LIMIT $3
		`
		rows, err = s.db.QueryContext(ctx, query, owner, repo, limit)
	} else {
		query := `
			SELECT id, owner, repo, mode, months, started_at, completed_at, total_prs, complete, partial, failed, output_path
			FROM analysis_runs ORDER BY started_at DESC LIMIT $1
		`
		rows, err = s.db.QueryContext(ctx, query, limit)
	}
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
func (s *postgresStorage) SavePRResults(ctx context.Context, runID string, details []domain.PRDetail) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO pr_results
			(run_id, pr_number, title, state, created_at, merged_at, repository,
			 creator_id, creator_login,
			 time_to_first_review_hours, time_to_merge_hours, commit_lead_time_hours,
			 has_reviews, review_count, comment_count, commit_count, is_merged,
			 fetch_status, missing_parts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (run_id, pr_number) DO NOTHING
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
func (s *postgresStorage) GetPRResults(ctx context.Context, runID string) ([]domain.PRDetail, error) {
	query := `
		SELECT pr_number, title, state, created_at, merged_at, repository,
		       creator_id, creator_login,
		       time_to_first_review_hours, time_to_merge_hours, commit_lead_time_hours,
		       has_reviews, review_count, comment_count, commit_count, is_merged,
		       fetch_status, missing_parts
		FROM pr_results WHERE run_id = $1 ORDER BY pr_number
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
			missing  []byte
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
		if err := json.Unmarshal(missing, &d.MissingParts); err != nil {
			d.MissingParts = nil
		}
		details = append(details, d)
	}
	return details, rows.Err()
}

// Close closes the database connection
func (s *postgresStorage) Close() error {
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
