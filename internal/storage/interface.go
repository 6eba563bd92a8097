package storage

import (
	"context"

	"github.com/dannyviti/gh-pr-analyzer/internal/domain"
)

// Storage is the abstract interface for run history persistence
type Storage interface {
	// Run operations
	SaveRun(ctx context.Context, run *domain.AnalysisRun) error
	GetRun(ctx context.Context, id string) (*domain.AnalysisRun, error)
	ListRuns(ctx context.Context, owner, repo string, limit int) ([]*domain.AnalysisRun, error)

	// Per-PR result operations
	SavePRResults(ctx context.Context, runID string, details []domain.PRDetail) error
	GetPRResults(ctx context.Context, runID string) ([]domain.PRDetail, error)

	// Migration
	Migrate(ctx context.Context) error

	// Connection management
	Close() error
}
