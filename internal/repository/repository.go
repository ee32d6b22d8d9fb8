package repository

import (
	"context"

	"cytbootstrap/internal/domain"
)

// Ledger defines the persistence interface for run history and the
// artifact manifest
type Ledger interface {
	// Run history
	BeginRun(ctx context.Context, report *domain.RunReport) error
	RecordStage(ctx context.Context, runID string, seq int, result domain.StageResult) error
	FinishRun(ctx context.Context, report *domain.RunReport) error
	RecentRuns(ctx context.Context, limit int) ([]domain.RunReport, error)

	// Artifact manifest
	LastDigest(ctx context.Context, path string) (string, error)
	RecordDigest(ctx context.Context, path, digest string) error
	ForgetDigest(ctx context.Context, path string) error

	// Close releases resources
	Close() error
}
