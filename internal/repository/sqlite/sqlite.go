package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cytbootstrap/internal/artifact"
	"cytbootstrap/internal/domain"

	_ "modernc.org/sqlite"
)

// Repository implements repository.Ledger using SQLite
type Repository struct {
	db *sql.DB
}

// New opens (creating if needed) the ledger database at dbPath
func New(dbPath string) (*Repository, error) {
	dsn := dbPath
	if dbPath != ":memory:" {
		dsn = "file:" + dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer, and an in-memory database only exists per connection
	db.SetMaxOpenConns(1)

	repo := &Repository{db: db}
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return repo, nil
}

func (r *Repository) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		mode TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		exit_code INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS stage_results (
		run_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		stage TEXT NOT NULL,
		outcome TEXT NOT NULL,
		message TEXT,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (run_id, seq),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS artifact_manifest (
		path TEXT PRIMARY KEY,
		digest TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	`

	_, err := r.db.Exec(schema)
	return err
}

// BeginRun inserts the run header
func (r *Repository) BeginRun(ctx context.Context, report *domain.RunReport) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO runs (id, mode, started_at) VALUES (?, ?, ?)
	`, report.ID, string(report.Mode), timeToNull(report.StartedAt))
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// RecordStage stores one stage result at position seq
func (r *Repository) RecordStage(ctx context.Context, runID string, seq int, result domain.StageResult) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO stage_results (run_id, seq, stage, outcome, message, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO UPDATE SET
			stage = excluded.stage,
			outcome = excluded.outcome,
			message = excluded.message,
			duration_ms = excluded.duration_ms
	`, runID, seq, result.Stage, string(result.Outcome), result.Message, result.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("failed to record stage %s: %w", result.Stage, err)
	}
	return nil
}

// FinishRun stores the end timestamp and exit code
func (r *Repository) FinishRun(ctx context.Context, report *domain.RunReport) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE runs SET finished_at = ?, exit_code = ? WHERE id = ?
	`, timeToNull(report.FinishedAt), report.ExitCode, report.ID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run not found: %s", report.ID)
	}
	return nil
}

// RecentRuns returns the newest runs first, each with its stage results
func (r *Repository) RecentRuns(ctx context.Context, limit int) ([]domain.RunReport, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, mode, started_at, finished_at, exit_code
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}

	var reports []domain.RunReport
	for rows.Next() {
		var (
			rep               domain.RunReport
			mode              string
			started, finished sql.NullString
		)
		if err := rows.Scan(&rep.ID, &mode, &started, &finished, &rep.ExitCode); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		rep.Mode = domain.RunMode(mode)
		rep.StartedAt = nullToTime(started)
		rep.FinishedAt = nullToTime(finished)
		reports = append(reports, rep)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}

	for i := range reports {
		results, err := r.stageResults(ctx, reports[i].ID)
		if err != nil {
			return nil, err
		}
		reports[i].Results = results
	}

	return reports, nil
}

func (r *Repository) stageResults(ctx context.Context, runID string) ([]domain.StageResult, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT stage, outcome, message, duration_ms
		FROM stage_results
		WHERE run_id = ?
		ORDER BY seq
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query stage results: %w", err)
	}
	defer rows.Close()

	var results []domain.StageResult
	for rows.Next() {
		var (
			res      domain.StageResult
			outcome  string
			message  sql.NullString
			duration int64
		)
		if err := rows.Scan(&res.Stage, &outcome, &message, &duration); err != nil {
			return nil, fmt.Errorf("failed to scan stage result: %w", err)
		}
		res.Outcome = domain.StageOutcome(outcome)
		res.Message = nullToString(message)
		res.Duration = time.Duration(duration) * time.Millisecond
		results = append(results, res)
	}

	return results, rows.Err()
}

// LastDigest returns the digest recorded for path, or an error wrapping
// artifact.ErrNotRecorded
func (r *Repository) LastDigest(ctx context.Context, path string) (string, error) {
	var digest string
	err := r.db.QueryRowContext(ctx, `
		SELECT digest FROM artifact_manifest WHERE path = ?
	`, path).Scan(&digest)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%s: %w", path, artifact.ErrNotRecorded)
	}
	if err != nil {
		return "", fmt.Errorf("failed to query manifest: %w", err)
	}
	return digest, nil
}

// RecordDigest upserts the digest for path
func (r *Repository) RecordDigest(ctx context.Context, path, digest string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO artifact_manifest (path, digest, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			digest = excluded.digest,
			updated_at = excluded.updated_at
	`, path, digest, timeToNull(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to record digest: %w", err)
	}
	return nil
}

// ForgetDigest drops the manifest entry for a removed file
func (r *Repository) ForgetDigest(ctx context.Context, path string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM artifact_manifest WHERE path = ?`, path); err != nil {
		return fmt.Errorf("failed to forget digest: %w", err)
	}
	return nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}
