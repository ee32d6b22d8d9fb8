package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"cytbootstrap/internal/artifact"
	"cytbootstrap/internal/domain"
	"cytbootstrap/internal/repository"
)

var _ repository.Ledger = (*Repository)(nil)
var _ artifact.Manifest = (*Repository)(nil)

// newTestRepo creates an in-memory SQLite repository for testing
func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test repository: %v", err)
	}

	if _, err := repo.db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("failed to enable foreign keys: %v", err)
	}

	t.Cleanup(func() {
		repo.Close()
	})
	return repo
}

// assertNoError fails the test if err is not nil
func assertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// assertEqual fails the test if expected != actual
func assertEqual(t *testing.T, expected, actual interface{}) {
	t.Helper()
	if !reflect.DeepEqual(expected, actual) {
		t.Fatalf("expected %v, got %v", expected, actual)
	}
}

func TestRunLifecycle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	report := &domain.RunReport{ID: "run-1", Mode: domain.RunProvision, StartedAt: started}
	assertNoError(t, repo.BeginRun(ctx, report))

	results := []domain.StageResult{
		{Stage: "environment", Outcome: domain.OutcomeOK, Message: "debian via apt-get", Duration: 120 * time.Millisecond},
		{Stage: "readiness", Outcome: domain.OutcomeWarned, Message: "not ready after 90 attempts"},
	}
	for i, res := range results {
		assertNoError(t, repo.RecordStage(ctx, report.ID, i, res))
	}

	report.FinishedAt = started.Add(time.Minute)
	report.ExitCode = 0
	assertNoError(t, repo.FinishRun(ctx, report))

	runs, err := repo.RecentRuns(ctx, 10)
	assertNoError(t, err)
	assertEqual(t, 1, len(runs))

	got := runs[0]
	assertEqual(t, "run-1", got.ID)
	assertEqual(t, domain.RunProvision, got.Mode)
	assertEqual(t, true, got.StartedAt.Equal(started))
	assertEqual(t, true, got.FinishedAt.Equal(report.FinishedAt))
	assertEqual(t, results, got.Results)
}

func TestRecentRunsOrdering(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "mid", "new"} {
		r := &domain.RunReport{ID: id, Mode: domain.RunReset, StartedAt: base.Add(time.Duration(i) * time.Hour)}
		assertNoError(t, repo.BeginRun(ctx, r))
	}

	runs, err := repo.RecentRuns(ctx, 2)
	assertNoError(t, err)
	assertEqual(t, 2, len(runs))
	assertEqual(t, "new", runs[0].ID)
	assertEqual(t, "mid", runs[1].ID)
}

func TestFinishUnknownRun(t *testing.T) {
	repo := newTestRepo(t)

	err := repo.FinishRun(context.Background(), &domain.RunReport{ID: "missing"})
	if err == nil {
		t.Fatal("expected error finishing unknown run")
	}
}

func TestManifest(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	path := "/etc/systemd/system/cyt-kismet-link.timer"

	_, err := repo.LastDigest(ctx, path)
	if !errors.Is(err, artifact.ErrNotRecorded) {
		t.Fatalf("LastDigest() error = %v, want ErrNotRecorded", err)
	}

	assertNoError(t, repo.RecordDigest(ctx, path, "aaa"))
	assertNoError(t, repo.RecordDigest(ctx, path, "bbb"))

	digest, err := repo.LastDigest(ctx, path)
	assertNoError(t, err)
	assertEqual(t, "bbb", digest)

	assertNoError(t, repo.ForgetDigest(ctx, path))
	if _, err := repo.LastDigest(ctx, path); !errors.Is(err, artifact.ErrNotRecorded) {
		t.Fatalf("expected ErrNotRecorded after ForgetDigest, got %v", err)
	}
}

func TestFileBackedLedgerPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "provision_history.db")
	ctx := context.Background()

	repo, err := New(path)
	assertNoError(t, err)
	assertNoError(t, repo.RecordDigest(ctx, "/x", "digest"))
	assertNoError(t, repo.Close())

	reopened, err := New(path)
	assertNoError(t, err)
	defer reopened.Close()

	digest, err := reopened.LastDigest(ctx, "/x")
	assertNoError(t, err)
	assertEqual(t, "digest", digest)
}

func TestManifestDrivesHandEditDetection(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	w := artifact.NewWriter(repo)
	path := filepath.Join(t.TempDir(), "start_gui.sh")

	res, err := w.WriteIfChanged(ctx, path, []byte("v1"), 0o755)
	assertNoError(t, err)
	assertEqual(t, domain.WriteCreated, res.Outcome)

	res, err = w.WriteIfChanged(ctx, path, []byte("v1"), 0o755)
	assertNoError(t, err)
	assertEqual(t, domain.WriteUnchanged, res.Outcome)
}
