package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"cytbootstrap/internal/domain"
)

// errProtected is returned when a removal would touch credential storage
var errProtected = errors.New("refusing to remove credential storage")

// unitWriter reconciles a stage's units and accumulates what happened
type unitWriter struct {
	rc             *RunContext
	changed        map[string]bool
	systemdChanged bool
	counts         map[domain.WriteOutcome]int
	warnings       []string
}

func newUnitWriter(rc *RunContext) *unitWriter {
	return &unitWriter{
		rc:      rc,
		changed: make(map[string]bool),
		counts:  make(map[domain.WriteOutcome]int),
	}
}

func (w *unitWriter) write(ctx context.Context, u domain.ServiceUnit) error {
	res, err := w.rc.Writer.WriteUnit(ctx, u)
	if err != nil {
		return fmt.Errorf("write %s: %w", u.ID, err)
	}

	w.counts[res.Outcome]++
	w.changed[u.ID] = res.Outcome.Changed()
	if res.Outcome.Changed() && u.IsSystemdUnit() {
		w.systemdChanged = true
	}
	if res.Outcome == domain.WriteReplacedEdited {
		w.warn("%s was changed outside cyt-bootstrap; previous content kept at %s", u.Path, res.Backup)
	}

	w.rc.Logger.Debug("artifact", "id", u.ID, "path", u.Path, "outcome", res.Outcome, "digest", res.Digest, "sensitive", u.Sensitive)
	return nil
}

// writeWithParent creates the unit's directory first. Directories created
// inside the invoking user's home are handed to that user.
func (w *unitWriter) writeWithParent(ctx context.Context, u domain.ServiceUnit) error {
	if err := w.rc.ensureParent(u.Path); err != nil {
		return err
	}
	return w.write(ctx, u)
}

func (w *unitWriter) warn(format string, args ...any) {
	w.warnings = append(w.warnings, fmt.Sprintf(format, args...))
}

// result summarizes the writes, downgrading to a warning when any were
// raised
func (w *unitWriter) result(stage, format string, args ...any) domain.StageResult {
	msg := fmt.Sprintf(format, args...)
	if n := len(w.counts); n > 0 {
		var parts []string
		for _, o := range []domain.WriteOutcome{domain.WriteCreated, domain.WriteUpdated, domain.WriteReplacedEdited, domain.WriteUnchanged} {
			if c := w.counts[o]; c > 0 {
				parts = append(parts, fmt.Sprintf("%d %s", c, o))
			}
		}
		msg += " (" + strings.Join(parts, ", ") + ")"
	}
	if len(w.warnings) > 0 {
		return domain.Warned(stage, "%s; %s", msg, strings.Join(w.warnings, "; "))
	}
	return domain.OK(stage, "%s", msg)
}

// ensureParent creates path's parent directory. Components created under
// the invoking user's home are chowned to the owner.
func (rc *RunContext) ensureParent(path string) error {
	dir := filepath.Dir(path)

	var missing []string
	for d := dir; ; d = filepath.Dir(d) {
		if _, err := os.Stat(d); err == nil {
			break
		}
		missing = append(missing, d)
		if parent := filepath.Dir(d); parent == d {
			break
		}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	if rc.Config.Home == "" {
		return nil
	}
	home := filepath.Clean(rc.Config.Home) + string(filepath.Separator)
	for _, d := range missing {
		if strings.HasPrefix(d+string(filepath.Separator), home) {
			if err := rc.Owner.Apply(d); err != nil {
				return err
			}
		}
	}
	return nil
}

// protected reports whether path lies inside the credential directory
func (rc *RunContext) protected(path string) bool {
	creds := filepath.Clean(rc.Config.Layout.CredentialDir)
	p := filepath.Clean(path)
	return p == creds || strings.HasPrefix(p, creds+string(filepath.Separator))
}

// removeArtifact deletes a generated file or symlink and forgets its
// digest. A missing file is not an error; it reports whether anything was
// removed.
func removeArtifact(ctx context.Context, rc *RunContext, path string) (bool, error) {
	if rc.protected(path) {
		return false, fmt.Errorf("%w: %s", errProtected, path)
	}

	err := os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("remove %s: %w", path, err)
	}

	if rc.Ledger != nil {
		if err := rc.Ledger.ForgetDigest(ctx, path); err != nil {
			rc.Logger.Warn("could not forget artifact digest", "path", path, "error", err)
		}
	}
	rc.Logger.Debug("removed", "path", path)
	return true, nil
}
