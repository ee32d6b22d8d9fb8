// Package artifact writes generated files idempotently.
//
// A write compares the BLAKE2b-256 digest of the desired content with what
// is on disk and only touches the file on mismatch. When a Manifest is
// attached, the digest of every write is recorded; a later run that finds
// content matching neither the desired digest nor the recorded one knows
// the file was edited by hand (or predates us), keeps that copy as
// <path>.bak, and reports WriteReplacedEdited so the caller can warn.
package artifact

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/crypto/blake2b"

	"cytbootstrap/internal/domain"
)

// BackupSuffix is appended to preserve hand-edited content
const BackupSuffix = ".bak"

// Manifest remembers the digest of the last content written to each path
type Manifest interface {
	LastDigest(ctx context.Context, path string) (string, error)
	RecordDigest(ctx context.Context, path, digest string) error
}

// ErrNotRecorded is returned by a Manifest that has no entry for a path
var ErrNotRecorded = errors.New("no digest recorded")

// Digest returns the hex BLAKE2b-256 digest of data
func Digest(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Result describes one reconciled file
type Result struct {
	Path    string
	Outcome domain.WriteOutcome
	Digest  string
	// Backup is the path of the preserved hand-edited copy, if any
	Backup string
}

// Writer reconciles files to their desired content
type Writer struct {
	manifest Manifest
}

// NewWriter creates a writer; manifest may be nil
func NewWriter(manifest Manifest) *Writer {
	return &Writer{manifest: manifest}
}

// WriteUnit reconciles a service unit to disk
func (w *Writer) WriteUnit(ctx context.Context, unit domain.ServiceUnit) (Result, error) {
	return w.WriteIfChanged(ctx, unit.Path, unit.Content, unit.Mode)
}

// WriteIfChanged writes content to path only when the on-disk digest
// differs. The parent directory must already exist. Mode is enforced even
// when content is unchanged.
func (w *Writer) WriteIfChanged(ctx context.Context, path string, content []byte, mode os.FileMode) (Result, error) {
	desired := Digest(content)
	res := Result{Path: path, Digest: desired}

	existing, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		res.Outcome = domain.WriteCreated
	case err != nil:
		return res, fmt.Errorf("read %s: %w", path, err)
	default:
		current := Digest(existing)
		if current == desired {
			res.Outcome = domain.WriteUnchanged
			if err := ensureMode(path, mode); err != nil {
				return res, err
			}
			return res, w.record(ctx, path, desired)
		}

		res.Outcome = domain.WriteUpdated
		if w.handEdited(ctx, path, current) {
			backup := path + BackupSuffix
			if err := writeAtomic(backup, existing, mode); err != nil {
				return res, fmt.Errorf("preserve edited %s: %w", path, err)
			}
			res.Outcome = domain.WriteReplacedEdited
			res.Backup = backup
		}
	}

	if err := writeAtomic(path, content, mode); err != nil {
		return res, err
	}
	return res, w.record(ctx, path, desired)
}

// handEdited reports whether the on-disk digest differs from what we last
// wrote. A file the manifest has never seen was not written by us, so its
// content is preserved too.
func (w *Writer) handEdited(ctx context.Context, path, current string) bool {
	if w.manifest == nil {
		return false
	}
	last, err := w.manifest.LastDigest(ctx, path)
	if errors.Is(err, ErrNotRecorded) {
		return true
	}
	if err != nil {
		return false
	}
	return last != current
}

func (w *Writer) record(ctx context.Context, path, digest string) error {
	if w.manifest == nil {
		return nil
	}
	if err := w.manifest.RecordDigest(ctx, path, digest); err != nil {
		return fmt.Errorf("record digest for %s: %w", path, err)
	}
	return nil
}

// writeAtomic writes to a temp file in the same directory and renames it
// into place, so readers never observe a partial file
func writeAtomic(path string, content []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp for %s: %w", path, err)
	}
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename into %s: %w", path, err)
	}
	return nil
}

func ensureMode(path string, mode os.FileMode) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if info.Mode().Perm() == mode.Perm() {
		return nil
	}
	if err := os.Chmod(path, mode); err != nil {
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	return nil
}
