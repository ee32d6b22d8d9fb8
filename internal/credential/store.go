// Package credential runs the two credential flows: the WiGLE API token
// (soft: failures warn) and the capture daemon identity (fatal: the daemon
// cannot be driven without it).
//
// Everything lands in the owner-only credential directory. The directory
// is created with mode 0700 before anything is written into it, and every
// file inside is 0600. Nothing in this package ever deletes a credential.
package credential

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"cytbootstrap/internal/artifact"
	"cytbootstrap/internal/domain"
)

// Store reads and writes owner-only files in the credential directory
type Store struct {
	dir    string
	owner  *artifact.Owner
	writer *artifact.Writer
}

// NewStore creates a store rooted at dir; owner may be nil
func NewStore(dir string, owner *artifact.Owner) *Store {
	return &Store{dir: dir, owner: owner, writer: artifact.NewWriter(nil)}
}

// Dir returns the credential directory
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the full path of a credential file
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name)
}

// Ensure creates the directory with owner-only mode
func (s *Store) Ensure() error {
	if err := artifact.EnsureOwnerOnlyDir(s.dir); err != nil {
		return err
	}
	return s.owner.Apply(s.dir)
}

// Read returns a trimmed credential value, or "" when the file is absent
func (s *Store) Read(name string) (string, error) {
	data, err := os.ReadFile(s.Path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read credential %s: %w", name, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Write stores content with mode 0600, creating the directory first
func (s *Store) Write(ctx context.Context, name string, content []byte) error {
	if err := s.Ensure(); err != nil {
		return err
	}
	path := s.Path(name)
	if _, err := s.writer.WriteIfChanged(ctx, path, content, domain.OwnerOnlyFileMode); err != nil {
		return fmt.Errorf("write credential %s: %w", name, err)
	}
	return s.owner.Apply(path)
}
