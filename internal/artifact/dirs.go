package artifact

import (
	"fmt"
	"os"
	"os/user"
	"strconv"
)

// SharedLogMode is setgid plus group-writable, so files created by the
// capture daemon inherit the shared group
const SharedLogMode = os.ModeSetgid | 0o775

// EnsureDir creates path with the given mode and then enforces the mode,
// since MkdirAll is subject to umask and leaves existing directories alone
func EnsureDir(path string, mode os.FileMode) error {
	if err := os.MkdirAll(path, mode.Perm()); err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := os.Chmod(path, mode); err != nil {
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	return nil
}

// EnsureOwnerOnlyDir creates a directory that denies all group/other access.
// It must run before any secret is written beneath it.
func EnsureOwnerOnlyDir(path string) error {
	return EnsureDir(path, 0o700)
}

// LookupGroup resolves a group name to its gid
func LookupGroup(name string) (int, bool) {
	g, err := user.LookupGroup(name)
	if err != nil {
		return 0, false
	}
	gid, err := strconv.Atoi(g.Gid)
	if err != nil {
		return 0, false
	}
	return gid, true
}

// ShareWithGroup hands path to the named group and applies the shared log
// mode. It reports false without error when the group does not exist.
func ShareWithGroup(path, group string) (bool, error) {
	gid, ok := LookupGroup(group)
	if !ok {
		return false, EnsureDir(path, SharedLogMode)
	}
	if err := os.Chown(path, -1, gid); err != nil {
		return false, fmt.Errorf("chgrp %s %s: %w", group, path, err)
	}
	return true, EnsureDir(path, SharedLogMode)
}

// ModeIsOwnerOnly reports whether a path's permission bits grant nothing to
// group or other
func ModeIsOwnerOnly(path string) (bool, os.FileMode, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, 0, err
	}
	perm := info.Mode().Perm()
	return perm&0o077 == 0, perm, nil
}

// Owner is the account that should own user-facing artifacts when the
// bootstrap runs under sudo. A nil Owner leaves ownership alone.
type Owner struct {
	UID int
	GID int
}

// LookupOwner resolves a username to an Owner
func LookupOwner(username string) (*Owner, error) {
	u, err := user.Lookup(username)
	if err != nil {
		return nil, fmt.Errorf("lookup user %s: %w", username, err)
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return nil, fmt.Errorf("parse uid %q: %w", u.Uid, err)
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return nil, fmt.Errorf("parse gid %q: %w", u.Gid, err)
	}
	return &Owner{UID: uid, GID: gid}, nil
}

// Apply hands path to the owner without following symlinks
func (o *Owner) Apply(path string) error {
	if o == nil {
		return nil
	}
	if err := os.Lchown(path, o.UID, o.GID); err != nil {
		return fmt.Errorf("chown %s: %w", path, err)
	}
	return nil
}
