package adapter

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoPackageManager is returned when no supported package manager exists
var ErrNoPackageManager = errors.New("no supported package manager found")

// PackageManager is the opaque "install package X" capability
type PackageManager interface {
	Name() string
	// Available reports whether the manager's binary is on PATH
	Available() bool
	// Update refreshes and upgrades the system
	Update(ctx context.Context) error
	// Install installs packages non-interactively
	Install(ctx context.Context, packages ...string) error
}

type commandManager struct {
	name       string
	binary     string
	updateArgs [][]string
	installCmd []string
	runner     Runner
}

func (m *commandManager) Name() string { return m.name }

func (m *commandManager) Available() bool {
	_, err := m.runner.LookPath(m.binary)
	return err == nil
}

func (m *commandManager) Update(ctx context.Context) error {
	for _, args := range m.updateArgs {
		if err := m.runner.Run(ctx, m.binary, args...); err != nil {
			return fmt.Errorf("%s update: %w", m.name, err)
		}
	}
	return nil
}

func (m *commandManager) Install(ctx context.Context, packages ...string) error {
	if len(packages) == 0 {
		return nil
	}
	args := append(append([]string{}, m.installCmd...), packages...)
	if err := m.runner.Run(ctx, m.binary, args...); err != nil {
		return fmt.Errorf("%s install %v: %w", m.name, packages, err)
	}
	return nil
}

// NewApt creates the Debian-family package manager
func NewApt(runner Runner) PackageManager {
	return &commandManager{
		name:   "apt",
		binary: "apt-get",
		updateArgs: [][]string{
			{"update"},
			{"-y", "upgrade"},
		},
		installCmd: []string{"install", "-y"},
		runner:     runner,
	}
}

// NewDnf creates the Fedora-family package manager
func NewDnf(runner Runner) PackageManager {
	return &commandManager{
		name:       "dnf",
		binary:     "dnf",
		updateArgs: [][]string{{"-y", "upgrade", "--refresh"}},
		installCmd: []string{"install", "-y"},
		runner:     runner,
	}
}

// NewPacman creates the Arch-family package manager
func NewPacman(runner Runner) PackageManager {
	return &commandManager{
		name:       "pacman",
		binary:     "pacman",
		updateArgs: [][]string{{"-Syu", "--noconfirm"}},
		installCmd: []string{"-S", "--needed", "--noconfirm"},
		runner:     runner,
	}
}

// SelectPackageManager returns the manager for an OS family ("debian",
// "fedora", "arch"), falling back to whichever manager is available when
// the family is unknown
func SelectPackageManager(family string, runner Runner) (PackageManager, error) {
	byFamily := map[string]func(Runner) PackageManager{
		"debian": NewApt,
		"fedora": NewDnf,
		"arch":   NewPacman,
	}

	if ctor, ok := byFamily[family]; ok {
		pm := ctor(runner)
		if pm.Available() {
			return pm, nil
		}
		return nil, fmt.Errorf("%w: %s family without %s", ErrNoPackageManager, family, pm.Name())
	}

	for _, ctor := range []func(Runner) PackageManager{NewApt, NewDnf, NewPacman} {
		if pm := ctor(runner); pm.Available() {
			return pm, nil
		}
	}
	return nil, ErrNoPackageManager
}
