package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"
)

// Flags holds the parsed command line
type Flags struct {
	AssumeYes  bool
	NoBrowser  bool
	SkipUpdate bool
	Reset      bool
	Quiet      bool
	Root       string
	ConfigPath string
}

// ParseFlags parses args (without the program name). It returns
// pflag.ErrHelp when --help/-h was given; usage has already been printed.
func ParseFlags(args []string, output io.Writer) (Flags, error) {
	var f Flags

	fs := pflag.NewFlagSet("cyt-bootstrap", pflag.ContinueOnError)
	fs.SetOutput(output)
	fs.BoolVarP(&f.AssumeYes, "yes", "y", false, "assume defaults and skip interactive prompts where possible")
	fs.BoolVar(&f.NoBrowser, "no-browser", false, "do not open the capture daemon web UI when done")
	fs.BoolVar(&f.SkipUpdate, "skip-update", false, "skip the system package update")
	fs.BoolVar(&f.Reset, "reset", false, "tear down generated services and runtime state, keeping logs and credentials")
	fs.BoolVar(&f.Quiet, "quiet", false, "only print warnings and errors to the console")
	fs.StringVar(&f.Root, "root", "", "project root (default: current directory)")
	fs.StringVar(&f.ConfigPath, "config", "", "YAML settings file")
	fs.Usage = func() {
		fmt.Fprintf(output, "Usage: cyt-bootstrap [flags]\n\nProvision this host for Chasing Your Tail and Kismet.\n\nFlags:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}
	if fs.NArg() > 0 {
		return Flags{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	return f, nil
}

// ProvisioningConfig is the immutable run configuration. It is built once in
// main and passed by value into every stage.
type ProvisioningConfig struct {
	AssumeYes  bool
	NoBrowser  bool
	SkipUpdate bool
	Reset      bool
	Quiet      bool

	Settings     Settings
	SettingsPath string
	Layout       Layout
	Home         string
}

// New folds flags and settings into a ProvisioningConfig, resolving the project
// root and any home-relative install paths.
func New(flags Flags, settings Settings, settingsPath, home string) (ProvisioningConfig, error) {
	root := flags.Root
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return ProvisioningConfig{}, fmt.Errorf("resolve working directory: %w", err)
		}
		root = wd
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return ProvisioningConfig{}, fmt.Errorf("resolve project root: %w", err)
	}

	in := &settings.Install
	in.ApplicationsDir = ExpandHome(in.ApplicationsDir, home)
	in.AutostartDir = ExpandHome(in.AutostartDir, home)
	in.ShellSnippetPath = ExpandHome(in.ShellSnippetPath, home)
	in.ExternalConfig = ExpandHome(in.ExternalConfig, home)

	return ProvisioningConfig{
		AssumeYes:    flags.AssumeYes,
		NoBrowser:    flags.NoBrowser,
		SkipUpdate:   flags.SkipUpdate,
		Reset:        flags.Reset,
		Quiet:        flags.Quiet,
		Settings:     settings,
		SettingsPath: settingsPath,
		Layout:       NewLayout(root),
		Home:         home,
	}, nil
}

// FromFlags resolves the settings file named by flags, falling back to the search
// path, then builds the ProvisioningConfig. An empty home falls back to the
// current user's home directory.
func FromFlags(flags Flags, home string) (ProvisioningConfig, error) {
	var (
		settings Settings
		path     string
		err      error
	)
	if flags.ConfigPath != "" {
		settings, path, err = LoadFromPath(flags.ConfigPath)
	} else {
		settings, path, err = Load()
	}
	if err != nil {
		return ProvisioningConfig{}, err
	}

	if home == "" {
		home, err = os.UserHomeDir()
		if err != nil {
			return ProvisioningConfig{}, fmt.Errorf("resolve home directory: %w", err)
		}
	}

	return New(flags, settings, path, home)
}
