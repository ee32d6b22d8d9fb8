// Package config provides configuration for cyt-bootstrap.
//
// Configuration has two layers:
//   - command-line flags, parsed once by ParseFlags
//   - an optional YAML settings file holding endpoints, install locations,
//     and timing knobs
//
// Both are folded into a single ProvisioningConfig value in main and passed
// explicitly to every stage. Nothing in this module reads configuration from
// package-level state.
//
// Settings file locations (priority order):
//  1. --config flag
//  2. $CYT_BOOTSTRAP_CONFIG
//  3. ./cyt-bootstrap.yaml
//  4. ~/.config/cyt-bootstrap/config.yaml
//  5. /etc/cyt-bootstrap/config.yaml
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Load finds and loads the settings file, or returns defaults if none found
func Load() (Settings, string, error) {
	path := FindConfigPath()

	if path == "" {
		return DefaultSettings(), "", nil
	}

	return LoadFromPath(path)
}

// LoadFromPath loads settings from a specific path
func LoadFromPath(path string) (Settings, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, path, fmt.Errorf("read config: %w", err)
	}

	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, path, fmt.Errorf("parse config: %w", err)
	}

	s.applyDefaults()

	return s, path, nil
}

// DefaultSettings returns the defaults for a stock Kismet install
func DefaultSettings() Settings {
	var s Settings
	s.applyDefaults()
	return s
}

// applyDefaults fills in missing values with defaults
func (s *Settings) applyDefaults() {
	d := &s.Daemon
	if d.Package == "" {
		d.Package = "kismet"
	}
	if d.Binary == "" {
		d.Binary = "kismet"
	}
	if d.Service == "" {
		d.Service = "kismet"
	}
	if d.Group == "" {
		d.Group = "kismet"
	}
	if d.Port == 0 {
		d.Port = 2501
	}
	if d.BaseURL == "" {
		d.BaseURL = fmt.Sprintf("http://localhost:%d", d.Port)
	}
	if d.StatusPath == "" {
		d.StatusPath = "/system/status.json"
	}
	if d.LoginPath == "" {
		d.LoginPath = "/session/check_login"
	}
	if d.SiteConfigPath == "" {
		d.SiteConfigPath = "/etc/kismet/kismet_site.conf"
	}
	if d.RequestTimeout == 0 {
		d.RequestTimeout = Duration(5 * time.Second)
	}

	if s.RemoteAPI.ProfileURL == "" {
		s.RemoteAPI.ProfileURL = "https://api.wigle.net/api/v2/profile/user"
	}
	if s.RemoteAPI.Timeout == 0 {
		s.RemoteAPI.Timeout = Duration(15 * time.Second)
	}

	if s.Readiness.Attempts <= 0 {
		s.Readiness.Attempts = 90
	}
	if s.Readiness.Interval <= 0 {
		s.Readiness.Interval = Duration(time.Second)
	}

	if s.Timer.BootDelay <= 0 {
		s.Timer.BootDelay = Duration(2 * time.Minute)
	}
	if s.Timer.Interval <= 0 {
		s.Timer.Interval = Duration(5 * time.Minute)
	}

	in := &s.Install
	if in.SystemdDir == "" {
		in.SystemdDir = "/etc/systemd/system"
	}
	if in.NetworkManagerDir == "" {
		in.NetworkManagerDir = "/etc/NetworkManager/conf.d"
	}
	if in.ApplicationsDir == "" {
		in.ApplicationsDir = "~/.local/share/applications"
	}
	if in.AutostartDir == "" {
		in.AutostartDir = "~/.config/autostart"
	}
	if in.ShellSnippetPath == "" {
		in.ShellSnippetPath = "~/.bashrc.d/cyt-venv.sh"
	}
	if in.Python == "" {
		in.Python = "python3"
	}
	if in.Requirements == "" {
		in.Requirements = "requirements.txt"
	}

	if s.Desktop.Name == "" {
		s.Desktop.Name = "Chasing Your Tail"
	}
	if s.Desktop.Icon == "" {
		s.Desktop.Icon = "network-wireless"
	}
}

// StatusURL returns the daemon's status endpoint
func (d DaemonSettings) StatusURL() string {
	return d.BaseURL + d.StatusPath
}

// LoginURL returns the daemon's session login endpoint
func (d DaemonSettings) LoginURL() string {
	return d.BaseURL + d.LoginPath
}

// IndexURL returns the daemon's web UI index, used for readiness polling
func (d DaemonSettings) IndexURL() string {
	return d.BaseURL + "/"
}
