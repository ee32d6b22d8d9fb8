package config

import (
	"time"
)

// Settings is the root of the optional YAML settings file
type Settings struct {
	Daemon    DaemonSettings    `yaml:"daemon"`
	RemoteAPI RemoteAPISettings `yaml:"remote_api"`
	Readiness ReadinessSettings `yaml:"readiness"`
	Timer     TimerSettings     `yaml:"timer"`
	Install   InstallSettings   `yaml:"install"`
	Desktop   DesktopSettings   `yaml:"desktop"`
}

// DaemonSettings describes the external capture daemon
type DaemonSettings struct {
	Package        string   `yaml:"package"`
	Binary         string   `yaml:"binary"`
	Service        string   `yaml:"service"`
	Group          string   `yaml:"group"`
	BaseURL        string   `yaml:"base_url"`
	StatusPath     string   `yaml:"status_path"`
	LoginPath      string   `yaml:"login_path"`
	Port           int      `yaml:"port"`
	SiteConfigPath string   `yaml:"site_config_path"`
	RequestTimeout Duration `yaml:"request_timeout"`
}

// RemoteAPISettings describes the geolocation lookup service
type RemoteAPISettings struct {
	ProfileURL string   `yaml:"profile_url"`
	Timeout    Duration `yaml:"timeout"`
}

// ReadinessSettings bounds the post-activation polling loop
type ReadinessSettings struct {
	Attempts int      `yaml:"attempts"`
	Interval Duration `yaml:"interval"`
}

// TimerSettings configures the recurring log-link job
type TimerSettings struct {
	BootDelay Duration `yaml:"boot_delay"`
	Interval  Duration `yaml:"interval"`
}

// InstallSettings holds system and user install locations.
// A leading "~/" is expanded against the invoking user's home directory.
type InstallSettings struct {
	SystemdDir        string `yaml:"systemd_dir"`
	NetworkManagerDir string `yaml:"network_manager_dir"`
	ApplicationsDir   string `yaml:"applications_dir"`
	AutostartDir      string `yaml:"autostart_dir"`
	ShellSnippetPath  string `yaml:"shell_snippet_path"`
	ExternalConfig    string `yaml:"external_config,omitempty"`
	Python            string `yaml:"python"`
	Requirements      string `yaml:"requirements"`
}

// DesktopSettings configures the GUI launch descriptor
type DesktopSettings struct {
	Name string `yaml:"name"`
	Icon string `yaml:"icon"`
}

// Duration wraps time.Duration for YAML unmarshaling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
