package config

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	// EnvConfigPath is the environment variable for explicit config path
	EnvConfigPath = "CYT_BOOTSTRAP_CONFIG"
	// ConfigFileName is the default config file name
	ConfigFileName = "cyt-bootstrap.yaml"
	// ConfigDirName is the config directory name under XDG
	ConfigDirName = "cyt-bootstrap"
)

// FindConfigPath searches for a settings file in priority order:
// 1. $CYT_BOOTSTRAP_CONFIG (explicit path)
// 2. ./cyt-bootstrap.yaml (working directory)
// 3. $XDG_CONFIG_HOME/cyt-bootstrap/config.yaml
// 4. ~/.config/cyt-bootstrap/config.yaml
// 5. /etc/cyt-bootstrap/config.yaml
//
// Returns empty string if no settings file found
func FindConfigPath() string {
	if path := os.Getenv(EnvConfigPath); path != "" {
		if fileExists(path) {
			return path
		}
	}

	if fileExists(ConfigFileName) {
		if abs, err := filepath.Abs(ConfigFileName); err == nil {
			return abs
		}
		return ConfigFileName
	}

	if xdgHome := os.Getenv("XDG_CONFIG_HOME"); xdgHome != "" {
		path := filepath.Join(xdgHome, ConfigDirName, "config.yaml")
		if fileExists(path) {
			return path
		}
	}

	if home := os.Getenv("HOME"); home != "" {
		path := filepath.Join(home, ".config", ConfigDirName, "config.yaml")
		if fileExists(path) {
			return path
		}
	}

	systemPath := filepath.Join("/etc", ConfigDirName, "config.yaml")
	if fileExists(systemPath) {
		return systemPath
	}

	return ""
}

// ExpandHome replaces a leading "~/" with home
func ExpandHome(path, home string) string {
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}

// Layout is the generated filesystem layout under the project root
type Layout struct {
	Root          string
	LogDir        string
	CredentialDir string
	ScriptsDir    string
	VenvDir       string

	EnvHelper  string
	Launcher   string
	LinkScript string
	LatestLink string
	LedgerPath string
	ConfigLink string

	WigleToken    string
	WigleReplay   string
	KismetKey     string
	KismetAudit   string
	KismetSession string
}

// NewLayout derives every generated path from the project root
func NewLayout(root string) Layout {
	logs := filepath.Join(root, "logs")
	creds := filepath.Join(root, "secure_credentials")
	scripts := filepath.Join(root, "scripts")

	return Layout{
		Root:          root,
		LogDir:        logs,
		CredentialDir: creds,
		ScriptsDir:    scripts,
		VenvDir:       filepath.Join(root, ".venv"),

		EnvHelper:  filepath.Join(root, "cyt_env.sh"),
		Launcher:   filepath.Join(root, "start_gui.sh"),
		LinkScript: filepath.Join(scripts, "link_latest_kismet.sh"),
		LatestLink: filepath.Join(logs, "latest.kismet"),
		LedgerPath: filepath.Join(logs, "provision_history.db"),
		ConfigLink: filepath.Join(root, "config.json"),

		WigleToken:    filepath.Join(creds, "wigle_api_token"),
		WigleReplay:   filepath.Join(creds, "wigle_replay.sh"),
		KismetKey:     filepath.Join(creds, "kismet_api_key"),
		KismetAudit:   filepath.Join(creds, "kismet_auth_audit.json"),
		KismetSession: filepath.Join(creds, "kismet_session_cookie"),
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
