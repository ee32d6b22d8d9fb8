// Package render computes the desired content of every generated artifact.
//
// Nothing here touches the filesystem: each method returns ServiceUnits
// whose Content is a pure function of the ProvisioningConfig and the probe
// Selection. Writing them is the artifact package's job.
package render

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"cytbootstrap/internal/codec"
	"cytbootstrap/internal/config"
	"cytbootstrap/internal/domain"
)

// Generated unit and file names
const (
	LinkServiceName   = "cyt-kismet-link.service"
	LinkTimerName     = "cyt-kismet-link.timer"
	DesktopFileName   = "cyt-gui.desktop"
	ExclusionFileName = "99-cyt-unmanaged.conf"
	CaptureSourceName = "cyt_capture"
	GUIEntryPoint     = "cyt_gui.py"
)

// Unit IDs
const (
	IDLinkScript   = "link-script"
	IDLinkService  = "link-service"
	IDLinkTimer    = "link-timer"
	IDSiteOverride = "site-override"
	IDExclusion    = "exclusion-rule"
	IDDesktopApp   = "desktop-application"
	IDDesktopAuto  = "desktop-autostart"
	IDEnvHelper    = "environment-helper"
	IDLauncher     = "launcher"
	IDShellSnippet = "shell-snippet"
)

const generatedBy = "Generated by cyt-bootstrap. Local edits are kept as .bak on the next run."

// Configurator renders units for one ProvisioningConfig
type Configurator struct {
	cfg config.ProvisioningConfig
}

// NewConfigurator creates a configurator
func NewConfigurator(cfg config.ProvisioningConfig) *Configurator {
	return &Configurator{cfg: cfg}
}

// LinkJob renders the helper script plus the one-shot service and timer
// that keep logs/latest.kismet pointing at the freshest capture
func (c *Configurator) LinkJob() ([]domain.ServiceUnit, error) {
	l := c.cfg.Layout
	in := c.cfg.Settings.Install
	t := c.cfg.Settings.Timer

	script := strings.Join([]string{
		"#!/bin/sh",
		"# " + generatedBy,
		"# Points latest.kismet at the newest capture log.",
		"set -eu",
		"LOG_DIR=" + shellQuote(l.LogDir),
		`latest=""`,
		`for f in "$LOG_DIR"/*.kismet; do`,
		`	[ -f "$f" ] && [ ! -L "$f" ] || continue`,
		`	if [ -z "$latest" ] || [ "$f" -nt "$latest" ]; then`,
		`		latest=$f`,
		"	fi",
		"done",
		`[ -n "$latest" ] || exit 0`,
		`ln -sfn "$latest" ` + shellQuote(l.LatestLink),
		"",
	}, "\n")

	var svc codec.Document
	svc.Comments = []string{generatedBy}
	svc.Add("Unit", "Description", "Link the newest Kismet capture log for Chasing Your Tail")
	svc.Add("Service", "Type", "oneshot")
	svc.Add("Service", "ExecStart", "/bin/sh "+l.LinkScript)
	svcContent, err := codec.Render(codec.NewSystemdCodec(), svc)
	if err != nil {
		return nil, err
	}

	var timer codec.Document
	timer.Comments = []string{generatedBy}
	timer.Add("Unit", "Description", "Refresh the latest Kismet capture link")
	timer.Add("Timer", "OnBootSec", systemdSpan(t.BootDelay.Duration()))
	timer.Add("Timer", "OnUnitActiveSec", systemdSpan(t.Interval.Duration()))
	timer.Add("Timer", "Persistent", "true")
	timer.Add("Timer", "Unit", LinkServiceName)
	timer.Add("Install", "WantedBy", "timers.target")
	timerContent, err := codec.Render(codec.NewSystemdCodec(), timer)
	if err != nil {
		return nil, err
	}

	return []domain.ServiceUnit{
		{ID: IDLinkScript, Kind: domain.UnitHelperScript, Content: []byte(script), Path: l.LinkScript, Mode: 0o755},
		{ID: IDLinkService, Kind: domain.UnitOneShotAction, Content: svcContent, Path: filepath.Join(in.SystemdDir, LinkServiceName), Mode: 0o644},
		{ID: IDLinkTimer, Kind: domain.UnitRecurringTimer, Content: timerContent, Path: filepath.Join(in.SystemdDir, LinkTimerName), Mode: 0o644},
	}, nil
}

// SiteOverride renders the daemon's site config. The source line is present
// only when a capture interface was selected.
func (c *Configurator) SiteOverride(sel domain.Selection) (domain.ServiceUnit, error) {
	var doc codec.Document
	doc.Comments = []string{generatedBy}
	doc.Add("", "log_prefix", c.cfg.Layout.LogDir)
	doc.Add("", "log_types", "kismet")
	if sel.HasCapture() {
		doc.Add("", "source", fmt.Sprintf("%s:name=%s,channel_hop=true", sel.Capture, CaptureSourceName))
	}

	content, err := codec.Render(codec.NewFlatCodec(), doc)
	if err != nil {
		return domain.ServiceUnit{}, err
	}
	return domain.ServiceUnit{
		ID:      IDSiteOverride,
		Kind:    domain.UnitSiteOverride,
		Content: content,
		Path:    c.cfg.Settings.Daemon.SiteConfigPath,
		Mode:    0o644,
	}, nil
}

// ExclusionRule renders the NetworkManager unmanaged-device rule for the
// capture interface. It reports false when there is nothing that may be
// excluded, including when the capture interface is the onboard one.
func (c *Configurator) ExclusionRule(sel domain.Selection) (domain.ServiceUnit, bool, error) {
	target := sel.ExclusionTarget()
	if target == "" {
		return domain.ServiceUnit{}, false, nil
	}

	var doc codec.Document
	doc.Comments = []string{generatedBy}
	doc.Add("keyfile", "unmanaged-devices", "interface-name:"+target)
	content, err := codec.Render(codec.NewKeyfileCodec(), doc)
	if err != nil {
		return domain.ServiceUnit{}, false, err
	}
	return domain.ServiceUnit{
		ID:      IDExclusion,
		Kind:    domain.UnitExclusionRule,
		Content: content,
		Path:    c.ExclusionPath(),
		Mode:    0o644,
	}, true, nil
}

// ExclusionPath is where the exclusion rule lives, rendered or not
func (c *Configurator) ExclusionPath() string {
	return filepath.Join(c.cfg.Settings.Install.NetworkManagerDir, ExclusionFileName)
}

// DesktopEntries renders the same launch descriptor as an application
// entry and an autostart entry
func (c *Configurator) DesktopEntries() ([]domain.ServiceUnit, error) {
	l := c.cfg.Layout
	d := c.cfg.Settings.Desktop
	in := c.cfg.Settings.Install

	var doc codec.Document
	doc.Add("Desktop Entry", "Type", "Application")
	doc.Add("Desktop Entry", "Name", d.Name)
	doc.Add("Desktop Entry", "Comment", "Wireless surveillance detection")
	doc.Add("Desktop Entry", "Exec", desktopQuote(l.Launcher))
	doc.Add("Desktop Entry", "Path", l.Root)
	doc.Add("Desktop Entry", "Icon", d.Icon)
	doc.Add("Desktop Entry", "Terminal", "false")
	doc.Add("Desktop Entry", "Categories", "Network;Security;")
	doc.Add("Desktop Entry", "X-GNOME-Autostart-enabled", "true")

	content, err := codec.Render(codec.NewDesktopCodec(), doc)
	if err != nil {
		return nil, err
	}
	return []domain.ServiceUnit{
		{ID: IDDesktopApp, Kind: domain.UnitAutostartEntry, Content: content, Path: filepath.Join(in.ApplicationsDir, DesktopFileName), Mode: 0o644},
		{ID: IDDesktopAuto, Kind: domain.UnitAutostartEntry, Content: content, Path: filepath.Join(in.AutostartDir, DesktopFileName), Mode: 0o644},
	}, nil
}

// EnvInputs are the run-dependent values exported to the GUI
type EnvInputs struct {
	// APIKey is exported when the daemon identity was verified by key
	APIKey string
}

// EnvHelper renders cyt_env.sh. It may carry the daemon API key, so it is
// owner-only and marked sensitive.
func (c *Configurator) EnvHelper(in EnvInputs) (domain.ServiceUnit, error) {
	l := c.cfg.Layout
	vars := map[string]string{
		"CYT_ROOT":            l.Root,
		"CYT_TEST_MODE":       "true",
		"CYT_CREDENTIALS_DIR": l.CredentialDir,
		"KISMET_URL":          c.cfg.Settings.Daemon.BaseURL,
		"KISMET_LOG":          l.LatestLink,
		"KISMET_API_KEY_FILE": l.KismetKey,
		"WIGLE_TOKEN_FILE":    l.WigleToken,
	}
	if in.APIKey != "" {
		vars["KISMET_API_KEY"] = in.APIKey
	}

	content, err := codec.NewEnvCodec().Marshal(vars, generatedBy, "Sourced by "+filepath.Base(l.Launcher)+".")
	if err != nil {
		return domain.ServiceUnit{}, err
	}
	return domain.ServiceUnit{
		ID:        IDEnvHelper,
		Kind:      domain.UnitEnvironmentHelper,
		Content:   content,
		Path:      l.EnvHelper,
		Mode:      domain.OwnerOnlyFileMode,
		Sensitive: true,
	}, nil
}

// Launcher renders start_gui.sh
func (c *Configurator) Launcher() domain.ServiceUnit {
	l := c.cfg.Layout
	script := strings.Join([]string{
		"#!/bin/sh",
		"# " + generatedBy,
		"set -eu",
		"cd " + shellQuote(l.Root),
		"set -a",
		". " + shellQuote(l.EnvHelper),
		"set +a",
		"exec " + shellQuote(filepath.Join(l.VenvDir, "bin", "python3")) + " " + GUIEntryPoint + ` "$@"`,
		"",
	}, "\n")

	return domain.ServiceUnit{
		ID:      IDLauncher,
		Kind:    domain.UnitLauncher,
		Content: []byte(script),
		Path:    l.Launcher,
		Mode:    0o755,
	}
}

// ShellSnippet renders the optional interactive-shell hook that activates
// the virtualenv inside the project tree
func (c *Configurator) ShellSnippet() domain.ServiceUnit {
	l := c.cfg.Layout
	activate := filepath.Join(l.VenvDir, "bin", "activate")
	script := strings.Join([]string{
		"# " + generatedBy,
		`case "$PWD/" in`,
		"	" + shellQuote(l.Root+"/") + "*)",
		"		[ -f " + shellQuote(activate) + " ] && . " + shellQuote(activate),
		"		;;",
		"esac",
		"",
	}, "\n")

	return domain.ServiceUnit{
		ID:      IDShellSnippet,
		Kind:    domain.UnitHelperScript,
		Content: []byte(script),
		Path:    c.cfg.Settings.Install.ShellSnippetPath,
		Mode:    0o644,
	}
}

// systemdSpan formats d the way systemd.time writes spans
func systemdSpan(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		return fmt.Sprintf("%dh", d/time.Hour)
	case d >= time.Minute && d%time.Minute == 0:
		return fmt.Sprintf("%dmin", d/time.Minute)
	default:
		return fmt.Sprintf("%ds", int64(d.Round(time.Second)/time.Second))
	}
}

// shellQuote single-quotes s for POSIX sh
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// desktopQuote quotes an Exec argument when it contains reserved characters
func desktopQuote(s string) string {
	if !strings.ContainsAny(s, " \t\"'\\><~|&;$*?#()`") {
		return s
	}
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "`", "\\`", `$`, `\$`)
	return `"` + r.Replace(s) + `"`
}
