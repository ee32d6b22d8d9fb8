package render

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cytbootstrap/internal/config"
	"cytbootstrap/internal/domain"
)

func testConfig(t *testing.T, root string) config.ProvisioningConfig {
	t.Helper()
	cfg, err := config.New(config.Flags{Root: root}, config.DefaultSettings(), "", "/home/analyst")
	if err != nil {
		t.Fatalf("config.New() error = %v", err)
	}
	return cfg
}

func TestLinkJob(t *testing.T) {
	units, err := NewConfigurator(testConfig(t, "/opt/cyt")).LinkJob()
	if err != nil {
		t.Fatalf("LinkJob() error = %v", err)
	}
	if len(units) != 3 {
		t.Fatalf("LinkJob() returned %d units, want 3", len(units))
	}

	script, svc, timer := units[0], units[1], units[2]

	if script.Path != "/opt/cyt/scripts/link_latest_kismet.sh" || script.Mode != 0o755 {
		t.Errorf("script = %s %o", script.Path, script.Mode)
	}
	if !strings.Contains(string(script.Content), "ln -sfn \"$latest\" '/opt/cyt/logs/latest.kismet'") {
		t.Errorf("script content:\n%s", script.Content)
	}

	if svc.Path != "/etc/systemd/system/cyt-kismet-link.service" || !svc.IsSystemdUnit() {
		t.Errorf("service = %+v", svc)
	}
	for _, want := range []string{"[Service]\nType=oneshot\nExecStart=/bin/sh /opt/cyt/scripts/link_latest_kismet.sh\n"} {
		if !strings.Contains(string(svc.Content), want) {
			t.Errorf("service missing %q:\n%s", want, svc.Content)
		}
	}

	wantTimer := "[Timer]\nOnBootSec=2min\nOnUnitActiveSec=5min\nPersistent=true\nUnit=cyt-kismet-link.service\n\n[Install]\nWantedBy=timers.target\n"
	if !strings.HasSuffix(string(timer.Content), wantTimer) {
		t.Errorf("timer content:\n%s", timer.Content)
	}
}

func TestSiteOverride(t *testing.T) {
	c := NewConfigurator(testConfig(t, "/opt/cyt"))

	tests := []struct {
		name       string
		sel        domain.Selection
		wantSource string
	}{
		{"with capture", domain.Selection{Capture: "wlan1"}, "source=wlan1:name=cyt_capture,channel_hop=true\n"},
		{"without capture", domain.Selection{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unit, err := c.SiteOverride(tt.sel)
			if err != nil {
				t.Fatalf("SiteOverride() error = %v", err)
			}
			content := string(unit.Content)
			if !strings.Contains(content, "log_prefix=/opt/cyt/logs\nlog_types=kismet\n") {
				t.Errorf("content:\n%s", content)
			}
			hasSource := strings.Contains(content, "source=")
			if tt.wantSource == "" && hasSource {
				t.Errorf("unexpected source line:\n%s", content)
			}
			if tt.wantSource != "" && !strings.HasSuffix(content, tt.wantSource) {
				t.Errorf("content does not end with %q:\n%s", tt.wantSource, content)
			}
			if unit.Path != "/etc/kismet/kismet_site.conf" {
				t.Errorf("Path = %q", unit.Path)
			}
		})
	}
}

func TestExclusionRule(t *testing.T) {
	c := NewConfigurator(testConfig(t, "/opt/cyt"))

	tests := []struct {
		name string
		sel  domain.Selection
		want bool
	}{
		{"usb capture, onboard pci", domain.Selection{Capture: "wlan1", OnboardProtect: "wlan0"}, true},
		{"onboard is capture", domain.Selection{Capture: "wlan0", OnboardProtect: "wlan0"}, false},
		{"no capture", domain.Selection{OnboardProtect: "wlan0"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unit, ok, err := c.ExclusionRule(tt.sel)
			if err != nil {
				t.Fatalf("ExclusionRule() error = %v", err)
			}
			if ok != tt.want {
				t.Fatalf("ExclusionRule() ok = %v, want %v", ok, tt.want)
			}
			if !ok {
				return
			}
			if !strings.HasSuffix(string(unit.Content), "[keyfile]\nunmanaged-devices=interface-name:wlan1\n") {
				t.Errorf("content:\n%s", unit.Content)
			}
			if strings.Contains(string(unit.Content), tt.sel.OnboardProtect) {
				t.Error("onboard-protect interface appears in the exclusion rule")
			}
			if unit.Path != "/etc/NetworkManager/conf.d/99-cyt-unmanaged.conf" {
				t.Errorf("Path = %q", unit.Path)
			}
		})
	}
}

func TestDesktopEntries(t *testing.T) {
	units, err := NewConfigurator(testConfig(t, "/opt/my cyt")).DesktopEntries()
	if err != nil {
		t.Fatalf("DesktopEntries() error = %v", err)
	}
	if len(units) != 2 {
		t.Fatalf("got %d units, want 2", len(units))
	}
	if units[0].Path != "/home/analyst/.local/share/applications/cyt-gui.desktop" {
		t.Errorf("application path = %q", units[0].Path)
	}
	if units[1].Path != "/home/analyst/.config/autostart/cyt-gui.desktop" {
		t.Errorf("autostart path = %q", units[1].Path)
	}
	if !bytes.Equal(units[0].Content, units[1].Content) {
		t.Error("application and autostart entries differ")
	}

	content := string(units[0].Content)
	for _, want := range []string{
		"[Desktop Entry]\nType=Application\n",
		"Exec=\"/opt/my cyt/start_gui.sh\"\n",
		"Path=/opt/my cyt\n",
		"Terminal=false\n",
		"X-GNOME-Autostart-enabled=true\n",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("desktop entry missing %q:\n%s", want, content)
		}
	}
}

func TestEnvHelper(t *testing.T) {
	c := NewConfigurator(testConfig(t, "/opt/cyt"))

	plain, err := c.EnvHelper(EnvInputs{})
	if err != nil {
		t.Fatalf("EnvHelper() error = %v", err)
	}
	if plain.Mode != 0o600 || !plain.Sensitive {
		t.Errorf("mode = %o sensitive = %v", plain.Mode, plain.Sensitive)
	}
	if strings.Contains(string(plain.Content), "KISMET_API_KEY=") {
		t.Error("API key exported without one")
	}
	for _, want := range []string{`CYT_ROOT='/opt/cyt'`, `CYT_TEST_MODE='true'`, `KISMET_URL='http://localhost:2501'`} {
		if !strings.Contains(string(plain.Content), want) {
			t.Errorf("env helper missing %q:\n%s", want, plain.Content)
		}
	}

	keyed, err := c.EnvHelper(EnvInputs{APIKey: "ABC123"})
	if err != nil {
		t.Fatalf("EnvHelper() error = %v", err)
	}
	if !strings.Contains(string(keyed.Content), `KISMET_API_KEY='ABC123'`) {
		t.Errorf("keyed env helper:\n%s", keyed.Content)
	}
}

func TestEnvHelperSourcedBySh(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}

	unit, err := NewConfigurator(testConfig(t, "/srv/cyt!lab")).EnvHelper(EnvInputs{APIKey: "0042"})
	if err != nil {
		t.Fatalf("EnvHelper() error = %v", err)
	}
	path := filepath.Join(t.TempDir(), "cyt_env.sh")
	if err := os.WriteFile(path, unit.Content, 0o600); err != nil {
		t.Fatal(err)
	}

	out, err := exec.Command(sh, "-c", `set -a; . "$1"; printf '%s|%s' "$CYT_ROOT" "$KISMET_API_KEY"`, "sh", path).CombinedOutput()
	if err != nil {
		t.Fatalf("sourcing env helper: %v\n%s", err, out)
	}
	if got, want := string(out), "/srv/cyt!lab|0042"; got != want {
		t.Errorf("sh sees %q, want %q", got, want)
	}
}

func TestLauncher(t *testing.T) {
	unit := NewConfigurator(testConfig(t, "/opt/cyt")).Launcher()
	if unit.Mode != 0o755 || unit.Path != "/opt/cyt/start_gui.sh" {
		t.Errorf("launcher = %s %o", unit.Path, unit.Mode)
	}
	want := "set -a\n. '/opt/cyt/cyt_env.sh'\nset +a\nexec '/opt/cyt/.venv/bin/python3' cyt_gui.py \"$@\"\n"
	if !strings.HasSuffix(string(unit.Content), want) {
		t.Errorf("launcher content:\n%s", unit.Content)
	}
}

func TestShellSnippet(t *testing.T) {
	unit := NewConfigurator(testConfig(t, "/opt/cyt")).ShellSnippet()
	if unit.Path != "/home/analyst/.bashrc.d/cyt-venv.sh" {
		t.Errorf("Path = %q", unit.Path)
	}
	if !strings.Contains(string(unit.Content), ". '/opt/cyt/.venv/bin/activate'") {
		t.Errorf("content:\n%s", unit.Content)
	}
}

// Rendering twice from the same inputs must produce identical bytes
func TestRenderDeterministic(t *testing.T) {
	sel := domain.Selection{Capture: "wlan1", OnboardProtect: "wlan0"}

	renderAll := func() [][]byte {
		c := NewConfigurator(testConfig(t, "/opt/cyt"))
		var out [][]byte
		job, _ := c.LinkJob()
		for _, u := range job {
			out = append(out, u.Content)
		}
		site, _ := c.SiteOverride(sel)
		rule, _, _ := c.ExclusionRule(sel)
		desk, _ := c.DesktopEntries()
		env, _ := c.EnvHelper(EnvInputs{APIKey: "k"})
		out = append(out, site.Content, rule.Content, desk[0].Content, env.Content, c.Launcher().Content, c.ShellSnippet().Content)
		return out
	}

	first, second := renderAll(), renderAll()
	for i := range first {
		if !bytes.Equal(first[i], second[i]) {
			t.Errorf("unit %d differs between renders", i)
		}
	}
}

func TestSystemdSpan(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2m", "2min"},
		{"5m", "5min"},
		{"1h", "1h"},
		{"90s", "90s"},
	}

	for _, tt := range tests {
		d, err := time.ParseDuration(tt.in)
		if err != nil {
			t.Fatal(err)
		}
		if got := systemdSpan(d); got != tt.want {
			t.Errorf("systemdSpan(%s) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestShellQuote(t *testing.T) {
	if got, want := shellQuote("it's"), `'it'\''s'`; got != want {
		t.Errorf("shellQuote() = %s, want %s", got, want)
	}
}
