package codec

import (
	"bytes"
	"strings"
	"testing"
)

func TestSystemdEncode(t *testing.T) {
	var doc Document
	doc.Comments = []string{"Managed by cyt-bootstrap"}
	doc.Add("Unit", "Description", "Link newest capture log")
	doc.Add("Timer", "OnBootSec", "2min")
	doc.Add("Timer", "Persistent", "true")
	doc.Add("Install", "WantedBy", "timers.target")

	got, err := Render(NewSystemdCodec(), doc)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	want := `# Managed by cyt-bootstrap

[Unit]
Description=Link newest capture log

[Timer]
OnBootSec=2min
Persistent=true

[Install]
WantedBy=timers.target
`
	if string(got) != want {
		t.Errorf("Render() =\n%s\nwant\n%s", got, want)
	}
}

func TestIniEncodeRejectsNewlines(t *testing.T) {
	var doc Document
	doc.Add("Desktop Entry", "Exec", "a\nb")

	if _, err := Render(NewDesktopCodec(), doc); err == nil {
		t.Error("expected error for value with newline")
	}

	var unnamed Document
	unnamed.Add("", "Key", "v")
	if _, err := Render(NewDesktopCodec(), unnamed); err == nil {
		t.Error("expected error for unnamed section")
	}
}

func TestIniRoundTrip(t *testing.T) {
	var doc Document
	doc.Add("Desktop Entry", "Type", "Application")
	doc.Add("Desktop Entry", "Name", "Chasing Your Tail")
	doc.Add("Desktop Entry", "X-GNOME-Autostart-enabled", "true")

	c := NewDesktopCodec()
	data, err := Render(c, doc)
	if err != nil {
		t.Fatal(err)
	}

	parsed, err := c.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got := parsed.Get("Desktop Entry", "Name"); len(got) != 1 || got[0] != "Chasing Your Tail" {
		t.Errorf("Name = %v", got)
	}
}

func TestIniDecodeMalformed(t *testing.T) {
	_, err := NewKeyfileCodec().Decode(strings.NewReader("[keyfile]\nnot a pair\n"))
	if err == nil {
		t.Error("expected error for line without '='")
	}
}

func TestSystemdRoundTrip(t *testing.T) {
	var doc Document
	doc.Comments = []string{"generated"}
	doc.Add("Service", "Type", "oneshot")
	doc.Add("Service", "ExecStartPre", "/bin/true")
	doc.Add("Service", "ExecStartPre", "/bin/sh -c 'echo ready'")

	c := NewSystemdCodec()
	data, err := Render(c, doc)
	if err != nil {
		t.Fatal(err)
	}

	parsed, err := c.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	pre := parsed.Get("Service", "ExecStartPre")
	if len(pre) != 2 || pre[1] != "/bin/sh -c 'echo ready'" {
		t.Errorf("ExecStartPre = %v", pre)
	}
}

func TestDesktopEncode(t *testing.T) {
	var doc Document
	doc.Comments = []string{"generated"}
	doc.Add("Desktop Entry", "Type", "Application")
	doc.Add("Desktop Entry", "Exec", `"/opt/my cyt/start_gui.sh"`)
	doc.Add("Desktop Entry", "Categories", "Network;Security;")
	doc.Add("Desktop Action Capture", "Name", "Capture # now")

	got, err := Render(NewDesktopCodec(), doc)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	want := `# generated

[Desktop Entry]
Type=Application
Exec="/opt/my cyt/start_gui.sh"
Categories=Network;Security;

[Desktop Action Capture]
Name=Capture # now
`
	if string(got) != want {
		t.Errorf("Render() =\n%s\nwant\n%s", got, want)
	}

	parsed, err := NewDesktopCodec().Decode(bytes.NewReader(got))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if exec := parsed.Get("Desktop Entry", "Exec"); len(exec) != 1 || exec[0] != `"/opt/my cyt/start_gui.sh"` {
		t.Errorf("Exec = %v", exec)
	}
	if cats := parsed.Get("Desktop Entry", "Categories"); len(cats) != 1 || cats[0] != "Network;Security;" {
		t.Errorf("Categories = %v", cats)
	}
}

func TestKeyfileRepeatedKeys(t *testing.T) {
	var doc Document
	doc.Add("keyfile", "unmanaged-devices", "interface-name:wlan1")
	doc.Add("keyfile", "unmanaged-devices", "interface-name:wlan2")

	c := NewKeyfileCodec()
	data, err := Render(c, doc)
	if err != nil {
		t.Fatal(err)
	}
	want := "[keyfile]\nunmanaged-devices=interface-name:wlan1\nunmanaged-devices=interface-name:wlan2\n"
	if string(data) != want {
		t.Errorf("Render() = %q, want %q", data, want)
	}

	parsed, err := c.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got := parsed.Get("keyfile", "unmanaged-devices"); len(got) != 2 || got[1] != "interface-name:wlan2" {
		t.Errorf("unmanaged-devices = %v", got)
	}
}

func TestFlatCodecRepeatedKeys(t *testing.T) {
	in := "# site override\nlog_prefix=/opt/cyt/logs\nsource=wlan1:name=cyt_capture,channel_hop=true\nsource=wlan2\n"

	doc, err := NewFlatCodec().Decode(strings.NewReader(in))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	sources := doc.Get("", "source")
	if len(sources) != 2 || sources[0] != "wlan1:name=cyt_capture,channel_hop=true" {
		t.Errorf("sources = %v", sources)
	}

	out, err := Render(NewFlatCodec(), Document{Comments: []string{"site override"}, Sections: doc.Sections})
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != in {
		t.Errorf("re-encoded =\n%s\nwant\n%s", out, in)
	}
}

func TestFlatCodecRejectsSections(t *testing.T) {
	var doc Document
	doc.Add("named", "k", "v")
	if _, err := Render(NewFlatCodec(), doc); err == nil {
		t.Error("expected error for named section")
	}
}

func TestEnvCodecDeterministic(t *testing.T) {
	c := NewEnvCodec()
	vars := map[string]string{
		"CYT_ROOT":       "/opt/cyt",
		"KISMET_URL":     "http://localhost:2501",
		"CYT_TEST_MODE":  "true",
		"CYT_KISMET_LOG": "/opt/cyt/logs/latest.kismet",
	}

	first, err := c.Marshal(vars, "generated")
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		again, err := c.Marshal(vars, "generated")
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("Marshal() not deterministic:\n%s\nvs\n%s", first, again)
		}
	}

	if !strings.HasPrefix(string(first), "# generated\nCYT_KISMET_LOG=") {
		t.Errorf("unexpected ordering:\n%s", first)
	}

	parsed, err := c.Parse(bytes.NewReader(first))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if parsed["KISMET_URL"] != "http://localhost:2501" {
		t.Errorf("KISMET_URL = %q", parsed["KISMET_URL"])
	}
}

func TestEnvCodecQuoting(t *testing.T) {
	c := NewEnvCodec()

	got, err := c.Marshal(map[string]string{"CYT_ROOT": "/srv/cyt!lab", "KISMET_API_KEY": "0042", "EMPTY": ""})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := "CYT_ROOT='/srv/cyt!lab'\nEMPTY=''\nKISMET_API_KEY='0042'\n"
	if string(got) != want {
		t.Errorf("Marshal() = %q, want %q", got, want)
	}

	parsed, err := c.Parse(bytes.NewReader(got))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if parsed["CYT_ROOT"] != "/srv/cyt!lab" || parsed["KISMET_API_KEY"] != "0042" {
		t.Errorf("Parse() = %v", parsed)
	}

	tests := []struct {
		name string
		vars map[string]string
	}{
		{"single quote", map[string]string{"CYT_ROOT": "/srv/it's"}},
		{"newline", map[string]string{"CYT_ROOT": "a\nb"}},
		{"bad name", map[string]string{"CYT-ROOT": "/opt/cyt"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := c.Marshal(tt.vars); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestJSONCodec(t *testing.T) {
	c := NewJSONCodec()
	data, err := c.Marshal(map[string]string{"username": "admin"})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "{\n  \"username\": \"admin\"\n}\n" {
		t.Errorf("Marshal() = %q", data)
	}

	var out map[string]string
	if err := c.Unmarshal(bytes.NewReader(data), &out); err != nil {
		t.Fatal(err)
	}
	if out["username"] != "admin" {
		t.Errorf("username = %q", out["username"])
	}
}
