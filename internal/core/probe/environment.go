package probe

import (
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"
)

// ErrUnsupportedPlatform is returned when the OS family cannot be provisioned
var ErrUnsupportedPlatform = errors.New("unsupported platform")

// Family is the broad distribution family, which decides the package manager
type Family string

const (
	FamilyDebian  Family = "debian"
	FamilyFedora  Family = "fedora"
	FamilyArch    Family = "arch"
	FamilyUnknown Family = "unknown"
)

var familyMembers = map[string]Family{
	"debian":      FamilyDebian,
	"ubuntu":      FamilyDebian,
	"raspbian":    FamilyDebian,
	"kali":        FamilyDebian,
	"linuxmint":   FamilyDebian,
	"pop":         FamilyDebian,
	"fedora":      FamilyFedora,
	"rhel":        FamilyFedora,
	"centos":      FamilyFedora,
	"rocky":       FamilyFedora,
	"almalinux":   FamilyFedora,
	"arch":        FamilyArch,
	"manjaro":     FamilyArch,
	"endeavouros": FamilyArch,
}

// OSInfo is what os-release says about the host
type OSInfo struct {
	ID        string
	IDLike    string
	Name      string
	VersionID string
	Family    Family
}

// Supported reports whether the family maps to a known package manager
func (o OSInfo) Supported() bool {
	return o.Family != FamilyUnknown
}

// Evidence returns the OS facts as evidence
func (o OSInfo) Evidence() []Evidence {
	return []Evidence{
		NewEvidence(CategoryEnvironment, "os_id", o.ID, 0.99, "os-release", "ID"),
		NewEvidence(CategoryEnvironment, "os_name", o.Name, 0.99, "os-release", "NAME"),
		NewEvidence(CategoryEnvironment, "os_family", string(o.Family), 0.9, "os-release", "ID + ID_LIKE"),
	}
}

// DetectOS reads <etcRoot>/os-release and classifies the distribution
func DetectOS(etcRoot string) (OSInfo, error) {
	path := filepath.Join(etcRoot, "os-release")
	data, err := os.ReadFile(path)
	if err != nil {
		return OSInfo{Family: FamilyUnknown}, fmt.Errorf("read %s: %w", path, err)
	}

	fields := parseOSRelease(string(data))
	info := OSInfo{
		ID:        fields["ID"],
		IDLike:    fields["ID_LIKE"],
		Name:      fields["NAME"],
		VersionID: fields["VERSION_ID"],
	}
	info.Family = familyOf(info.ID, info.IDLike)

	return info, nil
}

// parseOSRelease parses os-release content
// Format: KEY=value or KEY="value"
func parseOSRelease(content string) map[string]string {
	fields := make(map[string]string)

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.Trim(strings.TrimSpace(parts[1]), `"'`)
		fields[key] = value
	}

	return fields
}

// familyOf checks ID first, then each ID_LIKE token in order
func familyOf(id, idLike string) Family {
	candidates := append([]string{id}, strings.Fields(idLike)...)
	for _, c := range candidates {
		if f, ok := familyMembers[strings.ToLower(c)]; ok {
			return f
		}
	}
	return FamilyUnknown
}

// Identity describes who is running the bootstrap
type Identity struct {
	EUID     int
	Username string
	// SudoUser is the account that invoked sudo, empty when not under sudo
	SudoUser string
	Home     string
}

// IsRoot reports whether the process runs with an effective UID of zero
func (i Identity) IsRoot() bool {
	return i.EUID == 0
}

// Evidence returns the identity facts as evidence
func (i Identity) Evidence() []Evidence {
	ev := []Evidence{
		NewEvidence(CategoryPermissions, "effective_uid", i.EUID, 1.0, "syscall", "os.Geteuid()"),
		NewEvidence(CategoryPermissions, "username", i.Username, 0.99, "user", "user.Current().Username"),
	}
	if i.SudoUser != "" {
		ev = append(ev, NewEvidence(CategoryPermissions, "sudo_user", i.SudoUser, 0.95, "environment", "SUDO_USER"))
	}
	return ev
}

// DetectIdentity resolves the effective user and, under sudo, the invoking
// user whose home directory receives the desktop entries.
func DetectIdentity() Identity {
	id := Identity{EUID: os.Geteuid()}

	if u, err := user.Current(); err == nil {
		id.Username = u.Username
		id.Home = u.HomeDir
	}

	if sudoUser := os.Getenv("SUDO_USER"); sudoUser != "" && id.IsRoot() {
		id.SudoUser = sudoUser
		if u, err := user.Lookup(sudoUser); err == nil {
			id.Home = u.HomeDir
		}
	}

	return id
}
