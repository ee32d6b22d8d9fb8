package probe

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"cytbootstrap/internal/domain"
)

// CommandRunner runs an external command and returns its stdout
type CommandRunner interface {
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
}

var usbBusComponent = regexp.MustCompile(`^usb\d+$`)

// Prober enumerates wireless interfaces under a sysfs root
type Prober struct {
	sysRoot string
	runner  CommandRunner
}

// NewProber creates a prober reading from sysRoot (normally "/sys") and
// querying PHY capabilities through runner
func NewProber(sysRoot string, runner CommandRunner) *Prober {
	if sysRoot == "" {
		sysRoot = "/sys"
	}
	return &Prober{sysRoot: sysRoot, runner: runner}
}

// Probe returns every wireless interface in kernel enumeration order along
// with the evidence gathered for each. A host without wireless interfaces
// yields an empty table and no error.
func (p *Prober) Probe(ctx context.Context) ([]domain.InterfaceDescriptor, *EvidenceSet, error) {
	evidence := NewEvidenceSet()
	classNet := filepath.Join(p.sysRoot, "class", "net")

	entries, err := os.ReadDir(classNet)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, evidence, nil
		}
		return nil, evidence, fmt.Errorf("list %s: %w", classNet, err)
	}

	var ifaces []domain.InterfaceDescriptor
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return ifaces, evidence, err
		}

		name := entry.Name()
		netDir := filepath.Join(classNet, name)
		if !isWireless(netDir) {
			continue
		}

		iface := domain.InterfaceDescriptor{
			Name:   name,
			Bus:    busAttachment(netDir),
			Phy:    phyName(netDir),
			Driver: driverName(netDir),
			Role:   domain.RoleUnassigned,
		}
		evidence.Add(NewEvidence(CategoryNetwork, "wireless_interface", name, 0.99, "sysfs", "class/net/"+name))
		evidence.Add(NewEvidence(CategoryNetwork, "bus_attachment", string(iface.Bus), 0.9, "sysfs", name+"/device"))

		if iface.Phy != "" && p.runner != nil {
			modes, err := p.supportedModes(ctx, iface.Phy)
			if err != nil {
				evidence.Add(NewEvidence(CategoryNetwork, "monitor_capable", false, 0.5, "iw",
					fmt.Sprintf("iw phy %s info failed: %v", iface.Phy, err)))
			} else {
				iface.MonitorCapable = containsFold(modes, "monitor")
				evidence.Add(NewEvidence(CategoryNetwork, "monitor_capable", iface.MonitorCapable, 0.95, "iw",
					fmt.Sprintf("iw phy %s info: %s", iface.Phy, strings.Join(modes, ","))))
			}
		}

		ifaces = append(ifaces, iface)
	}

	return ifaces, evidence, nil
}

func (p *Prober) supportedModes(ctx context.Context, phy string) ([]string, error) {
	out, err := p.runner.Output(ctx, "iw", "phy", phy, "info")
	if err != nil {
		return nil, err
	}
	return parseSupportedModes(out), nil
}

func isWireless(netDir string) bool {
	for _, marker := range []string{"wireless", "phy80211"} {
		if _, err := os.Stat(filepath.Join(netDir, marker)); err == nil {
			return true
		}
	}
	return false
}

// busAttachment resolves the device symlink and walks the hardware path.
// USB adapters hang off a PCI host controller, so a usbN component wins
// over any pci component before it.
func busAttachment(netDir string) domain.BusAttachment {
	resolved, err := filepath.EvalSymlinks(filepath.Join(netDir, "device"))
	if err != nil {
		return domain.BusOther
	}

	sawPCI := false
	for _, component := range strings.Split(filepath.ToSlash(resolved), "/") {
		if usbBusComponent.MatchString(component) {
			return domain.BusUSB
		}
		if strings.HasPrefix(component, "pci") {
			sawPCI = true
		}
	}
	if sawPCI {
		return domain.BusPCI
	}
	return domain.BusOther
}

func phyName(netDir string) string {
	if data, err := os.ReadFile(filepath.Join(netDir, "phy80211", "name")); err == nil {
		return strings.TrimSpace(string(data))
	}
	if resolved, err := filepath.EvalSymlinks(filepath.Join(netDir, "phy80211")); err == nil {
		return filepath.Base(resolved)
	}
	return ""
}

func driverName(netDir string) string {
	target, err := os.Readlink(filepath.Join(netDir, "device", "driver"))
	if err != nil {
		return ""
	}
	return filepath.Base(target)
}

// parseSupportedModes extracts the "Supported interface modes" list from
// `iw phy <phy> info` output
func parseSupportedModes(out []byte) []string {
	var modes []string
	inBlock := false

	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "Supported interface modes:" {
			inBlock = true
			continue
		}
		if !inBlock {
			continue
		}
		if !strings.HasPrefix(line, "*") {
			break
		}
		modes = append(modes, strings.TrimSpace(strings.TrimPrefix(line, "*")))
	}

	return modes
}

func containsFold(values []string, want string) bool {
	for _, v := range values {
		if strings.EqualFold(v, want) {
			return true
		}
	}
	return false
}
