package domain

// BusAttachment is the physical connection class of a network interface
type BusAttachment string

const (
	BusUSB   BusAttachment = "usb"
	BusPCI   BusAttachment = "pci"
	BusOther BusAttachment = "other"
)

// InterfaceRole is the role assigned by the selection algorithm
type InterfaceRole string

const (
	RoleUnassigned     InterfaceRole = "unassigned"
	RoleCapture        InterfaceRole = "capture"
	RoleOnboardProtect InterfaceRole = "onboard-protect"
)

// InterfaceDescriptor describes a wireless interface known to the kernel.
// Descriptors are rebuilt on every run and never persisted.
type InterfaceDescriptor struct {
	Name           string        `json:"name"`
	Bus            BusAttachment `json:"bus"`
	MonitorCapable bool          `json:"monitor_capable"`
	Phy            string        `json:"phy,omitempty"`
	Driver         string        `json:"driver,omitempty"`
	Role           InterfaceRole `json:"role"`
}

// Selection is the result of capture interface selection over a probe table
type Selection struct {
	// Interfaces is the full table with roles assigned
	Interfaces []InterfaceDescriptor `json:"interfaces"`
	// Capture is the selected capture interface name, empty when none qualifies
	Capture string `json:"capture,omitempty"`
	// OnboardProtect is the first PCI interface seen, empty when there is none
	OnboardProtect string `json:"onboard_protect,omitempty"`
}

// HasCapture reports whether a capture interface was selected
func (s Selection) HasCapture() bool {
	return s.Capture != ""
}

// ExclusionTarget returns the interface that should be excluded from the
// network manager, or "" when nothing may be excluded. The onboard-protect
// interface is never returned.
func (s Selection) ExclusionTarget() string {
	if s.Capture == "" || s.Capture == s.OnboardProtect {
		return ""
	}
	return s.Capture
}

// Lookup returns the descriptor with the given name
func (s Selection) Lookup(name string) (InterfaceDescriptor, bool) {
	for _, iface := range s.Interfaces {
		if iface.Name == name {
			return iface, true
		}
	}
	return InterfaceDescriptor{}, false
}
