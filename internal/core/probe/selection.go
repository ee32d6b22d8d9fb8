package probe

import (
	"cytbootstrap/internal/domain"
)

// SelectCapture picks the capture interface from a probe table.
//
// The first USB-attached monitor-capable interface wins; failing that, the
// first PCI-attached monitor-capable one. Independently, the first PCI
// interface in the table is remembered as onboard-protect so the machine's
// primary radio never lands in an exclusion rule. When the capture choice
// is that same interface it keeps the capture role.
func SelectCapture(ifaces []domain.InterfaceDescriptor) domain.Selection {
	table := make([]domain.InterfaceDescriptor, len(ifaces))
	copy(table, ifaces)

	firstUSB, firstPCI, onboard := -1, -1, -1
	for i, iface := range table {
		table[i].Role = domain.RoleUnassigned

		if iface.Bus == domain.BusPCI && onboard < 0 {
			onboard = i
		}
		if !iface.MonitorCapable {
			continue
		}
		switch iface.Bus {
		case domain.BusUSB:
			if firstUSB < 0 {
				firstUSB = i
			}
		case domain.BusPCI:
			if firstPCI < 0 {
				firstPCI = i
			}
		}
	}

	sel := domain.Selection{Interfaces: table}

	if onboard >= 0 {
		table[onboard].Role = domain.RoleOnboardProtect
		sel.OnboardProtect = table[onboard].Name
	}

	capture := firstUSB
	if capture < 0 {
		capture = firstPCI
	}
	if capture >= 0 {
		table[capture].Role = domain.RoleCapture
		sel.Capture = table[capture].Name
	}

	return sel
}
