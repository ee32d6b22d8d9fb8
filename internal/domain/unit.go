package domain

import "os"

// UnitKind categorizes generated artifacts
type UnitKind string

const (
	UnitOneShotAction     UnitKind = "one-shot-action"
	UnitRecurringTimer    UnitKind = "recurring-timer"
	UnitAutostartEntry    UnitKind = "autostart-entry"
	UnitSiteOverride      UnitKind = "site-override"
	UnitExclusionRule     UnitKind = "exclusion-rule"
	UnitHelperScript      UnitKind = "helper-script"
	UnitEnvironmentHelper UnitKind = "environment-helper"
	UnitLauncher          UnitKind = "launcher"
)

// ServiceUnit is one generated artifact with its desired content.
// Units are overwritten only when content differs and destroyed only by reset.
type ServiceUnit struct {
	ID      string      `json:"id"`
	Kind    UnitKind    `json:"kind"`
	Content []byte      `json:"-"`
	Path    string      `json:"path"`
	Mode    os.FileMode `json:"mode"`

	// Sensitive units carry secrets and must never be logged
	Sensitive bool `json:"sensitive,omitempty"`
}

// IsSystemdUnit reports whether the unit is registered with the service manager
func (u ServiceUnit) IsSystemdUnit() bool {
	return u.Kind == UnitOneShotAction || u.Kind == UnitRecurringTimer
}

// WriteOutcome records what happened when a unit was reconciled to disk
type WriteOutcome string

const (
	WriteCreated   WriteOutcome = "created"
	WriteUpdated   WriteOutcome = "updated"
	WriteUnchanged WriteOutcome = "unchanged"
	// WriteReplacedEdited means the file had been edited by hand since the
	// last run; the previous content was preserved next to it.
	WriteReplacedEdited WriteOutcome = "replaced-edited"
)

// Changed reports whether the file content on disk was modified
func (o WriteOutcome) Changed() bool {
	return o != WriteUnchanged
}
