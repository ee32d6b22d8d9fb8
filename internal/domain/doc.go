// Package domain defines the core types for the cyt-bootstrap provisioning engine.
//
// This package contains the value types that flow between the prober, the
// service configurator, the credential validator, and the stage pipeline.
//
// # Core Types
//
// InterfaceDescriptor describes one wireless network interface as seen by the
// kernel: its bus attachment, monitor-mode capability, and the role the
// selection algorithm assigned it.
//
// ServiceUnit is one generated artifact (systemd unit, timer, desktop entry,
// capture-daemon site override, helper script) with its desired content,
// install path, and required permission mode.
//
// CredentialRecord tracks one external credential (remote API token or daemon
// identity) through its validation state machine.
//
// StageResult is the typed outcome of a single pipeline stage. The orchestrator
// applies the fatal/recoverable policy to these results; stages never abort the
// process themselves.
//
// # Design Principles
//
// - Immutable value objects where possible
// - No filesystem, network, or process dependencies
// - Rich type system with meaningful constants and enumerations
package domain
