package service

import (
	"context"
	"log/slog"

	"cytbootstrap/internal/adapter"
	"cytbootstrap/internal/artifact"
	"cytbootstrap/internal/config"
	"cytbootstrap/internal/core/probe"
	"cytbootstrap/internal/credential"
	"cytbootstrap/internal/domain"
	"cytbootstrap/internal/prompt"
	"cytbootstrap/internal/readiness"
	"cytbootstrap/internal/render"
	"cytbootstrap/internal/repository"
)

// ServiceManager is the subset of systemctl the stages drive
type ServiceManager interface {
	Available() bool
	DaemonReload(ctx context.Context) error
	EnableNow(ctx context.Context, unit string) error
	DisableNow(ctx context.Context, unit string) error
	Stop(ctx context.Context, unit string) error
	IsActive(ctx context.Context, unit string) bool
}

// InterfaceProber enumerates wireless interfaces
type InterfaceProber interface {
	Probe(ctx context.Context) ([]domain.InterfaceDescriptor, *probe.EvidenceSet, error)
}

// DaemonAPI is the capture daemon's HTTP surface
type DaemonAPI interface {
	credential.KismetAPI
	IndexStatus(ctx context.Context) (int, error)
}

// RunContext carries the collaborators shared by every stage plus the facts
// earlier stages hand to later ones
type RunContext struct {
	Config   config.ProvisioningConfig
	Logger   *slog.Logger
	Identity probe.Identity
	// Owner receives user-facing artifacts under sudo; nil leaves ownership
	Owner *artifact.Owner
	// EtcRoot holds os-release; "/etc" in production
	EtcRoot string

	Runner  adapter.Runner
	Systemd ServiceManager
	Prober  InterfaceProber
	Ledger  repository.Ledger
	Writer  *artifact.Writer
	Answers prompt.AnswerSource
	Daemon  DaemonAPI
	Wigle   credential.WigleAPI
	Ports   adapter.PortChecker
	Events  *EventBus

	// Set by the environment stage
	OS       probe.OSInfo
	Packages adapter.PackageManager

	// Set by later stages
	Selection domain.Selection
	Readiness readiness.Result
	DaemonID  credential.Identity
	RemoteAPI domain.CredentialRecord
	Health    []domain.StageResult
}

// configurator returns a renderer for the run's configuration
func (rc *RunContext) configurator() *render.Configurator {
	return render.NewConfigurator(rc.Config)
}

// credentialStore returns the owner-only credential store
func (rc *RunContext) credentialStore() *credential.Store {
	return credential.NewStore(rc.Config.Layout.CredentialDir, rc.Owner)
}
