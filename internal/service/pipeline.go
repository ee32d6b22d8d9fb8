package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"cytbootstrap/internal/domain"
)

// Stage names
const (
	StageEnvironment      = "environment"
	StagePackageUpdate    = "package-update"
	StageDaemonInstall    = "daemon-install"
	StageDirectories      = "directories"
	StageServiceUnits     = "service-units"
	StagePermissions      = "permissions"
	StageInterfaces       = "interfaces"
	StageConfigSymlink    = "config-symlink"
	StagePythonEnv        = "python-env"
	StageDaemonActivation = "daemon-activation"
	StageReadiness        = "readiness"
	StageDaemonIdentity   = "daemon-identity"
	StageRemoteAPI        = "remote-api"
	StageLauncher         = "launcher"
	StageDesktop          = "desktop"
	StageHealth           = "health"
)

// StageFunc runs one stage
type StageFunc func(ctx context.Context, rc *RunContext) domain.StageResult

// Stage is a named step of the pipeline
type Stage struct {
	Name string
	Run  StageFunc
}

// fatalStages lists the stages whose failure aborts the run. Every other
// stage has a failure downgraded to a warning.
var fatalStages = map[string]bool{
	StageEnvironment:    true,
	StagePackageUpdate:  true,
	StageDaemonInstall:  true,
	StageDaemonIdentity: true,
}

// IsFatal reports whether a failure of the named stage aborts the run
func IsFatal(stage string) bool {
	return fatalStages[stage]
}

// DefaultStages returns the provisioning sequence in order
func DefaultStages() []Stage {
	return []Stage{
		{StageEnvironment, environmentStage},
		{StagePackageUpdate, packageUpdateStage},
		{StageDaemonInstall, daemonInstallStage},
		{StageDirectories, directoriesStage},
		{StageServiceUnits, serviceUnitsStage},
		{StagePermissions, permissionsStage},
		{StageInterfaces, interfacesStage},
		{StageConfigSymlink, configSymlinkStage},
		{StagePythonEnv, pythonEnvStage},
		{StageDaemonActivation, daemonActivationStage},
		{StageReadiness, readinessStage},
		{StageDaemonIdentity, daemonIdentityStage},
		{StageRemoteAPI, remoteAPIStage},
		{StageLauncher, launcherStage},
		{StageDesktop, desktopStage},
		{StageHealth, healthStage},
	}
}

// Pipeline runs stages in order under the fatal/recoverable policy
type Pipeline struct {
	stages []Stage
	now    func() time.Time
}

// NewPipeline creates a pipeline over stages; nil means DefaultStages
func NewPipeline(stages []Stage) *Pipeline {
	if stages == nil {
		stages = DefaultStages()
	}
	return &Pipeline{stages: stages, now: time.Now}
}

// Run executes every stage until one fails fatally. The returned report is
// complete either way; ExitCode is 1 when the run aborted.
func (p *Pipeline) Run(ctx context.Context, rc *RunContext) *domain.RunReport {
	report := &domain.RunReport{
		ID:        uuid.NewString(),
		Mode:      domain.RunProvision,
		StartedAt: p.now().UTC(),
	}
	run := newRecorder(ctx, rc, report)

	for _, stage := range p.stages {
		if err := ctx.Err(); err != nil {
			run.add(domain.Failed(stage.Name, fmt.Errorf("interrupted: %w", err)))
			break
		}

		rc.Events.Publish(Event{Type: EventStageStarted, RunID: report.ID, Stage: stage.Name})
		start := p.now()
		res := stage.Run(ctx, rc)
		res.Stage = stage.Name
		res.Duration = p.now().Sub(start)

		if res.IsFatal() && !IsFatal(stage.Name) {
			res.Outcome = domain.OutcomeWarned
		}
		run.add(res)

		if res.IsFatal() {
			rc.Logger.Error("aborting: fatal stage failed", "stage", stage.Name, "error", res.Message)
			break
		}
	}

	report.FinishedAt = p.now().UTC()
	if report.Aborted() {
		report.ExitCode = 1
	}
	run.finish()
	return report
}

// recorder logs, publishes, and persists results as they arrive
type recorder struct {
	ctx    context.Context
	rc     *RunContext
	report *domain.RunReport
}

func newRecorder(ctx context.Context, rc *RunContext, report *domain.RunReport) *recorder {
	r := &recorder{ctx: context.WithoutCancel(ctx), rc: rc, report: report}
	if rc.Ledger != nil {
		if err := rc.Ledger.BeginRun(r.ctx, report); err != nil {
			rc.Logger.Warn("run ledger unavailable", "error", err)
		}
	}
	rc.Logger.Info("run started", "run_id", report.ID, "mode", report.Mode)
	rc.Events.Publish(Event{Type: EventRunStarted, RunID: report.ID})
	return r
}

func (r *recorder) add(res domain.StageResult) {
	seq := len(r.report.Results)
	r.report.Add(res)

	logStage(r.rc, res)
	r.rc.Events.Publish(Event{Type: EventStageCompleted, RunID: r.report.ID, Stage: res.Stage, Result: &res})

	if r.rc.Ledger != nil {
		if err := r.rc.Ledger.RecordStage(r.ctx, r.report.ID, seq, res); err != nil {
			r.rc.Logger.Warn("could not record stage", "stage", res.Stage, "error", err)
		}
	}
}

func (r *recorder) finish() {
	if r.rc.Ledger != nil {
		if err := r.rc.Ledger.FinishRun(r.ctx, r.report); err != nil {
			r.rc.Logger.Warn("could not finish run record", "error", err)
		}
	}
	r.rc.Events.Publish(Event{Type: EventRunFinished, RunID: r.report.ID, Report: r.report})
	r.rc.Logger.Info("run finished",
		"run_id", r.report.ID,
		"mode", r.report.Mode,
		"ok", r.report.Count(domain.OutcomeOK),
		"warned", r.report.Count(domain.OutcomeWarned),
		"skipped", r.report.Count(domain.OutcomeSkipped),
		"exit_code", r.report.ExitCode,
	)
}

func logStage(rc *RunContext, res domain.StageResult) {
	attrs := []any{"stage", res.Stage, "outcome", res.Outcome, "message", res.Message, "duration", res.Duration.Round(time.Millisecond)}
	switch res.Outcome {
	case domain.OutcomeFailedFatal:
		rc.Logger.Error("stage failed", attrs...)
	case domain.OutcomeWarned:
		rc.Logger.Warn("stage warned", attrs...)
	default:
		rc.Logger.Info("stage complete", attrs...)
	}
}
