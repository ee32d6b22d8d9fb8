package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"cytbootstrap/internal/domain"
	"cytbootstrap/internal/render"
)

// Reset step names
const (
	ResetStopDaemon   = "reset/stop-daemon"
	ResetLinkJob      = "reset/link-job"
	ResetExclusion    = "reset/exclusion-rule"
	ResetDesktop      = "reset/desktop"
	ResetScripts      = "reset/scripts"
	ResetRuntime      = "reset/runtime"
	ResetCaptureFiles = "reset/capture-files"
)

// rotatedCapture matches daemon-rotated capture files
var rotatedCapture = regexp.MustCompile(`\.kismet(-journal|\.\d+)$`)

// ResetManager tears down what the pipeline generated. The log directory,
// the run ledger, and everything under the credential directory survive.
type ResetManager struct {
	now func() time.Time
}

// NewResetManager creates a reset manager
func NewResetManager() *ResetManager {
	return &ResetManager{now: time.Now}
}

// Run executes every reset step. Steps never abort the sequence; a step
// that could not finish is reported as a warning.
func (m *ResetManager) Run(ctx context.Context, rc *RunContext) *domain.RunReport {
	report := &domain.RunReport{
		ID:        uuid.NewString(),
		Mode:      domain.RunReset,
		StartedAt: m.now().UTC(),
	}
	run := newRecorder(ctx, rc, report)

	steps := []Stage{
		{ResetStopDaemon, stopDaemonStep},
		{ResetLinkJob, removeLinkJobStep},
		{ResetExclusion, removeExclusionStep},
		{ResetDesktop, removeDesktopStep},
		{ResetScripts, removeScriptsStep},
		{ResetRuntime, removeRuntimeStep},
		{ResetCaptureFiles, pruneCaptureFilesStep},
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			run.add(domain.Warned(step.Name, "interrupted: %v", err))
			break
		}
		start := m.now()
		res := step.Run(ctx, rc)
		res.Stage = step.Name
		res.Duration = m.now().Sub(start)
		if res.IsFatal() {
			res.Outcome = domain.OutcomeWarned
		}
		run.add(res)
	}

	report.FinishedAt = m.now().UTC()
	run.finish()
	return report
}

func stopDaemonStep(ctx context.Context, rc *RunContext) domain.StageResult {
	svc := rc.Config.Settings.Daemon.Service
	if !rc.Systemd.Available() {
		return domain.Skipped(ResetStopDaemon, "systemctl not available")
	}
	if !rc.Systemd.IsActive(ctx, svc) {
		return domain.Skipped(ResetStopDaemon, "%s not running", svc)
	}
	if err := rc.Systemd.Stop(ctx, svc); err != nil {
		return domain.Warned(ResetStopDaemon, "stop %s: %v", svc, err)
	}
	return domain.OK(ResetStopDaemon, "%s stopped", svc)
}

func removeLinkJobStep(ctx context.Context, rc *RunContext) domain.StageResult {
	systemdDir := rc.Config.Settings.Install.SystemdDir
	var warnings []string

	if rc.Systemd.Available() {
		if err := rc.Systemd.DisableNow(ctx, render.LinkTimerName); err != nil {
			warnings = append(warnings, fmt.Sprintf("disable %s: %v", render.LinkTimerName, err))
		}
	}

	removed, err := removeAll(ctx, rc,
		filepath.Join(systemdDir, render.LinkTimerName),
		filepath.Join(systemdDir, render.LinkServiceName),
	)
	if err != nil {
		warnings = append(warnings, err.Error())
	}

	if removed > 0 && rc.Systemd.Available() {
		if err := rc.Systemd.DaemonReload(ctx); err != nil {
			warnings = append(warnings, fmt.Sprintf("daemon-reload: %v", err))
		}
	}

	if len(warnings) > 0 {
		return domain.Warned(ResetLinkJob, "removed %d unit file(s); %s", removed, strings.Join(warnings, "; "))
	}
	return domain.OK(ResetLinkJob, "removed %d unit file(s)", removed)
}

func removeExclusionStep(ctx context.Context, rc *RunContext) domain.StageResult {
	removed, err := removeArtifact(ctx, rc, rc.configurator().ExclusionPath())
	if err != nil {
		return domain.Warned(ResetExclusion, "%v", err)
	}
	if !removed {
		return domain.Skipped(ResetExclusion, "no exclusion rule installed")
	}
	if err := reloadNetworkManager(ctx, rc); err != nil {
		return domain.Warned(ResetExclusion, "rule removed; NetworkManager reload failed: %v", err)
	}
	return domain.OK(ResetExclusion, "capture interface returned to NetworkManager")
}

func removeDesktopStep(ctx context.Context, rc *RunContext) domain.StageResult {
	in := rc.Config.Settings.Install
	removed, err := removeAll(ctx, rc,
		filepath.Join(in.ApplicationsDir, render.DesktopFileName),
		filepath.Join(in.AutostartDir, render.DesktopFileName),
	)
	if err != nil {
		return domain.Warned(ResetDesktop, "%v", err)
	}
	return domain.OK(ResetDesktop, "removed %d desktop entries", removed)
}

func removeScriptsStep(ctx context.Context, rc *RunContext) domain.StageResult {
	l := rc.Config.Layout
	removed, err := removeAll(ctx, rc, l.LinkScript, l.EnvHelper, l.Launcher)
	if err != nil {
		return domain.Warned(ResetScripts, "%v", err)
	}

	// scripts/ goes only when nothing else lives there
	if err := os.Remove(l.ScriptsDir); err != nil && !errors.Is(err, fs.ErrNotExist) {
		rc.Logger.Debug("scripts directory kept", "path", l.ScriptsDir, "error", err)
	}
	return domain.OK(ResetScripts, "removed %d generated script(s)", removed)
}

func removeRuntimeStep(ctx context.Context, rc *RunContext) domain.StageResult {
	l := rc.Config.Layout
	var notes []string

	if _, err := os.Stat(l.VenvDir); err == nil {
		if err := os.RemoveAll(l.VenvDir); err != nil {
			return domain.Warned(ResetRuntime, "remove %s: %v", l.VenvDir, err)
		}
		notes = append(notes, filepath.Base(l.VenvDir))
	}

	removed, err := removeAll(ctx, rc, l.LatestLink, rc.Config.Settings.Install.ShellSnippetPath)
	if err != nil {
		return domain.Warned(ResetRuntime, "%v", err)
	}
	if removed > 0 {
		notes = append(notes, fmt.Sprintf("%d link/snippet file(s)", removed))
	}

	if len(notes) == 0 {
		return domain.Skipped(ResetRuntime, "nothing to remove")
	}
	return domain.OK(ResetRuntime, "removed %s", strings.Join(notes, ", "))
}

func pruneCaptureFilesStep(ctx context.Context, rc *RunContext) domain.StageResult {
	logDir := rc.Config.Layout.LogDir
	entries, err := os.ReadDir(logDir)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.Skipped(ResetCaptureFiles, "%s does not exist", logDir)
	}
	if err != nil {
		return domain.Warned(ResetCaptureFiles, "list %s: %v", logDir, err)
	}

	var paths []string
	for _, e := range entries {
		if e.Type().IsRegular() && rotatedCapture.MatchString(e.Name()) {
			paths = append(paths, filepath.Join(logDir, e.Name()))
		}
	}
	removed, err := removeAll(ctx, rc, paths...)
	if err != nil {
		return domain.Warned(ResetCaptureFiles, "%v", err)
	}
	return domain.OK(ResetCaptureFiles, "pruned %d rotated capture file(s)", removed)
}

// removeAll removes each path, continuing past failures, and returns how
// many existed
func removeAll(ctx context.Context, rc *RunContext, paths ...string) (int, error) {
	removed := 0
	var errs []error
	for _, p := range paths {
		ok, err := removeArtifact(ctx, rc, p)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			removed++
		}
	}
	return removed, errors.Join(errs...)
}
