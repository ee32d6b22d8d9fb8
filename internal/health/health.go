// Package health runs the post-provisioning checks. Every check yields a
// StageResult; failures are warnings, never fatal.
package health

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"cytbootstrap/internal/adapter"
	"cytbootstrap/internal/artifact"
	"cytbootstrap/internal/codec"
	"cytbootstrap/internal/domain"
)

// Check names
const (
	CheckDaemonPort    = "health/daemon-port"
	CheckLogsWritable  = "health/logs-writable"
	CheckCredentialDir = "health/credential-dir"
	CheckCaptureSource = "health/capture-source"
	CheckEnvHelper     = "health/env-helper"
)

// Target is what the reporter inspects
type Target struct {
	Host           string
	Port           int
	LogDir         string
	CredentialDir  string
	SiteConfigPath string
	// EnvHelper is the generated environment file, expected to export
	// CYT_ROOT=Root
	EnvHelper string
	Root      string
}

// Reporter runs the health checks
type Reporter struct {
	ports  adapter.PortChecker
	logger *slog.Logger
}

// NewReporter creates a reporter using ports for the listening check
func NewReporter(ports adapter.PortChecker, logger *slog.Logger) *Reporter {
	return &Reporter{ports: ports, logger: logger}
}

// Run executes every check in a fixed order
func (r *Reporter) Run(ctx context.Context, t Target) []domain.StageResult {
	results := []domain.StageResult{
		r.daemonPort(ctx, t),
		logsWritable(t.LogDir),
		credentialDir(t.CredentialDir),
		captureSource(t.SiteConfigPath),
		envHelper(t.EnvHelper, t.Root),
	}
	for _, res := range results {
		r.logger.Debug("health check", "check", res.Stage, "outcome", res.Outcome, "message", res.Message)
	}
	return results
}

func (r *Reporter) daemonPort(ctx context.Context, t Target) domain.StageResult {
	host := t.Host
	if host == "" {
		host = "127.0.0.1"
	}
	open, err := r.ports.IsListening(ctx, host, t.Port)
	if err != nil {
		return domain.Warned(CheckDaemonPort, "%s check of %s:%d failed: %v", r.ports.Name(), host, t.Port, err)
	}
	if !open {
		return domain.Warned(CheckDaemonPort, "nothing listening on %s:%d (%s)", host, t.Port, r.ports.Name())
	}
	return domain.OK(CheckDaemonPort, "listening on %s:%d (%s)", host, t.Port, r.ports.Name())
}

// logsWritable creates and removes a probe file
func logsWritable(dir string) domain.StageResult {
	f, err := os.CreateTemp(dir, ".cyt-health-*")
	if err != nil {
		return domain.Warned(CheckLogsWritable, "%s is not writable: %v", dir, err)
	}
	name := f.Name()
	f.Close()
	if err := os.Remove(name); err != nil {
		return domain.Warned(CheckLogsWritable, "could not remove probe file %s: %v", name, err)
	}
	return domain.OK(CheckLogsWritable, "%s is writable", dir)
}

func credentialDir(dir string) domain.StageResult {
	ok, perm, err := artifact.ModeIsOwnerOnly(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.Warned(CheckCredentialDir, "%s does not exist", dir)
	}
	if err != nil {
		return domain.Warned(CheckCredentialDir, "stat %s: %v", dir, err)
	}
	if !ok {
		return domain.Warned(CheckCredentialDir, "%s has mode %04o, want 0700", dir, perm)
	}
	return domain.OK(CheckCredentialDir, "%s is owner-only (%04o)", dir, perm)
}

func captureSource(path string) domain.StageResult {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.Warned(CheckCaptureSource, "%s not found; the daemon has no capture source", path)
	}
	if err != nil {
		return domain.Warned(CheckCaptureSource, "open %s: %v", path, err)
	}
	defer f.Close()

	doc, err := codec.NewFlatCodec().Decode(f)
	if err != nil {
		return domain.Warned(CheckCaptureSource, "%v", err)
	}
	sources := doc.Get("", "source")
	if len(sources) == 0 {
		return domain.Warned(CheckCaptureSource, "no source= line in %s; attach a monitor-capable adapter and re-run", filepath.Base(path))
	}
	names := make([]string, 0, len(sources))
	for _, s := range sources {
		iface, _, _ := strings.Cut(s, ":")
		names = append(names, iface)
	}
	return domain.OK(CheckCaptureSource, "capture source %s", strings.Join(names, ", "))
}

// envHelper checks that the generated environment file parses, points at
// the project root and is readable by its owner only
func envHelper(path, root string) domain.StageResult {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.Warned(CheckEnvHelper, "%s not found; the GUI launcher has no environment", path)
	}
	if err != nil {
		return domain.Warned(CheckEnvHelper, "open %s: %v", path, err)
	}
	defer f.Close()

	vars, err := codec.NewEnvCodec().Parse(f)
	if err != nil {
		return domain.Warned(CheckEnvHelper, "%s: %v", filepath.Base(path), err)
	}
	if got := vars["CYT_ROOT"]; got != root {
		return domain.Warned(CheckEnvHelper, "%s exports CYT_ROOT=%q, want %q", filepath.Base(path), got, root)
	}
	ok, perm, err := artifact.ModeIsOwnerOnly(path)
	if err != nil {
		return domain.Warned(CheckEnvHelper, "stat %s: %v", path, err)
	}
	if !ok {
		return domain.Warned(CheckEnvHelper, "%s has mode %04o, want 0600", path, perm)
	}
	return domain.OK(CheckEnvHelper, "%s exports %d variables", filepath.Base(path), len(vars))
}

// Summarize folds check results into one line for the pipeline stage
func Summarize(results []domain.StageResult) (int, string) {
	warned := 0
	var problems []string
	for _, res := range results {
		if res.Outcome == domain.OutcomeWarned {
			warned++
			problems = append(problems, res.Message)
		}
	}
	if warned == 0 {
		return 0, fmt.Sprintf("%d checks passed", len(results))
	}
	return warned, fmt.Sprintf("%d of %d checks warned: %s", warned, len(results), strings.Join(problems, "; "))
}
