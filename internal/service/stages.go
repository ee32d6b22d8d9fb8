package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"cytbootstrap/internal/adapter"
	"cytbootstrap/internal/artifact"
	"cytbootstrap/internal/core/probe"
	"cytbootstrap/internal/credential"
	"cytbootstrap/internal/domain"
	"cytbootstrap/internal/health"
	"cytbootstrap/internal/readiness"
	"cytbootstrap/internal/render"
)

func environmentStage(ctx context.Context, rc *RunContext) domain.StageResult {
	if !rc.Identity.IsRoot() {
		return domain.Failed(StageEnvironment, fmt.Errorf("%w: must run as root (try: sudo %s)", probe.ErrUnsupportedPlatform, os.Args[0]))
	}

	info, err := probe.DetectOS(rc.EtcRoot)
	if err != nil {
		return domain.Failed(StageEnvironment, err)
	}
	rc.OS = info

	evidence := probe.NewEvidenceSet()
	evidence.AddAll(info.Evidence())
	evidence.AddAll(rc.Identity.Evidence())
	evidence.Log(rc.Logger)

	if !info.Supported() {
		return domain.Failed(StageEnvironment, fmt.Errorf("%w: %s (ID=%s ID_LIKE=%s)", probe.ErrUnsupportedPlatform, info.Name, info.ID, info.IDLike))
	}

	pm, err := adapter.SelectPackageManager(string(info.Family), rc.Runner)
	if err != nil {
		return domain.Failed(StageEnvironment, err)
	}
	rc.Packages = pm

	if !rc.Systemd.Available() {
		return domain.Failed(StageEnvironment, fmt.Errorf("%w: systemctl not found", probe.ErrUnsupportedPlatform))
	}

	return domain.OK(StageEnvironment, "%s (%s family) via %s", info.Name, info.Family, pm.Name())
}

func packageUpdateStage(ctx context.Context, rc *RunContext) domain.StageResult {
	if rc.Config.SkipUpdate {
		return domain.Skipped(StagePackageUpdate, "--skip-update given")
	}
	if err := rc.Packages.Update(ctx); err != nil {
		return domain.Failed(StagePackageUpdate, err)
	}
	return domain.OK(StagePackageUpdate, "system packages updated with %s", rc.Packages.Name())
}

func daemonInstallStage(ctx context.Context, rc *RunContext) domain.StageResult {
	d := rc.Config.Settings.Daemon
	if path, err := rc.Runner.LookPath(d.Binary); err == nil {
		return domain.OK(StageDaemonInstall, "%s already installed at %s", d.Binary, path)
	}

	if err := rc.Packages.Install(ctx, d.Package); err != nil {
		return domain.Failed(StageDaemonInstall, err)
	}
	path, err := rc.Runner.LookPath(d.Binary)
	if err != nil {
		return domain.Failed(StageDaemonInstall, fmt.Errorf("installed %s but %s is still missing: %w", d.Package, d.Binary, err))
	}
	return domain.OK(StageDaemonInstall, "installed %s (%s)", d.Package, path)
}

func directoriesStage(ctx context.Context, rc *RunContext) domain.StageResult {
	l := rc.Config.Layout

	if err := artifact.EnsureOwnerOnlyDir(l.CredentialDir); err != nil {
		return domain.Failed(StageDirectories, err)
	}
	dirs := []struct {
		path string
		mode os.FileMode
	}{
		{l.LogDir, artifact.SharedLogMode},
		{l.ScriptsDir, 0o755},
	}
	for _, d := range dirs {
		if err := artifact.EnsureDir(d.path, d.mode); err != nil {
			return domain.Failed(StageDirectories, err)
		}
	}
	for _, p := range []string{l.CredentialDir, l.LogDir, l.ScriptsDir} {
		if err := rc.Owner.Apply(p); err != nil {
			return domain.Failed(StageDirectories, err)
		}
	}

	return domain.OK(StageDirectories, "logs/, secure_credentials/, scripts/ ready under %s", l.Root)
}

func serviceUnitsStage(ctx context.Context, rc *RunContext) domain.StageResult {
	units, err := rc.configurator().LinkJob()
	if err != nil {
		return domain.Failed(StageServiceUnits, err)
	}

	w := newUnitWriter(rc)
	for _, u := range units {
		if err := w.writeWithParent(ctx, u); err != nil {
			return domain.Failed(StageServiceUnits, err)
		}
	}
	if err := rc.Owner.Apply(rc.Config.Layout.LinkScript); err != nil {
		return domain.Failed(StageServiceUnits, err)
	}

	if w.systemdChanged {
		if err := rc.Systemd.DaemonReload(ctx); err != nil {
			return domain.Failed(StageServiceUnits, err)
		}
	}
	if err := rc.Systemd.EnableNow(ctx, render.LinkTimerName); err != nil {
		return domain.Failed(StageServiceUnits, err)
	}

	return w.result(StageServiceUnits, "%s enabled", render.LinkTimerName)
}

func permissionsStage(ctx context.Context, rc *RunContext) domain.StageResult {
	l := rc.Config.Layout
	group := rc.Config.Settings.Daemon.Group

	var warnings []string

	shared, err := artifact.ShareWithGroup(l.LogDir, group)
	if err != nil {
		return domain.Failed(StagePermissions, err)
	}
	if !shared {
		warnings = append(warnings, fmt.Sprintf("group %q not found; %s is setgid but not shared with the daemon", group, l.LogDir))
	}

	if err := artifact.EnsureOwnerOnlyDir(l.CredentialDir); err != nil {
		return domain.Failed(StagePermissions, err)
	}
	fixed, err := tightenCredentialFiles(l.CredentialDir)
	if err != nil {
		return domain.Failed(StagePermissions, err)
	}
	if fixed > 0 {
		warnings = append(warnings, fmt.Sprintf("tightened %d credential file(s) to 0600", fixed))
	}

	if len(warnings) > 0 {
		return domain.Warned(StagePermissions, "%s", strings.Join(warnings, "; "))
	}
	return domain.OK(StagePermissions, "logs/ shared with %s, secure_credentials/ owner-only", group)
}

// tightenCredentialFiles resets any regular file in dir to 0600 and
// returns how many needed it
func tightenCredentialFiles(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("list %s: %w", dir, err)
	}
	fixed := 0
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		ok, _, err := artifact.ModeIsOwnerOnly(path)
		if err != nil {
			return fixed, err
		}
		if ok {
			continue
		}
		if err := os.Chmod(path, domain.OwnerOnlyFileMode); err != nil {
			return fixed, fmt.Errorf("chmod %s: %w", path, err)
		}
		fixed++
	}
	return fixed, nil
}

func interfacesStage(ctx context.Context, rc *RunContext) domain.StageResult {
	ifaces, evidence, err := rc.Prober.Probe(ctx)
	if err != nil {
		return domain.Failed(StageInterfaces, err)
	}
	evidence.Log(rc.Logger)

	sel := probe.SelectCapture(ifaces)
	rc.Selection = sel
	for _, iface := range sel.Interfaces {
		rc.Logger.Info("wireless interface",
			"name", iface.Name,
			"bus", iface.Bus,
			"monitor", iface.MonitorCapable,
			"driver", iface.Driver,
			"role", iface.Role,
		)
	}

	c := rc.configurator()
	w := newUnitWriter(rc)

	site, err := c.SiteOverride(sel)
	if err != nil {
		return domain.Failed(StageInterfaces, err)
	}
	if err := w.writeWithParent(ctx, site); err != nil {
		return domain.Failed(StageInterfaces, err)
	}

	rule, ok, err := c.ExclusionRule(sel)
	if err != nil {
		return domain.Failed(StageInterfaces, err)
	}
	ruleChanged := false
	if ok {
		if err := w.writeWithParent(ctx, rule); err != nil {
			return domain.Failed(StageInterfaces, err)
		}
		ruleChanged = w.changed[render.IDExclusion]
	} else {
		removed, err := removeArtifact(ctx, rc, c.ExclusionPath())
		if err != nil {
			return domain.Failed(StageInterfaces, err)
		}
		ruleChanged = removed
	}
	if ruleChanged {
		if err := reloadNetworkManager(ctx, rc); err != nil {
			w.warn("NetworkManager reload failed: %v", err)
		}
	}

	switch {
	case len(ifaces) == 0:
		w.warn("no wireless interfaces found; the daemon will start without a capture source")
	case !sel.HasCapture():
		w.warn("no monitor-capable interface among %d wireless interface(s); the daemon will start without a capture source", len(ifaces))
	}

	if !sel.HasCapture() {
		return w.result(StageInterfaces, "no capture interface selected")
	}
	if sel.ExclusionTarget() == "" {
		return w.result(StageInterfaces, "capture on %s (onboard, left managed)", sel.Capture)
	}
	return w.result(StageInterfaces, "capture on %s, %s excluded from NetworkManager, onboard %q protected", sel.Capture, sel.ExclusionTarget(), sel.OnboardProtect)
}

func reloadNetworkManager(ctx context.Context, rc *RunContext) error {
	if _, err := rc.Runner.LookPath("nmcli"); err != nil {
		return nil
	}
	return rc.Runner.Run(ctx, "nmcli", "general", "reload")
}

func configSymlinkStage(ctx context.Context, rc *RunContext) domain.StageResult {
	target := rc.Config.Settings.Install.ExternalConfig
	link := rc.Config.Layout.ConfigLink
	if target == "" {
		return domain.Skipped(StageConfigSymlink, "no external config configured")
	}
	if _, err := os.Stat(target); err != nil {
		return domain.Warned(StageConfigSymlink, "external config %s not found", target)
	}

	current, err := os.Readlink(link)
	switch {
	case err == nil && current == target:
		return domain.OK(StageConfigSymlink, "%s already points at %s", filepath.Base(link), target)
	case err == nil:
		if err := os.Remove(link); err != nil {
			return domain.Failed(StageConfigSymlink, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return domain.Warned(StageConfigSymlink, "%s exists and is not a symlink; leaving it alone", link)
	}

	if err := os.Symlink(target, link); err != nil {
		return domain.Failed(StageConfigSymlink, err)
	}
	if err := rc.Owner.Apply(link); err != nil {
		return domain.Failed(StageConfigSymlink, err)
	}
	return domain.OK(StageConfigSymlink, "%s -> %s", filepath.Base(link), target)
}

func pythonEnvStage(ctx context.Context, rc *RunContext) domain.StageResult {
	l := rc.Config.Layout
	in := rc.Config.Settings.Install
	python := filepath.Join(l.VenvDir, "bin", "python3")

	var notes []string
	if _, err := os.Stat(python); err != nil {
		if err := rc.Runner.Run(ctx, in.Python, "-m", "venv", l.VenvDir); err != nil {
			return domain.Failed(StagePythonEnv, err)
		}
		notes = append(notes, "created "+filepath.Base(l.VenvDir))
	} else {
		notes = append(notes, filepath.Base(l.VenvDir)+" present")
	}

	reqs := in.Requirements
	if !filepath.IsAbs(reqs) {
		reqs = filepath.Join(l.Root, reqs)
	}
	if _, err := os.Stat(reqs); err == nil {
		if err := rc.Runner.Run(ctx, python, "-m", "pip", "install", "--quiet", "-r", reqs); err != nil {
			return domain.Failed(StagePythonEnv, err)
		}
		notes = append(notes, "requirements installed")
	}
	if err := applyTree(rc.Owner, l.VenvDir); err != nil {
		return domain.Failed(StagePythonEnv, err)
	}

	want, err := rc.Answers.Confirm(ctx, "python.shell_snippet",
		"Activate the virtualenv automatically in shells started inside the project?", true)
	if err != nil {
		return domain.Failed(StagePythonEnv, err)
	}
	if !want {
		return domain.OK(StagePythonEnv, "%s; shell auto-activation declined", strings.Join(notes, ", "))
	}

	w := newUnitWriter(rc)
	snippet := rc.configurator().ShellSnippet()
	if err := w.writeWithParent(ctx, snippet); err != nil {
		w.warn("shell auto-activation not installed: %v", err)
	} else if err := rc.Owner.Apply(snippet.Path); err != nil {
		w.warn("shell snippet ownership: %v", err)
	}
	return w.result(StagePythonEnv, "%s", strings.Join(notes, ", "))
}

// applyTree hands every entry under root to owner
func applyTree(owner *artifact.Owner, root string) error {
	if owner == nil {
		return nil
	}
	return filepath.WalkDir(root, func(path string, _ fs.DirEntry, err error) error {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		return owner.Apply(path)
	})
}

func daemonActivationStage(ctx context.Context, rc *RunContext) domain.StageResult {
	svc := rc.Config.Settings.Daemon.Service
	if err := rc.Systemd.EnableNow(ctx, svc); err != nil {
		return domain.Failed(StageDaemonActivation, err)
	}
	return domain.OK(StageDaemonActivation, "%s enabled and started", svc)
}

func readinessStage(ctx context.Context, rc *RunContext) domain.StageResult {
	r := rc.Config.Settings.Readiness
	waiter := readiness.NewWaiter(rc.Daemon.IndexStatus, r.Attempts, r.Interval.Duration(), rc.Logger)

	res, err := waiter.Wait(ctx)
	rc.Readiness = res
	if err != nil {
		return domain.Failed(StageReadiness, err)
	}
	if !res.Ready {
		return domain.Warned(StageReadiness, "daemon not answering after %d attempts (last status %d); %s", res.Attempts, res.LastStatus, readiness.Hint)
	}
	return domain.OK(StageReadiness, "daemon answered %d after %d attempt(s)", res.LastStatus, res.Attempts)
}

func daemonIdentityStage(ctx context.Context, rc *RunContext) domain.StageResult {
	v := credential.NewIdentityValidator(rc.credentialStore(), rc.Daemon, rc.Answers, rc.Logger,
		credential.WithAssumeYes(rc.Config.AssumeYes),
		credential.WithWebUI(rc.Config.Settings.Daemon.BaseURL),
	)
	id, err := v.Verify(ctx)
	rc.DaemonID = id
	if err != nil {
		return domain.Failed(StageDaemonIdentity, err)
	}
	return domain.OK(StageDaemonIdentity, "%s", id.Record.Detail)
}

func remoteAPIStage(ctx context.Context, rc *RunContext) domain.StageResult {
	v := credential.NewWigleValidator(rc.credentialStore(), rc.Wigle, rc.Answers, rc.Logger)
	rec, err := v.Validate(ctx)
	rc.RemoteAPI = rec
	if err != nil {
		return domain.Failed(StageRemoteAPI, err)
	}
	if !rec.Valid() {
		return domain.Warned(StageRemoteAPI, "%s", rec.Detail)
	}
	return domain.OK(StageRemoteAPI, "WiGLE token valid")
}

func launcherStage(ctx context.Context, rc *RunContext) domain.StageResult {
	c := rc.configurator()
	env, err := c.EnvHelper(render.EnvInputs{APIKey: rc.DaemonID.Key})
	if err != nil {
		return domain.Failed(StageLauncher, err)
	}

	w := newUnitWriter(rc)
	for _, u := range []domain.ServiceUnit{env, c.Launcher()} {
		if err := w.write(ctx, u); err != nil {
			return domain.Failed(StageLauncher, err)
		}
		if err := rc.Owner.Apply(u.Path); err != nil {
			return domain.Failed(StageLauncher, err)
		}
	}
	return w.result(StageLauncher, "%s and %s ready", filepath.Base(env.Path), filepath.Base(rc.Config.Layout.Launcher))
}

func desktopStage(ctx context.Context, rc *RunContext) domain.StageResult {
	units, err := rc.configurator().DesktopEntries()
	if err != nil {
		return domain.Failed(StageDesktop, err)
	}

	w := newUnitWriter(rc)
	for _, u := range units {
		if err := w.writeWithParent(ctx, u); err != nil {
			return domain.Failed(StageDesktop, err)
		}
		if err := rc.Owner.Apply(u.Path); err != nil {
			return domain.Failed(StageDesktop, err)
		}
	}

	url := rc.Config.Settings.Daemon.BaseURL
	switch {
	case rc.Config.NoBrowser:
		rc.Logger.Info("browser auto-open skipped", "url", url)
	default:
		if err := openBrowser(ctx, rc, url); err != nil {
			w.warn("could not open %s: %v", url, err)
		}
	}
	return w.result(StageDesktop, "application and autostart entries installed")
}

// openBrowser runs xdg-open as the invoking user when under sudo
func openBrowser(ctx context.Context, rc *RunContext, url string) error {
	if _, err := rc.Runner.LookPath("xdg-open"); err != nil {
		return err
	}
	if rc.Identity.SudoUser != "" {
		return rc.Runner.Run(ctx, "sudo", "-u", rc.Identity.SudoUser, "xdg-open", url)
	}
	return rc.Runner.Run(ctx, "xdg-open", url)
}

func healthStage(ctx context.Context, rc *RunContext) domain.StageResult {
	l := rc.Config.Layout
	d := rc.Config.Settings.Daemon

	results := health.NewReporter(rc.Ports, rc.Logger).Run(ctx, health.Target{
		Host:           "127.0.0.1",
		Port:           d.Port,
		LogDir:         l.LogDir,
		CredentialDir:  l.CredentialDir,
		SiteConfigPath: d.SiteConfigPath,
		EnvHelper:      l.EnvHelper,
		Root:           l.Root,
	})
	rc.Health = results
	for _, r := range results {
		logStage(rc, r)
	}

	warned, summary := health.Summarize(results)
	if warned > 0 {
		return domain.Warned(StageHealth, "%s", summary)
	}
	return domain.OK(StageHealth, "%s", summary)
}
