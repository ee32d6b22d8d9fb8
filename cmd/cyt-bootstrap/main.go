// Command cyt-bootstrap provisions a host for Chasing Your Tail and the
// Kismet capture daemon. Running it again converges the host to the same
// state; --reset tears the generated pieces back down.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"cytbootstrap/internal/adapter"
	"cytbootstrap/internal/artifact"
	"cytbootstrap/internal/config"
	"cytbootstrap/internal/core/probe"
	"cytbootstrap/internal/domain"
	"cytbootstrap/internal/logging"
	"cytbootstrap/internal/prompt"
	"cytbootstrap/internal/repository"
	"cytbootstrap/internal/repository/sqlite"
	"cytbootstrap/internal/service"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flags, err := config.ParseFlags(args, os.Stderr)
	if errors.Is(err, pflag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "cyt-bootstrap: %v\n", err)
		return 2
	}

	identity := probe.DetectIdentity()
	cfg, err := config.FromFlags(flags, identity.Home)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cyt-bootstrap: %v\n", err)
		return 1
	}

	logs := logging.Setup(logging.Options{
		Console: os.Stderr,
		Quiet:   cfg.Quiet,
		LogDir:  cfg.Layout.LogDir,
	})
	defer logs.Close()
	logger := logs.Logger
	if cfg.SettingsPath != "" {
		logger.Info("settings loaded", "path", cfg.SettingsPath)
	}
	if logs.LogPath != "" {
		logger.Info("run log", "path", logs.LogPath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var owner *artifact.Owner
	if identity.SudoUser != "" {
		owner, err = artifact.LookupOwner(identity.SudoUser)
		if err != nil {
			logger.Warn("generated files will stay owned by root", "error", err)
		}
	}

	runner := adapter.NewExecRunner(logger, logs.CommandOutput(io.Discard))
	d := cfg.Settings.Daemon

	rc := &service.RunContext{
		Config:   cfg,
		Logger:   logger,
		Identity: identity,
		Owner:    owner,
		EtcRoot:  "/etc",
		Runner:   runner,
		Systemd:  adapter.NewSystemctl(runner),
		Prober:   probe.NewProber("/sys", runner),
		Daemon:   adapter.NewKismetClient(d.IndexURL(), d.StatusURL(), d.LoginURL(), d.RequestTimeout.Duration()),
		Wigle:    adapter.NewWigleClient(cfg.Settings.RemoteAPI.ProfileURL, cfg.Settings.RemoteAPI.Timeout.Duration()),
		Ports:    adapter.SelectPortChecker(ctx, 5*time.Second),
		Answers:  answerSource(cfg),
		Events:   service.NewEventBus(),
	}

	ledger, err := openLedger(cfg.Layout)
	if err != nil {
		logger.Warn("run ledger unavailable; edits to generated files will not be detected", "error", err)
		rc.Writer = artifact.NewWriter(nil)
	} else {
		defer ledger.Close()
		rc.Ledger = ledger
		rc.Writer = artifact.NewWriter(ledger)
	}

	previous := previousRun(ctx, rc.Ledger)
	if previous != nil {
		logger.Info("previous run", "id", previous.ID, "mode", previous.Mode, "exit_code", previous.ExitCode)
	}

	events := make(chan service.Event, 64)
	rc.Events.Subscribe(events)
	done := watchProgress(logger, events)

	var report *domain.RunReport
	if cfg.Reset {
		report = service.NewResetManager().Run(ctx, rc)
	} else {
		report = service.NewPipeline(nil).Run(ctx, rc)
	}
	close(events)
	<-done

	printSummary(io.MultiWriter(os.Stdout, logs.CommandOutput(io.Discard)), report, previous)
	return report.ExitCode
}

// answerSource picks where interactive answers come from. Environment
// variables always win; --yes swaps the terminal for built-in defaults.
func answerSource(cfg config.ProvisioningConfig) prompt.AnswerSource {
	var inner prompt.AnswerSource = prompt.NewConsole(os.Stderr)
	if cfg.AssumeYes {
		inner = prompt.Defaults{}
	}
	return prompt.WithEnv(inner, os.Getenv)
}

func openLedger(l config.Layout) (*sqlite.Repository, error) {
	if err := os.MkdirAll(l.LogDir, 0o775); err != nil {
		return nil, err
	}
	return sqlite.New(l.LedgerPath)
}

// previousRun returns the newest run in the ledger, or nil when there is
// none to show
func previousRun(ctx context.Context, ledger repository.Ledger) *domain.RunReport {
	if ledger == nil {
		return nil
	}
	runs, err := ledger.RecentRuns(ctx, 1)
	if err != nil || len(runs) == 0 {
		return nil
	}
	return &runs[0]
}

// watchProgress logs stage completions to the run log until events is
// closed. The returned channel closes once every event has been drained.
func watchProgress(logger *slog.Logger, events <-chan service.Event) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			if ev.Type == service.EventStageCompleted && ev.Result != nil {
				logger.Debug("stage completed", "run", ev.RunID, "stage", ev.Stage, "outcome", ev.Result.Outcome)
			}
		}
	}()
	return done
}

func printSummary(w io.Writer, report, previous *domain.RunReport) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "\n%s run %s\n", report.Mode, report.ID)
	if previous != nil {
		fmt.Fprintf(tw, "  previous\t%s run %s\t%s\n", previous.Mode, previous.ID, describeFinish(previous))
	}
	for _, r := range report.Results {
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", r.Stage, r.Outcome, r.Message)
	}
	tw.Flush()

	switch {
	case report.ExitCode != 0:
		fmt.Fprintln(w, "\naborted; fix the failed stage and run again")
	case report.Count(domain.OutcomeWarned) > 0:
		fmt.Fprintf(w, "\ncompleted with %d warning(s)\n", report.Count(domain.OutcomeWarned))
	default:
		fmt.Fprintln(w, "\ncompleted")
	}
}

func describeFinish(r *domain.RunReport) string {
	if r.FinishedAt.IsZero() {
		return "did not finish"
	}
	return fmt.Sprintf("exit %d at %s", r.ExitCode, r.FinishedAt.Local().Format(time.RFC3339))
}
