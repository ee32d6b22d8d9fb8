// Package readiness polls the capture daemon until its web endpoint answers.
package readiness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Checker performs one probe of the daemon and returns the HTTP status.
// adapter.KismetClient.IndexStatus satisfies it.
type Checker func(ctx context.Context) (int, error)

// Result reports the outcome of a wait
type Result struct {
	Ready      bool
	Attempts   int
	LastStatus int
	LastErr    error
	Elapsed    time.Duration
}

// Hint is shown when the ceiling is reached
const Hint = "check the daemon with: systemctl status kismet"

// errNotUp marks a probe that reached the daemon but got an unexpected status
var errNotUp = errors.New("daemon not ready")

// Up reports whether a status code means the daemon is serving. 302 and 401
// count because an unconfigured daemon redirects or challenges for login.
func Up(status int) bool {
	switch status {
	case http.StatusOK, http.StatusFound, http.StatusUnauthorized:
		return true
	}
	return false
}

// Waiter polls a Checker at a fixed interval up to an attempt ceiling
type Waiter struct {
	check    Checker
	attempts int
	interval time.Duration
	logger   *slog.Logger
}

// NewWaiter creates a waiter. attempts below 1 is treated as 1.
func NewWaiter(check Checker, attempts int, interval time.Duration, logger *slog.Logger) *Waiter {
	if attempts < 1 {
		attempts = 1
	}
	return &Waiter{check: check, attempts: attempts, interval: interval, logger: logger}
}

// Wait polls until the daemon is up, the ceiling is reached, or ctx is
// cancelled. A ceiling miss is reported through Result, not as an error;
// the only error returned is the context's.
func (w *Waiter) Wait(ctx context.Context) (Result, error) {
	var res Result
	start := time.Now()

	operation := func() error {
		res.Attempts++
		status, err := w.check(ctx)
		res.LastStatus = status
		res.LastErr = err
		if err != nil {
			return err
		}
		if !Up(status) {
			return fmt.Errorf("%w: status %d", errNotUp, status)
		}
		return nil
	}

	notify := func(err error, next time.Duration) {
		w.logger.Debug("daemon not ready yet", "attempt", res.Attempts, "error", err, "next", next)
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(w.interval), uint64(w.attempts-1)),
		ctx,
	)
	err := backoff.RetryNotify(operation, b, notify)
	res.Elapsed = time.Since(start)

	if err == nil {
		res.Ready = true
		w.logger.Info("daemon is up", "attempts", res.Attempts, "status", res.LastStatus)
		return res, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, ctxErr
	}

	w.logger.Warn("daemon did not come up", "attempts", res.Attempts, "last_status", res.LastStatus, "hint", Hint)
	return res, nil
}
