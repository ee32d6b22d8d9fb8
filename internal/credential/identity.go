package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"cytbootstrap/internal/adapter"
	"cytbootstrap/internal/codec"
	"cytbootstrap/internal/domain"
	"cytbootstrap/internal/prompt"
)

const (
	// KismetKeyFile holds a verified API key
	KismetKeyFile = "kismet_api_key"
	// KismetAuditFile records who verified the identity and how
	KismetAuditFile = "kismet_auth_audit.json"
	// KismetSessionFile holds the transient session cookie
	KismetSessionFile = "kismet_session_cookie"
)

// ErrIdentityUnverified is returned when every key transport and password
// path has been exhausted
var ErrIdentityUnverified = errors.New("capture daemon identity could not be verified")

// KismetAPI is the part of the daemon API used to verify an identity
type KismetAPI interface {
	StatusWithKey(ctx context.Context, transport adapter.KeyTransport, key string) (int, error)
	StatusWithBasic(ctx context.Context, username, password string) (int, error)
	Login(ctx context.Context, username, password string) (string, int, error)
	StatusWithSession(ctx context.Context, session string) (int, error)
}

// Identity is the outcome of a successful verification
type Identity struct {
	Record domain.CredentialRecord
	// Key is the verified API key, empty when a password path won
	Key string
	// Username is set when a password path won
	Username string
}

// IdentityValidator runs the daemon identity flow
type IdentityValidator struct {
	store     *Store
	api       KismetAPI
	answers   prompt.AnswerSource
	logger    *slog.Logger
	assumeYes bool
	webUI     string
	now       func() time.Time
}

// IdentityOption configures an IdentityValidator
type IdentityOption func(*IdentityValidator)

// WithClock overrides the timestamp source for the audit record
func WithClock(now func() time.Time) IdentityOption {
	return func(v *IdentityValidator) {
		v.now = now
	}
}

// WithAssumeYes skips the interactive admin-account gate
func WithAssumeYes(yes bool) IdentityOption {
	return func(v *IdentityValidator) {
		v.assumeYes = yes
	}
}

// WithWebUI sets the URL shown when asking the operator to create the
// admin account
func WithWebUI(url string) IdentityOption {
	return func(v *IdentityValidator) {
		v.webUI = url
	}
}

// NewIdentityValidator creates the daemon identity flow
func NewIdentityValidator(store *Store, api KismetAPI, answers prompt.AnswerSource, logger *slog.Logger, opts ...IdentityOption) *IdentityValidator {
	v := &IdentityValidator{
		store:   store,
		api:     api,
		answers: answers,
		logger:  logger,
		webUI:   "http://localhost:2501",
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify tries key candidates then the password paths. On total failure
// the record is invalid-fatal and the error wraps ErrIdentityUnverified.
func (v *IdentityValidator) Verify(ctx context.Context) (Identity, error) {
	id := Identity{Record: domain.NewCredentialRecord(domain.CredentialDaemonIdentity, v.store.Path(KismetKeyFile))}

	if err := v.store.Ensure(); err != nil {
		return id, err
	}

	stored, err := v.store.Read(KismetKeyFile)
	if err != nil {
		return id, err
	}
	verified, transport, ok := v.tryKey(ctx, stored)
	if !ok {
		asked, err := v.askKey(ctx, stored)
		if err != nil {
			return id, err
		}
		verified, transport, ok = v.tryKey(ctx, asked)
	}
	if ok {
		if err := v.store.Write(ctx, KismetKeyFile, []byte(verified+"\n")); err != nil {
			return id, err
		}
		id.Key = verified
		id.Record.State = domain.CredentialValid
		id.Record.Method = "api-key/" + string(transport)
		id.Record.Detail = fmt.Sprintf("status endpoint accepted the key via %s", transport)
		return id, nil
	}

	username, method, ok, err := v.tryPassword(ctx)
	if err != nil {
		return id, err
	}
	if !ok {
		id.Record.State = domain.CredentialInvalidFatal
		id.Record.Detail = "all key transports and password paths were rejected"
		return id, fmt.Errorf("%w: %s", ErrIdentityUnverified, id.Record.Detail)
	}

	audit := domain.AuditRecord{Username: username, Method: method, VerifiedAt: v.now().UTC()}
	data, err := codec.NewJSONCodec().Marshal(audit)
	if err != nil {
		return id, err
	}
	if err := v.store.Write(ctx, KismetAuditFile, data); err != nil {
		return id, err
	}

	id.Username = username
	id.Record.Path = v.store.Path(KismetAuditFile)
	id.Record.State = domain.CredentialValid
	id.Record.Method = method
	id.Record.Detail = fmt.Sprintf("verified as %s via %s", username, method)
	return id, nil
}

// askKey asks for a key other than the stored one. A blank or repeated
// answer yields "".
func (v *IdentityValidator) askKey(ctx context.Context, stored string) (string, error) {
	asked, err := v.answers.Ask(ctx, prompt.Question{
		Key:    "kismet.api_key",
		Prompt: "Kismet API key (leave blank to use username/password)",
		Env:    "KISMET_API_KEY",
		Secret: true,
	})
	if errors.Is(err, prompt.ErrNoAnswer) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	asked = strings.TrimSpace(asked)
	if asked == stored {
		return "", nil
	}
	return asked, nil
}

// tryKey walks the transports in priority order and returns the key form
// that worked
func (v *IdentityValidator) tryKey(ctx context.Context, key string) (string, adapter.KeyTransport, bool) {
	if key == "" {
		return "", "", false
	}
	transports := []adapter.KeyTransport{adapter.TransportQuery, adapter.TransportHeader, adapter.TransportBearer}
	if strings.HasPrefix(key, adapter.KismetKeyPrefix) {
		transports = append(transports, adapter.TransportQueryStripped)
	}

	for _, tr := range transports {
		code, err := v.api.StatusWithKey(ctx, tr, key)
		v.logger.Debug("identity key attempt", "transport", tr, "status", code, "error", err)
		if err == nil && code == http.StatusOK {
			if tr == adapter.TransportQueryStripped {
				key = strings.TrimPrefix(key, adapter.KismetKeyPrefix)
			}
			return key, tr, true
		}
	}
	return "", "", false
}

// tryPassword runs basic auth, then the session login path
func (v *IdentityValidator) tryPassword(ctx context.Context) (string, string, bool, error) {
	if !v.assumeYes && v.answers.Interactive() {
		msg := fmt.Sprintf("Open %s in a browser and create the Kismet admin account if you have not already.", v.webUI)
		if err := v.answers.Pause(ctx, "kismet.admin_gate", msg); err != nil {
			return "", "", false, err
		}
	}

	username, err := v.answers.Ask(ctx, prompt.Question{
		Key:    "kismet.username",
		Prompt: "Kismet username",
		Env:    "KISMET_USER",
	})
	if errors.Is(err, prompt.ErrNoAnswer) {
		return "", "", false, nil
	}
	if err != nil {
		return "", "", false, err
	}
	password, err := v.answers.Ask(ctx, prompt.Question{
		Key:    "kismet.password",
		Prompt: "Kismet password",
		Env:    "KISMET_PASSWORD",
		Secret: true,
	})
	if errors.Is(err, prompt.ErrNoAnswer) {
		return "", "", false, nil
	}
	if err != nil {
		return "", "", false, err
	}

	code, err := v.api.StatusWithBasic(ctx, username, password)
	v.logger.Debug("identity basic attempt", "status", code, "error", err)
	if err == nil && code == http.StatusOK {
		return username, "basic", true, nil
	}

	session, code, err := v.api.Login(ctx, username, password)
	v.logger.Debug("identity session login", "status", code, "error", err)
	if err != nil || code != http.StatusOK || session == "" {
		return "", "", false, nil
	}
	if err := v.store.Write(ctx, KismetSessionFile, []byte(session+"\n")); err != nil {
		return "", "", false, err
	}

	code, err = v.api.StatusWithSession(ctx, session)
	v.logger.Debug("identity session status", "status", code, "error", err)
	if err == nil && code == http.StatusOK {
		return username, "session", true, nil
	}
	return "", "", false, nil
}
