package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"cytbootstrap/internal/adapter"
	"cytbootstrap/internal/domain"
	"cytbootstrap/internal/prompt"
)

const (
	// WigleTokenFile holds base64("name:token")
	WigleTokenFile = "wigle_api_token"
	// WigleReplayFile holds a curl command that repeats the validation
	WigleReplayFile = "wigle_replay.sh"
)

// WigleAPI validates an encoded WiGLE token
type WigleAPI interface {
	Profile(ctx context.Context, encoded string) (int, error)
	ReplayCommand(tokenPath string) string
}

// WigleValidator runs the remote API token flow
type WigleValidator struct {
	store   *Store
	api     WigleAPI
	answers prompt.AnswerSource
	logger  *slog.Logger
}

// NewWigleValidator creates the WiGLE flow
func NewWigleValidator(store *Store, api WigleAPI, answers prompt.AnswerSource, logger *slog.Logger) *WigleValidator {
	return &WigleValidator{store: store, api: api, answers: answers, logger: logger}
}

// Validate obtains, stores, and checks the token. The returned record is
// either valid or invalid-soft; an error is returned only when the
// credential directory itself cannot be written.
func (v *WigleValidator) Validate(ctx context.Context) (domain.CredentialRecord, error) {
	rec := domain.NewCredentialRecord(domain.CredentialRemoteAPIToken, v.store.Path(WigleTokenFile))

	if err := v.store.Ensure(); err != nil {
		return rec, err
	}

	encoded, err := v.obtain(ctx)
	if errors.Is(err, prompt.ErrNoAnswer) {
		rec.State = domain.CredentialInvalidSoft
		rec.Detail = "no WiGLE API name/token provided; set WIGLE_API_NAME and WIGLE_API_TOKEN or re-run interactively"
		return rec, nil
	}
	if err != nil {
		return rec, err
	}

	if err := v.store.Write(ctx, WigleTokenFile, []byte(encoded+"\n")); err != nil {
		return rec, err
	}

	code, err := v.api.Profile(ctx, encoded)
	if err == nil && code == http.StatusOK {
		rec.State = domain.CredentialValid
		rec.Method = "basic"
		rec.Detail = "profile lookup returned 200"
		return rec, nil
	}

	rec.State = domain.CredentialInvalidSoft
	if err != nil {
		rec.Detail = fmt.Sprintf("profile lookup failed: %v", err)
	} else {
		rec.Detail = fmt.Sprintf("profile lookup returned %d", code)
	}

	replay := v.api.ReplayCommand(rec.Path)
	if werr := v.store.Write(ctx, WigleReplayFile, []byte(replay)); werr != nil {
		return rec, werr
	}
	rec.Detail += fmt.Sprintf("; token kept, replay with: sh %s", v.store.Path(WigleReplayFile))
	v.logger.Warn("WiGLE token not verified", "detail", rec.Detail)

	return rec, nil
}

// obtain reuses a stored token when confirmed, otherwise asks for a new one
func (v *WigleValidator) obtain(ctx context.Context) (string, error) {
	existing, err := v.store.Read(WigleTokenFile)
	if err != nil {
		return "", err
	}
	if existing != "" {
		reuse, err := v.answers.Confirm(ctx, "wigle.reuse", "Reuse the stored WiGLE API token?", true)
		if err != nil {
			return "", err
		}
		if reuse {
			return existing, nil
		}
	}

	name, err := v.answers.Ask(ctx, prompt.Question{
		Key:    "wigle.name",
		Prompt: "WiGLE API name",
		Env:    "WIGLE_API_NAME",
	})
	if err != nil {
		return "", err
	}
	token, err := v.answers.Ask(ctx, prompt.Question{
		Key:    "wigle.token",
		Prompt: "WiGLE API token",
		Env:    "WIGLE_API_TOKEN",
		Secret: true,
	})
	if err != nil {
		return "", err
	}

	return adapter.EncodeWigleToken(name, token), nil
}
