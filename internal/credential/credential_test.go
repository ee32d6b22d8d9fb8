package credential

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cytbootstrap/internal/adapter"
	"cytbootstrap/internal/artifact"
	"cytbootstrap/internal/domain"
	"cytbootstrap/internal/prompt"
)

const (
	goodKey  = "0123456789ABCDEF"
	goodUser = "admin"
	goodPass = "correct horse"
	session  = "sess-42"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// daemonStub accepts the key only via headerOnly/query rules and counts
// login attempts
type daemonStub struct {
	srv         *httptest.Server
	logins      atomic.Int32
	keyViaQuery bool
	basicOK     bool
	sessionOK   bool
}

func newDaemonStub(t *testing.T) *daemonStub {
	t.Helper()
	d := &daemonStub{}
	mux := http.NewServeMux()
	mux.HandleFunc("/system/status.json", func(w http.ResponseWriter, r *http.Request) {
		switch {
		case d.keyViaQuery && r.URL.Query().Get("KISMET") == goodKey:
		case !d.keyViaQuery && r.Header.Get("KISMET") == goodKey:
		case d.basicOK && basicMatches(r):
		case d.sessionOK && hasSession(r):
		default:
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{}`))
	})
	mux.HandleFunc("/session/check_login", func(w http.ResponseWriter, r *http.Request) {
		d.logins.Add(1)
		if !basicMatches(r) {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: adapter.KismetSessionCookie, Value: session})
	})
	d.srv = httptest.NewServer(mux)
	t.Cleanup(d.srv.Close)
	return d
}

func basicMatches(r *http.Request) bool {
	u, p, ok := r.BasicAuth()
	return ok && u == goodUser && p == goodPass
}

func hasSession(r *http.Request) bool {
	c, err := r.Cookie(adapter.KismetSessionCookie)
	return err == nil && c.Value == session
}

func (d *daemonStub) client() *adapter.KismetClient {
	return adapter.NewKismetClient(d.srv.URL+"/", d.srv.URL+"/system/status.json", d.srv.URL+"/session/check_login", time.Second)
}

func newStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "secure_credentials"), nil)
}

func assertOwnerOnly(t *testing.T, path string) {
	t.Helper()
	ok, perm, err := artifact.ModeIsOwnerOnly(path)
	require.NoError(t, err)
	assert.True(t, ok, "%s has mode %o", path, perm)
}

func TestIdentityHeaderKeySkipsPasswordPath(t *testing.T) {
	d := newDaemonStub(t)
	store := newStore(t)
	answers := prompt.NewScripted(map[string]string{"kismet.api_key": goodKey})

	v := NewIdentityValidator(store, d.client(), answers, quietLogger())
	id, err := v.Verify(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.CredentialValid, id.Record.State)
	assert.Equal(t, "api-key/header", id.Record.Method)
	assert.Equal(t, goodKey, id.Key)
	assert.NotContains(t, answers.Asked, "kismet.username")
	assert.Empty(t, answers.Paused)
	assert.Zero(t, d.logins.Load())

	assertOwnerOnly(t, store.Dir())
	assertOwnerOnly(t, store.Path(KismetKeyFile))
	stored, err := store.Read(KismetKeyFile)
	require.NoError(t, err)
	assert.Equal(t, goodKey, stored)
}

func TestIdentityStoredKeyNotReprompted(t *testing.T) {
	d := newDaemonStub(t)
	store := newStore(t)
	require.NoError(t, store.Write(context.Background(), KismetKeyFile, []byte(goodKey+"\n")))
	answers := prompt.NewScripted(nil)

	id, err := NewIdentityValidator(store, d.client(), answers, quietLogger()).Verify(context.Background())
	require.NoError(t, err)
	assert.True(t, id.Record.Valid())
	assert.Empty(t, answers.Asked)
}

func TestIdentityStrippedPrefixKey(t *testing.T) {
	d := newDaemonStub(t)
	d.keyViaQuery = true
	store := newStore(t)
	answers := prompt.NewScripted(map[string]string{"kismet.api_key": adapter.KismetKeyPrefix + goodKey})

	id, err := NewIdentityValidator(store, d.client(), answers, quietLogger()).Verify(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "api-key/"+string(adapter.TransportQueryStripped), id.Record.Method)
	assert.Equal(t, goodKey, id.Key)
}

func TestIdentityPasswordPaths(t *testing.T) {
	verifiedAt := time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		name       string
		basic      bool
		session    bool
		wantMethod string
		wantLogins int32
	}{
		{"basic auth", true, false, "basic", 0},
		{"session cookie", false, true, "session", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newDaemonStub(t)
			d.basicOK = tt.basic
			d.sessionOK = tt.session
			store := newStore(t)
			answers := prompt.NewScripted(map[string]string{
				"kismet.api_key":  "stale",
				"kismet.username": goodUser,
				"kismet.password": goodPass,
			})

			v := NewIdentityValidator(store, d.client(), answers, quietLogger(),
				WithClock(func() time.Time { return verifiedAt }))
			id, err := v.Verify(context.Background())
			require.NoError(t, err)

			assert.Equal(t, tt.wantMethod, id.Record.Method)
			assert.Equal(t, goodUser, id.Username)
			assert.Equal(t, tt.wantLogins, d.logins.Load())
			assert.Equal(t, []string{"kismet.admin_gate"}, answers.Paused)

			data, err := os.ReadFile(store.Path(KismetAuditFile))
			require.NoError(t, err)
			assert.Contains(t, string(data), `"method": "`+tt.wantMethod+`"`)
			assert.Contains(t, string(data), "2026-05-04T10:30:00Z")
			assert.NotContains(t, string(data), goodPass)
			assertOwnerOnly(t, store.Path(KismetAuditFile))

			if tt.session {
				assertOwnerOnly(t, store.Path(KismetSessionFile))
			}
		})
	}
}

func TestIdentityTotalFailureIsFatal(t *testing.T) {
	d := newDaemonStub(t)
	store := newStore(t)
	answers := prompt.NewScripted(map[string]string{
		"kismet.api_key":  "wrong",
		"kismet.username": goodUser,
		"kismet.password": "nope",
	})

	id, err := NewIdentityValidator(store, d.client(), answers, quietLogger()).Verify(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIdentityUnverified))
	assert.Equal(t, domain.CredentialInvalidFatal, id.Record.State)
	assert.NoFileExists(t, store.Path(KismetAuditFile))
}

func TestIdentityAssumeYesWithoutCredentials(t *testing.T) {
	d := newDaemonStub(t)
	store := newStore(t)

	v := NewIdentityValidator(store, d.client(), prompt.Defaults{}, quietLogger(), WithAssumeYes(true))
	_, err := v.Verify(context.Background())
	assert.True(t, errors.Is(err, ErrIdentityUnverified))
}

func wigleStub(t *testing.T, accept string) *adapter.WigleClient {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Basic "+accept {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"success":true}`))
	}))
	t.Cleanup(srv.Close)
	return adapter.NewWigleClient(srv.URL, time.Second)
}

func TestWigleValid(t *testing.T) {
	encoded := adapter.EncodeWigleToken("AID1", "tok")
	store := newStore(t)
	answers := prompt.NewScripted(map[string]string{"wigle.name": "AID1", "wigle.token": "tok"})

	rec, err := NewWigleValidator(store, wigleStub(t, encoded), answers, quietLogger()).Validate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.CredentialValid, rec.State)
	assertOwnerOnly(t, store.Path(WigleTokenFile))
	assert.NoFileExists(t, store.Path(WigleReplayFile))

	stored, err := store.Read(WigleTokenFile)
	require.NoError(t, err)
	assert.Equal(t, encoded, stored)
}

func TestWigleRejectedKeepsTokenAndWritesReplay(t *testing.T) {
	store := newStore(t)
	answers := prompt.NewScripted(map[string]string{"wigle.name": "AID1", "wigle.token": "bad"})

	rec, err := NewWigleValidator(store, wigleStub(t, "something-else"), answers, quietLogger()).Validate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.CredentialInvalidSoft, rec.State)
	assert.Contains(t, rec.Detail, "401")

	assert.FileExists(t, store.Path(WigleTokenFile))
	replay, err := os.ReadFile(store.Path(WigleReplayFile))
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(replay), store.Path(WigleTokenFile)))
	assertOwnerOnly(t, store.Path(WigleReplayFile))
}

func TestWigleReuseStoredToken(t *testing.T) {
	encoded := adapter.EncodeWigleToken("AID1", "tok")
	store := newStore(t)
	require.NoError(t, store.Write(context.Background(), WigleTokenFile, []byte(encoded+"\n")))
	answers := prompt.NewScripted(nil)

	rec, err := NewWigleValidator(store, wigleStub(t, encoded), answers, quietLogger()).Validate(context.Background())
	require.NoError(t, err)
	assert.True(t, rec.Valid())
	assert.Equal(t, []string{"wigle.reuse"}, answers.Asked)
}

func TestWigleNoAnswersIsSoft(t *testing.T) {
	store := newStore(t)

	rec, err := NewWigleValidator(store, wigleStub(t, "x"), prompt.Defaults{}, quietLogger()).Validate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.CredentialInvalidSoft, rec.State)
	assertOwnerOnly(t, store.Dir())
}
