package adapter

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cytbootstrap/internal/adapter/adaptertest"
)

const testKey = "4F2A9C"

// kismetStub accepts the API key only through the transport named by accept
func kismetStub(t *testing.T, accept KeyTransport) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/system/status.json", func(w http.ResponseWriter, r *http.Request) {
		ok := false
		switch accept {
		case TransportQuery, TransportQueryStripped:
			ok = r.URL.Query().Get("KISMET") == testKey
		case TransportHeader:
			ok = r.Header.Get("KISMET") == testKey
		case TransportBearer:
			ok = r.Header.Get("Authorization") == "Bearer "+testKey
		}
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{}`))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/login.html", http.StatusFound)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestKismetStatusWithKeyTransports(t *testing.T) {
	ctx := context.Background()

	for _, accepted := range []KeyTransport{TransportQuery, TransportHeader, TransportBearer} {
		t.Run(string(accepted), func(t *testing.T) {
			srv := kismetStub(t, accepted)
			c := NewKismetClient(srv.URL+"/", srv.URL+"/system/status.json", srv.URL+"/session/check_login", time.Second)

			for _, tr := range []KeyTransport{TransportQuery, TransportHeader, TransportBearer} {
				code, err := c.StatusWithKey(ctx, tr, testKey)
				require.NoError(t, err)
				if tr == accepted {
					assert.Equal(t, http.StatusOK, code, "transport %s", tr)
				} else {
					assert.Equal(t, http.StatusUnauthorized, code, "transport %s", tr)
				}
			}
		})
	}
}

func TestKismetStrippedQuery(t *testing.T) {
	srv := kismetStub(t, TransportQuery)
	c := NewKismetClient(srv.URL+"/", srv.URL+"/system/status.json", srv.URL+"/session/check_login", time.Second)

	code, err := c.StatusWithKey(context.Background(), TransportQuery, KismetKeyPrefix+testKey)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, err = c.StatusWithKey(context.Background(), TransportQueryStripped, KismetKeyPrefix+testKey)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, code)
}

func TestKismetIndexDoesNotFollowRedirects(t *testing.T) {
	srv := kismetStub(t, TransportQuery)
	c := NewKismetClient(srv.URL+"/", srv.URL+"/system/status.json", srv.URL+"/session/check_login", time.Second)

	code, err := c.IndexStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, http.StatusFound, code)
}

func TestKismetLoginAndSession(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/session/check_login", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if r.Method != http.MethodPost || !ok || user != "admin" || pass != "hunter2" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: KismetSessionCookie, Value: "sess-123"})
	})
	mux.HandleFunc("/system/status.json", func(w http.ResponseWriter, r *http.Request) {
		ck, err := r.Cookie(KismetSessionCookie)
		if err != nil || ck.Value != "sess-123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewKismetClient(srv.URL+"/", srv.URL+"/system/status.json", srv.URL+"/session/check_login", time.Second)
	ctx := context.Background()

	code, err := c.StatusWithBasic(ctx, "admin", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, code)

	session, code, err := c.Login(ctx, "admin", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "sess-123", session)

	code, err = c.StatusWithSession(ctx, session)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, code)

	_, code, err = c.Login(ctx, "admin", "wrong")
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, code)
}

func TestWigleProfile(t *testing.T) {
	encoded := EncodeWigleToken("AID123", "secret")
	assert.Equal(t, "QUlEMTIzOnNlY3JldA==", encoded)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Basic "+encoded {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	c := NewWigleClient(srv.URL, time.Second)
	code, err := c.Profile(context.Background(), encoded)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, code)

	code, err = c.Profile(context.Background(), "bogus")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, code)

	replay := c.ReplayCommand("/opt/cyt/secure_credentials/wigle_api_token")
	assert.Contains(t, replay, srv.URL)
	assert.NotContains(t, replay, encoded)
}

func TestSelectPackageManager(t *testing.T) {
	tests := []struct {
		name     string
		family   string
		binaries []string
		want     string
		wantErr  bool
	}{
		{"debian", "debian", []string{"apt-get"}, "apt", false},
		{"fedora", "fedora", []string{"dnf"}, "dnf", false},
		{"arch", "arch", []string{"pacman"}, "pacman", false},
		{"debian without apt", "debian", []string{"dnf"}, "", true},
		{"unknown falls back", "unknown", []string{"pacman"}, "pacman", false},
		{"nothing available", "unknown", nil, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pm, err := SelectPackageManager(tt.family, adaptertest.NewFakeRunner(tt.binaries...))
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrNoPackageManager), "err = %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, pm.Name())
		})
	}
}

func TestPackageManagerCommands(t *testing.T) {
	ctx := context.Background()
	runner := adaptertest.NewFakeRunner("apt-get")
	apt := NewApt(runner)

	require.NoError(t, apt.Update(ctx))
	require.NoError(t, apt.Install(ctx, "kismet", "python3-venv"))
	require.NoError(t, apt.Install(ctx))

	want := []string{"apt-get update", "apt-get -y upgrade", "apt-get install -y kismet python3-venv"}
	require.Len(t, runner.Calls, len(want))
	for i, w := range want {
		assert.Equal(t, w, runner.Calls[i].String())
	}

	runner.Failures["apt-get install"] = errors.New("exit status 100")
	err := apt.Install(ctx, "kismet")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "kismet"))
}

func TestSystemctl(t *testing.T) {
	ctx := context.Background()
	runner := adaptertest.NewFakeRunner("systemctl")
	runner.Outputs["systemctl is-active kismet"] = "active\n"
	s := NewSystemctl(runner)

	require.NoError(t, s.DaemonReload(ctx))
	require.NoError(t, s.EnableNow(ctx, "cyt-kismet-link.timer"))
	assert.True(t, s.IsActive(ctx, "kismet"))
	assert.False(t, s.IsActive(ctx, "other"))
	assert.True(t, s.Available())

	assert.True(t, runner.Ran("systemctl daemon-reload"))
	assert.True(t, runner.Ran("systemctl enable --now cyt-kismet-link.timer"))
}

func TestDialPortChecker(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port

	c := NewDialPortChecker(time.Second)
	ok, err := c.IsListening(context.Background(), "127.0.0.1", port)
	require.NoError(t, err)
	assert.True(t, ok)

	ln.Close()
	ok, err = c.IsListening(context.Background(), "127.0.0.1", port)
	require.NoError(t, err)
	assert.False(t, ok, "port %s should be closed", strconv.Itoa(port))
}
