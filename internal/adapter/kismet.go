package adapter

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// KismetSessionCookie is the cookie name the daemon issues on login
const KismetSessionCookie = "KISMET"

// KismetKeyPrefix is the prefix some copy/paste paths leave on an API key
const KismetKeyPrefix = "KISMET="

// KeyTransport is one way of presenting an API key to the daemon
type KeyTransport string

const (
	TransportQuery         KeyTransport = "query"
	TransportHeader        KeyTransport = "header"
	TransportBearer        KeyTransport = "bearer"
	TransportQueryStripped KeyTransport = "query-stripped"
)

// KismetClient talks to the capture daemon's local HTTP API. Redirects are
// never followed, so a 302 from the daemon is reported as-is.
type KismetClient struct {
	indexURL  string
	statusURL string
	loginURL  string
	http      *http.Client
}

// NewKismetClient creates a client for the daemon's web UI index, status
// endpoint and session login endpoint
func NewKismetClient(indexURL, statusURL, loginURL string, timeout time.Duration) *KismetClient {
	return &KismetClient{
		indexURL:  indexURL,
		statusURL: statusURL,
		loginURL:  loginURL,
		http: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// IndexStatus fetches the web UI root and returns the HTTP status code
func (c *KismetClient) IndexStatus(ctx context.Context) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.indexURL, nil)
	if err != nil {
		return 0, err
	}
	return c.do(req)
}

// StatusWithKey requests the status endpoint presenting key via transport.
// For TransportQueryStripped the KISMET= prefix is removed first.
func (c *KismetClient) StatusWithKey(ctx context.Context, transport KeyTransport, key string) (int, error) {
	statusURL := c.statusURL

	switch transport {
	case TransportQuery, TransportQueryStripped:
		if transport == TransportQueryStripped {
			key = strings.TrimPrefix(key, KismetKeyPrefix)
		}
		statusURL += "?" + url.Values{"KISMET": {key}}.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, statusURL, nil)
	if err != nil {
		return 0, err
	}

	switch transport {
	case TransportHeader:
		req.Header.Set("KISMET", key)
	case TransportBearer:
		req.Header.Set("Authorization", "Bearer "+key)
	case TransportQuery, TransportQueryStripped:
	default:
		return 0, fmt.Errorf("unknown key transport %q", transport)
	}

	return c.do(req)
}

// StatusWithBasic requests the status endpoint with basic authentication
func (c *KismetClient) StatusWithBasic(ctx context.Context, username, password string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.statusURL, nil)
	if err != nil {
		return 0, err
	}
	req.SetBasicAuth(username, password)
	return c.do(req)
}

// Login posts basic credentials to the session endpoint and returns the
// issued session cookie value on HTTP 200
func (c *KismetClient) Login(ctx context.Context, username, password string) (string, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.loginURL, nil)
	if err != nil {
		return "", 0, err
	}
	req.SetBasicAuth(username, password)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return "", resp.StatusCode, nil
	}
	for _, ck := range resp.Cookies() {
		if ck.Name == KismetSessionCookie && ck.Value != "" {
			return ck.Value, resp.StatusCode, nil
		}
	}
	return "", resp.StatusCode, fmt.Errorf("login succeeded without a %s cookie", KismetSessionCookie)
}

// StatusWithSession requests the status endpoint carrying a session cookie
func (c *KismetClient) StatusWithSession(ctx context.Context, session string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.statusURL, nil)
	if err != nil {
		return 0, err
	}
	req.AddCookie(&http.Cookie{Name: KismetSessionCookie, Value: session})
	return c.do(req)
}

func (c *KismetClient) do(req *http.Request) (int, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}
