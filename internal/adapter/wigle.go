package adapter

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultWigleProfileURL is the authenticated profile endpoint
const DefaultWigleProfileURL = "https://api.wigle.net/api/v2/profile/user"

// WigleClient validates WiGLE API credentials
type WigleClient struct {
	profileURL string
	http       *http.Client
}

// NewWigleClient creates a client for the profile endpoint
func NewWigleClient(profileURL string, timeout time.Duration) *WigleClient {
	if profileURL == "" {
		profileURL = DefaultWigleProfileURL
	}
	return &WigleClient{
		profileURL: profileURL,
		http:       &http.Client{Timeout: timeout},
	}
}

// EncodeWigleToken returns base64("name:token"), the form WiGLE expects
// after "Basic "
func EncodeWigleToken(name, token string) string {
	return base64.StdEncoding.EncodeToString([]byte(name + ":" + token))
}

// Profile performs one authenticated GET and returns the status code
func (c *WigleClient) Profile(ctx context.Context, encoded string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.profileURL, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Basic "+encoded)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, nil
}

// ReplayCommand renders a curl invocation that repeats the validation
// request, reading the token from tokenPath rather than embedding it
func (c *WigleClient) ReplayCommand(tokenPath string) string {
	return fmt.Sprintf(
		"#!/bin/sh\n# Re-run the WiGLE credential check by hand.\ncurl -i -H \"Authorization: Basic $(cat '%s')\" -H 'Accept: application/json' '%s'\n",
		tokenPath, c.profileURL,
	)
}
