package traccar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/traverse-transit/fleet-sync/fleet"
)

// Client is an HTTP client for a Traccar-compatible telemetry service.
// GetDevices and GetPositions are read-only and safe to call concurrently.
type Client struct {
	baseURL       string
	username      string
	password      string
	probeTimeout  time.Duration
	httpClient    *http.Client
	sessionCookie string
}

// Option configures a Client.
type Option func(*Client)

// WithProbeTimeout bounds the TestConnection health probe.
func WithProbeTimeout(d time.Duration) Option {
	return func(c *Client) { c.probeTimeout = d }
}

// WithRequestTimeout bounds every regular device/position fetch.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// NewClient creates a client for the given server URL and credentials.
func NewClient(baseURL, username, password string, opts ...Option) *Client {
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		username:     username,
		password:     password,
		probeTimeout: 10 * time.Second,
		httpClient:   &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Authenticate establishes a session with the telemetry service. Rejected
// credentials surface as an *AuthError; the session cookie, when granted,
// is kept for subsequent requests alongside Basic auth.
func (c *Client) Authenticate(ctx context.Context) error {
	form := url.Values{}
	form.Set("email", c.username)
	form.Set("password", c.password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/session", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build session request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &ConnectivityError{Endpoint: "session", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized {
		return &AuthError{Status: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		return &ConnectivityError{Endpoint: "session",
			Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	}

	for _, cookie := range resp.Cookies() {
		if cookie.Name == "JSESSIONID" {
			c.sessionCookie = cookie.String()
		}
	}
	return nil
}

// ProbeResult is the tri-state outcome of a connection test. Reachable with
// Degraded=false means the server answered normally; Degraded=true means a
// response came back but not a usable one (blocked access, error status);
// Reachable=false means nothing came back at all.
type ProbeResult struct {
	Reachable bool   `json:"reachable"`
	Degraded  bool   `json:"degraded"`
	Version   string `json:"version,omitempty"`
	Message   string `json:"message"`
}

type serverInfo struct {
	Version string `json:"version"`
}

// TestConnection probes the server-info endpoint within the configured
// probe timeout. It never returns an error; every outcome, including a
// hang, resolves to a ProbeResult the caller can act on.
func (c *Client) TestConnection(ctx context.Context) ProbeResult {
	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/server", nil)
	if err != nil {
		return ProbeResult{Message: fmt.Sprintf("probe setup failed: %v", err)}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ProbeResult{Message: fmt.Sprintf("server unreachable: %v", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return ProbeResult{
			Reachable: true,
			Degraded:  true,
			Message:   fmt.Sprintf("server responded with HTTP %d", resp.StatusCode),
		}
	}

	var info serverInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return ProbeResult{
			Reachable: true,
			Degraded:  true,
			Message:   fmt.Sprintf("server info unparsable: %v", err),
		}
	}
	version := info.Version
	if version == "" {
		version = "unknown"
	}
	return ProbeResult{
		Reachable: true,
		Version:   version,
		Message:   "connected to telemetry server (" + version + ")",
	}
}

// GetDevices returns the full current device list.
func (c *Client) GetDevices(ctx context.Context) ([]fleet.Device, error) {
	var devices []fleet.Device
	if err := c.get(ctx, "devices", &devices); err != nil {
		return nil, err
	}
	return devices, nil
}

// GetPositions returns the current position list across all devices.
func (c *Client) GetPositions(ctx context.Context) ([]fleet.Position, error) {
	var positions []fleet.Position
	if err := c.get(ctx, "positions", &positions); err != nil {
		return nil, err
	}
	return positions, nil
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/"+endpoint, nil)
	if err != nil {
		return fmt.Errorf("build %s request: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")
	// Basic auth on every call; the session cookie alone has proven
	// unreliable across server restarts.
	req.SetBasicAuth(c.username, c.password)
	if c.sessionCookie != "" {
		req.Header.Set("Cookie", c.sessionCookie)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &ConnectivityError{Endpoint: endpoint, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized {
		return &AuthError{Status: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		return &ConnectivityError{Endpoint: endpoint,
			Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &ConnectivityError{Endpoint: endpoint, Err: err}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &DataFormatError{Endpoint: endpoint, Err: err}
	}
	return nil
}
