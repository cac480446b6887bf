package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/slatehome/tvbridge/internal/device"
	"github.com/slatehome/tvbridge/internal/tv"
)

// Sentinel errors.
var (
	// ErrNotLinked indicates the device has no cloud credentials.
	ErrNotLinked = errors.New("cloud: device not linked to cloud account")

	// ErrDeviceNotFound indicates the cloud account has no device
	// matching the local configuration.
	ErrDeviceNotFound = errors.New("cloud: no matching device in cloud account")
)

const (
	defaultBaseURL  = "https://api.smartthings.com/v1"
	defaultTokenURL = "https://api.smartthings.com/oauth/token"

	// degradedThreshold is the consecutive-failure count after which
	// the client logs that it has fallen back to local-only operation.
	degradedThreshold = 3
)

// Options configures a Client.
type Options struct {
	// BaseURL and TokenURL override the vendor endpoints; used by tests.
	BaseURL  string
	TokenURL string

	// ClientID and ClientSecret identify this integration during token
	// refresh.
	ClientID     string
	ClientSecret string

	// HTTPClient defaults to a client with a 10 second timeout.
	HTTPClient *http.Client

	// Store receives refreshed tokens. Optional; without it renewals
	// survive only until restart.
	Store tv.ConfigStore

	Logger tv.Logger
}

// Client talks to the vendor cloud API on behalf of one device. It
// implements tv.CloudClient.
type Client struct {
	baseURL      string
	tokenURL     string
	clientID     string
	clientSecret string
	httpClient   *http.Client
	store        tv.ConfigStore
	logger       tv.Logger

	mu       sync.Mutex
	cfg      *device.Config
	failures int
	degraded bool
}

// NewClient builds a cloud client bound to the given device. The
// configuration's cloud tokens authenticate all requests.
func NewClient(cfg *device.Config, opts Options) *Client {
	c := &Client{
		baseURL:      strings.TrimRight(opts.BaseURL, "/"),
		tokenURL:     opts.TokenURL,
		clientID:     opts.ClientID,
		clientSecret: opts.ClientSecret,
		httpClient:   opts.HTTPClient,
		store:        opts.Store,
		logger:       opts.Logger,
		cfg:          cfg.Copy(),
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	if c.tokenURL == "" {
		c.tokenURL = defaultTokenURL
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if c.logger == nil {
		c.logger = noopLogger{}
	}
	return c
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// cloudDevice is one entry in the account device list.
type cloudDevice struct {
	DeviceID string `json:"deviceId"`
	Label    string `json:"label"`
	Name     string `json:"name"`
}

type deviceListResponse struct {
	Items []cloudDevice `json:"items"`
}

// ResolveDeviceID finds the cloud device matching the local
// configuration, by label first and internal name second.
func (c *Client) ResolveDeviceID(ctx context.Context, cfg *device.Config) (string, error) {
	if cfg.CloudAccessToken == "" {
		return "", ErrNotLinked
	}

	c.mu.Lock()
	c.cfg = cfg.Copy()
	c.mu.Unlock()

	body, err := c.do(ctx, http.MethodGet, "/devices", nil)
	if err != nil {
		return "", err
	}

	var list deviceListResponse
	if err := json.Unmarshal(body, &list); err != nil {
		return "", c.fail(fmt.Errorf("cloud: decoding device list: %w", err))
	}

	for _, d := range list.Items {
		if strings.EqualFold(d.Label, cfg.Name) || strings.EqualFold(d.Name, cfg.Name) {
			c.ok()
			return d.DeviceID, nil
		}
	}
	return "", ErrDeviceNotFound
}

// WakeDevice issues a switch-on command through the cloud.
func (c *Client) WakeDevice(ctx context.Context, deviceID string) error {
	payload := map[string]any{
		"commands": []map[string]any{{
			"component":  "main",
			"capability": "switch",
			"command":    "on",
		}},
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("cloud: encoding wake command: %w", err)
	}

	path := "/devices/" + url.PathEscape(deviceID) + "/commands"
	if _, err := c.do(ctx, http.MethodPost, path, raw); err != nil {
		return err
	}
	c.ok()
	return nil
}

// componentStatus is the relevant subset of the main component status.
type componentStatus struct {
	Switch struct {
		Switch struct {
			Value string `json:"value"`
		} `json:"switch"`
	} `json:"switch"`
	MediaInputSource struct {
		InputSource struct {
			Value string `json:"value"`
		} `json:"inputSource"`
	} `json:"mediaInputSource"`
}

// QueryStatus reads coarse power and input status from the cloud.
func (c *Client) QueryStatus(ctx context.Context, deviceID string) (*tv.CloudStatus, error) {
	path := "/devices/" + url.PathEscape(deviceID) + "/components/main/status"
	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var status componentStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, c.fail(fmt.Errorf("cloud: decoding device status: %w", err))
	}

	c.ok()
	return &tv.CloudStatus{
		PowerOn:      status.Switch.Switch.Value == "on",
		ActiveSource: status.MediaInputSource.InputSource.Value,
	}, nil
}

// do issues an authenticated request. A 401 triggers one token refresh
// and one retry; any other failure bumps the degradation counter.
func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	c.mu.Lock()
	token := c.cfg.CloudAccessToken
	c.mu.Unlock()
	if token == "" {
		return nil, ErrNotLinked
	}

	respBody, status, err := c.request(ctx, method, path, body, token)
	if err != nil {
		return nil, c.fail(err)
	}
	if status == http.StatusUnauthorized {
		token, err = c.refreshToken(ctx)
		if err != nil {
			return nil, c.fail(err)
		}
		respBody, status, err = c.request(ctx, method, path, body, token)
		if err != nil {
			return nil, c.fail(err)
		}
	}
	if status < 200 || status >= 300 {
		return nil, c.fail(fmt.Errorf("cloud: %s %s returned status %d", method, path, status))
	}
	return respBody, nil
}

func (c *Client) request(ctx context.Context, method, path string, body []byte, token string) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("cloud: building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("cloud: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, 0, fmt.Errorf("cloud: reading response: %w", err)
	}
	return respBody, resp.StatusCode, nil
}

// tokenResponse is the OAuth refresh grant response.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// refreshToken exchanges the refresh token for new credentials and
// writes them through to the configuration store.
func (c *Client) refreshToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	refresh := c.cfg.CloudRefreshToken
	c.mu.Unlock()
	if refresh == "" {
		return "", fmt.Errorf("cloud: access token rejected and no refresh token available")
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refresh)
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("cloud: building token refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("cloud: refreshing token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("cloud: token refresh returned status %d", resp.StatusCode)
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("cloud: decoding token response: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("cloud: token refresh returned empty access token")
	}

	c.mu.Lock()
	c.cfg.CloudAccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		c.cfg.CloudRefreshToken = tok.RefreshToken
	}
	if tok.ExpiresIn > 0 {
		expires := time.Now().UTC().Add(time.Duration(tok.ExpiresIn) * time.Second)
		c.cfg.CloudTokenExpiresAt = &expires
	}
	cfg := c.cfg.Copy()
	c.mu.Unlock()

	c.logger.Info("cloud tokens refreshed", "device_id", cfg.Identifier)

	if c.store != nil {
		sctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := c.store.Update(sctx, cfg); err != nil {
			c.logger.Warn("failed to persist refreshed cloud tokens",
				"device_id", cfg.Identifier, "error", err)
		}
	}
	return tok.AccessToken, nil
}

// fail records a failure and logs the transition into degraded mode
// once. The error passes through unchanged.
func (c *Client) fail(err error) error {
	c.mu.Lock()
	c.failures++
	transition := c.failures >= degradedThreshold && !c.degraded
	if transition {
		c.degraded = true
	}
	id := c.cfg.Identifier
	n := c.failures
	c.mu.Unlock()

	if transition {
		c.logger.Warn("cloud API degraded, continuing local-only",
			"device_id", id, "consecutive_failures", n, "error", err)
	} else {
		c.logger.Debug("cloud request failed", "device_id", id, "error", err)
	}
	return err
}

// ok resets the degradation counter after a successful call.
func (c *Client) ok() {
	c.mu.Lock()
	if c.degraded {
		c.logger.Info("cloud API recovered", "device_id", c.cfg.Identifier)
	}
	c.failures = 0
	c.degraded = false
	c.mu.Unlock()
}
