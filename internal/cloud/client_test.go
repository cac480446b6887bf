package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/slatehome/tvbridge/internal/device"
)

type mockStore struct {
	mu      sync.Mutex
	updates []*device.Config
}

func (m *mockStore) Update(_ context.Context, cfg *device.Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, cfg.Copy())
	return nil
}

func testConfig() *device.Config {
	return &device.Config{
		Identifier:        "tv-1",
		Name:              "Living Room TV",
		Address:           "192.168.1.50",
		CloudAccessToken:  "access-1",
		CloudRefreshToken: "refresh-1",
	}
}

// fakeCloud emulates the vendor API: a device list, a command sink,
// a status document, and an OAuth token endpoint.
type fakeCloud struct {
	srv *httptest.Server

	mu            sync.Mutex
	validToken    string
	wakeCommands  int
	refreshCalls  int
	switchValue   string
	inputSource   string
	rejectedCalls int
}

func newFakeCloud(t *testing.T) *fakeCloud {
	t.Helper()
	f := &fakeCloud{validToken: "access-1", switchValue: "off"}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/devices", f.requireAuth(f.handleList))
	mux.HandleFunc("/v1/devices/st-tv-1/commands", f.requireAuth(f.handleCommands))
	mux.HandleFunc("/v1/devices/st-tv-1/components/main/status", f.requireAuth(f.handleStatus))
	mux.HandleFunc("/oauth/token", f.handleToken)

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeCloud) client(t *testing.T, cfg *device.Config, store *mockStore) *Client {
	t.Helper()
	opts := Options{
		BaseURL:      f.srv.URL + "/v1",
		TokenURL:     f.srv.URL + "/oauth/token",
		ClientID:     "client-id",
		ClientSecret: "client-secret",
	}
	if store != nil {
		opts.Store = store
	}
	return NewClient(cfg, opts)
}

func (f *fakeCloud) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		ok := r.Header.Get("Authorization") == "Bearer "+f.validToken
		if !ok {
			f.rejectedCalls++
		}
		f.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (f *fakeCloud) handleList(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"items": []map[string]any{
			{"deviceId": "st-other", "label": "Bedroom TV", "name": "Samsung TV"},
			{"deviceId": "st-tv-1", "label": "Living Room TV", "name": "Samsung TV"},
		},
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func (f *fakeCloud) handleCommands(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Commands []struct {
			Capability string `json:"capability"`
			Command    string `json:"command"`
		} `json:"commands"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || len(payload.Commands) == 0 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if payload.Commands[0].Capability == "switch" && payload.Commands[0].Command == "on" {
		f.mu.Lock()
		f.wakeCommands++
		f.mu.Unlock()
	}
	w.WriteHeader(http.StatusOK)
}

func (f *fakeCloud) handleStatus(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	sw, input := f.switchValue, f.inputSource
	f.mu.Unlock()
	resp := map[string]any{
		"switch":           map[string]any{"switch": map[string]any{"value": sw}},
		"mediaInputSource": map[string]any{"inputSource": map[string]any{"value": input}},
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func (f *fakeCloud) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil ||
		r.PostForm.Get("grant_type") != "refresh_token" ||
		r.PostForm.Get("refresh_token") != "refresh-1" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.refreshCalls++
	f.validToken = "access-2"
	f.mu.Unlock()
	_ = json.NewEncoder(w).Encode(map[string]any{
		"access_token":  "access-2",
		"refresh_token": "refresh-2",
		"expires_in":    3600,
	})
}

func TestResolveDeviceIDMatchesByLabel(t *testing.T) {
	f := newFakeCloud(t)
	c := f.client(t, testConfig(), nil)

	id, err := c.ResolveDeviceID(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("ResolveDeviceID() error = %v", err)
	}
	if id != "st-tv-1" {
		t.Errorf("device id = %q, want st-tv-1", id)
	}
}

func TestResolveDeviceIDUnknownDevice(t *testing.T) {
	f := newFakeCloud(t)
	cfg := testConfig()
	cfg.Name = "Garage TV"
	c := f.client(t, cfg, nil)

	if _, err := c.ResolveDeviceID(context.Background(), cfg); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("error = %v, want ErrDeviceNotFound", err)
	}
}

func TestResolveDeviceIDWithoutTokens(t *testing.T) {
	f := newFakeCloud(t)
	cfg := testConfig()
	cfg.CloudAccessToken = ""
	c := f.client(t, cfg, nil)

	if _, err := c.ResolveDeviceID(context.Background(), cfg); !errors.Is(err, ErrNotLinked) {
		t.Errorf("error = %v, want ErrNotLinked", err)
	}
}

func TestWakeDeviceSendsSwitchOn(t *testing.T) {
	f := newFakeCloud(t)
	c := f.client(t, testConfig(), nil)

	if err := c.WakeDevice(context.Background(), "st-tv-1"); err != nil {
		t.Fatalf("WakeDevice() error = %v", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.wakeCommands != 1 {
		t.Errorf("wake commands = %d, want 1", f.wakeCommands)
	}
}

func TestQueryStatus(t *testing.T) {
	f := newFakeCloud(t)
	f.switchValue = "on"
	f.inputSource = "HDMI2"
	c := f.client(t, testConfig(), nil)

	status, err := c.QueryStatus(context.Background(), "st-tv-1")
	if err != nil {
		t.Fatalf("QueryStatus() error = %v", err)
	}
	if !status.PowerOn {
		t.Error("PowerOn = false, want true")
	}
	if status.ActiveSource != "HDMI2" {
		t.Errorf("ActiveSource = %q, want HDMI2", status.ActiveSource)
	}
}

func TestExpiredTokenRefreshesAndRetries(t *testing.T) {
	f := newFakeCloud(t)
	f.validToken = "access-2" // current access token is already stale
	store := &mockStore{}
	c := f.client(t, testConfig(), store)

	if err := c.WakeDevice(context.Background(), "st-tv-1"); err != nil {
		t.Fatalf("WakeDevice() error = %v", err)
	}

	f.mu.Lock()
	refreshes, rejected, wakes := f.refreshCalls, f.rejectedCalls, f.wakeCommands
	f.mu.Unlock()
	if refreshes != 1 {
		t.Errorf("refresh calls = %d, want 1", refreshes)
	}
	if rejected != 1 {
		t.Errorf("rejected calls = %d, want 1", rejected)
	}
	if wakes != 1 {
		t.Errorf("wake commands = %d, want 1", wakes)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.updates) != 1 {
		t.Fatalf("store updates = %d, want 1", len(store.updates))
	}
	got := store.updates[0]
	if got.CloudAccessToken != "access-2" || got.CloudRefreshToken != "refresh-2" {
		t.Errorf("persisted tokens = %q/%q, want access-2/refresh-2",
			got.CloudAccessToken, got.CloudRefreshToken)
	}
	if got.CloudTokenExpiresAt == nil {
		t.Error("persisted expiry is nil, want set")
	}
}

func TestRefreshFailureSurfacesError(t *testing.T) {
	f := newFakeCloud(t)
	f.validToken = "something-else"
	cfg := testConfig()
	cfg.CloudRefreshToken = "wrong-refresh"
	c := f.client(t, cfg, nil)

	if err := c.WakeDevice(context.Background(), "st-tv-1"); err == nil {
		t.Fatal("WakeDevice() expected error when refresh is rejected")
	}
}
