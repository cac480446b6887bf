package tv

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/slatehome/tvbridge/internal/device"
)

var errFake = errors.New("fake failure")

// fakeClock is an adjustable clock for guard-window tests.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type keyPress struct {
	key    string
	holdMs int
}

// mockTransport is a test implementation of Transport.
type mockTransport struct {
	mu       sync.Mutex
	alive    bool
	token    string
	keys     []keyPress
	sendErr  error
	apps     map[string]string
	appsErr  error
	launched []string
	closed   bool
}

func (m *mockTransport) Alive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.alive
}

func (m *mockTransport) SendKey(_ context.Context, key string, holdMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.keys = append(m.keys, keyPress{key: key, holdMs: holdMs})
	return nil
}

func (m *mockTransport) InstalledApps(context.Context) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appsErr != nil {
		return nil, m.appsErr
	}
	apps := make(map[string]string, len(m.apps))
	for k, v := range m.apps {
		apps[k] = v
	}
	return apps, nil
}

func (m *mockTransport) LaunchApp(_ context.Context, appID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.launched = append(m.launched, appID)
	return nil
}

func (m *mockTransport) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

func (m *mockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alive = false
	m.closed = true
	return nil
}

func (m *mockTransport) setAlive(alive bool) {
	m.mu.Lock()
	m.alive = alive
	m.mu.Unlock()
}

func (m *mockTransport) sentKeys() []keyPress {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]keyPress, len(m.keys))
	copy(keys, m.keys)
	return keys
}

func (m *mockTransport) launchedApps() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	apps := make([]string, len(m.launched))
	copy(apps, m.launched)
	return apps
}

// mockDialer is a test implementation of Dialer.
type mockDialer struct {
	mu    sync.Mutex
	tr    *mockTransport
	err   error
	dials int
	gate  chan struct{}
}

func (d *mockDialer) Dial(context.Context, *device.Config) (Transport, error) {
	d.mu.Lock()
	d.dials++
	gate := d.gate
	err := d.err
	tr := d.tr
	d.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return tr, nil
}

func (d *mockDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// mockProber is a test implementation of Prober.
type mockProber struct {
	mu    sync.Mutex
	res   *ProbeResult
	err   error
	calls int
	fn    func(call int) (*ProbeResult, error)
}

func (p *mockProber) Probe(context.Context, string) (*ProbeResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.fn != nil {
		return p.fn(p.calls)
	}
	if p.err != nil {
		return nil, p.err
	}
	if p.res == nil {
		return &ProbeResult{Power: PowerIndicatorOff}, nil
	}
	return p.res, nil
}

func (p *mockProber) setResult(res *ProbeResult) {
	p.mu.Lock()
	p.res = res
	p.mu.Unlock()
}

// mockStore is a test implementation of ConfigStore.
type mockStore struct {
	mu      sync.Mutex
	updates int
	last    device.Config
	lastPtr *device.Config
}

func (m *mockStore) Update(_ context.Context, cfg *device.Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates++
	m.last = *cfg.Copy()
	m.lastPtr = cfg
	return nil
}

func (m *mockStore) updateCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updates
}

func (m *mockStore) lastUpdatePtr() *device.Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastPtr
}

// mockCloud is a test implementation of CloudClient.
type mockCloud struct {
	mu        sync.Mutex
	id        string
	wakes     int
	queries   int
	status    *CloudStatus
	statusErr error
}

func (m *mockCloud) ResolveDeviceID(context.Context, *device.Config) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.id == "" {
		return "cloud-device-1", nil
	}
	return m.id, nil
}

func (m *mockCloud) WakeDevice(context.Context, string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wakes++
	return nil
}

func (m *mockCloud) QueryStatus(context.Context, string) (*CloudStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries++
	if m.statusErr != nil {
		return nil, m.statusErr
	}
	return m.status, nil
}

func (m *mockCloud) queryCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queries
}

func testDeviceConfig() *device.Config {
	return &device.Config{
		Identifier: "tv-1",
		Name:       "Test TV",
		Address:    "192.168.1.50",
		MACAddress: "aa:bb:cc:dd:ee:ff",
		AuthToken:  "token",
	}
}

// newTestSession builds a session with mock collaborators and a fake
// clock. The mut callback adjusts Options before construction.
func newTestSession(t *testing.T, cfg *device.Config, mut func(*Options)) (*Session, *mockDialer, *mockTransport, *mockProber, *fakeClock) {
	t.Helper()

	tr := &mockTransport{alive: true}
	dialer := &mockDialer{tr: tr}
	prober := &mockProber{}
	clock := newFakeClock()

	opts := Options{
		Dialer:    dialer,
		Prober:    prober,
		WakeDelay: time.Millisecond,
		WakeFunc:  func(net.HardwareAddr) error { return nil },
		Now:       clock.Now,
	}
	if mut != nil {
		mut(&opts)
	}

	s, err := NewSession(cfg, opts)
	if err != nil {
		t.Fatalf("NewSession() error: %v", err)
	}
	t.Cleanup(s.Close)
	return s, dialer, tr, prober, clock
}

// drainEvents reads everything currently buffered on the event channel.
func drainEvents(s *Session) []Event {
	var events []Event
	for {
		select {
		case ev := <-s.Events():
			events = append(events, ev)
		default:
			return events
		}
	}
}

func countEvents(events []Event, typ EventType) int {
	n := 0
	for _, ev := range events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

// waitFor polls cond until it returns true or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

// onGuardActive reports whether the session's power-on guard deadline
// is still set.
func onGuardActive(s *Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.onGuardUntil.IsZero()
}

// offGuardDeadline returns the session's power-off guard deadline.
func offGuardDeadline(s *Session) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offGuardUntil
}
