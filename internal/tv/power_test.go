package tv

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"
)

func TestLivenessAliveMeansOn(t *testing.T) {
	cfg := testDeviceConfig()
	cfg.ReportsPowerState = false
	s, _, _, _, _ := newTestSession(t, cfg, nil)
	ctx := context.Background()

	if err := s.Connect(ctx); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	if got := s.State(); got != PowerOn {
		t.Errorf("State() = %v, want ON", got)
	}
}

func TestOffGuardSuppressesLingeringSocket(t *testing.T) {
	cfg := testDeviceConfig()
	cfg.ReportsPowerState = false
	s, _, tr, _, clock := newTestSession(t, cfg, nil)
	ctx := context.Background()

	if err := s.Connect(ctx); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	if got := s.State(); got != PowerOn {
		t.Fatalf("State() = %v, want ON", got)
	}

	s.RequestOff(ctx)
	if got := s.State(); got != PowerOff {
		t.Fatalf("State() after off = %v, want OFF", got)
	}

	// The socket is still technically alive, but the 65s guard must
	// keep the state at OFF.
	if !tr.Alive() {
		t.Fatal("test transport unexpectedly dead")
	}
	clock.Advance(30 * time.Second)
	if got := s.RefreshPowerState(ctx); got != PowerOff {
		t.Errorf("RefreshPowerState() during guard = %v, want OFF", got)
	}

	// Past the guard the lingering socket counts again.
	clock.Advance(40 * time.Second)
	if got := s.RefreshPowerState(ctx); got != PowerOn {
		t.Errorf("RefreshPowerState() after guard = %v, want ON", got)
	}
}

func TestArtModeOffEntersStandby(t *testing.T) {
	cfg := testDeviceConfig()
	cfg.ReportsPowerState = true
	cfg.SupportsArtMode = true
	s, _, tr, prober, clock := newTestSession(t, cfg, nil)
	prober.setResult(&ProbeResult{Power: PowerIndicatorOn, SupportsArtMode: true})
	ctx := context.Background()

	if err := s.Connect(ctx); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	tr.mu.Lock()
	tr.keys = nil
	tr.mu.Unlock()

	s.RequestOff(ctx)

	if got := s.State(); got != PowerStandby {
		t.Errorf("State() = %v, want STANDBY", got)
	}
	keys := tr.sentKeys()
	if len(keys) != 1 {
		t.Fatalf("sent %d keys, want 1", len(keys))
	}
	if keys[0].key != KeyPower || keys[0].holdMs != artModeOffHoldMs {
		t.Errorf("sent key = %+v, want long-press KEY_POWER", keys[0])
	}
	want := clock.Now().Add(defaultArtModeOffGuard)
	if !offGuardDeadline(s).Equal(want) {
		t.Errorf("off-guard deadline = %v, want %v", offGuardDeadline(s), want)
	}
}

func TestStandbyFastPathSkipsWake(t *testing.T) {
	cfg := testDeviceConfig()
	cfg.ReportsPowerState = true
	cfg.SupportsArtMode = true

	var wakes atomic.Int32
	s, _, tr, prober, _ := newTestSession(t, cfg, func(o *Options) {
		o.WakeFunc = func(net.HardwareAddr) error {
			wakes.Add(1)
			return nil
		}
	})
	prober.setResult(&ProbeResult{Power: PowerIndicatorStandby, SupportsArtMode: true})
	ctx := context.Background()

	if err := s.Connect(ctx); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	if got := s.State(); got != PowerStandby {
		t.Fatalf("State() = %v, want STANDBY", got)
	}
	tr.mu.Lock()
	tr.keys = nil
	tr.mu.Unlock()

	s.RequestOn(ctx)

	if got := s.State(); got != PowerOn {
		t.Errorf("State() = %v, want ON", got)
	}
	if n := wakes.Load(); n != 0 {
		t.Errorf("sent %d magic packets, want 0", n)
	}
	keys := tr.sentKeys()
	if len(keys) != 1 || keys[0].key != KeyPower || keys[0].holdMs != 0 {
		t.Errorf("sent keys = %+v, want one KEY_POWER click", keys)
	}
	if onGuardActive(s) {
		t.Error("standby fast path opened a power-on guard")
	}
}

func TestDuplicateWakeSuppressed(t *testing.T) {
	cfg := testDeviceConfig()
	cfg.ReportsPowerState = true

	var wakes atomic.Int32
	s, dialer, _, _, _ := newTestSession(t, cfg, func(o *Options) {
		// Keep the wake task sleeping so the guard stays active.
		o.WakeDelay = time.Hour
		o.WakeFunc = func(net.HardwareAddr) error {
			wakes.Add(1)
			return nil
		}
	})
	dialer.err = errFake
	ctx := context.Background()

	s.RequestOn(ctx)
	waitFor(t, 2*time.Second, func() bool { return wakes.Load() == 1 },
		"first magic packet never sent")
	if got := s.State(); got != PowerOn {
		t.Fatalf("State() = %v, want optimistic ON", got)
	}

	s.RequestOn(ctx)

	time.Sleep(10 * time.Millisecond)
	if n := wakes.Load(); n != 1 {
		t.Errorf("sent %d magic packets after duplicate request, want 1", n)
	}
	if got := s.State(); got != PowerOn {
		t.Errorf("State() = %v, want ON unchanged", got)
	}
}

func TestProbePriorityOverLiveness(t *testing.T) {
	cfg := testDeviceConfig()
	cfg.ReportsPowerState = true
	cfg.SupportsArtMode = true
	s, _, tr, prober, _ := newTestSession(t, cfg, nil)
	prober.setResult(&ProbeResult{Power: PowerIndicatorStandby, SupportsArtMode: true})
	ctx := context.Background()

	if err := s.Connect(ctx); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	if !tr.Alive() {
		t.Fatal("test transport unexpectedly dead")
	}
	if got := s.RefreshPowerState(ctx); got != PowerStandby {
		t.Errorf("RefreshPowerState() = %v, want STANDBY despite live transport", got)
	}
}

func TestRequestOnCancelsPendingOff(t *testing.T) {
	cfg := testDeviceConfig()
	cfg.ReportsPowerState = false

	var wakes atomic.Int32
	s, _, tr, _, _ := newTestSession(t, cfg, func(o *Options) {
		o.WakeDelay = time.Hour
		o.WakeFunc = func(net.HardwareAddr) error {
			wakes.Add(1)
			return nil
		}
	})
	ctx := context.Background()

	if err := s.Connect(ctx); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	s.RequestOff(ctx)
	if offGuardDeadline(s).IsZero() {
		t.Fatal("off-guard not set")
	}
	tr.mu.Lock()
	tr.keys = nil
	tr.mu.Unlock()

	s.RequestOn(ctx)

	if !offGuardDeadline(s).IsZero() {
		t.Error("off-guard not cleared by re-entrant power-on")
	}
	keys := tr.sentKeys()
	if len(keys) != 1 || keys[0].key != KeyPower {
		t.Errorf("sent keys = %+v, want one immediate KEY_POWER", keys)
	}
	if got := s.State(); got != PowerOn {
		t.Errorf("State() = %v, want ON", got)
	}
	waitFor(t, 2*time.Second, func() bool { return wakes.Load() >= 1 },
		"wake sequence never started")
}

func TestRefreshHoldsOptimisticOnDuringWakeGuard(t *testing.T) {
	cfg := testDeviceConfig()
	cfg.ReportsPowerState = true
	s, dialer, _, _, _ := newTestSession(t, cfg, func(o *Options) {
		o.WakeDelay = time.Hour
	})
	dialer.err = errFake
	ctx := context.Background()

	s.RequestOn(ctx)
	if got := s.State(); got != PowerOn {
		t.Fatalf("State() = %v, want optimistic ON", got)
	}

	// The device has not come up yet; the probe says OFF, but the
	// power-on guard holds the visible state.
	if got := s.RefreshPowerState(ctx); got != PowerOn {
		t.Errorf("RefreshPowerState() during on-guard = %v, want ON", got)
	}
}

func TestProbeFailureMeansOff(t *testing.T) {
	cfg := testDeviceConfig()
	cfg.ReportsPowerState = true
	s, _, _, prober, _ := newTestSession(t, cfg, nil)
	prober.err = errFake

	if got := s.RefreshPowerState(context.Background()); got != PowerOff {
		t.Errorf("RefreshPowerState() = %v, want OFF on probe failure", got)
	}
}

func TestToggle(t *testing.T) {
	cfg := testDeviceConfig()
	cfg.ReportsPowerState = true
	s, _, tr, prober, _ := newTestSession(t, cfg, nil)
	prober.setResult(&ProbeResult{Power: PowerIndicatorOn})
	ctx := context.Background()

	if err := s.Connect(ctx); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	tr.mu.Lock()
	tr.keys = nil
	tr.mu.Unlock()

	// ON toggles off.
	s.Toggle(ctx)
	if got := s.State(); got != PowerOff {
		t.Errorf("State() after toggle = %v, want OFF", got)
	}
	keys := tr.sentKeys()
	if len(keys) != 1 || keys[0].key != KeyPower {
		t.Errorf("sent keys = %+v, want one KEY_POWER", keys)
	}
}

func TestCapabilityDiscoveryPersisted(t *testing.T) {
	cfg := testDeviceConfig()
	cfg.ReportsPowerState = true
	cfg.MACAddress = ""

	store := &mockStore{}
	s, _, _, prober, _ := newTestSession(t, cfg, func(o *Options) {
		o.Store = store
	})
	prober.setResult(&ProbeResult{
		Power:           PowerIndicatorOn,
		SupportsArtMode: true,
		MACAddress:      "aa:bb:cc:dd:ee:ff",
	})

	s.RefreshPowerState(context.Background())

	if !cfg.SupportsArtMode {
		t.Error("SupportsArtMode not latched from probe")
	}
	if cfg.MACAddress != "aa:bb:cc:dd:ee:ff" {
		t.Errorf("MACAddress = %q, want discovered value", cfg.MACAddress)
	}
	if store.updateCount() == 0 {
		t.Error("discovered capabilities not written through to store")
	}
	if store.lastUpdatePtr() == cfg {
		t.Error("store received the live config instead of a snapshot")
	}
}
