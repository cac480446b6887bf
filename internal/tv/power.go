package tv

import (
	"context"
	"time"
)

// PowerState is the authoritative power state the engine computes for
// a device.
type PowerState string

// Power states. UNKNOWN is valid only between session construction and
// the first probe; it is never visible externally (State maps it to
// OFF).
const (
	PowerUnknown PowerState = "UNKNOWN"
	PowerOff     PowerState = "OFF"
	PowerStandby PowerState = "STANDBY"
	PowerOn      PowerState = "ON"
)

// State returns the externally visible power state. OFF is the
// conservative default before the first probe.
func (s *Session) State() PowerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == PowerUnknown {
		return PowerOff
	}
	return s.state
}

// Toggle flips the device's power: ON requests off, anything else
// requests on. The target is computed from a fresh probe, not from the
// possibly stale cached state.
func (s *Session) Toggle(ctx context.Context) Result {
	if s.RefreshPowerState(ctx) == PowerOn {
		return s.RequestOff(ctx)
	}
	return s.RequestOn(ctx)
}

// RequestOn drives the device toward ON.
//
// Already ON: no-op. STANDBY: the network interface is still up, so a
// single key press suffices — no wake sequence. OFF: state goes ON
// optimistically for UI responsiveness, a power-on guard opens, and
// the asynchronous wake sequence takes over (it corrects the state
// back to OFF if the device never comes up).
//
// A request arriving while the power-on guard is active is dropped to
// avoid wake storms. A request arriving while a power-off guard is
// active cancels the pending power-off instead.
func (s *Session) RequestOn(ctx context.Context) Result {
	s.mu.Lock()
	now := s.now()
	if now.Before(s.onGuardUntil) {
		s.mu.Unlock()
		s.logger.Debug("power-on already in progress", "device", s.cfg.Identifier)
		return ResultDelivered
	}
	offGuardActive := now.Before(s.offGuardUntil)
	state := s.state

	if state == PowerOn && !offGuardActive {
		s.mu.Unlock()
		return ResultDelivered
	}

	if offGuardActive {
		// Cancel the pending power-off: clear its guard, nudge the set
		// awake immediately, then run the full wake sequence in case
		// the teardown already progressed too far.
		s.offGuardUntil = time.Time{}
		s.onGuardUntil = now.Add(s.opts.PowerOnGuard)
		s.mu.Unlock()
		s.SendKey(ctx, KeyPower, 0)
		s.setState(PowerOn, OriginCommand)
		s.startWakeTask()
		return ResultDelivered
	}

	if state == PowerStandby {
		s.mu.Unlock()
		res := s.SendKey(ctx, KeyPower, 0)
		s.setState(PowerOn, OriginCommand)
		return res
	}

	s.onGuardUntil = now.Add(s.opts.PowerOnGuard)
	s.mu.Unlock()
	s.setState(PowerOn, OriginCommand)
	s.startWakeTask()
	return ResultDelivered
}

// RequestOff drives the device toward its off state.
//
// Art-mode sets drop to STANDBY behind a short guard; their REST
// endpoint reports the change immediately, the guard only covers
// transport lag. Legacy sets go straight to OFF behind a long guard
// that absorbs their slow socket teardown.
func (s *Session) RequestOff(ctx context.Context) Result {
	s.mu.Lock()
	artMode := s.cfg.SupportsArtMode
	// An off request supersedes a wake in flight: drop the on-guard and
	// cancel the sequence so its late probes cannot flip the state back.
	s.onGuardUntil = time.Time{}
	wake := s.wakeTask
	s.wakeTask = nil
	s.mu.Unlock()
	wake.stop()

	var res Result
	if artMode {
		res = s.SendKey(ctx, KeyPower, artModeOffHoldMs)
		s.mu.Lock()
		s.offGuardUntil = s.now().Add(s.opts.ArtModeOffGuard)
		s.mu.Unlock()
		s.setState(PowerStandby, OriginCommand)
	} else {
		res = s.SendKey(ctx, KeyPower, 0)
		s.mu.Lock()
		s.offGuardUntil = s.now().Add(s.opts.LegacyOffGuard)
		s.mu.Unlock()
		s.setState(PowerOff, OriginCommand)
	}
	return res
}

// RefreshPowerState probes the device and reconciles the result with
// the active guard windows, updating the visible state and emitting a
// state-change event when it moves.
func (s *Session) RefreshPowerState(ctx context.Context) PowerState {
	raw := s.probeRaw(ctx)

	s.mu.Lock()
	now := s.now()
	origin := OriginSocket
	if s.cfg.ReportsPowerState {
		origin = OriginProbe
	}
	visible := raw
	// Guards reinterpret ambiguous signals, they never block. A
	// lingering connection must not flip us back to ON right after an
	// off command, and a not-yet-awake probe must not knock down the
	// optimistic ON while the wake sequence runs.
	if raw == PowerOn && now.Before(s.offGuardUntil) {
		visible = s.state
	}
	if raw != PowerOn && now.Before(s.onGuardUntil) {
		visible = s.state
	}
	s.mu.Unlock()

	s.setState(visible, origin)
	return s.State()
}

// probeRaw reads the strongest available power signal without guard
// filtering. Self-reporting devices get a REST probe; probe failure
// means OFF, because an unreachable TV is a normal condition, not a
// fault. Everything else falls back to transport liveness, where an
// active off-guard suppresses the false-positive ON a lingering socket
// would otherwise produce.
func (s *Session) probeRaw(ctx context.Context) PowerState {
	s.mu.Lock()
	selfReporting := s.cfg.ReportsPowerState
	address := s.cfg.Address
	s.mu.Unlock()

	if selfReporting {
		pctx, cancel := context.WithTimeout(ctx, s.opts.ProbeTimeout)
		defer cancel()

		res, err := s.prober.Probe(pctx, address)
		if err != nil {
			return PowerOff
		}
		s.applyDiscovery(res)
		switch res.Power {
		case PowerIndicatorOn:
			return PowerOn
		case PowerIndicatorStandby:
			return PowerStandby
		default:
			return PowerOff
		}
	}

	s.mu.Lock()
	tr := s.transport
	offGuardActive := s.now().Before(s.offGuardUntil)
	s.mu.Unlock()

	if tr != nil && tr.Alive() && !offGuardActive {
		return PowerOn
	}
	return PowerOff
}

// applyDiscovery latches capabilities and metadata reported by the
// probe onto the device config, writing changes through to the store.
func (s *Session) applyDiscovery(res *ProbeResult) {
	s.mu.Lock()
	changed := false
	if res.MACAddress != "" && s.cfg.MACAddress == "" {
		s.cfg.MACAddress = res.MACAddress
		changed = true
	}
	if res.SupportsArtMode && !s.cfg.SupportsArtMode {
		s.cfg.SupportsArtMode = true
		changed = true
	}
	if res.SupportsCloudWake && !s.cfg.SupportsCloudWake {
		s.cfg.SupportsCloudWake = true
		changed = true
	}
	// Snapshot under the lock; the store must never see the live config
	// while other session goroutines mutate it.
	cfg := s.cfg.Copy()
	s.mu.Unlock()

	if !changed || s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(s.rootCtx, 5*time.Second)
	defer cancel()
	if err := s.store.Update(ctx, cfg); err != nil {
		s.logger.Warn("persisting discovered capabilities failed",
			"device", cfg.Identifier, "error", err)
	}
}

// setState commits a new visible state, emitting a state-change event
// when it differs from the current one. UNKNOWN is never exposed.
func (s *Session) setState(state PowerState, origin string) {
	if state == PowerUnknown {
		state = PowerOff
	}

	s.mu.Lock()
	if s.state == state {
		s.mu.Unlock()
		return
	}
	s.state = state
	s.mu.Unlock()

	s.logger.Debug("power state changed",
		"device", s.cfg.Identifier, "state", state, "origin", origin)
	s.sendEvent(Event{
		Type:       EventStateChanged,
		PowerState: state,
		Origin:     origin,
		SourceList: s.SourceList(),
	})
}

// clearOnGuard drops the power-on guard; called unconditionally when
// the wake sequence finishes.
func (s *Session) clearOnGuard() {
	s.mu.Lock()
	s.onGuardUntil = time.Time{}
	s.mu.Unlock()
}
