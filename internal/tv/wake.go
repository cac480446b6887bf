package tv

import (
	"context"
	"fmt"
	"net"
	"time"
)

// magicPacket builds a wake-on-LAN frame: six 0xFF bytes followed by
// sixteen repetitions of the hardware address.
func magicPacket(mac net.HardwareAddr) ([]byte, error) {
	if len(mac) != 6 {
		return nil, fmt.Errorf("tv: unsupported hardware address length %d", len(mac))
	}
	payload := make([]byte, 0, 6+16*6)
	for i := 0; i < 6; i++ {
		payload = append(payload, 0xFF)
	}
	for i := 0; i < 16; i++ {
		payload = append(payload, mac...)
	}
	return payload, nil
}

// SendMagicPacket broadcasts a wake-on-LAN magic packet for the given
// MAC address over UDP to the discard port.
func SendMagicPacket(mac net.HardwareAddr) error {
	payload, err := magicPacket(mac)
	if err != nil {
		return err
	}

	conn, err := net.Dial("udp", "255.255.255.255:9")
	if err != nil {
		return fmt.Errorf("tv: dialing broadcast: %w", err)
	}
	defer conn.Close()

	if _, err := conn.Write(payload); err != nil {
		return fmt.Errorf("tv: sending magic packet: %w", err)
	}
	return nil
}

// startWakeTask launches the wake sequence as a tracked task, unless
// one is already running.
func (s *Session) startWakeTask() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.wakeTask.running() {
		return
	}
	s.wakeTask = newTask(s.rootCtx, s.runWakeSequence)
}

// runWakeSequence is the asynchronous wake loop: broadcast a magic
// packet, wait, reconnect, probe; break on the first ON. A missing MAC
// aborts immediately — the device cannot be woken over the network and
// the state resolves to OFF. The power-on guard is cleared
// unconditionally when the sequence ends, including on cancellation.
func (s *Session) runWakeSequence(ctx context.Context) {
	defer s.clearOnGuard()

	mac, err := s.cfg.HardwareAddr()
	if err != nil {
		s.logger.Error("wake aborted, no usable mac address", "device", s.cfg.Identifier)
		s.setState(PowerOff, OriginCommand)
		return
	}

	if s.cloud != nil && s.cfg.SupportsCloudWake {
		// Best effort, racing the magic packets. WOL remains the
		// reliable path; a cloud failure is ignored.
		s.startCloudWake()
	}

	for attempt := 1; attempt <= s.opts.WakeAttempts; attempt++ {
		if err := s.wakeFn(mac); err != nil {
			s.logger.Warn("magic packet send failed",
				"device", s.cfg.Identifier, "attempt", attempt, "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.opts.WakeDelay):
		}

		s.checkConnectionAndReconnect(ctx)
		if s.probeRaw(ctx) == PowerOn {
			break
		}
	}

	// The final commit honors the off-guard: an off request issued
	// mid-wake supersedes the wake, and a slowly tearing-down set still
	// answering "on" must not flip the state back.
	final := s.probeRaw(ctx)
	s.mu.Lock()
	if final == PowerOn && s.now().Before(s.offGuardUntil) {
		final = s.state
	}
	s.mu.Unlock()
	s.setState(final, OriginProbe)
	if final != PowerOn {
		s.logger.Warn("wake sequence finished without reaching ON",
			"device", s.cfg.Identifier, "state", final)
	}
}

// startCloudWake launches the cloud wake command as a tracked task so
// teardown can join it like any other background job.
func (s *Session) startCloudWake() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.cloudTask.running() {
		return
	}
	s.cloudTask = newTask(s.rootCtx, s.runCloudWake)
}

// runCloudWake fires the optional cloud wake command.
func (s *Session) runCloudWake(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.CloudTimeout)
	defer cancel()

	id, ok := s.cloudID(ctx)
	if !ok {
		return
	}
	if err := s.cloud.WakeDevice(ctx, id); err != nil {
		s.logger.Debug("cloud wake failed", "device", s.cfg.Identifier, "error", err)
	}
}

// cloudID returns the cached cloud device id, resolving it on first
// use. The cache survives reconnects within the session.
func (s *Session) cloudID(ctx context.Context) (string, bool) {
	s.mu.Lock()
	if s.cloudDeviceID != "" {
		id := s.cloudDeviceID
		s.mu.Unlock()
		return id, true
	}
	cfg := s.cfg.Copy()
	s.mu.Unlock()

	id, err := s.cloud.ResolveDeviceID(ctx, cfg)
	if err != nil || id == "" {
		s.logger.Debug("cloud device id resolution failed",
			"device", cfg.Identifier, "error", err)
		return "", false
	}

	s.mu.Lock()
	s.cloudDeviceID = id
	s.mu.Unlock()
	return id, true
}
