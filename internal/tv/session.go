package tv

import (
	"context"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/slatehome/tvbridge/internal/device"
)

// Session owns the lifecycle of a single device's transport connection
// and dispatches outbound commands through the power engine's
// connectivity guard. Exactly one Session per device config may hold a
// live transport handle; Connect enforces this by being idempotent
// rather than by locking.
//
// All public methods are safe for concurrent use. Network calls may
// block for their configured timeouts but never hold the session mutex
// while doing so, so one stalled device cannot wedge its siblings.
type Session struct {
	cfg    *device.Config
	dialer Dialer
	prober Prober
	cloud  CloudClient
	store  ConfigStore
	logger Logger
	opts   Options
	wakeFn func(mac net.HardwareAddr) error
	now    func() time.Time

	rootCtx    context.Context
	rootCancel context.CancelFunc

	mu            sync.Mutex
	transport     Transport
	state         PowerState
	offGuardUntil time.Time
	onGuardUntil  time.Time
	apps          map[string]string
	cloudDeviceID string
	lastCloudPoll time.Time
	connecting    bool
	closed        bool
	eventsClosed  bool
	dropped       uint64

	wakeTask      *task
	cloudTask     *task
	pollTask      *task
	appTask       *task
	reconnectTask *task

	events chan Event
}

// NewSession creates a session for one device. The config is shared by
// reference with the caller; the session mutates it in place on token
// renewal and capability discovery, writing through to the config
// store when one is provided.
func NewSession(cfg *device.Config, opts Options) (*Session, error) {
	if cfg == nil {
		return nil, fmt.Errorf("tv: device config is required")
	}
	if opts.Dialer == nil {
		return nil, fmt.Errorf("tv: transport dialer is required")
	}
	if opts.Prober == nil {
		return nil, fmt.Errorf("tv: status prober is required")
	}
	opts.applyDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		cfg:        cfg,
		dialer:     opts.Dialer,
		prober:     opts.Prober,
		cloud:      opts.Cloud,
		store:      opts.Store,
		logger:     opts.Logger,
		opts:       opts,
		wakeFn:     opts.WakeFunc,
		now:        opts.Now,
		rootCtx:    ctx,
		rootCancel: cancel,
		state:      PowerUnknown,
		events:     make(chan Event, opts.EventBuffer),
	}, nil
}

// DeviceID returns the immutable device identifier.
func (s *Session) DeviceID() string {
	return s.cfg.Identifier
}

// Config returns a copy of the current device configuration.
func (s *Session) Config() device.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.cfg.Copy()
}

// Events returns the session's event channel. It is closed by Close.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Connect establishes the transport connection. Idempotent: if a
// connect is already in flight or a live handle exists, it returns
// immediately. A refused handshake is not an error — the TV is simply
// off — so the state resolves to OFF, an event is emitted, and the
// call returns nil.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.connecting || (s.transport != nil && s.transport.Alive()) {
		s.mu.Unlock()
		return nil
	}
	s.connecting = true
	timeout := s.opts.PairingTimeout
	if s.cfg.AuthToken != "" {
		timeout = s.opts.HandshakeTimeout
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.connecting = false
		s.mu.Unlock()
	}()

	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	tr, err := s.dialer.Dial(dctx, s.cfg)
	if err != nil {
		// A TV that refuses the socket is off, not broken. Refusals
		// during an active power-on guard are expected mid-wake and
		// must not knock down the optimistic ON.
		s.logger.Debug("handshake failed, treating device as off",
			"device", s.cfg.Identifier, "error", err)
		s.mu.Lock()
		wakeInProgress := s.now().Before(s.onGuardUntil)
		s.mu.Unlock()
		if !wakeInProgress {
			s.setState(PowerOff, OriginSocket)
		}
		// The poll loop still runs for an unreachable set; it is what
		// notices the TV coming back.
		s.startPolling()
		return nil
	}

	s.persistRenewedToken(ctx, tr.Token())

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = tr.Close()
		return ErrSessionClosed
	}
	s.transport = tr
	s.mu.Unlock()

	s.sendEvent(Event{Type: EventConnected})
	s.RefreshPowerState(ctx)
	s.startAppRefresh()
	s.startPolling()
	return nil
}

// persistRenewedToken writes a renegotiated auth token through to the
// config store so it survives restarts.
func (s *Session) persistRenewedToken(ctx context.Context, token string) {
	s.mu.Lock()
	if token == "" || token == s.cfg.AuthToken {
		s.mu.Unlock()
		return
	}
	s.cfg.AuthToken = token
	cfg := s.cfg.Copy()
	s.mu.Unlock()

	s.logger.Info("auth token renewed", "device", cfg.Identifier)
	if s.store == nil {
		return
	}
	if err := s.store.Update(ctx, cfg); err != nil {
		s.logger.Error("persisting renewed auth token failed",
			"device", cfg.Identifier, "error", err)
	}
}

// Disconnect cancels outstanding background tasks, closes the
// transport, and resolves the state to OFF. Network-absent means
// powered off in this domain; there is no separate "unavailable"
// state.
func (s *Session) Disconnect() {
	s.mu.Lock()
	wake, cloud, poll, apps, redial := s.wakeTask, s.cloudTask, s.pollTask, s.appTask, s.reconnectTask
	s.wakeTask, s.cloudTask, s.pollTask, s.appTask, s.reconnectTask = nil, nil, nil, nil, nil
	tr := s.transport
	s.transport = nil
	s.mu.Unlock()

	wake.stop()
	cloud.stop()
	poll.stop()
	apps.stop()
	redial.stop()
	if tr != nil {
		_ = tr.Close()
	}

	s.setState(PowerOff, OriginSocket)
	s.sendEvent(Event{Type: EventDisconnected})
}

// Close tears the session down permanently: cancels all tasks,
// disconnects, and closes the event channel.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.rootCancel()
	s.Disconnect()

	s.mu.Lock()
	s.eventsClosed = true
	close(s.events)
	s.mu.Unlock()
}

// checkConnectionAndReconnect is the self-healing guard run before
// every outbound command: dial if there is no handle, redial if the
// handle has gone stale. Failures stay internal — the device is off.
func (s *Session) checkConnectionAndReconnect(ctx context.Context) {
	s.mu.Lock()
	tr := s.transport
	s.mu.Unlock()

	if tr != nil {
		if tr.Alive() {
			return
		}
		// Stale handle: drop it and dial fresh.
		s.mu.Lock()
		if s.transport == tr {
			s.transport = nil
		}
		s.mu.Unlock()
		_ = tr.Close()
	}

	if err := s.Connect(ctx); err != nil {
		s.logger.Debug("reconnect attempt failed",
			"device", s.cfg.Identifier, "error", err)
	}
}

// SendKey dispatches a key event through the transport, reconnecting
// first if needed. Keys sent to an unreachable device are dropped with
// a debug log; that is the expected path, not a fault.
func (s *Session) SendKey(ctx context.Context, key string, holdMs int) Result {
	s.checkConnectionAndReconnect(ctx)

	s.mu.Lock()
	tr := s.transport
	s.mu.Unlock()

	if tr == nil || !tr.Alive() {
		s.logger.Debug("key dropped, device unreachable",
			"device", s.cfg.Identifier, "key", key)
		return ResultNotDelivered
	}

	if err := tr.SendKey(ctx, key, holdMs); err != nil {
		s.logger.Warn("key dispatch failed",
			"device", s.cfg.Identifier, "key", key, "error", err)
		s.sendEvent(Event{Type: EventConnectionError})
		return ResultNotDelivered
	}
	return ResultDelivered
}

// LaunchApp starts an app by name or id. Physical-input names (TV,
// HDMI, HDMI1..4) dispatch their dedicated key commands instead of an
// app launch, since the local app-launch call cannot switch inputs.
// Unresolved names are logged and dropped.
func (s *Session) LaunchApp(ctx context.Context, name string) Result {
	if key, ok := sourceKey(name); ok {
		res := s.SendKey(ctx, key, 0)
		if res == ResultDelivered {
			s.sendEvent(Event{
				Type:         EventStateChanged,
				PowerState:   s.State(),
				ActiveSource: name,
			})
		}
		return res
	}

	s.mu.Lock()
	appID, ok := s.apps[name]
	s.mu.Unlock()
	if !ok {
		s.logger.Warn("unknown app", "device", s.cfg.Identifier, "app", name)
		return ResultUnsupported
	}

	s.checkConnectionAndReconnect(ctx)

	s.mu.Lock()
	tr := s.transport
	s.mu.Unlock()
	if tr == nil || !tr.Alive() {
		s.logger.Debug("app launch dropped, device unreachable",
			"device", s.cfg.Identifier, "app", name)
		return ResultNotDelivered
	}

	if err := tr.LaunchApp(ctx, appID); err != nil {
		s.logger.Warn("app launch failed",
			"device", s.cfg.Identifier, "app", name, "error", err)
		s.sendEvent(Event{Type: EventConnectionError})
		return ResultNotDelivered
	}

	s.sendEvent(Event{
		Type:         EventStateChanged,
		PowerState:   s.State(),
		ActiveSource: name,
	})
	return ResultDelivered
}

// SourceList returns the selectable sources: the fixed physical-input
// baseline plus any discovered apps, sorted. The baseline is always
// present, so the list is never empty even when app discovery fails.
func (s *Session) SourceList() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := make([]string, 0, len(baselineSources)+len(s.apps))
	list = append(list, baselineSources...)

	names := make([]string, 0, len(s.apps))
	for name := range s.apps {
		names = append(names, name)
	}
	sort.Strings(names)
	return append(list, names...)
}

// startAppRefresh launches the asynchronous app-list refresh.
func (s *Session) startAppRefresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.appTask.running() {
		return
	}
	s.appTask = newTask(s.rootCtx, s.refreshAppList)
}

// refreshAppList merges the device's installed-app report into the
// cached name → id map. The cache is additive and survives reconnects;
// a failed query just leaves the previous entries in place.
func (s *Session) refreshAppList(ctx context.Context) {
	s.mu.Lock()
	tr := s.transport
	s.mu.Unlock()
	if tr == nil || !tr.Alive() {
		return
	}

	apps, err := tr.InstalledApps(ctx)
	if err != nil {
		s.logger.Debug("app list refresh failed",
			"device", s.cfg.Identifier, "error", err)
		return
	}

	s.mu.Lock()
	if s.apps == nil {
		s.apps = make(map[string]string, len(apps))
	}
	for name, id := range apps {
		s.apps[name] = id
	}
	count := len(s.apps)
	s.mu.Unlock()

	s.logger.Debug("app list refreshed", "device", s.cfg.Identifier, "count", count)
	s.sendEvent(Event{
		Type:       EventStateChanged,
		PowerState: s.State(),
		SourceList: s.SourceList(),
	})
}

// startPolling launches the periodic power-state poll when enabled.
func (s *Session) startPolling() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.opts.PollInterval <= 0 || s.pollTask.running() {
		return
	}
	s.pollTask = newTask(s.rootCtx, s.runPollLoop)
}

// runPollLoop periodically re-probes the device. When the device looks
// off locally and a cloud client is configured, an occasional cloud
// status query catches sets that were turned on out-of-band (remote in
// hand, different subnet) and triggers a local reconnect.
func (s *Session) runPollLoop(ctx context.Context) {
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if s.RefreshPowerState(ctx) == PowerOff {
			s.maybeCloudPoll(ctx)
			continue
		}

		// Device looks on but the control channel is down: a set
		// switched on out-of-band, or a socket that died quietly.
		s.mu.Lock()
		needDial := s.transport == nil || !s.transport.Alive()
		s.mu.Unlock()
		if needDial {
			s.startReconnect()
		}
	}
}

// Reconnect backoff shape, matching observed TV boot times: the
// control channel can take the better part of a minute to accept
// connections after the panel lights up.
const (
	reconnectBackoffStep = 2 * time.Second
	reconnectBackoffMax  = 30 * time.Second
)

// startReconnect launches the background redial loop.
func (s *Session) startReconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.reconnectTask.running() {
		return
	}
	s.reconnectTask = newTask(s.rootCtx, s.runReconnectLoop)
}

// runReconnectLoop redials with linear backoff until a live handle
// exists or the device resolves to OFF, whichever comes first. Once
// the device is OFF the poll loop owns re-detection.
func (s *Session) runReconnectLoop(ctx context.Context) {
	for attempt := 1; ; attempt++ {
		s.checkConnectionAndReconnect(ctx)

		s.mu.Lock()
		alive := s.transport != nil && s.transport.Alive()
		off := s.state == PowerOff || s.state == PowerUnknown
		s.mu.Unlock()
		if alive || off {
			return
		}

		delay := time.Duration(attempt) * reconnectBackoffStep
		if delay > reconnectBackoffMax {
			delay = reconnectBackoffMax
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// maybeCloudPoll queries the cloud for device status, throttled to
// CloudPollEvery.
func (s *Session) maybeCloudPoll(ctx context.Context) {
	if s.cloud == nil || s.cfg.CloudAccessToken == "" {
		return
	}

	s.mu.Lock()
	now := s.now()
	if now.Sub(s.lastCloudPoll) < s.opts.CloudPollEvery {
		s.mu.Unlock()
		return
	}
	s.lastCloudPoll = now
	s.mu.Unlock()

	cctx, cancel := context.WithTimeout(ctx, s.opts.CloudTimeout)
	defer cancel()

	id, ok := s.cloudID(cctx)
	if !ok {
		return
	}
	status, err := s.cloud.QueryStatus(cctx, id)
	if err != nil {
		s.logger.Debug("cloud status query failed",
			"device", s.cfg.Identifier, "error", err)
		return
	}
	if status != nil && status.PowerOn {
		// The cloud sees the set awake; re-establish the local path.
		s.checkConnectionAndReconnect(ctx)
	}
}

// DroppedEvents returns how many events have been discarded because
// the event buffer was full. A nonzero count means a consumer is not
// keeping up.
func (s *Session) DroppedEvents() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// sendEvent delivers an event without blocking; a full buffer drops
// the event with a warning rather than stalling the engine.
func (s *Session) sendEvent(ev Event) {
	ev.DeviceID = s.cfg.Identifier
	ev.Timestamp = time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.eventsClosed {
		return
	}
	select {
	case s.events <- ev:
	default:
		s.dropped++
		s.logger.Warn("event buffer full, dropping event",
			"device", s.cfg.Identifier, "type", ev.Type)
	}
}
