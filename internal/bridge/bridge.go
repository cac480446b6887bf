package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/slatehome/tvbridge/internal/infrastructure/mqtt"
	"github.com/slatehome/tvbridge/internal/tv"
)

// commandTimeout bounds a single command dispatch, wake sequences
// excluded (those run asynchronously inside the session).
const defaultCommandTimeout = 10 * time.Second

// MQTTClient is the broker surface the bridge needs. Satisfied by
// *mqtt.Client; narrowed for testing.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// HistoryRecorder persists observed power-state changes. Satisfied by
// *device.SQLiteStateHistoryRepository. Optional.
type HistoryRecorder interface {
	RecordStateChange(ctx context.Context, deviceID, powerState, source string) error
}

// MetricsWriter mirrors state changes into the time-series store.
// Satisfied by *influxdb.Client. Optional; writes are fire-and-forget.
type MetricsWriter interface {
	WritePowerState(deviceID, state, source string)
	WriteSourceChange(deviceID, sourceName string)
}

// Logger is the minimal logging surface used by the bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures a Bridge.
type Options struct {
	MQTT     MQTTClient
	Sessions *tv.SessionRegistry
	History  HistoryRecorder // optional
	Metrics  MetricsWriter   // optional
	Logger   Logger

	// QoS for all published messages.
	QoS byte

	// CommandTimeout bounds each inbound command dispatch.
	CommandTimeout time.Duration
}

// Bridge mirrors session events onto MQTT and dispatches inbound MQTT
// commands to sessions. One Bridge serves all registered sessions.
//
// Thread Safety: all methods are safe for concurrent use.
type Bridge struct {
	mqtt     MQTTClient
	sessions *tv.SessionRegistry
	history  HistoryRecorder
	metrics  MetricsWriter
	logger   Logger
	topics   mqtt.Topics
	qos      byte
	timeout  time.Duration

	ctx       context.Context
	ctxCancel context.CancelFunc
	wg        sync.WaitGroup
	stopOnce  sync.Once
}

// New creates a bridge. Start must be called before it does anything.
func New(opts Options) (*Bridge, error) {
	if opts.MQTT == nil {
		return nil, fmt.Errorf("bridge: mqtt client is required")
	}
	if opts.Sessions == nil {
		return nil, fmt.Errorf("bridge: session registry is required")
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = defaultCommandTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Bridge{
		mqtt:      opts.MQTT,
		sessions:  opts.Sessions,
		history:   opts.History,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		qos:       opts.QoS,
		timeout:   opts.CommandTimeout,
		ctx:       ctx,
		ctxCancel: cancel,
	}, nil
}

// Start subscribes to the command topics and begins consuming every
// registered session's event channel. Initial retained state is
// published for each device so subscribers never see an empty topic.
func (b *Bridge) Start() error {
	if err := b.mqtt.Subscribe(b.topics.AllCommands(), b.qos, b.handleCommand); err != nil {
		return fmt.Errorf("bridge: subscribing to command topics: %w", err)
	}

	for _, s := range b.sessions.List() {
		b.publishInitialState(s)
		b.wg.Add(1)
		go b.watchSession(s)
	}

	b.logger.Info("bridge started", "sessions", b.sessions.Count())
	return nil
}

// Stop halts event consumption and marks every device offline. It does
// not close the sessions; their owner does that.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.ctxCancel()
		b.wg.Wait()

		for _, s := range b.sessions.List() {
			b.publishAvailability(s.DeviceID(), AvailabilityOffline)
		}
		b.logger.Info("bridge stopped")
	})
}

// publishInitialState seeds the retained topics from the session's
// current view before any event arrives.
func (b *Bridge) publishInitialState(s *tv.Session) {
	b.publishState(StateMessage{
		DeviceID:   s.DeviceID(),
		PowerState: string(s.State()),
		SourceList: s.SourceList(),
	})
	b.publishAvailability(s.DeviceID(), AvailabilityOffline)
}

// watchSession consumes one session's events until the session closes
// or the bridge stops.
func (b *Bridge) watchSession(s *tv.Session) {
	defer b.wg.Done()

	for {
		select {
		case <-b.ctx.Done():
			return
		case ev, ok := <-s.Events():
			if !ok {
				return
			}
			b.handleEvent(ev)
		}
	}
}

// handleEvent mirrors a single session event onto MQTT and the history
// stores.
func (b *Bridge) handleEvent(ev tv.Event) {
	switch ev.Type {
	case tv.EventStateChanged:
		b.publishState(StateMessage{
			DeviceID:     ev.DeviceID,
			Timestamp:    ev.Timestamp,
			PowerState:   string(ev.PowerState),
			Origin:       ev.Origin,
			SourceList:   ev.SourceList,
			ActiveSource: ev.ActiveSource,
		})
		if ev.Origin != "" {
			b.recordHistory(ev)
		}
		if ev.ActiveSource != "" && b.metrics != nil {
			b.metrics.WriteSourceChange(ev.DeviceID, ev.ActiveSource)
		}

	case tv.EventConnected:
		b.publishAvailability(ev.DeviceID, AvailabilityOnline)

	case tv.EventDisconnected:
		b.publishAvailability(ev.DeviceID, AvailabilityOffline)

	case tv.EventConnectionError:
		// Command-level failures; the session reconnects on its own.
		b.logger.Debug("session reported connection error", "device_id", ev.DeviceID)
	}
}

// recordHistory writes a power transition to SQLite and InfluxDB. A
// failed SQLite write is logged and dropped; history is an audit trail,
// not a control path.
func (b *Bridge) recordHistory(ev tv.Event) {
	state := string(ev.PowerState)

	if b.history != nil {
		ctx, cancel := context.WithTimeout(b.ctx, 5*time.Second)
		if err := b.history.RecordStateChange(ctx, ev.DeviceID, state, ev.Origin); err != nil {
			b.logger.Warn("recording power state history failed",
				"device_id", ev.DeviceID, "error", err)
		}
		cancel()
	}
	if b.metrics != nil {
		b.metrics.WritePowerState(ev.DeviceID, state, ev.Origin)
	}
}

// publishState publishes the retained state topic for a device.
func (b *Bridge) publishState(msg StateMessage) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error("encoding state message failed",
			"device_id", msg.DeviceID, "error", err)
		return
	}
	if err := b.mqtt.Publish(b.topics.DeviceState(msg.DeviceID), payload, b.qos, true); err != nil {
		b.logger.Warn("publishing state failed", "device_id", msg.DeviceID, "error", err)
	}
}

// publishAvailability publishes the retained availability topic.
func (b *Bridge) publishAvailability(deviceID, status string) {
	topic := b.topics.DeviceAvailability(deviceID)
	if err := b.mqtt.Publish(topic, []byte(status), b.qos, true); err != nil {
		b.logger.Warn("publishing availability failed", "device_id", deviceID, "error", err)
	}
}

// handleCommand parses and dispatches one inbound command message.
// Returned errors are logged by the MQTT client wrapper.
func (b *Bridge) handleCommand(topic string, payload []byte) error {
	deviceID, ok := b.topics.DeviceFromTopic(topic)
	if !ok {
		return fmt.Errorf("bridge: malformed command topic %q", topic)
	}

	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return fmt.Errorf("bridge: decoding command for %s: %w", deviceID, err)
	}
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}

	session, found := b.sessions.Get(deviceID)
	if !found {
		b.publishResult(deviceID, cmd, tv.ResultUnsupported, "unknown device")
		return nil
	}

	ctx, cancel := context.WithTimeout(b.ctx, b.timeout)
	defer cancel()

	res, errText := b.dispatch(ctx, session, cmd)
	b.publishResult(deviceID, cmd, res, errText)
	return nil
}

// dispatch routes a command to the session operation it names.
func (b *Bridge) dispatch(ctx context.Context, s *tv.Session, cmd CommandMessage) (tv.Result, string) {
	switch cmd.Action {
	case ActionPowerOn:
		return s.RequestOn(ctx), ""
	case ActionPowerOff:
		return s.RequestOff(ctx), ""
	case ActionPowerToggle:
		return s.Toggle(ctx), ""
	case ActionSendKey:
		if !tv.ValidKey(cmd.Key) {
			return tv.ResultUnsupported, fmt.Sprintf("malformed key code %q", cmd.Key)
		}
		return s.SendKey(ctx, cmd.Key, cmd.HoldMs), ""
	case ActionLaunchApp:
		if cmd.App == "" {
			return tv.ResultUnsupported, "launch_app requires an app"
		}
		return s.LaunchApp(ctx, cmd.App), ""
	case ActionRefresh:
		s.RefreshPowerState(ctx)
		return tv.ResultDelivered, ""
	default:
		return tv.ResultUnsupported, fmt.Sprintf("unknown action %q", cmd.Action)
	}
}

// publishResult publishes the outcome of a command dispatch.
func (b *Bridge) publishResult(deviceID string, cmd CommandMessage, res tv.Result, errText string) {
	msg := ResultMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		DeviceID:  deviceID,
		Action:    cmd.Action,
		Result:    res.String(),
		Error:     errText,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error("encoding result message failed",
			"device_id", deviceID, "error", err)
		return
	}
	if err := b.mqtt.Publish(b.topics.DeviceResult(deviceID), payload, b.qos, false); err != nil {
		b.logger.Warn("publishing result failed", "device_id", deviceID, "error", err)
	}
}
