package tv

import (
	"context"
	"net"
	"time"

	"github.com/slatehome/tvbridge/internal/device"
)

// Logger defines the logging interface used by the session.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Transport is a live remote-control connection to a television.
// Implementations wrap the vendor WebSocket protocol; the session
// treats them as opaque handles it exclusively owns.
type Transport interface {
	// Alive reports whether the connection is still usable.
	Alive() bool

	// SendKey dispatches a key event. A holdMs of zero is a click;
	// a positive value is a press-and-hold.
	SendKey(ctx context.Context, key string, holdMs int) error

	// InstalledApps returns the apps the set reports, as name → app id.
	InstalledApps(ctx context.Context) (map[string]string, error)

	// LaunchApp starts an app by its identifier.
	LaunchApp(ctx context.Context, appID string) error

	// Token returns the auth token issued or renewed during the
	// handshake, or empty when unchanged.
	Token() string

	// Close tears the connection down.
	Close() error
}

// Dialer establishes transport connections. A fresh handle is dialed
// on every connect and reconnect.
type Dialer interface {
	Dial(ctx context.Context, cfg *device.Config) (Transport, error)
}

// Power indicator values reported by the status probe.
const (
	PowerIndicatorOn      = "on"
	PowerIndicatorStandby = "standby"
	PowerIndicatorOff     = "off"
)

// ProbeResult is the out-of-band status snapshot returned by the
// device's local REST endpoint, independent of the persistent
// transport.
type ProbeResult struct {
	// Power is one of the PowerIndicator values.
	Power string

	// Discovered capabilities and metadata.
	SupportsArtMode   bool
	SupportsCloudWake bool
	MACAddress        string
}

// Prober performs the short-timeout authoritative status query.
type Prober interface {
	Probe(ctx context.Context, address string) (*ProbeResult, error)
}

// CloudStatus is the partial device status reported by the cloud API.
type CloudStatus struct {
	PowerOn      bool
	ActiveSource string
}

// CloudClient is the optional remote fallback path. Every method is
// best-effort: failures degrade the session to local-only behaviour
// and never block the core power or key paths.
type CloudClient interface {
	// ResolveDeviceID maps local device identity to the cloud device id.
	ResolveDeviceID(ctx context.Context, cfg *device.Config) (string, error)

	// WakeDevice asks the cloud to power the device on.
	WakeDevice(ctx context.Context, deviceID string) error

	// QueryStatus fetches partial device status from the cloud.
	QueryStatus(ctx context.Context, deviceID string) (*CloudStatus, error)
}

// ConfigStore persists device configuration changes. Token renewals and
// discovered capabilities are written through immediately so a restart
// never picks up stale data.
type ConfigStore interface {
	Update(ctx context.Context, cfg *device.Config) error
}

// Result is the outcome of an inbound command dispatch. Unreachable
// devices are an expected condition, so commands report rather than
// fail.
type Result int

// Dispatch outcomes.
const (
	ResultDelivered Result = iota
	ResultNotDelivered
	ResultUnsupported
)

func (r Result) String() string {
	switch r {
	case ResultDelivered:
		return "delivered"
	case ResultNotDelivered:
		return "not_delivered"
	case ResultUnsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// Default tuning values. Guard durations come from observed hardware
// behaviour: art-mode sets report power over REST immediately, legacy
// sets can hold a dying socket open for the better part of a minute.
const (
	defaultWakeAttempts     = 8
	defaultWakeDelay        = 2 * time.Second
	defaultPowerOnGuard     = 17 * time.Second
	defaultArtModeOffGuard  = 5 * time.Second
	defaultLegacyOffGuard   = 65 * time.Second
	defaultProbeTimeout     = 2 * time.Second
	defaultPairingTimeout   = 5 * time.Second
	defaultHandshakeTimeout = 15 * time.Second
	defaultCloudTimeout     = 10 * time.Second
	defaultCloudPollEvery   = 60 * time.Second
	defaultEventBuffer      = 32
)

// Options configures a Session. Dialer and Prober are required; the
// rest default to production values.
type Options struct {
	Dialer Dialer
	Prober Prober
	Cloud  CloudClient // optional
	Store  ConfigStore // optional
	Logger Logger

	// WakeAttempts and WakeDelay shape the wake-on-LAN loop.
	WakeAttempts int
	WakeDelay    time.Duration

	// Guard window durations.
	PowerOnGuard    time.Duration
	ArtModeOffGuard time.Duration
	LegacyOffGuard  time.Duration

	// ProbeTimeout bounds each status probe; device-off is the common
	// case and must resolve quickly.
	ProbeTimeout time.Duration

	// Handshake timeouts: short before first pairing, longer once a
	// token is cached.
	PairingTimeout   time.Duration
	HandshakeTimeout time.Duration

	// PollInterval enables the periodic power-state poll when positive.
	PollInterval time.Duration

	// CloudTimeout bounds cloud calls; CloudPollEvery throttles cloud
	// status queries from the poll loop.
	CloudTimeout   time.Duration
	CloudPollEvery time.Duration

	// EventBuffer sizes the event channel.
	EventBuffer int

	// WakeFunc overrides magic-packet delivery; used by tests.
	WakeFunc func(mac net.HardwareAddr) error

	// Now overrides the clock; used by tests.
	Now func() time.Time
}

func (o *Options) applyDefaults() {
	if o.Logger == nil {
		o.Logger = noopLogger{}
	}
	if o.WakeAttempts <= 0 {
		o.WakeAttempts = defaultWakeAttempts
	}
	if o.WakeDelay <= 0 {
		o.WakeDelay = defaultWakeDelay
	}
	if o.PowerOnGuard <= 0 {
		o.PowerOnGuard = defaultPowerOnGuard
	}
	if o.ArtModeOffGuard <= 0 {
		o.ArtModeOffGuard = defaultArtModeOffGuard
	}
	if o.LegacyOffGuard <= 0 {
		o.LegacyOffGuard = defaultLegacyOffGuard
	}
	if o.ProbeTimeout <= 0 {
		o.ProbeTimeout = defaultProbeTimeout
	}
	if o.PairingTimeout <= 0 {
		o.PairingTimeout = defaultPairingTimeout
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = defaultHandshakeTimeout
	}
	if o.CloudTimeout <= 0 {
		o.CloudTimeout = defaultCloudTimeout
	}
	if o.CloudPollEvery <= 0 {
		o.CloudPollEvery = defaultCloudPollEvery
	}
	if o.EventBuffer <= 0 {
		o.EventBuffer = defaultEventBuffer
	}
	if o.WakeFunc == nil {
		o.WakeFunc = SendMagicPacket
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}
