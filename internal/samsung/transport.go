package samsung

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/slatehome/tvbridge/internal/device"
	"github.com/slatehome/tvbridge/internal/tv"
)

const (
	defaultRemotePort = 8002
	defaultRestPort   = 8001

	// appListTimeout bounds the wait for an installed-app response on
	// top of the caller's context.
	appListTimeout = 5 * time.Second
)

// Dialer opens remote-control sessions against a set's WebSocket
// endpoint. It implements tv.Dialer.
type Dialer struct {
	// Name is shown in the TV's on-screen pairing prompt.
	Name string

	// RemotePort and RestPort override the vendor defaults (8002/8001).
	RemotePort int
	RestPort   int

	// PlainText dials ws:// instead of wss://; used by tests. Real
	// sets only speak TLS (with a self-signed certificate).
	PlainText bool

	// Client is used for REST calls (app launch). Defaults to
	// http.DefaultClient.
	Client *http.Client

	Logger tv.Logger
}

// Dial connects to the remote-control channel and completes the
// handshake, returning once the set has emitted ms.channel.connect.
// The returned transport carries any token the set issued or renewed.
func (d *Dialer) Dial(ctx context.Context, cfg *device.Config) (tv.Transport, error) {
	port := d.RemotePort
	if port == 0 {
		port = defaultRemotePort
	}

	scheme := "wss"
	if d.PlainText {
		scheme = "ws"
	}
	u := url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(cfg.Address, strconv.Itoa(port)),
		Path:   "/api/v2/channels/samsung.remote.control",
	}
	q := u.Query()
	q.Set("name", base64.StdEncoding.EncodeToString([]byte(d.Name)))
	if cfg.AuthToken != "" {
		q.Set("token", cfg.AuthToken)
	}
	u.RawQuery = q.Encode()

	wsDialer := websocket.Dialer{
		// Sets ship self-signed certificates.
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
	}
	conn, resp, err := wsDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			_ = resp.Body.Close()
		}
		return nil, fmt.Errorf("samsung: dialing remote channel: %w", err)
	}

	restPort := d.RestPort
	if restPort == 0 {
		restPort = defaultRestPort
	}
	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}

	t := &Transport{
		conn:     conn,
		address:  cfg.Address,
		restPort: restPort,
		client:   client,
		logger:   d.Logger,
		appResp:  make(chan []appEntry, 1),
		done:     make(chan struct{}),
	}
	if t.logger == nil {
		t.logger = noopLogger{}
	}

	if err := t.awaitChannelConnect(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}

	go t.readPump()
	return t, nil
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Transport is one live remote-control connection. It implements
// tv.Transport and is exclusively owned by a single session.
type Transport struct {
	conn     *websocket.Conn
	address  string
	restPort int
	client   *http.Client
	logger   tv.Logger

	writeMu sync.Mutex

	token string

	appResp chan []appEntry

	closeOnce sync.Once
	done      chan struct{}
}

// awaitChannelConnect reads until the set acknowledges the channel.
// Any token in the acknowledgement is captured for renewal.
func (t *Transport) awaitChannelConnect(ctx context.Context) error {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(10 * time.Second)
	}
	if err := t.conn.SetReadDeadline(deadline); err != nil {
		return fmt.Errorf("samsung: setting handshake deadline: %w", err)
	}

	for {
		var msg channelMessage
		if err := t.conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("samsung: waiting for channel connect: %w", err)
		}
		if msg.Event != eventChannelConnect {
			continue
		}
		var data channelConnectData
		if len(msg.Data) > 0 {
			if err := json.Unmarshal(msg.Data, &data); err != nil {
				return fmt.Errorf("samsung: decoding channel connect: %w", err)
			}
		}
		t.token = data.Token
		return t.conn.SetReadDeadline(time.Time{})
	}
}

// readPump routes inbound channel events until the connection dies.
func (t *Transport) readPump() {
	defer t.markDead()

	for {
		var msg channelMessage
		if err := t.conn.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Event {
		case eventInstalledApps:
			var data installedAppsData
			if err := json.Unmarshal(msg.Data, &data); err != nil {
				t.logger.Debug("malformed installed app response", "error", err)
				continue
			}
			select {
			case t.appResp <- data.Data:
			default:
			}
		default:
			// Other channel chatter (clientConnect, timeouts) is noise.
		}
	}
}

func (t *Transport) markDead() {
	t.closeOnce.Do(func() {
		close(t.done)
		_ = t.conn.Close()
	})
}

// Alive reports whether the connection is still usable.
func (t *Transport) Alive() bool {
	select {
	case <-t.done:
		return false
	default:
		return true
	}
}

// Token returns the auth token issued during the handshake, or empty
// when the set did not renew it.
func (t *Transport) Token() string {
	return t.token
}

func (t *Transport) writeCommand(cmd remoteCommand) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if !t.Alive() {
		return fmt.Errorf("samsung: connection closed")
	}
	if err := t.conn.WriteJSON(cmd); err != nil {
		t.markDead()
		return fmt.Errorf("samsung: writing command: %w", err)
	}
	return nil
}

// SendKey dispatches a key event. A holdMs of zero sends a click; a
// positive value sends press, waits, then release.
func (t *Transport) SendKey(ctx context.Context, key string, holdMs int) error {
	if holdMs <= 0 {
		return t.writeCommand(keyCommand("Click", key))
	}

	if err := t.writeCommand(keyCommand("Press", key)); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		// Release anyway so the set is not left with a stuck key.
		_ = t.writeCommand(keyCommand("Release", key))
		return ctx.Err()
	case <-time.After(time.Duration(holdMs) * time.Millisecond):
	}
	return t.writeCommand(keyCommand("Release", key))
}

// InstalledApps queries the set for its installed applications,
// returning a name → app id map.
func (t *Transport) InstalledApps(ctx context.Context) (map[string]string, error) {
	// Drain any stale response left by a previous timed-out query.
	select {
	case <-t.appResp:
	default:
	}

	if err := t.writeCommand(appListCommand()); err != nil {
		return nil, err
	}

	select {
	case entries := <-t.appResp:
		apps := make(map[string]string, len(entries))
		for _, e := range entries {
			if e.Name != "" && e.AppID != "" {
				apps[e.Name] = e.AppID
			}
		}
		return apps, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.done:
		return nil, fmt.Errorf("samsung: connection closed")
	case <-time.After(appListTimeout):
		return nil, fmt.Errorf("samsung: timed out waiting for app list")
	}
}

// LaunchApp starts an application through the REST endpoint, which
// works without the persistent channel.
func (t *Transport) LaunchApp(ctx context.Context, appID string) error {
	u := fmt.Sprintf("http://%s/api/v2/applications/%s",
		net.JoinHostPort(t.address, strconv.Itoa(t.restPort)), url.PathEscape(appID))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return fmt.Errorf("samsung: building app launch request: %w", err)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("samsung: launching app: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("samsung: app launch returned status %d", resp.StatusCode)
	}
	return nil
}

// Close tears the connection down. Safe to call more than once.
func (t *Transport) Close() error {
	t.writeMu.Lock()
	// Best effort polite close; the set rarely acknowledges it.
	_ = t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	t.writeMu.Unlock()

	t.markDead()
	return nil
}
