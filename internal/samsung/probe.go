package samsung

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/slatehome/tvbridge/internal/tv"
)

// Prober reads the unauthenticated REST device descriptor to learn the
// set's power state and capabilities. It implements tv.Prober.
type Prober struct {
	// Port overrides the vendor default (8001).
	Port int

	// Client is used for the descriptor request. Defaults to
	// http.DefaultClient; callers should rely on the request context
	// for timeouts.
	Client *http.Client
}

// deviceDescriptor is the relevant subset of GET /api/v2/ on port 8001.
type deviceDescriptor struct {
	Device struct {
		PowerState     string `json:"PowerState"`
		WifiMac        string `json:"wifiMac"`
		FrameTVSupport string `json:"FrameTVSupport"`
	} `json:"device"`
}

// Probe fetches the device descriptor and maps it onto a probe result.
// An unreachable set is an error; the caller decides what that means.
func (p *Prober) Probe(ctx context.Context, address string) (*tv.ProbeResult, error) {
	port := p.Port
	if port == 0 {
		port = defaultRestPort
	}
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}

	u := fmt.Sprintf("http://%s/api/v2/", net.JoinHostPort(address, strconv.Itoa(port)))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("samsung: building probe request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("samsung: probing device: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("samsung: probe returned status %d", resp.StatusCode)
	}

	var desc deviceDescriptor
	if err := json.NewDecoder(resp.Body).Decode(&desc); err != nil {
		return nil, fmt.Errorf("samsung: decoding device descriptor: %w", err)
	}

	return &tv.ProbeResult{
		Power:           mapPowerState(desc.Device.PowerState),
		SupportsArtMode: strings.EqualFold(desc.Device.FrameTVSupport, "true"),
		MACAddress:      desc.Device.WifiMac,
	}, nil
}

// mapPowerState normalises the descriptor's PowerState field. Sets
// that do not report power omit the field; the empty string maps to
// off, matching how an absent set reads.
func mapPowerState(raw string) string {
	switch strings.ToLower(raw) {
	case "on":
		return tv.PowerIndicatorOn
	case "standby":
		return tv.PowerIndicatorStandby
	default:
		return tv.PowerIndicatorOff
	}
}
