package samsung

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/slatehome/tvbridge/internal/tv"
)

// splitTestServer returns the host and numeric port of an httptest server.
func splitTestServer(t *testing.T, srv *httptest.Server) (string, int) {
	t.Helper()
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parsing test server URL: %v", err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatalf("parsing test server port: %v", err)
	}
	return u.Hostname(), port
}

func TestProbeParsesDescriptor(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantPower  string
		wantArt    bool
		wantMAC    string
	}{
		{
			name:      "frame set reporting on",
			body:      `{"device":{"PowerState":"on","wifiMac":"aa:bb:cc:dd:ee:ff","FrameTVSupport":"true"}}`,
			wantPower: tv.PowerIndicatorOn,
			wantArt:   true,
			wantMAC:   "aa:bb:cc:dd:ee:ff",
		},
		{
			name:      "standby",
			body:      `{"device":{"PowerState":"standby","wifiMac":"aa:bb:cc:dd:ee:ff","FrameTVSupport":"false"}}`,
			wantPower: tv.PowerIndicatorStandby,
			wantMAC:   "aa:bb:cc:dd:ee:ff",
		},
		{
			name:      "legacy set without power reporting",
			body:      `{"device":{"wifiMac":"aa:bb:cc:dd:ee:ff"}}`,
			wantPower: tv.PowerIndicatorOff,
			wantMAC:   "aa:bb:cc:dd:ee:ff",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/api/v2/" {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			host, port := splitTestServer(t, srv)
			p := &Prober{Port: port}

			res, err := p.Probe(context.Background(), host)
			if err != nil {
				t.Fatalf("Probe() error = %v", err)
			}
			if res.Power != tt.wantPower {
				t.Errorf("Power = %q, want %q", res.Power, tt.wantPower)
			}
			if res.SupportsArtMode != tt.wantArt {
				t.Errorf("SupportsArtMode = %v, want %v", res.SupportsArtMode, tt.wantArt)
			}
			if res.MACAddress != tt.wantMAC {
				t.Errorf("MACAddress = %q, want %q", res.MACAddress, tt.wantMAC)
			}
		})
	}
}

func TestProbeUnreachableHostIsError(t *testing.T) {
	p := &Prober{Port: 1, Client: &http.Client{Timeout: 200 * time.Millisecond}}

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	if _, err := p.Probe(ctx, "127.0.0.1"); err == nil {
		t.Fatal("Probe() expected error for unreachable host")
	}
}

func TestProbeBadStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	host, port := splitTestServer(t, srv)
	p := &Prober{Port: port}

	if _, err := p.Probe(context.Background(), host); err == nil {
		t.Fatal("Probe() expected error for non-200 response")
	}
}
