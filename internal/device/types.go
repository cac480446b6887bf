package device

import (
	"net"
	"strings"
	"time"
)

// Config holds the per-device configuration the bridge needs to reach,
// authenticate with, and wake a television. This matches the devices
// table in the initial schema migration.
//
// Identifier is immutable for the lifetime of a device record; every
// other field may change over time (the TV reports a new MAC after a
// network change, pairing produces a new token, and so on).
type Config struct {
	// Identity
	Identifier string `json:"identifier"`
	Name       string `json:"name"`

	// Network
	Address    string `json:"address"`
	MACAddress string `json:"mac_address,omitempty"`

	// Pairing token issued by the TV on first authorised connection.
	// Empty until the user accepts the on-screen pairing prompt.
	AuthToken string `json:"auth_token,omitempty"`

	// Capabilities discovered from the device descriptor.
	ReportsPowerState bool `json:"reports_power_state"`
	SupportsArtMode   bool `json:"supports_art_mode"`
	SupportsCloudWake bool `json:"supports_cloud_wake"`

	// Cloud credentials, present only when the device is linked to the
	// vendor cloud account.
	CloudAccessToken    string     `json:"cloud_access_token,omitempty"`
	CloudRefreshToken   string     `json:"cloud_refresh_token,omitempty"`
	CloudTokenExpiresAt *time.Time `json:"cloud_token_expires_at,omitempty"`

	// Timestamps
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Copy returns an independent copy of the Config. Cloud token expiry is
// the only pointer field, so a shallow copy plus one pointer clone is a
// full clone. Used for cache isolation.
func (c *Config) Copy() *Config {
	if c == nil {
		return nil
	}
	cpy := *c
	if c.CloudTokenExpiresAt != nil {
		t := *c.CloudTokenExpiresAt
		cpy.CloudTokenExpiresAt = &t
	}
	return &cpy
}

// HardwareAddr parses the configured MAC address. Returns
// ErrInvalidMAC when the field is empty or malformed.
func (c *Config) HardwareAddr() (net.HardwareAddr, error) {
	if c.MACAddress == "" {
		return nil, ErrInvalidMAC
	}
	addr, err := net.ParseMAC(c.MACAddress)
	if err != nil {
		return nil, ErrInvalidMAC
	}
	return addr, nil
}

// Validate checks the minimum fields required to manage a device.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Identifier) == "" {
		return ErrInvalidIdentifier
	}
	if strings.TrimSpace(c.Address) == "" {
		return ErrInvalidAddress
	}
	if c.MACAddress != "" {
		if _, err := net.ParseMAC(c.MACAddress); err != nil {
			return ErrInvalidMAC
		}
	}
	return nil
}
