package discovery

import (
	"fmt"
	"time"
)

// Device represents a discovered joinme device on the network
type Device struct {
	// Instance is the mDNS service instance name (e.g., "joinme-3f2a")
	Instance string

	// Hostname is the mDNS hostname (e.g., "joinme-3f2a.local.")
	Hostname string

	// IP is the IPv4 address, or IPv6 when no IPv4 was advertised
	IP string

	// Port is the HTTP port (typically 80)
	Port int

	// Firmware is the advertised firmware version (-1 if not advertised)
	Firmware int

	// APSSID is the provisioning access point name
	APSSID string

	// Metadata contains all TXT record entries
	Metadata map[string]string

	// DiscoveredAt is when the device was discovered
	DiscoveredAt time.Time
}

// String returns a human-readable string representation of the device
func (d *Device) String() string {
	return fmt.Sprintf("joinme device %s (firmware %d) at %s:%d", d.Instance, d.Firmware, d.IP, d.Port)
}

// BaseURL returns the HTTP base URL for the device
func (d *Device) BaseURL() string {
	return fmt.Sprintf("http://%s:%d", d.IP, d.Port)
}

// GetMetadata retrieves a metadata value by key, or returns empty string if not found
func (d *Device) GetMetadata(key string) string {
	if d.Metadata == nil {
		return ""
	}
	return d.Metadata[key]
}
