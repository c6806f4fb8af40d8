package wifi

import (
	"context"
	"fmt"
	"net"
)

// Credentials identify a station network to join.
type Credentials struct {
	SSID string `yaml:"ssid"`
	Key  string `yaml:"key"`
}

// Valid reports whether the credentials name a network. The key may be empty
// for open networks.
func (c Credentials) Valid() bool {
	return c.SSID != ""
}

// Network is one scan result.
type Network struct {
	SSID string `json:"ssid"`
	RSSI int    `json:"rssi"` // dBm
}

// Status is the station link status reported by the radio.
type Status int

const (
	StatusIdle Status = iota
	StatusNoSSIDAvail
	StatusScanCompleted
	StatusConnected
	StatusConnectFailed
	StatusConnectionLost
	StatusDisconnected
)

// String returns the status name shown on the portal status page
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusNoSSIDAvail:
		return "no ssid available"
	case StatusScanCompleted:
		return "scan completed"
	case StatusConnected:
		return "connected"
	case StatusConnectFailed:
		return "connect failed"
	case StatusConnectionLost:
		return "connection lost"
	case StatusDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Mode is the radio operating mode.
type Mode int

const (
	ModeOff Mode = iota
	ModeStation
	ModeAccessPoint
	ModeAccessPointStation
)

// String returns a human-readable mode name
func (m Mode) String() string {
	switch m {
	case ModeOff:
		return "off"
	case ModeStation:
		return "sta"
	case ModeAccessPoint:
		return "ap"
	case ModeAccessPointStation:
		return "ap+sta"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Radio is the Wi-Fi driver as seen by joinme.
type Radio interface {
	// Begin starts a station association. A nil creds means "use whatever
	// the network stack has stored". Begin does not wait for the result;
	// callers poll Status.
	Begin(creds *Credentials) error

	// Status returns the current station link status.
	Status() Status

	// SetMode switches the radio operating mode.
	SetMode(mode Mode) error

	// StartAP brings up a soft access point and returns its address.
	StartAP(ssid, key string) (net.IP, error)

	// Scan blocks until a network scan completes.
	Scan(ctx context.Context) ([]Network, error)

	// SSID is the station network currently joined or being joined.
	SSID() string

	// LocalIP is the station interface address (unspecified when not joined).
	LocalIP() net.IP

	// APIP is the soft access point address (unspecified when not running).
	APIP() net.IP
}
