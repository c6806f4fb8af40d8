package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/muurk/joinme/internal/connectivity"
	"github.com/muurk/joinme/internal/wifi"
)

// Config is the whole configuration file.
type Config struct {
	Version     int               `yaml:"version"`
	AccessPoint AccessPointConfig `yaml:"access_point"`
	Connect     ConnectConfig     `yaml:"connect"`
	Portal      PortalConfig      `yaml:"portal"`
	OTA         OTAConfig         `yaml:"ota"`
	Flash       FlashConfig       `yaml:"flash"`
	Radio       RadioConfig       `yaml:"radio"`
	Discovery   DiscoveryConfig   `yaml:"discovery"`
}

// AccessPointConfig is the provisioning access point
type AccessPointConfig struct {
	SSID       string `yaml:"ssid"`
	SSIDSuffix string `yaml:"ssid_suffix,omitempty"` // "mac" appends the hardware address
	Key        string `yaml:"key,omitempty"`         // empty = open network
	Address    string `yaml:"address"`               // portal address answered by the DNS responder
}

// SSIDSuffixMAC makes each device broadcast a distinct access point name
const SSIDSuffixMAC = "mac"

// ConnectConfig bounds the stored-credential attempt
type ConnectConfig struct {
	Attempts          int           `yaml:"attempts"`
	Interval          time.Duration `yaml:"interval"`
	ProvisionInterval time.Duration `yaml:"provision_interval"`
}

// PortalConfig holds the captive portal listeners
type PortalConfig struct {
	HTTPAddr    string        `yaml:"http_addr"`
	DNSAddr     string        `yaml:"dns_addr"`
	ScanTimeout time.Duration `yaml:"scan_timeout"`
}

// OTAConfig holds the update source and the fallback firmware version
type OTAConfig struct {
	Enabled         bool          `yaml:"enabled"`
	FirmwareVersion int           `yaml:"firmware_version"` // used when no image has been flashed yet
	RepositoryID    string        `yaml:"repository_id"`
	AccessToken     string        `yaml:"access_token,omitempty"`
	BasePath        string        `yaml:"base_path"`
	Host            string        `yaml:"host"`
	OwnerRepo       string        `yaml:"owner_repo,omitempty"`
	Branch          string        `yaml:"branch"`
	UserAgent       string        `yaml:"user_agent"`
	CheckTimeout    time.Duration `yaml:"check_timeout"`
	MinImageSize    int64         `yaml:"min_image_size"`
}

// FlashConfig is the image store
type FlashConfig struct {
	Dir          string `yaml:"dir"`
	MaxImageSize int64  `yaml:"max_image_size"` // 0 = unlimited
}

// RadioConfig describes the simulated radio and where it keeps credentials
type RadioConfig struct {
	CredentialsFile  string            `yaml:"credentials_file"`
	AssociationDelay time.Duration     `yaml:"association_delay"`
	ScanLatency      time.Duration     `yaml:"scan_latency"`
	StationIP        string            `yaml:"station_ip"`
	Networks         []wifi.SimNetwork `yaml:"networks,omitempty"`
}

// DiscoveryConfig controls the mDNS advertisement made once connected
type DiscoveryConfig struct {
	Advertise   bool          `yaml:"advertise"`
	Instance    string        `yaml:"instance,omitempty"` // default: access point SSID
	Port        int           `yaml:"port"`
	ScanTimeout time.Duration `yaml:"scan_timeout"`
}

// Policy converts the connect section for the Connectivity Manager
func (c ConnectConfig) Policy() connectivity.Policy {
	return connectivity.Policy{
		Attempts:          c.Attempts,
		Interval:          c.Interval,
		ProvisionInterval: c.ProvisionInterval,
	}
}

// SimConfig converts the radio section for the simulated radio
func (c *Config) SimConfig() wifi.SimConfig {
	return wifi.SimConfig{
		Networks:         c.Radio.Networks,
		AssociationDelay: c.Radio.AssociationDelay,
		ScanLatency:      c.Radio.ScanLatency,
		StationIP:        net.ParseIP(c.Radio.StationIP),
		APIP:             net.ParseIP(c.AccessPoint.Address),
	}
}

// InstanceName is the mDNS instance the device advertises as
func (c *Config) InstanceName() string {
	if c.Discovery.Instance != "" {
		return c.Discovery.Instance
	}
	return c.APSSID()
}

// APSSID is the network name the access point broadcasts. With the mac
// suffix the hardware address is appended as 12 upper-case hex digits; when
// no address is available the plain SSID is used.
func (c *Config) APSSID() string {
	if c.AccessPoint.SSIDSuffix != SSIDSuffixMAC {
		return c.AccessPoint.SSID
	}
	mac := hardwareAddr()
	if len(mac) == 0 {
		return c.AccessPoint.SSID
	}
	return c.AccessPoint.SSID + strings.ToUpper(strings.ReplaceAll(mac.String(), ":", ""))
}

// hardwareAddr is replaced in tests
var hardwareAddr = firstHardwareAddr

// firstHardwareAddr returns the address of the first non-loopback interface
// that has one, or nil.
func firstHardwareAddr() net.HardwareAddr {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || len(iface.HardwareAddr) == 0 {
			continue
		}
		return iface.HardwareAddr
	}
	return nil
}

// maxSSIDLen is the longest name 802.11 allows
const maxSSIDLen = 32

func (c AccessPointConfig) validate() []error {
	var errs []error
	if c.SSID == "" {
		errs = append(errs, errors.New("access_point.ssid must not be empty"))
	}
	limit := maxSSIDLen
	switch c.SSIDSuffix {
	case "":
	case SSIDSuffixMAC:
		limit -= 12
	default:
		errs = append(errs, fmt.Errorf("access_point.ssid_suffix %q is not supported, use %q or leave empty", c.SSIDSuffix, SSIDSuffixMAC))
	}
	if len(c.SSID) > limit {
		errs = append(errs, fmt.Errorf("access_point.ssid is %d bytes, maximum is %d", len(c.SSID), limit))
	}
	return errs
}
