package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/muurk/joinme/internal/captivedns"
	"github.com/muurk/joinme/internal/connectivity"
	"github.com/muurk/joinme/internal/discovery"
	"github.com/muurk/joinme/internal/ota"
	"github.com/muurk/joinme/internal/portal"
	"github.com/muurk/joinme/internal/urls"
	"gopkg.in/yaml.v3"
)

const (
	appName    = "joinme"
	configFile = "config.yaml"

	// CurrentVersion is the configuration schema version
	CurrentVersion = 1

	// DefaultAPAddress is the soft AP and portal address
	DefaultAPAddress = "192.168.4.1"

	// DefaultAPSSID is the provisioning network name
	DefaultAPSSID = "joinme"
)

// Mutex for thread-safe file operations
var fileMutex sync.Mutex

// GetConfigDir returns the OS-appropriate configuration directory for the application.
// This follows platform conventions:
//   - Linux: $XDG_CONFIG_HOME/joinme or $HOME/.config/joinme
//   - macOS: $HOME/.config/joinme (following XDG convention on macOS)
//   - Windows: %LOCALAPPDATA%\joinme
func GetConfigDir() (string, error) {
	var baseDir string

	switch runtime.GOOS {
	case "windows":
		localAppData := os.Getenv("LOCALAPPDATA")
		if localAppData == "" {
			userProfile := os.Getenv("USERPROFILE")
			if userProfile == "" {
				return "", fmt.Errorf("cannot determine user profile directory (LOCALAPPDATA and USERPROFILE not set)")
			}
			baseDir = filepath.Join(userProfile, "AppData", "Local", appName)
		} else {
			baseDir = filepath.Join(localAppData, appName)
		}

	case "darwin":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		baseDir = filepath.Join(homeDir, ".config", appName)

	default:
		xdgConfigHome := os.Getenv("XDG_CONFIG_HOME")
		if xdgConfigHome != "" {
			baseDir = filepath.Join(xdgConfigHome, appName)
		} else {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("cannot determine home directory: %w", err)
			}
			baseDir = filepath.Join(homeDir, ".config", appName)
		}
	}

	return baseDir, nil
}

// GetConfigPath returns the full path to the configuration file.
func GetConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, configFile), nil
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	policy := connectivity.DefaultPolicy()
	return &Config{
		Version: CurrentVersion,
		AccessPoint: AccessPointConfig{
			SSID:    DefaultAPSSID,
			Address: DefaultAPAddress,
		},
		Connect: ConnectConfig{
			Attempts:          policy.Attempts,
			Interval:          policy.Interval,
			ProvisionInterval: policy.ProvisionInterval,
		},
		Portal: PortalConfig{
			HTTPAddr:    portal.DefaultAddr,
			DNSAddr:     fmt.Sprintf(":%d", captivedns.DefaultPort),
			ScanTimeout: portal.DefaultScanTimeout,
		},
		OTA: OTAConfig{
			Enabled:      true,
			BasePath:     "firmware/",
			Host:         urls.DefaultHost,
			Branch:       urls.DefaultBranch,
			UserAgent:    ota.DefaultUserAgent,
			CheckTimeout: ota.DefaultCheckTimeout,
			MinImageSize: ota.DefaultMinImageSize,
		},
		Flash: FlashConfig{
			Dir: "flash",
		},
		Radio: RadioConfig{
			CredentialsFile:  "credentials.yaml",
			AssociationDelay: 2 * time.Second,
			ScanLatency:      500 * time.Millisecond,
			StationIP:        "192.168.1.50",
		},
		Discovery: DiscoveryConfig{
			Advertise:   true,
			Port:        discovery.DefaultPort,
			ScanTimeout: discovery.DefaultScanTimeout,
		},
	}
}

// Load reads the configuration at path, or the default location when path
// is empty. A missing file yields Default(). Relative paths inside the file
// are resolved against the file's directory.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := GetConfigPath()
		if err != nil {
			return nil, fmt.Errorf("failed to get config path: %w", err)
		}
		path = p
	}

	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// defaults only
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		if cfg.Version != CurrentVersion {
			return nil, fmt.Errorf("unsupported config version: %d (expected %d)", cfg.Version, CurrentVersion)
		}
	}

	cfg.resolvePaths(filepath.Dir(path))
	return cfg, nil
}

func (c *Config) resolvePaths(base string) {
	if c.Flash.Dir != "" && !filepath.IsAbs(c.Flash.Dir) {
		c.Flash.Dir = filepath.Join(base, c.Flash.Dir)
	}
	if c.Radio.CredentialsFile != "" && !filepath.IsAbs(c.Radio.CredentialsFile) {
		c.Radio.CredentialsFile = filepath.Join(base, c.Radio.CredentialsFile)
	}
}

// Validate rejects configurations the device cannot run with.
func (c *Config) Validate() error {
	var errs []error

	errs = append(errs, c.AccessPoint.validate()...)
	if k := len(c.AccessPoint.Key); k != 0 && (k < 8 || k > 63) {
		errs = append(errs, fmt.Errorf("access_point.key must be empty or 8-63 characters, got %d", k))
	}
	if ip := net.ParseIP(c.AccessPoint.Address); ip == nil || ip.To4() == nil {
		errs = append(errs, fmt.Errorf("access_point.address %q is not an IPv4 address", c.AccessPoint.Address))
	}

	if c.Connect.Attempts < 1 {
		errs = append(errs, fmt.Errorf("connect.attempts must be at least 1, got %d", c.Connect.Attempts))
	}
	if c.Connect.Interval <= 0 || c.Connect.ProvisionInterval <= 0 {
		errs = append(errs, errors.New("connect intervals must be positive"))
	}

	if c.Portal.HTTPAddr == "" || c.Portal.DNSAddr == "" {
		errs = append(errs, errors.New("portal.http_addr and portal.dns_addr are required"))
	}

	if c.OTA.Enabled {
		if c.OTA.RepositoryID == "" && c.OTA.OwnerRepo == "" {
			errs = append(errs, errors.New("ota.repository_id or ota.owner_repo is required when ota is enabled"))
		}
		if c.OTA.CheckTimeout <= 0 {
			errs = append(errs, errors.New("ota.check_timeout must be positive"))
		}
		if c.OTA.MinImageSize < 0 {
			errs = append(errs, errors.New("ota.min_image_size must not be negative"))
		}
	}
	if c.OTA.FirmwareVersion < 0 {
		errs = append(errs, errors.New("ota.firmware_version must not be negative"))
	}

	if c.Flash.Dir == "" {
		errs = append(errs, errors.New("flash.dir is required"))
	}
	if c.Radio.StationIP != "" && net.ParseIP(c.Radio.StationIP) == nil {
		errs = append(errs, fmt.Errorf("radio.station_ip %q is not an IP address", c.Radio.StationIP))
	}

	return errors.Join(errs...)
}

// Save writes the configuration to path (the default location when empty).
// Performs an atomic write to prevent corruption on crash.
func (c *Config) Save(path string) error {
	fileMutex.Lock()
	defer fileMutex.Unlock()

	if path == "" {
		p, err := GetConfigPath()
		if err != nil {
			return fmt.Errorf("failed to get config path: %w", err)
		}
		path = p
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# joinme configuration file
#
# Security Note: ota.access_token and access_point.key are stored in
# plain text. Keep this file private.
#
# Location: ` + path + `

`)
	data = append(header, data...)

	// Write to temporary file first (atomic write)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary config file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save config file: %w", err)
	}

	return nil
}
