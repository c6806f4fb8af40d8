package discovery

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/muurk/joinme/internal/logging"
	"go.uber.org/zap"
)

const (
	// ServiceType is the mDNS service type joinme devices advertise
	ServiceType = "_joinme._tcp"

	// ServiceDomain is the mDNS domain
	ServiceDomain = "local."

	// DefaultScanTimeout is the default timeout for device discovery
	DefaultScanTimeout = 5 * time.Second

	// DefaultPort is the default HTTP port for joinme devices
	DefaultPort = 80

	txtFirmware = "fw"
	txtAPSSID   = "ap"
)

// Advertisement is a registered mDNS service
type Advertisement struct {
	server *zeroconf.Server
}

// Advertise registers the device on the local network.
func Advertise(instance string, port, firmware int, apSSID string) (*Advertisement, error) {
	server, err := zeroconf.Register(instance, ServiceType, ServiceDomain, port, TXTRecords(firmware, apSSID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register mDNS service: %w", err)
	}
	logging.Info("Advertising device over mDNS",
		zap.String("instance", instance),
		zap.String("service", ServiceType),
		zap.Int("port", port),
		zap.Int("firmware", firmware),
	)
	return &Advertisement{server: server}, nil
}

// Shutdown withdraws the advertisement
func (a *Advertisement) Shutdown() {
	if a != nil && a.server != nil {
		a.server.Shutdown()
	}
}

// TXTRecords builds the TXT entries advertised for a device
func TXTRecords(firmware int, apSSID string) []string {
	return []string{
		txtFirmware + "=" + strconv.Itoa(firmware),
		txtAPSSID + "=" + apSSID,
	}
}

// Scanner handles mDNS device discovery
type Scanner struct {
	// Timeout is the maximum time to wait for device discovery
	Timeout time.Duration
}

// NewScanner creates a new mDNS scanner with default settings
func NewScanner() *Scanner {
	return &Scanner{
		Timeout: DefaultScanTimeout,
	}
}

// Scan collects every joinme device that answers within the timeout.
func (s *Scanner) Scan(ctx context.Context) ([]*Device, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	var mu sync.Mutex
	devices := make([]*Device, 0)
	seen := make(map[string]bool)

	entries := make(chan *zeroconf.ServiceEntry)
	go func() {
		for entry := range entries {
			device := parseServiceEntry(entry)
			if device == nil {
				continue
			}
			mu.Lock()
			if !seen[device.Instance] {
				seen[device.Instance] = true
				devices = append(devices, device)
			}
			mu.Unlock()
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	<-ctx.Done()

	mu.Lock()
	defer mu.Unlock()
	return append([]*Device(nil), devices...), nil
}

// WaitFor waits for the device with the given instance name.
func (s *Scanner) WaitFor(ctx context.Context, instance string) (*Device, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	found := make(chan *Device, 1)
	go func() {
		for entry := range entries {
			device := parseServiceEntry(entry)
			if device != nil && device.Instance == instance {
				select {
				case found <- device:
				default:
				}
				cancel()
			}
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	select {
	case device := <-found:
		return device, nil
	case <-ctx.Done():
		select {
		case device := <-found:
			return device, nil
		default:
		}
		return nil, fmt.Errorf("device %s not found within timeout", instance)
	}
}

// parseServiceEntry converts a zeroconf service entry to a Device.
// Returns nil if the entry has no instance name or no address.
func parseServiceEntry(entry *zeroconf.ServiceEntry) *Device {
	if entry == nil || entry.Instance == "" {
		return nil
	}

	// prefer IPv4
	var ip string
	if len(entry.AddrIPv4) > 0 {
		ip = entry.AddrIPv4[0].String()
	} else if len(entry.AddrIPv6) > 0 {
		ip = entry.AddrIPv6[0].String()
	}
	if ip == "" {
		return nil
	}

	port := entry.Port
	if port == 0 {
		port = DefaultPort
	}

	metadata := make(map[string]string)
	for _, txt := range entry.Text {
		key, value, _ := strings.Cut(txt, "=")
		metadata[key] = value
	}

	firmware := -1
	if v, err := strconv.Atoi(metadata[txtFirmware]); err == nil {
		firmware = v
	}

	return &Device{
		Instance:     entry.Instance,
		Hostname:     entry.HostName,
		IP:           ip,
		Port:         port,
		Firmware:     firmware,
		APSSID:       metadata[txtAPSSID],
		Metadata:     metadata,
		DiscoveredAt: time.Now(),
	}
}
