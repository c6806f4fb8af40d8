package discovery

import (
	"net"
	"testing"

	"github.com/grandcat/zeroconf"
)

func entry(instance string, port int, v4 []net.IP, v6 []net.IP, txt ...string) *zeroconf.ServiceEntry {
	return &zeroconf.ServiceEntry{
		ServiceRecord: zeroconf.ServiceRecord{Instance: instance, Service: ServiceType, Domain: ServiceDomain},
		HostName:      instance + ".local.",
		Port:          port,
		AddrIPv4:      v4,
		AddrIPv6:      v6,
		Text:          txt,
	}
}

func TestParseServiceEntry(t *testing.T) {
	tests := []struct {
		name         string
		entry        *zeroconf.ServiceEntry
		wantNil      bool
		wantIP       string
		wantPort     int
		wantFirmware int
		wantAP       string
	}{
		{
			name:         "IPv4 with full TXT",
			entry:        entry("joinme-3f2a", 80, []net.IP{net.ParseIP("192.168.1.50")}, nil, "fw=7", "ap=joinme-3f2a"),
			wantIP:       "192.168.1.50",
			wantPort:     80,
			wantFirmware: 7,
			wantAP:       "joinme-3f2a",
		},
		{
			name:         "IPv6 fallback",
			entry:        entry("joinme-1", 8080, nil, []net.IP{net.ParseIP("fe80::1")}, "fw=3"),
			wantIP:       "fe80::1",
			wantPort:     8080,
			wantFirmware: 3,
		},
		{
			name:         "port defaults to 80",
			entry:        entry("joinme-2", 0, []net.IP{net.ParseIP("10.0.0.5")}, nil),
			wantIP:       "10.0.0.5",
			wantPort:     DefaultPort,
			wantFirmware: -1,
		},
		{
			name:         "firmware not a number",
			entry:        entry("joinme-3", 80, []net.IP{net.ParseIP("10.0.0.6")}, nil, "fw=beta"),
			wantIP:       "10.0.0.6",
			wantPort:     80,
			wantFirmware: -1,
		},
		{
			name:    "no address",
			entry:   entry("joinme-4", 80, nil, nil, "fw=1"),
			wantNil: true,
		},
		{
			name:    "no instance",
			entry:   entry("", 80, []net.IP{net.ParseIP("10.0.0.7")}, nil),
			wantNil: true,
		},
		{
			name:    "nil entry",
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			device := parseServiceEntry(tt.entry)
			if tt.wantNil {
				if device != nil {
					t.Errorf("parseServiceEntry() = %v, want nil", device)
				}
				return
			}
			if device == nil {
				t.Fatal("parseServiceEntry() = nil, want device")
			}
			if device.IP != tt.wantIP {
				t.Errorf("IP = %v, want %v", device.IP, tt.wantIP)
			}
			if device.Port != tt.wantPort {
				t.Errorf("Port = %v, want %v", device.Port, tt.wantPort)
			}
			if device.Firmware != tt.wantFirmware {
				t.Errorf("Firmware = %v, want %v", device.Firmware, tt.wantFirmware)
			}
			if device.APSSID != tt.wantAP {
				t.Errorf("APSSID = %v, want %v", device.APSSID, tt.wantAP)
			}
			if device.DiscoveredAt.IsZero() {
				t.Error("DiscoveredAt not set")
			}
		})
	}
}

func TestParseServiceEntry_Metadata(t *testing.T) {
	device := parseServiceEntry(entry("joinme-5", 80, []net.IP{net.ParseIP("10.0.0.8")}, nil,
		"fw=2", "ap=my ap=with=equals", "flag"))
	if device == nil {
		t.Fatal("parseServiceEntry() = nil")
	}

	tests := map[string]string{
		"fw":   "2",
		"ap":   "my ap=with=equals",
		"flag": "",
	}
	for key, want := range tests {
		if got := device.GetMetadata(key); got != want {
			t.Errorf("GetMetadata(%q) = %q, want %q", key, got, want)
		}
	}
	if _, ok := device.Metadata["flag"]; !ok {
		t.Error("key without value dropped")
	}
}

func TestTXTRecords(t *testing.T) {
	txt := TXTRecords(12, "joinme-ap")
	want := []string{"fw=12", "ap=joinme-ap"}
	if len(txt) != len(want) {
		t.Fatalf("TXTRecords() = %v, want %v", txt, want)
	}
	for i := range want {
		if txt[i] != want[i] {
			t.Errorf("TXTRecords()[%d] = %q, want %q", i, txt[i], want[i])
		}
	}

	// what we advertise parses back
	device := parseServiceEntry(entry("joinme-6", 80, []net.IP{net.ParseIP("10.0.0.9")}, nil, txt...))
	if device.Firmware != 12 || device.APSSID != "joinme-ap" {
		t.Errorf("round trip = firmware %d ap %q", device.Firmware, device.APSSID)
	}
}

func TestNewScanner(t *testing.T) {
	scanner := NewScanner()
	if scanner.Timeout != DefaultScanTimeout {
		t.Errorf("Timeout = %v, want %v", scanner.Timeout, DefaultScanTimeout)
	}
}

func TestAdvertisement_ShutdownNil(t *testing.T) {
	var a *Advertisement
	a.Shutdown()
}
