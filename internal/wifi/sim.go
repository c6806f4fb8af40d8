package wifi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/muurk/joinme/internal/logging"
	"go.uber.org/zap"
)

// SimNetwork is a network the simulated radio can see.
type SimNetwork struct {
	SSID string `yaml:"ssid"`
	RSSI int    `yaml:"rssi"`
	Key  string `yaml:"key"` // empty = open network
}

// SimConfig describes the simulated radio environment.
type SimConfig struct {
	Networks         []SimNetwork
	AssociationDelay time.Duration
	ScanLatency      time.Duration
	StationIP        net.IP
	APIP             net.IP
}

// Sim is a Radio backed by a static list of networks. Associations complete
// after AssociationDelay when the SSID is visible and the key matches.
type Sim struct {
	cfg   SimConfig
	store CredentialStore

	mu      sync.Mutex
	status  Status
	mode    Mode
	ssid    string
	apSSID  string
	apUp    bool
	attempt uint64
}

// NewSim creates a simulated radio. store may be nil, in which case nothing
// is remembered between runs.
func NewSim(cfg SimConfig, store CredentialStore) *Sim {
	if store == nil {
		store = &MemoryStore{}
	}
	if cfg.APIP == nil {
		cfg.APIP = net.IPv4(192, 168, 4, 1)
	}
	if cfg.StationIP == nil {
		cfg.StationIP = net.IPv4(192, 168, 1, 50)
	}
	return &Sim{
		cfg:    cfg,
		store:  store,
		status: StatusIdle,
		mode:   ModeStation,
	}
}

// Begin implements Radio
func (s *Sim) Begin(creds *Credentials) error {
	var target Credentials
	if creds == nil {
		stored, err := s.store.Load()
		if err != nil {
			if errors.Is(err, ErrNoCredentials) {
				logging.Debug("No stored credentials to join with")
			}
			return err
		}
		target = stored
	} else {
		if !creds.Valid() {
			return fmt.Errorf("cannot join a network without an ssid")
		}
		target = *creds
	}

	s.mu.Lock()
	s.attempt++
	attempt := s.attempt
	s.ssid = target.SSID
	s.status = StatusDisconnected
	s.mu.Unlock()

	logging.Debug("Simulated association started", zap.String("ssid", target.SSID))

	time.AfterFunc(s.cfg.AssociationDelay, func() {
		s.associate(attempt, target, creds != nil)
	})
	return nil
}

func (s *Sim) associate(attempt uint64, target Credentials, remember bool) {
	s.mu.Lock()
	if attempt != s.attempt {
		// superseded by a newer Begin
		s.mu.Unlock()
		return
	}

	network, visible := s.lookup(target.SSID)
	switch {
	case !visible:
		s.status = StatusNoSSIDAvail
	case network.Key != "" && network.Key != target.Key:
		s.status = StatusConnectFailed
	default:
		s.status = StatusConnected
	}
	status := s.status
	s.mu.Unlock()

	logging.Debug("Simulated association finished",
		zap.String("ssid", target.SSID),
		zap.Stringer("status", status),
	)

	if status == StatusConnected && remember {
		if err := s.store.Save(target); err != nil {
			logging.Warn("Failed to persist credentials", zap.Error(err))
		}
	}
}

func (s *Sim) lookup(ssid string) (SimNetwork, bool) {
	for _, n := range s.cfg.Networks {
		if n.SSID == ssid {
			return n, true
		}
	}
	return SimNetwork{}, false
}

// Status implements Radio
func (s *Sim) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Mode returns the current operating mode
func (s *Sim) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// SetMode implements Radio
func (s *Sim) SetMode(mode Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = mode
	if mode == ModeStation || mode == ModeOff {
		s.apUp = false
	}
	return nil
}

// StartAP implements Radio. WPA2 keys must be at least 8 characters; an
// empty key starts an open access point.
func (s *Sim) StartAP(ssid, key string) (net.IP, error) {
	if ssid == "" {
		return nil, fmt.Errorf("access point ssid is empty")
	}
	if key != "" && len(key) < 8 {
		return nil, fmt.Errorf("access point key must be at least 8 characters")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode != ModeAccessPoint && s.mode != ModeAccessPointStation {
		return nil, fmt.Errorf("radio is in %s mode, cannot start access point", s.mode)
	}
	s.apSSID = ssid
	s.apUp = true
	return s.cfg.APIP, nil
}

// Scan implements Radio. Results are sorted by signal strength, strongest first.
func (s *Sim) Scan(ctx context.Context) ([]Network, error) {
	if s.cfg.ScanLatency > 0 {
		select {
		case <-time.After(s.cfg.ScanLatency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	networks := make([]Network, 0, len(s.cfg.Networks))
	for _, n := range s.cfg.Networks {
		networks = append(networks, Network{SSID: n.SSID, RSSI: n.RSSI})
	}
	sort.SliceStable(networks, func(i, j int) bool {
		return networks[i].RSSI > networks[j].RSSI
	})
	return networks, nil
}

// SSID implements Radio
func (s *Sim) SSID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ssid
}

// LocalIP implements Radio
func (s *Sim) LocalIP() net.IP {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusConnected {
		return net.IPv4zero
	}
	return s.cfg.StationIP
}

// APIP implements Radio
func (s *Sim) APIP() net.IP {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.apUp {
		return net.IPv4zero
	}
	return s.cfg.APIP
}
