package connectivity

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/muurk/joinme/internal/logging"
	"github.com/muurk/joinme/internal/wifi"
	"go.uber.org/zap"
)

// ErrConnectivityTimeout marks an exhausted stored-credential budget. It is
// logged, never returned: the Manager falls back to provisioning.
var ErrConnectivityTimeout = errors.New("no association within attempt budget")

// Servicer is serviced once per provisioning loop iteration. The captive
// DNS responder implements it.
type Servicer interface {
	ServiceOnce() int
}

// ProvisionFunc starts the captive portal services bound to the access point
// address. The returned Servicer lives for the rest of the process.
type ProvisionFunc func(ctx context.Context, apIP net.IP) (Servicer, error)

// Config wires a Manager to its collaborators.
type Config struct {
	Radio     wifi.Radio
	APSSID    string
	APKey     string
	Policy    Policy
	Provision ProvisionFunc
}

// Manager drives the device from boot to a joined station network.
type Manager struct {
	cfg      Config
	state    atomic.Int32
	requests chan wifi.Credentials

	mu       sync.Mutex
	running  bool
	services Servicer
	apIP     net.IP
	subs     map[int]chan State
	nextSub  int
}

// New creates a Manager in the Idle state.
func New(cfg Config) *Manager {
	if cfg.Policy.Attempts <= 0 {
		cfg.Policy.Attempts = DefaultAttempts
	}
	if cfg.Policy.Interval <= 0 {
		cfg.Policy.Interval = DefaultInterval
	}
	if cfg.Policy.ProvisionInterval <= 0 {
		cfg.Policy.ProvisionInterval = DefaultProvisionInterval
	}
	return &Manager{
		cfg:      cfg,
		requests: make(chan wifi.Credentials, 1),
		subs:     make(map[int]chan State),
	}
}

// State returns the current state. Safe for concurrent use.
func (m *Manager) State() State {
	return State(m.state.Load())
}

// APSSID is the name of the provisioning access point.
func (m *Manager) APSSID() string {
	return m.cfg.APSSID
}

// APAddress returns the access point address, or nil if provisioning never started.
func (m *Manager) APAddress() net.IP {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.apIP
}

// Services returns the provisioning Servicer so the host loop can keep
// servicing it after Run returns. Nil if provisioning never started.
func (m *Manager) Services() Servicer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.services
}

// Submit enqueues a connect request for the Run goroutine. It never blocks:
// a request still waiting in the queue is replaced by the newer one. Returns
// false (and enqueues nothing) when creds has no SSID.
func (m *Manager) Submit(creds wifi.Credentials) bool {
	if !creds.Valid() {
		return false
	}
	for {
		select {
		case m.requests <- creds:
			return true
		default:
		}
		select {
		case <-m.requests:
		default:
		}
	}
}

// Subscribe returns a channel receiving every subsequent state transition.
// Call the returned function to unsubscribe.
func (m *Manager) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 4)

	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	m.mu.Unlock()

	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(ch)
		}
	}
}

func (m *Manager) setState(to State) {
	from := State(m.state.Swap(int32(to)))
	if from == to {
		return
	}
	logging.LogStateChange(from.String(), to.String())

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- to:
		default:
		}
	}
}

// Run drives the state machine until the station is associated. It returns
// nil once Connected, ctx.Err() if cancelled, or an error if the access
// point or the portal services cannot be started.
func (m *Manager) Run(ctx context.Context) error {
	m.mu.Lock()
	if m.running || m.State() != Idle {
		m.mu.Unlock()
		return fmt.Errorf("connectivity manager already started")
	}
	m.running = true
	m.mu.Unlock()

	m.setState(AttemptingStored)
	if err := m.cfg.Radio.Begin(nil); err != nil {
		logging.Info("Stored credentials unavailable", zap.Error(err))
	}

	joined, err := m.pollStored(ctx)
	if err != nil {
		return err
	}
	if joined {
		m.setState(Connected)
		return nil
	}

	logging.Warn("Falling back to provisioning",
		zap.Error(ErrConnectivityTimeout),
		zap.Int("attempts", m.cfg.Policy.Attempts),
		zap.Duration("interval", m.cfg.Policy.Interval),
	)
	return m.provision(ctx)
}

// pollStored checks the link status up to Policy.Attempts times.
func (m *Manager) pollStored(ctx context.Context) (bool, error) {
	for attempt := 1; attempt <= m.cfg.Policy.Attempts; attempt++ {
		if m.cfg.Radio.Status() == wifi.StatusConnected {
			logging.Info("Joined with stored credentials",
				zap.String("ssid", m.cfg.Radio.SSID()),
				zap.Int("attempt", attempt),
			)
			return true, nil
		}
		if attempt == m.cfg.Policy.Attempts {
			break
		}
		if err := sleep(ctx, m.cfg.Policy.Interval); err != nil {
			return false, err
		}
	}
	return false, nil
}

func (m *Manager) provision(ctx context.Context) error {
	m.setState(ProvisioningActive)

	radio := m.cfg.Radio
	if err := radio.SetMode(wifi.ModeAccessPointStation); err != nil {
		return fmt.Errorf("failed to switch radio to ap+sta: %w", err)
	}
	apIP, err := radio.StartAP(m.cfg.APSSID, m.cfg.APKey)
	if err != nil {
		return fmt.Errorf("failed to start access point: %w", err)
	}

	var services Servicer
	if m.cfg.Provision != nil {
		services, err = m.cfg.Provision(ctx, apIP)
		if err != nil {
			return fmt.Errorf("failed to start provisioning services: %w", err)
		}
	}

	m.mu.Lock()
	m.apIP = apIP
	m.services = services
	m.mu.Unlock()

	logging.Info("Provisioning portal active",
		zap.String("ap_ssid", m.cfg.APSSID),
		zap.String("ap_ip", apIP.String()),
	)

	for {
		m.drainRequests()

		if radio.Status() == wifi.StatusConnected {
			logging.Info("Joined network from provisioning",
				zap.String("ssid", radio.SSID()),
				zap.String("local_ip", radio.LocalIP().String()),
			)
			m.setState(Connected)
			return nil
		}

		if services != nil {
			services.ServiceOnce()
		}

		if err := sleep(ctx, m.cfg.Policy.ProvisionInterval); err != nil {
			return err
		}
	}
}

// drainRequests hands any queued submission to the radio. The queue holds
// at most one request.
func (m *Manager) drainRequests() {
	select {
	case creds := <-m.requests:
		logging.Info("Joining submitted network", zap.String("ssid", creds.SSID))
		if err := m.cfg.Radio.Begin(&creds); err != nil {
			logging.Warn("Connect request rejected by radio",
				zap.String("ssid", creds.SSID),
				zap.Error(err),
			)
		}
	default:
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
