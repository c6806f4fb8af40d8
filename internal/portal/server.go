package portal

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/muurk/joinme/internal/connectivity"
	"github.com/muurk/joinme/internal/logging"
	"github.com/muurk/joinme/internal/urls"
	"github.com/muurk/joinme/internal/wifi"
	"go.uber.org/zap"
)

const (
	// DefaultAddr is where the portal listens
	DefaultAddr = ":80"

	// DefaultScanTimeout bounds the scan behind GET /wifi
	DefaultScanTimeout = 10 * time.Second
)

// ConnectivityCheckPaths are the connectivity-check URLs operating systems fetch to
// detect a captive portal. All of them redirect to the portal root.
var ConnectivityCheckPaths = []string{
	"/generate_204",
	"/gen_204",
	"/L0",
	"/L2",
	"/ALL",
	"/hotspot-detect.html",
	"/ncsi.txt",
	"/connecttest.txt",
}

// Connector accepts credential submissions and reports manager state.
// *connectivity.Manager satisfies it.
type Connector interface {
	Submit(creds wifi.Credentials) bool
	State() connectivity.State
	Subscribe() (<-chan connectivity.State, func())
}

// Radio is the read-only view of the radio the pages need.
type Radio interface {
	Status() wifi.Status
	Scan(ctx context.Context) ([]wifi.Network, error)
	SSID() string
	LocalIP() net.IP
	APIP() net.IP
}

// Config holds the portal configuration
type Config struct {
	Addr        string
	PortalIP    net.IP
	APSSID      string
	ScanTimeout time.Duration
}

// Server is the provisioning web service
type Server struct {
	config     Config
	connector  Connector
	radio      Radio
	redirectTo string

	mux        *http.ServeMux
	httpServer *http.Server
	listener   net.Listener
	upgrader   websocket.Upgrader

	wg          sync.WaitGroup
	mu          sync.Mutex
	activeConns map[string]*websocket.Conn
}

// New creates a portal Server. It does not listen until Start.
func New(config Config, connector Connector, radio Radio) (*Server, error) {
	if config.PortalIP.To4() == nil {
		return nil, fmt.Errorf("portal address must be IPv4, got %v", config.PortalIP)
	}
	if config.Addr == "" {
		config.Addr = DefaultAddr
	}
	if config.ScanTimeout <= 0 {
		config.ScanTimeout = DefaultScanTimeout
	}

	s := &Server{
		config:      config,
		connector:   connector,
		radio:       radio,
		redirectTo:  urls.PortalRoot(config.PortalIP),
		mux:         http.NewServeMux(),
		activeConns: make(map[string]*websocket.Conn),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	s.routes()
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /{$}", s.handleRoot)
	s.mux.HandleFunc("GET /wifi", s.handleWifi)
	s.mux.HandleFunc("POST /wifichz", s.handleWifichz)
	s.mux.HandleFunc("GET /status", s.handleStatus)
	s.mux.HandleFunc("GET /status/ws", s.handleStatusWS)
	for _, p := range ConnectivityCheckPaths {
		s.mux.HandleFunc(p, s.handleRedirect)
	}
	s.mux.HandleFunc("/", s.handleRedirect)
}

// Handler returns the portal's routes wrapped in request logging
func (s *Server) Handler() http.Handler {
	return logRequests(s.mux)
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
	}
	s.listener = listener

	logging.Info("Provisioning portal listening",
		zap.String("addr", listener.Addr().String()),
		zap.String("portal", s.redirectTo),
	)

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("Portal server stopped", zap.Error(err))
		}
	}()
	return nil
}

// Addr returns the listening address, or nil before Start
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown stops accepting requests, closes status websockets and waits
// for in-flight handlers.
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down provisioning portal...")

	s.mu.Lock()
	for addr, conn := range s.activeConns {
		logging.Debug("Closing status websocket", zap.String("remote_addr", addr))
		_ = conn.Close()
	}
	s.mu.Unlock()

	err := s.httpServer.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		logging.Warn("Shutdown timeout, forcing close")
	}
	return err
}

// ActiveWebsockets returns the number of open status websockets
func (s *Server) ActiveWebsockets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.activeConns)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writePage(w, http.StatusOK, landingPage(s.config.APSSID))
}

func (s *Server) handleWifi(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.config.ScanTimeout)
	defer cancel()

	networks, err := s.radio.Scan(ctx)
	if err != nil {
		logging.Warn("Network scan failed", zap.Error(err))
		networks = nil
	}
	if len(networks) == 0 {
		logging.Info("Scan found no access points")
	} else {
		logging.Debug("Scan complete", zap.Int("networks", len(networks)))
	}
	writePage(w, http.StatusOK, networksPage(s.config.APSSID, networks))
}

func (s *Server) handleWifichz(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writePage(w, http.StatusBadRequest, missingSSIDPage(s.config.APSSID))
		return
	}
	creds := wifi.Credentials{
		SSID: r.PostFormValue("ssid"),
		Key:  r.PostFormValue("key"),
	}

	if !s.connector.Submit(creds) {
		logging.Warn("Credential submission without SSID",
			zap.String("remote_addr", r.RemoteAddr),
		)
		writePage(w, http.StatusBadRequest, missingSSIDPage(s.config.APSSID))
		return
	}

	logging.Info("Credentials submitted",
		zap.String("ssid", creds.SSID),
		zap.String("remote_addr", r.RemoteAddr),
	)
	writePage(w, http.StatusOK, joiningPage(s.config.APSSID, creds.SSID))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writePage(w, http.StatusOK, statusPage(s.Status()))
}

func (s *Server) handleRedirect(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, s.redirectTo, http.StatusTemporaryRedirect)
}

func writePage(w http.ResponseWriter, status int, page string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(page))
}

// statusRecorder captures the response code for request logging
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logging.LogHTTPRequest(r.RemoteAddr, r.Method, r.URL.Path, rec.status)
	})
}
