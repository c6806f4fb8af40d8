package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/joinme/internal/captivedns"
	"github.com/muurk/joinme/internal/config"
	"github.com/muurk/joinme/internal/connectivity"
	"github.com/muurk/joinme/internal/device"
	"github.com/muurk/joinme/internal/discovery"
	"github.com/muurk/joinme/internal/flash"
	"github.com/muurk/joinme/internal/logging"
	"github.com/muurk/joinme/internal/ota"
	"github.com/muurk/joinme/internal/portal"
	"github.com/muurk/joinme/internal/version"
	"github.com/muurk/joinme/internal/wifi"
)

const shutdownTimeout = 5 * time.Second

// runCmd starts the device
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Join a network, provisioning one if needed, then check for updates",
	Long: `Start the device.

Stored credentials are tried first. If the station has not associated when
the attempt budget (connect.attempts x connect.interval) runs out, the
provisioning access point comes up together with a DNS responder that
answers every name with the portal address and the provisioning web pages.

Once connected the device advertises itself over mDNS and, when ota.enabled
is set, checks the repository for newer firmware. A successful update
restarts the process.`,
	Example: `  # Run with the default configuration file
  joinme run

  # Run with a specific configuration and debug logging
  joinme run --config ./joinme.yaml --log-level debug`,
	RunE: runDevice,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

// Device is one running joinme instance
type Device struct {
	cfg     *config.Config
	radio   *wifi.Sim
	store   *flash.File
	manager *connectivity.Manager

	responder *captivedns.Responder
	web       *portal.Server
	advert    *discovery.Advertisement
}

// NewDevice wires the radio, the flash store and the connectivity manager
func NewDevice(cfg *config.Config) (*Device, error) {
	store, err := openFlash(cfg)
	if err != nil {
		return nil, err
	}

	d := &Device{
		cfg:   cfg,
		radio: wifi.NewSim(cfg.SimConfig(), wifi.NewFileStore(cfg.Radio.CredentialsFile)),
		store: store,
	}
	d.manager = connectivity.New(connectivity.Config{
		Radio:     d.radio,
		APSSID:    cfg.APSSID(),
		APKey:     cfg.AccessPoint.Key,
		Policy:    cfg.Connect.Policy(),
		Provision: d.provision,
	})
	return d, nil
}

// provision starts the captive DNS responder and the portal on the access
// point address. The responder is handed back to the manager for servicing.
func (d *Device) provision(ctx context.Context, apIP net.IP) (connectivity.Servicer, error) {
	responder, err := captivedns.Listen(d.cfg.Portal.DNSAddr, apIP)
	if err != nil {
		return nil, err
	}

	web, err := portal.New(portal.Config{
		Addr:        d.cfg.Portal.HTTPAddr,
		PortalIP:    apIP,
		APSSID:      d.cfg.APSSID(),
		ScanTimeout: d.cfg.Portal.ScanTimeout,
	}, d.manager, d.radio)
	if err != nil {
		responder.Close()
		return nil, err
	}
	if err := web.Start(); err != nil {
		responder.Close()
		return nil, err
	}

	d.responder = responder
	d.web = web
	return responder, nil
}

// Run blocks until ctx is cancelled. Errors starting the access point or the
// portal are returned; update failures are only logged.
func (d *Device) Run(ctx context.Context) error {
	defer d.shutdown()

	if err := d.manager.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	firmware := currentFirmware(d.cfg, d.store)
	d.advertise(firmware)

	if d.cfg.OTA.Enabled {
		go d.update(ctx, firmware)
	}

	// The portal keeps answering after association; DNS is serviced here.
	services := d.manager.Services()
	ticker := time.NewTicker(d.cfg.Connect.ProvisionInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if services != nil {
				services.ServiceOnce()
			}
		}
	}
}

func (d *Device) advertise(firmware int) {
	if !d.cfg.Discovery.Advertise {
		return
	}
	advert, err := discovery.Advertise(d.cfg.InstanceName(), d.cfg.Discovery.Port, firmware, d.cfg.APSSID())
	if err != nil {
		logging.Warn("mDNS advertisement failed", zap.Error(err))
		return
	}
	d.advert = advert
}

func (d *Device) update(ctx context.Context, firmware int) {
	restarter, err := device.NewExecRestarter()
	if err != nil {
		logging.Error("Cannot update", zap.Error(err))
		return
	}

	updater := newUpdater(d.cfg, d.store, restarter)
	res, err := updater.CheckAndUpdate(ctx, firmware, d.cfg.OTA.RepositoryID, d.cfg.OTA.AccessToken, d.cfg.OTA.BasePath)
	if err != nil {
		logging.Warn("Update did not complete",
			zap.Stringer("outcome", res.Outcome),
			zap.Error(err),
		)
	}
}

func (d *Device) shutdown() {
	d.advert.Shutdown()

	if d.web != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := d.web.Shutdown(ctx); err != nil {
			logging.Warn("Portal shutdown", zap.Error(err))
		}
	}
	if d.responder != nil {
		d.responder.Close()
	}
}

func runDevice(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	d, err := NewDevice(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logging.Info("Starting joinme",
		zap.String("version", version.Full()),
		zap.String("ap_ssid", cfg.APSSID()),
		zap.String("flash", d.store.Dir()),
	)
	return d.Run(ctx)
}

func openFlash(cfg *config.Config) (*flash.File, error) {
	store, err := flash.Open(cfg.Flash.Dir)
	if err != nil {
		return nil, err
	}
	store.MaxImageSize = cfg.Flash.MaxImageSize

	if err := store.Verify(); err != nil {
		// Still bootable from the device's point of view; the next update rewrites it.
		logging.Warn("Active image failed verification", zap.Error(err))
	}
	return store, nil
}

// currentFirmware is the version compared against the published marker:
// the flashed boot record when an image has been installed, otherwise the
// compiled-in build or the configured fallback.
func currentFirmware(cfg *config.Config, store *flash.File) int {
	if store != nil {
		rec, err := store.Boot()
		if err == nil && rec.Version > 0 {
			return rec.Version
		}
	}
	return version.Firmware(cfg.OTA.FirmwareVersion)
}

func newUpdater(cfg *config.Config, store *flash.File, restarter ota.Restarter) *ota.Updater {
	u := ota.New(store, restarter)
	if cfg.OTA.Host != "" {
		u.Host = cfg.OTA.Host
	}
	if cfg.OTA.Branch != "" {
		u.Branch = cfg.OTA.Branch
	}
	if cfg.OTA.UserAgent != "" {
		u.UserAgent = cfg.OTA.UserAgent
	}
	if cfg.OTA.CheckTimeout > 0 {
		u.SetCheckTimeout(cfg.OTA.CheckTimeout)
	}
	u.OwnerRepo = cfg.OTA.OwnerRepo
	u.MinImageSize = cfg.OTA.MinImageSize
	return u
}

func describeFirmware(cfg *config.Config, store *flash.File) string {
	rec, err := store.Boot()
	if err != nil || rec.Version == 0 {
		return fmt.Sprintf("%d (built in)", currentFirmware(cfg, store))
	}
	return fmt.Sprintf("%d (slot %s)", rec.Version, rec.Active)
}
