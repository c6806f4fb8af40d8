package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/muurk/joinme/internal/config"
	"github.com/muurk/joinme/internal/device"
	"github.com/muurk/joinme/internal/discovery"
	"github.com/muurk/joinme/internal/logging"
	"github.com/muurk/joinme/internal/ota"
	"github.com/muurk/joinme/internal/ui"
)

// Update command flags
var (
	updateTUI     bool
	updateYes     bool
	updateRestart bool
)

// Find command flags
var (
	findTimeout  time.Duration
	findInstance string
)

// Config command flags
var (
	initForce      bool
	initRepoID     string
	initOwnerRepo  string
	initAPSSID     string
	initSSIDSuffix string
	showSecrets    bool
)

func init() {
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(findCmd)
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
}

// updateCmd runs a single update check in the foreground
var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Check for newer firmware and install it",
	Long: `Check the configured repository for a newer firmware version and, if one
is published, download it into the inactive flash slot.

The image is written in full before it is activated; an interrupted or short
download leaves the current image in place. The new image takes effect the
next time 'joinme run' starts, or immediately with --restart.`,
	Example: `  # Check and install with a progress bar
  joinme update --tui

  # Non-interactive, e.g. from cron
  joinme update --yes

  # Install and restart into 'joinme run'
  joinme update --yes --restart`,
	RunE: runUpdate,
}

func init() {
	updateCmd.Flags().BoolVar(&updateTUI, "tui", false, "Render progress with a full-screen progress bar")
	updateCmd.Flags().BoolVarP(&updateYes, "yes", "y", false, "Do not ask for confirmation")
	updateCmd.Flags().BoolVar(&updateRestart, "restart", false, "Re-exec 'joinme run' after a successful update")
}

func runUpdate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openFlash(cfg)
	if err != nil {
		return err
	}

	if !updateYes && !ui.ConfirmFlashUpdate(os.Stdin, os.Stdout, store.Dir()) {
		return nil
	}

	restarter, err := updateRestarter()
	if err != nil {
		return err
	}
	updater := newUpdater(cfg, store, restarter)
	current := currentFirmware(cfg, store)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	header := ui.NewHeader("Firmware update", "joinme update",
		ui.Param{Key: "Repository", Value: repositoryLabel(cfg)},
		ui.Param{Key: "Branch", Value: updater.Branch},
		ui.Param{Key: "Firmware", Value: describeFirmware(cfg, store)},
		ui.Param{Key: "Flash", Value: store.Dir()},
	)

	check := func(obs ota.ProgressObserver) (ota.Result, error) {
		updater.SetObserver(obs)
		return updater.CheckAndUpdate(ctx, current, cfg.OTA.RepositoryID, cfg.OTA.AccessToken, cfg.OTA.BasePath)
	}

	var (
		res       ota.Result
		updateErr error
	)
	if updateTUI && ui.IsTerminal() {
		res, updateErr = ui.RunUpdate(os.Stdout, header, check)
	} else {
		printer := ui.NewPrinter(os.Stdout)
		printer.PrintHeader(header)
		printer.Newline()
		res, updateErr = check(ui.NewLinePrinter(os.Stdout, "Downloading firmware"))
		printer.Newline()
		printer.PrintResult(ui.NewUpdateResult(res, updateErr))
	}

	if updateErr != nil {
		return fmt.Errorf("update %s: %w", res.Outcome, updateErr)
	}
	return nil
}

// updateRestarter re-execs 'joinme run' with the same configuration when
// --restart is set; otherwise the new image waits for the next start.
func updateRestarter() (ota.Restarter, error) {
	if !updateRestart {
		return ota.RestartFunc(func() error {
			logging.Info("New image activated; it runs on the next 'joinme run'")
			return nil
		}), nil
	}

	r, err := device.NewExecRestarter()
	if err != nil {
		return nil, err
	}
	r.Args = []string{"run"}
	if configPath != "" {
		r.Args = append(r.Args, "--config", configPath)
	}
	if logLevel != "" {
		r.Args = append(r.Args, "--log-level", logLevel)
	}
	return r, nil
}

func repositoryLabel(cfg *config.Config) string {
	if cfg.OTA.OwnerRepo != "" {
		return cfg.OTA.OwnerRepo
	}
	if cfg.OTA.AccessToken != "" {
		return "project " + cfg.OTA.RepositoryID + " (token)"
	}
	return cfg.OTA.RepositoryID
}

// findCmd browses for provisioned devices
var findCmd = &cobra.Command{
	Use:   "find",
	Short: "Find joinme devices on the local network",
	Long: `Browse for joinme devices using mDNS/DNS-SD discovery.

Devices advertise themselves once they have joined a network, so a device
that shows up here has been provisioned. Each entry shows the firmware
version and the provisioning access point name it was built with.`,
	Example: `  # Browse for 5 seconds (default)
  joinme find

  # Wait up to a minute for one device to finish provisioning
  joinme find --instance kitchen-pump --timeout 1m`,
	RunE: runFind,
}

func init() {
	findCmd.Flags().DurationVar(&findTimeout, "timeout", discovery.DefaultScanTimeout, "How long to browse")
	findCmd.Flags().StringVar(&findInstance, "instance", "", "Wait for a single instance name and stop as soon as it appears")
}

func runFind(cmd *cobra.Command, args []string) error {
	scanner := discovery.NewScanner()
	scanner.Timeout = findTimeout

	if findInstance != "" {
		fmt.Printf("Waiting for %q (timeout: %s)...\n\n", findInstance, findTimeout)
		d, err := scanner.WaitFor(cmd.Context(), findInstance)
		if err != nil {
			return fmt.Errorf("device %q not found: %w", findInstance, err)
		}
		printDevice(1, d)
		return nil
	}

	fmt.Printf("Browsing for joinme devices (timeout: %s)...\n\n", findTimeout)

	devices, err := scanner.Scan(cmd.Context())
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	if len(devices) == 0 {
		fmt.Println("No devices found.")
		fmt.Println("\nTroubleshooting:")
		fmt.Println("  - A device only advertises after it has joined a network")
		fmt.Println("  - Check that this computer is on the same network")
		fmt.Println("  - Devices still provisioning are reachable on their access point at " + config.DefaultAPAddress)
		fmt.Println("  - Try increasing --timeout")
		return nil
	}

	fmt.Printf("Found %d device(s):\n\n", len(devices))
	for i, d := range devices {
		printDevice(i+1, d)
	}
	return nil
}

func printDevice(n int, d *discovery.Device) {
	fmt.Printf("%d. %s\n", n, d.Instance)
	fmt.Printf("   Address:  %s\n", d.BaseURL())
	if d.Firmware >= 0 {
		fmt.Printf("   Firmware: %d\n", d.Firmware)
	}
	if d.APSSID != "" {
		fmt.Printf("   AP SSID:  %s\n", d.APSSID)
	}
	fmt.Println()
}

// configCmd groups configuration file commands
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Example: `  # Public repository
  joinme config init --owner-repo acme/pump-firmware

  # Private GitLab project (set ota.access_token afterwards)
  joinme config init --repository-id 1234567 --ap-ssid pump-setup`,
	RunE: runConfigInit,
}

func init() {
	configInitCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing file")
	configInitCmd.Flags().StringVar(&initRepoID, "repository-id", "", "Repository id for API downloads")
	configInitCmd.Flags().StringVar(&initOwnerRepo, "owner-repo", "", "owner/repo for raw downloads")
	configInitCmd.Flags().StringVar(&initAPSSID, "ap-ssid", config.DefaultAPSSID, "Provisioning access point name")
	configInitCmd.Flags().StringVar(&initSSIDSuffix, "ap-ssid-suffix", "", "Append to the access point name: \"mac\" for the hardware address")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configPath
	if path == "" {
		path = defaultConfigPath()
	}

	if _, err := os.Stat(path); err == nil && !initForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("cannot access %s: %w", path, err)
	}

	cfg := config.Default()
	cfg.AccessPoint.SSID = initAPSSID
	cfg.AccessPoint.SSIDSuffix = initSSIDSuffix
	cfg.OTA.RepositoryID = initRepoID
	cfg.OTA.OwnerRepo = initOwnerRepo
	if initRepoID == "" && initOwnerRepo == "" {
		cfg.OTA.Enabled = false
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.Save(path); err != nil {
		return err
	}

	fmt.Printf("Wrote %s\n", path)
	if !cfg.OTA.Enabled {
		fmt.Println("Updates are disabled until ota.repository_id or ota.owner_repo is set.")
	}
	return nil
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration after defaults have been applied and relative
paths resolved. Secrets are masked unless --secrets is given.`,
	RunE: runConfigShow,
}

func init() {
	configShowCmd.Flags().BoolVar(&showSecrets, "secrets", false, "Show the access token and access point key")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	validateErr := cfg.Validate()

	if !showSecrets {
		cfg.OTA.AccessToken = mask(cfg.OTA.AccessToken)
		cfg.AccessPoint.Key = mask(cfg.AccessPoint.Key)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	fmt.Print(string(data))

	if validateErr != nil {
		fmt.Fprintf(os.Stderr, "\nWarning: %v\n", validateErr)
	}
	return nil
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "<" + strconv.Itoa(len(secret)) + " chars>"
}
