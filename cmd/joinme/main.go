// Joinme runs a device that joins a Wi-Fi network and keeps its firmware
// current.
//
// On start it tries the stored network credentials. If the station does not
// associate in time it raises an open access point, answers every DNS query
// with the portal address and serves a provisioning page where the operator
// picks a network. Once joined it advertises itself over mDNS and checks a
// repository for newer firmware, flashing and restarting when one exists.
//
// Usage:
//
//	joinme [command] [flags]
//
// See 'joinme --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/joinme/internal/config"
	"github.com/muurk/joinme/internal/logging"
	"github.com/muurk/joinme/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Global flags
var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "joinme",
	Short: "Wi-Fi provisioning and OTA updates",
	Long: `Joinme brings a device onto a Wi-Fi network and keeps its firmware current.

Without stored credentials the device opens the provisioning access point
and a captive portal where a network can be chosen. Once connected it
checks the configured repository for newer firmware.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logging.Initialize(logLevel)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Configuration file (default: "+defaultConfigPath()+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides "+logging.LogLevelEnvVar)

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("joinme %s (commit: %s)\n", version.Version, version.Commit)
		fmt.Printf("firmware build: %d\n", version.Firmware(0))
	},
}

func defaultConfigPath() string {
	p, err := config.GetConfigPath()
	if err != nil {
		return "config.yaml"
	}
	return p
}

// loadConfig reads and validates the configuration named by --config
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
