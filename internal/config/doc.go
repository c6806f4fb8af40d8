// Package config loads and saves the joinme configuration file.
//
// The file is YAML, one section per subsystem:
//
//	access_point  SSID, key and address of the provisioning access point
//	connect       stored-credential poll budget and provisioning loop period
//	portal        HTTP and DNS listen addresses, scan timeout
//	ota           firmware version, repository, token, URL settings
//	flash         image store directory and slot capacity
//	radio         credential file and simulated radio environment
//	discovery     mDNS advertisement settings
//
// Missing keys take their defaults, so a file only needs the values that
// differ. Relative paths are resolved against the configuration directory.
//
// # Configuration File Location
//
//   - Linux: $XDG_CONFIG_HOME/joinme/config.yaml or $HOME/.config/joinme/config.yaml
//   - macOS: $HOME/.config/joinme/config.yaml
//   - Windows: %LOCALAPPDATA%\joinme\config.yaml
//
// # Security
//
// The OTA access token and the access point key are stored in plain text.
// Save writes the file with mode 0600.
//
// # Usage Example
//
//	cfg, err := config.Load("")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config
