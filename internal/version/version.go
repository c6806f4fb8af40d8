package version

import (
	"fmt"
	"runtime/debug"
	"strconv"
	"time"
)

// These variables can be set at build time via ldflags:
//
//	go build -ldflags="-X github.com/muurk/joinme/internal/version.Version=v1.2.3 \
//	                   -X github.com/muurk/joinme/internal/version.Commit=abc123 \
//	                   -X github.com/muurk/joinme/internal/version.FirmwareBuild=6"
//
// If not set, Version and Commit are populated from VCS build info (if
// available), or fall back to "dev" with a timestamp.
var (
	// Version is the semantic version of the tool
	Version = ""
	// Commit is the git commit hash
	Commit = ""
	// FirmwareBuild is the integer firmware version compiled into this image.
	// The OTA updater compares it against the published version marker.
	FirmwareBuild = ""
)

func init() {
	if Version == "" || Commit == "" {
		populateFromBuildInfo()
	}

	if Version == "" {
		Version = fmt.Sprintf("dev-%s", time.Now().Format("20060102-150405"))
	}
	if Commit == "" {
		Commit = "unknown"
	}
}

// populateFromBuildInfo reads VCS settings embedded by the Go toolchain.
func populateFromBuildInfo() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}

	var vcsRevision, vcsModified, vcsTime string
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			vcsRevision = setting.Value
		case "vcs.modified":
			vcsModified = setting.Value
		case "vcs.time":
			vcsTime = setting.Value
		}
	}

	if Commit == "" && vcsRevision != "" {
		if len(vcsRevision) > 7 {
			Commit = vcsRevision[:7]
		} else {
			Commit = vcsRevision
		}
		if vcsModified == "true" {
			Commit += "-dirty"
		}
	}

	if Version == "" && vcsTime != "" {
		if t, err := time.Parse(time.RFC3339, vcsTime); err == nil {
			Version = fmt.Sprintf("dev-%s", t.Format("20060102"))
		}
	}
}

// Firmware returns the compiled-in firmware version, or fallback when the
// build did not set one (or set something that is not a non-negative integer).
func Firmware(fallback int) int {
	if FirmwareBuild == "" {
		return fallback
	}
	n, err := strconv.Atoi(FirmwareBuild)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

// Full returns the full version string including commit
func Full() string {
	return fmt.Sprintf("%s (commit: %s)", Version, Commit)
}
