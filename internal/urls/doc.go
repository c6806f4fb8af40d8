// Package urls centralizes the URL shapes joinme talks to: the firmware
// repository endpoints used by the OTA updater and the captive portal root
// that captured clients are redirected to.
//
// Usage:
//
//	import "github.com/muurk/joinme/internal/urls"
//
//	u := urls.RawFile(urls.DefaultHost, "owner/repo", urls.DefaultBranch, "thing/firmware", "version")
package urls
