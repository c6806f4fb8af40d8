package ota

import "io"

// Flash opens staged image writes. Implementations guarantee the staging
// area never aliases the running image, so an aborted or failed session
// leaves the device bootable.
type Flash interface {
	// Begin opens a staging session for an image of size bytes that will
	// report itself as version once booted.
	Begin(version int, size int64) (Writer, error)
}

// Writer is one staging session
type Writer interface {
	io.Writer

	// End verifies the staged image and makes it the next boot image
	End() error

	// Abort discards the staged image
	Abort() error
}

// Restarter reboots the device into the newly activated image
type Restarter interface {
	Restart() error
}

// RestartFunc adapts a function to Restarter
type RestartFunc func() error

// Restart calls f()
func (f RestartFunc) Restart() error {
	return f()
}
