// Package ota checks a remote repository for newer firmware and, when one is
// published, streams it into a staged flash write and restarts the device.
//
// The repository holds a version marker (a decimal integer in a file called
// "version") next to one image per version ("<n>.bin"). Two URL modes are
// supported:
//
//   - public repositories are read through the host's raw file path
//   - private repositories are read through the project files API with a
//     personal access token
//
// # Outcomes
//
// Every call to CheckAndUpdate ends in exactly one Outcome. Only Updated
// changes the device; every other outcome leaves the running image in place
// and the device keeps operating. There is no automatic retry.
//
//	Updated          image written, finalized, restart requested
//	UpToDate         remote version not newer, nothing downloaded
//	CheckFailed      version marker unreachable, non-200 or not a number
//	ImageFetchFailed image request failed or returned non-200
//	ImageTooSmall    declared length unknown or below MinImageSize
//	BeginFailed      flash refused to open a staging session
//	WriteIncomplete  fewer bytes written than declared; staging aborted
//	FinalizeFailed   flash could not verify or activate the staged image
//
// # Cancellation
//
// The context bounds the version check and the image request. Once a flash
// session has begun the download runs to the end of the body regardless of
// cancellation; a half-written staging slot is never left behind by a
// caller giving up.
package ota
