// Package flash is a file-backed firmware store with two image slots.
//
// The directory holds slot-a.bin, slot-b.bin and boot.yaml. The boot
// record names the active slot together with the version and BLAKE3
// digest of the image in it. An update is always staged into the inactive
// slot (as slot-x.bin.partial), so the running image is never touched
// until the new one is complete:
//
//	Begin  opens the staging file for the inactive slot
//	Write  streams image bytes and hashes them as they arrive
//	End    checks the declared size, renames the staging file into the
//	       slot and atomically rewrites boot.yaml to point at it
//	Abort  removes the staging file; boot.yaml is untouched
//
// boot.yaml is replaced with write-to-temp, fsync, rename, fsync-directory,
// so a crash at any point leaves either the old or the new record.
//
// Only one staging session may be open at a time.
package flash
