// Package logging provides structured logging for joinme.
//
// This package wraps a zap logger with package-level convenience functions so
// that the connectivity manager, the captive portal and the OTA updater all log
// through one configured sink.
//
// # Log Levels
//
//   - Debug: per-packet DNS captures, raw byte dumps, OTA chunk progress
//   - Info: state transitions, served pages, update outcomes
//   - Warn: recoverable failures (connect budget exhausted, update aborted)
//   - Error: listener failures
//
// # Configuration
//
// Initialize logging at startup with the level from the --log-level flag. When
// the flag is empty the JOINME_LOG_LEVEL environment variable is consulted, and
// when that is empty too the logger is a no-op:
//
//	if err := logging.Initialize(level); err != nil {
//	    return err
//	}
//	defer logging.Sync()
//
// # Secrets
//
// Access tokens travel in OTA request URLs. Pass such URLs through RedactURL
// before logging them.
package logging
