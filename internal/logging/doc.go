// Package logging provides structured logging for ucd.
//
// This package wraps a zap logger with convenience functions for the
// patterns used throughout the client. Logging is silent unless a level is
// passed explicitly or UCD_LOG_LEVEL is set, so CLI output stays clean.
//
// # Log Levels
//
//   - Debug: HTTP exchanges, discovery strategy attempts, WebSocket frames
//   - Info: logins, watcher state transitions, refresh passes
//   - Warn: exhausted discovery, reconnects, failed login candidates
//   - Error: unrecoverable failures
//
// # Structured Logging
//
//	logging.Info("Logged in",
//	    zap.String("host", "192.168.1.1"),
//	    zap.String("path", "/api/auth/login"),
//	)
//
// # Configuration
//
//	if err := logging.Initialize("debug"); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
// Logs go to stderr so that command output on stdout (tables, JSON) can be
// piped safely.
//
// # Thread Safety
//
// All logging functions are safe for concurrent use. Initialize and
// SetLogger are meant to be called once at startup.
package logging
