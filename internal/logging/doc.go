// Package logging provides structured logging with per-module log level configuration.
//
// # Overview
//
// The logging system uses Go's slog package with automatic output routing:
//   - Logs to systemd journal when available (Linux systems with journald)
//   - Logs to stdout when a terminal, pipe, or file is connected
//   - Keeps recent entries in a ring buffer for the log stream endpoint
//
// # Usage
//
// Initialize the logging system once at startup:
//
//	logging.Initialize(logging.Config{
//		Level:  "info",
//		Format: "text",
//		Modules: map[string]string{
//			"session": "debug",
//			"http":    "warn",
//		},
//	})
//
// Get a logger for your module:
//
//	logger := logging.GetLogger("devices")
//	logger.Info("Device appeared", "device_id", id)
//
// Loggers fetched before Initialize keep working; Initialize updates
// their level and attaches the ring buffer.
//
// # Viewing Logs
//
//	journalctl -t camcore -f
//	journalctl -t camcore MODULE=session
//	journalctl -t camcore DEVICE_ID=sim-back-0
//
// # Configuration
//
//	[logging]
//	level = "info"
//	format = "text"
//	history = 1000
//
//	[logging.modules]
//	camera = "debug"
//	hal = "warn"
package logging
