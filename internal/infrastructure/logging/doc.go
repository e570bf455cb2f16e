// Package logging provides structured logging for the garage bridge.
//
// This package wraps Go's standard log/slog package so every component logs
// with the same shape. JSON output is the default; text output is available
// for development. Every entry carries service and version fields, and
// components add their own with Component.
//
// Logging is configured via the logging section of config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr or a file path
package logging
