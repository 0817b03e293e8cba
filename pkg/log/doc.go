// Package log provides structured engine logging.
//
// This package defines the Logger interface and Event types for capturing
// engine-level events at multiple layers (transport, message, engine).
// It is separate from operational logging (slog) - event capture provides
// a complete machine-readable trace for debugging and analysis, including
// the fate of every establishment attempt.
//
// # Basic Usage
//
// Applications configure logging by providing a Logger implementation:
//
//	// For development: log to console via slog
//	cfg.EventLogger = log.NewSlogAdapter(slog.Default())
//
//	// For production: write to binary file
//	cfg.EventLogger, _ = log.NewFileLogger("/var/log/taps/client.tlog")
//
//	// Both: use MultiLogger
//	cfg.EventLogger = log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    log.NewFileLogger("/var/log/taps/client.tlog"),
//	)
//
// # Event Types
//
// Events are captured at multiple layers:
//   - Transport: Raw frame bytes (FrameEvent)
//   - Message: Send/receive operations (MessageEvent)
//   - Engine: State changes and establishment attempts (StateChangeEvent,
//     CandidateEvent)
//
// Errors at any layer have a dedicated event type.
//
// # File Format
//
// Log files use CBOR encoding with .tlog extension. The taps-log CLI tool
// provides viewing, filtering, and export capabilities.
package log
