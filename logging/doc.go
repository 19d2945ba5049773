// Package logging provides a minimal logging interface and adapters for the
// AWS ops agent.
//
// The Logger interface defines the standard logging methods (Debug, Info,
// Warn, Error) that the listener, orchestrator and clients use for
// observability. The package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// The design intentionally keeps the interface minimal so callers can plug in
// any structured logger.
package logging
