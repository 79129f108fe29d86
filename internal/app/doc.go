// Package app wires authbot together and manages its lifecycle.
//
// NewApplication loads configuration, initializes logging and builds every
// component through InitializeServices. Run serves the HTTP front end and,
// with the Kafka transport, consumes inbound turns until the context is
// cancelled or SIGINT/SIGTERM arrives, then shuts down gracefully: in-flight
// requests are drained, the pending attempt sweeper stops and the session
// store and outbound transport are closed.
package app
