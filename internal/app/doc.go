// Package app assembles the valuation service: configuration, logging,
// telemetry, the progress hub, the HTTP router, and the server
// lifecycle with graceful shutdown.
package app
