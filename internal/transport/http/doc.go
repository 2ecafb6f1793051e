// Package http contains the HTTP handlers for the valuation service.
// Handlers bind and validate request DTOs, run the valuation engine,
// and render JSON responses; errors follow RFC 7807.
package http
