// Package metrics defines the Prometheus collectors for the MCP bridge:
// tool invocations, Flight Control API requests, token refreshes, console
// commands and the audit pipeline. Collectors are registered once at init.
package metrics
