// Package config loads the two configuration surfaces of the bridge: the
// Flight Control client credentials shared with the flightctl CLI
// (client.yaml with service, authentication and organization sections) and
// the server settings for transport, logging, rate limiting and audit sinks.
// Environment variables override file values; command-line flags override both.
package config
