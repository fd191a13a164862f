// Package api hosts the HTTP-based MCP transports behind a gin engine
// with request logging, panic recovery, per-IP rate limiting and optional
// CORS, and serves the operational endpoints (health, readiness, build
// info, Prometheus metrics).
package api
