// Package audit records every externally visible action the bridge takes
// on behalf of a model (token refreshes, resource queries, console
// commands, tool calls) and forwards the events to configurable sinks
// (log, webhook, Kafka) with circuit breaker protection.
package audit
