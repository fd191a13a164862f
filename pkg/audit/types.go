package audit

import (
	"time"
)

// EventType identifies what happened. Every externally visible action the
// bridge takes on behalf of a model ends up as one of these.
type EventType string

const (
	// EventTokenRefresh records a refresh-token exchange against the OIDC
	// provider, successful or not.
	EventTokenRefresh EventType = "auth.token_refresh"

	// EventResourceQuery records a paginated read against the Flight
	// Control API.
	EventResourceQuery EventType = "resource.query"

	// EventConsoleLogin records a flightctl login performed ahead of a
	// console command.
	EventConsoleLogin EventType = "console.login"

	// EventConsoleCommand records a command executed on a device console.
	EventConsoleCommand EventType = "console.command"

	// EventToolCall records an MCP tool invocation end to end.
	EventToolCall EventType = "tool.call"

	// System lifecycle events.
	EventSystemStartup  EventType = "system.startup"
	EventSystemShutdown EventType = "system.shutdown"

	// EventAuditDropped records that the pipeline itself lost events, so
	// readers know the trail has holes.
	EventAuditDropped EventType = "audit.dropped"
)

// Severity indicates how much attention an event deserves.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Event is a single audit record.
type Event struct {
	// ID uniquely identifies this event.
	ID string `json:"id"`

	// Type is the kind of action recorded.
	Type EventType `json:"type"`

	// Severity indicates the importance of the event.
	Severity Severity `json:"severity"`

	// Timestamp is when the event occurred, in UTC.
	Timestamp time.Time `json:"timestamp"`

	// Actor is who triggered the event.
	Actor Actor `json:"actor"`

	// Target is what was acted on.
	Target Target `json:"target"`

	// Details carries event-specific fields.
	Details map[string]interface{} `json:"details,omitempty"`

	// RequestContext carries correlation information.
	RequestContext *RequestContext `json:"requestContext,omitempty"`
}

// Actor identifies who triggered an event. For this bridge that is
// whoever owns the refresh token, as named by the access token claims.
type Actor struct {
	User string `json:"user"`
}

// Target identifies what an event acted on: a resource kind for queries,
// a device for console commands, a tool for invocations.
type Target struct {
	Kind string `json:"kind"`
	Name string `json:"name,omitempty"`
}

// RequestContext ties together the events emitted while serving one
// tool call.
type RequestContext struct {
	// CorrelationID groups all events belonging to one request.
	CorrelationID string `json:"correlationId,omitempty"`

	// Tool is the MCP tool name being served.
	Tool string `json:"tool,omitempty"`
}

// SeverityForEventType returns the default severity for an event type.
// Helpers override it for failure outcomes.
func SeverityForEventType(eventType EventType) Severity {
	switch eventType {
	case EventAuditDropped:
		return SeverityCritical
	case EventConsoleCommand:
		// Remote command execution always deserves review.
		return SeverityWarning
	default:
		return SeverityInfo
	}
}
