package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/flightctl/flightctl-mcp/pkg/metrics"
)

// Sink defines the interface for audit event destinations.
type Sink interface {
	// Write sends an audit event to the sink.
	Write(ctx context.Context, event *Event) error

	// Close releases any resources held by the sink.
	Close() error

	// Name returns the sink's identifier.
	Name() string
}

// LogSink writes audit events to a structured logger.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a new LogSink.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger.Named("audit")}
}

// Write logs the audit event.
func (s *LogSink) Write(_ context.Context, event *Event) error {
	fields := []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)),
		zap.String("severity", string(event.Severity)),
		zap.Time("timestamp", event.Timestamp),
		zap.String("actor_user", event.Actor.User),
		zap.String("target_kind", event.Target.Kind),
	}

	if event.Target.Name != "" {
		fields = append(fields, zap.String("target_name", event.Target.Name))
	}
	if event.RequestContext != nil {
		if event.RequestContext.CorrelationID != "" {
			fields = append(fields, zap.String("correlation_id", event.RequestContext.CorrelationID))
		}
		if event.RequestContext.Tool != "" {
			fields = append(fields, zap.String("tool", event.RequestContext.Tool))
		}
	}
	if len(event.Details) > 0 {
		if detailsJSON, err := json.Marshal(event.Details); err == nil {
			fields = append(fields, zap.String("details", string(detailsJSON)))
		}
	}

	s.logger.Info("audit_event", fields...)
	return nil
}

// Close is a no-op for LogSink.
func (s *LogSink) Close() error {
	return nil
}

// Name returns the sink identifier.
func (s *LogSink) Name() string {
	return "log"
}

// WebhookSink posts audit events to an external HTTP endpoint, one
// request per event.
type WebhookSink struct {
	url        string
	httpClient *http.Client
	headers    map[string]string
	logger     *zap.Logger

	eventsWritten atomic.Int64
	eventsFailed  atomic.Int64
}

// WebhookSinkConfig configures a WebhookSink.
type WebhookSinkConfig struct {
	URL     string
	Headers map[string]string
	Timeout time.Duration
}

// NewWebhookSink creates a new WebhookSink.
func NewWebhookSink(cfg WebhookSinkConfig, logger *zap.Logger) *WebhookSink {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}

	sink := &WebhookSink{
		url:        cfg.URL,
		httpClient: &http.Client{Timeout: timeout},
		headers:    cfg.Headers,
		logger:     logger.Named("webhook-sink"),
	}

	sink.logger.Info("webhook audit sink created",
		zap.String("url", cfg.URL),
		zap.Duration("timeout", timeout))

	return sink
}

// Write sends the audit event to the webhook.
func (s *WebhookSink) Write(ctx context.Context, event *Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		s.recordFailure()
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		s.recordFailure()
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.recordFailure()
		s.logger.Debug("webhook request failed",
			zap.String("url", s.url),
			zap.String("event_id", event.ID),
			zap.String("error", err.Error()))
		return fmt.Errorf("failed to send audit event to %s: %w", s.url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		s.recordFailure()
		s.logger.Debug("webhook returned error",
			zap.String("url", s.url),
			zap.String("event_id", event.ID),
			zap.Int("status_code", resp.StatusCode))
		return fmt.Errorf("webhook %s returned error status: %d", s.url, resp.StatusCode)
	}

	s.eventsWritten.Add(1)
	return nil
}

func (s *WebhookSink) recordFailure() {
	s.eventsFailed.Add(1)
	metrics.AuditSinkErrors.WithLabelValues(s.Name()).Inc()
}

// Stats returns the number of events written and failed.
func (s *WebhookSink) Stats() (written, failed int64) {
	return s.eventsWritten.Load(), s.eventsFailed.Load()
}

// Close is a no-op for WebhookSink.
func (s *WebhookSink) Close() error {
	s.logger.Info("closing webhook audit sink",
		zap.Int64("events_written", s.eventsWritten.Load()),
		zap.Int64("events_failed", s.eventsFailed.Load()))
	return nil
}

// Name returns the sink identifier.
func (s *WebhookSink) Name() string {
	return "webhook"
}

// MultiSink writes to multiple sinks sequentially.
type MultiSink struct {
	sinks  []Sink
	logger *zap.Logger
}

// NewMultiSink creates a sink that writes to multiple destinations.
func NewMultiSink(sinks []Sink, logger *zap.Logger) *MultiSink {
	return &MultiSink{
		sinks:  sinks,
		logger: logger,
	}
}

// Write sends the event to all sinks. A failing sink does not stop the
// others; the last error is returned.
func (s *MultiSink) Write(ctx context.Context, event *Event) error {
	var lastErr error
	for _, sink := range s.sinks {
		if err := sink.Write(ctx, event); err != nil {
			// String representation avoids noisy stacktraces for transient errors
			s.logger.Warn("audit sink write failed",
				zap.String("sink", sink.Name()),
				zap.String("error", err.Error()))
			lastErr = err
		}
	}
	return lastErr
}

// Close closes all sinks.
func (s *MultiSink) Close() error {
	var lastErr error
	for _, sink := range s.sinks {
		if err := sink.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Name returns the sink identifier.
func (s *MultiSink) Name() string {
	return "multi"
}
