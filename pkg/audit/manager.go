package audit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/flightctl/flightctl-mcp/pkg/config"
	"github.com/flightctl/flightctl-mcp/pkg/metrics"
)

// Manager coordinates audit event creation and distribution. Emission is
// non-blocking: events flow through a bounded queue to a single writer
// goroutine, so a slow sink never stalls a tool call and events reach the
// sinks in emission order. A nil *Manager is valid and discards everything,
// which is how the bridge runs with auditing off.
type Manager struct {
	sink   Sink
	queue  chan *Event
	logger *zap.Logger
	wg     sync.WaitGroup
	closed atomic.Bool

	queuedEvents    atomic.Int64
	droppedEvents   atomic.Int64
	processedEvents atomic.Int64

	config ManagerConfig
}

// ManagerConfig configures the audit Manager.
type ManagerConfig struct {
	// QueueSize is the size of the async event queue. Default: 4096.
	QueueSize int

	// WriteTimeout is the timeout for writing to sinks. Default: 5s.
	WriteTimeout time.Duration
}

// DefaultManagerConfig returns defaults sized for this bridge's volume.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		QueueSize:    4096,
		WriteTimeout: 5 * time.Second,
	}
}

// NewManager creates an audit Manager writing to sink.
func NewManager(sink Sink, cfg ManagerConfig, logger *zap.Logger) *Manager {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 4096
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}

	m := &Manager{
		sink:   sink,
		queue:  make(chan *Event, cfg.QueueSize),
		logger: logger.Named("audit-manager"),
		config: cfg,
	}

	m.wg.Add(1)
	go m.processQueue()

	m.logger.Info("audit manager started",
		zap.String("sink", sink.Name()),
		zap.Int("queue_size", cfg.QueueSize))

	return m
}

// NewManagerFromConfig builds the sink chain the configuration asks for:
// always the log sink, plus webhook and Kafka sinks when configured, each
// remote sink guarded by a circuit breaker. Returns nil when auditing is
// disabled.
func NewManagerFromConfig(cfg config.Audit, logger *zap.Logger) (*Manager, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	sinks := []Sink{NewLogSink(logger)}

	if cfg.Webhook.URL != "" {
		webhook := NewWebhookSink(WebhookSinkConfig{
			URL:     cfg.Webhook.URL,
			Headers: cfg.Webhook.Headers,
		}, logger)
		sinks = append(sinks, NewCircuitBreakerSink(webhook, DefaultCircuitBreakerConfig(), logger))
	}

	if len(cfg.Kafka.Brokers) > 0 {
		kafkaSink, err := NewKafkaSink(KafkaSinkConfig{
			Brokers:               cfg.Kafka.Brokers,
			Topic:                 cfg.Kafka.Topic,
			TLSEnabled:            cfg.Kafka.TLS.Enabled,
			CAFile:                cfg.Kafka.TLS.CAFile,
			TLSInsecureSkipVerify: cfg.Kafka.TLS.InsecureSkipVerify,
			SASLMechanism:         cfg.Kafka.SASL.Mechanism,
			SASLUsername:          cfg.Kafka.SASL.Username,
			SASLPassword:          cfg.Kafka.SASL.Password,
		}, logger)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, NewCircuitBreakerSink(kafkaSink, DefaultCircuitBreakerConfig(), logger))
	}

	var sink Sink = sinks[0]
	if len(sinks) > 1 {
		sink = NewMultiSink(sinks, logger)
	}

	return NewManager(sink, DefaultManagerConfig(), logger), nil
}

// Emit queues an audit event without blocking. If the queue is full the
// event is dropped and counted.
func (m *Manager) Emit(ctx context.Context, event *Event) {
	if m == nil || m.closed.Load() {
		return
	}

	prepare(event)

	select {
	case m.queue <- event:
		m.queuedEvents.Add(1)
	default:
		m.droppedEvents.Add(1)
		metrics.AuditEventsDropped.Inc()
		m.logger.Warn("audit queue full, dropping event",
			zap.String("event_type", string(event.Type)),
			zap.String("event_id", event.ID))
	}
}

// EmitSync writes an audit event directly to the sink, bypassing the
// queue. Use for lifecycle events that must not be lost.
func (m *Manager) EmitSync(ctx context.Context, event *Event) error {
	if m == nil {
		return nil
	}
	prepare(event)
	return m.sink.Write(ctx, event)
}

func prepare(event *Event) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Severity == "" {
		event.Severity = SeverityForEventType(event.Type)
	}
}

func (m *Manager) processQueue() {
	defer m.wg.Done()

	for event := range m.queue {
		ctx, cancel := context.WithTimeout(context.Background(), m.config.WriteTimeout)
		if err := m.sink.Write(ctx, event); err != nil {
			m.logger.Error("failed to write audit event",
				zap.String("event_id", event.ID),
				zap.String("event_type", string(event.Type)),
				zap.Error(err))
		} else {
			m.processedEvents.Add(1)
			metrics.AuditEventsProcessed.Inc()
		}
		cancel()
	}
}

// Close drains the queue and shuts the sinks down. If events were dropped
// while running, a final audit.dropped record is written so the gap is
// visible in the trail.
func (m *Manager) Close() error {
	if m == nil || m.closed.Swap(true) {
		return nil
	}

	close(m.queue)
	m.wg.Wait()

	if dropped := m.droppedEvents.Load(); dropped > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), m.config.WriteTimeout)
		_ = m.sink.Write(ctx, &Event{
			ID:        uuid.New().String(),
			Type:      EventAuditDropped,
			Severity:  SeverityCritical,
			Timestamp: time.Now().UTC(),
			Target:    Target{Kind: "AuditQueue"},
			Details:   map[string]interface{}{"droppedEvents": dropped},
		})
		cancel()
	}

	m.logger.Info("audit manager stopped",
		zap.Int64("processed", m.processedEvents.Load()),
		zap.Int64("dropped", m.droppedEvents.Load()))

	return m.sink.Close()
}

// Ready reports whether the pipeline still accepts events. A nil manager
// (auditing disabled) is always ready.
func (m *Manager) Ready() error {
	if m == nil {
		return nil
	}
	if m.closed.Load() {
		return fmt.Errorf("audit pipeline closed")
	}
	return nil
}

// Stats returns current audit manager statistics.
func (m *Manager) Stats() ManagerStats {
	if m == nil {
		return ManagerStats{}
	}
	return ManagerStats{
		QueuedEvents:    m.queuedEvents.Load(),
		ProcessedEvents: m.processedEvents.Load(),
		DroppedEvents:   m.droppedEvents.Load(),
		QueueLength:     len(m.queue),
		QueueCapacity:   cap(m.queue),
	}
}

// ManagerStats contains audit manager statistics.
type ManagerStats struct {
	QueuedEvents    int64
	ProcessedEvents int64
	DroppedEvents   int64
	QueueLength     int
	QueueCapacity   int
}

func outcomeOf(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

// --- Helper methods for the bridge's event vocabulary ---

// TokenRefresh records a refresh-token exchange.
func (m *Manager) TokenRefresh(ctx context.Context, actor string, err error) {
	severity := SeverityInfo
	details := map[string]interface{}{"outcome": outcomeOf(err)}
	if err != nil {
		severity = SeverityWarning
		details["error"] = err.Error()
	}
	m.Emit(ctx, &Event{
		Type:     EventTokenRefresh,
		Severity: severity,
		Actor:    Actor{User: actor},
		Target:   Target{Kind: "AccessToken"},
		Details:  details,
	})
}

// ResourceQuery records a paginated read against the Flight Control API.
func (m *Manager) ResourceQuery(ctx context.Context, actor, resource, labelSelector, fieldSelector string, items int, correlationID string, err error) {
	severity := SeverityInfo
	details := map[string]interface{}{
		"outcome": outcomeOf(err),
		"items":   items,
	}
	if labelSelector != "" {
		details["labelSelector"] = labelSelector
	}
	if fieldSelector != "" {
		details["fieldSelector"] = fieldSelector
	}
	if err != nil {
		severity = SeverityWarning
		details["error"] = err.Error()
	}
	m.Emit(ctx, &Event{
		Type:     EventResourceQuery,
		Severity: severity,
		Actor:    Actor{User: actor},
		Target:   Target{Kind: resource},
		Details:  details,
		RequestContext: &RequestContext{
			CorrelationID: correlationID,
		},
	})
}

// ConsoleLogin records the flightctl login step ahead of a console command.
func (m *Manager) ConsoleLogin(ctx context.Context, actor, device, correlationID string, err error) {
	severity := SeverityInfo
	details := map[string]interface{}{"outcome": outcomeOf(err)}
	if err != nil {
		severity = SeverityWarning
		details["error"] = err.Error()
	}
	m.Emit(ctx, &Event{
		Type:     EventConsoleLogin,
		Severity: severity,
		Actor:    Actor{User: actor},
		Target:   Target{Kind: "Device", Name: device},
		Details:  details,
		RequestContext: &RequestContext{
			CorrelationID: correlationID,
		},
	})
}

// ConsoleCommand records a command executed on a device console.
func (m *Manager) ConsoleCommand(ctx context.Context, actor, device, command, correlationID string, err error) {
	details := map[string]interface{}{
		"outcome": outcomeOf(err),
		"command": command,
	}
	severity := SeverityWarning
	if err != nil {
		severity = SeverityCritical
		details["error"] = err.Error()
	}
	m.Emit(ctx, &Event{
		Type:     EventConsoleCommand,
		Severity: severity,
		Actor:    Actor{User: actor},
		Target:   Target{Kind: "Device", Name: device},
		Details:  details,
		RequestContext: &RequestContext{
			CorrelationID: correlationID,
		},
	})
}

// ToolCall records an MCP tool invocation.
func (m *Manager) ToolCall(ctx context.Context, actor, tool, correlationID string, duration time.Duration, err error) {
	severity := SeverityInfo
	details := map[string]interface{}{
		"outcome":    outcomeOf(err),
		"durationMs": duration.Milliseconds(),
	}
	if err != nil {
		severity = SeverityWarning
		details["error"] = err.Error()
	}
	m.Emit(ctx, &Event{
		Type:     EventToolCall,
		Severity: severity,
		Actor:    Actor{User: actor},
		Target:   Target{Kind: "Tool", Name: tool},
		Details:  details,
		RequestContext: &RequestContext{
			CorrelationID: correlationID,
			Tool:          tool,
		},
	})
}

// SystemStartup records bridge startup. Written synchronously so it is
// never lost to a crash right after boot.
func (m *Manager) SystemStartup(ctx context.Context, version, transport string) {
	if m == nil {
		return
	}
	if err := m.EmitSync(ctx, &Event{
		Type:   EventSystemStartup,
		Target: Target{Kind: "Bridge"},
		Details: map[string]interface{}{
			"version":   version,
			"transport": transport,
		},
	}); err != nil {
		m.logger.Warn("failed to write startup audit event", zap.Error(err))
	}
}

// SystemShutdown records bridge shutdown, synchronously.
func (m *Manager) SystemShutdown(ctx context.Context) {
	if m == nil {
		return
	}
	if err := m.EmitSync(ctx, &Event{
		Type:   EventSystemShutdown,
		Target: Target{Kind: "Bridge"},
	}); err != nil {
		m.logger.Warn("failed to write shutdown audit event", zap.Error(err))
	}
}
