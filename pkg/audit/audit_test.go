package audit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/flightctl/flightctl-mcp/pkg/config"
)

func TestEventTypes(t *testing.T) {
	tests := []struct {
		eventType        EventType
		expectedSeverity Severity
	}{
		{EventTokenRefresh, SeverityInfo},
		{EventResourceQuery, SeverityInfo},
		{EventConsoleLogin, SeverityInfo},
		{EventConsoleCommand, SeverityWarning},
		{EventToolCall, SeverityInfo},
		{EventSystemStartup, SeverityInfo},
		{EventSystemShutdown, SeverityInfo},
		{EventAuditDropped, SeverityCritical},
	}

	for _, tc := range tests {
		t.Run(string(tc.eventType), func(t *testing.T) {
			assert.Equal(t, tc.expectedSeverity, SeverityForEventType(tc.eventType))
		})
	}
}

func TestLogSink(t *testing.T) {
	logger := zaptest.NewLogger(t)
	sink := NewLogSink(logger)

	event := &Event{
		ID:        "test-id",
		Timestamp: time.Now(),
		Type:      EventResourceQuery,
		Severity:  SeverityInfo,
		Actor:     Actor{User: "operator@example.com"},
		Target:    Target{Kind: "devices"},
		Details: map[string]interface{}{
			"items": 42,
		},
		RequestContext: &RequestContext{
			CorrelationID: "corr-123",
			Tool:          "query_devices",
		},
	}

	err := sink.Write(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, "log", sink.Name())
	assert.NoError(t, sink.Close())
}

func TestWebhookSink(t *testing.T) {
	var receivedEvent *Event
	var mu sync.Mutex

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		var event Event
		err := json.NewDecoder(r.Body).Decode(&event)
		require.NoError(t, err)
		receivedEvent = &event
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	logger := zaptest.NewLogger(t)
	sink := NewWebhookSink(WebhookSinkConfig{
		URL: server.URL,
		Headers: map[string]string{
			"Authorization": "Bearer test-token",
		},
		Timeout: 5 * time.Second,
	}, logger)

	event := &Event{
		ID:       "webhook-test-id",
		Type:     EventConsoleCommand,
		Severity: SeverityWarning,
		Actor:    Actor{User: "operator@example.com"},
		Target:   Target{Kind: "Device", Name: "device-1"},
	}

	err := sink.Write(context.Background(), event)
	require.NoError(t, err)

	mu.Lock()
	require.NotNil(t, receivedEvent)
	assert.Equal(t, "webhook-test-id", receivedEvent.ID)
	assert.Equal(t, EventConsoleCommand, receivedEvent.Type)
	mu.Unlock()

	assert.Equal(t, "webhook", sink.Name())
	assert.NoError(t, sink.Close())
}

func TestWebhookSinkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	logger := zaptest.NewLogger(t)
	sink := NewWebhookSink(WebhookSinkConfig{
		URL:     server.URL,
		Timeout: 5 * time.Second,
	}, logger)

	err := sink.Write(context.Background(), &Event{ID: "error-test", Type: EventToolCall})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")

	_, failed := sink.Stats()
	assert.Equal(t, int64(1), failed)
}

func TestWebhookSinkTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	logger := zaptest.NewLogger(t)
	sink := NewWebhookSink(WebhookSinkConfig{
		URL:     server.URL,
		Timeout: 20 * time.Millisecond,
	}, logger)

	err := sink.Write(context.Background(), &Event{ID: "timeout-test", Type: EventToolCall})
	require.Error(t, err)
}

// testSink records events for assertions.
type testSink struct {
	name      string
	writeFunc func(event *Event)
	err       error
}

func (s *testSink) Write(_ context.Context, event *Event) error {
	if s.writeFunc != nil {
		s.writeFunc(event)
	}
	return s.err
}

func (s *testSink) Close() error {
	return nil
}

func (s *testSink) Name() string {
	return s.name
}

func TestMultiSink(t *testing.T) {
	logger := zaptest.NewLogger(t)
	var sink1Called, sink2Called bool

	sink1 := &testSink{name: "sink1", writeFunc: func(*Event) { sink1Called = true }}
	sink2 := &testSink{name: "sink2", writeFunc: func(*Event) { sink2Called = true }}

	multi := NewMultiSink([]Sink{sink1, sink2}, logger)

	err := multi.Write(context.Background(), &Event{ID: "multi-test", Type: EventToolCall})
	require.NoError(t, err)
	assert.True(t, sink1Called)
	assert.True(t, sink2Called)
	assert.Equal(t, "multi", multi.Name())
	assert.NoError(t, multi.Close())
}

func TestMultiSinkPartialFailure(t *testing.T) {
	logger := zaptest.NewLogger(t)
	var healthyCalled bool

	failing := &testSink{name: "failing", err: errors.New("sink down")}
	healthy := &testSink{name: "healthy", writeFunc: func(*Event) { healthyCalled = true }}

	multi := NewMultiSink([]Sink{failing, healthy}, logger)

	err := multi.Write(context.Background(), &Event{ID: "partial", Type: EventToolCall})
	require.Error(t, err)
	assert.True(t, healthyCalled, "healthy sink should still receive the event")
}

func TestManagerAssignsDefaults(t *testing.T) {
	logger := zaptest.NewLogger(t)
	var receivedEvents []*Event
	var mu sync.Mutex

	sink := &testSink{
		name: "test",
		writeFunc: func(event *Event) {
			mu.Lock()
			receivedEvents = append(receivedEvents, event)
			mu.Unlock()
		},
	}

	manager := NewManager(sink, ManagerConfig{QueueSize: 100}, logger)

	manager.Emit(context.Background(), &Event{
		Type:   EventResourceQuery,
		Actor:  Actor{User: "user1@example.com"},
		Target: Target{Kind: "devices"},
	})
	manager.Emit(context.Background(), &Event{
		Type:   EventConsoleCommand,
		Actor:  Actor{User: "user1@example.com"},
		Target: Target{Kind: "Device", Name: "device-1"},
	})

	require.NoError(t, manager.Close())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, receivedEvents, 2)
	for _, event := range receivedEvents {
		assert.NotEmpty(t, event.ID)
		assert.False(t, event.Timestamp.IsZero())
		assert.NotEmpty(t, event.Severity)
	}

	// Events reach the sink in emission order.
	assert.Equal(t, EventResourceQuery, receivedEvents[0].Type)
	assert.Equal(t, EventConsoleCommand, receivedEvents[1].Type)
}

func TestManagerEmitSync(t *testing.T) {
	logger := zaptest.NewLogger(t)
	var receivedEvent *Event

	sink := &testSink{
		name:      "test",
		writeFunc: func(event *Event) { receivedEvent = event },
	}

	manager := NewManager(sink, DefaultManagerConfig(), logger)

	err := manager.EmitSync(context.Background(), &Event{
		Type:   EventSystemStartup,
		Target: Target{Kind: "Bridge"},
	})
	require.NoError(t, err)

	require.NotNil(t, receivedEvent)
	assert.NotEmpty(t, receivedEvent.ID)
	assert.Equal(t, EventSystemStartup, receivedEvent.Type)
	_ = manager.Close()
}

func TestManagerHelperMethods(t *testing.T) {
	logger := zaptest.NewLogger(t)
	var events []*Event
	var mu sync.Mutex

	sink := &testSink{
		name: "test",
		writeFunc: func(event *Event) {
			mu.Lock()
			events = append(events, event)
			mu.Unlock()
		},
	}

	manager := NewManager(sink, DefaultManagerConfig(), logger)
	ctx := context.Background()

	manager.TokenRefresh(ctx, "user@test.com", nil)
	manager.TokenRefresh(ctx, "user@test.com", errors.New("invalid_grant"))
	manager.ResourceQuery(ctx, "user@test.com", "devices", "env=prod", "", 12, "corr-1", nil)
	manager.ConsoleLogin(ctx, "user@test.com", "device-1", "corr-2", nil)
	manager.ConsoleCommand(ctx, "user@test.com", "device-1", "uptime", "corr-2", nil)
	manager.ConsoleCommand(ctx, "user@test.com", "device-1", "reboot", "corr-3", errors.New("exit status 1"))
	manager.ToolCall(ctx, "user@test.com", "query_devices", "corr-1", 150*time.Millisecond, nil)
	manager.SystemStartup(ctx, "1.0.0", "stdio")
	manager.SystemShutdown(ctx)

	require.NoError(t, manager.Close())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 9)

	byType := map[EventType][]*Event{}
	for _, event := range events {
		byType[event.Type] = append(byType[event.Type], event)
	}

	refreshes := byType[EventTokenRefresh]
	require.Len(t, refreshes, 2)
	assert.Equal(t, SeverityInfo, refreshes[0].Severity)
	assert.Equal(t, SeverityWarning, refreshes[1].Severity)
	assert.Equal(t, "invalid_grant", refreshes[1].Details["error"])

	queries := byType[EventResourceQuery]
	require.Len(t, queries, 1)
	assert.Equal(t, "devices", queries[0].Target.Kind)
	assert.Equal(t, "env=prod", queries[0].Details["labelSelector"])
	assert.Equal(t, 12, queries[0].Details["items"])
	assert.Equal(t, "corr-1", queries[0].RequestContext.CorrelationID)

	commands := byType[EventConsoleCommand]
	require.Len(t, commands, 2)
	assert.Equal(t, SeverityWarning, commands[0].Severity)
	assert.Equal(t, SeverityCritical, commands[1].Severity)

	tools := byType[EventToolCall]
	require.Len(t, tools, 1)
	assert.Equal(t, "query_devices", tools[0].RequestContext.Tool)
	assert.Equal(t, int64(150), tools[0].Details["durationMs"])
}

func TestManagerNilSafe(t *testing.T) {
	var manager *Manager

	ctx := context.Background()
	manager.Emit(ctx, &Event{Type: EventToolCall})
	require.NoError(t, manager.EmitSync(ctx, &Event{Type: EventToolCall}))
	manager.TokenRefresh(ctx, "user", nil)
	manager.ResourceQuery(ctx, "user", "devices", "", "", 0, "", nil)
	manager.ConsoleLogin(ctx, "user", "d", "", nil)
	manager.ConsoleCommand(ctx, "user", "d", "ls", "", nil)
	manager.ToolCall(ctx, "user", "query_devices", "", 0, nil)
	manager.SystemStartup(ctx, "dev", "stdio")
	manager.SystemShutdown(ctx)
	require.NoError(t, manager.Close())
	assert.Equal(t, ManagerStats{}, manager.Stats())
}

func TestManagerDropsWhenFull(t *testing.T) {
	logger := zaptest.NewLogger(t)
	gate := make(chan struct{})
	var events []*Event
	var mu sync.Mutex

	sink := &testSink{
		name: "slow",
		writeFunc: func(event *Event) {
			<-gate
			mu.Lock()
			events = append(events, event)
			mu.Unlock()
		},
	}

	manager := NewManager(sink, ManagerConfig{QueueSize: 1}, logger)

	for i := 0; i < 5; i++ {
		manager.Emit(context.Background(), &Event{Type: EventToolCall})
	}

	stats := manager.Stats()
	assert.Greater(t, stats.DroppedEvents, int64(0))

	close(gate)
	require.NoError(t, manager.Close())

	// The close path records the gap in the trail
	mu.Lock()
	defer mu.Unlock()
	var droppedSummary *Event
	for _, event := range events {
		if event.Type == EventAuditDropped {
			droppedSummary = event
		}
	}
	require.NotNil(t, droppedSummary)
	assert.Equal(t, SeverityCritical, droppedSummary.Severity)
}

func TestManagerCloseIdempotent(t *testing.T) {
	logger := zaptest.NewLogger(t)
	manager := NewManager(&testSink{name: "test"}, DefaultManagerConfig(), logger)
	require.NoError(t, manager.Close())
	require.NoError(t, manager.Close())
}

func TestManagerReady(t *testing.T) {
	var disabled *Manager
	require.NoError(t, disabled.Ready())

	manager := NewManager(&testSink{name: "test"}, DefaultManagerConfig(), zaptest.NewLogger(t))
	require.NoError(t, manager.Ready())

	require.NoError(t, manager.Close())
	err := manager.Ready()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closed")
}

func TestDefaultManagerConfig(t *testing.T) {
	cfg := DefaultManagerConfig()
	assert.Equal(t, 4096, cfg.QueueSize)
	assert.Equal(t, 5*time.Second, cfg.WriteTimeout)
}

func TestNewManagerFromConfig(t *testing.T) {
	logger := zaptest.NewLogger(t)

	t.Run("disabled returns nil", func(t *testing.T) {
		manager, err := NewManagerFromConfig(config.Audit{Enabled: false}, logger)
		require.NoError(t, err)
		assert.Nil(t, manager)
	})

	t.Run("log sink only", func(t *testing.T) {
		manager, err := NewManagerFromConfig(config.Audit{Enabled: true}, logger)
		require.NoError(t, err)
		require.NotNil(t, manager)
		require.NoError(t, manager.Close())
	})

	t.Run("with webhook", func(t *testing.T) {
		manager, err := NewManagerFromConfig(config.Audit{
			Enabled: true,
			Webhook: config.AuditWebhook{URL: "https://audit.example.com/events"},
		}, logger)
		require.NoError(t, err)
		require.NotNil(t, manager)
		require.NoError(t, manager.Close())
	})

	t.Run("kafka without topic fails", func(t *testing.T) {
		_, err := NewManagerFromConfig(config.Audit{
			Enabled: true,
			Kafka:   config.AuditKafka{Brokers: []string{"kafka-1:9092"}},
		}, logger)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "topic")
	})
}

func TestCorrelationIDContext(t *testing.T) {
	ctx := context.Background()
	require.Empty(t, CorrelationIDFrom(ctx))

	ctx = WithCorrelationID(ctx, "req-42")
	require.Equal(t, "req-42", CorrelationIDFrom(ctx))
}
