package audit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/flightctl/flightctl-mcp/pkg/metrics"
)

// CircuitState represents the current state of the circuit breaker.
type CircuitState int32

const (
	// CircuitClosed indicates normal operation.
	CircuitClosed CircuitState = iota
	// CircuitOpen indicates the circuit is tripped and writes are blocked.
	CircuitOpen
	// CircuitHalfOpen indicates the circuit is probing with limited writes.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures the circuit breaker behavior.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before
	// opening the circuit. Default: 5.
	FailureThreshold int

	// SuccessThreshold is the number of consecutive successes in
	// half-open state required to close the circuit. Default: 2.
	SuccessThreshold int

	// OpenTimeout is how long to wait before transitioning from open to
	// half-open. Default: 30s.
	OpenTimeout time.Duration
}

// DefaultCircuitBreakerConfig returns the default thresholds.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		OpenTimeout:      30 * time.Second,
	}
}

// ErrCircuitOpen is returned when the circuit breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker keeps a failing sink from stalling the audit workers by
// temporarily blocking writes to it.
type CircuitBreaker struct {
	name   string
	config CircuitBreakerConfig
	logger *zap.Logger

	state            atomic.Int32 // CircuitState
	consecutiveFails atomic.Int64
	consecutiveSuccs atomic.Int64
	lastStateChange  atomic.Value // time.Time

	mu sync.Mutex
}

// NewCircuitBreaker creates a circuit breaker named after the sink it guards.
func NewCircuitBreaker(name string, cfg CircuitBreakerConfig, logger *zap.Logger) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}

	cb := &CircuitBreaker{
		name:   name,
		config: cfg,
		logger: logger.Named("circuit-breaker").With(zap.String("sink", name)),
	}
	cb.state.Store(int32(CircuitClosed))
	cb.lastStateChange.Store(time.Now())
	metrics.AuditCircuitState.WithLabelValues(name).Set(float64(CircuitClosed))

	return cb
}

// Execute wraps a sink write with circuit breaker protection. Returns
// ErrCircuitOpen without calling fn if the circuit is open.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if !cb.canExecute() {
		metrics.AuditCircuitRejections.WithLabelValues(cb.name).Inc()
		return ErrCircuitOpen
	}

	if err := fn(ctx); err != nil {
		cb.recordFailure()
		return err
	}

	cb.recordSuccess()
	return nil
}

func (cb *CircuitBreaker) canExecute() bool {
	switch CircuitState(cb.state.Load()) {
	case CircuitClosed, CircuitHalfOpen:
		return true
	case CircuitOpen:
		lastChange, ok := cb.lastStateChange.Load().(time.Time)
		if ok && time.Since(lastChange) >= cb.config.OpenTimeout {
			cb.transitionTo(CircuitHalfOpen)
			return true
		}
		return false
	default:
		return false
	}
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.consecutiveFails.Store(0)
	successes := cb.consecutiveSuccs.Add(1)

	if CircuitState(cb.state.Load()) == CircuitHalfOpen && int(successes) >= cb.config.SuccessThreshold {
		cb.transitionTo(CircuitClosed)
	}
}

func (cb *CircuitBreaker) recordFailure() {
	cb.consecutiveSuccs.Store(0)
	failures := cb.consecutiveFails.Add(1)

	switch CircuitState(cb.state.Load()) {
	case CircuitClosed:
		if int(failures) >= cb.config.FailureThreshold {
			cb.transitionTo(CircuitOpen)
		}
	case CircuitHalfOpen:
		// Any failure while probing trips back to open
		cb.transitionTo(CircuitOpen)
	}
}

func (cb *CircuitBreaker) transitionTo(newState CircuitState) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	oldState := CircuitState(cb.state.Load())
	if oldState == newState {
		return
	}

	cb.state.Store(int32(newState))
	cb.lastStateChange.Store(time.Now())
	cb.consecutiveFails.Store(0)
	cb.consecutiveSuccs.Store(0)

	cb.logger.Info("circuit breaker state changed",
		zap.String("from", oldState.String()),
		zap.String("to", newState.String()))

	metrics.AuditCircuitState.WithLabelValues(cb.name).Set(float64(newState))
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	return CircuitState(cb.state.Load())
}

// IsHealthy returns true if the circuit is closed.
func (cb *CircuitBreaker) IsHealthy() bool {
	return cb.State() == CircuitClosed
}

// CircuitBreakerSink wraps a Sink with circuit breaker protection.
type CircuitBreakerSink struct {
	sink    Sink
	breaker *CircuitBreaker
}

// NewCircuitBreakerSink wraps a sink with circuit breaker protection.
func NewCircuitBreakerSink(sink Sink, cfg CircuitBreakerConfig, logger *zap.Logger) *CircuitBreakerSink {
	return &CircuitBreakerSink{
		sink:    sink,
		breaker: NewCircuitBreaker(sink.Name(), cfg, logger),
	}
}

// Write implements Sink with circuit breaker protection.
func (s *CircuitBreakerSink) Write(ctx context.Context, event *Event) error {
	return s.breaker.Execute(ctx, func(ctx context.Context) error {
		return s.sink.Write(ctx, event)
	})
}

// Close closes the underlying sink.
func (s *CircuitBreakerSink) Close() error {
	return s.sink.Close()
}

// Name returns the underlying sink's name.
func (s *CircuitBreakerSink) Name() string {
	return s.sink.Name()
}

// IsHealthy returns true if the circuit is closed.
func (s *CircuitBreakerSink) IsHealthy() bool {
	return s.breaker.IsHealthy()
}
