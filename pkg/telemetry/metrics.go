package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names
const (
	MetricPollsTotal          = "drop_engine_polls_total"
	MetricWindowsDetected     = "drop_engine_windows_detected_total"
	MetricRetryAttemptsTotal  = "drop_engine_retry_attempts_total"
	MetricStageLatency        = "drop_engine_stage_latency_ms"
	MetricOrdersConfirmed     = "drop_engine_orders_confirmed_total"
	MetricOrdersFailed        = "drop_engine_orders_failed_total"
	MetricTriggerError        = "drop_engine_trigger_error_ms"
	MetricActiveWatchers      = "drop_engine_active_watchers"
	MetricCircuitBreakerOpen  = "drop_engine_circuit_breaker_open"
)

// MetricsHolder holds initialized instruments
type MetricsHolder struct {
	PollsTotal         metric.Int64Counter
	WindowsDetected    metric.Int64Counter
	RetryAttemptsTotal metric.Int64Counter
	StageLatency       metric.Float64Histogram
	OrdersConfirmed    metric.Int64Counter
	OrdersFailed       metric.Int64Counter
	TriggerError       metric.Float64Histogram
	ActiveWatchers     metric.Int64ObservableGauge
	CircuitBreakerOpen metric.Int64ObservableGauge

	// State for observable gauges
	mu           sync.RWMutex
	watcherMap   map[string]int64
	breakerMap   map[string]int64
	initialized  bool
}

var (
	globalMetrics *MetricsHolder
	initOnce      sync.Once
)

// GetGlobalMetrics returns the singleton metrics holder
func GetGlobalMetrics() *MetricsHolder {
	initOnce.Do(func() {
		globalMetrics = &MetricsHolder{
			watcherMap: make(map[string]int64),
			breakerMap: make(map[string]int64),
		}
	})
	return globalMetrics
}

// InitMetrics initializes instruments using the meter
func (m *MetricsHolder) InitMetrics(meter metric.Meter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.initialized {
		return nil
	}

	var err error
	if m.PollsTotal, err = meter.Int64Counter(MetricPollsTotal,
		metric.WithDescription("Total number of storefront polls")); err != nil {
		return err
	}
	if m.WindowsDetected, err = meter.Int64Counter(MetricWindowsDetected,
		metric.WithDescription("Total number of newly detected sell windows")); err != nil {
		return err
	}
	if m.RetryAttemptsTotal, err = meter.Int64Counter(MetricRetryAttemptsTotal,
		metric.WithDescription("Total number of remote call attempts")); err != nil {
		return err
	}
	if m.StageLatency, err = meter.Float64Histogram(MetricStageLatency,
		metric.WithDescription("Pipeline stage latency in milliseconds")); err != nil {
		return err
	}
	if m.OrdersConfirmed, err = meter.Int64Counter(MetricOrdersConfirmed,
		metric.WithDescription("Total number of confirmed orders")); err != nil {
		return err
	}
	if m.OrdersFailed, err = meter.Int64Counter(MetricOrdersFailed,
		metric.WithDescription("Total number of failed drop attempts")); err != nil {
		return err
	}
	if m.TriggerError, err = meter.Float64Histogram(MetricTriggerError,
		metric.WithDescription("Scheduler release error relative to go-live in milliseconds")); err != nil {
		return err
	}
	if m.ActiveWatchers, err = meter.Int64ObservableGauge(MetricActiveWatchers,
		metric.WithDescription("Number of storefront watchers currently running"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for seller, n := range m.watcherMap {
				o.Observe(n, metric.WithAttributes(attribute.String("seller", seller)))
			}
			return nil
		})); err != nil {
		return err
	}
	if m.CircuitBreakerOpen, err = meter.Int64ObservableGauge(MetricCircuitBreakerOpen,
		metric.WithDescription("Whether the transport circuit breaker is open (1) or closed (0)"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for host, v := range m.breakerMap {
				o.Observe(v, metric.WithAttributes(attribute.String("host", host)))
			}
			return nil
		})); err != nil {
		return err
	}

	m.initialized = true
	return nil
}

// SetActiveWatchers records the watcher count for a seller.
func (m *MetricsHolder) SetActiveWatchers(seller string, n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watcherMap[seller] = n
}

// SetBreakerOpen records the breaker state for a host.
func (m *MetricsHolder) SetBreakerOpen(host string, open bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if open {
		m.breakerMap[host] = 1
	} else {
		m.breakerMap[host] = 0
	}
}

// BreakerOpen reports the last recorded breaker state for a host.
func (m *MetricsHolder) BreakerOpen(host string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.breakerMap[host] == 1
}
