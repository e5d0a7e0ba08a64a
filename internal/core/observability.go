package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"fieldcore/pkg/domain"
)

// MetricsRecorder receives the outcome of every service operation.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// CompileObserver is implemented by recorders that also count condition
// compilations per target mode.
type CompileObserver interface {
	ObserveCompile(ctx context.Context, mode string, success bool)
}

// FailureObserver is implemented by recorders that break failures down by
// ErrorKind.
type FailureObserver interface {
	ObserveFailure(ctx context.Context, operation string, err error)
}

// Tracer opens a span around each service operation.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan is closed with the operation's error, nil on success.
type TraceSpan interface {
	End(err error)
}

type noopMetrics struct{}

func (noopMetrics) Observe(context.Context, string, bool, time.Duration) {}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

// ErrorKind classifies err by the domain error it wraps. Unclassified
// failures (driver, I/O) are "internal"; nil is "".
func ErrorKind(err error) string {
	var (
		notFound    domain.ErrNotFound
		unknown     domain.ErrUnknownField
		unsupported domain.ErrUnsupportedOperator
		duplicate   domain.ErrDuplicateName
		protected   domain.ErrProtected
		invalid     domain.ErrInvalidField
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, domain.ErrMissingScope):
		return "missing_scope"
	case errors.As(err, &notFound):
		return "not_found"
	case errors.As(err, &unknown):
		return "unknown_field"
	case errors.As(err, &unsupported):
		return "unsupported_operator"
	case errors.As(err, &duplicate):
		return "duplicate_name"
	case errors.As(err, &protected):
		return "protected"
	case errors.As(err, &invalid):
		return "invalid_field"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "internal"
	}
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// PrometheusMetricsRecorder exports operation latencies and compile counts.
type PrometheusMetricsRecorder struct {
	durations *prometheus.HistogramVec
	compiles  *prometheus.CounterVec
	failures  *prometheus.CounterVec
}

// NewPrometheusMetricsRecorder registers the fieldcore collectors with reg.
// A nil reg uses the default registerer.
func NewPrometheusMetricsRecorder(reg prometheus.Registerer) (*PrometheusMetricsRecorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := &PrometheusMetricsRecorder{
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "fieldcore",
			Name:      "operation_duration_seconds",
			Help:      "Latency of fieldcore service operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "status"}),
		compiles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fieldcore",
			Name:      "compile_total",
			Help:      "Condition compilations by target mode and result.",
		}, []string{"mode", "result"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fieldcore",
			Name:      "operation_failures_total",
			Help:      "Failed operations by error kind.",
		}, []string{"operation", "kind"}),
	}
	for _, c := range []prometheus.Collector{r.durations, r.compiles, r.failures} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	return r, nil
}

// Observe records one operation outcome.
func (r *PrometheusMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	r.durations.WithLabelValues(operation, statusLabel(success)).Observe(duration.Seconds())
}

// ObserveCompile counts one compilation.
func (r *PrometheusMetricsRecorder) ObserveCompile(_ context.Context, mode string, success bool) {
	r.compiles.WithLabelValues(mode, statusLabel(success)).Inc()
}

// ObserveFailure counts one failed operation under its error kind.
func (r *PrometheusMetricsRecorder) ObserveFailure(_ context.Context, operation string, err error) {
	if err == nil {
		return
	}
	r.failures.WithLabelValues(operation, ErrorKind(err)).Inc()
}
