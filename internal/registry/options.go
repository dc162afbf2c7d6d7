package registry

import (
	"context"
	"time"

	"recordcore/pkg/record"
)

// Logger receives structured key-value log lines from the registry. The
// default is a no-op; production deployments plug in an adapter such as
// NewZapLogger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// MetricsRecorder observes the outcome of registry operations.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// Tracer starts spans around registry operations.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan finishes a single traced operation.
type TraceSpan interface {
	End(err error)
}

// AuditStatus labels the outcome recorded in an audit entry.
type AuditStatus string

// Audit outcomes.
const (
	// AuditSuccess marks a completed operation.
	AuditSuccess AuditStatus = "success"
	// AuditError marks a failed operation.
	AuditError AuditStatus = "error"
)

// AuditEntry describes one audited registry operation.
type AuditEntry struct {
	Operation string          `json:"operation"`
	Status    AuditStatus     `json:"status"`
	Type      string          `json:"type,omitempty"`
	Key       record.StoreKey `json:"key,omitempty"`
	Detail    string          `json:"detail,omitempty"`
	At        time.Time       `json:"at"`
}

// AuditRecorder receives audit entries for lifecycle-changing operations.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

// Option customises a registry at construction time.
type Option func(*Registry)

// WithClock overrides the time source used for events and audit entries.
func WithClock(clock func() time.Time) Option {
	return func(r *Registry) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// WithLogger installs a structured logger.
func WithLogger(logger Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetricsRecorder installs a metrics recorder.
func WithMetricsRecorder(metrics MetricsRecorder) Option {
	return func(r *Registry) {
		if metrics != nil {
			r.metrics = metrics
		}
	}
}

// WithTracer installs a tracer.
func WithTracer(tracer Tracer) Option {
	return func(r *Registry) {
		if tracer != nil {
			r.tracer = tracer
		}
	}
}

// WithAuditRecorder installs an audit recorder.
func WithAuditRecorder(audit AuditRecorder) Option {
	return func(r *Registry) {
		if audit != nil {
			r.audit = audit
		}
	}
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type noopMetrics struct{}

func (noopMetrics) Observe(context.Context, string, bool, time.Duration) {}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

type noopAudit struct{}

func (noopAudit) Record(context.Context, AuditEntry) {}
