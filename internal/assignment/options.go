package assignment

import (
	"time"

	"case-distribution/internal/metrics"
	"case-distribution/internal/notify"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithMetrics(m metrics.Collector) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

func WithNotifier(n notify.Notifier) Option {
	return func(e *Engine) {
		if n != nil {
			e.notifier = n
		}
	}
}

func WithWeightPolicy(p WeightPolicy) Option {
	return func(e *Engine) { e.weights = p }
}

// WithLeaveBuffer sets the number of business days blocked before leave.
func WithLeaveBuffer(businessDays int) Option {
	return func(e *Engine) { e.eligibility.BufferBusinessDays = businessDays }
}

// WithLocation sets the timezone used to decide which calendar day "now" is.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithIDGenerator overrides ledger entry ID generation.
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) {
		if newID != nil {
			e.newID = newID
		}
	}
}

func WithLockTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.lockTimeout = d
		}
	}
}

// WithNotifyTimeout bounds each flush of queued notifications.
func WithNotifyTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.notifyTimeout = d
		}
	}
}

func WithMaxConflictRetries(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.maxRetries = n
		}
	}
}

func defaultIDGenerator() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
