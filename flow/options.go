package flow

import (
	"time"

	"github.com/fableforge/storyflow/flow/emit"
)

// Options collects engine tunables. Zero values fall back to the
// documented defaults at construction time.
type Options struct {
	// MaxConcurrent bounds the worker pool: at most this many handler
	// invocations run at once per thread. Default 8.
	MaxConcurrent int

	// NodeTimeout bounds one handler invocation unless the node spec
	// overrides it. Default 60s.
	NodeTimeout time.Duration

	// ResumeDeadline is how long a suspension waits before the sweeper
	// may resolve it. Default 72h.
	ResumeDeadline time.Duration

	// Emitter receives observability events. Default NullEmitter.
	Emitter emit.Emitter

	// Metrics, when set, records Prometheus metrics.
	Metrics *Metrics

	// Clock supplies the current time; overridable in tests.
	Clock func() time.Time
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.MaxConcurrent <= 0 {
		out.MaxConcurrent = 8
	}
	if out.NodeTimeout <= 0 {
		out.NodeTimeout = 60 * time.Second
	}
	if out.ResumeDeadline <= 0 {
		out.ResumeDeadline = 72 * time.Hour
	}
	if out.Emitter == nil {
		out.Emitter = emit.NewNullEmitter()
	}
	if out.Clock == nil {
		out.Clock = time.Now
	}
	return out
}

// Option is a functional option for configuring an Engine.
type Option func(*Options) error

// WithMaxConcurrent sets the per-thread worker pool size.
func WithMaxConcurrent(n int) Option {
	return func(o *Options) error {
		o.MaxConcurrent = n
		return nil
	}
}

// WithNodeTimeout sets the default per-invocation timeout.
func WithNodeTimeout(d time.Duration) Option {
	return func(o *Options) error {
		o.NodeTimeout = d
		return nil
	}
}

// WithResumeDeadline sets how long suspensions wait before expiring.
func WithResumeDeadline(d time.Duration) Option {
	return func(o *Options) error {
		o.ResumeDeadline = d
		return nil
	}
}

// WithEmitter routes observability events to em.
func WithEmitter(em emit.Emitter) Option {
	return func(o *Options) error {
		o.Emitter = em
		return nil
	}
}

// WithMetrics enables Prometheus metrics collection.
//
//	registry := prometheus.NewRegistry()
//	metrics := flow.NewMetrics(registry)
//	engine, err := flow.New(reg, reducer, store, "input_moderator",
//	    flow.WithMetrics(metrics))
func WithMetrics(m *Metrics) Option {
	return func(o *Options) error {
		o.Metrics = m
		return nil
	}
}

// WithClock overrides the time source. Tests use this to pin
// suspension deadlines.
func WithClock(clock func() time.Time) Option {
	return func(o *Options) error {
		o.Clock = clock
		return nil
	}
}
