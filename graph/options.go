package graph

import (
	"errors"

	"go.uber.org/zap"

	"github.com/dshills/contentflow/graph/emit"
)

// Option configures an Engine.
//
// Example:
//
//	engine, err := graph.New(reduce, st,
//	    graph.WithMaxSteps(50),
//	    graph.WithEmitter(emit.NewLogEmitter(logger)),
//	    graph.WithMetrics(graph.NewPrometheusMetrics(registry)),
//	)
type Option func(*engineConfig) error

type engineConfig struct {
	maxSteps int
	emitter  emit.Emitter
	metrics  *PrometheusMetrics
	logger   *zap.Logger
}

func defaultConfig() engineConfig {
	return engineConfig{
		maxSteps: 100,
		emitter:  emit.NewNullEmitter(),
		logger:   zap.NewNop(),
	}
}

// WithMaxSteps bounds the number of stages executed by one Run or Resume
// call. Revision loops count every pass. Zero disables the limit.
//
// Default: 100.
//
// When the limit is hit, Run returns an EngineError with code
// "MAX_STEPS_EXCEEDED" (errors.Is(err, ErrMaxStepsExceeded) holds) and the
// thread stays resumable from its last checkpoint.
func WithMaxSteps(n int) Option {
	return func(cfg *engineConfig) error {
		if n < 0 {
			return errors.New("max steps must be >= 0")
		}
		cfg.maxSteps = n
		return nil
	}
}

// WithEmitter sets the lifecycle event sink. A nil emitter disables events.
func WithEmitter(e emit.Emitter) Option {
	return func(cfg *engineConfig) error {
		if e == nil {
			e = emit.NewNullEmitter()
		}
		cfg.emitter = e
		return nil
	}
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(m *PrometheusMetrics) Option {
	return func(cfg *engineConfig) error {
		cfg.metrics = m
		return nil
	}
}

// WithLogger sets the engine logger. A nil logger is replaced with a no-op.
func WithLogger(l *zap.Logger) Option {
	return func(cfg *engineConfig) error {
		if l == nil {
			l = zap.NewNop()
		}
		cfg.logger = l
		return nil
	}
}
