// Package settlement scores a race's pending votes exactly once, keeps user
// profiles in step with their vote ledger and handles result corrections.
package settlement

import (
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/padraicbc/votesettle/scoring"
)

// Config tunes an Engine.
type Config struct {
	Workers           int
	LockTTL           time.Duration
	Location          *time.Location
	NotifyVoteSettled bool
}

// Metrics receives settlement counters. See the metrics package for the
// Prometheus implementation.
type Metrics interface {
	SettlementFinished(outcome string, took time.Duration)
	VotesProcessed(settled, skipped, failed int)
	AggregateFailed()
	RankUp()
}

// NoOpMetrics discards everything.
type NoOpMetrics struct{}

func (NoOpMetrics) SettlementFinished(string, time.Duration) {}
func (NoOpMetrics) VotesProcessed(int, int, int)             {}
func (NoOpMetrics) AggregateFailed()                         {}
func (NoOpMetrics) RankUp()                                  {}

// Engine runs settlement passes against a Store.
type Engine struct {
	store   Store
	table   scoring.Table
	cfg     Config
	logger  *zap.Logger
	metrics Metrics
	tracer  trace.Tracer
	now     func() time.Time
}

// Option customises an Engine.
type Option func(*Engine)

func WithLogger(l *zap.Logger) Option { return func(e *Engine) { e.logger = l } }

func WithMetrics(m Metrics) Option { return func(e *Engine) { e.metrics = m } }

func WithTracer(t trace.Tracer) Option { return func(e *Engine) { e.tracer = t } }

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// New builds an Engine. Zero config fields fall back to 8 workers, a ten
// minute lock TTL and UTC.
func New(store Store, table scoring.Table, cfg Config, opts ...Option) *Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Minute
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	e := &Engine{
		store:   store,
		table:   table,
		cfg:     cfg,
		logger:  zap.NewNop(),
		metrics: NoOpMetrics{},
		tracer:  otel.Tracer("github.com/padraicbc/votesettle/settlement"),
		now:     time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}
