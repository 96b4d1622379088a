// Package scheduler runs the periodic settlement jobs: a sweep that settles
// closed races with results and the month-start profile refresh.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/padraicbc/votesettle/settlement"
)

// Actor is recorded in the settlement audit for scheduled passes.
const Actor = "scheduler"

// Engine is the part of *settlement.Engine the jobs call.
type Engine interface {
	SettleRace(ctx context.Context, raceID uuid.UUID, actor string) (*settlement.Result, error)
	RecomputeAll(ctx context.Context) error
}

// RaceLister finds races ready for settlement.
type RaceLister interface {
	SettleableRaces(ctx context.Context) ([]uuid.UUID, error)
}

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron   *cron.Cron
	engine Engine
	races  RaceLister
	logger *zap.Logger
	ctx    context.Context
}

// New builds a Scheduler whose cron expressions (with seconds) are evaluated in loc.
func New(ctx context.Context, engine Engine, races RaceLister, loc *time.Location, logger *zap.Logger) *Scheduler {
	cl := cronLogger{logger.Sugar()}
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		engine: engine,
		races:  races,
		logger: logger,
		ctx:    ctx,
	}
}

// RegisterAll registers the sweep and the monthly refresh.
func (s *Scheduler) RegisterAll(sweepCron, monthlyCron string) error {
	if _, err := s.cron.AddFunc(sweepCron, func() { _ = s.RunSweep(s.ctx) }); err != nil {
		return fmt.Errorf("register settle sweep: %w", err)
	}
	if _, err := s.cron.AddFunc(monthlyCron, func() { _ = s.RunMonthlyRefresh(s.ctx) }); err != nil {
		return fmt.Errorf("register monthly refresh: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started")
}

// Stop stops scheduling and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// RunSweep settles every race the lister returns, one at a time. Races another
// pass is already settling are skipped quietly. It returns how many races
// settled cleanly.
func (s *Scheduler) RunSweep(ctx context.Context) int {
	ids, err := s.races.SettleableRaces(ctx)
	if err != nil {
		s.logger.Error("settle sweep: list races", zap.Error(err))
		return 0
	}
	ok := 0
	for _, id := range ids {
		res, err := s.engine.SettleRace(ctx, id, Actor)
		var settling *settlement.AlreadySettlingError
		switch {
		case err == nil:
			ok++
		case errors.As(err, &settling):
			s.logger.Debug("settle sweep: race busy", zap.String("race_id", id.String()))
		default:
			fields := []zap.Field{zap.String("race_id", id.String()), zap.Error(err)}
			if res != nil {
				fields = append(fields, zap.Int("settled", res.SettledCount), zap.Int("failed", len(res.FailedVoteIDs)))
			}
			s.logger.Error("settle sweep: race failed", fields...)
		}
	}
	if len(ids) > 0 {
		s.logger.Info("settle sweep done", zap.Int("races", len(ids)), zap.Int("settled", ok))
	}
	return ok
}

// RunMonthlyRefresh recomputes every profile so monthly points restart.
func (s *Scheduler) RunMonthlyRefresh(ctx context.Context) error {
	s.logger.Info("running monthly refresh")
	if err := s.engine.RecomputeAll(ctx); err != nil {
		s.logger.Error("monthly refresh failed", zap.Error(err))
		return err
	}
	return nil
}

// cronLogger routes cron's own logging to zap.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
