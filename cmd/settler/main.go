// cmd/settler/main.go
// Runs the scheduled settlement jobs: a periodic sweep that settles closed
// races with results, and a month-start refresh of every profile.
//
// Usage:
//
//	go run ./cmd/settler            # run the cron loop
//	go run ./cmd/settler -once      # one sweep, then exit
//	go run ./cmd/settler -refresh   # one profile refresh, then exit
package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/padraicbc/votesettle/config"
	"github.com/padraicbc/votesettle/db"
	applog "github.com/padraicbc/votesettle/logger"
	"github.com/padraicbc/votesettle/scheduler"
	"github.com/padraicbc/votesettle/scoring"
	"github.com/padraicbc/votesettle/settlement"
	"github.com/padraicbc/votesettle/tracing"
)

func main() {
	once := flag.Bool("once", false, "run a single settle sweep and exit")
	refresh := flag.Bool("refresh", false, "recompute every profile and exit")
	flag.Parse()

	cfg := config.Load()
	logger, err := applog.New(cfg.Debug, "settler")
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	shutdownTracing, err := tracing.Setup(context.Background(), cfg.OTLPEndpoint, "votesettle-settler", logger)
	if err != nil {
		logger.Fatal("tracing setup failed", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logger.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	bdb := db.Setup(cfg)
	defer bdb.Close()

	table, err := scoring.LoadTable(cfg.ScoringTable)
	if err != nil {
		logger.Fatal("load scoring table failed", zap.String("path", cfg.ScoringTable), zap.Error(err))
	}

	store := db.NewStore(bdb)
	engine := settlement.New(store, table, settlement.Config{
		Workers:           cfg.SettleWorkers,
		LockTTL:           cfg.SettleLockTTL,
		Location:          cfg.Location(),
		NotifyVoteSettled: cfg.NotifyVoteSettled,
	}, settlement.WithLogger(logger))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s := scheduler.New(ctx, engine, store, cfg.Location(), logger)
	switch {
	case *once:
		s.RunSweep(ctx)
		return
	case *refresh:
		if err := s.RunMonthlyRefresh(ctx); err != nil {
			logger.Fatal("refresh failed", zap.Error(err))
		}
		return
	}

	if err := s.RegisterAll(cfg.SettleSweepCron, cfg.MonthlyRefreshCron); err != nil {
		logger.Fatal("register jobs failed", zap.Error(err))
	}
	s.Start()
	<-ctx.Done()
	s.Stop()
}
