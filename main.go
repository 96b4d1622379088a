package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"

	"github.com/padraicbc/votesettle/config"
	"github.com/padraicbc/votesettle/db"
	"github.com/padraicbc/votesettle/handlers"
	applog "github.com/padraicbc/votesettle/logger"
	"github.com/padraicbc/votesettle/metrics"
	mw "github.com/padraicbc/votesettle/middleware"
	"github.com/padraicbc/votesettle/scoring"
	"github.com/padraicbc/votesettle/settlement"
	"github.com/padraicbc/votesettle/tracing"
)

func main() {
	cfg := config.Load()
	logger, err := applog.New(cfg.Debug, "api")
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	shutdownTracing, err := tracing.Setup(context.Background(), cfg.OTLPEndpoint, "votesettle-api", logger)
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

	if err := db.CreateTables(context.Background(), bdb); err != nil {
		logger.Fatal("create tables failed", zap.Error(err))
	}

	table, err := scoring.LoadTable(cfg.ScoringTable)
	if err != nil {
		logger.Fatal("load scoring table failed", zap.String("path", cfg.ScoringTable), zap.Error(err))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	store := db.NewStore(bdb)
	engine := settlement.New(store, table, settlement.Config{
		Workers:           cfg.SettleWorkers,
		LockTTL:           cfg.SettleLockTTL,
		Location:          cfg.Location(),
		NotifyVoteSettled: cfg.NotifyVoteSettled,
	}, settlement.WithLogger(logger), settlement.WithMetrics(metrics.New(reg)))

	h := handlers.New(store, engine, cfg.JWTKey(), logger)

	e := echo.New()
	e.Use(mw.RequestLogger(logger))
	e.Use(echomw.Recover())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"*", "Authorization"},
	}))

	// Public
	e.POST("/signin", h.Signin)
	e.GET("/rankings", h.Rankings)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	// Admin: valid JWT plus admin claim or ADMIN_USERS membership
	admin := e.Group("/admin", mw.JWT(cfg.JWTKey()), mw.RequireAdmin(cfg.AdminUsers))
	admin.POST("/races/:raceID/results", h.PostResults)
	admin.POST("/races/:raceID/settle", h.SettleRace)
	admin.POST("/resettle", h.Resettle)
	admin.POST("/aggregates/recompute", h.RecomputeAggregates)

	if cfg.Debug {
		logger.Info("starting server", zap.String("mode", "debug"), zap.String("addr", cfg.Port))
		if err := e.Start(cfg.Port); err != nil {
			logger.Fatal("server exited", zap.Error(err))
		}
		return
	}

	autoTLS := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		Cache:      autocert.DirCache(".cache"),
		HostPolicy: autocert.HostWhitelist(cfg.TLSDomains...),
	}

	s := &http.Server{
		Addr:         ":443",
		Handler:      e,
		TLSConfig:    autoTLS.TLSConfig(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  15 * time.Second,
	}

	if err := s.ListenAndServeTLS("", ""); err != http.ErrServerClosed {
		logger.Error("tls server exited", zap.Error(err))
		os.Exit(1)
	}
}
