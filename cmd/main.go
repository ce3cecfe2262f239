package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cwrk-planet/collab-service/config"
	"github.com/cwrk-planet/collab-service/internal/auth"
	"github.com/cwrk-planet/collab-service/internal/metrics"
	"github.com/cwrk-planet/collab-service/internal/pg"
	"github.com/cwrk-planet/collab-service/internal/postgres"
	"github.com/cwrk-planet/collab-service/internal/room"
	grpcx "github.com/cwrk-planet/collab-service/internal/transport/grpc"
	httpx "github.com/cwrk-planet/collab-service/internal/transport/http"
	"github.com/cwrk-planet/collab-service/internal/transport/ws"
	"github.com/cwrk-planet/collab-service/pkg/logger"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	// --- config ---
	cfg, err := config.LoadConfig()
	if err != nil {
		println("failed to load config:", err.Error())
		os.Exit(1)
	}

	level, err := logger.ParseLevel(cfg.Logging.Level)
	if err != nil {
		println("failed to parse log level:", err.Error())
		os.Exit(1)
	}
	logger.Init(logger.Config{
		Env:       logger.ParseEnv(cfg.Logging.Env),
		Service:   cfg.Logging.Service,
		Version:   cfg.Logging.Version,
		Backend:   logger.Backend(cfg.Logging.Backend),
		Level:     level,
		AddSource: cfg.Logging.AddSource,
		Debug:     cfg.Logging.Debug,
	})
	slog.Info("starting collab-service",
		"env", cfg.Logging.Env, "version", cfg.Logging.Version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- postgres ---
	pool, err := pg.NewPool(ctx, cfg.Postgres.ToPGConfig())
	if err != nil {
		slog.Error("failed to init postgres", slog.Any("err", err))
		os.Exit(1)
	}
	defer pool.Close()
	slog.Info("connected to postgres")

	documents := postgres.NewDocumentRepository(pool)

	// --- auth ---
	var verifier auth.TokenVerifier
	if cfg.Auth.PublicKeyPath != "" {
		public, err := auth.LoadRSAPublicKeyFromPEM(cfg.Auth.PublicKeyPath)
		if err != nil {
			slog.Error("failed to read public key", slog.Any("err", err))
			os.Exit(1)
		}
		verifier = auth.NewVerifier(public, cfg.Auth.Issuer, cfg.Auth.Audience, cfg.Auth.ClockSkew)
	} else {
		slog.Warn("no jwt public key configured; only anonymous sessions can join")
	}
	authn := auth.NewAuthenticator(verifier, cfg.Auth.AllowAnonymous)

	// --- metrics ---
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	// --- rooms & ws ---
	hub := room.NewHub(room.WithObserver(m))
	wsServer := ws.NewServer(hub, documents, authn, ws.Config{
		PingInterval:   cfg.WS.PingInterval,
		WriteTimeout:   cfg.WS.WriteTimeout,
		ReadLimit:      cfg.WS.ReadLimit,
		SendBuffer:     cfg.WS.SendBuffer,
		AllowedOrigins: cfg.WS.AllowedOrigins,
	}, ws.WithMetrics(m))

	// --- HTTP ---
	router := httpx.NewRouter(httpx.Deps{
		WS:          wsServer,
		Handler:     httpx.NewHandler(hub, documents),
		Auth:        authn,
		Ready:       func(ctx context.Context) error { return pg.Ping(ctx, pool) },
		Metrics:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		CORSOrigins: cfg.CORS.AllowedOrigins,
	})
	httpSrv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	// --- gRPC health ---
	grpcServer := grpcx.New(cfg.GRPC.Addr, cfg.ShutdownTimeout)
	if err := grpcServer.Start(ctx); err != nil {
		slog.Error("failed to start grpc", slog.Any("err", err))
		os.Exit(1)
	}
	go grpcServer.MonitorReadiness(ctx, 15*time.Second, func(ctx context.Context) error {
		return pg.Ping(ctx, pool)
	})

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http listen", "addr", cfg.HTTP.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// --- graceful shutdown ---
	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-errCh:
		slog.Error("http server error", slog.Any("err", err))
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	grpcServer.SetServing(false)
	if err := wsServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("ws shutdown", slog.Any("err", err))
	}
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown", slog.Any("err", err))
	}
	grpcServer.Stop(shutdownCtx)

	slog.Info("stopped")
}
