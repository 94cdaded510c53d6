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

	"messenger/internal/cache"
	"messenger/internal/config"
	"messenger/internal/gate"
	"messenger/internal/idp"
	"messenger/internal/jwtsigner"
	"messenger/internal/observability/logging"
	"messenger/internal/observability/metrics"
	impl "messenger/internal/service/impl"
	"messenger/internal/store"
	"messenger/internal/sweep"
	httpx "messenger/internal/transport/http"
	"messenger/internal/transport/ws"
	"messenger/pkg/db"
)

func main() {
	cfg := config.Load()

	logger := logging.NewLogger(logging.Config{
		ServiceName: "messenger",
		Environment: cfg.Environment,
		Level:       cfg.LogLevel,
	})
	slog.SetDefault(logger)
	logger.Info("starting service")

	metrics.MustRegister("messenger")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("service stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	// 1) DB
	gdb, err := db.OpenGorm(db.Config{DSN: cfg.DatabaseURL, LogSQL: cfg.DBLogSQL})
	if err != nil {
		return err
	}
	if cfg.AutoMigrate {
		if err := db.AutoMigrate(ctx, gdb); err != nil {
			return err
		}
	}
	st := store.New(gdb)

	// 2) Cooldowns and sweep gate
	var kv cache.Store = cache.NewMemoryStore()
	if cfg.RedisURL != "" {
		rs, err := cache.NewStoreFromURL(ctx, cfg.RedisURL, "messenger:")
		if err != nil {
			return err
		}
		defer rs.Close()
		kv = rs
		logger.Info("using redis for cooldowns and sweep gate")
	}

	// 3) Identity provider and signer
	bridge, err := idp.NewFirebaseBridge(ctx, idp.FirebaseConfig{
		ProjectID:          cfg.FirebaseProjectID,
		ServiceAccountPath: cfg.FirebaseServiceAccountPath,
		APIKey:             cfg.FirebaseAPIKey,
		RESTBaseURL:        cfg.FirebaseRESTBaseURL,
		TokenBaseURL:       cfg.FirebaseTokenBaseURL,
	})
	if err != nil {
		return err
	}
	signer, err := jwtsigner.New(cfg.ActivationSecret)
	if err != nil {
		return err
	}

	// 4) Gate, fan-out and services
	g := gate.New(bridge, st.Users(), cfg.GateStrictEpoch)
	hub := ws.NewHub(g, st.Chats(), cfg.CORSOrigins, logger)
	mail := impl.NewLogEmailService()

	identity := impl.NewIdentityServiceImpl(st, bridge, mail, hub)
	activation := impl.NewActivationServiceImpl(st, bridge, signer, mail, kv, impl.ActivationConfig{
		TTL:           cfg.ActivationTTL,
		Cooldown:      cfg.ActivationCooldown,
		PublicBaseURL: cfg.PublicBaseURL,
	})
	syncer := impl.NewSyncServiceImpl(st, bridge, hub, cfg.AdminSyncKey)
	chat := impl.NewChatServiceImpl(st, hub)

	if cfg.SweepEnabled {
		sched := sweep.NewScheduler(syncer, kv, cfg.SweepInterval, cfg.SweepTick, logger)
		go sched.Run(ctx)
	}

	// 5) HTTP
	router := httpx.NewRouter(httpx.Services{
		Identity:   identity,
		Activation: activation,
		Sync:       syncer,
		Chat:       chat,
	}, g, hub, httpx.Options{
		CORSOrigins:        cfg.CORSOrigins,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		TrustProxyHeaders:  cfg.TrustProxyHeaders,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("messenger listening", "addr", srv.Addr, "env", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
