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

	"callcenter-platform/internal/auth"
	"callcenter-platform/internal/calls"
	"callcenter-platform/internal/campaigns"
	"callcenter-platform/internal/config"
	"callcenter-platform/internal/numbers"
	"callcenter-platform/internal/realtime"
	"callcenter-platform/internal/reconcile"
	"callcenter-platform/internal/supervisor"
	"callcenter-platform/internal/telnyx"
	"callcenter-platform/internal/users"
	"callcenter-platform/internal/webhooklog"
	"callcenter-platform/pkg/logger"
	"callcenter-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	hub := realtime.NewHub(log)
	go hub.Run(rootCtx)

	provider := telnyx.NewRESTClient(telnyx.Config{APIKey: cfg.Telnyx.APIKey})

	callStore := calls.NewPostgresStore(db)
	deliveryStore := webhooklog.NewPostgresStore(db)

	callService := calls.NewService(callStore, provider, hub, calls.ProviderConfig{
		ConnectionID: cfg.Telnyx.ConnectionID,
		CallerID:     cfg.Telnyx.CallerID,
		StreamURL:    cfg.Telnyx.StreamURL,
	})
	userService := users.NewService(users.NewPostgresStore(db), authManager)
	supervisorService := supervisor.NewService(callStore, provider)
	campaignService := campaigns.NewService(
		campaigns.NewPostgresStore(db),
		callService,
		campaigns.NewRedisLimiter(rdb),
	)

	reconciler := reconcile.New(callStore, hub)
	// Campaign dial slots free up when the provider reports the call over.
	reconciler.SetEndHook(campaignService)

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, routeDeps{
		authMW:     auth.RequireAccessToken(authManager),
		hub:        hub,
		webhook:    reconcile.WebhookHandler{Deliveries: deliveryStore, Reconciler: reconciler, Hub: hub},
		calls:      calls.Handlers{Service: callService},
		users:      users.Handlers{Service: userService},
		supervisor: supervisor.Handlers{Service: supervisorService},
		campaigns:  campaigns.Handlers{Service: campaignService},
		numbers:    numbers.Handlers{Store: numbers.NewPostgresStore(db), Hub: hub},
		webhooklog: webhooklog.Handlers{Store: deliveryStore},
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}
