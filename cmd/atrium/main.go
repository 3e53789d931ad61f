// Command atrium runs the organization-management API server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/atrium-works/atrium/pkg/access"
	"github.com/atrium-works/atrium/pkg/api"
	"github.com/atrium-works/atrium/pkg/authn"
	"github.com/atrium-works/atrium/pkg/config"
	"github.com/atrium-works/atrium/pkg/groups"
	"github.com/atrium-works/atrium/pkg/observability"
	"github.com/atrium-works/atrium/pkg/permissions"
	"github.com/atrium-works/atrium/pkg/roles"
	"github.com/atrium-works/atrium/pkg/store"
	"github.com/atrium-works/atrium/pkg/tenants"
	"github.com/atrium-works/atrium/pkg/teams"
	"github.com/atrium-works/atrium/pkg/users"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		observability.NewLogger("info", os.Stderr).Fatalf("failed to load configuration: %v", err)
	}

	log := observability.NewLogger(cfg.LogLevel, os.Stdout)

	db, err := store.Open(store.Config{
		URL:         cfg.Database.URL,
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		Timeout:     cfg.Database.Timeout,
		MaxLifetime: store.DefaultConfig().MaxLifetime,
		MaxIdleTime: store.DefaultConfig().MaxIdleTime,
	})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := store.RunMigrations(context.Background(), db); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}
	log.Info("database migrations applied")

	// The permission cache is optional: without Redis the resolver reads
	// straight from the database.
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
		log.WithField("addr", cfg.Redis.Addr).Info("permission cache enabled")
	}

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	resolver := access.NewResolver(access.NewStore(db), redisClient, cfg.Redis.CacheTTL, metrics, log)

	authSvc := authn.NewService(authn.NewStore(db), log, authn.Options{
		ClientBaseURL: cfg.Auth.ClientBaseURL,
		MagicLinkTTL:  cfg.Auth.MagicLinkTTL,
		SessionTTL:    cfg.Auth.SessionTTL,
		Metrics:       metrics,
	})
	teamSvc := teams.NewService(teams.NewStore(db), log)

	services := api.Services{
		Auth:         authSvc,
		Users:        users.NewService(users.NewStore(db), resolver, log),
		Tenants:      tenants.NewService(tenants.NewStore(db), log),
		Teams:        teamSvc,
		Groups:       groups.NewService(groups.NewStore(db), teamSvc.Directory(), resolver, log),
		Roles:        roles.NewService(roles.NewStore(db), teamSvc.Directory(), resolver, log),
		Permissions:  permissions.NewService(permissions.NewStore(db), log),
		CookieSecure: cfg.Auth.CookieSecure,
	}
	server := api.NewServer(services, log, metrics)

	httpServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Health and metrics live on their own port so probes skip the API
	// middleware chain.
	health := observability.NewHealthChecker(db, redisClient)
	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/healthz", health.Liveness)
	healthMux.HandleFunc("/readyz", health.Readiness)
	healthMux.Handle("/metrics", metrics.Handler())
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}

	errCh := make(chan error, 2)
	go func() {
		log.WithField("addr", httpServer.Addr).Info("api server listening")
		errCh <- httpServer.ListenAndServe()
	}()
	go func() {
		log.WithField("addr", healthServer.Addr).Info("health server listening")
		errCh <- healthServer.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	case sig := <-stop:
		log.WithField("signal", sig.String()).Info("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.WithError(err).Error("api server shutdown failed")
	}
	if err := healthServer.Shutdown(ctx); err != nil {
		log.WithError(err).Error("health server shutdown failed")
	}
	log.Info("shutdown complete")
}
