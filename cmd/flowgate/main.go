package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/floworks/flowgate/pkg/audit"
	"github.com/floworks/flowgate/pkg/config"
	"github.com/floworks/flowgate/pkg/middleware"
	"github.com/floworks/flowgate/pkg/observability"
	"github.com/floworks/flowgate/pkg/rbac"
	"github.com/floworks/flowgate/pkg/storage/postgres"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		observability.NewLogger(observability.ErrorLevel, os.Stderr).
			WithError(err).Error("failed to load configuration")
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.Info("starting flowgate authorization service")

	ctx := context.Background()

	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		logger.WithError(err).Error("failed to initialize tracing")
		os.Exit(1)
	}

	connections, err := postgres.NewConnectionManager(postgres.ConnectionConfig{
		PrimaryURL:  cfg.Database.URL,
		ReplicaURLs: postgres.ParseReplicaURLs(cfg.Database.ReplicaURLs),
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		Timeout:     cfg.Database.Timeout,
		MaxLifetime: time.Hour,
		MaxIdleTime: 10 * time.Minute,
	}, logger)
	if err != nil {
		logger.WithError(err).Error("failed to connect to database")
		os.Exit(1)
	}
	db := connections.Primary()

	if err := rbac.RunMigrations(ctx, db); err != nil {
		logger.WithError(err).Error("failed to run migrations")
		os.Exit(1)
	}
	store := rbac.NewSQLStore(db)
	if err := rbac.SeedDefaults(ctx, store); err != nil {
		logger.WithError(err).Error("failed to seed system roles")
		os.Exit(1)
	}

	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		redisClient, err = postgres.NewRedisClient(postgres.RedisOptions{
			URL:      cfg.Redis.URL,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err != nil {
			logger.WithError(err).Error("failed to connect to redis")
			os.Exit(1)
		}
	}

	registry := prometheus.NewRegistry()
	serviceMetrics := observability.NewMetrics(registry)
	engineMetrics := rbac.NewMetrics(registry)

	var decisionCache rbac.Cache
	if cfg.Cache.Enabled {
		switch cfg.Cache.Backend {
		case "redis":
			decisionCache = rbac.NewRedisCache(redisClient, cfg.Cache.TTL)
		default:
			decisionCache = rbac.NewLRUCache(cfg.Cache.Size, cfg.Cache.TTL)
		}
	}

	auditSink := audit.Logger(audit.NopLogger{})
	var sweeper *audit.RetentionSweeper
	if cfg.Audit.Enabled {
		dbLogger, err := audit.NewDBLogger(db)
		if err != nil {
			logger.WithError(err).Error("failed to initialize audit sink")
			os.Exit(1)
		}
		auditSink = dbLogger

		sweeper = audit.NewRetentionSweeper(dbLogger, cfg.Audit.Retention, cfg.Audit.SweepSchedule, logger)
		if err := sweeper.Start(); err != nil {
			logger.WithError(err).Error("failed to start audit retention sweeper")
			os.Exit(1)
		}
	}

	users := rbac.NewSQLUserDirectory(db)
	catalog := rbac.NewSQLResourceCatalog(db)

	checkerOpts := []rbac.CheckerOption{rbac.WithMetrics(engineMetrics)}
	if decisionCache != nil {
		checkerOpts = append(checkerOpts, rbac.WithCache(decisionCache))
	}
	checker := rbac.NewChecker(store, users, catalog, checkerOpts...)

	managerOpts := []rbac.ManagerOption{
		rbac.WithAuditLogger(auditSink),
		rbac.WithManagerMetrics(engineMetrics),
	}
	if decisionCache != nil {
		managerOpts = append(managerOpts, rbac.WithManagerCache(decisionCache))
	}
	manager := rbac.NewManager(store, users, catalog, managerOpts...)

	router := mux.NewRouter()
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.RequestIDMiddleware)
	if cfg.Observability.MetricsEnabled {
		router.Use(observability.HTTPMetricsMiddleware(serviceMetrics))
	}
	router.Use(middleware.IdentityMiddleware)

	handler := rbac.NewHandler(checker, manager, store, logger)
	handler.RegisterRoutes(router)

	var apiHandler http.Handler = router
	if cfg.Observability.OTelEnabled {
		apiHandler = otelhttp.NewHandler(router, "flowgate")
	}

	apiServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      apiHandler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	opsMux := http.NewServeMux()
	observability.RegisterHealthRoutes(opsMux, observability.NewHealthChecker(db, redisClient))
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(opsMux, registry)
	}
	opsServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.OpsPort,
		Handler: opsMux,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Infof("API server listening on %s", apiServer.Addr)
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		logger.Infof("ops server listening on %s", opsServer.Addr)
		if err := opsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				serviceMetrics.ObserveDBPool(db)
			case <-groupCtx.Done():
				return nil
			}
		}
	})

	shutdown := observability.NewShutdownManager(logger, apiServer, cfg.Server.ShutdownTimeout)
	shutdown.Register(func(shutdownCtx context.Context) error {
		return opsServer.Shutdown(shutdownCtx)
	})
	if sweeper != nil {
		shutdown.Register(func(context.Context) error {
			sweeper.Stop()
			return nil
		})
	}
	shutdown.Register(func(shutdownCtx context.Context) error {
		return auditSink.Close()
	})
	if redisClient != nil {
		shutdown.Register(func(context.Context) error {
			return redisClient.Close()
		})
	}
	shutdown.Register(func(shutdownCtx context.Context) error {
		return observability.ShutdownOTel(shutdownCtx, otelProviders, logger)
	})
	shutdown.Register(func(context.Context) error {
		return connections.Close()
	})

	group.Go(shutdown.WaitForShutdown)

	if err := group.Wait(); err != nil {
		logger.WithError(err).Error("service exited with error")
		os.Exit(1)
	}
	logger.Info("service stopped")
}
