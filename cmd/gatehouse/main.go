package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"

	"github.com/campusiq/gatehouse/pkg/api"
	"github.com/campusiq/gatehouse/pkg/audit"
	"github.com/campusiq/gatehouse/pkg/capability"
	"github.com/campusiq/gatehouse/pkg/config"
	"github.com/campusiq/gatehouse/pkg/governance"
	"github.com/campusiq/gatehouse/pkg/identity"
	"github.com/campusiq/gatehouse/pkg/middleware"
	"github.com/campusiq/gatehouse/pkg/observability"
	"github.com/campusiq/gatehouse/pkg/panel"
	"github.com/campusiq/gatehouse/pkg/rbac"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		observability.NewLogger(observability.ErrorLevel, os.Stderr).WithError(err).Error("failed to load configuration")
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	metrics := observability.NewMetrics()

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		logger.WithError(err).Error("failed to open database")
		os.Exit(1)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := migrate(ctx, db); err != nil {
		logger.WithError(err).Error("failed to apply schema")
		os.Exit(1)
	}

	// Optional Redis: enables the distributed rate limiter and cross-replica
	// cache invalidation fanout.
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.WithError(err).Warn("redis unreachable, continuing without it")
			redisClient = nil
		}
	}

	rbacStore := rbac.NewStore(db)
	var cache rbac.Cache = rbac.NewMemoryCache(cfg.Auth.PermissionCacheSize, cfg.Auth.PermissionCacheTTL)
	if redisClient != nil {
		cache = rbac.NewFanoutCache(ctx, cache, redisClient, logger)
	}
	rbacResolver := rbac.NewResolver(rbacStore, cache, metrics, logger)
	rbacService := rbac.NewService(rbacStore, cache, logger)

	registry := capability.NewRegistry(capability.NewStore(db), metrics, logger)
	if err := registry.RegisterDefaults(ctx); err != nil {
		logger.WithError(err).Error("failed to register default capabilities")
		os.Exit(1)
	}

	panelStore := panel.NewStore(db)
	panelService := panel.NewService(panelStore, registry, rbacResolver, logger)

	identityStore := identity.NewStore(db)
	tokens := identity.NewTokenManager(db)
	issuer := identity.NewImpersonationIssuer(cfg.Auth.ImpersonationSecret, cfg.Auth.ImpersonationTTL)
	identityResolver := identity.NewResolver(identityStore, tokens, issuer)

	if err := ensureSuperAdminRole(ctx, rbacStore); err != nil {
		logger.WithError(err).Error("failed to ensure super admin role")
		os.Exit(1)
	}

	dbAudit, err := audit.NewDBLogger(db)
	if err != nil {
		logger.WithError(err).Error("failed to initialize audit writer")
		os.Exit(1)
	}
	auditLogger := audit.Logger(dbAudit)
	if cfg.Audit.FilePath != "" {
		fileAudit, err := audit.NewFileLogger(cfg.Audit.FilePath)
		if err != nil {
			logger.WithError(err).Error("failed to open audit file")
			os.Exit(1)
		}
		auditLogger = audit.NewMultiLogger(dbAudit, fileAudit)
	}
	defer auditLogger.Close()

	sweeper := audit.NewSweeper(dbAudit, cfg.Audit.RetentionDays, logger)
	if err := sweeper.Start(); err != nil {
		logger.WithError(err).Error("failed to start audit retention sweeper")
		os.Exit(1)
	}
	defer sweeper.Stop()

	engine := governance.NewEngine(governance.EngineDeps{
		Panels:     panelService,
		PanelStore: panelStore,
		Roles:      rbacService,
		RoleStore:  rbacStore,
		Resolver:   rbacResolver,
		Registry:   registry,
		Identities: identityStore,
		Issuer:     issuer,
		Settings:   governance.NewSettingsStore(db),
		Cache:      cache,
		Metrics:    metrics,
		Logger:     logger,
	})

	var rateLimit func(http.Handler) http.Handler
	if redisClient != nil {
		limiter := middleware.NewDistributedRateLimiter(redisClient, nil, "")
		rateLimit = middleware.DistributedRateLimit(limiter, metrics)
	} else {
		rateLimit = middleware.RateLimit(middleware.NewRateLimiter(nil), metrics)
	}

	var servedMetrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		servedMetrics = metrics
	}

	server := api.NewServer(api.Deps{
		DB:               db,
		Logger:           logger,
		Metrics:          servedMetrics,
		IdentityStore:    identityStore,
		Tokens:           tokens,
		IdentityResolver: identityResolver,
		Roles:            rbacService,
		RoleResolver:     rbacResolver,
		Registry:         registry,
		Panels:           panelService,
		Engine:           engine,
		AuditDB:          dbAudit,
		AuditLogger:      auditLogger,
		RateLimit:        rateLimit,
	})

	httpServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.WithField("addr", httpServer.Addr).Info("starting gatehouse control plane")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("graceful shutdown failed")
	}
}

func migrate(ctx context.Context, db *sql.DB) error {
	for _, schema := range []string{
		identity.Schema,
		rbac.Schema,
		capability.Schema,
		panel.Schema,
		audit.Schema,
		governance.Schema,
	} {
		if _, err := db.ExecContext(ctx, schema); err != nil {
			return err
		}
	}
	return nil
}

// ensureSuperAdminRole seeds the system role the governance surface depends
// on. Idempotent across restarts.
func ensureSuperAdminRole(ctx context.Context, store *rbac.Store) error {
	if _, err := store.GetRoleByKey(ctx, rbac.RoleKeySuperAdmin); err == nil {
		return nil
	}
	role := &rbac.Role{
		Key:         rbac.RoleKeySuperAdmin,
		DisplayName: "Super Admin",
		Description: "Unrestricted platform access",
		IsSystem:    true,
		IsActive:    true,
	}
	if err := store.CreateRole(ctx, role); err != nil {
		return err
	}
	return store.ReplaceGrants(ctx, role.ID, []rbac.PermissionGrant{
		{RoleID: role.ID, PermissionKey: rbac.PermissionAll, Granted: true},
	})
}
