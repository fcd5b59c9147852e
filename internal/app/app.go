// Package app wires every collaborator package into a running gateway
// process and owns its startup and graceful-shutdown sequencing.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/constructive-io/apigateway/internal/config"
	"github.com/constructive-io/apigateway/internal/httpserver"
	"github.com/constructive-io/apigateway/internal/platform"
	"github.com/constructive-io/apigateway/internal/telemetry"
	"github.com/constructive-io/apigateway/pkg/adminguard"
	"github.com/constructive-io/apigateway/pkg/auth"
	"github.com/constructive-io/apigateway/pkg/flush"
	"github.com/constructive-io/apigateway/pkg/handler"
	"github.com/constructive-io/apigateway/pkg/notify"
	"github.com/constructive-io/apigateway/pkg/pool"
	"github.com/constructive-io/apigateway/pkg/purge"
	"github.com/constructive-io/apigateway/pkg/tenant"
)

// Factory builds the external GraphQL engine's handler for a resolved
// tenant. The engine itself lives outside this module; Run is
// parameterized over it so main can supply the real implementation.
type Factory = handler.Factory

// Options configures a Run invocation beyond what Config carries:
// the GraphQL engine factory and whether to bootstrap the metadata
// catalog schema before serving traffic.
type Options struct {
	Factory         Factory
	MigrateMetadata bool
}

// Run builds every collaborator, starts the HTTP server and the
// notify listener, and blocks until ctx is cancelled, then shuts down
// gracefully.
func Run(ctx context.Context, cfg *config.Config, opts Options) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	metricsReg := telemetry.NewMetricsRegistry(telemetry.All()...)

	metadataPool, err := platform.NewMetadataPool(ctx, cfg.MetadataDSN())
	if err != nil {
		return fmt.Errorf("connecting metadata pool: %w", err)
	}
	defer metadataPool.Close()

	if opts.MigrateMetadata {
		if err := platform.RunMetadataMigrations(cfg.MetadataDSN(), cfg.MigrationsMetadataDir); err != nil {
			return fmt.Errorf("running metadata migrations: %w", err)
		}
	}

	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting redis: %w", err)
	}
	defer rdb.Close()

	pools := pool.New(func(dbname string) string {
		return tenantDSN(cfg, dbname)
	})
	defer pools.CloseAll()

	store := tenant.NewPGStore(metadataPool)
	serviceCache := tenant.NewServiceCache(cfg.ServiceCacheSize, time.Duration(cfg.ServiceCacheTTLS)*time.Second)
	resolver := tenant.NewResolver(store, serviceCache, cfg.MetaSchemas, cfg.IsPublic)

	builder := handler.NewBuilder(opts.Factory, pools, func(dbname string) string {
		return tenantDSN(cfg, dbname)
	}, cfg.HandlerCacheSize, time.Duration(cfg.HandlerCacheTTLS)*time.Second)

	authenticator := auth.New(cfg.StrictAuth, auth.DefaultCookieName)

	guard, err := adminguard.New(cfg.AdminAPIKey, cfg.AdminAllowedIPs, cfg.TrustProxy)
	if err != nil {
		return fmt.Errorf("building admin guard: %w", err)
	}

	purgeSvc := purge.New(serviceCache, builder)

	var flushHandler *flush.Handler
	if cfg.FlushSecret != "" {
		limiter := flush.NewRateLimiter(rdb, cfg.FlushRateLimit, time.Duration(cfg.FlushRateWindowS)*time.Second)
		flushHandler = flush.New(cfg.FlushSecret, limiter, serviceCache, purgeSvc, cfg.IsPublic)
	} else {
		logger.Warn("FLUSH_SECRET not set, POST /flush is disabled")
	}

	var alerter *notify.SlackAlerter
	if cfg.SlackBotToken != "" {
		alerter = notify.NewSlackAlerter(cfg.SlackBotToken, cfg.SlackOpsChannel, logger)
	}
	listener := notify.New(notify.Dial(cfg.MetadataDSN()), purgeSvc, alerter, logger)

	listenerCtx, stopListener := context.WithCancel(ctx)
	defer stopListener()
	go listener.Run(listenerCtx)

	srv := httpserver.New(cfg, logger, metricsReg, httpserver.Deps{
		Resolver:      resolver,
		Builder:       builder,
		Authenticator: authenticator,
		Guard:         guard,
		Pools:         pools,
		Cache:         serviceCache,
		Flush:         flushHandler,
	})

	httpSrv := &http.Server{
		Addr:    cfg.ListenAddr(),
		Handler: srv,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown", "error", err)
	}
	return nil
}

// tenantDSN builds the libpq connection string for a tenant database
// on the same cluster the metadata database lives on.
func tenantDSN(cfg *config.Config, dbname string) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.PGUser, cfg.PGPassword, cfg.PGHost, cfg.PGPort, dbname, cfg.PGSSLMode)
}
