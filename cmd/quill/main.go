// Package main is the entry point for the Quill editorial server.
// It wires all dependencies together and starts the HTTP server.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/pitabwire/quill/internal/blobstore"
	"github.com/pitabwire/quill/internal/capability"
	"github.com/pitabwire/quill/internal/config"
	"github.com/pitabwire/quill/internal/editorial"
	"github.com/pitabwire/quill/internal/observability"
	"github.com/pitabwire/quill/internal/transport"
)

// Build-time variables set via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc1234"
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}

	observability.Version = version
	observability.Commit = commit

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tracingShutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, "quill", version)
	if err != nil {
		logger.Error("tracing initialization failed", zap.Error(err))
		return 1
	}

	metrics := observability.InitMetrics(prometheus.DefaultRegisterer)

	// Editorial store.
	store, storeCloser, err := buildEditorialStore(ctx, cfg.Store, logger)
	if err != nil {
		logger.Error("editorial store initialization failed", zap.Error(err))
		return 1
	}

	// Document blobstore.
	blobs, err := buildBlobstore(ctx, cfg.Blobstore, logger)
	if err != nil {
		logger.Error("blobstore initialization failed", zap.Error(err))
		return 1
	}

	// Capability resolver.
	evaluator, err := capability.NewStaticPolicyEvaluator(cfg.Capability.PolicyFile)
	if err != nil {
		logger.Error("capability policy initialization failed", zap.Error(err))
		return 1
	}
	capResolver := capability.NewResolver(evaluator, cfg.Capability.Cache.TTL)

	engine := editorial.NewEngine(editorial.Options{
		Store:       store,
		Blobs:       blobs,
		CapResolver: capResolver,
		Dispatcher: editorial.MultiDispatcher{
			editorial.NewLogDispatcher(logger),
			editorial.NewMetricsDispatcher(metrics),
		},
		Logger:    logger,
		Metrics:   metrics,
		DOIPrefix: cfg.Publishing.DOIPrefix,
	})

	jwks := transport.NewJWKSClient(cfg.Identity.JWKSURL, cfg.Identity.JWKSCacheTTL)

	readinessChecks := observability.ReadinessChecks{
		EditorialStore: store,
		Blobstore:      blobs,
	}

	router := transport.NewRouter(transport.Dependencies{
		Config:             cfg,
		Handlers:           transport.NewHandlers(engine),
		Authenticate:       transport.JWTAuthenticator(cfg.Identity, jwks),
		CapabilityResolver: capResolver,
		Metrics:            metrics,
		ReadinessChecks:    readinessChecks,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	logger.Info("server started",
		zap.Int("port", cfg.Server.Port),
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("store_driver", cfg.Store.Driver),
		zap.String("blobstore_driver", cfg.Blobstore.Driver),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		return 1
	}

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// Stop accepting new connections and drain in-flight requests.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	if storeCloser != nil {
		storeCloser()
	}

	if err := tracingShutdown(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return 0
}

// buildEditorialStore creates the editorial store based on config.
func buildEditorialStore(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (editorial.Store, func(), error) {
	switch cfg.Driver {
	case "memory":
		logger.Info("using in-memory editorial store")
		return editorial.NewMemoryStore(), nil, nil
	case "postgres", "":
		dsn := os.Getenv(cfg.DSNEnv)
		if dsn == "" {
			return nil, nil, fmt.Errorf("editorial store: %s environment variable not set", cfg.DSNEnv)
		}

		poolCfg, err := pgxpool.ParseConfig(dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("editorial store: parse DSN: %w", err)
		}
		poolCfg.MaxConns = int32(cfg.MaxOpenConns)
		poolCfg.MinConns = int32(cfg.MaxIdleConns)
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime

		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("editorial store: connect: %w", err)
		}

		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("editorial store: ping: %w", err)
		}

		return editorial.NewPgStore(pool), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported editorial store driver: %q", cfg.Driver)
	}
}

// buildBlobstore creates the document blobstore based on config.
func buildBlobstore(ctx context.Context, cfg config.BlobstoreConfig, logger *zap.Logger) (blobstore.Store, error) {
	switch cfg.Driver {
	case "memory":
		logger.Info("using in-memory blobstore")
		return blobstore.NewMemoryStore(), nil
	case "minio", "":
		return blobstore.NewMinioStore(ctx, blobstore.MinioOptions{
			Endpoint:  cfg.Endpoint,
			AccessKey: os.Getenv(cfg.AccessKeyEnv),
			SecretKey: os.Getenv(cfg.SecretKeyEnv),
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
			UseSSL:    cfg.UseSSL,
		})
	default:
		return nil, fmt.Errorf("unsupported blobstore driver: %q", cfg.Driver)
	}
}
