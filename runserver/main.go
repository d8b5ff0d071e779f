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

	"github.com/pipetrace-labs/pipetrace-go/internal/platform/auditlog"
	"github.com/pipetrace-labs/pipetrace-go/internal/platform/auth"
	"github.com/pipetrace-labs/pipetrace-go/internal/platform/env"
	"github.com/pipetrace-labs/pipetrace-go/internal/platform/httpserver"
	"github.com/pipetrace-labs/pipetrace-go/internal/platform/metrics"
	"github.com/pipetrace-labs/pipetrace-go/internal/platform/objectstore"
	platformpg "github.com/pipetrace-labs/pipetrace-go/internal/platform/postgres"
	"github.com/pipetrace-labs/pipetrace-go/internal/repo"
	"github.com/pipetrace-labs/pipetrace-go/internal/repo/memory"
	repopg "github.com/pipetrace-labs/pipetrace-go/internal/repo/postgres"
	"github.com/pipetrace-labs/pipetrace-go/internal/repo/sqlite"
	"github.com/pipetrace-labs/pipetrace-go/internal/service/runs"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx := context.Background()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := env.String("PIPETRACE_HTTP_ADDR", ":8080")
	shutdownTimeout, err := env.Duration("PIPETRACE_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}

	store, readiness, audit, closeStore, err := openStore(ctx, logger)
	if err != nil {
		logger.Error("store unavailable", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	authenticator, err := buildAuthenticator(ctx, logger)
	if err != nil {
		logger.Error("invalid auth config", "error", err)
		os.Exit(2)
	}

	api := newRunsAPI(logger, runs.New(store))
	api.audit = audit

	minioEnabled, err := env.Bool("PIPETRACE_MINIO_ENABLED", false)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}
	if minioEnabled {
		objCfg, err := objectstore.ConfigFromEnv()
		if err != nil {
			logger.Error("invalid object store config", "error", err)
			os.Exit(2)
		}
		client, err := objectstore.NewMinIOClient(objCfg)
		if err != nil {
			logger.Error("object store unavailable", "error", err)
			os.Exit(1)
		}
		if err := objectstore.EnsureBuckets(ctx, client, objCfg); err != nil {
			logger.Error("object store buckets unavailable", "error", err)
			os.Exit(1)
		}
		api.dags = client
		api.dagBucket = objCfg.BucketDAGs
		readiness = append(readiness, httpserver.ReadinessCheck{
			Name: "objectstore",
			Check: func(ctx context.Context) error {
				checkCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
				defer cancel()
				return objectstore.CheckBuckets(checkCtx, client, objCfg)
			},
		})
	}

	m := metrics.New("runserver")

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", httpserver.Healthz("runserver"))
	mux.HandleFunc("/readyz", httpserver.ReadyzWithChecks("runserver", readiness...))
	mux.Handle("/metrics", m.Handler())
	api.register(mux)

	handler := auth.Middleware{
		Logger:        logger,
		Authenticator: authenticator,
		Authorize:     auth.MethodRoleAuthorizer(),
		Audit: func(ctx context.Context, event auth.DenyEvent) error {
			if audit == nil {
				return nil
			}
			auditCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
			defer cancel()
			return auditlog.InsertAuthDeny(auditCtx, audit, "runserver", event)
		},
		SkipPrefixes: []string{"/healthz", "/readyz", "/metrics"},
	}.Wrap(m.Middleware(mux))

	cfg := httpserver.Config{
		Service:         "runserver",
		Addr:            addr,
		ShutdownTimeout: shutdownTimeout,
	}

	if err := httpserver.Run(ctx, logger, cfg, httpserver.Wrap(logger, "runserver", handler)); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

// openStore selects the persistence engine. Postgres is the production
// engine; sqlite serves single-node deployments and memory serves tests and
// local development. The audit trail is only available on postgres.
func openStore(ctx context.Context, logger *slog.Logger) (repo.RunStore, []httpserver.ReadinessCheck, auditlog.QueryRower, func(), error) {
	engine := env.String("PIPETRACE_STORE", "postgres")
	switch engine {
	case "postgres":
		dbCfg, err := platformpg.ConfigFromEnv()
		if err != nil {
			return nil, nil, nil, nil, err
		}
		db, err := platformpg.Open(ctx, dbCfg)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		check := httpserver.ReadinessCheck{
			Name: "postgres",
			Check: func(ctx context.Context) error {
				checkCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
				defer cancel()
				return db.PingContext(checkCtx)
			},
		}
		closer := func() { _ = db.Close() }
		return repopg.NewRunStore(db), []httpserver.ReadinessCheck{check}, db, closer, nil

	case "sqlite":
		path := env.String("PIPETRACE_SQLITE_PATH", "pipetrace.db")
		store, err := sqlite.Open(ctx, path)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		check := httpserver.ReadinessCheck{
			Name: "sqlite",
			Check: func(ctx context.Context) error {
				checkCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
				defer cancel()
				return store.Ping(checkCtx)
			},
		}
		closer := func() { _ = store.Close() }
		return store, []httpserver.ReadinessCheck{check}, nil, closer, nil

	case "memory":
		logger.Warn("using in-memory store; data is lost on restart")
		return memory.NewStore(), nil, nil, func() {}, nil

	default:
		return nil, nil, nil, nil, errors.New("PIPETRACE_STORE must be one of: postgres, sqlite, memory")
	}
}

func buildAuthenticator(ctx context.Context, logger *slog.Logger) (auth.Authenticator, error) {
	cfg, err := auth.ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	switch cfg.Mode {
	case auth.ModeDev:
		logger.Warn("dev auth mode enabled; all requests share a fixed identity")
		return auth.NewDevAuthenticator(cfg), nil
	case auth.ModeHeaders:
		return auth.NewGatewayHeadersAuthenticator(cfg.HeadersSecret)
	case auth.ModeOIDC:
		return auth.NewOIDCAuthenticator(ctx, cfg)
	default:
		return nil, errors.New("unsupported auth mode")
	}
}
