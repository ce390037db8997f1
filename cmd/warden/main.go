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

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/warden-rbac/warden/internal/app"
	"github.com/warden-rbac/warden/internal/observability"
	"github.com/warden-rbac/warden/internal/platform/cache"
	"github.com/warden-rbac/warden/internal/platform/db"
	"github.com/warden-rbac/warden/internal/rbac"
	"github.com/warden-rbac/warden/internal/roles"
	"github.com/warden-rbac/warden/internal/users"
	"github.com/warden-rbac/warden/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	registry, err := rbac.BuildRegistry(rbac.DefaultCatalog())
	if err != nil {
		logger.Error("build permission catalog", slog.Any("error", err))
		os.Exit(1)
	}

	store := rbac.NewStore()
	repo := rbac.NewRepository(pool)
	snap, err := repo.Load(ctx)
	if err != nil {
		logger.Error("load snapshot", slog.Any("error", err))
		os.Exit(1)
	}
	if len(snap.Roles) > 0 {
		if err := store.Restore(snap); err != nil {
			logger.Error("restore snapshot", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("snapshot restored", slog.Int("roles", len(snap.Roles)), slog.Int("bindings", len(snap.Bindings)))
	}
	if err := rbac.Seed(store, registry); err != nil {
		logger.Error("seed roles", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()

	// The decision cache is an optimization. Without Redis the engine reads
	// the store directly and stays correct.
	var resolver rbac.Resolver = store
	var invalidator rbac.Invalidator
	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, decision cache disabled", slog.Any("error", err))
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
		permCache := rbac.NewPermissionCache(redisClient, store, cfg.CacheTTL, logger)
		resolver = permCache
		invalidator = permCache
	}

	engine := rbac.NewEngine(resolver, metrics.RecordDecision)
	directory := users.NewDirectory()
	service := rbac.NewService(store, registry, directory, invalidator, logger)
	guard := rbac.Middleware{Engine: engine, Logger: logger}

	rolesHandler := roles.NewHandler(logger, service, guard)
	usersHandler := users.NewHandler(logger, directory, service, guard)
	authzHandler := rbac.NewAuthzHandler(logger, engine)
	permissionsHandler := rbac.NewPermissionsHandler(logger, service, guard)

	var jobHandler *jobs.Handler
	var snapshotWorker *jobs.Worker
	if redisClient != nil {
		inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		defer func() {
			if err := inspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		}()
		jobHandler = jobs.NewHandler(inspector, jobs.QueueSnapshots, logger)

		snapshotTask, err := jobs.NewSnapshotPersistTask("scheduled")
		if err != nil {
			logger.Error("build snapshot task", slog.Any("error", err))
			os.Exit(1)
		}
		snapshotJob := jobs.NewSnapshotJob(service, repo, logger)
		snapshotWorker, err = jobs.NewWorker(jobs.WorkerConfig{
			RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
			Logger:    logger,
			Queues:    map[string]int{jobs.QueueSnapshots: 1},
			Handlers: []jobs.TaskHandler{
				{Type: jobs.TaskSnapshotPersist, Handler: snapshotJob.Handle},
			},
			Cron: []jobs.CronRegistration{
				{Spec: cfg.SnapshotCron, Task: snapshotTask, Options: []asynq.Option{asynq.Queue(jobs.QueueSnapshots), asynq.MaxRetry(3)}},
			},
		})
		if err != nil {
			logger.Error("init snapshot worker", slog.Any("error", err))
			os.Exit(1)
		}
	}

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		RolesHandler:       rolesHandler,
		UsersHandler:       usersHandler,
		AuthzHandler:       authzHandler,
		PermissionsHandler: permissionsHandler,
		JobHandler:         jobHandler,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if snapshotWorker != nil {
		g.Go(func() error {
			if err := snapshotWorker.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("run", slog.Any("error", err))
	}

	// Final snapshot so a clean shutdown never loses administrative state.
	saveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := repo.Save(saveCtx, store.Snapshot()); err != nil {
		logger.Error("final snapshot", slog.Any("error", err))
	}
}
