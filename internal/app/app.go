package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go-file-tree/internal/config"
	"go-file-tree/internal/database"
	"go-file-tree/internal/event"
	"go-file-tree/internal/handler"
	"go-file-tree/internal/metrics"
	"go-file-tree/internal/middleware"
	"go-file-tree/internal/repository"
	"go-file-tree/internal/router"
	"go-file-tree/internal/service"
	"go-file-tree/internal/storage"
)

type App struct {
	server       *http.Server
	cancel       context.CancelFunc
	workers      sync.WaitGroup
	cleanupFuncs []func()
}

// backends are the persistence choices made from config. With DATABASE_URL
// principals, audit entries and job history live in PostgreSQL; otherwise
// they come from PRINCIPALS_FILE and AUDIT_LOG_FILE and jobs stay in memory.
// Trash records follow TRASH_STORE.
type backends struct {
	principals service.PrincipalStore
	audit      service.AuditSink
	trash      service.TrashRecordStore
	jobs       service.JobStore
	health     map[string]handler.Pinger
	cleanup    []func()
}

func New(cfg *config.Config) (*App, error) {
	store, err := storage.New(cfg.StorageRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	var recorder *metrics.Recorder
	if cfg.MetricsEnabled {
		recorder = metrics.New()
	}

	engine, err := storage.NewEngine(store, cfg.ChecksumAlgorithm, recorder)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize transfer engine: %w", err)
	}

	b, err := openBackends(cfg)
	if err != nil {
		return nil, err
	}
	runCleanup := func() {
		for i := len(b.cleanup) - 1; i >= 0; i-- {
			b.cleanup[i]()
		}
	}

	authService, err := service.NewAuthService(b.principals, cfg.JWTSecret, cfg.JWTAccessTTL)
	if err != nil {
		runCleanup()
		return nil, fmt.Errorf("failed to initialize auth service: %w", err)
	}

	auditService := service.NewAuditService(b.audit)
	trashService := service.NewTrashService(store, engine, b.trash, auditService, recorder, cfg.TrashRetention)
	fileTree := service.NewFileTreeService(store, engine, trashService, auditService)

	bus := event.NewBus()
	jobService := service.NewJobService(fileTree, bus, b.jobs, recorder, cfg.JobQueueSize)

	appRouter := router.New(cfg, middleware.NewAuthMiddleware(authService), recorder, router.Handlers{
		Directory: handler.NewDirectoryHandler(fileTree),
		File:      handler.NewFileHandler(fileTree, cfg.MaxUploadSize),
		Search:    handler.NewSearchHandler(fileTree),
		Trash:     handler.NewTrashHandler(fileTree),
		Usage:     handler.NewUsageHandler(fileTree),
		Jobs:      handler.NewJobsHandler(jobService, bus),
		Health:    handler.NewHealthHandler(b.health),
	})

	a := &App{cleanupFuncs: []func(){runCleanup}}

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.workers.Go(func() { trashService.StartPurgeTicker(ctx, cfg.TrashPurgeInterval) })
	a.workers.Go(func() { jobService.Run(ctx) })

	a.server = &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           appRouter,
		ReadHeaderTimeout: cfg.ServerReadHeaderTimeout,
		WriteTimeout:      cfg.ServerWriteTimeout,
		IdleTimeout:       cfg.ServerIdleTimeout,
	}

	slog.Info("application initialized",
		"storage_root", store.RootAbs(),
		"trash_store", cfg.TrashStore,
		"database", cfg.DatabaseURL != "",
		"checksum", engine.Algorithm(),
		"metrics", cfg.MetricsEnabled,
	)

	return a, nil
}

func openBackends(cfg *config.Config) (*backends, error) {
	b := &backends{health: map[string]handler.Pinger{}}
	fail := func(err error) (*backends, error) {
		for i := len(b.cleanup) - 1; i >= 0; i-- {
			b.cleanup[i]()
		}
		return nil, err
	}

	var db *database.DB
	if cfg.DatabaseURL != "" {
		slog.Info("connecting to PostgreSQL")
		var err error
		db, err = database.New(context.Background(), cfg.DatabaseURL, database.Options{
			MaxConns:       cfg.DBMaxConns,
			MinConns:       cfg.DBMinConns,
			ConnectTimeout: cfg.DBConnectTimeout,
		})
		if err != nil {
			return fail(fmt.Errorf("failed to connect to database: %w", err))
		}
		b.cleanup = append(b.cleanup, db.Close)

		if err := db.EnsureSchema(context.Background()); err != nil {
			return fail(fmt.Errorf("failed to ensure database schema: %w", err))
		}

		b.principals = repository.NewPrincipalRepository(db.Pool)
		b.audit = repository.NewAuditRepository(db.Pool)
		b.jobs = repository.NewJobRepository(db.Pool)
		b.health["database"] = db
		slog.Info("database ready")
	} else {
		principals, err := repository.LoadFilePrincipalStore(cfg.PrincipalsFile)
		if err != nil {
			return fail(fmt.Errorf("failed to load principals: %w", err))
		}
		b.principals = principals

		sink, err := repository.OpenFileAuditSink(cfg.AuditLogFile)
		if err != nil {
			return fail(fmt.Errorf("failed to open audit log: %w", err))
		}
		b.audit = sink
		b.cleanup = append(b.cleanup, func() {
			if err := sink.Close(); err != nil {
				slog.Warn("failed to close audit log", "error", err)
			}
		})
	}

	if cfg.TrashStore == config.TrashStorePostgres {
		b.trash = repository.NewTrashRepository(db.Pool)
		return b, nil
	}

	if err := os.MkdirAll(cfg.TrashDBPath, 0o755); err != nil {
		return fail(fmt.Errorf("failed to create trash store directory: %w", err))
	}
	trashStore, err := repository.OpenBadgerTrashStore(cfg.TrashDBPath)
	if err != nil {
		return fail(fmt.Errorf("failed to open trash store: %w", err))
	}
	b.trash = trashStore
	b.health["trash_store"] = trashStore
	b.cleanup = append(b.cleanup, func() {
		if err := trashStore.Close(); err != nil {
			slog.Warn("failed to close trash store", "error", err)
		}
	})

	return b, nil
}

func (a *App) Run() error {
	go func() {
		slog.Info("server starting", "addr", a.server.Addr)
		if serveErr := a.server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Error("server failed", "error", serveErr)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.shutdown(ctx); err != nil {
		return err
	}

	slog.Info("server stopped")
	return nil
}

// shutdown drains the HTTP server, stops the background workers and waits
// for them to return before the stores they use are closed.
func (a *App) shutdown(ctx context.Context) error {
	shutdownErr := a.server.Shutdown(ctx)

	a.cancel()
	a.workers.Wait()
	for _, cleanup := range a.cleanupFuncs {
		cleanup()
	}

	if shutdownErr != nil {
		return fmt.Errorf("graceful shutdown failed: %w", shutdownErr)
	}
	return nil
}
