package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/okian/voeux/internal/adapters/http/api"
	"github.com/okian/voeux/internal/adapters/http/site"
	"github.com/okian/voeux/internal/adapters/http/swagger"
	"github.com/okian/voeux/internal/adapters/lock"
	"github.com/okian/voeux/internal/adapters/repository"
	"github.com/okian/voeux/internal/adapters/repository/memory"
	"github.com/okian/voeux/internal/adapters/repository/postgres"
	app "github.com/okian/voeux/internal/app"
	"github.com/okian/voeux/internal/config"
	"github.com/okian/voeux/internal/domain/inflight"
	"github.com/okian/voeux/internal/domain/model"
	"github.com/okian/voeux/pkg/logger"
	"github.com/okian/voeux/pkg/metrics"
)

// HTTP server timeout constants. Writes allow for a run to finish.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 2 * time.Minute
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	// Only the custom registry is exposed.
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		// Logger format depends on config, so this goes to stderr.
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.InitWithWriter(os.Stdout, cfg.LogFormat); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	if err := run(ctx, cfg, log); err != nil {
		log.Error(ctx, "server exited", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	b, err := openBackends(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.close()

	svc := app.New(
		app.WithLogger(log.Named("service")),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithQueueSize(cfg.QueueSize),
		app.WithLevels(levels(cfg.Levels)...),
		app.WithScoreRankBlend(cfg.ScoreRankBlend),
		app.WithSource(b.source),
		app.WithStore(b.store),
		app.WithGuard(b.guard),
	)
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}

	go startSystemMetricsUpdater(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newMux(ctx, svc),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			_ = svc.Stop(context.Background())
			return fmt.Errorf("http server: %w", err)
		}
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	if err := svc.Stop(shutdownCtx); err != nil {
		log.Error(ctx, "service shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
	return nil
}

// newMux registers every route of the process.
func newMux(ctx context.Context, svc *app.Service) *http.ServeMux {
	mux := http.NewServeMux()
	site.Register(ctx, mux)
	swagger.Register(ctx, mux)
	api.NewServer(svc, svc).Register(ctx, mux)
	return mux
}

// backends holds the configured stores and their cleanup.
type backends struct {
	source  repository.Source
	store   repository.ResultStore
	guard   inflight.Guard
	closers []func()
}

func (b *backends) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func openBackends(ctx context.Context, cfg *config.Config, log logger.Logger) (*backends, error) {
	b := &backends{}

	switch cfg.StoreBackend {
	case config.BackendPostgres:
		conn, err := postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, conn.Close)
		if err := postgres.Migrate(ctx, conn); err != nil {
			b.close()
			return nil, err
		}
		b.source = postgres.NewSource(conn, postgres.WithDefaultMaxChoice(cfg.DefaultMaxChoice))
		b.store = postgres.NewResultStore(conn)
		log.Info(ctx, "using postgres store")
	default:
		catalog, err := openCatalog(cfg)
		if err != nil {
			return nil, err
		}
		b.source = catalog
		b.store = memory.NewResultStore()
		log.Info(ctx, "using memory store", logger.String("catalog", cfg.CatalogFile))
	}

	switch cfg.LockBackend {
	case config.BackendRedis:
		client, err := lock.Dial(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			b.close()
			return nil, err
		}
		b.closers = append(b.closers, func() { _ = client.Close() })
		b.guard = lock.NewRedisGuard(client,
			lock.WithTTL(time.Duration(cfg.LockTTLSeconds)*time.Second),
			lock.WithLogger(log.Named("lock")),
		)
		log.Info(ctx, "using redis run lock", logger.String("addr", cfg.RedisAddr))
	default:
		b.guard = inflight.NewMemoryGuard()
	}
	return b, nil
}

func openCatalog(cfg *config.Config) (*memory.Catalog, error) {
	opts := []memory.Option{memory.WithDefaultMaxChoice(cfg.DefaultMaxChoice)}
	if cfg.CatalogFile == "" {
		return memory.NewCatalog(memory.CatalogFile{}, opts...)
	}
	return memory.LoadCatalogFile(cfg.CatalogFile, opts...)
}

func levels(names []string) []model.Level {
	out := make([]model.Level, 0, len(names))
	for _, n := range names {
		out = append(out, model.Level(n))
	}
	return out
}

// startSystemMetricsUpdater updates system metrics until ctx ends.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}
