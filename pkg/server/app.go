package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"FlowPull/internal/domain/repository"
	"FlowPull/internal/handler/api"
	"FlowPull/internal/usecase"
	pkgcache "FlowPull/pkg/cache"
	pkgch "FlowPull/pkg/clickhouse"
	"FlowPull/pkg/config"
	xhttp "FlowPull/pkg/http"
	applogger "FlowPull/pkg/logger"
	"FlowPull/pkg/queue"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	logger     *applogger.Logger
	handler    *api.FlowsHandler
	collector  *usecase.QuoteCollector
	jobs       *queue.RedisQueue
	chClient   *pkgch.Client
	cache      *pkgcache.RedisCache
	publisher  repository.FlowPublisher
	httpServer *xhttp.Server
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	lgr *applogger.Logger,
	handler *api.FlowsHandler,
	collector *usecase.QuoteCollector,
	jobs *queue.RedisQueue,
	chClient *pkgch.Client,
	cache *pkgcache.RedisCache,
	publisher repository.FlowPublisher,
) *App {
	return &App{
		cfg:       cfg,
		logger:    lgr,
		handler:   handler,
		collector: collector,
		jobs:      jobs,
		chClient:  chClient,
		cache:     cache,
		publisher: publisher,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := a.logger

	a.httpServer = xhttp.NewServer(a.handler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)

	// Start the backfill job queue worker.
	if err := a.jobs.Start(); err != nil {
		l.Error("job queue start error", applogger.Error(err))
		return err
	}
	l.Info("job queue started")

	// Start the realtime quote collector when enabled.
	if a.collector != nil {
		go func() {
			if err := a.collector.Start(ctx); err != nil {
				l.Error("quote collector error", applogger.Error(err))
			}
		}()
		l.Info("quote collector started",
			applogger.Strings("instruments", a.cfg.QuoteStream.Instruments))
	}

	if err := a.httpServer.Start(); err != nil {
		l.Error("http server start error", applogger.Error(err))
		return err
	}
	l.Info("http server started", applogger.Int("port", a.cfg.Server.Port))

	// Wait for interrupt
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	l.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// shutdown gracefully stops all services.
func (a *App) shutdown(ctx context.Context) error {
	l := a.logger

	if a.collector != nil {
		if err := a.collector.Stop(); err != nil {
			l.Warn("quote collector stop error", applogger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		l.Error("http shutdown error", applogger.Error(err))
	}

	if err := a.jobs.Stop(shutdownCtx); err != nil {
		l.Warn("job queue stop error", applogger.Error(err))
	}

	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			l.Warn("publisher close error", applogger.Error(err))
		}
	}

	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			l.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			l.Warn("redis close error", applogger.Error(err))
		}
	}

	l.Info("shutdown complete")
	return nil
}
