// Package app содержит жизненный цикл приложения.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"dlass/internal/api"
	"dlass/internal/config"
	"dlass/internal/health"
	ratelimit "dlass/internal/middleware"
	"dlass/internal/model"
	"dlass/internal/service"

	"go.uber.org/zap"
)

const (
	shutdownTimeout = 30 * time.Second
	cleanupInterval = 5 * time.Minute
)

// App представляет запущенное приложение
type App struct {
	config   *config.Config
	logger   *zap.Logger
	store    model.Store
	services *service.Services
	limiter  ratelimit.Limiter
	api      *api.Server
	health   *health.Server
	wg       sync.WaitGroup
}

// New создает приложение через фабрику компонентов
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	return NewComponentFactory(cfg, logger).CreateApp(ctx)
}

// Run запускает серверы и монитор и блокируется до отмены ctx
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("Starting application")

	errCh := make(chan error, 2)

	if a.health != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			if err := a.health.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("Health check server failed", zap.Error(err))
			}
		}()
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.api.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	// Очистка rate limiter до остановки приложения
	cleanupCtx, stopCleanup := context.WithCancel(ctx)
	defer stopCleanup()
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				a.limiter.Cleanup()
			case <-cleanupCtx.Done():
				return
			}
		}
	}()

	if a.config.MonitorEnabled {
		if err := a.services.Monitor.Start(); err != nil {
			a.logger.Error("Failed to start connection monitor", zap.Error(err))
		} else {
			a.logger.Info("Connection monitor started", zap.String("cron", a.config.MonitorCron))
		}
	}

	a.logger.Info("Application started successfully", zap.String("addr", a.config.HTTPAddr))

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("Application stopped by context")
	case runErr = <-errCh:
		a.logger.Error("Server stopped with error", zap.Error(runErr))
	}

	stopCleanup()
	a.stop()
	return runErr
}

// stop gracefully останавливает все компоненты
func (a *App) stop() {
	a.logger.Info("Stopping application gracefully")

	if a.config.MonitorEnabled {
		a.services.Monitor.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.api.Stop(shutdownCtx); err != nil {
		a.logger.Error("Failed to stop API server", zap.Error(err))
	}

	if a.health != nil {
		if err := a.health.Stop(); err != nil {
			a.logger.Error("Failed to stop health check server", zap.Error(err))
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		a.wg.Wait()
	}()

	select {
	case <-done:
		a.logger.Info("All goroutines stopped successfully")
	case <-shutdownCtx.Done():
		a.logger.Warn("Graceful shutdown timeout exceeded, forcing stop")
	}

	if err := a.store.Close(); err != nil {
		a.logger.Error("Failed to close store", zap.Error(err))
	}

	a.logger.Info("Application stopped successfully")
}
