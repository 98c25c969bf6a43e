// Package app содержит фабрику компонентов приложения.
package app

import (
	"context"
	"fmt"

	"dlass/internal/api"
	"dlass/internal/config"
	"dlass/internal/external/kv"
	"dlass/internal/health"
	"dlass/internal/metrics"
	ratelimit "dlass/internal/middleware"
	"dlass/internal/model"
	"dlass/internal/notify"
	"dlass/internal/service"
	"dlass/internal/storage"
	"dlass/internal/storage/memory"

	"go.uber.org/zap"
)

// eventBuffer размер буфера канала подписчика событий
const eventBuffer = 32

// ComponentFactory создает компоненты приложения
type ComponentFactory struct {
	config *config.Config
	logger *zap.Logger
}

// NewComponentFactory создает новую фабрику компонентов
func NewComponentFactory(config *config.Config, logger *zap.Logger) *ComponentFactory {
	if logger == nil {
		panic("Logger cannot be nil")
	}
	if config == nil {
		logger.Fatal("Config cannot be nil")
	}

	return &ComponentFactory{
		config: config,
		logger: logger,
	}
}

// CreateStore создает локальное хранилище по STORAGE_DRIVER
func (f *ComponentFactory) CreateStore(ctx context.Context) (model.Store, error) {
	switch f.config.StorageDriver {
	case config.StorageDriverMemory:
		f.logger.Warn("Using in-memory storage, data will not survive restart")
		return memory.New(), nil
	case config.StorageDriverPostgres:
		db, err := storage.NewPostgres(f.config.DatabaseURL, f.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create database connection: %w", err)
		}
		if err := db.InitSchema(ctx); err != nil {
			if closeErr := db.Close(); closeErr != nil {
				f.logger.Warn("Failed to close database connection", zap.Error(closeErr))
			}
			return nil, fmt.Errorf("failed to init schema: %w", err)
		}
		f.logger.Info("Database connection created successfully")
		return db, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", f.config.StorageDriver)
	}
}

// CreateKVClient создает клиент удаленного хранилища
func (f *ComponentFactory) CreateKVClient() *kv.Client {
	kvCfg := f.config.KV
	client := kv.NewClient(kv.Config{
		BaseURL:             kvCfg.BaseURL,
		AppID:               kvCfg.AppID,
		KeyPrefix:           kvCfg.KeyPrefix,
		Timeout:             kvCfg.Timeout,
		MaxIdleConns:        kvCfg.HTTPClient.MaxIdleConns,
		MaxIdleConnsPerHost: kvCfg.HTTPClient.MaxIdleConnsPerHost,
		IdleConnTimeout:     kvCfg.HTTPClient.IdleConnTimeout,
		TLSHandshakeTimeout: kvCfg.HTTPClient.TLSHandshakeTimeout,
	}, f.logger)

	f.logger.Info("KV client created successfully", zap.String("base_url", kvCfg.BaseURL))
	return client
}

// CreateServices создает все сервисы
func (f *ComponentFactory) CreateServices(store model.Store, remote service.RemoteStore, events notify.Publisher, m *metrics.Metrics) (*service.Services, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}

	services := service.NewServices(service.Dependencies{
		Store:    store,
		Remote:   remote,
		Events:   events,
		Metrics:  m,
		Location: f.config.Location(),
		Logger:   f.logger,

		RemoteTimeout: f.config.KV.Timeout,
	}, f.config.MonitorCron)

	f.logger.Info("Services created successfully")
	return services, nil
}

// CreateHealthServer создает сервер health check
func (f *ComponentFactory) CreateHealthServer(store model.Store) (*health.Server, error) {
	if !f.config.HealthCheckEnabled {
		f.logger.Info("Health check server is disabled")
		return nil, nil
	}

	if f.config.HealthPort == "" {
		return nil, fmt.Errorf("health port is required when health check is enabled")
	}

	server := health.NewServer(f.config.HealthPort, f.logger, store)
	f.logger.Info("Health check server created", zap.String("port", f.config.HealthPort))
	return server, nil
}

// CreateRateLimiter создает ограничитель изменяющих запросов
func (f *ComponentFactory) CreateRateLimiter() *ratelimit.RateLimiter {
	f.logger.Info("Rate limiter created",
		zap.Int("requests", f.config.RateLimitRequests),
		zap.Duration("window", f.config.RateLimitWindow))
	return ratelimit.NewRateLimiter(f.config.RateLimitRequests, f.config.RateLimitWindow, f.logger)
}

// CreateAPIServer создает HTTP сервер API
func (f *ComponentFactory) CreateAPIServer(services *service.Services, hub *notify.Hub, m *metrics.Metrics, limiter ratelimit.Limiter) *api.Server {
	return api.NewServer(&api.Options{
		Address:  f.config.HTTPAddr,
		Services: services,
		Events:   hub,
		Metrics:  m,
		Logger:   f.logger,
		Debug:    f.config.LogLevel == "debug",
		Limiter:  limiter,
	})
}

// CreateApp создает приложение со всеми зависимостями
func (f *ComponentFactory) CreateApp(ctx context.Context) (*App, error) {
	store, err := f.CreateStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}

	kvClient := f.CreateKVClient()
	hub := notify.NewHub(eventBuffer, f.logger)
	m := metrics.NewMetrics(f.logger)

	services, err := f.CreateServices(store, kvClient, hub, m)
	if err != nil {
		return nil, fmt.Errorf("failed to create services: %w", err)
	}

	healthServer, err := f.CreateHealthServer(store)
	if err != nil {
		return nil, fmt.Errorf("failed to create health server: %w", err)
	}
	if healthServer != nil {
		healthServer.AddStats("sync", m)
		healthServer.AddStats("kv_client", kvClientStats{kvClient})
	}

	limiter := f.CreateRateLimiter()

	return &App{
		config:   f.config,
		logger:   f.logger,
		store:    store,
		services: services,
		limiter:  limiter,
		api:      f.CreateAPIServer(services, hub, m, limiter),
		health:   healthServer,
	}, nil
}

// kvClientStats отдает метрики клиента KV для /metrics
type kvClientStats struct {
	client *kv.Client
}

func (s kvClientStats) GetStats() map[string]interface{} {
	return s.client.GetMetrics()
}
