// Package api содержит HTTP API заданий и синхронизации досок на echo.
package api

import (
	"context"
	"net/http"
	"time"

	"dlass/internal/metrics"
	ratelimit "dlass/internal/middleware"
	"dlass/internal/notify"
	"dlass/internal/service"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

// Subscriber подписка на события доски
type Subscriber interface {
	Subscribe(whiteboardID int64) (<-chan notify.Event, func())
}

// Options параметры HTTP сервера
type Options struct {
	Address        string
	Services       *service.Services
	Events         Subscriber
	Metrics        *metrics.Metrics
	Logger         *zap.Logger
	Debug          bool
	DisableReqLogs bool
	KeepAlive      time.Duration
	// Limiter ограничивает изменяющие запросы учителя, nil отключает
	Limiter ratelimit.Limiter
}

// Server HTTP сервер API
type Server struct {
	opts *Options
	app  *echo.Echo
}

// NewServer создает новый HTTP сервер
func NewServer(opts *Options) *Server {
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = 25 * time.Second
	}

	s := &Server{
		opts: opts,
		app:  echo.New(),
	}
	s.setup()
	return s
}

func (s *Server) setup() {
	s.app.HideBanner = true
	s.app.HidePort = true
	s.app.Debug = s.opts.Debug

	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.opts.DisableReqLogs {
		s.app.Use(s.requestLogger())
	}
	s.app.Use(middleware.Recover())

	s.app.HTTPErrorHandler = newHTTPErrorHandler(s.opts.Logger)

	h := &handlers{
		services:  s.opts.Services,
		events:    s.opts.Events,
		logger:    s.opts.Logger,
		keepAlive: s.opts.KeepAlive,
	}

	g := s.app.Group("/api", actorMiddleware)

	limit := rateLimitMiddleware(s.opts.Limiter)

	wg := g.Group("/whiteboards/:id")
	wg.POST("/assignments", h.publishAssignment, limit)
	wg.GET("/assignments/check", h.checkAssignment)
	wg.GET("/assignments", h.listAssignments)
	wg.GET("/events", h.streamEvents)
	wg.GET("/token", h.accessToken)
	wg.POST("/remote/connect", h.connectRemote, limit)
	wg.POST("/remote/disconnect", h.disconnectRemote, limit)
	wg.POST("/remote/migrate", h.migrateRemote, limit)

	g.POST("/assignments/:id/delete", h.deleteAssignment, limit)
	g.POST("/kv/test-connection", h.testConnection, limit)
}

// requestLogger пишет запросы в zap и считает время ответа
func (s *Server) requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:     true,
		LogMethod:  true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if s.opts.Metrics != nil {
				s.opts.Metrics.RecordResponseTime(v.Latency)
				if v.Status >= http.StatusInternalServerError {
					s.opts.Metrics.RecordError()
				}
			}

			s.opts.Logger.Info("HTTP request",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency))
			return nil
		},
	})
}

// Start запускает HTTP сервер
func (s *Server) Start() error {
	s.opts.Logger.Info("Starting HTTP API server", zap.String("addr", s.opts.Address))
	return s.app.Start(s.opts.Address)
}

// Stop останавливает HTTP сервер
func (s *Server) Stop(ctx context.Context) error {
	s.opts.Logger.Info("Stopping HTTP API server")
	return s.app.Shutdown(ctx)
}

// ServeHTTP нужен для тестов
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.app.ServeHTTP(w, r)
}
