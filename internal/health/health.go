// Package health содержит health check сервер.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Pinger проверяет доступность хранилища
type Pinger interface {
	Ping(ctx context.Context) error
}

// StatsProvider отдает метрики в виде map
type StatsProvider interface {
	GetStats() map[string]interface{}
}

// Server представляет health check сервер
type Server struct {
	server *http.Server
	db     Pinger
	stats  []namedStats
	logger *zap.Logger
}

type namedStats struct {
	name     string
	provider StatsProvider
}

// NewServer создает новый health check сервер
func NewServer(port string, logger *zap.Logger, db Pinger) *Server {
	mux := http.NewServeMux()

	server := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	healthServer := &Server{
		server: server,
		db:     db,
		logger: logger,
	}

	// Регистрируем маршруты
	mux.HandleFunc("/health", healthServer.healthHandler)
	mux.HandleFunc("/ready", healthServer.readyHandler)
	mux.HandleFunc("/live", healthServer.liveHandler)
	mux.HandleFunc("/metrics", healthServer.metricsHandler)

	return healthServer
}

// AddStats регистрирует источник метрик под именем
func (s *Server) AddStats(name string, provider StatsProvider) {
	s.stats = append(s.stats, namedStats{name: name, provider: provider})
}

// Handler возвращает обработчик маршрутов
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start запускает health check сервер
func (s *Server) Start() error {
	s.logger.Info("Starting health check server", zap.String("addr", s.server.Addr))
	return s.server.ListenAndServe()
}

// Stop останавливает health check сервер
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.logger.Info("Stopping health check server")
	return s.server.Shutdown(ctx)
}

// healthHandler обрабатывает запросы /health
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	code := http.StatusOK

	// Проверяем подключение к базе данных
	if err := s.checkDatabase(r.Context()); err != nil {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
		s.logger.Error("Health check failed", zap.Error(err))
	}

	writeStatus(w, code, status)
}

// readyHandler обрабатывает запросы /ready
func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	status := "ready"
	code := http.StatusOK

	if err := s.checkReadiness(r.Context()); err != nil {
		status = "not ready"
		code = http.StatusServiceUnavailable
		s.logger.Error("Readiness check failed", zap.Error(err))
	}

	writeStatus(w, code, status)
}

// liveHandler обрабатывает запросы /live
func (s *Server) liveHandler(w http.ResponseWriter, r *http.Request) {
	writeStatus(w, http.StatusOK, "alive")
}

// metricsHandler отдает метрики в JSON
func (s *Server) metricsHandler(w http.ResponseWriter, r *http.Request) {
	out := make(map[string]interface{}, len(s.stats))
	for _, st := range s.stats {
		out[st.name] = st.provider.GetStats()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(out); err != nil {
		s.logger.Error("Failed to encode metrics", zap.Error(err))
	}
}

// checkDatabase проверяет подключение к базе данных
func (s *Server) checkDatabase(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	return nil
}

// checkReadiness проверяет готовность к работе
func (s *Server) checkReadiness(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database is not initialized")
	}

	if err := s.checkDatabase(ctx); err != nil {
		return fmt.Errorf("database is not ready: %w", err)
	}

	return nil
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"status":"%s","timestamp":"%s"}`, status, time.Now().Format(time.RFC3339))
}
