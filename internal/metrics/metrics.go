// Package metrics реализует счетчики синхронизации заданий.
package metrics

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Metrics представляет систему метрик синхронизации
type Metrics struct {
	mu sync.RWMutex

	// Публикации
	publishes map[string]int64
	updates   int64
	rollbacks int64

	// Удаленное хранилище
	remoteFailures       int64
	deletes              map[string]int64
	remoteDeleteFailures int64

	// Миграции
	migrations      int64
	migratedRows    int64
	skippedGroups   int64
	lastMigrationAt time.Time

	// Монитор соединений
	monitorRuns     int64
	reconnects      int64
	disconnects     int64
	lastMonitorRun  time.Time
	nextMonitorRun  time.Time
	avgResponseTime time.Duration
	totalRequests   int64
	errorCount      int64

	uptime time.Time

	logger *zap.Logger
}

// NewMetrics создает новую систему метрик
func NewMetrics(logger *zap.Logger) *Metrics {
	return &Metrics{
		publishes: make(map[string]int64),
		deletes:   make(map[string]int64),
		uptime:    time.Now(),
		logger:    logger,
	}
}

// RecordPublish записывает успешную публикацию
func (m *Metrics) RecordPublish(storageType string, isUpdate bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.publishes[storageType]++
	if isUpdate {
		m.updates++
	}
}

// RecordRollback записывает откат журнальной строки после сбоя удаленного хранилища
func (m *Metrics) RecordRollback() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rollbacks++
	m.remoteFailures++
}

// RecordRemoteFailure записывает ошибку обращения к удаленному хранилищу
func (m *Metrics) RecordRemoteFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.remoteFailures++
}

// RecordDelete записывает удаление задания
func (m *Metrics) RecordDelete(storageType string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.deletes[storageType]++
}

// RecordRemoteDeleteFailure записывает проглоченную ошибку удаленного удаления
func (m *Metrics) RecordRemoteDeleteFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.remoteDeleteFailures++
	m.remoteFailures++
}

// RecordMigration записывает результат миграции
func (m *Metrics) RecordMigration(rows, skippedGroups int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.migrations++
	m.migratedRows += int64(rows)
	m.skippedGroups += int64(skippedGroups)
	m.lastMigrationAt = time.Now()
}

// RecordMonitorRun записывает проход монитора соединений
func (m *Metrics) RecordMonitorRun(reconnected, disconnected int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.monitorRuns++
	m.reconnects += int64(reconnected)
	m.disconnects += int64(disconnected)
	m.lastMonitorRun = time.Now()
}

// SetNextMonitorRun устанавливает время следующего прохода монитора
func (m *Metrics) SetNextMonitorRun(next time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextMonitorRun = next
}

// RecordResponseTime записывает время ответа
func (m *Metrics) RecordResponseTime(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalRequests++
	// Простое скользящее среднее
	if m.avgResponseTime == 0 {
		m.avgResponseTime = duration
	} else {
		m.avgResponseTime = (m.avgResponseTime + duration) / 2
	}
}

// RecordError записывает ошибку
func (m *Metrics) RecordError() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.errorCount++
}

// Publishes возвращает число публикаций для типа хранилища
func (m *Metrics) Publishes(storageType string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.publishes[storageType]
}

// Rollbacks возвращает число откатов
func (m *Metrics) Rollbacks() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.rollbacks
}

// GetStats возвращает все метрики в виде map
func (m *Metrics) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"assignments": map[string]interface{}{
			"published":     copyCounts(m.publishes),
			"updates":       m.updates,
			"rollbacks":     m.rollbacks,
			"deleted":       copyCounts(m.deletes),
			"total_publish": sum(m.publishes),
		},
		"remote": map[string]interface{}{
			"failures":        m.remoteFailures,
			"delete_failures": m.remoteDeleteFailures,
		},
		"migrations": map[string]interface{}{
			"runs":           m.migrations,
			"migrated_rows":  m.migratedRows,
			"skipped_groups": m.skippedGroups,
			"last_run":       m.formatTime(m.lastMigrationAt),
		},
		"monitor": map[string]interface{}{
			"runs":        m.monitorRuns,
			"reconnects":  m.reconnects,
			"disconnects": m.disconnects,
			"last_run":    m.formatTime(m.lastMonitorRun),
			"next_run":    m.formatTime(m.nextMonitorRun),
		},
		"performance": map[string]interface{}{
			"avg_response_time": m.formatDuration(m.avgResponseTime),
			"total_requests":    m.totalRequests,
			"error_count":       m.errorCount,
			"error_rate":        m.calculateErrorRate(),
		},
		"system": map[string]interface{}{
			"uptime": m.formatDuration(time.Since(m.uptime)),
		},
	}
}

// calculateErrorRate вычисляет процент ошибок
func (m *Metrics) calculateErrorRate() float64 {
	if m.totalRequests > 0 {
		return float64(m.errorCount) / float64(m.totalRequests) * 100
	}
	return 0
}

// formatTime форматирует время или возвращает "never"
func (m *Metrics) formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Format(time.RFC3339)
}

// formatDuration форматирует duration с двумя знаками после запятой
func (m *Metrics) formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.2fs", d.Seconds())
}

func copyCounts(src map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

func sum(counts map[string]int64) int64 {
	var total int64
	for _, v := range counts {
		total += v
	}
	return total
}
