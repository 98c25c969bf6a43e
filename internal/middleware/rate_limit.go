// Package middleware содержит ограничение частоты запросов учителей.
package middleware

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Limiter определяет интерфейс для ограничителя запросов
type Limiter interface {
	// Allow проверяет, разрешен ли запрос учителя
	Allow(teacherID int64) bool
	// Cleanup очищает устаревшие записи
	Cleanup()
}

// RateLimiter ограничивает количество запросов учителя в скользящем окне
type RateLimiter struct {
	requests map[int64][]time.Time
	mu       sync.Mutex
	limit    int
	window   time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

var _ Limiter = (*RateLimiter)(nil)

// NewRateLimiter создает новый rate limiter
func NewRateLimiter(limit int, window time.Duration, logger *zap.Logger) *RateLimiter {
	return &RateLimiter{
		requests: make(map[int64][]time.Time),
		limit:    limit,
		window:   window,
		now:      time.Now,
		logger:   logger,
	}
}

// Allow проверяет, разрешен ли запрос. Limit <= 0 отключает ограничение.
func (rl *RateLimiter) Allow(teacherID int64) bool {
	if rl.limit <= 0 {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	valid := rl.inWindow(rl.requests[teacherID], now)

	if len(valid) >= rl.limit {
		rl.requests[teacherID] = valid
		rl.logger.Warn("Rate limit exceeded",
			zap.Int64("teacher_id", teacherID),
			zap.Int("requests", len(valid)),
			zap.Int("limit", rl.limit))
		return false
	}

	rl.requests[teacherID] = append(valid, now)
	return true
}

// Cleanup очищает старые записи
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for teacherID, requests := range rl.requests {
		valid := rl.inWindow(requests, now)
		if len(valid) == 0 {
			delete(rl.requests, teacherID)
		} else {
			rl.requests[teacherID] = valid
		}
	}
}

// Tracked возвращает число учителей с записями в окне
func (rl *RateLimiter) Tracked() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.requests)
}

func (rl *RateLimiter) inWindow(requests []time.Time, now time.Time) []time.Time {
	windowStart := now.Add(-rl.window)

	var valid []time.Time
	for _, t := range requests {
		if t.After(windowStart) {
			valid = append(valid, t)
		}
	}
	return valid
}
