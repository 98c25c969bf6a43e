package api

import (
	"net/http"
	"strconv"

	ratelimit "dlass/internal/middleware"
	"dlass/internal/model"

	"github.com/labstack/echo/v4"
)

// HeaderTeacherID заголовок с идентификатором учителя
const HeaderTeacherID = "X-Teacher-ID"

const actorKey = "actor"

var (
	errNoActor     = echo.NewHTTPError(http.StatusUnauthorized, "teacher id required")
	errRateLimited = echo.NewHTTPError(http.StatusTooManyRequests, "too many requests")
)

// actorMiddleware извлекает учителя из заголовка запроса
func actorMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := strconv.ParseInt(c.Request().Header.Get(HeaderTeacherID), 10, 64)
		if err != nil || id <= 0 {
			return errNoActor
		}
		c.Set(actorKey, model.Actor{TeacherID: id})
		return next(c)
	}
}

// rateLimitMiddleware ограничивает запросы учителя, выставленного actorMiddleware
func rateLimitMiddleware(limiter ratelimit.Limiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if limiter != nil && !limiter.Allow(actorFrom(c).TeacherID) {
				return errRateLimited
			}
			return next(c)
		}
	}
}

func actorFrom(c echo.Context) model.Actor {
	actor, _ := c.Get(actorKey).(model.Actor)
	return actor
}

// pathID разбирает числовой параметр :id
func pathID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, model.NewValidationError("id", "must be a positive integer")
	}
	return id, nil
}
