package api

import (
	"errors"
	"net/http"

	"dlass/internal/external/kv"
	"dlass/internal/model"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// newHTTPErrorHandler переводит доменные ошибки в HTTP ответы
func newHTTPErrorHandler(logger *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code, body := mapError(err)
		if code >= http.StatusInternalServerError {
			logger.Error("Request failed",
				zap.String("method", c.Request().Method),
				zap.String("path", c.Path()),
				zap.Int("status", code),
				zap.Error(err))
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(code)
		} else {
			err = c.JSON(code, body)
		}
		if err != nil {
			logger.Error("Failed to write error response", zap.Error(err))
		}
	}
}

func mapError(err error) (int, echo.Map) {
	var (
		httpErr       *echo.HTTPError
		validationErr *model.ValidationError
		permissionErr *model.PermissionError
		publishErr    *model.PublishError
		authErr       *kv.AuthError
	)

	switch {
	case errors.As(err, &httpErr):
		return httpErr.Code, echo.Map{"error": httpErr.Message}
	case errors.As(err, &validationErr):
		body := echo.Map{"error": validationErr.Error()}
		if validationErr.Field != "" {
			body["field"] = validationErr.Field
		}
		return http.StatusBadRequest, body
	case errors.As(err, &permissionErr):
		return http.StatusForbidden, echo.Map{"error": "permission denied", "detail": permissionErr.Reason}
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, echo.Map{"error": "not found"}
	case errors.As(err, &publishErr):
		return http.StatusBadGateway, echo.Map{"error": "failed to save to remote store", "detail": publishErr.Err.Error()}
	case errors.As(err, &authErr):
		return http.StatusBadRequest, echo.Map{"error": "remote store authentication failed", "detail": authErr.Reason}
	case kv.IsRemoteError(err):
		return http.StatusBadGateway, echo.Map{"error": "remote store unavailable", "detail": err.Error()}
	default:
		return http.StatusInternalServerError, echo.Map{"error": "operation failed"}
	}
}
