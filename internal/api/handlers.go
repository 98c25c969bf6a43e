package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"dlass/internal/model"
	"dlass/internal/service"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type handlers struct {
	services  *service.Services
	events    Subscriber
	logger    *zap.Logger
	keepAlive time.Duration
}

type publishResponse struct {
	Success bool `json:"success"`
	*service.PublishResult
}

type connectResponse struct {
	Success bool `json:"success"`
	*service.ConnectResult
}

func (h *handlers) publishAssignment(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}

	var req service.PublishRequest
	if err := c.Bind(&req); err != nil {
		return model.NewValidationError("", "malformed request body")
	}
	req.WhiteboardID = id

	result, err := h.services.Assignments.Publish(c.Request().Context(), actorFrom(c), req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, publishResponse{Success: true, PublishResult: result})
}

func (h *handlers) checkAssignment(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}

	view, err := h.services.Assignments.Check(c.Request().Context(), actorFrom(c), id, c.QueryParam("subject"))
	if err != nil {
		return err
	}
	if view == nil {
		return c.JSON(http.StatusOK, echo.Map{})
	}

	return c.JSON(http.StatusOK, echo.Map{"assignment": view})
}

func (h *handlers) listAssignments(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}

	views, err := h.services.Assignments.List(c.Request().Context(), actorFrom(c), id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "assignments": views})
}

func (h *handlers) deleteAssignment(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}

	if err := h.services.Assignments.Delete(c.Request().Context(), actorFrom(c), id); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

func (h *handlers) testConnection(c echo.Context) error {
	var req service.ConnectRequest
	if err := c.Bind(&req); err != nil {
		return model.NewValidationError("", "malformed request body")
	}

	session, err := h.services.Whiteboards.TestConnection(c.Request().Context(), req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "namespace": session.Namespace})
}

func (h *handlers) connectRemote(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}

	var req service.ConnectRequest
	if err := c.Bind(&req); err != nil {
		return model.NewValidationError("", "malformed request body")
	}

	result, err := h.services.Whiteboards.Connect(c.Request().Context(), actorFrom(c), id, req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, connectResponse{Success: true, ConnectResult: result})
}

func (h *handlers) disconnectRemote(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}

	if err := h.services.Whiteboards.Disconnect(c.Request().Context(), actorFrom(c), id); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

func (h *handlers) migrateRemote(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}

	result, err := h.services.Whiteboards.Migrate(c.Request().Context(), actorFrom(c), id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

func (h *handlers) accessToken(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	if err := h.services.Assignments.CanView(ctx, actorFrom(c), id); err != nil {
		return err
	}

	token, err := h.services.Whiteboards.EnsureAccessToken(ctx, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "token": token})
}

// streamEvents отдает события доски как server-sent events до закрытия соединения
func (h *handlers) streamEvents(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	if err := h.services.Assignments.CanView(ctx, actorFrom(c), id); err != nil {
		return err
	}

	events, cancel := h.events.Subscribe(id)
	defer cancel()

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			data, err := json.Marshal(ev)
			if err != nil {
				h.logger.Error("Failed to encode event", zap.Error(err))
				continue
			}
			if _, err := fmt.Fprintf(res, "id: %s\nevent: %s\ndata: %s\n\n", ev.ID, ev.Type, data); err != nil {
				return nil
			}
			res.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprint(res, ": keep-alive\n\n"); err != nil {
				return nil
			}
			res.Flush()
		}
	}
}
