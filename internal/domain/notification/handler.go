package notification

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/carebook/carebook/internal/platform/auth"
	"github.com/carebook/carebook/pkg/pagination"
	"github.com/carebook/carebook/pkg/response"
)

const (
	keepAliveInterval = 25 * time.Second
	writeWait         = 10 * time.Second
)

type Handler struct {
	svc      *Service
	policy   *auth.Policy
	upgrader websocket.Upgrader
}

// NewHandler serves the inbox routes. WebSocket upgrades are accepted from
// allowedOrigins (the CORS allow-list, "*" for any); with an empty list only
// same-host origins are accepted.
func NewHandler(svc *Service, policy *auth.Policy, allowedOrigins []string) *Handler {
	return &Handler{
		svc:    svc,
		policy: policy,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

// originChecker returns nil for an empty list so gorilla's same-host check
// applies. Requests without an Origin header are not from browsers and pass.
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[strings.ToLower(strings.TrimRight(o, "/"))] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[strings.ToLower(origin)]
	}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := h.policy.Require(auth.ResourceNotification, auth.ActionRead)
	update := h.policy.Require(auth.ResourceNotification, auth.ActionUpdate)

	g := api.Group("/notifications")
	g.GET("", h.List, read)
	g.GET("/unread-count", h.UnreadCount, read)
	g.GET("/stream", h.Stream, read)
	g.GET("/ws", h.Socket, read)
	g.PATCH("/read-all", h.MarkAllRead, update)
	g.PATCH("/:id/read", h.MarkRead, update)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrStreamUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func userID(c echo.Context) (uuid.UUID, error) {
	id, ok := auth.IdentityFromContext(c.Request().Context())
	if !ok {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	return id.UserID, nil
}

func (h *Handler) List(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	unreadOnly := c.QueryParam("unread") == "true"

	items, total, err := h.svc.List(c.Request().Context(), uid, unreadOnly, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	if items == nil {
		items = []*Notification{}
	}
	return response.OK(c, pagination.NewPage(items, total, pg))
}

func (h *Handler) UnreadCount(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	n, err := h.svc.UnreadCount(c.Request().Context(), uid)
	if err != nil {
		return httpError(err)
	}
	return response.OK(c, map[string]int{"count": n})
}

func (h *Handler) MarkRead(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	uid, err := userID(c)
	if err != nil {
		return err
	}
	n, err := h.svc.MarkRead(c.Request().Context(), uid, id)
	if err != nil {
		return httpError(err)
	}
	return response.OK(c, n)
}

func (h *Handler) MarkAllRead(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	n, err := h.svc.MarkAllRead(c.Request().Context(), uid)
	if err != nil {
		return httpError(err)
	}
	return response.OK(c, map[string]int{"updated": n})
}

// Stream sends the caller's new notifications as Server-Sent Events until
// the client disconnects.
func (h *Handler) Stream(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	ch, unsubscribe, err := h.svc.Subscribe(ctx, uid)
	if err != nil {
		return httpError(err)
	}
	defer unsubscribe()

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case payload, ok := <-ch:
			if !ok {
				return nil
			}
			if _, err := fmt.Fprintf(w, "event: notification\ndata: %s\n\n", payload); err != nil {
				return nil
			}
			w.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return nil
			}
			w.Flush()
		}
	}
}

// Socket is the WebSocket variant of Stream. Inbound frames are discarded.
func (h *Handler) Socket(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	ch, unsubscribe, err := h.svc.Subscribe(ctx, uid)
	if err != nil {
		return httpError(err)
	}
	defer unsubscribe()

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade has already written the error response.
		return nil
	}
	defer ws.Close()

	go func() {
		defer cancel()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case payload, ok := <-ch:
			if !ok {
				return nil
			}
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				return nil
			}
		}
	}
}
