package review

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carebook/carebook/internal/domain/appointment"
	"github.com/carebook/carebook/internal/platform/auth"
	"github.com/carebook/carebook/pkg/pagination"
	"github.com/carebook/carebook/pkg/response"
)

type ActorResolver interface {
	ResolveActor(ctx context.Context, id auth.Identity) (appointment.Actor, error)
}

type Handler struct {
	svc    *Service
	actors ActorResolver
	policy *auth.Policy
}

func NewHandler(svc *Service, actors ActorResolver, policy *auth.Policy) *Handler {
	return &Handler{svc: svc, actors: actors, policy: policy}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/appointments/:id/review", h.Create, h.policy.Require(auth.ResourceReview, auth.ActionCreate))
	api.GET("/doctors/:id/reviews", h.ListForDoctor, h.policy.Require(auth.ResourceReview, auth.ActionRead))
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidRating), errors.Is(err, ErrNotCompleted):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrNotVisible):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrAppointmentNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrAlreadyReviewed):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func (h *Handler) actor(c echo.Context) (appointment.Actor, error) {
	id, ok := auth.IdentityFromContext(c.Request().Context())
	if !ok {
		return appointment.Actor{}, echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	a, err := h.actors.ResolveActor(c.Request().Context(), id)
	if err != nil {
		return appointment.Actor{}, echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return a, nil
}

func (h *Handler) Create(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	actor, err := h.actor(c)
	if err != nil {
		return err
	}
	var in CreateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	rv, err := h.svc.CreateReview(c.Request().Context(), actor, id, in)
	if err != nil {
		return httpError(err)
	}
	return response.Created(c, rv)
}

func (h *Handler) ListForDoctor(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	actor, err := h.actor(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListForDoctor(c.Request().Context(), actor, id, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	if items == nil {
		items = []*Review{}
	}
	return response.OK(c, pagination.NewPage(items, total, pg))
}
