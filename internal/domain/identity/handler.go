package identity

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carebook/carebook/internal/platform/auth"
	"github.com/carebook/carebook/pkg/pagination"
	"github.com/carebook/carebook/pkg/response"
)

type Handler struct {
	svc    *Service
	policy *auth.Policy
}

func NewHandler(svc *Service, policy *auth.Policy) *Handler {
	return &Handler{svc: svc, policy: policy}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Public; the JWT middleware skips register and login.
	ag := api.Group("/auth")
	ag.POST("/register", h.Register)
	ag.POST("/login", h.Login)
	ag.GET("/me", h.Me, h.policy.Require(auth.ResourceProfile, auth.ActionRead))
	ag.PATCH("/me", h.UpdateMe, h.policy.Require(auth.ResourceProfile, auth.ActionUpdate))

	dg := api.Group("/doctors")
	dg.GET("", h.ListDoctors, h.policy.Require(auth.ResourceDoctor, auth.ActionRead))
	dg.POST("", h.CreateDoctorProfile, h.policy.Require(auth.ResourceDoctor, auth.ActionCreate))
	dg.GET("/me", h.GetMyDoctorProfile, auth.RequireRole(auth.RoleDoctor))
	dg.PUT("/me", h.UpdateMyDoctorProfile, h.policy.Require(auth.ResourceDoctor, auth.ActionUpdate))
	dg.PATCH("/me/availability", h.SetAvailability, h.policy.Require(auth.ResourceDoctor, auth.ActionUpdate))
	dg.GET("/:id", h.GetDoctor, h.policy.Require(auth.ResourceDoctor, auth.ActionRead))
	dg.PATCH("/:id/verification", h.SetVerification, h.policy.Require(auth.ResourceDoctor, auth.ActionVerify))
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrEmailTaken):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrInvalidCredentials):
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrDoctorNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrLicenseTaken), errors.Is(err, ErrDoctorProfileExists):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func caller(c echo.Context) (auth.Identity, error) {
	id, ok := auth.IdentityFromContext(c.Request().Context())
	if !ok {
		return auth.Identity{}, echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	return id, nil
}

// -- Accounts --

func (h *Handler) Register(c echo.Context) error {
	var in RegisterInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	sess, err := h.svc.Register(c.Request().Context(), in)
	if err != nil {
		return httpError(err)
	}
	return response.Created(c, sess)
}

func (h *Handler) Login(c echo.Context) error {
	var in LoginInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	sess, err := h.svc.Login(c.Request().Context(), in)
	if err != nil {
		return httpError(err)
	}
	return response.OK(c, sess)
}

func (h *Handler) Me(c echo.Context) error {
	id, err := caller(c)
	if err != nil {
		return err
	}
	p, err := h.svc.Me(c.Request().Context(), id.UserID)
	if err != nil {
		return httpError(err)
	}
	return response.OK(c, p)
}

func (h *Handler) UpdateMe(c echo.Context) error {
	id, err := caller(c)
	if err != nil {
		return err
	}
	var in ContactUpdate
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	p, err := h.svc.UpdateContact(c.Request().Context(), id.UserID, in)
	if err != nil {
		return httpError(err)
	}
	return response.OK(c, p)
}

// -- Doctors --

func (h *Handler) ListDoctors(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := DoctorFilter{Specialization: c.QueryParam("specialization")}
	if v := c.QueryParam("available"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "available must be true or false")
		}
		f.Available = &b
	}
	items, total, err := h.svc.ListDoctors(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	if items == nil {
		items = []*DoctorProfile{}
	}
	return response.OK(c, pagination.NewPage(items, total, pg))
}

func (h *Handler) GetDoctor(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	who, err := caller(c)
	if err != nil {
		return err
	}
	d, err := h.svc.GetDoctor(c.Request().Context(), who, id)
	if err != nil {
		return httpError(err)
	}
	return response.OK(c, d)
}

func (h *Handler) GetMyDoctorProfile(c echo.Context) error {
	who, err := caller(c)
	if err != nil {
		return err
	}
	d, err := h.svc.DoctorForUser(c.Request().Context(), who.UserID)
	if err != nil {
		return httpError(err)
	}
	return response.OK(c, d)
}

func (h *Handler) CreateDoctorProfile(c echo.Context) error {
	who, err := caller(c)
	if err != nil {
		return err
	}
	var in DoctorInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	d, err := h.svc.CreateDoctorProfile(c.Request().Context(), who, in)
	if err != nil {
		return httpError(err)
	}
	return response.Created(c, d)
}

func (h *Handler) UpdateMyDoctorProfile(c echo.Context) error {
	who, err := caller(c)
	if err != nil {
		return err
	}
	var in DoctorInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	d, err := h.svc.UpdateDoctorProfile(c.Request().Context(), who.UserID, in)
	if err != nil {
		return httpError(err)
	}
	return response.OK(c, d)
}

type availabilityRequest struct {
	IsAvailable *bool `json:"is_available"`
}

func (h *Handler) SetAvailability(c echo.Context) error {
	who, err := caller(c)
	if err != nil {
		return err
	}
	var req availabilityRequest
	if err := c.Bind(&req); err != nil || req.IsAvailable == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "is_available is required")
	}
	d, err := h.svc.SetAvailability(c.Request().Context(), who.UserID, *req.IsAvailable)
	if err != nil {
		return httpError(err)
	}
	return response.OK(c, d)
}

type verificationRequest struct {
	IsVerified *bool `json:"is_verified"`
}

func (h *Handler) SetVerification(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	who, err := caller(c)
	if err != nil {
		return err
	}
	var req verificationRequest
	if err := c.Bind(&req); err != nil || req.IsVerified == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "is_verified is required")
	}
	d, err := h.svc.SetVerification(c.Request().Context(), who, id, *req.IsVerified)
	if err != nil {
		return httpError(err)
	}
	return response.OK(c, d)
}
