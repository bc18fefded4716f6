package auth

import (
	"fmt"
	"net/http"
	"strings"

	casbin "github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/labstack/echo/v4"
)

type Resource string

type Action string

const (
	ResourceProfile      Resource = "profile"
	ResourceDoctor       Resource = "doctor"
	ResourceAppointment  Resource = "appointment"
	ResourceReview       Resource = "review"
	ResourceNotification Resource = "notification"

	ActionRead         Action = "read"
	ActionCreate       Action = "create"
	ActionUpdate       Action = "update"
	ActionUpdateStatus Action = "update_status"
	ActionVerify       Action = "verify"
)

const wildcard = "*"

const policyModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && (p.obj == "*" || r.obj == p.obj) && (p.act == "*" || r.act == p.act)
`

// defaultPolicies grants each role its permitted (resource, action) pairs.
// Ownership of individual rows is checked by the services.
var defaultPolicies = [][]string{
	{RolePatient, string(ResourceProfile), string(ActionRead)},
	{RolePatient, string(ResourceProfile), string(ActionUpdate)},
	{RolePatient, string(ResourceDoctor), string(ActionRead)},
	{RolePatient, string(ResourceAppointment), string(ActionCreate)},
	{RolePatient, string(ResourceAppointment), string(ActionRead)},
	{RolePatient, string(ResourceAppointment), string(ActionUpdateStatus)},
	{RolePatient, string(ResourceReview), string(ActionCreate)},
	{RolePatient, string(ResourceReview), string(ActionRead)},
	{RolePatient, string(ResourceNotification), wildcard},

	{RoleDoctor, string(ResourceProfile), string(ActionRead)},
	{RoleDoctor, string(ResourceProfile), string(ActionUpdate)},
	{RoleDoctor, string(ResourceDoctor), string(ActionRead)},
	{RoleDoctor, string(ResourceDoctor), string(ActionCreate)},
	{RoleDoctor, string(ResourceDoctor), string(ActionUpdate)},
	{RoleDoctor, string(ResourceAppointment), string(ActionRead)},
	{RoleDoctor, string(ResourceAppointment), string(ActionUpdateStatus)},
	{RoleDoctor, string(ResourceReview), string(ActionRead)},
	{RoleDoctor, string(ResourceNotification), wildcard},

	{RoleAdmin, wildcard, wildcard},
}

// Policy answers whether a role may perform an action on a resource type.
type Policy struct {
	enforcer *casbin.Enforcer
}

// NewPolicy builds an in-memory enforcer loaded with the default role grants.
func NewPolicy() (*Policy, error) {
	m, err := model.NewModelFromString(policyModel)
	if err != nil {
		return nil, fmt.Errorf("parse policy model: %w", err)
	}
	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("create enforcer: %w", err)
	}
	for _, p := range defaultPolicies {
		if _, err := e.AddPolicy(p[0], p[1], p[2]); err != nil {
			return nil, fmt.Errorf("add policy %v: %w", p, err)
		}
	}
	return &Policy{enforcer: e}, nil
}

func (p *Policy) Allowed(role string, obj Resource, act Action) bool {
	if role == "" {
		return false
	}
	ok, err := p.enforcer.Enforce(role, string(obj), string(act))
	return err == nil && ok
}

// Require returns middleware rejecting callers whose role lacks the grant.
func (p *Policy) Require(obj Resource, act Action) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, ok := IdentityFromContext(c.Request().Context())
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}
			if !p.Allowed(id.Role, obj, act) {
				return echo.NewHTTPError(http.StatusForbidden,
					fmt.Sprintf("permission denied: %s:%s", obj, act))
			}
			return next(c)
		}
	}
}

// RequireRole returns middleware that checks the caller holds one of roles.
// Admins always pass.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, ok := IdentityFromContext(c.Request().Context())
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}
			if id.IsAdmin() {
				return next(c)
			}
			for _, r := range roles {
				if id.Role == r {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}
