package echo

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pilab-dev/hospital-gate/auth"
	"github.com/pilab-dev/hospital-gate/authz"
	"github.com/pilab-dev/hospital-gate/domain"
	apierrors "github.com/pilab-dev/hospital-gate/errors"
	"github.com/rs/zerolog/log"
)

// LoginRequest is the login request body.
type LoginRequest struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

// UserResponse is the public view of a user.
type UserResponse struct {
	ID          string      `json:"id"`
	Email       string      `json:"email"`
	FirstName   string      `json:"firstName,omitempty"`
	LastName    string      `json:"lastName,omitempty"`
	Role        domain.Role `json:"role"`
	Permissions []string    `json:"permissions"`
	GroupID     string      `json:"groupId,omitempty"`
	HospitalID  string      `json:"hospitalId,omitempty"`
}

func newUserResponse(u *domain.User) UserResponse {
	return UserResponse{
		ID:          u.ID,
		Email:       u.Email,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		Role:        u.Role,
		Permissions: u.Permissions,
		GroupID:     u.GroupID,
		HospitalID:  u.HospitalID,
	}
}

// LoginHandler checks credentials, opens the user's session and sets the
// auth cookie.
func (a *AuthAPI) LoginHandler(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, &apierrors.AuthError{
			Status:  http.StatusBadRequest,
			Code:    "Invalid request format",
			Message: "email and password are required",
		})
	}

	res, err := a.flows.Login(c.Request().Context(), auth.LoginRequest{
		Email:     req.Email,
		Password:  req.Password,
		IP:        auth.RequestIP(c.Request()),
		UserAgent: auth.RequestUserAgent(c.Request()),
	})
	if err != nil {
		return writeError(c, err)
	}

	c.SetCookie(a.cookies.AuthCookie(res.Token))
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"user":    newUserResponse(res.User),
	})
}

// LogoutHandler deletes the caller's session, if any, and clears the cookie.
// It succeeds for callers that are already logged out.
func (a *AuthAPI) LogoutHandler(c echo.Context) error {
	ac, err := a.gate.Authenticate(c.Request().Context(), c.Request())
	if err == nil {
		if err := a.flows.Logout(c.Request().Context(), ac); err != nil {
			return writeError(c, err)
		}
	}

	c.SetCookie(a.cookies.ClearCookie())
	return c.JSON(http.StatusOK, map[string]any{"success": true})
}

// RefreshHandler rotates the caller's session and reissues the cookie.
func (a *AuthAPI) RefreshHandler(c echo.Context) error {
	ac, err := requireAuthContext(c)
	if err != nil {
		return writeError(c, err)
	}

	res, err := a.flows.Refresh(c.Request().Context(), ac,
		auth.RequestIP(c.Request()), auth.RequestUserAgent(c.Request()))
	if err != nil {
		return writeError(c, err)
	}

	c.SetCookie(a.cookies.AuthCookie(res.Token))
	return c.JSON(http.StatusOK, map[string]any{"success": true})
}

// MeHandler returns the caller's authenticated context.
func (a *AuthAPI) MeHandler(c echo.Context) error {
	ac, err := requireAuthContext(c)
	if err != nil {
		return writeError(c, err)
	}

	resp := map[string]any{
		"userId":     ac.UserID,
		"role":       ac.Role,
		"email":      ac.Email,
		"tenantId":   ac.TenantID,
		"sessionId":  ac.SessionID,
		"groupId":    ac.GroupID,
		"hospitalId": ac.HospitalID,
	}
	if ac.User != nil {
		resp["user"] = newUserResponse(ac.User)
	}
	return c.JSON(http.StatusOK, resp)
}

// ScopeCheckHandler is reached only when the requested scope passed
// RequireScope.
func (a *AuthAPI) ScopeCheckHandler(c echo.Context) error {
	scope := ScopeFromQuery(c)
	return c.JSON(http.StatusOK, map[string]any{
		"allowed":    true,
		"groupId":    scope.GroupID,
		"hospitalId": scope.HospitalID,
	})
}

// RouteCheckHandler reports whether the caller may open the route given in
// the route query parameter.
func (a *AuthAPI) RouteCheckHandler(c echo.Context) error {
	ac, err := requireAuthContext(c)
	if err != nil {
		return writeError(c, err)
	}

	route := c.QueryParam("route")
	if err := authz.RequireRoutePermission(ac, route); err != nil {
		return writeError(c, err)
	}

	resp := map[string]any{"allowed": true, "route": route}
	if m, ok := authz.LookupRoute(route).(authz.Mapped); ok {
		resp["permission"] = m.Permission
	}
	return c.JSON(http.StatusOK, resp)
}

// PermissionsHandler lists the permission catalog grouped by category,
// plus the default set of a role when the role query parameter is given.
func (a *AuthAPI) PermissionsHandler(c echo.Context) error {
	resp := map[string]any{"categories": authz.PermissionsByCategory()}
	if role := c.QueryParam("role"); role != "" {
		resp["defaults"] = authz.DefaultPermissionsForRole(domain.Role(role))
	}
	return c.JSON(http.StatusOK, resp)
}

// HealthHandler reports whether the backing stores answer.
func (a *AuthAPI) HealthHandler(c echo.Context) error {
	if a.health == nil {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	if err := a.health(ctx); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("Health check failed")
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
