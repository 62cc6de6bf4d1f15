// Package authz decides whether an authenticated caller may reach a
// resource: tenant scope, role, and permission checks.
package authz

import (
	"fmt"
	"slices"
	"strings"

	"github.com/pilab-dev/hospital-gate/domain"
	apierrors "github.com/pilab-dev/hospital-gate/errors"
	"github.com/rs/zerolog/log"
)

// Scope names the group and hospital a request targets. Empty fields are
// not checked.
type Scope struct {
	GroupID    string
	HospitalID string
}

// RequireScope fails with 403 when the caller reaches outside its own group
// or hospital. Platform admins are unrestricted.
func RequireScope(ac *domain.AuthContext, scope Scope) error {
	if ac == nil {
		return apierrors.NewUnauthenticated("Authentication required")
	}

	switch ac.Role {
	case domain.RoleAdmin:
		return nil
	default:
		// Group and hospital admins are bound the same way as every other role.
		if scope.GroupID != "" && scope.GroupID != ac.GroupID {
			log.Warn().Str("user_id", ac.UserID).Str("requested_group", scope.GroupID).
				Str("user_group", ac.GroupID).Msg("Scope denied: group mismatch")
			return apierrors.NewForbidden("Cannot access resources outside your group")
		}
		if scope.HospitalID != "" && scope.HospitalID != ac.HospitalID {
			log.Warn().Str("user_id", ac.UserID).Str("requested_hospital", scope.HospitalID).
				Str("user_hospital", ac.HospitalID).Msg("Scope denied: hospital mismatch")
			return apierrors.NewForbidden("Cannot access resources outside your hospital")
		}
	}
	return nil
}

// RequireRole fails with 403 unless the caller holds one of roles.
func RequireRole(ac *domain.AuthContext, roles ...domain.Role) error {
	if ac == nil {
		return apierrors.NewUnauthenticated("Authentication required")
	}
	if slices.Contains(roles, ac.Role) {
		return nil
	}

	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	log.Warn().Str("user_id", ac.UserID).Str("role", string(ac.Role)).
		Strs("required_roles", names).Msg("Role denied")
	return apierrors.NewForbidden(fmt.Sprintf("Insufficient permissions. Required role: %s", strings.Join(names, " or ")))
}

// RequirePermission fails with 403 unless the caller holds at least one of
// required or the super-permission.
func RequirePermission(ac *domain.AuthContext, required ...string) error {
	if ac == nil {
		return apierrors.NewUnauthenticated("Authentication required")
	}
	if HasAnyPermission(ac.Permissions(), required...) {
		log.Debug().Str("user_id", ac.UserID).Strs("required_permissions", required).Msg("Permission granted")
		return nil
	}

	log.Warn().Str("user_id", ac.UserID).Strs("required_permissions", required).Msg("Permission denied")
	return apierrors.NewForbidden(fmt.Sprintf("Insufficient permissions. Required: %s", strings.Join(required, " or ")))
}

// RequireRoutePermission checks the permission mapped to route. Routes
// missing from the route table are always denied.
func RequireRoutePermission(ac *domain.AuthContext, route string) error {
	switch req := LookupRoute(route).(type) {
	case Mapped:
		return RequirePermission(ac, req.Permission)
	case Unmapped:
		log.Warn().Str("route", req.Route).Msg("Route is not in the permission table")
		return apierrors.NewForbidden(fmt.Sprintf("Route %s is not configured in the permission system", req.Route))
	default:
		return apierrors.NewForbidden("Access denied")
	}
}

// HasPermission reports whether held grants required.
func HasPermission(held []string, required string) bool {
	return slices.Contains(held, SuperPermission) || slices.Contains(held, required)
}

// HasAnyPermission reports whether held grants at least one of required.
// An empty required list is never satisfied except by the super-permission.
func HasAnyPermission(held []string, required ...string) bool {
	if slices.Contains(held, SuperPermission) {
		return true
	}
	for _, r := range required {
		if slices.Contains(held, r) {
			return true
		}
	}
	return false
}

// HasAllPermissions reports whether held grants every one of required.
func HasAllPermissions(held []string, required ...string) bool {
	if slices.Contains(held, SuperPermission) {
		return true
	}
	for _, r := range required {
		if !slices.Contains(held, r) {
			return false
		}
	}
	return true
}
