package domain

import "context"

// AuthContext is the request-scoped identity built by the authentication
// gate. TenantID always comes from the server-side session record.
type AuthContext struct {
	UserID     string `json:"userId"`
	Role       Role   `json:"role"`
	Email      string `json:"email"`
	User       *User  `json:"user"`
	TenantID   string `json:"tenantId"`
	SessionID  string `json:"sessionId"`
	GroupID    string `json:"groupId,omitempty"`
	HospitalID string `json:"hospitalId,omitempty"`
}

// Permissions returns the permission keys of the authenticated user.
func (a *AuthContext) Permissions() []string {
	if a == nil || a.User == nil {
		return nil
	}
	return a.User.Permissions
}

type authContextKey struct{}

// WithAuthContext stores the AuthContext in ctx.
func WithAuthContext(ctx context.Context, ac *AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey{}, ac)
}

// AuthContextFrom retrieves the AuthContext from ctx.
func AuthContextFrom(ctx context.Context) (*AuthContext, bool) {
	ac, ok := ctx.Value(authContextKey{}).(*AuthContext)
	return ac, ok && ac != nil
}
