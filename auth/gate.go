// Package auth turns an inbound request into an authenticated context and
// runs the login, logout and refresh flows.
package auth

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/pilab-dev/hospital-gate/domain"
	apierrors "github.com/pilab-dev/hospital-gate/errors"
	"github.com/pilab-dev/hospital-gate/internal/audit"
	"github.com/pilab-dev/hospital-gate/internal/metrics"
	"github.com/pilab-dev/hospital-gate/session"
	"github.com/pilab-dev/hospital-gate/token"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/pilab-dev/hospital-gate/auth"

// Client-facing messages.
const (
	MsgNoToken         = "No authentication token found"
	MsgInvalidToken    = "Invalid authentication token"
	MsgSessionExpired  = "Session expired"
	MsgNoSessionTenant = "Session tenantId not found"
	MsgUserInactive    = "User not found or inactive"
)

// TokenVerifier verifies signed session tokens.
type TokenVerifier interface {
	Verify(raw string) (*token.Claims, error)
}

// SessionValidator validates sessions and reads their server-side record.
type SessionValidator interface {
	Validate(ctx context.Context, userID, sessionID string) (session.Validation, error)
	Get(ctx context.Context, sessionID string) (*domain.Session, error)
}

// UserReader loads users by id.
type UserReader interface {
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
}

// Gate authenticates requests from the auth cookie alone.
type Gate struct {
	cookieName string
	tokens     TokenVerifier
	sessions   SessionValidator
	users      UserReader
	tracer     trace.Tracer
	latency    metric.Float64Histogram
}

// NewGate creates a Gate reading the cookie named cookieName.
func NewGate(cookieName string, tokens TokenVerifier, sessions SessionValidator, users UserReader) *Gate {
	latency, err := otel.Meter(tracerName).Float64Histogram("hgate.auth.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Time spent authenticating a request."))
	if err != nil {
		log.Warn().Err(err).Msg("Auth latency histogram disabled")
		latency = noop.Float64Histogram{}
	}

	return &Gate{
		cookieName: cookieName,
		tokens:     tokens,
		sessions:   sessions,
		users:      users,
		tracer:     otel.Tracer(tracerName),
		latency:    latency,
	}
}

// Authenticate builds the AuthContext of r. Failures are *apierrors.AuthError
// values with status 401, or 500 when a store is unreachable.
func (g *Gate) Authenticate(ctx context.Context, r *http.Request) (*domain.AuthContext, error) {
	ctx, span := g.tracer.Start(ctx, "auth.Authenticate")
	defer span.End()

	start := time.Now()
	ac, err := g.authenticate(ctx, r)

	outcome := "ok"
	if err != nil {
		outcome = "denied"
	}
	g.latency.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("outcome", outcome)))

	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.String("user.id", ac.UserID),
		attribute.String("tenant.id", ac.TenantID),
	)
	return ac, nil
}

func (g *Gate) authenticate(ctx context.Context, r *http.Request) (*domain.AuthContext, error) {
	logger := log.Ctx(ctx)

	cookie, err := r.Cookie(g.cookieName)
	if err != nil || cookie.Value == "" {
		return nil, apierrors.NewUnauthenticated(MsgNoToken)
	}

	claims, err := g.tokens.Verify(cookie.Value)
	if err != nil {
		logger.Debug().Err(err).Msg("Token verification failed")
		return nil, apierrors.NewUnauthenticated(MsgInvalidToken)
	}

	// Without a session there is no server-side tenant to trust.
	if claims.SessionID == "" {
		logger.Debug().Str("user_id", claims.UserID).Msg("Token carries no session id")
		return nil, apierrors.NewUnauthenticated(MsgNoSessionTenant)
	}

	validation, err := g.sessions.Validate(ctx, claims.UserID, claims.SessionID)
	if err != nil {
		logger.Error().Err(err).Str("user_id", claims.UserID).Msg("Session validation failed")
		return nil, apierrors.NewInternal()
	}
	if !validation.Valid {
		metrics.SessionValidationsTotal.WithLabelValues(string(validation.Reason)).Inc()
		logger.Info().
			Str("user_id", claims.UserID).
			Str("session_id", claims.SessionID).
			Str("reason", string(validation.Reason)).
			Msg("Session rejected")
		audit.Record(audit.Event{
			Action:  audit.ActionSessionReject,
			User:    claims.UserID,
			Target:  claims.SessionID,
			Details: string(validation.Reason),
			IP:      RequestIP(r),
		})
		return nil, apierrors.NewUnauthenticated(MsgSessionExpired)
	}
	metrics.SessionValidationsTotal.WithLabelValues("valid").Inc()

	sess, err := g.sessions.Get(ctx, claims.SessionID)
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		// Deleted between validation and this read.
		return nil, apierrors.NewUnauthenticated(MsgSessionExpired)
	case err != nil:
		logger.Error().Err(err).Str("session_id", claims.SessionID).Msg("Session lookup failed")
		return nil, apierrors.NewInternal()
	}
	if sess.TenantID == "" {
		logger.Warn().Str("session_id", claims.SessionID).Msg("Session has no tenant")
		return nil, apierrors.NewUnauthenticated(MsgNoSessionTenant)
	}

	user, err := g.users.GetUserByID(ctx, claims.UserID)
	switch {
	case errors.Is(err, domain.ErrUserNotFound):
		return nil, apierrors.NewUnauthenticated(MsgUserInactive)
	case err != nil:
		logger.Error().Err(err).Str("user_id", claims.UserID).Msg("User lookup failed")
		return nil, apierrors.NewInternal()
	}
	if !user.IsActive {
		return nil, apierrors.NewUnauthenticated(MsgUserInactive)
	}

	return &domain.AuthContext{
		UserID:     user.ID,
		Role:       user.Role,
		Email:      user.Email,
		User:       user,
		TenantID:   sess.TenantID,
		SessionID:  sess.ID,
		GroupID:    user.GroupID,
		HospitalID: user.HospitalID,
	}, nil
}

// ValidateTenantIsolation reports whether a client-supplied tenant id is
// compatible with the session's tenant. An empty requested id is accepted.
func ValidateTenantIsolation(ac *domain.AuthContext, requestedTenantID string) bool {
	if requestedTenantID == "" {
		return true
	}
	return ac != nil && ac.TenantID == requestedTenantID
}
