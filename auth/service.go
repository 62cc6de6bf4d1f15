package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/pilab-dev/hospital-gate/domain"
	apierrors "github.com/pilab-dev/hospital-gate/errors"
	"github.com/pilab-dev/hospital-gate/internal/audit"
	"github.com/pilab-dev/hospital-gate/internal/metrics"
	"github.com/pilab-dev/hospital-gate/ratelimit"
	"github.com/pilab-dev/hospital-gate/session"
	"github.com/pilab-dev/hospital-gate/token"
	"github.com/rs/zerolog/log"
)

// MsgInvalidCredentials is returned for unknown users and wrong passwords alike.
const MsgInvalidCredentials = "Invalid credentials"

// LimitedError is a 429 or 423 failure carrying the limiter result, so the
// HTTP layer can emit Retry-After and X-RateLimit-* headers.
type LimitedError struct {
	Err    *apierrors.AuthError
	Result ratelimit.Result
}

func (e *LimitedError) Error() string { return e.Err.Error() }
func (e *LimitedError) Unwrap() error { return e.Err }

// LimitedFromResult builds the LimitedError for a refused limiter result,
// or returns nil when res is allowed.
func LimitedFromResult(res ratelimit.Result) *LimitedError {
	switch {
	case res.Locked:
		return &LimitedError{Err: apierrors.NewLocked("Account temporarily locked. Try again later."), Result: res}
	case !res.Allowed:
		return &LimitedError{Err: apierrors.NewRateLimited("Too many requests. Try again later."), Result: res}
	default:
		return nil
	}
}

// UserStore is what the login flow needs from the user repository.
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
}

// SessionLifecycle creates, rotates and removes sessions.
type SessionLifecycle interface {
	Create(ctx context.Context, p session.CreateParams) (string, error)
	Rotate(ctx context.Context, p session.RotateParams) (string, error)
	Delete(ctx context.Context, sessionID string) error
}

// TokenIssuer signs session tokens.
type TokenIssuer interface {
	Issue(claims token.Claims) (string, error)
}

// LoginLimiter throttles logins and tracks failed passwords.
type LoginLimiter interface {
	RateLimitLogin(ctx context.Context, id ratelimit.ClientIdentity) (ratelimit.Result, error)
	TrackFailedLogin(ctx context.Context, userID string) (ratelimit.Result, error)
	ClearFailedLogins(ctx context.Context, userID string) error
}

// PasswordVerifier checks a password against its stored hash.
type PasswordVerifier interface {
	Verify(hashedPassword, password string) error
}

// Service runs the login, logout and refresh flows.
type Service struct {
	users     UserStore
	sessions  SessionLifecycle
	tokens    TokenIssuer
	limiter   LoginLimiter
	passwords PasswordVerifier
}

// NewService creates a Service.
func NewService(users UserStore, sessions SessionLifecycle, tokens TokenIssuer, limiter LoginLimiter, passwords PasswordVerifier) *Service {
	return &Service{
		users:     users,
		sessions:  sessions,
		tokens:    tokens,
		limiter:   limiter,
		passwords: passwords,
	}
}

// LoginRequest carries the credentials and client details of a login.
type LoginRequest struct {
	Email     string
	Password  string
	IP        string
	UserAgent string
}

// LoginResult is a successful login.
type LoginResult struct {
	Token     string
	SessionID string
	User      *domain.User
}

// Login authenticates credentials and opens the user's only session.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	logger := log.Ctx(ctx)

	res, err := s.limiter.RateLimitLogin(ctx, ratelimit.ClientIdentity{IP: req.IP})
	if err != nil {
		logger.Error().Err(err).Msg("Login rate limit check failed")
		return nil, apierrors.NewInternal()
	}
	if limited := LimitedFromResult(res); limited != nil {
		metrics.RateLimitedTotal.WithLabelValues("login").Inc()
		logger.Warn().Str("ip", req.IP).Bool("locked", res.Locked).Msg("Login rate limited")
		return nil, limited
	}

	email := strings.TrimSpace(req.Email)
	if email == "" || req.Password == "" {
		return nil, apierrors.NewUnauthenticated(MsgInvalidCredentials)
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	switch {
	case errors.Is(err, domain.ErrUserNotFound):
		s.loginFailed(req, "", "unknown email")
		return nil, apierrors.NewUnauthenticated(MsgInvalidCredentials)
	case err != nil:
		logger.Error().Err(err).Msg("User lookup failed")
		return nil, apierrors.NewInternal()
	}
	if !user.IsActive {
		s.loginFailed(req, user.ID, "inactive user")
		return nil, apierrors.NewUnauthenticated(MsgInvalidCredentials)
	}

	// Once the user is known the login budget is per account, and
	// exhausting it locks the account.
	res, err = s.limiter.RateLimitLogin(ctx, ratelimit.ClientIdentity{UserID: user.ID, IP: req.IP})
	if err != nil {
		logger.Error().Err(err).Msg("Account login budget check failed")
		return nil, apierrors.NewInternal()
	}
	if limited := LimitedFromResult(res); limited != nil {
		s.loginFailed(req, user.ID, "account locked")
		metrics.RateLimitedTotal.WithLabelValues("login").Inc()
		logger.Warn().Str("user_id", user.ID).Time("locked_until", res.ResetAt).Msg("Login refused for locked account")
		return nil, limited
	}

	if err := s.passwords.Verify(user.PasswordHash, req.Password); err != nil {
		s.loginFailed(req, user.ID, "wrong password")
		failed, err := s.limiter.TrackFailedLogin(ctx, user.ID)
		if err != nil {
			logger.Error().Err(err).Msg("Tracking failed login failed")
			return nil, apierrors.NewInternal()
		}
		if failed.Locked {
			metrics.AccountLockoutsTotal.Inc()
			audit.Record(audit.Event{
				Action:  audit.ActionAccountLockout,
				User:    user.ID,
				Target:  ratelimit.UserKey(user.ID),
				Details: "too many failed logins",
				IP:      req.IP,
				Success: true,
			})
		}
		return nil, apierrors.NewUnauthenticated(MsgInvalidCredentials)
	}

	if err := s.limiter.ClearFailedLogins(ctx, user.ID); err != nil {
		logger.Error().Err(err).Msg("Clearing failed logins failed")
		return nil, apierrors.NewInternal()
	}

	sessionID, err := s.openSession(ctx, user, req)
	if err != nil {
		logger.Error().Err(err).Str("user_id", user.ID).Msg("Opening session failed")
		return nil, apierrors.NewInternal()
	}

	raw, err := s.issue(user, sessionID)
	if err != nil {
		logger.Error().Err(err).Msg("Token issue failed")
		return nil, apierrors.NewInternal()
	}

	metrics.LoginSuccessTotal.Inc()
	metrics.SessionsCreatedTotal.Inc()
	audit.Record(audit.Event{
		Action:  audit.ActionLogin,
		User:    user.ID,
		Target:  sessionID,
		IP:      req.IP,
		Success: true,
	})

	return &LoginResult{Token: raw, SessionID: sessionID, User: user}, nil
}

// openSession rotates the user's current session if there is one, so a
// new login always leaves a single live session.
func (s *Service) openSession(ctx context.Context, user *domain.User, req LoginRequest) (string, error) {
	if user.ActiveSessionID != "" {
		return s.sessions.Rotate(ctx, session.RotateParams{
			UserID:       user.ID,
			OldSessionID: user.ActiveSessionID,
			UserAgent:    req.UserAgent,
			IP:           req.IP,
			TenantID:     user.TenantID,
		})
	}
	return s.sessions.Create(ctx, session.CreateParams{
		UserID:    user.ID,
		UserAgent: req.UserAgent,
		IP:        req.IP,
		TenantID:  user.TenantID,
	})
}

func (s *Service) loginFailed(req LoginRequest, userID, details string) {
	metrics.LoginFailureTotal.Inc()
	audit.Record(audit.Event{
		Action:  audit.ActionLogin,
		User:    userID,
		Target:  req.Email,
		Details: details,
		IP:      req.IP,
	})
}

func (s *Service) issue(user *domain.User, sessionID string) (string, error) {
	return s.tokens.Issue(token.Claims{
		UserID:    user.ID,
		Email:     user.Email,
		Role:      string(user.Role),
		SessionID: sessionID,
	})
}

// Logout deletes the caller's session.
func (s *Service) Logout(ctx context.Context, ac *domain.AuthContext) error {
	if err := s.sessions.Delete(ctx, ac.SessionID); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("session_id", ac.SessionID).Msg("Logout failed")
		return apierrors.NewInternal()
	}
	audit.Record(audit.Event{
		Action:  audit.ActionLogout,
		User:    ac.UserID,
		Target:  ac.SessionID,
		Success: true,
	})
	return nil
}

// RefreshResult is a rotated session and its new token.
type RefreshResult struct {
	Token     string
	SessionID string
}

// Refresh rotates the caller's session, keeping its tenant, and issues a
// new token for it. Used after privilege changes.
func (s *Service) Refresh(ctx context.Context, ac *domain.AuthContext, ip, userAgent string) (*RefreshResult, error) {
	sessionID, err := s.sessions.Rotate(ctx, session.RotateParams{
		UserID:       ac.UserID,
		OldSessionID: ac.SessionID,
		UserAgent:    userAgent,
		IP:           ip,
		TenantID:     ac.TenantID,
	})
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("session_id", ac.SessionID).Msg("Session rotation failed")
		return nil, apierrors.NewInternal()
	}

	user := ac.User
	if user == nil {
		user = &domain.User{ID: ac.UserID, Email: ac.Email, Role: ac.Role}
	}
	raw, err := s.issue(user, sessionID)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("Token issue failed")
		return nil, apierrors.NewInternal()
	}

	metrics.SessionsCreatedTotal.Inc()
	audit.Record(audit.Event{
		Action:  audit.ActionSessionRotate,
		User:    ac.UserID,
		Target:  sessionID,
		Details: "from " + ac.SessionID,
		IP:      ip,
		Success: true,
	})

	return &RefreshResult{Token: raw, SessionID: sessionID}, nil
}
