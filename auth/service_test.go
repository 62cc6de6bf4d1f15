package auth_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/pilab-dev/hospital-gate/auth"
	"github.com/pilab-dev/hospital-gate/domain"
	apierrors "github.com/pilab-dev/hospital-gate/errors"
	"github.com/pilab-dev/hospital-gate/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loginWith(f *fixture, email, pw, ip string) (*auth.LoginResult, error) {
	return f.svc.Login(context.Background(), auth.LoginRequest{Email: email, Password: pw, IP: ip, UserAgent: "test"})
}

func TestLogin_Success(t *testing.T) {
	f := newFixture(t)
	res := f.login(t)

	assert.NotEmpty(t, res.Token)
	assert.NotEmpty(t, res.SessionID)
	assert.Equal(t, "u1", res.User.ID)

	claims, err := f.tokens.Verify(res.Token)
	require.NoError(t, err)
	assert.Equal(t, res.SessionID, claims.SessionID)
	assert.Empty(t, claims.TenantID, "tenant is never put into the token")

	u, err := f.users.GetUserByID(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, res.SessionID, u.ActiveSessionID)
}

func TestLogin_EmailIsCaseInsensitive(t *testing.T) {
	f := newFixture(t)
	_, err := loginWith(f, "  Nurse@Example.COM ", password, "10.0.0.1")
	assert.NoError(t, err)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	f := newFixture(t)

	for name, email := range map[string]string{"unknown user": "ghost@example.com", "empty": ""} {
		t.Run(name, func(t *testing.T) {
			_, err := loginWith(f, email, password, "10.0.0.2")
			requireUnauthenticated(t, err, auth.MsgInvalidCredentials)
		})
	}

	_, err := loginWith(f, "nurse@example.com", "wrong", "10.0.0.2")
	requireUnauthenticated(t, err, auth.MsgInvalidCredentials)
}

func TestLogin_InactiveUser(t *testing.T) {
	f := newFixture(t, domain.User{ID: "u1", Email: "nurse@example.com", TenantID: "t1"})
	_, err := loginWith(f, "nurse@example.com", password, "10.0.0.1")
	requireUnauthenticated(t, err, auth.MsgInvalidCredentials)
}

func TestLogin_LockoutAfterFailedPasswords(t *testing.T) {
	f := newFixture(t)

	// Distinct IPs keep the per-IP login budget out of the way.
	for _, ip := range []string{"10.0.1.1", "10.0.1.2", "10.0.1.3"} {
		_, err := loginWith(f, "nurse@example.com", "wrong", ip)
		requireUnauthenticated(t, err, auth.MsgInvalidCredentials)
	}

	locked, err := f.limiter.IsAccountLocked(context.Background(), ratelimit.UserKey("u1"))
	require.NoError(t, err)
	assert.True(t, locked)

	_, err = loginWith(f, "nurse@example.com", password, "10.0.1.4")
	assert.Equal(t, http.StatusLocked, apierrors.StatusOf(err))

	var limited *auth.LimitedError
	require.True(t, errors.As(err, &limited))
	assert.True(t, limited.Result.Locked)
	assert.Equal(t, f.now.Add(30*time.Minute), limited.Result.ResetAt)

	f.advance(31 * time.Minute)
	_, err = loginWith(f, "nurse@example.com", password, "10.0.1.5")
	assert.NoError(t, err)
}

func TestLogin_SuccessClearsFailures(t *testing.T) {
	f := newFixture(t)

	for _, ip := range []string{"10.0.2.1", "10.0.2.2"} {
		_, err := loginWith(f, "nurse@example.com", "wrong", ip)
		require.Error(t, err)
	}
	_, err := loginWith(f, "nurse@example.com", password, "10.0.2.3")
	require.NoError(t, err)

	// Two more failures stay below the lockout threshold of three.
	for _, ip := range []string{"10.0.2.4", "10.0.2.5"} {
		_, err := loginWith(f, "nurse@example.com", "wrong", ip)
		require.Error(t, err)
	}
	locked, err := f.limiter.IsAccountLocked(context.Background(), ratelimit.UserKey("u1"))
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestLogin_AccountBudgetEscalatesToLock(t *testing.T) {
	f := newFixture(t)
	store := ratelimit.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })
	f.limiter = ratelimit.New(store, ratelimit.Config{
		Login:            ratelimit.Limit{MaxAttempts: 2, Window: 15 * time.Minute},
		LockoutMaxFailed: 10,
		LockoutDuration:  30 * time.Minute,
	}, ratelimit.WithClock(f.clock))
	f.svc = auth.NewService(f.users, f.mgr, f.tokens, f.limiter, passwordHasher())

	for _, ip := range []string{"10.0.4.1", "10.0.4.2"} {
		_, err := loginWith(f, "nurse@example.com", "wrong", ip)
		requireUnauthenticated(t, err, auth.MsgInvalidCredentials)
	}

	_, err := loginWith(f, "nurse@example.com", password, "10.0.4.3")
	assert.Equal(t, http.StatusLocked, apierrors.StatusOf(err))

	locked, err := f.limiter.IsAccountLocked(context.Background(), ratelimit.UserKey("u1"))
	require.NoError(t, err)
	assert.True(t, locked)
}

func TestLogin_RateLimitedByIP(t *testing.T) {
	f := newFixture(t, domain.User{ID: "u1", Email: "nurse@example.com", TenantID: "t1", IsActive: true})

	for i := 0; i < 5; i++ {
		_, err := loginWith(f, "ghost@example.com", "x", "10.0.3.1")
		requireUnauthenticated(t, err, auth.MsgInvalidCredentials)
	}

	_, err := loginWith(f, "nurse@example.com", password, "10.0.3.1")
	assert.Equal(t, http.StatusTooManyRequests, apierrors.StatusOf(err))

	var limited *auth.LimitedError
	require.True(t, errors.As(err, &limited))
	assert.False(t, limited.Result.Allowed)
	assert.False(t, limited.Result.ResetAt.IsZero())

	_, err = loginWith(f, "nurse@example.com", password, "10.0.3.2")
	assert.NoError(t, err)
}

func TestLogout(t *testing.T) {
	f := newFixture(t)
	res := f.login(t)

	ac, err := f.gate.Authenticate(context.Background(), requestWithToken(res.Token))
	require.NoError(t, err)
	require.NoError(t, f.svc.Logout(context.Background(), ac))

	_, err = f.gate.Authenticate(context.Background(), requestWithToken(res.Token))
	requireUnauthenticated(t, err, auth.MsgSessionExpired)
}

func TestRefresh_RotatesAndKeepsTenant(t *testing.T) {
	f := newFixture(t)
	res := f.login(t)

	ac, err := f.gate.Authenticate(context.Background(), requestWithToken(res.Token))
	require.NoError(t, err)

	refreshed, err := f.svc.Refresh(context.Background(), ac, "10.0.0.1", "test")
	require.NoError(t, err)
	assert.NotEqual(t, res.SessionID, refreshed.SessionID)

	_, err = f.gate.Authenticate(context.Background(), requestWithToken(res.Token))
	requireUnauthenticated(t, err, auth.MsgSessionExpired)

	next, err := f.gate.Authenticate(context.Background(), requestWithToken(refreshed.Token))
	require.NoError(t, err)
	assert.Equal(t, "t1", next.TenantID)
	assert.Equal(t, refreshed.SessionID, next.SessionID)
}
