package auth_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pilab-dev/hospital-gate/auth"
	"github.com/pilab-dev/hospital-gate/domain"
	apierrors "github.com/pilab-dev/hospital-gate/errors"
	"github.com/pilab-dev/hospital-gate/session"
	"github.com/pilab-dev/hospital-gate/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func requireUnauthenticated(t *testing.T, err error, message string) {
	t.Helper()
	ae, ok := apierrors.AsAuthError(err)
	require.True(t, ok, "expected AuthError, got %v", err)
	assert.Equal(t, http.StatusUnauthorized, ae.Status)
	assert.Equal(t, message, ae.Message)
}

func TestAuthenticate_Success(t *testing.T) {
	f := newFixture(t)
	res := f.login(t)

	ac, err := f.gate.Authenticate(context.Background(), requestWithToken(res.Token))
	require.NoError(t, err)

	assert.Equal(t, "u1", ac.UserID)
	assert.Equal(t, domain.RoleStaff, ac.Role)
	assert.Equal(t, "t1", ac.TenantID)
	assert.Equal(t, res.SessionID, ac.SessionID)
	assert.Equal(t, "G1", ac.GroupID)
	assert.Equal(t, "H1", ac.HospitalID)
}

func TestAuthenticate_TokenOnlyFromCookie(t *testing.T) {
	f := newFixture(t)
	res := f.login(t)

	r := httptest.NewRequest(http.MethodGet, "/api/auth/me?token="+res.Token, nil)
	r.Header.Set("Authorization", "Bearer "+res.Token)

	_, err := f.gate.Authenticate(context.Background(), r)
	requireUnauthenticated(t, err, auth.MsgNoToken)
}

func TestAuthenticate_InvalidToken(t *testing.T) {
	f := newFixture(t)
	_, err := f.gate.Authenticate(context.Background(), requestWithToken("not-a-jwt"))
	requireUnauthenticated(t, err, auth.MsgInvalidToken)
}

func TestAuthenticate_TenantFromSessionNotToken(t *testing.T) {
	f := newFixture(t)
	res := f.login(t)

	forged, err := f.tokens.Issue(token.Claims{
		UserID:    "u1",
		SessionID: res.SessionID,
		TenantID:  "someone-else",
	})
	require.NoError(t, err)

	ac, err := f.gate.Authenticate(context.Background(), requestWithToken(forged))
	require.NoError(t, err)
	assert.Equal(t, "t1", ac.TenantID)
}

func TestAuthenticate_TokenWithoutSession(t *testing.T) {
	f := newFixture(t)
	raw, err := f.tokens.Issue(token.Claims{UserID: "u1"})
	require.NoError(t, err)

	_, err = f.gate.Authenticate(context.Background(), requestWithToken(raw))
	requireUnauthenticated(t, err, auth.MsgNoSessionTenant)
}

func TestAuthenticate_SessionWithoutTenant(t *testing.T) {
	f := newFixture(t, domain.User{ID: "u1", Email: "nurse@example.com", Role: domain.RoleStaff, IsActive: true})
	res := f.login(t)

	_, err := f.gate.Authenticate(context.Background(), requestWithToken(res.Token))
	requireUnauthenticated(t, err, auth.MsgNoSessionTenant)
}

func TestAuthenticate_ExpiredSessionIsGeneric(t *testing.T) {
	tests := []struct {
		name    string
		advance time.Duration
	}{
		{name: "idle", advance: 31 * time.Minute},
		{name: "absolute", advance: 25 * time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			res := f.login(t)
			f.advance(tt.advance)

			_, err := f.gate.Authenticate(context.Background(), requestWithToken(res.Token))
			requireUnauthenticated(t, err, auth.MsgSessionExpired)
		})
	}
}

func TestAuthenticate_SupersededByNewLogin(t *testing.T) {
	f := newFixture(t)
	first := f.login(t)
	second := f.login(t)

	_, err := f.gate.Authenticate(context.Background(), requestWithToken(first.Token))
	requireUnauthenticated(t, err, auth.MsgSessionExpired)

	_, err = f.gate.Authenticate(context.Background(), requestWithToken(second.Token))
	assert.NoError(t, err)
}

func TestAuthenticate_InactiveUser(t *testing.T) {
	f := newFixture(t)
	res := f.login(t)

	u, err := f.users.GetUserByID(context.Background(), "u1")
	require.NoError(t, err)
	u.IsActive = false
	f.users.Put(*u)

	_, err = f.gate.Authenticate(context.Background(), requestWithToken(res.Token))
	requireUnauthenticated(t, err, auth.MsgUserInactive)
}

func TestAuthenticate_StoreErrorIs500(t *testing.T) {
	f := newFixture(t)
	raw, err := f.tokens.Issue(token.Claims{UserID: "u1", SessionID: "s1"})
	require.NoError(t, err)

	sessions := &mockSessions{}
	sessions.On("Validate", mock.Anything, "u1", "s1").
		Return(session.Validation{}, fmt.Errorf("%w: connection refused", session.ErrStore))

	gate := auth.NewGate(cookieName, f.tokens, sessions, f.users)
	_, err = gate.Authenticate(context.Background(), requestWithToken(raw))

	assert.Equal(t, http.StatusInternalServerError, apierrors.StatusOf(err))
	ae, _ := apierrors.AsAuthError(err)
	assert.NotContains(t, ae.Message, "connection refused")
	sessions.AssertExpectations(t)
}

func TestAuthenticate_SessionVanishedAfterValidation(t *testing.T) {
	f := newFixture(t)
	raw, err := f.tokens.Issue(token.Claims{UserID: "u1", SessionID: "s1"})
	require.NoError(t, err)

	sessions := &mockSessions{}
	sessions.On("Validate", mock.Anything, "u1", "s1").Return(session.Validation{Valid: true, Reason: session.ReasonNone}, nil)
	sessions.On("Get", mock.Anything, "s1").Return(nil, domain.ErrSessionNotFound)

	gate := auth.NewGate(cookieName, f.tokens, sessions, f.users)
	_, err = gate.Authenticate(context.Background(), requestWithToken(raw))
	requireUnauthenticated(t, err, auth.MsgSessionExpired)
}

func TestValidateTenantIsolation(t *testing.T) {
	ac := &domain.AuthContext{TenantID: "t1"}

	assert.True(t, auth.ValidateTenantIsolation(ac, ""))
	assert.True(t, auth.ValidateTenantIsolation(ac, "t1"))
	assert.False(t, auth.ValidateTenantIsolation(ac, "t2"))
	assert.False(t, auth.ValidateTenantIsolation(nil, "t1"))
}

func TestRequestHelpers(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/x?tenantId=%20t9%20", nil)
	r.RemoteAddr = "192.0.2.10:5555"

	assert.Equal(t, "t9", auth.RequestedTenantID(r))
	assert.Equal(t, "192.0.2.10", auth.RequestIP(r))

	r.Header.Set("X-Real-IP", "198.51.100.7")
	assert.Equal(t, "198.51.100.7", auth.RequestIP(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	assert.Equal(t, "203.0.113.5", auth.RequestIP(r))

	r.Header.Del("User-Agent")
	assert.Equal(t, "unknown", auth.RequestUserAgent(r))
	r.Header.Set("User-Agent", "ward-tablet")
	assert.Equal(t, "ward-tablet", auth.RequestUserAgent(r))
}

func TestAuthenticate_RecordsLatency(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	prev := otel.GetMeterProvider()
	otel.SetMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	t.Cleanup(func() { otel.SetMeterProvider(prev) })

	f := newFixture(t)
	_, err := f.gate.Authenticate(context.Background(), requestWithToken(""))
	require.Error(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	var hist metricdata.Histogram[float64]
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == "hgate.auth.duration" {
				hist, _ = m.Data.(metricdata.Histogram[float64])
			}
		}
	}
	require.Len(t, hist.DataPoints, 1)
	assert.EqualValues(t, 1, hist.DataPoints[0].Count)

	outcome, ok := hist.DataPoints[0].Attributes.Value("outcome")
	require.True(t, ok)
	assert.Equal(t, "denied", outcome.AsString())
}
