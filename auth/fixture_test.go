package auth_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pilab-dev/hospital-gate/auth"
	"github.com/pilab-dev/hospital-gate/domain"
	"github.com/pilab-dev/hospital-gate/internal/audit"
	passwords "github.com/pilab-dev/hospital-gate/internal/auth"
	"github.com/pilab-dev/hospital-gate/memory"
	"github.com/pilab-dev/hospital-gate/ratelimit"
	"github.com/pilab-dev/hospital-gate/session"
	"github.com/pilab-dev/hospital-gate/token"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	cookieName = "auth-token"
	password   = "s3cret-passw0rd"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type fixture struct {
	now      time.Time
	users    *memory.UserRepository
	sessions *memory.SessionRepository
	mgr      *session.Manager
	tokens   *token.Manager
	limiter  *ratelimit.Limiter
	gate     *auth.Gate
	svc      *auth.Service
}

func (f *fixture) clock() time.Time { return f.now }

func (f *fixture) advance(d time.Duration) { f.now = f.now.Add(d) }

func newFixture(t *testing.T, users ...domain.User) *fixture {
	t.Helper()
	audit.SetOutput(io.Discard)

	hasher := passwordHasher()
	hash, err := hasher.Hash(password)
	require.NoError(t, err)

	if len(users) == 0 {
		users = []domain.User{{
			ID:          "u1",
			Email:       "nurse@example.com",
			Role:        domain.RoleStaff,
			Permissions: []string{"dashboard.view"},
			GroupID:     "G1",
			HospitalID:  "H1",
			TenantID:    "t1",
			IsActive:    true,
		}}
	}
	for i := range users {
		if users[i].PasswordHash == "" {
			users[i].PasswordHash = hash
		}
	}

	f := &fixture{
		now:      time.Now().UTC(),
		users:    memory.NewUserRepository(users...),
		sessions: memory.NewSessionRepository(),
	}

	f.mgr = session.NewManager(f.sessions, f.users,
		session.Config{IdleTimeout: 30 * time.Minute, AbsoluteMaxAge: 24 * time.Hour},
		session.WithClock(f.clock))

	f.tokens, err = token.NewManager(token.Config{Secret: testSecret, Issuer: "test", TTL: 24 * time.Hour})
	require.NoError(t, err)

	store := ratelimit.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })
	f.limiter = ratelimit.New(store, ratelimit.Config{
		Login:            ratelimit.Limit{MaxAttempts: 5, Window: 15 * time.Minute},
		API:              ratelimit.Limit{MaxAttempts: 100, Window: time.Minute},
		LockoutMaxFailed: 3,
		LockoutDuration:  30 * time.Minute,
	}, ratelimit.WithClock(f.clock))

	f.gate = auth.NewGate(cookieName, f.tokens, f.mgr, f.users)
	f.svc = auth.NewService(f.users, f.mgr, f.tokens, f.limiter, hasher)
	return f
}

func passwordHasher() *passwords.BcryptPasswordHasher {
	return passwords.NewBcryptPasswordHasher(bcrypt.MinCost)
}

func (f *fixture) login(t *testing.T) *auth.LoginResult {
	t.Helper()
	res, err := f.svc.Login(context.Background(), auth.LoginRequest{
		Email: "nurse@example.com", Password: password, IP: "10.0.0.1", UserAgent: "test",
	})
	require.NoError(t, err)
	return res
}

func requestWithToken(raw string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	if raw != "" {
		r.AddCookie(&http.Cookie{Name: cookieName, Value: raw})
	}
	return r
}

type mockSessions struct {
	mock.Mock
}

func (m *mockSessions) Validate(ctx context.Context, userID, sessionID string) (session.Validation, error) {
	args := m.Called(ctx, userID, sessionID)
	return args.Get(0).(session.Validation), args.Error(1)
}

func (m *mockSessions) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	args := m.Called(ctx, sessionID)
	s, _ := args.Get(0).(*domain.Session)
	return s, args.Error(1)
}
