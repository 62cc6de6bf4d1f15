package audit

import (
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Actions recorded by the auth layer.
const (
	ActionLogin          = "login"
	ActionLogout         = "logout"
	ActionSessionRotate  = "session.rotate"
	ActionSessionReject  = "session.reject"
	ActionAccountLockout = "account.lockout"
	ActionAccountUnlock  = "account.unlock"
	ActionSessionRevoke  = "session.revoke"
	ActionUserCreate     = "user.create"
)

// Event represents an audit log event.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
	Action    string    `json:"action"`
	User      string    `json:"user,omitempty"`
	Target    string    `json:"target,omitempty"` // session id, route or key
	Details   string    `json:"details,omitempty"`
	IP        string    `json:"ip,omitempty"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
}

var (
	mu          sync.RWMutex
	auditLogger = log.Output(os.Stdout).With().Logger()
)

// SetOutput redirects audit events, e.g. to a file or a test buffer.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	auditLogger = zerolog.New(w)
}

// Record writes ev. A zero Timestamp is filled in.
func Record(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if ev.Service == "" {
		ev.Service = "hospital-gate"
	}

	mu.RLock()
	logger := auditLogger
	mu.RUnlock()

	entry, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal audit event to JSON")
		logger.Error().
			Str("action", ev.Action).
			Str("user", ev.User).
			Str("target", ev.Target).
			Bool("success", ev.Success).
			Msg("Audit Log (fallback)")
		return
	}
	logger.Log().RawJSON("audit_event", entry).Msg("")
}

// Log records an audit event from its parts.
func Log(action, user, target, details string, success bool, err error) {
	ev := Event{
		Action:  action,
		User:    user,
		Target:  target,
		Details: details,
		Success: success,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	Record(ev)
}
