package domain

import "time"

// SessionRecord is the stored shape of a login session.
// Records written before idle/absolute timers existed carry only ExpiresAt;
// those decode with nil timer pointers.
type SessionRecord struct {
	SessionID         string     `bson:"sessionId"`
	UserID            string     `bson:"userId"`
	TenantID          string     `bson:"tenantId,omitempty"`
	CreatedAt         time.Time  `bson:"createdAt"`
	LastSeenAt        time.Time  `bson:"lastSeenAt"`
	LastActivityAt    *time.Time `bson:"lastActivityAt,omitempty"`
	ExpiresAt         time.Time  `bson:"expiresAt"`
	IdleExpiresAt     *time.Time `bson:"idleExpiresAt,omitempty"`
	AbsoluteExpiresAt *time.Time `bson:"absoluteExpiresAt,omitempty"`
	UserAgent         string     `bson:"userAgent,omitempty"`
	IP                string     `bson:"ip,omitempty"`
}

// SessionShape tells which lifetime rule applies to a session.
type SessionShape int

const (
	// ShapeLegacy sessions expire on ExpiresAt only.
	ShapeLegacy SessionShape = iota
	// ShapeTimed sessions carry both an idle and an absolute deadline.
	ShapeTimed
)

func (s SessionShape) String() string {
	if s == ShapeTimed {
		return "timed"
	}
	return "legacy"
}

// Session is a SessionRecord resolved into a single internal representation.
type Session struct {
	Shape SessionShape

	ID         string
	UserID     string
	TenantID   string
	CreatedAt  time.Time
	LastSeenAt time.Time
	ExpiresAt  time.Time
	UserAgent  string
	IP         string

	// Only meaningful when Shape == ShapeTimed.
	LastActivityAt    time.Time
	IdleExpiresAt     time.Time
	AbsoluteExpiresAt time.Time
}

// ResolveSession turns a stored record into a Session. A record is timed as
// soon as it carries either timer; a missing timer is derived from
// createdAt/lastActivityAt and the given lifetimes.
func ResolveSession(rec *SessionRecord, idleTimeout, absoluteMaxAge time.Duration) *Session {
	s := &Session{
		Shape:      ShapeLegacy,
		ID:         rec.SessionID,
		UserID:     rec.UserID,
		TenantID:   rec.TenantID,
		CreatedAt:  rec.CreatedAt,
		LastSeenAt: rec.LastSeenAt,
		ExpiresAt:  rec.ExpiresAt,
		UserAgent:  rec.UserAgent,
		IP:         rec.IP,
	}
	if rec.IdleExpiresAt == nil && rec.AbsoluteExpiresAt == nil {
		return s
	}

	s.Shape = ShapeTimed

	s.LastActivityAt = rec.LastSeenAt
	if rec.LastActivityAt != nil {
		s.LastActivityAt = *rec.LastActivityAt
	}

	if rec.AbsoluteExpiresAt != nil {
		s.AbsoluteExpiresAt = *rec.AbsoluteExpiresAt
	} else {
		s.AbsoluteExpiresAt = rec.CreatedAt.Add(absoluteMaxAge)
	}

	if rec.IdleExpiresAt != nil {
		s.IdleExpiresAt = *rec.IdleExpiresAt
	} else {
		s.IdleExpiresAt = s.LastActivityAt.Add(idleTimeout)
	}

	return s
}

// EarliestDeadline returns the earlier of two instants.
func EarliestDeadline(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

// SessionTouch is the set of fields written when a session is validated.
// Timer fields are nil for legacy sessions, which only get LastSeenAt.
type SessionTouch struct {
	LastSeenAt     time.Time
	LastActivityAt *time.Time
	IdleExpiresAt  *time.Time
	ExpiresAt      *time.Time
}
