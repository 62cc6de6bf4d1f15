package domain

import "time"

// User is the subset of the user document the auth layer reads.
// Only ActiveSessionID and UpdatedAt are ever written from here.
type User struct {
	ID              string    `bson:"id" json:"id"`
	Email           string    `bson:"email" json:"email"`
	PasswordHash    string    `bson:"password" json:"-"`
	FirstName       string    `bson:"firstName,omitempty" json:"firstName,omitempty"`
	LastName        string    `bson:"lastName,omitempty" json:"lastName,omitempty"`
	Role            Role      `bson:"role" json:"role"`
	Permissions     []string  `bson:"permissions,omitempty" json:"permissions"`
	GroupID         string    `bson:"groupId,omitempty" json:"groupId,omitempty"`
	HospitalID      string    `bson:"hospitalId,omitempty" json:"hospitalId,omitempty"`
	TenantID        string    `bson:"tenantId,omitempty" json:"tenantId,omitempty"`
	IsActive        bool      `bson:"isActive" json:"isActive"`
	ActiveSessionID string    `bson:"activeSessionId,omitempty" json:"-"`
	UpdatedAt       time.Time `bson:"updatedAt,omitempty" json:"updatedAt,omitempty"`
}
