package domain

// Role is a user's position in the group → hospital hierarchy.
type Role string

const (
	RoleAdmin         Role = "admin" // platform admin, unrestricted scope
	RoleGroupAdmin    Role = "group-admin"
	RoleHospitalAdmin Role = "hospital-admin"
	RoleSupervisor    Role = "supervisor"
	RoleStaff         Role = "staff"
	RoleViewer        Role = "viewer"
)

var roles = []Role{RoleAdmin, RoleGroupAdmin, RoleHospitalAdmin, RoleSupervisor, RoleStaff, RoleViewer}

// Roles lists every known role, most privileged first.
func Roles() []Role {
	return append([]Role(nil), roles...)
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	for _, known := range roles {
		if r == known {
			return true
		}
	}
	return false
}
