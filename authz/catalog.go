package authz

import "github.com/pilab-dev/hospital-gate/domain"

// SuperPermission satisfies every permission check.
const SuperPermission = "admin.users"

// Permission is one entry of the permission catalog.
type Permission struct {
	Key      string `json:"key"`
	Label    string `json:"label"`
	Category string `json:"category"`
}

// pagePermissions generates the view/create/edit/delete keys of a page.
func pagePermissions(pageKey, pageLabel, category string) []Permission {
	return []Permission{
		{Key: pageKey + ".view", Label: "View " + pageLabel, Category: category},
		{Key: pageKey + ".create", Label: "Create " + pageLabel, Category: category},
		{Key: pageKey + ".edit", Label: "Edit " + pageLabel, Category: category},
		{Key: pageKey + ".delete", Label: "Delete " + pageLabel, Category: category},
	}
}

func concat(groups ...[]Permission) []Permission {
	var out []Permission
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

// catalog lists every permission known to the system.
var catalog = concat(
	[]Permission{{Key: "dashboard.view", Label: "View Dashboard", Category: "Dashboard"}},

	pagePermissions("notifications", "Notifications", "Notifications"),

	pagePermissions("opd.dashboard", "OPD Dashboard", "OPD"),
	pagePermissions("opd.census", "Clinic Census", "OPD"),
	pagePermissions("opd.performance", "Performance Comparison", "OPD"),
	pagePermissions("opd.utilization", "Clinic Utilization", "OPD"),
	pagePermissions("opd.daily-data-entry", "Daily Data Entry", "OPD"),
	pagePermissions("opd.import-data", "OPD Import Data", "OPD"),

	pagePermissions("scheduling", "Schedule", "Scheduling"),
	pagePermissions("scheduling.availability", "Availability", "Scheduling"),

	pagePermissions("er.register", "ER Patient Registration", "ER"),
	pagePermissions("er.triage", "ER Triage", "ER"),
	pagePermissions("er.disposition", "ER Disposition", "ER"),
	pagePermissions("er.progress-note", "ER Progress Note", "ER"),

	pagePermissions("px.dashboard", "PX Dashboard", "Patient Experience"),
	pagePermissions("px.analytics", "PX Analytics", "Patient Experience"),
	pagePermissions("px.reports", "PX Reports", "Patient Experience"),
	pagePermissions("px.visits", "PX Visits", "Patient Experience"),
	pagePermissions("px.cases", "PX Cases", "Patient Experience"),
	pagePermissions("px.setup", "PX Setup", "Patient Experience"),
	[]Permission{
		{Key: "px.seed-data", Label: "PX Seed Data", Category: "Patient Experience"},
		{Key: "px.delete-data", Label: "PX Delete Data", Category: "Patient Experience"},
	},

	pagePermissions("ipd.bed-setup", "IPD Bed Setup", "IPD"),
	pagePermissions("ipd.live-beds", "IPD Live Beds", "IPD"),
	pagePermissions("ipd.dept-input", "IPD Department Input", "IPD"),

	pagePermissions("equipment.opd.master", "Equipment Master", "Equipment (OPD)"),
	pagePermissions("equipment.opd.clinic-map", "Equipment Clinic Map", "Equipment (OPD)"),
	pagePermissions("equipment.opd.checklist", "Equipment Checklist", "Equipment (OPD)"),
	pagePermissions("equipment.opd.movements", "Equipment Movements", "Equipment (OPD)"),

	pagePermissions("equipment.ipd.map", "IPD Equipment Map", "Equipment (IPD)"),
	pagePermissions("equipment.ipd.checklist", "IPD Daily Checklist", "Equipment (IPD)"),

	pagePermissions("manpower.overview", "Manpower Overview", "Manpower & Nursing"),
	pagePermissions("manpower.edit", "Manpower Edit", "Manpower & Nursing"),
	pagePermissions("nursing.scheduling", "Nursing Scheduling", "Manpower & Nursing"),
	pagePermissions("nursing.operations", "Nursing Operations", "Manpower & Nursing"),

	pagePermissions("policies.upload", "Upload Policy", "Policy System"),
	pagePermissions("policies", "Policy Library", "Policy System"),
	pagePermissions("policies.assistant", "Policy Assistant", "Policy System"),
	pagePermissions("policies.create", "New Policy Creator", "Policy System"),
	pagePermissions("policies.harmonization", "Policy Harmonization", "Policy System"),

	pagePermissions("admin.data-admin", "Data Admin", "Admin"),
	pagePermissions("admin.users", "User Management", "Admin"),
	pagePermissions("admin.structure-management", "Structure Management", "Admin"),
	[]Permission{{Key: "admin.delete-sample-data", Label: "Delete Sample Data", Category: "Admin"}},

	pagePermissions("account", "Account", "Account"),
)

// Catalog returns a copy of the permission catalog.
func Catalog() []Permission {
	return append([]Permission(nil), catalog...)
}

// IsKnownPermission reports whether key is in the catalog.
func IsKnownPermission(key string) bool {
	for _, p := range catalog {
		if p.Key == key {
			return true
		}
	}
	return false
}

// PermissionKeysByCategory returns the keys of one category, e.g. "OPD".
func PermissionKeysByCategory(category string) []string {
	var keys []string
	for _, p := range catalog {
		if p.Category == category {
			keys = append(keys, p.Key)
		}
	}
	return keys
}

// PermissionsByCategory groups the catalog by category.
func PermissionsByCategory() map[string][]Permission {
	grouped := make(map[string][]Permission)
	for _, p := range catalog {
		grouped[p.Category] = append(grouped[p.Category], p)
	}
	return grouped
}

var roleDefaults = map[domain.Role][]string{
	domain.RoleSupervisor: {
		"dashboard.view",
		"notifications.view", "notifications.create", "notifications.edit", "notifications.delete",
		"opd.census.view", "opd.census.create", "opd.census.edit", "opd.census.delete",
		"opd.performance.view",
		"opd.utilization.view",
		"opd.daily-data-entry.view", "opd.daily-data-entry.create", "opd.daily-data-entry.edit",
		"scheduling.view", "scheduling.create", "scheduling.edit", "scheduling.delete",
		"scheduling.availability.view", "scheduling.availability.create", "scheduling.availability.edit",
		"er.register.view", "er.register.create", "er.register.edit",
		"er.triage.view", "er.triage.create", "er.triage.edit",
		"er.disposition.view", "er.disposition.create", "er.disposition.edit",
		"er.progress-note.view", "er.progress-note.create", "er.progress-note.edit",
		"px.dashboard.view",
		"px.analytics.view",
		"px.reports.view",
		"px.visits.view", "px.visits.create", "px.visits.edit", "px.visits.delete",
		"px.cases.view", "px.cases.create", "px.cases.edit", "px.cases.delete",
		"px.setup.view", "px.setup.edit",
		"ipd.bed-setup.view", "ipd.bed-setup.create", "ipd.bed-setup.edit",
		"ipd.live-beds.view",
		"ipd.dept-input.view", "ipd.dept-input.create", "ipd.dept-input.edit",
		"equipment.opd.master.view", "equipment.opd.master.create", "equipment.opd.master.edit",
		"equipment.opd.clinic-map.view", "equipment.opd.clinic-map.edit",
		"equipment.opd.checklist.view", "equipment.opd.checklist.create", "equipment.opd.checklist.edit",
		"equipment.opd.movements.view", "equipment.opd.movements.create",
		"equipment.ipd.map.view", "equipment.ipd.map.edit",
		"equipment.ipd.checklist.view", "equipment.ipd.checklist.create", "equipment.ipd.checklist.edit",
		"manpower.overview.view",
		"manpower.edit.view", "manpower.edit.create", "manpower.edit.edit",
		"nursing.scheduling.view", "nursing.scheduling.create", "nursing.scheduling.edit",
		"nursing.operations.view", "nursing.operations.create", "nursing.operations.edit",
		"policies.view",
		"account.view", "account.edit",
	},
	domain.RoleStaff: {
		"dashboard.view",
		"notifications.view",
		"opd.census.view",
		"opd.daily-data-entry.view", "opd.daily-data-entry.create",
		"scheduling.view",
		"er.register.view", "er.register.create",
		"er.triage.view", "er.triage.create",
		"px.visits.view", "px.visits.create",
		"equipment.opd.checklist.view", "equipment.opd.checklist.create",
		"equipment.ipd.checklist.view", "equipment.ipd.checklist.create",
		"policies.view",
		"account.view", "account.edit",
	},
	domain.RoleViewer: {
		"dashboard.view",
		"opd.census.view",
		"policies.view",
		"account.view",
	},
}

// DefaultPermissionsForRole returns the permissions a new user of role gets.
// Platform admins get the whole catalog; unknown roles get nothing.
func DefaultPermissionsForRole(role domain.Role) []string {
	if role == domain.RoleAdmin {
		keys := make([]string, 0, len(catalog))
		for _, p := range catalog {
			keys = append(keys, p.Key)
		}
		return keys
	}
	return append([]string(nil), roleDefaults[role]...)
}
