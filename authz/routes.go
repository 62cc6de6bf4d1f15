package authz

// RouteRequirement is the result of looking a route up in the route table.
// It is either Mapped or Unmapped; Unmapped always denies.
type RouteRequirement interface {
	isRouteRequirement()
}

// Mapped routes require Permission.
type Mapped struct {
	Permission string
}

// Unmapped routes are not configured and are never allowed.
type Unmapped struct {
	Route string
}

func (Mapped) isRouteRequirement()   {}
func (Unmapped) isRouteRequirement() {}

// routePermissions maps page routes to the permission needed to open them.
var routePermissions = map[string]string{
	"/dashboard":                         "dashboard.view",
	"/notifications":                     "notifications.view",
	"/opd/dashboard":                     "opd.dashboard.view",
	"/opd/clinic-daily-census":           "opd.census.view",
	"/opd/dept-view":                     "opd.performance.view",
	"/opd/clinic-utilization":            "opd.utilization.view",
	"/opd/daily-data-entry":              "opd.daily-data-entry.view",
	"/opd/import-data":                   "opd.import-data.view",
	"/scheduling/scheduling":             "scheduling.view",
	"/scheduling/availability":           "scheduling.availability.view",
	"/er/register":                       "er.register.view",
	"/er/triage":                         "er.triage.view",
	"/er/disposition":                    "er.disposition.view",
	"/er/progress-note":                  "er.progress-note.view",
	"/patient-experience/dashboard":      "px.dashboard.view",
	"/patient-experience/analytics":      "px.analytics.view",
	"/patient-experience/reports":        "px.reports.view",
	"/patient-experience/visits":         "px.visits.view",
	"/patient-experience/visit":          "px.visits.create",
	"/patient-experience/cases":          "px.cases.view",
	"/patient-experience/setup":          "px.setup.view",
	"/patient-experience/seed-data":      "px.seed-data",
	"/patient-experience/delete-all-data": "px.delete-data",
	"/ipd/bed-setup":                     "ipd.bed-setup.view",
	"/ipd/live-beds":                     "ipd.live-beds.view",
	"/ipd/inpatient-dept-input":          "ipd.dept-input.view",
	"/equipment/master":                  "equipment.opd.master.view",
	"/equipment/clinic-map":              "equipment.opd.clinic-map.view",
	"/equipment/checklist":               "equipment.opd.checklist.view",
	"/equipment/movements":               "equipment.opd.movements.view",
	"/ipd-equipment/map":                 "equipment.ipd.map.view",
	"/ipd-equipment/daily-checklist":     "equipment.ipd.checklist.view",
	"/opd/manpower-overview":             "manpower.overview.view",
	"/opd/manpower-edit":                 "manpower.edit.view",
	"/opd/nursing-scheduling":            "nursing.scheduling.view",
	"/nursing/operations":                "nursing.operations.view",
	"/policies/upload":                   "policies.upload.view",
	"/policies":                          "policies.view",
	"/ai/policy-assistant":               "policies.assistant.view",
	"/ai/new-policy-from-scratch":        "policies.create.view",
	"/ai/policy-harmonization":           "policies.harmonization.view",
	"/admin/data-admin":                  "admin.data-admin.view",
	"/admin/users":                       "admin.users.view",
	"/admin/structure-management":        "admin.structure-management.view",
	"/admin/delete-sample-data":          "admin.delete-sample-data",
	"/account":                           "account.view",
}

// LookupRoute returns the requirement of route. Routes are matched exactly.
func LookupRoute(route string) RouteRequirement {
	if perm, ok := routePermissions[route]; ok && perm != "" {
		return Mapped{Permission: perm}
	}
	return Unmapped{Route: route}
}

// Routes returns a copy of the route table.
func Routes() map[string]string {
	out := make(map[string]string, len(routePermissions))
	for k, v := range routePermissions {
		out[k] = v
	}
	return out
}
