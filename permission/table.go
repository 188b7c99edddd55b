// Package permission holds the capability table consulted by the edge gate
// and by handlers that need finer-grained checks. It replaces scattered
// per-handler role literals with a single role → allowed-capabilities lookup.
package permission

// Capability names a resource-action a role may perform.
type Capability string

const (
	CapAdminPanel       Capability = "admin.panel"
	CapManageIdentities Capability = "identities.manage"
	CapManageEnrollment Capability = "enrollment.manage"
	CapViewGrades       Capability = "grades.view"
	CapEditGrades       Capability = "grades.edit"
	CapViewAttendance   Capability = "attendance.view"
	CapEditAttendance   Capability = "attendance.edit"
	CapViewOwnChildren  Capability = "children.view"
	CapManageSessions   Capability = "sessions.manage"
)

// Role names match the role claim carried in access tokens.
const (
	RoleAdministrator = "administrator"
	RoleStaff         = "staff"
	RoleTeacher       = "teacher"
	RoleStudent       = "student"
	RoleParent        = "parent"
	RoleUser          = "user"
	RoleGuest         = "guest"
)

var table = map[string]map[Capability]struct{}{
	RoleAdministrator: caps(
		CapAdminPanel, CapManageIdentities, CapManageEnrollment,
		CapViewGrades, CapEditGrades, CapViewAttendance, CapEditAttendance,
		CapManageSessions,
	),
	RoleStaff: caps(
		CapAdminPanel, CapManageEnrollment,
		CapViewGrades, CapViewAttendance, CapManageSessions,
	),
	RoleTeacher: caps(
		CapViewGrades, CapEditGrades, CapViewAttendance, CapEditAttendance,
		CapManageSessions,
	),
	RoleStudent: caps(CapViewGrades, CapViewAttendance, CapManageSessions),
	RoleParent:  caps(CapViewOwnChildren, CapViewAttendance, CapManageSessions),
	RoleUser:    caps(CapManageSessions),
	RoleGuest:   caps(),
}

func caps(cs ...Capability) map[Capability]struct{} {
	m := make(map[Capability]struct{}, len(cs))
	for _, c := range cs {
		m[c] = struct{}{}
	}
	return m
}

// Allowed reports whether the named role holds the capability. Unknown roles
// hold nothing.
func Allowed(role string, cap Capability) bool {
	set, ok := table[role]
	if !ok {
		return false
	}
	_, ok = set[cap]
	return ok
}

// IsPrivileged reports whether the role may enter the administrative area.
// The gate redirects everyone else to the generic landing page rather than
// revealing that admin routes exist.
func IsPrivileged(role string) bool {
	return Allowed(role, CapAdminPanel)
}

// Known reports whether the role name is part of the fixed enumeration.
func Known(role string) bool {
	_, ok := table[role]
	return ok
}
