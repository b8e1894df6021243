package rbac

// Built-in role ids
const (
	RoleGuest          = "guest"
	RoleParent         = "parent"
	RoleStudent        = "student"
	RoleTeacher        = "teacher"
	RoleDepartmentHead = "department_head"
	RoleAdmin          = "admin"
)

// Built-in resources
const (
	ResourceCourse     = "course"
	ResourceAssignment = "assignment"
	ResourceGrade      = "grade"
	ResourceMessage    = "message"
	ResourceAnalytics  = "analytics"
	ResourceUser       = "user"
	ResourceReport     = "report"
)

// DefaultDefinition returns the built-in LMS permission and role tables.
// Each call returns a fresh copy that callers may extend before building a catalog.
func DefaultDefinition() *Definition {
	return &Definition{
		Permissions: []PermissionDefinition{
			{ID: "course.read", Resource: ResourceCourse, Action: "read", Name: "View courses"},
			{ID: "course.enroll", Resource: ResourceCourse, Action: "enroll", Name: "Enroll in courses"},
			{ID: "course.create", Resource: ResourceCourse, Action: "create", Name: "Create courses"},
			{ID: "course.update", Resource: ResourceCourse, Action: "update", Name: "Edit courses", Scoped: true},
			{ID: "course.publish", Resource: ResourceCourse, Action: "publish", Name: "Publish courses", Scoped: true},
			{ID: "course.delete", Resource: ResourceCourse, Action: "delete", Name: "Delete courses", Scoped: true},
			{ID: "assignment.read", Resource: ResourceAssignment, Action: "read", Name: "View assignments"},
			{ID: "assignment.submit", Resource: ResourceAssignment, Action: "submit", Name: "Submit assignments"},
			{ID: "assignment.create", Resource: ResourceAssignment, Action: "create", Name: "Create assignments", Scoped: true},
			{ID: "grade.read_own", Resource: ResourceGrade, Action: "read_own", Name: "View own grades"},
			{ID: "grade.read", Resource: ResourceGrade, Action: "read", Name: "View all grades", Scoped: true},
			{ID: "grade.write", Resource: ResourceGrade, Action: "write", Name: "Grade submissions", Scoped: true},
			{ID: "message.read", Resource: ResourceMessage, Action: "read", Name: "Read messages"},
			{ID: "message.send", Resource: ResourceMessage, Action: "send", Name: "Send messages"},
			{ID: "analytics.view", Resource: ResourceAnalytics, Action: "view", Name: "View analytics", Scoped: true},
			{ID: "analytics.export", Resource: ResourceAnalytics, Action: "export", Name: "Export analytics", Scoped: true},
			{ID: "user.read", Resource: ResourceUser, Action: "read", Name: "View users"},
			{ID: "user.manage_roles", Resource: ResourceUser, Action: "manage_roles", Name: "Manage user roles"},
			{ID: "report.generate", Resource: ResourceReport, Action: "generate", Name: "Generate reports", Scoped: true},
		},
		Roles: []RoleDefinition{
			{
				ID:             RoleGuest,
				Name:           "Guest",
				Description:    "Anonymous catalog browsing",
				HierarchyLevel: 0,
				Permissions:    []string{"course.read"},
			},
			{
				ID:             RoleParent,
				Name:           "Parent",
				Description:    "Follows a linked student's progress",
				HierarchyLevel: 5,
				Parent:         RoleGuest,
				Permissions:    []string{"grade.read_own", "message.read", "message.send"},
			},
			{
				ID:             RoleStudent,
				Name:           "Student",
				Description:    "Takes courses and submits work",
				HierarchyLevel: 10,
				Parent:         RoleGuest,
				Permissions: []string{
					"course.enroll", "assignment.read", "assignment.submit",
					"grade.read_own", "message.read", "message.send",
				},
			},
			{
				ID:             RoleTeacher,
				Name:           "Teacher",
				Description:    "Authors courses and grades students",
				HierarchyLevel: 50,
				Parent:         RoleGuest,
				Permissions: []string{
					"course.create", "course.update", "course.publish",
					"assignment.read", "assignment.create",
					"grade.read", "grade.write",
					"message.read", "message.send",
					"analytics.view", "user.read",
				},
			},
			{
				ID:             RoleDepartmentHead,
				Name:           "Department Head",
				Description:    "Oversees the courses of a department",
				HierarchyLevel: 70,
				Parent:         RoleTeacher,
				Permissions:    []string{"course.delete", "analytics.export", "report.generate"},
			},
			{
				ID:             RoleAdmin,
				Name:           "Administrator",
				Description:    "Full platform administration",
				HierarchyLevel: 100,
				Parent:         RoleDepartmentHead,
				Permissions:    []string{"user.manage_roles"},
			},
		},
	}
}
