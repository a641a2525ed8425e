package server

import "audioscribe/pkg/domain"

// operation tags a mutating API surface for role gating. Reads only
// need authentication.
type operation string

const (
	opUsersManage     operation = "users.manage"
	opLanguagesManage operation = "languages.manage"
	opProjectsWrite   operation = "projects.write"
	opProjectsAdmin   operation = "projects.admin"
	opSegmentsWrite   operation = "segments.write"
	opUpload          operation = "upload.batch"
)

// allowedRoles is the single authority for which roles may perform
// which operation.
var allowedRoles = map[operation][]domain.UserRole{
	opUsersManage:     {domain.RoleAdmin},
	opLanguagesManage: {domain.RoleAdmin, domain.RoleManager},
	opProjectsWrite:   {domain.RoleAdmin, domain.RoleManager, domain.RoleEditor},
	opProjectsAdmin:   {domain.RoleAdmin, domain.RoleManager},
	opSegmentsWrite:   {domain.RoleAdmin, domain.RoleManager, domain.RoleEditor},
	opUpload:          {domain.RoleAdmin, domain.RoleManager, domain.RoleEditor},
}

func roleAllowed(op operation, role domain.UserRole) bool {
	for _, allowed := range allowedRoles[op] {
		if role == allowed {
			return true
		}
	}
	return false
}
