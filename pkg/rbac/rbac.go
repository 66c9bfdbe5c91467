// Package rbac provides role-based access control checks.
package rbac

import "github.com/NicolasHaas/gorelay/pkg/model"

// permissionMatrix maps roles to their allowed permissions.
var permissionMatrix = map[model.Role]map[model.Permission]bool{
	model.RoleAdmin: {
		model.PermKickUser: true,
		model.PermBanUser:  true,
		model.PermShutdown: true,
	},
	model.RoleUser: {
		// No moderation rights; chatting is open to every authenticated session
	},
}

// HasPermission checks if a role has a specific permission.
func HasPermission(role model.Role, perm model.Permission) bool {
	perms, ok := permissionMatrix[role]
	if !ok {
		return false
	}
	return perms[perm]
}

// Elevated reports whether the role may run every moderation command
// (kick, ban and shutdown). This is the check behind privilege elevation.
func Elevated(role model.Role) bool {
	for _, perm := range []model.Permission{model.PermKickUser, model.PermBanUser, model.PermShutdown} {
		if !HasPermission(role, perm) {
			return false
		}
	}
	return true
}
