// Package model defines the core domain types for gorelay.
package model

// Permission represents a specific action that can be checked against a role.
type Permission int

const (
	PermKickUser Permission = iota
	PermBanUser
	PermShutdown
)

// String returns the permission name used in logs.
func (p Permission) String() string {
	switch p {
	case PermKickUser:
		return "kick_user"
	case PermBanUser:
		return "ban_user"
	case PermShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}
