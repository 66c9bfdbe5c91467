// Package auth verifies credentials and owns the account table.
//
// Two interchangeable backends implement Provider: an in-process table
// (MemoryProvider) and a relational store reached through database/sql
// (SQLProvider, SQLite or PostgreSQL). The concrete backend is chosen once at
// startup by Open.
//
// Providers know nothing about who is currently connected. Rejecting a login
// whose display name is already in the chat is the registry's job.
package auth

import (
	"context"

	"github.com/NicolasHaas/gorelay/pkg/model"
)

// Provider defines the account operations the chat server needs.
// All methods are safe for concurrent use.
type Provider interface {
	// Initialize performs one-time startup work such as opening the backing
	// store and seeding accounts. It must be called before any other method.
	Initialize(ctx context.Context) error

	// Authenticate returns the display name for matching credentials.
	// Fails with ErrInvalidCredentials or ErrAccountBanned.
	Authenticate(ctx context.Context, login, password string) (string, error)

	// Register creates a RoleUser account and returns its display name.
	// Fails with *model.ConstraintError, ErrLoginTaken or ErrDisplayNameTaken.
	Register(ctx context.Context, login, password, displayName string) (string, error)

	// PrivilegeElevation reports whether the account shown as displayName may
	// run moderation commands. Unknown names are not elevated.
	PrivilegeElevation(ctx context.Context, displayName string) (bool, error)

	// IsBanned reports the ban flag of the account shown as displayName.
	// Unknown names are not banned.
	IsBanned(ctx context.Context, displayName string) (bool, error)

	// Ban sets the ban flag of the account shown as displayName. Unknown names are ignored.
	Ban(ctx context.Context, displayName string) error

	// ChangeNick renames an account. Fails with ErrDisplayNameTaken if another
	// account already uses newName.
	ChangeNick(ctx context.Context, oldName, newName string) error

	// Close releases the backing store.
	Close() error
}

// Lister is implemented by providers that can enumerate their accounts.
type Lister interface {
	Accounts(ctx context.Context) ([]model.Account, error)
}

// DefaultAdmin is the account every in-memory provider starts with.
var DefaultAdmin = model.Account{
	Login:       "cat",
	Password:    "godmode",
	DisplayName: "admin",
	Role:        model.RoleAdmin,
}
