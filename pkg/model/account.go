package model

import (
	"fmt"
	"strings"
)

const (
	MinLoginLength    = 3
	MinPasswordLength = 6
)

// Account represents a registered chat account.
// Login is unique and never changes; DisplayName is what other users see.
type Account struct {
	Login       string `json:"login" yaml:"login" toml:"login"`
	Password    string `json:"-" yaml:"password" toml:"password"`
	DisplayName string `json:"display_name" yaml:"display_name" toml:"display_name"`
	Role        Role   `json:"role" yaml:"role" toml:"role"`
	Banned      bool   `json:"banned" yaml:"banned,omitempty" toml:"banned"`
}

// ConstraintError reports a registration field that failed its length rule.
type ConstraintError struct {
	Field string // "login", "password" or "display_name"
}

func (e *ConstraintError) Error() string {
	switch e.Field {
	case "login":
		return fmt.Sprintf("login must be at least %d characters", MinLoginLength)
	case "password":
		return fmt.Sprintf("password must be at least %d characters", MinPasswordLength)
	case "display_name":
		return "display name must not be empty"
	default:
		return "invalid " + e.Field
	}
}

// ValidateRegistration checks the minimum-length constraints of a new account.
// Lengths are measured on the trimmed values, in characters.
func ValidateRegistration(login, password, displayName string) error {
	if len([]rune(strings.TrimSpace(login))) < MinLoginLength {
		return &ConstraintError{Field: "login"}
	}
	if len([]rune(strings.TrimSpace(password))) < MinPasswordLength {
		return &ConstraintError{Field: "password"}
	}
	if strings.TrimSpace(displayName) == "" {
		return &ConstraintError{Field: "display_name"}
	}
	return nil
}
