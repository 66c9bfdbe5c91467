package model

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateRegistration(t *testing.T) {
	tests := []struct {
		name        string
		login       string
		password    string
		displayName string
		wantField   string
	}{
		{"valid", "alice", "secret1", "Alice", ""},
		{"valid minimum lengths", "abc", "123456", "a", ""},
		{"short login", "ab", "secret1", "Alice", "login"},
		{"login padded with spaces", "  ab  ", "secret1", "Alice", "login"},
		{"short password", "alice", "12345", "Alice", "password"},
		{"password of spaces", "alice", "          ", "Alice", "password"},
		{"empty display name", "alice", "secret1", "", "display_name"},
		{"blank display name", "alice", "secret1", "   ", "display_name"},
		{"multibyte login", "яблоко", "secret1", "Alice", ""},
		{"login checked first", "", "", "", "login"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRegistration(tt.login, tt.password, tt.displayName)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("ValidateRegistration: unexpected error: %v", err)
				}
				return
			}
			var ce *ConstraintError
			if !errors.As(err, &ce) {
				t.Fatalf("ValidateRegistration: expected *ConstraintError, got %v", err)
			}
			if ce.Field != tt.wantField {
				t.Errorf("ValidateRegistration: field = %q, want %q", ce.Field, tt.wantField)
			}
		})
	}
}

func TestConstraintErrorMessage(t *testing.T) {
	err := &ConstraintError{Field: "password"}
	if !strings.Contains(err.Error(), "6") {
		t.Errorf("ConstraintError.Error() = %q, want the minimum length mentioned", err.Error())
	}
}

func TestRoleValid(t *testing.T) {
	tests := []struct {
		name string
		role Role
		want bool
	}{
		{"RoleUser", RoleUser, true},
		{"RoleAdmin", RoleAdmin, true},
		{"negative", Role(-1), false},
		{"two", Role(2), false},
		{"large", Role(99), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.role.Valid(); got != tt.want {
				t.Errorf("Role(%d).Valid() = %v, want %v", tt.role, got, tt.want)
			}
		})
	}
}

func TestRoleString(t *testing.T) {
	tests := []struct {
		role Role
		want string
	}{
		{RoleUser, "user"},
		{RoleAdmin, "admin"},
		{Role(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.role.String(); got != tt.want {
				t.Errorf("Role(%d).String() = %q, want %q", tt.role, got, tt.want)
			}
		})
	}
}

func TestParseRole(t *testing.T) {
	tests := []struct {
		input string
		want  Role
	}{
		{"admin", RoleAdmin},
		{"ADMIN", RoleAdmin},
		{"user", RoleUser},
		{"", RoleUser},
		{"moderator", RoleUser},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseRole(tt.input); got != tt.want {
				t.Errorf("ParseRole(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestRoleTextRoundTrip(t *testing.T) {
	for _, r := range []Role{RoleUser, RoleAdmin} {
		text, err := r.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText: %v", err)
		}
		var got Role
		if err := got.UnmarshalText(text); err != nil {
			t.Fatalf("UnmarshalText: %v", err)
		}
		if got != r {
			t.Errorf("round trip of %v gave %v", r, got)
		}
	}
}
