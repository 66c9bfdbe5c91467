package model

// Role represents an account's permission level.
// The numeric values are persisted in the users.role column.
type Role int

const (
	RoleUser  Role = iota // Can chat, whisper and rename itself
	RoleAdmin             // Can additionally kick, ban and shut the server down
)

func (r Role) String() string {
	switch r {
	case RoleUser:
		return "user"
	case RoleAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

// ParseRole converts a string to a Role.
func ParseRole(s string) Role {
	switch s {
	case "admin", "ADMIN":
		return RoleAdmin
	default:
		return RoleUser
	}
}

// Valid returns true if the role is a recognised value (User or Admin).
func (r Role) Valid() bool {
	return r >= RoleUser && r <= RoleAdmin
}

// MarshalText implements encoding.TextMarshaler so roles read naturally in YAML and TOML.
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Role) UnmarshalText(text []byte) error {
	*r = ParseRole(string(text))
	return nil
}
