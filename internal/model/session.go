package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Role is the authorization role of a signed-in user.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// ParseRole accepts both the bare and the "ROLE_"-prefixed spellings.
func ParseRole(s string) (Role, error) {
	r := strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(s)), "ROLE_")
	switch Role(r) {
	case RoleUser, RoleAdmin:
		return Role(r), nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// UnmarshalJSON normalizes the role at the decoding boundary.
func (r *Role) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("role: %w", err)
	}
	role, err := ParseRole(raw)
	if err != nil {
		return err
	}
	*r = role
	return nil
}

// Session is the signed-in identity held in tab-scoped storage.
type Session struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
	Token    string `json:"token,omitempty"`
}

// Valid reports whether the session carries a usable identity.
func (s Session) Valid() bool {
	return s.UserID > 0 && s.Username != "" && (s.Role == RoleUser || s.Role == RoleAdmin)
}

// IsAdmin reports whether the session has the admin role.
func (s Session) IsAdmin() bool { return s.Role == RoleAdmin }

// UserDraft is the registration payload.
type UserDraft struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

// Credentials is the login payload.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}
