package users

import (
	"fmt"
	"strings"
)

// Role is the closed set of account kinds. It is fixed at creation.
type Role string

const (
	RolePatient      Role = "patient"
	RolePsychologist Role = "psychologist"
	RoleAdmin        Role = "admin"
)

// ParseRole converts a stored or submitted role tag.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RolePatient:
		return RolePatient, nil
	case RolePsychologist:
		return RolePsychologist, nil
	case RoleAdmin:
		return RoleAdmin, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RolePatient, RolePsychologist, RoleAdmin:
		return true
	default:
		return false
	}
}

// Label is the display name used by the admin screens.
func (r Role) Label() string {
	switch r {
	case RolePatient:
		return "Paciente"
	case RolePsychologist:
		return "Psicólogo"
	case RoleAdmin:
		return "Administrador"
	default:
		return string(r)
	}
}
