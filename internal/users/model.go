package users

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// User is an account of any role.
type User struct {
	ID           uuid.UUID `json:"id"`
	Role         Role      `json:"role"`
	FullName     string    `json:"full_name"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone"`
	PasswordHash string    `json:"-"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

// FirstName is the display name used on dashboard charts.
func (u User) FirstName() string {
	fields := strings.Fields(u.FullName)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// Patient extends a patient-role User.
type Patient struct {
	ID   uuid.UUID `json:"id"`
	User User      `json:"user"`
}

// Psychologist extends a psychologist-role User.
type Psychologist struct {
	ID   uuid.UUID `json:"id"`
	User User      `json:"user"`
}

// ListFilter narrows admin listings. Empty fields match everything; matching is
// a case-insensitive substring test.
type ListFilter struct {
	Name  string
	Email string
	Phone string
}

func (f ListFilter) matches(u User) bool {
	return containsFold(u.FullName, f.Name) &&
		containsFold(u.Email, f.Email) &&
		containsFold(u.Phone, f.Phone)
}

func containsFold(s, sub string) bool {
	sub = strings.TrimSpace(sub)
	if sub == "" {
		return true
	}
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
