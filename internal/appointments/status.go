package appointments

import (
	"fmt"
	"strings"
)

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no_show"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []Status{StatusScheduled, StatusConfirmed, StatusCompleted, StatusCancelled, StatusNoShow}

// ActiveStatuses are the statuses that occupy a slot.
var ActiveStatuses = []Status{StatusScheduled, StatusConfirmed}

// ParseStatus converts a stored or submitted status tag.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
	return st, nil
}

func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	default:
		return false
	}
}

// Holds reports whether an appointment in this status blocks its slot.
func (s Status) Holds() bool {
	return s == StatusScheduled || s == StatusConfirmed
}

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	default:
		return false
	}
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusScheduled:
		return to == StatusConfirmed || to == StatusCancelled || to == StatusCompleted || to == StatusNoShow
	case StatusConfirmed:
		return to == StatusCompleted || to == StatusCancelled || to == StatusNoShow
	default:
		return false
	}
}

// Label is the display name shown on the admin listing.
func (s Status) Label() string {
	switch s {
	case StatusScheduled:
		return "Agendado"
	case StatusConfirmed:
		return "Confirmado"
	case StatusCompleted:
		return "Realizado"
	case StatusCancelled:
		return "Cancelado"
	case StatusNoShow:
		return "Faltou"
	default:
		return string(s)
	}
}
