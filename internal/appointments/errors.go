package appointments

import "errors"

var (
	// ErrNotFound is returned when no appointment has the given ID.
	ErrNotFound = errors.New("appointments: not found")

	// ErrInvalidTransition is returned for status moves the lifecycle forbids.
	ErrInvalidTransition = errors.New("appointments: invalid status transition")

	// ErrInvalidStatus is returned for unknown status tags.
	ErrInvalidStatus = errors.New("appointments: invalid status")

	// ErrForbidden is returned when the caller may not act on the appointment.
	ErrForbidden = errors.New("appointments: forbidden")
)
