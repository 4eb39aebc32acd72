package bookings

import "errors"

var (
	// ErrInvalidLeadTime is returned when the slot is not far enough ahead.
	ErrInvalidLeadTime = errors.New("bookings: slot is within the minimum lead time")

	// ErrSlotConflict is returned when the psychologist already holds the slot.
	ErrSlotConflict = errors.New("bookings: slot already booked")

	// ErrNotFound is returned when the patient or psychologist does not exist or is inactive.
	ErrNotFound = errors.New("bookings: patient or psychologist not found")
)
