package core

import "errors"

var (
	// ErrInvalidTransition is returned when a status change is not allowed from the current state
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrDateInPast is returned when a date that must lie in the future does not
	ErrDateInPast = errors.New("date must be in the future")
	// ErrInvalidStatus is returned for an unknown status value
	ErrInvalidStatus = errors.New("invalid status")
	// ErrInvalidPeriod is returned when a contract ends before it starts
	ErrInvalidPeriod = errors.New("end date must be after start date")
)
