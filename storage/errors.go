package storage

import "errors"

// Storage error constants
var (
	// ErrUserNotFound is returned when a user is not found
	ErrUserNotFound = errors.New("user not found")

	// ErrUserExists is returned when the e-mail address is already registered
	ErrUserExists = errors.New("user already exists")

	// ErrHouseNotFound is returned when a house is not found
	ErrHouseNotFound = errors.New("house not found")

	// ErrRoomNotFound is returned when a room is not found
	ErrRoomNotFound = errors.New("room not found")

	// ErrAppointmentNotFound is returned when an appointment is not found
	ErrAppointmentNotFound = errors.New("appointment not found")

	// ErrContractNotFound is returned when a contract is not found
	ErrContractNotFound = errors.New("contract not found")

	// ErrPaymentNotFound is returned when a payment is not found
	ErrPaymentNotFound = errors.New("payment not found")

	// ErrMediaNotFound is returned when a media item is not found
	ErrMediaNotFound = errors.New("media not found")

	// ErrIssueNotFound is returned when an issue is not found
	ErrIssueNotFound = errors.New("issue not found")

	// ErrMessageNotFound is returned when a message is not found
	ErrMessageNotFound = errors.New("message not found")

	// ErrRoomAlreadyLeased is returned when a room already carries an active contract
	ErrRoomAlreadyLeased = errors.New("room already has an active contract")

	// ErrStatusConflict is returned when a conditional status update found the row in another state
	ErrStatusConflict = errors.New("status changed concurrently")

	// ErrConstraintViolation is returned when a database constraint is violated
	ErrConstraintViolation = errors.New("constraint violation")
)
