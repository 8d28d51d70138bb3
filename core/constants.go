package core

import "time"

// Role is the account type of a user
type Role string

const (
	// RoleOwner lists houses and rooms and manages their appointments and contracts
	RoleOwner Role = "proprietaire"
	// RoleTenant books appointments, signs contracts and pays rent
	RoleTenant Role = "locataire"
)

// String returns the string representation
func (r Role) String() string {
	return string(r)
}

// IsValid checks if the role is valid
func (r Role) IsValid() bool {
	switch r {
	case RoleOwner, RoleTenant:
		return true
	default:
		return false
	}
}

// AppointmentStatus represents the status of a viewing appointment
type AppointmentStatus string

const (
	// AppointmentPending is a request waiting for the owner's answer
	AppointmentPending AppointmentStatus = "en_attente"
	// AppointmentConfirmed has been accepted by the owner
	AppointmentConfirmed AppointmentStatus = "confirmé"
	// AppointmentCancelled has been cancelled by the owner
	AppointmentCancelled AppointmentStatus = "annulé"
)

// String returns the string representation
func (s AppointmentStatus) String() string {
	return string(s)
}

// IsValid checks if the status is valid
func (s AppointmentStatus) IsValid() bool {
	switch s {
	case AppointmentPending, AppointmentConfirmed, AppointmentCancelled:
		return true
	default:
		return false
	}
}

// ContractStatus represents the status of a lease contract
type ContractStatus string

const (
	// ContractActive is a running lease
	ContractActive ContractStatus = "actif"
	// ContractTerminated is a lease that has been ended. Terminal.
	ContractTerminated ContractStatus = "resilié"
)

// String returns the string representation
func (s ContractStatus) String() string {
	return string(s)
}

// IsValid checks if the status is valid
func (s ContractStatus) IsValid() bool {
	switch s {
	case ContractActive, ContractTerminated:
		return true
	default:
		return false
	}
}

// PaymentStatus represents the status of a rent payment
type PaymentStatus string

const (
	// PaymentPending is an instalment not yet paid
	PaymentPending PaymentStatus = "en_attente"
	// PaymentPaid is a settled instalment
	PaymentPaid PaymentStatus = "paye"
)

// String returns the string representation
func (s PaymentStatus) String() string {
	return string(s)
}

// IsValid checks if the status is valid
func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentPending, PaymentPaid:
		return true
	default:
		return false
	}
}

// IssueStatus tracks the handling of a reported problem
type IssueStatus string

const (
	IssueOpen       IssueStatus = "ouvert"
	IssueInProgress IssueStatus = "en_cours"
	IssueResolved   IssueStatus = "resolu"
)

// IsValid checks if the status is valid
func (s IssueStatus) IsValid() bool {
	switch s {
	case IssueOpen, IssueInProgress, IssueResolved:
		return true
	default:
		return false
	}
}

// RoomType is the kind of unit being rented
type RoomType string

const (
	RoomTypeSingle    RoomType = "simple"
	RoomTypeApartment RoomType = "appartement"
	RoomTypeHouse     RoomType = "maison"
)

// IsValid checks if the room type is valid
func (t RoomType) IsValid() bool {
	switch t {
	case RoomTypeSingle, RoomTypeApartment, RoomTypeHouse:
		return true
	default:
		return false
	}
}

// MediaType is the kind of file attached to a room
type MediaType string

const (
	MediaPhoto MediaType = "photo"
	MediaVideo MediaType = "video"
)

// IsValid checks if the media type is valid
func (t MediaType) IsValid() bool {
	return t == MediaPhoto || t == MediaVideo
}

// Accepted values for contract terms and issue categories. Request DTOs
// reference these through validator "oneof" tags.
const (
	PaymentModes   = "especes virement mobile_money cheque"
	Periodicities  = "mensuel trimestriel semestriel annuel"
	IssueTypes     = "plomberie electricite serrurerie nuisible autre"
	RoomTypes      = "simple appartement maison"
	MediaTypes     = "photo video"
	UserRoles      = "proprietaire locataire"
	IssueStatuses  = "ouvert en_cours resolu"
	ContractStates = "actif resilié"
)

// Timeouts used by storage calls issued from the HTTP layer
const (
	// DBQueryTimeout bounds a single repository call
	DBQueryTimeout = 5 * time.Second
	// DBHealthTimeout bounds the health check ping
	DBHealthTimeout = 2 * time.Second
	// JWTCleanupInterval is how often expired revocations are purged
	JWTCleanupInterval = 10 * time.Minute
)

// Pagination bounds
const (
	DefaultPageLimit = 100
	MaxPageLimit     = 200
)

// MaxErrorMessageLength caps error messages returned to clients
const MaxErrorMessageLength = 500

// DisplayDateFormat renders dates in notifications (dd/mm/YYYY à HH:MM)
const DisplayDateFormat = "02/01/2006 à 15:04"
