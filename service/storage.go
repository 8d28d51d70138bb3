package service

import (
	"context"
	"time"

	"louyass/core"
	"louyass/storage"
)

// Storage interfaces are defined here, on the consumer side, and only list
// what the services call. The storage package's SQLite repositories satisfy them.

// UserStore is the user repository
type UserStore interface {
	CreateUser(ctx context.Context, user *core.User, password string) error
	GetUserByID(ctx context.Context, id int64) (*core.User, error)
	GetUserByEmail(ctx context.Context, email string) (*core.User, error)
	ListUsers(ctx context.Context, limit, offset int) ([]core.User, error)
	CountUsers(ctx context.Context) (int64, error)
	UpdateUser(ctx context.Context, user *core.User) error
	DeleteUser(ctx context.Context, id int64) error
	RecordFailedLogin(ctx context.Context, id int64, threshold int, lockFor time.Duration, now time.Time) (int, error)
	ResetFailedLogins(ctx context.Context, id int64) error
	SetMFA(ctx context.Context, id int64, secret string, enabled bool) error
}

// UserReader loads the parties of a rental
type UserReader interface {
	GetUserByID(ctx context.Context, id int64) (*core.User, error)
}

// HouseStore is the house repository
type HouseStore interface {
	CreateHouse(ctx context.Context, h *core.House) error
	GetHouse(ctx context.Context, id int64) (*core.House, error)
	ListHouses(ctx context.Context, filter storage.HouseFilter) ([]core.House, int64, error)
	UpdateHouse(ctx context.Context, h *core.House) error
	DeleteHouse(ctx context.Context, id int64) error
}

// RoomStore is the room repository
type RoomStore interface {
	CreateRoom(ctx context.Context, r *core.Room) error
	GetRoom(ctx context.Context, id int64) (*core.Room, error)
	GetRoomWithOwner(ctx context.Context, id int64) (*core.Room, error)
	ListRooms(ctx context.Context, filter storage.RoomFilter) ([]core.Room, int64, error)
	UpdateRoom(ctx context.Context, r *core.Room) error
	DeleteRoom(ctx context.Context, id int64) error
}

// RoomReader resolves a room with its house, hence its owner
type RoomReader interface {
	GetRoomWithOwner(ctx context.Context, id int64) (*core.Room, error)
}

// MediaStore is the media metadata repository
type MediaStore interface {
	CreateMedia(ctx context.Context, m *core.Media) error
	GetMedia(ctx context.Context, id int64) (*core.Media, error)
	ListMediaForRoom(ctx context.Context, chambreID int64) ([]core.Media, error)
	UpdateMedia(ctx context.Context, m *core.Media) error
	DeleteMedia(ctx context.Context, id int64) error
}

// AppointmentStore is the appointment repository
type AppointmentStore interface {
	CreateAppointment(ctx context.Context, a *core.Appointment) error
	GetAppointment(ctx context.Context, id int64) (*core.Appointment, error)
	ListAppointments(ctx context.Context, filter storage.AppointmentFilter) ([]core.Appointment, error)
	UpdateAppointment(ctx context.Context, a *core.Appointment) error
	DeleteAppointment(ctx context.Context, id int64) error
}

// ConfirmedAppointmentChecker tells whether a tenant visited a room
type ConfirmedAppointmentChecker interface {
	HasConfirmedAppointment(ctx context.Context, locataireID, chambreID int64) (bool, error)
}

// ContractStore is the contract repository
type ContractStore interface {
	CreateContract(ctx context.Context, c *core.Contract) error
	GetContract(ctx context.Context, id int64) (*core.Contract, error)
	GetContractDetails(ctx context.Context, id int64) (*core.Contract, error)
	ListContracts(ctx context.Context, filter storage.ContractFilter) ([]core.Contract, error)
	UpdateContract(ctx context.Context, c *core.Contract) error
	TerminateContract(ctx context.Context, id int64) error
	DeleteContract(ctx context.Context, id int64) error
	HasActiveContractForRoom(ctx context.Context, chambreID int64) (bool, error)
}

// LeaseChecker tells whether a room currently carries an actif contract
type LeaseChecker interface {
	HasActiveContractForRoom(ctx context.Context, chambreID int64) (bool, error)
}

// ContractReader loads a contract with its room, house and tenant
type ContractReader interface {
	GetContractDetails(ctx context.Context, id int64) (*core.Contract, error)
}

// PaymentStore is the payment repository
type PaymentStore interface {
	CreatePayment(ctx context.Context, p *core.Payment) error
	GetPayment(ctx context.Context, id int64) (*core.Payment, error)
	ListPaymentsForTenant(ctx context.Context, locataireID int64) ([]core.Payment, error)
	ListPaymentsForOwner(ctx context.Context, proprietaireID int64) ([]core.Payment, error)
	ListPendingForOwner(ctx context.Context, proprietaireID int64, from, to time.Time) ([]core.Payment, error)
	ListPaymentsForContract(ctx context.Context, contratID int64) ([]core.Payment, error)
	MarkPaid(ctx context.Context, id int64, paidAt time.Time) error
}

// IssueStore is the issue repository
type IssueStore interface {
	CreateIssue(ctx context.Context, i *core.Issue) error
	GetIssue(ctx context.Context, id int64) (*core.Issue, error)
	ListIssues(ctx context.Context, filter storage.IssueFilter) ([]core.Issue, error)
	UpdateIssue(ctx context.Context, i *core.Issue) error
	DeleteIssue(ctx context.Context, id int64) error
}

// MessageStore is the message repository
type MessageStore interface {
	CreateMessage(ctx context.Context, m *core.Message) error
	GetMessage(ctx context.Context, id int64) (*core.Message, error)
	ListMessagesForUser(ctx context.Context, userID int64, isRead *bool, limit, offset int) ([]core.Message, error)
	ListConversation(ctx context.Context, userA, userB int64, limit, offset int) ([]core.Message, error)
	MarkRead(ctx context.Context, id int64) error
	DeleteMessage(ctx context.Context, id int64) error
}

// SearchStore answers the public room search
type SearchStore interface {
	SearchRooms(ctx context.Context, criteria core.SearchCriteria) ([]core.SearchResult, error)
}
