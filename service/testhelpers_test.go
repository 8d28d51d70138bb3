package service

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"louyass/core"
	"louyass/notify"
	"louyass/storage"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var testNow = time.Date(2026, time.March, 10, 10, 0, 0, 0, time.UTC)

// recordingPublisher keeps published events in memory
type recordingPublisher struct {
	mu     sync.Mutex
	events []notify.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e notify.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) Events() []notify.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]notify.Event, len(p.events))
	copy(out, p.events)
	return out
}

func (p *recordingPublisher) Last(t *testing.T) notify.Event {
	t.Helper()
	events := p.Events()
	require.NotEmpty(t, events)
	return events[len(events)-1]
}

// testEnv wires every service over one temp-file database
type testEnv struct {
	clock     *clockwork.FakeClock
	publisher *recordingPublisher

	users        *storage.SQLiteUserStorage
	houses       *storage.SQLiteHouseStorage
	rooms        *storage.SQLiteRoomStorage
	appointments *storage.SQLiteAppointmentStorage
	contracts    *storage.SQLiteContractStorage
	payments     *storage.SQLitePaymentStorage

	appointmentSvc *AppointmentService
	contractSvc    *ContractService
	paymentSvc     *PaymentService
	houseSvc       *HouseService
	roomSvc        *RoomService
	mediaSvc       *MediaService
	issueSvc       *IssueService
	messageSvc     *MessageService
	userSvc        *UserService
	searchSvc      *SearchService
}

var emailSeq atomic.Int64

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := storage.NewSQLite(filepath.Join(t.TempDir(), "louyass_service.db"), zap.NewNop().Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	logger := zap.NewNop().Sugar()
	clock := clockwork.NewFakeClockAt(testNow)
	pub := &recordingPublisher{}

	users := storage.NewSQLiteUserStorage(db, logger)
	users.SetBcryptCost(bcrypt.MinCost)
	houses := storage.NewSQLiteHouseStorage(db, logger)
	rooms := storage.NewSQLiteRoomStorage(db, logger)
	appointments := storage.NewSQLiteAppointmentStorage(db, logger)
	contracts := storage.NewSQLiteContractStorage(db, logger)
	payments := storage.NewSQLitePaymentStorage(db, logger)
	medias := storage.NewSQLiteMediaStorage(db, logger)
	issues := storage.NewSQLiteIssueStorage(db, logger)
	messages := storage.NewSQLiteMessageStorage(db, logger)
	search := storage.NewSQLiteSearchStorage(db, logger)

	return &testEnv{
		clock:        clock,
		publisher:    pub,
		users:        users,
		houses:       houses,
		rooms:        rooms,
		appointments: appointments,
		contracts:    contracts,
		payments:     payments,

		appointmentSvc: NewAppointmentService(appointments, rooms, users, pub, clock, logger),
		contractSvc:    NewContractService(contracts, appointments, rooms, users, payments, pub, clock, logger),
		paymentSvc:     NewPaymentService(payments, contracts, users, pub, clock, logger),
		houseSvc:       NewHouseService(houses, clock, logger),
		roomSvc:        NewRoomService(rooms, houses, contracts, clock, logger),
		mediaSvc:       NewMediaService(medias, rooms, nil, 0, clock, logger),
		issueSvc:       NewIssueService(issues, contracts, clock, logger),
		messageSvc:     NewMessageService(messages, users, pub, clock, logger),
		userSvc:        NewUserService(users, LockoutPolicy{Threshold: 3, Duration: 15 * time.Minute}, "Louyass", clock, logger),
		searchSvc:      NewSearchService(search),
	}
}

func (e *testEnv) createUser(t *testing.T, role core.Role) *core.User {
	t.Helper()
	u := &core.User{
		Email:  fmt.Sprintf("svc%d@example.sn", emailSeq.Add(1)),
		Nom:    "Diop",
		Prenom: "Awa",
		Role:   role,
	}
	require.NoError(t, e.users.CreateUser(context.Background(), u, "Motdepasse123!"))
	return u
}

func (e *testEnv) createRoom(t *testing.T, owner *core.User) *core.Room {
	t.Helper()
	ctx := context.Background()
	h, err := e.houseSvc.Create(ctx, owner, HouseInput{Nom: "Villa Teranga", Adresse: "12 rue Carnot", Ville: "Dakar", Superficie: 200})
	require.NoError(t, err)
	r, err := e.roomSvc.Create(ctx, owner, RoomInput{MaisonID: h.ID, Titre: "Chambre vue mer", Type: core.RoomTypeSingle, Prix: 75000, Capacite: 1})
	require.NoError(t, err)
	return r
}

// lease books, confirms and signs a contract for tenant on room
func (e *testEnv) lease(t *testing.T, owner, tenant *core.User, room *core.Room) *core.Contract {
	t.Helper()
	ctx := context.Background()
	a, err := e.appointmentSvc.Create(ctx, tenant, AppointmentCreate{
		LocataireID: tenant.ID, ChambreID: room.ID, DateHeure: testNow.Add(48 * time.Hour),
	})
	require.NoError(t, err)
	confirmed := core.AppointmentConfirmed
	_, err = e.appointmentSvc.Update(ctx, owner, a.ID, AppointmentUpdate{Statut: &confirmed})
	require.NoError(t, err)

	c, err := e.contractSvc.Create(ctx, owner, contractReq(tenant.ID, room.ID))
	require.NoError(t, err)
	return c
}

func contractReq(tenantID, roomID int64) ContractCreate {
	return ContractCreate{
		LocataireID:    tenantID,
		ChambreID:      roomID,
		DateDebut:      time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC),
		DateFin:        time.Date(2027, time.March, 31, 0, 0, 0, 0, time.UTC),
		MontantCaution: 150000,
		MoisCaution:    2,
		ModePaiement:   "mobile_money",
		Periodicite:    "mensuel",
	}
}

// requireStatus asserts err is a *Error with the given HTTP status
func requireStatus(t *testing.T, err error, status int) *Error {
	t.Helper()
	require.Error(t, err)
	svcErr, ok := err.(*Error)
	require.Truef(t, ok, "expected *service.Error, got %T: %v", err, err)
	require.Equalf(t, status, svcErr.Status, "detail: %s", svcErr.Detail)
	return svcErr
}
