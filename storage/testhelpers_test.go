package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"louyass/core"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// testStores bundles every repository over one temp-file database
type testStores struct {
	sqlite       *SQLite
	users        *SQLiteUserStorage
	houses       *SQLiteHouseStorage
	rooms        *SQLiteRoomStorage
	appointments *SQLiteAppointmentStorage
	contracts    *SQLiteContractStorage
	payments     *SQLitePaymentStorage
	media        *SQLiteMediaStorage
	issues       *SQLiteIssueStorage
	messages     *SQLiteMessageStorage
	search       *SQLiteSearchStorage
}

var emailSeq atomic.Int64

func newTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	path := filepath.Join(t.TempDir(), "louyass_test.db")
	s, err := NewSQLite(path, zap.NewNop().Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestStores(t *testing.T) *testStores {
	t.Helper()
	s := newTestSQLite(t)
	logger := zap.NewNop().Sugar()

	users := NewSQLiteUserStorage(s, logger)
	users.SetBcryptCost(bcrypt.MinCost)

	return &testStores{
		sqlite:       s,
		users:        users,
		houses:       NewSQLiteHouseStorage(s, logger),
		rooms:        NewSQLiteRoomStorage(s, logger),
		appointments: NewSQLiteAppointmentStorage(s, logger),
		contracts:    NewSQLiteContractStorage(s, logger),
		payments:     NewSQLitePaymentStorage(s, logger),
		media:        NewSQLiteMediaStorage(s, logger),
		issues:       NewSQLiteIssueStorage(s, logger),
		messages:     NewSQLiteMessageStorage(s, logger),
		search:       NewSQLiteSearchStorage(s, logger),
	}
}

func (ts *testStores) createUser(t *testing.T, role core.Role) *core.User {
	t.Helper()
	u := &core.User{
		Email:  fmt.Sprintf("user%d@example.sn", emailSeq.Add(1)),
		Nom:    "Ndiaye",
		Prenom: "Fatou",
		Role:   role,
	}
	require.NoError(t, ts.users.CreateUser(context.Background(), u, "Motdepasse123!"))
	return u
}

func (ts *testStores) createHouse(t *testing.T, ownerID int64, adresse string) *core.House {
	t.Helper()
	h := &core.House{
		ProprietaireID: ownerID,
		Nom:            "Villa " + adresse,
		Adresse:        adresse,
		Ville:          "Dakar",
		Description:    "Maison familiale",
	}
	require.NoError(t, ts.houses.CreateHouse(context.Background(), h))
	return h
}

func (ts *testStores) createRoom(t *testing.T, houseID int64, prix float64, roomType core.RoomType) *core.Room {
	t.Helper()
	r := &core.Room{
		MaisonID:   houseID,
		Titre:      "Chambre",
		Type:       roomType,
		Prix:       prix,
		Capacite:   1,
		Disponible: true,
	}
	require.NoError(t, ts.rooms.CreateRoom(context.Background(), r))
	return r
}

func (ts *testStores) createContract(t *testing.T, tenantID, roomID int64) *core.Contract {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := &core.Contract{
		LocataireID:  tenantID,
		ChambreID:    roomID,
		DateDebut:    start,
		DateFin:      start.AddDate(1, 0, 0),
		ModePaiement: "virement",
		Periodicite:  "mensuel",
	}
	require.NoError(t, ts.contracts.CreateContract(context.Background(), c))
	return c
}
