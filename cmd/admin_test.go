package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"louyass/config"
	"louyass/core"
	"louyass/storage"

	"github.com/fatih/color"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var testNow = time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)

// useTestConfig points the CLI at a fresh database and a fixed clock
func useTestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.DataPaths.DataDir = t.TempDir()
	cfg.ResolveDataPaths()
	cfg.Auth.JWTSecret = "cli-test-0123456789-abcdefghijklmnopqrstu"
	cfg.Auth.BcryptCost = bcrypt.MinCost
	cfg.Auth.LockoutThreshold = 5
	cfg.Auth.LockoutDuration = 15 * time.Minute

	prevLoad, prevClock, prevNoColor := loadConfig, cliClock, color.NoColor
	loadConfig = func() (*config.Config, error) { return cfg, nil }
	cliClock = clockwork.NewFakeClockAt(testNow)
	color.NoColor = true
	t.Cleanup(func() {
		loadConfig, cliClock, color.NoColor = prevLoad, prevClock, prevNoColor
	})
	return cfg
}

func runAdmin(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewAdminCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--no-color"))
	err := cmd.Execute()
	return out.String(), err
}

func openTestDB(t *testing.T, cfg *config.Config) *storage.SQLite {
	t.Helper()
	db, err := storage.NewSQLite(cfg.DataPaths.SQLitePath, zap.NewNop().Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestValidateFilePath(t *testing.T) {
	assert.NoError(t, validateFilePath("fixtures.yaml"))
	assert.NoError(t, validateFilePath("/tmp/seed/fixtures.yaml"))
	assert.NoError(t, validateFilePath("my..file.yaml"))
	assert.Error(t, validateFilePath(""))
	assert.Error(t, validateFilePath("../etc/passwd"))
	assert.Error(t, validateFilePath("data/../../secret.yaml"))
	assert.Error(t, validateFilePath("%2e%2e/secret.yaml"))
}

func TestMigrateCommands(t *testing.T) {
	useTestConfig(t)

	out, err := runAdmin(t, "migrate", "status", "--json")
	require.NoError(t, err, out)
	var status migrationStatusJSON
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.Equal(t, 0, status.Applied)
	assert.Equal(t, 4, status.Pending)

	out, err = runAdmin(t, "migrate", "up")
	require.NoError(t, err, out)
	assert.Contains(t, out, "1.0.0 initial_schema")
	assert.Contains(t, out, "1.3.0 add_query_indexes")

	out, err = runAdmin(t, "migrate", "up")
	require.NoError(t, err)
	assert.Contains(t, out, "up to date")

	out, err = runAdmin(t, "migrate", "down", "1.3.0", "--reason", "test")
	require.NoError(t, err, out)
	assert.Contains(t, out, "1.3.0 rolled back")

	out, err = runAdmin(t, "migrate", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Applied: 3  Pending: 1  Latest: 1.2.0")
	assert.Contains(t, out, "pending")

	_, err = runAdmin(t, "migrate", "down", "9.9.9")
	assert.Error(t, err)
	_, err = runAdmin(t, "migrate", "down")
	assert.Error(t, err, "version argument is required")
}

func TestUserCreate(t *testing.T) {
	cfg := useTestConfig(t)

	out, err := runAdmin(t, "user", "create", "--email", "awa@louyass.sn", "--nom", "Diallo",
		"--prenom", "Awa", "--role", "proprietaire", "--password", "motdepasse123")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Created proprietaire")

	out, err = runAdmin(t, "user", "create", "--email", "awa@louyass.sn", "--nom", "Diallo", "--password", "motdepasse123")
	require.Error(t, err)
	assert.Contains(t, out, "Email déjà utilisé.")

	out, err = runAdmin(t, "user", "create", "--email", "moussa@louyass.sn", "--nom", "Sarr", "--json")
	require.NoError(t, err, out)
	var created struct {
		User     core.User `json:"user"`
		Password string    `json:"password"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &created))
	assert.Equal(t, core.RoleTenant, created.User.Role)
	assert.Len(t, created.Password, 16)

	_, err = runAdmin(t, "user", "create", "--email", "x@louyass.sn", "--nom", "X", "--role", "admin")
	assert.ErrorContains(t, err, "invalid account")
	_, err = runAdmin(t, "user", "create", "--email", "pas-un-email", "--nom", "X")
	assert.ErrorContains(t, err, "invalid account")

	db := openTestDB(t, cfg)
	users := storage.NewSQLiteUserStorage(db, zap.NewNop().Sugar())
	u, err := users.GetUserByEmail(context.Background(), "awa@louyass.sn")
	require.NoError(t, err)
	assert.Equal(t, "Awa", u.Prenom)
	assert.Equal(t, core.RoleOwner, u.Role)
}

const fixturesYAML = `
users:
  - email: fatou@louyass.sn
    password: motdepasse123
    nom: Ndiaye
    prenom: Fatou
    role: proprietaire
  - email: ibou@louyass.sn
    password: motdepasse123
    nom: Fall
    role: locataire
houses:
  - owner: fatou@louyass.sn
    nom: Villa Baobab
    adresse: 12 rue des Palmiers
    ville: Dakar
    superficie: 240
    rooms:
      - titre: Chambre vue mer
        type: simple
        prix: 85000
        meublee: true
        salle_de_bain: true
      - titre: Studio jardin
        type: appartement
        prix: 150000
        capacite: 2
        disponible: false
`

func writeFixtures(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixtures.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadFixtures(t *testing.T) {
	fx, err := LoadFixtures([]byte(fixturesYAML))
	require.NoError(t, err)
	require.Len(t, fx.Users, 2)
	require.Len(t, fx.Houses, 1)
	assert.Equal(t, core.RoleOwner, fx.Users[0].Role)
	require.Len(t, fx.Houses[0].Rooms, 2)
	require.NotNil(t, fx.Houses[0].Rooms[1].Disponible)
	assert.False(t, *fx.Houses[0].Rooms[1].Disponible)

	invalid := []struct {
		name string
		doc  string
	}{
		{"empty", ""},
		{"not yaml", "users: [unclosed"},
		{"unknown role", "users:\n  - {email: a@b.sn, password: motdepasse123, nom: A, role: admin}\n"},
		{"short password", "users:\n  - {email: a@b.sn, password: court, nom: A, role: locataire}\n"},
		{"missing adresse", "houses:\n  - {owner: a@b.sn, nom: Villa}\n"},
		{"bad room type", "houses:\n  - owner: a@b.sn\n    nom: V\n    adresse: A\n    rooms:\n      - {titre: T, type: chateau, prix: 1}\n"},
		{"negative price", "houses:\n  - owner: a@b.sn\n    nom: V\n    adresse: A\n    rooms:\n      - {titre: T, type: simple, prix: -5}\n"},
		{"unknown field", "proprietes: []\n"},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFixtures([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestSeedCommand(t *testing.T) {
	cfg := useTestConfig(t)
	path := writeFixtures(t, fixturesYAML)

	out, err := runAdmin(t, "seed", "--file", path, "--dry-run")
	require.NoError(t, err, out)
	assert.Contains(t, out, "2 user(s), 1 house(s)")

	out, err = runAdmin(t, "seed", "--file", path, "--json")
	require.NoError(t, err, out)
	var res SeedResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, SeedResult{UsersCreated: 2, HousesCreated: 1, RoomsCreated: 2}, res)

	// existing accounts are reused
	out, err = runAdmin(t, "seed", "--file", path, "--json")
	require.NoError(t, err, out)
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, 2, res.UsersSkipped)
	assert.Equal(t, 0, res.UsersCreated)

	db := openTestDB(t, cfg)
	rooms := storage.NewSQLiteRoomStorage(db, zap.NewNop().Sugar())
	all, total, err := rooms.ListRooms(context.Background(), storage.RoomFilter{Limit: 50})
	require.NoError(t, err)
	assert.EqualValues(t, 4, total, "the second run adds the house again")
	assert.Len(t, all, 4)

	avail := true
	_, total, err = rooms.ListRooms(context.Background(), storage.RoomFilter{Disponible: &avail, Limit: 50})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
}

func TestSeedCommandErrors(t *testing.T) {
	useTestConfig(t)

	_, err := runAdmin(t, "seed")
	assert.Error(t, err, "--file is required")

	_, err = runAdmin(t, "seed", "--file", "../fixtures.yaml")
	assert.ErrorContains(t, err, "path traversal")

	_, err = runAdmin(t, "seed", "--file", filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorContains(t, err, "failed to read fixtures")

	bad := writeFixtures(t, "users:\n  - {email: a@b.sn, password: motdepasse123, nom: A, role: admin}\n")
	_, err = runAdmin(t, "seed", "--file", bad)
	assert.ErrorContains(t, err, "validation failed")

	// tenants cannot own houses
	tenantHouse := writeFixtures(t, `
users:
  - {email: t@louyass.sn, password: motdepasse123, nom: T, role: locataire}
houses:
  - {owner: t@louyass.sn, nom: Villa, adresse: Rue 1}
`)
	_, err = runAdmin(t, "seed", "--file", tenantHouse)
	assert.ErrorContains(t, err, "Seuls les propriétaires")

	unknownOwner := writeFixtures(t, "houses:\n  - {owner: ghost@louyass.sn, nom: Villa, adresse: Rue 1}\n")
	_, err = runAdmin(t, "seed", "--file", unknownOwner)
	assert.ErrorContains(t, err, "does not exist")
}

func TestPaymentsPending(t *testing.T) {
	cfg := useTestConfig(t)

	out, err := runAdmin(t, "payments", "pending", "--progress=false")
	require.NoError(t, err, out)
	assert.Contains(t, out, "No pending payments for 03/2026")

	_, err = runAdmin(t, "seed", "--file", writeFixtures(t, fixturesYAML), "--quiet")
	require.NoError(t, err)

	ctx := context.Background()
	db := openTestDB(t, cfg)
	logger := zap.NewNop().Sugar()
	users := storage.NewSQLiteUserStorage(db, logger)
	owner, err := users.GetUserByEmail(ctx, "fatou@louyass.sn")
	require.NoError(t, err)
	tenant, err := users.GetUserByEmail(ctx, "ibou@louyass.sn")
	require.NoError(t, err)
	rooms, _, err := storage.NewSQLiteRoomStorage(db, logger).ListRooms(ctx, storage.RoomFilter{Limit: 10})
	require.NoError(t, err)
	var room *core.Room
	for i := range rooms {
		if rooms[i].Titre == "Chambre vue mer" {
			room = &rooms[i]
		}
	}
	require.NotNil(t, room)

	contract := &core.Contract{
		LocataireID:  tenant.ID,
		ChambreID:    room.ID,
		DateDebut:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		DateFin:      time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
		ModePaiement: "virement",
		Periodicite:  "mensuel",
	}
	require.NoError(t, storage.NewSQLiteContractStorage(db, logger).CreateContract(ctx, contract))

	payments := storage.NewSQLitePaymentStorage(db, logger)
	paidAt := testNow
	for _, p := range []*core.Payment{
		{ContratID: contract.ID, Montant: 85000, DateEcheance: time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)},
		{ContratID: contract.ID, Montant: 85000, DateEcheance: time.Date(2026, 3, 25, 0, 0, 0, 0, time.UTC)},
		{ContratID: contract.ID, Montant: 85000, DateEcheance: time.Date(2026, 4, 5, 0, 0, 0, 0, time.UTC)},
		{ContratID: contract.ID, Montant: 85000, DateEcheance: time.Date(2026, 2, 5, 0, 0, 0, 0, time.UTC), Statut: core.PaymentPaid, DatePaiement: &paidAt},
	} {
		require.NoError(t, payments.CreatePayment(ctx, p))
	}

	out, err = runAdmin(t, "payments", "pending", "--progress=false")
	require.NoError(t, err, out)
	assert.Contains(t, out, "PENDING PAYMENTS 03/2026")
	assert.Contains(t, out, "2 payment(s), 170000 FCFA outstanding")
	assert.Contains(t, out, "Chambre vue mer")

	out, err = runAdmin(t, "payments", "pending", "--owner", "999", "--json")
	assert.Error(t, err, out)

	out, err = runAdmin(t, "payments", "pending", "--owner", strconv.FormatInt(tenant.ID, 10))
	require.Error(t, err)
	assert.Contains(t, out, "Seuls les propriétaires")

	out, err = runAdmin(t, "payments", "pending", "--owner", strconv.FormatInt(owner.ID, 10), "--json")
	require.NoError(t, err, out)
	var items []core.Payment
	require.NoError(t, json.Unmarshal([]byte(out), &items))
	require.Len(t, items, 2)
	for _, p := range items {
		assert.Equal(t, core.PaymentPending, p.Statut)
		assert.Equal(t, time.March, p.DateEcheance.Month())
	}
}

func TestConfigShowMasksSecrets(t *testing.T) {
	cfg := useTestConfig(t)
	cfg.SMTP.Password = "smtp-password"

	out, err := runAdmin(t, "config", "show")
	require.NoError(t, err)
	assert.NotContains(t, out, cfg.Auth.JWTSecret)
	assert.NotContains(t, out, "smtp-password")
	assert.Contains(t, out, "********")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "court", truncate("court", 10))
	assert.Equal(t, "Chambre...", truncate("Chambre vue mer", 10))
}
