package storage

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRunMigrations_AppliesAll(t *testing.T) {
	s := newTestSQLite(t)

	runner, err := s.NewMigrationRunner()
	require.NoError(t, err)

	status, err := runner.GetMigrationStatus()
	require.NoError(t, err)
	assert.Equal(t, status.Registered, status.Applied)
	assert.Zero(t, status.Pending)
	assert.Empty(t, status.Issues)
	assert.Equal(t, "1.3.0", status.Latest)
}

func TestRunMigrations_Idempotent(t *testing.T) {
	s := newTestSQLite(t)
	require.NoError(t, s.RunMigrations())
	require.NoError(t, s.RunMigrations())

	var count int
	require.NoError(t, s.ReadDB.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&count))
	assert.Equal(t, 4, count)
}

func TestRollbackMigration_AndReapply(t *testing.T) {
	s := newTestSQLite(t)
	runner, err := s.NewMigrationRunner()
	require.NoError(t, err)

	require.NoError(t, runner.RollbackMigration("1.2.0", "test"))

	tx, err := s.WriteDB.Begin()
	require.NoError(t, err)
	exists, err := columnExists(tx, "medias", "storage_key")
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())
	assert.False(t, exists)

	pending, err := runner.GetPendingMigrations()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "1.2.0", pending[0].Version)

	require.NoError(t, runner.RunMigrations())
	status, err := runner.GetMigrationStatus()
	require.NoError(t, err)
	assert.Zero(t, status.Pending)
}

func TestRollbackMigration_Errors(t *testing.T) {
	s := newTestSQLite(t)
	runner, err := s.NewMigrationRunner()
	require.NoError(t, err)

	assert.Error(t, runner.RollbackMigration("9.9.9", "unknown"))

	runner.Register(Migration{Version: "2.0.0", Name: "no_down", Up: func(*sql.Tx) error { return nil }})
	assert.Error(t, runner.RollbackMigration("2.0.0", "irreversible"))
}

func TestRunMigration_PanicBecomesError(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "panic.db"), zap.NewNop().Sugar())
	require.NoError(t, err)
	defer s.Close()

	runner, err := NewMigrationRunner(s.WriteDB, zap.NewNop().Sugar())
	require.NoError(t, err)
	runner.Register(Migration{Version: "1.0.0", Name: "boom", Up: func(*sql.Tx) error { panic("boom") }})

	err = runner.RunMigrations()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")
}

func TestVerifyIntegrity_DetectsDrift(t *testing.T) {
	s := newTestSQLite(t)
	_, err := s.WriteDB.Exec(`UPDATE schema_migrations SET checksum = 'tampered' WHERE version = '1.1.0'`)
	require.NoError(t, err)

	runner, err := s.NewMigrationRunner()
	require.NoError(t, err)
	issues, err := runner.VerifyIntegrity()
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0], "1.1.0")
}

func TestCompareVersions(t *testing.T) {
	assert.Equal(t, -1, compareVersions("1.2.0", "1.10.0"))
	assert.Equal(t, 0, compareVersions("1.2", "1.2.0"))
	assert.Equal(t, 1, compareVersions("2.0.0", "1.9.9"))
}

func TestValidateSQLIdentifier(t *testing.T) {
	assert.NoError(t, validateSQLIdentifier("chambres"))
	assert.NoError(t, validateSQLIdentifier("_idx1"))
	assert.Error(t, validateSQLIdentifier("1abc"))
	assert.Error(t, validateSQLIdentifier("a;DROP"))
	assert.Error(t, validateSQLIdentifier(""))
}
