package storage

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Migration is one versioned schema change
type Migration struct {
	Version     string              // semantic version, e.g. "1.2.0"
	Name        string              // e.g. "add_mfa_columns"
	Description string              // human-readable description
	Up          func(*sql.Tx) error // apply
	Down        func(*sql.Tx) error // rollback, nil when irreversible
	Checksum    string              // drift detection, derived from Version and Name
}

// MigrationRecord is a row of schema_migrations
type MigrationRecord struct {
	ID        int64
	Version   string
	Name      string
	Checksum  string
	AppliedAt time.Time
	Duration  int64 // milliseconds
}

// MigrationStatus summarises the schema state
type MigrationStatus struct {
	Registered int
	Applied    int
	Pending    int
	Latest     string
	Issues     []string
	Records    []MigrationRecord
	PendingSet []Migration
}

// MigrationRunner applies registered migrations in version order
type MigrationRunner struct {
	db         *sql.DB
	logger     *zap.SugaredLogger
	migrations []Migration
}

// NewMigrationRunner creates a runner and makes sure schema_migrations exists
func NewMigrationRunner(db *sql.DB, logger *zap.SugaredLogger) (*MigrationRunner, error) {
	runner := &MigrationRunner{
		db:     db,
		logger: logger,
	}

	if err := runner.ensureMigrationsTable(); err != nil {
		return nil, fmt.Errorf("failed to create migrations table: %w", err)
	}
	return runner, nil
}

func (r *MigrationRunner) ensureMigrationsTable() error {
	_, err := r.db.Exec(`
	CREATE TABLE IF NOT EXISTS schema_migrations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		version TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		checksum TEXT NOT NULL,
		applied_at TEXT NOT NULL,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		rolled_back_at TEXT,
		rollback_reason TEXT
	);
	`)
	return err
}

// Register adds a migration to the runner
func (r *MigrationRunner) Register(m Migration) {
	if m.Checksum == "" {
		m.Checksum = calculateChecksum(m)
	}
	r.migrations = append(r.migrations, m)
}

// Migrations returns the registered migrations in version order
func (r *MigrationRunner) Migrations() []Migration {
	out := make([]Migration, len(r.migrations))
	copy(out, r.migrations)
	sort.Slice(out, func(i, j int) bool {
		return compareVersions(out[i].Version, out[j].Version) < 0
	})
	return out
}

func calculateChecksum(m Migration) string {
	hash := sha256.Sum256([]byte(m.Version + ":" + m.Name))
	return hex.EncodeToString(hash[:8])
}

// GetAppliedMigrations returns the migrations currently applied
func (r *MigrationRunner) GetAppliedMigrations() ([]MigrationRecord, error) {
	rows, err := r.db.Query(`
		SELECT id, version, name, checksum, applied_at, duration_ms
		FROM schema_migrations
		WHERE rolled_back_at IS NULL
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	var records []MigrationRecord
	for rows.Next() {
		var rec MigrationRecord
		var appliedAt string
		if err := rows.Scan(&rec.ID, &rec.Version, &rec.Name, &rec.Checksum, &appliedAt, &rec.Duration); err != nil {
			return nil, fmt.Errorf("failed to scan migration record: %w", err)
		}
		rec.AppliedAt = parseTime(appliedAt)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(records, func(i, j int) bool {
		return compareVersions(records[i].Version, records[j].Version) < 0
	})
	return records, nil
}

// GetPendingMigrations returns registered migrations not yet applied, in version order
func (r *MigrationRunner) GetPendingMigrations() ([]Migration, error) {
	applied, err := r.GetAppliedMigrations()
	if err != nil {
		return nil, err
	}

	appliedSet := make(map[string]bool, len(applied))
	for _, rec := range applied {
		appliedSet[rec.Version] = true
	}

	var pending []Migration
	for _, m := range r.Migrations() {
		if !appliedSet[m.Version] {
			pending = append(pending, m)
		}
	}
	return pending, nil
}

// RunMigrations applies all pending migrations
func (r *MigrationRunner) RunMigrations() error {
	pending, err := r.GetPendingMigrations()
	if err != nil {
		return err
	}

	if len(pending) == 0 {
		r.logger.Debug("No pending migrations")
		return nil
	}

	r.logger.Infof("Running %d pending migrations", len(pending))
	for _, m := range pending {
		if err := r.runMigration(m); err != nil {
			return fmt.Errorf("migration %s (%s) failed: %w", m.Version, m.Name, err)
		}
	}
	return nil
}

// runMigration applies a single migration in its own transaction. A panic in
// Up is turned into an error.
func (r *MigrationRunner) runMigration(m Migration) (err error) {
	r.logger.Infof("Running migration %s: %s", m.Version, m.Name)
	start := time.Now()

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			err = fmt.Errorf("migration panicked: %v", p)
		}
	}()

	if err := m.Up(tx); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("migration Up() failed: %w", err)
	}

	duration := time.Since(start).Milliseconds()
	// a rolled back record of the same version is replaced
	if _, err := tx.Exec(`DELETE FROM schema_migrations WHERE version = ?`, m.Version); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to clear previous migration record: %w", err)
	}
	_, err = tx.Exec(`
		INSERT INTO schema_migrations (version, name, checksum, applied_at, duration_ms)
		VALUES (?, ?, ?, ?, ?)
	`, m.Version, m.Name, m.Checksum, formatTime(time.Now()), duration)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to record migration: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}

	r.logger.Infof("Migration %s completed in %dms", m.Version, duration)
	return nil
}

// RollbackMigration runs the Down step of an applied migration and marks it rolled back
func (r *MigrationRunner) RollbackMigration(version string, reason string) (err error) {
	var migration *Migration
	for i := range r.migrations {
		if r.migrations[i].Version == version {
			migration = &r.migrations[i]
			break
		}
	}
	if migration == nil {
		return fmt.Errorf("migration %s not found in registry", version)
	}
	if migration.Down == nil {
		return fmt.Errorf("migration %s does not support rollback (no Down function)", version)
	}

	var id int64
	err = r.db.QueryRow(`
		SELECT id FROM schema_migrations
		WHERE version = ? AND rolled_back_at IS NULL
	`, version).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("migration %s has not been applied or was already rolled back", version)
	}
	if err != nil {
		return fmt.Errorf("failed to check migration status: %w", err)
	}

	r.logger.Infof("Rolling back migration %s: %s (reason: %s)", version, migration.Name, reason)

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			err = fmt.Errorf("rollback panicked: %v", p)
		}
	}()

	if err := migration.Down(tx); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("rollback Down() failed: %w", err)
	}

	_, err = tx.Exec(`
		UPDATE schema_migrations
		SET rolled_back_at = ?, rollback_reason = ?
		WHERE id = ?
	`, formatTime(time.Now()), reason, id)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to mark migration as rolled back: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rollback: %w", err)
	}

	r.logger.Infof("Migration %s rolled back", version)
	return nil
}

// VerifyIntegrity reports applied migrations whose checksum changed or that are no longer registered
func (r *MigrationRunner) VerifyIntegrity() ([]string, error) {
	applied, err := r.GetAppliedMigrations()
	if err != nil {
		return nil, err
	}

	registered := make(map[string]Migration, len(r.migrations))
	for _, m := range r.migrations {
		registered[m.Version] = m
	}

	var issues []string
	for _, rec := range applied {
		m, ok := registered[rec.Version]
		if !ok {
			issues = append(issues, fmt.Sprintf("migration %s was applied but is not registered", rec.Version))
			continue
		}
		if m.Checksum != rec.Checksum {
			issues = append(issues, fmt.Sprintf("migration %s checksum mismatch: applied=%s, registered=%s",
				rec.Version, rec.Checksum, m.Checksum))
		}
	}
	return issues, nil
}

// GetMigrationStatus returns a summary of migration state
func (r *MigrationRunner) GetMigrationStatus() (*MigrationStatus, error) {
	applied, err := r.GetAppliedMigrations()
	if err != nil {
		return nil, err
	}
	pending, err := r.GetPendingMigrations()
	if err != nil {
		return nil, err
	}
	issues, err := r.VerifyIntegrity()
	if err != nil {
		return nil, err
	}

	status := &MigrationStatus{
		Registered: len(r.migrations),
		Applied:    len(applied),
		Pending:    len(pending),
		Issues:     issues,
		Records:    applied,
		PendingSet: pending,
	}
	if len(applied) > 0 {
		status.Latest = applied[len(applied)-1].Version
	}
	return status, nil
}

// compareVersions compares two dotted versions numerically.
// Returns -1 if a < b, 0 if a == b, 1 if a > b
func compareVersions(a, b string) int {
	partsA := strings.Split(a, ".")
	partsB := strings.Split(b, ".")

	n := max(len(partsA), len(partsB))
	for i := 0; i < n; i++ {
		var numA, numB int
		if i < len(partsA) {
			fmt.Sscanf(partsA[i], "%d", &numA)
		}
		if i < len(partsB) {
			fmt.Sscanf(partsB[i], "%d", &numB)
		}
		if numA < numB {
			return -1
		}
		if numA > numB {
			return 1
		}
	}
	return 0
}

// validateSQLIdentifier accepts [A-Za-z_][A-Za-z0-9_]*
func validateSQLIdentifier(name string) error {
	if name == "" {
		return errors.New("SQL identifier cannot be empty")
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		letter := c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_'
		digit := c >= '0' && c <= '9'
		if !letter && (i == 0 || !digit) {
			return fmt.Errorf("invalid SQL identifier %q at position %d", name, i)
		}
	}
	return nil
}

func columnExists(tx *sql.Tx, table, column string) (bool, error) {
	if err := validateSQLIdentifier(table); err != nil {
		return false, fmt.Errorf("invalid table name: %w", err)
	}
	if err := validateSQLIdentifier(column); err != nil {
		return false, fmt.Errorf("invalid column name: %w", err)
	}

	var count int
	err := tx.QueryRow("SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?", table, column).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func addColumnIfNotExists(tx *sql.Tx, table, column, definition string) error {
	exists, err := columnExists(tx, table, column)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	// identifiers validated by columnExists
	_, err = tx.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition))
	return err
}

func dropColumnIfExists(tx *sql.Tx, table, column string) error {
	exists, err := columnExists(tx, table, column)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}
	_, err = tx.Exec(fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", table, column))
	return err
}

func createIndexIfNotExists(tx *sql.Tx, indexName, table, columns string) error {
	if err := validateSQLIdentifier(indexName); err != nil {
		return fmt.Errorf("invalid index name: %w", err)
	}
	if err := validateSQLIdentifier(table); err != nil {
		return fmt.Errorf("invalid table name: %w", err)
	}
	for _, col := range strings.Split(columns, ",") {
		if err := validateSQLIdentifier(strings.TrimSpace(col)); err != nil {
			return fmt.Errorf("invalid column name in index: %w", err)
		}
	}

	_, err := tx.Exec(fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s(%s)", indexName, table, columns))
	return err
}
