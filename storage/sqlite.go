package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"louyass/metrics"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLite holds the database connections shared by every repository.
// Writes go through WriteDB (single connection, WAL single writer); reads
// use the query_only ReadDB pool.
type SQLite struct {
	WriteDB *sql.DB
	ReadDB  *sql.DB
	Path    string
	Logger  *zap.SugaredLogger

	// previous counter values, Prometheus counters only take deltas
	prevWriteWaitCount         int64
	prevWriteMaxIdleClosed     int64
	prevWriteMaxLifetimeClosed int64
	prevReadWaitCount          int64
	prevReadMaxIdleClosed      int64
	prevReadMaxLifetimeClosed  int64
}

// buildDSN turns a path into a modernc DSN. Pragmas are passed in the DSN so
// that every pooled connection gets them, not only the first one.
func buildDSN(dbPath string, readOnly bool) string {
	pragmas := []string{
		"_pragma=foreign_keys(1)",
		"_pragma=busy_timeout(5000)",
		"_pragma=journal_mode(WAL)",
	}
	if readOnly {
		pragmas = append(pragmas, "_pragma=query_only(1)")
	}

	if dbPath == ":memory:" {
		return "file::memory:?cache=shared&" + strings.Join(pragmas, "&")
	}
	return "file:" + dbPath + "?" + strings.Join(pragmas, "&")
}

// configureSQLiteConnection verifies the pragmas took effect on a pool
func configureSQLiteConnection(db *sql.DB, logger *zap.SugaredLogger, dbPath string, poolType string) error {
	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	var fkEnabled int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&fkEnabled); err != nil {
		return fmt.Errorf("failed to verify foreign keys: %w", err)
	}
	if fkEnabled != 1 {
		return fmt.Errorf("foreign keys not enabled on %s pool (got: %d)", poolType, fkEnabled)
	}

	// In-memory databases report "memory" instead of "wal"
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to query journal mode: %w", err)
	}
	if dbPath != ":memory:" && journalMode != "wal" {
		return fmt.Errorf("WAL mode not enabled on %s pool (got: %s)", poolType, journalMode)
	}

	logger.Debugw("SQLite pool configured", "pool", poolType, "journal_mode", journalMode)
	return nil
}

// NewSQLite opens the database, configures both pools and applies pending
// schema migrations.
func NewSQLite(dbPath string, logger *zap.SugaredLogger) (*SQLite, error) {
	s, err := OpenSQLite(dbPath, logger)
	if err != nil {
		return nil, err
	}

	if err := s.RunMigrations(); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	logger.Infof("SQLite database initialized at %s", dbPath)
	return s, nil
}

// OpenSQLite opens the database without touching the schema. The admin CLI
// uses it to drive migrations by hand.
func OpenSQLite(dbPath string, logger *zap.SugaredLogger) (*SQLite, error) {
	if err := validateDatabasePath(dbPath); err != nil {
		return nil, fmt.Errorf("invalid database path: %w", err)
	}

	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	writeDB, err := sql.Open("sqlite", buildDSN(dbPath, false))
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite write database: %w", err)
	}
	writeDB.SetMaxOpenConns(1)
	writeDB.SetMaxIdleConns(1)
	writeDB.SetConnMaxLifetime(0)
	writeDB.SetConnMaxIdleTime(10 * time.Minute)

	if err := configureSQLiteConnection(writeDB, logger, dbPath, "write"); err != nil {
		_ = writeDB.Close()
		return nil, fmt.Errorf("failed to configure write connection: %w", err)
	}

	readDB, err := sql.Open("sqlite", buildDSN(dbPath, true))
	if err != nil {
		_ = writeDB.Close()
		return nil, fmt.Errorf("failed to open SQLite read database: %w", err)
	}
	readDB.SetMaxOpenConns(10)
	readDB.SetMaxIdleConns(5)
	readDB.SetConnMaxLifetime(5 * time.Minute)
	readDB.SetConnMaxIdleTime(10 * time.Minute)

	if err := configureSQLiteConnection(readDB, logger, dbPath, "read"); err != nil {
		_ = writeDB.Close()
		_ = readDB.Close()
		return nil, fmt.Errorf("failed to configure read connection: %w", err)
	}

	var queryOnly int
	if err := readDB.QueryRow("PRAGMA query_only").Scan(&queryOnly); err != nil || queryOnly != 1 {
		_ = writeDB.Close()
		_ = readDB.Close()
		return nil, fmt.Errorf("query_only mode not enabled on read pool (got: %d, err: %v)", queryOnly, err)
	}

	return &SQLite{
		WriteDB: writeDB,
		ReadDB:  readDB,
		Path:    dbPath,
		Logger:  logger,
	}, nil
}

// WithTransaction executes fn within a write transaction, rolling back on
// error or panic.
func (s *SQLite) WithTransaction(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.WriteDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("failed to rollback transaction (original error: %w, rollback error: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// NewMigrationRunner returns a runner with every schema migration registered
func (s *SQLite) NewMigrationRunner() (*MigrationRunner, error) {
	runner, err := NewMigrationRunner(s.WriteDB, s.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration runner: %w", err)
	}
	RegisterSQLiteMigrations(runner)
	return runner, nil
}

// RunMigrations applies all pending migrations and reports drift
func (s *SQLite) RunMigrations() error {
	runner, err := s.NewMigrationRunner()
	if err != nil {
		return err
	}

	if err := runner.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	issues, err := runner.VerifyIntegrity()
	if err != nil {
		s.Logger.Warnf("Failed to verify migration integrity: %v", err)
	}
	for _, issue := range issues {
		s.Logger.Warnf("Migration integrity issue: %s", issue)
	}

	status, err := runner.GetMigrationStatus()
	if err != nil {
		s.Logger.Warnf("Failed to get migration status: %v", err)
	} else {
		s.Logger.Infof("Migration status: %d applied, %d pending (latest %s)",
			status.Applied, status.Pending, status.Latest)
	}
	return nil
}

// Close closes both pools
func (s *SQLite) Close() error {
	var writeErr, readErr error
	if s.WriteDB != nil {
		writeErr = s.WriteDB.Close()
	}
	if s.ReadDB != nil {
		readErr = s.ReadDB.Close()
	}
	if writeErr != nil {
		return fmt.Errorf("failed to close write pool: %w", writeErr)
	}
	if readErr != nil {
		return fmt.Errorf("failed to close read pool: %w", readErr)
	}
	return nil
}

// HealthCheck verifies both pools answer
func (s *SQLite) HealthCheck(ctx context.Context) error {
	if err := s.WriteDB.PingContext(ctx); err != nil {
		return fmt.Errorf("write pool: %w", err)
	}
	if err := s.ReadDB.PingContext(ctx); err != nil {
		return fmt.Errorf("read pool: %w", err)
	}
	return nil
}

// ConnectionPoolStats returns statistics about the read and write connection pools
type ConnectionPoolStats struct {
	WritePool PoolStats `json:"write_pool"`
	ReadPool  PoolStats `json:"read_pool"`
}

type PoolStats struct {
	MaxOpenConnections int           `json:"max_open_connections"`
	OpenConnections    int           `json:"open_connections"`
	InUse              int           `json:"in_use"`
	Idle               int           `json:"idle"`
	WaitCount          int64         `json:"wait_count"`
	WaitDuration       time.Duration `json:"wait_duration"`
}

func toPoolStats(st sql.DBStats) PoolStats {
	return PoolStats{
		MaxOpenConnections: st.MaxOpenConnections,
		OpenConnections:    st.OpenConnections,
		InUse:              st.InUse,
		Idle:               st.Idle,
		WaitCount:          st.WaitCount,
		WaitDuration:       st.WaitDuration,
	}
}

// GetConnectionPoolStats returns current connection pool statistics
func (s *SQLite) GetConnectionPoolStats() ConnectionPoolStats {
	return ConnectionPoolStats{
		WritePool: toPoolStats(s.WriteDB.Stats()),
		ReadPool:  toPoolStats(s.ReadDB.Stats()),
	}
}

// StartMetricsCollection periodically exports pool stats to Prometheus until ctx is done
func (s *SQLite) StartMetricsCollection(ctx context.Context, interval time.Duration) {
	s.updatePoolMetrics()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.Logger.Info("SQLite metrics collection stopped")
				return
			case <-ticker.C:
				s.updatePoolMetrics()
			}
		}
	}()

	s.Logger.Infof("SQLite metrics collection started (interval: %v)", interval)
}

func (s *SQLite) updatePoolMetrics() {
	s.updatePoolMetricsForType("write", s.WriteDB.Stats(), &s.prevWriteWaitCount, &s.prevWriteMaxIdleClosed, &s.prevWriteMaxLifetimeClosed)
	s.updatePoolMetricsForType("read", s.ReadDB.Stats(), &s.prevReadWaitCount, &s.prevReadMaxIdleClosed, &s.prevReadMaxLifetimeClosed)
}

func (s *SQLite) updatePoolMetricsForType(poolType string, stats sql.DBStats, prevWaitCount, prevMaxIdleClosed, prevMaxLifetimeClosed *int64) {
	metrics.SQLitePoolOpenConnections.WithLabelValues(poolType).Set(float64(stats.OpenConnections))
	metrics.SQLitePoolInUse.WithLabelValues(poolType).Set(float64(stats.InUse))
	metrics.SQLitePoolIdle.WithLabelValues(poolType).Set(float64(stats.Idle))
	metrics.SQLitePoolMaxOpenConnections.WithLabelValues(poolType).Set(float64(stats.MaxOpenConnections))

	if delta := stats.WaitCount - *prevWaitCount; delta > 0 {
		metrics.SQLitePoolWaitCount.WithLabelValues(poolType).Add(float64(delta))
		*prevWaitCount = stats.WaitCount
	}
	if delta := stats.MaxIdleClosed - *prevMaxIdleClosed; delta > 0 {
		metrics.SQLitePoolMaxIdleClosed.WithLabelValues(poolType).Add(float64(delta))
		*prevMaxIdleClosed = stats.MaxIdleClosed
	}
	if delta := stats.MaxLifetimeClosed - *prevMaxLifetimeClosed; delta > 0 {
		metrics.SQLitePoolMaxLifetimeClosed.WithLabelValues(poolType).Add(float64(delta))
		*prevMaxLifetimeClosed = stats.MaxLifetimeClosed
	}
	if stats.WaitDuration > 0 {
		metrics.SQLitePoolWaitDuration.WithLabelValues(poolType).Observe(stats.WaitDuration.Seconds())
	}
}

// validateDatabasePath rejects paths that escape the working directory.
// Absolute paths are only accepted under the OS temp directory, which tests use.
func validateDatabasePath(dbPath string) error {
	if dbPath == "" {
		return errors.New("database path cannot be empty")
	}
	if dbPath == ":memory:" {
		return nil
	}
	if len(dbPath) > 512 {
		return errors.New("database path exceeds maximum length of 512 characters")
	}
	if strings.Contains(dbPath, "\x00") {
		return errors.New("null bytes not allowed in path")
	}
	if strings.Contains(dbPath, "..") {
		return fmt.Errorf("path traversal not allowed (..): %s", dbPath)
	}
	if strings.ContainsAny(dbPath, "?#") {
		return fmt.Errorf("query characters not allowed in path: %s", dbPath)
	}

	absPath, err := filepath.Abs(dbPath)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	if strings.HasPrefix(absPath, filepath.Clean(os.TempDir())) {
		return nil
	}
	if filepath.IsAbs(dbPath) {
		return fmt.Errorf("absolute paths not allowed: %s", dbPath)
	}

	wd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}
	rel, err := filepath.Rel(wd, absPath)
	if err != nil {
		return fmt.Errorf("failed to compute relative path: %w", err)
	}
	if strings.HasPrefix(rel, "..") {
		return fmt.Errorf("path escapes working directory: %s resolves to %s", dbPath, absPath)
	}
	return nil
}

// formatTime is the on-disk time representation: UTC RFC3339, which sorts lexically
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func formatNullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isUniqueViolation reports whether err is a UNIQUE constraint failure
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// isForeignKeyViolation reports whether err is a FOREIGN KEY constraint failure
func isForeignKeyViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
