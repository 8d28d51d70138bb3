package bootstrap

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"go.uber.org/zap"
)

// DataDirectories defines the paths that need to exist before the server starts.
type DataDirectories struct {
	Base   string // Base data directory (default: ./data)
	Media  string // Uploaded photos and videos, empty when media goes to S3
	SQLite string // SQLite database path
}

// EnsureDataDirectories creates the data directories and checks they are writable.
func EnsureDataDirectories(dirs DataDirectories, sugar *zap.SugaredLogger) error {
	toCreate := []string{dirs.Base, filepath.Dir(dirs.SQLite)}
	if dirs.Media != "" {
		toCreate = append(toCreate, dirs.Media)
	}

	for _, dir := range toCreate {
		if dir == "" || dir == "." {
			continue
		}
		absPath, err := filepath.Abs(dir)
		if err != nil {
			return fmt.Errorf("failed to resolve absolute path for %s: %w", dir, err)
		}

		if err := os.MkdirAll(absPath, 0750); err != nil {
			return fmt.Errorf("failed to create directory %s: %w\n"+
				"  Remediation: Ensure the parent directory exists and is writable\n"+
				"  For Docker: Check volume mount permissions", dir, err)
		}

		testFile := filepath.Join(absPath, ".louyass_write_test")
		if err := os.WriteFile(testFile, []byte("test"), 0600); err != nil {
			return fmt.Errorf("directory %s is not writable: %w\n"+
				"  Remediation: Run 'chmod -R u+w %s'", dir, err, absPath)
		}
		_ = os.Remove(testFile)

		sugar.Infow("Data directory ready", "path", absPath)
	}
	return nil
}

// GenerateSecurePassword generates a cryptographically secure random password.
func GenerateSecurePassword(length int) (string, error) {
	if length < 16 {
		length = 16
	}

	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	password := base64.RawURLEncoding.EncodeToString(bytes)
	return password[:length], nil
}

// ClassifyRedisError explains why the Redis connection failed.
func ClassifyRedisError(err error, addr string) string {
	if err == nil {
		return ""
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Sprintf("Connection to Redis at %s timed out.\n"+
			"  Remediation:\n"+
			"  - Check if Redis is running: docker ps | grep redis\n"+
			"  - Verify network connectivity: nc -zv %s", addr, addr)
	}

	if errors.Is(err, syscall.ECONNREFUSED) || containsIgnoreCase(err.Error(), "connection refused") {
		return fmt.Sprintf("Connection refused by Redis at %s.\n"+
			"  Remediation:\n"+
			"  - Start Redis: docker compose up -d redis\n"+
			"  - Or disable it with LOUYASS_REDIS_ENABLED=false", addr)
	}

	if containsIgnoreCase(err.Error(), "NOAUTH") || containsIgnoreCase(err.Error(), "WRONGPASS") {
		return fmt.Sprintf("Authentication failed for Redis at %s.\n"+
			"  Remediation:\n"+
			"  - Check LOUYASS_REDIS_PASSWORD", addr)
	}

	return fmt.Sprintf("Failed to connect to Redis at %s: %v", addr, err)
}

// ClassifySQLiteError provides specific error messages based on the type of SQLite failure.
func ClassifySQLiteError(err error, dbPath string) string {
	if err == nil {
		return ""
	}

	errStr := err.Error()
	absPath, _ := filepath.Abs(dbPath)
	parentDir := filepath.Dir(absPath)

	switch {
	case containsIgnoreCase(errStr, "permission denied"):
		return fmt.Sprintf("Permission denied accessing SQLite database at %s.\n"+
			"  Remediation:\n"+
			"  - Check file permissions: ls -la %s\n"+
			"  - Check directory permissions: ls -la %s", absPath, absPath, parentDir)
	case containsIgnoreCase(errStr, "database is locked") || containsIgnoreCase(errStr, "SQLITE_BUSY"):
		return fmt.Sprintf("SQLite database at %s is locked by another process.\n"+
			"  Remediation:\n"+
			"  - Check for running servers: ps aux | grep louyass\n"+
			"  - Wait for any migration started with 'louyass migrate' to finish", absPath)
	case containsIgnoreCase(errStr, "no space") || containsIgnoreCase(errStr, "SQLITE_FULL"):
		return fmt.Sprintf("Disk full - cannot write to SQLite database at %s.\n"+
			"  Remediation:\n"+
			"  - Check available disk space: df -h %s", absPath, parentDir)
	case containsIgnoreCase(errStr, "corrupt") || containsIgnoreCase(errStr, "malformed"):
		return fmt.Sprintf("SQLite database at %s appears to be corrupted.\n"+
			"  Remediation:\n"+
			"  - Check integrity: sqlite3 %s \"PRAGMA integrity_check;\"\n"+
			"  - Restore from backup", absPath, absPath)
	case containsIgnoreCase(errStr, "read-only"):
		return fmt.Sprintf("SQLite database location is on a read-only file system: %s.\n"+
			"  Remediation:\n"+
			"  - Move the database with LOUYASS_SQLITE_PATH", absPath)
	}

	return fmt.Sprintf("Failed to initialize SQLite database at %s: %v\n"+
		"  Remediation:\n"+
		"  - Ensure the directory %s exists and is writable", absPath, err, parentDir)
}

func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
