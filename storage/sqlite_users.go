package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"louyass/core"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// SQLiteUserStorage persists accounts in the utilisateurs table
type SQLiteUserStorage struct {
	sqlite     *SQLite
	logger     *zap.SugaredLogger
	bcryptCost int
}

// NewSQLiteUserStorage creates a new SQLite-based user storage
func NewSQLiteUserStorage(sqlite *SQLite, logger *zap.SugaredLogger) *SQLiteUserStorage {
	return &SQLiteUserStorage{
		sqlite:     sqlite,
		logger:     logger,
		bcryptCost: bcrypt.DefaultCost,
	}
}

// SetBcryptCost overrides the password hashing cost
func (sus *SQLiteUserStorage) SetBcryptCost(cost int) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		sus.logger.Warnf("Ignoring bcrypt cost %d outside [%d, %d]", cost, bcrypt.MinCost, bcrypt.MaxCost)
		return
	}
	sus.bcryptCost = cost
}

// scanner is implemented by *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

const userColumns = `id, email, mot_de_passe, nom, prenom, nom_utilisateur, telephone, cni, role, cree_le,
	totp_secret, mfa_enabled, failed_login_attempts, locked_until`

func scanUser(row scanner) (*core.User, error) {
	var u core.User
	var role, creeLe string
	var lockedUntil sql.NullString
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Nom, &u.Prenom, &u.NomUtilisateur,
		&u.Telephone, &u.CNI, &role, &creeLe,
		&u.TOTPSecret, &u.MFAEnabled, &u.FailedLoginAttempts, &lockedUntil)
	if err != nil {
		return nil, err
	}
	u.Role = core.Role(role)
	u.CreeLe = parseTime(creeLe)
	u.LockedUntil = parseNullTime(lockedUntil)
	return &u, nil
}

// CreateUser hashes password and inserts the account. The e-mail is stored lower-cased.
func (sus *SQLiteUserStorage) CreateUser(ctx context.Context, user *core.User, password string) error {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), sus.bcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	user.Email = normalizeEmail(user.Email)
	user.PasswordHash = string(hashed)
	if user.CreeLe.IsZero() {
		user.CreeLe = time.Now().UTC()
	}

	res, err := sus.sqlite.WriteDB.ExecContext(ctx, `
		INSERT INTO utilisateurs (email, mot_de_passe, nom, prenom, nom_utilisateur, telephone, cni, role, cree_le)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.Email, user.PasswordHash, user.Nom, user.Prenom, user.NomUtilisateur,
		user.Telephone, user.CNI, string(user.Role), formatTime(user.CreeLe))
	if err != nil {
		if isUniqueViolation(err) {
			return ErrUserExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	user.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read user id: %w", err)
	}

	sus.logger.Infow("Created user", "user_id", user.ID, "role", user.Role)
	return nil
}

// GetUserByID retrieves a user by id
func (sus *SQLiteUserStorage) GetUserByID(ctx context.Context, id int64) (*core.User, error) {
	row := sus.sqlite.ReadDB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM utilisateurs WHERE id = ?`, id)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetUserByEmail retrieves a user by e-mail, case-insensitively
func (sus *SQLiteUserStorage) GetUserByEmail(ctx context.Context, email string) (*core.User, error) {
	row := sus.sqlite.ReadDB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM utilisateurs WHERE email = ?`, normalizeEmail(email))
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// ListUsers returns a page of users ordered by id
func (sus *SQLiteUserStorage) ListUsers(ctx context.Context, limit, offset int) ([]core.User, error) {
	rows, err := sus.sqlite.ReadDB.QueryContext(ctx,
		`SELECT `+userColumns+` FROM utilisateurs ORDER BY id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := make([]core.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// CountUsers returns the number of accounts
func (sus *SQLiteUserStorage) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	if err := sus.sqlite.ReadDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM utilisateurs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}

// UpdateUser saves the profile fields of user. Role and credentials are not touched.
func (sus *SQLiteUserStorage) UpdateUser(ctx context.Context, user *core.User) error {
	user.Email = normalizeEmail(user.Email)
	res, err := sus.sqlite.WriteDB.ExecContext(ctx, `
		UPDATE utilisateurs
		SET email = ?, nom = ?, prenom = ?, nom_utilisateur = ?, telephone = ?, cni = ?
		WHERE id = ?`,
		user.Email, user.Nom, user.Prenom, user.NomUtilisateur, user.Telephone, user.CNI, user.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrUserExists
		}
		return fmt.Errorf("failed to update user: %w", err)
	}
	return expectOneRow(res, ErrUserNotFound)
}

// DeleteUser removes an account and, through cascades, everything it owns
func (sus *SQLiteUserStorage) DeleteUser(ctx context.Context, id int64) error {
	res, err := sus.sqlite.WriteDB.ExecContext(ctx, `DELETE FROM utilisateurs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if err := expectOneRow(res, ErrUserNotFound); err != nil {
		return err
	}
	sus.logger.Infow("Deleted user", "user_id", id)
	return nil
}

// UpdatePassword replaces the password hash
func (sus *SQLiteUserStorage) UpdatePassword(ctx context.Context, id int64, password string) error {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), sus.bcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	res, err := sus.sqlite.WriteDB.ExecContext(ctx,
		`UPDATE utilisateurs SET mot_de_passe = ? WHERE id = ?`, string(hashed), id)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return expectOneRow(res, ErrUserNotFound)
}

// RecordFailedLogin increments the failure counter and locks the account for
// lockFor once threshold consecutive failures are reached. It returns the new count.
func (sus *SQLiteUserStorage) RecordFailedLogin(ctx context.Context, id int64, threshold int, lockFor time.Duration, now time.Time) (int, error) {
	var attempts int
	err := sus.sqlite.WithTransaction(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx,
			`UPDATE utilisateurs SET failed_login_attempts = failed_login_attempts + 1 WHERE id = ? RETURNING failed_login_attempts`,
			id).Scan(&attempts); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrUserNotFound
			}
			return err
		}
		if threshold > 0 && attempts >= threshold {
			until := now.Add(lockFor)
			if _, err := tx.ExecContext(ctx,
				`UPDATE utilisateurs SET locked_until = ?, failed_login_attempts = 0 WHERE id = ?`,
				formatTime(until), id); err != nil {
				return err
			}
			sus.logger.Warnw("Account locked after repeated login failures", "user_id", id, "until", until)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return 0, err
		}
		return 0, fmt.Errorf("failed to record login failure: %w", err)
	}
	return attempts, nil
}

// ResetFailedLogins clears the failure counter and any lock
func (sus *SQLiteUserStorage) ResetFailedLogins(ctx context.Context, id int64) error {
	_, err := sus.sqlite.WriteDB.ExecContext(ctx,
		`UPDATE utilisateurs SET failed_login_attempts = 0, locked_until = NULL WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to reset login failures: %w", err)
	}
	return nil
}

// SetMFA stores the TOTP secret and the enabled flag
func (sus *SQLiteUserStorage) SetMFA(ctx context.Context, id int64, secret string, enabled bool) error {
	res, err := sus.sqlite.WriteDB.ExecContext(ctx,
		`UPDATE utilisateurs SET totp_secret = ?, mfa_enabled = ? WHERE id = ?`, secret, boolToInt(enabled), id)
	if err != nil {
		return fmt.Errorf("failed to update MFA settings: %w", err)
	}
	return expectOneRow(res, ErrUserNotFound)
}

// CheckPassword compares a candidate password with the stored hash
func CheckPassword(user *core.User, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) == nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// expectOneRow maps a zero RowsAffected to notFound
func expectOneRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
