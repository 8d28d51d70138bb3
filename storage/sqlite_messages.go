package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"louyass/core"

	"go.uber.org/zap"
)

// SQLiteMessageStorage persists direct messages
type SQLiteMessageStorage struct {
	sqlite *SQLite
	logger *zap.SugaredLogger
}

// NewSQLiteMessageStorage creates a new SQLite-based message storage
func NewSQLiteMessageStorage(sqlite *SQLite, logger *zap.SugaredLogger) *SQLiteMessageStorage {
	return &SQLiteMessageStorage{sqlite: sqlite, logger: logger}
}

const messageSelect = `
	SELECT g.id, g.expediteur_id, g.destinataire_id, g.contenu, g.date_envoi, g.lu, e.email, d.email
	FROM messages g
	JOIN utilisateurs e ON e.id = g.expediteur_id
	JOIN utilisateurs d ON d.id = g.destinataire_id`

func scanMessage(row scanner) (*core.Message, error) {
	var m core.Message
	var dateEnvoi string
	if err := row.Scan(&m.ID, &m.ExpediteurID, &m.DestinataireID, &m.Contenu, &dateEnvoi, &m.Lu,
		&m.ExpediteurEmail, &m.DestinataireEmail); err != nil {
		return nil, err
	}
	m.DateEnvoi = parseTime(dateEnvoi)
	return &m, nil
}

func (s *SQLiteMessageStorage) list(ctx context.Context, query string, args ...interface{}) ([]core.Message, error) {
	rows, err := s.sqlite.ReadDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	out := make([]core.Message, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// CreateMessage inserts a message. ErrUserNotFound is returned when either party does not exist.
func (s *SQLiteMessageStorage) CreateMessage(ctx context.Context, m *core.Message) error {
	if m.DateEnvoi.IsZero() {
		m.DateEnvoi = time.Now().UTC()
	}
	res, err := s.sqlite.WriteDB.ExecContext(ctx, `
		INSERT INTO messages (expediteur_id, destinataire_id, contenu, date_envoi, lu)
		VALUES (?, ?, ?, ?, 0)`,
		m.ExpediteurID, m.DestinataireID, m.Contenu, formatTime(m.DateEnvoi))
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to create message: %w", err)
	}
	m.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read message id: %w", err)
	}
	return nil
}

// GetMessage retrieves a message with both e-mail addresses
func (s *SQLiteMessageStorage) GetMessage(ctx context.Context, id int64) (*core.Message, error) {
	row := s.sqlite.ReadDB.QueryRowContext(ctx, messageSelect+` WHERE g.id = ?`, id)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return m, nil
}

// ListMessagesForUser returns messages sent or received by the user, newest
// first, optionally filtered on the read flag
func (s *SQLiteMessageStorage) ListMessagesForUser(ctx context.Context, userID int64, isRead *bool, limit, offset int) ([]core.Message, error) {
	if limit <= 0 {
		limit = core.DefaultPageLimit
	}
	query := messageSelect + ` WHERE (g.expediteur_id = ? OR g.destinataire_id = ?)`
	args := []interface{}{userID, userID}
	if isRead != nil {
		query += ` AND g.lu = ?`
		args = append(args, boolToInt(*isRead))
	}
	query += ` ORDER BY g.date_envoi DESC, g.id DESC LIMIT ? OFFSET ?`
	return s.list(ctx, query, append(args, limit, offset)...)
}

// ListConversation returns the messages exchanged between two users, oldest first
func (s *SQLiteMessageStorage) ListConversation(ctx context.Context, userA, userB int64, limit, offset int) ([]core.Message, error) {
	if limit <= 0 {
		limit = core.DefaultPageLimit
	}
	return s.list(ctx, messageSelect+`
		WHERE (g.expediteur_id = ? AND g.destinataire_id = ?) OR (g.expediteur_id = ? AND g.destinataire_id = ?)
		ORDER BY g.date_envoi, g.id LIMIT ? OFFSET ?`,
		userA, userB, userB, userA, limit, offset)
}

// MarkRead sets the read flag
func (s *SQLiteMessageStorage) MarkRead(ctx context.Context, id int64) error {
	res, err := s.sqlite.WriteDB.ExecContext(ctx, `UPDATE messages SET lu = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to mark message read: %w", err)
	}
	return expectOneRow(res, ErrMessageNotFound)
}

// DeleteMessage removes a message
func (s *SQLiteMessageStorage) DeleteMessage(ctx context.Context, id int64) error {
	res, err := s.sqlite.WriteDB.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return expectOneRow(res, ErrMessageNotFound)
}
