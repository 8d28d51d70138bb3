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

// SQLiteMediaStorage persists room photos and videos in the medias table
type SQLiteMediaStorage struct {
	sqlite *SQLite
	logger *zap.SugaredLogger
}

// NewSQLiteMediaStorage creates a new SQLite-based media storage
func NewSQLiteMediaStorage(sqlite *SQLite, logger *zap.SugaredLogger) *SQLiteMediaStorage {
	return &SQLiteMediaStorage{sqlite: sqlite, logger: logger}
}

const mediaColumns = `id, chambre_id, url, type, cree_le, storage_key`

func scanMedia(row scanner) (*core.Media, error) {
	var m core.Media
	var mediaType, creeLe string
	if err := row.Scan(&m.ID, &m.ChambreID, &m.URL, &mediaType, &creeLe, &m.StorageKey); err != nil {
		return nil, err
	}
	m.Type = core.MediaType(mediaType)
	m.CreeLe = parseTime(creeLe)
	return &m, nil
}

// CreateMedia inserts a media record
func (s *SQLiteMediaStorage) CreateMedia(ctx context.Context, m *core.Media) error {
	if m.CreeLe.IsZero() {
		m.CreeLe = time.Now().UTC()
	}
	res, err := s.sqlite.WriteDB.ExecContext(ctx, `
		INSERT INTO medias (chambre_id, url, type, cree_le, storage_key)
		VALUES (?, ?, ?, ?, ?)`,
		m.ChambreID, m.URL, string(m.Type), formatTime(m.CreeLe), m.StorageKey)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrRoomNotFound
		}
		return fmt.Errorf("failed to create media: %w", err)
	}
	m.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read media id: %w", err)
	}
	return nil
}

// GetMedia retrieves a media record by id
func (s *SQLiteMediaStorage) GetMedia(ctx context.Context, id int64) (*core.Media, error) {
	row := s.sqlite.ReadDB.QueryRowContext(ctx, `SELECT `+mediaColumns+` FROM medias WHERE id = ?`, id)
	m, err := scanMedia(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMediaNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get media: %w", err)
	}
	return m, nil
}

// ListMediaForRoom returns the media of a room in upload order
func (s *SQLiteMediaStorage) ListMediaForRoom(ctx context.Context, chambreID int64) ([]core.Media, error) {
	rows, err := s.sqlite.ReadDB.QueryContext(ctx,
		`SELECT `+mediaColumns+` FROM medias WHERE chambre_id = ? ORDER BY id`, chambreID)
	if err != nil {
		return nil, fmt.Errorf("failed to list media: %w", err)
	}
	defer rows.Close()

	out := make([]core.Media, 0)
	for rows.Next() {
		m, err := scanMedia(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan media: %w", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// UpdateMedia saves url and type of m
func (s *SQLiteMediaStorage) UpdateMedia(ctx context.Context, m *core.Media) error {
	res, err := s.sqlite.WriteDB.ExecContext(ctx,
		`UPDATE medias SET url = ?, type = ?, storage_key = ? WHERE id = ?`,
		m.URL, string(m.Type), m.StorageKey, m.ID)
	if err != nil {
		return fmt.Errorf("failed to update media: %w", err)
	}
	return expectOneRow(res, ErrMediaNotFound)
}

// DeleteMedia removes a media record
func (s *SQLiteMediaStorage) DeleteMedia(ctx context.Context, id int64) error {
	res, err := s.sqlite.WriteDB.ExecContext(ctx, `DELETE FROM medias WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete media: %w", err)
	}
	return expectOneRow(res, ErrMediaNotFound)
}
