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
)

// HouseFilter narrows ListHouses
type HouseFilter struct {
	Search         string // matched against nom, adresse and ville
	ProprietaireID int64
	Limit          int
	Offset         int
}

// SQLiteHouseStorage persists houses in the maisons table
type SQLiteHouseStorage struct {
	sqlite *SQLite
	logger *zap.SugaredLogger
}

// NewSQLiteHouseStorage creates a new SQLite-based house storage
func NewSQLiteHouseStorage(sqlite *SQLite, logger *zap.SugaredLogger) *SQLiteHouseStorage {
	return &SQLiteHouseStorage{sqlite: sqlite, logger: logger}
}

const houseColumns = `id, proprietaire_id, nom, adresse, ville, superficie, latitude, longitude, description, cree_le`

func scanHouse(row scanner) (*core.House, error) {
	var h core.House
	var lat, lng sql.NullFloat64
	var creeLe string
	if err := row.Scan(&h.ID, &h.ProprietaireID, &h.Nom, &h.Adresse, &h.Ville, &h.Superficie,
		&lat, &lng, &h.Description, &creeLe); err != nil {
		return nil, err
	}
	if lat.Valid {
		h.Latitude = &lat.Float64
	}
	if lng.Valid {
		h.Longitude = &lng.Float64
	}
	h.CreeLe = parseTime(creeLe)
	return &h, nil
}

func nullFloat(f *float64) interface{} {
	if f == nil {
		return nil
	}
	return *f
}

// CreateHouse inserts a house
func (s *SQLiteHouseStorage) CreateHouse(ctx context.Context, h *core.House) error {
	if h.CreeLe.IsZero() {
		h.CreeLe = time.Now().UTC()
	}
	res, err := s.sqlite.WriteDB.ExecContext(ctx, `
		INSERT INTO maisons (proprietaire_id, nom, adresse, ville, superficie, latitude, longitude, description, cree_le)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.ProprietaireID, h.Nom, h.Adresse, h.Ville, h.Superficie,
		nullFloat(h.Latitude), nullFloat(h.Longitude), h.Description, formatTime(h.CreeLe))
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to create house: %w", err)
	}
	h.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read house id: %w", err)
	}
	return nil
}

// GetHouse retrieves a house by id
func (s *SQLiteHouseStorage) GetHouse(ctx context.Context, id int64) (*core.House, error) {
	row := s.sqlite.ReadDB.QueryRowContext(ctx, `SELECT `+houseColumns+` FROM maisons WHERE id = ?`, id)
	h, err := scanHouse(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrHouseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get house: %w", err)
	}
	return h, nil
}

// ListHouses returns a page of houses matching filter and the total number of matches
func (s *SQLiteHouseStorage) ListHouses(ctx context.Context, filter HouseFilter) ([]core.House, int64, error) {
	var where []string
	var args []interface{}
	if filter.Search != "" {
		like := "%" + escapeLike(filter.Search) + "%"
		where = append(where, `(nom LIKE ? ESCAPE '\' OR adresse LIKE ? ESCAPE '\' OR ville LIKE ? ESCAPE '\')`)
		args = append(args, like, like, like)
	}
	if filter.ProprietaireID > 0 {
		where = append(where, "proprietaire_id = ?")
		args = append(args, filter.ProprietaireID)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	if err := s.sqlite.ReadDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM maisons`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count houses: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = core.DefaultPageLimit
	}
	rows, err := s.sqlite.ReadDB.QueryContext(ctx,
		`SELECT `+houseColumns+` FROM maisons`+clause+` ORDER BY id LIMIT ? OFFSET ?`,
		append(args, limit, filter.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list houses: %w", err)
	}
	defer rows.Close()

	houses := make([]core.House, 0)
	for rows.Next() {
		h, err := scanHouse(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan house: %w", err)
		}
		houses = append(houses, *h)
	}
	return houses, total, rows.Err()
}

// UpdateHouse saves every editable field of h. The owner cannot change.
func (s *SQLiteHouseStorage) UpdateHouse(ctx context.Context, h *core.House) error {
	res, err := s.sqlite.WriteDB.ExecContext(ctx, `
		UPDATE maisons
		SET nom = ?, adresse = ?, ville = ?, superficie = ?, latitude = ?, longitude = ?, description = ?
		WHERE id = ?`,
		h.Nom, h.Adresse, h.Ville, h.Superficie, nullFloat(h.Latitude), nullFloat(h.Longitude), h.Description, h.ID)
	if err != nil {
		return fmt.Errorf("failed to update house: %w", err)
	}
	return expectOneRow(res, ErrHouseNotFound)
}

// DeleteHouse removes a house with its rooms
func (s *SQLiteHouseStorage) DeleteHouse(ctx context.Context, id int64) error {
	res, err := s.sqlite.WriteDB.ExecContext(ctx, `DELETE FROM maisons WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete house: %w", err)
	}
	return expectOneRow(res, ErrHouseNotFound)
}

// escapeLike escapes LIKE wildcards in user input, for use with ESCAPE '\'
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
