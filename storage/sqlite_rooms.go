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

// RoomFilter narrows ListRooms
type RoomFilter struct {
	MaisonID   int64
	Disponible *bool
	Limit      int
	Offset     int
}

// SQLiteRoomStorage persists rooms in the chambres table
type SQLiteRoomStorage struct {
	sqlite *SQLite
	logger *zap.SugaredLogger
}

// NewSQLiteRoomStorage creates a new SQLite-based room storage
func NewSQLiteRoomStorage(sqlite *SQLite, logger *zap.SugaredLogger) *SQLiteRoomStorage {
	return &SQLiteRoomStorage{sqlite: sqlite, logger: logger}
}

const roomColumns = `c.id, c.maison_id, c.titre, c.description, c.taille, c.type, c.meublee, c.prix,
	c.capacite, c.salle_de_bain, c.disponible, c.cree_le`

func scanRoom(row scanner, extra ...interface{}) (*core.Room, error) {
	var r core.Room
	var roomType, creeLe string
	dest := []interface{}{&r.ID, &r.MaisonID, &r.Titre, &r.Description, &r.Taille, &roomType,
		&r.Meublee, &r.Prix, &r.Capacite, &r.SalleDeBain, &r.Disponible, &creeLe}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	r.Type = core.RoomType(roomType)
	r.CreeLe = parseTime(creeLe)
	return &r, nil
}

// scanRoomWithHouse scans roomColumns followed by houseJoinColumns
func scanRoomWithHouse(row scanner, extra ...interface{}) (*core.Room, error) {
	var h core.House
	var lat, lng sql.NullFloat64
	var houseCree string
	houseDest := []interface{}{&h.ID, &h.ProprietaireID, &h.Nom, &h.Adresse, &h.Ville, &h.Superficie,
		&lat, &lng, &h.Description, &houseCree}
	r, err := scanRoom(row, append(houseDest, extra...)...)
	if err != nil {
		return nil, err
	}
	if lat.Valid {
		h.Latitude = &lat.Float64
	}
	if lng.Valid {
		h.Longitude = &lng.Float64
	}
	h.CreeLe = parseTime(houseCree)
	r.Maison = &h
	return r, nil
}

const houseJoinColumns = `m.id, m.proprietaire_id, m.nom, m.adresse, m.ville, m.superficie, m.latitude,
	m.longitude, m.description, m.cree_le`

// CreateRoom inserts a room. The house must exist.
func (s *SQLiteRoomStorage) CreateRoom(ctx context.Context, r *core.Room) error {
	if r.CreeLe.IsZero() {
		r.CreeLe = time.Now().UTC()
	}
	res, err := s.sqlite.WriteDB.ExecContext(ctx, `
		INSERT INTO chambres (maison_id, titre, description, taille, type, meublee, prix, capacite, salle_de_bain, disponible, cree_le)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.MaisonID, r.Titre, r.Description, r.Taille, string(r.Type), boolToInt(r.Meublee), r.Prix,
		r.Capacite, boolToInt(r.SalleDeBain), boolToInt(r.Disponible), formatTime(r.CreeLe))
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrHouseNotFound
		}
		return fmt.Errorf("failed to create room: %w", err)
	}
	r.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read room id: %w", err)
	}
	return nil
}

// GetRoom retrieves a room by id without its house
func (s *SQLiteRoomStorage) GetRoom(ctx context.Context, id int64) (*core.Room, error) {
	row := s.sqlite.ReadDB.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM chambres c WHERE c.id = ?`, id)
	r, err := scanRoom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get room: %w", err)
	}
	return r, nil
}

// GetRoomWithOwner retrieves a room together with its house, which carries the owner id
func (s *SQLiteRoomStorage) GetRoomWithOwner(ctx context.Context, id int64) (*core.Room, error) {
	row := s.sqlite.ReadDB.QueryRowContext(ctx, `
		SELECT `+roomColumns+`, `+houseJoinColumns+`
		FROM chambres c JOIN maisons m ON m.id = c.maison_id
		WHERE c.id = ?`, id)
	r, err := scanRoomWithHouse(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get room: %w", err)
	}
	return r, nil
}

// ListRooms returns a page of rooms matching filter and the total number of matches
func (s *SQLiteRoomStorage) ListRooms(ctx context.Context, filter RoomFilter) ([]core.Room, int64, error) {
	var where []string
	var args []interface{}
	if filter.MaisonID > 0 {
		where = append(where, "c.maison_id = ?")
		args = append(args, filter.MaisonID)
	}
	if filter.Disponible != nil {
		where = append(where, "c.disponible = ?")
		args = append(args, boolToInt(*filter.Disponible))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	if err := s.sqlite.ReadDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM chambres c`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count rooms: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = core.DefaultPageLimit
	}
	rows, err := s.sqlite.ReadDB.QueryContext(ctx,
		`SELECT `+roomColumns+` FROM chambres c`+clause+` ORDER BY c.id LIMIT ? OFFSET ?`,
		append(args, limit, filter.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list rooms: %w", err)
	}
	defer rows.Close()

	rooms := make([]core.Room, 0)
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan room: %w", err)
		}
		rooms = append(rooms, *r)
	}
	return rooms, total, rows.Err()
}

// UpdateRoom saves every editable field of r, its house included
func (s *SQLiteRoomStorage) UpdateRoom(ctx context.Context, r *core.Room) error {
	res, err := s.sqlite.WriteDB.ExecContext(ctx, `
		UPDATE chambres
		SET maison_id = ?, titre = ?, description = ?, taille = ?, type = ?, meublee = ?, prix = ?, capacite = ?,
		    salle_de_bain = ?, disponible = ?
		WHERE id = ?`,
		r.MaisonID, r.Titre, r.Description, r.Taille, string(r.Type), boolToInt(r.Meublee), r.Prix, r.Capacite,
		boolToInt(r.SalleDeBain), boolToInt(r.Disponible), r.ID)
	if err != nil {
		return fmt.Errorf("failed to update room: %w", err)
	}
	return expectOneRow(res, ErrRoomNotFound)
}

// DeleteRoom removes a room with its media, appointments and contracts
func (s *SQLiteRoomStorage) DeleteRoom(ctx context.Context, id int64) error {
	res, err := s.sqlite.WriteDB.ExecContext(ctx, `DELETE FROM chambres WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete room: %w", err)
	}
	return expectOneRow(res, ErrRoomNotFound)
}

func setRoomAvailabilityTx(ctx context.Context, tx *sql.Tx, id int64, available bool) error {
	res, err := tx.ExecContext(ctx, `UPDATE chambres SET disponible = ? WHERE id = ?`, boolToInt(available), id)
	if err != nil {
		return fmt.Errorf("failed to update room availability: %w", err)
	}
	return expectOneRow(res, ErrRoomNotFound)
}
