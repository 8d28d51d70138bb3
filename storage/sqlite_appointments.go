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

// AppointmentFilter narrows ListAppointments. Exactly one of LocataireID and
// ProprietaireID is expected to be set.
type AppointmentFilter struct {
	LocataireID    int64
	ProprietaireID int64
	Statut         core.AppointmentStatus
	Limit          int
	Offset         int
}

// SQLiteAppointmentStorage persists viewing requests in the rendez_vous table
type SQLiteAppointmentStorage struct {
	sqlite *SQLite
	logger *zap.SugaredLogger
}

// NewSQLiteAppointmentStorage creates a new SQLite-based appointment storage
func NewSQLiteAppointmentStorage(sqlite *SQLite, logger *zap.SugaredLogger) *SQLiteAppointmentStorage {
	return &SQLiteAppointmentStorage{sqlite: sqlite, logger: logger}
}

// appointments are always loaded with tenant, room and house
const appointmentSelect = `
	SELECT ` + roomColumns + `, ` + houseJoinColumns + `,
	       r.id, r.locataire_id, r.chambre_id, r.date_heure, r.statut, r.cree_le,
	       u.id, u.nom, u.prenom, u.email
	FROM rendez_vous r
	JOIN utilisateurs u ON u.id = r.locataire_id
	JOIN chambres c ON c.id = r.chambre_id
	JOIN maisons m ON m.id = c.maison_id`

func scanAppointment(row scanner) (*core.Appointment, error) {
	var a core.Appointment
	var tenant core.UserSummary
	var dateHeure, statut, creeLe string

	room, err := scanRoomWithHouse(row,
		&a.ID, &a.LocataireID, &a.ChambreID, &dateHeure, &statut, &creeLe,
		&tenant.ID, &tenant.Nom, &tenant.Prenom, &tenant.Email)
	if err != nil {
		return nil, err
	}
	a.DateHeure = parseTime(dateHeure)
	a.Statut = core.AppointmentStatus(statut)
	a.CreeLe = parseTime(creeLe)
	a.Locataire = &tenant
	a.Chambre = room
	return &a, nil
}

// CreateAppointment inserts an appointment
func (s *SQLiteAppointmentStorage) CreateAppointment(ctx context.Context, a *core.Appointment) error {
	if a.CreeLe.IsZero() {
		a.CreeLe = time.Now().UTC()
	}
	if a.Statut == "" {
		a.Statut = core.AppointmentPending
	}
	res, err := s.sqlite.WriteDB.ExecContext(ctx, `
		INSERT INTO rendez_vous (locataire_id, chambre_id, date_heure, statut, cree_le)
		VALUES (?, ?, ?, ?, ?)`,
		a.LocataireID, a.ChambreID, formatTime(a.DateHeure), string(a.Statut), formatTime(a.CreeLe))
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrConstraintViolation
		}
		return fmt.Errorf("failed to create appointment: %w", err)
	}
	a.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read appointment id: %w", err)
	}
	return nil
}

// GetAppointment retrieves an appointment with tenant, room and house
func (s *SQLiteAppointmentStorage) GetAppointment(ctx context.Context, id int64) (*core.Appointment, error) {
	row := s.sqlite.ReadDB.QueryRowContext(ctx, appointmentSelect+` WHERE r.id = ?`, id)
	a, err := scanAppointment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAppointmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}
	return a, nil
}

// ListAppointments returns appointments of a tenant or on the rooms of an owner, soonest first
func (s *SQLiteAppointmentStorage) ListAppointments(ctx context.Context, filter AppointmentFilter) ([]core.Appointment, error) {
	var where []string
	var args []interface{}
	if filter.LocataireID > 0 {
		where = append(where, "r.locataire_id = ?")
		args = append(args, filter.LocataireID)
	}
	if filter.ProprietaireID > 0 {
		where = append(where, "m.proprietaire_id = ?")
		args = append(args, filter.ProprietaireID)
	}
	if filter.Statut != "" {
		where = append(where, "r.statut = ?")
		args = append(args, string(filter.Statut))
	}
	query := appointmentSelect
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = core.DefaultPageLimit
	}
	query += " ORDER BY r.date_heure, r.id LIMIT ? OFFSET ?"
	args = append(args, limit, filter.Offset)

	rows, err := s.sqlite.ReadDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	defer rows.Close()

	out := make([]core.Appointment, 0)
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan appointment: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// UpdateAppointment saves date and status of a
func (s *SQLiteAppointmentStorage) UpdateAppointment(ctx context.Context, a *core.Appointment) error {
	res, err := s.sqlite.WriteDB.ExecContext(ctx,
		`UPDATE rendez_vous SET date_heure = ?, statut = ? WHERE id = ?`,
		formatTime(a.DateHeure), string(a.Statut), a.ID)
	if err != nil {
		return fmt.Errorf("failed to update appointment: %w", err)
	}
	return expectOneRow(res, ErrAppointmentNotFound)
}

// DeleteAppointment removes an appointment
func (s *SQLiteAppointmentStorage) DeleteAppointment(ctx context.Context, id int64) error {
	res, err := s.sqlite.WriteDB.ExecContext(ctx, `DELETE FROM rendez_vous WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete appointment: %w", err)
	}
	return expectOneRow(res, ErrAppointmentNotFound)
}

// HasConfirmedAppointment reports whether the tenant has a confirmed viewing of the room
func (s *SQLiteAppointmentStorage) HasConfirmedAppointment(ctx context.Context, locataireID, chambreID int64) (bool, error) {
	var exists int
	err := s.sqlite.ReadDB.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM rendez_vous WHERE locataire_id = ? AND chambre_id = ? AND statut = ?
		)`, locataireID, chambreID, string(core.AppointmentConfirmed)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check appointments: %w", err)
	}
	return exists == 1, nil
}
