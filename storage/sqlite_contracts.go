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

// ContractFilter narrows ListContracts
type ContractFilter struct {
	LocataireID    int64
	ProprietaireID int64
	Statut         core.ContractStatus
}

// SQLiteContractStorage persists leases in the contrats table
type SQLiteContractStorage struct {
	sqlite *SQLite
	logger *zap.SugaredLogger
}

// NewSQLiteContractStorage creates a new SQLite-based contract storage
func NewSQLiteContractStorage(sqlite *SQLite, logger *zap.SugaredLogger) *SQLiteContractStorage {
	return &SQLiteContractStorage{sqlite: sqlite, logger: logger}
}

const contractColumns = `k.id, k.locataire_id, k.chambre_id, k.date_debut, k.date_fin, k.montant_caution,
	k.mois_caution, k.description, k.mode_paiement, k.periodicite, k.statut, k.cree_le`

// contract details: room, house, contract, tenant
const contractDetailSelect = `
	SELECT ` + roomColumns + `, ` + houseJoinColumns + `, ` + contractColumns + `,
	       u.id, u.nom, u.prenom, u.email
	FROM contrats k
	JOIN utilisateurs u ON u.id = k.locataire_id
	JOIN chambres c ON c.id = k.chambre_id
	JOIN maisons m ON m.id = c.maison_id`

// contractDest holds scan targets for contractColumns
type contractDest struct {
	c core.Contract

	dateDebut, dateFin, statut, creeLe string
}

func (d *contractDest) targets() []interface{} {
	return []interface{}{&d.c.ID, &d.c.LocataireID, &d.c.ChambreID, &d.dateDebut, &d.dateFin,
		&d.c.MontantCaution, &d.c.MoisCaution, &d.c.Description, &d.c.ModePaiement,
		&d.c.Periodicite, &d.statut, &d.creeLe}
}

func (d *contractDest) contract() *core.Contract {
	c := d.c
	c.DateDebut = parseTime(d.dateDebut)
	c.DateFin = parseTime(d.dateFin)
	c.Statut = core.ContractStatus(d.statut)
	c.CreeLe = parseTime(d.creeLe)
	return &c
}

func scanContract(row scanner) (*core.Contract, error) {
	var d contractDest
	if err := row.Scan(d.targets()...); err != nil {
		return nil, err
	}
	return d.contract(), nil
}

func scanContractDetails(row scanner) (*core.Contract, error) {
	var d contractDest
	var tenant core.UserSummary
	extra := append(d.targets(), &tenant.ID, &tenant.Nom, &tenant.Prenom, &tenant.Email)
	room, err := scanRoomWithHouse(row, extra...)
	if err != nil {
		return nil, err
	}
	c := d.contract()
	c.Chambre = room
	c.Locataire = &tenant
	return c, nil
}

// CreateContract inserts an actif contract and marks the room unavailable in
// one transaction. ErrRoomAlreadyLeased is returned when the room already
// carries an actif contract.
func (s *SQLiteContractStorage) CreateContract(ctx context.Context, c *core.Contract) error {
	if c.CreeLe.IsZero() {
		c.CreeLe = time.Now().UTC()
	}
	c.Statut = core.ContractActive

	err := s.sqlite.WithTransaction(ctx, func(tx *sql.Tx) error {
		var leased int
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM contrats WHERE chambre_id = ? AND statut = ?)`,
			c.ChambreID, string(core.ContractActive)).Scan(&leased); err != nil {
			return fmt.Errorf("failed to check active contracts: %w", err)
		}
		if leased == 1 {
			return ErrRoomAlreadyLeased
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO contrats (locataire_id, chambre_id, date_debut, date_fin, montant_caution, mois_caution,
			                      description, mode_paiement, periodicite, statut, cree_le)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.LocataireID, c.ChambreID, formatTime(c.DateDebut), formatTime(c.DateFin), c.MontantCaution,
			c.MoisCaution, c.Description, c.ModePaiement, c.Periodicite, string(c.Statut), formatTime(c.CreeLe))
		if err != nil {
			if isForeignKeyViolation(err) {
				return ErrConstraintViolation
			}
			return fmt.Errorf("failed to insert contract: %w", err)
		}
		if c.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("failed to read contract id: %w", err)
		}

		return setRoomAvailabilityTx(ctx, tx, c.ChambreID, false)
	})
	if err != nil {
		return err
	}

	s.logger.Infow("Contract created", "contract_id", c.ID, "room_id", c.ChambreID, "tenant_id", c.LocataireID)
	return nil
}

// GetContract retrieves a contract without relations
func (s *SQLiteContractStorage) GetContract(ctx context.Context, id int64) (*core.Contract, error) {
	row := s.sqlite.ReadDB.QueryRowContext(ctx, `SELECT `+contractColumns+` FROM contrats k WHERE k.id = ?`, id)
	c, err := scanContract(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrContractNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get contract: %w", err)
	}
	return c, nil
}

// GetContractDetails retrieves a contract with tenant, room and house
func (s *SQLiteContractStorage) GetContractDetails(ctx context.Context, id int64) (*core.Contract, error) {
	row := s.sqlite.ReadDB.QueryRowContext(ctx, contractDetailSelect+` WHERE k.id = ?`, id)
	c, err := scanContractDetails(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrContractNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get contract: %w", err)
	}
	return c, nil
}

// ListContracts returns contracts with their relations, newest first
func (s *SQLiteContractStorage) ListContracts(ctx context.Context, filter ContractFilter) ([]core.Contract, error) {
	var where []string
	var args []interface{}
	if filter.LocataireID > 0 {
		where = append(where, "k.locataire_id = ?")
		args = append(args, filter.LocataireID)
	}
	if filter.ProprietaireID > 0 {
		where = append(where, "m.proprietaire_id = ?")
		args = append(args, filter.ProprietaireID)
	}
	if filter.Statut != "" {
		where = append(where, "k.statut = ?")
		args = append(args, string(filter.Statut))
	}
	query := contractDetailSelect
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY k.date_debut DESC, k.id DESC"

	rows, err := s.sqlite.ReadDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list contracts: %w", err)
	}
	defer rows.Close()

	out := make([]core.Contract, 0)
	for rows.Next() {
		c, err := scanContractDetails(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contract: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// UpdateContract saves the lease terms. Status changes go through TerminateContract.
func (s *SQLiteContractStorage) UpdateContract(ctx context.Context, c *core.Contract) error {
	res, err := s.sqlite.WriteDB.ExecContext(ctx, `
		UPDATE contrats
		SET date_debut = ?, date_fin = ?, montant_caution = ?, mois_caution = ?, description = ?,
		    mode_paiement = ?, periodicite = ?
		WHERE id = ?`,
		formatTime(c.DateDebut), formatTime(c.DateFin), c.MontantCaution, c.MoisCaution, c.Description,
		c.ModePaiement, c.Periodicite, c.ID)
	if err != nil {
		return fmt.Errorf("failed to update contract: %w", err)
	}
	return expectOneRow(res, ErrContractNotFound)
}

// TerminateContract sets the contract resilié and frees the room in one
// transaction. Terminating an already terminated contract is a no-op.
func (s *SQLiteContractStorage) TerminateContract(ctx context.Context, id int64) error {
	err := s.sqlite.WithTransaction(ctx, func(tx *sql.Tx) error {
		var roomID int64
		var statut string
		err := tx.QueryRowContext(ctx, `SELECT chambre_id, statut FROM contrats WHERE id = ?`, id).Scan(&roomID, &statut)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrContractNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to load contract: %w", err)
		}
		if core.ContractStatus(statut) == core.ContractTerminated {
			return nil
		}

		if _, err := tx.ExecContext(ctx, `UPDATE contrats SET statut = ? WHERE id = ?`,
			string(core.ContractTerminated), id); err != nil {
			return fmt.Errorf("failed to terminate contract: %w", err)
		}
		return setRoomAvailabilityTx(ctx, tx, roomID, true)
	})
	if err != nil {
		return err
	}

	s.logger.Infow("Contract terminated", "contract_id", id)
	return nil
}

// DeleteContract removes a contract with its payments and issues. An actif
// contract releases its room.
func (s *SQLiteContractStorage) DeleteContract(ctx context.Context, id int64) error {
	return s.sqlite.WithTransaction(ctx, func(tx *sql.Tx) error {
		var roomID int64
		var statut string
		err := tx.QueryRowContext(ctx, `SELECT chambre_id, statut FROM contrats WHERE id = ?`, id).Scan(&roomID, &statut)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrContractNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to load contract: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM contrats WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete contract: %w", err)
		}
		if core.ContractStatus(statut) == core.ContractActive {
			return setRoomAvailabilityTx(ctx, tx, roomID, true)
		}
		return nil
	})
}

// HasActiveContractForRoom reports whether the room is currently leased
func (s *SQLiteContractStorage) HasActiveContractForRoom(ctx context.Context, chambreID int64) (bool, error) {
	var exists int
	err := s.sqlite.ReadDB.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM contrats WHERE chambre_id = ? AND statut = ?)`,
		chambreID, string(core.ContractActive)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check active contracts: %w", err)
	}
	return exists == 1, nil
}
