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

// SQLitePaymentStorage persists rent instalments in the paiements table
type SQLitePaymentStorage struct {
	sqlite *SQLite
	logger *zap.SugaredLogger
}

// NewSQLitePaymentStorage creates a new SQLite-based payment storage
func NewSQLitePaymentStorage(sqlite *SQLite, logger *zap.SugaredLogger) *SQLitePaymentStorage {
	return &SQLitePaymentStorage{sqlite: sqlite, logger: logger}
}

// payments are loaded with their contract details
const paymentSelect = `
	SELECT ` + roomColumns + `, ` + houseJoinColumns + `, ` + contractColumns + `,
	       u.id, u.nom, u.prenom, u.email,
	       p.id, p.contrat_id, p.montant, p.statut, p.date_echeance, p.date_paiement, p.cree_le
	FROM paiements p
	JOIN contrats k ON k.id = p.contrat_id
	JOIN utilisateurs u ON u.id = k.locataire_id
	JOIN chambres c ON c.id = k.chambre_id
	JOIN maisons m ON m.id = c.maison_id`

func scanPayment(row scanner) (*core.Payment, error) {
	var d contractDest
	var tenant core.UserSummary
	var p core.Payment
	var statut, echeance, creeLe string
	var datePaiement sql.NullString

	extra := append(d.targets(), &tenant.ID, &tenant.Nom, &tenant.Prenom, &tenant.Email,
		&p.ID, &p.ContratID, &p.Montant, &statut, &echeance, &datePaiement, &creeLe)
	room, err := scanRoomWithHouse(row, extra...)
	if err != nil {
		return nil, err
	}

	p.Statut = core.PaymentStatus(statut)
	p.DateEcheance = parseTime(echeance)
	p.DatePaiement = parseNullTime(datePaiement)
	p.CreeLe = parseTime(creeLe)

	contract := d.contract()
	contract.Chambre = room
	contract.Locataire = &tenant
	p.Contrat = contract
	return &p, nil
}

// CreatePayment inserts a payment
func (s *SQLitePaymentStorage) CreatePayment(ctx context.Context, p *core.Payment) error {
	if p.CreeLe.IsZero() {
		p.CreeLe = time.Now().UTC()
	}
	if p.Statut == "" {
		p.Statut = core.PaymentPending
	}
	res, err := s.sqlite.WriteDB.ExecContext(ctx, `
		INSERT INTO paiements (contrat_id, montant, statut, date_echeance, date_paiement, cree_le)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.ContratID, p.Montant, string(p.Statut), formatTime(p.DateEcheance),
		formatNullTime(p.DatePaiement), formatTime(p.CreeLe))
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrContractNotFound
		}
		return fmt.Errorf("failed to create payment: %w", err)
	}
	p.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read payment id: %w", err)
	}
	return nil
}

// GetPayment retrieves a payment with its contract, tenant, room and house
func (s *SQLitePaymentStorage) GetPayment(ctx context.Context, id int64) (*core.Payment, error) {
	row := s.sqlite.ReadDB.QueryRowContext(ctx, paymentSelect+` WHERE p.id = ?`, id)
	p, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return p, nil
}

func (s *SQLitePaymentStorage) listPayments(ctx context.Context, where string, args ...interface{}) ([]core.Payment, error) {
	rows, err := s.sqlite.ReadDB.QueryContext(ctx,
		paymentSelect+` WHERE `+where+` ORDER BY p.date_echeance DESC, p.id DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	out := make([]core.Payment, 0)
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// ListPaymentsForTenant returns the payments on every contract of a tenant
func (s *SQLitePaymentStorage) ListPaymentsForTenant(ctx context.Context, locataireID int64) ([]core.Payment, error) {
	return s.listPayments(ctx, "k.locataire_id = ?", locataireID)
}

// ListPaymentsForOwner returns the payments on contracts for rooms of an owner
func (s *SQLitePaymentStorage) ListPaymentsForOwner(ctx context.Context, proprietaireID int64) ([]core.Payment, error) {
	return s.listPayments(ctx, "m.proprietaire_id = ?", proprietaireID)
}

// ListPendingForOwner returns en_attente payments of an owner due in [from, to)
func (s *SQLitePaymentStorage) ListPendingForOwner(ctx context.Context, proprietaireID int64, from, to time.Time) ([]core.Payment, error) {
	return s.listPayments(ctx,
		"m.proprietaire_id = ? AND p.statut = ? AND p.date_echeance >= ? AND p.date_echeance < ?",
		proprietaireID, string(core.PaymentPending), formatTime(from), formatTime(to))
}

// ListPendingDue returns every en_attente payment due in [from, to)
func (s *SQLitePaymentStorage) ListPendingDue(ctx context.Context, from, to time.Time) ([]core.Payment, error) {
	return s.listPayments(ctx,
		"p.statut = ? AND p.date_echeance >= ? AND p.date_echeance < ?",
		string(core.PaymentPending), formatTime(from), formatTime(to))
}

// ListPaymentsForContract returns the payments of one contract
func (s *SQLitePaymentStorage) ListPaymentsForContract(ctx context.Context, contratID int64) ([]core.Payment, error) {
	return s.listPayments(ctx, "p.contrat_id = ?", contratID)
}

// MarkPaid settles an en_attente payment. ErrStatusConflict is returned when
// the payment is no longer en_attente.
func (s *SQLitePaymentStorage) MarkPaid(ctx context.Context, id int64, paidAt time.Time) error {
	res, err := s.sqlite.WriteDB.ExecContext(ctx,
		`UPDATE paiements SET statut = ?, date_paiement = ? WHERE id = ? AND statut = ?`,
		string(core.PaymentPaid), formatTime(paidAt), id, string(core.PaymentPending))
	if err != nil {
		return fmt.Errorf("failed to mark payment paid: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 1 {
		return nil
	}

	var exists int
	if err := s.sqlite.ReadDB.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM paiements WHERE id = ?)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check payment: %w", err)
	}
	if exists == 0 {
		return ErrPaymentNotFound
	}
	return ErrStatusConflict
}
