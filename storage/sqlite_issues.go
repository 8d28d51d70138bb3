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

// IssueFilter narrows ListIssues to the contracts a user is party to
type IssueFilter struct {
	UserID int64
	Limit  int
	Offset int
}

// SQLiteIssueStorage persists issue reports in the problemes table
type SQLiteIssueStorage struct {
	sqlite *SQLite
	logger *zap.SugaredLogger
}

// NewSQLiteIssueStorage creates a new SQLite-based issue storage
func NewSQLiteIssueStorage(sqlite *SQLite, logger *zap.SugaredLogger) *SQLiteIssueStorage {
	return &SQLiteIssueStorage{sqlite: sqlite, logger: logger}
}

const issueColumns = `p.id, p.contrat_id, p.signale_par, p.description, p.type, p.statut, p.cree_le`

func scanIssue(row scanner) (*core.Issue, error) {
	var i core.Issue
	var statut, creeLe string
	if err := row.Scan(&i.ID, &i.ContratID, &i.SignalePar, &i.Description, &i.Type, &statut, &creeLe); err != nil {
		return nil, err
	}
	i.Statut = core.IssueStatus(statut)
	i.CreeLe = parseTime(creeLe)
	return &i, nil
}

// CreateIssue inserts an issue report
func (s *SQLiteIssueStorage) CreateIssue(ctx context.Context, i *core.Issue) error {
	if i.CreeLe.IsZero() {
		i.CreeLe = time.Now().UTC()
	}
	if i.Statut == "" {
		i.Statut = core.IssueOpen
	}
	res, err := s.sqlite.WriteDB.ExecContext(ctx, `
		INSERT INTO problemes (contrat_id, signale_par, description, type, statut, cree_le)
		VALUES (?, ?, ?, ?, ?, ?)`,
		i.ContratID, i.SignalePar, i.Description, i.Type, string(i.Statut), formatTime(i.CreeLe))
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrConstraintViolation
		}
		return fmt.Errorf("failed to create issue: %w", err)
	}
	i.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read issue id: %w", err)
	}
	return nil
}

// GetIssue retrieves an issue by id
func (s *SQLiteIssueStorage) GetIssue(ctx context.Context, id int64) (*core.Issue, error) {
	row := s.sqlite.ReadDB.QueryRowContext(ctx, `SELECT `+issueColumns+` FROM problemes p WHERE p.id = ?`, id)
	i, err := scanIssue(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrIssueNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get issue: %w", err)
	}
	return i, nil
}

// ListIssues returns the issues on contracts where the user is the tenant or
// the owner of the room, newest first
func (s *SQLiteIssueStorage) ListIssues(ctx context.Context, filter IssueFilter) ([]core.Issue, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = core.DefaultPageLimit
	}
	rows, err := s.sqlite.ReadDB.QueryContext(ctx, `
		SELECT `+issueColumns+`
		FROM problemes p
		JOIN contrats k ON k.id = p.contrat_id
		JOIN chambres c ON c.id = k.chambre_id
		JOIN maisons m ON m.id = c.maison_id
		WHERE k.locataire_id = ? OR m.proprietaire_id = ?
		ORDER BY p.cree_le DESC, p.id DESC
		LIMIT ? OFFSET ?`,
		filter.UserID, filter.UserID, limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list issues: %w", err)
	}
	defer rows.Close()

	out := make([]core.Issue, 0)
	for rows.Next() {
		i, err := scanIssue(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan issue: %w", err)
		}
		out = append(out, *i)
	}
	return out, rows.Err()
}

// UpdateIssue saves description, type and status of i
func (s *SQLiteIssueStorage) UpdateIssue(ctx context.Context, i *core.Issue) error {
	res, err := s.sqlite.WriteDB.ExecContext(ctx,
		`UPDATE problemes SET description = ?, type = ?, statut = ? WHERE id = ?`,
		i.Description, i.Type, string(i.Statut), i.ID)
	if err != nil {
		return fmt.Errorf("failed to update issue: %w", err)
	}
	return expectOneRow(res, ErrIssueNotFound)
}

// DeleteIssue removes an issue report
func (s *SQLiteIssueStorage) DeleteIssue(ctx context.Context, id int64) error {
	res, err := s.sqlite.WriteDB.ExecContext(ctx, `DELETE FROM problemes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete issue: %w", err)
	}
	return expectOneRow(res, ErrIssueNotFound)
}
