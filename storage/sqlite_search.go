package storage

import (
	"context"
	"fmt"
	"strings"

	"louyass/core"

	"go.uber.org/zap"
)

// SQLiteSearchStorage answers the public room search
type SQLiteSearchStorage struct {
	sqlite *SQLite
	logger *zap.SugaredLogger
}

// NewSQLiteSearchStorage creates a new SQLite-based search storage
func NewSQLiteSearchStorage(sqlite *SQLite, logger *zap.SugaredLogger) *SQLiteSearchStorage {
	return &SQLiteSearchStorage{sqlite: sqlite, logger: logger}
}

// SearchRooms returns rooms matching criteria, each shaped with the address
// and description of its house. Localisation matches the house address or
// town, case-insensitively.
func (s *SQLiteSearchStorage) SearchRooms(ctx context.Context, criteria core.SearchCriteria) ([]core.SearchResult, error) {
	var where []string
	var args []interface{}
	if loc := strings.TrimSpace(criteria.Localisation); loc != "" {
		like := "%" + escapeLike(loc) + "%"
		where = append(where, `(m.adresse LIKE ? ESCAPE '\' OR m.ville LIKE ? ESCAPE '\')`)
		args = append(args, like, like)
	}
	if criteria.PrixMin != nil {
		where = append(where, "c.prix >= ?")
		args = append(args, *criteria.PrixMin)
	}
	if criteria.PrixMax != nil {
		where = append(where, "c.prix <= ?")
		args = append(args, *criteria.PrixMax)
	}
	if criteria.TypeChambre != "" {
		where = append(where, "c.type = ?")
		args = append(args, criteria.TypeChambre)
	}

	query := `SELECT ` + roomColumns + `, ` + houseJoinColumns + `
		FROM chambres c JOIN maisons m ON m.id = c.maison_id`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	limit := criteria.Limit
	if limit <= 0 {
		limit = core.DefaultPageLimit
	}
	query += " ORDER BY c.id LIMIT ? OFFSET ?"
	args = append(args, limit, criteria.Skip)

	rows, err := s.sqlite.ReadDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search rooms: %w", err)
	}
	defer rows.Close()

	results := make([]core.SearchResult, 0)
	for rows.Next() {
		room, err := scanRoomWithHouse(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		results = append(results, toSearchResult(room))
	}
	return results, rows.Err()
}

func toSearchResult(r *core.Room) core.SearchResult {
	return core.SearchResult{
		ID:          r.ID,
		TypeBien:    "chambre",
		Adresse:     r.Maison.Adresse,
		Prix:        r.Prix,
		Description: r.Description,
		Details: core.SearchDetails{
			TitreChambre:      r.Titre,
			TypeChambre:       r.Type,
			Meublee:           r.Meublee,
			SalleDeBainPrivee: r.SalleDeBain,
			Disponible:        r.Disponible,
			MaisonID:          r.MaisonID,
			DescriptionMaison: r.Maison.Description,
		},
	}
}
