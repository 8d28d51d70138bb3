package storage

import (
	"database/sql"
	"fmt"
)

const initialSchema = `
CREATE TABLE IF NOT EXISTS utilisateurs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	email TEXT NOT NULL UNIQUE,
	mot_de_passe TEXT NOT NULL,
	nom TEXT NOT NULL,
	prenom TEXT NOT NULL DEFAULT '',
	nom_utilisateur TEXT NOT NULL DEFAULT '',
	telephone TEXT NOT NULL DEFAULT '',
	cni TEXT NOT NULL DEFAULT '',
	role TEXT NOT NULL CHECK (role IN ('proprietaire', 'locataire')),
	cree_le TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS maisons (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	proprietaire_id INTEGER NOT NULL REFERENCES utilisateurs(id) ON DELETE CASCADE,
	nom TEXT NOT NULL DEFAULT '',
	adresse TEXT NOT NULL,
	ville TEXT NOT NULL DEFAULT '',
	superficie REAL NOT NULL DEFAULT 0,
	latitude REAL,
	longitude REAL,
	description TEXT NOT NULL DEFAULT '',
	cree_le TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS chambres (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	maison_id INTEGER NOT NULL REFERENCES maisons(id) ON DELETE CASCADE,
	titre TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	taille REAL NOT NULL DEFAULT 0,
	type TEXT NOT NULL DEFAULT 'simple',
	meublee INTEGER NOT NULL DEFAULT 0,
	prix REAL NOT NULL,
	capacite INTEGER NOT NULL DEFAULT 1,
	salle_de_bain INTEGER NOT NULL DEFAULT 0,
	disponible INTEGER NOT NULL DEFAULT 1,
	cree_le TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS rendez_vous (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	locataire_id INTEGER NOT NULL REFERENCES utilisateurs(id) ON DELETE CASCADE,
	chambre_id INTEGER NOT NULL REFERENCES chambres(id) ON DELETE CASCADE,
	date_heure TEXT NOT NULL,
	statut TEXT NOT NULL DEFAULT 'en_attente',
	cree_le TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS contrats (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	locataire_id INTEGER NOT NULL REFERENCES utilisateurs(id) ON DELETE CASCADE,
	chambre_id INTEGER NOT NULL REFERENCES chambres(id) ON DELETE CASCADE,
	date_debut TEXT NOT NULL,
	date_fin TEXT NOT NULL,
	montant_caution REAL NOT NULL DEFAULT 0,
	mois_caution INTEGER NOT NULL DEFAULT 0,
	description TEXT NOT NULL DEFAULT '',
	mode_paiement TEXT NOT NULL,
	periodicite TEXT NOT NULL,
	statut TEXT NOT NULL DEFAULT 'actif',
	cree_le TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS paiements (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	contrat_id INTEGER NOT NULL REFERENCES contrats(id) ON DELETE CASCADE,
	montant REAL NOT NULL,
	statut TEXT NOT NULL DEFAULT 'en_attente',
	date_echeance TEXT NOT NULL,
	date_paiement TEXT,
	cree_le TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS medias (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	chambre_id INTEGER NOT NULL REFERENCES chambres(id) ON DELETE CASCADE,
	url TEXT NOT NULL,
	type TEXT NOT NULL,
	cree_le TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS problemes (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	contrat_id INTEGER NOT NULL REFERENCES contrats(id) ON DELETE CASCADE,
	signale_par INTEGER NOT NULL REFERENCES utilisateurs(id) ON DELETE CASCADE,
	description TEXT NOT NULL,
	type TEXT NOT NULL,
	statut TEXT NOT NULL DEFAULT 'ouvert',
	cree_le TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	expediteur_id INTEGER NOT NULL REFERENCES utilisateurs(id) ON DELETE CASCADE,
	destinataire_id INTEGER NOT NULL REFERENCES utilisateurs(id) ON DELETE CASCADE,
	contenu TEXT NOT NULL,
	date_envoi TEXT NOT NULL,
	lu INTEGER NOT NULL DEFAULT 0
);
`

// tables in drop order
var schemaTables = []string{
	"messages", "problemes", "medias", "paiements", "contrats",
	"rendez_vous", "chambres", "maisons", "utilisateurs",
}

// RegisterSQLiteMigrations registers every schema migration with the runner
func RegisterSQLiteMigrations(runner *MigrationRunner) {
	runner.Register(Migration{
		Version:     "1.0.0",
		Name:        "initial_schema",
		Description: "Users, houses, rooms, appointments, contracts, payments, media, issues and messages",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(initialSchema)
			return err
		},
		Down: func(tx *sql.Tx) error {
			for _, table := range schemaTables {
				if _, err := tx.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s", table)); err != nil {
					return fmt.Errorf("drop %s: %w", table, err)
				}
			}
			return nil
		},
	})

	runner.Register(Migration{
		Version:     "1.1.0",
		Name:        "add_account_security",
		Description: "TOTP secret, MFA flag and login lockout columns on utilisateurs",
		Up: func(tx *sql.Tx) error {
			columns := []struct {
				name       string
				definition string
			}{
				{"totp_secret", "TEXT NOT NULL DEFAULT ''"},
				{"mfa_enabled", "INTEGER NOT NULL DEFAULT 0"},
				{"failed_login_attempts", "INTEGER NOT NULL DEFAULT 0"},
				{"locked_until", "TEXT"},
			}
			for _, col := range columns {
				if err := addColumnIfNotExists(tx, "utilisateurs", col.name, col.definition); err != nil {
					return err
				}
			}
			return nil
		},
		Down: func(tx *sql.Tx) error {
			for _, col := range []string{"locked_until", "failed_login_attempts", "mfa_enabled", "totp_secret"} {
				if err := dropColumnIfExists(tx, "utilisateurs", col); err != nil {
					return err
				}
			}
			return nil
		},
	})

	runner.Register(Migration{
		Version:     "1.2.0",
		Name:        "add_media_storage_key",
		Description: "Track the blob store key of uploaded media so deletes can remove the file",
		Up: func(tx *sql.Tx) error {
			return addColumnIfNotExists(tx, "medias", "storage_key", "TEXT NOT NULL DEFAULT ''")
		},
		Down: func(tx *sql.Tx) error {
			return dropColumnIfExists(tx, "medias", "storage_key")
		},
	})

	runner.Register(Migration{
		Version:     "1.3.0",
		Name:        "add_query_indexes",
		Description: "Indexes for ownership lookups, status filters and the monthly payment report",
		Up: func(tx *sql.Tx) error {
			indexes := []struct{ name, table, columns string }{
				{"idx_maisons_proprietaire", "maisons", "proprietaire_id"},
				{"idx_chambres_maison", "chambres", "maison_id"},
				{"idx_chambres_prix", "chambres", "prix"},
				{"idx_rendez_vous_locataire", "rendez_vous", "locataire_id"},
				{"idx_rendez_vous_chambre_statut", "rendez_vous", "chambre_id, statut"},
				{"idx_contrats_locataire", "contrats", "locataire_id"},
				{"idx_contrats_chambre_statut", "contrats", "chambre_id, statut"},
				{"idx_paiements_contrat", "paiements", "contrat_id"},
				{"idx_paiements_statut_echeance", "paiements", "statut, date_echeance"},
				{"idx_medias_chambre", "medias", "chambre_id"},
				{"idx_problemes_contrat", "problemes", "contrat_id"},
				{"idx_messages_destinataire", "messages", "destinataire_id, lu"},
				{"idx_messages_expediteur", "messages", "expediteur_id"},
			}
			for _, idx := range indexes {
				if err := createIndexIfNotExists(tx, idx.name, idx.table, idx.columns); err != nil {
					return fmt.Errorf("create %s: %w", idx.name, err)
				}
			}
			return nil
		},
		Down: func(tx *sql.Tx) error {
			for _, name := range []string{
				"idx_maisons_proprietaire", "idx_chambres_maison", "idx_chambres_prix",
				"idx_rendez_vous_locataire", "idx_rendez_vous_chambre_statut",
				"idx_contrats_locataire", "idx_contrats_chambre_statut",
				"idx_paiements_contrat", "idx_paiements_statut_echeance",
				"idx_medias_chambre", "idx_problemes_contrat",
				"idx_messages_destinataire", "idx_messages_expediteur",
			} {
				if _, err := tx.Exec("DROP INDEX IF EXISTS " + name); err != nil {
					return err
				}
			}
			return nil
		},
	})
}
