package cmd

import (
	"fmt"
	"io"
	"strings"

	"louyass/storage"

	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database schema migrations",
	}
	migrateCmd.AddCommand(newMigrateUpCmd())
	migrateCmd.AddCommand(newMigrateDownCmd())
	migrateCmd.AddCommand(newMigrateStatusCmd())
	return migrateCmd
}

// withRunner opens the database without migrating and hands fn a runner
func withRunner(fn func(*storage.MigrationRunner) error) error {
	_, db, err := openDatabase(false)
	if err != nil {
		return err
	}
	defer db.Close()

	runner, err := db.NewMigrationRunner()
	if err != nil {
		return err
	}
	return fn(runner)
}

func newMigrateUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunner(func(runner *storage.MigrationRunner) error {
				pending, err := runner.GetPendingMigrations()
				if err != nil {
					return err
				}
				if len(pending) == 0 {
					if !quiet {
						infoColor.Fprintln(cmd.OutOrStdout(), "Schema is up to date")
					}
					return nil
				}
				if err := runner.RunMigrations(); err != nil {
					errorColor.Fprintf(cmd.ErrOrStderr(), "✗ Migration failed: %v\n", err)
					return err
				}
				for _, m := range pending {
					successColor.Fprintf(cmd.OutOrStdout(), "✓ %s %s\n", m.Version, m.Name)
				}
				return nil
			})
		},
	}
}

func newMigrateDownCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "down <version>",
		Short: "Roll back one applied migration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunner(func(runner *storage.MigrationRunner) error {
				if err := runner.RollbackMigration(args[0], reason); err != nil {
					errorColor.Fprintf(cmd.ErrOrStderr(), "✗ Rollback failed: %v\n", err)
					return err
				}
				successColor.Fprintf(cmd.OutOrStdout(), "✓ Migration %s rolled back\n", args[0])
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "manual rollback", "Reason recorded in schema_migrations")
	return cmd
}

func newMigrateStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunner(func(runner *storage.MigrationRunner) error {
				status, err := runner.GetMigrationStatus()
				if err != nil {
					return err
				}
				if outputJSON {
					return outputAsJSON(cmd.OutOrStdout(), migrationStatusView(status))
				}
				renderMigrationStatus(cmd.OutOrStdout(), status)
				return nil
			})
		},
	}
}

type migrationView struct {
	Version string `json:"version"`
	Name    string `json:"name"`
	Applied bool   `json:"applied"`
}

type migrationStatusJSON struct {
	Latest     string          `json:"latest"`
	Applied    int             `json:"applied"`
	Pending    int             `json:"pending"`
	Issues     []string        `json:"issues"`
	Migrations []migrationView `json:"migrations"`
}

func migrationStatusView(status *storage.MigrationStatus) migrationStatusJSON {
	out := migrationStatusJSON{
		Latest:     status.Latest,
		Applied:    status.Applied,
		Pending:    status.Pending,
		Issues:     append([]string{}, status.Issues...),
		Migrations: make([]migrationView, 0, status.Applied+status.Pending),
	}
	for _, r := range status.Records {
		out.Migrations = append(out.Migrations, migrationView{Version: r.Version, Name: r.Name, Applied: true})
	}
	for _, m := range status.PendingSet {
		out.Migrations = append(out.Migrations, migrationView{Version: m.Version, Name: m.Name})
	}
	return out
}

func renderMigrationStatus(w io.Writer, status *storage.MigrationStatus) {
	headerColor.Fprintln(w, "MIGRATIONS")
	headerColor.Fprintln(w, strings.Repeat("=", 72))
	fmt.Fprintf(w, "%-10s %-40s %-20s\n", "Version", "Name", "Applied at")
	fmt.Fprintln(w, strings.Repeat("-", 72))
	for _, r := range status.Records {
		fmt.Fprintf(w, "%-10s %-40s %-20s\n", r.Version, r.Name, r.AppliedAt.Format("2006-01-02 15:04"))
	}
	for _, m := range status.PendingSet {
		fmt.Fprintf(w, "%-10s %-40s ", m.Version, m.Name)
		warningColor.Fprintln(w, "pending")
	}
	fmt.Fprintln(w, strings.Repeat("=", 72))
	fmt.Fprintf(w, "Applied: %d  Pending: %d  Latest: %s\n", status.Applied, status.Pending, status.Latest)
	for _, issue := range status.Issues {
		errorColor.Fprintf(w, "! %s\n", issue)
	}
}
