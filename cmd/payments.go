package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"louyass/core"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"
)

func newPaymentsCmd() *cobra.Command {
	paymentsCmd := &cobra.Command{
		Use:   "payments",
		Short: "Follow up rent payments",
	}
	paymentsCmd.AddCommand(newPaymentsPendingCmd())
	return paymentsCmd
}

func newPaymentsPendingCmd() *cobra.Command {
	var ownerID int64
	var progress bool

	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List this month's pending payments",
		Long: `List the en_attente payments due in the current calendar month (UTC),
for every owner or for the one given with --owner.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext()
			defer cancel()

			env, cleanup, err := initEnv()
			if err != nil {
				return err
			}
			defer cleanup()

			var s *spinner.Spinner
			if progress && !outputJSON && !quiet {
				s = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
				s.Suffix = " Querying pending payments..."
				s.Start()
			}

			var items []core.Payment
			if ownerID > 0 {
				var owner *core.User
				owner, err = env.users.GetUserByID(ctx, ownerID)
				if err == nil {
					items, err = env.paySvc.PendingThisMonth(ctx, owner)
				}
			} else {
				from, to := core.MonthBounds(cliClock.Now().UTC())
				items, err = env.payments.ListPendingDue(ctx, from, to)
			}

			if s != nil {
				s.Stop()
			}
			if err != nil {
				errorColor.Fprintf(cmd.ErrOrStderr(), "✗ %s\n", describeError(err))
				return err
			}

			if outputJSON {
				return outputAsJSON(cmd.OutOrStdout(), items)
			}
			renderPendingPayments(cmd.OutOrStdout(), items, cliClock.Now().UTC())
			return nil
		},
	}

	cmd.Flags().Int64Var(&ownerID, "owner", 0, "Only payments on this owner's houses")
	cmd.Flags().BoolVar(&progress, "progress", true, "Show a spinner while querying")
	return cmd
}

func renderPendingPayments(w io.Writer, items []core.Payment, now time.Time) {
	if len(items) == 0 {
		successColor.Fprintf(w, "No pending payments for %s\n", now.Format("01/2006"))
		return
	}

	headerColor.Fprintf(w, "PENDING PAYMENTS %s\n", now.Format("01/2006"))
	headerColor.Fprintln(w, strings.Repeat("=", 80))
	fmt.Fprintf(w, "%-6s %-8s %-10s %-28s %-12s %12s\n", "ID", "Contrat", "Locataire", "Chambre", "Échéance", "Montant")
	fmt.Fprintln(w, strings.Repeat("-", 80))

	var total float64
	for _, p := range items {
		tenant, room := "-", "-"
		if p.Contrat != nil {
			tenant = fmt.Sprintf("#%d", p.Contrat.LocataireID)
			if p.Contrat.Locataire != nil {
				tenant = truncate(strings.TrimSpace(p.Contrat.Locataire.Prenom+" "+p.Contrat.Locataire.Nom), 10)
			}
			if p.Contrat.Chambre != nil {
				room = truncate(p.Contrat.Chambre.Titre, 28)
			}
		}
		due := p.DateEcheance.Format("02/01/2006")
		fmt.Fprintf(w, "%-6d %-8d %-10s %-28s ", p.ID, p.ContratID, tenant, room)
		if p.DateEcheance.Before(now) {
			errorColor.Fprintf(w, "%-12s", due)
		} else {
			fmt.Fprintf(w, "%-12s", due)
		}
		fmt.Fprintf(w, " %12.0f\n", p.Montant)
		total += p.Montant
	}

	headerColor.Fprintln(w, strings.Repeat("=", 80))
	warningColor.Fprintf(w, "%d payment(s), %.0f FCFA outstanding\n", len(items), total)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
