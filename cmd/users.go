package cmd

import (
	"fmt"

	"louyass/bootstrap"
	"louyass/core"
	"louyass/service"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
)

func newUserCmd() *cobra.Command {
	userCmd := &cobra.Command{
		Use:   "user",
		Short: "Manage accounts",
	}
	userCmd.AddCommand(newUserCreateCmd())
	return userCmd
}

func newUserCreateCmd() *cobra.Command {
	var in service.UserCreate
	var role string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an owner or tenant account",
		Long: `Create an account directly in the database.

When --password is omitted a random password is generated and printed once.`,
		Example: `  louyass admin user create --email awa@example.sn --nom Diallo --role proprietaire`,
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Role = core.Role(role)

			generated := false
			if in.Password == "" {
				password, err := bootstrap.GenerateSecurePassword(16)
				if err != nil {
					return err
				}
				in.Password = password
				generated = true
			}

			if err := validator.New().Struct(in); err != nil {
				return fmt.Errorf("invalid account: %w", err)
			}

			ctx, cancel := commandContext()
			defer cancel()

			env, cleanup, err := initEnv()
			if err != nil {
				return err
			}
			defer cleanup()

			u, err := env.userSvc.Register(ctx, in)
			if err != nil {
				errorColor.Fprintf(cmd.ErrOrStderr(), "✗ %s\n", describeError(err))
				return err
			}

			if outputJSON {
				out := map[string]interface{}{"user": u}
				if generated {
					out["password"] = in.Password
				}
				return outputAsJSON(cmd.OutOrStdout(), out)
			}

			successColor.Fprintf(cmd.OutOrStdout(), "✓ Created %s #%d (%s)\n", u.Role, u.ID, u.Email)
			if generated {
				warningColor.Fprintf(cmd.OutOrStdout(), "  Password: %s\n", in.Password)
				warningColor.Fprintln(cmd.OutOrStdout(), "  This password will not be shown again.")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&in.Email, "email", "", "E-mail address (required)")
	cmd.Flags().StringVar(&in.Password, "password", "", "Password, generated when empty")
	cmd.Flags().StringVar(&in.Nom, "nom", "", "Last name (required)")
	cmd.Flags().StringVar(&in.Prenom, "prenom", "", "First name")
	cmd.Flags().StringVar(&in.Telephone, "telephone", "", "Phone number")
	cmd.Flags().StringVar(&role, "role", string(core.RoleTenant), "proprietaire or locataire")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("nom")

	return cmd
}
