package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/servicedesk/requests/internal/core/domain"
	"github.com/servicedesk/requests/internal/core/ports"
)

func seedCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Add the default services when the catalog is empty",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, err := open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.Catalog.SeedDefaults(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d services\n", n)
			return nil
		},
	}
}

func importCmd(open opener) *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Load users, services and requests from a JSON document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			a, _, err := open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.Transfer.Import(cmd.Context(), f, ports.ImportMode(mode))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d users, %d services, %d requests; reconciled %d users\n",
				report.Users, report.Services, report.Requests, report.Reconciled)
			return nil
		},
	}
	cmd.Flags().StringVar(&mode, "mode", string(ports.ImportReplace), "replace or merge")
	return cmd
}

func exportCmd(open opener) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write users, services and requests as a JSON document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, err := open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			var w io.Writer = cmd.OutOrStdout()
			if out != "" && out != "-" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			return a.Transfer.Export(cmd.Context(), w)
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "-", "destination file, - for stdout")
	return cmd
}

func reconcileCmd(open opener) *cobra.Command {
	var userID int64

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Recompute denormalized request stats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, err := open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if userID > 0 {
				stats, err := a.Reconciler.Reconcile(cmd.Context(), userID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "user %d: total=%d pending=%d completed=%d\n",
					userID, stats.TotalRequests, stats.PendingRequests, stats.CompletedRequests)
				return nil
			}
			n, err := a.Reconciler.ReconcileAll(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reconciled %d users\n", n)
			return nil
		},
	}
	cmd.Flags().Int64Var(&userID, "user", 0, "reconcile a single user")
	return cmd
}

func purgeSessionsCmd(open opener) *cobra.Command {
	var userID int64
	cmd := &cobra.Command{
		Use:   "purge-sessions",
		Short: "Delete expired sessions, or every session of one user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, err := open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			var n int
			if userID > 0 {
				n, err = a.Sessions.RevokeUser(cmd.Context(), userID)
			} else {
				n, err = a.Sessions.PurgeExpired(cmd.Context())
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d sessions\n", n)
			return nil
		},
	}
	cmd.Flags().Int64Var(&userID, "user", 0, "log out every session of this user")
	return cmd
}

func createAdminCmd(open opener) *cobra.Command {
	var in ports.UserInput

	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an administrator account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, log, err := open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			in.Role = domain.RoleAdmin
			u, err := a.Users.CreateUser(cmd.Context(), in)
			if err != nil {
				return errors.New(a.Desk.Describe(err).Text)
			}
			log.Info().Int64("user_id", u.ID).Str("email", u.Email).Msg("admin created")
			fmt.Fprintf(cmd.OutOrStdout(), "created admin %d <%s>\n", u.ID, u.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&in.Name, "name", "Administrator", "display name")
	cmd.Flags().StringVar(&in.Email, "email", "", "login email")
	cmd.Flags().StringVar(&in.Password, "password", "", "initial password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func statsCmd(open opener) *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show per-user request stats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, err := open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			users, err := a.Users.ListUsers(cmd.Context(), domain.Role(role))
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tEMAIL\tROLE\tTOTAL\tPENDING\tCOMPLETED")
			for _, u := range users {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%d\n",
					u.ID, u.Email, u.Role, u.Stats.TotalRequests, u.Stats.PendingRequests, u.Stats.CompletedRequests)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "only users holding this role")
	return cmd
}
