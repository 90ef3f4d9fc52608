package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newLoaderCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "loader",
		Short: "Inspect or run pending loader installations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status <profile-dir>",
		Short: "Show the pending loader installation of a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := e.manager(cmd).LoaderStatus(args[0])
			if err != nil {
				return err
			}
			if rec == nil {
				fmt.Fprintln(e.out, "No loader installation pending, profile is playable")
				return nil
			}
			fmt.Fprintf(e.out, "Pending: %s %s\n", rec.LoaderType, rec.VersionString)
			if rec.Attempts > 0 {
				fmt.Fprintf(e.out, "Attempts: %d, last error: %s\n", rec.Attempts, rec.LastError)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "install <profile-dir>",
		Short: "Install the pending loader of a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.manager(cmd).InstallLoader(cmd.Context(), args[0])
		},
	})
	return cmd
}
