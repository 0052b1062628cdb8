package cli

import (
	"github.com/spf13/cobra"
)

func newIdentityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identity",
		Short: "Inspect identity provider accounts",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "reconcile",
		Short: "Report accounts without profiles and profiles without accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			rep, err := a.Reconciler.Run(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, rep)
		},
	})
	return cmd
}
