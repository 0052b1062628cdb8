package cli

import (
	"github.com/spf13/cobra"
)

func newUsersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage identities",
	}

	del := &cobra.Command{
		Use:   "delete <user-id>...",
		Short: "Erase identities and everything they own",
		Long: `Erase each identity in turn: blobs, dependent rows, the profile and
finally the login account. A failure stops that identity only; the
report lists what was removed for every identity.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			actor, _ := cmd.Flags().GetString("actor")
			actorID, err := resolveActor(cmd.Context(), a, actor)
			if err != nil {
				return err
			}
			rep, err := a.Eraser.DeleteUsers(cmd.Context(), actorID, args)
			if err != nil {
				return err
			}
			return printJSON(cmd, rep)
		},
	}
	del.Flags().String("actor", "", "Administrator performing the erasure (id or email)")
	cmd.AddCommand(del)
	return cmd
}
