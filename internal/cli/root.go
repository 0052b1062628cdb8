// Package cli implements protestctl, the operator command line. Every
// command builds the same services as the server from the environment.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/d9705996/protestpro/internal/app"
	"github.com/d9705996/protestpro/internal/config"
	"github.com/d9705996/protestpro/internal/model"
	"github.com/d9705996/protestpro/internal/observability"
	"github.com/spf13/cobra"
)

// NewRootCmd builds the command tree.
func NewRootCmd(version string) *cobra.Command {
	root := &cobra.Command{
		Use:   "protestctl",
		Short: "Operate a protestpro deployment",
		Long: `protestctl runs the administrator pipelines against the configured
database and blob store: erasing identities, generating and exporting
documents, uploading templates and reconciling identities.

Configuration is read from the environment (and .env) exactly as the
server reads it.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("log-level", "warn", "Log level: debug, info, warn, error")

	root.AddCommand(newUsersCmd())
	root.AddCommand(newDocumentsCmd())
	root.AddCommand(newTemplatesCmd())
	root.AddCommand(newIdentityCmd())
	root.AddCommand(newVersionCmd(version))
	return root
}

// open loads configuration and builds the services. Logs go to stderr so
// stdout stays machine-readable.
func open(cmd *cobra.Command) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	level, _ := cmd.Flags().GetString("log-level")
	log := observability.NewLogger(cmd.ErrOrStderr(), level, "text")
	return app.New(cmd.Context(), cfg, log)
}

// resolveActor accepts an identity id or the email of a profile.
func resolveActor(ctx context.Context, a *app.App, actor string) (string, error) {
	if actor == "" {
		return "", fmt.Errorf("--actor is required")
	}
	if !strings.Contains(actor, "@") {
		return actor, nil
	}
	var p model.Profile
	err := a.DB.WithContext(ctx).Select("user_id").
		Where("LOWER(email) = LOWER(?)", actor).First(&p).Error
	if err != nil {
		return "", fmt.Errorf("resolve actor %s: %w", actor, err)
	}
	return p.UserID, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newVersionCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
