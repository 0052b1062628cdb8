package cli

import (
	"fmt"

	"github.com/d9705996/protestpro/internal/authz"
	"github.com/d9705996/protestpro/internal/documents"
	"github.com/d9705996/protestpro/internal/export"
	"github.com/d9705996/protestpro/internal/model"
	"github.com/spf13/cobra"
)

func newDocumentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "documents",
		Short: "Generate and export documents",
	}
	cmd.AddCommand(newGenerateCmd(), newExportCmd())
	return cmd
}

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate today's document for a property",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			actor, _ := cmd.Flags().GetString("actor")
			actorID, err := resolveActor(ctx, a, actor)
			if err != nil {
				return err
			}
			if err := a.Checker.Require(ctx, actorID, authz.ObjDocuments, authz.ActGenerateAny); err != nil {
				return err
			}

			user, _ := cmd.Flags().GetString("user")
			property, _ := cmd.Flags().GetString("property")
			docType, _ := cmd.Flags().GetString("type")
			res, err := a.Documents.Generate(ctx, documents.Request{UserID: user, PropertyID: property, DocumentType: docType})
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
	cmd.Flags().String("actor", "", "Administrator requesting the document (id or email)")
	cmd.Flags().String("user", "", "Identity owning the property")
	cmd.Flags().String("property", "", "Property id")
	cmd.Flags().String("type", model.DocumentTypeForm50162, fmt.Sprintf("Document type: %s or %s", model.DocumentTypeForm50162, model.DocumentTypeServicesAgreement))
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("property")
	return cmd
}

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Bundle matching documents into one archive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
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
			var f export.Filters
			f.County, _ = cmd.Flags().GetString("county")
			f.Status, _ = cmd.Flags().GetString("status")
			f.GeneratedAt, _ = cmd.Flags().GetString("since")
			res, err := a.Exporter.Export(cmd.Context(), actorID, f)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
	cmd.Flags().String("actor", "", "Administrator performing the export (id or email)")
	cmd.Flags().String("county", export.All, "County filter")
	cmd.Flags().String("status", export.All, "Document status filter")
	cmd.Flags().String("since", "", "Only documents generated on or after this date or RFC 3339 time")
	return cmd
}
