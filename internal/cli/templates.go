package cli

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/d9705996/protestpro/internal/forms"
	"github.com/d9705996/protestpro/internal/pdf"
	"github.com/d9705996/protestpro/internal/storage"
	"github.com/spf13/cobra"
)

func newTemplatesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "Manage blank document templates",
	}

	upload := &cobra.Command{
		Use:   "upload <document-type> <file.pdf>",
		Short: "Store a blank template where the generator fetches it",
		Long: `Store a blank template under the path its layout names. Layout fields
missing from the file are listed; the generator skips them when filling.
With --strict any missing field rejects the upload.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			layouts, err := forms.LoadLayouts()
			if err != nil {
				return err
			}
			layout, ok := layouts[args[0]]
			if !ok {
				return fmt.Errorf("unknown document type %q", args[0])
			}
			data, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("read template: %w", err)
			}
			missing, err := missingFields(layout, data)
			if err != nil {
				return err
			}
			if len(missing) > 0 {
				if strict, _ := cmd.Flags().GetBool("strict"); strict {
					return fmt.Errorf("template lacks fields the layout maps: %v", missing)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: template lacks fields the layout maps: %v\n", missing)
			}

			a, err := open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			err = a.Store.Upload(cmd.Context(), storage.BucketTemplates, layout.Template, data, "application/pdf")
			if errors.Is(err, storage.ErrObjectExists) {
				return fmt.Errorf("%s/%s already exists; bump the layout version to publish a new template", storage.BucketTemplates, layout.Template)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "uploaded %s/%s\n", storage.BucketTemplates, layout.Template)
			return nil
		},
	}
	upload.Flags().Bool("strict", false, "Reject templates missing any mapped field")
	cmd.AddCommand(upload)
	return cmd
}

// missingFields lists the layout's mapped field names absent from the
// template.
func missingFields(layout *forms.Layout, data []byte) ([]string, error) {
	fields, err := pdf.NewPDFCPU().Fields(data)
	if err != nil {
		return nil, fmt.Errorf("read template fields: %w", err)
	}
	have := make(map[string]bool, len(fields))
	for _, f := range fields {
		have[f.Name] = true
	}
	var missing []string
	for _, name := range layout.Fields {
		if name != "" && !have[name] {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing, nil
}
