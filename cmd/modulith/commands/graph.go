package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewGraphCommand builds the "graph" command group.
func NewGraphCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Inspect the detected module graph",
	}

	cmd.AddCommand(newGraphExportCommand())
	return cmd
}

func newGraphExportCommand() *cobra.Command {
	var path string
	var root string
	var full bool
	var ordered bool

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the module dependency graph as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			ams, err := loadModules(path, root)
			if err != nil {
				return err
			}

			var out []byte
			if ordered {
				out, err = ams.ExportOrderedJSON(full)
			} else {
				out, err = ams.ExportJSON(full)
			}
			if err != nil {
				return fmt.Errorf("export graph: %w", err)
			}

			fmt.Fprintln(os.Stdout, string(out))
			return nil
		},
	}

	cmd.Flags().StringVarP(&path, "path", "p", ".", "path to Go source tree to scan")
	cmd.Flags().StringVarP(&root, "root", "r", "", "root package path modules are detected under (defaults to the source tree's base directory name)")
	cmd.Flags().BoolVar(&full, "full", false, "include named interfaces in the export")
	cmd.Flags().BoolVar(&ordered, "ordered", true, "preserve module detection order in the output")
	return cmd
}
