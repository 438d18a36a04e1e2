package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ncobase/modulith/module"
	"github.com/ncobase/modulith/typeprovider"
)

// NewVerifyCommand builds the module set rooted at --root from the Go
// source under --path and runs the verifier, printing one line per
// violation and exiting non-zero if any were found.
func NewVerifyCommand() *cobra.Command {
	var path string
	var root string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify application-module boundaries under a root package",
		RunE: func(cmd *cobra.Command, args []string) error {
			ams, err := loadModules(path, root)
			if err != nil {
				return err
			}

			violations := module.Verify(ams)
			if violations.IsEmpty() {
				fmt.Println("no violations found")
				return nil
			}

			for _, msg := range violations.Messages() {
				fmt.Fprintln(os.Stderr, msg)
			}
			return fmt.Errorf("verify: %d violation(s) found", len(violations.Items()))
		},
	}

	cmd.Flags().StringVarP(&path, "path", "p", ".", "path to Go source tree to scan")
	cmd.Flags().StringVarP(&root, "root", "r", "", "root package path modules are detected under (defaults to the source tree's base directory name)")
	return cmd
}

// loadModules parses the Go source under path with typeprovider, indexes
// it, and detects application modules under root (or the source tree's
// base directory name, if root is empty).
func loadModules(path, root string) (*module.ApplicationModules, error) {
	types, err := typeprovider.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load types: %w", err)
	}

	idx := module.NewIndex(types)

	if root == "" {
		root = typeprovider.RootPackage(path)
	}

	ams, err := module.Of(idx, []string{root}, module.DirectSubPackages{}, nil)
	if err != nil {
		return nil, fmt.Errorf("detect modules: %w", err)
	}
	return ams, nil
}
