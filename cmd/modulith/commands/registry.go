package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ncobase/modulith/event"

	// Blank-imported for their init-time event.RegisterDriver side effect,
	// mirroring database/sql driver registration.
	_ "github.com/ncobase/modulith/store/mongodb"
	_ "github.com/ncobase/modulith/store/neo4j"
	_ "github.com/ncobase/modulith/store/postgres"
)

// NewRegistryCommand builds the "registry" command group.
func NewRegistryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "registry",
		Short: "Inspect a publication registry's backing store",
	}

	cmd.AddCommand(newRegistryStatusCommand())
	return cmd
}

func newRegistryStatusCommand() *cobra.Command {
	var driver string
	var dsn string
	var staleAfter time.Duration

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print incomplete and stale publication counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			store, err := event.OpenStore(ctx, driver, dsn)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}

			incomplete, err := store.FindIncomplete(ctx)
			if err != nil {
				return fmt.Errorf("find incomplete: %w", err)
			}

			stale, err := store.FindIncompletePublishedBefore(ctx, time.Now().Add(-staleAfter))
			if err != nil {
				return fmt.Errorf("find stale: %w", err)
			}

			fmt.Printf("incomplete: %d\n", len(incomplete))
			fmt.Printf("stale (older than %s): %d\n", staleAfter, len(stale))
			return nil
		},
	}

	cmd.Flags().StringVarP(&driver, "driver", "d", "postgres", "store driver name (postgres, mongodb, neo4j)")
	cmd.Flags().StringVarP(&dsn, "store", "s", "", "store connection string")
	cmd.Flags().DurationVar(&staleAfter, "stale-after", 5*time.Minute, "age past which an incomplete publication counts as stale")
	_ = cmd.MarkFlagRequired("store")
	return cmd
}
