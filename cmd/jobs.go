package cmd

import (
	"context"
	"fmt"
	"log"

	"quest-service/database"

	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := openDatabase(cfg)
			if err != nil {
				return err
			}
			if err := database.Migrate(db); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "✅ Schema up to date")
			return nil
		},
	}
}

func newSweepTokensCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep-tokens",
		Short: "Delete expired tracking tokens once",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := jobRuntime(cmd.Context())
			if err != nil {
				return err
			}
			n, err := rt.sweeper.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "🧹 Deleted %d expired token(s)\n", n)
			return nil
		},
	}
}

func newReconcileRewardsCmd() *cobra.Command {
	var all bool
	c := &cobra.Command{
		Use:   "reconcile-rewards",
		Short: "Apply outstanding reward credits",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := jobRuntime(ctx)
			if err != nil {
				return err
			}
			total := 0
			for {
				n, err := rt.reconciler.RunOnce(ctx)
				if err != nil {
					return err
				}
				total += n
				if !all || n == 0 {
					break
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "🔁 Reconciled %d reward credit(s)\n", total)
			return nil
		},
	}
	c.Flags().BoolVar(&all, "all", false, "keep running batches until nothing is left to credit")
	return c
}

func jobRuntime(ctx context.Context) (*runtime, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	db, err := openDatabase(cfg)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		return nil, err
	}
	rt, err := newRuntime(ctx, cfg, db)
	if err != nil {
		return nil, err
	}
	log.Printf("[CLI] Connected (ledger mode %s)", cfg.LedgerMode)
	return rt, nil
}
