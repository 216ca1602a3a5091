package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/warp/finance-tracker/api"
	"github.com/warp/finance-tracker/finance"
)

var (
	materializeAll  bool
	materializeAsOf string
	materializeCap  int
)

// materializeCmd represents the materialize command.
var materializeCmd = &cobra.Command{
	Use:   "materialize [rule-id]",
	Short: "Write pending recurring transactions to the ledger",
	Long: `Materialize every occurrence of a recurring rule that is due on or
before the as-of date (default today). With --all, every active rule is
processed and the pass is recorded in the run history.

Running it twice with the same as-of date writes nothing the second time.

Example:
  financectl materialize 3
  financectl materialize --all --as-of 2024-04-30`,
	Args: func(cmd *cobra.Command, args []string) error {
		if materializeAll && len(args) > 0 {
			return errors.New("pass a rule id or --all, not both")
		}
		if !materializeAll && len(args) != 1 {
			return errors.New("a rule id is required unless --all is set")
		}
		return nil
	},
	Run: runMaterialize,
}

func init() {
	materializeCmd.Flags().BoolVar(&materializeAll, "all", false, "materialize every active rule")
	materializeCmd.Flags().StringVar(&materializeAsOf, "as-of", "", "as-of date YYYY-MM-DD (default today)")
	materializeCmd.Flags().IntVar(&materializeCap, "cap", 0, "max occurrences per rule (default from config)")
}

func runMaterialize(cmd *cobra.Command, args []string) {
	asOf := finance.Today()
	if materializeAsOf != "" {
		d, err := finance.ParseDate(materializeAsOf)
		exitOnError(err, "invalid --as-of")
		asOf = d
	}
	safetyCap := cfg.SafetyCap
	if materializeCap > 0 {
		safetyCap = materializeCap
	}

	store := openStore()
	defer store.Close()

	engine := finance.NewMaterializer(store, logger)
	ctx := context.Background()

	if materializeAll {
		runner := api.NewBatchRunner(store, engine, safetyCap, logger)
		run, batch, err := runner.Run(ctx, api.TriggerCLI, asOf)
		exitOnError(err, "materialization failed")

		fmt.Printf("Run %s as of %s\n", run.ID, asOf)
		for _, o := range batch.Rules {
			switch {
			case o.Err != nil:
				fmt.Printf("  rule %-6d failed: %v\n", o.RuleID, o.Err)
			case o.Truncated:
				fmt.Printf("  rule %-6d created %d (cap reached, run again to continue)\n", o.RuleID, o.Created)
			default:
				fmt.Printf("  rule %-6d created %d\n", o.RuleID, o.Created)
			}
		}
		fmt.Printf("Total created: %d, processed: %d, failed: %d\n", batch.TotalCreated, batch.Processed, batch.Failed)
		return
	}

	id, err := strconv.ParseInt(args[0], 10, 64)
	exitOnError(err, "invalid rule id")

	res, err := engine.Materialize(ctx, finance.RuleID(id), asOf, safetyCap)
	exitOnError(err, "materialization failed")

	fmt.Printf("Rule %d: created %d\n", id, res.Created)
	if res.LastProcessed != nil {
		fmt.Printf("Last processed date: %s\n", res.LastProcessed)
	}
	if res.Truncated {
		fmt.Println("Safety cap reached; run again to continue")
	}
}
