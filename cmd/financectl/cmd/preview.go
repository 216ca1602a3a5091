package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/warp/finance-tracker/finance"
)

var previewMonths int

// previewCmd represents the preview command.
var previewCmd = &cobra.Command{
	Use:   "preview <rule-id>",
	Short: "List a rule's upcoming occurrences without writing them",
	Long: `Preview the occurrences a recurring rule would produce over the next
N months (1-12, default 3), at most 50 of them. Nothing is written.

Example:
  financectl preview 3 --months 6`,
	Args: cobra.ExactArgs(1),
	Run:  runPreview,
}

func init() {
	previewCmd.Flags().IntVar(&previewMonths, "months", 3, "months ahead to project (1-12)")
}

func runPreview(cmd *cobra.Command, args []string) {
	id, err := strconv.ParseInt(args[0], 10, 64)
	exitOnError(err, "invalid rule id")
	if previewMonths < 1 || previewMonths > 12 {
		exitOnError(errors.New("--months must be between 1 and 12"), "invalid flag")
	}

	store := openStore()
	defer store.Close()

	today := finance.Today()
	engine := finance.NewMaterializer(store, logger)
	preview, err := engine.Preview(context.Background(), finance.RuleID(id), today.AddMonths(previewMonths, today.Day()), finance.DefaultPreviewLimit)
	exitOnError(err, "preview failed")

	if len(preview.Items) == 0 {
		fmt.Println("No upcoming occurrences")
		return
	}
	for _, item := range preview.Items {
		fmt.Printf("%s  %12s  %s\n", item.Date, item.Amount.StringFixed(2), item.Description)
	}
	fmt.Printf("Total: %s (%d occurrences)\n", preview.Total.StringFixed(2), len(preview.Items))
}
