package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/partsport/offer-service/internal/audit"
	"github.com/partsport/offer-service/internal/database"
	"github.com/partsport/offer-service/internal/export"
)

var (
	passesLimit int
	passesXLSX  string
)

var passesCmd = &cobra.Command{
	Use:   "passes",
	Short: "List recent reconciliation passes from the audit trail",
	RunE:  runPasses,
}

func init() {
	passesCmd.Flags().IntVar(&passesLimit, "limit", 50, "maximum number of passes to list")
	passesCmd.Flags().StringVar(&passesXLSX, "xlsx", "", "write the pass history to this xlsx file")
	rootCmd.AddCommand(passesCmd)
}

func runPasses(cmd *cobra.Command, args []string) error {
	store := audit.NewStore(database.Pool())

	records, err := store.ListRecent(context.Background(), passesLimit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No reconciliation passes recorded")
		return nil
	}

	for _, record := range records {
		fmt.Printf("%s  %-10s  changes=%d removals=%d  %s\n",
			record.CheckedAt.Format("2006-01-02 15:04:05"),
			record.Phase,
			record.ChangeCount,
			record.RemovalCount,
			record.PassID,
		)
	}

	if passesXLSX != "" {
		if err := export.WritePassHistory(records, passesXLSX); err != nil {
			return err
		}
		fmt.Printf("Pass history written to %s\n", passesXLSX)
	}
	return nil
}
