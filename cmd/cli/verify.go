package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/partsport/offer-service/internal/cart"
	"github.com/partsport/offer-service/internal/export"
	"github.com/partsport/offer-service/internal/offers"
	"github.com/partsport/offer-service/internal/pkg/money"
)

var (
	verifyCartFile string
	verifyXLSX     string
	verifyTimeout  time.Duration
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify cart prices against live offers",
	Long: `Loads cart lines from a JSON file, re-fetches live offers for every
distinct part and reports lines whose price drifted or whose part is no
longer purchasable. The file is never modified.`,
	RunE: runVerify,
}

func init() {
	verifyCmd.Flags().StringVar(&verifyCartFile, "cart", "", "path to a JSON file with cart lines (required)")
	verifyCmd.Flags().StringVar(&verifyXLSX, "xlsx", "", "write the drift report to this xlsx file")
	verifyCmd.Flags().DurationVar(&verifyTimeout, "timeout", 2*time.Minute, "verification timeout")
	verifyCmd.MarkFlagRequired("cart")
	rootCmd.AddCommand(verifyCmd)
}

// fileBackend serves a fixed set of lines read from disk. Mutations other
// than removal are rejected; verification never adds to a cart.
type fileBackend struct {
	lines []cart.Line
}

func (b *fileBackend) AddToCart(ctx context.Context, input cart.AddItemInput) (cart.MutationResult, error) {
	return cart.MutationResult{}, fmt.Errorf("file-backed cart is read-only")
}

func (b *fileBackend) RemoveFromCart(ctx context.Context, itemID string) (cart.MutationResult, error) {
	kept := make([]cart.Line, 0, len(b.lines))
	for _, line := range b.lines {
		if line.ID != itemID {
			kept = append(kept, line)
		}
	}
	b.lines = kept
	return cart.MutationResult{Success: true, Lines: kept}, nil
}

func (b *fileBackend) UpdateQuantity(ctx context.Context, itemID string, quantity int) (cart.MutationResult, error) {
	return cart.MutationResult{}, fmt.Errorf("file-backed cart is read-only")
}

func (b *fileBackend) ClearCart(ctx context.Context) (cart.MutationResult, error) {
	return cart.MutationResult{}, fmt.Errorf("file-backed cart is read-only")
}

func (b *fileBackend) GetCart(ctx context.Context) ([]cart.Line, error) {
	return b.lines, nil
}

func runVerify(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(verifyCartFile)
	if err != nil {
		return fmt.Errorf("read cart file: %w", err)
	}
	var lines []cart.Line
	if err := json.Unmarshal(data, &lines); err != nil {
		return fmt.Errorf("parse cart file: %w", err)
	}
	if len(lines) == 0 {
		fmt.Println("Cart is empty, nothing to verify")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), verifyTimeout)
	defer cancel()

	cartSvc := cart.NewService(&fileBackend{lines: lines})
	if err := cartSvc.Refresh(ctx); err != nil {
		return err
	}

	client := offers.NewClient(backendClientConfig())
	cache := offers.NewCache(client, cartSvc.Snapshot, offers.DefaultCacheConfig())
	reconciler := cart.NewReconciler(cartSvc, cache)

	report, err := reconciler.Check(ctx)
	if err != nil {
		return fmt.Errorf("verification failed: %w", err)
	}

	if report.Clean() {
		fmt.Printf("All %d lines priced correctly\n", len(lines))
	} else {
		for _, change := range report.Changes {
			fmt.Printf("CHANGED  %s %s: %s -> %s (%s%%)\n",
				change.Brand, change.Article,
				money.FormatRUB(change.OldPrice),
				money.FormatRUB(change.NewPrice),
				change.Percent(),
			)
		}
		for _, removal := range report.Removals {
			fmt.Printf("REMOVED  %s %s: no purchasable offer\n", removal.Brand, removal.Article)
		}
		fmt.Printf("Changed lines total: %s -> %s\n",
			money.FormatRUB(report.OldTotal),
			money.FormatRUB(report.NewTotal),
		)
	}

	if verifyXLSX != "" {
		if err := export.WriteReport(report, verifyXLSX); err != nil {
			return err
		}
		fmt.Printf("Report written to %s\n", verifyXLSX)
	}
	return nil
}
