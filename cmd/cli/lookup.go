package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/partsport/offer-service/internal/offers"
	"github.com/partsport/offer-service/internal/pkg/money"
)

var (
	lookupProductID string
	lookupTimeout   time.Duration
)

var lookupCmd = &cobra.Command{
	Use:   "lookup <brand> <article>",
	Short: "Look up live offers for a part",
	Long: `Fetches internal and external offers for the given brand and article
from the commerce backend and prints the cheapest purchasable one.`,
	Args: cobra.ExactArgs(2),
	RunE: runLookup,
}

func init() {
	lookupCmd.Flags().StringVar(&lookupProductID, "product-id", "", "catalog product id (disambiguates shared articles)")
	lookupCmd.Flags().DurationVar(&lookupTimeout, "timeout", 30*time.Second, "lookup timeout")
	rootCmd.AddCommand(lookupCmd)
}

func runLookup(cmd *cobra.Command, args []string) error {
	identity := offers.PartIdentity{
		Brand:     args[0],
		Article:   args[1],
		ProductID: lookupProductID,
	}

	client := offers.NewClient(backendClientConfig())
	cache := offers.NewCache(client, nil, offers.CacheConfig{
		MaxEntries:   16,
		FetchTimeout: lookupTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	defer cancel()

	entry, err := cache.Await(ctx, identity)
	if err != nil {
		return fmt.Errorf("lookup failed: %w", err)
	}
	if entry.State == offers.StateError {
		return fmt.Errorf("lookup failed: %w", entry.Err)
	}

	fmt.Printf("Offers for %s %s\n", identity.Brand, identity.Article)
	fmt.Printf("  internal: %d\n", len(entry.Bundle.InternalOffers))
	fmt.Printf("  external: %d\n", len(entry.Bundle.ExternalOffers))

	if entry.Cheapest == nil {
		fmt.Println("  no purchasable offer")
		return nil
	}

	offer := entry.Cheapest
	fmt.Printf("  cheapest: %s (%s, %s, delivery %d days, stock %d)\n",
		money.FormatRUB(offer.Price),
		offer.Source,
		offer.SupplierName,
		offer.DeliveryDays,
		offer.QuantityAvailable,
	)
	return nil
}

func backendClientConfig() offers.ClientConfig {
	clientCfg := offers.ClientConfig{}
	if cfg != nil {
		clientCfg = offers.ClientConfig{
			Endpoint:          cfg.Backend.GraphQLURL,
			Timeout:           cfg.Backend.Timeout,
			RequestsPerSecond: cfg.Backend.RequestsPerSecond,
			Burst:             cfg.Backend.Burst,
		}
	}
	return clientCfg
}
