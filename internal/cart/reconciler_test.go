package cart

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/partsport/offer-service/internal/offers"
)

// priceFetcher serves a configurable live price per part key. A key with no
// price resolves to an empty bundle (part gone); a key with an error fails
// the fetch.
type priceFetcher struct {
	mu     sync.Mutex
	prices map[string]decimal.Decimal
	errs   map[string]error
	calls  int
}

func newPriceFetcher() *priceFetcher {
	return &priceFetcher{
		prices: make(map[string]decimal.Decimal),
		errs:   make(map[string]error),
	}
}

func (f *priceFetcher) setPrice(identity offers.PartIdentity, price float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[identity.Key()] = decimal.NewFromFloat(price)
}

func (f *priceFetcher) drop(identity offers.PartIdentity) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.prices, identity.Key())
}

func (f *priceFetcher) FetchOffers(ctx context.Context, identity offers.PartIdentity, cart []offers.CartLineSummary) (offers.OfferBundle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	if err := f.errs[identity.Key()]; err != nil {
		return offers.EmptyBundle(), err
	}
	price, ok := f.prices[identity.Key()]
	if !ok {
		return offers.EmptyBundle(), nil
	}
	return offers.OfferBundle{
		InternalOffers: []offers.Offer{{
			Source:            offers.SourceInternal,
			ID:                "i1",
			ProductID:         "p1",
			Price:             price,
			Currency:          "RUB",
			QuantityAvailable: 5,
			CanPurchase:       true,
		}},
		ExternalOffers: []offers.Offer{},
		HasAnyOffers:   true,
	}, nil
}

func reconcilerFixture(t *testing.T) (*priceFetcher, *Service, *Reconciler) {
	t.Helper()
	fetcher := newPriceFetcher()
	svc := NewService(&memBackend{})
	cache := offers.NewCache(fetcher, svc.Snapshot, offers.DefaultCacheConfig())
	return fetcher, svc, NewReconciler(svc, cache)
}

func identityOf(line Line) offers.PartIdentity {
	return offers.PartIdentity{Article: line.Article, Brand: line.Brand, ProductID: line.ProductID}
}

func TestReconcilerCleanPass(t *testing.T) {
	fetcher, svc, rec := reconcilerFixture(t)
	line := addTestItem(t, svc, "77WPE080", "MasterKit", 4500, 1)
	fetcher.setPrice(identityOf(line), 4500)

	report, err := rec.Check(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Clean())
	assert.Equal(t, PhaseClean, report.Phase)
	assert.Equal(t, PhaseClean, rec.Phase())
	assert.True(t, rec.CheckoutAllowed())
	assert.NotEqual(t, uuid.Nil, report.PassID)
}

// TestReconcilerIdempotentWhenPricesStable verifies that repeated passes
// against unchanged live prices keep reporting clean and never mutate the
// cart.
func TestReconcilerIdempotentWhenPricesStable(t *testing.T) {
	fetcher, svc, rec := reconcilerFixture(t)
	line := addTestItem(t, svc, "A1", "Bosch", 100, 2)
	fetcher.setPrice(identityOf(line), 100)

	for i := 0; i < 3; i++ {
		report, err := rec.Check(context.Background())
		require.NoError(t, err)
		assert.True(t, report.Clean(), "pass %d must be clean", i)
	}
	assert.True(t, svc.Lines()[0].Price.Equal(decimal.NewFromInt(100)))
}

func TestReconcilerDetectsDrift(t *testing.T) {
	fetcher, svc, rec := reconcilerFixture(t)
	line := addTestItem(t, svc, "A1", "Bosch", 100, 2)
	fetcher.setPrice(identityOf(line), 120)

	report, err := rec.Check(context.Background())
	require.NoError(t, err)

	assert.Equal(t, PhaseDrifted, report.Phase)
	assert.False(t, rec.CheckoutAllowed(), "drift must block checkout")
	require.Len(t, report.Changes, 1)

	change := report.Changes[0]
	assert.True(t, change.OldPrice.Equal(decimal.NewFromInt(100)))
	assert.True(t, change.NewPrice.Equal(decimal.NewFromInt(120)))
	assert.True(t, change.Delta().Equal(decimal.NewFromInt(20)))
	assert.True(t, change.Percent().Equal(decimal.NewFromInt(20)))

	// Totals are quantity-weighted over the changed lines.
	assert.True(t, report.OldTotal.Equal(decimal.NewFromInt(200)))
	assert.True(t, report.NewTotal.Equal(decimal.NewFromInt(240)))

	// The frozen price is untouched until the user confirms.
	assert.True(t, svc.Lines()[0].Price.Equal(decimal.NewFromInt(100)))
}

func TestReconcilerConfirmAppliesPrices(t *testing.T) {
	fetcher, svc, rec := reconcilerFixture(t)
	line := addTestItem(t, svc, "A1", "Bosch", 100, 1)
	fetcher.setPrice(identityOf(line), 120)

	report, err := rec.Check(context.Background())
	require.NoError(t, err)
	require.Equal(t, PhaseDrifted, report.Phase)

	require.NoError(t, rec.Confirm(context.Background(), report.PassID))
	assert.Equal(t, PhaseConfirmed, rec.Phase())
	assert.True(t, rec.CheckoutAllowed())
	assert.True(t, svc.Lines()[0].Price.Equal(decimal.NewFromInt(120)))

	// The next pass against the same live price is clean.
	next, err := rec.Check(context.Background())
	require.NoError(t, err)
	assert.True(t, next.Clean())
}

func TestReconcilerCancelKeepsFrozenPrices(t *testing.T) {
	fetcher, svc, rec := reconcilerFixture(t)
	line := addTestItem(t, svc, "A1", "Bosch", 100, 1)
	fetcher.setPrice(identityOf(line), 150)

	report, err := rec.Check(context.Background())
	require.NoError(t, err)
	require.Equal(t, PhaseDrifted, report.Phase)

	require.NoError(t, rec.Cancel(report.PassID))
	assert.Equal(t, PhaseCancelled, rec.Phase())
	assert.True(t, rec.CheckoutAllowed())
	assert.True(t, svc.Lines()[0].Price.Equal(decimal.NewFromInt(100)), "cancel must not touch frozen prices")
}

func TestReconcilerRemovesUnavailableLines(t *testing.T) {
	fetcher, svc, rec := reconcilerFixture(t)
	keep := addTestItem(t, svc, "A1", "Bosch", 100, 1)
	gone := addTestItem(t, svc, "B2", "Mann", 50, 1)
	fetcher.setPrice(identityOf(keep), 100)
	fetcher.drop(identityOf(gone))

	report, err := rec.Check(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Removals, 1)
	assert.Equal(t, gone.ID, report.Removals[0].LineID)
	assert.Empty(t, report.Changes)

	require.NoError(t, rec.Confirm(context.Background(), report.PassID))
	lines := svc.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, keep.ID, lines[0].ID)
}

// TestReconcilerFetchFailureAbortsPass verifies that a failed lookup aborts
// the whole pass instead of being treated as a removed part.
func TestReconcilerFetchFailureAbortsPass(t *testing.T) {
	fetcher, svc, rec := reconcilerFixture(t)
	line := addTestItem(t, svc, "A1", "Bosch", 100, 1)
	fetcher.errs[identityOf(line).Key()] = errors.New("backend down")

	_, err := rec.Check(context.Background())
	require.Error(t, err)
	assert.Equal(t, PhaseIdle, rec.Phase())
	require.Len(t, svc.Lines(), 1, "a failed pass must not remove anything")
}

func TestReconcilerStaleSettlementRejected(t *testing.T) {
	fetcher, svc, rec := reconcilerFixture(t)
	line := addTestItem(t, svc, "A1", "Bosch", 100, 1)
	fetcher.setPrice(identityOf(line), 120)

	report, err := rec.Check(context.Background())
	require.NoError(t, err)
	require.Equal(t, PhaseDrifted, report.Phase)

	assert.Error(t, rec.Confirm(context.Background(), uuid.New()), "wrong pass id must not confirm")
	assert.Error(t, rec.Cancel(uuid.New()))
	assert.Equal(t, PhaseDrifted, rec.Phase())

	require.NoError(t, rec.Confirm(context.Background(), report.PassID))
	assert.Error(t, rec.Confirm(context.Background(), report.PassID), "a settled report cannot be confirmed twice")
}

func TestReconcilerSharedIdentityFetchedOnce(t *testing.T) {
	fetcher, svc, rec := reconcilerFixture(t)
	a := addTestItem(t, svc, "A1", "Bosch", 100, 1)
	addTestItem(t, svc, "A1", "Bosch", 100, 3)
	fetcher.setPrice(identityOf(a), 100)

	report, err := rec.Check(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Clean())
	assert.Equal(t, 1, fetcher.calls, "duplicate lines must share one live fetch")
}
