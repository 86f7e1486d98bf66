package cart

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/partsport/offer-service/internal/offers"
	"github.com/partsport/offer-service/internal/pkg/money"
)

// Phase is the reconciliation state for the session cart.
type Phase string

const (
	// PhaseIdle means no pass has run or the last pass was fully settled.
	PhaseIdle Phase = "idle"
	// PhaseChecking means a pass is re-fetching live prices right now.
	PhaseChecking Phase = "checking"
	// PhaseClean means the last pass found every line priced as frozen.
	PhaseClean Phase = "clean"
	// PhaseDrifted means the last pass found drift and is waiting for the
	// user to confirm or cancel. Checkout is blocked in this phase.
	PhaseDrifted Phase = "drifted"
	// PhaseConfirmed means the user accepted the drifted prices.
	PhaseConfirmed Phase = "confirmed"
	// PhaseCancelled means the user rejected the drifted prices.
	PhaseCancelled Phase = "cancelled"
)

// PriceChange records one line whose live price left the frozen snapshot.
type PriceChange struct {
	LineID   string          `json:"lineId"`
	Name     string          `json:"name"`
	Brand    string          `json:"brand"`
	Article  string          `json:"article"`
	OldPrice decimal.Decimal `json:"oldPrice"`
	NewPrice decimal.Decimal `json:"newPrice"`
	Quantity int             `json:"quantity"`
}

// Delta returns the signed per-unit price difference.
func (p PriceChange) Delta() decimal.Decimal {
	return p.NewPrice.Sub(p.OldPrice)
}

// Percent returns the absolute drift as a percentage of the old price.
func (p PriceChange) Percent() decimal.Decimal {
	return money.PercentChange(p.OldPrice, p.NewPrice)
}

// RemovedLine records a line whose part no longer has any purchasable offer.
type RemovedLine struct {
	LineID  string `json:"lineId"`
	Name    string `json:"name"`
	Brand   string `json:"brand"`
	Article string `json:"article"`
}

// Report is the outcome of one reconciliation pass. OldTotal and NewTotal
// cover only the changed lines (quantity-weighted), matching what the
// storefront's confirmation dialog shows.
type Report struct {
	PassID    uuid.UUID       `json:"passId"`
	Phase     Phase           `json:"phase"`
	Changes   []PriceChange   `json:"changes"`
	Removals  []RemovedLine   `json:"removals"`
	OldTotal  decimal.Decimal `json:"oldTotal"`
	NewTotal  decimal.Decimal `json:"newTotal"`
	CheckedAt time.Time       `json:"checkedAt"`
}

// Clean reports whether the pass found no drift and no removals.
func (r Report) Clean() bool {
	return len(r.Changes) == 0 && len(r.Removals) == 0
}

// Reconciler runs price reconciliation passes over the session cart. It is
// a small state machine: Check moves idle -> checking -> clean | drifted,
// and a drifted report must be settled by Confirm or Cancel before checkout
// may proceed.
type Reconciler struct {
	mu      sync.Mutex
	phase   Phase
	pending *Report

	cart   *Service
	cache  *offers.Cache
	logger zerolog.Logger
}

// NewReconciler creates a reconciler over the given cart and offer cache.
func NewReconciler(cart *Service, cache *offers.Cache) *Reconciler {
	return &Reconciler{
		phase:  PhaseIdle,
		cart:   cart,
		cache:  cache,
		logger: log.With().Str("component", "price_reconciler").Logger(),
	}
}

// Phase returns the current reconciliation phase.
func (r *Reconciler) Phase() Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase
}

// Pending returns the unsettled drift report, or nil when there is none.
func (r *Reconciler) Pending() *Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pending == nil {
		return nil
	}
	report := *r.pending
	return &report
}

// CheckoutAllowed reports whether checkout may proceed right now.
func (r *Reconciler) CheckoutAllowed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase != PhaseDrifted && r.phase != PhaseChecking
}

// Check runs one reconciliation pass: every distinct part in the cart is
// invalidated and re-fetched, then live cheapest prices are compared against
// the frozen line prices. Frozen prices are never modified here; that only
// happens in Confirm.
//
// A fetch failure for any line aborts the whole pass with an error. Missing
// data must never be mistaken for a removed or repriced part.
func (r *Reconciler) Check(ctx context.Context) (Report, error) {
	r.mu.Lock()
	if r.phase == PhaseChecking {
		r.mu.Unlock()
		return Report{}, fmt.Errorf("reconciliation pass already running")
	}
	r.phase = PhaseChecking
	r.mu.Unlock()

	lines := r.cart.Lines()
	report := Report{
		PassID:    uuid.New(),
		Changes:   []PriceChange{},
		Removals:  []RemovedLine{},
		OldTotal:  decimal.Zero,
		NewTotal:  decimal.Zero,
		CheckedAt: time.Now(),
	}

	identities, lineIdentity := distinctIdentities(lines)
	entries := make([]offers.Entry, len(identities))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, identity := range identities {
		g.Go(func() error {
			r.cache.Invalidate(identity)
			entry, err := r.cache.Await(gctx, identity)
			if err != nil {
				return err
			}
			if entry.State == offers.StateError {
				return fmt.Errorf("lookup %s %s: %w", identity.Brand, identity.Article, entry.Err)
			}
			entries[i] = entry
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		r.settle(PhaseIdle, nil)
		return Report{}, fmt.Errorf("reconciliation pass: %w", err)
	}

	entryByKey := make(map[string]offers.Entry, len(identities))
	for i, identity := range identities {
		entryByKey[identity.Key()] = entries[i]
	}

	for _, line := range lines {
		entry := entryByKey[lineIdentity[line.ID].Key()]
		if entry.Cheapest == nil {
			report.Removals = append(report.Removals, RemovedLine{
				LineID:  line.ID,
				Name:    line.Name,
				Brand:   line.Brand,
				Article: line.Article,
			})
			continue
		}
		if money.Equal(line.Price, entry.Cheapest.Price) {
			continue
		}
		qty := decimal.NewFromInt(int64(line.Quantity))
		report.Changes = append(report.Changes, PriceChange{
			LineID:   line.ID,
			Name:     line.Name,
			Brand:    line.Brand,
			Article:  line.Article,
			OldPrice: line.Price,
			NewPrice: entry.Cheapest.Price,
			Quantity: line.Quantity,
		})
		report.OldTotal = report.OldTotal.Add(line.Price.Mul(qty))
		report.NewTotal = report.NewTotal.Add(entry.Cheapest.Price.Mul(qty))
	}

	if report.Clean() {
		report.Phase = PhaseClean
		r.settle(PhaseClean, nil)
		r.logger.Info().Str("pass_id", report.PassID.String()).Msg("Reconciliation pass clean")
		return report, nil
	}

	report.Phase = PhaseDrifted
	r.settle(PhaseDrifted, &report)
	r.logger.Info().
		Str("pass_id", report.PassID.String()).
		Int("changes", len(report.Changes)).
		Int("removals", len(report.Removals)).
		Msg("Reconciliation pass found drift")
	return report, nil
}

// Confirm applies a drifted report: changed lines get their new prices and
// removed lines leave the cart. The pass id must match the pending report so
// a stale confirmation can never apply over a newer pass.
func (r *Reconciler) Confirm(ctx context.Context, passID uuid.UUID) error {
	r.mu.Lock()
	if r.phase != PhaseDrifted || r.pending == nil || r.pending.PassID != passID {
		r.mu.Unlock()
		return fmt.Errorf("no matching drift report to confirm")
	}
	report := *r.pending
	r.mu.Unlock()

	for _, change := range report.Changes {
		if !r.cart.ApplyPrice(change.LineID, change.NewPrice) {
			r.logger.Warn().Str("line_id", change.LineID).Msg("Confirmed line no longer in cart")
		}
	}
	for _, removal := range report.Removals {
		if err := r.cart.RemoveItem(ctx, removal.LineID); err != nil {
			r.settle(PhaseDrifted, &report)
			return fmt.Errorf("remove unavailable line: %w", err)
		}
	}

	r.settle(PhaseConfirmed, nil)
	r.logger.Info().Str("pass_id", passID.String()).Msg("Drift report confirmed")
	return nil
}

// Cancel discards the pending drift report without touching the cart.
// Checkout stays blocked only by a fresh pass finding drift again.
func (r *Reconciler) Cancel(passID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.phase != PhaseDrifted || r.pending == nil || r.pending.PassID != passID {
		return fmt.Errorf("no matching drift report to cancel")
	}
	r.phase = PhaseCancelled
	r.pending = nil
	r.logger.Info().Str("pass_id", passID.String()).Msg("Drift report cancelled")
	return nil
}

func (r *Reconciler) settle(phase Phase, pending *Report) {
	r.mu.Lock()
	r.phase = phase
	r.pending = pending
	r.mu.Unlock()
}

// distinctIdentities collapses cart lines into the unique part identities to
// re-fetch, and maps each line id to its identity.
func distinctIdentities(lines []Line) ([]offers.PartIdentity, map[string]offers.PartIdentity) {
	seen := make(map[string]struct{}, len(lines))
	identities := make([]offers.PartIdentity, 0, len(lines))
	lineIdentity := make(map[string]offers.PartIdentity, len(lines))

	for _, line := range lines {
		identity := offers.PartIdentity{
			Article:   line.Article,
			Brand:     line.Brand,
			ProductID: line.ProductID,
		}
		lineIdentity[line.ID] = identity
		key := identity.Key()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		identities = append(identities, identity)
	}
	return identities, lineIdentity
}
