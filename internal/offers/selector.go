package offers

// SelectCheapest picks the single best offer from a bundle.
//
// Offers with a non-positive price or CanPurchase=false never win. Among the
// survivors the lowest price wins; on an exact price tie the internal offer
// is preferred, since warehouse stock ships faster than the supplier feed.
// This is the one canonical selection algorithm for every call site.
//
// Returns nil when nothing survives filtering, which is distinct from
// "no offers at all" (the bundle's HasAnyOffers may still be true).
func SelectCheapest(bundle OfferBundle) *Offer {
	var best *Offer

	// Internal offers are scanned first so that a strictly-lower-price
	// comparison makes them win exact ties.
	for i := range bundle.InternalOffers {
		best = better(best, &bundle.InternalOffers[i])
	}
	for i := range bundle.ExternalOffers {
		best = better(best, &bundle.ExternalOffers[i])
	}

	if best == nil {
		return nil
	}
	chosen := *best
	return &chosen
}

func better(current, candidate *Offer) *Offer {
	if !candidate.CanPurchase || !candidate.Price.IsPositive() {
		return current
	}
	if current == nil || candidate.Price.LessThan(current.Price) {
		return candidate
	}
	return current
}
