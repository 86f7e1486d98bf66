package offers

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Source identifies where an offer comes from.
type Source string

const (
	// SourceInternal marks offers backed by our own warehouse stock.
	SourceInternal Source = "internal"
	// SourceExternal marks offers from the third-party supplier feed.
	SourceExternal Source = "external"
)

// DefaultCurrency is used when the backend omits a currency code.
const DefaultCurrency = "RUB"

// PartIdentity identifies a sellable part independent of supplier.
// Article and Brand are the canonical pair; ProductID is set at call sites
// where it is the only stable identifier (e.g. catalog listings).
type PartIdentity struct {
	Article   string `json:"article"`
	Brand     string `json:"brand"`
	ProductID string `json:"productId,omitempty"`
}

// Valid reports whether the identity carries enough data for a lookup.
func (id PartIdentity) Valid() bool {
	return id.Article != "" && id.Brand != ""
}

// Key returns the normalized cache key for this identity.
// Canonical form is "brand-article"; when a product id is present it is
// folded in so that two products sharing an article never collide.
func (id PartIdentity) Key() string {
	if id.ProductID != "" {
		return strings.ToLower(fmt.Sprintf("%s_%s_%s", id.ProductID, id.Article, id.Brand))
	}
	return strings.ToLower(id.Brand + "-" + id.Article)
}

// Offer is a single priced, supplier-specific instance of a part.
type Offer struct {
	Source    Source `json:"source"`
	ID        string `json:"id"`
	ProductID string `json:"productId,omitempty"` // internal offers only
	OfferKey  string `json:"offerKey,omitempty"`  // external offers only

	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency"`

	QuantityAvailable int    `json:"quantityAvailable"`
	DeliveryDays      int    `json:"deliveryDays"`
	DeliveryEstimate  string `json:"deliveryEstimate,omitempty"` // free-form, external feed
	Warehouse         string `json:"warehouse,omitempty"`
	SupplierName      string `json:"supplierName"`
	CanPurchase       bool   `json:"canPurchase"`
}

// OfferBundle is the fetch result for one part identity.
// HasAnyOffers is true when either list is non-empty even if nothing in it
// is purchasable; this distinguishes "no data" from "no valid price".
type OfferBundle struct {
	InternalOffers []Offer `json:"internalOffers"`
	ExternalOffers []Offer `json:"externalOffers"`
	HasAnyOffers   bool    `json:"hasAnyOffers"`
}

// EmptyBundle returns the bundle used for short-circuited and failed lookups.
func EmptyBundle() OfferBundle {
	return OfferBundle{InternalOffers: []Offer{}, ExternalOffers: []Offer{}}
}

// CartLineSummary is the slice of cart state the backend needs to compute
// availability net of already-reserved quantities. It must be rebuilt from
// live cart state at fetch time, never cached.
type CartLineSummary struct {
	ProductID string `json:"productId,omitempty"`
	OfferKey  string `json:"offerKey,omitempty"`
	Article   string `json:"article"`
	Brand     string `json:"brand"`
	Quantity  int    `json:"quantity"`
}

// EntryState is the lifecycle state of a cache entry.
type EntryState string

const (
	StateLoading  EntryState = "loading"
	StateResolved EntryState = "resolved"
	StateError    EntryState = "error"
)

// Entry is a snapshot of one cache slot. Bundle and Cheapest are only set
// once State is StateResolved; Cheapest stays nil when no offer survives
// filtering.
type Entry struct {
	State     EntryState
	Bundle    OfferBundle
	Cheapest  *Offer
	FetchedAt time.Time
	Err       error
}
