package offers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// searchOffersQuery mirrors the backend's SearchProductOffers operation.
// Cart items are passed so the backend can net out already-reserved stock.
const searchOffersQuery = `
query SearchProductOffers($articleNumber: String!, $brand: String!, $cartItems: [CartItemInput!]) {
  searchProductOffers(articleNumber: $articleNumber, brand: $brand, cartItems: $cartItems) {
    internalOffers {
      id
      productId
      price
      quantity
      warehouse
      deliveryDays
      available
      rating
      supplier
    }
    externalOffers {
      offerKey
      brand
      code
      name
      price
      currency
      deliveryTime
      deliveryTimeMax
      quantity
      warehouse
      warehouseName
      rejects
      supplier
      comment
      weight
      volume
      canPurchase
    }
  }
}`

// Fetcher is the offer query boundary. The cache depends on this interface
// rather than the concrete GraphQL client.
type Fetcher interface {
	FetchOffers(ctx context.Context, identity PartIdentity, cart []CartLineSummary) (OfferBundle, error)
}

// FetcherFunc adapts a plain function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, identity PartIdentity, cart []CartLineSummary) (OfferBundle, error)

func (f FetcherFunc) FetchOffers(ctx context.Context, identity PartIdentity, cart []CartLineSummary) (OfferBundle, error) {
	return f(ctx, identity, cart)
}

// ClientConfig configures the GraphQL offer client.
type ClientConfig struct {
	Endpoint          string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
}

// Client fetches offers from the commerce backend over GraphQL.
// It performs exactly one network call per invocation; retry policy lives
// in the cache layer, not here.
type Client struct {
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     zerolog.Logger
}

// NewClient creates an offer client for the given backend endpoint.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	rps := cfg.RequestsPerSecond
	if rps == 0 {
		rps = 20
	}
	burst := cfg.Burst
	if burst == 0 {
		burst = 40
	}

	return &Client{
		endpoint:   cfg.Endpoint,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
		logger:     log.With().Str("component", "offer_client").Logger(),
	}
}

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphqlError struct {
	Message string `json:"message"`
}

type searchOffersResponse struct {
	Data struct {
		SearchProductOffers *struct {
			InternalOffers []internalOfferWire `json:"internalOffers"`
			ExternalOffers []externalOfferWire `json:"externalOffers"`
		} `json:"searchProductOffers"`
	} `json:"data"`
	Errors []graphqlError `json:"errors"`
}

type internalOfferWire struct {
	ID           string          `json:"id"`
	ProductID    string          `json:"productId"`
	Price        decimal.Decimal `json:"price"`
	Quantity     int             `json:"quantity"`
	Warehouse    string          `json:"warehouse"`
	DeliveryDays int             `json:"deliveryDays"`
	Available    bool            `json:"available"`
	Rating       float64         `json:"rating"`
	Supplier     string          `json:"supplier"`
}

type externalOfferWire struct {
	OfferKey        string          `json:"offerKey"`
	Brand           string          `json:"brand"`
	Code            string          `json:"code"`
	Name            string          `json:"name"`
	Price           decimal.Decimal `json:"price"`
	Currency        string          `json:"currency"`
	DeliveryTime    int             `json:"deliveryTime"`
	DeliveryTimeMax int             `json:"deliveryTimeMax"`
	Quantity        int             `json:"quantity"`
	Warehouse       string          `json:"warehouse"`
	WarehouseName   string          `json:"warehouseName"`
	Rejects         int             `json:"rejects"`
	Supplier        string          `json:"supplier"`
	Comment         string          `json:"comment"`
	Weight          float64         `json:"weight"`
	Volume          float64         `json:"volume"`
	CanPurchase     bool            `json:"canPurchase"`
}

// FetchOffers resolves the offer bundle for one part identity.
//
// An identity missing article or brand resolves immediately to an empty
// bundle with no network round-trip. Transport and malformed-response
// failures return an empty bundle together with the error; callers that
// render prices must treat the error as "price unavailable", not panic-worthy.
func (c *Client) FetchOffers(ctx context.Context, identity PartIdentity, cart []CartLineSummary) (OfferBundle, error) {
	if !identity.Valid() {
		return EmptyBundle(), nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return EmptyBundle(), fmt.Errorf("rate limiter: %w", err)
	}

	if cart == nil {
		cart = []CartLineSummary{}
	}
	payload, err := json.Marshal(graphqlRequest{
		Query: searchOffersQuery,
		Variables: map[string]any{
			"articleNumber": identity.Article,
			"brand":         identity.Brand,
			"cartItems":     cart,
		},
	})
	if err != nil {
		return EmptyBundle(), fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return EmptyBundle(), fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return EmptyBundle(), fmt.Errorf("fetch offers: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return EmptyBundle(), fmt.Errorf("fetch offers: backend returned status %d", resp.StatusCode)
	}

	var decoded searchOffersResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return EmptyBundle(), fmt.Errorf("decode response: %w", err)
	}
	if len(decoded.Errors) > 0 {
		return EmptyBundle(), fmt.Errorf("fetch offers: graphql error: %s", decoded.Errors[0].Message)
	}
	if decoded.Data.SearchProductOffers == nil {
		return EmptyBundle(), nil
	}

	bundle := mapBundle(decoded.Data.SearchProductOffers.InternalOffers, decoded.Data.SearchProductOffers.ExternalOffers)

	c.logger.Debug().
		Str("article", identity.Article).
		Str("brand", identity.Brand).
		Int("internal", len(bundle.InternalOffers)).
		Int("external", len(bundle.ExternalOffers)).
		Dur("latency", time.Since(start)).
		Msg("Fetched offers")

	return bundle, nil
}

func mapBundle(internal []internalOfferWire, external []externalOfferWire) OfferBundle {
	bundle := EmptyBundle()

	for _, w := range internal {
		bundle.InternalOffers = append(bundle.InternalOffers, Offer{
			Source:            SourceInternal,
			ID:                w.ID,
			ProductID:         w.ProductID,
			Price:             w.Price,
			Currency:          DefaultCurrency,
			QuantityAvailable: w.Quantity,
			DeliveryDays:      w.DeliveryDays,
			Warehouse:         w.Warehouse,
			SupplierName:      w.Supplier,
			CanPurchase:       w.Available && w.Quantity > 0,
		})
	}

	for _, w := range external {
		days := w.DeliveryTime
		if days == 0 {
			days = w.DeliveryTimeMax
		}
		currency := w.Currency
		if currency == "" {
			currency = DefaultCurrency
		}
		warehouse := w.WarehouseName
		if warehouse == "" {
			warehouse = w.Warehouse
		}
		bundle.ExternalOffers = append(bundle.ExternalOffers, Offer{
			Source:            SourceExternal,
			ID:                w.OfferKey,
			OfferKey:          w.OfferKey,
			Price:             w.Price,
			Currency:          currency,
			QuantityAvailable: w.Quantity,
			DeliveryDays:      days,
			DeliveryEstimate:  w.Comment,
			Warehouse:         warehouse,
			SupplierName:      w.Supplier,
			CanPurchase:       w.CanPurchase,
		})
	}

	bundle.HasAnyOffers = len(bundle.InternalOffers) > 0 || len(bundle.ExternalOffers) > 0
	return bundle
}
