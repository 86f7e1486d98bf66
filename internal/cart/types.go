package cart

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/shopspring/decimal"
)

// Line is one cart position. Price is the snapshot taken when the line was
// added; background lookups never touch it — only a user-confirmed
// reconciliation pass may overwrite it.
type Line struct {
	ID           string          `json:"id"`
	ProductID    string          `json:"productId,omitempty"` // internal offers
	OfferKey     string          `json:"offerKey,omitempty"`  // external offers
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	Brand        string          `json:"brand"`
	Article      string          `json:"article"`
	Price        decimal.Decimal `json:"price"`
	Currency     string          `json:"currency"`
	Quantity     int             `json:"quantity"`
	Stock        int             `json:"stock,omitempty"`
	DeliveryTime string          `json:"deliveryTime,omitempty"`
	Warehouse    string          `json:"warehouse,omitempty"`
	Supplier     string          `json:"supplier,omitempty"`
	IsExternal   bool            `json:"isExternal"`
	Image        string          `json:"image,omitempty"`
}

// Summary aggregates cart totals the way the storefront displays them.
type Summary struct {
	TotalItems    int             `json:"totalItems"`
	TotalPrice    decimal.Decimal `json:"totalPrice"`
	TotalDiscount decimal.Decimal `json:"totalDiscount"`
	DeliveryPrice decimal.Decimal `json:"deliveryPrice"`
	FinalPrice    decimal.Decimal `json:"finalPrice"`
}

// AddItemInput is the payload accepted by the cart mutation boundary.
type AddItemInput struct {
	ProductID    string          `json:"productId,omitempty"`
	OfferKey     string          `json:"offerKey,omitempty"`
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	Brand        string          `json:"brand"`
	Article      string          `json:"article"`
	Price        decimal.Decimal `json:"price"`
	Currency     string          `json:"currency"`
	Quantity     int             `json:"quantity"`
	Stock        int             `json:"stock,omitempty"`
	DeliveryTime string          `json:"deliveryTime,omitempty"`
	Warehouse    string          `json:"warehouse,omitempty"`
	Supplier     string          `json:"supplier,omitempty"`
	IsExternal   bool            `json:"isExternal"`
	Image        string          `json:"image,omitempty"`
}

// MutationResult is the backend's answer to a cart mutation. When Success is
// false, Error carries the backend-provided message verbatim.
type MutationResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Lines   []Line `json:"items,omitempty"`
}

// Mutator is the cart mutation boundary (an external collaborator; the
// GraphQL implementation lives in backend.go, tests use an in-memory fake).
type Mutator interface {
	AddToCart(ctx context.Context, input AddItemInput) (MutationResult, error)
	RemoveFromCart(ctx context.Context, itemID string) (MutationResult, error)
	UpdateQuantity(ctx context.Context, itemID string, quantity int) (MutationResult, error)
	ClearCart(ctx context.Context) (MutationResult, error)
	GetCart(ctx context.Context) ([]Line, error)
}

// ErrNoOfferAvailable is returned when no purchasable offer survives
// filtering at add-to-cart time.
var ErrNoOfferAvailable = errors.New("no purchasable offer available")

// ErrMissingIdentity is returned for lookups without article or brand.
var ErrMissingIdentity = errors.New("article and brand are required")

// ErrCheckoutBlocked is returned when checkout is attempted past an
// unacknowledged reconciliation report.
var ErrCheckoutBlocked = errors.New("checkout blocked by unconfirmed price changes")

// MutationError carries a backend-reported cart mutation failure. It is kept
// distinct from client-side errors so the two are never conflated in user
// messaging.
type MutationError struct {
	Message string
}

func (e *MutationError) Error() string {
	return fmt.Sprintf("cart mutation rejected: %s", e.Message)
}

var stockDigits = regexp.MustCompile(`\d+`)

// ParseStock extracts an availability count from backend stock values, which
// arrive either as numbers or as free-form strings like "10 шт" or
// "В наличии: 5".
func ParseStock(v any) int {
	switch s := v.(type) {
	case nil:
		return 0
	case int:
		return s
	case float64:
		return int(s)
	case string:
		match := stockDigits.FindString(s)
		if match == "" {
			return 0
		}
		n, err := strconv.Atoi(match)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}
