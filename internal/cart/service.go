package cart

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/partsport/offer-service/internal/offers"
)

// deliveryPrice is the flat courier fee applied to every non-empty cart.
var deliveryPrice = decimal.NewFromInt(39)

// Service holds the session cart state and keeps it in sync with the
// backend through the Mutator. Line prices are frozen snapshots: nothing in
// this type changes a price except ApplyPrice, which the reconciler calls
// after the user has confirmed a drift report.
type Service struct {
	mu      sync.RWMutex
	lines   []Line
	backend Mutator
	logger  zerolog.Logger
}

// NewService creates a cart service around the given mutation backend.
func NewService(backend Mutator) *Service {
	return &Service{
		lines:   []Line{},
		backend: backend,
		logger:  log.With().Str("component", "cart_service").Logger(),
	}
}

// Refresh replaces local state with the backend's view of the cart.
func (s *Service) Refresh(ctx context.Context) error {
	lines, err := s.backend.GetCart(ctx)
	if err != nil {
		return fmt.Errorf("refresh cart: %w", err)
	}

	s.mu.Lock()
	s.lines = lines
	s.mu.Unlock()
	return nil
}

// AddItem sends the add mutation and adopts the resulting cart state.
// A backend rejection surfaces as *MutationError so callers can tell it
// apart from transport failures.
func (s *Service) AddItem(ctx context.Context, input AddItemInput) error {
	result, err := s.backend.AddToCart(ctx, input)
	if err != nil {
		return fmt.Errorf("add to cart: %w", err)
	}
	if !result.Success {
		return &MutationError{Message: result.Error}
	}

	s.adopt(result.Lines)
	s.logger.Info().
		Str("article", input.Article).
		Str("brand", input.Brand).
		Int("quantity", input.Quantity).
		Msg("Added item to cart")
	return nil
}

// RemoveItem removes a line by id.
func (s *Service) RemoveItem(ctx context.Context, itemID string) error {
	result, err := s.backend.RemoveFromCart(ctx, itemID)
	if err != nil {
		return fmt.Errorf("remove from cart: %w", err)
	}
	if !result.Success {
		return &MutationError{Message: result.Error}
	}

	s.adopt(result.Lines)
	return nil
}

// UpdateQuantity changes a line's quantity. Zero or negative removes the line.
func (s *Service) UpdateQuantity(ctx context.Context, itemID string, quantity int) error {
	if quantity <= 0 {
		return s.RemoveItem(ctx, itemID)
	}

	result, err := s.backend.UpdateQuantity(ctx, itemID, quantity)
	if err != nil {
		return fmt.Errorf("update quantity: %w", err)
	}
	if !result.Success {
		return &MutationError{Message: result.Error}
	}

	s.adopt(result.Lines)
	return nil
}

// Clear empties the cart.
func (s *Service) Clear(ctx context.Context) error {
	result, err := s.backend.ClearCart(ctx)
	if err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	if !result.Success {
		return &MutationError{Message: result.Error}
	}

	s.mu.Lock()
	s.lines = []Line{}
	s.mu.Unlock()
	return nil
}

// Lines returns a copy of the current cart lines.
func (s *Service) Lines() []Line {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lines := make([]Line, len(s.lines))
	copy(lines, s.lines)
	return lines
}

// Summarize computes the display totals for the current cart.
func (s *Service) Summarize() Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := Summary{
		TotalPrice:    decimal.Zero,
		TotalDiscount: decimal.Zero,
		DeliveryPrice: decimal.Zero,
		FinalPrice:    decimal.Zero,
	}
	for _, line := range s.lines {
		summary.TotalItems += line.Quantity
		summary.TotalPrice = summary.TotalPrice.Add(line.Price.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	if summary.TotalItems > 0 {
		summary.DeliveryPrice = deliveryPrice
	}
	summary.FinalPrice = summary.TotalPrice.Add(summary.DeliveryPrice).Sub(summary.TotalDiscount)
	return summary
}

// IsInCart reports whether the cart already holds the given product or
// offer. Matching follows the same precedence as cache keys: product id when
// present, offer key for external lines, article+brand as the fallback.
func (s *Service) IsInCart(productID, offerKey, article, brand string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, line := range s.lines {
		if productID != "" && line.ProductID == productID {
			return true
		}
		if offerKey != "" && line.OfferKey == offerKey {
			return true
		}
		if productID == "" && offerKey == "" &&
			article != "" && line.Article == article && line.Brand == brand {
			return true
		}
	}
	return false
}

// Snapshot returns the cart in the shape offer fetches pass to the backend
// so it can net out quantities already reserved by this session.
func (s *Service) Snapshot() []offers.CartLineSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries := make([]offers.CartLineSummary, 0, len(s.lines))
	for _, line := range s.lines {
		summaries = append(summaries, offers.CartLineSummary{
			ProductID: line.ProductID,
			OfferKey:  line.OfferKey,
			Article:   line.Article,
			Brand:     line.Brand,
			Quantity:  line.Quantity,
		})
	}
	return summaries
}

// ApplyPrice overwrites one line's frozen price. Only the reconciler calls
// this, and only with user-confirmed values.
func (s *Service) ApplyPrice(lineID string, price decimal.Decimal) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.lines {
		if s.lines[i].ID == lineID {
			s.lines[i].Price = price
			return true
		}
	}
	return false
}

func (s *Service) adopt(lines []Line) {
	if lines == nil {
		return
	}
	s.mu.Lock()
	s.lines = lines
	s.mu.Unlock()
}
