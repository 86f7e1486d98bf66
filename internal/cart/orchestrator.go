package cart

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/partsport/offer-service/internal/offers"
	"github.com/partsport/offer-service/internal/pkg/money"
)

// Notifier receives the user-facing outcome of an add-to-cart attempt.
// Messages are display-ready and already localized.
type Notifier interface {
	Success(message string)
	Error(message string)
}

// logNotifier is the default Notifier; it writes outcomes to the log when no
// UI channel is attached (CLI runs, tests).
type logNotifier struct {
	logger zerolog.Logger
}

func (n logNotifier) Success(message string) {
	n.logger.Info().Msg(message)
}

func (n logNotifier) Error(message string) {
	n.logger.Warn().Msg(message)
}

// Orchestrator drives the one-click purchase flow: settle the offer lookup,
// pick the cheapest purchasable offer, add it to the cart and notify.
type Orchestrator struct {
	cache    *offers.Cache
	cart     *Service
	notifier Notifier
	logger   zerolog.Logger
}

// NewOrchestrator creates an add-to-cart orchestrator.
// notifier may be nil; outcomes then go to the log.
func NewOrchestrator(cache *offers.Cache, cart *Service, notifier Notifier) *Orchestrator {
	logger := log.With().Str("component", "cart_orchestrator").Logger()
	if notifier == nil {
		notifier = logNotifier{logger: logger}
	}
	return &Orchestrator{
		cache:    cache,
		cart:     cart,
		notifier: notifier,
		logger:   logger,
	}
}

// AddCheapest resolves the part's offers, selects the cheapest purchasable
// one and adds it to the cart at that price.
//
// The lookup is awaited, never raced: a loading entry means waiting, not
// failing. An errored entry or an empty selection both surface as
// ErrNoOfferAvailable to the caller, with distinct log detail.
func (o *Orchestrator) AddCheapest(ctx context.Context, identity offers.PartIdentity, quantity int) error {
	if !identity.Valid() {
		o.notifier.Error("Не удалось определить товар")
		return ErrMissingIdentity
	}
	if quantity <= 0 {
		quantity = 1
	}

	entry, err := o.cache.Await(ctx, identity)
	if err != nil {
		o.notifier.Error("Не удалось получить цену товара")
		return fmt.Errorf("await offers: %w", err)
	}
	if entry.State == offers.StateError {
		o.logger.Warn().Err(entry.Err).
			Str("article", identity.Article).
			Str("brand", identity.Brand).
			Msg("Add to cart blocked by failed lookup")
		o.notifier.Error("Товар недоступен для заказа")
		return ErrNoOfferAvailable
	}
	if entry.Cheapest == nil {
		o.logger.Info().
			Str("article", identity.Article).
			Str("brand", identity.Brand).
			Bool("had_offers", entry.Bundle.HasAnyOffers).
			Msg("No purchasable offer for part")
		o.notifier.Error("Товар недоступен для заказа")
		return ErrNoOfferAvailable
	}

	offer := entry.Cheapest
	input := AddItemInput{
		Name:         fmt.Sprintf("%s %s", identity.Brand, identity.Article),
		Brand:        identity.Brand,
		Article:      identity.Article,
		Price:        offer.Price,
		Currency:     offer.Currency,
		Quantity:     quantity,
		Stock:        offer.QuantityAvailable,
		DeliveryTime: strconv.Itoa(offer.DeliveryDays),
		Warehouse:    offer.Warehouse,
		Supplier:     offer.SupplierName,
		IsExternal:   offer.Source == offers.SourceExternal,
	}
	// A line references exactly one of the two offer spaces.
	if offer.Source == offers.SourceInternal {
		input.ProductID = offer.ProductID
	} else {
		input.OfferKey = offer.OfferKey
	}

	if err := o.cart.AddItem(ctx, input); err != nil {
		var mutErr *MutationError
		if errors.As(err, &mutErr) {
			o.logger.Warn().Str("reason", mutErr.Message).Msg("Backend rejected add to cart")
			o.notifier.Error("Не удалось добавить товар в корзину")
			return err
		}
		o.notifier.Error("Ошибка соединения, попробуйте ещё раз")
		return err
	}

	o.notifier.Success(fmt.Sprintf("Товар добавлен в корзину за %s", money.FormatRUB(offer.Price)))
	return nil
}
