package cart

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memBackend is an in-memory Mutator for tests.
type memBackend struct {
	lines      []Line
	nextID     int
	rejectWith string // non-empty: mutations come back success=false
	failWith   error  // non-nil: mutations fail at transport level
}

func (b *memBackend) AddToCart(ctx context.Context, input AddItemInput) (MutationResult, error) {
	if b.failWith != nil {
		return MutationResult{}, b.failWith
	}
	if b.rejectWith != "" {
		return MutationResult{Success: false, Error: b.rejectWith}, nil
	}

	b.nextID++
	b.lines = append(b.lines, Line{
		ID:           fmt.Sprintf("line-%d", b.nextID),
		ProductID:    input.ProductID,
		OfferKey:     input.OfferKey,
		Name:         input.Name,
		Brand:        input.Brand,
		Article:      input.Article,
		Price:        input.Price,
		Currency:     input.Currency,
		Quantity:     input.Quantity,
		Stock:        input.Stock,
		DeliveryTime: input.DeliveryTime,
		Warehouse:    input.Warehouse,
		Supplier:     input.Supplier,
		IsExternal:   input.IsExternal,
	})
	return MutationResult{Success: true, Lines: b.snapshot()}, nil
}

func (b *memBackend) RemoveFromCart(ctx context.Context, itemID string) (MutationResult, error) {
	if b.failWith != nil {
		return MutationResult{}, b.failWith
	}
	kept := b.lines[:0]
	for _, line := range b.lines {
		if line.ID != itemID {
			kept = append(kept, line)
		}
	}
	b.lines = kept
	return MutationResult{Success: true, Lines: b.snapshot()}, nil
}

func (b *memBackend) UpdateQuantity(ctx context.Context, itemID string, quantity int) (MutationResult, error) {
	if b.failWith != nil {
		return MutationResult{}, b.failWith
	}
	for i := range b.lines {
		if b.lines[i].ID == itemID {
			b.lines[i].Quantity = quantity
		}
	}
	return MutationResult{Success: true, Lines: b.snapshot()}, nil
}

func (b *memBackend) ClearCart(ctx context.Context) (MutationResult, error) {
	if b.failWith != nil {
		return MutationResult{}, b.failWith
	}
	b.lines = nil
	return MutationResult{Success: true, Lines: []Line{}}, nil
}

func (b *memBackend) GetCart(ctx context.Context) ([]Line, error) {
	if b.failWith != nil {
		return nil, b.failWith
	}
	return b.snapshot(), nil
}

func (b *memBackend) snapshot() []Line {
	lines := make([]Line, len(b.lines))
	copy(lines, b.lines)
	return lines
}

func addTestItem(t *testing.T, svc *Service, article, brand string, price float64, qty int) Line {
	t.Helper()
	err := svc.AddItem(context.Background(), AddItemInput{
		Name:     brand + " " + article,
		Article:  article,
		Brand:    brand,
		Price:    decimal.NewFromFloat(price),
		Currency: "RUB",
		Quantity: qty,
	})
	require.NoError(t, err)
	lines := svc.Lines()
	return lines[len(lines)-1]
}

func TestServiceSummarize(t *testing.T) {
	svc := NewService(&memBackend{})

	assert.Equal(t, 0, svc.Summarize().TotalItems)
	assert.True(t, svc.Summarize().DeliveryPrice.IsZero(), "empty cart has no delivery fee")

	addTestItem(t, svc, "A1", "Bosch", 100, 2)
	addTestItem(t, svc, "B2", "Mann", 250.50, 1)

	summary := svc.Summarize()
	assert.Equal(t, 3, summary.TotalItems)
	assert.True(t, summary.TotalPrice.Equal(decimal.NewFromFloat(450.50)), "got %s", summary.TotalPrice)
	assert.True(t, summary.DeliveryPrice.Equal(decimal.NewFromInt(39)))
	assert.True(t, summary.FinalPrice.Equal(decimal.NewFromFloat(489.50)), "got %s", summary.FinalPrice)
}

func TestServiceRejectionBecomesMutationError(t *testing.T) {
	backend := &memBackend{rejectWith: "item out of stock"}
	svc := NewService(backend)

	err := svc.AddItem(context.Background(), AddItemInput{Article: "A1", Brand: "Bosch", Quantity: 1})
	require.Error(t, err)

	var mutErr *MutationError
	require.ErrorAs(t, err, &mutErr)
	assert.Equal(t, "item out of stock", mutErr.Message)
	assert.Empty(t, svc.Lines(), "rejected mutations must not change local state")
}

func TestServiceTransportErrorIsNotMutationError(t *testing.T) {
	backend := &memBackend{failWith: fmt.Errorf("connection refused")}
	svc := NewService(backend)

	err := svc.AddItem(context.Background(), AddItemInput{Article: "A1", Brand: "Bosch", Quantity: 1})
	require.Error(t, err)

	var mutErr *MutationError
	assert.False(t, errors.As(err, &mutErr), "transport failures must stay distinct from backend rejections")
}

func TestServiceUpdateQuantityZeroRemoves(t *testing.T) {
	svc := NewService(&memBackend{})
	line := addTestItem(t, svc, "A1", "Bosch", 100, 2)

	require.NoError(t, svc.UpdateQuantity(context.Background(), line.ID, 0))
	assert.Empty(t, svc.Lines())
}

func TestServiceIsInCart(t *testing.T) {
	svc := NewService(&memBackend{})
	err := svc.AddItem(context.Background(), AddItemInput{
		ProductID: "p1",
		Article:   "A1",
		Brand:     "Bosch",
		Price:     decimal.NewFromInt(10),
		Quantity:  1,
	})
	require.NoError(t, err)
	err = svc.AddItem(context.Background(), AddItemInput{
		OfferKey:   "ext-9",
		Article:    "B2",
		Brand:      "Mann",
		Price:      decimal.NewFromInt(20),
		Quantity:   1,
		IsExternal: true,
	})
	require.NoError(t, err)

	assert.True(t, svc.IsInCart("p1", "", "", ""))
	assert.True(t, svc.IsInCart("", "ext-9", "", ""))
	assert.True(t, svc.IsInCart("", "", "A1", "Bosch"))
	assert.False(t, svc.IsInCart("p2", "", "", ""))
	assert.False(t, svc.IsInCart("", "", "A1", "Mann"))
}

func TestServiceSnapshot(t *testing.T) {
	svc := NewService(&memBackend{})
	addTestItem(t, svc, "A1", "Bosch", 100, 3)

	snapshot := svc.Snapshot()
	require.Len(t, snapshot, 1)
	assert.Equal(t, "A1", snapshot[0].Article)
	assert.Equal(t, "Bosch", snapshot[0].Brand)
	assert.Equal(t, 3, snapshot[0].Quantity)
}

func TestServiceApplyPrice(t *testing.T) {
	svc := NewService(&memBackend{})
	line := addTestItem(t, svc, "A1", "Bosch", 100, 1)

	assert.True(t, svc.ApplyPrice(line.ID, decimal.NewFromInt(120)))
	assert.True(t, svc.Lines()[0].Price.Equal(decimal.NewFromInt(120)))

	assert.False(t, svc.ApplyPrice("missing", decimal.NewFromInt(1)))
}

func TestParseStock(t *testing.T) {
	assert.Equal(t, 0, ParseStock(nil))
	assert.Equal(t, 7, ParseStock(7))
	assert.Equal(t, 12, ParseStock(float64(12)))
	assert.Equal(t, 10, ParseStock("10 шт"))
	assert.Equal(t, 5, ParseStock("В наличии: 5"))
	assert.Equal(t, 0, ParseStock("нет в наличии"))
	assert.Equal(t, 0, ParseStock(true))
}
