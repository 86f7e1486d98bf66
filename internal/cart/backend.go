package cart

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
)

const addToCartMutation = `
mutation AddToCart($input: AddToCartInput!) {
  addToCart(input: $input) {
    success
    error
    cart {
      items {
        id
        productId
        offerKey
        name
        description
        brand
        article
        price
        currency
        quantity
        stock
        deliveryTime
        warehouse
        supplier
        isExternal
        image
      }
    }
  }
}`

const removeFromCartMutation = `
mutation RemoveFromCart($itemId: ID!) {
  removeFromCart(itemId: $itemId) {
    success
    error
    cart {
      items {
        id
        productId
        offerKey
        name
        description
        brand
        article
        price
        currency
        quantity
        stock
        deliveryTime
        warehouse
        supplier
        isExternal
        image
      }
    }
  }
}`

const updateQuantityMutation = `
mutation UpdateCartItemQuantity($itemId: ID!, $quantity: Int!) {
  updateCartItemQuantity(itemId: $itemId, quantity: $quantity) {
    success
    error
    cart {
      items {
        id
        productId
        offerKey
        name
        description
        brand
        article
        price
        currency
        quantity
        stock
        deliveryTime
        warehouse
        supplier
        isExternal
        image
      }
    }
  }
}`

const clearCartMutation = `
mutation ClearCart {
  clearCart {
    success
    error
    cart {
      items {
        id
      }
    }
  }
}`

const getCartQuery = `
query GetCart {
  cart {
    items {
      id
      productId
      offerKey
      name
      description
      brand
      article
      price
      currency
      quantity
      stock
      deliveryTime
      warehouse
      supplier
      isExternal
      image
    }
  }
}`

// BackendConfig configures the GraphQL cart backend client.
type BackendConfig struct {
	Endpoint string
	Timeout  time.Duration
}

// Backend is the GraphQL implementation of Mutator. It talks to the same
// commerce backend as the offer client but is kept separate: cart mutations
// carry session state and are never rate-limited away.
type Backend struct {
	endpoint   string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewBackend creates a cart backend client.
func NewBackend(cfg BackendConfig) *Backend {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Backend{
		endpoint:   cfg.Endpoint,
		httpClient: &http.Client{Timeout: timeout},
		logger:     log.With().Str("component", "cart_backend").Logger(),
	}
}

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphqlError struct {
	Message string `json:"message"`
}

type mutationWire struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Cart    *struct {
		Items []lineWire `json:"items"`
	} `json:"cart"`
}

// lineWire tolerates the backend's loose stock typing (number or string).
type lineWire struct {
	Line
	Stock any `json:"stock"`
}

func (w lineWire) toLine() Line {
	l := w.Line
	l.Stock = ParseStock(w.Stock)
	return l
}

type mutationResponse struct {
	Data   map[string]mutationWire `json:"data"`
	Errors []graphqlError          `json:"errors"`
}

type getCartResponse struct {
	Data struct {
		Cart *struct {
			Items []lineWire `json:"items"`
		} `json:"cart"`
	} `json:"data"`
	Errors []graphqlError `json:"errors"`
}

// AddToCart adds a line through the backend mutation.
func (b *Backend) AddToCart(ctx context.Context, input AddItemInput) (MutationResult, error) {
	return b.mutate(ctx, "addToCart", addToCartMutation, map[string]any{"input": input})
}

// RemoveFromCart removes a line by id.
func (b *Backend) RemoveFromCart(ctx context.Context, itemID string) (MutationResult, error) {
	return b.mutate(ctx, "removeFromCart", removeFromCartMutation, map[string]any{"itemId": itemID})
}

// UpdateQuantity sets the quantity for a line.
func (b *Backend) UpdateQuantity(ctx context.Context, itemID string, quantity int) (MutationResult, error) {
	return b.mutate(ctx, "updateCartItemQuantity", updateQuantityMutation, map[string]any{
		"itemId":   itemID,
		"quantity": quantity,
	})
}

// ClearCart empties the cart.
func (b *Backend) ClearCart(ctx context.Context) (MutationResult, error) {
	return b.mutate(ctx, "clearCart", clearCartMutation, nil)
}

// GetCart returns the current backend cart lines.
func (b *Backend) GetCart(ctx context.Context) ([]Line, error) {
	body, err := b.post(ctx, graphqlRequest{Query: getCartQuery})
	if err != nil {
		return nil, err
	}

	var decoded getCartResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(decoded.Errors) > 0 {
		return nil, fmt.Errorf("get cart: graphql error: %s", decoded.Errors[0].Message)
	}
	if decoded.Data.Cart == nil {
		return []Line{}, nil
	}

	lines := make([]Line, 0, len(decoded.Data.Cart.Items))
	for _, w := range decoded.Data.Cart.Items {
		lines = append(lines, w.toLine())
	}
	return lines, nil
}

func (b *Backend) mutate(ctx context.Context, field, query string, variables map[string]any) (MutationResult, error) {
	body, err := b.post(ctx, graphqlRequest{Query: query, Variables: variables})
	if err != nil {
		return MutationResult{}, err
	}

	var decoded mutationResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return MutationResult{}, fmt.Errorf("decode response: %w", err)
	}
	if len(decoded.Errors) > 0 {
		return MutationResult{}, fmt.Errorf("%s: graphql error: %s", field, decoded.Errors[0].Message)
	}

	wire, ok := decoded.Data[field]
	if !ok {
		return MutationResult{}, fmt.Errorf("%s: missing result field", field)
	}

	result := MutationResult{Success: wire.Success, Error: wire.Error}
	if wire.Cart != nil {
		result.Lines = make([]Line, 0, len(wire.Cart.Items))
		for _, w := range wire.Cart.Items {
			result.Lines = append(result.Lines, w.toLine())
		}
	}

	b.logger.Debug().
		Str("mutation", field).
		Bool("success", wire.Success).
		Msg("Cart mutation completed")

	return result, nil
}

func (b *Backend) post(ctx context.Context, reqBody graphqlRequest) ([]byte, error) {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cart request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("cart request: backend returned status %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}
