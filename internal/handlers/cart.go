package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/partsport/offer-service/internal/cart"
	"github.com/partsport/offer-service/internal/offers"
)

// CartResponse represents the cart view
type CartResponse struct {
	Items   []cart.Line  `json:"items"`
	Summary cart.Summary `json:"summary"`
}

// AddItemRequest represents the add-to-cart request body
type AddItemRequest struct {
	Article   string `json:"article" binding:"required"`
	Brand     string `json:"brand" binding:"required"`
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// UpdateQuantityRequest represents the quantity update body
type UpdateQuantityRequest struct {
	Quantity int `json:"quantity" binding:"required"`
}

// GetCart returns the current cart lines and totals.
// GET /internal/cart
func (a *API) GetCart(c *gin.Context) {
	c.JSON(http.StatusOK, CartResponse{
		Items:   a.Cart.Lines(),
		Summary: a.Cart.Summarize(),
	})
}

// AddItem resolves the cheapest purchasable offer for the part and adds it.
// POST /internal/cart/items
func (a *API) AddItem(c *gin.Context) {
	var req AddItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	identity := offers.PartIdentity{
		Article:   req.Article,
		Brand:     req.Brand,
		ProductID: req.ProductID,
	}
	err := a.Orch.AddCheapest(c.Request.Context(), identity, req.Quantity)
	if err != nil {
		switch {
		case errors.Is(err, cart.ErrMissingIdentity):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, cart.ErrNoOfferAvailable):
			c.JSON(http.StatusConflict, gin.H{"error": "no purchasable offer available"})
		default:
			var mutErr *cart.MutationError
			if errors.As(err, &mutErr) {
				c.JSON(http.StatusUnprocessableEntity, gin.H{"error": mutErr.Message})
				return
			}
			c.JSON(http.StatusBadGateway, gin.H{"error": "cart backend unavailable"})
		}
		return
	}

	c.JSON(http.StatusOK, CartResponse{
		Items:   a.Cart.Lines(),
		Summary: a.Cart.Summarize(),
	})
}

// RemoveItem removes one cart line.
// DELETE /internal/cart/items/:itemId
func (a *API) RemoveItem(c *gin.Context) {
	itemID := c.Param("itemId")
	if itemID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "itemId is required"})
		return
	}

	if err := a.Cart.RemoveItem(c.Request.Context(), itemID); err != nil {
		respondMutationError(c, err)
		return
	}

	c.JSON(http.StatusOK, CartResponse{
		Items:   a.Cart.Lines(),
		Summary: a.Cart.Summarize(),
	})
}

// UpdateQuantity changes one line's quantity.
// PATCH /internal/cart/items/:itemId
func (a *API) UpdateQuantity(c *gin.Context) {
	itemID := c.Param("itemId")
	if itemID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "itemId is required"})
		return
	}

	var req UpdateQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := a.Cart.UpdateQuantity(c.Request.Context(), itemID, req.Quantity); err != nil {
		respondMutationError(c, err)
		return
	}

	c.JSON(http.StatusOK, CartResponse{
		Items:   a.Cart.Lines(),
		Summary: a.Cart.Summarize(),
	})
}

// ClearCart empties the cart.
// DELETE /internal/cart
func (a *API) ClearCart(c *gin.Context) {
	if err := a.Cart.Clear(c.Request.Context()); err != nil {
		respondMutationError(c, err)
		return
	}

	c.JSON(http.StatusOK, CartResponse{
		Items:   a.Cart.Lines(),
		Summary: a.Cart.Summarize(),
	})
}

func respondMutationError(c *gin.Context, err error) {
	var mutErr *cart.MutationError
	if errors.As(err, &mutErr) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": mutErr.Message})
		return
	}
	c.JSON(http.StatusBadGateway, gin.H{"error": "cart backend unavailable"})
}
