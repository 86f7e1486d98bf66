package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/partsport/offer-service/internal/offers"
)

// OfferLookupResponse represents the offer lookup response
type OfferLookupResponse struct {
	State     string             `json:"state"`
	Bundle    offers.OfferBundle `json:"bundle"`
	Cheapest  *offers.Offer      `json:"cheapest,omitempty"`
	FetchedAt *time.Time         `json:"fetchedAt,omitempty"`
	Error     string             `json:"error,omitempty"`
}

// GetOffers returns the offer bundle and cheapest selection for one part.
// GET /internal/offers/:brand/:article?productId=&wait=true
//
// Without wait the handler returns the cache snapshot immediately; a
// "loading" state tells the caller to poll. With wait it blocks until the
// lookup settles.
func (a *API) GetOffers(c *gin.Context) {
	identity := offers.PartIdentity{
		Brand:     c.Param("brand"),
		Article:   c.Param("article"),
		ProductID: c.Query("productId"),
	}
	if !identity.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "brand and article are required"})
		return
	}

	var entry offers.Entry
	if c.Query("wait") == "true" {
		var err error
		entry, err = a.Cache.Await(c.Request.Context(), identity)
		if err != nil {
			c.JSON(http.StatusGatewayTimeout, gin.H{"error": "offer lookup timed out"})
			return
		}
	} else {
		entry = a.Cache.GetOrFetch(identity)
	}

	response := OfferLookupResponse{
		State:  string(entry.State),
		Bundle: entry.Bundle,
	}
	if entry.Cheapest != nil {
		response.Cheapest = entry.Cheapest
	}
	if !entry.FetchedAt.IsZero() {
		fetchedAt := entry.FetchedAt
		response.FetchedAt = &fetchedAt
	}
	if entry.Err != nil {
		response.Error = entry.Err.Error()
	}

	c.JSON(http.StatusOK, response)
}

// InvalidateOffers drops the cached entry for one part so the next lookup
// re-fetches.
// DELETE /internal/offers/:brand/:article?productId=
func (a *API) InvalidateOffers(c *gin.Context) {
	identity := offers.PartIdentity{
		Brand:     c.Param("brand"),
		Article:   c.Param("article"),
		ProductID: c.Query("productId"),
	}
	if !identity.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "brand and article are required"})
		return
	}

	a.Cache.Invalidate(identity)
	c.JSON(http.StatusOK, gin.H{"invalidated": true})
}
