package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/partsport/offer-service/internal/cart"
)

// SettleRequest represents the drift report settlement body
type SettleRequest struct {
	PassID string `json:"passId" binding:"required"`
	Accept bool   `json:"accept"`
}

// VerifyCheckout runs a reconciliation pass over the cart and reports any
// price drift. A drifted report blocks checkout until it is settled.
// POST /internal/checkout/verify
func (a *API) VerifyCheckout(c *gin.Context) {
	report, err := a.Reconciler.Check(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "price verification unavailable"})
		return
	}

	a.recordPass(c, report)
	c.JSON(http.StatusOK, report)
}

// SettleCheckout confirms or cancels a pending drift report.
// POST /internal/checkout/settle
func (a *API) SettleCheckout(c *gin.Context) {
	var req SettleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	passID, err := uuid.Parse(req.PassID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid passId"})
		return
	}

	if req.Accept {
		err = a.Reconciler.Confirm(c.Request.Context(), passID)
	} else {
		err = a.Reconciler.Cancel(passID)
	}
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	phase := a.Reconciler.Phase()
	if a.Audit != nil {
		if err := a.Audit.RecordSettlement(c.Request.Context(), passID, phase); err != nil {
			log.Warn().Err(err).Msg("Failed to record settlement in audit trail")
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"phase": phase,
		"items": a.Cart.Lines(),
	})
}

// ConfirmCheckout performs the pre-order gate: a final reconciliation pass
// must come back clean before the order may be placed.
// POST /internal/checkout/confirm
func (a *API) ConfirmCheckout(c *gin.Context) {
	if !a.Reconciler.CheckoutAllowed() {
		c.JSON(http.StatusConflict, gin.H{"error": cart.ErrCheckoutBlocked.Error()})
		return
	}

	report, err := a.Reconciler.Check(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "price verification unavailable"})
		return
	}
	a.recordPass(c, report)

	if !report.Clean() {
		c.JSON(http.StatusConflict, gin.H{
			"error":  cart.ErrCheckoutBlocked.Error(),
			"report": report,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"cleared": true,
		"passId":  report.PassID,
		"summary": a.Cart.Summarize(),
	})
}

// ListPasses returns recent reconciliation pass records from the audit trail.
// GET /internal/checkout/passes?limit=50
func (a *API) ListPasses(c *gin.Context) {
	if a.Audit == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "audit trail not configured"})
		return
	}

	limit := 50
	if v, ok := c.GetQuery("limit"); ok {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 || parsed > 500 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 500"})
			return
		}
		limit = parsed
	}

	records, err := a.Audit.ListRecent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list passes"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"passes": records})
}

func (a *API) recordPass(c *gin.Context, report cart.Report) {
	if a.Audit == nil {
		return
	}
	if err := a.Audit.RecordPass(c.Request.Context(), report); err != nil {
		log.Warn().Err(err).Msg("Failed to record pass in audit trail")
	}
}
