package handlers

import (
	"github.com/partsport/offer-service/internal/audit"
	"github.com/partsport/offer-service/internal/cart"
	"github.com/partsport/offer-service/internal/offers"
)

// API bundles the handler dependencies. Audit may be nil when no database
// is configured; the checkout endpoints then skip trail writes.
type API struct {
	Cache      *offers.Cache
	Cart       *cart.Service
	Reconciler *cart.Reconciler
	Orch       *cart.Orchestrator
	Audit      *audit.Store
}

// NewAPI creates the handler set.
func NewAPI(cache *offers.Cache, cartSvc *cart.Service, rec *cart.Reconciler, orch *cart.Orchestrator, auditStore *audit.Store) *API {
	return &API{
		Cache:      cache,
		Cart:       cartSvc,
		Reconciler: rec,
		Orch:       orch,
		Audit:      auditStore,
	}
}
