package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"retailpos/backend/internal/domain"
)

func (a *API) handleCreatePurchaseOrder(w http.ResponseWriter, r *http.Request) {
	var req domain.PurchaseOrderCreateRequest
	if !a.decode(w, r, &req) {
		return
	}
	po, err := a.service.CreatePurchaseOrder(r.Context(), req)
	a.respond(w, http.StatusCreated, po, err)
}

func (a *API) handleGetPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	po, err := a.service.GetPurchaseOrder(r.Context(), chi.URLParam(r, "id"))
	a.respond(w, http.StatusOK, po, err)
}

func (a *API) handleApprovePurchaseOrder(w http.ResponseWriter, r *http.Request) {
	po, err := a.service.ApprovePurchaseOrder(r.Context(), chi.URLParam(r, "id"))
	a.respond(w, http.StatusOK, po, err)
}

func (a *API) handleReceivePurchaseOrder(w http.ResponseWriter, r *http.Request) {
	var req domain.PurchaseOrderReceiveRequest
	if !a.decode(w, r, &req) {
		return
	}
	po, err := a.service.ReceivePurchaseOrder(r.Context(), chi.URLParam(r, "id"), req)
	a.respond(w, http.StatusOK, po, err)
}

func (a *API) handleCreateSupplierReturn(w http.ResponseWriter, r *http.Request) {
	var req domain.SupplierReturnCreateRequest
	if !a.decode(w, r, &req) {
		return
	}
	sr, err := a.service.CreateSupplierReturn(r.Context(), req)
	a.respond(w, http.StatusCreated, sr, err)
}

func (a *API) handleGetSupplierReturn(w http.ResponseWriter, r *http.Request) {
	sr, err := a.service.GetSupplierReturn(r.Context(), chi.URLParam(r, "id"))
	a.respond(w, http.StatusOK, sr, err)
}

func (a *API) handleApproveSupplierReturn(w http.ResponseWriter, r *http.Request) {
	sr, err := a.service.ApproveSupplierReturn(r.Context(), chi.URLParam(r, "id"))
	a.respond(w, http.StatusOK, sr, err)
}

func (a *API) handlePostSupplierReturn(w http.ResponseWriter, r *http.Request) {
	sr, err := a.service.PostSupplierReturn(r.Context(), chi.URLParam(r, "id"))
	a.respond(w, http.StatusOK, sr, err)
}

func (a *API) handleCreateStockAdjustment(w http.ResponseWriter, r *http.Request) {
	var req domain.StockAdjustmentCreateRequest
	if !a.decode(w, r, &req) {
		return
	}
	adj, err := a.service.CreateStockAdjustment(r.Context(), req)
	a.respond(w, http.StatusCreated, adj, err)
}

func (a *API) handleGetStockAdjustment(w http.ResponseWriter, r *http.Request) {
	adj, err := a.service.GetStockAdjustment(r.Context(), chi.URLParam(r, "id"))
	a.respond(w, http.StatusOK, adj, err)
}

func (a *API) handleApproveStockAdjustment(w http.ResponseWriter, r *http.Request) {
	adj, err := a.service.ApproveStockAdjustment(r.Context(), chi.URLParam(r, "id"))
	a.respond(w, http.StatusOK, adj, err)
}

func (a *API) handlePostStockAdjustment(w http.ResponseWriter, r *http.Request) {
	adj, err := a.service.PostStockAdjustment(r.Context(), chi.URLParam(r, "id"))
	a.respond(w, http.StatusOK, adj, err)
}

func (a *API) handleCreateStockTransfer(w http.ResponseWriter, r *http.Request) {
	var req domain.StockTransferCreateRequest
	if !a.decode(w, r, &req) {
		return
	}
	tr, err := a.service.CreateStockTransfer(r.Context(), req)
	a.respond(w, http.StatusCreated, tr, err)
}

func (a *API) handleGetStockTransfer(w http.ResponseWriter, r *http.Request) {
	tr, err := a.service.GetStockTransfer(r.Context(), chi.URLParam(r, "id"))
	a.respond(w, http.StatusOK, tr, err)
}

func (a *API) handleShipStockTransfer(w http.ResponseWriter, r *http.Request) {
	var req domain.TransferQuantitiesRequest
	if !a.decode(w, r, &req) {
		return
	}
	tr, err := a.service.ShipStockTransfer(r.Context(), chi.URLParam(r, "id"), req)
	a.respond(w, http.StatusOK, tr, err)
}

func (a *API) handleReceiveStockTransfer(w http.ResponseWriter, r *http.Request) {
	var req domain.TransferQuantitiesRequest
	if !a.decode(w, r, &req) {
		return
	}
	tr, err := a.service.ReceiveStockTransfer(r.Context(), chi.URLParam(r, "id"), req)
	a.respond(w, http.StatusOK, tr, err)
}

func (a *API) handleCreateStocktake(w http.ResponseWriter, r *http.Request) {
	var req domain.StocktakeCreateRequest
	if !a.decode(w, r, &req) {
		return
	}
	st, err := a.service.CreateStocktake(r.Context(), req)
	a.respond(w, http.StatusCreated, st, err)
}

func (a *API) handleGetStocktake(w http.ResponseWriter, r *http.Request) {
	st, err := a.service.GetStocktake(r.Context(), chi.URLParam(r, "id"))
	a.respond(w, http.StatusOK, st, err)
}

func (a *API) handleStartStocktake(w http.ResponseWriter, r *http.Request) {
	st, err := a.service.StartStocktake(r.Context(), chi.URLParam(r, "id"))
	a.respond(w, http.StatusOK, st, err)
}

func (a *API) handleFinalizeStocktake(w http.ResponseWriter, r *http.Request) {
	var req domain.StocktakeFinalizeRequest
	if !a.decode(w, r, &req) {
		return
	}
	st, err := a.service.FinalizeStocktake(r.Context(), chi.URLParam(r, "id"), req)
	a.respond(w, http.StatusOK, st, err)
}
