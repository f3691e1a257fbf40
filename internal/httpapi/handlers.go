package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"retailpos/backend/internal/domain"
)

func (a *API) handleCreateCart(w http.ResponseWriter, r *http.Request) {
	var req domain.CartCreateRequest
	if !a.decode(w, r, &req) {
		return
	}
	cart, err := a.service.CreateCart(r.Context(), req)
	a.respond(w, http.StatusCreated, cart, err)
}

func (a *API) handleGetCart(w http.ResponseWriter, r *http.Request) {
	cart, err := a.service.GetCart(r.Context(), chi.URLParam(r, "cartID"))
	a.respond(w, http.StatusOK, cart, err)
}

func (a *API) handleListParkedCarts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	carts, err := a.service.ListParkedCarts(r.Context(), query.Get("store_location_id"), query.Get("terminal_id"))
	a.respond(w, http.StatusOK, map[string]any{"carts": carts}, err)
}

func (a *API) handleAddCartLine(w http.ResponseWriter, r *http.Request) {
	var req domain.CartLineRequest
	if !a.decode(w, r, &req) {
		return
	}
	cart, err := a.service.AddCartLine(r.Context(), chi.URLParam(r, "cartID"), req)
	a.respond(w, http.StatusOK, cart, err)
}

func (a *API) handleUpdateCartLine(w http.ResponseWriter, r *http.Request) {
	var req domain.CartLineRequest
	if !a.decode(w, r, &req) {
		return
	}
	cart, err := a.service.UpdateCartLine(r.Context(), chi.URLParam(r, "cartID"), chi.URLParam(r, "lineID"), req)
	a.respond(w, http.StatusOK, cart, err)
}

func (a *API) handleRemoveCartLine(w http.ResponseWriter, r *http.Request) {
	cart, err := a.service.RemoveCartLine(r.Context(), chi.URLParam(r, "cartID"), chi.URLParam(r, "lineID"))
	a.respond(w, http.StatusOK, cart, err)
}

func (a *API) handleParkCart(w http.ResponseWriter, r *http.Request) {
	cart, err := a.service.ParkCart(r.Context(), chi.URLParam(r, "cartID"))
	a.respond(w, http.StatusOK, cart, err)
}

func (a *API) handleResumeCart(w http.ResponseWriter, r *http.Request) {
	cart, err := a.service.ResumeCart(r.Context(), chi.URLParam(r, "cartID"))
	a.respond(w, http.StatusOK, cart, err)
}

func (a *API) handleCancelCart(w http.ResponseWriter, r *http.Request) {
	cart, err := a.service.CancelCart(r.Context(), chi.URLParam(r, "cartID"))
	a.respond(w, http.StatusOK, cart, err)
}

func (a *API) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req domain.CheckoutRequest
	if !a.decode(w, r, &req) {
		return
	}
	key, err := idempotencyKey(r, req.IdempotencyKey)
	if err != nil {
		a.respond(w, 0, nil, err)
		return
	}
	req.IdempotencyKey = key

	resp, err := a.service.Checkout(r.Context(), req)
	a.respond(w, http.StatusOK, resp, err)
}

func (a *API) handleGetPayment(w http.ResponseWriter, r *http.Request) {
	payment, err := a.service.GetPayment(r.Context(), chi.URLParam(r, "paymentID"))
	a.respond(w, http.StatusOK, payment, err)
}

func (a *API) handleTransitionPayment(w http.ResponseWriter, r *http.Request) {
	var req domain.PaymentTransitionRequest
	if !a.decode(w, r, &req) {
		return
	}
	key, err := idempotencyKey(r, req.IdempotencyKey)
	if err != nil {
		a.respond(w, 0, nil, err)
		return
	}
	req.IdempotencyKey = key

	payment, err := a.service.TransitionPayment(r.Context(), chi.URLParam(r, "paymentID"), req)
	a.respond(w, http.StatusOK, payment, err)
}

func (a *API) handleGetSale(w http.ResponseWriter, r *http.Request) {
	sale, err := a.service.GetSale(r.Context(), chi.URLParam(r, "saleID"))
	a.respond(w, http.StatusOK, sale, err)
}

func (a *API) handleReturnSaleLine(w http.ResponseWriter, r *http.Request) {
	var req domain.SaleReturnRequest
	if !a.decode(w, r, &req) {
		return
	}
	ret, err := a.service.ReturnSaleLine(r.Context(), chi.URLParam(r, "saleID"), req)
	a.respond(w, http.StatusCreated, ret, err)
}

func (a *API) handleCreateMovement(w http.ResponseWriter, r *http.Request) {
	var req domain.MovementCreateRequest
	if !a.decode(w, r, &req) {
		return
	}
	entry, err := a.service.CreateMovement(r.Context(), req)
	a.respond(w, http.StatusCreated, entry, err)
}

func (a *API) handleListMovements(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	movements, err := a.service.ListMovements(r.Context(), query.Get("store_location_id"), query.Get("product_id"))
	a.respond(w, http.StatusOK, map[string]any{"movements": movements}, err)
}

func (a *API) handleListBalances(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	balances, err := a.service.ListBalances(r.Context(), query.Get("store_location_id"), query.Get("product_id"))
	a.respond(w, http.StatusOK, map[string]any{"balances": balances}, err)
}

func (a *API) handleListLots(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	lots, err := a.service.ListLots(r.Context(), query.Get("store_location_id"), query.Get("product_id"))
	a.respond(w, http.StatusOK, map[string]any{"lots": lots}, err)
}

func (a *API) handleListCashiers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"cashiers": a.auth.ListCashiers(r.Context())})
}

func (a *API) handleCreateCashier(w http.ResponseWriter, r *http.Request) {
	var req domain.CashierCreateRequest
	if !a.decode(w, r, &req) {
		return
	}
	user, err := a.auth.CreateCashier(r.Context(), req)
	a.respond(w, http.StatusCreated, user, err)
}
