package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/service"
	"retailpos/backend/internal/store/memory"
)

const testManagerPIN = "739154"

// newTestAPI wires a real service over a seeded in-memory store so handler
// tests run the full request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	svc := service.New(repo, nil, nil, zap.NewNop(), service.DefaultOptions())
	auth := NewAuthManager("test-secret-key", time.Hour, testManagerPIN, repo)

	return New(svc, auth, zap.NewNop(), "*")
}

type apiError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// call sends a JSON request, attaching a CSRF token to mutating methods.
func call(t *testing.T, api *API, method string, path string, token string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if method != http.MethodGet {
		req.Header.Set(headerCSRFToken, fetchCSRFToken(t, api))
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	res := httptest.NewRecorder()
	api.Handler().ServeHTTP(res, req)
	return res
}

func decodeBody[T any](t *testing.T, res *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		t.Fatalf("decode response body: %v (body: %s)", err, res.Body.String())
	}
	return out
}

func expectStatus(t *testing.T, res *httptest.ResponseRecorder, want int) {
	t.Helper()
	if res.Code != want {
		t.Fatalf("expected status %d, got %d (body: %s)", want, res.Code, res.Body.String())
	}
}

func expectErrorCode(t *testing.T, res *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	expectStatus(t, res, status)
	body := decodeBody[apiError](t, res)
	if body.Error.Code != code {
		t.Fatalf("expected error code %s, got %s (%s)", code, body.Error.Code, body.Error.Message)
	}
}

func openHTTPCart(t *testing.T, api *API, token string) domain.Cart {
	t.Helper()
	res := call(t, api, http.MethodPost, "/api/v1/carts", token, domain.CartCreateRequest{StoreLocationID: "store-main", TerminalID: "term-1"}, nil)
	expectStatus(t, res, http.StatusCreated)
	cart := decodeBody[domain.Cart](t, res)

	res = call(t, api, http.MethodPost, "/api/v1/carts/"+cart.ID+"/lines", token, domain.CartLineRequest{
		ProductID: "prod-bread",
		Quantity:  decimal.NewFromInt(2),
		UnitPrice: decimal.RequireFromString("2.50"),
	}, nil)
	expectStatus(t, res, http.StatusOK)
	return decodeBody[domain.Cart](t, res)
}

func cashPayment(cart domain.Cart) domain.CheckoutRequest {
	return domain.CheckoutRequest{
		CartID: cart.ID,
		Payments: []domain.PaymentAllocationRequest{
			{TenderType: domain.TenderCash, Amount: cart.TotalPayable, TenderedAmount: &cart.TotalPayable},
		},
	}
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)
	res := call(t, api, http.MethodGet, "/healthz", "", nil, nil)
	expectStatus(t, res, http.StatusOK)

	body := decodeBody[map[string]any](t, res)
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLogin_Success(t *testing.T) {
	api := newTestAPI(t)
	res := call(t, api, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Username: "admin", Password: "admin123"}, nil)
	expectStatus(t, res, http.StatusOK)

	body := decodeBody[domain.LoginResponse](t, res)
	if body.AccessToken == "" || body.Role != domain.RoleAdmin {
		t.Fatalf("unexpected login response %+v", body)
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	api := newTestAPI(t)
	res := call(t, api, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Username: "admin", Password: "wrongpassword"}, nil)
	expectErrorCode(t, res, http.StatusUnauthorized, "POS-4010")
}

func TestRoutesRequireBearerToken(t *testing.T) {
	api := newTestAPI(t)
	res := call(t, api, http.MethodGet, "/api/v1/carts/parked?store_location_id=store-main", "", nil, nil)
	expectStatus(t, res, http.StatusUnauthorized)

	res = call(t, api, http.MethodGet, "/api/v1/carts/parked?store_location_id=store-main", "not-a-jwt", nil, nil)
	expectStatus(t, res, http.StatusUnauthorized)
}

func TestUnknownRouteReturnsJSONError(t *testing.T) {
	api := newTestAPI(t)
	res := call(t, api, http.MethodGet, "/api/v1/nope", "", nil, nil)
	expectErrorCode(t, res, http.StatusNotFound, "POS-4004")
}

func TestCheckoutReplaysIdempotencyKeyHeader(t *testing.T) {
	api := newTestAPI(t)
	token := login(t, api, "cashier", "cashier123")
	cart := openHTTPCart(t, api, token)
	if !cart.TotalPayable.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("expected total payable 5, got %s", cart.TotalPayable)
	}

	headers := map[string]string{headerIdempotencyKey: "http-checkout-1"}
	first := call(t, api, http.MethodPost, "/api/v1/checkout", token, cashPayment(cart), headers)
	expectStatus(t, first, http.StatusOK)
	resp := decodeBody[domain.CheckoutResponse](t, first)
	if resp.SaleID == "" || resp.PaymentStatus != domain.PaymentStatusAuthorized {
		t.Fatalf("unexpected checkout response %+v", resp)
	}

	second := call(t, api, http.MethodPost, "/api/v1/checkout", token, cashPayment(cart), headers)
	expectStatus(t, second, http.StatusOK)
	replay := decodeBody[domain.CheckoutResponse](t, second)
	if replay.SaleID != resp.SaleID || replay.ReceiptNumber != resp.ReceiptNumber {
		t.Fatalf("expected replay of sale %s, got %s", resp.SaleID, replay.SaleID)
	}

	res := call(t, api, http.MethodGet, "/api/v1/sales/"+resp.SaleID, token, nil, nil)
	expectStatus(t, res, http.StatusOK)
	sale := decodeBody[domain.Sale](t, res)
	if sale.ReceiptNumber != resp.ReceiptNumber || len(sale.Lines) != 1 {
		t.Fatalf("unexpected sale %+v", sale)
	}

	res = call(t, api, http.MethodGet, "/api/v1/payments/"+resp.PaymentID, token, nil, nil)
	expectStatus(t, res, http.StatusOK)
	if got := decodeBody[domain.PaymentDetails](t, res); got.Status != domain.PaymentStatusAuthorized {
		t.Fatalf("expected AUTHORIZED payment, got %s", got.Status)
	}
}

func TestCheckoutRejectsConflictingIdempotencyKeys(t *testing.T) {
	api := newTestAPI(t)
	token := login(t, api, "cashier", "cashier123")
	cart := openHTTPCart(t, api, token)

	req := cashPayment(cart)
	req.IdempotencyKey = "body-key"
	res := call(t, api, http.MethodPost, "/api/v1/checkout", token, req, map[string]string{headerIdempotencyKey: "header-key"})
	expectErrorCode(t, res, http.StatusBadRequest, "POS-4001")

	res = call(t, api, http.MethodPost, "/api/v1/checkout", token, cashPayment(cart), nil)
	expectErrorCode(t, res, http.StatusBadRequest, "POS-4001")
}

func TestPaymentTransitionOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	token := login(t, api, "cashier", "cashier123")
	cart := openHTTPCart(t, api, token)

	res := call(t, api, http.MethodPost, "/api/v1/checkout", token, cashPayment(cart), map[string]string{headerIdempotencyKey: "http-checkout-2"})
	expectStatus(t, res, http.StatusOK)
	checkout := decodeBody[domain.CheckoutResponse](t, res)

	path := "/api/v1/payments/" + checkout.PaymentID + "/transitions"
	capture := domain.PaymentTransitionRequest{Action: domain.PaymentActionCapture}
	res = call(t, api, http.MethodPost, path, token, capture, map[string]string{headerIdempotencyKey: "cap-1"})
	expectStatus(t, res, http.StatusOK)
	if got := decodeBody[domain.PaymentDetails](t, res); got.Status != domain.PaymentStatusCaptured {
		t.Fatalf("expected CAPTURED, got %s", got.Status)
	}

	res = call(t, api, http.MethodPost, path, token, domain.PaymentTransitionRequest{Action: domain.PaymentActionVoid}, map[string]string{headerIdempotencyKey: "void-1"})
	expectErrorCode(t, res, http.StatusConflict, "POS-4009")
}

func TestServiceErrorsMapToStatusCodes(t *testing.T) {
	api := newTestAPI(t)
	token := login(t, api, "cashier", "cashier123")

	res := call(t, api, http.MethodGet, "/api/v1/carts/cart-missing", token, nil, nil)
	expectErrorCode(t, res, http.StatusNotFound, "POS-4004")

	res = call(t, api, http.MethodPost, "/api/v1/carts", token, domain.CartCreateRequest{TerminalID: "term-1"}, nil)
	expectErrorCode(t, res, http.StatusBadRequest, "POS-4001")

	res = call(t, api, http.MethodPost, "/api/v1/carts", token, map[string]string{"store": "store-main"}, nil)
	expectErrorCode(t, res, http.StatusBadRequest, "POS-4001")
}

func TestCartLifecycleOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	token := login(t, api, "cashier", "cashier123")
	cart := openHTTPCart(t, api, token)
	lineID := cart.Lines[0].ID

	res := call(t, api, http.MethodPatch, "/api/v1/carts/"+cart.ID+"/lines/"+lineID, token, domain.CartLineRequest{
		ProductID: "prod-bread",
		Quantity:  decimal.NewFromInt(3),
		UnitPrice: decimal.RequireFromString("2.50"),
	}, nil)
	expectStatus(t, res, http.StatusOK)
	if got := decodeBody[domain.Cart](t, res); !got.TotalPayable.Equal(decimal.RequireFromString("7.5")) {
		t.Fatalf("expected total 7.5 after update, got %s", got.TotalPayable)
	}

	res = call(t, api, http.MethodPost, "/api/v1/carts/"+cart.ID+"/park", token, nil, nil)
	expectStatus(t, res, http.StatusOK)

	res = call(t, api, http.MethodGet, "/api/v1/carts/parked?store_location_id=store-main&terminal_id=term-1", token, nil, nil)
	expectStatus(t, res, http.StatusOK)
	parked := decodeBody[map[string][]domain.Cart](t, res)
	if len(parked["carts"]) != 1 || parked["carts"][0].ID != cart.ID {
		t.Fatalf("expected parked cart %s, got %+v", cart.ID, parked["carts"])
	}

	res = call(t, api, http.MethodPost, "/api/v1/carts/"+cart.ID+"/resume", token, nil, nil)
	expectStatus(t, res, http.StatusOK)

	res = call(t, api, http.MethodDelete, "/api/v1/carts/"+cart.ID+"/lines/"+lineID, token, nil, nil)
	expectStatus(t, res, http.StatusOK)
	if got := decodeBody[domain.Cart](t, res); len(got.Lines) != 0 {
		t.Fatalf("expected empty cart, got %d lines", len(got.Lines))
	}

	res = call(t, api, http.MethodPost, "/api/v1/carts/"+cart.ID+"/cancel", token, nil, nil)
	expectStatus(t, res, http.StatusOK)
	if got := decodeBody[domain.Cart](t, res); got.Status != domain.CartStatusCancelled {
		t.Fatalf("expected CANCELLED cart, got %s", got.Status)
	}
}

func TestCashierCannotReachManagerRoutes(t *testing.T) {
	api := newTestAPI(t)
	token := login(t, api, "cashier", "cashier123")

	res := call(t, api, http.MethodPost, "/api/v1/purchase-orders", token, domain.PurchaseOrderCreateRequest{SupplierID: "sup-dairy", StoreLocationID: "store-main"}, nil)
	expectStatus(t, res, http.StatusForbidden)

	res = call(t, api, http.MethodGet, "/api/v1/users/cashiers", token, nil, nil)
	expectStatus(t, res, http.StatusForbidden)
}

func TestStockAdjustmentNeedsManagerApproval(t *testing.T) {
	api := newTestAPI(t)
	cashier := login(t, api, "cashier", "cashier123")
	manager := login(t, api, "manager", "manager123")

	res := call(t, api, http.MethodPost, "/api/v1/stock-adjustments", cashier, domain.StockAdjustmentCreateRequest{
		StoreLocationID: "store-main",
		ProductID:       "prod-bread",
		QuantityDelta:   decimal.NewFromInt(-25),
		ReasonCode:      "damaged",
	}, nil)
	expectStatus(t, res, http.StatusCreated)
	adj := decodeBody[domain.StockAdjustment](t, res)
	if adj.Status != domain.AdjustmentPendingApproval || adj.ReasonCode != "DAMAGED" {
		t.Fatalf("unexpected adjustment %+v", adj)
	}

	res = call(t, api, http.MethodPost, "/api/v1/stock-adjustments/"+adj.ID+"/approve", cashier, nil, nil)
	expectErrorCode(t, res, http.StatusForbidden, "POS-4030")

	res = call(t, api, http.MethodPost, "/api/v1/stock-adjustments/"+adj.ID+"/post", cashier, nil, nil)
	expectErrorCode(t, res, http.StatusConflict, "POS-4009")

	res = call(t, api, http.MethodPost, "/api/v1/stock-adjustments/"+adj.ID+"/approve", manager, nil, nil)
	expectStatus(t, res, http.StatusOK)

	res = call(t, api, http.MethodPost, "/api/v1/stock-adjustments/"+adj.ID+"/post", cashier, nil, nil)
	expectStatus(t, res, http.StatusOK)
	if got := decodeBody[domain.StockAdjustment](t, res); got.Status != domain.AdjustmentPosted || got.MovementID == "" {
		t.Fatalf("expected posted adjustment with movement, got %+v", got)
	}

	res = call(t, api, http.MethodGet, "/api/v1/inventory/balances?store_location_id=store-main&product_id=prod-bread", cashier, nil, nil)
	expectStatus(t, res, http.StatusOK)
	balances := decodeBody[map[string][]domain.StockBalance](t, res)
	if len(balances["balances"]) != 1 || !balances["balances"][0].QuantityOnHand.Equal(decimal.NewFromInt(-25)) {
		t.Fatalf("expected on-hand -25, got %+v", balances["balances"])
	}
}

func TestPurchaseOrderReceiptOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	manager := login(t, api, "manager", "manager123")

	res := call(t, api, http.MethodPost, "/api/v1/purchase-orders", manager, domain.PurchaseOrderCreateRequest{
		SupplierID:      "sup-bakery",
		StoreLocationID: "store-main",
		Lines: []domain.PurchaseOrderLineRequest{
			{ProductID: "prod-bread", OrderedQuantity: decimal.NewFromInt(10), UnitCost: decimal.RequireFromString("1.20")},
		},
	}, nil)
	expectStatus(t, res, http.StatusCreated)
	po := decodeBody[domain.PurchaseOrder](t, res)

	res = call(t, api, http.MethodPost, "/api/v1/purchase-orders/"+po.ID+"/approve", manager, nil, nil)
	expectStatus(t, res, http.StatusOK)

	res = call(t, api, http.MethodPost, "/api/v1/purchase-orders/"+po.ID+"/receive", manager, domain.PurchaseOrderReceiveRequest{
		Lines: []domain.ReceiveLineRequest{{ProductID: "prod-bread", ReceivedQuantity: decimal.NewFromInt(10)}},
	}, nil)
	expectStatus(t, res, http.StatusOK)

	res = call(t, api, http.MethodGet, "/api/v1/inventory/movements?store_location_id=store-main&product_id=prod-bread", manager, nil, nil)
	expectStatus(t, res, http.StatusOK)
	movements := decodeBody[map[string][]domain.MovementEntry](t, res)
	if len(movements["movements"]) != 1 {
		t.Fatalf("expected one receipt movement, got %d", len(movements["movements"]))
	}
}

func TestManagerPINHeader(t *testing.T) {
	api := newTestAPI(t)
	token := login(t, api, "cashier", "cashier123")
	path := "/api/v1/carts/parked?store_location_id=store-main"

	res := call(t, api, http.MethodGet, path, token, nil, map[string]string{headerManagerPIN: testManagerPIN})
	expectStatus(t, res, http.StatusOK)

	res = call(t, api, http.MethodGet, path, token, nil, map[string]string{headerManagerPIN: "000001"})
	expectErrorCode(t, res, http.StatusForbidden, "POS-4030")
}

func TestAdminManagesCashiers(t *testing.T) {
	api := newTestAPI(t)
	admin := login(t, api, "admin", "admin123")

	res := call(t, api, http.MethodPost, "/api/v1/users/cashiers", admin, domain.CashierCreateRequest{Username: "weekend", Password: "pass1234"}, nil)
	expectStatus(t, res, http.StatusCreated)

	res = call(t, api, http.MethodPost, "/api/v1/users/cashiers", admin, domain.CashierCreateRequest{Username: "weekend", Password: "pass1234"}, nil)
	expectErrorCode(t, res, http.StatusConflict, "POS-4009")

	res = call(t, api, http.MethodGet, "/api/v1/users/cashiers", admin, nil, nil)
	expectStatus(t, res, http.StatusOK)
	cashiers := decodeBody[map[string][]domain.CashierUser](t, res)
	if len(cashiers["cashiers"]) != 2 {
		t.Fatalf("expected seeded and new cashier, got %+v", cashiers["cashiers"])
	}

	login(t, api, "weekend", "pass1234")
}
