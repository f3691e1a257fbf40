package httpapi

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"retailpos/backend/internal/apperr"
	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/service"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	headerManagerPIN     = "X-Manager-PIN"
	headerCSRFToken      = "X-CSRF-Token"

	maxBodyBytes = 1 << 20
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	logger        *zap.Logger
	allowedOrigin string
	loginLimiter  *attemptLimiter
	pinLimiter    *attemptLimiter
	csrfSecret    []byte
}

func New(svc *service.Service, auth *AuthManager, logger *zap.Logger, allowedOrigin string) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	csrfSecret := make([]byte, 32)
	if _, err := rand.Read(csrfSecret); err != nil {
		csrfSecret = []byte("csrf-fallback-secret-change-me!!")
	}
	return &API{
		service:       svc,
		auth:          auth,
		logger:        logger.Named("httpapi"),
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		pinLimiter:    newAttemptLimiter(8, time.Minute),
		csrfSecret:    csrfSecret,
	}
}

// csrfTokenForHour is the hex HMAC of an hour bucket in Unix seconds.
func (a *API) csrfTokenForHour(hourBucket int64) string {
	h := hmac.New(sha256.New, a.csrfSecret)
	fmt.Fprintf(h, "%d", hourBucket)
	return hex.EncodeToString(h.Sum(nil))
}

func (a *API) generateCSRFToken() string {
	bucket := time.Now().UTC().Truncate(time.Hour).Unix()
	return a.csrfTokenForHour(bucket)
}

// validateCSRFToken accepts the current and the previous hour bucket.
func (a *API) validateCSRFToken(token string) bool {
	if token == "" {
		return false
	}
	current := time.Now().UTC().Truncate(time.Hour).Unix()
	return hmac.Equal([]byte(token), []byte(a.csrfTokenForHour(current))) ||
		hmac.Equal([]byte(token), []byte(a.csrfTokenForHour(current-3600)))
}

// attemptLimiter keeps one token bucket per client key. max attempts refill
// evenly over window.
type attemptLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{
		limit:    rate.Every(window / time.Duration(max)),
		burst:    max,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (l *attemptLimiter) limiterFor(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if limiter, ok := l.limiters[key]; ok {
		return limiter
	}
	limiter := rate.NewLimiter(l.limit, l.burst)
	l.limiters[key] = limiter
	return limiter
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	return l.limiterFor(key).Allow()
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(a.withMiddleware)
	r.Use(middleware.Recoverer)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		a.writeError(w, http.StatusNotFound, errors.New("route not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		a.writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
	})

	r.Get("/healthz", a.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", a.handleLogin)
		r.Get("/auth/csrf-token", a.handleCSRFToken)

		r.Group(func(r chi.Router) {
			r.Use(a.requireAuth(domain.RoleCashier, domain.RoleManager, domain.RoleAdmin))

			r.Post("/carts", a.handleCreateCart)
			r.Get("/carts/parked", a.handleListParkedCarts)
			r.Get("/carts/{cartID}", a.handleGetCart)
			r.Post("/carts/{cartID}/lines", a.handleAddCartLine)
			r.Patch("/carts/{cartID}/lines/{lineID}", a.handleUpdateCartLine)
			r.Delete("/carts/{cartID}/lines/{lineID}", a.handleRemoveCartLine)
			r.Post("/carts/{cartID}/park", a.handleParkCart)
			r.Post("/carts/{cartID}/resume", a.handleResumeCart)
			r.Post("/carts/{cartID}/cancel", a.handleCancelCart)

			r.Post("/checkout", a.handleCheckout)

			r.Get("/payments/{paymentID}", a.handleGetPayment)
			r.Post("/payments/{paymentID}/transitions", a.handleTransitionPayment)

			r.Get("/sales/{saleID}", a.handleGetSale)
			r.Post("/sales/{saleID}/returns", a.handleReturnSaleLine)

			r.Get("/inventory/movements", a.handleListMovements)
			r.Get("/inventory/balances", a.handleListBalances)
			r.Get("/inventory/lots", a.handleListLots)

			r.Post("/stock-adjustments", a.handleCreateStockAdjustment)
			r.Get("/stock-adjustments/{id}", a.handleGetStockAdjustment)
			r.Post("/stock-adjustments/{id}/approve", a.handleApproveStockAdjustment)
			r.Post("/stock-adjustments/{id}/post", a.handlePostStockAdjustment)
		})

		r.Group(func(r chi.Router) {
			r.Use(a.requireAuth(domain.RoleManager, domain.RoleAdmin))

			r.Post("/inventory/movements", a.handleCreateMovement)

			r.Post("/purchase-orders", a.handleCreatePurchaseOrder)
			r.Get("/purchase-orders/{id}", a.handleGetPurchaseOrder)
			r.Post("/purchase-orders/{id}/approve", a.handleApprovePurchaseOrder)
			r.Post("/purchase-orders/{id}/receive", a.handleReceivePurchaseOrder)

			r.Post("/supplier-returns", a.handleCreateSupplierReturn)
			r.Get("/supplier-returns/{id}", a.handleGetSupplierReturn)
			r.Post("/supplier-returns/{id}/approve", a.handleApproveSupplierReturn)
			r.Post("/supplier-returns/{id}/post", a.handlePostSupplierReturn)

			r.Post("/stock-transfers", a.handleCreateStockTransfer)
			r.Get("/stock-transfers/{id}", a.handleGetStockTransfer)
			r.Post("/stock-transfers/{id}/ship", a.handleShipStockTransfer)
			r.Post("/stock-transfers/{id}/receive", a.handleReceiveStockTransfer)

			r.Post("/stocktakes", a.handleCreateStocktake)
			r.Get("/stocktakes/{id}", a.handleGetStocktake)
			r.Post("/stocktakes/{id}/start", a.handleStartStocktake)
			r.Post("/stocktakes/{id}/finalize", a.handleFinalizeStocktake)
		})

		r.Group(func(r chi.Router) {
			r.Use(a.requireAuth(domain.RoleAdmin))

			r.Get("/users/cashiers", a.handleListCashiers)
			r.Post("/users/cashiers", a.handleCreateCashier)
		})
	})

	return r
}

// requireAuth resolves the bearer token into an actor. A valid X-Manager-PIN
// header marks the actor as manager-approved for this request only.
func (a *API) requireAuth(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authorization := strings.TrimSpace(r.Header.Get("Authorization"))
			if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
				a.writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
				return
			}

			actor, err := a.auth.ParseToken(strings.TrimSpace(authorization[len("Bearer "):]))
			if err != nil {
				a.writeError(w, http.StatusUnauthorized, err)
				return
			}
			if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
				a.writeError(w, http.StatusForbidden, errors.New("forbidden role"))
				return
			}

			if pin := strings.TrimSpace(r.Header.Get(headerManagerPIN)); pin != "" {
				if !a.pinLimiter.Allow(clientKey(r)) {
					a.writeError(w, http.StatusTooManyRequests, errors.New("too many manager pin attempts"))
					return
				}
				if !a.auth.ValidateManagerPIN(pin) {
					a.writeError(w, http.StatusForbidden, errors.New("invalid manager pin"))
					return
				}
				actor.ManagerApproved = true
			}

			next.ServeHTTP(w, r.WithContext(service.WithActor(r.Context(), actor)))
		})
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.loginLimiter.Allow(clientKey(r)) {
		a.writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if !a.decode(w, r, &req) {
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		a.writeError(w, http.StatusUnauthorized, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCSRFToken returns a token for the X-CSRF-Token header of mutating requests.
func (a *API) handleCSRFToken(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"csrf_token": a.generateCSRFToken(),
	})
}

var csrfExemptPaths = []string{
	"/api/v1/auth/login",
}

func (a *API) checkCSRF(w http.ResponseWriter, r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return true
	}
	for _, exempt := range csrfExemptPaths {
		if r.URL.Path == exempt {
			return true
		}
	}
	if !a.validateCSRFToken(strings.TrimSpace(r.Header.Get(headerCSRFToken))) {
		a.writeError(w, http.StatusForbidden, errors.New("missing or invalid CSRF token"))
		return false
	}
	return true
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-CSRF-Token, Idempotency-Key, X-Manager-PIN")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if !a.checkCSRF(w, r) {
			return
		}

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		startedAt := time.Now()
		next.ServeHTTP(ww, r)
		a.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(startedAt)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// decode reads a JSON body into dest, writing a 400 and returning false when
// the body is malformed, oversized or carries unknown fields.
func (a *API) decode(w http.ResponseWriter, r *http.Request, dest any) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		a.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return false
	}
	return true
}

// idempotencyKey merges the Idempotency-Key header with the key in the body.
// Supplying both with different values is rejected.
func idempotencyKey(r *http.Request, bodyKey string) (string, error) {
	header := strings.TrimSpace(r.Header.Get(headerIdempotencyKey))
	bodyKey = strings.TrimSpace(bodyKey)
	switch {
	case header == "":
		return bodyKey, nil
	case bodyKey == "" || bodyKey == header:
		return header, nil
	default:
		return "", apperr.Invalid("idempotency key header does not match request body")
	}
}

func statusForKind(kind apperr.Kind) int {
	switch kind {
	case apperr.KindInvalidArgument:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// respond writes payload with status, or the mapped error when err is set.
func (a *API) respond(w http.ResponseWriter, status int, payload any, err error) {
	if err != nil {
		a.writeError(w, statusForKind(apperr.KindOf(err)), err)
		return
	}
	writeJSON(w, status, payload)
}

func errorCode(status int, err error) string {
	if kind := apperr.KindOf(err); kind != apperr.KindUnknown {
		return kind.Code()
	}
	switch status {
	case http.StatusBadRequest:
		return apperr.KindInvalidArgument.Code()
	case http.StatusUnauthorized:
		return "POS-4010"
	case http.StatusForbidden:
		return apperr.KindForbidden.Code()
	case http.StatusNotFound:
		return apperr.KindNotFound.Code()
	case http.StatusMethodNotAllowed:
		return "POS-4050"
	case http.StatusConflict:
		return apperr.KindConflict.Code()
	case http.StatusTooManyRequests:
		return "POS-4290"
	default:
		return apperr.KindUnknown.Code()
	}
}

func (a *API) writeError(w http.ResponseWriter, status int, err error) {
	msg := err.Error()
	if status >= 500 {
		a.logger.Error("internal error", zap.Int("status", status), zap.Error(err))
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    errorCode(status, err),
			"message": msg,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
