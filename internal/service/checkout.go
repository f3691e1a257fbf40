package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"retailpos/backend/internal/apperr"
	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/events"
	"retailpos/backend/internal/numeric"
	"retailpos/backend/internal/payment"
	"retailpos/backend/internal/store"
	"retailpos/backend/internal/xid"
)

type checkoutFingerprint struct {
	CartID               string              `json:"cart_id"`
	CashierID            string              `json:"cashier_id"`
	TerminalID           string              `json:"terminal_id"`
	AllowExpiredOverride bool                `json:"allow_expired_override"`
	Payments             []tenderFingerprint `json:"payments"`
}

type tenderFingerprint struct {
	TenderType     string `json:"tender_type"`
	Amount         string `json:"amount"`
	TenderedAmount string `json:"tendered_amount"`
	Reference      string `json:"reference"`
}

func fingerprintCheckout(req domain.CheckoutRequest) (string, error) {
	fp := checkoutFingerprint{
		CartID:               req.CartID,
		CashierID:            req.CashierID,
		TerminalID:           req.TerminalID,
		AllowExpiredOverride: req.AllowExpiredOverride,
		Payments:             make([]tenderFingerprint, 0, len(req.Payments)),
	}
	for _, p := range req.Payments {
		tf := tenderFingerprint{
			TenderType: string(p.TenderType),
			Amount:     numeric.CostOf(p.Amount).StringFixed(numeric.CostScale),
			Reference:  strings.TrimSpace(p.Reference),
		}
		if p.TenderedAmount != nil {
			tf.TenderedAmount = numeric.Cost(p.TenderedAmount).StringFixed(numeric.CostScale)
		}
		fp.Payments = append(fp.Payments, tf)
	}
	return fingerprint(fp)
}

// Checkout turns an active cart into a sale, its SALE movements and lot
// links, and an AUTHORIZED payment. Repeating the call with the same
// idempotency key and payload returns the first response unchanged.
func (s *Service) Checkout(ctx context.Context, req domain.CheckoutRequest) (domain.CheckoutResponse, error) {
	key, err := normalizeIdempotencyKey(req.IdempotencyKey)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}
	req.CartID, err = requireID(req.CartID, "cart id")
	if err != nil {
		return domain.CheckoutResponse{}, err
	}
	req.CashierID = strings.TrimSpace(req.CashierID)
	req.TerminalID = strings.TrimSpace(req.TerminalID)
	if err := payment.ValidateShape(req.Payments); err != nil {
		return domain.CheckoutResponse{}, err
	}
	if req.AllowExpiredOverride {
		if err := s.authorizeExpiryOverride(ctx); err != nil {
			return domain.CheckoutResponse{}, err
		}
	}

	fp, err := fingerprintCheckout(req)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}
	call := idempotentCall{scope: scopeCheckout, key: key, fingerprint: fp}

	resp, replayed, err := runIdempotent(ctx, s, call, func(ctx context.Context, tx store.Tx) (domain.CheckoutResponse, error) {
		return s.checkoutCart(ctx, tx, req)
	})
	if err != nil {
		return domain.CheckoutResponse{}, err
	}
	if replayed {
		return resp, nil
	}

	s.logger.Info("checkout completed",
		zap.String("cart_id", resp.CartID),
		zap.String("sale_id", resp.SaleID),
		zap.String("receipt_number", resp.ReceiptNumber),
		zap.String("total_payable", resp.TotalPayable.StringFixed(numeric.CostScale)),
	)
	s.publish(ctx, events.TypeSaleCheckedOut, resp.SaleID, resp)
	return resp, nil
}

func (s *Service) authorizeExpiryOverride(ctx context.Context) error {
	if !s.opts.ExpiryOverrideEnabled {
		return apperr.Forbidden("expired lot override is disabled")
	}
	actor, _ := ActorFromContext(ctx)
	if !actor.CanOverrideExpiry() {
		return apperr.Forbidden("expired lot override requires manager approval")
	}
	return nil
}

func (s *Service) checkoutCart(ctx context.Context, tx store.Tx, req domain.CheckoutRequest) (domain.CheckoutResponse, error) {
	cart, err := tx.LockCart(ctx, req.CartID)
	if err != nil {
		return domain.CheckoutResponse{}, missing(err, "sale cart not found: %s", req.CartID)
	}
	if cart.Status != domain.CartStatusActive {
		return domain.CheckoutResponse{}, apperr.Conflict("sale cart is not active: %s", cart.ID)
	}
	if req.CashierID != "" && req.CashierID != cart.CashierID {
		return domain.CheckoutResponse{}, apperr.Conflict("cart can only be handled by the assigned cashier: %s", cart.CashierID)
	}
	if req.TerminalID != "" && req.TerminalID != cart.TerminalID {
		return domain.CheckoutResponse{}, apperr.Conflict("cart can only be handled by the assigned terminal: %s", cart.TerminalID)
	}
	if len(cart.Lines) == 0 {
		return domain.CheckoutResponse{}, apperr.Invalid("sale cart has no lines: %s", cart.ID)
	}

	summary, err := payment.ValidateAllocations(cart.TotalPayable, req.Payments)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}

	now := s.clock()
	sale := domain.Sale{
		ID:              xid.New("sale"),
		CartID:          cart.ID,
		StoreLocationID: cart.StoreLocationID,
		TerminalID:      cart.TerminalID,
		CashierID:       cart.CashierID,
		ReceiptNumber:   xid.Reference("RCP"),
		SubtotalNet:     cart.SubtotalNet,
		TotalTax:        cart.TotalTax,
		TotalGross:      cart.TotalGross,
		TotalPayable:    cart.TotalPayable,
		Lines:           make([]domain.SaleLine, 0, len(cart.Lines)),
		CreatedAt:       now,
	}
	for _, line := range cart.Lines {
		sale.Lines = append(sale.Lines, domain.SaleLine{
			ID:          xid.New("sli"),
			SaleID:      sale.ID,
			LineNumber:  line.LineNumber,
			ProductID:   line.ProductID,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			NetAmount:   line.NetAmount,
			TaxAmount:   line.TaxAmount,
			GrossAmount: line.GrossAmount,
		})
	}
	if err := tx.InsertSale(ctx, sale); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return domain.CheckoutResponse{}, apperr.Conflict("sale already exists for cart: %s", cart.ID)
		}
		return domain.CheckoutResponse{}, err
	}

	for _, line := range sale.Lines {
		product, err := tx.GetProduct(ctx, line.ProductID)
		if err != nil {
			return domain.CheckoutResponse{}, missing(err, "product not found: %s", line.ProductID)
		}
		allocations, err := s.lots.AllocateSale(ctx, tx, *product, sale.StoreLocationID, line.Quantity, req.AllowExpiredOverride)
		if err != nil {
			return domain.CheckoutResponse{}, err
		}
		movement, err := s.ledger.Append(ctx, tx, domain.Movement{
			StoreLocationID: sale.StoreLocationID,
			ProductID:       line.ProductID,
			MovementType:    domain.MovementSale,
			QuantityDelta:   line.Quantity.Neg(),
			ReferenceType:   domain.RefSaleReceipt,
			ReferenceNumber: sale.ReceiptNumber,
			SaleID:          sale.ID,
			SaleLineID:      line.ID,
			CreatedAt:       now,
		})
		if err != nil {
			return domain.CheckoutResponse{}, err
		}
		if err := linkLots(ctx, tx, movement.ID, allocations); err != nil {
			return domain.CheckoutResponse{}, err
		}
	}

	pay := domain.Payment{
		ID:             xid.New("pay"),
		CartID:         cart.ID,
		SaleID:         sale.ID,
		TotalPayable:   numeric.CostOf(cart.TotalPayable),
		TotalAllocated: summary.TotalAllocated,
		TotalTendered:  summary.TotalTendered,
		ChangeAmount:   summary.ChangeAmount,
		Allocations:    summary.Allocations,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	authorized, err := payment.Authorize(&pay, actorName(ctx), now)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}
	if err := tx.InsertPayment(ctx, pay); err != nil {
		return domain.CheckoutResponse{}, err
	}
	if err := tx.InsertPaymentTransition(ctx, authorized); err != nil {
		return domain.CheckoutResponse{}, err
	}

	cart.Status = domain.CartStatusCheckedOut
	cart.UpdatedAt = now
	if err := tx.SaveCart(ctx, *cart); err != nil {
		return domain.CheckoutResponse{}, err
	}

	return domain.CheckoutResponse{
		CartID:         cart.ID,
		SaleID:         sale.ID,
		ReceiptNumber:  sale.ReceiptNumber,
		PaymentID:      pay.ID,
		PaymentStatus:  pay.Status,
		TotalPayable:   pay.TotalPayable,
		TotalAllocated: pay.TotalAllocated,
		TotalTendered:  pay.TotalTendered,
		ChangeAmount:   pay.ChangeAmount,
		Payments:       pay.Allocations,
		CreatedAt:      now,
	}, nil
}
