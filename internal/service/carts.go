package service

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"retailpos/backend/internal/apperr"
	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/numeric"
	"retailpos/backend/internal/store"
	"retailpos/backend/internal/xid"
)

func (s *Service) CreateCart(ctx context.Context, req domain.CartCreateRequest) (domain.Cart, error) {
	storeID, err := requireID(req.StoreLocationID, "store location id")
	if err != nil {
		return domain.Cart{}, err
	}
	terminalID, err := requireID(req.TerminalID, "terminal id")
	if err != nil {
		return domain.Cart{}, err
	}
	cashierID := strings.TrimSpace(req.CashierID)
	if cashierID == "" {
		if actor, ok := ActorFromContext(ctx); ok {
			cashierID = strings.TrimSpace(actor.Username)
		}
	}
	if cashierID == "" {
		return domain.Cart{}, apperr.Invalid("cashier id is required")
	}

	now := s.clock()
	cart := domain.Cart{
		ID:              xid.New("cart"),
		StoreLocationID: storeID,
		TerminalID:      terminalID,
		CashierID:       cashierID,
		Status:          domain.CartStatusActive,
		Lines:           []domain.CartLine{},
		SubtotalNet:     numeric.CostOf(decimal.Zero),
		TotalTax:        numeric.CostOf(decimal.Zero),
		TotalGross:      numeric.CostOf(decimal.Zero),
		TotalPayable:    numeric.CostOf(decimal.Zero),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	err = s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := loadActiveLocation(ctx, tx, storeID); err != nil {
			return err
		}
		return tx.InsertCart(ctx, cart)
	})
	if err != nil {
		return domain.Cart{}, err
	}
	return cart, nil
}

func (s *Service) GetCart(ctx context.Context, cartID string) (domain.Cart, error) {
	var cart domain.Cart
	err := s.repo.View(ctx, func(ctx context.Context, r store.Reader) error {
		c, err := r.GetCart(ctx, cartID)
		if err != nil {
			return missing(err, "sale cart not found: %s", cartID)
		}
		cart = *c
		return nil
	})
	return cart, err
}

func (s *Service) AddCartLine(ctx context.Context, cartID string, req domain.CartLineRequest) (domain.Cart, error) {
	return s.mutateActiveCart(ctx, cartID, func(ctx context.Context, tx store.Tx, cart *domain.Cart) error {
		line, err := s.priceLine(ctx, tx, req)
		if err != nil {
			return err
		}
		line.ID = xid.New("cln")
		line.CartID = cart.ID
		line.LineNumber = nextLineNumber(cart.Lines)
		cart.Lines = append(cart.Lines, line)
		return nil
	})
}

// UpdateCartLine replaces quantity, price and tax of an existing line.
func (s *Service) UpdateCartLine(ctx context.Context, cartID string, lineID string, req domain.CartLineRequest) (domain.Cart, error) {
	return s.mutateActiveCart(ctx, cartID, func(ctx context.Context, tx store.Tx, cart *domain.Cart) error {
		i := lineIndex(cart.Lines, lineID)
		if i < 0 {
			return apperr.NotFound("sale cart line not found: %s", lineID)
		}
		if req.ProductID == "" {
			req.ProductID = cart.Lines[i].ProductID
		}
		if req.ProductID != cart.Lines[i].ProductID {
			return apperr.Conflict("cart line %s already holds a different product", lineID)
		}
		line, err := s.priceLine(ctx, tx, req)
		if err != nil {
			return err
		}
		line.ID = cart.Lines[i].ID
		line.CartID = cart.ID
		line.LineNumber = cart.Lines[i].LineNumber
		cart.Lines[i] = line
		return nil
	})
}

func (s *Service) RemoveCartLine(ctx context.Context, cartID string, lineID string) (domain.Cart, error) {
	return s.mutateActiveCart(ctx, cartID, func(_ context.Context, _ store.Tx, cart *domain.Cart) error {
		i := lineIndex(cart.Lines, lineID)
		if i < 0 {
			return apperr.NotFound("sale cart line not found: %s", lineID)
		}
		cart.Lines = append(cart.Lines[:i], cart.Lines[i+1:]...)
		return nil
	})
}

func (s *Service) ParkCart(ctx context.Context, cartID string) (domain.Cart, error) {
	var parked domain.Cart
	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		cart, err := tx.LockCart(ctx, cartID)
		if err != nil {
			return missing(err, "sale cart not found: %s", cartID)
		}
		if cart.Status != domain.CartStatusActive {
			return apperr.Conflict("sale cart must be ACTIVE to park: %s", cartID)
		}
		now := s.clock()
		cart.Status = domain.CartStatusParked
		cart.ParkedReference = xid.Reference("PK")
		cart.ParkedAt = timePtr(now)
		cart.ParkExpiresAt = timePtr(now.Add(s.opts.ParkedCartTTL))
		cart.UpdatedAt = now
		if err := tx.SaveCart(ctx, *cart); err != nil {
			return err
		}
		parked = *cart
		return nil
	})
	return parked, err
}

// ResumeCart reactivates a parked cart. A cart whose park window has passed
// is committed as EXPIRED before the call reports the conflict.
func (s *Service) ResumeCart(ctx context.Context, cartID string) (domain.Cart, error) {
	var (
		resumed domain.Cart
		expired bool
	)
	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		expired = false
		cart, err := tx.LockCart(ctx, cartID)
		if err != nil {
			return missing(err, "sale cart not found: %s", cartID)
		}
		now := s.clock()
		if cart.ParkExpired(now) {
			expired = true
			return expireCart(ctx, tx, cart, now)
		}
		if cart.Status != domain.CartStatusParked {
			return apperr.Conflict("sale cart is not parked: %s", cartID)
		}
		cart.Status = domain.CartStatusActive
		cart.ParkedReference = ""
		cart.ParkedAt = nil
		cart.ParkExpiresAt = nil
		cart.UpdatedAt = now
		if err := tx.SaveCart(ctx, *cart); err != nil {
			return err
		}
		resumed = *cart
		return nil
	})
	if err != nil {
		return domain.Cart{}, err
	}
	if expired {
		return domain.Cart{}, apperr.Conflict("sale cart parking window expired and cannot be resumed: %s", cartID)
	}
	return resumed, nil
}

func (s *Service) CancelCart(ctx context.Context, cartID string) (domain.Cart, error) {
	var (
		cancelled domain.Cart
		expired   bool
	)
	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		expired = false
		cart, err := tx.LockCart(ctx, cartID)
		if err != nil {
			return missing(err, "sale cart not found: %s", cartID)
		}
		now := s.clock()
		if cart.ParkExpired(now) {
			expired = true
			return expireCart(ctx, tx, cart, now)
		}
		switch cart.Status {
		case domain.CartStatusCancelled, domain.CartStatusCheckedOut, domain.CartStatusExpired:
			return apperr.Conflict("sale cart cannot be cancelled in status: %s", cart.Status)
		}
		cart.Status = domain.CartStatusCancelled
		cart.UpdatedAt = now
		if err := tx.SaveCart(ctx, *cart); err != nil {
			return err
		}
		cancelled = *cart
		return nil
	})
	if err != nil {
		return domain.Cart{}, err
	}
	if expired {
		return domain.Cart{}, apperr.Conflict("sale cart parking window expired and cannot be cancelled: %s", cartID)
	}
	return cancelled, nil
}

// ListParkedCarts returns parked carts of a store, oldest first. Carts found
// past their park window are expired on the way.
func (s *Service) ListParkedCarts(ctx context.Context, storeLocationID string, terminalID string) ([]domain.Cart, error) {
	storeLocationID, err := requireID(storeLocationID, "store location id")
	if err != nil {
		return nil, err
	}
	terminalID = strings.TrimSpace(terminalID)

	var parked []domain.Cart
	err = s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		carts, err := tx.ListCarts(ctx, storeLocationID, domain.CartStatusParked)
		if err != nil {
			return err
		}
		now := s.clock()
		parked = make([]domain.Cart, 0, len(carts))
		for i := range carts {
			cart := carts[i]
			if cart.ParkExpired(now) {
				if err := expireCart(ctx, tx, &cart, now); err != nil {
					return err
				}
				continue
			}
			if terminalID != "" && cart.TerminalID != terminalID {
				continue
			}
			parked = append(parked, cart)
		}
		return nil
	})
	return parked, err
}

func expireCart(ctx context.Context, tx store.Tx, cart *domain.Cart, now time.Time) error {
	cart.Status = domain.CartStatusExpired
	cart.UpdatedAt = now
	return tx.SaveCart(ctx, *cart)
}

func (s *Service) mutateActiveCart(ctx context.Context, cartID string, mutate func(ctx context.Context, tx store.Tx, cart *domain.Cart) error) (domain.Cart, error) {
	var updated domain.Cart
	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		cart, err := tx.LockCart(ctx, cartID)
		if err != nil {
			return missing(err, "sale cart not found: %s", cartID)
		}
		if cart.Status != domain.CartStatusActive {
			return apperr.Conflict("sale cart is not active: %s", cartID)
		}
		if err := mutate(ctx, tx, cart); err != nil {
			return err
		}
		recalculateTotals(cart)
		cart.UpdatedAt = s.clock()
		if err := tx.SaveCart(ctx, *cart); err != nil {
			return err
		}
		updated = *cart
		return nil
	})
	return updated, err
}

// priceLine validates a line against the product's quantity rules. Prices
// and tax arrive already computed by the pricing collaborator.
func (s *Service) priceLine(ctx context.Context, tx store.Tx, req domain.CartLineRequest) (domain.CartLine, error) {
	productID, err := requireID(req.ProductID, "product id")
	if err != nil {
		return domain.CartLine{}, err
	}
	product, err := loadActiveProduct(ctx, tx, productID)
	if err != nil {
		return domain.CartLine{}, err
	}
	if !req.Quantity.IsPositive() {
		return domain.CartLine{}, apperr.Invalid("quantity must be greater than zero")
	}
	if !numeric.FitsScale(req.Quantity, product.QuantityPrecision) {
		return domain.CartLine{}, apperr.Invalid("quantity exceeds %d decimal places for product %s", product.QuantityPrecision, product.ID)
	}
	if product.SaleMode == domain.SaleModeUnit && !req.Quantity.IsInteger() {
		return domain.CartLine{}, apperr.Invalid("quantity must be a whole number for unit product %s", product.ID)
	}
	if req.UnitPrice.IsNegative() {
		return domain.CartLine{}, apperr.Invalid("unit price must not be negative")
	}
	tax := numeric.Cost(req.TaxAmount)
	if tax.IsNegative() {
		return domain.CartLine{}, apperr.Invalid("tax amount must not be negative")
	}

	qty := numeric.QuantityOf(req.Quantity)
	price := numeric.CostOf(req.UnitPrice)
	net := numeric.CostOf(qty.Mul(price))
	return domain.CartLine{
		ProductID:   product.ID,
		Quantity:    qty,
		UnitPrice:   price,
		NetAmount:   net,
		TaxAmount:   tax,
		GrossAmount: numeric.CostOf(net.Add(tax)),
	}, nil
}

func recalculateTotals(cart *domain.Cart) {
	net, tax, gross := decimal.Zero, decimal.Zero, decimal.Zero
	for _, line := range cart.Lines {
		net = net.Add(line.NetAmount)
		tax = tax.Add(line.TaxAmount)
		gross = gross.Add(line.GrossAmount)
	}
	cart.SubtotalNet = numeric.CostOf(net)
	cart.TotalTax = numeric.CostOf(tax)
	cart.TotalGross = numeric.CostOf(gross)
	cart.TotalPayable = cart.TotalGross
}

func nextLineNumber(lines []domain.CartLine) int {
	next := 1
	for _, line := range lines {
		if line.LineNumber >= next {
			next = line.LineNumber + 1
		}
	}
	return next
}

func lineIndex(lines []domain.CartLine, lineID string) int {
	for i, line := range lines {
		if line.ID == lineID {
			return i
		}
	}
	return -1
}
