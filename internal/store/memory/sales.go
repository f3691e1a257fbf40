package memory

import (
	"context"
	"slices"
	"strings"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/store"
)

func (s *state) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	p, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (s *state) GetStoreLocation(_ context.Context, id string) (*domain.StoreLocation, error) {
	loc, ok := s.locations[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &loc, nil
}

func (s *state) GetSupplier(_ context.Context, id string) (*domain.Supplier, error) {
	sup, ok := s.suppliers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &sup, nil
}

func (s *state) GetCart(_ context.Context, id string) (*domain.Cart, error) {
	cart, ok := s.carts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cart = copyCart(cart)
	return &cart, nil
}

func (s *state) LockCart(ctx context.Context, id string) (*domain.Cart, error) {
	return s.GetCart(ctx, id)
}

func (s *state) ListCarts(_ context.Context, storeLocationID string, status domain.CartStatus) ([]domain.Cart, error) {
	carts := make([]domain.Cart, 0)
	for _, cart := range s.carts {
		if storeLocationID != "" && cart.StoreLocationID != storeLocationID {
			continue
		}
		if status != "" && cart.Status != status {
			continue
		}
		carts = append(carts, copyCart(cart))
	}
	slices.SortFunc(carts, func(a, b domain.Cart) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return carts, nil
}

func (s *state) InsertCart(_ context.Context, cart domain.Cart) error {
	if _, exists := s.carts[cart.ID]; exists {
		return store.ErrDuplicate
	}
	s.carts[cart.ID] = copyCart(cart)
	return nil
}

func (s *state) SaveCart(_ context.Context, cart domain.Cart) error {
	if _, exists := s.carts[cart.ID]; !exists {
		return store.ErrNotFound
	}
	s.carts[cart.ID] = copyCart(cart)
	return nil
}

func (s *state) GetSale(_ context.Context, id string) (*domain.Sale, error) {
	sale, ok := s.sales[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	sale.Lines = slices.Clone(sale.Lines)
	return &sale, nil
}

func (s *state) LockSale(ctx context.Context, id string) (*domain.Sale, error) {
	return s.GetSale(ctx, id)
}

func (s *state) GetSaleByCart(ctx context.Context, cartID string) (*domain.Sale, error) {
	id, ok := s.saleByCart[cartID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return s.GetSale(ctx, id)
}

func (s *state) InsertSale(_ context.Context, sale domain.Sale) error {
	if _, exists := s.saleByCart[sale.CartID]; exists {
		return store.ErrDuplicate
	}
	sale.Lines = slices.Clone(sale.Lines)
	s.sales[sale.ID] = sale
	s.saleByCart[sale.CartID] = sale.ID
	return nil
}

func (s *state) GetPayment(_ context.Context, id string) (*domain.Payment, error) {
	p, ok := s.payments[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	p.Allocations = slices.Clone(p.Allocations)
	p.Transitions = make([]domain.PaymentTransition, 0, 4)
	for _, t := range s.transitions {
		if t.PaymentID == id {
			p.Transitions = append(p.Transitions, t)
		}
	}
	return &p, nil
}

func (s *state) ListPaymentsByCart(ctx context.Context, cartID string) ([]domain.Payment, error) {
	out := make([]domain.Payment, 0, 1)
	for id, p := range s.payments {
		if p.CartID != cartID {
			continue
		}
		full, err := s.GetPayment(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, *full)
	}
	slices.SortFunc(out, func(a, b domain.Payment) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (s *state) LockPayment(ctx context.Context, id string) (*domain.Payment, error) {
	return s.GetPayment(ctx, id)
}

func (s *state) InsertPayment(_ context.Context, p domain.Payment) error {
	if _, exists := s.payments[p.ID]; exists {
		return store.ErrDuplicate
	}
	p.Allocations = slices.Clone(p.Allocations)
	p.Transitions = nil
	s.payments[p.ID] = p
	return nil
}

func (s *state) UpdatePaymentStatus(_ context.Context, p domain.Payment) error {
	current, ok := s.payments[p.ID]
	if !ok {
		return store.ErrNotFound
	}
	current.Status = p.Status
	current.UpdatedAt = p.UpdatedAt
	s.payments[p.ID] = current
	return nil
}

func (s *state) InsertPaymentTransition(_ context.Context, t domain.PaymentTransition) error {
	s.transitions = append(s.transitions, t)
	return nil
}

func (s *state) GetIdempotency(_ context.Context, scope string, key string) (*domain.IdempotencyRecord, error) {
	rec, ok := s.idempotency[idemKey{scope: scope, key: key}]
	if !ok {
		return nil, store.ErrNotFound
	}
	rec.Response = slices.Clone(rec.Response)
	return &rec, nil
}

func (s *state) LockIdempotency(ctx context.Context, scope string, key string) (*domain.IdempotencyRecord, error) {
	return s.GetIdempotency(ctx, scope, key)
}

func (s *state) InsertIdempotency(_ context.Context, rec domain.IdempotencyRecord) error {
	k := idemKey{scope: rec.Scope, key: rec.Key}
	if _, exists := s.idempotency[k]; exists {
		return store.ErrDuplicate
	}
	rec.Response = slices.Clone(rec.Response)
	s.idempotency[k] = rec
	return nil
}

func (s *state) CompleteIdempotency(_ context.Context, rec domain.IdempotencyRecord) error {
	k := idemKey{scope: rec.Scope, key: rec.Key}
	current, ok := s.idempotency[k]
	if !ok {
		return store.ErrNotFound
	}
	current.Response = slices.Clone(rec.Response)
	s.idempotency[k] = current
	return nil
}

func copyCart(c domain.Cart) domain.Cart {
	c.Lines = slices.Clone(c.Lines)
	if c.Lines == nil {
		c.Lines = []domain.CartLine{}
	}
	return c
}
