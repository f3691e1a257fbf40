package service

import (
	"context"
	"strings"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/events"
	"retailpos/backend/internal/ledger"
	"retailpos/backend/internal/lots"
	"retailpos/backend/internal/numeric"
	"retailpos/backend/internal/store"
	"retailpos/backend/internal/xid"
)

// CreateMovement appends a manual RETURN or ADJUSTMENT movement and reports
// the balance right after it.
func (s *Service) CreateMovement(ctx context.Context, req domain.MovementCreateRequest) (domain.MovementEntry, error) {
	req.StoreLocationID = strings.TrimSpace(req.StoreLocationID)
	req.ProductID = strings.TrimSpace(req.ProductID)
	req.ReferenceNumber = strings.TrimSpace(req.ReferenceNumber)
	if err := ledger.ValidateManual(req); err != nil {
		return domain.MovementEntry{}, err
	}

	var entry domain.MovementEntry
	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := loadActiveLocation(ctx, tx, req.StoreLocationID); err != nil {
			return err
		}
		if _, err := tx.GetProduct(ctx, req.ProductID); err != nil {
			return missing(err, "product not found: %s", req.ProductID)
		}
		m, err := s.ledger.Append(ctx, tx, domain.Movement{
			StoreLocationID: req.StoreLocationID,
			ProductID:       req.ProductID,
			MovementType:    req.MovementType,
			QuantityDelta:   req.QuantityDelta,
			ReferenceType:   req.ReferenceType,
			ReferenceNumber: req.ReferenceNumber,
		})
		if err != nil {
			return err
		}
		balance, err := s.ledger.Balance(ctx, tx, m.StoreLocationID, m.ProductID)
		if err != nil {
			return err
		}
		entry = domain.MovementEntry{Movement: m, RunningBalance: balance}
		return nil
	})
	if err != nil {
		return domain.MovementEntry{}, err
	}
	s.publish(ctx, events.TypeStockPosted, entry.StoreLocationID, entry)
	return entry, nil
}

// ListMovements returns the store's movements in creation order, each with
// the running balance of its product.
func (s *Service) ListMovements(ctx context.Context, storeLocationID string, productID string) ([]domain.MovementEntry, error) {
	storeLocationID, err := requireID(storeLocationID, "store location id")
	if err != nil {
		return nil, err
	}
	var entries []domain.MovementEntry
	err = s.repo.View(ctx, func(ctx context.Context, r store.Reader) error {
		if _, err := r.GetStoreLocation(ctx, storeLocationID); err != nil {
			return missing(err, "store location not found: %s", storeLocationID)
		}
		movements, err := r.ListMovements(ctx, storeLocationID, strings.TrimSpace(productID))
		if err != nil {
			return err
		}
		entries = ledger.RunningBalances(movements)
		return nil
	})
	return entries, err
}

func (s *Service) ListBalances(ctx context.Context, storeLocationID string, productID string) ([]domain.StockBalance, error) {
	storeLocationID, err := requireID(storeLocationID, "store location id")
	if err != nil {
		return nil, err
	}
	var balances []domain.StockBalance
	err = s.repo.View(ctx, func(ctx context.Context, r store.Reader) error {
		if _, err := r.GetStoreLocation(ctx, storeLocationID); err != nil {
			return missing(err, "store location not found: %s", storeLocationID)
		}
		balances, err = r.ListBalances(ctx, storeLocationID, strings.TrimSpace(productID))
		return err
	})
	return balances, err
}

// ListLots returns the positive lot balances of a product in FEFO order,
// each tagged with its expiry state as of today.
func (s *Service) ListLots(ctx context.Context, storeLocationID string, productID string) ([]domain.LotBalance, error) {
	storeLocationID, err := requireID(storeLocationID, "store location id")
	if err != nil {
		return nil, err
	}
	productID, err = requireID(productID, "product id")
	if err != nil {
		return nil, err
	}

	var out []domain.LotBalance
	err = s.repo.View(ctx, func(ctx context.Context, r store.Reader) error {
		if _, err := r.GetProduct(ctx, productID); err != nil {
			return missing(err, "product not found: %s", productID)
		}
		balances, err := r.ListLotBalances(ctx, storeLocationID, productID)
		if err != nil {
			return err
		}
		now := s.clock()
		out = make([]domain.LotBalance, 0, len(balances))
		for _, b := range balances {
			if !numeric.QuantityOf(b.QuantityOnHand).IsPositive() {
				continue
			}
			b.ExpiryState = lots.ExpiryState(b.ExpiryDate, now)
			out = append(out, b)
		}
		return nil
	})
	return out, err
}

func linkLots(ctx context.Context, tx store.Tx, movementID string, allocations []domain.LotAllocation) error {
	for _, a := range allocations {
		if err := tx.InsertMovementLot(ctx, domain.MovementLot{
			ID:         xid.New("mvl"),
			MovementID: movementID,
			LotID:      a.LotID,
			Quantity:   a.Quantity,
		}); err != nil {
			return err
		}
	}
	return nil
}
