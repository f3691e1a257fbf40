package memory

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/lots"
	"retailpos/backend/internal/numeric"
	"retailpos/backend/internal/store"
)

func (s *state) InsertMovement(_ context.Context, m domain.Movement) (domain.Movement, error) {
	m.Seq = s.nextSeq()
	s.movements = append(s.movements, m)
	return m, nil
}

func (s *state) SumQuantityOnHand(_ context.Context, storeLocationID string, productID string) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, m := range s.movements {
		if m.StoreLocationID == storeLocationID && m.ProductID == productID {
			total = total.Add(m.QuantityDelta)
		}
	}
	return numeric.QuantityOf(total), nil
}

func (s *state) ListMovements(_ context.Context, storeLocationID string, productID string) ([]domain.Movement, error) {
	out := make([]domain.Movement, 0)
	for _, m := range s.movements {
		if m.StoreLocationID != storeLocationID {
			continue
		}
		if productID != "" && m.ProductID != productID {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *state) ListBalances(_ context.Context, storeLocationID string, productID string) ([]domain.StockBalance, error) {
	totals := make(map[string]decimal.Decimal)
	for _, m := range s.movements {
		if m.StoreLocationID != storeLocationID {
			continue
		}
		if productID != "" && m.ProductID != productID {
			continue
		}
		totals[m.ProductID] = totals[m.ProductID].Add(m.QuantityDelta)
	}

	balances := make([]domain.StockBalance, 0, len(totals))
	for product, qty := range totals {
		bal := domain.StockBalance{
			StoreLocationID: storeLocationID,
			ProductID:       product,
			QuantityOnHand:  numeric.QuantityOf(qty),
		}
		if rec, ok := s.costs[productKey{storeLocationID, product}]; ok {
			bal.WeightedAverageCost = rec.WeightedAverageCost
			bal.LastCost = rec.LastCost
		}
		balances = append(balances, bal)
	}
	slices.SortFunc(balances, func(a, b domain.StockBalance) int {
		return strings.Compare(a.ProductID, b.ProductID)
	})
	return balances, nil
}

func (s *state) ListLotBalances(_ context.Context, storeLocationID string, productID string) ([]domain.LotBalance, error) {
	out := make([]domain.LotBalance, 0)
	for id, qty := range s.lotBalances {
		lot := s.lots[id]
		if lot.StoreLocationID != storeLocationID || !qty.IsPositive() {
			continue
		}
		if productID != "" && lot.ProductID != productID {
			continue
		}
		out = append(out, lotBalance(lot, qty))
	}
	slices.SortFunc(out, func(a, b domain.LotBalance) int {
		if c := strings.Compare(a.ProductID, b.ProductID); c != 0 {
			return c
		}
		return lots.CompareFEFO(a, b)
	})
	return out, nil
}

func (s *state) LockPositiveLotBalances(ctx context.Context, storeLocationID string, productID string) ([]domain.LotBalance, error) {
	return s.ListLotBalances(ctx, storeLocationID, productID)
}

func (s *state) EnsureLot(_ context.Context, lot domain.InventoryLot) (domain.InventoryLot, error) {
	for _, existing := range s.lots {
		if existing.StoreLocationID == lot.StoreLocationID &&
			existing.ProductID == lot.ProductID &&
			existing.LotCode == lot.LotCode &&
			sameExpiry(existing.ExpiryDate, lot.ExpiryDate) {
			return existing, nil
		}
	}
	s.lots[lot.ID] = lot
	return lot, nil
}

func (s *state) GetLot(_ context.Context, lotID string) (*domain.InventoryLot, error) {
	lot, ok := s.lots[lotID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &lot, nil
}

func (s *state) LockLotBalance(_ context.Context, lotID string) (decimal.Decimal, error) {
	if _, ok := s.lots[lotID]; !ok {
		return decimal.Zero, store.ErrNotFound
	}
	return s.lotBalances[lotID], nil
}

func (s *state) SaveLotBalance(_ context.Context, balance domain.LotBalance) error {
	if _, ok := s.lots[balance.LotID]; !ok {
		return store.ErrNotFound
	}
	s.lotBalances[balance.LotID] = numeric.QuantityOf(balance.QuantityOnHand)
	return nil
}

func (s *state) InsertMovementLot(_ context.Context, link domain.MovementLot) error {
	link.Seq = s.nextSeq()
	s.movementLots = append(s.movementLots, link)
	return nil
}

func (s *state) SoldLotsBySaleLine(_ context.Context, saleLineID string) ([]domain.LotQuantity, error) {
	return s.lotLinksFor(saleLineID, domain.MovementSale), nil
}

func (s *state) ReturnedLotsBySaleLine(_ context.Context, saleLineID string) ([]domain.LotQuantity, error) {
	return s.lotLinksFor(saleLineID, domain.MovementReturn), nil
}

func (s *state) lotLinksFor(saleLineID string, movementType domain.MovementType) []domain.LotQuantity {
	movementIDs := make(map[string]struct{})
	for _, m := range s.movements {
		if m.SaleLineID == saleLineID && m.MovementType == movementType {
			movementIDs[m.ID] = struct{}{}
		}
	}
	out := make([]domain.LotQuantity, 0)
	for _, link := range s.movementLots {
		if _, ok := movementIDs[link.MovementID]; ok {
			out = append(out, domain.LotQuantity{LotID: link.LotID, Quantity: link.Quantity})
		}
	}
	return out
}

func (s *state) ReturnedQuantityBySaleLine(_ context.Context, saleLineID string) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, m := range s.movements {
		if m.SaleLineID == saleLineID && m.MovementType == domain.MovementReturn {
			total = total.Add(m.QuantityDelta)
		}
	}
	return numeric.QuantityOf(total), nil
}

func (s *state) GetCostRecord(_ context.Context, storeLocationID string, productID string) (*domain.CostRecord, error) {
	rec, ok := s.costs[productKey{storeLocationID, productID}]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &rec, nil
}

func (s *state) LockCostRecord(_ context.Context, storeLocationID string, productID string) (*domain.CostRecord, error) {
	k := productKey{storeLocationID, productID}
	rec, ok := s.costs[k]
	if !ok {
		rec = domain.CostRecord{StoreLocationID: storeLocationID, ProductID: productID}
		s.costs[k] = rec
	}
	return &rec, nil
}

func (s *state) SaveCostRecord(_ context.Context, rec domain.CostRecord) error {
	s.costs[productKey{rec.StoreLocationID, rec.ProductID}] = rec
	return nil
}

func lotBalance(lot domain.InventoryLot, qty decimal.Decimal) domain.LotBalance {
	return domain.LotBalance{
		LotID:           lot.ID,
		StoreLocationID: lot.StoreLocationID,
		ProductID:       lot.ProductID,
		LotCode:         lot.LotCode,
		ExpiryDate:      lot.ExpiryDate,
		QuantityOnHand:  qty,
	}
}

func sameExpiry(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
