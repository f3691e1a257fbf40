// Package lots allocates lot-tracked quantities on receipt, sale and return.
// Every method expects to run inside the caller's unit of work; lot balances
// are read through locking accessors and written back before it commits.
package lots

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"retailpos/backend/internal/apperr"
	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/numeric"
	"retailpos/backend/internal/xid"
)

const maxLotCodeLength = 80

type Store interface {
	// EnsureLot returns the lot with the same store, product, code and expiry,
	// creating it from lot when missing.
	EnsureLot(ctx context.Context, lot domain.InventoryLot) (domain.InventoryLot, error)
	GetLot(ctx context.Context, lotID string) (*domain.InventoryLot, error)
	// LockLotBalance returns zero for a lot without a balance row.
	LockLotBalance(ctx context.Context, lotID string) (decimal.Decimal, error)
	SaveLotBalance(ctx context.Context, balance domain.LotBalance) error
	// LockPositiveLotBalances returns balances > 0 in FEFO order.
	LockPositiveLotBalances(ctx context.Context, storeLocationID string, productID string) ([]domain.LotBalance, error)
	// SoldLotsBySaleLine returns the per-movement lot links of SALE movements
	// for the line, in allocation order.
	SoldLotsBySaleLine(ctx context.Context, saleLineID string) ([]domain.LotQuantity, error)
	ReturnedLotsBySaleLine(ctx context.Context, saleLineID string) ([]domain.LotQuantity, error)
}

type Allocator struct {
	now func() time.Time
}

func NewAllocator(now func() time.Time) *Allocator {
	if now == nil {
		now = time.Now
	}
	return &Allocator{now: now}
}

// AllocateReceipt adds received quantity to the lots named in inputs.
func (a *Allocator) AllocateReceipt(ctx context.Context, st Store, product domain.Product, storeLocationID string, receivedQty decimal.Decimal, inputs []domain.LotInput) ([]domain.LotAllocation, error) {
	receivedQty = numeric.QuantityOf(receivedQty)
	if !product.LotTrackingEnabled {
		if len(inputs) > 0 {
			return nil, apperr.Invalid("lot details are not allowed for product %s without lot tracking", product.ID)
		}
		return []domain.LotAllocation{}, nil
	}
	if len(inputs) == 0 {
		return nil, apperr.Invalid("lot details are required for lot-tracked product %s", product.ID)
	}

	merged, err := mergeLotInputs(inputs)
	if err != nil {
		return nil, err
	}
	total := decimal.Zero
	for _, in := range merged {
		total = total.Add(in.Quantity)
	}
	if !numeric.QuantityOf(total).Equal(receivedQty) {
		return nil, apperr.Invalid("lot quantities %s must equal received quantity %s for product %s",
			numeric.QuantityOf(total).StringFixed(numeric.QuantityScale), receivedQty.StringFixed(numeric.QuantityScale), product.ID)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if c := compareExpiry(merged[i].ExpiryDate, merged[j].ExpiryDate); c != 0 {
			return c < 0
		}
		return merged[i].LotCode < merged[j].LotCode
	})

	now := a.now().UTC()
	allocations := make([]domain.LotAllocation, 0, len(merged))
	for _, in := range merged {
		lot, err := st.EnsureLot(ctx, domain.InventoryLot{
			ID:              xid.New("lot"),
			StoreLocationID: storeLocationID,
			ProductID:       product.ID,
			LotCode:         in.LotCode,
			ExpiryDate:      in.ExpiryDate,
			CreatedAt:       now,
		})
		if err != nil {
			return nil, err
		}
		current, err := st.LockLotBalance(ctx, lot.ID)
		if err != nil {
			return nil, err
		}
		if err := st.SaveLotBalance(ctx, balanceOf(lot, numeric.AddQuantity(current, in.Quantity))); err != nil {
			return nil, err
		}
		allocations = append(allocations, domain.LotAllocation{
			LotID:      lot.ID,
			LotCode:    lot.LotCode,
			ExpiryDate: lot.ExpiryDate,
			Quantity:   in.Quantity,
		})
	}
	return allocations, nil
}

// AllocateSale consumes quantity from positive lot balances in FEFO order.
// Expired lots are skipped unless allowExpired is set.
func (a *Allocator) AllocateSale(ctx context.Context, st Store, product domain.Product, storeLocationID string, quantity decimal.Decimal, allowExpired bool) ([]domain.LotAllocation, error) {
	if !product.LotTrackingEnabled {
		return []domain.LotAllocation{}, nil
	}
	quantity = numeric.QuantityOf(quantity)
	if !quantity.IsPositive() {
		return nil, apperr.Invalid("sale quantity must be greater than zero")
	}

	balances, err := st.LockPositiveLotBalances(ctx, storeLocationID, product.ID)
	if err != nil {
		return nil, err
	}
	if len(balances) == 0 {
		return nil, apperr.Conflict("no lot stock available for product %s", product.ID)
	}

	today := startOfDay(a.now())
	remaining := quantity
	skippedExpired := false
	allocations := make([]domain.LotAllocation, 0, len(balances))
	for _, bal := range balances {
		if !remaining.IsPositive() {
			break
		}
		if isExpired(bal.ExpiryDate, today) && !allowExpired {
			skippedExpired = true
			continue
		}
		take := numeric.MinQuantity(bal.QuantityOnHand, remaining)
		if !take.IsPositive() {
			continue
		}
		bal.QuantityOnHand = numeric.QuantityOf(bal.QuantityOnHand.Sub(take))
		if err := st.SaveLotBalance(ctx, bal); err != nil {
			return nil, err
		}
		remaining = numeric.QuantityOf(remaining.Sub(take))
		allocations = append(allocations, domain.LotAllocation{
			LotID:      bal.LotID,
			LotCode:    bal.LotCode,
			ExpiryDate: bal.ExpiryDate,
			Quantity:   take,
		})
	}

	if remaining.IsPositive() {
		if skippedExpired {
			return nil, apperr.Conflict("insufficient non-expired lot stock for product %s", product.ID)
		}
		return nil, apperr.Conflict("insufficient lot stock for product %s", product.ID)
	}
	return allocations, nil
}

// AllocateReturn restores returned quantity to the lots the sale line was
// originally drawn from, never more per lot than was sold minus already returned.
func (a *Allocator) AllocateReturn(ctx context.Context, st Store, product domain.Product, saleLineID string, quantity decimal.Decimal) ([]domain.LotAllocation, error) {
	if !product.LotTrackingEnabled {
		return []domain.LotAllocation{}, nil
	}
	quantity = numeric.QuantityOf(quantity)
	if !quantity.IsPositive() {
		return nil, apperr.Invalid("return quantity must be greater than zero")
	}

	soldRows, err := st.SoldLotsBySaleLine(ctx, saleLineID)
	if err != nil {
		return nil, err
	}
	sold := mergeByLot(soldRows)
	if len(sold) == 0 {
		return nil, apperr.Conflict("missing lot traceability for sale line %s", saleLineID)
	}
	returnedRows, err := st.ReturnedLotsBySaleLine(ctx, saleLineID)
	if err != nil {
		return nil, err
	}
	returned := make(map[string]decimal.Decimal, len(returnedRows))
	for _, row := range mergeByLot(returnedRows) {
		returned[row.LotID] = row.Quantity
	}

	remaining := quantity
	allocations := make([]domain.LotAllocation, 0, len(sold))
	for _, s := range sold {
		if !remaining.IsPositive() {
			break
		}
		outstanding := numeric.QuantityOf(s.Quantity.Sub(returned[s.LotID]))
		if !outstanding.IsPositive() {
			continue
		}
		take := numeric.MinQuantity(outstanding, remaining)

		lot, err := st.GetLot(ctx, s.LotID)
		if err != nil {
			return nil, err
		}
		current, err := st.LockLotBalance(ctx, s.LotID)
		if err != nil {
			return nil, err
		}
		if err := st.SaveLotBalance(ctx, balanceOf(*lot, numeric.AddQuantity(current, take))); err != nil {
			return nil, err
		}
		remaining = numeric.QuantityOf(remaining.Sub(take))
		allocations = append(allocations, domain.LotAllocation{
			LotID:      lot.ID,
			LotCode:    lot.LotCode,
			ExpiryDate: lot.ExpiryDate,
			Quantity:   take,
		})
	}

	if remaining.IsPositive() {
		return nil, apperr.Conflict("return quantity exceeds lot-traceable sold quantity for sale line %s", saleLineID)
	}
	return allocations, nil
}

// ExpiryState classifies a lot for display.
func ExpiryState(expiry *time.Time, now time.Time) string {
	if expiry == nil {
		return domain.ExpiryStateNone
	}
	if isExpired(expiry, startOfDay(now)) {
		return domain.ExpiryStateExpired
	}
	return domain.ExpiryStateActive
}

// CompareFEFO orders lot balances by expiry (no expiry last), lot code, then id.
func CompareFEFO(a, b domain.LotBalance) int {
	if c := compareExpiry(a.ExpiryDate, b.ExpiryDate); c != 0 {
		return c
	}
	if c := strings.Compare(a.LotCode, b.LotCode); c != 0 {
		return c
	}
	return strings.Compare(a.LotID, b.LotID)
}

// NormalizeLotCode trims and uppercases a lot code.
func NormalizeLotCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// NormalizeExpiry truncates an expiry timestamp to its UTC date.
func NormalizeExpiry(expiry *time.Time) *time.Time {
	if expiry == nil {
		return nil
	}
	day := startOfDay(*expiry)
	return &day
}

func mergeLotInputs(inputs []domain.LotInput) ([]domain.LotInput, error) {
	type lotKey struct {
		code   string
		expiry string
	}
	merged := make([]domain.LotInput, 0, len(inputs))
	index := make(map[lotKey]int, len(inputs))
	for _, in := range inputs {
		code := NormalizeLotCode(in.LotCode)
		if code == "" {
			return nil, apperr.Invalid("lot code is required")
		}
		if len(code) > maxLotCodeLength {
			return nil, apperr.Invalid("lot code must be at most %d characters", maxLotCodeLength)
		}
		qty := numeric.QuantityOf(in.Quantity)
		if !qty.IsPositive() {
			return nil, apperr.Invalid("lot quantity must be greater than zero for lot %s", code)
		}
		expiry := NormalizeExpiry(in.ExpiryDate)
		key := lotKey{code: code}
		if expiry != nil {
			key.expiry = expiry.Format(time.DateOnly)
		}
		if i, ok := index[key]; ok {
			merged[i].Quantity = numeric.AddQuantity(merged[i].Quantity, qty)
			continue
		}
		index[key] = len(merged)
		merged = append(merged, domain.LotInput{LotCode: code, ExpiryDate: expiry, Quantity: qty})
	}
	return merged, nil
}

// mergeByLot sums rows per lot keeping first-seen order.
func mergeByLot(rows []domain.LotQuantity) []domain.LotQuantity {
	merged := make([]domain.LotQuantity, 0, len(rows))
	index := make(map[string]int, len(rows))
	for _, row := range rows {
		if i, ok := index[row.LotID]; ok {
			merged[i].Quantity = numeric.AddQuantity(merged[i].Quantity, row.Quantity)
			continue
		}
		index[row.LotID] = len(merged)
		merged = append(merged, domain.LotQuantity{LotID: row.LotID, Quantity: numeric.QuantityOf(row.Quantity)})
	}
	return merged
}

func balanceOf(lot domain.InventoryLot, qty decimal.Decimal) domain.LotBalance {
	return domain.LotBalance{
		LotID:           lot.ID,
		StoreLocationID: lot.StoreLocationID,
		ProductID:       lot.ProductID,
		LotCode:         lot.LotCode,
		ExpiryDate:      lot.ExpiryDate,
		QuantityOnHand:  qty,
	}
}

func compareExpiry(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	case a.Before(*b):
		return -1
	case a.After(*b):
		return 1
	}
	return 0
}

func isExpired(expiry *time.Time, today time.Time) bool {
	return expiry != nil && startOfDay(*expiry).Before(today)
}

func startOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
