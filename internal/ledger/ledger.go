// Package ledger appends immutable stock movements and derives balances from
// them. On-hand is always the signed sum of a product's movements at a store.
package ledger

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"retailpos/backend/internal/apperr"
	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/numeric"
	"retailpos/backend/internal/xid"
)

type Store interface {
	// InsertMovement persists m and returns it with its sequence assigned.
	InsertMovement(ctx context.Context, m domain.Movement) (domain.Movement, error)
	SumQuantityOnHand(ctx context.Context, storeLocationID string, productID string) (decimal.Decimal, error)
}

type Ledger struct {
	now func() time.Time
}

func New(now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{now: now}
}

// Append records a movement. Movements are never updated or deleted.
func (l *Ledger) Append(ctx context.Context, st Store, m domain.Movement) (domain.Movement, error) {
	m.QuantityDelta = numeric.QuantityOf(m.QuantityDelta)
	if m.QuantityDelta.IsZero() {
		return domain.Movement{}, apperr.Invalid("quantity delta must not be zero")
	}
	if strings.TrimSpace(m.ReferenceNumber) == "" {
		return domain.Movement{}, apperr.Invalid("reference number is required")
	}
	if m.ID == "" {
		m.ID = xid.New("mov")
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = l.now().UTC()
	}
	return st.InsertMovement(ctx, m)
}

func (l *Ledger) Balance(ctx context.Context, st Store, storeLocationID string, productID string) (decimal.Decimal, error) {
	sum, err := st.SumQuantityOnHand(ctx, storeLocationID, productID)
	if err != nil {
		return decimal.Zero, err
	}
	return numeric.QuantityOf(sum), nil
}

// RunningBalances folds movements, ordered by Seq, into per-product running
// balances. The last entry of each product equals its current balance.
func RunningBalances(movements []domain.Movement) []domain.MovementEntry {
	balances := make(map[string]decimal.Decimal)
	entries := make([]domain.MovementEntry, 0, len(movements))
	for _, m := range movements {
		key := m.StoreLocationID + "|" + m.ProductID
		next := numeric.AddQuantity(balances[key], m.QuantityDelta)
		balances[key] = next
		entries = append(entries, domain.MovementEntry{Movement: m, RunningBalance: next})
	}
	return entries
}

// ValidateManual checks a movement submitted through the ledger API. SALE
// movements are only produced by checkout.
func ValidateManual(req domain.MovementCreateRequest) error {
	if strings.TrimSpace(req.StoreLocationID) == "" || strings.TrimSpace(req.ProductID) == "" {
		return apperr.Invalid("store location and product are required")
	}
	qty := numeric.QuantityOf(req.QuantityDelta)
	if qty.IsZero() {
		return apperr.Invalid("quantity delta must not be zero")
	}
	if strings.TrimSpace(req.ReferenceNumber) == "" {
		return apperr.Invalid("reference number is required")
	}

	switch req.MovementType {
	case domain.MovementSale:
		return apperr.Invalid("SALE movements are system-generated")
	case domain.MovementReturn:
		if req.ReferenceType != domain.RefSaleReturn {
			return apperr.Invalid("RETURN movements require reference type %s", domain.RefSaleReturn)
		}
		if !qty.IsPositive() {
			return apperr.Invalid("RETURN movements must increase stock")
		}
	case domain.MovementAdjustment:
		if req.ReferenceType != domain.RefStockAdjustment {
			return apperr.Invalid("ADJUSTMENT movements require reference type %s", domain.RefStockAdjustment)
		}
	default:
		return apperr.Invalid("unsupported movement type %q", req.MovementType)
	}
	return nil
}
