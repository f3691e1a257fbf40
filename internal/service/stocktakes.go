package service

import (
	"context"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"retailpos/backend/internal/apperr"
	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/events"
	"retailpos/backend/internal/numeric"
	"retailpos/backend/internal/store"
	"retailpos/backend/internal/xid"
)

func (s *Service) CreateStocktake(ctx context.Context, req domain.StocktakeCreateRequest) (domain.Stocktake, error) {
	storeID, err := requireID(req.StoreLocationID, "store location id")
	if err != nil {
		return domain.Stocktake{}, err
	}
	if len(req.ProductIDs) == 0 {
		return domain.Stocktake{}, apperr.Invalid("product ids is required")
	}
	productIDs := make([]string, 0, len(req.ProductIDs))
	for _, raw := range req.ProductIDs {
		id, err := requireID(raw, "product id")
		if err != nil {
			return domain.Stocktake{}, err
		}
		if slices.Contains(productIDs, id) {
			return domain.Stocktake{}, apperr.Invalid("duplicate product in stocktake: %s", id)
		}
		productIDs = append(productIDs, id)
	}
	slices.Sort(productIDs)

	now := s.clock()
	st := domain.Stocktake{
		ID:              xid.New("stk"),
		ReferenceNumber: xid.Reference("STK"),
		StoreLocationID: storeID,
		Status:          domain.StocktakeDraft,
		Note:            strings.TrimSpace(req.Note),
		Lines:           make([]domain.StocktakeLine, 0, len(productIDs)),
		CreatedBy:       actorName(ctx),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	for _, id := range productIDs {
		st.Lines = append(st.Lines, domain.StocktakeLine{
			ProductID:        id,
			ExpectedQuantity: numeric.QuantityOf(decimal.Zero),
		})
	}

	err = s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := loadActiveLocation(ctx, tx, storeID); err != nil {
			return err
		}
		for _, id := range productIDs {
			if _, err := tx.GetProduct(ctx, id); err != nil {
				return missing(err, "product not found: %s", id)
			}
		}
		return tx.InsertStocktake(ctx, st)
	})
	if err != nil {
		return domain.Stocktake{}, err
	}
	return st, nil
}

func (s *Service) GetStocktake(ctx context.Context, id string) (domain.Stocktake, error) {
	var st domain.Stocktake
	err := s.repo.View(ctx, func(ctx context.Context, r store.Reader) error {
		found, err := r.GetStocktake(ctx, id)
		if err != nil {
			return missing(err, "stocktake not found: %s", id)
		}
		st = *found
		return nil
	})
	return st, err
}

// StartStocktake freezes the expected quantity of every product from the
// ledger. Counts are later compared against this snapshot, not live stock.
func (s *Service) StartStocktake(ctx context.Context, id string) (domain.Stocktake, error) {
	var started domain.Stocktake
	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		st, err := tx.LockStocktake(ctx, id)
		if err != nil {
			return missing(err, "stocktake not found: %s", id)
		}
		if st.Status != domain.StocktakeDraft {
			return apperr.Conflict("stocktake can only be started from DRAFT status: %s", id)
		}
		for i := range st.Lines {
			expected, err := s.ledger.Balance(ctx, tx, st.StoreLocationID, st.Lines[i].ProductID)
			if err != nil {
				return err
			}
			st.Lines[i].ExpectedQuantity = expected
		}
		now := s.clock()
		st.Status = domain.StocktakeStarted
		st.StartedBy = actorName(ctx)
		st.StartedAt = timePtr(now)
		st.UpdatedAt = now
		if err := tx.SaveStocktake(ctx, *st); err != nil {
			return err
		}
		started = *st
		return nil
	})
	return started, err
}

func (s *Service) FinalizeStocktake(ctx context.Context, id string, req domain.StocktakeFinalizeRequest) (domain.Stocktake, error) {
	counts, err := normalizeCounts(req.Counts)
	if err != nil {
		return domain.Stocktake{}, err
	}

	var finalized domain.Stocktake
	err = s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		st, err := tx.LockStocktake(ctx, id)
		if err != nil {
			return missing(err, "stocktake not found: %s", id)
		}
		if st.Status != domain.StocktakeStarted {
			return apperr.Conflict("stocktake can only be finalized from STARTED status: %s", id)
		}
		if len(counts) != len(st.Lines) {
			return apperr.Invalid("finalize lines must include exactly the stocktake products")
		}

		now := s.clock()
		for i := range st.Lines {
			line := &st.Lines[i]
			counted, ok := counts[line.ProductID]
			if !ok {
				return apperr.Invalid("finalize lines must include exactly the stocktake products")
			}
			product, err := tx.GetProduct(ctx, line.ProductID)
			if err != nil {
				return missing(err, "product not found: %s", line.ProductID)
			}
			if !numeric.FitsScale(counted, product.QuantityPrecision) {
				return apperr.Invalid("counted quantity exceeds %d decimal places for product %s", product.QuantityPrecision, product.ID)
			}
			variance := numeric.QuantityOf(counted.Sub(line.ExpectedQuantity))
			line.CountedQuantity = numeric.Ptr(numeric.QuantityOf(counted))
			line.VarianceQuantity = numeric.Ptr(variance)
			if variance.IsZero() {
				continue
			}
			movement, err := s.ledger.Append(ctx, tx, domain.Movement{
				StoreLocationID: st.StoreLocationID,
				ProductID:       line.ProductID,
				MovementType:    domain.MovementAdjustment,
				QuantityDelta:   variance,
				ReferenceType:   domain.RefStocktake,
				ReferenceNumber: st.ReferenceNumber,
				CreatedAt:       now,
			})
			if err != nil {
				return err
			}
			line.MovementID = movement.ID
		}

		st.Status = domain.StocktakeFinalized
		st.FinalizedBy = actorName(ctx)
		st.FinalizedAt = timePtr(now)
		st.UpdatedAt = now
		if err := tx.SaveStocktake(ctx, *st); err != nil {
			return err
		}
		finalized = *st
		return nil
	})
	if err != nil {
		return domain.Stocktake{}, err
	}
	s.publish(ctx, events.TypeStockPosted, finalized.StoreLocationID, finalized)
	return finalized, nil
}

func normalizeCounts(counts []domain.StocktakeCountRequest) (map[string]decimal.Decimal, error) {
	if len(counts) == 0 {
		return nil, apperr.Invalid("counts is required")
	}
	out := make(map[string]decimal.Decimal, len(counts))
	for _, c := range counts {
		productID, err := requireID(c.ProductID, "product id")
		if err != nil {
			return nil, err
		}
		if _, dup := out[productID]; dup {
			return nil, apperr.Invalid("duplicate product in stocktake counts: %s", productID)
		}
		if c.CountedQuantity.IsNegative() {
			return nil, apperr.Invalid("counted quantity must not be negative for product: %s", productID)
		}
		out[productID] = c.CountedQuantity
	}
	return out, nil
}
