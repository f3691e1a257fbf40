package service

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"retailpos/backend/internal/apperr"
	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/events"
	"retailpos/backend/internal/numeric"
	"retailpos/backend/internal/store"
	"retailpos/backend/internal/xid"
)

func (s *Service) CreateSupplierReturn(ctx context.Context, req domain.SupplierReturnCreateRequest) (domain.SupplierReturn, error) {
	supplierID, err := requireID(req.SupplierID, "supplier id")
	if err != nil {
		return domain.SupplierReturn{}, err
	}
	storeID, err := requireID(req.StoreLocationID, "store location id")
	if err != nil {
		return domain.SupplierReturn{}, err
	}
	if len(req.Lines) == 0 {
		return domain.SupplierReturn{}, apperr.Invalid("lines is required")
	}
	seen := make(map[string]struct{}, len(req.Lines))
	for i, line := range req.Lines {
		productID, err := requireID(line.ProductID, "product id")
		if err != nil {
			return domain.SupplierReturn{}, err
		}
		if _, dup := seen[productID]; dup {
			return domain.SupplierReturn{}, apperr.Invalid("duplicate product in supplier return lines: %s", productID)
		}
		seen[productID] = struct{}{}
		if !numeric.QuantityOf(line.Quantity).IsPositive() {
			return domain.SupplierReturn{}, apperr.Invalid("return quantity must be greater than zero")
		}
		if line.UnitCost != nil && numeric.Cost(line.UnitCost).IsNegative() {
			return domain.SupplierReturn{}, apperr.Invalid("unit cost must not be negative")
		}
		req.Lines[i].ProductID = productID
	}

	now := s.clock()
	sr := domain.SupplierReturn{
		ID:              xid.New("sr"),
		ReferenceNumber: xid.Reference("SR"),
		SupplierID:      supplierID,
		StoreLocationID: storeID,
		Status:          domain.SupplierReturnDraft,
		Note:            strings.TrimSpace(req.Note),
		Lines:           make([]domain.SupplierReturnLine, 0, len(req.Lines)),
		CreatedBy:       actorName(ctx),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	err = s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		sr.Lines = sr.Lines[:0]
		if _, err := loadActiveSupplier(ctx, tx, supplierID); err != nil {
			return err
		}
		if _, err := loadActiveLocation(ctx, tx, storeID); err != nil {
			return err
		}
		for _, line := range req.Lines {
			if _, err := tx.GetProduct(ctx, line.ProductID); err != nil {
				return missing(err, "product not found: %s", line.ProductID)
			}
			unitCost, err := returnUnitCost(ctx, tx, storeID, line)
			if err != nil {
				return err
			}
			sr.Lines = append(sr.Lines, domain.SupplierReturnLine{
				ProductID: line.ProductID,
				Quantity:  numeric.QuantityOf(line.Quantity),
				UnitCost:  unitCost,
			})
		}
		return tx.InsertSupplierReturn(ctx, sr)
	})
	if err != nil {
		return domain.SupplierReturn{}, err
	}
	return sr, nil
}

// returnUnitCost defaults to the current weighted average when the caller
// does not name a cost.
func returnUnitCost(ctx context.Context, r store.Reader, storeLocationID string, line domain.SupplierReturnLineRequest) (decimal.Decimal, error) {
	if line.UnitCost != nil {
		return numeric.Cost(line.UnitCost), nil
	}
	rec, err := r.GetCostRecord(ctx, storeLocationID, line.ProductID)
	if errors.Is(err, store.ErrNotFound) {
		return numeric.CostOf(decimal.Zero), nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return numeric.CostOf(rec.WeightedAverageCost), nil
}

func (s *Service) GetSupplierReturn(ctx context.Context, id string) (domain.SupplierReturn, error) {
	var sr domain.SupplierReturn
	err := s.repo.View(ctx, func(ctx context.Context, r store.Reader) error {
		found, err := r.GetSupplierReturn(ctx, id)
		if err != nil {
			return missing(err, "supplier return not found: %s", id)
		}
		sr = *found
		return nil
	})
	return sr, err
}

func (s *Service) ApproveSupplierReturn(ctx context.Context, id string) (domain.SupplierReturn, error) {
	var approved domain.SupplierReturn
	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		sr, err := tx.LockSupplierReturn(ctx, id)
		if err != nil {
			return missing(err, "supplier return not found: %s", id)
		}
		if sr.Status != domain.SupplierReturnDraft {
			return apperr.Conflict("supplier return can only be approved from DRAFT status: %s", id)
		}
		now := s.clock()
		sr.Status = domain.SupplierReturnApproved
		sr.ApprovedBy = actorName(ctx)
		sr.ApprovedAt = timePtr(now)
		sr.UpdatedAt = now
		if err := tx.SaveSupplierReturn(ctx, *sr); err != nil {
			return err
		}
		approved = *sr
		return nil
	})
	return approved, err
}

// PostSupplierReturn ships the goods back. Each product may only go back up
// to what the supplier delivered to the store, less earlier posted returns,
// and never more than is on hand.
func (s *Service) PostSupplierReturn(ctx context.Context, id string) (domain.SupplierReturn, error) {
	var posted domain.SupplierReturn
	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		sr, err := tx.LockSupplierReturn(ctx, id)
		if err != nil {
			return missing(err, "supplier return not found: %s", id)
		}
		if sr.Status != domain.SupplierReturnApproved {
			return apperr.Conflict("supplier return can only be posted from APPROVED status: %s", id)
		}

		now := s.clock()
		for i := range sr.Lines {
			line := &sr.Lines[i]
			received, err := tx.ReceivedFromSupplier(ctx, sr.SupplierID, sr.StoreLocationID, line.ProductID)
			if err != nil {
				return err
			}
			returned, err := tx.ReturnedToSupplier(ctx, sr.SupplierID, sr.StoreLocationID, line.ProductID)
			if err != nil {
				return err
			}
			if line.Quantity.GreaterThan(numeric.QuantityOf(received.Sub(returned))) {
				return apperr.Conflict("return quantity exceeds received-eligible quantity for product: %s", line.ProductID)
			}
			onHand, err := s.ledger.Balance(ctx, tx, sr.StoreLocationID, line.ProductID)
			if err != nil {
				return err
			}
			if line.Quantity.GreaterThan(onHand) {
				return apperr.Conflict("return quantity exceeds current on-hand quantity for product: %s", line.ProductID)
			}

			product, err := tx.GetProduct(ctx, line.ProductID)
			if err != nil {
				return missing(err, "product not found: %s", line.ProductID)
			}
			// Expired lots are exactly what tends to go back to a supplier.
			allocations, err := s.lots.AllocateSale(ctx, tx, *product, sr.StoreLocationID, line.Quantity, true)
			if err != nil {
				return err
			}
			movement, err := s.ledger.Append(ctx, tx, domain.Movement{
				StoreLocationID: sr.StoreLocationID,
				ProductID:       line.ProductID,
				MovementType:    domain.MovementAdjustment,
				QuantityDelta:   line.Quantity.Neg(),
				ReferenceType:   domain.RefSupplierReturn,
				ReferenceNumber: sr.ReferenceNumber,
				CreatedAt:       now,
			})
			if err != nil {
				return err
			}
			if err := linkLots(ctx, tx, movement.ID, allocations); err != nil {
				return err
			}
			line.MovementID = movement.ID
		}

		sr.Status = domain.SupplierReturnPosted
		sr.PostedBy = actorName(ctx)
		sr.PostedAt = timePtr(now)
		sr.UpdatedAt = now
		if err := tx.SaveSupplierReturn(ctx, *sr); err != nil {
			return err
		}
		posted = *sr
		return nil
	})
	if err != nil {
		return domain.SupplierReturn{}, err
	}
	s.publish(ctx, events.TypeStockPosted, posted.StoreLocationID, posted)
	return posted, nil
}
