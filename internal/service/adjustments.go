package service

import (
	"context"
	"strings"

	"retailpos/backend/internal/apperr"
	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/events"
	"retailpos/backend/internal/numeric"
	"retailpos/backend/internal/store"
	"retailpos/backend/internal/xid"
)

const maxReasonCodeLength = 40

// CreateStockAdjustment records a requested correction. Large corrections,
// measured against the configured threshold, wait for a manager.
func (s *Service) CreateStockAdjustment(ctx context.Context, req domain.StockAdjustmentCreateRequest) (domain.StockAdjustment, error) {
	storeID, err := requireID(req.StoreLocationID, "store location id")
	if err != nil {
		return domain.StockAdjustment{}, err
	}
	productID, err := requireID(req.ProductID, "product id")
	if err != nil {
		return domain.StockAdjustment{}, err
	}
	reason := strings.ToUpper(strings.TrimSpace(req.ReasonCode))
	if reason == "" {
		return domain.StockAdjustment{}, apperr.Invalid("reason code is required")
	}
	if len(reason) > maxReasonCodeLength {
		return domain.StockAdjustment{}, apperr.Invalid("reason code must be at most %d characters", maxReasonCodeLength)
	}
	delta := numeric.QuantityOf(req.QuantityDelta)
	if delta.IsZero() {
		return domain.StockAdjustment{}, apperr.Invalid("quantity delta must not be zero")
	}

	now := s.clock()
	approvalRequired := delta.Abs().GreaterThanOrEqual(s.opts.AdjustmentApprovalThreshold)
	adj := domain.StockAdjustment{
		ID:               xid.New("adj"),
		ReferenceNumber:  xid.Reference("ADJ"),
		StoreLocationID:  storeID,
		ProductID:        productID,
		QuantityDelta:    delta,
		ReasonCode:       reason,
		Note:             strings.TrimSpace(req.Note),
		Status:           domain.AdjustmentApproved,
		ApprovalRequired: approvalRequired,
		RequestedBy:      actorName(ctx),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if approvalRequired {
		adj.Status = domain.AdjustmentPendingApproval
	}

	err = s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := loadActiveLocation(ctx, tx, storeID); err != nil {
			return err
		}
		product, err := tx.GetProduct(ctx, productID)
		if err != nil {
			return missing(err, "product not found: %s", productID)
		}
		if !numeric.FitsScale(delta, product.QuantityPrecision) {
			return apperr.Invalid("quantity delta exceeds %d decimal places for product %s", product.QuantityPrecision, product.ID)
		}
		return tx.InsertStockAdjustment(ctx, adj)
	})
	if err != nil {
		return domain.StockAdjustment{}, err
	}
	return adj, nil
}

func (s *Service) GetStockAdjustment(ctx context.Context, id string) (domain.StockAdjustment, error) {
	var adj domain.StockAdjustment
	err := s.repo.View(ctx, func(ctx context.Context, r store.Reader) error {
		found, err := r.GetStockAdjustment(ctx, id)
		if err != nil {
			return missing(err, "stock adjustment not found: %s", id)
		}
		adj = *found
		return nil
	})
	return adj, err
}

func (s *Service) ApproveStockAdjustment(ctx context.Context, id string) (domain.StockAdjustment, error) {
	if err := requireManager(ctx, "approve stock adjustments"); err != nil {
		return domain.StockAdjustment{}, err
	}
	var approved domain.StockAdjustment
	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		adj, err := tx.LockStockAdjustment(ctx, id)
		if err != nil {
			return missing(err, "stock adjustment not found: %s", id)
		}
		switch {
		case !adj.ApprovalRequired:
			return apperr.Conflict("stock adjustment does not require manager approval: %s", id)
		case adj.Status == domain.AdjustmentPosted:
			return apperr.Conflict("stock adjustment is already posted: %s", id)
		case adj.Status != domain.AdjustmentPendingApproval:
			return apperr.Conflict("stock adjustment is not pending approval: %s", id)
		}
		now := s.clock()
		adj.Status = domain.AdjustmentApproved
		adj.ApprovedBy = actorName(ctx)
		adj.ApprovedAt = timePtr(now)
		adj.UpdatedAt = now
		if err := tx.SaveStockAdjustment(ctx, *adj); err != nil {
			return err
		}
		approved = *adj
		return nil
	})
	return approved, err
}

func (s *Service) PostStockAdjustment(ctx context.Context, id string) (domain.StockAdjustment, error) {
	var posted domain.StockAdjustment
	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		adj, err := tx.LockStockAdjustment(ctx, id)
		if err != nil {
			return missing(err, "stock adjustment not found: %s", id)
		}
		switch adj.Status {
		case domain.AdjustmentPosted:
			return apperr.Conflict("stock adjustment is already posted: %s", id)
		case domain.AdjustmentPendingApproval:
			return apperr.Conflict("stock adjustment requires manager approval before posting: %s", id)
		case domain.AdjustmentApproved:
		default:
			return apperr.Conflict("stock adjustment is not in postable status: %s", id)
		}

		now := s.clock()
		movement, err := s.ledger.Append(ctx, tx, domain.Movement{
			StoreLocationID: adj.StoreLocationID,
			ProductID:       adj.ProductID,
			MovementType:    domain.MovementAdjustment,
			QuantityDelta:   adj.QuantityDelta,
			ReferenceType:   domain.RefStockAdjustment,
			ReferenceNumber: adj.ReferenceNumber,
			CreatedAt:       now,
		})
		if err != nil {
			return err
		}
		adj.Status = domain.AdjustmentPosted
		adj.MovementID = movement.ID
		adj.PostedBy = actorName(ctx)
		adj.PostedAt = timePtr(now)
		adj.UpdatedAt = now
		if err := tx.SaveStockAdjustment(ctx, *adj); err != nil {
			return err
		}
		posted = *adj
		return nil
	})
	if err != nil {
		return domain.StockAdjustment{}, err
	}
	s.publish(ctx, events.TypeStockPosted, posted.StoreLocationID, posted)
	return posted, nil
}
