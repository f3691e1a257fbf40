package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"retailpos/backend/internal/apperr"
	"retailpos/backend/internal/costing"
	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/events"
	"retailpos/backend/internal/numeric"
	"retailpos/backend/internal/store"
	"retailpos/backend/internal/xid"
)

func (s *Service) CreatePurchaseOrder(ctx context.Context, req domain.PurchaseOrderCreateRequest) (domain.PurchaseOrder, error) {
	supplierID, err := requireID(req.SupplierID, "supplier id")
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	storeID, err := requireID(req.StoreLocationID, "store location id")
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	if len(req.Lines) == 0 {
		return domain.PurchaseOrder{}, apperr.Invalid("lines is required")
	}

	now := s.clock()
	po := domain.PurchaseOrder{
		ID:              xid.New("po"),
		ReferenceNumber: xid.Reference("PO"),
		SupplierID:      supplierID,
		StoreLocationID: storeID,
		Status:          domain.PurchaseOrderDraft,
		Note:            strings.TrimSpace(req.Note),
		Lines:           make([]domain.PurchaseOrderLine, 0, len(req.Lines)),
		Receipts:        []domain.GoodsReceipt{},
		CreatedBy:       actorName(ctx),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	seen := make(map[string]struct{}, len(req.Lines))
	for _, line := range req.Lines {
		productID, err := requireID(line.ProductID, "product id")
		if err != nil {
			return domain.PurchaseOrder{}, err
		}
		if _, dup := seen[productID]; dup {
			return domain.PurchaseOrder{}, apperr.Invalid("duplicate product in purchase order lines: %s", productID)
		}
		seen[productID] = struct{}{}
		ordered := numeric.QuantityOf(line.OrderedQuantity)
		if !ordered.IsPositive() {
			return domain.PurchaseOrder{}, apperr.Invalid("ordered quantity must be greater than zero")
		}
		cost := numeric.CostOf(line.UnitCost)
		if cost.IsNegative() {
			return domain.PurchaseOrder{}, apperr.Invalid("unit cost must not be negative")
		}
		po.Lines = append(po.Lines, domain.PurchaseOrderLine{
			ProductID:        productID,
			OrderedQuantity:  ordered,
			ReceivedQuantity: numeric.QuantityOf(decimal.Zero),
			UnitCost:         cost,
		})
	}

	err = s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := loadActiveSupplier(ctx, tx, supplierID); err != nil {
			return err
		}
		if _, err := loadActiveLocation(ctx, tx, storeID); err != nil {
			return err
		}
		for _, line := range po.Lines {
			if _, err := tx.GetProduct(ctx, line.ProductID); err != nil {
				return missing(err, "product not found: %s", line.ProductID)
			}
		}
		return tx.InsertPurchaseOrder(ctx, po)
	})
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	return po, nil
}

func (s *Service) GetPurchaseOrder(ctx context.Context, id string) (domain.PurchaseOrder, error) {
	var po domain.PurchaseOrder
	err := s.repo.View(ctx, func(ctx context.Context, r store.Reader) error {
		found, err := r.GetPurchaseOrder(ctx, id)
		if err != nil {
			return missing(err, "purchase order not found: %s", id)
		}
		po = *found
		return nil
	})
	return po, err
}

func (s *Service) ApprovePurchaseOrder(ctx context.Context, id string) (domain.PurchaseOrder, error) {
	var approved domain.PurchaseOrder
	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		po, err := tx.LockPurchaseOrder(ctx, id)
		if err != nil {
			return missing(err, "purchase order not found: %s", id)
		}
		if po.Status != domain.PurchaseOrderDraft {
			return apperr.Conflict("purchase order can only be approved from DRAFT status: %s", id)
		}
		now := s.clock()
		po.Status = domain.PurchaseOrderApproved
		po.ApprovedBy = actorName(ctx)
		po.ApprovedAt = timePtr(now)
		po.UpdatedAt = now
		if err := tx.SavePurchaseOrder(ctx, *po); err != nil {
			return err
		}
		approved = *po
		return nil
	})
	return approved, err
}

// ReceivePurchaseOrder books received goods: one PURCHASE_RECEIPT movement
// per product, lot balances for lot-tracked products and a new weighted
// average cost, all in the same unit of work.
func (s *Service) ReceivePurchaseOrder(ctx context.Context, id string, req domain.PurchaseOrderReceiveRequest) (domain.PurchaseOrder, error) {
	lines, err := normalizeReceiveLines(req.Lines)
	if err != nil {
		return domain.PurchaseOrder{}, err
	}

	var (
		received domain.PurchaseOrder
		receipt  domain.GoodsReceipt
	)
	err = s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		po, err := tx.LockPurchaseOrder(ctx, id)
		if err != nil {
			return missing(err, "purchase order not found: %s", id)
		}
		if po.Status != domain.PurchaseOrderApproved && po.Status != domain.PurchaseOrderPartiallyReceived {
			return apperr.Conflict("purchase order can only be received from APPROVED or PARTIALLY_RECEIVED status: %s", id)
		}

		now := s.clock()
		receipt = domain.GoodsReceipt{
			ID:              xid.New("grc"),
			PurchaseOrderID: po.ID,
			ReferenceNumber: xid.Reference("GR"),
			ReceivedBy:      actorName(ctx),
			Note:            strings.TrimSpace(req.Note),
			Lines:           make([]domain.GoodsReceiptLine, 0, len(lines)),
			ReceivedAt:      now,
		}

		for _, in := range lines {
			i := slices.IndexFunc(po.Lines, func(l domain.PurchaseOrderLine) bool { return l.ProductID == in.ProductID })
			if i < 0 {
				return apperr.Invalid("product is not part of purchase order: %s", in.ProductID)
			}
			poLine := &po.Lines[i]
			remaining := numeric.QuantityOf(poLine.OrderedQuantity.Sub(poLine.ReceivedQuantity))
			if in.ReceivedQuantity.GreaterThan(remaining) {
				return apperr.Conflict("received quantity exceeds remaining ordered quantity for product: %s", in.ProductID)
			}
			unitCost := poLine.UnitCost
			if in.UnitCost != nil {
				unitCost = numeric.Cost(in.UnitCost)
			}

			line, err := s.receiveLine(ctx, tx, po.StoreLocationID, receipt.ReferenceNumber, in, unitCost, now)
			if err != nil {
				return err
			}
			poLine.ReceivedQuantity = numeric.AddQuantity(poLine.ReceivedQuantity, in.ReceivedQuantity)
			receipt.Lines = append(receipt.Lines, line)
		}

		if err := tx.InsertGoodsReceipt(ctx, receipt); err != nil {
			return err
		}
		po.Status = domain.PurchaseOrderReceived
		for _, l := range po.Lines {
			if l.ReceivedQuantity.LessThan(l.OrderedQuantity) {
				po.Status = domain.PurchaseOrderPartiallyReceived
				break
			}
		}
		po.UpdatedAt = now
		if err := tx.SavePurchaseOrder(ctx, *po); err != nil {
			return err
		}
		po.Receipts = append(po.Receipts, receipt)
		received = *po
		return nil
	})
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	s.publish(ctx, events.TypeStockPosted, received.StoreLocationID, receipt)
	return received, nil
}

func (s *Service) receiveLine(ctx context.Context, tx store.Tx, storeLocationID string, reference string, in domain.ReceiveLineRequest, unitCost decimal.Decimal, now time.Time) (domain.GoodsReceiptLine, error) {
	product, err := tx.GetProduct(ctx, in.ProductID)
	if err != nil {
		return domain.GoodsReceiptLine{}, missing(err, "product not found: %s", in.ProductID)
	}
	if !numeric.FitsScale(in.ReceivedQuantity, product.QuantityPrecision) {
		return domain.GoodsReceiptLine{}, apperr.Invalid("received quantity exceeds %d decimal places for product %s", product.QuantityPrecision, product.ID)
	}

	// Cost blends with the stock on hand before this receipt lands.
	cost, err := tx.LockCostRecord(ctx, storeLocationID, product.ID)
	if err != nil {
		return domain.GoodsReceiptLine{}, err
	}
	onHandBefore, err := s.ledger.Balance(ctx, tx, storeLocationID, product.ID)
	if err != nil {
		return domain.GoodsReceiptLine{}, err
	}

	movement, err := s.ledger.Append(ctx, tx, domain.Movement{
		StoreLocationID: storeLocationID,
		ProductID:       product.ID,
		MovementType:    domain.MovementAdjustment,
		QuantityDelta:   in.ReceivedQuantity,
		ReferenceType:   domain.RefPurchaseReceipt,
		ReferenceNumber: fmt.Sprintf("%s-P%s", reference, product.ID),
		CreatedAt:       now,
	})
	if err != nil {
		return domain.GoodsReceiptLine{}, err
	}
	allocations, err := s.lots.AllocateReceipt(ctx, tx, *product, storeLocationID, in.ReceivedQuantity, in.Lots)
	if err != nil {
		return domain.GoodsReceiptLine{}, err
	}
	if err := linkLots(ctx, tx, movement.ID, allocations); err != nil {
		return domain.GoodsReceiptLine{}, err
	}

	if err := costing.Apply(cost, onHandBefore, in.ReceivedQuantity, unitCost, reference, now); err != nil {
		return domain.GoodsReceiptLine{}, err
	}
	if err := tx.SaveCostRecord(ctx, *cost); err != nil {
		return domain.GoodsReceiptLine{}, err
	}

	return domain.GoodsReceiptLine{
		ProductID:           product.ID,
		Quantity:            in.ReceivedQuantity,
		UnitCost:            numeric.CostOf(unitCost),
		MovementID:          movement.ID,
		WeightedAverageCost: cost.WeightedAverageCost,
		Lots:                allocations,
	}, nil
}

// normalizeReceiveLines validates receive lines and orders them by product
// id, which keeps row locks in a stable order across concurrent receipts.
func normalizeReceiveLines(lines []domain.ReceiveLineRequest) ([]domain.ReceiveLineRequest, error) {
	if len(lines) == 0 {
		return nil, apperr.Invalid("lines is required")
	}
	out := make([]domain.ReceiveLineRequest, 0, len(lines))
	seen := make(map[string]struct{}, len(lines))
	for _, line := range lines {
		productID, err := requireID(line.ProductID, "product id")
		if err != nil {
			return nil, err
		}
		if _, dup := seen[productID]; dup {
			return nil, apperr.Invalid("duplicate product in receive lines: %s", productID)
		}
		seen[productID] = struct{}{}
		line.ProductID = productID
		if !numeric.QuantityOf(line.ReceivedQuantity).IsPositive() {
			return nil, apperr.Invalid("received quantity must be greater than zero")
		}
		line.ReceivedQuantity = numeric.QuantityOf(line.ReceivedQuantity)
		if line.UnitCost != nil && numeric.Cost(line.UnitCost).IsNegative() {
			return nil, apperr.Invalid("unit cost must not be negative")
		}
		out = append(out, line)
	}
	slices.SortFunc(out, func(a, b domain.ReceiveLineRequest) int { return strings.Compare(a.ProductID, b.ProductID) })
	return out, nil
}
