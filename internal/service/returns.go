package service

import (
	"context"

	"retailpos/backend/internal/apperr"
	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/events"
	"retailpos/backend/internal/numeric"
	"retailpos/backend/internal/store"
	"retailpos/backend/internal/xid"
)

func (s *Service) GetSale(ctx context.Context, saleID string) (domain.Sale, error) {
	var sale domain.Sale
	err := s.repo.View(ctx, func(ctx context.Context, r store.Reader) error {
		found, err := r.GetSale(ctx, saleID)
		if err != nil {
			return missing(err, "sale not found: %s", saleID)
		}
		sale = *found
		return nil
	})
	return sale, err
}

// ReturnSaleLine books returned goods back into stock. Lot-tracked products
// are restored to the lots the line was sold from.
func (s *Service) ReturnSaleLine(ctx context.Context, saleID string, req domain.SaleReturnRequest) (domain.SaleReturn, error) {
	saleID, err := requireID(saleID, "sale id")
	if err != nil {
		return domain.SaleReturn{}, err
	}
	lineID, err := requireID(req.SaleLineID, "sale line id")
	if err != nil {
		return domain.SaleReturn{}, err
	}
	qty := numeric.QuantityOf(req.Quantity)
	if !qty.IsPositive() {
		return domain.SaleReturn{}, apperr.Invalid("return quantity must be greater than zero")
	}

	var result domain.SaleReturn
	err = s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		sale, err := tx.LockSale(ctx, saleID)
		if err != nil {
			return missing(err, "sale not found: %s", saleID)
		}
		line, ok := sale.Line(lineID)
		if !ok {
			return apperr.NotFound("sale line not found: %s", lineID)
		}
		product, err := tx.GetProduct(ctx, line.ProductID)
		if err != nil {
			return missing(err, "product not found: %s", line.ProductID)
		}
		if !numeric.FitsScale(req.Quantity, product.QuantityPrecision) {
			return apperr.Invalid("return quantity exceeds %d decimal places for product %s", product.QuantityPrecision, product.ID)
		}

		returned, err := tx.ReturnedQuantityBySaleLine(ctx, line.ID)
		if err != nil {
			return err
		}
		returnable := numeric.QuantityOf(line.Quantity.Sub(returned))
		if qty.GreaterThan(returnable) {
			return apperr.Conflict("return quantity %s exceeds returnable quantity %s for sale line %s",
				qty.StringFixed(numeric.QuantityScale), returnable.StringFixed(numeric.QuantityScale), line.ID)
		}

		allocations, err := s.lots.AllocateReturn(ctx, tx, *product, line.ID, qty)
		if err != nil {
			return err
		}
		now := s.clock()
		movement, err := s.ledger.Append(ctx, tx, domain.Movement{
			StoreLocationID: sale.StoreLocationID,
			ProductID:       line.ProductID,
			MovementType:    domain.MovementReturn,
			QuantityDelta:   qty,
			ReferenceType:   domain.RefSaleReturn,
			ReferenceNumber: xid.Reference("RET"),
			SaleID:          sale.ID,
			SaleLineID:      line.ID,
			CreatedAt:       now,
		})
		if err != nil {
			return err
		}
		if err := linkLots(ctx, tx, movement.ID, allocations); err != nil {
			return err
		}
		result = domain.SaleReturn{
			ReferenceNumber: movement.ReferenceNumber,
			SaleID:          sale.ID,
			SaleLineID:      line.ID,
			ProductID:       line.ProductID,
			Quantity:        qty,
			MovementID:      movement.ID,
			Lots:            allocations,
			CreatedAt:       now,
		}
		return nil
	})
	if err != nil {
		return domain.SaleReturn{}, err
	}
	s.publish(ctx, events.TypeSaleReturned, result.SaleID, result)
	return result, nil
}
