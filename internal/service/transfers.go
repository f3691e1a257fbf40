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

func (s *Service) CreateStockTransfer(ctx context.Context, req domain.StockTransferCreateRequest) (domain.StockTransfer, error) {
	sourceID, err := requireID(req.SourceStoreLocationID, "source store location id")
	if err != nil {
		return domain.StockTransfer{}, err
	}
	destinationID, err := requireID(req.DestinationStoreLocationID, "destination store location id")
	if err != nil {
		return domain.StockTransfer{}, err
	}
	if sourceID == destinationID {
		return domain.StockTransfer{}, apperr.Invalid("source and destination stores must be different")
	}
	lines, err := normalizeTransferLines(req.Lines, false)
	if err != nil {
		return domain.StockTransfer{}, err
	}

	now := s.clock()
	tr := domain.StockTransfer{
		ID:                         xid.New("trf"),
		ReferenceNumber:            xid.Reference("TRF"),
		SourceStoreLocationID:      sourceID,
		DestinationStoreLocationID: destinationID,
		Status:                     domain.TransferDraft,
		Note:                       strings.TrimSpace(req.Note),
		Lines:                      make([]domain.StockTransferLine, 0, len(lines)),
		CreatedBy:                  actorName(ctx),
		CreatedAt:                  now,
		UpdatedAt:                  now,
	}
	zero := numeric.QuantityOf(decimal.Zero)
	for _, line := range lines {
		tr.Lines = append(tr.Lines, domain.StockTransferLine{
			ProductID:         line.ProductID,
			RequestedQuantity: line.Quantity,
			ShippedQuantity:   zero,
			ReceivedQuantity:  zero,
		})
	}

	err = s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := loadActiveLocation(ctx, tx, sourceID); err != nil {
			return err
		}
		if _, err := loadActiveLocation(ctx, tx, destinationID); err != nil {
			return err
		}
		for _, line := range tr.Lines {
			product, err := tx.GetProduct(ctx, line.ProductID)
			if err != nil {
				return missing(err, "product not found: %s", line.ProductID)
			}
			if !numeric.FitsScale(line.RequestedQuantity, product.QuantityPrecision) {
				return apperr.Invalid("requested quantity exceeds %d decimal places for product %s", product.QuantityPrecision, product.ID)
			}
		}
		return tx.InsertStockTransfer(ctx, tr)
	})
	if err != nil {
		return domain.StockTransfer{}, err
	}
	return tr, nil
}

func (s *Service) GetStockTransfer(ctx context.Context, id string) (domain.StockTransfer, error) {
	var tr domain.StockTransfer
	err := s.repo.View(ctx, func(ctx context.Context, r store.Reader) error {
		found, err := r.GetStockTransfer(ctx, id)
		if err != nil {
			return missing(err, "stock transfer not found: %s", id)
		}
		tr = *found
		return nil
	})
	return tr, err
}

// ShipStockTransfer takes the shipped quantities out of the source store.
// Every product on the transfer must be listed, zero meaning not shipped.
func (s *Service) ShipStockTransfer(ctx context.Context, id string, req domain.TransferQuantitiesRequest) (domain.StockTransfer, error) {
	lines, err := normalizeTransferLines(req.Lines, true)
	if err != nil {
		return domain.StockTransfer{}, err
	}

	var shipped domain.StockTransfer
	err = s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		tr, err := tx.LockStockTransfer(ctx, id)
		if err != nil {
			return missing(err, "stock transfer not found: %s", id)
		}
		if tr.Status != domain.TransferDraft {
			return apperr.Conflict("stock transfer can only be shipped from DRAFT status: %s", id)
		}
		if !sameProducts(transferProducts(tr.Lines), lineProducts(lines)) {
			return apperr.Invalid("ship lines must include exactly the transfer products")
		}

		now := s.clock()
		for _, in := range lines {
			line := &tr.Lines[transferLineIndex(tr.Lines, in.ProductID)]
			if in.Quantity.GreaterThan(line.RequestedQuantity) {
				return apperr.Invalid("shipped quantity cannot exceed requested quantity for product: %s", in.ProductID)
			}
			line.ShippedQuantity = in.Quantity
			if in.Quantity.IsZero() {
				continue
			}
			if _, err := s.ledger.Append(ctx, tx, domain.Movement{
				StoreLocationID: tr.SourceStoreLocationID,
				ProductID:       in.ProductID,
				MovementType:    domain.MovementAdjustment,
				QuantityDelta:   in.Quantity.Neg(),
				ReferenceType:   domain.RefStockTransferOut,
				ReferenceNumber: tr.ReferenceNumber,
				CreatedAt:       now,
			}); err != nil {
				return err
			}
		}

		tr.Status = domain.TransferShipped
		tr.ShippedBy = actorName(ctx)
		tr.ShippedAt = timePtr(now)
		tr.UpdatedAt = now
		if err := tx.SaveStockTransfer(ctx, *tr); err != nil {
			return err
		}
		shipped = *tr
		return nil
	})
	if err != nil {
		return domain.StockTransfer{}, err
	}
	s.publish(ctx, events.TypeStockPosted, shipped.SourceStoreLocationID, shipped)
	return shipped, nil
}

// ReceiveStockTransfer books arrivals at the destination. Partial receipts
// are allowed until every shipped quantity has arrived.
func (s *Service) ReceiveStockTransfer(ctx context.Context, id string, req domain.TransferQuantitiesRequest) (domain.StockTransfer, error) {
	lines, err := normalizeTransferLines(req.Lines, false)
	if err != nil {
		return domain.StockTransfer{}, err
	}

	var received domain.StockTransfer
	err = s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		tr, err := tx.LockStockTransfer(ctx, id)
		if err != nil {
			return missing(err, "stock transfer not found: %s", id)
		}
		if tr.Status != domain.TransferShipped && tr.Status != domain.TransferPartiallyReceived {
			return apperr.Conflict("stock transfer can only be received from SHIPPED or PARTIALLY_RECEIVED status: %s", id)
		}

		now := s.clock()
		for _, in := range lines {
			i := transferLineIndex(tr.Lines, in.ProductID)
			if i < 0 {
				return apperr.Invalid("product is not part of transfer: %s", in.ProductID)
			}
			line := &tr.Lines[i]
			if !line.ShippedQuantity.IsPositive() {
				return apperr.Conflict("transfer line is not shipped: %s", in.ProductID)
			}
			remaining := numeric.QuantityOf(line.ShippedQuantity.Sub(line.ReceivedQuantity))
			if in.Quantity.GreaterThan(remaining) {
				return apperr.Conflict("received quantity exceeds remaining shipped quantity for product: %s", in.ProductID)
			}
			if _, err := s.ledger.Append(ctx, tx, domain.Movement{
				StoreLocationID: tr.DestinationStoreLocationID,
				ProductID:       in.ProductID,
				MovementType:    domain.MovementAdjustment,
				QuantityDelta:   in.Quantity,
				ReferenceType:   domain.RefStockTransferIn,
				ReferenceNumber: tr.ReferenceNumber,
				CreatedAt:       now,
			}); err != nil {
				return err
			}
			line.ReceivedQuantity = numeric.AddQuantity(line.ReceivedQuantity, in.Quantity)
		}

		tr.Status = domain.TransferReceived
		for _, l := range tr.Lines {
			if l.ReceivedQuantity.LessThan(l.ShippedQuantity) {
				tr.Status = domain.TransferPartiallyReceived
				break
			}
		}
		tr.ReceivedBy = actorName(ctx)
		tr.ReceivedAt = timePtr(now)
		tr.UpdatedAt = now
		if err := tx.SaveStockTransfer(ctx, *tr); err != nil {
			return err
		}
		received = *tr
		return nil
	})
	if err != nil {
		return domain.StockTransfer{}, err
	}
	s.publish(ctx, events.TypeStockPosted, received.DestinationStoreLocationID, received)
	return received, nil
}

// normalizeTransferLines trims ids, rejects duplicates and orders lines by
// product id. allowZero admits zero quantities for ship requests.
func normalizeTransferLines(lines []domain.TransferLineRequest, allowZero bool) ([]domain.TransferLineRequest, error) {
	if len(lines) == 0 {
		return nil, apperr.Invalid("lines is required")
	}
	out := make([]domain.TransferLineRequest, 0, len(lines))
	seen := make(map[string]struct{}, len(lines))
	for _, line := range lines {
		productID, err := requireID(line.ProductID, "product id")
		if err != nil {
			return nil, err
		}
		if _, dup := seen[productID]; dup {
			return nil, apperr.Invalid("duplicate product in transfer lines: %s", productID)
		}
		seen[productID] = struct{}{}
		qty := numeric.QuantityOf(line.Quantity)
		if qty.IsNegative() || (!allowZero && qty.IsZero()) {
			return nil, apperr.Invalid("quantity must be greater than zero for product: %s", productID)
		}
		out = append(out, domain.TransferLineRequest{ProductID: productID, Quantity: qty})
	}
	slices.SortFunc(out, func(a, b domain.TransferLineRequest) int { return strings.Compare(a.ProductID, b.ProductID) })
	return out, nil
}

func transferLineIndex(lines []domain.StockTransferLine, productID string) int {
	return slices.IndexFunc(lines, func(l domain.StockTransferLine) bool { return l.ProductID == productID })
}

func transferProducts(lines []domain.StockTransferLine) []string {
	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ProductID)
	}
	return ids
}

func lineProducts(lines []domain.TransferLineRequest) []string {
	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ProductID)
	}
	return ids
}

// sameProducts reports whether both lists hold the same set of product ids.
// Neither list may contain duplicates.
func sameProducts(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	a = slices.Clone(a)
	b = slices.Clone(b)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(a, b)
}
