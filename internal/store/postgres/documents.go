package postgres

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/shopspring/decimal"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/numeric"
)

const purchaseOrderColumns = `
	id, reference_number, supplier_id, store_location_id, status, note,
	created_by, approved_by, created_at, updated_at, approved_at`

func (t *txStore) GetPurchaseOrder(ctx context.Context, id string) (*domain.PurchaseOrder, error) {
	return t.loadPurchaseOrder(ctx, `SELECT `+purchaseOrderColumns+` FROM purchase_orders WHERE id = $1`, id)
}

func (t *txStore) LockPurchaseOrder(ctx context.Context, id string) (*domain.PurchaseOrder, error) {
	return t.loadPurchaseOrder(ctx, `SELECT `+purchaseOrderColumns+` FROM purchase_orders WHERE id = $1 FOR UPDATE`, id)
}

func (t *txStore) loadPurchaseOrder(ctx context.Context, query string, id string) (*domain.PurchaseOrder, error) {
	var (
		po         domain.PurchaseOrder
		note       sql.NullString
		approvedBy sql.NullString
		approvedAt sql.NullTime
	)
	err := t.q.QueryRowContext(ctx, query, id).Scan(&po.ID, &po.ReferenceNumber, &po.SupplierID, &po.StoreLocationID,
		&po.Status, &note, &po.CreatedBy, &approvedBy, &po.CreatedAt, &po.UpdatedAt, &approvedAt)
	if err != nil {
		return nil, notFound(err)
	}
	po.Note = note.String
	po.ApprovedBy = approvedBy.String
	po.ApprovedAt = timePtr(approvedAt)
	po.CreatedAt = po.CreatedAt.UTC()
	po.UpdatedAt = po.UpdatedAt.UTC()

	po.Lines, err = queryAll(ctx, t.q, func(row rowScanner) (domain.PurchaseOrderLine, error) {
		var l domain.PurchaseOrderLine
		err := row.Scan(&l.ProductID, &l.OrderedQuantity, &l.ReceivedQuantity, &l.UnitCost)
		return l, err
	}, `
		SELECT product_id, ordered_quantity, received_quantity, unit_cost
		FROM purchase_order_lines
		WHERE purchase_order_id = $1
		ORDER BY line_number
	`, po.ID)
	if err != nil {
		return nil, err
	}

	po.Receipts, err = queryAll(ctx, t.q, func(row rowScanner) (domain.GoodsReceipt, error) {
		var (
			r     domain.GoodsReceipt
			rNote sql.NullString
		)
		err := row.Scan(&r.ID, &r.PurchaseOrderID, &r.ReferenceNumber, &r.ReceivedBy, &rNote, &r.ReceivedAt)
		r.Note = rNote.String
		r.ReceivedAt = r.ReceivedAt.UTC()
		return r, err
	}, `
		SELECT id, purchase_order_id, reference_number, received_by, note, received_at
		FROM goods_receipts
		WHERE purchase_order_id = $1
		ORDER BY seq
	`, po.ID)
	if err != nil {
		return nil, err
	}
	for i := range po.Receipts {
		lines, err := queryAll(ctx, t.q, func(row rowScanner) (domain.GoodsReceiptLine, error) {
			var (
				l    domain.GoodsReceiptLine
				lots []byte
			)
			if err := row.Scan(&l.ProductID, &l.Quantity, &l.UnitCost, &l.MovementID, &l.WeightedAverageCost, &lots); err != nil {
				return l, err
			}
			if len(lots) > 0 {
				if err := json.Unmarshal(lots, &l.Lots); err != nil {
					return l, err
				}
			}
			return l, nil
		}, `
			SELECT product_id, quantity, unit_cost, movement_id, weighted_average_cost, lots
			FROM goods_receipt_lines
			WHERE goods_receipt_id = $1
			ORDER BY line_number
		`, po.Receipts[i].ID)
		if err != nil {
			return nil, err
		}
		po.Receipts[i].Lines = lines
	}
	return &po, nil
}

func (t *txStore) InsertPurchaseOrder(ctx context.Context, po domain.PurchaseOrder) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO purchase_orders (`+purchaseOrderColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, po.ID, po.ReferenceNumber, po.SupplierID, po.StoreLocationID, string(po.Status), nullIfEmpty(po.Note),
		po.CreatedBy, nullIfEmpty(po.ApprovedBy), po.CreatedAt, po.UpdatedAt, nullTime(po.ApprovedAt))
	if err != nil {
		return duplicate(err)
	}
	return t.insertPurchaseOrderLines(ctx, po)
}

func (t *txStore) SavePurchaseOrder(ctx context.Context, po domain.PurchaseOrder) error {
	res, err := t.q.ExecContext(ctx, `
		UPDATE purchase_orders
		SET status = $2, note = $3, approved_by = $4, updated_at = $5, approved_at = $6
		WHERE id = $1
	`, po.ID, string(po.Status), nullIfEmpty(po.Note), nullIfEmpty(po.ApprovedBy), po.UpdatedAt, nullTime(po.ApprovedAt))
	if err != nil {
		return err
	}
	if err := expectAffected(res); err != nil {
		return err
	}
	if _, err := t.q.ExecContext(ctx, `DELETE FROM purchase_order_lines WHERE purchase_order_id = $1`, po.ID); err != nil {
		return err
	}
	return t.insertPurchaseOrderLines(ctx, po)
}

func (t *txStore) insertPurchaseOrderLines(ctx context.Context, po domain.PurchaseOrder) error {
	for i, l := range po.Lines {
		if _, err := t.q.ExecContext(ctx, `
			INSERT INTO purchase_order_lines (purchase_order_id, line_number, product_id, ordered_quantity, received_quantity, unit_cost)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, po.ID, i+1, l.ProductID, l.OrderedQuantity, l.ReceivedQuantity, l.UnitCost); err != nil {
			return err
		}
	}
	return nil
}

func (t *txStore) InsertGoodsReceipt(ctx context.Context, receipt domain.GoodsReceipt) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO goods_receipts (id, purchase_order_id, reference_number, received_by, note, received_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, receipt.ID, receipt.PurchaseOrderID, receipt.ReferenceNumber, receipt.ReceivedBy, nullIfEmpty(receipt.Note), receipt.ReceivedAt)
	if err != nil {
		return duplicate(err)
	}
	for i, l := range receipt.Lines {
		lots := l.Lots
		if lots == nil {
			lots = []domain.LotAllocation{}
		}
		raw, err := json.Marshal(lots)
		if err != nil {
			return err
		}
		if _, err := t.q.ExecContext(ctx, `
			INSERT INTO goods_receipt_lines (goods_receipt_id, line_number, product_id, quantity, unit_cost, movement_id, weighted_average_cost, lots)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, receipt.ID, i+1, l.ProductID, l.Quantity, l.UnitCost, l.MovementID, l.WeightedAverageCost, string(raw)); err != nil {
			return err
		}
	}
	return nil
}

func (t *txStore) ReceivedFromSupplier(ctx context.Context, supplierID string, storeLocationID string, productID string) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := t.q.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(gl.quantity), 0)
		FROM goods_receipt_lines gl
		JOIN goods_receipts g ON g.id = gl.goods_receipt_id
		JOIN purchase_orders po ON po.id = g.purchase_order_id
		WHERE po.supplier_id = $1 AND po.store_location_id = $2 AND gl.product_id = $3
	`, supplierID, storeLocationID, productID).Scan(&total)
	if err != nil {
		return decimal.Zero, err
	}
	return numeric.QuantityOf(total), nil
}

func (t *txStore) ReturnedToSupplier(ctx context.Context, supplierID string, storeLocationID string, productID string) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := t.q.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(l.quantity), 0)
		FROM supplier_return_lines l
		JOIN supplier_returns r ON r.id = l.supplier_return_id
		WHERE r.supplier_id = $1 AND r.store_location_id = $2 AND l.product_id = $3 AND r.status = 'POSTED'
	`, supplierID, storeLocationID, productID).Scan(&total)
	if err != nil {
		return decimal.Zero, err
	}
	return numeric.QuantityOf(total), nil
}

const supplierReturnColumns = `
	id, reference_number, supplier_id, store_location_id, status, note,
	created_by, approved_by, posted_by, created_at, updated_at, approved_at, posted_at`

func (t *txStore) GetSupplierReturn(ctx context.Context, id string) (*domain.SupplierReturn, error) {
	return t.loadSupplierReturn(ctx, `SELECT `+supplierReturnColumns+` FROM supplier_returns WHERE id = $1`, id)
}

func (t *txStore) LockSupplierReturn(ctx context.Context, id string) (*domain.SupplierReturn, error) {
	return t.loadSupplierReturn(ctx, `SELECT `+supplierReturnColumns+` FROM supplier_returns WHERE id = $1 FOR UPDATE`, id)
}

func (t *txStore) loadSupplierReturn(ctx context.Context, query string, id string) (*domain.SupplierReturn, error) {
	var (
		sr                     domain.SupplierReturn
		note, approved, posted sql.NullString
		approvedAt, postedAt   sql.NullTime
	)
	err := t.q.QueryRowContext(ctx, query, id).Scan(&sr.ID, &sr.ReferenceNumber, &sr.SupplierID, &sr.StoreLocationID,
		&sr.Status, &note, &sr.CreatedBy, &approved, &posted, &sr.CreatedAt, &sr.UpdatedAt, &approvedAt, &postedAt)
	if err != nil {
		return nil, notFound(err)
	}
	sr.Note = note.String
	sr.ApprovedBy = approved.String
	sr.PostedBy = posted.String
	sr.ApprovedAt = timePtr(approvedAt)
	sr.PostedAt = timePtr(postedAt)
	sr.CreatedAt = sr.CreatedAt.UTC()
	sr.UpdatedAt = sr.UpdatedAt.UTC()

	sr.Lines, err = queryAll(ctx, t.q, func(row rowScanner) (domain.SupplierReturnLine, error) {
		var (
			l          domain.SupplierReturnLine
			movementID sql.NullString
		)
		err := row.Scan(&l.ProductID, &l.Quantity, &l.UnitCost, &movementID)
		l.MovementID = movementID.String
		return l, err
	}, `
		SELECT product_id, quantity, unit_cost, movement_id
		FROM supplier_return_lines
		WHERE supplier_return_id = $1
		ORDER BY line_number
	`, sr.ID)
	if err != nil {
		return nil, err
	}
	return &sr, nil
}

func (t *txStore) InsertSupplierReturn(ctx context.Context, sr domain.SupplierReturn) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO supplier_returns (`+supplierReturnColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, sr.ID, sr.ReferenceNumber, sr.SupplierID, sr.StoreLocationID, string(sr.Status), nullIfEmpty(sr.Note),
		sr.CreatedBy, nullIfEmpty(sr.ApprovedBy), nullIfEmpty(sr.PostedBy), sr.CreatedAt, sr.UpdatedAt,
		nullTime(sr.ApprovedAt), nullTime(sr.PostedAt))
	if err != nil {
		return duplicate(err)
	}
	return t.insertSupplierReturnLines(ctx, sr)
}

func (t *txStore) SaveSupplierReturn(ctx context.Context, sr domain.SupplierReturn) error {
	res, err := t.q.ExecContext(ctx, `
		UPDATE supplier_returns
		SET status = $2, note = $3, approved_by = $4, posted_by = $5, updated_at = $6, approved_at = $7, posted_at = $8
		WHERE id = $1
	`, sr.ID, string(sr.Status), nullIfEmpty(sr.Note), nullIfEmpty(sr.ApprovedBy), nullIfEmpty(sr.PostedBy),
		sr.UpdatedAt, nullTime(sr.ApprovedAt), nullTime(sr.PostedAt))
	if err != nil {
		return err
	}
	if err := expectAffected(res); err != nil {
		return err
	}
	if _, err := t.q.ExecContext(ctx, `DELETE FROM supplier_return_lines WHERE supplier_return_id = $1`, sr.ID); err != nil {
		return err
	}
	return t.insertSupplierReturnLines(ctx, sr)
}

func (t *txStore) insertSupplierReturnLines(ctx context.Context, sr domain.SupplierReturn) error {
	for i, l := range sr.Lines {
		if _, err := t.q.ExecContext(ctx, `
			INSERT INTO supplier_return_lines (supplier_return_id, line_number, product_id, quantity, unit_cost, movement_id)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, sr.ID, i+1, l.ProductID, l.Quantity, l.UnitCost, nullIfEmpty(l.MovementID)); err != nil {
			return err
		}
	}
	return nil
}

const adjustmentColumns = `
	id, reference_number, store_location_id, product_id, quantity_delta, reason_code, note, status,
	approval_required, requested_by, approved_by, posted_by, movement_id, created_at, updated_at, approved_at, posted_at`

func (t *txStore) GetStockAdjustment(ctx context.Context, id string) (*domain.StockAdjustment, error) {
	return t.loadAdjustment(ctx, `SELECT `+adjustmentColumns+` FROM stock_adjustments WHERE id = $1`, id)
}

func (t *txStore) LockStockAdjustment(ctx context.Context, id string) (*domain.StockAdjustment, error) {
	return t.loadAdjustment(ctx, `SELECT `+adjustmentColumns+` FROM stock_adjustments WHERE id = $1 FOR UPDATE`, id)
}

func (t *txStore) loadAdjustment(ctx context.Context, query string, id string) (*domain.StockAdjustment, error) {
	var (
		a                                  domain.StockAdjustment
		note, approved, posted, movementID sql.NullString
		approvedAt, postedAt               sql.NullTime
	)
	err := t.q.QueryRowContext(ctx, query, id).Scan(&a.ID, &a.ReferenceNumber, &a.StoreLocationID, &a.ProductID,
		&a.QuantityDelta, &a.ReasonCode, &note, &a.Status, &a.ApprovalRequired, &a.RequestedBy, &approved, &posted,
		&movementID, &a.CreatedAt, &a.UpdatedAt, &approvedAt, &postedAt)
	if err != nil {
		return nil, notFound(err)
	}
	a.Note = note.String
	a.ApprovedBy = approved.String
	a.PostedBy = posted.String
	a.MovementID = movementID.String
	a.ApprovedAt = timePtr(approvedAt)
	a.PostedAt = timePtr(postedAt)
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return &a, nil
}

func (t *txStore) InsertStockAdjustment(ctx context.Context, a domain.StockAdjustment) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO stock_adjustments (`+adjustmentColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
	`, a.ID, a.ReferenceNumber, a.StoreLocationID, a.ProductID, a.QuantityDelta, a.ReasonCode, nullIfEmpty(a.Note),
		string(a.Status), a.ApprovalRequired, a.RequestedBy, nullIfEmpty(a.ApprovedBy), nullIfEmpty(a.PostedBy),
		nullIfEmpty(a.MovementID), a.CreatedAt, a.UpdatedAt, nullTime(a.ApprovedAt), nullTime(a.PostedAt))
	return duplicate(err)
}

func (t *txStore) SaveStockAdjustment(ctx context.Context, a domain.StockAdjustment) error {
	res, err := t.q.ExecContext(ctx, `
		UPDATE stock_adjustments
		SET status = $2, approved_by = $3, posted_by = $4, movement_id = $5, updated_at = $6, approved_at = $7, posted_at = $8
		WHERE id = $1
	`, a.ID, string(a.Status), nullIfEmpty(a.ApprovedBy), nullIfEmpty(a.PostedBy), nullIfEmpty(a.MovementID),
		a.UpdatedAt, nullTime(a.ApprovedAt), nullTime(a.PostedAt))
	if err != nil {
		return err
	}
	return expectAffected(res)
}

const transferColumns = `
	id, reference_number, source_store_location_id, destination_store_location_id, status, note,
	created_by, shipped_by, received_by, created_at, updated_at, shipped_at, received_at`

func (t *txStore) GetStockTransfer(ctx context.Context, id string) (*domain.StockTransfer, error) {
	return t.loadTransfer(ctx, `SELECT `+transferColumns+` FROM stock_transfers WHERE id = $1`, id)
}

func (t *txStore) LockStockTransfer(ctx context.Context, id string) (*domain.StockTransfer, error) {
	return t.loadTransfer(ctx, `SELECT `+transferColumns+` FROM stock_transfers WHERE id = $1 FOR UPDATE`, id)
}

func (t *txStore) loadTransfer(ctx context.Context, query string, id string) (*domain.StockTransfer, error) {
	var (
		tr                      domain.StockTransfer
		note, shipped, received sql.NullString
		shippedAt, receivedAt   sql.NullTime
	)
	err := t.q.QueryRowContext(ctx, query, id).Scan(&tr.ID, &tr.ReferenceNumber, &tr.SourceStoreLocationID,
		&tr.DestinationStoreLocationID, &tr.Status, &note, &tr.CreatedBy, &shipped, &received,
		&tr.CreatedAt, &tr.UpdatedAt, &shippedAt, &receivedAt)
	if err != nil {
		return nil, notFound(err)
	}
	tr.Note = note.String
	tr.ShippedBy = shipped.String
	tr.ReceivedBy = received.String
	tr.ShippedAt = timePtr(shippedAt)
	tr.ReceivedAt = timePtr(receivedAt)
	tr.CreatedAt = tr.CreatedAt.UTC()
	tr.UpdatedAt = tr.UpdatedAt.UTC()

	tr.Lines, err = queryAll(ctx, t.q, func(row rowScanner) (domain.StockTransferLine, error) {
		var l domain.StockTransferLine
		err := row.Scan(&l.ProductID, &l.RequestedQuantity, &l.ShippedQuantity, &l.ReceivedQuantity)
		return l, err
	}, `
		SELECT product_id, requested_quantity, shipped_quantity, received_quantity
		FROM stock_transfer_lines
		WHERE stock_transfer_id = $1
		ORDER BY line_number
	`, tr.ID)
	if err != nil {
		return nil, err
	}
	return &tr, nil
}

func (t *txStore) InsertStockTransfer(ctx context.Context, tr domain.StockTransfer) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO stock_transfers (`+transferColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, tr.ID, tr.ReferenceNumber, tr.SourceStoreLocationID, tr.DestinationStoreLocationID, string(tr.Status),
		nullIfEmpty(tr.Note), tr.CreatedBy, nullIfEmpty(tr.ShippedBy), nullIfEmpty(tr.ReceivedBy),
		tr.CreatedAt, tr.UpdatedAt, nullTime(tr.ShippedAt), nullTime(tr.ReceivedAt))
	if err != nil {
		return duplicate(err)
	}
	return t.insertTransferLines(ctx, tr)
}

func (t *txStore) SaveStockTransfer(ctx context.Context, tr domain.StockTransfer) error {
	res, err := t.q.ExecContext(ctx, `
		UPDATE stock_transfers
		SET status = $2, shipped_by = $3, received_by = $4, updated_at = $5, shipped_at = $6, received_at = $7
		WHERE id = $1
	`, tr.ID, string(tr.Status), nullIfEmpty(tr.ShippedBy), nullIfEmpty(tr.ReceivedBy), tr.UpdatedAt,
		nullTime(tr.ShippedAt), nullTime(tr.ReceivedAt))
	if err != nil {
		return err
	}
	if err := expectAffected(res); err != nil {
		return err
	}
	if _, err := t.q.ExecContext(ctx, `DELETE FROM stock_transfer_lines WHERE stock_transfer_id = $1`, tr.ID); err != nil {
		return err
	}
	return t.insertTransferLines(ctx, tr)
}

func (t *txStore) insertTransferLines(ctx context.Context, tr domain.StockTransfer) error {
	for i, l := range tr.Lines {
		if _, err := t.q.ExecContext(ctx, `
			INSERT INTO stock_transfer_lines (stock_transfer_id, line_number, product_id, requested_quantity, shipped_quantity, received_quantity)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, tr.ID, i+1, l.ProductID, l.RequestedQuantity, l.ShippedQuantity, l.ReceivedQuantity); err != nil {
			return err
		}
	}
	return nil
}

const stocktakeColumns = `
	id, reference_number, store_location_id, status, note,
	created_by, started_by, finalized_by, created_at, updated_at, started_at, finalized_at`

func (t *txStore) GetStocktake(ctx context.Context, id string) (*domain.Stocktake, error) {
	return t.loadStocktake(ctx, `SELECT `+stocktakeColumns+` FROM stocktakes WHERE id = $1`, id)
}

func (t *txStore) LockStocktake(ctx context.Context, id string) (*domain.Stocktake, error) {
	return t.loadStocktake(ctx, `SELECT `+stocktakeColumns+` FROM stocktakes WHERE id = $1 FOR UPDATE`, id)
}

func (t *txStore) loadStocktake(ctx context.Context, query string, id string) (*domain.Stocktake, error) {
	var (
		st                       domain.Stocktake
		note, started, finalized sql.NullString
		startedAt, finalizedAt   sql.NullTime
	)
	err := t.q.QueryRowContext(ctx, query, id).Scan(&st.ID, &st.ReferenceNumber, &st.StoreLocationID, &st.Status,
		&note, &st.CreatedBy, &started, &finalized, &st.CreatedAt, &st.UpdatedAt, &startedAt, &finalizedAt)
	if err != nil {
		return nil, notFound(err)
	}
	st.Note = note.String
	st.StartedBy = started.String
	st.FinalizedBy = finalized.String
	st.StartedAt = timePtr(startedAt)
	st.FinalizedAt = timePtr(finalizedAt)
	st.CreatedAt = st.CreatedAt.UTC()
	st.UpdatedAt = st.UpdatedAt.UTC()

	st.Lines, err = queryAll(ctx, t.q, func(row rowScanner) (domain.StocktakeLine, error) {
		var (
			l                 domain.StocktakeLine
			counted, variance decimal.NullDecimal
			movementID        sql.NullString
		)
		err := row.Scan(&l.ProductID, &l.ExpectedQuantity, &counted, &variance, &movementID)
		if counted.Valid {
			l.CountedQuantity = numeric.Ptr(counted.Decimal)
		}
		if variance.Valid {
			l.VarianceQuantity = numeric.Ptr(variance.Decimal)
		}
		l.MovementID = movementID.String
		return l, err
	}, `
		SELECT product_id, expected_quantity, counted_quantity, variance_quantity, movement_id
		FROM stocktake_lines
		WHERE stocktake_id = $1
		ORDER BY line_number
	`, st.ID)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (t *txStore) InsertStocktake(ctx context.Context, st domain.Stocktake) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO stocktakes (`+stocktakeColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, st.ID, st.ReferenceNumber, st.StoreLocationID, string(st.Status), nullIfEmpty(st.Note), st.CreatedBy,
		nullIfEmpty(st.StartedBy), nullIfEmpty(st.FinalizedBy), st.CreatedAt, st.UpdatedAt,
		nullTime(st.StartedAt), nullTime(st.FinalizedAt))
	if err != nil {
		return duplicate(err)
	}
	return t.insertStocktakeLines(ctx, st)
}

func (t *txStore) SaveStocktake(ctx context.Context, st domain.Stocktake) error {
	res, err := t.q.ExecContext(ctx, `
		UPDATE stocktakes
		SET status = $2, started_by = $3, finalized_by = $4, updated_at = $5, started_at = $6, finalized_at = $7
		WHERE id = $1
	`, st.ID, string(st.Status), nullIfEmpty(st.StartedBy), nullIfEmpty(st.FinalizedBy), st.UpdatedAt,
		nullTime(st.StartedAt), nullTime(st.FinalizedAt))
	if err != nil {
		return err
	}
	if err := expectAffected(res); err != nil {
		return err
	}
	if _, err := t.q.ExecContext(ctx, `DELETE FROM stocktake_lines WHERE stocktake_id = $1`, st.ID); err != nil {
		return err
	}
	return t.insertStocktakeLines(ctx, st)
}

func (t *txStore) insertStocktakeLines(ctx context.Context, st domain.Stocktake) error {
	for i, l := range st.Lines {
		if _, err := t.q.ExecContext(ctx, `
			INSERT INTO stocktake_lines (stocktake_id, line_number, product_id, expected_quantity, counted_quantity, variance_quantity, movement_id)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, st.ID, i+1, l.ProductID, l.ExpectedQuantity, nullDecimal(l.CountedQuantity), nullDecimal(l.VarianceQuantity),
			nullIfEmpty(l.MovementID)); err != nil {
			return err
		}
	}
	return nil
}

func nullDecimal(val *decimal.Decimal) any {
	if val == nil {
		return nil
	}
	return *val
}
