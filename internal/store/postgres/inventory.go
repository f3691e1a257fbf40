package postgres

import (
	"context"
	"database/sql"

	"github.com/shopspring/decimal"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/numeric"
	"retailpos/backend/internal/xid"
)

func (t *txStore) InsertMovement(ctx context.Context, m domain.Movement) (domain.Movement, error) {
	err := t.q.QueryRowContext(ctx, `
		INSERT INTO inventory_movements (
			id, store_location_id, product_id, movement_type, quantity_delta,
			reference_type, reference_number, sale_id, sale_line_id, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING seq
	`, m.ID, m.StoreLocationID, m.ProductID, string(m.MovementType), m.QuantityDelta,
		string(m.ReferenceType), m.ReferenceNumber, nullIfEmpty(m.SaleID), nullIfEmpty(m.SaleLineID), m.CreatedAt).Scan(&m.Seq)
	if err != nil {
		return domain.Movement{}, duplicate(err)
	}
	return m, nil
}

func (t *txStore) SumQuantityOnHand(ctx context.Context, storeLocationID string, productID string) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := t.q.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(quantity_delta), 0)
		FROM inventory_movements
		WHERE store_location_id = $1 AND product_id = $2
	`, storeLocationID, productID).Scan(&total)
	if err != nil {
		return decimal.Zero, err
	}
	return numeric.QuantityOf(total), nil
}

func (t *txStore) ListMovements(ctx context.Context, storeLocationID string, productID string) ([]domain.Movement, error) {
	return queryAll(ctx, t.q, func(row rowScanner) (domain.Movement, error) {
		var (
			m          domain.Movement
			saleID     sql.NullString
			saleLineID sql.NullString
		)
		err := row.Scan(&m.Seq, &m.ID, &m.StoreLocationID, &m.ProductID, &m.MovementType, &m.QuantityDelta,
			&m.ReferenceType, &m.ReferenceNumber, &saleID, &saleLineID, &m.CreatedAt)
		m.SaleID = saleID.String
		m.SaleLineID = saleLineID.String
		m.CreatedAt = m.CreatedAt.UTC()
		return m, err
	}, `
		SELECT seq, id, store_location_id, product_id, movement_type, quantity_delta,
			reference_type, reference_number, sale_id, sale_line_id, created_at
		FROM inventory_movements
		WHERE store_location_id = $1
		  AND ($2 = '' OR product_id = $2)
		ORDER BY seq
	`, storeLocationID, productID)
}

func (t *txStore) ListBalances(ctx context.Context, storeLocationID string, productID string) ([]domain.StockBalance, error) {
	return queryAll(ctx, t.q, func(row rowScanner) (domain.StockBalance, error) {
		var b domain.StockBalance
		err := row.Scan(&b.StoreLocationID, &b.ProductID, &b.QuantityOnHand, &b.WeightedAverageCost, &b.LastCost)
		b.QuantityOnHand = numeric.QuantityOf(b.QuantityOnHand)
		return b, err
	}, `
		SELECT m.store_location_id, m.product_id, SUM(m.quantity_delta),
			COALESCE(MAX(c.weighted_average_cost), 0), COALESCE(MAX(c.last_cost), 0)
		FROM inventory_movements m
		LEFT JOIN product_costs c
			ON c.store_location_id = m.store_location_id AND c.product_id = m.product_id
		WHERE m.store_location_id = $1
		  AND ($2 = '' OR m.product_id = $2)
		GROUP BY m.store_location_id, m.product_id
		ORDER BY m.product_id
	`, storeLocationID, productID)
}

const lotBalanceSelect = `
	SELECT l.id, l.store_location_id, l.product_id, l.lot_code, l.expiry_date, b.quantity_on_hand
	FROM lot_balances b
	JOIN inventory_lots l ON l.id = b.lot_id
	WHERE l.store_location_id = $1
	  AND ($2 = '' OR l.product_id = $2)
	  AND b.quantity_on_hand > 0
	ORDER BY l.product_id, l.expiry_date ASC NULLS LAST, l.lot_code, l.id`

func scanLotBalance(row rowScanner) (domain.LotBalance, error) {
	var (
		b      domain.LotBalance
		expiry sql.NullTime
	)
	err := row.Scan(&b.LotID, &b.StoreLocationID, &b.ProductID, &b.LotCode, &expiry, &b.QuantityOnHand)
	b.ExpiryDate = datePtr(expiry)
	b.QuantityOnHand = numeric.QuantityOf(b.QuantityOnHand)
	return b, err
}

func (t *txStore) ListLotBalances(ctx context.Context, storeLocationID string, productID string) ([]domain.LotBalance, error) {
	return queryAll(ctx, t.q, scanLotBalance, lotBalanceSelect, storeLocationID, productID)
}

func (t *txStore) LockPositiveLotBalances(ctx context.Context, storeLocationID string, productID string) ([]domain.LotBalance, error) {
	return queryAll(ctx, t.q, scanLotBalance, lotBalanceSelect+` FOR UPDATE OF b`, storeLocationID, productID)
}

func (t *txStore) EnsureLot(ctx context.Context, lot domain.InventoryLot) (domain.InventoryLot, error) {
	if _, err := t.q.ExecContext(ctx, `
		INSERT INTO inventory_lots (id, store_location_id, product_id, lot_code, expiry_date, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (store_location_id, product_id, lot_code, expiry_date) DO NOTHING
	`, lot.ID, lot.StoreLocationID, lot.ProductID, lot.LotCode, nullDate(lot.ExpiryDate), lot.CreatedAt); err != nil {
		return domain.InventoryLot{}, err
	}

	var (
		out    domain.InventoryLot
		expiry sql.NullTime
	)
	err := t.q.QueryRowContext(ctx, `
		SELECT id, store_location_id, product_id, lot_code, expiry_date, created_at
		FROM inventory_lots
		WHERE store_location_id = $1 AND product_id = $2 AND lot_code = $3
		  AND expiry_date IS NOT DISTINCT FROM $4::date
		FOR UPDATE
	`, lot.StoreLocationID, lot.ProductID, lot.LotCode, nullDate(lot.ExpiryDate)).
		Scan(&out.ID, &out.StoreLocationID, &out.ProductID, &out.LotCode, &expiry, &out.CreatedAt)
	if err != nil {
		return domain.InventoryLot{}, notFound(err)
	}
	out.ExpiryDate = datePtr(expiry)
	out.CreatedAt = out.CreatedAt.UTC()
	return out, nil
}

func (t *txStore) GetLot(ctx context.Context, lotID string) (*domain.InventoryLot, error) {
	var (
		lot    domain.InventoryLot
		expiry sql.NullTime
	)
	err := t.q.QueryRowContext(ctx, `
		SELECT id, store_location_id, product_id, lot_code, expiry_date, created_at
		FROM inventory_lots
		WHERE id = $1
	`, lotID).Scan(&lot.ID, &lot.StoreLocationID, &lot.ProductID, &lot.LotCode, &expiry, &lot.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	lot.ExpiryDate = datePtr(expiry)
	lot.CreatedAt = lot.CreatedAt.UTC()
	return &lot, nil
}

// LockLotBalance creates a zero balance row when missing so the row lock
// covers first receipts into a new lot too.
func (t *txStore) LockLotBalance(ctx context.Context, lotID string) (decimal.Decimal, error) {
	if _, err := t.q.ExecContext(ctx, `
		INSERT INTO lot_balances (lot_id, quantity_on_hand)
		VALUES ($1, 0)
		ON CONFLICT (lot_id) DO NOTHING
	`, lotID); err != nil {
		return decimal.Zero, err
	}
	var qty decimal.Decimal
	err := t.q.QueryRowContext(ctx, `
		SELECT quantity_on_hand FROM lot_balances WHERE lot_id = $1 FOR UPDATE
	`, lotID).Scan(&qty)
	if err != nil {
		return decimal.Zero, notFound(err)
	}
	return numeric.QuantityOf(qty), nil
}

func (t *txStore) SaveLotBalance(ctx context.Context, balance domain.LotBalance) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO lot_balances (lot_id, quantity_on_hand, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (lot_id) DO UPDATE SET quantity_on_hand = EXCLUDED.quantity_on_hand, updated_at = now()
	`, balance.LotID, numeric.QuantityOf(balance.QuantityOnHand))
	return err
}

func (t *txStore) InsertMovementLot(ctx context.Context, link domain.MovementLot) error {
	if link.ID == "" {
		link.ID = xid.New("mvl")
	}
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO movement_lots (id, movement_id, lot_id, quantity)
		VALUES ($1,$2,$3,$4)
	`, link.ID, link.MovementID, link.LotID, link.Quantity)
	return err
}

func (t *txStore) SoldLotsBySaleLine(ctx context.Context, saleLineID string) ([]domain.LotQuantity, error) {
	return t.lotLinksFor(ctx, saleLineID, domain.MovementSale)
}

func (t *txStore) ReturnedLotsBySaleLine(ctx context.Context, saleLineID string) ([]domain.LotQuantity, error) {
	return t.lotLinksFor(ctx, saleLineID, domain.MovementReturn)
}

func (t *txStore) lotLinksFor(ctx context.Context, saleLineID string, movementType domain.MovementType) ([]domain.LotQuantity, error) {
	return queryAll(ctx, t.q, func(row rowScanner) (domain.LotQuantity, error) {
		var lq domain.LotQuantity
		err := row.Scan(&lq.LotID, &lq.Quantity)
		return lq, err
	}, `
		SELECT ml.lot_id, ml.quantity
		FROM movement_lots ml
		JOIN inventory_movements m ON m.id = ml.movement_id
		WHERE m.sale_line_id = $1 AND m.movement_type = $2
		ORDER BY ml.seq
	`, saleLineID, string(movementType))
}

func (t *txStore) ReturnedQuantityBySaleLine(ctx context.Context, saleLineID string) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := t.q.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(quantity_delta), 0)
		FROM inventory_movements
		WHERE sale_line_id = $1 AND movement_type = 'RETURN'
	`, saleLineID).Scan(&total)
	if err != nil {
		return decimal.Zero, err
	}
	return numeric.QuantityOf(total), nil
}

const costSelect = `
	SELECT store_location_id, product_id, weighted_average_cost, last_cost, last_receipt_reference, updated_at
	FROM product_costs
	WHERE store_location_id = $1 AND product_id = $2`

func (t *txStore) scanCost(row rowScanner) (*domain.CostRecord, error) {
	var (
		rec domain.CostRecord
		ref sql.NullString
	)
	if err := row.Scan(&rec.StoreLocationID, &rec.ProductID, &rec.WeightedAverageCost, &rec.LastCost, &ref, &rec.UpdatedAt); err != nil {
		return nil, notFound(err)
	}
	rec.LastReceiptReference = ref.String
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return &rec, nil
}

func (t *txStore) GetCostRecord(ctx context.Context, storeLocationID string, productID string) (*domain.CostRecord, error) {
	return t.scanCost(t.q.QueryRowContext(ctx, costSelect, storeLocationID, productID))
}

func (t *txStore) LockCostRecord(ctx context.Context, storeLocationID string, productID string) (*domain.CostRecord, error) {
	if _, err := t.q.ExecContext(ctx, `
		INSERT INTO product_costs (store_location_id, product_id)
		VALUES ($1, $2)
		ON CONFLICT (store_location_id, product_id) DO NOTHING
	`, storeLocationID, productID); err != nil {
		return nil, err
	}
	return t.scanCost(t.q.QueryRowContext(ctx, costSelect+` FOR UPDATE`, storeLocationID, productID))
}

func (t *txStore) SaveCostRecord(ctx context.Context, rec domain.CostRecord) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO product_costs (store_location_id, product_id, weighted_average_cost, last_cost, last_receipt_reference, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (store_location_id, product_id)
		DO UPDATE SET weighted_average_cost = EXCLUDED.weighted_average_cost, last_cost = EXCLUDED.last_cost,
			last_receipt_reference = EXCLUDED.last_receipt_reference, updated_at = EXCLUDED.updated_at
	`, rec.StoreLocationID, rec.ProductID, rec.WeightedAverageCost, rec.LastCost, nullIfEmpty(rec.LastReceiptReference), rec.UpdatedAt)
	return err
}
