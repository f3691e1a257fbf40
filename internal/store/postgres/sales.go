package postgres

import (
	"context"
	"database/sql"
	"encoding/json"

	"retailpos/backend/internal/domain"
)

func (t *txStore) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var p domain.Product
	err := t.q.QueryRowContext(ctx, `
		SELECT id, name, lot_tracking_enabled, quantity_precision, sale_mode, active
		FROM products
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.LotTrackingEnabled, &p.QuantityPrecision, &p.SaleMode, &p.Active)
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (t *txStore) GetStoreLocation(ctx context.Context, id string) (*domain.StoreLocation, error) {
	var loc domain.StoreLocation
	err := t.q.QueryRowContext(ctx, `
		SELECT id, name, active FROM store_locations WHERE id = $1
	`, id).Scan(&loc.ID, &loc.Name, &loc.Active)
	if err != nil {
		return nil, notFound(err)
	}
	return &loc, nil
}

func (t *txStore) GetSupplier(ctx context.Context, id string) (*domain.Supplier, error) {
	var sup domain.Supplier
	err := t.q.QueryRowContext(ctx, `
		SELECT id, name, active FROM suppliers WHERE id = $1
	`, id).Scan(&sup.ID, &sup.Name, &sup.Active)
	if err != nil {
		return nil, notFound(err)
	}
	return &sup, nil
}

const cartColumns = `
	id, store_location_id, terminal_id, cashier_id, status,
	subtotal_net, total_tax, total_gross, total_payable,
	parked_reference, parked_at, park_expires_at, created_at, updated_at`

func scanCart(row rowScanner) (domain.Cart, error) {
	var (
		c         domain.Cart
		parkedRef sql.NullString
		parkedAt  sql.NullTime
		expiresAt sql.NullTime
	)
	err := row.Scan(&c.ID, &c.StoreLocationID, &c.TerminalID, &c.CashierID, &c.Status,
		&c.SubtotalNet, &c.TotalTax, &c.TotalGross, &c.TotalPayable,
		&parkedRef, &parkedAt, &expiresAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return c, err
	}
	c.ParkedReference = parkedRef.String
	c.ParkedAt = timePtr(parkedAt)
	c.ParkExpiresAt = timePtr(expiresAt)
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return c, nil
}

func (t *txStore) GetCart(ctx context.Context, id string) (*domain.Cart, error) {
	return t.loadCart(ctx, `SELECT `+cartColumns+` FROM carts WHERE id = $1`, id)
}

func (t *txStore) LockCart(ctx context.Context, id string) (*domain.Cart, error) {
	return t.loadCart(ctx, `SELECT `+cartColumns+` FROM carts WHERE id = $1 FOR UPDATE`, id)
}

func (t *txStore) loadCart(ctx context.Context, query string, id string) (*domain.Cart, error) {
	cart, err := scanCart(t.q.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err)
	}
	lines, err := t.cartLines(ctx, cart.ID)
	if err != nil {
		return nil, err
	}
	cart.Lines = lines
	return &cart, nil
}

func (t *txStore) cartLines(ctx context.Context, cartID string) ([]domain.CartLine, error) {
	return queryAll(ctx, t.q, func(row rowScanner) (domain.CartLine, error) {
		var l domain.CartLine
		err := row.Scan(&l.ID, &l.CartID, &l.LineNumber, &l.ProductID, &l.Quantity,
			&l.UnitPrice, &l.NetAmount, &l.TaxAmount, &l.GrossAmount)
		return l, err
	}, `
		SELECT id, cart_id, line_number, product_id, quantity, unit_price, net_amount, tax_amount, gross_amount
		FROM cart_lines
		WHERE cart_id = $1
		ORDER BY line_number
	`, cartID)
}

func (t *txStore) ListCarts(ctx context.Context, storeLocationID string, status domain.CartStatus) ([]domain.Cart, error) {
	carts, err := queryAll(ctx, t.q, scanCart, `
		SELECT `+cartColumns+`
		FROM carts
		WHERE ($1 = '' OR store_location_id = $1)
		  AND ($2 = '' OR status = $2)
		ORDER BY created_at, id
	`, storeLocationID, string(status))
	if err != nil {
		return nil, err
	}
	for i := range carts {
		lines, err := t.cartLines(ctx, carts[i].ID)
		if err != nil {
			return nil, err
		}
		carts[i].Lines = lines
	}
	return carts, nil
}

func (t *txStore) InsertCart(ctx context.Context, cart domain.Cart) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO carts (
			id, store_location_id, terminal_id, cashier_id, status,
			subtotal_net, total_tax, total_gross, total_payable,
			parked_reference, parked_at, park_expires_at, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, cart.ID, cart.StoreLocationID, cart.TerminalID, cart.CashierID, string(cart.Status),
		cart.SubtotalNet, cart.TotalTax, cart.TotalGross, cart.TotalPayable,
		nullIfEmpty(cart.ParkedReference), nullTime(cart.ParkedAt), nullTime(cart.ParkExpiresAt), cart.CreatedAt, cart.UpdatedAt)
	if err != nil {
		return duplicate(err)
	}
	return t.insertCartLines(ctx, cart)
}

func (t *txStore) SaveCart(ctx context.Context, cart domain.Cart) error {
	res, err := t.q.ExecContext(ctx, `
		UPDATE carts
		SET status = $2, subtotal_net = $3, total_tax = $4, total_gross = $5, total_payable = $6,
			parked_reference = $7, parked_at = $8, park_expires_at = $9, updated_at = $10
		WHERE id = $1
	`, cart.ID, string(cart.Status), cart.SubtotalNet, cart.TotalTax, cart.TotalGross, cart.TotalPayable,
		nullIfEmpty(cart.ParkedReference), nullTime(cart.ParkedAt), nullTime(cart.ParkExpiresAt), cart.UpdatedAt)
	if err != nil {
		return err
	}
	if err := expectAffected(res); err != nil {
		return err
	}
	if _, err := t.q.ExecContext(ctx, `DELETE FROM cart_lines WHERE cart_id = $1`, cart.ID); err != nil {
		return err
	}
	return t.insertCartLines(ctx, cart)
}

func (t *txStore) insertCartLines(ctx context.Context, cart domain.Cart) error {
	for _, l := range cart.Lines {
		if _, err := t.q.ExecContext(ctx, `
			INSERT INTO cart_lines (id, cart_id, line_number, product_id, quantity, unit_price, net_amount, tax_amount, gross_amount)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`, l.ID, cart.ID, l.LineNumber, l.ProductID, l.Quantity, l.UnitPrice, l.NetAmount, l.TaxAmount, l.GrossAmount); err != nil {
			return err
		}
	}
	return nil
}

const saleColumns = `
	id, cart_id, store_location_id, terminal_id, cashier_id, receipt_number,
	subtotal_net, total_tax, total_gross, total_payable, created_at`

func (t *txStore) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	return t.loadSale(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1`, id)
}

func (t *txStore) LockSale(ctx context.Context, id string) (*domain.Sale, error) {
	return t.loadSale(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1 FOR UPDATE`, id)
}

func (t *txStore) GetSaleByCart(ctx context.Context, cartID string) (*domain.Sale, error) {
	return t.loadSale(ctx, `SELECT `+saleColumns+` FROM sales WHERE cart_id = $1`, cartID)
}

func (t *txStore) loadSale(ctx context.Context, query string, arg string) (*domain.Sale, error) {
	var s domain.Sale
	err := t.q.QueryRowContext(ctx, query, arg).Scan(&s.ID, &s.CartID, &s.StoreLocationID, &s.TerminalID, &s.CashierID,
		&s.ReceiptNumber, &s.SubtotalNet, &s.TotalTax, &s.TotalGross, &s.TotalPayable, &s.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	s.CreatedAt = s.CreatedAt.UTC()

	lines, err := queryAll(ctx, t.q, func(row rowScanner) (domain.SaleLine, error) {
		var l domain.SaleLine
		err := row.Scan(&l.ID, &l.SaleID, &l.LineNumber, &l.ProductID, &l.Quantity,
			&l.UnitPrice, &l.NetAmount, &l.TaxAmount, &l.GrossAmount)
		return l, err
	}, `
		SELECT id, sale_id, line_number, product_id, quantity, unit_price, net_amount, tax_amount, gross_amount
		FROM sale_lines
		WHERE sale_id = $1
		ORDER BY line_number
	`, s.ID)
	if err != nil {
		return nil, err
	}
	s.Lines = lines
	return &s, nil
}

func (t *txStore) InsertSale(ctx context.Context, sale domain.Sale) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO sales (
			id, cart_id, store_location_id, terminal_id, cashier_id, receipt_number,
			subtotal_net, total_tax, total_gross, total_payable, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, sale.ID, sale.CartID, sale.StoreLocationID, sale.TerminalID, sale.CashierID, sale.ReceiptNumber,
		sale.SubtotalNet, sale.TotalTax, sale.TotalGross, sale.TotalPayable, sale.CreatedAt)
	if err != nil {
		return duplicate(err)
	}
	for _, l := range sale.Lines {
		if _, err := t.q.ExecContext(ctx, `
			INSERT INTO sale_lines (id, sale_id, line_number, product_id, quantity, unit_price, net_amount, tax_amount, gross_amount)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`, l.ID, sale.ID, l.LineNumber, l.ProductID, l.Quantity, l.UnitPrice, l.NetAmount, l.TaxAmount, l.GrossAmount); err != nil {
			return err
		}
	}
	return nil
}

const paymentColumns = `
	id, cart_id, sale_id, status, total_payable, total_allocated, total_tendered, change_amount, created_at, updated_at`

func (t *txStore) GetPayment(ctx context.Context, id string) (*domain.Payment, error) {
	return t.loadPayment(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id)
}

func (t *txStore) ListPaymentsByCart(ctx context.Context, cartID string) ([]domain.Payment, error) {
	ids, err := queryAll(ctx, t.q, func(row rowScanner) (string, error) {
		var id string
		err := row.Scan(&id)
		return id, err
	}, `SELECT id FROM payments WHERE cart_id = $1 ORDER BY created_at, id`, cartID)
	if err != nil {
		return nil, err
	}
	payments := make([]domain.Payment, 0, len(ids))
	for _, id := range ids {
		p, err := t.GetPayment(ctx, id)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *p)
	}
	return payments, nil
}

func (t *txStore) LockPayment(ctx context.Context, id string) (*domain.Payment, error) {
	return t.loadPayment(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1 FOR UPDATE`, id)
}

func (t *txStore) loadPayment(ctx context.Context, query string, id string) (*domain.Payment, error) {
	var p domain.Payment
	err := t.q.QueryRowContext(ctx, query, id).Scan(&p.ID, &p.CartID, &p.SaleID, &p.Status,
		&p.TotalPayable, &p.TotalAllocated, &p.TotalTendered, &p.ChangeAmount, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()

	p.Allocations, err = queryAll(ctx, t.q, func(row rowScanner) (domain.PaymentAllocation, error) {
		var (
			a   domain.PaymentAllocation
			ref sql.NullString
		)
		err := row.Scan(&a.Sequence, &a.TenderType, &a.Amount, &a.TenderedAmount, &a.ChangeAmount, &ref)
		a.Reference = ref.String
		return a, err
	}, `
		SELECT sequence, tender_type, amount, tendered_amount, change_amount, reference
		FROM payment_allocations
		WHERE payment_id = $1
		ORDER BY sequence
	`, p.ID)
	if err != nil {
		return nil, err
	}

	p.Transitions, err = queryAll(ctx, t.q, func(row rowScanner) (domain.PaymentTransition, error) {
		var (
			tr   domain.PaymentTransition
			from sql.NullString
			note sql.NullString
		)
		err := row.Scan(&tr.ID, &tr.PaymentID, &tr.Action, &from, &tr.ToStatus, &tr.Actor, &note, &tr.CreatedAt)
		tr.FromStatus = domain.PaymentStatus(from.String)
		tr.Note = note.String
		tr.CreatedAt = tr.CreatedAt.UTC()
		return tr, err
	}, `
		SELECT id, payment_id, action, from_status, to_status, actor, note, created_at
		FROM payment_transitions
		WHERE payment_id = $1
		ORDER BY seq
	`, p.ID)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (t *txStore) InsertPayment(ctx context.Context, p domain.Payment) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO payments (id, cart_id, sale_id, status, total_payable, total_allocated, total_tendered, change_amount, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, p.ID, p.CartID, p.SaleID, string(p.Status), p.TotalPayable, p.TotalAllocated, p.TotalTendered, p.ChangeAmount, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return duplicate(err)
	}
	for _, a := range p.Allocations {
		if _, err := t.q.ExecContext(ctx, `
			INSERT INTO payment_allocations (payment_id, sequence, tender_type, amount, tendered_amount, change_amount, reference)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, p.ID, a.Sequence, string(a.TenderType), a.Amount, a.TenderedAmount, a.ChangeAmount, nullIfEmpty(a.Reference)); err != nil {
			return err
		}
	}
	return nil
}

func (t *txStore) UpdatePaymentStatus(ctx context.Context, p domain.Payment) error {
	res, err := t.q.ExecContext(ctx, `
		UPDATE payments SET status = $2, updated_at = $3 WHERE id = $1
	`, p.ID, string(p.Status), p.UpdatedAt)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func (t *txStore) InsertPaymentTransition(ctx context.Context, tr domain.PaymentTransition) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO payment_transitions (id, payment_id, action, from_status, to_status, actor, note, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, tr.ID, tr.PaymentID, string(tr.Action), nullIfEmpty(string(tr.FromStatus)), string(tr.ToStatus), tr.Actor, nullIfEmpty(tr.Note), tr.CreatedAt)
	return err
}

func (t *txStore) GetIdempotency(ctx context.Context, scope string, key string) (*domain.IdempotencyRecord, error) {
	return t.loadIdempotency(ctx, `
		SELECT scope, key, fingerprint, response, created_at
		FROM idempotency_records
		WHERE scope = $1 AND key = $2
	`, scope, key)
}

func (t *txStore) LockIdempotency(ctx context.Context, scope string, key string) (*domain.IdempotencyRecord, error) {
	return t.loadIdempotency(ctx, `
		SELECT scope, key, fingerprint, response, created_at
		FROM idempotency_records
		WHERE scope = $1 AND key = $2
		FOR UPDATE
	`, scope, key)
}

func (t *txStore) loadIdempotency(ctx context.Context, query string, scope string, key string) (*domain.IdempotencyRecord, error) {
	var (
		rec      domain.IdempotencyRecord
		response []byte
	)
	if err := t.q.QueryRowContext(ctx, query, scope, key).Scan(&rec.Scope, &rec.Key, &rec.Fingerprint, &response, &rec.CreatedAt); err != nil {
		return nil, notFound(err)
	}
	if len(response) > 0 {
		rec.Response = json.RawMessage(response)
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	return &rec, nil
}

func (t *txStore) InsertIdempotency(ctx context.Context, rec domain.IdempotencyRecord) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO idempotency_records (scope, key, fingerprint, response, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, rec.Scope, rec.Key, rec.Fingerprint, nullJSON(rec.Response), rec.CreatedAt)
	return duplicate(err)
}

func (t *txStore) CompleteIdempotency(ctx context.Context, rec domain.IdempotencyRecord) error {
	res, err := t.q.ExecContext(ctx, `
		UPDATE idempotency_records SET response = $3 WHERE scope = $1 AND key = $2
	`, rec.Scope, rec.Key, nullJSON(rec.Response))
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
