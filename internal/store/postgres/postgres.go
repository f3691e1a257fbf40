package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"retailpos/backend/internal/database"
	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/store"
)

type Store struct {
	db     *sql.DB
	txOpts database.TxOptions
}

var _ store.Repository = (*Store)(nil)

type Option func(*Store)

// WithMaxRetries caps how often a unit of work is re-run after a
// serialization failure or deadlock.
func WithMaxRetries(n int) Option {
	return func(s *Store) {
		if n >= 0 {
			s.txOpts.MaxRetries = n
		}
	}
}

func New(ctx context.Context, databaseURL string, opts ...Option) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{db: db, txOpts: database.DefaultTxOptions()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	err := database.WithRetry(ctx, s.db, s.txOpts, func(sqlTx *sql.Tx) error {
		return fn(ctx, &txStore{q: sqlTx})
	})
	if err != nil && !errors.Is(err, store.ErrDuplicate) && database.IsUniqueViolation(err) {
		return fmt.Errorf("%w: %v", store.ErrDuplicate, err)
	}
	return err
}

func (s *Store) View(ctx context.Context, fn func(ctx context.Context, r store.Reader) error) error {
	return database.WithTransaction(ctx, s.db, database.ReadOnlyTxOptions(), func(sqlTx *sql.Tx) error {
		return fn(ctx, &txStore{q: sqlTx})
	})
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	return queryAll(ctx, s.db, func(row rowScanner) (domain.UserAccount, error) {
		var user domain.UserAccount
		if err := row.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return user, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		return user, nil
	}, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	return duplicate(err)
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrNotFound
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

// UpsertUser is used by bootstrap to create or refresh a login.
func (s *Store) UpsertUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
		ON CONFLICT (username)
		DO UPDATE SET password = EXCLUDED.password, role = EXCLUDED.role, active = EXCLUDED.active, updated_at = now()
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	return err
}

func (s *Store) UpsertProduct(ctx context.Context, p domain.Product) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, lot_tracking_enabled, quantity_precision, sale_mode, active)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (id)
		DO UPDATE SET name = EXCLUDED.name, lot_tracking_enabled = EXCLUDED.lot_tracking_enabled,
			quantity_precision = EXCLUDED.quantity_precision, sale_mode = EXCLUDED.sale_mode, active = EXCLUDED.active
	`, p.ID, p.Name, p.LotTrackingEnabled, p.QuantityPrecision, string(p.SaleMode), p.Active)
	return err
}

func (s *Store) UpsertStoreLocation(ctx context.Context, loc domain.StoreLocation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO store_locations (id, name, active)
		VALUES ($1,$2,$3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, active = EXCLUDED.active
	`, loc.ID, loc.Name, loc.Active)
	return err
}

func (s *Store) UpsertSupplier(ctx context.Context, sup domain.Supplier) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO suppliers (id, name, active)
		VALUES ($1,$2,$3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, active = EXCLUDED.active
	`, sup.ID, sup.Name, sup.Active)
	return err
}

// txStore runs every Reader and Tx method against one open transaction.
type txStore struct {
	q queryer
}

var _ store.Tx = (*txStore)(nil)

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

func queryAll[T any](ctx context.Context, q queryer, scan func(rowScanner) (T, error), query string, args ...any) ([]T, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]T, 0, 16)
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func duplicate(err error) error {
	if database.IsUniqueViolation(err) {
		return store.ErrDuplicate
	}
	return err
}

func expectAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func nowDateUTC(t time.Time) time.Time {
	return time.Date(t.UTC().Year(), t.UTC().Month(), t.UTC().Day(), 0, 0, 0, 0, time.UTC)
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullDate(val *time.Time) any {
	if val == nil {
		return nil
	}
	return nowDateUTC(*val)
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}

func timePtr(val sql.NullTime) *time.Time {
	if !val.Valid {
		return nil
	}
	t := val.Time.UTC()
	return &t
}

func datePtr(val sql.NullTime) *time.Time {
	if !val.Valid {
		return nil
	}
	t := nowDateUTC(val.Time)
	return &t
}
