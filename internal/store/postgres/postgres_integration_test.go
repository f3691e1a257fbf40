package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/store"
)

// setupTestStore starts a throwaway Postgres, or reuses POS_TEST_DATABASE_URL
// when set, and returns a migrated store with a minimal catalog.
func setupTestStore(t *testing.T) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	ctx := context.Background()

	dsn := os.Getenv("POS_TEST_DATABASE_URL")
	if dsn == "" {
		req := testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "testuser",
				"POSTGRES_PASSWORD": "testpass",
				"POSTGRES_DB":       "testdb",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		}
		container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: req,
			Started:          true,
		})
		if err != nil {
			t.Skipf("postgres container unavailable: %v", err)
		}
		t.Cleanup(func() {
			if err := container.Terminate(ctx); err != nil {
				t.Logf("terminate container: %v", err)
			}
		})

		host, err := container.Host(ctx)
		require.NoError(t, err)
		port, err := container.MappedPort(ctx, "5432")
		require.NoError(t, err)
		dsn = fmt.Sprintf("postgres://testuser:testpass@%s:%s/testdb?sslmode=disable", host, port.Port())
	}

	s, err := New(ctx, dsn, WithMaxRetries(8))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(ctx))

	require.NoError(t, s.UpsertStoreLocation(ctx, domain.StoreLocation{ID: "store-it", Name: "Integration", Active: true}))
	require.NoError(t, s.UpsertProduct(ctx, domain.Product{ID: "prod-it-lot", Name: "Lot Item", LotTrackingEnabled: true, SaleMode: domain.SaleModeUnit, Active: true}))
	require.NoError(t, s.UpsertProduct(ctx, domain.Product{ID: "prod-it-plain", Name: "Plain Item", QuantityPrecision: 3, SaleMode: domain.SaleModeWeight, Active: true}))
	return s
}

func TestMigrateIsRepeatable(t *testing.T) {
	s := setupTestStore(t)
	require.NoError(t, s.Migrate(context.Background()))
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.InsertMovement(ctx, domain.Movement{
			ID: "mov-rollback", StoreLocationID: "store-it", ProductID: "prod-it-plain",
			MovementType: domain.MovementAdjustment, QuantityDelta: decimal.RequireFromString("5"),
			ReferenceType: domain.RefStockAdjustment, ReferenceNumber: "ADJ-RB", CreatedAt: time.Now().UTC(),
		})
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = s.View(ctx, func(ctx context.Context, r store.Reader) error {
		movements, err := r.ListMovements(ctx, "store-it", "prod-it-plain")
		require.NoError(t, err)
		assert.Empty(t, movements)
		return nil
	})
	require.NoError(t, err)
}

func TestIdempotencyInsertReportsDuplicate(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	key := fmt.Sprintf("dup-%d", time.Now().UnixNano())
	rec := domain.IdempotencyRecord{Scope: "checkout", Key: key, Fingerprint: "abc", CreatedAt: time.Now().UTC()}

	require.NoError(t, s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.InsertIdempotency(ctx, rec); err != nil {
			return err
		}
		rec.Response = []byte(`{"sale_id":"sale-1"}`)
		return tx.CompleteIdempotency(ctx, rec)
	}))

	err := s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertIdempotency(ctx, rec)
	})
	require.ErrorIs(t, err, store.ErrDuplicate)

	require.NoError(t, s.View(ctx, func(ctx context.Context, r store.Reader) error {
		got, err := r.GetIdempotency(ctx, "checkout", key)
		require.NoError(t, err)
		assert.Equal(t, "abc", got.Fingerprint)
		assert.JSONEq(t, `{"sale_id":"sale-1"}`, string(got.Response))
		return nil
	}))
}

func TestEnsureLotReturnsExistingLot(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	expiry := time.Date(2030, 1, 15, 0, 0, 0, 0, time.UTC)

	var first, second domain.InventoryLot
	require.NoError(t, s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		first, err = tx.EnsureLot(ctx, domain.InventoryLot{
			ID: "lot-a", StoreLocationID: "store-it", ProductID: "prod-it-lot", LotCode: "L1", ExpiryDate: &expiry, CreatedAt: time.Now().UTC(),
		})
		if err != nil {
			return err
		}
		second, err = tx.EnsureLot(ctx, domain.InventoryLot{
			ID: "lot-b", StoreLocationID: "store-it", ProductID: "prod-it-lot", LotCode: "L1", ExpiryDate: &expiry, CreatedAt: time.Now().UTC(),
		})
		return err
	}))
	assert.Equal(t, "lot-a", first.ID)
	assert.Equal(t, "lot-a", second.ID)
	require.NotNil(t, second.ExpiryDate)
	assert.True(t, second.ExpiryDate.Equal(expiry))

	var noExpiry domain.InventoryLot
	require.NoError(t, s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		if _, err = tx.EnsureLot(ctx, domain.InventoryLot{ID: "lot-c", StoreLocationID: "store-it", ProductID: "prod-it-lot", LotCode: "L2", CreatedAt: time.Now().UTC()}); err != nil {
			return err
		}
		noExpiry, err = tx.EnsureLot(ctx, domain.InventoryLot{ID: "lot-d", StoreLocationID: "store-it", ProductID: "prod-it-lot", LotCode: "L2", CreatedAt: time.Now().UTC()})
		return err
	}))
	assert.Equal(t, "lot-c", noExpiry.ID)
	assert.Nil(t, noExpiry.ExpiryDate)
}

func TestConcurrentLotDecrementsSerialize(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	const workers = 4

	require.NoError(t, s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		lot, err := tx.EnsureLot(ctx, domain.InventoryLot{ID: "lot-race", StoreLocationID: "store-it", ProductID: "prod-it-lot", LotCode: "RACE", CreatedAt: time.Now().UTC()})
		if err != nil {
			return err
		}
		return tx.SaveLotBalance(ctx, domain.LotBalance{LotID: lot.ID, QuantityOnHand: decimal.NewFromInt(workers)})
	}))

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
				qty, err := tx.LockLotBalance(ctx, "lot-race")
				if err != nil {
					return err
				}
				return tx.SaveLotBalance(ctx, domain.LotBalance{LotID: "lot-race", QuantityOnHand: qty.Sub(decimal.NewFromInt(1))})
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	require.NoError(t, s.View(ctx, func(ctx context.Context, r store.Reader) error {
		balances, err := r.ListLotBalances(ctx, "store-it", "prod-it-lot")
		require.NoError(t, err)
		for _, b := range balances {
			if b.LotID == "lot-race" {
				t.Fatalf("expected lot-race to be fully consumed, still has %s", b.QuantityOnHand)
			}
		}
		return nil
	}))
}
