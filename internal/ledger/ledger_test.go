package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"retailpos/backend/internal/apperr"
	"retailpos/backend/internal/domain"
)

type fakeStore struct {
	movements []domain.Movement
}

func (f *fakeStore) InsertMovement(_ context.Context, m domain.Movement) (domain.Movement, error) {
	m.Seq = int64(len(f.movements) + 1)
	f.movements = append(f.movements, m)
	return m, nil
}

func (f *fakeStore) SumQuantityOnHand(_ context.Context, storeLocationID string, productID string) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, m := range f.movements {
		if m.StoreLocationID == storeLocationID && m.ProductID == productID {
			total = total.Add(m.QuantityDelta)
		}
	}
	return total, nil
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func movement(product string, delta string) domain.Movement {
	return domain.Movement{
		StoreLocationID: "store-1",
		ProductID:       product,
		MovementType:    domain.MovementAdjustment,
		QuantityDelta:   dec(delta),
		ReferenceType:   domain.RefStockAdjustment,
		ReferenceNumber: "ADJ-TEST",
	}
}

func TestAppendAssignsIdentityAndNormalizes(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	l := New(func() time.Time { return now })
	st := &fakeStore{}

	got, err := l.Append(context.Background(), st, movement("p1", "1.2345"))
	require.NoError(t, err)
	require.NotEmpty(t, got.ID)
	require.Equal(t, int64(1), got.Seq)
	require.Equal(t, now, got.CreatedAt)
	require.True(t, got.QuantityDelta.Equal(dec("1.235")))
}

func TestAppendRejectsZeroDelta(t *testing.T) {
	_, err := New(nil).Append(context.Background(), &fakeStore{}, movement("p1", "0.0001"))
	require.True(t, apperr.Is(err, apperr.KindInvalidArgument))
}

func TestRunningBalanceMatchesCurrentBalance(t *testing.T) {
	l := New(nil)
	st := &fakeStore{}
	ctx := context.Background()
	for _, m := range []domain.Movement{
		movement("p1", "10"),
		movement("p2", "4"),
		movement("p1", "-3.5"),
		movement("p2", "-1"),
		movement("p1", "0.25"),
	} {
		_, err := l.Append(ctx, st, m)
		require.NoError(t, err)
	}

	entries := RunningBalances(st.movements)
	require.Len(t, entries, 5)

	last := map[string]decimal.Decimal{}
	for _, e := range entries {
		last[e.ProductID] = e.RunningBalance
	}
	for _, product := range []string{"p1", "p2"} {
		balance, err := l.Balance(ctx, st, "store-1", product)
		require.NoError(t, err)
		require.True(t, balance.Equal(last[product]), "%s: %s vs %s", product, balance, last[product])
	}
	require.True(t, entries[2].RunningBalance.Equal(dec("6.5")))
	require.True(t, last["p1"].Equal(dec("6.75")))
}

func TestValidateManual(t *testing.T) {
	base := domain.MovementCreateRequest{
		StoreLocationID: "store-1",
		ProductID:       "p1",
		MovementType:    domain.MovementAdjustment,
		QuantityDelta:   dec("-2"),
		ReferenceType:   domain.RefStockAdjustment,
		ReferenceNumber: "ADJ-1",
	}
	require.NoError(t, ValidateManual(base))

	sale := base
	sale.MovementType = domain.MovementSale
	require.True(t, apperr.Is(ValidateManual(sale), apperr.KindInvalidArgument))

	wrongRef := base
	wrongRef.ReferenceType = domain.RefSaleReturn
	require.True(t, apperr.Is(ValidateManual(wrongRef), apperr.KindInvalidArgument))

	ret := base
	ret.MovementType = domain.MovementReturn
	ret.ReferenceType = domain.RefSaleReturn
	require.True(t, apperr.Is(ValidateManual(ret), apperr.KindInvalidArgument), "negative return must fail")
	ret.QuantityDelta = dec("2")
	require.NoError(t, ValidateManual(ret))

	noRef := base
	noRef.ReferenceNumber = "  "
	require.True(t, apperr.Is(ValidateManual(noRef), apperr.KindInvalidArgument))

	zero := base
	zero.QuantityDelta = decimal.Zero
	require.True(t, apperr.Is(ValidateManual(zero), apperr.KindInvalidArgument))
}
