package costing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"retailpos/backend/internal/apperr"
	"retailpos/backend/internal/domain"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestWeightedAverageBlendsReceipt(t *testing.T) {
	got, err := WeightedAverageCost(dec("10"), dec("2.0000"), dec("5"), dec("2.6000"))
	require.NoError(t, err)
	require.True(t, got.Equal(dec("2.2000")), "got %s", got)
}

func TestWeightedAverageRoundsThroughDivScale(t *testing.T) {
	// 4 units at 1 plus 3 units at 3 is 13/7 = 1.857142857...
	got, err := WeightedAverageCost(dec("4"), dec("1"), dec("3"), dec("3"))
	require.NoError(t, err)
	require.True(t, got.Equal(dec("1.8571")), "got %s", got)
}

func TestWeightedAverageWithoutPositiveStockUsesReceivedCost(t *testing.T) {
	for _, onHand := range []string{"0", "-3"} {
		got, err := WeightedAverageCost(dec(onHand), dec("9.9900"), dec("2"), dec("4.12345"))
		require.NoError(t, err)
		require.True(t, got.Equal(dec("4.1235")), "onHand %s: got %s", onHand, got)
	}
}

func TestWeightedAverageRejectsNonPositiveReceipt(t *testing.T) {
	for _, qty := range []string{"0", "-1", "0.0004"} {
		_, err := WeightedAverageCost(dec("1"), dec("1"), dec(qty), dec("1"))
		require.True(t, apperr.Is(err, apperr.KindInvalidArgument), "qty %s: %v", qty, err)
	}
}

func TestApplyUpdatesRecord(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	record := &domain.CostRecord{
		StoreLocationID:     "store-1",
		ProductID:           "prod-1",
		WeightedAverageCost: dec("2"),
		LastCost:            dec("2"),
	}

	require.NoError(t, Apply(record, dec("10"), dec("10"), dec("4"), "GR-ABC-P1", now))
	require.True(t, record.WeightedAverageCost.Equal(dec("3")))
	require.True(t, record.LastCost.Equal(dec("4")))
	require.Equal(t, "GR-ABC-P1", record.LastReceiptReference)
	require.Equal(t, now, record.UpdatedAt)
}
