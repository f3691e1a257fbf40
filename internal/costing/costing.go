// Package costing maintains weighted-average unit cost per store and product.
package costing

import (
	"time"

	"github.com/shopspring/decimal"

	"retailpos/backend/internal/apperr"
	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/numeric"
)

// WeightedAverageCost blends a receipt into the current average. When there
// is no positive stock to blend with, the received cost becomes the average.
func WeightedAverageCost(onHand, currentAverage, receivedQty, receivedCost decimal.Decimal) (decimal.Decimal, error) {
	onHand = numeric.QuantityOf(onHand)
	currentAverage = numeric.CostOf(currentAverage)
	receivedQty = numeric.QuantityOf(receivedQty)
	receivedCost = numeric.CostOf(receivedCost)

	if !receivedQty.IsPositive() {
		return decimal.Zero, apperr.Invalid("receivedQuantity must be greater than zero")
	}
	if !onHand.IsPositive() {
		return receivedCost, nil
	}

	totalQty := onHand.Add(receivedQty)
	if !totalQty.IsPositive() {
		return receivedCost, nil
	}

	totalValue := onHand.Mul(currentAverage).Add(receivedQty.Mul(receivedCost))
	return numeric.CostOf(totalValue.DivRound(totalQty, numeric.DivScale)), nil
}

// Apply folds a receipt into record. The caller must hold the record's lock
// for the whole unit of work.
func Apply(record *domain.CostRecord, onHandBefore, receivedQty, unitCost decimal.Decimal, reference string, now time.Time) error {
	average, err := WeightedAverageCost(onHandBefore, record.WeightedAverageCost, receivedQty, unitCost)
	if err != nil {
		return err
	}
	record.WeightedAverageCost = average
	record.LastCost = numeric.CostOf(unitCost)
	record.LastReceiptReference = reference
	record.UpdatedAt = now
	return nil
}
