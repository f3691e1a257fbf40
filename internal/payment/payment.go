// Package payment holds the payment lifecycle state machine and the tender
// allocation rules applied at checkout.
package payment

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"retailpos/backend/internal/apperr"
	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/numeric"
	"retailpos/backend/internal/xid"
)

const authorizeNote = "payment authorized at checkout"

// NextStatus looks up the transition table. An empty from status is the
// state of a payment that does not exist yet.
func NextStatus(from domain.PaymentStatus, action domain.PaymentAction) (domain.PaymentStatus, bool) {
	switch {
	case from == "" && action == domain.PaymentActionAuthorize:
		return domain.PaymentStatusAuthorized, true
	case from == domain.PaymentStatusAuthorized && action == domain.PaymentActionCapture:
		return domain.PaymentStatusCaptured, true
	case from == domain.PaymentStatusAuthorized && action == domain.PaymentActionVoid:
		return domain.PaymentStatusVoided, true
	case from == domain.PaymentStatusCaptured && action == domain.PaymentActionRefund:
		return domain.PaymentStatusRefunded, true
	}
	return "", false
}

// Authorize records the initial AUTHORIZE transition on a new payment.
func Authorize(p *domain.Payment, actor string, now time.Time) (domain.PaymentTransition, error) {
	return apply(p, "", domain.PaymentActionAuthorize, actor, authorizeNote, now)
}

// Apply moves p along action and returns the transition to persist.
func Apply(p *domain.Payment, action domain.PaymentAction, actor string, note string, now time.Time) (domain.PaymentTransition, error) {
	return apply(p, p.Status, action, actor, note, now)
}

func apply(p *domain.Payment, from domain.PaymentStatus, action domain.PaymentAction, actor string, note string, now time.Time) (domain.PaymentTransition, error) {
	to, ok := NextStatus(from, action)
	if !ok {
		fromLabel := string(from)
		if fromLabel == "" {
			fromLabel = "NEW"
		}
		return domain.PaymentTransition{}, apperr.Conflict("invalid payment transition from %s with action %s", fromLabel, action)
	}
	if strings.TrimSpace(actor) == "" {
		actor = domain.SystemActor
	}

	t := domain.PaymentTransition{
		ID:         xid.New("ptr"),
		PaymentID:  p.ID,
		Action:     action,
		FromStatus: from,
		ToStatus:   to,
		Actor:      actor,
		Note:       strings.TrimSpace(note),
		CreatedAt:  now.UTC(),
	}
	p.Status = to
	p.UpdatedAt = t.CreatedAt
	p.Transitions = append(p.Transitions, t)
	return t, nil
}

// ParseAction maps a route verb such as "capture" to its action.
func ParseAction(raw string) (domain.PaymentAction, bool) {
	switch domain.PaymentAction(strings.ToUpper(strings.TrimSpace(raw))) {
	case domain.PaymentActionCapture:
		return domain.PaymentActionCapture, true
	case domain.PaymentActionVoid:
		return domain.PaymentActionVoid, true
	case domain.PaymentActionRefund:
		return domain.PaymentActionRefund, true
	}
	return "", false
}

// Summary is the validated outcome of a tender list.
type Summary struct {
	Allocations    []domain.PaymentAllocation
	TotalAllocated decimal.Decimal
	TotalTendered  decimal.Decimal
	ChangeAmount   decimal.Decimal
}

// ValidateShape runs the checks that do not need the cart total.
func ValidateShape(reqs []domain.PaymentAllocationRequest) error {
	if len(reqs) == 0 {
		return apperr.Invalid("at least one payment allocation is required")
	}
	for i, req := range reqs {
		if !req.TenderType.Valid() {
			return apperr.Invalid("payment %d: unsupported tender type %q", i+1, req.TenderType)
		}
		if !numeric.CostOf(req.Amount).IsPositive() {
			return apperr.Invalid("payment %d: amount must be greater than zero", i+1)
		}
		if req.TenderedAmount != nil && numeric.CostOf(*req.TenderedAmount).IsNegative() {
			return apperr.Invalid("payment %d: tendered amount must not be negative", i+1)
		}
	}
	return nil
}

// ValidateAllocations checks tenders against the payable total and derives
// per-tender change. Only cash can be over-tendered.
func ValidateAllocations(totalPayable decimal.Decimal, reqs []domain.PaymentAllocationRequest) (Summary, error) {
	if err := ValidateShape(reqs); err != nil {
		return Summary{}, err
	}
	totalPayable = numeric.CostOf(totalPayable)

	summary := Summary{
		Allocations:    make([]domain.PaymentAllocation, 0, len(reqs)),
		TotalAllocated: decimal.Zero,
		TotalTendered:  decimal.Zero,
		ChangeAmount:   decimal.Zero,
	}
	hasCash := false
	for i, req := range reqs {
		amount := numeric.CostOf(req.Amount)
		tendered := amount
		if req.TenderedAmount != nil {
			tendered = numeric.CostOf(*req.TenderedAmount)
		}

		change := decimal.Zero
		if req.TenderType == domain.TenderCash {
			hasCash = true
			if tendered.LessThan(amount) {
				return Summary{}, apperr.Invalid("payment %d: cash tendered must be at least the allocated amount", i+1)
			}
			change = numeric.CostOf(tendered.Sub(amount))
		} else if !tendered.Equal(amount) {
			return Summary{}, apperr.Invalid("payment %d: %s tendered amount must equal the allocated amount", i+1, req.TenderType)
		}

		summary.TotalAllocated = summary.TotalAllocated.Add(amount)
		summary.TotalTendered = summary.TotalTendered.Add(tendered)
		summary.ChangeAmount = summary.ChangeAmount.Add(change)
		summary.Allocations = append(summary.Allocations, domain.PaymentAllocation{
			Sequence:       i + 1,
			TenderType:     req.TenderType,
			Amount:         amount,
			TenderedAmount: tendered,
			ChangeAmount:   change,
			Reference:      strings.TrimSpace(req.Reference),
		})
	}
	summary.TotalAllocated = numeric.CostOf(summary.TotalAllocated)
	summary.TotalTendered = numeric.CostOf(summary.TotalTendered)
	summary.ChangeAmount = numeric.CostOf(summary.ChangeAmount)

	if !summary.TotalAllocated.Equal(totalPayable) {
		return Summary{}, apperr.Invalid("allocated total %s must equal total payable %s",
			summary.TotalAllocated.StringFixed(numeric.CostScale), totalPayable.StringFixed(numeric.CostScale))
	}
	if summary.TotalTendered.LessThan(totalPayable) {
		return Summary{}, apperr.Invalid("tendered total must cover total payable")
	}
	if summary.ChangeAmount.IsPositive() && !hasCash {
		return Summary{}, apperr.Invalid("change is only allowed with a cash tender")
	}
	if !summary.ChangeAmount.Equal(numeric.CostOf(summary.TotalTendered.Sub(totalPayable))) {
		return Summary{}, apperr.Invalid("change must equal tendered total minus total payable")
	}
	return summary, nil
}
