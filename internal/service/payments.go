package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"retailpos/backend/internal/apperr"
	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/events"
	"retailpos/backend/internal/payment"
	"retailpos/backend/internal/store"
)

type transitionFingerprint struct {
	PaymentID string `json:"payment_id"`
	Action    string `json:"action"`
	Note      string `json:"note"`
}

func (s *Service) GetPayment(ctx context.Context, paymentID string) (domain.PaymentDetails, error) {
	paymentID, err := requireID(paymentID, "payment id")
	if err != nil {
		return domain.PaymentDetails{}, err
	}

	var details domain.PaymentDetails
	err = s.repo.View(ctx, func(ctx context.Context, r store.Reader) error {
		p, err := r.GetPayment(ctx, paymentID)
		if err != nil {
			return missing(err, "payment not found: %s", paymentID)
		}
		details = paymentDetails(*p)
		return nil
	})
	return details, err
}

// TransitionPayment captures, voids or refunds a payment. The payment row is
// locked for the whole unit of work, so of two racing transitions only one
// finds the status it expects.
func (s *Service) TransitionPayment(ctx context.Context, paymentID string, req domain.PaymentTransitionRequest) (domain.PaymentDetails, error) {
	key, err := normalizeIdempotencyKey(req.IdempotencyKey)
	if err != nil {
		return domain.PaymentDetails{}, err
	}
	paymentID, err = requireID(paymentID, "payment id")
	if err != nil {
		return domain.PaymentDetails{}, err
	}
	action, ok := payment.ParseAction(string(req.Action))
	if !ok {
		return domain.PaymentDetails{}, apperr.Invalid("unsupported payment action %q", req.Action)
	}
	note := strings.TrimSpace(req.Note)

	fp, err := fingerprint(transitionFingerprint{PaymentID: paymentID, Action: string(action), Note: note})
	if err != nil {
		return domain.PaymentDetails{}, err
	}
	call := idempotentCall{scope: scopePaymentTransition, key: key, fingerprint: fp}

	details, replayed, err := runIdempotent(ctx, s, call, func(ctx context.Context, tx store.Tx) (domain.PaymentDetails, error) {
		p, err := tx.LockPayment(ctx, paymentID)
		if err != nil {
			return domain.PaymentDetails{}, missing(err, "payment not found: %s", paymentID)
		}
		t, err := payment.Apply(p, action, actorName(ctx), note, s.clock())
		if err != nil {
			return domain.PaymentDetails{}, err
		}
		if err := tx.UpdatePaymentStatus(ctx, *p); err != nil {
			return domain.PaymentDetails{}, err
		}
		if err := tx.InsertPaymentTransition(ctx, t); err != nil {
			return domain.PaymentDetails{}, err
		}
		return paymentDetails(*p), nil
	})
	if err != nil {
		return domain.PaymentDetails{}, err
	}
	if replayed {
		return details, nil
	}

	s.logger.Info("payment transitioned",
		zap.String("payment_id", details.PaymentID),
		zap.String("action", string(action)),
		zap.String("status", string(details.Status)),
	)
	s.publish(ctx, events.TypePaymentTransitioned, details.SaleID, details)
	return details, nil
}

func paymentDetails(p domain.Payment) domain.PaymentDetails {
	allocations := p.Allocations
	if allocations == nil {
		allocations = []domain.PaymentAllocation{}
	}
	transitions := p.Transitions
	if transitions == nil {
		transitions = []domain.PaymentTransition{}
	}
	return domain.PaymentDetails{
		PaymentID:      p.ID,
		CartID:         p.CartID,
		SaleID:         p.SaleID,
		Status:         p.Status,
		TotalPayable:   p.TotalPayable,
		TotalAllocated: p.TotalAllocated,
		TotalTendered:  p.TotalTendered,
		ChangeAmount:   p.ChangeAmount,
		Payments:       allocations,
		Transitions:    transitions,
	}
}
