// Package events announces committed POS facts to downstream consumers.
// Publishing happens after the owning unit of work commits, so a failure
// here never rolls back a sale; it is logged and the caller moves on.
package events

import (
	"context"
	"time"
)

const (
	TypeSaleCheckedOut      = "sale.checked_out"
	TypePaymentTransitioned = "payment.transitioned"
	TypeStockPosted         = "stock.posted"
	TypeSaleReturned        = "sale.returned"
)

type Event struct {
	Type string `json:"type"`
	// Key groups related events onto one partition, usually a store or sale id.
	Key        string    `json:"key"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Event) error { return nil }

func (NoopPublisher) Close() error { return nil }
