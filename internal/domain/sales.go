package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type CartStatus string

const (
	CartStatusActive     CartStatus = "ACTIVE"
	CartStatusParked     CartStatus = "PARKED"
	CartStatusCheckedOut CartStatus = "CHECKED_OUT"
	CartStatusCancelled  CartStatus = "CANCELLED"
	CartStatusExpired    CartStatus = "EXPIRED"
)

type Cart struct {
	ID              string          `json:"id"`
	StoreLocationID string          `json:"store_location_id"`
	TerminalID      string          `json:"terminal_id"`
	CashierID       string          `json:"cashier_id"`
	Status          CartStatus      `json:"status"`
	Lines           []CartLine      `json:"lines"`
	SubtotalNet     decimal.Decimal `json:"subtotal_net"`
	TotalTax        decimal.Decimal `json:"total_tax"`
	TotalGross      decimal.Decimal `json:"total_gross"`
	TotalPayable    decimal.Decimal `json:"total_payable"`
	ParkedReference string          `json:"parked_reference,omitempty"`
	ParkedAt        *time.Time      `json:"parked_at,omitempty"`
	ParkExpiresAt   *time.Time      `json:"park_expires_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// ParkExpired reports whether a parked cart has outlived its park window.
func (c Cart) ParkExpired(now time.Time) bool {
	return c.Status == CartStatusParked && c.ParkExpiresAt != nil && !now.Before(*c.ParkExpiresAt)
}

type CartLine struct {
	ID          string          `json:"id"`
	CartID      string          `json:"cart_id"`
	LineNumber  int             `json:"line_number"`
	ProductID   string          `json:"product_id"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	NetAmount   decimal.Decimal `json:"net_amount"`
	TaxAmount   decimal.Decimal `json:"tax_amount"`
	GrossAmount decimal.Decimal `json:"gross_amount"`
}

type CartCreateRequest struct {
	StoreLocationID string `json:"store_location_id"`
	TerminalID      string `json:"terminal_id"`
	CashierID       string `json:"cashier_id"`
}

type CartLineRequest struct {
	ProductID string           `json:"product_id"`
	Quantity  decimal.Decimal  `json:"quantity"`
	UnitPrice decimal.Decimal  `json:"unit_price"`
	TaxAmount *decimal.Decimal `json:"tax_amount,omitempty"`
}

type Sale struct {
	ID              string          `json:"id"`
	CartID          string          `json:"cart_id"`
	StoreLocationID string          `json:"store_location_id"`
	TerminalID      string          `json:"terminal_id"`
	CashierID       string          `json:"cashier_id"`
	ReceiptNumber   string          `json:"receipt_number"`
	SubtotalNet     decimal.Decimal `json:"subtotal_net"`
	TotalTax        decimal.Decimal `json:"total_tax"`
	TotalGross      decimal.Decimal `json:"total_gross"`
	TotalPayable    decimal.Decimal `json:"total_payable"`
	Lines           []SaleLine      `json:"lines"`
	CreatedAt       time.Time       `json:"created_at"`
}

func (s Sale) Line(id string) (SaleLine, bool) {
	for _, line := range s.Lines {
		if line.ID == id {
			return line, true
		}
	}
	return SaleLine{}, false
}

type SaleLine struct {
	ID          string          `json:"id"`
	SaleID      string          `json:"sale_id"`
	LineNumber  int             `json:"line_number"`
	ProductID   string          `json:"product_id"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	NetAmount   decimal.Decimal `json:"net_amount"`
	TaxAmount   decimal.Decimal `json:"tax_amount"`
	GrossAmount decimal.Decimal `json:"gross_amount"`
}

type SaleReturnRequest struct {
	SaleLineID string          `json:"sale_line_id"`
	Quantity   decimal.Decimal `json:"quantity"`
}

type SaleReturn struct {
	ReferenceNumber string          `json:"reference_number"`
	SaleID          string          `json:"sale_id"`
	SaleLineID      string          `json:"sale_line_id"`
	ProductID       string          `json:"product_id"`
	Quantity        decimal.Decimal `json:"quantity"`
	MovementID      string          `json:"movement_id"`
	Lots            []LotAllocation `json:"lots"`
	CreatedAt       time.Time       `json:"created_at"`
}

type PaymentStatus string

const (
	PaymentStatusAuthorized PaymentStatus = "AUTHORIZED"
	PaymentStatusCaptured   PaymentStatus = "CAPTURED"
	PaymentStatusVoided     PaymentStatus = "VOIDED"
	PaymentStatusRefunded   PaymentStatus = "REFUNDED"
)

type PaymentAction string

const (
	PaymentActionAuthorize PaymentAction = "AUTHORIZE"
	PaymentActionCapture   PaymentAction = "CAPTURE"
	PaymentActionVoid      PaymentAction = "VOID"
	PaymentActionRefund    PaymentAction = "REFUND"
)

type TenderType string

const (
	TenderCash    TenderType = "CASH"
	TenderCard    TenderType = "CARD"
	TenderMobile  TenderType = "MOBILE"
	TenderVoucher TenderType = "VOUCHER"
)

func (t TenderType) Valid() bool {
	switch t {
	case TenderCash, TenderCard, TenderMobile, TenderVoucher:
		return true
	}
	return false
}

type Payment struct {
	ID             string              `json:"id"`
	CartID         string              `json:"cart_id"`
	SaleID         string              `json:"sale_id"`
	Status         PaymentStatus       `json:"status"`
	TotalPayable   decimal.Decimal     `json:"total_payable"`
	TotalAllocated decimal.Decimal     `json:"total_allocated"`
	TotalTendered  decimal.Decimal     `json:"total_tendered"`
	ChangeAmount   decimal.Decimal     `json:"change_amount"`
	Allocations    []PaymentAllocation `json:"allocations"`
	Transitions    []PaymentTransition `json:"transitions"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

type PaymentAllocation struct {
	Sequence       int             `json:"sequence"`
	TenderType     TenderType      `json:"tender_type"`
	Amount         decimal.Decimal `json:"amount"`
	TenderedAmount decimal.Decimal `json:"tendered_amount"`
	ChangeAmount   decimal.Decimal `json:"change_amount"`
	Reference      string          `json:"reference,omitempty"`
}

type PaymentTransition struct {
	ID         string        `json:"id"`
	PaymentID  string        `json:"payment_id"`
	Action     PaymentAction `json:"action"`
	FromStatus PaymentStatus `json:"from_status,omitempty"`
	ToStatus   PaymentStatus `json:"to_status"`
	Actor      string        `json:"actor"`
	Note       string        `json:"note,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
}

type PaymentAllocationRequest struct {
	TenderType     TenderType       `json:"tender_type"`
	Amount         decimal.Decimal  `json:"amount"`
	TenderedAmount *decimal.Decimal `json:"tendered_amount,omitempty"`
	Reference      string           `json:"reference,omitempty"`
}

type CheckoutRequest struct {
	CartID               string                     `json:"cart_id"`
	CashierID            string                     `json:"cashier_id"`
	TerminalID           string                     `json:"terminal_id"`
	IdempotencyKey       string                     `json:"idempotency_key,omitempty"`
	Payments             []PaymentAllocationRequest `json:"payments"`
	AllowExpiredOverride bool                       `json:"allow_expired_override,omitempty"`
}

type CheckoutResponse struct {
	CartID         string              `json:"cart_id"`
	SaleID         string              `json:"sale_id"`
	ReceiptNumber  string              `json:"receipt_number"`
	PaymentID      string              `json:"payment_id"`
	PaymentStatus  PaymentStatus       `json:"payment_status"`
	TotalPayable   decimal.Decimal     `json:"total_payable"`
	TotalAllocated decimal.Decimal     `json:"total_allocated"`
	TotalTendered  decimal.Decimal     `json:"total_tendered"`
	ChangeAmount   decimal.Decimal     `json:"change_amount"`
	Payments       []PaymentAllocation `json:"payments"`
	CreatedAt      time.Time           `json:"created_at"`
}

type PaymentTransitionRequest struct {
	Action         PaymentAction `json:"action"`
	IdempotencyKey string        `json:"idempotency_key,omitempty"`
	Note           string        `json:"note,omitempty"`
}

type PaymentDetails struct {
	PaymentID      string              `json:"payment_id"`
	CartID         string              `json:"cart_id"`
	SaleID         string              `json:"sale_id"`
	Status         PaymentStatus       `json:"status"`
	TotalPayable   decimal.Decimal     `json:"total_payable"`
	TotalAllocated decimal.Decimal     `json:"total_allocated"`
	TotalTendered  decimal.Decimal     `json:"total_tendered"`
	ChangeAmount   decimal.Decimal     `json:"change_amount"`
	Payments       []PaymentAllocation `json:"payments"`
	Transitions    []PaymentTransition `json:"transitions"`
}

// IdempotencyRecord is keyed by (Scope, Key). Response stays empty until the
// guarded unit of work has produced its result.
type IdempotencyRecord struct {
	Scope       string          `json:"scope"`
	Key         string          `json:"key"`
	Fingerprint string          `json:"fingerprint"`
	Response    json.RawMessage `json:"response,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}
