package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type MovementType string

const (
	MovementSale       MovementType = "SALE"
	MovementReturn     MovementType = "RETURN"
	MovementAdjustment MovementType = "ADJUSTMENT"
)

type ReferenceType string

const (
	RefSaleReceipt      ReferenceType = "SALE_RECEIPT"
	RefSaleReturn       ReferenceType = "SALE_RETURN"
	RefStockAdjustment  ReferenceType = "STOCK_ADJUSTMENT"
	RefPurchaseReceipt  ReferenceType = "PURCHASE_RECEIPT"
	RefSupplierReturn   ReferenceType = "SUPPLIER_RETURN"
	RefStockTransferOut ReferenceType = "STOCK_TRANSFER_OUT"
	RefStockTransferIn  ReferenceType = "STOCK_TRANSFER_IN"
	RefStocktake        ReferenceType = "STOCKTAKE"
)

// Movement is an immutable ledger entry. Seq orders movements by creation.
type Movement struct {
	ID              string          `json:"id"`
	Seq             int64           `json:"seq"`
	StoreLocationID string          `json:"store_location_id"`
	ProductID       string          `json:"product_id"`
	MovementType    MovementType    `json:"movement_type"`
	QuantityDelta   decimal.Decimal `json:"quantity_delta"`
	ReferenceType   ReferenceType   `json:"reference_type"`
	ReferenceNumber string          `json:"reference_number"`
	SaleID          string          `json:"sale_id,omitempty"`
	SaleLineID      string          `json:"sale_line_id,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

type MovementEntry struct {
	Movement
	RunningBalance decimal.Decimal `json:"running_balance"`
}

type MovementCreateRequest struct {
	StoreLocationID string          `json:"store_location_id"`
	ProductID       string          `json:"product_id"`
	MovementType    MovementType    `json:"movement_type"`
	QuantityDelta   decimal.Decimal `json:"quantity_delta"`
	ReferenceType   ReferenceType   `json:"reference_type"`
	ReferenceNumber string          `json:"reference_number"`
}

type StockBalance struct {
	StoreLocationID     string          `json:"store_location_id"`
	ProductID           string          `json:"product_id"`
	QuantityOnHand      decimal.Decimal `json:"quantity_on_hand"`
	WeightedAverageCost decimal.Decimal `json:"weighted_average_cost"`
	LastCost            decimal.Decimal `json:"last_cost"`
}

type InventoryLot struct {
	ID              string     `json:"id"`
	StoreLocationID string     `json:"store_location_id"`
	ProductID       string     `json:"product_id"`
	LotCode         string     `json:"lot_code"`
	ExpiryDate      *time.Time `json:"expiry_date,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

const (
	ExpiryStateNone    = "NO_EXPIRY"
	ExpiryStateExpired = "EXPIRED"
	ExpiryStateActive  = "ACTIVE"
)

// LotBalance is the on-hand quantity of one lot joined with its identity.
type LotBalance struct {
	LotID           string          `json:"lot_id"`
	StoreLocationID string          `json:"store_location_id"`
	ProductID       string          `json:"product_id"`
	LotCode         string          `json:"lot_code"`
	ExpiryDate      *time.Time      `json:"expiry_date,omitempty"`
	QuantityOnHand  decimal.Decimal `json:"quantity_on_hand"`
	ExpiryState     string          `json:"expiry_state,omitempty"`
}

// MovementLot links a movement to the lot quantities it consumed or restored.
type MovementLot struct {
	ID         string          `json:"id"`
	Seq        int64           `json:"seq"`
	MovementID string          `json:"movement_id"`
	LotID      string          `json:"lot_id"`
	Quantity   decimal.Decimal `json:"quantity"`
}

type LotQuantity struct {
	LotID    string
	Quantity decimal.Decimal
}

type LotInput struct {
	LotCode    string          `json:"lot_code"`
	ExpiryDate *time.Time      `json:"expiry_date,omitempty"`
	Quantity   decimal.Decimal `json:"quantity"`
}

type LotAllocation struct {
	LotID      string          `json:"lot_id"`
	LotCode    string          `json:"lot_code"`
	ExpiryDate *time.Time      `json:"expiry_date,omitempty"`
	Quantity   decimal.Decimal `json:"quantity"`
}

type CostRecord struct {
	StoreLocationID      string          `json:"store_location_id"`
	ProductID            string          `json:"product_id"`
	WeightedAverageCost  decimal.Decimal `json:"weighted_average_cost"`
	LastCost             decimal.Decimal `json:"last_cost"`
	LastReceiptReference string          `json:"last_receipt_reference,omitempty"`
	UpdatedAt            time.Time       `json:"updated_at"`
}
