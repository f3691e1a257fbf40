package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PurchaseOrderStatus string

const (
	PurchaseOrderDraft             PurchaseOrderStatus = "DRAFT"
	PurchaseOrderApproved          PurchaseOrderStatus = "APPROVED"
	PurchaseOrderPartiallyReceived PurchaseOrderStatus = "PARTIALLY_RECEIVED"
	PurchaseOrderReceived          PurchaseOrderStatus = "RECEIVED"
)

type PurchaseOrder struct {
	ID              string              `json:"id"`
	ReferenceNumber string              `json:"reference_number"`
	SupplierID      string              `json:"supplier_id"`
	StoreLocationID string              `json:"store_location_id"`
	Status          PurchaseOrderStatus `json:"status"`
	Note            string              `json:"note,omitempty"`
	Lines           []PurchaseOrderLine `json:"lines"`
	Receipts        []GoodsReceipt      `json:"receipts"`
	CreatedBy       string              `json:"created_by"`
	ApprovedBy      string              `json:"approved_by,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
	ApprovedAt      *time.Time          `json:"approved_at,omitempty"`
}

type PurchaseOrderLine struct {
	ProductID        string          `json:"product_id"`
	OrderedQuantity  decimal.Decimal `json:"ordered_quantity"`
	ReceivedQuantity decimal.Decimal `json:"received_quantity"`
	UnitCost         decimal.Decimal `json:"unit_cost"`
}

type GoodsReceipt struct {
	ID              string             `json:"id"`
	PurchaseOrderID string             `json:"purchase_order_id"`
	ReferenceNumber string             `json:"reference_number"`
	ReceivedBy      string             `json:"received_by"`
	Note            string             `json:"note,omitempty"`
	Lines           []GoodsReceiptLine `json:"lines"`
	ReceivedAt      time.Time          `json:"received_at"`
}

type GoodsReceiptLine struct {
	ProductID           string          `json:"product_id"`
	Quantity            decimal.Decimal `json:"quantity"`
	UnitCost            decimal.Decimal `json:"unit_cost"`
	MovementID          string          `json:"movement_id"`
	WeightedAverageCost decimal.Decimal `json:"weighted_average_cost"`
	Lots                []LotAllocation `json:"lots,omitempty"`
}

type PurchaseOrderLineRequest struct {
	ProductID       string          `json:"product_id"`
	OrderedQuantity decimal.Decimal `json:"ordered_quantity"`
	UnitCost        decimal.Decimal `json:"unit_cost"`
}

type PurchaseOrderCreateRequest struct {
	SupplierID      string                     `json:"supplier_id"`
	StoreLocationID string                     `json:"store_location_id"`
	Note            string                     `json:"note,omitempty"`
	Lines           []PurchaseOrderLineRequest `json:"lines"`
}

type ReceiveLineRequest struct {
	ProductID        string           `json:"product_id"`
	ReceivedQuantity decimal.Decimal  `json:"received_quantity"`
	UnitCost         *decimal.Decimal `json:"unit_cost,omitempty"`
	Lots             []LotInput       `json:"lots,omitempty"`
}

type PurchaseOrderReceiveRequest struct {
	Note  string               `json:"note,omitempty"`
	Lines []ReceiveLineRequest `json:"lines"`
}

type SupplierReturnStatus string

const (
	SupplierReturnDraft    SupplierReturnStatus = "DRAFT"
	SupplierReturnApproved SupplierReturnStatus = "APPROVED"
	SupplierReturnPosted   SupplierReturnStatus = "POSTED"
)

type SupplierReturn struct {
	ID              string               `json:"id"`
	ReferenceNumber string               `json:"reference_number"`
	SupplierID      string               `json:"supplier_id"`
	StoreLocationID string               `json:"store_location_id"`
	Status          SupplierReturnStatus `json:"status"`
	Note            string               `json:"note,omitempty"`
	Lines           []SupplierReturnLine `json:"lines"`
	CreatedBy       string               `json:"created_by"`
	ApprovedBy      string               `json:"approved_by,omitempty"`
	PostedBy        string               `json:"posted_by,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
	ApprovedAt      *time.Time           `json:"approved_at,omitempty"`
	PostedAt        *time.Time           `json:"posted_at,omitempty"`
}

type SupplierReturnLine struct {
	ProductID  string          `json:"product_id"`
	Quantity   decimal.Decimal `json:"quantity"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
	MovementID string          `json:"movement_id,omitempty"`
}

type SupplierReturnLineRequest struct {
	ProductID string           `json:"product_id"`
	Quantity  decimal.Decimal  `json:"quantity"`
	UnitCost  *decimal.Decimal `json:"unit_cost,omitempty"`
}

type SupplierReturnCreateRequest struct {
	SupplierID      string                      `json:"supplier_id"`
	StoreLocationID string                      `json:"store_location_id"`
	Note            string                      `json:"note,omitempty"`
	Lines           []SupplierReturnLineRequest `json:"lines"`
}

type StockAdjustmentStatus string

const (
	AdjustmentPendingApproval StockAdjustmentStatus = "PENDING_APPROVAL"
	AdjustmentApproved        StockAdjustmentStatus = "APPROVED"
	AdjustmentPosted          StockAdjustmentStatus = "POSTED"
)

type StockAdjustment struct {
	ID               string                `json:"id"`
	ReferenceNumber  string                `json:"reference_number"`
	StoreLocationID  string                `json:"store_location_id"`
	ProductID        string                `json:"product_id"`
	QuantityDelta    decimal.Decimal       `json:"quantity_delta"`
	ReasonCode       string                `json:"reason_code"`
	Note             string                `json:"note,omitempty"`
	Status           StockAdjustmentStatus `json:"status"`
	ApprovalRequired bool                  `json:"approval_required"`
	RequestedBy      string                `json:"requested_by"`
	ApprovedBy       string                `json:"approved_by,omitempty"`
	PostedBy         string                `json:"posted_by,omitempty"`
	MovementID       string                `json:"movement_id,omitempty"`
	CreatedAt        time.Time             `json:"created_at"`
	UpdatedAt        time.Time             `json:"updated_at"`
	ApprovedAt       *time.Time            `json:"approved_at,omitempty"`
	PostedAt         *time.Time            `json:"posted_at,omitempty"`
}

type StockAdjustmentCreateRequest struct {
	StoreLocationID string          `json:"store_location_id"`
	ProductID       string          `json:"product_id"`
	QuantityDelta   decimal.Decimal `json:"quantity_delta"`
	ReasonCode      string          `json:"reason_code"`
	Note            string          `json:"note,omitempty"`
}

type StockTransferStatus string

const (
	TransferDraft             StockTransferStatus = "DRAFT"
	TransferShipped           StockTransferStatus = "SHIPPED"
	TransferPartiallyReceived StockTransferStatus = "PARTIALLY_RECEIVED"
	TransferReceived          StockTransferStatus = "RECEIVED"
)

type StockTransfer struct {
	ID                         string              `json:"id"`
	ReferenceNumber            string              `json:"reference_number"`
	SourceStoreLocationID      string              `json:"source_store_location_id"`
	DestinationStoreLocationID string              `json:"destination_store_location_id"`
	Status                     StockTransferStatus `json:"status"`
	Note                       string              `json:"note,omitempty"`
	Lines                      []StockTransferLine `json:"lines"`
	CreatedBy                  string              `json:"created_by"`
	ShippedBy                  string              `json:"shipped_by,omitempty"`
	ReceivedBy                 string              `json:"received_by,omitempty"`
	CreatedAt                  time.Time           `json:"created_at"`
	UpdatedAt                  time.Time           `json:"updated_at"`
	ShippedAt                  *time.Time          `json:"shipped_at,omitempty"`
	ReceivedAt                 *time.Time          `json:"received_at,omitempty"`
}

type StockTransferLine struct {
	ProductID         string          `json:"product_id"`
	RequestedQuantity decimal.Decimal `json:"requested_quantity"`
	ShippedQuantity   decimal.Decimal `json:"shipped_quantity"`
	ReceivedQuantity  decimal.Decimal `json:"received_quantity"`
}

type TransferLineRequest struct {
	ProductID string          `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
}

type StockTransferCreateRequest struct {
	SourceStoreLocationID      string                `json:"source_store_location_id"`
	DestinationStoreLocationID string                `json:"destination_store_location_id"`
	Note                       string                `json:"note,omitempty"`
	Lines                      []TransferLineRequest `json:"lines"`
}

type TransferQuantitiesRequest struct {
	Lines []TransferLineRequest `json:"lines"`
}

type StocktakeStatus string

const (
	StocktakeDraft     StocktakeStatus = "DRAFT"
	StocktakeStarted   StocktakeStatus = "STARTED"
	StocktakeFinalized StocktakeStatus = "FINALIZED"
)

type Stocktake struct {
	ID              string          `json:"id"`
	ReferenceNumber string          `json:"reference_number"`
	StoreLocationID string          `json:"store_location_id"`
	Status          StocktakeStatus `json:"status"`
	Note            string          `json:"note,omitempty"`
	Lines           []StocktakeLine `json:"lines"`
	CreatedBy       string          `json:"created_by"`
	StartedBy       string          `json:"started_by,omitempty"`
	FinalizedBy     string          `json:"finalized_by,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	StartedAt       *time.Time      `json:"started_at,omitempty"`
	FinalizedAt     *time.Time      `json:"finalized_at,omitempty"`
}

type StocktakeLine struct {
	ProductID        string           `json:"product_id"`
	ExpectedQuantity decimal.Decimal  `json:"expected_quantity"`
	CountedQuantity  *decimal.Decimal `json:"counted_quantity,omitempty"`
	VarianceQuantity *decimal.Decimal `json:"variance_quantity,omitempty"`
	MovementID       string           `json:"movement_id,omitempty"`
}

type StocktakeCreateRequest struct {
	StoreLocationID string   `json:"store_location_id"`
	ProductIDs      []string `json:"product_ids"`
	Note            string   `json:"note,omitempty"`
}

type StocktakeCountRequest struct {
	ProductID       string          `json:"product_id"`
	CountedQuantity decimal.Decimal `json:"counted_quantity"`
}

type StocktakeFinalizeRequest struct {
	Counts []StocktakeCountRequest `json:"counts"`
}
