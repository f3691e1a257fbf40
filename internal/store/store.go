package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/ledger"
	"retailpos/backend/internal/lots"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate record")
)

// Repository is the persistence boundary. Reads go through View, every
// mutation through WithinTx so that its effects commit or roll back together.
type Repository interface {
	// WithinTx runs fn as one atomic unit of work. Lock* methods on the Tx
	// hold their rows exclusively until fn returns. fn may be retried by
	// implementations that detect serialization failures, so it must not
	// have side effects outside the Tx.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	View(ctx context.Context, fn func(ctx context.Context, r Reader) error) error

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

type Reader interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	GetStoreLocation(ctx context.Context, id string) (*domain.StoreLocation, error)
	GetSupplier(ctx context.Context, id string) (*domain.Supplier, error)

	GetCart(ctx context.Context, id string) (*domain.Cart, error)
	ListCarts(ctx context.Context, storeLocationID string, status domain.CartStatus) ([]domain.Cart, error)
	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	GetSaleByCart(ctx context.Context, cartID string) (*domain.Sale, error)
	GetPayment(ctx context.Context, id string) (*domain.Payment, error)
	// ListPaymentsByCart returns the payments recorded for a cart, oldest first.
	ListPaymentsByCart(ctx context.Context, cartID string) ([]domain.Payment, error)
	GetIdempotency(ctx context.Context, scope string, key string) (*domain.IdempotencyRecord, error)

	// ListMovements returns movements ordered by Seq. An empty productID
	// lists every product at the store.
	ListMovements(ctx context.Context, storeLocationID string, productID string) ([]domain.Movement, error)
	ListBalances(ctx context.Context, storeLocationID string, productID string) ([]domain.StockBalance, error)
	ListLotBalances(ctx context.Context, storeLocationID string, productID string) ([]domain.LotBalance, error)
	GetCostRecord(ctx context.Context, storeLocationID string, productID string) (*domain.CostRecord, error)

	GetPurchaseOrder(ctx context.Context, id string) (*domain.PurchaseOrder, error)
	GetSupplierReturn(ctx context.Context, id string) (*domain.SupplierReturn, error)
	GetStockAdjustment(ctx context.Context, id string) (*domain.StockAdjustment, error)
	GetStockTransfer(ctx context.Context, id string) (*domain.StockTransfer, error)
	GetStocktake(ctx context.Context, id string) (*domain.Stocktake, error)
}

type Tx interface {
	Reader
	ledger.Store
	lots.Store

	InsertMovementLot(ctx context.Context, link domain.MovementLot) error
	// ReturnedQuantityBySaleLine sums RETURN movements recorded against the line.
	ReturnedQuantityBySaleLine(ctx context.Context, saleLineID string) (decimal.Decimal, error)

	LockCart(ctx context.Context, id string) (*domain.Cart, error)
	InsertCart(ctx context.Context, cart domain.Cart) error
	// SaveCart updates the cart header and replaces its lines.
	SaveCart(ctx context.Context, cart domain.Cart) error

	LockSale(ctx context.Context, id string) (*domain.Sale, error)
	// InsertSale returns ErrDuplicate when a sale already exists for the cart.
	InsertSale(ctx context.Context, sale domain.Sale) error

	InsertPayment(ctx context.Context, p domain.Payment) error
	LockPayment(ctx context.Context, id string) (*domain.Payment, error)
	UpdatePaymentStatus(ctx context.Context, p domain.Payment) error
	InsertPaymentTransition(ctx context.Context, t domain.PaymentTransition) error

	LockIdempotency(ctx context.Context, scope string, key string) (*domain.IdempotencyRecord, error)
	// InsertIdempotency returns ErrDuplicate when (scope, key) already exists.
	InsertIdempotency(ctx context.Context, rec domain.IdempotencyRecord) error
	CompleteIdempotency(ctx context.Context, rec domain.IdempotencyRecord) error

	// LockCostRecord returns the record for update, creating a zero-cost one
	// when none exists.
	LockCostRecord(ctx context.Context, storeLocationID string, productID string) (*domain.CostRecord, error)
	SaveCostRecord(ctx context.Context, rec domain.CostRecord) error

	InsertPurchaseOrder(ctx context.Context, po domain.PurchaseOrder) error
	LockPurchaseOrder(ctx context.Context, id string) (*domain.PurchaseOrder, error)
	SavePurchaseOrder(ctx context.Context, po domain.PurchaseOrder) error
	InsertGoodsReceipt(ctx context.Context, receipt domain.GoodsReceipt) error
	// ReceivedFromSupplier sums goods receipts of the supplier's purchase
	// orders for the product at the store.
	ReceivedFromSupplier(ctx context.Context, supplierID string, storeLocationID string, productID string) (decimal.Decimal, error)
	// ReturnedToSupplier sums posted supplier return lines.
	ReturnedToSupplier(ctx context.Context, supplierID string, storeLocationID string, productID string) (decimal.Decimal, error)

	InsertSupplierReturn(ctx context.Context, sr domain.SupplierReturn) error
	LockSupplierReturn(ctx context.Context, id string) (*domain.SupplierReturn, error)
	SaveSupplierReturn(ctx context.Context, sr domain.SupplierReturn) error

	InsertStockAdjustment(ctx context.Context, adj domain.StockAdjustment) error
	LockStockAdjustment(ctx context.Context, id string) (*domain.StockAdjustment, error)
	SaveStockAdjustment(ctx context.Context, adj domain.StockAdjustment) error

	InsertStockTransfer(ctx context.Context, tr domain.StockTransfer) error
	LockStockTransfer(ctx context.Context, id string) (*domain.StockTransfer, error)
	SaveStockTransfer(ctx context.Context, tr domain.StockTransfer) error

	InsertStocktake(ctx context.Context, st domain.Stocktake) error
	LockStocktake(ctx context.Context, id string) (*domain.Stocktake, error)
	SaveStocktake(ctx context.Context, st domain.Stocktake) error
}
