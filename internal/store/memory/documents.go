package memory

import (
	"context"
	"slices"

	"github.com/shopspring/decimal"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/numeric"
	"retailpos/backend/internal/store"
)

func (s *state) GetPurchaseOrder(_ context.Context, id string) (*domain.PurchaseOrder, error) {
	po, ok := s.purchaseOrders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	po.Lines = slices.Clone(po.Lines)
	po.Receipts = make([]domain.GoodsReceipt, 0)
	for _, receipt := range s.goodsReceipts {
		if receipt.PurchaseOrderID == id {
			po.Receipts = append(po.Receipts, copyReceipt(receipt))
		}
	}
	return &po, nil
}

func (s *state) LockPurchaseOrder(ctx context.Context, id string) (*domain.PurchaseOrder, error) {
	return s.GetPurchaseOrder(ctx, id)
}

func (s *state) InsertPurchaseOrder(_ context.Context, po domain.PurchaseOrder) error {
	if _, exists := s.purchaseOrders[po.ID]; exists {
		return store.ErrDuplicate
	}
	po.Lines = slices.Clone(po.Lines)
	po.Receipts = nil
	s.purchaseOrders[po.ID] = po
	return nil
}

func (s *state) SavePurchaseOrder(_ context.Context, po domain.PurchaseOrder) error {
	if _, exists := s.purchaseOrders[po.ID]; !exists {
		return store.ErrNotFound
	}
	po.Lines = slices.Clone(po.Lines)
	po.Receipts = nil
	s.purchaseOrders[po.ID] = po
	return nil
}

func (s *state) InsertGoodsReceipt(_ context.Context, receipt domain.GoodsReceipt) error {
	s.goodsReceipts = append(s.goodsReceipts, copyReceipt(receipt))
	return nil
}

func (s *state) ReceivedFromSupplier(_ context.Context, supplierID string, storeLocationID string, productID string) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, receipt := range s.goodsReceipts {
		po, ok := s.purchaseOrders[receipt.PurchaseOrderID]
		if !ok || po.SupplierID != supplierID || po.StoreLocationID != storeLocationID {
			continue
		}
		for _, line := range receipt.Lines {
			if line.ProductID == productID {
				total = total.Add(line.Quantity)
			}
		}
	}
	return numeric.QuantityOf(total), nil
}

func (s *state) ReturnedToSupplier(_ context.Context, supplierID string, storeLocationID string, productID string) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, sr := range s.supplierReturns {
		if sr.Status != domain.SupplierReturnPosted || sr.SupplierID != supplierID || sr.StoreLocationID != storeLocationID {
			continue
		}
		for _, line := range sr.Lines {
			if line.ProductID == productID {
				total = total.Add(line.Quantity)
			}
		}
	}
	return numeric.QuantityOf(total), nil
}

func (s *state) GetSupplierReturn(_ context.Context, id string) (*domain.SupplierReturn, error) {
	sr, ok := s.supplierReturns[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	sr.Lines = slices.Clone(sr.Lines)
	return &sr, nil
}

func (s *state) LockSupplierReturn(ctx context.Context, id string) (*domain.SupplierReturn, error) {
	return s.GetSupplierReturn(ctx, id)
}

func (s *state) InsertSupplierReturn(_ context.Context, sr domain.SupplierReturn) error {
	if _, exists := s.supplierReturns[sr.ID]; exists {
		return store.ErrDuplicate
	}
	sr.Lines = slices.Clone(sr.Lines)
	s.supplierReturns[sr.ID] = sr
	return nil
}

func (s *state) SaveSupplierReturn(_ context.Context, sr domain.SupplierReturn) error {
	if _, exists := s.supplierReturns[sr.ID]; !exists {
		return store.ErrNotFound
	}
	sr.Lines = slices.Clone(sr.Lines)
	s.supplierReturns[sr.ID] = sr
	return nil
}

func (s *state) GetStockAdjustment(_ context.Context, id string) (*domain.StockAdjustment, error) {
	adj, ok := s.adjustments[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &adj, nil
}

func (s *state) LockStockAdjustment(ctx context.Context, id string) (*domain.StockAdjustment, error) {
	return s.GetStockAdjustment(ctx, id)
}

func (s *state) InsertStockAdjustment(_ context.Context, adj domain.StockAdjustment) error {
	if _, exists := s.adjustments[adj.ID]; exists {
		return store.ErrDuplicate
	}
	s.adjustments[adj.ID] = adj
	return nil
}

func (s *state) SaveStockAdjustment(_ context.Context, adj domain.StockAdjustment) error {
	if _, exists := s.adjustments[adj.ID]; !exists {
		return store.ErrNotFound
	}
	s.adjustments[adj.ID] = adj
	return nil
}

func (s *state) GetStockTransfer(_ context.Context, id string) (*domain.StockTransfer, error) {
	tr, ok := s.transfers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	tr.Lines = slices.Clone(tr.Lines)
	return &tr, nil
}

func (s *state) LockStockTransfer(ctx context.Context, id string) (*domain.StockTransfer, error) {
	return s.GetStockTransfer(ctx, id)
}

func (s *state) InsertStockTransfer(_ context.Context, tr domain.StockTransfer) error {
	if _, exists := s.transfers[tr.ID]; exists {
		return store.ErrDuplicate
	}
	tr.Lines = slices.Clone(tr.Lines)
	s.transfers[tr.ID] = tr
	return nil
}

func (s *state) SaveStockTransfer(_ context.Context, tr domain.StockTransfer) error {
	if _, exists := s.transfers[tr.ID]; !exists {
		return store.ErrNotFound
	}
	tr.Lines = slices.Clone(tr.Lines)
	s.transfers[tr.ID] = tr
	return nil
}

func (s *state) GetStocktake(_ context.Context, id string) (*domain.Stocktake, error) {
	st, ok := s.stocktakes[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	st.Lines = slices.Clone(st.Lines)
	return &st, nil
}

func (s *state) LockStocktake(ctx context.Context, id string) (*domain.Stocktake, error) {
	return s.GetStocktake(ctx, id)
}

func (s *state) InsertStocktake(_ context.Context, st domain.Stocktake) error {
	if _, exists := s.stocktakes[st.ID]; exists {
		return store.ErrDuplicate
	}
	st.Lines = slices.Clone(st.Lines)
	s.stocktakes[st.ID] = st
	return nil
}

func (s *state) SaveStocktake(_ context.Context, st domain.Stocktake) error {
	if _, exists := s.stocktakes[st.ID]; !exists {
		return store.ErrNotFound
	}
	st.Lines = slices.Clone(st.Lines)
	s.stocktakes[st.ID] = st
	return nil
}

func copyReceipt(r domain.GoodsReceipt) domain.GoodsReceipt {
	lines := make([]domain.GoodsReceiptLine, len(r.Lines))
	for i, line := range r.Lines {
		line.Lots = slices.Clone(line.Lots)
		lines[i] = line
	}
	r.Lines = lines
	return r
}
