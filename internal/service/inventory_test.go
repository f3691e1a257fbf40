package service

import (
	"context"
	"strings"
	"testing"

	"retailpos/backend/internal/apperr"
	"retailpos/backend/internal/domain"
)

func receiveStock(t *testing.T, svc *Service, supplierID string, productID string, qty string, unitCost string, lots []domain.LotInput) domain.PurchaseOrder {
	t.Helper()
	ctx := managerCtx()
	po, err := svc.CreatePurchaseOrder(ctx, domain.PurchaseOrderCreateRequest{
		SupplierID:      supplierID,
		StoreLocationID: "store-main",
		Lines: []domain.PurchaseOrderLineRequest{
			{ProductID: productID, OrderedQuantity: dec(qty), UnitCost: dec(unitCost)},
		},
	})
	if err != nil {
		t.Fatalf("create purchase order failed: %v", err)
	}
	if _, err := svc.ApprovePurchaseOrder(ctx, po.ID); err != nil {
		t.Fatalf("approve purchase order failed: %v", err)
	}
	po, err = svc.ReceivePurchaseOrder(ctx, po.ID, domain.PurchaseOrderReceiveRequest{
		Lines: []domain.ReceiveLineRequest{{ProductID: productID, ReceivedQuantity: dec(qty), Lots: lots}},
	})
	if err != nil {
		t.Fatalf("receive purchase order failed: %v", err)
	}
	return po
}

func adjustStock(t *testing.T, svc *Service, storeID string, productID string, delta string) {
	t.Helper()
	_, err := svc.CreateMovement(managerCtx(), domain.MovementCreateRequest{
		StoreLocationID: storeID,
		ProductID:       productID,
		MovementType:    domain.MovementAdjustment,
		QuantityDelta:   dec(delta),
		ReferenceType:   domain.RefStockAdjustment,
		ReferenceNumber: "OPENING",
	})
	if err != nil {
		t.Fatalf("manual movement failed: %v", err)
	}
}

func TestPartialReceiptsBlendWeightedAverageCost(t *testing.T) {
	svc := newTestService()
	ctx := managerCtx()

	po, err := svc.CreatePurchaseOrder(ctx, domain.PurchaseOrderCreateRequest{
		SupplierID:      "sup-bakery",
		StoreLocationID: "store-main",
		Lines: []domain.PurchaseOrderLineRequest{
			{ProductID: "prod-bread", OrderedQuantity: dec("10"), UnitCost: dec("2.5")},
		},
	})
	if err != nil {
		t.Fatalf("create purchase order failed: %v", err)
	}
	if !strings.HasPrefix(po.ReferenceNumber, "PO-") || po.Status != domain.PurchaseOrderDraft {
		t.Fatalf("unexpected purchase order %+v", po)
	}

	_, err = svc.ReceivePurchaseOrder(ctx, po.ID, domain.PurchaseOrderReceiveRequest{
		Lines: []domain.ReceiveLineRequest{{ProductID: "prod-bread", ReceivedQuantity: dec("4")}},
	})
	mustKind(t, err, apperr.KindConflict)

	if _, err := svc.ApprovePurchaseOrder(ctx, po.ID); err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	_, err = svc.ApprovePurchaseOrder(ctx, po.ID)
	mustKind(t, err, apperr.KindConflict)

	po, err = svc.ReceivePurchaseOrder(ctx, po.ID, domain.PurchaseOrderReceiveRequest{
		Lines: []domain.ReceiveLineRequest{{ProductID: "prod-bread", ReceivedQuantity: dec("4")}},
	})
	if err != nil {
		t.Fatalf("first receipt failed: %v", err)
	}
	if po.Status != domain.PurchaseOrderPartiallyReceived {
		t.Fatalf("expected PARTIALLY_RECEIVED, got %s", po.Status)
	}

	_, err = svc.ReceivePurchaseOrder(ctx, po.ID, domain.PurchaseOrderReceiveRequest{
		Lines: []domain.ReceiveLineRequest{{ProductID: "prod-bread", ReceivedQuantity: dec("7")}},
	})
	mustKind(t, err, apperr.KindConflict)

	po, err = svc.ReceivePurchaseOrder(ctx, po.ID, domain.PurchaseOrderReceiveRequest{
		Lines: []domain.ReceiveLineRequest{{ProductID: "prod-bread", ReceivedQuantity: dec("6"), UnitCost: decPtr("3.5")}},
	})
	if err != nil {
		t.Fatalf("second receipt failed: %v", err)
	}
	if po.Status != domain.PurchaseOrderReceived {
		t.Fatalf("expected RECEIVED, got %s", po.Status)
	}

	balances, err := svc.ListBalances(ctx, "store-main", "prod-bread")
	if err != nil {
		t.Fatalf("list balances failed: %v", err)
	}
	if len(balances) != 1 {
		t.Fatalf("expected one balance row, got %d", len(balances))
	}
	b := balances[0]
	if !b.QuantityOnHand.Equal(dec("10")) || !b.WeightedAverageCost.Equal(dec("3.1")) || !b.LastCost.Equal(dec("3.5")) {
		t.Fatalf("unexpected balance %+v", b)
	}

	stored, err := svc.GetPurchaseOrder(ctx, po.ID)
	if err != nil {
		t.Fatalf("get purchase order failed: %v", err)
	}
	if len(stored.Receipts) != 2 {
		t.Fatalf("expected two goods receipts, got %d", len(stored.Receipts))
	}
}

func TestReceiptLotRules(t *testing.T) {
	svc := newTestService()
	ctx := managerCtx()
	po, err := svc.CreatePurchaseOrder(ctx, domain.PurchaseOrderCreateRequest{
		SupplierID:      "sup-dairy",
		StoreLocationID: "store-main",
		Lines: []domain.PurchaseOrderLineRequest{
			{ProductID: "prod-yogurt", OrderedQuantity: dec("6"), UnitCost: dec("1.2")},
		},
	})
	if err != nil {
		t.Fatalf("create purchase order failed: %v", err)
	}
	if _, err := svc.ApprovePurchaseOrder(ctx, po.ID); err != nil {
		t.Fatalf("approve failed: %v", err)
	}

	_, err = svc.ReceivePurchaseOrder(ctx, po.ID, domain.PurchaseOrderReceiveRequest{
		Lines: []domain.ReceiveLineRequest{{ProductID: "prod-yogurt", ReceivedQuantity: dec("6")}},
	})
	mustKind(t, err, apperr.KindInvalidArgument)

	_, err = svc.ReceivePurchaseOrder(ctx, po.ID, domain.PurchaseOrderReceiveRequest{
		Lines: []domain.ReceiveLineRequest{{ProductID: "prod-yogurt", ReceivedQuantity: dec("6"), Lots: []domain.LotInput{
			{LotCode: "Y1", ExpiryDate: daysFromNow(20), Quantity: dec("5")},
		}}},
	})
	mustKind(t, err, apperr.KindInvalidArgument)

	po, err = svc.ReceivePurchaseOrder(ctx, po.ID, domain.PurchaseOrderReceiveRequest{
		Lines: []domain.ReceiveLineRequest{{ProductID: "prod-yogurt", ReceivedQuantity: dec("6"), Lots: []domain.LotInput{
			{LotCode: "y2", ExpiryDate: daysFromNow(30), Quantity: dec("2")},
			{LotCode: "y1", ExpiryDate: daysFromNow(20), Quantity: dec("4")},
		}}},
	})
	if err != nil {
		t.Fatalf("receipt failed: %v", err)
	}

	lots, err := svc.ListLots(ctx, "store-main", "prod-yogurt")
	if err != nil {
		t.Fatalf("list lots failed: %v", err)
	}
	if len(lots) != 2 || lots[0].LotCode != "Y1" || lots[1].LotCode != "Y2" {
		t.Fatalf("expected lots in FEFO order, got %+v", lots)
	}
	if got := onHand(t, svc, "store-main", "prod-yogurt"); !got.Equal(dec("6")) {
		t.Fatalf("expected 6 on hand, got %s", got)
	}
}

func TestSaleReturnRestoresLotsAndIsBounded(t *testing.T) {
	env := newTestEnv(DefaultOptions())
	svc := env.svc
	ctx := cashierCtx()
	receiveStock(t, svc, "sup-dairy", "prod-milk-1l", "5", "0.9", []domain.LotInput{
		{LotCode: "M1", ExpiryDate: daysFromNow(7), Quantity: dec("5")},
	})
	cart := openCart(t, svc, ctx, domain.CartLineRequest{ProductID: "prod-milk-1l", Quantity: dec("3"), UnitPrice: dec("1.2")})
	resp, err := svc.Checkout(ctx, cashCheckout(cart, "idem-return", "3.6"))
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	sale, err := svc.GetSale(ctx, resp.SaleID)
	if err != nil {
		t.Fatalf("get sale failed: %v", err)
	}
	lineID := sale.Lines[0].ID

	ret, err := svc.ReturnSaleLine(ctx, sale.ID, domain.SaleReturnRequest{SaleLineID: lineID, Quantity: dec("2")})
	if err != nil {
		t.Fatalf("return failed: %v", err)
	}
	if len(ret.Lots) != 1 || ret.Lots[0].LotCode != "M1" || !ret.Lots[0].Quantity.Equal(dec("2")) {
		t.Fatalf("expected 2 restored to lot M1, got %+v", ret.Lots)
	}
	if !strings.HasPrefix(ret.ReferenceNumber, "RET-") {
		t.Fatalf("unexpected return reference %q", ret.ReferenceNumber)
	}
	if got := onHand(t, svc, "store-main", "prod-milk-1l"); !got.Equal(dec("4")) {
		t.Fatalf("expected 4 on hand after return, got %s", got)
	}

	_, err = svc.ReturnSaleLine(ctx, sale.ID, domain.SaleReturnRequest{SaleLineID: lineID, Quantity: dec("2")})
	mustKind(t, err, apperr.KindConflict)

	_, err = svc.ReturnSaleLine(ctx, sale.ID, domain.SaleReturnRequest{SaleLineID: "sli-missing", Quantity: dec("1")})
	mustKind(t, err, apperr.KindNotFound)

	_, err = svc.ReturnSaleLine(ctx, sale.ID, domain.SaleReturnRequest{SaleLineID: lineID, Quantity: dec("0")})
	mustKind(t, err, apperr.KindInvalidArgument)

	if _, err := svc.ReturnSaleLine(ctx, sale.ID, domain.SaleReturnRequest{SaleLineID: lineID, Quantity: dec("1")}); err != nil {
		t.Fatalf("final return failed: %v", err)
	}
	lots, err := svc.ListLots(ctx, "store-main", "prod-milk-1l")
	if err != nil {
		t.Fatalf("list lots failed: %v", err)
	}
	if len(lots) != 1 || !lots[0].QuantityOnHand.Equal(dec("5")) {
		t.Fatalf("expected lot M1 fully restored, got %+v", lots)
	}
}

func TestSupplierReturnIsBoundedByReceivedQuantity(t *testing.T) {
	svc := newTestService()
	ctx := managerCtx()
	receiveStock(t, svc, "sup-bakery", "prod-bread", "5", "2", nil)

	create := func(supplierID string, qty string) domain.SupplierReturn {
		t.Helper()
		sr, err := svc.CreateSupplierReturn(ctx, domain.SupplierReturnCreateRequest{
			SupplierID:      supplierID,
			StoreLocationID: "store-main",
			Lines:           []domain.SupplierReturnLineRequest{{ProductID: "prod-bread", Quantity: dec(qty)}},
		})
		if err != nil {
			t.Fatalf("create supplier return failed: %v", err)
		}
		return sr
	}

	wrongSupplier := create("sup-dairy", "1")
	if _, err := svc.ApproveSupplierReturn(ctx, wrongSupplier.ID); err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	_, err := svc.PostSupplierReturn(ctx, wrongSupplier.ID)
	mustKind(t, err, apperr.KindConflict)

	sr := create("sup-bakery", "3")
	if !sr.Lines[0].UnitCost.Equal(dec("2")) {
		t.Fatalf("expected unit cost to default to the average cost, got %s", sr.Lines[0].UnitCost)
	}
	_, err = svc.PostSupplierReturn(ctx, sr.ID)
	mustKind(t, err, apperr.KindConflict)
	if _, err := svc.ApproveSupplierReturn(ctx, sr.ID); err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	posted, err := svc.PostSupplierReturn(ctx, sr.ID)
	if err != nil {
		t.Fatalf("post failed: %v", err)
	}
	if posted.Status != domain.SupplierReturnPosted || posted.Lines[0].MovementID == "" {
		t.Fatalf("unexpected posted return %+v", posted)
	}
	if got := onHand(t, svc, "store-main", "prod-bread"); !got.Equal(dec("2")) {
		t.Fatalf("expected 2 on hand, got %s", got)
	}

	again := create("sup-bakery", "3")
	if _, err := svc.ApproveSupplierReturn(ctx, again.ID); err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	_, err = svc.PostSupplierReturn(ctx, again.ID)
	mustKind(t, err, apperr.KindConflict)
	if !strings.Contains(err.Error(), "received-eligible") {
		t.Fatalf("unexpected message: %v", err)
	}
}

func TestSupplierReturnConsumesExpiredLotsFirst(t *testing.T) {
	svc := newTestService()
	ctx := managerCtx()
	receiveStock(t, svc, "sup-dairy", "prod-milk-1l", "4", "1", []domain.LotInput{
		{LotCode: "STALE", ExpiryDate: daysFromNow(-1), Quantity: dec("2")},
		{LotCode: "FRESH", ExpiryDate: daysFromNow(9), Quantity: dec("2")},
	})

	sr, err := svc.CreateSupplierReturn(ctx, domain.SupplierReturnCreateRequest{
		SupplierID:      "sup-dairy",
		StoreLocationID: "store-main",
		Lines:           []domain.SupplierReturnLineRequest{{ProductID: "prod-milk-1l", Quantity: dec("2"), UnitCost: decPtr("1")}},
	})
	if err != nil {
		t.Fatalf("create supplier return failed: %v", err)
	}
	if _, err := svc.ApproveSupplierReturn(ctx, sr.ID); err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if _, err := svc.PostSupplierReturn(ctx, sr.ID); err != nil {
		t.Fatalf("post failed: %v", err)
	}

	lots, err := svc.ListLots(ctx, "store-main", "prod-milk-1l")
	if err != nil {
		t.Fatalf("list lots failed: %v", err)
	}
	if len(lots) != 1 || lots[0].LotCode != "FRESH" {
		t.Fatalf("expected only FRESH to remain, got %+v", lots)
	}
}

func TestStockAdjustmentApprovalFlow(t *testing.T) {
	svc := newTestService()
	cashier := cashierCtx()
	manager := managerCtx()

	large, err := svc.CreateStockAdjustment(cashier, domain.StockAdjustmentCreateRequest{
		StoreLocationID: "store-main",
		ProductID:       "prod-bread",
		QuantityDelta:   dec("-12"),
		ReasonCode:      " damaged ",
	})
	if err != nil {
		t.Fatalf("create adjustment failed: %v", err)
	}
	if large.Status != domain.AdjustmentPendingApproval || !large.ApprovalRequired || large.ReasonCode != "DAMAGED" {
		t.Fatalf("unexpected adjustment %+v", large)
	}

	_, err = svc.PostStockAdjustment(manager, large.ID)
	mustKind(t, err, apperr.KindConflict)
	_, err = svc.ApproveStockAdjustment(cashier, large.ID)
	mustKind(t, err, apperr.KindForbidden)

	approved, err := svc.ApproveStockAdjustment(manager, large.ID)
	if err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if approved.Status != domain.AdjustmentApproved || approved.ApprovedBy != "manager" {
		t.Fatalf("unexpected approved adjustment %+v", approved)
	}
	posted, err := svc.PostStockAdjustment(cashier, large.ID)
	if err != nil {
		t.Fatalf("post failed: %v", err)
	}
	if posted.Status != domain.AdjustmentPosted || posted.MovementID == "" {
		t.Fatalf("unexpected posted adjustment %+v", posted)
	}
	_, err = svc.PostStockAdjustment(cashier, large.ID)
	mustKind(t, err, apperr.KindConflict)
	if got := onHand(t, svc, "store-main", "prod-bread"); !got.Equal(dec("-12")) {
		t.Fatalf("expected -12 on hand, got %s", got)
	}

	small, err := svc.CreateStockAdjustment(cashier, domain.StockAdjustmentCreateRequest{
		StoreLocationID: "store-main",
		ProductID:       "prod-bread",
		QuantityDelta:   dec("3"),
		ReasonCode:      "FOUND",
	})
	if err != nil {
		t.Fatalf("create adjustment failed: %v", err)
	}
	if small.Status != domain.AdjustmentApproved || small.ApprovalRequired {
		t.Fatalf("small adjustment should skip approval, got %+v", small)
	}
	_, err = svc.ApproveStockAdjustment(manager, small.ID)
	mustKind(t, err, apperr.KindConflict)

	_, err = svc.CreateStockAdjustment(cashier, domain.StockAdjustmentCreateRequest{
		StoreLocationID: "store-main",
		ProductID:       "prod-bread",
		QuantityDelta:   dec("0"),
		ReasonCode:      "FOUND",
	})
	mustKind(t, err, apperr.KindInvalidArgument)

	_, err = svc.CreateStockAdjustment(cashier, domain.StockAdjustmentCreateRequest{
		StoreLocationID: "store-main",
		ProductID:       "prod-bread",
		QuantityDelta:   dec("1"),
		ReasonCode:      strings.Repeat("R", 41),
	})
	mustKind(t, err, apperr.KindInvalidArgument)
}

func TestStockTransferShipAndReceive(t *testing.T) {
	svc := newTestService()
	ctx := managerCtx()
	adjustStock(t, svc, "store-main", "prod-bread", "10")

	_, err := svc.CreateStockTransfer(ctx, domain.StockTransferCreateRequest{
		SourceStoreLocationID:      "store-main",
		DestinationStoreLocationID: "store-main",
		Lines:                      []domain.TransferLineRequest{{ProductID: "prod-bread", Quantity: dec("1")}},
	})
	mustKind(t, err, apperr.KindInvalidArgument)

	tr, err := svc.CreateStockTransfer(ctx, domain.StockTransferCreateRequest{
		SourceStoreLocationID:      "store-main",
		DestinationStoreLocationID: "store-north",
		Lines: []domain.TransferLineRequest{
			{ProductID: "prod-bread", Quantity: dec("6")},
			{ProductID: "prod-coffee", Quantity: dec("1.5")},
		},
	})
	if err != nil {
		t.Fatalf("create transfer failed: %v", err)
	}
	if !strings.HasPrefix(tr.ReferenceNumber, "TRF-") || tr.Status != domain.TransferDraft {
		t.Fatalf("unexpected transfer %+v", tr)
	}

	_, err = svc.ShipStockTransfer(ctx, tr.ID, domain.TransferQuantitiesRequest{
		Lines: []domain.TransferLineRequest{{ProductID: "prod-bread", Quantity: dec("5")}},
	})
	mustKind(t, err, apperr.KindInvalidArgument)

	_, err = svc.ShipStockTransfer(ctx, tr.ID, domain.TransferQuantitiesRequest{
		Lines: []domain.TransferLineRequest{
			{ProductID: "prod-bread", Quantity: dec("7")},
			{ProductID: "prod-coffee", Quantity: dec("0")},
		},
	})
	mustKind(t, err, apperr.KindInvalidArgument)

	shipped, err := svc.ShipStockTransfer(ctx, tr.ID, domain.TransferQuantitiesRequest{
		Lines: []domain.TransferLineRequest{
			{ProductID: "prod-coffee", Quantity: dec("0")},
			{ProductID: "prod-bread", Quantity: dec("5")},
		},
	})
	if err != nil {
		t.Fatalf("ship failed: %v", err)
	}
	if shipped.Status != domain.TransferShipped {
		t.Fatalf("expected SHIPPED, got %s", shipped.Status)
	}
	if got := onHand(t, svc, "store-main", "prod-bread"); !got.Equal(dec("5")) {
		t.Fatalf("expected 5 bread left at source, got %s", got)
	}

	_, err = svc.ReceiveStockTransfer(ctx, tr.ID, domain.TransferQuantitiesRequest{
		Lines: []domain.TransferLineRequest{{ProductID: "prod-coffee", Quantity: dec("1")}},
	})
	mustKind(t, err, apperr.KindConflict)

	partial, err := svc.ReceiveStockTransfer(ctx, tr.ID, domain.TransferQuantitiesRequest{
		Lines: []domain.TransferLineRequest{{ProductID: "prod-bread", Quantity: dec("3")}},
	})
	if err != nil {
		t.Fatalf("partial receive failed: %v", err)
	}
	if partial.Status != domain.TransferPartiallyReceived {
		t.Fatalf("expected PARTIALLY_RECEIVED, got %s", partial.Status)
	}

	_, err = svc.ReceiveStockTransfer(ctx, tr.ID, domain.TransferQuantitiesRequest{
		Lines: []domain.TransferLineRequest{{ProductID: "prod-bread", Quantity: dec("3")}},
	})
	mustKind(t, err, apperr.KindConflict)

	done, err := svc.ReceiveStockTransfer(ctx, tr.ID, domain.TransferQuantitiesRequest{
		Lines: []domain.TransferLineRequest{{ProductID: "prod-bread", Quantity: dec("2")}},
	})
	if err != nil {
		t.Fatalf("final receive failed: %v", err)
	}
	if done.Status != domain.TransferReceived {
		t.Fatalf("expected RECEIVED, got %s", done.Status)
	}
	if got := onHand(t, svc, "store-north", "prod-bread"); !got.Equal(dec("5")) {
		t.Fatalf("expected 5 bread at destination, got %s", got)
	}

	_, err = svc.ShipStockTransfer(ctx, tr.ID, domain.TransferQuantitiesRequest{
		Lines: []domain.TransferLineRequest{
			{ProductID: "prod-bread", Quantity: dec("1")},
			{ProductID: "prod-coffee", Quantity: dec("0")},
		},
	})
	mustKind(t, err, apperr.KindConflict)
}

func TestStocktakeVariancePostsAdjustments(t *testing.T) {
	svc := newTestService()
	ctx := managerCtx()
	adjustStock(t, svc, "store-main", "prod-bread", "10")

	st, err := svc.CreateStocktake(ctx, domain.StocktakeCreateRequest{
		StoreLocationID: "store-main",
		ProductIDs:      []string{"prod-coffee", "prod-bread"},
	})
	if err != nil {
		t.Fatalf("create stocktake failed: %v", err)
	}
	if !strings.HasPrefix(st.ReferenceNumber, "STK-") {
		t.Fatalf("unexpected reference %q", st.ReferenceNumber)
	}

	_, err = svc.FinalizeStocktake(ctx, st.ID, domain.StocktakeFinalizeRequest{Counts: []domain.StocktakeCountRequest{
		{ProductID: "prod-bread", CountedQuantity: dec("8")},
		{ProductID: "prod-coffee", CountedQuantity: dec("0.5")},
	}})
	mustKind(t, err, apperr.KindConflict)

	started, err := svc.StartStocktake(ctx, st.ID)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if started.Lines[0].ProductID != "prod-bread" || !started.Lines[0].ExpectedQuantity.Equal(dec("10")) {
		t.Fatalf("expected bread snapshot of 10, got %+v", started.Lines[0])
	}

	// Stock moving after the snapshot does not change the variance.
	adjustStock(t, svc, "store-main", "prod-bread", "5")

	_, err = svc.FinalizeStocktake(ctx, st.ID, domain.StocktakeFinalizeRequest{Counts: []domain.StocktakeCountRequest{
		{ProductID: "prod-bread", CountedQuantity: dec("8")},
	}})
	mustKind(t, err, apperr.KindInvalidArgument)

	_, err = svc.FinalizeStocktake(ctx, st.ID, domain.StocktakeFinalizeRequest{Counts: []domain.StocktakeCountRequest{
		{ProductID: "prod-bread", CountedQuantity: dec("-1")},
		{ProductID: "prod-coffee", CountedQuantity: dec("0.5")},
	}})
	mustKind(t, err, apperr.KindInvalidArgument)

	finalized, err := svc.FinalizeStocktake(ctx, st.ID, domain.StocktakeFinalizeRequest{Counts: []domain.StocktakeCountRequest{
		{ProductID: "prod-bread", CountedQuantity: dec("8")},
		{ProductID: "prod-coffee", CountedQuantity: dec("0.5")},
	}})
	if err != nil {
		t.Fatalf("finalize failed: %v", err)
	}
	if finalized.Status != domain.StocktakeFinalized {
		t.Fatalf("expected FINALIZED, got %s", finalized.Status)
	}
	bread, coffee := finalized.Lines[0], finalized.Lines[1]
	if !bread.VarianceQuantity.Equal(dec("-2")) || bread.MovementID == "" {
		t.Fatalf("unexpected bread line %+v", bread)
	}
	if !coffee.VarianceQuantity.Equal(dec("0.5")) || coffee.MovementID == "" {
		t.Fatalf("unexpected coffee line %+v", coffee)
	}
	if got := onHand(t, svc, "store-main", "prod-bread"); !got.Equal(dec("13")) {
		t.Fatalf("expected 13 bread on hand, got %s", got)
	}

	_, err = svc.StartStocktake(ctx, st.ID)
	mustKind(t, err, apperr.KindConflict)
}

func TestManualMovementsAndRunningBalance(t *testing.T) {
	env := newTestEnv(DefaultOptions())
	svc := env.svc
	ctx := context.Background()

	bad := []domain.MovementCreateRequest{
		{StoreLocationID: "store-main", ProductID: "prod-bread", MovementType: domain.MovementSale, QuantityDelta: dec("-1"), ReferenceType: domain.RefSaleReceipt, ReferenceNumber: "X"},
		{StoreLocationID: "store-main", ProductID: "prod-bread", MovementType: domain.MovementReturn, QuantityDelta: dec("-1"), ReferenceType: domain.RefSaleReturn, ReferenceNumber: "X"},
		{StoreLocationID: "store-main", ProductID: "prod-bread", MovementType: domain.MovementAdjustment, QuantityDelta: dec("1"), ReferenceType: domain.RefSaleReturn, ReferenceNumber: "X"},
		{StoreLocationID: "store-main", ProductID: "prod-bread", MovementType: domain.MovementAdjustment, QuantityDelta: dec("1"), ReferenceType: domain.RefStockAdjustment},
	}
	for i, req := range bad {
		if _, err := svc.CreateMovement(ctx, req); !apperr.Is(err, apperr.KindInvalidArgument) {
			t.Fatalf("case %d: expected invalid argument, got %v", i, err)
		}
	}

	adjustStock(t, svc, "store-main", "prod-bread", "5")
	entry, err := svc.CreateMovement(ctx, domain.MovementCreateRequest{
		StoreLocationID: "store-main",
		ProductID:       "prod-bread",
		MovementType:    domain.MovementAdjustment,
		QuantityDelta:   dec("-2"),
		ReferenceType:   domain.RefStockAdjustment,
		ReferenceNumber: "SHRINK-1",
	})
	if err != nil {
		t.Fatalf("manual movement failed: %v", err)
	}
	if !entry.RunningBalance.Equal(dec("3")) {
		t.Fatalf("expected running balance 3, got %s", entry.RunningBalance)
	}
	adjustStock(t, svc, "store-main", "prod-coffee", "1.25")

	entries, err := svc.ListMovements(ctx, "store-main", "")
	if err != nil {
		t.Fatalf("list movements failed: %v", err)
	}
	want := []string{"5", "3", "1.25"}
	if len(entries) != len(want) {
		t.Fatalf("expected %d movements, got %d", len(want), len(entries))
	}
	for i, w := range want {
		if !entries[i].RunningBalance.Equal(dec(w)) {
			t.Fatalf("entry %d: expected running balance %s, got %s", i, w, entries[i].RunningBalance)
		}
	}

	_, err = svc.ListMovements(ctx, "store-nowhere", "")
	mustKind(t, err, apperr.KindNotFound)
}
