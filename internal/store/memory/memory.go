package memory

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/store"
)

// Store keeps everything in process. A unit of work holds the write lock for
// its whole duration and runs against a copy of the state that replaces the
// live one only when the work succeeds.
type Store struct {
	mu sync.RWMutex
	st *state
}

var _ store.Repository = (*Store)(nil)

func New() *Store {
	return &Store{st: newState()}
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.st.clone()
	if err := fn(ctx, work); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) View(ctx context.Context, fn func(ctx context.Context, r store.Reader) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx, s.st)
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.st.users))
	for _, u := range s.st.users {
		users = append(users, u)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.st.users[user.Username]; exists {
		return store.ErrDuplicate
	}
	s.st.users[user.Username] = user
	return nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.st.users[username]
	if !ok {
		return store.ErrNotFound
	}
	user.Password = password
	s.st.users[username] = user
	return nil
}

// PutProduct and the other Put helpers register catalog data.
func (s *Store) PutProduct(p domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.products[p.ID] = p
}

func (s *Store) PutStoreLocation(l domain.StoreLocation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.locations[l.ID] = l
}

func (s *Store) PutSupplier(sup domain.Supplier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.suppliers[sup.ID] = sup
}

func (s *Store) PutUser(u domain.UserAccount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.users[u.Username] = u
}

// NewSeeded returns a store loaded with the demo catalog and dev accounts.
func NewSeeded() *Store {
	s := New()

	for _, loc := range store.DemoLocations {
		s.st.locations[loc.ID] = loc
	}
	for _, sup := range store.DemoSuppliers {
		s.st.suppliers[sup.ID] = sup
	}
	for _, p := range store.DemoProducts {
		s.st.products[p.ID] = p
	}

	users, err := store.DemoUsers(time.Now())
	if err != nil {
		panic("memory: seed users: " + err.Error())
	}
	for _, u := range users {
		s.st.users[u.Username] = u
	}
	return s
}

type state struct {
	products  map[string]domain.Product
	locations map[string]domain.StoreLocation
	suppliers map[string]domain.Supplier
	users     map[string]domain.UserAccount

	carts       map[string]domain.Cart
	sales       map[string]domain.Sale
	saleByCart  map[string]string
	payments    map[string]domain.Payment
	transitions []domain.PaymentTransition
	idempotency map[idemKey]domain.IdempotencyRecord

	movements    []domain.Movement
	movementLots []domain.MovementLot
	lots         map[string]domain.InventoryLot
	lotBalances  map[string]decimal.Decimal
	costs        map[productKey]domain.CostRecord

	purchaseOrders  map[string]domain.PurchaseOrder
	goodsReceipts   []domain.GoodsReceipt
	supplierReturns map[string]domain.SupplierReturn
	adjustments     map[string]domain.StockAdjustment
	transfers       map[string]domain.StockTransfer
	stocktakes      map[string]domain.Stocktake

	seq int64
}

type idemKey struct {
	scope string
	key   string
}

type productKey struct {
	storeLocationID string
	productID       string
}

func newState() *state {
	return &state{
		products:        map[string]domain.Product{},
		locations:       map[string]domain.StoreLocation{},
		suppliers:       map[string]domain.Supplier{},
		users:           map[string]domain.UserAccount{},
		carts:           map[string]domain.Cart{},
		sales:           map[string]domain.Sale{},
		saleByCart:      map[string]string{},
		payments:        map[string]domain.Payment{},
		idempotency:     map[idemKey]domain.IdempotencyRecord{},
		lots:            map[string]domain.InventoryLot{},
		lotBalances:     map[string]decimal.Decimal{},
		costs:           map[productKey]domain.CostRecord{},
		purchaseOrders:  map[string]domain.PurchaseOrder{},
		supplierReturns: map[string]domain.SupplierReturn{},
		adjustments:     map[string]domain.StockAdjustment{},
		transfers:       map[string]domain.StockTransfer{},
		stocktakes:      map[string]domain.Stocktake{},
	}
}

// clone copies every map and clips every append-only slice. Stored values
// are never mutated in place, so a shallow copy is enough.
func (s *state) clone() *state {
	return &state{
		products:        maps.Clone(s.products),
		locations:       maps.Clone(s.locations),
		suppliers:       maps.Clone(s.suppliers),
		users:           maps.Clone(s.users),
		carts:           maps.Clone(s.carts),
		sales:           maps.Clone(s.sales),
		saleByCart:      maps.Clone(s.saleByCart),
		payments:        maps.Clone(s.payments),
		transitions:     slices.Clip(s.transitions),
		idempotency:     maps.Clone(s.idempotency),
		movements:       slices.Clip(s.movements),
		movementLots:    slices.Clip(s.movementLots),
		lots:            maps.Clone(s.lots),
		lotBalances:     maps.Clone(s.lotBalances),
		costs:           maps.Clone(s.costs),
		purchaseOrders:  maps.Clone(s.purchaseOrders),
		goodsReceipts:   slices.Clip(s.goodsReceipts),
		supplierReturns: maps.Clone(s.supplierReturns),
		adjustments:     maps.Clone(s.adjustments),
		transfers:       maps.Clone(s.transfers),
		stocktakes:      maps.Clone(s.stocktakes),
		seq:             s.seq,
	}
}

func (s *state) nextSeq() int64 {
	s.seq++
	return s.seq
}
