package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"retailpos/backend/internal/apperr"
	"retailpos/backend/internal/cache"
	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/events"
	"retailpos/backend/internal/ledger"
	"retailpos/backend/internal/lots"
	"retailpos/backend/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

func actorName(ctx context.Context) string {
	actor, _ := ActorFromContext(ctx)
	return actor.Name()
}

type Options struct {
	ParkedCartTTL               time.Duration
	ExpiryOverrideEnabled       bool
	AdjustmentApprovalThreshold decimal.Decimal
	IdempotencyTTL              time.Duration
}

func DefaultOptions() Options {
	return Options{
		ParkedCartTTL:               4 * time.Hour,
		AdjustmentApprovalThreshold: decimal.NewFromInt(10),
		IdempotencyTTL:              24 * time.Hour,
	}
}

type Service struct {
	repo   store.Repository
	cache  cache.IdempotencyCache
	events events.Publisher
	logger *zap.Logger

	lots   *lots.Allocator
	ledger *ledger.Ledger
	now    func() time.Time
	opts   Options
}

// New wires the service. A nil cache, publisher or logger falls back to its
// no-op implementation.
func New(repo store.Repository, idem cache.IdempotencyCache, publisher events.Publisher, logger *zap.Logger, opts Options) *Service {
	if idem == nil {
		idem = cache.NoopIdempotencyCache{}
	}
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := DefaultOptions()
	if opts.ParkedCartTTL <= 0 {
		opts.ParkedCartTTL = defaults.ParkedCartTTL
	}
	if opts.IdempotencyTTL <= 0 {
		opts.IdempotencyTTL = defaults.IdempotencyTTL
	}
	if !opts.AdjustmentApprovalThreshold.IsPositive() {
		opts.AdjustmentApprovalThreshold = defaults.AdjustmentApprovalThreshold
	}

	s := &Service{
		repo:   repo,
		cache:  idem,
		events: publisher,
		logger: logger.Named("service"),
		opts:   opts,
	}
	s.setClock(time.Now)
	return s
}

func (s *Service) setClock(now func() time.Time) {
	s.now = now
	s.lots = lots.NewAllocator(now)
	s.ledger = ledger.New(now)
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

// publish runs after commit. A failed publish is logged and otherwise ignored.
func (s *Service) publish(ctx context.Context, eventType string, key string, payload any) {
	err := s.events.Publish(context.WithoutCancel(ctx), events.Event{
		Type:       eventType,
		Key:        key,
		OccurredAt: s.clock(),
		Payload:    payload,
	})
	if err != nil {
		s.logger.Warn("event publish failed",
			zap.String("event_type", eventType),
			zap.String("key", key),
			zap.Error(err),
		)
	}
}

// missing turns a store miss into a NotFound with a readable subject.
func missing(err error, format string, args ...any) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound(format, args...)
	}
	return err
}

func requireID(value string, field string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", apperr.Invalid("%s is required", field)
	}
	return value, nil
}

func requireManager(ctx context.Context, action string) error {
	actor, _ := ActorFromContext(ctx)
	if !actor.IsManager() {
		return apperr.Forbidden("manager or admin role required to %s", action)
	}
	return nil
}

func loadActiveProduct(ctx context.Context, r store.Reader, productID string) (*domain.Product, error) {
	product, err := r.GetProduct(ctx, productID)
	if err != nil {
		return nil, missing(err, "product not found: %s", productID)
	}
	if !product.Active {
		return nil, apperr.Invalid("product is inactive: %s", productID)
	}
	return product, nil
}

func loadActiveLocation(ctx context.Context, r store.Reader, storeLocationID string) (*domain.StoreLocation, error) {
	loc, err := r.GetStoreLocation(ctx, storeLocationID)
	if err != nil {
		return nil, missing(err, "store location not found: %s", storeLocationID)
	}
	if !loc.Active {
		return nil, apperr.Conflict("store location is inactive: %s", storeLocationID)
	}
	return loc, nil
}

func loadActiveSupplier(ctx context.Context, r store.Reader, supplierID string) (*domain.Supplier, error) {
	sup, err := r.GetSupplier(ctx, supplierID)
	if err != nil {
		return nil, missing(err, "supplier not found: %s", supplierID)
	}
	if !sup.Active {
		return nil, apperr.Conflict("supplier is inactive: %s", supplierID)
	}
	return sup, nil
}

func timePtr(t time.Time) *time.Time {
	return &t
}
