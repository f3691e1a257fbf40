package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"retailpos/backend/internal/apperr"
	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/store"
)

const (
	scopeCheckout          = "checkout"
	scopePaymentTransition = "payment_transition"

	maxIdempotencyKeyLength = 120
)

type idempotentCall struct {
	scope       string
	key         string
	fingerprint string
}

func normalizeIdempotencyKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", apperr.Invalid("Idempotency-Key header is required")
	}
	if len(key) > maxIdempotencyKeyLength {
		return "", apperr.Invalid("Idempotency-Key must be %d characters or less", maxIdempotencyKeyLength)
	}
	return key, nil
}

// fingerprint hashes the JSON form of v. Callers pass structs whose fields
// are already normalized, so equal requests always encode identically.
func fingerprint(v any) (string, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("fingerprint request: %w", err)
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

func resolveExisting(rec domain.IdempotencyRecord, call idempotentCall) (json.RawMessage, error) {
	if rec.Fingerprint != call.fingerprint {
		return nil, apperr.Conflict("idempotency key reused with different payload: %s", call.key)
	}
	if len(rec.Response) == 0 {
		return nil, apperr.Conflict("idempotency key is already being processed: %s", call.key)
	}
	return rec.Response, nil
}

// runIdempotent executes work at most once per (scope, key). The key is
// claimed, the work done and the response stored in one unit of work, so a
// replay never observes a half-finished call.
func runIdempotent[T any](ctx context.Context, s *Service, call idempotentCall, work func(ctx context.Context, tx store.Tx) (T, error)) (result T, replayed bool, err error) {
	if stored := s.cachedResponse(ctx, call); stored != nil {
		return decodeReplay[T](call, *stored)
	}

	var (
		response T
		stored   json.RawMessage
		record   domain.IdempotencyRecord
	)
	err = s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		stored = nil

		existing, err := tx.LockIdempotency(ctx, call.scope, call.key)
		switch {
		case err == nil:
			stored, err = resolveExisting(*existing, call)
			return err
		case !errors.Is(err, store.ErrNotFound):
			return err
		}

		now := s.clock()
		if err := tx.InsertIdempotency(ctx, domain.IdempotencyRecord{
			Scope:       call.scope,
			Key:         call.key,
			Fingerprint: call.fingerprint,
			CreatedAt:   now,
		}); err != nil {
			return err
		}

		response, err = work(ctx, tx)
		if err != nil {
			return err
		}
		payload, err := json.Marshal(response)
		if err != nil {
			return fmt.Errorf("encode %s response: %w", call.scope, err)
		}
		record = domain.IdempotencyRecord{
			Scope:       call.scope,
			Key:         call.key,
			Fingerprint: call.fingerprint,
			Response:    payload,
			CreatedAt:   now,
		}
		return tx.CompleteIdempotency(ctx, record)
	})
	if errors.Is(err, store.ErrDuplicate) {
		// Another request inserted the same key first and has committed by now.
		stored, err = s.replayAfterDuplicate(ctx, call)
	}
	if err != nil {
		var zero T
		return zero, false, err
	}

	if stored != nil {
		s.remember(ctx, domain.IdempotencyRecord{Scope: call.scope, Key: call.key, Fingerprint: call.fingerprint, Response: stored})
		return decodeReplay[T](call, stored)
	}
	s.remember(ctx, record)
	return response, false, nil
}

func decodeReplay[T any](call idempotentCall, stored json.RawMessage) (T, bool, error) {
	var result T
	if err := json.Unmarshal(stored, &result); err != nil {
		return result, false, fmt.Errorf("replay %s response: %w", call.scope, err)
	}
	return result, true, nil
}

// cachedResponse consults the replay cache. Cache failures only cost the
// fast path.
func (s *Service) cachedResponse(ctx context.Context, call idempotentCall) *json.RawMessage {
	rec, ok, err := s.cache.Get(ctx, call.scope, call.key)
	if err != nil {
		s.logger.Warn("idempotency cache read failed", zap.String("scope", call.scope), zap.Error(err))
		return nil
	}
	if !ok || rec.Fingerprint != call.fingerprint || len(rec.Response) == 0 {
		return nil
	}
	return &rec.Response
}

func (s *Service) replayAfterDuplicate(ctx context.Context, call idempotentCall) (json.RawMessage, error) {
	var stored json.RawMessage
	err := s.repo.View(ctx, func(ctx context.Context, r store.Reader) error {
		rec, err := r.GetIdempotency(ctx, call.scope, call.key)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.Conflict("idempotency conflict for key: %s", call.key)
		}
		if err != nil {
			return err
		}
		stored, err = resolveExisting(*rec, call)
		return err
	})
	return stored, err
}

func (s *Service) remember(ctx context.Context, rec domain.IdempotencyRecord) {
	if err := s.cache.Set(context.WithoutCancel(ctx), rec, s.opts.IdempotencyTTL); err != nil {
		s.logger.Warn("idempotency cache write failed", zap.String("scope", rec.Scope), zap.Error(err))
	}
}
