package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"nil", nil, ErrorClassPermanent},
		{"serialization", &pgconn.PgError{Code: "40001"}, ErrorClassSerialization},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, ErrorClassDeadlock},
		{"lock not available", &pgconn.PgError{Code: "55P03"}, ErrorClassTransient},
		{"unique violation", &pgconn.PgError{Code: "23505"}, ErrorClassPermanent},
		{"wrapped serialization", fmt.Errorf("commit transaction: %w", &pgconn.PgError{Code: "40001"}), ErrorClassSerialization},
		{"no rows", sql.ErrNoRows, ErrorClassPermanent},
		{"canceled", context.Canceled, ErrorClassPermanent},
		{"plain", errors.New("boom"), ErrorClassPermanent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifyError(tc.err))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(&pgconn.PgError{Code: "40001"}))
	assert.True(t, IsRetryable(&pgconn.PgError{Code: "40P01"}))
	assert.False(t, IsRetryable(&pgconn.PgError{Code: "23505"}))
	assert.False(t, IsRetryable(errors.New("boom")))
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, IsUniqueViolation(nil))
}

func TestSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := sleep(ctx, time.Hour)
	require.ErrorIs(t, err, context.Canceled)
}

func TestJitterStaysWithinQuarter(t *testing.T) {
	for i := 0; i < 100; i++ {
		j := jitter(40 * time.Millisecond)
		if j < 0 || j >= 10*time.Millisecond {
			t.Fatalf("jitter out of range: %v", j)
		}
	}
	assert.Equal(t, time.Duration(0), jitter(0))
}
