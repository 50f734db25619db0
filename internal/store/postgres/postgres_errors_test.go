package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"laundrypos/backend/internal/domain"
	"laundrypos/backend/internal/store"
)

func TestPgErrorClassification(t *testing.T) {
	cases := []struct {
		name          string
		err           error
		serialization bool
		unique        bool
	}{
		{"serialization failure", &pgconn.PgError{Code: "40001"}, true, false},
		{"deadlock", fmt.Errorf("update items: %w", &pgconn.PgError{Code: "40P01"}), true, false},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false, true},
		{"plain error", errors.New("connection reset"), false, false},
		{"nil", nil, false, false},
	}
	for _, tc := range cases {
		if got := isSerializationFailure(tc.err); got != tc.serialization {
			t.Errorf("%s: isSerializationFailure = %t, expected %t", tc.name, got, tc.serialization)
		}
		if got := isUniqueViolation(tc.err); got != tc.unique {
			t.Errorf("%s: isUniqueViolation = %t, expected %t", tc.name, got, tc.unique)
		}
	}
}

func TestRetrySerializableRerunsLosingTransactions(t *testing.T) {
	calls := 0
	items, err := retrySerializable("R-1", func() ([]domain.OrderItem, error) {
		calls++
		if calls < maxReceiptTxAttempts {
			return nil, &pgconn.PgError{Code: "40001"}
		}
		return []domain.OrderItem{{ID: "R-1-001"}}, nil
	})
	if err != nil {
		t.Fatalf("expected the last attempt to succeed, got %v", err)
	}
	if calls != maxReceiptTxAttempts || len(items) != 1 {
		t.Fatalf("unexpected result calls=%d items=%d", calls, len(items))
	}
}

func TestRetrySerializableGivesUpWithConflict(t *testing.T) {
	calls := 0
	_, err := retrySerializable("R-2", func() ([]domain.OrderItem, error) {
		calls++
		return nil, &pgconn.PgError{Code: "40001"}
	})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if calls != maxReceiptTxAttempts {
		t.Fatalf("expected %d attempts, got %d", maxReceiptTxAttempts, calls)
	}
}

func TestRetrySerializablePassesOtherErrorsThrough(t *testing.T) {
	calls := 0
	_, err := retrySerializable("R-3", func() ([]domain.OrderItem, error) {
		calls++
		return nil, store.ErrNotFound
	})
	if !errors.Is(err, store.ErrNotFound) || calls != 1 {
		t.Fatalf("expected a single ErrNotFound attempt, got %v after %d calls", err, calls)
	}
}
