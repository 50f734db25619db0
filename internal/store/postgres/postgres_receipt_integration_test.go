package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"laundrypos/backend/internal/domain"
	"laundrypos/backend/internal/reconcile"
	"laundrypos/backend/internal/store"
)

func newIntegrationStore(t *testing.T) *Store {
	t.Helper()
	databaseURL := os.Getenv("LAUNDRY_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set LAUNDRY_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	if err := s.Migrate(ctx, "main-branch"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func seedReceipt(t *testing.T, s *Store, receiptNumber string) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	items := []domain.OrderItem{
		{ID: receiptNumber + "-001", BranchID: "main-branch", ServiceCode: "SHIRT-WI", Description: "Shirt", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(1000), ExpressTier: "standard", TotalAmount: decimal.NewFromInt(1000), Status: domain.ItemStatusReady, CreatedBy: "it", CreatedAt: now},
		{ID: receiptNumber + "-002", BranchID: "main-branch", ServiceCode: "SUIT-DC", Description: "Suit", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(2000), ExpressTier: "standard", TotalAmount: decimal.NewFromInt(2000), Status: domain.ItemStatusReady, CreatedBy: "it", CreatedAt: now},
	}
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM payments WHERE receipt_number = $1`, receiptNumber)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM order_items WHERE receipt_number = $1`, receiptNumber)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM receipt_numbers WHERE receipt_number = $1`, receiptNumber)
	})
	if err := s.CreateOrder(ctx, receiptNumber, items, nil); err != nil {
		t.Fatalf("create order: %v", err)
	}
}

func TestCreateOrderRejectsDuplicateReceiptNumber(t *testing.T) {
	s := newIntegrationStore(t)
	receiptNumber := fmt.Sprintf("IT-DUP-%d", time.Now().UnixNano())
	seedReceipt(t, s, receiptNumber)

	items := []domain.OrderItem{{
		ID: receiptNumber + "-x", BranchID: "main-branch", ServiceCode: "SHIRT-WI", Description: "Shirt",
		Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(10), ExpressTier: "standard",
		TotalAmount: decimal.NewFromInt(10), Status: domain.ItemStatusPending, CreatedBy: "it", CreatedAt: time.Now().UTC(),
	}}
	err := s.CreateOrder(context.Background(), receiptNumber, items, nil)
	if !errors.Is(err, store.ErrDuplicateReceipt) {
		t.Fatalf("expected ErrDuplicateReceipt, got %v", err)
	}
}

func TestUpdateReceiptSerializesConcurrentPayments(t *testing.T) {
	s := newIntegrationStore(t)
	receiptNumber := fmt.Sprintf("IT-PAY-%d", time.Now().UnixNano())
	seedReceipt(t, s, receiptNumber)

	ctx := context.Background()
	pay := func() error {
		_, err := s.UpdateReceipt(ctx, receiptNumber, func(items []domain.OrderItem) (store.ReceiptMutation, error) {
			app, err := reconcile.ApplyPayment(items, domain.PaymentModeStandalone, decimal.NewFromInt(3000))
			if err != nil {
				return store.ReceiptMutation{}, err
			}
			payments := make([]domain.Payment, 0, len(app.Allocations))
			for i, alloc := range app.Allocations {
				payments = append(payments, domain.Payment{
					ID: fmt.Sprintf("%s-pay-%d-%d", receiptNumber, time.Now().UnixNano(), i), ActionID: "it",
					ReceiptNumber: receiptNumber, OrderItemID: alloc.OrderItemID, BranchID: "main-branch",
					Amount: alloc.Amount, Method: domain.PaymentMethodCash, Mode: domain.PaymentModeStandalone,
					ReceivedBy: "it", CreatedAt: time.Now().UTC(),
				})
			}
			return store.ReceiptMutation{Items: app.Items, Payments: payments}, nil
		})
		return err
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = pay()
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil && !errors.Is(err, store.ErrConflict) {
			t.Fatalf("payment %d: expected success or ErrConflict, got %v", i, err)
		}
	}

	items, err := s.GetReceiptItems(ctx, receiptNumber)
	if err != nil {
		t.Fatalf("get receipt: %v", err)
	}
	summary := reconcile.Summarize(items)
	if !summary.ReceiptPaid.Equal(decimal.NewFromInt(3000)) {
		t.Fatalf("expected paid 3000 after concurrent payments, got %s (errors: %v)", summary.ReceiptPaid, errs)
	}
	payments, err := s.ListPayments(ctx, receiptNumber)
	if err != nil {
		t.Fatalf("list payments: %v", err)
	}
	total := decimal.Zero
	for _, p := range payments {
		total = total.Add(p.Amount)
	}
	if !total.Equal(decimal.NewFromInt(3000)) {
		t.Fatalf("expected payment rows to sum to 3000, got %s", total)
	}
}
