package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"laundrypos/backend/internal/domain"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrConflict         = errors.New("already exists")
	ErrDuplicateReceipt = errors.New("receipt number already in use")
	ErrAlreadyOpen      = errors.New("cash session already open")
)

// ReceiptMutation is what a ReceiptMutator wants persisted: the full,
// updated item set of the receipt and any payment rows to insert.
type ReceiptMutation struct {
	Items    []domain.OrderItem
	Payments []domain.Payment
}

// ReceiptMutator receives the current items of a receipt, read under a row
// lock, and returns the changes to write in the same transaction. Returning
// an error aborts the transaction and is passed back to the caller as is.
// A store may run the mutator again after a serialization failure, so it
// must derive everything it returns from items.
type ReceiptMutator func(items []domain.OrderItem) (ReceiptMutation, error)

type Repository interface {
	CreateBranch(ctx context.Context, branch domain.Branch) (*domain.Branch, error)
	GetBranch(ctx context.Context, id string) (*domain.Branch, error)
	ListBranches(ctx context.Context) ([]domain.Branch, error)

	ListServices(ctx context.Context, includeInactive bool) ([]domain.LaundryService, error)
	GetService(ctx context.Context, code string) (*domain.LaundryService, error)
	CreateService(ctx context.Context, service domain.LaundryService) (*domain.LaundryService, error)
	UpdateService(ctx context.Context, service domain.LaundryService) (*domain.LaundryService, error)

	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	GetCustomer(ctx context.Context, id string) (*domain.Customer, error)
	SearchCustomers(ctx context.Context, query string, limit int) ([]domain.Customer, error)
	UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	AddLoyaltyPoints(ctx context.Context, customerID string, points int64) (*domain.Customer, error)

	// CreateOrder reserves receiptNumber and inserts the items and any
	// deposit payments atomically. A taken number yields ErrDuplicateReceipt.
	CreateOrder(ctx context.Context, receiptNumber string, items []domain.OrderItem, payments []domain.Payment) error
	GetReceiptItems(ctx context.Context, receiptNumber string) ([]domain.OrderItem, error)
	// ListReceiptItems returns every item of the receipts matching the branch,
	// customer and creation window of filter. Status and limit are applied
	// by the caller on the grouped receipts.
	ListReceiptItems(ctx context.Context, filter domain.ReceiptFilter) ([]domain.OrderItem, error)
	UpdateReceipt(ctx context.Context, receiptNumber string, mutate ReceiptMutator) ([]domain.OrderItem, error)
	ListPayments(ctx context.Context, receiptNumber string) ([]domain.Payment, error)
	ListPaymentsBetween(ctx context.Context, branchID string, from time.Time, to time.Time) ([]domain.Payment, error)
	CountCollections(ctx context.Context, branchID string, from time.Time, to time.Time) (int64, error)
	OutstandingBalance(ctx context.Context, branchID string) (decimal.Decimal, error)

	CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error)
	GetExpense(ctx context.Context, id string) (*domain.Expense, error)
	ListExpenses(ctx context.Context, branchID string, from time.Time, to time.Time) ([]domain.Expense, error)
	VoidExpense(ctx context.Context, id string, reason string, at time.Time) (*domain.Expense, error)

	OpenCashSession(ctx context.Context, session domain.CashSession) (*domain.CashSession, error)
	GetActiveCashSession(ctx context.Context, branchID string) (*domain.CashSession, error)
	CloseCashSession(ctx context.Context, closed domain.CashSession) (*domain.CashSession, error)
	ListCashSessions(ctx context.Context, branchID string, from time.Time, to time.Time) ([]domain.CashSession, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, branchID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
