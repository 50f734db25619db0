package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"laundrypos/backend/internal/domain"
	"laundrypos/backend/internal/store"
	"laundrypos/backend/internal/xid"
)

//go:embed schema.sql
var Schema string

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate applies the embedded schema and makes sure the default branch
// exists. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context, defaultBranchID string) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	if defaultBranchID == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO branches (id, code, name, created_at)
		VALUES ($1, upper($1), 'Main Branch', now())
		ON CONFLICT DO NOTHING
	`, defaultBranchID)
	return err
}

func (s *Store) CreateBranch(ctx context.Context, branch domain.Branch) (*domain.Branch, error) {
	if strings.TrimSpace(branch.ID) == "" || strings.TrimSpace(branch.Name) == "" {
		return nil, store.ErrInvalidInput
	}
	if branch.CreatedAt.IsZero() {
		branch.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO branches (id, code, name, phone, address, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, branch.ID, branch.Code, branch.Name, nullIfEmpty(branch.Phone), nullIfEmpty(branch.Address), branch.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: branch %s", store.ErrConflict, branch.Code)
		}
		return nil, err
	}
	created := branch
	return &created, nil
}

func (s *Store) GetBranch(ctx context.Context, id string) (*domain.Branch, error) {
	var branch domain.Branch
	var phone, address sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, code, name, phone, address, created_at
		FROM branches
		WHERE id = $1
	`, id).Scan(&branch.ID, &branch.Code, &branch.Name, &phone, &address, &branch.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	branch.Phone = phone.String
	branch.Address = address.String
	branch.CreatedAt = branch.CreatedAt.UTC()
	return &branch, nil
}

func (s *Store) ListBranches(ctx context.Context) ([]domain.Branch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, code, name, phone, address, created_at
		FROM branches
		ORDER BY code
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	branches := make([]domain.Branch, 0, 8)
	for rows.Next() {
		var branch domain.Branch
		var phone, address sql.NullString
		if err := rows.Scan(&branch.ID, &branch.Code, &branch.Name, &phone, &address, &branch.CreatedAt); err != nil {
			return nil, err
		}
		branch.Phone = phone.String
		branch.Address = address.String
		branch.CreatedAt = branch.CreatedAt.UTC()
		branches = append(branches, branch)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return branches, nil
}

func (s *Store) ListServices(ctx context.Context, includeInactive bool) ([]domain.LaundryService, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT code, name, category, unit, unit_price, active
		FROM laundry_services
		WHERE active = true OR $1
		ORDER BY category, name
	`, includeInactive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	services := make([]domain.LaundryService, 0, 32)
	for rows.Next() {
		var svc domain.LaundryService
		if err := rows.Scan(&svc.Code, &svc.Name, &svc.Category, &svc.Unit, &svc.UnitPrice, &svc.Active); err != nil {
			return nil, err
		}
		services = append(services, svc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return services, nil
}

func (s *Store) GetService(ctx context.Context, code string) (*domain.LaundryService, error) {
	var svc domain.LaundryService
	err := s.db.QueryRowContext(ctx, `
		SELECT code, name, category, unit, unit_price, active
		FROM laundry_services
		WHERE code = $1
	`, code).Scan(&svc.Code, &svc.Name, &svc.Category, &svc.Unit, &svc.UnitPrice, &svc.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &svc, nil
}

func (s *Store) CreateService(ctx context.Context, service domain.LaundryService) (*domain.LaundryService, error) {
	if service.Code == "" || service.Name == "" || !service.UnitPrice.IsPositive() {
		return nil, store.ErrInvalidInput
	}
	service.Active = true

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO laundry_services (code, name, category, unit, unit_price, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,now(),now())
	`, service.Code, service.Name, service.Category, service.Unit, service.UnitPrice, service.Active)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: service %s", store.ErrConflict, service.Code)
		}
		return nil, err
	}
	created := service
	return &created, nil
}

func (s *Store) UpdateService(ctx context.Context, service domain.LaundryService) (*domain.LaundryService, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE laundry_services
		SET name = $2, category = $3, unit = $4, unit_price = $5, active = $6, updated_at = now()
		WHERE code = $1
	`, service.Code, service.Name, service.Category, service.Unit, service.UnitPrice, service.Active)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	updated := service
	return &updated, nil
}

const customerColumns = `id, name, phone, email, address, account_type, loyalty_points, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCustomer(row rowScanner) (domain.Customer, error) {
	var customer domain.Customer
	var email, address sql.NullString
	err := row.Scan(&customer.ID, &customer.Name, &customer.Phone, &email, &address,
		&customer.AccountType, &customer.LoyaltyPoints, &customer.CreatedAt)
	customer.Email = email.String
	customer.Address = address.String
	customer.CreatedAt = customer.CreatedAt.UTC()
	return customer, err
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if strings.TrimSpace(customer.Name) == "" || strings.TrimSpace(customer.Phone) == "" {
		return nil, store.ErrInvalidInput
	}
	if customer.ID == "" {
		customer.ID = xid.New("cust")
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, name, phone, email, address, account_type, loyalty_points, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now())
	`, customer.ID, customer.Name, customer.Phone, nullIfEmpty(customer.Email), nullIfEmpty(customer.Address),
		customer.AccountType, customer.LoyaltyPoints, customer.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: phone %s", store.ErrConflict, customer.Phone)
		}
		return nil, err
	}
	created := customer
	return &created, nil
}

func (s *Store) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	customer, err := scanCustomer(s.db.QueryRowContext(ctx, `
		SELECT `+customerColumns+`
		FROM customers
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &customer, nil
}

func (s *Store) SearchCustomers(ctx context.Context, query string, limit int) ([]domain.Customer, error) {
	if limit < 1 {
		limit = 50
	}
	pattern := "%" + strings.TrimSpace(query) + "%"

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+customerColumns+`
		FROM customers
		WHERE name ILIKE $1 OR phone LIKE $1
		ORDER BY name, id
		LIMIT $2
	`, pattern, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, limit)
	for rows.Next() {
		customer, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		customers = append(customers, customer)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return customers, nil
}

func (s *Store) UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	updated, err := scanCustomer(s.db.QueryRowContext(ctx, `
		UPDATE customers
		SET name = $2, phone = $3, email = $4, address = $5, account_type = $6, updated_at = now()
		WHERE id = $1
		RETURNING `+customerColumns,
		customer.ID, customer.Name, customer.Phone, nullIfEmpty(customer.Email), nullIfEmpty(customer.Address), customer.AccountType))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: phone %s", store.ErrConflict, customer.Phone)
		}
		return nil, err
	}
	return &updated, nil
}

func (s *Store) AddLoyaltyPoints(ctx context.Context, customerID string, points int64) (*domain.Customer, error) {
	customer, err := scanCustomer(s.db.QueryRowContext(ctx, `
		UPDATE customers
		SET loyalty_points = loyalty_points + $2, updated_at = now()
		WHERE id = $1
		RETURNING `+customerColumns, customerID, points))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &customer, nil
}

const itemColumns = `id, receipt_number, branch_id, customer_id, service_code, description, quantity,
	unit_price, express_tier, total_amount, paid_amount, status, notes,
	estimated_collection_date, collected_at, created_by, created_at`

func scanItem(row rowScanner) (domain.OrderItem, error) {
	var item domain.OrderItem
	var customerID, notes sql.NullString
	var estimated, collected sql.NullTime
	err := row.Scan(&item.ID, &item.ReceiptNumber, &item.BranchID, &customerID, &item.ServiceCode,
		&item.Description, &item.Quantity, &item.UnitPrice, &item.ExpressTier, &item.TotalAmount,
		&item.PaidAmount, &item.Status, &notes, &estimated, &collected, &item.CreatedBy, &item.CreatedAt)
	if err != nil {
		return item, err
	}
	item.CustomerID = customerID.String
	item.Notes = notes.String
	item.CreatedAt = item.CreatedAt.UTC()
	if estimated.Valid {
		at := estimated.Time.UTC()
		item.EstimatedCollectionDate = &at
	}
	if collected.Valid {
		at := collected.Time.UTC()
		item.CollectedAt = &at
	}
	return item, nil
}

func collectItems(rows *sql.Rows) ([]domain.OrderItem, error) {
	items := make([]domain.OrderItem, 0, 16)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CreateOrder(ctx context.Context, receiptNumber string, items []domain.OrderItem, payments []domain.Payment) error {
	if strings.TrimSpace(receiptNumber) == "" || len(items) == 0 {
		return store.ErrInvalidInput
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = pgTx.Rollback() }()

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO receipt_numbers (receipt_number, branch_id, created_at)
		VALUES ($1,$2,$3)
	`, receiptNumber, items[0].BranchID, items[0].CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicateReceipt
		}
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: branch %s", store.ErrNotFound, items[0].BranchID)
		}
		return err
	}

	for _, item := range items {
		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO order_items (
				id, receipt_number, branch_id, customer_id, service_code, description, quantity,
				unit_price, express_tier, total_amount, paid_amount, status, notes,
				estimated_collection_date, collected_at, created_by, created_at
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		`, item.ID, receiptNumber, item.BranchID, nullIfEmpty(item.CustomerID), item.ServiceCode, item.Description,
			item.Quantity, item.UnitPrice, item.ExpressTier, item.TotalAmount, item.PaidAmount, item.Status,
			nullIfEmpty(item.Notes), nullTime(item.EstimatedCollectionDate), nullTime(item.CollectedAt),
			item.CreatedBy, item.CreatedAt)
		if err != nil {
			if isForeignKeyViolation(err) {
				return fmt.Errorf("%w: customer %s", store.ErrNotFound, item.CustomerID)
			}
			return err
		}
	}
	if err := insertPayments(ctx, pgTx, payments); err != nil {
		return err
	}

	return pgTx.Commit()
}

func (s *Store) GetReceiptItems(ctx context.Context, receiptNumber string) ([]domain.OrderItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+itemColumns+`
		FROM order_items
		WHERE receipt_number = $1
		ORDER BY created_at, id
	`, receiptNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items, err := collectItems(rows)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, store.ErrNotFound
	}
	return items, nil
}

func (s *Store) ListReceiptItems(ctx context.Context, filter domain.ReceiptFilter) ([]domain.OrderItem, error) {
	clauses := []string{"1=1"}
	args := make([]any, 0, 4)
	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if filter.BranchID != "" {
		add("r.branch_id = $%d", filter.BranchID)
	}
	if filter.CustomerID != "" {
		add("EXISTS (SELECT 1 FROM order_items c WHERE c.receipt_number = r.receipt_number AND c.customer_id = $%d)", filter.CustomerID)
	}
	if !filter.From.IsZero() {
		add("r.created_at >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("r.created_at < $%d", filter.To)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+prefixColumns("i", itemColumns)+`
		FROM order_items i
		JOIN receipt_numbers r ON r.receipt_number = i.receipt_number
		WHERE `+strings.Join(clauses, " AND ")+`
		ORDER BY r.created_at DESC, r.receipt_number DESC, i.created_at, i.id
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectItems(rows)
}

const maxReceiptTxAttempts = 3

// UpdateReceipt locks every item row of the receipt, hands the rows to
// mutate and writes the result back before committing. A transaction that
// loses a serialization race is rerun against the fresh rows; after
// maxReceiptTxAttempts it fails with ErrConflict.
func (s *Store) UpdateReceipt(ctx context.Context, receiptNumber string, mutate store.ReceiptMutator) ([]domain.OrderItem, error) {
	return retrySerializable(receiptNumber, func() ([]domain.OrderItem, error) {
		return s.updateReceiptOnce(ctx, receiptNumber, mutate)
	})
}

func retrySerializable(receiptNumber string, run func() ([]domain.OrderItem, error)) ([]domain.OrderItem, error) {
	for attempt := 1; ; attempt++ {
		items, err := run()
		if !isSerializationFailure(err) {
			return items, err
		}
		if attempt == maxReceiptTxAttempts {
			return nil, fmt.Errorf("%w: receipt %s was changed by another operator, reload the balance and retry", store.ErrConflict, receiptNumber)
		}
		log.Printf("[postgres] WARN: receipt %s serialization retry attempt=%d", receiptNumber, attempt)
	}
}

func (s *Store) updateReceiptOnce(ctx context.Context, receiptNumber string, mutate store.ReceiptMutator) ([]domain.OrderItem, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	rows, err := pgTx.QueryContext(ctx, `
		SELECT `+itemColumns+`
		FROM order_items
		WHERE receipt_number = $1
		ORDER BY created_at, id
		FOR UPDATE
	`, receiptNumber)
	if err != nil {
		return nil, err
	}
	current, err := collectItems(rows)
	_ = rows.Close()
	if err != nil {
		return nil, err
	}
	if len(current) == 0 {
		return nil, store.ErrNotFound
	}

	mutation, err := mutate(current)
	if err != nil {
		return nil, err
	}

	for _, item := range mutation.Items {
		res, err := pgTx.ExecContext(ctx, `
			UPDATE order_items
			SET paid_amount = $3, status = $4, collected_at = $5, notes = $6
			WHERE id = $1 AND receipt_number = $2
		`, item.ID, receiptNumber, item.PaidAmount, item.Status, nullTime(item.CollectedAt), nullIfEmpty(item.Notes))
		if err != nil {
			return nil, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			return nil, fmt.Errorf("%w: item %s is not on receipt %s", store.ErrInvalidInput, item.ID, receiptNumber)
		}
	}
	if err := insertPayments(ctx, pgTx, mutation.Payments); err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	merged := make([]domain.OrderItem, len(current))
	copy(merged, current)
	byID := make(map[string]domain.OrderItem, len(mutation.Items))
	for _, item := range mutation.Items {
		byID[item.ID] = item
	}
	for i := range merged {
		if item, ok := byID[merged[i].ID]; ok {
			merged[i] = item
		}
	}
	return merged, nil
}

func insertPayments(ctx context.Context, pgTx *sql.Tx, payments []domain.Payment) error {
	for _, payment := range payments {
		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO payments (
				id, action_id, receipt_number, order_item_id, branch_id, amount,
				method, mode, reference, received_by, created_at
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		`, payment.ID, payment.ActionID, payment.ReceiptNumber, payment.OrderItemID, payment.BranchID, payment.Amount,
			payment.Method, payment.Mode, nullIfEmpty(payment.Reference), payment.ReceivedBy, payment.CreatedAt)
		if err != nil {
			return err
		}
	}
	return nil
}

const paymentColumns = `id, action_id, receipt_number, order_item_id, branch_id, amount,
	method, mode, reference, received_by, created_at`

func (s *Store) queryPayments(ctx context.Context, query string, args ...any) ([]domain.Payment, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]domain.Payment, 0, 16)
	for rows.Next() {
		var payment domain.Payment
		var reference sql.NullString
		if err := rows.Scan(&payment.ID, &payment.ActionID, &payment.ReceiptNumber, &payment.OrderItemID,
			&payment.BranchID, &payment.Amount, &payment.Method, &payment.Mode, &reference,
			&payment.ReceivedBy, &payment.CreatedAt); err != nil {
			return nil, err
		}
		payment.Reference = reference.String
		payment.CreatedAt = payment.CreatedAt.UTC()
		payments = append(payments, payment)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return payments, nil
}

func (s *Store) ListPayments(ctx context.Context, receiptNumber string) ([]domain.Payment, error) {
	return s.queryPayments(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE receipt_number = $1
		ORDER BY created_at, id
	`, receiptNumber)
}

func (s *Store) ListPaymentsBetween(ctx context.Context, branchID string, from time.Time, to time.Time) ([]domain.Payment, error) {
	return s.queryPayments(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE ($1 = '' OR branch_id = $1)
			AND created_at >= $2
			AND created_at < $3
		ORDER BY created_at, id
	`, branchID, from, to)
}

func (s *Store) CountCollections(ctx context.Context, branchID string, from time.Time, to time.Time) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT receipt_number)
		FROM order_items
		WHERE ($1 = '' OR branch_id = $1)
			AND collected_at >= $2
			AND collected_at < $3
	`, branchID, from, to).Scan(&count)
	return count, err
}

func (s *Store) OutstandingBalance(ctx context.Context, branchID string) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(GREATEST(total_amount - paid_amount, 0)), 0)
		FROM order_items
		WHERE ($1 = '' OR branch_id = $1)
			AND status <> $2
	`, branchID, domain.ItemStatusCollected).Scan(&total)
	if err != nil {
		return decimal.Zero, err
	}
	return domain.RoundMoney(total), nil
}

const expenseColumns = `id, branch_id, category, amount, method, description, recorded_by, status, void_reason, created_at, voided_at`

func scanExpense(row rowScanner) (domain.Expense, error) {
	var expense domain.Expense
	var description, reason sql.NullString
	var voidedAt sql.NullTime
	err := row.Scan(&expense.ID, &expense.BranchID, &expense.Category, &expense.Amount, &expense.Method,
		&description, &expense.RecordedBy, &expense.Status, &reason, &expense.CreatedAt, &voidedAt)
	expense.Description = description.String
	expense.VoidReason = reason.String
	expense.CreatedAt = expense.CreatedAt.UTC()
	if voidedAt.Valid {
		at := voidedAt.Time.UTC()
		expense.VoidedAt = &at
	}
	return expense, err
}

func (s *Store) CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error) {
	if strings.TrimSpace(expense.BranchID) == "" || !expense.Amount.IsPositive() {
		return nil, store.ErrInvalidInput
	}
	if expense.ID == "" {
		expense.ID = xid.New("exp")
	}
	if expense.CreatedAt.IsZero() {
		expense.CreatedAt = time.Now().UTC()
	}
	expense.Status = domain.ExpenseStatusRecorded

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO expenses (id, branch_id, category, amount, method, description, recorded_by, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, expense.ID, expense.BranchID, expense.Category, expense.Amount, expense.Method,
		nullIfEmpty(expense.Description), expense.RecordedBy, expense.Status, expense.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("%w: branch %s", store.ErrNotFound, expense.BranchID)
		}
		return nil, err
	}
	created := expense
	return &created, nil
}

func (s *Store) GetExpense(ctx context.Context, id string) (*domain.Expense, error) {
	expense, err := scanExpense(s.db.QueryRowContext(ctx, `
		SELECT `+expenseColumns+`
		FROM expenses
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &expense, nil
}

func (s *Store) ListExpenses(ctx context.Context, branchID string, from time.Time, to time.Time) ([]domain.Expense, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+expenseColumns+`
		FROM expenses
		WHERE ($1 = '' OR branch_id = $1)
			AND created_at >= $2
			AND created_at < $3
		ORDER BY created_at, id
	`, branchID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	expenses := make([]domain.Expense, 0, 16)
	for rows.Next() {
		expense, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, expense)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return expenses, nil
}

func (s *Store) VoidExpense(ctx context.Context, id string, reason string, at time.Time) (*domain.Expense, error) {
	expense, err := scanExpense(s.db.QueryRowContext(ctx, `
		UPDATE expenses
		SET status = $2, void_reason = $3, voided_at = $4
		WHERE id = $1 AND status = $5
		RETURNING `+expenseColumns,
		id, domain.ExpenseStatusVoided, reason, at.UTC(), domain.ExpenseStatusRecorded))
	if err == nil {
		return &expense, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if _, getErr := s.GetExpense(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, fmt.Errorf("%w: expense %s already voided", store.ErrInvalidInput, id)
}

const sessionColumns = `id, branch_id, opened_by, opening_float, counted_cash, expected_cash, variance, status, notes, opened_at, closed_at`

func scanSession(row rowScanner) (domain.CashSession, error) {
	var session domain.CashSession
	var counted, expected, variance decimal.NullDecimal
	var notes sql.NullString
	var closedAt sql.NullTime
	err := row.Scan(&session.ID, &session.BranchID, &session.OpenedBy, &session.OpeningFloat,
		&counted, &expected, &variance, &session.Status, &notes, &session.OpenedAt, &closedAt)
	if err != nil {
		return session, err
	}
	session.Notes = notes.String
	session.OpenedAt = session.OpenedAt.UTC()
	if counted.Valid {
		session.CountedCash = &counted.Decimal
	}
	if expected.Valid {
		session.ExpectedCash = &expected.Decimal
	}
	if variance.Valid {
		session.Variance = &variance.Decimal
	}
	if closedAt.Valid {
		at := closedAt.Time.UTC()
		session.ClosedAt = &at
	}
	return session, nil
}

func (s *Store) OpenCashSession(ctx context.Context, session domain.CashSession) (*domain.CashSession, error) {
	if strings.TrimSpace(session.BranchID) == "" || session.OpeningFloat.IsNegative() {
		return nil, store.ErrInvalidInput
	}
	if session.ID == "" {
		session.ID = xid.New("cash")
	}
	if session.OpenedAt.IsZero() {
		session.OpenedAt = time.Now().UTC()
	}
	session.Status = domain.CashSessionOpen
	session.ClosedAt = nil
	session.CountedCash = nil
	session.ExpectedCash = nil
	session.Variance = nil

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cash_sessions (id, branch_id, opened_by, opening_float, status, notes, opened_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, session.ID, session.BranchID, session.OpenedBy, session.OpeningFloat, session.Status,
		nullIfEmpty(session.Notes), session.OpenedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrAlreadyOpen
		}
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("%w: branch %s", store.ErrNotFound, session.BranchID)
		}
		return nil, err
	}
	saved := session
	return &saved, nil
}

func (s *Store) GetActiveCashSession(ctx context.Context, branchID string) (*domain.CashSession, error) {
	session, err := scanSession(s.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM cash_sessions
		WHERE branch_id = $1 AND status = $2
		ORDER BY opened_at DESC
		LIMIT 1
	`, branchID, domain.CashSessionOpen))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &session, nil
}

func (s *Store) CloseCashSession(ctx context.Context, closed domain.CashSession) (*domain.CashSession, error) {
	closedAt := time.Now().UTC()
	if closed.ClosedAt != nil {
		closedAt = closed.ClosedAt.UTC()
	}

	session, err := scanSession(s.db.QueryRowContext(ctx, `
		UPDATE cash_sessions
		SET status = $2, counted_cash = $3, expected_cash = $4, variance = $5,
			notes = COALESCE($6, notes), closed_at = $7
		WHERE id = $1 AND status = $8
		RETURNING `+sessionColumns,
		closed.ID, domain.CashSessionClosed, nullDecimal(closed.CountedCash), nullDecimal(closed.ExpectedCash),
		nullDecimal(closed.Variance), nullIfEmpty(closed.Notes), closedAt, domain.CashSessionOpen))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &session, nil
}

func (s *Store) ListCashSessions(ctx context.Context, branchID string, from time.Time, to time.Time) ([]domain.CashSession, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sessionColumns+`
		FROM cash_sessions
		WHERE ($1 = '' OR branch_id = $1)
			AND opened_at >= $2
			AND opened_at < $3
		ORDER BY opened_at, id
	`, branchID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := make([]domain.CashSession, 0, 4)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (
			id, branch_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.ID, entry.BranchID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, branchID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, branch_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE ($1 = '' OR branch_id = $1)
			AND created_at >= $2
			AND created_at < $3
		ORDER BY created_at DESC
		LIMIT $4
	`, branchID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.BranchID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if user.Role == "" {
		user.Role = "cashier"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: user %s", store.ErrConflict, user.Username)
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func prefixColumns(alias string, columns string) string {
	parts := strings.Split(columns, ",")
	for i, part := range parts {
		parts[i] = alias + "." + strings.TrimSpace(part)
	}
	return strings.Join(parts, ", ")
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// isSerializationFailure matches serialization_failure and deadlock_detected,
// both of which are safe to retry.
func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}

func nullDecimal(val *decimal.Decimal) any {
	if val == nil {
		return nil
	}
	return *val
}
