package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"laundrypos/backend/internal/domain"
	"laundrypos/backend/internal/store"
	"laundrypos/backend/internal/xid"
)

const DefaultBranchID = "main-branch"

type Store struct {
	mu              sync.RWMutex
	branchesByID    map[string]domain.Branch
	servicesByCode  map[string]domain.LaundryService
	customersByID   map[string]domain.Customer
	receiptNumbers  map[string]time.Time
	receiptItemIDs  map[string][]string
	itemsByID       map[string]domain.OrderItem
	payments        []domain.Payment
	expensesByID    map[string]domain.Expense
	sessionsByID    map[string]domain.CashSession
	activeByBranch  map[string]string
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD.
// If unset, dev defaults are used with a warning. The in-memory store is
// only used when DATABASE_URL is not set.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"cashier", cashierPwd, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func tsh(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

// NewSeeded returns a store with one branch, a starter price list and the
// seed users.
func NewSeeded() *Store {
	now := time.Now().UTC()
	services := []domain.LaundryService{
		{Code: "SHIRT-WI", Name: "Shirt wash & iron", Category: "laundry", Unit: "piece", UnitPrice: tsh(1500), Active: true},
		{Code: "TROUSER-WI", Name: "Trousers wash & iron", Category: "laundry", Unit: "piece", UnitPrice: tsh(2000), Active: true},
		{Code: "WASH-FOLD", Name: "Wash & fold", Category: "laundry", Unit: "kg", UnitPrice: tsh(3000), Active: true},
		{Code: "SUIT-DC", Name: "Suit dry clean", Category: "dry_clean", Unit: "piece", UnitPrice: tsh(8000), Active: true},
		{Code: "DRESS-DC", Name: "Dress dry clean", Category: "dry_clean", Unit: "piece", UnitPrice: tsh(6000), Active: true},
		{Code: "DUVET", Name: "Duvet wash", Category: "household", Unit: "piece", UnitPrice: tsh(12000), Active: true},
		{Code: "CURTAIN", Name: "Curtain wash", Category: "household", Unit: "kg", UnitPrice: tsh(4000), Active: true},
	}
	serviceMap := make(map[string]domain.LaundryService, len(services))
	for _, svc := range services {
		serviceMap[svc.Code] = svc
	}

	return &Store{
		branchesByID: map[string]domain.Branch{
			DefaultBranchID: {ID: DefaultBranchID, Code: "MAIN", Name: "Main Branch", CreatedAt: now},
		},
		servicesByCode:  serviceMap,
		customersByID:   make(map[string]domain.Customer),
		receiptNumbers:  make(map[string]time.Time),
		receiptItemIDs:  make(map[string][]string),
		itemsByID:       make(map[string]domain.OrderItem),
		payments:        make([]domain.Payment, 0, 128),
		expensesByID:    make(map[string]domain.Expense),
		sessionsByID:    make(map[string]domain.CashSession),
		activeByBranch:  make(map[string]string),
		auditLogs:       make([]domain.AuditLog, 0, 128),
		usersByUsername: seedUsers(),
	}
}

func (s *Store) CreateBranch(_ context.Context, branch domain.Branch) (*domain.Branch, error) {
	if strings.TrimSpace(branch.ID) == "" || strings.TrimSpace(branch.Name) == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.branchesByID[branch.ID]; exists {
		return nil, fmt.Errorf("%w: branch %s", store.ErrConflict, branch.ID)
	}
	for _, existing := range s.branchesByID {
		if branch.Code != "" && strings.EqualFold(existing.Code, branch.Code) {
			return nil, fmt.Errorf("%w: branch code %s", store.ErrConflict, branch.Code)
		}
	}
	if branch.CreatedAt.IsZero() {
		branch.CreatedAt = time.Now().UTC()
	}
	s.branchesByID[branch.ID] = branch
	created := branch
	return &created, nil
}

func (s *Store) GetBranch(_ context.Context, id string) (*domain.Branch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	branch, exists := s.branchesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return &branch, nil
}

func (s *Store) ListBranches(_ context.Context) ([]domain.Branch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	branches := make([]domain.Branch, 0, len(s.branchesByID))
	for _, branch := range s.branchesByID {
		branches = append(branches, branch)
	}
	slices.SortFunc(branches, func(a, b domain.Branch) int {
		return cmpString(a.Code, b.Code)
	})
	return branches, nil
}

func (s *Store) ListServices(_ context.Context, includeInactive bool) ([]domain.LaundryService, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	services := make([]domain.LaundryService, 0, len(s.servicesByCode))
	for _, svc := range s.servicesByCode {
		if !svc.Active && !includeInactive {
			continue
		}
		services = append(services, svc)
	}
	slices.SortFunc(services, func(a, b domain.LaundryService) int {
		if a.Category == b.Category {
			return cmpString(a.Name, b.Name)
		}
		return cmpString(a.Category, b.Category)
	})
	return services, nil
}

func (s *Store) GetService(_ context.Context, code string) (*domain.LaundryService, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	svc, exists := s.servicesByCode[code]
	if !exists {
		return nil, store.ErrNotFound
	}
	return &svc, nil
}

func (s *Store) CreateService(_ context.Context, service domain.LaundryService) (*domain.LaundryService, error) {
	if service.Code == "" || service.Name == "" || !service.UnitPrice.IsPositive() {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.servicesByCode[service.Code]; exists {
		return nil, fmt.Errorf("%w: service %s", store.ErrConflict, service.Code)
	}
	service.Active = true
	s.servicesByCode[service.Code] = service
	created := service
	return &created, nil
}

func (s *Store) UpdateService(_ context.Context, service domain.LaundryService) (*domain.LaundryService, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.servicesByCode[service.Code]; !exists {
		return nil, store.ErrNotFound
	}
	s.servicesByCode[service.Code] = service
	updated := service
	return &updated, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	if strings.TrimSpace(customer.Name) == "" || strings.TrimSpace(customer.Phone) == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.customersByID {
		if existing.Phone == customer.Phone {
			return nil, fmt.Errorf("%w: phone %s", store.ErrConflict, customer.Phone)
		}
	}
	if customer.ID == "" {
		customer.ID = xid.New("cust")
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}
	s.customersByID[customer.ID] = customer
	created := customer
	return &created, nil
}

func (s *Store) GetCustomer(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, exists := s.customersByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return &customer, nil
}

func (s *Store) SearchCustomers(_ context.Context, query string, limit int) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query = strings.ToLower(strings.TrimSpace(query))
	result := make([]domain.Customer, 0, 16)
	for _, customer := range s.customersByID {
		if query != "" &&
			!strings.Contains(strings.ToLower(customer.Name), query) &&
			!strings.Contains(customer.Phone, query) {
			continue
		}
		result = append(result, customer)
	}
	slices.SortFunc(result, func(a, b domain.Customer) int {
		if a.Name == b.Name {
			return cmpString(a.ID, b.ID)
		}
		return cmpString(a.Name, b.Name)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) UpdateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.customersByID[customer.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	for _, other := range s.customersByID {
		if other.ID != customer.ID && other.Phone == customer.Phone {
			return nil, fmt.Errorf("%w: phone %s", store.ErrConflict, customer.Phone)
		}
	}
	customer.LoyaltyPoints = existing.LoyaltyPoints
	customer.CreatedAt = existing.CreatedAt
	s.customersByID[customer.ID] = customer
	updated := customer
	return &updated, nil
}

func (s *Store) AddLoyaltyPoints(_ context.Context, customerID string, points int64) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	customer, exists := s.customersByID[customerID]
	if !exists {
		return nil, store.ErrNotFound
	}
	customer.LoyaltyPoints += points
	s.customersByID[customerID] = customer
	return &customer, nil
}

func (s *Store) CreateOrder(_ context.Context, receiptNumber string, items []domain.OrderItem, payments []domain.Payment) error {
	if strings.TrimSpace(receiptNumber) == "" || len(items) == 0 {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.receiptNumbers[receiptNumber]; taken {
		return store.ErrDuplicateReceipt
	}
	if _, exists := s.branchesByID[items[0].BranchID]; !exists {
		return fmt.Errorf("%w: branch %s", store.ErrNotFound, items[0].BranchID)
	}

	s.receiptNumbers[receiptNumber] = time.Now().UTC()
	ids := make([]string, 0, len(items))
	for _, item := range items {
		item.ReceiptNumber = receiptNumber
		s.itemsByID[item.ID] = item
		ids = append(ids, item.ID)
	}
	s.receiptItemIDs[receiptNumber] = ids
	s.payments = append(s.payments, payments...)
	return nil
}

func (s *Store) GetReceiptItems(_ context.Context, receiptNumber string) ([]domain.OrderItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := s.receiptItemsLocked(receiptNumber)
	if len(items) == 0 {
		return nil, store.ErrNotFound
	}
	return items, nil
}

func (s *Store) ListReceiptItems(_ context.Context, filter domain.ReceiptFilter) ([]domain.OrderItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	numbers := make([]string, 0, len(s.receiptItemIDs))
	for number, ids := range s.receiptItemIDs {
		if len(ids) == 0 {
			continue
		}
		first := s.itemsByID[ids[0]]
		if filter.BranchID != "" && first.BranchID != filter.BranchID {
			continue
		}
		if filter.CustomerID != "" && first.CustomerID != filter.CustomerID {
			continue
		}
		if !filter.From.IsZero() && first.CreatedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !first.CreatedAt.Before(filter.To) {
			continue
		}
		numbers = append(numbers, number)
	}
	slices.SortFunc(numbers, func(a, b string) int {
		ta := s.receiptNumbers[a]
		tb := s.receiptNumbers[b]
		if ta.Equal(tb) {
			return cmpString(b, a)
		}
		if ta.After(tb) {
			return -1
		}
		return 1
	})

	result := make([]domain.OrderItem, 0, len(numbers)*2)
	for _, number := range numbers {
		result = append(result, s.receiptItemsLocked(number)...)
	}
	return result, nil
}

// UpdateReceipt runs mutate under the write lock, which serializes every
// change to receipt state in the process.
func (s *Store) UpdateReceipt(_ context.Context, receiptNumber string, mutate store.ReceiptMutator) ([]domain.OrderItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.receiptItemsLocked(receiptNumber)
	if len(current) == 0 {
		return nil, store.ErrNotFound
	}

	mutation, err := mutate(current)
	if err != nil {
		return nil, err
	}
	for _, item := range mutation.Items {
		if existing, ok := s.itemsByID[item.ID]; !ok || existing.ReceiptNumber != receiptNumber {
			return nil, fmt.Errorf("%w: item %s is not on receipt %s", store.ErrInvalidInput, item.ID, receiptNumber)
		}
	}
	for _, item := range mutation.Items {
		s.itemsByID[item.ID] = item
	}
	s.payments = append(s.payments, mutation.Payments...)
	return s.receiptItemsLocked(receiptNumber), nil
}

func (s *Store) receiptItemsLocked(receiptNumber string) []domain.OrderItem {
	ids := s.receiptItemIDs[receiptNumber]
	items := make([]domain.OrderItem, 0, len(ids))
	for _, id := range ids {
		items = append(items, s.itemsByID[id])
	}
	return items
}

func (s *Store) ListPayments(_ context.Context, receiptNumber string) ([]domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Payment, 0, 8)
	for _, payment := range s.payments {
		if payment.ReceiptNumber == receiptNumber {
			result = append(result, payment)
		}
	}
	return result, nil
}

func (s *Store) ListPaymentsBetween(_ context.Context, branchID string, from time.Time, to time.Time) ([]domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Payment, 0, 32)
	for _, payment := range s.payments {
		if branchID != "" && payment.BranchID != branchID {
			continue
		}
		if payment.CreatedAt.Before(from) || !payment.CreatedAt.Before(to) {
			continue
		}
		result = append(result, payment)
	}
	return result, nil
}

func (s *Store) CountCollections(_ context.Context, branchID string, from time.Time, to time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	receipts := make(map[string]struct{})
	for _, item := range s.itemsByID {
		if item.CollectedAt == nil || (branchID != "" && item.BranchID != branchID) {
			continue
		}
		if item.CollectedAt.Before(from) || !item.CollectedAt.Before(to) {
			continue
		}
		receipts[item.ReceiptNumber] = struct{}{}
	}
	return int64(len(receipts)), nil
}

func (s *Store) OutstandingBalance(_ context.Context, branchID string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := decimal.Zero
	for _, item := range s.itemsByID {
		if branchID != "" && item.BranchID != branchID {
			continue
		}
		if item.Status == domain.ItemStatusCollected {
			continue
		}
		if due := item.TotalAmount.Sub(item.PaidAmount); due.IsPositive() {
			total = total.Add(due)
		}
	}
	return domain.RoundMoney(total), nil
}

func (s *Store) CreateExpense(_ context.Context, expense domain.Expense) (*domain.Expense, error) {
	if strings.TrimSpace(expense.BranchID) == "" || !expense.Amount.IsPositive() {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if expense.ID == "" {
		expense.ID = xid.New("exp")
	}
	if expense.CreatedAt.IsZero() {
		expense.CreatedAt = time.Now().UTC()
	}
	expense.Status = domain.ExpenseStatusRecorded
	s.expensesByID[expense.ID] = expense
	created := expense
	return &created, nil
}

func (s *Store) GetExpense(_ context.Context, id string) (*domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	expense, exists := s.expensesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return &expense, nil
}

func (s *Store) ListExpenses(_ context.Context, branchID string, from time.Time, to time.Time) ([]domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Expense, 0, 16)
	for _, expense := range s.expensesByID {
		if branchID != "" && expense.BranchID != branchID {
			continue
		}
		if expense.CreatedAt.Before(from) || !expense.CreatedAt.Before(to) {
			continue
		}
		result = append(result, expense)
	}
	slices.SortFunc(result, func(a, b domain.Expense) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(a.ID, b.ID)
		}
		if a.CreatedAt.Before(b.CreatedAt) {
			return -1
		}
		return 1
	})
	return result, nil
}

func (s *Store) VoidExpense(_ context.Context, id string, reason string, at time.Time) (*domain.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expense, exists := s.expensesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	if expense.Status == domain.ExpenseStatusVoided {
		return nil, fmt.Errorf("%w: expense %s already voided", store.ErrInvalidInput, id)
	}
	expense.Status = domain.ExpenseStatusVoided
	expense.VoidReason = reason
	voidedAt := at.UTC()
	expense.VoidedAt = &voidedAt
	s.expensesByID[id] = expense
	return &expense, nil
}

func (s *Store) OpenCashSession(_ context.Context, session domain.CashSession) (*domain.CashSession, error) {
	if strings.TrimSpace(session.BranchID) == "" || session.OpeningFloat.IsNegative() {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.activeByBranch[session.BranchID]; exists {
		return nil, store.ErrAlreadyOpen
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

	s.sessionsByID[session.ID] = session
	s.activeByBranch[session.BranchID] = session.ID
	opened := session
	return &opened, nil
}

func (s *Store) GetActiveCashSession(_ context.Context, branchID string) (*domain.CashSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessionID, exists := s.activeByBranch[branchID]
	if !exists {
		return nil, store.ErrNotFound
	}
	session, exists := s.sessionsByID[sessionID]
	if !exists {
		return nil, store.ErrNotFound
	}
	return &session, nil
}

func (s *Store) CloseCashSession(_ context.Context, closed domain.CashSession) (*domain.CashSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessionsByID[closed.ID]
	if !exists || session.Status != domain.CashSessionOpen {
		return nil, store.ErrNotFound
	}
	closedAt := time.Now().UTC()
	if closed.ClosedAt != nil {
		closedAt = closed.ClosedAt.UTC()
	}
	session.Status = domain.CashSessionClosed
	session.CountedCash = closed.CountedCash
	session.ExpectedCash = closed.ExpectedCash
	session.Variance = closed.Variance
	session.ClosedAt = &closedAt
	if closed.Notes != "" {
		session.Notes = closed.Notes
	}

	delete(s.activeByBranch, session.BranchID)
	s.sessionsByID[session.ID] = session
	return &session, nil
}

func (s *Store) ListCashSessions(_ context.Context, branchID string, from time.Time, to time.Time) ([]domain.CashSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.CashSession, 0, 4)
	for _, session := range s.sessionsByID {
		if branchID != "" && session.BranchID != branchID {
			continue
		}
		if session.OpenedAt.Before(from) || !session.OpenedAt.Before(to) {
			continue
		}
		result = append(result, session)
	}
	slices.SortFunc(result, func(a, b domain.CashSession) int {
		if a.OpenedAt.Equal(b.OpenedAt) {
			return cmpString(a.ID, b.ID)
		}
		if a.OpenedAt.Before(b.OpenedAt) {
			return -1
		}
		return 1
	})
	return result, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, branchID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if branchID != "" && entry.BranchID != branchID {
			continue
		}
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}

	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.usersByUsername[username]; exists {
		return fmt.Errorf("%w: user %s", store.ErrConflict, username)
	}
	user.Username = username
	if user.Role == "" {
		user.Role = "cashier"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}
