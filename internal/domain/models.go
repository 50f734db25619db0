package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Branch struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	Address   string    `json:"address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type BranchCreateRequest struct {
	Code    string `json:"code"`
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

// LaundryService is one priced entry of the catalog (e.g. "shirt wash & iron").
type LaundryService struct {
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	Category  string          `json:"category"`
	Unit      string          `json:"unit"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Active    bool            `json:"active"`
}

type ServiceCreateRequest struct {
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	Category  string          `json:"category"`
	Unit      string          `json:"unit"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type ServiceUpdateRequest struct {
	Name      *string          `json:"name,omitempty"`
	Category  *string          `json:"category,omitempty"`
	Unit      *string          `json:"unit,omitempty"`
	UnitPrice *decimal.Decimal `json:"unit_price,omitempty"`
	Active    *bool            `json:"active,omitempty"`
}

type Customer struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Phone         string    `json:"phone"`
	Email         string    `json:"email,omitempty"`
	Address       string    `json:"address,omitempty"`
	AccountType   string    `json:"account_type"`
	LoyaltyPoints int64     `json:"loyalty_points"`
	LoyaltyTier   string    `json:"loyalty_tier"`
	CreatedAt     time.Time `json:"created_at"`
}

type CustomerCreateRequest struct {
	Name        string `json:"name"`
	Phone       string `json:"phone"`
	Email       string `json:"email"`
	Address     string `json:"address"`
	AccountType string `json:"account_type"`
}

type CustomerUpdateRequest struct {
	Name        *string `json:"name,omitempty"`
	Phone       *string `json:"phone,omitempty"`
	Email       *string `json:"email,omitempty"`
	Address     *string `json:"address,omitempty"`
	AccountType *string `json:"account_type,omitempty"`
}

// OrderItem is one purchased unit inside a receipt. Items sharing a
// ReceiptNumber form a receipt group, which is never stored on its own.
type OrderItem struct {
	ID                      string          `json:"id"`
	ReceiptNumber           string          `json:"receipt_number"`
	BranchID                string          `json:"branch_id"`
	CustomerID              string          `json:"customer_id"`
	ServiceCode             string          `json:"service_code"`
	Description             string          `json:"description"`
	Quantity                decimal.Decimal `json:"quantity"`
	UnitPrice               decimal.Decimal `json:"unit_price"`
	ExpressTier             string          `json:"express_tier"`
	TotalAmount             decimal.Decimal `json:"total_amount"`
	PaidAmount              decimal.Decimal `json:"paid_amount"`
	Status                  string          `json:"status"`
	Notes                   string          `json:"notes,omitempty"`
	EstimatedCollectionDate *time.Time      `json:"estimated_collection_date,omitempty"`
	CollectedAt             *time.Time      `json:"collected_at,omitempty"`
	CreatedBy               string          `json:"created_by"`
	CreatedAt               time.Time       `json:"created_at"`
}

type OrderItemRequest struct {
	ServiceCode string          `json:"service_code"`
	Quantity    decimal.Decimal `json:"quantity"`
	Express     string          `json:"express,omitempty"`
	Notes       string          `json:"notes,omitempty"`
}

type OrderCreateRequest struct {
	BranchID   string             `json:"branch_id"`
	CustomerID string             `json:"customer_id"`
	Items      []OrderItemRequest `json:"items"`
	Deposit    *PaymentRequest    `json:"deposit,omitempty"`
}

type PaymentRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method"`
	Reference string          `json:"reference,omitempty"`
}

// ErrAmountNotNumeric is returned while decoding a PaymentRequest whose
// amount is not a number.
var ErrAmountNotNumeric = errors.New("payment amount must be a number")

// UnmarshalJSON keeps the decoder's strictness and tags a malformed amount
// with ErrAmountNotNumeric. A missing or null amount decodes as zero.
func (p *PaymentRequest) UnmarshalJSON(data []byte) error {
	type plain PaymentRequest
	var raw struct {
		plain
		Amount json.RawMessage `json:"amount"`
	}
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&raw); err != nil {
		return err
	}

	*p = PaymentRequest(raw.plain)
	p.Amount = decimal.Zero
	if len(raw.Amount) == 0 || string(raw.Amount) == "null" {
		return nil
	}
	if err := p.Amount.UnmarshalJSON(raw.Amount); err != nil {
		return fmt.Errorf("%w: got %s", ErrAmountNotNumeric, raw.Amount)
	}
	return nil
}

type ReceiptSummary struct {
	ReceiptTotal decimal.Decimal `json:"receipt_total"`
	ReceiptPaid  decimal.Decimal `json:"receipt_paid"`
	BalanceDue   decimal.Decimal `json:"balance_due"`
}

type Receipt struct {
	ReceiptNumber           string         `json:"receipt_number"`
	BranchID                string         `json:"branch_id"`
	CustomerID              string         `json:"customer_id"`
	Status                  string         `json:"status"`
	Overdue                 bool           `json:"overdue"`
	Summary                 ReceiptSummary `json:"summary"`
	ItemCount               int            `json:"item_count"`
	EstimatedCollectionDate *time.Time     `json:"estimated_collection_date,omitempty"`
	CreatedAt               time.Time      `json:"created_at"`
	Items                   []OrderItem    `json:"items,omitempty"`
	Payments                []Payment      `json:"payments,omitempty"`
}

type ReceiptFilter struct {
	BranchID        string
	CustomerID      string
	Status          string
	OutstandingOnly bool
	From            time.Time
	To              time.Time
	Limit           int
}

// Payment is one allocation row; all rows written by the same operator
// action share an ActionID.
type Payment struct {
	ID            string          `json:"id"`
	ActionID      string          `json:"action_id"`
	ReceiptNumber string          `json:"receipt_number"`
	OrderItemID   string          `json:"order_item_id"`
	BranchID      string          `json:"branch_id"`
	Amount        decimal.Decimal `json:"amount"`
	Method        string          `json:"method"`
	Mode          string          `json:"mode"`
	Reference     string          `json:"reference,omitempty"`
	ReceivedBy    string          `json:"received_by"`
	CreatedAt     time.Time       `json:"created_at"`
}

type PaymentResult struct {
	ReceiptNumber string         `json:"receipt_number"`
	Applied       bool           `json:"applied"`
	Message       string         `json:"message,omitempty"`
	Summary       ReceiptSummary `json:"summary"`
	UpdatedItems  []OrderItem    `json:"updated_items"`
	Payments      []Payment      `json:"payments,omitempty"`
}

type CollectRequest struct {
	Payment *PaymentRequest `json:"payment,omitempty"`
}

type CollectResult struct {
	ReceiptNumber       string         `json:"receipt_number"`
	Collected           bool           `json:"collected"`
	Summary             ReceiptSummary `json:"summary"`
	UpdatedItems        []OrderItem    `json:"updated_items"`
	Payments            []Payment      `json:"payments,omitempty"`
	LoyaltyPointsEarned int64          `json:"loyalty_points_earned"`
}

type StatusUpdateRequest struct {
	Status  string   `json:"status"`
	ItemIDs []string `json:"item_ids,omitempty"`
}

type CashSession struct {
	ID           string           `json:"id"`
	BranchID     string           `json:"branch_id"`
	OpenedBy     string           `json:"opened_by"`
	OpeningFloat decimal.Decimal  `json:"opening_float"`
	CountedCash  *decimal.Decimal `json:"counted_cash,omitempty"`
	ExpectedCash *decimal.Decimal `json:"expected_cash,omitempty"`
	Variance     *decimal.Decimal `json:"variance,omitempty"`
	Status       string           `json:"status"`
	Notes        string           `json:"notes,omitempty"`
	OpenedAt     time.Time        `json:"opened_at"`
	ClosedAt     *time.Time       `json:"closed_at,omitempty"`
}

type CashSessionOpenRequest struct {
	BranchID     string          `json:"branch_id"`
	OpeningFloat decimal.Decimal `json:"opening_float"`
	Notes        string          `json:"notes"`
}

type CashSessionCloseRequest struct {
	BranchID    string          `json:"branch_id"`
	CountedCash decimal.Decimal `json:"counted_cash"`
	Notes       string          `json:"notes"`
}

type CashSessionResponse struct {
	Session CashSession  `json:"session"`
	Summary *CashSummary `json:"summary,omitempty"`
}

type MethodTotal struct {
	Method string          `json:"method"`
	Count  int64           `json:"count"`
	Total  decimal.Decimal `json:"total"`
}

type CashSummary struct {
	BranchID     string           `json:"branch_id"`
	Date         string           `json:"date"`
	SessionID    string           `json:"session_id,omitempty"`
	OpeningFloat decimal.Decimal  `json:"opening_float"`
	CashIn       decimal.Decimal  `json:"cash_in"`
	NonCashIn    []MethodTotal    `json:"non_cash_in"`
	CashExpenses decimal.Decimal  `json:"cash_expenses"`
	ExpectedCash decimal.Decimal  `json:"expected_cash"`
	CountedCash  *decimal.Decimal `json:"counted_cash,omitempty"`
	Variance     *decimal.Decimal `json:"variance,omitempty"`
}

type Expense struct {
	ID          string          `json:"id"`
	BranchID    string          `json:"branch_id"`
	Category    string          `json:"category"`
	Amount      decimal.Decimal `json:"amount"`
	Method      string          `json:"method"`
	Description string          `json:"description,omitempty"`
	RecordedBy  string          `json:"recorded_by"`
	Status      string          `json:"status"`
	VoidReason  string          `json:"void_reason,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	VoidedAt    *time.Time      `json:"voided_at,omitempty"`
}

type ExpenseCreateRequest struct {
	BranchID    string          `json:"branch_id"`
	Category    string          `json:"category"`
	Amount      decimal.Decimal `json:"amount"`
	Method      string          `json:"method"`
	Description string          `json:"description"`
}

type ExpenseVoidRequest struct {
	Reason     string `json:"reason"`
	ManagerPIN string `json:"manager_pin"`
}

type StatementLine struct {
	ReceiptNumber string          `json:"receipt_number"`
	BranchID      string          `json:"branch_id"`
	CreatedAt     time.Time       `json:"created_at"`
	Status        string          `json:"status"`
	ItemCount     int             `json:"item_count"`
	Total         decimal.Decimal `json:"total"`
	Paid          decimal.Decimal `json:"paid"`
	Balance       decimal.Decimal `json:"balance"`
}

type MonthlyStatement struct {
	CustomerID   string          `json:"customer_id"`
	CustomerName string          `json:"customer_name"`
	Month        string          `json:"month"`
	Lines        []StatementLine `json:"lines"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	TotalPaid    decimal.Decimal `json:"total_paid"`
	TotalBalance decimal.Decimal `json:"total_balance"`
	GeneratedAt  time.Time       `json:"generated_at"`
}

type DailyReport struct {
	BranchID      string          `json:"branch_id"`
	Date          string          `json:"date"`
	Orders        int64           `json:"orders"`
	OrderValue    decimal.Decimal `json:"order_value"`
	Collections   int64           `json:"collections"`
	PaymentsTotal decimal.Decimal `json:"payments_total"`
	ByMethod      []MethodTotal   `json:"by_method"`
	Expenses      decimal.Decimal `json:"expenses"`
	NetCash       decimal.Decimal `json:"net_cash"`
	Outstanding   decimal.Decimal `json:"outstanding"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type CashierCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CashierUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	BranchID      string    `json:"branch_id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

const (
	ItemStatusPending    = "pending"
	ItemStatusProcessing = "processing"
	ItemStatusReady      = "ready"
	ItemStatusCollected  = "collected"
)

const (
	PaymentMethodCash         = "cash"
	PaymentMethodCard         = "card"
	PaymentMethodMobileMoney  = "mobile_money"
	PaymentMethodBankTransfer = "bank_transfer"
)

const (
	PaymentModeDeposit    = "deposit"
	PaymentModeCollection = "collection"
	PaymentModeStandalone = "standalone"
)

const (
	AccountTypeWalkIn    = "walk_in"
	AccountTypeCorporate = "corporate"
)

const (
	CashSessionOpen   = "open"
	CashSessionClosed = "closed"
)

const (
	ExpenseStatusRecorded = "recorded"
	ExpenseStatusVoided   = "voided"
)

// IsPaymentMethod reports whether method is one of the accepted tender types.
func IsPaymentMethod(method string) bool {
	switch method {
	case PaymentMethodCash, PaymentMethodCard, PaymentMethodMobileMoney, PaymentMethodBankTransfer:
		return true
	}
	return false
}
