package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"laundrypos/backend/internal/domain"
	"laundrypos/backend/internal/store"
	"laundrypos/backend/internal/xid"
)

func (s *Service) OpenCashSession(ctx context.Context, req domain.CashSessionOpenRequest) (domain.CashSessionResponse, error) {
	branchID := s.branchOrDefault(req.BranchID)
	openingFloat := domain.RoundMoney(req.OpeningFloat)
	if openingFloat.IsNegative() {
		return domain.CashSessionResponse{}, fmt.Errorf("%w: opening float cannot be negative", store.ErrInvalidInput)
	}
	if _, err := s.repo.GetBranch(ctx, branchID); err != nil {
		return domain.CashSessionResponse{}, err
	}

	saved, err := s.repo.OpenCashSession(ctx, domain.CashSession{
		ID:           xid.New("cash"),
		BranchID:     branchID,
		OpenedBy:     actorName(ctx),
		OpeningFloat: openingFloat,
		Status:       domain.CashSessionOpen,
		Notes:        strings.TrimSpace(req.Notes),
		OpenedAt:     s.now(),
	})
	if err != nil {
		return domain.CashSessionResponse{}, err
	}

	s.logAudit(ctx, branchID, "cash_session_open", "cash_session", saved.ID, "opening_float="+openingFloat.StringFixed(2))
	return domain.CashSessionResponse{Session: *saved}, nil
}

// CloseCashSession reconciles the drawer: expected cash is the opening float
// plus cash taken since the session opened, minus cash expenses paid out.
func (s *Service) CloseCashSession(ctx context.Context, req domain.CashSessionCloseRequest) (domain.CashSessionResponse, error) {
	branchID := s.branchOrDefault(req.BranchID)
	counted := domain.RoundMoney(req.CountedCash)
	if counted.IsNegative() {
		return domain.CashSessionResponse{}, fmt.Errorf("%w: counted cash cannot be negative", store.ErrInvalidInput)
	}

	active, err := s.repo.GetActiveCashSession(ctx, branchID)
	if err != nil {
		return domain.CashSessionResponse{}, err
	}

	closedAt := s.now()
	summary, err := s.cashSummary(ctx, branchID, []domain.CashSession{*active}, active.OpenedAt, closedAt)
	if err != nil {
		return domain.CashSessionResponse{}, err
	}
	variance := counted.Sub(summary.ExpectedCash)
	expected := summary.ExpectedCash
	summary.CountedCash = &counted
	summary.Variance = &variance
	summary.Date = active.OpenedAt.UTC().Format("2006-01-02")

	closed, err := s.repo.CloseCashSession(ctx, domain.CashSession{
		ID:           active.ID,
		CountedCash:  &counted,
		ExpectedCash: &expected,
		Variance:     &variance,
		Notes:        strings.TrimSpace(req.Notes),
		ClosedAt:     &closedAt,
	})
	if err != nil {
		return domain.CashSessionResponse{}, err
	}

	s.logAudit(ctx, branchID, "cash_session_close", "cash_session", closed.ID,
		fmt.Sprintf("expected=%s,counted=%s,variance=%s", expected.StringFixed(2), counted.StringFixed(2), variance.StringFixed(2)))
	return domain.CashSessionResponse{Session: *closed, Summary: &summary}, nil
}

func (s *Service) GetActiveCashSession(ctx context.Context, branchID string) (domain.CashSessionResponse, error) {
	branchID = s.branchOrDefault(branchID)
	active, err := s.repo.GetActiveCashSession(ctx, branchID)
	if err != nil {
		return domain.CashSessionResponse{}, err
	}

	summary, err := s.cashSummary(ctx, branchID, []domain.CashSession{*active}, active.OpenedAt, s.now())
	if err != nil {
		return domain.CashSessionResponse{}, err
	}
	summary.Date = active.OpenedAt.UTC().Format("2006-01-02")
	return domain.CashSessionResponse{Session: *active, Summary: &summary}, nil
}

// CashSummary covers one business day. Opening floats of every session
// opened that day are added up; counted cash and variance come from the
// day's closed sessions.
func (s *Service) CashSummary(ctx context.Context, branchID string, date string) (domain.CashSummary, error) {
	branchID = s.branchOrDefault(branchID)
	from, to, err := dayBounds(date, s.now())
	if err != nil {
		return domain.CashSummary{}, err
	}

	sessions, err := s.repo.ListCashSessions(ctx, branchID, from, to)
	if err != nil {
		return domain.CashSummary{}, err
	}
	summary, err := s.cashSummary(ctx, branchID, sessions, from, to)
	if err != nil {
		return domain.CashSummary{}, err
	}
	summary.Date = from.Format("2006-01-02")

	closed := 0
	counted := decimal.Zero
	variance := decimal.Zero
	for _, session := range sessions {
		if session.Status != domain.CashSessionClosed || session.CountedCash == nil {
			continue
		}
		closed++
		counted = counted.Add(*session.CountedCash)
		if session.Variance != nil {
			variance = variance.Add(*session.Variance)
		}
	}
	if closed > 0 && closed == len(sessions) {
		summary.CountedCash = &counted
		summary.Variance = &variance
	}
	return summary, nil
}

func (s *Service) cashSummary(ctx context.Context, branchID string, sessions []domain.CashSession, from time.Time, to time.Time) (domain.CashSummary, error) {
	payments, err := s.repo.ListPaymentsBetween(ctx, branchID, from, to)
	if err != nil {
		return domain.CashSummary{}, err
	}
	expenses, err := s.repo.ListExpenses(ctx, branchID, from, to)
	if err != nil {
		return domain.CashSummary{}, err
	}

	summary := domain.CashSummary{
		BranchID:     branchID,
		OpeningFloat: decimal.Zero,
		CashExpenses: decimal.Zero,
		NonCashIn:    []domain.MethodTotal{},
	}
	for _, session := range sessions {
		summary.OpeningFloat = summary.OpeningFloat.Add(session.OpeningFloat)
	}
	if len(sessions) > 0 {
		summary.SessionID = sessions[len(sessions)-1].ID
	}

	byMethod := totalsByMethod(payments)
	summary.CashIn = decimal.Zero
	for _, total := range byMethod {
		if total.Method == domain.PaymentMethodCash {
			summary.CashIn = total.Total
			continue
		}
		summary.NonCashIn = append(summary.NonCashIn, total)
	}
	for _, expense := range expenses {
		if expense.Status == domain.ExpenseStatusVoided || expense.Method != domain.PaymentMethodCash {
			continue
		}
		summary.CashExpenses = summary.CashExpenses.Add(expense.Amount)
	}

	summary.OpeningFloat = domain.RoundMoney(summary.OpeningFloat)
	summary.CashExpenses = domain.RoundMoney(summary.CashExpenses)
	summary.ExpectedCash = domain.RoundMoney(summary.OpeningFloat.Add(summary.CashIn).Sub(summary.CashExpenses))
	return summary, nil
}

// totalsByMethod groups payment rows per tender type. Rows of one operator
// action count as a single payment.
func totalsByMethod(payments []domain.Payment) []domain.MethodTotal {
	totals := make(map[string]decimal.Decimal)
	actions := make(map[string]map[string]struct{})
	for _, payment := range payments {
		totals[payment.Method] = totals[payment.Method].Add(payment.Amount)
		if actions[payment.Method] == nil {
			actions[payment.Method] = make(map[string]struct{})
		}
		actions[payment.Method][payment.ActionID] = struct{}{}
	}

	out := make([]domain.MethodTotal, 0, len(totals))
	for method, total := range totals {
		out = append(out, domain.MethodTotal{
			Method: method,
			Count:  int64(len(actions[method])),
			Total:  domain.RoundMoney(total),
		})
	}
	slices.SortFunc(out, func(a, b domain.MethodTotal) int { return strings.Compare(a.Method, b.Method) })
	return out
}

func (s *Service) CreateExpense(ctx context.Context, req domain.ExpenseCreateRequest) (domain.Expense, error) {
	branchID := s.branchOrDefault(req.BranchID)
	amount := domain.RoundMoney(req.Amount)
	category := strings.ToLower(strings.TrimSpace(req.Category))
	if category == "" {
		return domain.Expense{}, fmt.Errorf("%w: expense category is required", store.ErrInvalidInput)
	}
	if !amount.IsPositive() {
		return domain.Expense{}, fmt.Errorf("%w: expense amount must be greater than 0", store.ErrInvalidInput)
	}
	if domain.ExceedsMoneyBound(amount) {
		return domain.Expense{}, fmt.Errorf("%w: expense amount must not exceed %s", store.ErrInvalidInput, domain.FormatTSh(domain.MaxMoney))
	}
	if err := validateMethod(req.Method); err != nil {
		return domain.Expense{}, err
	}
	if _, err := s.repo.GetBranch(ctx, branchID); err != nil {
		return domain.Expense{}, err
	}

	now := s.now()
	created, err := s.repo.CreateExpense(ctx, domain.Expense{
		ID:          xid.New("exp"),
		BranchID:    branchID,
		Category:    category,
		Amount:      amount,
		Method:      strings.ToLower(strings.TrimSpace(req.Method)),
		Description: strings.TrimSpace(req.Description),
		RecordedBy:  actorName(ctx),
		Status:      domain.ExpenseStatusRecorded,
		CreatedAt:   now,
	})
	if err != nil {
		return domain.Expense{}, err
	}

	s.logAudit(ctx, branchID, "expense_create", "expense", created.ID,
		fmt.Sprintf("category=%s,amount=%s,method=%s", created.Category, created.Amount.StringFixed(2), created.Method))
	s.invalidateReport(ctx, branchID, now)
	return *created, nil
}

func (s *Service) ListExpenses(ctx context.Context, branchID string, date string) ([]domain.Expense, error) {
	branchID = s.branchOrDefault(branchID)
	from, to, err := dayBounds(date, s.now())
	if err != nil {
		return nil, err
	}
	return s.repo.ListExpenses(ctx, branchID, from, to)
}

// VoidExpense requires an admin actor. The manager PIN is checked by the
// transport before this is reached.
func (s *Service) VoidExpense(ctx context.Context, id string, reason string) (domain.Expense, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Expense{}, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return domain.Expense{}, fmt.Errorf("%w: void reason is required", store.ErrInvalidInput)
	}

	voided, err := s.repo.VoidExpense(ctx, strings.TrimSpace(id), reason, s.now())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Expense{}, fmt.Errorf("%w: expense %s", store.ErrNotFound, id)
		}
		return domain.Expense{}, err
	}

	s.logAudit(ctx, voided.BranchID, "expense_void", "expense", voided.ID,
		fmt.Sprintf("amount=%s,reason=%s", voided.Amount.StringFixed(2), reason))
	s.invalidateReport(ctx, voided.BranchID, voided.CreatedAt)
	return *voided, nil
}
