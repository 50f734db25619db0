package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"laundrypos/backend/internal/cache"
	"laundrypos/backend/internal/domain"
	"laundrypos/backend/internal/reconcile"
	"laundrypos/backend/internal/store"
)

// DailyReport summarizes one branch day. Reports are served from the report
// cache when one is configured; mutations of the day drop the cached copy.
func (s *Service) DailyReport(ctx context.Context, branchID string, date string) (domain.DailyReport, error) {
	branchID = s.branchOrDefault(branchID)
	from, to, err := dayBounds(date, s.now())
	if err != nil {
		return domain.DailyReport{}, err
	}
	day := from.Format("2006-01-02")
	key := cache.DailyReportKey(branchID, day)

	if s.reportTTL > 0 {
		cached, ok, err := s.reports.Get(ctx, key)
		if err != nil {
			log.Printf("[service] WARN: report cache get failed key=%s: %v", key, err)
		} else if ok && cached != nil {
			return *cached, nil
		}
	}

	report, err := s.buildDailyReport(ctx, branchID, from, to)
	if err != nil {
		return domain.DailyReport{}, err
	}
	report.Date = day

	if s.reportTTL > 0 {
		if err := s.reports.Set(ctx, key, &report, s.reportTTL); err != nil {
			log.Printf("[service] WARN: report cache set failed key=%s: %v", key, err)
		}
	}
	return report, nil
}

func (s *Service) buildDailyReport(ctx context.Context, branchID string, from time.Time, to time.Time) (domain.DailyReport, error) {
	items, err := s.repo.ListReceiptItems(ctx, domain.ReceiptFilter{BranchID: branchID, From: from, To: to})
	if err != nil {
		return domain.DailyReport{}, err
	}
	payments, err := s.repo.ListPaymentsBetween(ctx, branchID, from, to)
	if err != nil {
		return domain.DailyReport{}, err
	}
	collections, err := s.repo.CountCollections(ctx, branchID, from, to)
	if err != nil {
		return domain.DailyReport{}, err
	}
	expenses, err := s.repo.ListExpenses(ctx, branchID, from, to)
	if err != nil {
		return domain.DailyReport{}, err
	}
	outstanding, err := s.repo.OutstandingBalance(ctx, branchID)
	if err != nil {
		return domain.DailyReport{}, err
	}

	report := domain.DailyReport{
		BranchID:    branchID,
		Collections: collections,
		ByMethod:    totalsByMethod(payments),
		Outstanding: outstanding,
	}

	orderValue := decimal.Zero
	for _, group := range groupByReceipt(items) {
		report.Orders++
		orderValue = orderValue.Add(reconcile.Summarize(group).ReceiptTotal)
	}
	report.OrderValue = domain.RoundMoney(orderValue)

	paymentsTotal := decimal.Zero
	cashIn := decimal.Zero
	for _, total := range report.ByMethod {
		paymentsTotal = paymentsTotal.Add(total.Total)
		if total.Method == domain.PaymentMethodCash {
			cashIn = total.Total
		}
	}
	report.PaymentsTotal = domain.RoundMoney(paymentsTotal)

	expenseTotal := decimal.Zero
	cashOut := decimal.Zero
	for _, expense := range expenses {
		if expense.Status == domain.ExpenseStatusVoided {
			continue
		}
		expenseTotal = expenseTotal.Add(expense.Amount)
		if expense.Method == domain.PaymentMethodCash {
			cashOut = cashOut.Add(expense.Amount)
		}
	}
	report.Expenses = domain.RoundMoney(expenseTotal)
	report.NetCash = domain.RoundMoney(cashIn.Sub(cashOut))
	return report, nil
}

func (s *Service) invalidateReport(ctx context.Context, branchID string, at time.Time) {
	if s.reportTTL <= 0 {
		return
	}
	key := cache.DailyReportKey(s.branchOrDefault(branchID), at.UTC().Format("2006-01-02"))
	if err := s.reports.Delete(ctx, key); err != nil {
		log.Printf("[service] WARN: report cache delete failed key=%s: %v", key, err)
	}
}

// MonthlyStatement lists a customer's receipts created in month (YYYY-MM,
// current month when empty) across all branches.
func (s *Service) MonthlyStatement(ctx context.Context, customerID string, month string) (domain.MonthlyStatement, error) {
	customer, err := s.repo.GetCustomer(ctx, strings.TrimSpace(customerID))
	if err != nil {
		return domain.MonthlyStatement{}, err
	}

	now := s.now()
	var start time.Time
	if strings.TrimSpace(month) == "" {
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	} else {
		parsed, err := time.Parse("2006-01", strings.TrimSpace(month))
		if err != nil {
			return domain.MonthlyStatement{}, fmt.Errorf("%w: month must be YYYY-MM", store.ErrInvalidInput)
		}
		start = parsed.UTC()
	}
	end := start.AddDate(0, 1, 0)

	items, err := s.repo.ListReceiptItems(ctx, domain.ReceiptFilter{CustomerID: customer.ID, From: start, To: end})
	if err != nil {
		return domain.MonthlyStatement{}, err
	}

	stmt := domain.MonthlyStatement{
		CustomerID:   customer.ID,
		CustomerName: customer.Name,
		Month:        start.Format("2006-01"),
		Lines:        []domain.StatementLine{},
		TotalAmount:  decimal.Zero,
		TotalPaid:    decimal.Zero,
		TotalBalance: decimal.Zero,
		GeneratedAt:  now,
	}
	for _, group := range groupByReceipt(items) {
		receipt := reconcile.BuildReceipt(group, now)
		stmt.Lines = append(stmt.Lines, domain.StatementLine{
			ReceiptNumber: receipt.ReceiptNumber,
			BranchID:      receipt.BranchID,
			CreatedAt:     receipt.CreatedAt,
			Status:        receipt.Status,
			ItemCount:     receipt.ItemCount,
			Total:         receipt.Summary.ReceiptTotal,
			Paid:          receipt.Summary.ReceiptPaid,
			Balance:       receipt.Summary.BalanceDue,
		})
		stmt.TotalAmount = stmt.TotalAmount.Add(receipt.Summary.ReceiptTotal)
		stmt.TotalPaid = stmt.TotalPaid.Add(receipt.Summary.ReceiptPaid)
		stmt.TotalBalance = stmt.TotalBalance.Add(receipt.Summary.BalanceDue)
	}
	stmt.TotalAmount = domain.RoundMoney(stmt.TotalAmount)
	stmt.TotalPaid = domain.RoundMoney(stmt.TotalPaid)
	stmt.TotalBalance = domain.RoundMoney(stmt.TotalBalance)
	return stmt, nil
}
