package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"laundrypos/backend/internal/domain"
)

func sampleStatement() domain.MonthlyStatement {
	created := time.Date(2026, 9, 3, 10, 0, 0, 0, time.UTC)
	return domain.MonthlyStatement{
		CustomerID:   "cust-1",
		CustomerName: "Amina Hotel",
		Month:        "2026-09",
		Lines: []domain.StatementLine{
			{ReceiptNumber: "MAIN-260903-0001", BranchID: "main-branch", CreatedAt: created, Status: "collected", ItemCount: 2, Total: decimal.NewFromInt(3000), Paid: decimal.NewFromInt(3000), Balance: decimal.Zero},
			{ReceiptNumber: "MAIN-260910-0004", BranchID: "main-branch", CreatedAt: created.AddDate(0, 0, 7), Status: "ready", ItemCount: 1, Total: decimal.NewFromInt(8000), Paid: decimal.NewFromInt(2000), Balance: decimal.NewFromInt(6000)},
		},
		TotalAmount:  decimal.NewFromInt(11000),
		TotalPaid:    decimal.NewFromInt(5000),
		TotalBalance: decimal.NewFromInt(6000),
		GeneratedAt:  created,
	}
}

func sampleReport() domain.DailyReport {
	return domain.DailyReport{
		BranchID:      "main-branch",
		Date:          "2026-10-14",
		Orders:        4,
		OrderValue:    decimal.NewFromInt(21000),
		Collections:   2,
		PaymentsTotal: decimal.NewFromInt(9500),
		ByMethod: []domain.MethodTotal{
			{Method: "cash", Count: 2, Total: decimal.NewFromInt(6000)},
			{Method: "mobile_money", Count: 1, Total: decimal.NewFromInt(3500)},
		},
		Expenses:    decimal.NewFromInt(1000),
		NetCash:     decimal.NewFromInt(5000),
		Outstanding: decimal.NewFromInt(11500),
	}
}

func TestBuildStatementPDF(t *testing.T) {
	out, err := BuildStatementPDF(sampleStatement())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")), "expected a PDF header")
}

func TestBuildStatementXLSX(t *testing.T) {
	out, err := BuildStatementXLSX(sampleStatement())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	name, err := f.GetCellValue("summary", "B3")
	require.NoError(t, err)
	assert.Equal(t, "Amina Hotel", name)

	receipt, err := f.GetCellValue("receipts", "A3")
	require.NoError(t, err)
	assert.Equal(t, "MAIN-260910-0004", receipt)

	balance, err := f.GetCellValue("receipts", "H3")
	require.NoError(t, err)
	assert.Equal(t, "6000", balance)
}

func TestBuildDailyReportPDF(t *testing.T) {
	out, err := BuildDailyReportPDF(sampleReport())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestBuildDailyReportXLSX(t *testing.T) {
	out, err := BuildDailyReportXLSX(sampleReport())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	date, err := f.GetCellValue("daily", "B4")
	require.NoError(t, err)
	assert.Equal(t, "2026-10-14", date)

	method, err := f.GetCellValue("daily", "A14")
	require.NoError(t, err)
	assert.Equal(t, "cash", method)
}
