// Package export renders monthly statements and daily reports as PDF and
// XLSX documents.
package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"laundrypos/backend/internal/domain"
)

// BuildStatementPDF renders a customer's monthly statement.
func BuildStatementPDF(stmt domain.MonthlyStatement) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Monthly Statement")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Customer: %s (%s)", stmt.CustomerName, stmt.CustomerID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Month: %s", stmt.Month))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", stmt.GeneratedAt.Format(time.RFC3339)))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(40, 6, "Receipt", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Date", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Status", "1", 0, "C", false, 0, "")
	pdf.CellFormat(12, 6, "Items", "1", 0, "C", false, 0, "")
	pdf.CellFormat(29, 6, "Total", "1", 0, "C", false, 0, "")
	pdf.CellFormat(29, 6, "Paid", "1", 0, "C", false, 0, "")
	pdf.CellFormat(29, 6, "Balance", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
	for _, line := range stmt.Lines {
		pdf.CellFormat(40, 6, line.ReceiptNumber, "1", 0, "L", false, 0, "")
		pdf.CellFormat(25, 6, line.CreatedAt.Format("2006-01-02"), "1", 0, "C", false, 0, "")
		pdf.CellFormat(25, 6, line.Status, "1", 0, "C", false, 0, "")
		pdf.CellFormat(12, 6, fmt.Sprintf("%d", line.ItemCount), "1", 0, "R", false, 0, "")
		pdf.CellFormat(29, 6, line.Total.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.CellFormat(29, 6, line.Paid.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.CellFormat(29, 6, line.Balance.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	pdf.Ln(4)
	pdf.SetFont("Arial", "B", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Total billed: %s", domain.FormatTSh(stmt.TotalAmount)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Total paid: %s", domain.FormatTSh(stmt.TotalPaid)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Balance due: %s", domain.FormatTSh(stmt.TotalBalance)))

	return outputPDF(pdf)
}

// BuildStatementXLSX renders a statement with a summary and a lines sheet.
func BuildStatementXLSX(stmt domain.MonthlyStatement) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	summarySheet := "summary"
	linesSheet := "receipts"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(linesSheet); err != nil {
		return nil, err
	}

	_ = f.SetCellValue(summarySheet, "A1", "Monthly Statement")
	_ = f.SetCellValue(summarySheet, "A3", "Customer")
	_ = f.SetCellValue(summarySheet, "B3", stmt.CustomerName)
	_ = f.SetCellValue(summarySheet, "A4", "Customer ID")
	_ = f.SetCellValue(summarySheet, "B4", stmt.CustomerID)
	_ = f.SetCellValue(summarySheet, "A5", "Month")
	_ = f.SetCellValue(summarySheet, "B5", stmt.Month)
	_ = f.SetCellValue(summarySheet, "A6", "Total Billed")
	_ = f.SetCellValue(summarySheet, "B6", stmt.TotalAmount.InexactFloat64())
	_ = f.SetCellValue(summarySheet, "A7", "Total Paid")
	_ = f.SetCellValue(summarySheet, "B7", stmt.TotalPaid.InexactFloat64())
	_ = f.SetCellValue(summarySheet, "A8", "Balance Due")
	_ = f.SetCellValue(summarySheet, "B8", stmt.TotalBalance.InexactFloat64())

	headers := []string{"Receipt", "Branch", "Date", "Status", "Items", "Total", "Paid", "Balance"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(linesSheet, cell, header)
	}
	for i, line := range stmt.Lines {
		row := i + 2
		_ = f.SetCellValue(linesSheet, fmt.Sprintf("A%d", row), line.ReceiptNumber)
		_ = f.SetCellValue(linesSheet, fmt.Sprintf("B%d", row), line.BranchID)
		_ = f.SetCellValue(linesSheet, fmt.Sprintf("C%d", row), line.CreatedAt.Format("2006-01-02"))
		_ = f.SetCellValue(linesSheet, fmt.Sprintf("D%d", row), line.Status)
		_ = f.SetCellValue(linesSheet, fmt.Sprintf("E%d", row), line.ItemCount)
		_ = f.SetCellValue(linesSheet, fmt.Sprintf("F%d", row), line.Total.InexactFloat64())
		_ = f.SetCellValue(linesSheet, fmt.Sprintf("G%d", row), line.Paid.InexactFloat64())
		_ = f.SetCellValue(linesSheet, fmt.Sprintf("H%d", row), line.Balance.InexactFloat64())
	}

	return outputXLSX(f)
}

// BuildDailyReportPDF renders the end-of-day report of one branch.
func BuildDailyReportPDF(report domain.DailyReport) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Daily Report")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	for _, row := range dailyRows(report) {
		pdf.CellFormat(60, 6, row[0], "1", 0, "L", false, 0, "")
		pdf.CellFormat(60, 6, row[1], "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	pdf.Ln(6)
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(60, 6, "Method", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Count", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Total", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, method := range report.ByMethod {
		pdf.CellFormat(60, 6, method.Method, "1", 0, "L", false, 0, "")
		pdf.CellFormat(30, 6, fmt.Sprintf("%d", method.Count), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, method.Total.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	return outputPDF(pdf)
}

// BuildDailyReportXLSX renders the daily report on a single sheet.
func BuildDailyReportXLSX(report domain.DailyReport) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	sheet := "daily"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	_ = f.SetCellValue(sheet, "A1", "Daily Report")
	row := 3
	for _, pair := range dailyRows(report) {
		_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", row), pair[0])
		_ = f.SetCellValue(sheet, fmt.Sprintf("B%d", row), pair[1])
		row++
	}

	row++
	_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", row), "Method")
	_ = f.SetCellValue(sheet, fmt.Sprintf("B%d", row), "Count")
	_ = f.SetCellValue(sheet, fmt.Sprintf("C%d", row), "Total")
	for _, method := range report.ByMethod {
		row++
		_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", row), method.Method)
		_ = f.SetCellValue(sheet, fmt.Sprintf("B%d", row), method.Count)
		_ = f.SetCellValue(sheet, fmt.Sprintf("C%d", row), method.Total.InexactFloat64())
	}

	return outputXLSX(f)
}

func dailyRows(report domain.DailyReport) [][2]string {
	return [][2]string{
		{"Branch", report.BranchID},
		{"Date", report.Date},
		{"Orders", fmt.Sprintf("%d", report.Orders)},
		{"Order value", report.OrderValue.StringFixed(2)},
		{"Collections", fmt.Sprintf("%d", report.Collections)},
		{"Payments", report.PaymentsTotal.StringFixed(2)},
		{"Expenses", report.Expenses.StringFixed(2)},
		{"Net cash", report.NetCash.StringFixed(2)},
		{"Outstanding", report.Outstanding.StringFixed(2)},
	}
}

func outputPDF(pdf *gofpdf.Fpdf) ([]byte, error) {
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func outputXLSX(f *excelize.File) ([]byte, error) {
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
