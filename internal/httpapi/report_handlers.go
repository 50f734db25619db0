package httpapi

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"laundrypos/backend/internal/domain"
	"laundrypos/backend/internal/export"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	branchID := r.URL.Query().Get("branch_id")
	date := r.URL.Query().Get("date")
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)

	logs, err := a.service.ListAuditLogs(r.Context(), branchID, date, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

func (a *API) handleDailyReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	branchID := r.URL.Query().Get("branch_id")
	date := r.URL.Query().Get("date")
	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))

	report, err := a.service.DailyReport(r.Context(), branchID, date)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	filename := "daily-report-" + report.BranchID + "-" + report.Date
	switch format {
	case "csv":
		writeAttachment(w, "text/csv; charset=utf-8", filename+".csv", []byte(dailyReportToCSV(report)))
	case "html":
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(dailyReportToPrintableHTML(report)))
	case "xlsx":
		body, err := export.BuildDailyReportXLSX(report)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeAttachment(w, xlsxContentType, filename+".xlsx", body)
	case "pdf":
		body, err := export.BuildDailyReportPDF(report)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeAttachment(w, "application/pdf", filename+".pdf", body)
	default:
		writeJSON(w, http.StatusOK, report)
	}
}

func (a *API) handleCashiers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		cashiers := a.auth.ListCashiers(r.Context())
		writeJSON(w, http.StatusOK, map[string]any{"cashiers": cashiers})
	case http.MethodPost:
		var req domain.CashierCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		cashier, err := a.auth.CreateCashier(r.Context(), req)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		writeJSON(w, http.StatusCreated, map[string]any{"cashier": cashier})
	default:
		writeMethodNotAllowed(w)
	}
}

func dailyReportToCSV(report domain.DailyReport) string {
	lines := []string{
		"section,key,value",
		fmt.Sprintf("summary,date,%s", report.Date),
		fmt.Sprintf("summary,branch_id,%s", report.BranchID),
		fmt.Sprintf("summary,orders,%d", report.Orders),
		fmt.Sprintf("summary,order_value,%s", report.OrderValue.StringFixed(2)),
		fmt.Sprintf("summary,collections,%d", report.Collections),
		fmt.Sprintf("summary,payments_total,%s", report.PaymentsTotal.StringFixed(2)),
		fmt.Sprintf("summary,expenses,%s", report.Expenses.StringFixed(2)),
		fmt.Sprintf("summary,net_cash,%s", report.NetCash.StringFixed(2)),
		fmt.Sprintf("summary,outstanding,%s", report.Outstanding.StringFixed(2)),
	}
	for _, method := range report.ByMethod {
		lines = append(lines, fmt.Sprintf("payment,%s_count,%d", method.Method, method.Count))
		lines = append(lines, fmt.Sprintf("payment,%s_total,%s", method.Method, method.Total.StringFixed(2)))
	}
	return strings.Join(lines, "\n") + "\n"
}

var dailyReportHTMLTmpl = template.Must(template.New("daily-report").Funcs(printFuncs).Parse(`<!doctype html>
<html>
<head>
  <meta charset="utf-8" />
  <title>Daily Report {{.Date}}</title>
  <style>
    body { font-family: sans-serif; margin: 24px; }
    table { width: 100%; border-collapse: collapse; margin-top: 8px; }
    th, td { border: 1px solid #ddd; padding: 6px; font-size: 13px; }
    h2, h3 { margin-bottom: 4px; }
  </style>
</head>
<body>
  <h2>Daily Report {{.Date}}</h2>
  <p>Branch: {{.BranchID}}</p>
  <p>Orders: {{.Orders}} ({{tsh .OrderValue}}) | Collections: {{.Collections}}</p>
  <p>Payments: {{tsh .PaymentsTotal}} | Expenses: {{tsh .Expenses}} | Net cash: {{tsh .NetCash}} | Outstanding: {{tsh .Outstanding}}</p>

  <h3>By Method</h3>
  <table>
    <thead><tr><th>Method</th><th>Payments</th><th>Total</th></tr></thead>
    <tbody>{{range .ByMethod}}<tr><td>{{.Method}}</td><td style="text-align:right;">{{.Count}}</td><td style="text-align:right;">{{tsh .Total}}</td></tr>{{end}}</tbody>
  </table>
</body>
</html>
`))

func dailyReportToPrintableHTML(report domain.DailyReport) string {
	var buf bytes.Buffer
	if err := dailyReportHTMLTmpl.Execute(&buf, report); err != nil {
		return "<!doctype html><html><body><p>Report rendering error.</p></body></html>"
	}
	return buf.String()
}
