package httpapi

import (
	"bytes"
	"html/template"
	"net/http"
	"strings"
	"time"

	"laundrypos/backend/internal/domain"
)

func (a *API) handleOrders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.OrderCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	receipt, err := a.service.CreateOrder(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"receipt": receipt})
}

func (a *API) handleReceipts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	query := r.URL.Query()
	filter := domain.ReceiptFilter{
		BranchID:        query.Get("branch_id"),
		CustomerID:      query.Get("customer_id"),
		Status:          query.Get("status"),
		OutstandingOnly: query.Get("outstanding") == "true",
		Limit:           parsePositiveLimit(query.Get("limit"), 50, 200),
	}
	if date := strings.TrimSpace(query.Get("date")); date != "" {
		day, err := time.Parse("2006-01-02", date)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		filter.From = day.UTC()
		filter.To = filter.From.Add(24 * time.Hour)
	}

	receipts, err := a.service.ListReceipts(r.Context(), filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"receipts": receipts})
}

func (a *API) handleReceipt(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	receipt, err := a.service.GetReceipt(r.Context(), r.PathValue("number"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"receipt": receipt})
}

func (a *API) handleReceiptStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.StatusUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	receipt, err := a.service.UpdateReceiptStatus(r.Context(), r.PathValue("number"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"receipt": receipt})
}

func (a *API) handleReceiptPayment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.PaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	result, err := a.service.ReceivePayment(r.Context(), r.PathValue("number"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleReceiptCollect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.CollectRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeDecodeError(w, err)
			return
		}
	}
	result, err := a.service.CollectReceipt(r.Context(), r.PathValue("number"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleReceiptPrint(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	receipt, err := a.service.GetReceipt(r.Context(), r.PathValue("number"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(receiptToPrintableHTML(receipt)))
}

var printFuncs = template.FuncMap{
	"tsh": domain.FormatTSh,
	"when": func(t *time.Time) string {
		if t == nil {
			return "-"
		}
		return t.UTC().Format("2006-01-02 15:04")
	},
}

var receiptHTMLTmpl = template.Must(template.New("receipt").Funcs(printFuncs).Parse(`<!doctype html>
<html>
<head>
  <meta charset="utf-8" />
  <title>Receipt {{.ReceiptNumber}}</title>
  <style>
    body { font-family: monospace; margin: 16px; max-width: 420px; }
    table { width: 100%; border-collapse: collapse; }
    td { padding: 2px 0; font-size: 13px; }
    .num { text-align: right; }
  </style>
</head>
<body>
  <h3>Receipt {{.ReceiptNumber}}</h3>
  <p>Branch: {{.BranchID}}<br/>Status: {{.Status}}{{if .Overdue}} (overdue){{end}}<br/>Ready by: {{when .EstimatedCollectionDate}}</p>
  <table>
    <tbody>{{range .Items}}<tr><td>{{.Description}} x{{.Quantity}} [{{.ExpressTier}}]</td><td class="num">{{tsh .TotalAmount}}</td></tr>{{end}}</tbody>
  </table>
  <hr/>
  <table>
    <tr><td>Total</td><td class="num">{{tsh .Summary.ReceiptTotal}}</td></tr>
    <tr><td>Paid</td><td class="num">{{tsh .Summary.ReceiptPaid}}</td></tr>
    <tr><td>Balance due</td><td class="num">{{tsh .Summary.BalanceDue}}</td></tr>
  </table>
</body>
</html>
`))

func receiptToPrintableHTML(receipt domain.Receipt) string {
	var buf bytes.Buffer
	if err := receiptHTMLTmpl.Execute(&buf, receipt); err != nil {
		return "<!doctype html><html><body><p>Receipt rendering error.</p></body></html>"
	}
	return buf.String()
}
