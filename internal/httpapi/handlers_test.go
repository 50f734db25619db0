package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"laundrypos/backend/internal/domain"
	"laundrypos/backend/internal/metrics"
	"laundrypos/backend/internal/pricing"
	"laundrypos/backend/internal/service"
	"laundrypos/backend/internal/store/memory"
)

var fixedNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()
	return newTestAPIWithOptions(t, Options{AllowedOrigin: "*", Metrics: metrics.New()})
}

func newTestAPIWithOptions(t *testing.T, opts Options) *API {
	t.Helper()

	repo := memory.NewSeeded()
	svc := service.New(repo, pricing.Default(), memory.DefaultBranchID,
		service.WithClock(func() time.Time { return fixedNow }),
		service.WithMetrics(opts.Metrics),
	)
	auth := NewAuthManager("test-secret-key", time.Hour, "123456", repo)
	return New(svc, auth, opts)
}

type testClient struct {
	t       *testing.T
	handler http.Handler
	token   string
	csrf    string
}

func newClient(t *testing.T, api *API, username string, password string) *testClient {
	t.Helper()
	return &testClient{
		t:       t,
		handler: api.Handler(),
		token:   login(t, api, username, password),
		csrf:    fetchCSRFToken(t, api),
	}
}

func (c *testClient) do(method string, path string, payload any) *httptest.ResponseRecorder {
	c.t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			c.t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("X-CSRF-Token", c.csrf)
	rec := httptest.NewRecorder()
	c.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(dest); err != nil {
		t.Fatalf("decode body: %v (raw: %s)", err, rec.Body.String())
	}
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	decodeBody(t, rec, &body)
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	api := newTestAPI(t)

	payload, _ := json.Marshal(domain.LoginRequest{Username: "admin", Password: "wrongpassword"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestServicesRequireAuth(t *testing.T) {
	api := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/services", nil)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestCashierListsServicesButCannotEditThem(t *testing.T) {
	api := newTestAPI(t)
	cashier := newClient(t, api, "cashier", "cashier123")

	rec := cashier.do(http.MethodGet, "/api/v1/services", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var body struct {
		Services []domain.LaundryService `json:"services"`
	}
	decodeBody(t, rec, &body)
	if len(body.Services) == 0 {
		t.Fatalf("expected seeded services")
	}

	rec = cashier.do(http.MethodPatch, "/api/v1/services/SHIRT-WI", map[string]any{"active": false})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for cashier service edit, got %d", rec.Code)
	}
}

func TestOrderPaymentAndCollectionFlow(t *testing.T) {
	api := newTestAPI(t)
	cashier := newClient(t, api, "cashier", "cashier123")

	rec := cashier.do(http.MethodPost, "/api/v1/orders", map[string]any{
		"items": []map[string]any{{"service_code": "SHIRT-WI", "quantity": 3}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create order: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var created struct {
		Receipt domain.Receipt `json:"receipt"`
	}
	decodeBody(t, rec, &created)
	number := created.Receipt.ReceiptNumber
	if !strings.HasPrefix(number, "MAIN-260310-") {
		t.Fatalf("unexpected receipt number %q", number)
	}
	if !created.Receipt.Summary.BalanceDue.Equal(decimal.NewFromInt(4500)) {
		t.Fatalf("expected balance 4500, got %s", created.Receipt.Summary.BalanceDue)
	}

	rec = cashier.do(http.MethodPost, "/api/v1/receipts/"+number+"/payments", map[string]any{"amount": 1000, "method": "cash"})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("mismatched payment: expected 422, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var rejected map[string]any
	decodeBody(t, rec, &rejected)
	if rejected["error_kind"] != "amount_mismatch" {
		t.Fatalf("expected amount_mismatch kind, got %v", rejected["error_kind"])
	}
	if rejected["required"] != float64(4500) {
		t.Fatalf("expected required 4500, got %v", rejected["required"])
	}

	rec = cashier.do(http.MethodPost, "/api/v1/receipts/"+number+"/payments", map[string]any{"amount": 4500, "method": "mobile_money", "reference": "MP-991"})
	if rec.Code != http.StatusOK {
		t.Fatalf("exact payment: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var paid domain.PaymentResult
	decodeBody(t, rec, &paid)
	if !paid.Applied || !paid.Summary.BalanceDue.IsZero() {
		t.Fatalf("expected applied payment clearing the balance, got %+v", paid)
	}

	rec = cashier.do(http.MethodPost, "/api/v1/receipts/"+number+"/collect", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("collect before ready: expected 409, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = cashier.do(http.MethodPost, "/api/v1/receipts/"+number+"/status", map[string]any{"status": "ready"})
	if rec.Code != http.StatusOK {
		t.Fatalf("mark ready: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = cashier.do(http.MethodPost, "/api/v1/receipts/"+number+"/collect", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("collect: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var collected domain.CollectResult
	decodeBody(t, rec, &collected)
	if !collected.Collected {
		t.Fatalf("expected receipt to be collected, got %+v", collected)
	}

	rec = cashier.do(http.MethodGet, "/api/v1/receipts/"+number+"/print", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("print: expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "TSh 4,500") {
		t.Fatalf("expected printed total, got %s", rec.Body.String())
	}
}

func TestNonNumericAmountIsInvalidAmount(t *testing.T) {
	api := newTestAPI(t)
	cashier := newClient(t, api, "cashier", "cashier123")

	rec := cashier.do(http.MethodPost, "/api/v1/orders", map[string]any{
		"items": []map[string]any{{"service_code": "SHIRT-WI", "quantity": 1}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create order: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var created struct {
		Receipt domain.Receipt `json:"receipt"`
	}
	decodeBody(t, rec, &created)
	number := created.Receipt.ReceiptNumber

	cases := []struct {
		name    string
		path    string
		payload map[string]any
	}{
		{"payment", "/api/v1/receipts/" + number + "/payments", map[string]any{"amount": "abc", "method": "cash"}},
		{"payment object", "/api/v1/receipts/" + number + "/payments", map[string]any{"amount": map[string]any{"value": 1}, "method": "cash"}},
		{"collect", "/api/v1/receipts/" + number + "/collect", map[string]any{"payment": map[string]any{"amount": "abc", "method": "cash"}}},
		{"deposit", "/api/v1/orders", map[string]any{
			"items":   []map[string]any{{"service_code": "SHIRT-WI", "quantity": 1}},
			"deposit": map[string]any{"amount": "abc", "method": "cash"},
		}},
	}
	for _, tc := range cases {
		rec := cashier.do(http.MethodPost, tc.path, tc.payload)
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("%s: expected 422, got %d (body: %s)", tc.name, rec.Code, rec.Body.String())
		}
		var body map[string]any
		decodeBody(t, rec, &body)
		if body["error_kind"] != "invalid_amount" || body["error"] != "Payment amount must be a number" {
			t.Fatalf("%s: unexpected body %v", tc.name, body)
		}
	}

	rec = cashier.do(http.MethodPost, "/api/v1/receipts/"+number+"/payments", map[string]any{"amount": 1500, "method": "cash", "tip": 5})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown field: expected 400, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	rec = cashier.do(http.MethodPost, "/api/v1/receipts/"+number+"/payments", map[string]any{"amount": "1500", "method": "cash"})
	if rec.Code != http.StatusOK {
		t.Fatalf("quoted numeric amount: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestUnknownReceiptReturns404(t *testing.T) {
	api := newTestAPI(t)
	cashier := newClient(t, api, "cashier", "cashier123")

	rec := cashier.do(http.MethodGet, "/api/v1/receipts/MAIN-000000-0000", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var body map[string]any
	decodeBody(t, rec, &body)
	if body["error_kind"] != "receipt_not_found" {
		t.Fatalf("expected receipt_not_found kind, got %v", body["error_kind"])
	}
}

func TestDailyReportExports(t *testing.T) {
	api := newTestAPI(t)
	admin := newClient(t, api, "admin", "admin123")

	rec := admin.do(http.MethodPost, "/api/v1/orders", map[string]any{
		"items": []map[string]any{{"service_code": "WASH-FOLD", "quantity": 1}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create order: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = admin.do(http.MethodGet, "/api/v1/reports/daily?date=2026-03-10&format=csv", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("csv report: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("unexpected content type %q", ct)
	}
	csv := rec.Body.String()
	if !strings.Contains(csv, "summary,orders,1") || !strings.Contains(csv, "summary,outstanding,3000.00") {
		t.Fatalf("unexpected csv report:\n%s", csv)
	}

	rec = admin.do(http.MethodGet, "/api/v1/reports/daily?date=2026-03-10&format=xlsx", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("xlsx report: expected 200, got %d", rec.Code)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")) {
		t.Fatalf("expected zip container for xlsx")
	}

	cashier := newClient(t, api, "cashier", "cashier123")
	if rec := cashier.do(http.MethodGet, "/api/v1/reports/daily", nil); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for cashier report access, got %d", rec.Code)
	}
}

func TestMetricsEndpointExposesRequestDurations(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "laundry_http_request_duration_seconds") {
		t.Fatalf("expected request duration histogram in metrics output")
	}
}
