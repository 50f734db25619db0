package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"laundrypos/backend/internal/domain"
)

func login(t *testing.T, api *API, username string, password string) string {
	t.Helper()

	body, _ := json.Marshal(domain.LoginRequest{Username: username, Password: password})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	api.Handler().ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("%s login failed, status %d", username, res.Code)
	}

	var payload domain.LoginResponse
	decodeBody(t, res, &payload)
	if strings.TrimSpace(payload.AccessToken) == "" {
		t.Fatalf("expected access token in login response")
	}
	return payload.AccessToken
}

func fetchCSRFToken(t *testing.T, api *API) string {
	t.Helper()
	res := httptest.NewRecorder()
	api.Handler().ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/api/v1/auth/csrf-token", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("csrf-token endpoint returned status %d", res.Code)
	}
	var payload map[string]string
	decodeBody(t, res, &payload)
	if strings.TrimSpace(payload["csrf_token"]) == "" {
		t.Fatalf("expected non-empty csrf_token in response")
	}
	return payload["csrf_token"]
}

func TestMiddlewareSetsSecurityAndCORSHeaders(t *testing.T) {
	api := newTestAPIWithOptions(t, Options{AllowedOrigin: "https://counter.example.tz"})
	res := httptest.NewRecorder()
	api.Handler().ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	want := map[string]string{
		"X-Content-Type-Options":      "nosniff",
		"X-Frame-Options":             "DENY",
		"Referrer-Policy":             "strict-origin-when-cross-origin",
		"Access-Control-Allow-Origin": "https://counter.example.tz",
	}
	for header, value := range want {
		if got := res.Header().Get(header); got != value {
			t.Errorf("%s: expected %q, got %q", header, value, got)
		}
	}
}

func TestPreflightShortCircuits(t *testing.T) {
	api := newTestAPI(t)
	res := httptest.NewRecorder()
	api.Handler().ServeHTTP(res, httptest.NewRequest(http.MethodOptions, "/api/v1/orders", nil))

	if res.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", res.Code)
	}
}

func TestLoginRateLimitReturns429(t *testing.T) {
	api := newTestAPI(t)
	body, _ := json.Marshal(domain.LoginRequest{Username: "admin", Password: "wrong-pass"})

	for i := 1; i <= 6; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "127.0.0.1:5000"
		res := httptest.NewRecorder()
		api.Handler().ServeHTTP(res, req)

		want := http.StatusUnauthorized
		if i == 6 {
			want = http.StatusTooManyRequests
		}
		if res.Code != want {
			t.Fatalf("attempt %d: expected %d, got %d", i, want, res.Code)
		}
	}
}

func TestJSONBodyTooLargeRejected(t *testing.T) {
	api := newTestAPI(t)
	body := `{"username":"` + strings.Repeat("a", (1<<20)+1024) + `","password":"x"}`

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	api.Handler().ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for too large body, got %d", res.Code)
	}
}

func TestMutationWithoutCSRFTokenIsRejected(t *testing.T) {
	api := newTestAPI(t)
	cashier := newClient(t, api, "cashier", "cashier123")
	cashier.csrf = ""

	rec := cashier.do(http.MethodPost, "/api/v1/orders", map[string]any{
		"items": []map[string]any{{"service_code": "SHIRT-WI", "quantity": 1}},
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without csrf token, got %d", rec.Code)
	}
}

func TestExpenseVoidRequiresManagerPIN(t *testing.T) {
	api := newTestAPI(t)
	admin := newClient(t, api, "admin", "admin123")

	rec := admin.do(http.MethodPost, "/api/v1/expenses", map[string]any{"category": "supplies", "amount": 8000, "method": "cash", "description": "detergent"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create expense: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var created struct {
		Expense domain.Expense `json:"expense"`
	}
	decodeBody(t, rec, &created)
	path := "/api/v1/expenses/" + created.Expense.ID + "/void"

	rec = admin.do(http.MethodPost, path, map[string]any{"reason": "entered twice", "manager_pin": "000000"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("wrong pin: expected 403, got %d", rec.Code)
	}

	rec = admin.do(http.MethodPost, path, map[string]any{"reason": "entered twice", "manager_pin": "123456"})
	if rec.Code != http.StatusOK {
		t.Fatalf("void: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var voided struct {
		Expense domain.Expense `json:"expense"`
	}
	decodeBody(t, rec, &voided)
	if voided.Expense.Status != domain.ExpenseStatusVoided || voided.Expense.VoidReason != "entered twice" {
		t.Fatalf("unexpected voided expense %+v", voided.Expense)
	}
}

func TestManagerPINRateLimitReturns429(t *testing.T) {
	api := newTestAPI(t)
	token := login(t, api, "admin", "admin123")
	csrf := fetchCSRFToken(t, api)
	body, _ := json.Marshal(domain.ExpenseVoidRequest{Reason: "duplicate entry", ManagerPIN: "000000"})

	for i := 1; i <= 9; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/expenses/exp-missing/void", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("X-CSRF-Token", csrf)
		req.RemoteAddr = "127.0.0.1:5001"
		res := httptest.NewRecorder()
		api.Handler().ServeHTTP(res, req)

		want := http.StatusForbidden
		if i == 9 {
			want = http.StatusTooManyRequests
		}
		if res.Code != want {
			t.Fatalf("attempt %d: expected %d, got %d", i, want, res.Code)
		}
	}
}

func TestAPIRateLimitReturns429WithRetryAfter(t *testing.T) {
	api := newTestAPIWithOptions(t, Options{AllowedOrigin: "*", RateLimitRPS: 0.01, RateLimitBurst: 3})
	handler := api.Handler()

	send := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = "198.51.100.7:4000"
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		return res
	}

	for i := 1; i <= 3; i++ {
		if res := send("/api/v1/services"); res.Code != http.StatusUnauthorized {
			t.Fatalf("request %d: expected 401 before limit, got %d", i, res.Code)
		}
	}
	res := send("/api/v1/services")
	if res.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 once burst is spent, got %d", res.Code)
	}
	if res.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
	if res := send("/healthz"); res.Code != http.StatusOK {
		t.Fatalf("expected healthz to bypass the api limiter, got %d", res.Code)
	}
}

func TestParsePositiveLimitCaps(t *testing.T) {
	cases := []struct {
		raw  string
		want int
	}{
		{"9999", 200},
		{"", 50},
		{"invalid", 50},
		{"-3", 50},
		{"25", 25},
	}
	for _, tc := range cases {
		if got := parsePositiveLimit(tc.raw, 50, 200); got != tc.want {
			t.Errorf("parsePositiveLimit(%q): expected %d, got %d", tc.raw, tc.want, got)
		}
	}
}
