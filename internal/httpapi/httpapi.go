package httpapi

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/netip"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"laundrypos/backend/internal/domain"
	"laundrypos/backend/internal/metrics"
	"laundrypos/backend/internal/reconcile"
	"laundrypos/backend/internal/service"
	"laundrypos/backend/internal/store"
)

type Options struct {
	AllowedOrigin  string
	RateLimitRPS   float64
	RateLimitBurst int
	Metrics        *metrics.Metrics
}

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	loginLimiter  *attemptLimiter
	pinLimiter    *attemptLimiter
	apiLimiter    *clientRateLimiter
	metrics       *metrics.Metrics
	csrfSecret    []byte
}

func New(svc *service.Service, auth *AuthManager, opts Options) *API {
	csrfSecret := make([]byte, 32)
	if _, err := rand.Read(csrfSecret); err != nil {
		csrfSecret = []byte("csrf-fallback-secret-change-me!!")
	}
	allowedOrigin := strings.TrimSpace(opts.AllowedOrigin)
	if allowedOrigin == "" {
		allowedOrigin = "*"
	}
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		pinLimiter:    newAttemptLimiter(8, time.Minute),
		apiLimiter:    newClientRateLimiter(opts.RateLimitRPS, opts.RateLimitBurst),
		metrics:       opts.Metrics,
		csrfSecret:    csrfSecret,
	}
}

// csrfTokenForHour computes an HMAC-SHA256 token for the given hour bucket
// (expressed as Unix time truncated to the hour). The token is hex-encoded.
func (a *API) csrfTokenForHour(hourBucket int64) string {
	h := hmac.New(sha256.New, a.csrfSecret)
	fmt.Fprintf(h, "%d", hourBucket)
	return hex.EncodeToString(h.Sum(nil))
}

func (a *API) generateCSRFToken() string {
	return a.csrfTokenForHour(time.Now().UTC().Truncate(time.Hour).Unix())
}

// validateCSRFToken accepts tokens of the current or previous hour bucket.
func (a *API) validateCSRFToken(token string) bool {
	if token == "" {
		return false
	}
	currentBucket := time.Now().UTC().Truncate(time.Hour).Unix()
	current := a.csrfTokenForHour(currentBucket)
	previous := a.csrfTokenForHour(currentBucket - 3600)
	return hmac.Equal([]byte(token), []byte(current)) || hmac.Equal([]byte(token), []byte(previous))
}

// attemptLimiter is a sliding-window counter for credential checks.
type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	l.entries[key] = append(kept, now)
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.Handle("/metrics", a.metrics.Handler())
	mux.HandleFunc("/api/v1/auth/login", a.handleLogin)
	mux.HandleFunc("/api/v1/auth/csrf-token", a.handleCSRFToken)

	mux.HandleFunc("/api/v1/branches", a.requireAuth(a.handleBranches, roleCashier, roleAdmin))
	mux.HandleFunc("/api/v1/services", a.requireAuth(a.handleServices, roleCashier, roleAdmin))
	mux.HandleFunc("/api/v1/services/{code}", a.requireAuth(a.handleServiceUpdate, roleAdmin))
	mux.HandleFunc("/api/v1/customers", a.requireAuth(a.handleCustomers, roleCashier, roleAdmin))
	mux.HandleFunc("/api/v1/customers/{id}", a.requireAuth(a.handleCustomer, roleCashier, roleAdmin))
	mux.HandleFunc("/api/v1/customers/{id}/statement", a.requireAuth(a.handleStatement, roleCashier, roleAdmin))

	mux.HandleFunc("/api/v1/orders", a.requireAuth(a.handleOrders, roleCashier, roleAdmin))
	mux.HandleFunc("/api/v1/receipts", a.requireAuth(a.handleReceipts, roleCashier, roleAdmin))
	mux.HandleFunc("/api/v1/receipts/{number}", a.requireAuth(a.handleReceipt, roleCashier, roleAdmin))
	mux.HandleFunc("/api/v1/receipts/{number}/status", a.requireAuth(a.handleReceiptStatus, roleCashier, roleAdmin))
	mux.HandleFunc("/api/v1/receipts/{number}/payments", a.requireAuth(a.handleReceiptPayment, roleCashier, roleAdmin))
	mux.HandleFunc("/api/v1/receipts/{number}/collect", a.requireAuth(a.handleReceiptCollect, roleCashier, roleAdmin))
	mux.HandleFunc("/api/v1/receipts/{number}/print", a.requireAuth(a.handleReceiptPrint, roleCashier, roleAdmin))

	mux.HandleFunc("/api/v1/cash-sessions/open", a.requireAuth(a.handleCashSessionOpen, roleCashier, roleAdmin))
	mux.HandleFunc("/api/v1/cash-sessions/close", a.requireAuth(a.handleCashSessionClose, roleCashier, roleAdmin))
	mux.HandleFunc("/api/v1/cash-sessions/active", a.requireAuth(a.handleCashSessionActive, roleCashier, roleAdmin))
	mux.HandleFunc("/api/v1/cash-summary", a.requireAuth(a.handleCashSummary, roleCashier, roleAdmin))
	mux.HandleFunc("/api/v1/expenses", a.requireAuth(a.handleExpenses, roleCashier, roleAdmin))
	mux.HandleFunc("/api/v1/expenses/{id}/void", a.requireAuth(a.handleExpenseVoid, roleAdmin))

	mux.HandleFunc("/api/v1/reports/daily", a.requireAuth(a.handleDailyReport, roleAdmin))
	mux.HandleFunc("/api/v1/audit-logs", a.requireAuth(a.handleAuditLogs, roleAdmin))
	mux.HandleFunc("/api/v1/users/cashiers", a.requireAuth(a.handleCashiers, roleAdmin))

	return a.withMiddleware(mux)
}

// requireAuth verifies the bearer token, checks the role against roles and
// puts the actor on the request context for the service layer.
func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scheme, token, found := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
		if !found || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		actor, err := a.auth.ParseToken(strings.TrimSpace(token))
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		if len(roles) > 0 && !slices.Contains(roles, actor.Role) {
			writeError(w, http.StatusForbidden, fmt.Errorf("role %s may not use this endpoint", actor.Role))
			return
		}

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"service": "laundrypos",
		"at":      time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleCSRFToken returns a stateless token for the X-CSRF-Token header of
// mutating requests.
func (a *API) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"csrf_token": a.generateCSRFToken(),
	})
}

var csrfExemptPaths = []string{
	"/api/v1/auth/login",
}

// checkCSRF enforces the CSRF token on POST, PUT and PATCH. It writes the
// error response itself when the check fails.
func (a *API) checkCSRF(w http.ResponseWriter, r *http.Request) bool {
	method := r.Method
	if method != http.MethodPost && method != http.MethodPut && method != http.MethodPatch {
		return true
	}
	for _, exempt := range csrfExemptPaths {
		if r.URL.Path == exempt {
			return true
		}
	}
	token := strings.TrimSpace(r.Header.Get("X-CSRF-Token"))
	if !a.validateCSRFToken(token) {
		writeError(w, http.StatusForbidden, errors.New("missing or invalid CSRF token"))
		return false
	}
	return true
}

// checkManagerPIN guards sensitive actions with the shared manager PIN.
// Attempts are limited per client and per action.
func (a *API) checkManagerPIN(w http.ResponseWriter, r *http.Request, action string, pin string) bool {
	if !a.pinLimiter.Allow("pin:" + action + ":" + clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many manager pin attempts"))
		return false
	}
	if !a.auth.ValidateManagerPIN(pin) {
		writeError(w, http.StatusForbidden, errors.New("invalid manager pin"))
		return false
	}
	return true
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-CSRF-Token")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if (r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut) && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if strings.HasPrefix(r.URL.Path, "/api/") && !a.apiLimiter.Allow(clientKey(r)) {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, errors.New("rate limit exceeded"))
			return
		}

		if !a.checkCSRF(w, r) {
			return
		}

		startedAt := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		elapsed := time.Since(startedAt)
		a.metrics.ObserveHTTP(r.Method, strconv.Itoa(rec.status), elapsed)
		log.Printf("%s %s %d %s", r.Method, r.URL.Path, rec.status, elapsed)
	})
}

// statusForError maps service, store and reconciliation errors to HTTP
// status codes. Anything unrecognised is a 500.
func statusForError(err error) int {
	switch reconcile.KindOf(err) {
	case reconcile.KindReceiptNotFound:
		return http.StatusNotFound
	case reconcile.KindNotAllItemsReady, reconcile.KindInvalidTransition:
		return http.StatusConflict
	case reconcile.KindInvalidAmount, reconcile.KindExceedsBalance, reconcile.KindAmountMismatch, reconcile.KindPaymentRequired:
		return http.StatusUnprocessableEntity
	}

	switch {
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrConflict), errors.Is(err, store.ErrDuplicateReceipt), errors.Is(err, store.ErrAlreadyOpen):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError writes err with its mapped status. Reconciliation errors
// also carry their kind and, when known, the amount required.
func writeServiceError(w http.ResponseWriter, err error) {
	status := statusForError(err)
	var recErr *reconcile.Error
	if errors.As(err, &recErr) {
		body := map[string]any{
			"error":      recErr.Message,
			"error_kind": recErr.Kind,
		}
		if recErr.Required != nil {
			body["required"] = recErr.Required
		}
		writeJSON(w, status, body)
		return
	}
	writeError(w, status, err)
}

// writeDecodeError reports a malformed payment amount as the same
// validation failure a non-positive amount produces.
func writeDecodeError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrAmountNotNumeric) {
		writeServiceError(w, reconcile.NonNumericAmount())
		return
	}
	writeError(w, http.StatusBadRequest, err)
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx details stay in the server log.
	msg := err.Error()
	if status >= 500 {
		log.Printf("internal error (status %d): %v", status, err)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeAttachment(w http.ResponseWriter, contentType string, filename string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
