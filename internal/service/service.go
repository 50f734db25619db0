package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"strings"
	"time"

	"laundrypos/backend/internal/cache"
	"laundrypos/backend/internal/domain"
	"laundrypos/backend/internal/metrics"
	"laundrypos/backend/internal/pricing"
	"laundrypos/backend/internal/store"
	"laundrypos/backend/internal/xid"
)

var ErrForbidden = errors.New("admin role required")

const maxReceiptNumberAttempts = 5

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo            store.Repository
	pricing         pricing.Config
	reports         cache.ReportCache
	reportTTL       time.Duration
	metrics         *metrics.Metrics
	defaultBranchID string
	now             func() time.Time
	receiptNumber   func(branch domain.Branch, at time.Time) string
}

type Option func(*Service)

// WithReportCache caches daily reports for ttl. A zero ttl disables caching.
func WithReportCache(reports cache.ReportCache, ttl time.Duration) Option {
	return func(s *Service) {
		if reports != nil {
			s.reports = reports
		}
		s.reportTTL = ttl
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithReceiptNumbers(next func(branch domain.Branch, at time.Time) string) Option {
	return func(s *Service) { s.receiptNumber = next }
}

func New(repo store.Repository, cfg pricing.Config, defaultBranchID string, opts ...Option) *Service {
	if defaultBranchID == "" {
		defaultBranchID = "main-branch"
	}

	s := &Service{
		repo:            repo,
		pricing:         cfg,
		reports:         cache.NoopReportCache{},
		defaultBranchID: defaultBranchID,
		now:             func() time.Time { return time.Now().UTC() },
		receiptNumber:   randomReceiptNumber,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Pricing() pricing.Config {
	return s.pricing
}

// randomReceiptNumber builds CODE-YYMMDD-NNNN. Collisions are expected
// now and then and are resolved by the caller's retry loop.
func randomReceiptNumber(branch domain.Branch, at time.Time) string {
	code := strings.ToUpper(strings.TrimSpace(branch.Code))
	if code == "" {
		code = "RC"
	}
	return fmt.Sprintf("%s-%s-%04d", code, at.UTC().Format("060102"), rand.IntN(10000))
}

func requireAdmin(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return ErrForbidden
	}
	return nil
}

func actorName(ctx context.Context) string {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Username == "" {
		return "system"
	}
	return actor.Username
}

func (s *Service) branchOrDefault(branchID string) string {
	if strings.TrimSpace(branchID) == "" {
		return s.defaultBranchID
	}
	return strings.TrimSpace(branchID)
}

func (s *Service) ListAuditLogs(ctx context.Context, branchID string, date string, limit int) ([]domain.AuditLog, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	branchID = s.branchOrDefault(branchID)
	if limit < 1 {
		limit = 100
	}

	var from time.Time
	if strings.TrimSpace(date) == "" {
		from = s.now().Add(-24 * time.Hour)
	} else {
		parsed, err := time.Parse("2006-01-02", date)
		if err != nil {
			return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", store.ErrInvalidInput)
		}
		from = parsed.UTC()
	}
	to := from.Add(24 * time.Hour)

	return s.repo.ListAuditLogs(ctx, branchID, from, to, limit)
}

func (s *Service) logAudit(ctx context.Context, branchID string, action string, entityType string, entityID string, detail string) {
	branchID = s.branchOrDefault(branchID)

	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		BranchID:      branchID,
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now(),
	}); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}

func dayBounds(date string, now time.Time) (time.Time, time.Time, error) {
	var day time.Time
	if strings.TrimSpace(date) == "" {
		now = now.UTC()
		day = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	} else {
		parsed, err := time.Parse("2006-01-02", strings.TrimSpace(date))
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: date must be YYYY-MM-DD", store.ErrInvalidInput)
		}
		day = parsed.UTC()
	}
	return day, day.Add(24 * time.Hour), nil
}

func defaultString(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
