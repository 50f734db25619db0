package cache

import (
	"context"
	"time"

	"laundrypos/backend/internal/domain"
)

// ReportCache keeps computed daily reports for a short time so dashboard
// refreshes do not rescan the day's receipts.
type ReportCache interface {
	Get(ctx context.Context, key string) (*domain.DailyReport, bool, error)
	Set(ctx context.Context, key string, value *domain.DailyReport, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type NoopReportCache struct{}

func (NoopReportCache) Get(_ context.Context, _ string) (*domain.DailyReport, bool, error) {
	return nil, false, nil
}

func (NoopReportCache) Set(_ context.Context, _ string, _ *domain.DailyReport, _ time.Duration) error {
	return nil
}

func (NoopReportCache) Delete(_ context.Context, _ string) error {
	return nil
}

// DailyReportKey is the cache key of one branch's report for a YYYY-MM-DD day.
func DailyReportKey(branchID string, day string) string {
	return "laundry:report:daily:" + branchID + ":" + day
}
