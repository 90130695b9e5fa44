package cache

import (
	"context"
	"time"

	"github.com/igorkanara777-eng/offline-pos-desktop/internal/domain"
)

// ReportCache stores finished daily reports. Only closed days are worth
// caching; today's report keeps changing until midnight.
type ReportCache interface {
	Get(ctx context.Context, date string) (*domain.DailyReport, bool, error)
	Set(ctx context.Context, date string, report *domain.DailyReport, ttl time.Duration) error
}

type NoopReportCache struct{}

func (NoopReportCache) Get(_ context.Context, _ string) (*domain.DailyReport, bool, error) {
	return nil, false, nil
}

func (NoopReportCache) Set(_ context.Context, _ string, _ *domain.DailyReport, _ time.Duration) error {
	return nil
}
