package delinquency

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ampere-erp/ampere-erp/internal/shared"
)

// Repository reads receivable quotes with their paid sums.
type Repository interface {
	ListReceivables(ctx context.Context, ownerIDs []int64) ([]DebtRow, error)
}

// Service builds delinquency reports, caching them per day.
type Service struct {
	repo   Repository
	cache  *Cache
	group  shared.OwnershipGroup
	logger *slog.Logger
	loc    *time.Location
	now    func() time.Time
	builds singleflight.Group
}

// buildTimeout bounds a shared report build once it no longer follows the
// context of the request that started it.
const buildTimeout = 30 * time.Second

// NewService constructs the report service. cache may be nil.
func NewService(repo Repository, cache *Cache, group shared.OwnershipGroup, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, group: group, logger: logger, loc: time.UTC, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithLocation sets the zone that decides the cache day boundary.
func (s *Service) WithLocation(loc *time.Location) {
	if loc != nil {
		s.loc = loc
	}
}

// Report returns the sorted delinquency report. When the store fails and no
// cached copy exists an empty degraded report is returned instead of an error.
func (s *Service) Report(ctx context.Context, sortKey SortKey) (Report, error) {
	report, err := s.load(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return Report{}, err
		}
		s.logger.Warn("delinquency report degraded", slog.Any("error", err))
		report = Report{
			GeneratedAt: s.now().UTC(),
			BySeverity:  map[Severity]int{},
			Clients:     []ClientDebt{},
			Degraded:    true,
		}
	}
	report.SortBy(sortKey)
	return report, nil
}

// Warm builds and caches today's report.
func (s *Service) Warm(ctx context.Context) error {
	_, err := s.load(ctx)
	return err
}

// Invalidate drops cached reports.
func (s *Service) Invalidate(ctx context.Context) {
	if s.cache != nil {
		s.cache.Invalidate(ctx)
	}
}

func (s *Service) load(ctx context.Context) (Report, error) {
	day := shared.Today(s.now(), s.loc).String()
	key, err := s.cache.BuildKey(ctx, "delinquency", "report", day)
	if err != nil {
		s.logger.Warn("delinquency cache unavailable", slog.Any("error", err))
		return s.build(ctx)
	}
	// Waiters share this build, so one caller going away must not cancel it.
	buildCtx := context.WithoutCancel(ctx)
	ch := s.builds.DoChan(key, func() (any, error) {
		ctx, cancel := context.WithTimeout(buildCtx, buildTimeout)
		defer cancel()
		var report Report
		err := s.cache.FetchJSON(ctx, key, &report, func(ctx context.Context) (any, error) {
			return s.build(ctx)
		})
		return report, err
	})
	select {
	case <-ctx.Done():
		return Report{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Report{}, res.Err
		}
		report := res.Val.(Report)
		// Shared results must not alias the same client slice across callers.
		report.Clients = append([]ClientDebt(nil), report.Clients...)
		return report, nil
	}
}

func (s *Service) build(ctx context.Context) (Report, error) {
	rows, err := s.repo.ListReceivables(ctx, s.group.IDs())
	if err != nil {
		return Report{}, err
	}
	return Build(rows, s.now()), nil
}
