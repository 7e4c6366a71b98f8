package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	// ExportLimit caps rows written by a single export.
	ExportLimit = 10000
)

// Query is the store-level form of TimelineFilters.
type Query struct {
	FromAt     pgtype.Timestamptz
	ToAt       pgtype.Timestamptz
	ActorID    pgtype.Int8
	Entity     pgtype.Text
	EntityID   pgtype.Text
	Action     pgtype.Text
	OffsetRows int32
	LimitRows  int32
}

// Repository reads audit entries newest first.
type Repository interface {
	Timeline(ctx context.Context, q Query) ([]TimelineRow, error)
}

// Result wraps timeline rows with paging information.
type Result struct {
	Rows   []TimelineRow `json:"data"`
	Paging PagingInfo    `json:"pagination"`
}

// Service serves the audit timeline.
type Service struct {
	repo Repository
}

// NewService creates a new audit timeline service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Timeline returns one page of entries.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	q := toQuery(filters)
	q.OffsetRows = int32((page - 1) * pageSize)
	q.LimitRows = int32(pageSize + 1)

	rows, err := s.repo.Timeline(ctx, q)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	if rows == nil {
		rows = []TimelineRow{}
	}
	return Result{Rows: rows, Paging: paging}, nil
}

// Export returns every matching entry up to ExportLimit.
func (s *Service) Export(ctx context.Context, filters TimelineFilters) ([]TimelineRow, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("audit: repository not configured")
	}
	q := toQuery(filters)
	q.LimitRows = ExportLimit
	return s.repo.Timeline(ctx, q)
}

func toQuery(f TimelineFilters) Query {
	q := Query{
		FromAt:   toPgTime(f.From),
		ToAt:     toPgTime(f.To),
		Entity:   optionalText(f.Entity),
		EntityID: optionalText(f.EntityID),
		Action:   optionalText(f.Action),
	}
	if f.ActorID > 0 {
		q.ActorID = pgtype.Int8{Int64: f.ActorID, Valid: true}
	}
	return q
}

func toPgTime(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}

func optionalText(value string) pgtype.Text {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: trimmed, Valid: true}
}
