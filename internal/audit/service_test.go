package audit

import (
	"context"
	"strings"
	"testing"
	"time"
)

type stubTimelineRepo struct {
	rows     []TimelineRow
	lastCall Query
}

func (s *stubTimelineRepo) Timeline(ctx context.Context, q Query) ([]TimelineRow, error) {
	s.lastCall = q
	if int(q.LimitRows) < len(s.rows) {
		return s.rows[:q.LimitRows], nil
	}
	return s.rows, nil
}

func row(at string, actor int64, action, entity, id string) TimelineRow {
	ts, _ := time.Parse(time.RFC3339, at)
	return TimelineRow{At: ts, ActorID: actor, Actor: "socio@ampere.test", Action: action, Entity: entity, EntityID: id}
}

func TestServiceTimelinePaging(t *testing.T) {
	repo := &stubTimelineRepo{rows: []TimelineRow{
		row("2024-03-10T10:00:00Z", 1, "payment.created", "payment", "a"),
		row("2024-03-09T09:00:00Z", 2, "quote.updated", "quote", "b"),
		row("2024-03-08T08:00:00Z", 1, "client.created", "client", "c"),
	}}
	svc := NewService(repo)
	result, err := svc.Timeline(context.Background(), TimelineFilters{
		From:     time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		To:       time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		Entity:   " payment ",
		Page:     1,
		PageSize: 2,
	})
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(result.Rows))
	}
	if !result.Paging.HasNext || result.Paging.NextPage != 2 {
		t.Fatalf("expected next page 2, got %+v", result.Paging)
	}
	if repo.lastCall.LimitRows != 3 || repo.lastCall.OffsetRows != 0 {
		t.Fatalf("unexpected window %d/%d", repo.lastCall.OffsetRows, repo.lastCall.LimitRows)
	}
	if !repo.lastCall.Entity.Valid || repo.lastCall.Entity.String != "payment" {
		t.Fatalf("entity filter not trimmed: %+v", repo.lastCall.Entity)
	}
	if repo.lastCall.Action.Valid || repo.lastCall.ActorID.Valid {
		t.Fatalf("empty filters must be null")
	}
}

func TestServiceTimelineClampsPageSize(t *testing.T) {
	repo := &stubTimelineRepo{}
	svc := NewService(repo)
	result, err := svc.Timeline(context.Background(), TimelineFilters{Page: 3, PageSize: 1000, ActorID: 2})
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if result.Paging.PageSize != maxPageSize || result.Paging.PrevPage != 2 {
		t.Fatalf("unexpected paging %+v", result.Paging)
	}
	if repo.lastCall.OffsetRows != int32(2*maxPageSize) {
		t.Fatalf("unexpected offset %d", repo.lastCall.OffsetRows)
	}
	if !repo.lastCall.ActorID.Valid || repo.lastCall.ActorID.Int64 != 2 {
		t.Fatalf("actor filter missing")
	}
	if result.Rows == nil {
		t.Fatalf("rows must be an empty slice for JSON")
	}
}

func TestExportUsesLimitAndWritesCSV(t *testing.T) {
	repo := &stubTimelineRepo{rows: []TimelineRow{row("2024-03-10T10:00:00Z", 1, "payment.created", "payment", "a")}}
	rows, err := NewService(repo).Export(context.Background(), TimelineFilters{})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if repo.lastCall.LimitRows != ExportLimit {
		t.Fatalf("expected export limit, got %d", repo.lastCall.LimitRows)
	}
	out, err := WriteCSV(rows)
	if err != nil {
		t.Fatalf("csv: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header and one row, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[1], "2024-03-10T10:00:00Z,1,socio@ampere.test,payment.created") {
		t.Fatalf("unexpected row %q", lines[1])
	}
}

func TestTimelineWithoutRepository(t *testing.T) {
	if _, err := NewService(nil).Timeline(context.Background(), TimelineFilters{}); err == nil {
		t.Fatalf("expected error without repository")
	}
}
