package shared

import (
	"net/http"
	"strings"

	rootshared "github.com/ampere-erp/ampere-erp/internal/shared"
)

// Sort directions
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// ListFilters represents standard list page filters
type ListFilters struct {
	Page     int
	PerPage  int
	Search   string
	SortBy   string
	SortDir  string
	IsActive *bool
	Kind     string
}

// FiltersFromRequest reads ?page, ?perPage, ?q, ?sort, ?dir, ?active and ?kind.
func FiltersFromRequest(r *http.Request) ListFilters {
	q := r.URL.Query()
	page, perPage := rootshared.PageFromRequest(r)
	f := ListFilters{
		Page:    page,
		PerPage: perPage,
		Search:  strings.TrimSpace(q.Get("q")),
		SortBy:  q.Get("sort"),
		SortDir: q.Get("dir"),
		Kind:    q.Get("kind"),
	}
	if raw := q.Get("active"); raw != "" {
		active := raw == "true" || raw == "1"
		f.IsActive = &active
	}
	return f
}

// Offset returns the row offset for the requested page.
func (f ListFilters) Offset() int {
	return rootshared.NewPagination(f.Page, f.PerPage, 0).Offset()
}

// Limit returns the normalised page size.
func (f ListFilters) Limit() int {
	return rootshared.NewPagination(f.Page, f.PerPage, 0).PerPage
}

// OrderBy resolves SortBy against the allowed columns, falling back to def.
func (f ListFilters) OrderBy(allowed map[string]string, def string) string {
	dir := "ASC"
	if f.SortDir == SortDesc {
		dir = "DESC"
	}
	col, ok := allowed[f.SortBy]
	if !ok {
		col = def
	}
	return col + " " + dir
}
