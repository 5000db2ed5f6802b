package adminlist

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/yanizio/participants/internal/field"
	"github.com/yanizio/participants/internal/logger"
	"github.com/yanizio/participants/internal/metrics"
	"github.com/yanizio/participants/internal/record"
)

// Page is one screen of the admin list.
type Page struct {
	Filter   Filter              `json:"filter"`
	Rows     []map[string]string `json:"rows"`
	Total    int                 `json:"total"`
	Page     int                 `json:"page"`
	PageSize int                 `json:"page_size"`
}

// Pages is the number of pages Total spans.
func (p Page) Pages() int {
	if p.PageSize <= 0 || p.Total == 0 {
		return 1
	}
	return (p.Total + p.PageSize - 1) / p.PageSize
}

// Lister runs list queries.
type Lister struct {
	DB       *sqlx.DB
	Builder  *Builder
	Store    Store
	PageSize int
	// MaxRecent caps the recent-fields list.
	MaxRecent int
}

// Transition changes a loaded filter.  nil leaves it as saved.
type Transition func(Filter) Filter

// List loads the user's filter, applies tr, validates and saves the
// result, then fetches the requested page.
func (l *Lister) List(ctx context.Context, snap *field.Snapshot, userID int64, tr Transition) (Page, error) {
	f, err := l.Store.Load(ctx, userID)
	if err != nil {
		return Page{}, err
	}
	if tr != nil {
		f = tr(f)
	}
	f = f.Validate(snap, l.MaxRecent)
	if err := l.Store.Save(ctx, userID, f); err != nil {
		logger.FromContext(ctx).Warnw("filter not saved", "user_id", userID, "err", err)
	}
	return l.Run(ctx, snap, f)
}

// Run fetches the page f points at without touching the store.
func (l *Lister) Run(ctx context.Context, snap *field.Snapshot, f Filter) (Page, error) {
	log := logger.FromContext(ctx)
	q, err := l.Builder.Build(snap, f)
	if err != nil {
		return Page{}, err
	}
	size := l.PageSize
	if size <= 0 {
		size = 20
	}
	p := Page{Filter: f, Page: max(f.Page, 1), PageSize: size}

	cq, cargs := q.Count()
	if err := l.DB.GetContext(ctx, &p.Total, cq, cargs...); err != nil {
		return Page{}, fmt.Errorf("count records: %w", err)
	}
	if last := p.Pages(); p.Page > last {
		p.Page = last
	}

	sq, sargs := q.Select(size, (p.Page-1)*size)
	rows, err := l.DB.QueryxContext(ctx, sq, sargs...)
	if err != nil {
		return Page{}, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		row := map[string]any{}
		if err := rows.MapScan(row); err != nil {
			return Page{}, err
		}
		p.Rows = append(p.Rows, record.Stringify(row))
	}
	if err := rows.Err(); err != nil {
		return Page{}, err
	}

	metrics.ListQueriesTotal.Inc()
	log.Debugw("admin list", "where", q.Where, "total", p.Total, "page", p.Page, "rows", len(p.Rows))
	return p, nil
}

// Explanation shows the statements a filter builds, arguments apart.
type Explanation struct {
	Filter    Filter `json:"filter"`
	Select    string `json:"select"`
	Args      []any  `json:"args"`
	Count     string `json:"count"`
	CountArgs []any  `json:"count_args"`
}

// Explain validates f and renders its first-page SELECT and its COUNT
// without running them.
func (l *Lister) Explain(snap *field.Snapshot, f Filter) (Explanation, error) {
	f = f.Validate(snap, l.MaxRecent)
	q, err := l.Builder.Build(snap, f)
	if err != nil {
		return Explanation{}, err
	}
	size := l.PageSize
	if size <= 0 {
		size = 20
	}
	e := Explanation{Filter: f}
	e.Select, e.Args = q.Select(size, 0)
	e.Count, e.CountArgs = q.Count()
	return e, nil
}
