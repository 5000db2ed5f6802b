// internal/adminlist/filter.go
//
// Persisted admin list filter state and its transitions.
//
// Context
// -------
// Each admin user keeps one Filter: an ordered list of search clauses, the
// sort column and direction, and a short list of recently searched fields.
// The state is loaded at the top of a list request, changed by exactly one
// transition (Clear, ToggleSort, SetSearch, or AddRecentField), validated, and
// saved back before the query is built.
//
// Validation is the only place that repairs bad input.  Unknown search
// fields become "none", unknown sort columns become date_recorded, and
// unrecognized operators fall back to LIKE.  The query builder trusts what
// it is given.
//
// Notes
// -----
// • Oxford commas, two spaces after periods.

package adminlist

import (
	"slices"
	"strings"

	"github.com/yanizio/participants/internal/field"
)

// Group search slugs resolve to a CONCAT_WS over many columns.
const (
	TextFieldsGroup = "pdb_text_fields"
	AllFieldsGroup  = "pdb_all_fields"
)

// None marks an unused clause.
const None = "none"

// Operators accepted from the filter form.
const (
	OpEqual   = "="
	OpNotEq   = "!="
	OpLike    = "LIKE"
	OpNotLike = "NOT LIKE"
	OpGT      = "gt"
	OpLT      = "lt"
)

// Logic joins a clause to its neighbours.
const (
	LogicAnd = "AND"
	LogicOr  = "OR"
)

// Sort directions.
const (
	Asc  = "ASC"
	Desc = "DESC"
)

// DefaultRecentFields caps RecentFields when the caller passes no limit.
const DefaultRecentFields = 6

var operators = []string{OpEqual, OpNotEq, OpLike, OpNotLike, OpGT, OpLT}

// Clause is one search row of the filter form.
type Clause struct {
	SearchField string `json:"search_field"`
	Value       string `json:"value"`
	Operator    string `json:"operator"`
	Logic       string `json:"logic"`
}

// Active reports whether the clause targets a field.
func (c Clause) Active() bool {
	return c.SearchField != "" && c.SearchField != None
}

// Filter is the persisted per-user list state.
type Filter struct {
	Search          []Clause `json:"search"`
	SortBy          string   `json:"sortBy"`
	AscDesc         string   `json:"ascdesc"`
	ListFilterCount int      `json:"list_filter_count"`
	RecentFields    []string `json:"recent_fields"`
	Page            int      `json:"page"`
}

// Default is the state of a user who has never searched.
func Default() Filter {
	return Filter{
		Search:          []Clause{blankClause()},
		SortBy:          field.ColDateRecorded,
		AscDesc:         Desc,
		ListFilterCount: 1,
		Page:            1,
	}
}

func blankClause() Clause {
	return Clause{SearchField: None, Operator: OpLike, Logic: LogicAnd}
}

// Clauses returns the first ListFilterCount clauses.
func (f Filter) Clauses() []Clause {
	n := min(f.ListFilterCount, len(f.Search))
	if n < 0 {
		n = 0
	}
	return f.Search[:n]
}

// Searching reports whether any clause is active.
func (f Filter) Searching() bool {
	for _, c := range f.Clauses() {
		if c.Active() {
			return true
		}
	}
	return false
}

// isSearchable accepts a real column or a group slug.
func isSearchable(snap *field.Snapshot, name string) bool {
	if name == TextFieldsGroup || name == AllFieldsGroup {
		return true
	}
	fd, ok := snap.Field(name)
	return ok && fd.Writes() && fd.Kind() != field.KindPassword
}

// Validate returns a copy of f repaired against snap.
func (f Filter) Validate(snap *field.Snapshot, maxRecent int) Filter {
	out := f
	out.Search = make([]Clause, 0, len(f.Search))
	for _, c := range f.Search {
		c.Operator = normalizeOperator(c.Operator)
		c.Logic = strings.ToUpper(strings.TrimSpace(c.Logic))
		if c.Logic != LogicOr {
			c.Logic = LogicAnd
		}
		if !isSearchable(snap, c.SearchField) {
			c.SearchField = None
		}
		out.Search = append(out.Search, c)
	}
	if len(out.Search) == 0 {
		out.Search = []Clause{blankClause()}
	}
	out.ListFilterCount = max(1, min(out.ListFilterCount, len(out.Search)))

	sortable := false
	if fd, ok := snap.Field(out.SortBy); ok {
		sortable = slices.Contains(snap.Sortable(), fd)
	}
	if !sortable {
		out.SortBy = field.ColDateRecorded
	}
	out.AscDesc = strings.ToUpper(out.AscDesc)
	if out.AscDesc != Asc {
		out.AscDesc = Desc
	}

	if maxRecent <= 0 {
		maxRecent = DefaultRecentFields
	}
	recent := make([]string, 0, len(f.RecentFields))
	for _, name := range f.RecentFields {
		if isSearchable(snap, name) && !slices.Contains(recent, name) {
			recent = append(recent, name)
		}
	}
	if len(recent) > maxRecent {
		recent = recent[:maxRecent]
	}
	out.RecentFields = recent

	if out.Page < 1 {
		out.Page = 1
	}
	return out
}

func normalizeOperator(op string) string {
	op = strings.TrimSpace(op)
	if u := strings.ToUpper(op); u == OpLike || u == OpNotLike {
		return u
	}
	switch strings.ToLower(op) {
	case OpGT, ">", ">=":
		return OpGT
	case OpLT, "<":
		return OpLT
	}
	if op == "<>" {
		return OpNotEq
	}
	if slices.Contains(operators, op) {
		return op
	}
	return OpLike
}

// Clear resets searching and sorting.  Recent fields survive and the list
// returns to page 1.
func (f Filter) Clear() Filter {
	out := Default()
	out.RecentFields = slices.Clone(f.RecentFields)
	return out
}

// ToggleSort switches the sort column.  Choosing the active column flips the
// direction; a new column starts ascending.
func (f Filter) ToggleSort(col string) Filter {
	out := f
	if col == f.SortBy {
		if f.AscDesc == Asc {
			out.AscDesc = Desc
		} else {
			out.AscDesc = Asc
		}
		return out
	}
	out.SortBy = col
	out.AscDesc = Asc
	return out
}

// SetSearch replaces the clauses and returns to page 1.  Active search
// fields are pushed onto the recent list.
func (f Filter) SetSearch(clauses []Clause, maxRecent int) Filter {
	out := f
	out.Search = slices.Clone(clauses)
	out.ListFilterCount = len(clauses)
	out.Page = 1
	for _, c := range clauses {
		if c.Active() {
			out = out.AddRecentField(c.SearchField, maxRecent)
		}
	}
	return out
}

// AddRecentField moves name to the front of the recent list, keeping at
// most maxRecent entries.
func (f Filter) AddRecentField(name string, maxRecent int) Filter {
	if name == "" || name == None {
		return f
	}
	if maxRecent <= 0 {
		maxRecent = DefaultRecentFields
	}
	recent := make([]string, 0, len(f.RecentFields)+1)
	recent = append(recent, name)
	for _, r := range f.RecentFields {
		if r != name {
			recent = append(recent, r)
		}
	}
	if len(recent) > maxRecent {
		recent = recent[:maxRecent]
	}
	out := f
	out.RecentFields = recent
	return out
}
