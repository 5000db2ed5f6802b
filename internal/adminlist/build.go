// internal/adminlist/build.go
//
// Filter state → SELECT statement.
//
// Context
// -------
// Clauses are applied strictly in filter order.  Consecutive OR-logic
// clauses collect into one parenthesized group; the group, and every
// AND-logic clause, joins the rest of the WHERE with AND.  So
//
//	[{a OR} {b OR} {c AND}]  →  (a OR b) AND c
//
// Operator mapping
// ----------------
//   gt        →  >=   (on or after; not strict)
//   lt        →  <
//   =         →  =, or LIKE when the value carries a wildcard
//   !=        →  <>, or NOT LIKE with a wildcard
//   LIKE      →  LIKE, wrapped in %…% when the user gave no wildcard
//   NOT LIKE  →  NOT LIKE, same wrapping
//
// User wildcards are * and ?; they become % and _ before dispatch.  An
// empty value (or "null") tests for NULL and, on text columns, for the
// empty string too, since older rows store "" instead of NULL.
//
// Type branches
// -------------
// • timestamp: "X to Y" ranges and single dates compare the column's
//   calendar date in the site time zone.
// • date: integer unix columns compare against UTC day bounds through
//   CAST(… AS SIGNED), with no zone shift.
// • value sets: an option title is mapped back to its stored value.
// • multi-value: matched inside the serialized list by quoted value.
//
// Notes
// -----
// • Every value is bound; only checked identifiers are interpolated.
// • Oxford commas, two spaces after periods.

package adminlist

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/yanizio/participants/internal/database"
	"github.com/yanizio/participants/internal/field"
	"github.com/yanizio/participants/internal/locale"
)

// ErrInvalidSort is returned for a sort column that validation should
// already have replaced.
var ErrInvalidSort = errors.New("adminlist: invalid sort column")

// Query is a built list query.  Where has no WHERE keyword and is empty
// when no clause applied.
type Query struct {
	Table   string
	Where   string
	Args    []any
	OrderBy string
}

func (q Query) where() string {
	if q.Where == "" {
		return ""
	}
	return " WHERE " + q.Where
}

// Select renders the page query.  A limit of 0 returns every row.
func (q Query) Select(limit, offset int) (string, []any) {
	s := "SELECT * FROM " + database.QuoteIdent(q.Table) + q.where() + " " + q.OrderBy
	args := append([]any(nil), q.Args...)
	if limit > 0 {
		s += " LIMIT ? OFFSET ?"
		args = append(args, limit, offset)
	}
	return s, args
}

// Count renders the matching row count query.
func (q Query) Count() (string, []any) {
	return "SELECT COUNT(*) FROM " + database.QuoteIdent(q.Table) + q.where(), append([]any(nil), q.Args...)
}

// Builder turns filters into queries for one table.
type Builder struct {
	Table  string
	Locale *locale.Formatter
}

func (b *Builder) loc() *time.Location {
	if b.Locale == nil {
		return locale.Default().Location()
	}
	return b.Locale.Location()
}

// Build assembles the WHERE and ORDER BY for f.  f should have passed
// Validate.
func (b *Builder) Build(snap *field.Snapshot, f Filter) (Query, error) {
	if err := database.CheckIdent(f.SortBy); err != nil {
		return Query{}, fmt.Errorf("%w: %q", ErrInvalidSort, f.SortBy)
	}
	dir := Desc
	if f.AscDesc == Asc {
		dir = Asc
	}
	q := Query{Table: b.Table, OrderBy: "ORDER BY " + database.QuoteIdent(f.SortBy) + " " + dir}

	var terms, group []string
	flush := func() {
		switch len(group) {
		case 0:
		case 1:
			terms = append(terms, group[0])
		default:
			terms = append(terms, "("+strings.Join(group, " OR ")+")")
		}
		group = nil
	}
	for _, c := range f.Clauses() {
		if !c.Active() {
			continue
		}
		t, ok := resolveTarget(snap, c.SearchField)
		if !ok {
			continue
		}
		sql, args, ok := b.clause(t, c)
		if !ok {
			continue
		}
		if c.Logic == LogicOr {
			group = append(group, sql)
		} else {
			flush()
			terms = append(terms, sql)
		}
		q.Args = append(q.Args, args...)
	}
	flush()
	q.Where = strings.Join(terms, " AND ")
	return q, nil
}

// target is the SQL expression a clause compares against.
type target struct {
	expr string
	fd   *field.Field // nil for group slugs
	kind field.Kind
}

func resolveTarget(snap *field.Snapshot, name string) (target, bool) {
	var fields []*field.Field
	switch name {
	case TextFieldsGroup:
		fields = snap.TextFields()
	case AllFieldsGroup:
		fields = snap.DataFields()
	default:
		fd, ok := snap.Field(name)
		if !ok || !fd.Writes() || database.CheckIdent(fd.Name) != nil {
			return target{}, false
		}
		return target{expr: database.QuoteIdent(fd.Name), fd: fd, kind: fd.Kind()}, true
	}
	cols := make([]string, 0, len(fields))
	for _, fd := range fields {
		if database.CheckIdent(fd.Name) == nil {
			cols = append(cols, database.QuoteIdent(fd.Name))
		}
	}
	if len(cols) == 0 {
		return target{}, false
	}
	return target{expr: "CONCAT_WS(' ', " + strings.Join(cols, ", ") + ")", kind: field.KindText}, true
}

var wildcards = strings.NewReplacer("*", "%", "?", "_")

// Wildcards translates user wildcards to SQL ones.
func Wildcards(s string) string { return wildcards.Replace(s) }

func (b *Builder) clause(t target, c Clause) (string, []any, bool) {
	raw := strings.TrimSpace(c.Value)
	if raw == "" || strings.EqualFold(raw, "null") {
		return emptyClause(t, c.Operator)
	}
	wild := strings.ContainsAny(raw, "*?%")
	val := Wildcards(raw)
	if t.fd != nil && t.fd.IsValueSet() && !wild {
		if v, ok := t.fd.OptionValue(raw); ok {
			val = v
		}
	}

	switch t.kind {
	case field.KindTimestamp:
		if s, args, ok := b.timestampClause(t, c.Operator, raw); ok {
			return s, args, true
		}
	case field.KindDate:
		if s, args, ok := dateClause(t, c.Operator, raw); ok {
			return s, args, true
		}
	case field.KindMulti:
		return multiClause(t, c.Operator, val, wild)
	}

	switch c.Operator {
	case OpGT:
		return t.expr + " >= ?", []any{val}, true
	case OpLT:
		return t.expr + " < ?", []any{val}, true
	case OpEqual:
		if wild {
			return t.expr + " LIKE ?", []any{val}, true
		}
		return t.expr + " = ?", []any{val}, true
	case OpNotEq:
		if wild {
			return t.expr + " NOT LIKE ?", []any{val}, true
		}
		return t.expr + " <> ?", []any{val}, true
	case OpNotLike:
		return t.expr + " NOT LIKE ?", []any{likePattern(val, wild)}, true
	default:
		return t.expr + " LIKE ?", []any{likePattern(val, wild)}, true
	}
}

func likePattern(v string, wild bool) string {
	if wild {
		return v
	}
	return "%" + v + "%"
}

func emptyClause(t target, op string) (string, []any, bool) {
	blankable := t.kind != field.KindNumeric && t.kind != field.KindDate && t.kind != field.KindTimestamp
	switch op {
	case OpGT, OpLT:
		return "", nil, false
	case OpNotEq, OpNotLike:
		if blankable {
			return "(" + t.expr + " IS NOT NULL AND " + t.expr + " <> '')", nil, true
		}
		return t.expr + " IS NOT NULL", nil, true
	default:
		if blankable {
			return "(" + t.expr + " IS NULL OR " + t.expr + " = '')", nil, true
		}
		return t.expr + " IS NULL", nil, true
	}
}

func multiClause(t target, op, val string, wild bool) (string, []any, bool) {
	pattern := "%\"" + val + "\"%"
	if wild {
		pattern = "%" + val + "%"
	}
	switch op {
	case OpNotEq, OpNotLike:
		return t.expr + " NOT LIKE ?", []any{pattern}, true
	default:
		return t.expr + " LIKE ?", []any{pattern}, true
	}
}

var rangeRe = regexp.MustCompile(`(?i)^(.+?)\s+to\s+(.+)$`)

// splitRange splits "X to Y".  hi is empty for a single value.
func splitRange(s string) (lo, hi string) {
	if m := rangeRe.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
	}
	return s, ""
}

func (b *Builder) timestampClause(t target, op, raw string) (string, []any, bool) {
	loc := b.loc()
	lo, hi := splitRange(raw)
	from, err := dateparse.ParseIn(lo, loc)
	if err != nil {
		return "", nil, false
	}
	expr := "DATE(CONVERT_TZ(" + t.expr + ", '+00:00', ?))"
	offset := utcOffset(from.In(loc))
	day := from.Format(time.DateOnly)

	if hi != "" {
		to, err := dateparse.ParseIn(hi, loc)
		if err != nil {
			return "", nil, false
		}
		return expr + " BETWEEN ? AND ?", []any{offset, day, to.Format(time.DateOnly)}, true
	}
	switch op {
	case OpGT:
		return expr + " >= ?", []any{offset, day}, true
	case OpLT:
		return expr + " < ?", []any{offset, day}, true
	case OpNotEq, OpNotLike:
		return expr + " <> ?", []any{offset, day}, true
	default:
		return expr + " = ?", []any{offset, day}, true
	}
}

func utcOffset(t time.Time) string {
	_, secs := t.Zone()
	sign := '+'
	if secs < 0 {
		sign, secs = '-', -secs
	}
	return fmt.Sprintf("%c%02d:%02d", sign, secs/3600, secs%3600/60)
}

func dateClause(t target, op, raw string) (string, []any, bool) {
	lo, hi := splitRange(raw)
	from, err := dateparse.ParseIn(lo, time.UTC)
	if err != nil {
		return "", nil, false
	}
	start := dayStart(from)
	expr := "CAST(" + t.expr + " AS SIGNED)"

	if hi != "" {
		to, err := dateparse.ParseIn(hi, time.UTC)
		if err != nil {
			return "", nil, false
		}
		return expr + " BETWEEN ? AND ?", []any{start, dayStart(to) + 86399}, true
	}
	switch op {
	case OpGT:
		return expr + " >= ?", []any{start}, true
	case OpLT:
		return expr + " < ?", []any{start}, true
	case OpNotEq, OpNotLike:
		return expr + " NOT BETWEEN ? AND ?", []any{start, start + 86399}, true
	default:
		return expr + " BETWEEN ? AND ?", []any{start, start + 86399}, true
	}
}

func dayStart(t time.Time) int64 {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix()
}
