// internal/query/builder.go
//
// Main write query builder.
//
// Context
// -------
// A submission (form post, import row, API call, or internal function
// call) becomes exactly one INSERT or UPDATE against the records table.
// Build walks the writing fields in definition order (group order, then
// field order), normalizes each submitted value, backfills defaults on
// insert, resolves computed fields against the merged row, and stamps the
// internal timestamp columns.
//
// Workflow
// --------
//   1.  Explicit values.  column.Normalizer decides value, NULL, or skip.
//   2.  Defaults.  On insert, absent non-computed fields with a default
//       are filled after the explicit values are known.
//   3.  Computed fields.  The resolver runs once against the merged row.
//   4.  Bookkeeping.  private_id and date_recorded on insert;
//       date_updated on both, unless a valid explicit timestamp came in
//       through an import or function call.
//
// Notes
// -----
// • Every value is bound.  A nil column value binds SQL NULL.
// • Oxford commas, two spaces after periods.

package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yanizio/participants/internal/column"
	"github.com/yanizio/participants/internal/database"
	"github.com/yanizio/participants/internal/dynamic"
	"github.com/yanizio/participants/internal/field"
	"github.com/yanizio/participants/internal/upload"
)

// Action discriminates the statement kind.
type Action int

const (
	Insert Action = iota
	Update
)

func (a Action) String() string {
	if a == Update {
		return "update"
	}
	return "insert"
}

// ErrNoRecord is returned for an update without a record id.
var ErrNoRecord = errors.New("query: update needs a record id")

// Submission is one write request.
type Submission struct {
	Action   Action
	RecordID int64
	Values   map[string]column.Raw
	Mode     column.Mode
}

// Statement is a built, bound query.
type Statement struct {
	Action    Action
	RecordID  int64
	SQL       string
	Args      []any
	Columns   []column.Value // in clause order
	PrivateID string
	Files     *upload.Pending
}

// Column finds a clause by name.
func (s *Statement) Column(name string) (column.Value, bool) {
	for _, c := range s.Columns {
		if c.Column == name {
			return c, true
		}
	}
	return column.Value{}, false
}

// Builder assembles statements for one table.
type Builder struct {
	Table      string
	Normalizer *column.Normalizer
	Resolver   *dynamic.Resolver // nil skips computed fields
	PIDs       *PIDGenerator
	Now        func() time.Time
}

func (b *Builder) now() time.Time {
	if b.Now != nil {
		return b.Now().UTC()
	}
	return time.Now().UTC()
}

// Build turns sub into a statement.  stored is the current row on update
// (nil on insert).
func (b *Builder) Build(ctx context.Context, snap *field.Snapshot, sub Submission, stored map[string]string) (*Statement, error) {
	if sub.Action == Update && sub.RecordID <= 0 {
		return nil, ErrNoRecord
	}
	st := &Statement{Action: sub.Action, RecordID: sub.RecordID, Files: &upload.Pending{}}

	merged := make(map[string]string, len(stored)+len(sub.Values))
	for k, v := range stored {
		merged[k] = v
	}

	fill := sub.Mode
	fill.FuncCall = true

	for _, f := range snap.Writing() {
		if f.IsDynamic() {
			continue
		}
		raw := sub.Values[f.Name]
		mode := sub.Mode
		if !raw.Present && !raw.Delete && sub.Action == Insert && f.Default != "" {
			raw, mode = column.String(f.Default), fill
		}
		v := b.Normalizer.Normalize(f, raw, stored[f.Name], mode, st.Files)
		if v.Skip && sub.Action == Insert && f.Default != "" && column.ReadonlyBlocked(f, mode) {
			v = b.Normalizer.Normalize(f, column.String(f.Default), "", fill, st.Files)
		}
		if v.Skip {
			continue
		}
		st.Columns = append(st.Columns, v)
		if v.Val != nil {
			merged[f.Name] = *v.Val
		} else {
			delete(merged, f.Name)
		}
	}

	if b.Resolver != nil {
		computed := b.Resolver.ComputeRow(ctx, snap, merged)
		for _, f := range snap.Dynamic() {
			v, ok := computed[f.Name]
			if !ok {
				continue
			}
			st.Columns = append(st.Columns, column.Value{Column: f.Name, Val: v.Column(f)})
		}
	}

	now := b.now().Format(time.DateTime)
	switch sub.Action {
	case Insert:
		if b.PIDs != nil {
			pid, err := b.PIDs.Generate(ctx)
			if err != nil {
				return nil, err
			}
			st.PrivateID = pid
			st.Columns = append(st.Columns, strCol(field.ColPrivateID, pid))
		}
		st.Columns = append(st.Columns,
			strCol(field.ColDateRecorded, explicitTime(sub, field.ColDateRecorded, now)),
			strCol(field.ColDateUpdated, explicitTime(sub, field.ColDateUpdated, now)))
	case Update:
		st.Columns = append(st.Columns, strCol(field.ColDateUpdated, explicitTime(sub, field.ColDateUpdated, now)))
	}

	st.SQL, st.Args = render(b.Table, sub.Action, sub.RecordID, st.Columns)
	return st, nil
}

func strCol(name, v string) column.Value { return column.Value{Column: name, Val: &v} }

// explicitTime keeps a supplied timestamp when the submission is an
// import or function call and the value parses; otherwise it returns now.
func explicitTime(sub Submission, col, now string) string {
	if !sub.Mode.Import && !sub.Mode.FuncCall {
		return now
	}
	raw, ok := sub.Values[col]
	if !ok || !raw.Present {
		return now
	}
	s := strings.TrimSpace(raw.Str)
	for _, layout := range []string{time.DateTime, "2006-01-02T15:04:05Z07:00", time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Format(time.DateTime)
		}
	}
	return now
}

func render(table string, a Action, id int64, cols []column.Value) (string, []any) {
	args := make([]any, 0, len(cols)+1)
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = database.QuoteIdent(c.Column)
		if c.Val == nil {
			args = append(args, nil)
		} else {
			args = append(args, *c.Val)
		}
	}

	var sb strings.Builder
	switch a {
	case Insert:
		sb.WriteString("INSERT INTO ")
		sb.WriteString(database.QuoteIdent(table))
		sb.WriteString(" (")
		sb.WriteString(strings.Join(names, ", "))
		sb.WriteString(") VALUES (")
		sb.WriteString(strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", "))
		sb.WriteString(")")
	case Update:
		sb.WriteString("UPDATE ")
		sb.WriteString(database.QuoteIdent(table))
		sb.WriteString(" SET ")
		for i, n := range names {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(n)
			sb.WriteString(" = ?")
		}
		sb.WriteString(" WHERE `id` = ?")
		args = append(args, id)
	default:
		panic(fmt.Sprintf("query: unknown action %d", a))
	}
	return sb.String(), args
}
