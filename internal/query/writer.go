package query

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/yanizio/participants/internal/column"
	"github.com/yanizio/participants/internal/field"
	"github.com/yanizio/participants/internal/logger"
	"github.com/yanizio/participants/internal/metrics"
	"github.com/yanizio/participants/internal/upload"
)

// maxQueryExcerpt bounds the statement text shown in error banners.
const maxQueryExcerpt = 120

// QueryError is a failed write.  Query holds a truncated statement with
// placeholders only, never bound values, so it is safe to show admins.
type QueryError struct {
	Action Action
	Query  string
	Err    error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s failed: %v [%s]", e.Action, e.Err, e.Query)
}

func (e *QueryError) Unwrap() error { return e.Err }

// Excerpt truncates q for display.
func Excerpt(q string) string {
	r := []rune(q)
	if len(r) <= maxQueryExcerpt {
		return q
	}
	return string(r[:maxQueryExcerpt]) + "…"
}

// ZeroRowsWarning is shown when a user update changed nothing.
const ZeroRowsWarning = "The record was not updated; the submitted values may match what is already stored."

// Outcome reports a successful write.
type Outcome struct {
	ID           int64
	PrivateID    string
	RowsAffected int64
	Warning      string
}

// execer is satisfied by *sqlx.DB and *sqlx.Tx.
type execer interface {
	ExecContext(ctx context.Context, q string, args ...any) (sql.Result, error)
}

// Writer executes statements.
type Writer struct {
	db      *sqlx.DB
	uploads upload.Remover
	log     *zap.SugaredLogger
}

// NewWriter binds a writer to db.  rm deletes replaced uploads.
func NewWriter(db *sqlx.DB, rm upload.Remover, log *zap.SugaredLogger) *Writer {
	if log == nil {
		log = zap.S()
	}
	return &Writer{db: db, uploads: rm, log: log}
}

// Exec runs st and applies its side effects.
func (w *Writer) Exec(ctx context.Context, st *Statement, mode column.Mode) (Outcome, error) {
	out, err := w.exec(ctx, w.db, st, mode)
	if err != nil {
		st.Files.Discard()
		return out, err
	}
	st.Files.Flush(w.uploads, logger.FromContext(ctx))
	return out, nil
}

func (w *Writer) exec(ctx context.Context, db execer, st *Statement, mode column.Mode) (Outcome, error) {
	log := logger.FromContext(ctx)
	action := st.Action.String()

	res, err := db.ExecContext(ctx, st.SQL, st.Args...)
	if err != nil {
		metrics.WriteQueriesTotal.WithLabelValues(action, "error").Inc()
		qe := &QueryError{Action: st.Action, Query: Excerpt(st.SQL), Err: err}
		log.Errorw("write query failed", "action", action, "query", qe.Query, "err", err)
		return Outcome{}, qe
	}

	out := Outcome{ID: st.RecordID, PrivateID: st.PrivateID}
	out.RowsAffected, _ = res.RowsAffected()
	if st.Action == Insert {
		if out.ID, err = res.LastInsertId(); err != nil {
			metrics.WriteQueriesTotal.WithLabelValues(action, "error").Inc()
			return Outcome{}, &QueryError{Action: st.Action, Query: Excerpt(st.SQL), Err: err}
		}
	}

	if out.RowsAffected == 0 && !mode.Import && !mode.FuncCall {
		out.Warning = ZeroRowsWarning
		metrics.WriteQueriesTotal.WithLabelValues(action, "warning").Inc()
		log.Warnw("write affected no rows", "action", action, "record_id", out.ID)
		return out, nil
	}
	metrics.WriteQueriesTotal.WithLabelValues(action, "ok").Inc()
	return out, nil
}

// ImportRow is one row of a bulk import.  A positive MatchID updates that
// record; otherwise the row is inserted.
type ImportRow struct {
	MatchID int64
	Values  map[string]column.Raw
	Stored  map[string]string
}

// ImportResult tallies an import.
type ImportResult struct {
	Inserted int
	Updated  int
	IDs      []int64
}

// Import writes rows in one transaction.  Computed fields are resolved per
// row by the builder, so they land in the same statements.  Any failure
// rolls back the whole import.
func (w *Writer) Import(ctx context.Context, b *Builder, snap *field.Snapshot, rows []ImportRow, actorMode column.Mode) (ImportResult, error) {
	mode := actorMode
	mode.Import = true

	tx, err := w.db.BeginTxx(ctx, nil)
	if err != nil {
		return ImportResult{}, fmt.Errorf("begin import: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var (
		res   ImportResult
		files []*upload.Pending
	)
	for i, r := range rows {
		sub := Submission{Action: Insert, Values: r.Values, Mode: mode}
		if r.MatchID > 0 {
			sub.Action, sub.RecordID = Update, r.MatchID
		}
		st, err := b.Build(ctx, snap, sub, r.Stored)
		if err != nil {
			return ImportResult{}, fmt.Errorf("import row %d: %w", i+1, err)
		}
		out, err := w.exec(ctx, tx, st, mode)
		if err != nil {
			return ImportResult{}, fmt.Errorf("import row %d: %w", i+1, err)
		}
		files = append(files, st.Files)
		res.IDs = append(res.IDs, out.ID)
		if st.Action == Insert {
			res.Inserted++
		} else {
			res.Updated++
		}
	}

	if err := tx.Commit(); err != nil {
		return ImportResult{}, fmt.Errorf("commit import: %w", err)
	}
	for _, f := range files {
		f.Flush(w.uploads, logger.FromContext(ctx))
	}
	logger.FromContext(ctx).Infow("import complete", "inserted", res.Inserted, "updated", res.Updated)
	return res, nil
}
