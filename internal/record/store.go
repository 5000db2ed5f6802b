// internal/record/store.go
//
// Participant record persistence.
//
// Context
// -------
// Every record is one row of the main table ({prefix}participants_database
// by default).  The write query builder owns INSERT and UPDATE of whole
// submissions; this store covers everything else the engine needs: row
// reads for dependency resolution, id listing for bulk recompute, the
// single-column idempotent update used by background packets, private-id
// lookups, bulk delete, and the last_accessed touch.
//
// Values come back as strings keyed by column.  SQL NULL columns are left
// out of the map, so a missing key and a NULL column read the same to the
// calculation engine.
//
// Notes
// -----
// • Column names are checked with database.CheckIdent before they reach
//   SQL; values are always bound.
// • Oxford commas, two spaces after periods.

package record

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/yanizio/participants/internal/database"
	"github.com/yanizio/participants/internal/upload"
)

// DefaultTable is the unprefixed main table name.
const DefaultTable = "participants_database"

// ErrNotFound is returned when no row has the requested id.
var ErrNotFound = errors.New("record: not found")

// Store reads and patches rows of the main table.
type Store struct {
	db    *sqlx.DB
	table string
	log   *zap.SugaredLogger
}

// NewStore binds a store to table.
func NewStore(db *sqlx.DB, table string, log *zap.SugaredLogger) *Store {
	if log == nil {
		log = zap.S()
	}
	return &Store{db: db, table: table, log: log}
}

// Table is the quoted table name.
func (s *Store) Table() string { return database.QuoteIdent(s.table) }

// DB exposes the handle for the query writer.
func (s *Store) DB() *sqlx.DB { return s.db }

// Get returns every non-NULL column of one row.
func (s *Store) Get(ctx context.Context, id int64) (map[string]string, error) {
	q := "SELECT * FROM " + s.Table() + " WHERE `id` = ? LIMIT 1"
	row := map[string]any{}
	if err := s.db.QueryRowxContext(ctx, q, id).MapScan(row); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get record %d: %w", id, err)
	}
	return Stringify(row), nil
}

// Values returns the named columns of one row.  Unknown identifiers are
// rejected before the query runs.
func (s *Store) Values(ctx context.Context, id int64, cols []string) (map[string]string, error) {
	if len(cols) == 0 {
		return map[string]string{}, nil
	}
	quoted := make([]string, len(cols))
	for i, c := range cols {
		if err := database.CheckIdent(c); err != nil {
			return nil, err
		}
		quoted[i] = database.QuoteIdent(c)
	}
	q := "SELECT " + strings.Join(quoted, ", ") + " FROM " + s.Table() + " WHERE `id` = ? LIMIT 1"
	row := map[string]any{}
	if err := s.db.QueryRowxContext(ctx, q, id).MapScan(row); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("record %d values: %w", id, err)
	}
	return Stringify(row), nil
}

// IDs lists every record id in ascending order.
func (s *Store) IDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	if err := s.db.SelectContext(ctx, &ids, "SELECT `id` FROM "+s.Table()+" ORDER BY `id`"); err != nil {
		return nil, fmt.Errorf("list record ids: %w", err)
	}
	return ids, nil
}

// UpdateColumn writes one column only when it differs from the stored
// value, so repeated calls with the same value are no-ops.  changed is
// false when nothing was written.  A nil value stores NULL.
func (s *Store) UpdateColumn(ctx context.Context, id int64, col string, value *string) (bool, error) {
	if err := database.CheckIdent(col); err != nil {
		return false, err
	}
	c := database.QuoteIdent(col)
	q := "UPDATE " + s.Table() + " SET " + c + " = ? WHERE `id` = ? AND NOT (" + c + " <=> ?)"

	var v any
	if value != nil {
		v = *value
	}
	res, err := s.db.ExecContext(ctx, q, v, id, v)
	if err != nil {
		return false, fmt.Errorf("update %s on record %d: %w", col, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// PrivateIDExists reports whether any row already uses pid.
func (s *Store) PrivateIDExists(ctx context.Context, pid string) (bool, error) {
	var n int
	q := "SELECT COUNT(*) FROM " + s.Table() + " WHERE `private_id` = ?"
	if err := s.db.GetContext(ctx, &n, q, pid); err != nil {
		return false, fmt.Errorf("private id lookup: %w", err)
	}
	return n > 0, nil
}

// ByPrivateID resolves a private id to a record id.
func (s *Store) ByPrivateID(ctx context.Context, pid string) (int64, error) {
	var id int64
	q := "SELECT `id` FROM " + s.Table() + " WHERE `private_id` = ? LIMIT 1"
	if err := s.db.GetContext(ctx, &id, q, pid); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("private id lookup: %w", err)
	}
	return id, nil
}

// Touch stamps last_accessed.
func (s *Store) Touch(ctx context.Context, id int64, now time.Time) error {
	q := "UPDATE " + s.Table() + " SET `last_accessed` = ? WHERE `id` = ?"
	if _, err := s.db.ExecContext(ctx, q, now.UTC().Format(time.DateTime), id); err != nil {
		return fmt.Errorf("touch record %d: %w", id, err)
	}
	return nil
}

// Delete removes rows by id.  Filenames found in fileCols are removed
// through rm after the rows are gone; rm applies the delete preference.
func (s *Store) Delete(ctx context.Context, ids []int64, fileCols []string, rm upload.Remover) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	var files upload.Pending
	if len(fileCols) > 0 && rm != nil {
		quoted := make([]string, len(fileCols))
		for i, c := range fileCols {
			if err := database.CheckIdent(c); err != nil {
				return 0, err
			}
			quoted[i] = database.QuoteIdent(c)
		}
		q, args, err := sqlx.In("SELECT "+strings.Join(quoted, ", ")+" FROM "+s.Table()+" WHERE `id` IN (?)", ids)
		if err != nil {
			return 0, err
		}
		rows, err := s.db.QueryxContext(ctx, s.db.Rebind(q), args...)
		if err != nil {
			return 0, fmt.Errorf("collect uploaded files: %w", err)
		}
		for rows.Next() {
			vals, err := rows.SliceScan()
			if err != nil {
				rows.Close()
				return 0, err
			}
			for _, v := range vals {
				files.Schedule(toString(v))
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return 0, err
		}
	}

	q, args, err := sqlx.In("DELETE FROM "+s.Table()+" WHERE `id` IN (?)", ids)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, s.db.Rebind(q), args...)
	if err != nil {
		files.Discard()
		return 0, fmt.Errorf("delete records: %w", err)
	}
	n, _ := res.RowsAffected()
	files.Flush(rm, s.log)
	s.log.Infow("records deleted", "count", n)
	return n, nil
}

// Stringify flattens a scanned row, dropping NULL columns.
func Stringify(row map[string]any) map[string]string {
	out := make(map[string]string, len(row))
	for k, v := range row {
		if v == nil {
			continue
		}
		out[k] = toString(v)
	}
	return out
}

func toString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(t)
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		if t {
			return "1"
		}
		return "0"
	case time.Time:
		return t.Format(time.DateTime)
	}
	return fmt.Sprint(v)
}
