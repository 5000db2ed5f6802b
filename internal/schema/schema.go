// internal/schema/schema.go
//
// Records table structure from the field model.
//
// Context
// -------
// Every writing field owns one column of the records table, typed by its
// element (see field.ElementType.SQLDatatype).  Utility elements such as
// headings and captchas never get a column.  When an admin adds a field or
// changes its element, the table has to follow.
//
// Workflow
// --------
//   •  CreateTable builds the table for a fresh install: the internal
//      bookkeeping columns first, then every writing field.
//   •  Plan reads INFORMATION_SCHEMA.COLUMNS and lists the ADD COLUMN and
//      MODIFY COLUMN statements that would bring the table in line.
//   •  Sync runs Plan and applies it.  Columns that no field claims are
//      left alone; dropping data is an explicit admin action elsewhere.
//
// Notes
// -----
// • Integer display widths ("bigint(20)") and the "unsigned" suffix are
//   ignored when comparing types.
// • Oxford commas, two spaces after periods.

package schema

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/yanizio/participants/internal/database"
	"github.com/yanizio/participants/internal/field"
)

// internalColumns are the fixed bookkeeping columns, in table order.
var internalColumns = []struct{ name, def string }{
	{field.ColID, "INT(6) UNSIGNED NOT NULL AUTO_INCREMENT"},
	{field.ColPrivateID, "VARCHAR(9) NULL"},
	{field.ColDateRecorded, "TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP"},
	{field.ColDateUpdated, "TIMESTAMP NULL DEFAULT NULL"},
	{field.ColLastAccessed, "TIMESTAMP NULL DEFAULT NULL"},
}

// Action is the kind of column change.
type Action string

const (
	Add    Action = "add"
	Modify Action = "modify"
)

// Change is one planned ALTER TABLE.
type Change struct {
	Column   string
	Action   Action
	Datatype string
	From     string // current COLUMN_TYPE for Modify
	SQL      string
}

// Manager keeps one records table in step with the field model.
type Manager struct {
	db    *sqlx.DB
	table string
	log   *zap.SugaredLogger
}

// New binds a manager to table.
func New(db *sqlx.DB, table string, log *zap.SugaredLogger) *Manager {
	if log == nil {
		log = zap.S()
	}
	return &Manager{db: db, table: table, log: log}
}

// CreateTableSQL renders the CREATE TABLE statement for snap.
func (m *Manager) CreateTableSQL(snap *field.Snapshot) (string, error) {
	if err := database.CheckIdent(m.table); err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS ")
	b.WriteString(database.QuoteIdent(m.table))
	b.WriteString(" (\n")
	for _, c := range internalColumns {
		fmt.Fprintf(&b, "  %s %s,\n", database.QuoteIdent(c.name), c.def)
	}
	for _, f := range snap.Writing() {
		if err := database.CheckIdent(f.Name); err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "  %s %s,\n", database.QuoteIdent(f.Name), f.Type().SQLDatatype())
	}
	b.WriteString("  PRIMARY KEY (`id`),\n")
	b.WriteString("  UNIQUE KEY `private_id` (`private_id`)\n")
	b.WriteString(") DEFAULT CHARSET=utf8mb4 AUTO_INCREMENT=1")
	return b.String(), nil
}

// CreateTable creates the records table when it does not exist.
func (m *Manager) CreateTable(ctx context.Context, snap *field.Snapshot) error {
	q, err := m.CreateTableSQL(snap)
	if err != nil {
		return err
	}
	if _, err := m.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("create %s: %w", m.table, err)
	}
	m.log.Infow("records table ready", "table", m.table)
	return nil
}

// Columns returns the table's current column types keyed by name.
func (m *Manager) Columns(ctx context.Context) (map[string]string, error) {
	const q = `SELECT COLUMN_NAME, COLUMN_TYPE
	             FROM INFORMATION_SCHEMA.COLUMNS
	            WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?`
	rows, err := m.db.QueryContext(ctx, q, m.table)
	if err != nil {
		return nil, fmt.Errorf("read columns of %s: %w", m.table, err)
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var name, typ string
		if err := rows.Scan(&name, &typ); err != nil {
			return nil, err
		}
		out[name] = typ
	}
	return out, rows.Err()
}

// Plan lists the changes Sync would apply, in field order.
func (m *Manager) Plan(ctx context.Context, snap *field.Snapshot) ([]Change, error) {
	current, err := m.Columns(ctx)
	if err != nil {
		return nil, err
	}
	if len(current) == 0 {
		return nil, fmt.Errorf("table %s has no columns; run CreateTable first", m.table)
	}

	table := database.QuoteIdent(m.table)
	var out []Change
	for _, f := range snap.Writing() {
		if err := database.CheckIdent(f.Name); err != nil {
			return nil, err
		}
		want := f.Type().SQLDatatype()
		col := database.QuoteIdent(f.Name)
		have, ok := current[f.Name]
		switch {
		case !ok:
			out = append(out, Change{
				Column: f.Name, Action: Add, Datatype: want,
				SQL: "ALTER TABLE " + table + " ADD COLUMN " + col + " " + want,
			})
		case !SameType(have, want):
			out = append(out, Change{
				Column: f.Name, Action: Modify, Datatype: want, From: have,
				SQL: "ALTER TABLE " + table + " MODIFY COLUMN " + col + " " + want,
			})
		}
	}
	return out, nil
}

// Sync applies Plan.  With dryRun it only reports.
func (m *Manager) Sync(ctx context.Context, snap *field.Snapshot, dryRun bool) ([]Change, error) {
	changes, err := m.Plan(ctx, snap)
	if err != nil || dryRun {
		return changes, err
	}
	for i, c := range changes {
		if _, err := m.db.ExecContext(ctx, c.SQL); err != nil {
			return changes[:i], fmt.Errorf("%s column %s: %w", c.Action, c.Column, err)
		}
		m.log.Infow("column synced", "table", m.table, "column", c.Column, "action", c.Action, "type", c.Datatype)
	}
	return changes, nil
}

var intWidthRe = regexp.MustCompile(`^(tinyint|smallint|mediumint|int|bigint)\(\d+\)`)

// baseType reduces a column definition to its comparable type.
func baseType(def string) string {
	t := strings.ToLower(strings.TrimSpace(def))
	if i := strings.IndexByte(t, ' '); i >= 0 {
		t = t[:i]
	}
	return intWidthRe.ReplaceAllString(t, "$1")
}

// SameType compares an INFORMATION_SCHEMA COLUMN_TYPE with a datatype
// definition.
func SameType(columnType, datatype string) bool {
	return baseType(columnType) == baseType(datatype)
}
