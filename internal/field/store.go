// internal/field/store.go
//
// SQL-backed definition Source.
//
// Context
// -------
// Field and group definitions live in two schema tables beside the
// records table:
//
//	{prefix}groups  (id, `order`, name, title, mode)
//	{prefix}fields  (id, `order`, name, title, `default`, `group`,
//	                 form_element, validation, `values`, attributes,
//	                 readonly, signup, sortable, CSV, persistent,
//	                 display_column, admin_column)
//
// `values` (options) and `attributes` are blobs.  Rows written by this
// engine hold JSON; rows carried over from older installs may hold a
// PHP-serialized array.  Both decode here, JSON through gjson so object
// key order (option order) survives.
//
// Notes
// -----
// • Oxford commas, two spaces after periods.

package field

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/elliotchance/phpserialize"
	"github.com/jmoiron/sqlx"
	"github.com/tidwall/gjson"
)

// SQLStore reads and writes definitions.
type SQLStore struct {
	db     *sqlx.DB
	fields string
	groups string
}

// NewSQLStore binds the store to prefix+"fields" and prefix+"groups".
func NewSQLStore(db *sqlx.DB, prefix string) *SQLStore {
	return &SQLStore{db: db, fields: prefix + "fields", groups: prefix + "groups"}
}

type fieldRow struct {
	ID            int64          `db:"id"`
	Order         int            `db:"order"`
	Name          string         `db:"name"`
	Title         string         `db:"title"`
	Default       sql.NullString `db:"default"`
	Group         string         `db:"group"`
	FormElement   string         `db:"form_element"`
	Validation    sql.NullString `db:"validation"`
	Values        sql.NullString `db:"values"`
	Attributes    sql.NullString `db:"attributes"`
	Readonly      bool           `db:"readonly"`
	Signup        bool           `db:"signup"`
	Sortable      bool           `db:"sortable"`
	CSV           bool           `db:"CSV"`
	Persistent    bool           `db:"persistent"`
	DisplayColumn int            `db:"display_column"`
	AdminColumn   int            `db:"admin_column"`
}

// LoadGroups returns every group in display order.
func (s *SQLStore) LoadGroups(ctx context.Context) ([]Group, error) {
	q := "SELECT `name`, `title`, `mode`, `order` FROM `" + s.groups + "` ORDER BY `order`, `id`"
	var out []Group
	if err := s.db.SelectContext(ctx, &out, q); err != nil {
		return nil, fmt.Errorf("load groups: %w", err)
	}
	return out, nil
}

// LoadFields returns every field in stored order.
func (s *SQLStore) LoadFields(ctx context.Context) ([]*Field, error) {
	q := "SELECT `id`, `order`, `name`, `title`, `default`, `group`, `form_element`, `validation`, " +
		"`values`, `attributes`, `readonly`, `signup`, `sortable`, `CSV`, `persistent`, " +
		"`display_column`, `admin_column` FROM `" + s.fields + "` ORDER BY `order`, `id`"

	var rows []fieldRow
	if err := s.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, fmt.Errorf("load fields: %w", err)
	}

	out := make([]*Field, 0, len(rows))
	for _, r := range rows {
		out = append(out, &Field{
			ID:            r.ID,
			Name:          r.Name,
			Title:         r.Title,
			Group:         r.Group,
			Order:         r.Order,
			FormElement:   Element(r.FormElement),
			Default:       r.Default.String,
			Validation:    r.Validation.String,
			Options:       DecodeOptions(r.Values.String),
			Attributes:    DecodeAttributes(r.Attributes.String),
			Readonly:      r.Readonly,
			Signup:        r.Signup,
			Sortable:      r.Sortable,
			CSV:           r.CSV,
			Persistent:    r.Persistent,
			DisplayColumn: r.DisplayColumn,
			AdminColumn:   r.AdminColumn,
		})
	}
	return out, nil
}

// SaveField updates the editable columns of an existing field.
func (s *SQLStore) SaveField(ctx context.Context, f *Field) error {
	opts, err := json.Marshal(f.Options)
	if err != nil {
		return err
	}
	attrs, err := json.Marshal(f.Attributes)
	if err != nil {
		return err
	}
	q := "UPDATE `" + s.fields + "` SET `title` = ?, `default` = ?, `group` = ?, `form_element` = ?, " +
		"`validation` = ?, `values` = ?, `attributes` = ?, `readonly` = ?, `signup` = ?, `sortable` = ?, " +
		"`CSV` = ?, `persistent` = ?, `display_column` = ?, `admin_column` = ? WHERE `name` = ?"
	res, err := s.db.ExecContext(ctx, q,
		f.Title, f.Default, f.Group, string(f.FormElement), f.Validation, string(opts), string(attrs),
		f.Readonly, f.Signup, f.Sortable, f.CSV, f.Persistent, f.DisplayColumn, f.AdminColumn, f.Name)
	if err != nil {
		return fmt.Errorf("save field %s: %w", f.Name, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// MySQL reports zero for an identical row; confirm the row exists.
		var one int
		err := s.db.GetContext(ctx, &one, "SELECT 1 FROM `"+s.fields+"` WHERE `name` = ?", f.Name)
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: %q", ErrUnknownField, f.Name)
		}
		return err
	}
	return nil
}

/*──────────────────────────── install ─────────────────────────────────────*/

// CreateTables creates the two definition tables when missing.
func (s *SQLStore) CreateTables(ctx context.Context) error {
	stmts := []string{
		"CREATE TABLE IF NOT EXISTS `" + s.groups + "` (\n" +
			"  `id` INT(3) NOT NULL AUTO_INCREMENT,\n" +
			"  `order` INT(3) NOT NULL DEFAULT 0,\n" +
			"  `name` VARCHAR(64) NOT NULL,\n" +
			"  `title` TINYTEXT NOT NULL,\n" +
			"  `mode` VARCHAR(16) NOT NULL DEFAULT 'public',\n" +
			"  PRIMARY KEY (`id`),\n" +
			"  UNIQUE KEY `name` (`name`)\n" +
			") DEFAULT CHARSET=utf8mb4",
		"CREATE TABLE IF NOT EXISTS `" + s.fields + "` (\n" +
			"  `id` INT(3) NOT NULL AUTO_INCREMENT,\n" +
			"  `order` INT(3) NOT NULL DEFAULT 0,\n" +
			"  `name` VARCHAR(64) NOT NULL,\n" +
			"  `title` TINYTEXT NOT NULL,\n" +
			"  `default` TINYTEXT NULL,\n" +
			"  `group` VARCHAR(64) NOT NULL,\n" +
			"  `form_element` TINYTEXT NOT NULL,\n" +
			"  `validation` TINYTEXT NULL,\n" +
			"  `values` LONGTEXT NULL,\n" +
			"  `attributes` TEXT NULL,\n" +
			"  `readonly` BOOLEAN NOT NULL DEFAULT 0,\n" +
			"  `signup` BOOLEAN NOT NULL DEFAULT 0,\n" +
			"  `sortable` BOOLEAN NOT NULL DEFAULT 0,\n" +
			"  `CSV` BOOLEAN NOT NULL DEFAULT 0,\n" +
			"  `persistent` BOOLEAN NOT NULL DEFAULT 0,\n" +
			"  `display_column` INT(3) NOT NULL DEFAULT 0,\n" +
			"  `admin_column` INT(3) NOT NULL DEFAULT 0,\n" +
			"  PRIMARY KEY (`id`),\n" +
			"  UNIQUE KEY `name` (`name`)\n" +
			") DEFAULT CHARSET=utf8mb4",
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create definition tables: %w", err)
		}
	}
	return nil
}

// Seed inserts groups and fields, replacing rows with the same name.
// Each field is validated first; the first invalid one aborts the seed.
func (s *SQLStore) Seed(ctx context.Context, groups []Group, fields []*Field) error {
	for _, f := range fields {
		if err := Validate(f); err != nil {
			return err
		}
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	gq := "INSERT INTO `" + s.groups + "` (`order`, `name`, `title`, `mode`) VALUES (?, ?, ?, ?) " +
		"ON DUPLICATE KEY UPDATE `order` = VALUES(`order`), `title` = VALUES(`title`), `mode` = VALUES(`mode`)"
	for _, g := range groups {
		if _, err := tx.ExecContext(ctx, gq, g.Order, g.Name, g.Title, g.Mode); err != nil {
			return fmt.Errorf("seed group %s: %w", g.Name, err)
		}
	}

	fq := "INSERT INTO `" + s.fields + "` (`order`, `name`, `title`, `default`, `group`, `form_element`, " +
		"`validation`, `values`, `attributes`, `readonly`, `signup`, `sortable`, `CSV`, `persistent`, " +
		"`display_column`, `admin_column`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) " +
		"ON DUPLICATE KEY UPDATE `order` = VALUES(`order`), `title` = VALUES(`title`), " +
		"`default` = VALUES(`default`), `group` = VALUES(`group`), `form_element` = VALUES(`form_element`), " +
		"`validation` = VALUES(`validation`), `values` = VALUES(`values`), `attributes` = VALUES(`attributes`)"
	for _, f := range fields {
		opts, err := json.Marshal(f.Options)
		if err != nil {
			return err
		}
		attrs, err := json.Marshal(f.Attributes)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, fq, f.Order, f.Name, f.Title, f.Default, f.Group,
			string(f.FormElement), f.Validation, string(opts), string(attrs), f.Readonly, f.Signup,
			f.Sortable, f.CSV, f.Persistent, f.DisplayColumn, f.AdminColumn); err != nil {
			return fmt.Errorf("seed field %s: %w", f.Name, err)
		}
	}
	return tx.Commit()
}

/*──────────────────────────── blob decoding ───────────────────────────────*/

// DecodeOptions accepts a JSON array of {title,value} objects, a JSON array
// of strings, a JSON object of title → value, or a PHP-serialized array.
func DecodeOptions(raw string) []Option {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if gjson.Valid(raw) {
		res := gjson.Parse(raw)
		var out []Option
		switch {
		case res.IsArray():
			res.ForEach(func(_, v gjson.Result) bool {
				if v.IsObject() {
					out = append(out, Option{Title: v.Get("title").String(), Value: v.Get("value").String()})
				} else {
					out = append(out, Option{Title: v.String(), Value: v.String()})
				}
				return true
			})
		case res.IsObject():
			res.ForEach(func(k, v gjson.Result) bool {
				out = append(out, Option{Title: k.String(), Value: v.String()})
				return true
			})
		}
		return out
	}
	m := decodePHP(raw)
	out := make([]Option, 0, len(m))
	for _, kv := range m {
		title := kv[0]
		if isIndex(title) {
			title = kv[1]
		}
		out = append(out, Option{Title: title, Value: kv[1]})
	}
	return out
}

// DecodeAttributes accepts a JSON object or a PHP-serialized array.
func DecodeAttributes(raw string) map[string]string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	out := map[string]string{}
	if gjson.Valid(raw) {
		gjson.Parse(raw).ForEach(func(k, v gjson.Result) bool {
			out[k.String()] = v.String()
			return true
		})
		return out
	}
	for _, kv := range decodePHP(raw) {
		out[kv[0]] = kv[1]
	}
	return out
}

// decodePHP returns ordered key/value pairs of a serialized PHP array.
// Numeric keys sort first in index order.
func decodePHP(raw string) [][2]string {
	m, err := phpserialize.UnmarshalAssociativeArray([]byte(raw))
	if err != nil {
		return nil
	}
	out := make([][2]string, 0, len(m))
	for k, v := range m {
		out = append(out, [2]string{fmt.Sprint(k), fmt.Sprint(v)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		ii, jj := isIndex(out[i][0]), isIndex(out[j][0])
		if ii && jj {
			return len(out[i][0]) < len(out[j][0]) || (len(out[i][0]) == len(out[j][0]) && out[i][0] < out[j][0])
		}
		if ii != jj {
			return ii
		}
		return out[i][0] < out[j][0]
	})
	return out
}

func isIndex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
