// Package database centralises sqlx connection helpers.  The default driver
// is go-sql-driver/mysql, which also works with MariaDB when configured for
// the MySQL wire protocol.
//
// Public entry points:
//
//	Open(dsn)                     – quick helper with conservative pool sizes.
//	OpenWithOptions(ctx, dsn, o)  – fine-grained control plus start-up retries.
//	QuoteIdent(name)              – backtick-quote a validated identifier.
//
// Both open helpers Ping the database before returning so callers can fail
// fast during bootstrap.  Callers should Close() the returned *sqlx.DB when
// no longer needed.
package database

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// Options tunes the pool.  Zero values fall back to the Open defaults.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	Retries         int
	RetryBackoff    time.Duration
}

// ErrBadIdentifier is returned by CheckIdent for names that are not safe
// to splice into SQL.
var ErrBadIdentifier = errors.New("database: invalid identifier")

// Open returns a *sqlx.DB with sane defaults: 15 max open, 5 idle, and a
// 30-minute connection lifetime.
func Open(dsn string) (*sqlx.DB, error) {
	return OpenWithOptions(context.Background(), dsn, Options{})
}

// OpenWithOptions lets callers tune the pool.  Ping is retried Retries
// times so the binary tolerates a database container that is still
// starting.
func OpenWithOptions(ctx context.Context, dsn string, o Options) (*sqlx.DB, error) {
	if o.MaxOpenConns == 0 {
		o.MaxOpenConns = 15
	}
	if o.MaxIdleConns == 0 {
		o.MaxIdleConns = 5
	}
	if o.ConnMaxLifetime == 0 {
		o.ConnMaxLifetime = 30 * time.Minute
	}
	if o.RetryBackoff == 0 {
		o.RetryBackoff = 2 * time.Second
	}

	db, err := sqlx.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(o.MaxOpenConns)
	db.SetMaxIdleConns(o.MaxIdleConns)
	db.SetConnMaxLifetime(o.ConnMaxLifetime)

	for attempt := 0; ; attempt++ {
		err = db.PingContext(ctx)
		if err == nil {
			return db, nil
		}
		if attempt >= o.Retries {
			break
		}
		zap.S().Warnw("database ping failed, retrying", "attempt", attempt+1, "err", err)
		select {
		case <-ctx.Done():
			db.Close()
			return nil, ctx.Err()
		case <-time.After(o.RetryBackoff):
		}
	}
	db.Close()
	return nil, fmt.Errorf("database ping: %w", err)
}

/*──────────────────────────── identifiers ─────────────────────────────────*/

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,63}$`)

// CheckIdent reports ErrBadIdentifier when name is not a plain column or
// table identifier.
func CheckIdent(name string) error {
	if !identRe.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrBadIdentifier, name)
	}
	return nil
}

// QuoteIdent wraps a column or table name in backticks.  Callers must have
// run CheckIdent (or an equivalent registry lookup) first; embedded
// backticks are doubled regardless.
func QuoteIdent(name string) string {
	out := make([]byte, 0, len(name)+2)
	out = append(out, '`')
	for i := 0; i < len(name); i++ {
		if name[i] == '`' {
			out = append(out, '`')
		}
		out = append(out, name[i])
	}
	return string(append(out, '`'))
}

/*──────────────────────────── error helpers ───────────────────────────────*/

// MySQL server error numbers used by callers.
const (
	erNoSuchTable  = 1146
	erDupEntry     = 1062
	erBadFieldName = 1054
)

func mysqlNumber(err error) uint16 {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number
	}
	return 0
}

// IsUnknownTable reports a missing table (fresh install).
func IsUnknownTable(err error) bool { return mysqlNumber(err) == erNoSuchTable }

// IsDuplicate reports a unique-key violation.
func IsDuplicate(err error) bool { return mysqlNumber(err) == erDupEntry }

// IsUnknownColumn reports a column that the table does not carry.
func IsUnknownColumn(err error) bool { return mysqlNumber(err) == erBadFieldName }
