// internal/acl/schema.go
//
// Role tables and their install-time defaults.
//
// Context
// -------
// The capability ladder in internal/auth decides which route groups a
// caller reaches.  Finer grants, such as letting editors delete records or
// edit field definitions, live in role_acl and are checked by
// RequirePermission.  Administrators pass every RequirePermission check.
//
// Notes
// -----
// • Every statement is idempotent so install can run repeatedly.
// • Oxford commas, two spaces after periods.

package acl

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/yanizio/participants/internal/auth"
)

// Tables is the DDL for the role model.
var Tables = []string{
	"CREATE TABLE IF NOT EXISTS `role` (" +
		"`id` INT UNSIGNED NOT NULL AUTO_INCREMENT, " +
		"`name` VARCHAR(64) NOT NULL, " +
		"`enabled` BOOLEAN NOT NULL DEFAULT TRUE, " +
		"PRIMARY KEY (`id`), UNIQUE KEY `role_name` (`name`)" +
		") DEFAULT CHARSET=utf8mb4",
	"CREATE TABLE IF NOT EXISTS `role_acl` (" +
		"`role_id` INT UNSIGNED NOT NULL, " +
		"`component` VARCHAR(64) NOT NULL, " +
		"`action` VARCHAR(64) NOT NULL, " +
		"`permitted` BOOLEAN NOT NULL DEFAULT TRUE, " +
		"PRIMARY KEY (`role_id`, `component`, `action`)" +
		") DEFAULT CHARSET=utf8mb4",
	"CREATE TABLE IF NOT EXISTS `user_role` (" +
		"`user_id` BIGINT UNSIGNED NOT NULL, " +
		"`role_id` INT UNSIGNED NOT NULL, " +
		"PRIMARY KEY (`user_id`, `role_id`)" +
		") DEFAULT CHARSET=utf8mb4",
}

// Grant permits one role a component/action pair.
type Grant struct {
	Role      string
	Component string
	Action    string
}

// DefaultGrants are written by Install.  Field edits stay with
// administrators until a grant says otherwise.
var DefaultGrants = []Grant{
	{Role: "editor", Component: "records", Action: "delete"},
}

// CreateTables runs Tables, then inserts one role per capability and the
// given grants.  Existing rows are left alone.
func CreateTables(ctx context.Context, db *sql.DB, grants []Grant) error {
	for _, stmt := range Tables {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("acl tables: %w", err)
		}
	}

	var (
		rows []string
		args []any
	)
	for c := auth.Subscriber; c <= auth.Administrator; c++ {
		rows = append(rows, "(?)")
		args = append(args, c.String())
	}
	q := "INSERT IGNORE INTO `role` (`name`) VALUES " + strings.Join(rows, ", ")
	if _, err := db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("acl roles: %w", err)
	}

	for _, g := range grants {
		if err := Allow(ctx, db, g); err != nil {
			return err
		}
	}
	return nil
}

// Allow writes or re-enables one grant.  An unknown role writes nothing.
func Allow(ctx context.Context, db *sql.DB, g Grant) error {
	const q = "INSERT INTO `role_acl` (`role_id`, `component`, `action`, `permitted`) " +
		"SELECT `id`, ?, ?, TRUE FROM `role` WHERE `name` = ? " +
		"ON DUPLICATE KEY UPDATE `permitted` = TRUE"
	if _, err := db.ExecContext(ctx, q, g.Component, g.Action, g.Role); err != nil {
		return fmt.Errorf("acl grant %s %s/%s: %w", g.Role, g.Component, g.Action, err)
	}
	return nil
}
