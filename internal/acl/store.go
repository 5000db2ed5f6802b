// internal/acl/store.go
//
// Small query helpers for Role-Based Access Control.
//
// Context
// -------
// The ACL model lives in the participant database beside the records:
//
//	role        (id PK, name, enabled)
//	role_acl    (role_id, component, action, permitted)
//	user_role   (user_id, role_id)
//
// Role names follow the capability ladder in internal/auth (subscriber,
// contributor, author, editor, administrator).  The API needs answers to
// three questions:
//  1. Which *role names* does user X have?              → `UserRoles()`
//  2. What is X's highest capability?                   → `UserCapability()`
//  3. Is role R permitted for component/action?         → `RoleAllowed()`
//
// These helpers accept a *sql.DB and perform simple parameterised
// queries.  They are thin; callers may wrap the results in their own
// per-request cache.
//
// Notes
// -----
// • Oxford commas, two spaces after periods.
// • Max line length 100 columns.
package acl

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/yanizio/participants/internal/auth"
)

// UserRoles returns the role *names* bound to userID.  Disabled roles are
// filtered out.
func UserRoles(ctx context.Context, db *sql.DB, userID int64) ([]string, error) {
	const q = `SELECT r.name
                 FROM user_role ur
                 JOIN role r ON r.id = ur.role_id
                WHERE ur.user_id = ? AND r.enabled = TRUE`

	rows, err := db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	roles := make([]string, 0, 4)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		roles = append(roles, name)
	}
	return roles, rows.Err()
}

// UserCapability returns the highest capability among userID's roles.
// A user with no recognised role has auth.None.
func UserCapability(ctx context.Context, db *sql.DB, userID int64) (auth.Capability, error) {
	roles, err := UserRoles(ctx, db, userID)
	if err != nil {
		return auth.None, err
	}
	best := auth.None
	for _, r := range roles {
		if c := auth.ParseCapability(strings.ToLower(r)); c > best {
			best = c
		}
	}
	return best, nil
}

// RoleAllowed reports whether *any* of the candidate roles is permitted for
// the given component + action.  It executes one query using IN (? … ?).
//
// Empty roles slice returns false, nil.
func RoleAllowed(ctx context.Context, db *sql.DB, roles []string, component, action string) (bool, error) {
	if len(roles) == 0 {
		return false, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(roles)), ",")
	args := make([]any, 0, len(roles)+2)
	for _, r := range roles {
		args = append(args, r)
	}
	args = append(args, component, action)

	q := `SELECT 1
            FROM role_acl ra
            JOIN role r ON r.id = ra.role_id
           WHERE r.name IN (` + placeholders + `)
             AND ra.component = ?
             AND ra.action   = ?
             AND ra.permitted = TRUE
           LIMIT 1`

	var dummy int
	err := db.QueryRowContext(ctx, q, args...).Scan(&dummy)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
