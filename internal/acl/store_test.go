// internal/acl/store_test.go
//
// Unit-tests for acl store helpers and middleware using sqlmock.
//
// Run: go test ./internal/acl -v

package acl

import (
	"context"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/yanizio/participants/internal/auth"
)

const rolesQuery = `SELECT r.name FROM user_role ur JOIN role r ON r.id = ur.role_id WHERE ur.user_id = ? AND r.enabled = TRUE`

func TestUserRoles(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(rolesQuery)).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("editor").AddRow("admin"))

	got, err := UserRoles(context.Background(), db, 42)
	if err != nil {
		t.Fatalf("UserRoles error: %v", err)
	}
	if len(got) != 2 || got[0] != "editor" || got[1] != "admin" {
		t.Fatalf("unexpected result: %#v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestUserCapabilityPicksHighest(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(rolesQuery)).
		WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).
			AddRow("Subscriber").AddRow("Editor").AddRow("volunteer"))

	c, err := UserCapability(context.Background(), db, 9)
	if err != nil {
		t.Fatalf("UserCapability error: %v", err)
	}
	if c != auth.Editor {
		t.Fatalf("capability = %v, want editor", c)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestRoleAllowed(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	inClause := "?,?" // two role names
	q := `SELECT 1 FROM role_acl ra JOIN role r ON r.id = ra.role_id WHERE r.name IN (` + inClause + `) AND ra.component = ? AND ra.action = ? AND ra.permitted = TRUE LIMIT 1`

	mock.ExpectQuery(regexp.QuoteMeta(q)).
		WithArgs("editor", "author", "fields", "edit").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	ok, err := RoleAllowed(context.Background(), db,
		[]string{"editor", "author"}, "fields", "edit")
	if err != nil {
		t.Fatalf("RoleAllowed error: %v", err)
	}
	if !ok {
		t.Fatalf("expected ok = true, got false")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestResolveActorAndRequireCapability(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(rolesQuery)).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("author"))

	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	h := ResolveActor(db)(RequireCapability(auth.Editor)(ok))

	// Anonymous.
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous code = %d", rec.Code)
	}

	// Author is below editor.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(UserHeader, "3")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("author code = %d", rec.Code)
	}

	// Malformed header.
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(UserHeader, "abc")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("malformed code = %d", rec.Code)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestRequirePermissionAdministratorBypass(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	h := RequirePermission(db, "fields", "edit")(ok)

	req := httptest.NewRequest(http.MethodPut, "/", nil)
	req = req.WithContext(auth.WithActor(req.Context(), auth.Actor{UserID: 1, Capability: auth.Administrator}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("admin code = %d", rec.Code)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unexpected SQL: %v", err)
	}
}

func TestCreateTablesSeedsRolesAndGrants(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	for _, tbl := range []string{"role", "role_acl", "user_role"} {
		mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS `" + tbl + "` (")).
			WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectExec(regexp.QuoteMeta("INSERT IGNORE INTO `role` (`name`) VALUES (?), (?), (?), (?), (?)")).
		WithArgs("subscriber", "contributor", "author", "editor", "administrator").
		WillReturnResult(sqlmock.NewResult(0, 5))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `role_acl` (`role_id`, `component`, `action`, `permitted`) SELECT `id`, ?, ?, TRUE FROM `role` WHERE `name` = ?")).
		WithArgs("fields", "edit", "editor").
		WillReturnResult(sqlmock.NewResult(0, 1))

	grants := []Grant{{Role: "editor", Component: "fields", Action: "edit"}}
	if err := CreateTables(context.Background(), db, grants); err != nil {
		t.Fatalf("CreateTables error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}
