package list

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yanizio/participants/internal/adminlist"
	"github.com/yanizio/participants/internal/auth"
	"github.com/yanizio/participants/internal/engine/enginetest"
)

const table = "`" + enginetest.Table + "`"

var (
	loadFilter = regexp.QuoteMeta("SELECT state FROM `pdb_admin_list_filter` WHERE user_id = ? AND version = ?")
	saveFilter = regexp.QuoteMeta("INSERT INTO `pdb_admin_list_filter` (user_id, version, state)")
)

func setup(t *testing.T) (http.Handler, sqlmock.Sqlmock) {
	t.Helper()
	e, mock, _ := enginetest.New(t)
	c := &Component{}
	require.NoError(t, c.Init(e))
	return c.Routes(), mock
}

func call(h http.Handler, method, target, body string, c auth.Capability) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, target, strings.NewReader(body))
	if c != auth.None {
		r = r.WithContext(auth.WithActor(r.Context(), auth.Actor{UserID: 5, Capability: c}))
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func expectSave(mock sqlmock.Sqlmock) {
	mock.ExpectExec(saveFilter).
		WithArgs(int64(5), 1, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
}

func TestMigrations(t *testing.T) {
	assert.Nil(t, (&Component{}).Migrations())

	e, _, _ := enginetest.New(t)
	c := &Component{}
	require.NoError(t, c.Init(e))
	m := c.Migrations()
	require.Len(t, m, 1)
	assert.Contains(t, m[0], "CREATE TABLE IF NOT EXISTS `pdb_admin_list_filter`")
}

func TestFirstVisitUsesDefaultFilter(t *testing.T) {
	h, mock := setup(t)
	mock.ExpectQuery(loadFilter).WithArgs(int64(5), 1).WillReturnError(sql.ErrNoRows)
	expectSave(mock)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM " + table)).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM " + table + " ORDER BY `date_recorded` DESC LIMIT ? OFFSET ?")).
		WithArgs(2, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "first_name"}).AddRow(int64(1), []byte("Ann")))

	w := call(h, http.MethodGet, "/", "", auth.Editor)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var p PageView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	assert.Equal(t, 1, p.Total)
	assert.Equal(t, 1, p.Pages)
	assert.Equal(t, []map[string]string{{"id": "1", "first_name": "Ann"}}, p.Rows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSortOnActiveColumnFlips(t *testing.T) {
	h, mock := setup(t)
	mock.ExpectQuery(loadFilter).WithArgs(int64(5), 1).
		WillReturnRows(sqlmock.NewRows([]string{"state"}).AddRow(`{"sortBy":"age","ascdesc":"ASC"}`))
	expectSave(mock)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM " + table)).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(0))
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY `age` DESC")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	w := call(h, http.MethodGet, "/?sort=age", "", auth.Editor)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var p PageView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	assert.Equal(t, adminlist.Desc, p.Filter.AscDesc)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchRecordsRecentField(t *testing.T) {
	h, mock := setup(t)
	mock.ExpectQuery(loadFilter).WillReturnError(sql.ErrNoRows)
	expectSave(mock)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM " + table + " WHERE `age` >= ?")).
		WithArgs("30").
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM " + table + " WHERE `age` >= ?")).
		WithArgs("30", 2, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	body := `{"clauses":[{"search_field":"age","value":"30","operator":"gt","logic":"AND"}]}`
	w := call(h, http.MethodPost, "/search", body, auth.Editor)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var p PageView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	assert.Equal(t, []string{"age"}, p.Filter.RecentFields)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBadPage(t *testing.T) {
	h, mock := setup(t)
	assert.Equal(t, http.StatusBadRequest, call(h, http.MethodGet, "/?page=0", "", auth.Editor).Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListNeedsEditor(t *testing.T) {
	h, _ := setup(t)
	assert.Equal(t, http.StatusUnauthorized, call(h, http.MethodGet, "/", "", auth.None).Code)
	assert.Equal(t, http.StatusForbidden, call(h, http.MethodGet, "/sql", "", auth.Editor).Code)
}

func TestExplainDoesNotQuery(t *testing.T) {
	h, mock := setup(t)
	mock.ExpectQuery(loadFilter).
		WillReturnRows(sqlmock.NewRows([]string{"state"}).AddRow(
			`{"search":[{"search_field":"last_name","value":"Lee","operator":"=","logic":"AND"}],"list_filter_count":1}`))

	w := call(h, http.MethodGet, "/sql", "", auth.Administrator)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var ex adminlist.Explanation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ex))
	assert.True(t, strings.HasPrefix(ex.Count, "SELECT COUNT(*) FROM "+table+" WHERE"))
	assert.Contains(t, ex.Select, "`last_name`")
	assert.Contains(t, ex.Select, "LIMIT ? OFFSET ?")
	require.NoError(t, mock.ExpectationsWereMet())
}
