package records

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yanizio/participants/internal/api"
	"github.com/yanizio/participants/internal/auth"
	"github.com/yanizio/participants/internal/engine/enginetest"
	"github.com/yanizio/participants/internal/requestinfo"
)

const table = "`" + enginetest.Table + "`"

func setup(t *testing.T) (http.Handler, sqlmock.Sqlmock) {
	t.Helper()
	e, mock, _ := enginetest.New(t)
	c := &Component{}
	require.NoError(t, c.Init(e))
	return c.Routes(), mock
}

func as(r *http.Request, c auth.Capability) *http.Request {
	return r.WithContext(auth.WithActor(r.Context(), auth.Actor{UserID: 5, Capability: c}))
}

func jsonRequest(method, path, body string) *http.Request {
	r := httptest.NewRequest(method, path, strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	return r
}

func serve(h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

var pidQuery = regexp.QuoteMeta("SELECT COUNT(*) FROM " + table + " WHERE `private_id` = ?")

func TestCreateSignup(t *testing.T) {
	h, mock := setup(t)
	mock.ExpectQuery(pidQuery).WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO " + table + " (`first_name`, `last_name`")).
		WillReturnResult(sqlmock.NewResult(42, 1))

	w := serve(h, jsonRequest(http.MethodPost, "/", `{"first_name":"Ann","last_name":"Lee"}`))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var out WriteResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, int64(42), out.ID)
	assert.Len(t, out.PrivateID, 6)
	assert.Empty(t, out.Warning)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateValidationFails(t *testing.T) {
	h, mock := setup(t)
	w := serve(h, jsonRequest(http.MethodPost, "/", `{"last_name":"Lee"}`))
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var body api.ErrorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Fields, 1)
	assert.Equal(t, "first_name", body.Fields[0].Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateRefusesBotSignup(t *testing.T) {
	h, mock := setup(t)
	h = requestinfo.Enrich(nil, zap.NewNop().Sugar())(h)

	r := jsonRequest(http.MethodPost, "/", `{"first_name":"Ann"}`)
	r.Header.Set("User-Agent", "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)")
	w := serve(h, r)
	assert.Equal(t, http.StatusForbidden, w.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetHidesPasswords(t *testing.T) {
	h, mock := setup(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM " + table + " WHERE `id` = ? LIMIT 1")).
		WithArgs(int64(12)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "first_name", "color", "secret"}).
			AddRow(int64(12), "Ann", "green", "$2a$10$abcdefghijklmnopqrstuv"))

	w := serve(h, as(httptest.NewRequest(http.MethodGet, "/12", nil), auth.Editor))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var v View
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	assert.Equal(t, "Ann", v.Values["first_name"])
	assert.Equal(t, "Green", v.Display["color"])
	assert.NotContains(t, v.Values, "secret")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEditorRoutesNeedActor(t *testing.T) {
	h, _ := setup(t)
	assert.Equal(t, http.StatusUnauthorized, serve(h, httptest.NewRequest(http.MethodGet, "/12", nil)).Code)
	assert.Equal(t, http.StatusForbidden,
		serve(h, as(httptest.NewRequest(http.MethodGet, "/12", nil), auth.Subscriber)).Code)
}

func TestGetMissingRecord(t *testing.T) {
	h, mock := setup(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM")).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	w := serve(h, as(httptest.NewRequest(http.MethodGet, "/99", nil), auth.Editor))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateByEditor(t *testing.T) {
	h, mock := setup(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM " + table)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "first_name", "last_name"}).AddRow(int64(12), "Ann", "Lee"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE " + table + " SET `first_name` = ?")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := serve(h, as(jsonRequest(http.MethodPut, "/12", `{"first_name":"Anne"}`), auth.Editor))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var out WriteResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, int64(12), out.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPrivateLinkHidesAdminGroup(t *testing.T) {
	h, mock := setup(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT `id` FROM " + table + " WHERE `private_id` = ? LIMIT 1")).
		WithArgs("AB12CD").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE " + table + " SET `last_accessed` = ?")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM " + table)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "first_name", "status"}).AddRow(int64(7), "Ann", "approved"))

	w := serve(h, httptest.NewRequest(http.MethodGet, "/pid/AB12CD", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var v View
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	assert.Equal(t, "Ann", v.Values["first_name"])
	assert.NotContains(t, v.Values, "status")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPrivateLinkUnknown(t *testing.T) {
	h, mock := setup(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT `id` FROM")).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	w := serve(h, jsonRequest(http.MethodPut, "/pid/NOPE00", `{"first_name":"X"}`))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

var (
	rolesQuery = regexp.QuoteMeta("SELECT r.name FROM user_role ur")
	grantQuery = regexp.QuoteMeta("SELECT 1 FROM role_acl ra")
)

func TestDeleteNeedsGrant(t *testing.T) {
	h, mock := setup(t)
	mock.ExpectQuery(rolesQuery).WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("editor"))
	mock.ExpectQuery(grantQuery).WithArgs("editor", "records", "delete").
		WillReturnRows(sqlmock.NewRows([]string{"1"}))

	w := serve(h, as(jsonRequest(http.MethodDelete, "/", `{"ids":[3]}`), auth.Editor))
	assert.Equal(t, http.StatusForbidden, w.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteCollectsUploads(t *testing.T) {
	h, mock := setup(t)
	mock.ExpectQuery(rolesQuery).WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("editor"))
	mock.ExpectQuery(grantQuery).WithArgs("editor", "records", "delete").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT `photo` FROM " + table + " WHERE `id` IN (?, ?)")).
		WithArgs(int64(3), int64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"photo"}).AddRow("a.jpg").AddRow(nil))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM " + table + " WHERE `id` IN (?, ?)")).
		WillReturnResult(sqlmock.NewResult(0, 2))

	w := serve(h, as(jsonRequest(http.MethodDelete, "/", `{"ids":[3,4]}`), auth.Editor))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"deleted":2}`, w.Body.String())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestImportRunsInOneTransaction(t *testing.T) {
	h, mock := setup(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM " + table)).WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "first_name"}).AddRow(int64(3), "Cy"))
	mock.ExpectBegin()
	mock.ExpectQuery(pidQuery).WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO " + table)).WillReturnResult(sqlmock.NewResult(8, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE " + table + " SET `last_name` = ?")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	body := `{"rows":[{"values":{"first_name":"Bo"}},{"match_id":3,"values":{"last_name":"Ng"}}]}`
	w := serve(h, as(jsonRequest(http.MethodPost, "/import", body), auth.Editor))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var out ImportResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, ImportResult{Inserted: 1, Updated: 1, IDs: []int64{8, 3}}, out)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestImportReportsRowErrors(t *testing.T) {
	h, mock := setup(t)
	body := `{"rows":[{"values":{"email":"not-an-address"}}]}`
	w := serve(h, as(jsonRequest(http.MethodPost, "/import", body), auth.Editor))
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var e api.ErrorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e))
	require.Len(t, e.Fields, 1)
	assert.Equal(t, "rows.0.email", e.Fields[0].Name)
	require.NoError(t, mock.ExpectationsWereMet())
}
