package fields

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

	"github.com/yanizio/participants/internal/auth"
	"github.com/yanizio/participants/internal/dynamic"
	"github.com/yanizio/participants/internal/engine/enginetest"
	"github.com/yanizio/participants/internal/queue"
)

func setup(t *testing.T) (http.Handler, sqlmock.Sqlmock, *queue.Memory) {
	t.Helper()
	e, mock, mem := enginetest.New(t)
	c := &Component{}
	require.NoError(t, c.Init(e))
	return c.Routes(), mock, mem
}

func call(h http.Handler, method, path, body string, c auth.Capability) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, path, strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	if c != auth.None {
		r = r.WithContext(auth.WithActor(r.Context(), auth.Actor{UserID: 1, Capability: c}))
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

var (
	saveField  = regexp.QuoteMeta("UPDATE `pdb_fields` SET `title` = ?, `default` = ?")
	recordIDs  = regexp.QuoteMeta("SELECT `id` FROM `" + enginetest.Table + "` ORDER BY `id`")
	rolesQuery = regexp.QuoteMeta("SELECT r.name FROM user_role ur")
	grantQuery = regexp.QuoteMeta("SELECT 1 FROM role_acl ra")
)

func TestListSkipsInternalFields(t *testing.T) {
	h, _, _ := setup(t)
	w := call(h, http.MethodGet, "/", "", auth.Editor)
	require.Equal(t, http.StatusOK, w.Code)

	var out struct {
		Fields []struct {
			Name string `json:"name"`
		} `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	names := make([]string, 0, len(out.Fields))
	for _, f := range out.Fields {
		names = append(names, f.Name)
	}
	assert.Contains(t, names, "first_name")
	assert.NotContains(t, names, "private_id")
	assert.NotContains(t, names, "date_recorded")
}

func TestGetUnknownField(t *testing.T) {
	h, _, _ := setup(t)
	assert.Equal(t, http.StatusNotFound, call(h, http.MethodGet, "/nope", "", auth.Editor).Code)
	assert.Equal(t, http.StatusNotFound, call(h, http.MethodGet, "/private_id", "", auth.Editor).Code)
}

func TestSaveQueuesRecompute(t *testing.T) {
	h, mock, mem := setup(t)
	mock.ExpectExec(saveField).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(recordIDs).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)).AddRow(int64(2)).AddRow(int64(3)))

	w := call(h, http.MethodPut, "/total", `{"default":"[age]*2="}`, auth.Administrator)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res EditResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.True(t, res.Changed)
	assert.NotEmpty(t, res.Batch)
	assert.Zero(t, res.Synced)

	n, err := mem.Len(t.Context())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveRejectsBadTemplate(t *testing.T) {
	h, mock, mem := setup(t)
	w := call(h, http.MethodPut, "/total", `{"default":"[age]+[weight]"}`, auth.Administrator)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	n, err := mem.Len(t.Context())
	require.NoError(t, err)
	assert.Zero(t, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveNeedsEditGrant(t *testing.T) {
	h, mock, mem := setup(t)
	assert.Equal(t, http.StatusForbidden,
		call(h, http.MethodPut, "/total", `{"default":"[age]*2="}`, auth.Author).Code)

	mock.ExpectQuery(rolesQuery).WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("editor"))
	mock.ExpectQuery(grantQuery).WithArgs("editor", "fields", "edit").
		WillReturnRows(sqlmock.NewRows([]string{"1"}))
	assert.Equal(t, http.StatusForbidden,
		call(h, http.MethodPut, "/total", `{"default":"[age]*2="}`, auth.Editor).Code)

	n, err := mem.Len(t.Context())
	require.NoError(t, err)
	assert.Zero(t, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecomputeByGrantedEditor(t *testing.T) {
	h, mock, mem := setup(t)
	mock.ExpectQuery(rolesQuery).WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("editor"))
	mock.ExpectQuery(grantQuery).WithArgs("editor", "fields", "edit").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectQuery(recordIDs).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(4)))

	w := call(h, http.MethodPost, "/due_date/recompute", "", auth.Editor)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	n, err := mem.Len(t.Context())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveMalformedBody(t *testing.T) {
	h, _, _ := setup(t)
	assert.Equal(t, http.StatusBadRequest,
		call(h, http.MethodPut, "/total", `{"default":`, auth.Administrator).Code)
}

func TestPreviewOverlay(t *testing.T) {
	h, mock, _ := setup(t)
	w := call(h, http.MethodPost, "/full_name/preview",
		`{"values":{"first_name":"Ann","last_name":"Lee"}}`, auth.Editor)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var v dynamic.Value
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	assert.Equal(t, "Ann Lee", v.Stored)
	assert.True(t, v.Complete)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPreviewNotDynamic(t *testing.T) {
	h, _, _ := setup(t)
	w := call(h, http.MethodPost, "/first_name/preview", `{}`, auth.Editor)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRecompute(t *testing.T) {
	h, mock, mem := setup(t)
	mock.ExpectQuery(recordIDs).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(4)).AddRow(int64(9)))

	w := call(h, http.MethodPost, "/due_date/recompute", "", auth.Administrator)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"batch"`)

	n, err := mem.Len(t.Context())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	require.NoError(t, mock.ExpectationsWereMet())
}
