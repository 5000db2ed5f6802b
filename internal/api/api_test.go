package api_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yanizio/participants/components/records"
	"github.com/yanizio/participants/internal/acl"
	"github.com/yanizio/participants/internal/api"
	"github.com/yanizio/participants/internal/auth"
	"github.com/yanizio/participants/internal/component"
	"github.com/yanizio/participants/internal/dynamic"
	"github.com/yanizio/participants/internal/engine/enginetest"
	"github.com/yanizio/participants/internal/form"
	"github.com/yanizio/participants/internal/query"
	"github.com/yanizio/participants/internal/record"
	"github.com/yanizio/participants/internal/requestinfo"
)

func newRouter(t *testing.T) (http.Handler, sqlmock.Sqlmock) {
	t.Helper()
	e, mock, _ := enginetest.New(t)
	rc := &records.Component{}
	require.NoError(t, component.InitAll(e, []component.Component{rc}))
	return api.NewRouter(api.Options{
		DB:         e.DB,
		Logger:     zap.NewNop().Sugar(),
		Components: []component.Component{rc},
		Metrics:    true,
	}), mock
}

func TestHealthz(t *testing.T) {
	h, mock := newRouter(t)
	mock.ExpectPing()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(requestinfo.IDHeader))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))

	mock.ExpectPing().WillReturnError(errors.New("gone"))
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMetricsAndNotFound(t *testing.T) {
	h, _ := newRouter(t)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"Not Found"}`, w.Body.String())
}

func TestActorResolvedFromHeader(t *testing.T) {
	h, mock := newRouter(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT r.name FROM user_role ur")).
		WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Editor"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `" + enginetest.Table + "`")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "first_name"}).AddRow(int64(12), "Ann"))

	r := httptest.NewRequest(http.MethodGet, "/api/records/12", nil)
	r.Header.Set(acl.UserHeader, "9")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAnonymousCannotReadRecords(t *testing.T) {
	h, _ := newRouter(t)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/records/12", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"validation", form.ValidationError{Fields: []form.ErrorField{{Name: "email", Message: "bad"}}}, http.StatusUnprocessableEntity},
		{"body", fmt.Errorf("%w: eof", form.ErrBadBody), http.StatusBadRequest},
		{"record", record.ErrNotFound, http.StatusNotFound},
		{"template", fmt.Errorf("%w: unbalanced", dynamic.ErrInvalidTemplate), http.StatusUnprocessableEntity},
		{"not dynamic", dynamic.ErrNotDynamic, http.StatusBadRequest},
		{"no record", query.ErrNoRecord, http.StatusBadRequest},
		{"other", errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			api.Error(w, httptest.NewRequest(http.MethodGet, "/", nil), tc.err)
			assert.Equal(t, tc.status, w.Code)
			assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
		})
	}
}

func TestQueryErrorExcerptForAdminsOnly(t *testing.T) {
	qe := &query.QueryError{Action: query.Update, Query: "UPDATE `t` SET `a` = ?", Err: errors.New("deadlock")}

	decode := func(c auth.Capability) api.ErrorBody {
		r := httptest.NewRequest(http.MethodPut, "/", nil)
		r = r.WithContext(auth.WithActor(r.Context(), auth.Actor{UserID: 1, Capability: c}))
		w := httptest.NewRecorder()
		api.Error(w, r, qe)
		require.Equal(t, http.StatusInternalServerError, w.Code)
		var b api.ErrorBody
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &b))
		return b
	}
	assert.Equal(t, qe.Query, decode(auth.Administrator).Query)
	assert.Empty(t, decode(auth.Editor).Query)
}
