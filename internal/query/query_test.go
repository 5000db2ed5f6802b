package query_test

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yanizio/participants/internal/auth"
	"github.com/yanizio/participants/internal/calc"
	"github.com/yanizio/participants/internal/column"
	"github.com/yanizio/participants/internal/dynamic"
	"github.com/yanizio/participants/internal/field"
	"github.com/yanizio/participants/internal/field/fieldtest"
	"github.com/yanizio/participants/internal/query"
)

const table = "pdb_participants_database"

var (
	now        = time.Date(2024, 6, 1, 8, 30, 0, 0, time.UTC)
	nowSQL     = "2024-06-01 08:30:00"
	subscriber = column.Mode{Actor: auth.Actor{UserID: 9, Capability: auth.Subscriber}}
)

func newBuilder(t *testing.T) (*query.Builder, *field.Snapshot) {
	t.Helper()
	snap := fieldtest.Snapshot(t)
	res := dynamic.New(dynamic.Options{
		Fields: field.Static(snap),
		Clock:  calc.FixedClock(now),
		Logger: zap.NewNop().Sugar(),
	})
	return &query.Builder{
		Table:      table,
		Normalizer: column.NewNormalizer(nil, false, false),
		Resolver:   res,
		PIDs:       &query.PIDGenerator{Length: 6},
		Now:        func() time.Time { return now },
	}, snap
}

func names(st *query.Statement) []string {
	out := make([]string, len(st.Columns))
	for i, c := range st.Columns {
		out[i] = c.Column
	}
	return out
}

func TestInsertStampsBothTimestamps(t *testing.T) {
	b, snap := newBuilder(t)
	st, err := b.Build(context.Background(), snap, query.Submission{
		Action: query.Insert,
		Values: map[string]column.Raw{"first_name": column.String("Ann"), "last_name": column.String("Lee")},
		Mode:   subscriber,
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"first_name", "last_name", "color", "status",
		"total", "full_name", "due_date",
		"private_id", "date_recorded", "date_updated",
	}, names(st))
	assert.Equal(t, "INSERT INTO `"+table+"` (`first_name`, `last_name`, `color`, `status`, `total`, `full_name`, "+
		"`due_date`, `private_id`, `date_recorded`, `date_updated`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)", st.SQL)

	require.Len(t, st.Args, 10)
	assert.Equal(t, []any{"Ann", "Lee", "green", "new", nil, "Ann Lee", nil}, st.Args[:7])
	assert.Len(t, st.PrivateID, 6)
	assert.Equal(t, st.PrivateID, st.Args[7])
	assert.Equal(t, nowSQL, st.Args[8])
	assert.Equal(t, nowSQL, st.Args[9])
}

func TestUpdateStampsOnlyDateUpdated(t *testing.T) {
	b, snap := newBuilder(t)
	stored := map[string]string{"first_name": "Ann", "last_name": "Lee", "status": "new", "age": "30", "weight": "1"}
	st, err := b.Build(context.Background(), snap, query.Submission{
		Action:   query.Update,
		RecordID: 12,
		Values:   map[string]column.Raw{"first_name": column.String("Anne"), "status": column.String("closed")},
		Mode:     subscriber,
	}, stored)
	require.NoError(t, err)

	assert.Equal(t, "UPDATE `"+table+"` SET `first_name` = ?, `total` = ?, `full_name` = ?, `due_date` = ?, "+
		"`date_updated` = ? WHERE `id` = ?", st.SQL)
	assert.Equal(t, []any{"Anne", "31.00", "Anne Lee", nil, nowSQL, int64(12)}, st.Args)

	_, has := st.Column(field.ColDateRecorded)
	assert.False(t, has)
}

func TestReadonlyColumnExcludedFromClauseList(t *testing.T) {
	b, snap := newBuilder(t)
	st, err := b.Build(context.Background(), snap, query.Submission{
		Action:   query.Update,
		RecordID: 3,
		Values:   map[string]column.Raw{"status": column.String("approved")},
		Mode:     subscriber,
	}, map[string]string{"status": "new"})
	require.NoError(t, err)

	_, has := st.Column("status")
	assert.False(t, has)
	assert.NotContains(t, st.SQL, "`status`")
	assert.NotContains(t, st.Args, "approved")

	editor := subscriber
	editor.Actor.Capability = auth.Editor
	st, err = b.Build(context.Background(), snap, query.Submission{
		Action:   query.Update,
		RecordID: 3,
		Values:   map[string]column.Raw{"status": column.String("approved")},
		Mode:     editor,
	}, map[string]string{"status": "new"})
	require.NoError(t, err)
	v, has := st.Column("status")
	require.True(t, has)
	assert.Equal(t, "approved", *v.Val)
}

func TestReadonlyInsertFallsBackToDefault(t *testing.T) {
	b, snap := newBuilder(t)
	st, err := b.Build(context.Background(), snap, query.Submission{
		Action: query.Insert,
		Values: map[string]column.Raw{"status": column.String("vip")},
		Mode:   subscriber,
	}, nil)
	require.NoError(t, err)
	v, ok := st.Column("status")
	require.True(t, ok)
	assert.Equal(t, "new", *v.Val)
}

func TestImportKeepsExplicitTimestamps(t *testing.T) {
	b, snap := newBuilder(t)
	mode := subscriber
	mode.Import = true
	st, err := b.Build(context.Background(), snap, query.Submission{
		Action: query.Insert,
		Values: map[string]column.Raw{
			"first_name":    column.String("Ann"),
			"date_recorded": column.String("2020-01-02 03:04:05"),
			"date_updated":  column.String("garbage"),
		},
		Mode: mode,
	}, nil)
	require.NoError(t, err)

	rec, _ := st.Column(field.ColDateRecorded)
	upd, _ := st.Column(field.ColDateUpdated)
	assert.Equal(t, "2020-01-02 03:04:05", *rec.Val)
	assert.Equal(t, nowSQL, *upd.Val)

	// A regular submission cannot backdate.
	st, err = b.Build(context.Background(), snap, query.Submission{
		Action: query.Insert,
		Values: map[string]column.Raw{"date_recorded": column.String("2020-01-02 03:04:05")},
		Mode:   subscriber,
	}, nil)
	require.NoError(t, err)
	rec, _ = st.Column(field.ColDateRecorded)
	assert.Equal(t, nowSQL, *rec.Val)
}

func TestUpdateNeedsID(t *testing.T) {
	b, snap := newBuilder(t)
	_, err := b.Build(context.Background(), snap, query.Submission{Action: query.Update}, nil)
	assert.ErrorIs(t, err, query.ErrNoRecord)
}

func TestPIDNeverCollides(t *testing.T) {
	existing := map[string]bool{}
	g := &query.PIDGenerator{Length: 6}
	for len(existing) < 10000 {
		pid, err := g.Generate(context.Background())
		require.NoError(t, err)
		existing[pid] = true
	}

	checked := &query.PIDGenerator{
		Length: 6,
		Exists: func(_ context.Context, pid string) (bool, error) { return existing[pid], nil },
	}
	for i := 0; i < 2000; i++ {
		pid, err := checked.Generate(context.Background())
		require.NoError(t, err)
		require.False(t, existing[pid])
		assert.Regexp(t, `^[A-Z0-9]{6}$`, pid)
	}
}

func TestPIDExhausted(t *testing.T) {
	g := &query.PIDGenerator{
		Length:   4,
		MaxTries: 3,
		Exists:   func(context.Context, string) (bool, error) { return true, nil },
	}
	_, err := g.Generate(context.Background())
	assert.ErrorIs(t, err, query.ErrPIDExhausted)
}

func newWriter(t *testing.T) (*query.Writer, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return query.NewWriter(sqlx.NewDb(db, "mysql"), nil, zap.NewNop().Sugar()), mock
}

func TestWriterInsertReturnsID(t *testing.T) {
	w, mock := newWriter(t)
	st := &query.Statement{Action: query.Insert, SQL: "INSERT INTO `t` (`a`) VALUES (?)", Args: []any{"x"}, PrivateID: "ABC123"}
	mock.ExpectExec(regexp.QuoteMeta(st.SQL)).WithArgs("x").WillReturnResult(sqlmock.NewResult(42, 1))

	out, err := w.Exec(context.Background(), st, subscriber)
	require.NoError(t, err)
	assert.Equal(t, query.Outcome{ID: 42, PrivateID: "ABC123", RowsAffected: 1}, out)
}

func TestWriterZeroRowsWarning(t *testing.T) {
	w, mock := newWriter(t)
	st := &query.Statement{Action: query.Update, RecordID: 5, SQL: "UPDATE `t` SET `a` = ? WHERE `id` = ?", Args: []any{"x", int64(5)}}
	mock.ExpectExec(regexp.QuoteMeta(st.SQL)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(st.SQL)).WillReturnResult(sqlmock.NewResult(0, 0))

	out, err := w.Exec(context.Background(), st, subscriber)
	require.NoError(t, err)
	assert.Equal(t, query.ZeroRowsWarning, out.Warning)

	imp := subscriber
	imp.Import = true
	out, err = w.Exec(context.Background(), st, imp)
	require.NoError(t, err)
	assert.Empty(t, out.Warning)
}

func TestWriterQueryErrorIsTruncated(t *testing.T) {
	w, mock := newWriter(t)
	long := "UPDATE `t` SET " + strings.Repeat("`col` = ?, ", 30) + "`z` = ? WHERE `id` = ?"
	st := &query.Statement{Action: query.Update, SQL: long}
	mock.ExpectExec("UPDATE").WillReturnError(errors.New("Deadlock found"))

	_, err := w.Exec(context.Background(), st, subscriber)
	var qe *query.QueryError
	require.ErrorAs(t, err, &qe)
	assert.LessOrEqual(t, len([]rune(qe.Query)), 121)
	assert.True(t, strings.HasPrefix(long, strings.TrimSuffix(qe.Query, "…")))
	assert.Contains(t, err.Error(), "Deadlock found")
}

func TestImportRunsInOneTransaction(t *testing.T) {
	w, mock := newWriter(t)
	b, snap := newBuilder(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `" + table + "`")).WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE `" + table + "` SET")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	res, err := w.Import(context.Background(), b, snap, []query.ImportRow{
		{Values: map[string]column.Raw{"first_name": column.String("Ann"), "last_name": column.String("Lee")}},
		{MatchID: 3, Values: map[string]column.Raw{"age": column.String("5")}, Stored: map[string]string{"weight": "1"}},
	}, subscriber)
	require.NoError(t, err)
	assert.Equal(t, query.ImportResult{Inserted: 1, Updated: 1, IDs: []int64{7, 3}}, res)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestImportRollsBackOnFailure(t *testing.T) {
	w, mock := newWriter(t)
	b, snap := newBuilder(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT").WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	_, err := w.Import(context.Background(), b, snap, []query.ImportRow{
		{Values: map[string]column.Raw{"first_name": column.String("Ann")}},
	}, subscriber)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
