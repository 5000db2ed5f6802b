package engine_test

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yanizio/participants/internal/engine"
	"github.com/yanizio/participants/internal/engine/enginetest"
	"github.com/yanizio/participants/internal/queue"
)

func TestNewPicksMemoryQueue(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	e, err := engine.New(context.Background(), enginetest.Config(t), sqlx.NewDb(db, "mysql"), nil, zap.NewNop().Sugar())
	require.NoError(t, err)
	defer e.Close()

	_, ok := e.Queue.(*queue.Memory)
	assert.True(t, ok)
	assert.Equal(t, "`"+enginetest.Table+"`", e.Records.Table())
}

func TestNewRejectsBadLocale(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cfg := enginetest.Config(t)
	cfg.Locale.Timezone = "Mars/Olympus_Mons"
	_, err = engine.New(context.Background(), cfg, sqlx.NewDb(db, "mysql"), nil, zap.NewNop().Sugar())
	assert.Error(t, err)
}

func TestInstallCreatesTables(t *testing.T) {
	e, mock, _ := enginetest.New(t)
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS `pdb_groups`")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS `pdb_fields`")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS `" + enginetest.Table + "`")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	for _, tbl := range []string{"role", "role_acl", "user_role"} {
		mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS `" + tbl + "` (")).
			WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectExec(regexp.QuoteMeta("INSERT IGNORE INTO `role` (`name`) VALUES (?), (?), (?), (?), (?)")).
		WithArgs("subscriber", "contributor", "author", "editor", "administrator").
		WillReturnResult(sqlmock.NewResult(0, 5))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `role_acl`")).
		WithArgs("records", "delete", "editor").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, e.Install(context.Background(), nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkerDrainsEmptyQueue(t *testing.T) {
	e, mock, _ := enginetest.New(t)
	require.NoError(t, e.Worker().Drain(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
