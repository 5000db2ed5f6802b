// Package enginetest builds an *engine.Engine over sqlmock for handler
// tests.
package enginetest

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/yanizio/participants/internal/config"
	"github.com/yanizio/participants/internal/engine"
	"github.com/yanizio/participants/internal/field/fieldtest"
	"github.com/yanizio/participants/internal/queue"
)

// Table is the records table the test engine writes to.
const Table = "pdb_participants_database"

// Config returns a complete configuration with test-friendly values.
func Config(t testing.TB) *config.Config {
	t.Helper()
	return &config.Config{
		HTTP:     config.HTTP{ListenAddr: "127.0.0.1:0", BlockBotSignup: true},
		Database: config.Database{DSN: "test", TablePrefix: "pdb_"},
		Records: config.Records{
			UploadDir:       t.TempDir(),
			PrivateIDLength: 6,
		},
		Calc:      config.Calc{CacheTTL: time.Hour, CacheSize: 100, KeywordTTL: time.Hour},
		Locale:    config.Locale{Language: "en-US", Currency: "USD", Timezone: "UTC", DateLayout: "January 2, 2006"},
		AdminList: config.AdminList{RecentFields: 6, PageSize: 2, FilterVersion: 1},
		Queue:     config.Queue{Driver: "memory", SliceSize: 10, PollInterval: time.Millisecond},
	}
}

// New returns an engine on a sqlmock pool, a memory queue, and the shared
// field fixture.  Pings are monitored so health checks can be expected.
func New(t testing.TB) (*engine.Engine, sqlmock.Sqlmock, *queue.Memory) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	mem := queue.NewMemory()
	e, err := engine.New(context.Background(), Config(t), sqlx.NewDb(db, "mysql"), mem, zap.NewNop().Sugar())
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	e.Fields.Use(fieldtest.Snapshot(t))
	return e, mock, mem
}
