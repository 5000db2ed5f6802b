package adminlist

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"

	"github.com/yanizio/participants/internal/database"
)

// DefaultTable holds one filter row per user and filter version.
const DefaultTable = "admin_list_filter"

// Store loads and saves per-user filter state.  Load returns Default() for
// a user without a saved state.
type Store interface {
	Load(ctx context.Context, userID int64) (Filter, error)
	Save(ctx context.Context, userID int64, f Filter) error
}

// SQLStore keeps filters as JSON.  Bumping Version abandons every saved
// filter without a migration.
type SQLStore struct {
	db      *sqlx.DB
	table   string
	version int
}

// NewSQLStore binds a store to table.
func NewSQLStore(db *sqlx.DB, table string, version int) *SQLStore {
	if version < 1 {
		version = 1
	}
	return &SQLStore{db: db, table: table, version: version}
}

// CreateTableSQL is the DDL for the filter table.
func (s *SQLStore) CreateTableSQL() string {
	return "CREATE TABLE IF NOT EXISTS " + database.QuoteIdent(s.table) + ` (
	user_id BIGINT NOT NULL,
	version INT NOT NULL,
	state   TEXT NOT NULL,
	PRIMARY KEY (user_id, version)
) DEFAULT CHARSET=utf8mb4`
}

// CreateTable creates the filter table when missing.
func (s *SQLStore) CreateTable(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, s.CreateTableSQL())
	return err
}

// Load implements Store.
func (s *SQLStore) Load(ctx context.Context, userID int64) (Filter, error) {
	q := "SELECT state FROM " + database.QuoteIdent(s.table) + " WHERE user_id = ? AND version = ?"
	var raw string
	err := s.db.GetContext(ctx, &raw, q, userID, s.version)
	switch {
	case errors.Is(err, sql.ErrNoRows), database.IsUnknownTable(err):
		return Default(), nil
	case err != nil:
		return Filter{}, fmt.Errorf("load filter for user %d: %w", userID, err)
	}
	f := Default()
	if err := json.Unmarshal([]byte(raw), &f); err != nil {
		// A corrupt row is replaced on the next save.
		return Default(), nil
	}
	return f, nil
}

// Save implements Store.
func (s *SQLStore) Save(ctx context.Context, userID int64, f Filter) error {
	b, err := json.Marshal(f)
	if err != nil {
		return err
	}
	q := "INSERT INTO " + database.QuoteIdent(s.table) + ` (user_id, version, state) VALUES (?, ?, ?)
	ON DUPLICATE KEY UPDATE state = VALUES(state)`
	if _, err := s.db.ExecContext(ctx, q, userID, s.version, string(b)); err != nil {
		return fmt.Errorf("save filter for user %d: %w", userID, err)
	}
	return nil
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu sync.Mutex
	m  map[int64]Filter
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore { return &MemoryStore{m: map[int64]Filter{}} }

// Load implements Store.
func (s *MemoryStore) Load(_ context.Context, userID int64) (Filter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.m[userID]; ok {
		return f, nil
	}
	return Default(), nil
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, userID int64, f Filter) error {
	s.mu.Lock()
	s.m[userID] = f
	s.mu.Unlock()
	return nil
}
