package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"mercator-hq/pricegate/pkg/pricing"
)

const historySchema = `
CREATE TABLE IF NOT EXISTS price_history (
	id TEXT PRIMARY KEY,
	product_id TEXT NOT NULL,
	request_id TEXT NOT NULL,
	ts INTEGER NOT NULL,
	old_price REAL NOT NULL,
	new_price REAL NOT NULL,
	rule_id TEXT NOT NULL,
	change_type TEXT NOT NULL,
	change_pct REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_price_history_product_ts ON price_history(product_id, ts);
CREATE INDEX IF NOT EXISTS idx_price_history_ts ON price_history(ts);
`

// SQLiteStore implements history.Store on SQLite (modernc, pure Go).
//
// Timestamps are stored as Unix nanoseconds so that cooldown comparisons
// keep full precision.
type SQLiteStore struct {
	db        *sql.DB
	mu        sync.RWMutex
	closeOnce sync.Once

	appendStmt *sql.Stmt
	removeStmt *sql.Stmt
	listStmt   *sql.Stmt
	pruneStmt  *sql.Stmt
}

// SQLiteConfig configures the SQLite history store.
type SQLiteConfig struct {
	// Path is the database file. Required.
	Path string

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// NewSQLiteStore opens (or creates) a history database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	return NewSQLiteStoreWithConfig(SQLiteConfig{Path: path})
}

// NewSQLiteStoreWithConfig opens a history database with custom settings.
func NewSQLiteStoreWithConfig(cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)",
		cfg.Path, cfg.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, pricing.NewStorageError("sqlite", "open", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &SQLiteStore{db: db}
	if _, err := db.Exec(historySchema); err != nil {
		db.Close()
		return nil, pricing.NewStorageError("sqlite", "init schema", err)
	}
	if err := s.prepareStatements(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) prepareStatements() error {
	var err error

	s.appendStmt, err = s.db.Prepare(`
		INSERT INTO price_history (id, product_id, request_id, ts, old_price, new_price, rule_id, change_type, change_pct)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return pricing.NewStorageError("sqlite", "prepare append", err)
	}

	s.removeStmt, err = s.db.Prepare(`DELETE FROM price_history WHERE product_id = ? AND id = ?`)
	if err != nil {
		return pricing.NewStorageError("sqlite", "prepare remove", err)
	}

	s.listStmt, err = s.db.Prepare(`
		SELECT id, product_id, request_id, ts, old_price, new_price, rule_id, change_type, change_pct
		FROM price_history
		WHERE product_id = ? AND ts >= ?
		ORDER BY ts ASC, rowid ASC
	`)
	if err != nil {
		return pricing.NewStorageError("sqlite", "prepare list", err)
	}

	s.pruneStmt, err = s.db.Prepare(`DELETE FROM price_history WHERE ts < ?`)
	if err != nil {
		return pricing.NewStorageError("sqlite", "prepare prune", err)
	}
	return nil
}

// Append inserts one entry.
func (s *SQLiteStore) Append(ctx context.Context, e pricing.HistoryEntry) error {
	if e.ID == "" || e.ProductID == "" {
		return fmt.Errorf("history entry id and product id are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.appendStmt.ExecContext(ctx,
		e.ID, e.ProductID, e.RequestID, e.Timestamp.UnixNano(),
		e.OldPrice, e.NewPrice, e.RuleID, string(e.ChangeType), e.ChangePct,
	)
	if err != nil {
		return pricing.NewStorageError("sqlite", "append", err)
	}
	return nil
}

// Remove deletes one entry. Unknown entries are ignored.
func (s *SQLiteStore) Remove(ctx context.Context, productID, entryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.removeStmt.ExecContext(ctx, productID, entryID); err != nil {
		return pricing.NewStorageError("sqlite", "remove", err)
	}
	return nil
}

// List returns entries for productID with Timestamp >= since, oldest first.
func (s *SQLiteStore) List(ctx context.Context, productID string, since time.Time) ([]pricing.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sinceNanos int64
	if !since.IsZero() {
		sinceNanos = since.UnixNano()
	}

	rows, err := s.listStmt.QueryContext(ctx, productID, sinceNanos)
	if err != nil {
		return nil, pricing.NewStorageError("sqlite", "list", err)
	}
	defer rows.Close()

	var out []pricing.HistoryEntry
	for rows.Next() {
		var (
			e          pricing.HistoryEntry
			ts         int64
			changeType string
		)
		if err := rows.Scan(&e.ID, &e.ProductID, &e.RequestID, &ts,
			&e.OldPrice, &e.NewPrice, &e.RuleID, &changeType, &e.ChangePct); err != nil {
			return nil, pricing.NewStorageError("sqlite", "scan", err)
		}
		e.Timestamp = time.Unix(0, ts).UTC()
		e.ChangeType = pricing.ChangeType(changeType)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, pricing.NewStorageError("sqlite", "iterate", err)
	}
	return out, nil
}

// Prune deletes entries older than olderThan.
func (s *SQLiteStore) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.pruneStmt.ExecContext(ctx, olderThan.UnixNano())
	if err != nil {
		return 0, pricing.NewStorageError("sqlite", "prune", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, pricing.NewStorageError("sqlite", "prune", err)
	}
	return n, nil
}

// Close releases the database. Safe to call more than once.
func (s *SQLiteStore) Close() error {
	var closeErr error
	s.closeOnce.Do(func() {
		for _, stmt := range []*sql.Stmt{s.appendStmt, s.removeStmt, s.listStmt, s.pruneStmt} {
			if stmt != nil {
				stmt.Close()
			}
		}
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		closeErr = s.db.Close()
	})
	return closeErr
}
