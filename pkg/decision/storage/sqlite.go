package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"mercator-hq/pricegate/pkg/decision"
	"mercator-hq/pricegate/pkg/pricing"
)

const decisionSchema = `
CREATE TABLE IF NOT EXISTS decisions (
	id TEXT PRIMARY KEY,
	product_id TEXT NOT NULL,
	current_price REAL NOT NULL,
	recommended_price REAL NOT NULL,
	confidence REAL NOT NULL,
	matched_rule_id TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL,
	applied_at INTEGER,
	approval_required INTEGER NOT NULL DEFAULT 0,
	approval_reason TEXT NOT NULL DEFAULT '',
	change_type TEXT NOT NULL DEFAULT '',
	resolved_by TEXT NOT NULL DEFAULT '',
	resolved_at INTEGER,
	no_op INTEGER NOT NULL DEFAULT 0,
	notified INTEGER NOT NULL DEFAULT 0,
	risk_controls TEXT NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_decisions_status ON decisions(status);
CREATE INDEX IF NOT EXISTS idx_decisions_product ON decisions(product_id, status);
CREATE INDEX IF NOT EXISTS idx_decisions_expires ON decisions(expires_at);
`

const decisionColumns = `id, product_id, current_price, recommended_price, confidence, matched_rule_id,
	status, created_at, updated_at, expires_at, applied_at, approval_required, approval_reason,
	change_type, resolved_by, resolved_at, no_op, notified, risk_controls`

// SQLiteStore implements decision.Store on SQLite through mattn/go-sqlite3.
type SQLiteStore struct {
	db        *sql.DB
	mu        sync.RWMutex
	closeOnce sync.Once

	insertStmt *sql.Stmt
	updateStmt *sql.Stmt
	getStmt    *sql.Stmt
}

// NewSQLiteStore opens (or creates) a decision database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, pricing.NewStorageError("sqlite", "open", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(decisionSchema); err != nil {
		db.Close()
		return nil, pricing.NewStorageError("sqlite", "init schema", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.prepareStatements(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) prepareStatements() error {
	var err error

	s.insertStmt, err = s.db.Prepare(`INSERT INTO decisions (` + decisionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return pricing.NewStorageError("sqlite", "prepare insert", err)
	}

	s.updateStmt, err = s.db.Prepare(`UPDATE decisions SET
		product_id = ?, current_price = ?, recommended_price = ?, confidence = ?, matched_rule_id = ?,
		status = ?, created_at = ?, updated_at = ?, expires_at = ?, applied_at = ?, approval_required = ?,
		approval_reason = ?, change_type = ?, resolved_by = ?, resolved_at = ?, no_op = ?, notified = ?,
		risk_controls = ?
		WHERE id = ?`)
	if err != nil {
		return pricing.NewStorageError("sqlite", "prepare update", err)
	}

	s.getStmt, err = s.db.Prepare(`SELECT ` + decisionColumns + ` FROM decisions WHERE id = ?`)
	if err != nil {
		return pricing.NewStorageError("sqlite", "prepare get", err)
	}
	return nil
}

// values returns the row values of req, without the id.
func values(req *pricing.DecisionRequest) ([]any, error) {
	controls, err := json.Marshal(req.RiskControls)
	if err != nil {
		return nil, err
	}
	if req.RiskControls == nil {
		controls = []byte("[]")
	}
	return []any{
		req.ProductID, req.CurrentPrice, req.RecommendedPrice, req.Confidence, req.MatchedRuleID,
		string(req.Status), req.CreatedAt.UnixNano(), req.UpdatedAt.UnixNano(), req.ExpiresAt.UnixNano(),
		nullTime(req.AppliedAt), req.ApprovalRequired, req.ApprovalReason, string(req.ChangeType),
		req.ResolvedBy, nullTime(req.ResolvedAt), req.NoOp, req.Notified, string(controls),
	}, nil
}

func nullTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func timePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.Unix(0, n.Int64).UTC()
	return &t
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDecision(row scanner) (*pricing.DecisionRequest, error) {
	var (
		req                          pricing.DecisionRequest
		status, changeType, controls string
		created, updated, expires    int64
		applied, resolved            sql.NullInt64
	)
	err := row.Scan(&req.ID, &req.ProductID, &req.CurrentPrice, &req.RecommendedPrice, &req.Confidence,
		&req.MatchedRuleID, &status, &created, &updated, &expires, &applied, &req.ApprovalRequired,
		&req.ApprovalReason, &changeType, &req.ResolvedBy, &resolved, &req.NoOp, &req.Notified, &controls)
	if err != nil {
		return nil, err
	}

	req.Status = pricing.Status(status)
	req.ChangeType = pricing.ChangeType(changeType)
	req.CreatedAt = time.Unix(0, created).UTC()
	req.UpdatedAt = time.Unix(0, updated).UTC()
	req.ExpiresAt = time.Unix(0, expires).UTC()
	req.AppliedAt = timePtr(applied)
	req.ResolvedAt = timePtr(resolved)
	if err := json.Unmarshal([]byte(controls), &req.RiskControls); err != nil {
		return nil, fmt.Errorf("decode risk controls: %w", err)
	}
	if len(req.RiskControls) == 0 {
		req.RiskControls = nil
	}
	return &req, nil
}

// Create inserts req.
func (s *SQLiteStore) Create(ctx context.Context, req *pricing.DecisionRequest) error {
	args, err := values(req)
	if err != nil {
		return pricing.NewStorageError("sqlite", "create", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.insertStmt.ExecContext(ctx, append([]any{req.ID}, args...)...)
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
		return fmt.Errorf("%w: %s", decision.ErrDuplicateDecision, req.ID)
	}
	if err != nil {
		return pricing.NewStorageError("sqlite", "create", err)
	}
	return nil
}

// Update overwrites req.
func (s *SQLiteStore) Update(ctx context.Context, req *pricing.DecisionRequest) error {
	args, err := values(req)
	if err != nil {
		return pricing.NewStorageError("sqlite", "update", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.updateStmt.ExecContext(ctx, append(args, req.ID)...)
	if err != nil {
		return pricing.NewStorageError("sqlite", "update", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", pricing.ErrDecisionNotFound, req.ID)
	}
	return nil
}

// Get returns one request.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*pricing.DecisionRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req, err := scanDecision(s.getStmt.QueryRowContext(ctx, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", pricing.ErrDecisionNotFound, id)
	}
	if err != nil {
		return nil, pricing.NewStorageError("sqlite", "get", err)
	}
	return req, nil
}

// Query returns matching requests by CreatedAt ascending.
func (s *SQLiteStore) Query(ctx context.Context, filter decision.Filter) ([]*pricing.DecisionRequest, error) {
	var (
		where []string
		args  []any
	)
	if filter.ProductID != "" {
		where = append(where, "product_id = ?")
		args = append(args, filter.ProductID)
	}
	if len(filter.Statuses) > 0 {
		marks := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			marks[i] = "?"
			args = append(args, string(st))
		}
		where = append(where, "status IN ("+strings.Join(marks, ", ")+")")
	}
	if !filter.ExpiresBefore.IsZero() {
		where = append(where, "expires_at < ?")
		args = append(args, filter.ExpiresBefore.UnixNano())
	}
	if !filter.CreatedSince.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, filter.CreatedSince.UnixNano())
	}

	query := "SELECT " + decisionColumns + " FROM decisions"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at ASC, id ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, pricing.NewStorageError("sqlite", "query", err)
	}
	defer rows.Close()

	var out []*pricing.DecisionRequest
	for rows.Next() {
		req, err := scanDecision(rows)
		if err != nil {
			return nil, pricing.NewStorageError("sqlite", "scan", err)
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, pricing.NewStorageError("sqlite", "iterate", err)
	}
	return out, nil
}

// Close releases the database. Safe to call more than once.
func (s *SQLiteStore) Close() error {
	var closeErr error
	s.closeOnce.Do(func() {
		for _, stmt := range []*sql.Stmt{s.insertStmt, s.updateStmt, s.getStmt} {
			if stmt != nil {
				stmt.Close()
			}
		}
		closeErr = s.db.Close()
	})
	return closeErr
}
