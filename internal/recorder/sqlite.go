package recorder

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

// SQLiteRecorder persists operation events to a SQLite database.
type SQLiteRecorder struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string, logger *zap.Logger) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	if logger != nil {
		logger.Info("sqlite journal opened", zap.String("path", dbPath))
	}
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS operations (
			seq           INTEGER PRIMARY KEY AUTOINCREMENT,
			id            TEXT NOT NULL UNIQUE,
			timestamp     INTEGER NOT NULL,
			kind          TEXT NOT NULL,
			caller        TEXT NOT NULL,
			counterparty  TEXT,
			amount        TEXT NOT NULL,
			outcome       TEXT NOT NULL,
			detail        TEXT,
			balance_after TEXT,
			budget_after  TEXT,
			total_after   TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_operations_ts ON operations(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_operations_caller ON operations(caller)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

// RecordOperation inserts evt. Missing ID and timestamp are filled in.
func (r *SQLiteRecorder) RecordOperation(evt *OperationEvent) error {
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.At.IsZero() {
		evt.At = time.Now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO operations
		(id, timestamp, kind, caller, counterparty, amount, outcome, detail,
		 balance_after, budget_after, total_after)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		evt.ID, evt.At.UnixMilli(), string(evt.Kind), evt.Caller, evt.Counterparty,
		evt.Amount, evt.Outcome, evt.Detail,
		evt.BalanceAfter, evt.BudgetAfter, evt.TotalAfter,
	)
	if err != nil {
		return fmt.Errorf("insert operation %s: %w", evt.ID, err)
	}
	return nil
}

// Recent returns up to limit events, newest first.
func (r *SQLiteRecorder) Recent(ctx context.Context, limit int) ([]OperationEvent, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `SELECT
		id, timestamp, kind, caller, counterparty, amount, outcome, detail,
		balance_after, budget_after, total_after
		FROM operations ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query operations: %w", err)
	}
	defer rows.Close()

	var out []OperationEvent
	for rows.Next() {
		var (
			evt  OperationEvent
			ts   int64
			kind string
		)
		if err := rows.Scan(&evt.ID, &ts, &kind, &evt.Caller, &evt.Counterparty, &evt.Amount,
			&evt.Outcome, &evt.Detail, &evt.BalanceAfter, &evt.BudgetAfter, &evt.TotalAfter); err != nil {
			return nil, fmt.Errorf("scan operation: %w", err)
		}
		evt.Kind = Kind(kind)
		evt.At = time.UnixMilli(ts).UTC()
		out = append(out, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate operations: %w", err)
	}
	return out, nil
}

// Close closes the database.
func (r *SQLiteRecorder) Close() error {
	return r.db.Close()
}
