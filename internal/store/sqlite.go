package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"backtester/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ ResultStore = (*SQLiteStore)(nil)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id              TEXT PRIMARY KEY,
		strategy        TEXT NOT NULL,
		symbol          TEXT NOT NULL,
		interval        TEXT NOT NULL,
		initial_capital TEXT NOT NULL,
		final_capital   TEXT NOT NULL,
		total_trades    INTEGER NOT NULL,
		created_at      INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS trades (
		run_id      TEXT NOT NULL REFERENCES runs(id),
		seq         INTEGER NOT NULL,
		symbol      TEXT NOT NULL,
		quantity    TEXT NOT NULL,
		entry_price TEXT NOT NULL,
		entry_time  INTEGER NOT NULL,
		exit_price  TEXT NOT NULL,
		exit_time   INTEGER NOT NULL,
		pnl         TEXT NOT NULL,
		PRIMARY KEY (run_id, seq)
	)`,
	`CREATE TABLE IF NOT EXISTS metrics (
		run_id TEXT NOT NULL REFERENCES runs(id),
		key    TEXT NOT NULL,
		value  TEXT NOT NULL,
		PRIMARY KEY (run_id, key)
	)`,
	`CREATE INDEX IF NOT EXISTS runs_created_at ON runs(created_at)`,
}

// SQLiteStore implements ResultStore backed by a SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, creates
// the result tables if needed and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrating %s: %w", dbPath, err)
		}
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// ResultStore implementation
// ---------------------------------------------------------------------------

// SaveResult inserts the run, its trades and its metrics in one transaction.
func (s *SQLiteStore) SaveResult(ctx context.Context, r *domain.BacktestResult) (string, error) {
	id := uuid.NewString()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, strategy, symbol, interval, initial_capital, final_capital, total_trades, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, r.StrategyName, r.Symbol, string(r.Interval),
		r.InitialCapital.String(), r.FinalCapital.String(), len(r.Trades), s.now().Unix())
	if err != nil {
		return "", fmt.Errorf("inserting run: %w", err)
	}

	for i, t := range r.Trades {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO trades (run_id, seq, symbol, quantity, entry_price, entry_time, exit_price, exit_time, pnl)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, i, t.Symbol, t.Quantity.String(), t.EntryPrice.String(), t.EntryTime,
			t.ExitPrice.String(), t.ExitTime, t.PnL.String())
		if err != nil {
			return "", fmt.Errorf("inserting trade %d: %w", i, err)
		}
	}

	for k, v := range r.Metrics {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO metrics (run_id, key, value) VALUES (?, ?, ?)`, id, k, v.String())
		if err != nil {
			return "", fmt.Errorf("inserting metric %s: %w", k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return id, nil
}

// GetResult loads a stored run. It returns ErrRunNotFound for unknown ids.
func (s *SQLiteStore) GetResult(ctx context.Context, runID string) (*domain.BacktestResult, error) {
	var (
		r              domain.BacktestResult
		interval       string
		initial, final string
		totalTrades    int
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT strategy, symbol, interval, initial_capital, final_capital, total_trades
		 FROM runs WHERE id = ?`, runID).
		Scan(&r.StrategyName, &r.Symbol, &interval, &initial, &final, &totalTrades)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return nil, err
	}
	r.Interval = domain.Interval(interval)
	if r.InitialCapital, err = decimal.NewFromString(initial); err != nil {
		return nil, fmt.Errorf("initial_capital: %w", err)
	}
	if r.FinalCapital, err = decimal.NewFromString(final); err != nil {
		return nil, fmt.Errorf("final_capital: %w", err)
	}

	if r.Trades, err = s.loadTrades(ctx, runID, totalTrades); err != nil {
		return nil, err
	}
	if r.Metrics, err = s.loadMetrics(ctx, runID); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *SQLiteStore) loadTrades(ctx context.Context, runID string, n int) ([]domain.Trade, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT symbol, quantity, entry_price, entry_time, exit_price, exit_time, pnl
		 FROM trades WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	trades := make([]domain.Trade, 0, n)
	for rows.Next() {
		var (
			t                     domain.Trade
			qty, entry, exit, pnl string
		)
		if err := rows.Scan(&t.Symbol, &qty, &entry, &t.EntryTime, &exit, &t.ExitTime, &pnl); err != nil {
			return nil, err
		}
		if t.Quantity, err = decimal.NewFromString(qty); err != nil {
			return nil, fmt.Errorf("trade quantity: %w", err)
		}
		if t.EntryPrice, err = decimal.NewFromString(entry); err != nil {
			return nil, fmt.Errorf("trade entry_price: %w", err)
		}
		if t.ExitPrice, err = decimal.NewFromString(exit); err != nil {
			return nil, fmt.Errorf("trade exit_price: %w", err)
		}
		if t.PnL, err = decimal.NewFromString(pnl); err != nil {
			return nil, fmt.Errorf("trade pnl: %w", err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

func (s *SQLiteStore) loadMetrics(ctx context.Context, runID string) (map[string]decimal.Decimal, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM metrics WHERE run_id = ?`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	metrics := make(map[string]decimal.Decimal)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		d, err := decimal.NewFromString(v)
		if err != nil {
			return nil, fmt.Errorf("metric %s: %w", k, err)
		}
		metrics[k] = d
	}
	return metrics, rows.Err()
}

// ListRuns returns the most recent runs, newest first. A non-positive limit
// returns every run.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, strategy, symbol, interval, initial_capital, final_capital, total_trades, created_at
		 FROM runs ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var (
			rs       RunSummary
			interval string
		)
		if err := rows.Scan(&rs.ID, &rs.StrategyName, &rs.Symbol, &interval,
			&rs.InitialCapital, &rs.FinalCapital, &rs.TotalTrades, &rs.CreatedAt); err != nil {
			return nil, err
		}
		rs.Interval = domain.Interval(interval)
		runs = append(runs, rs)
	}
	return runs, rows.Err()
}
