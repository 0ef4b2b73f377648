package db

import "fmt"

const schema = `
PRAGMA journal_mode=WAL;

CREATE TABLE IF NOT EXISTS observations (
    symbol TEXT NOT NULL,
    ts DATETIME NOT NULL,
    last REAL NOT NULL,
    open REAL,
    high REAL,
    low REAL,
    volume REAL,
    buy_aggression REAL,
    sell_aggression REAL,
    aggression_balance REAL,
    PRIMARY KEY(symbol, ts)
);

CREATE TABLE IF NOT EXISTS orders (
    id TEXT PRIMARY KEY,
    broker_ticket TEXT,
    symbol TEXT NOT NULL,
    direction TEXT NOT NULL,
    volume REAL NOT NULL,
    requested_price REAL NOT NULL,
    stop_price REAL DEFAULT 0,
    target_price REAL DEFAULT 0,
    status TEXT NOT NULL,
    profile TEXT,
    decision_id TEXT,
    opened_at DATETIME,
    closed_at DATETIME,
    close_reason TEXT,
    realized_profit REAL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);

CREATE TABLE IF NOT EXISTS daily_stats (
    date TEXT PRIMARY KEY,
    trades INTEGER DEFAULT 0,
    pnl REAL DEFAULT 0,
    wins INTEGER DEFAULT 0,
    losses INTEGER DEFAULT 0
);

CREATE TABLE IF NOT EXISTS processed_decisions (
    decision_id TEXT PRIMARY KEY,
    processed_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS quality_issues (
    symbol TEXT NOT NULL,
    analysis TEXT NOT NULL,
    missing_fields TEXT,
    first_detected DATETIME,
    occurrences INTEGER DEFAULT 0,
    PRIMARY KEY(symbol, analysis)
);
`

// ApplyMigrations bootstraps the schema; keep lightweight for fast startup.
func ApplyMigrations(d *Database) error {
	if d == nil || d.DB == nil {
		return fmt.Errorf("database is not initialized")
	}
	if _, err := d.DB.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
