package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ----------------------------------------
// Observations
// ----------------------------------------

// AppendObservation inserts one observation row. Duplicate (symbol, ts)
// pairs are ignored so a replayed feed does not error the writer.
func (d *Database) AppendObservation(ctx context.Context, o Observation) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT OR IGNORE INTO observations (
			symbol, ts, last, open, high, low, volume,
			buy_aggression, sell_aggression, aggression_balance
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		o.Symbol, o.Timestamp, o.Last, o.Open, o.High, o.Low, o.Volume,
		o.BuyAggression, o.SellAggression, o.AggressionBalance,
	)
	if err != nil {
		return fmt.Errorf("append observation: %w", err)
	}
	return nil
}

// AppendObservations inserts a batch in one transaction. Used by the
// batch writer on the ingestion path; duplicates are ignored like in
// AppendObservation.
func (d *Database) AppendObservations(ctx context.Context, batch []Observation) error {
	if len(batch) == 0 {
		return nil
	}
	tx, err := d.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin observation batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO observations (
			symbol, ts, last, open, high, low, volume,
			buy_aggression, sell_aggression, aggression_balance
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare observation batch: %w", err)
	}
	defer stmt.Close()

	for _, o := range batch {
		if _, err := stmt.ExecContext(ctx,
			o.Symbol, o.Timestamp, o.Last, o.Open, o.High, o.Low, o.Volume,
			o.BuyAggression, o.SellAggression, o.AggressionBalance,
		); err != nil {
			return fmt.Errorf("append observation batch: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit observation batch: %w", err)
	}
	return nil
}

// RecentObservations returns the most recent k rows for a symbol,
// ascending by timestamp so callers can index the newest point at the end.
func (d *Database) RecentObservations(ctx context.Context, symbol string, k int) ([]Observation, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT symbol, ts, last, open, high, low, volume,
		       buy_aggression, sell_aggression, aggression_balance
		FROM (
			SELECT * FROM observations
			WHERE symbol = ?
			ORDER BY ts DESC
			LIMIT ?
		) ORDER BY ts ASC
	`, symbol, k)
	if err != nil {
		return nil, fmt.Errorf("query observations: %w", err)
	}
	defer rows.Close()

	var res []Observation
	for rows.Next() {
		var o Observation
		if err := rows.Scan(&o.Symbol, &o.Timestamp, &o.Last, &o.Open, &o.High, &o.Low,
			&o.Volume, &o.BuyAggression, &o.SellAggression, &o.AggressionBalance); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		res = append(res, o)
	}
	return res, rows.Err()
}

// ----------------------------------------
// Orders
// ----------------------------------------

// CreateOrder inserts a new order row.
func (d *Database) CreateOrder(ctx context.Context, o Order) error {
	var openedAt any
	if !o.OpenedAt.IsZero() {
		openedAt = o.OpenedAt
	}
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO orders (
			id, broker_ticket, symbol, direction, volume, requested_price,
			stop_price, target_price, status, profile, decision_id, opened_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, COALESCE(?, CURRENT_TIMESTAMP))
	`,
		o.ID, nullIfEmpty(o.BrokerTicket), o.Symbol, o.Direction, o.Volume, o.RequestedPrice,
		o.StopPrice, o.TargetPrice, o.Status, o.Profile, o.DecisionID, openedAt, nullIfZeroTime(o.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

// CloseOrder marks an order closed with its realized result.
func (d *Database) CloseOrder(ctx context.Context, id string, closedAt time.Time, profit float64, reason string) error {
	res, err := d.DB.ExecContext(ctx, `
		UPDATE orders
		SET status = ?, closed_at = ?, realized_profit = ?, close_reason = ?
		WHERE id = ? AND status = ?
	`, OrderClosed, closedAt, profit, reason, id, OrderOpen)
	if err != nil {
		return fmt.Errorf("close order: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// OpenOrders returns orders currently open at the broker.
func (d *Database) OpenOrders(ctx context.Context) ([]Order, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, COALESCE(broker_ticket, ''), symbol, direction, volume, requested_price,
		       stop_price, target_price, status, COALESCE(profile, ''), COALESCE(decision_id, ''),
		       COALESCE(opened_at, created_at), created_at
		FROM orders WHERE status = ?
		ORDER BY created_at ASC
	`, OrderOpen)
	if err != nil {
		return nil, fmt.Errorf("query open orders: %w", err)
	}
	defer rows.Close()

	var res []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.BrokerTicket, &o.Symbol, &o.Direction, &o.Volume,
			&o.RequestedPrice, &o.StopPrice, &o.TargetPrice, &o.Status, &o.Profile,
			&o.DecisionID, &o.OpenedAt, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		res = append(res, o)
	}
	return res, rows.Err()
}

// RecentOrders returns the latest order attempts, newest first.
func (d *Database) RecentOrders(ctx context.Context, limit int) ([]Order, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, COALESCE(broker_ticket, ''), symbol, direction, volume, requested_price,
		       stop_price, target_price, status, COALESCE(profile, ''), COALESCE(decision_id, ''),
		       COALESCE(opened_at, created_at), created_at
		FROM orders
		ORDER BY created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var res []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.BrokerTicket, &o.Symbol, &o.Direction, &o.Volume,
			&o.RequestedPrice, &o.StopPrice, &o.TargetPrice, &o.Status, &o.Profile,
			&o.DecisionID, &o.OpenedAt, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		res = append(res, o)
	}
	return res, rows.Err()
}

// CountOrdersForDecision reports how many order rows exist for a decision.
func (d *Database) CountOrdersForDecision(ctx context.Context, decisionID string) (int, error) {
	var n int
	err := d.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM orders WHERE decision_id = ?`, decisionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count orders for decision: %w", err)
	}
	return n, nil
}

// ----------------------------------------
// Daily stats
// ----------------------------------------

// GetDailyStats returns the row for a date, or a zeroed row when absent.
func (d *Database) GetDailyStats(ctx context.Context, date string) (DailyStats, error) {
	s := DailyStats{Date: date}
	err := d.DB.QueryRowContext(ctx, `
		SELECT date, trades, pnl, wins, losses FROM daily_stats WHERE date = ?
	`, date).Scan(&s.Date, &s.Trades, &s.PnL, &s.Wins, &s.Losses)
	if err == sql.ErrNoRows {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("query daily stats: %w", err)
	}
	return s, nil
}

// RecordTradeResult folds one closed trade into the day's row.
func (d *Database) RecordTradeResult(ctx context.Context, date string, profit float64) error {
	win, loss := 0, 0
	if profit > 0 {
		win = 1
	} else if profit < 0 {
		loss = 1
	}
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO daily_stats (date, trades, pnl, wins, losses)
		VALUES (?, 1, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			trades = trades + 1,
			pnl = pnl + excluded.pnl,
			wins = wins + excluded.wins,
			losses = losses + excluded.losses
	`, date, profit, win, loss)
	if err != nil {
		return fmt.Errorf("record trade result: %w", err)
	}
	return nil
}

// ----------------------------------------
// Decision dedup ledger
// ----------------------------------------

// MarkDecisionProcessed records a decision identity. It returns true when
// the identity was new, false when it had been recorded before; the caller
// must skip execution in the latter case.
func (d *Database) MarkDecisionProcessed(ctx context.Context, decisionID string) (bool, error) {
	res, err := d.DB.ExecContext(ctx, `
		INSERT OR IGNORE INTO processed_decisions (decision_id) VALUES (?)
	`, decisionID)
	if err != nil {
		return false, fmt.Errorf("mark decision processed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ----------------------------------------
// Data quality issues
// ----------------------------------------

// UpsertQualityIssue increments the occurrence counter for a
// (symbol, analysis) pair and returns the updated count.
func (d *Database) UpsertQualityIssue(ctx context.Context, symbol, analysis, missingFields string, at time.Time) (int, error) {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO quality_issues (symbol, analysis, missing_fields, first_detected, occurrences)
		VALUES (?, ?, ?, ?, 1)
		ON CONFLICT(symbol, analysis) DO UPDATE SET
			missing_fields = excluded.missing_fields,
			occurrences = occurrences + 1
	`, symbol, analysis, missingFields, at)
	if err != nil {
		return 0, fmt.Errorf("upsert quality issue: %w", err)
	}

	var count int
	err = d.DB.QueryRowContext(ctx,
		`SELECT occurrences FROM quality_issues WHERE symbol = ? AND analysis = ?`,
		symbol, analysis).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("read quality issue count: %w", err)
	}
	return count, nil
}

// ListQualityIssues returns all recorded issues for the diagnostics surface.
func (d *Database) ListQualityIssues(ctx context.Context) ([]QualityIssue, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT symbol, analysis, COALESCE(missing_fields, ''), first_detected, occurrences
		FROM quality_issues
		ORDER BY occurrences DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query quality issues: %w", err)
	}
	defer rows.Close()

	var res []QualityIssue
	for rows.Next() {
		var q QualityIssue
		if err := rows.Scan(&q.Symbol, &q.Analysis, &q.MissingFields, &q.FirstDetected, &q.Occurrences); err != nil {
			return nil, fmt.Errorf("scan quality issue: %w", err)
		}
		res = append(res, q)
	}
	return res, rows.Err()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullIfZeroTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
