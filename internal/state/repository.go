// Package state implements the State Repository: the durable
// key-value store, order-intent ledger, fill dedupe table, gate table, and
// drawdown/circuit-breaker/equity-curve rows that every other component
// reads and writes through.
package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"market_maker/internal/core"
	"market_maker/pkg/apperrors"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

// Repository is a SQLite-backed implementation of core.StateRepository,
// grounded on the WAL-mode-plus-serializable-transaction pattern of the
// teacher's store_sqlite.go, generalised from one JSON blob into the
// relational tables the data model's uniqueness constraints require.
type Repository struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path and applies the schema.
func Open(path string) (*Repository, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindPersistence, "open database", err)
	}
	if err := db.Ping(); err != nil {
		return nil, apperrors.Wrap(apperrors.KindPersistence, "ping database", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		return nil, apperrors.Wrap(apperrors.KindPersistence, "set WAL mode", err)
	}
	r := &Repository{db: db}
	if err := r.migrate(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS bot_state (key TEXT PRIMARY KEY, value TEXT NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS signal_gates (
			gate_name TEXT PRIMARY KEY,
			last_accepted_bar_ts TEXT,
			last_accepted_ts TEXT,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS order_intents (
			client_order_id TEXT PRIMARY KEY,
			broker_order_id TEXT,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			quantity TEXT NOT NULL,
			limit_price TEXT NOT NULL,
			state TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS fills (
			broker_order_id TEXT NOT NULL,
			client_order_id TEXT NOT NULL,
			filled_qty TEXT NOT NULL,
			filled_price TEXT NOT NULL,
			dedupe_key TEXT NOT NULL,
			filled_at TEXT NOT NULL,
			UNIQUE(broker_order_id, dedupe_key)
		)`,
		`CREATE TABLE IF NOT EXISTS position_tracking (
			symbol TEXT PRIMARY KEY,
			quantity TEXT NOT NULL,
			entry_price TEXT NOT NULL,
			atr_value TEXT NOT NULL,
			trailing_stop_price TEXT NOT NULL,
			last_update_at TEXT NOT NULL,
			pending_exit INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS circuit_breaker_state (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			count INTEGER NOT NULL,
			last_reset_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS drawdown_state (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			level TEXT NOT NULL,
			peak_equity TEXT NOT NULL,
			current_drawdown_pct TEXT NOT NULL,
			last_updated TEXT NOT NULL,
			last_peak_reset_time TEXT NOT NULL,
			manual_recovery_requested INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS equity_curve (
			timestamp TEXT PRIMARY KEY,
			equity TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS bars (
			symbol TEXT NOT NULL,
			timeframe TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			open TEXT NOT NULL,
			high TEXT NOT NULL,
			low TEXT NOT NULL,
			close TEXT NOT NULL,
			volume TEXT NOT NULL,
			UNIQUE(symbol, timeframe, timestamp)
		)`,
		`CREATE TABLE IF NOT EXISTS exit_attempts (
			symbol TEXT PRIMARY KEY,
			attempt_count INTEGER NOT NULL,
			last_attempt_at TEXT NOT NULL,
			next_retry_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS reconciliation_reports (
			id TEXT PRIMARY KEY,
			created_at TEXT NOT NULL,
			body TEXT NOT NULL
		)`,
	}
	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return apperrors.Wrap(apperrors.KindPersistence, "migrate schema", err)
		}
	}
	return nil
}

const rfc3339Nano = time.RFC3339Nano

// GetState / SetState -------------------------------------------------------

func (r *Repository) GetState(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM bot_state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, apperrors.Wrap(apperrors.KindPersistence, "get_state", err)
	}
	return value, true, nil
}

func (r *Repository) SetState(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO bot_state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return apperrors.Wrap(apperrors.KindPersistence, "set_state", err)
	}
	return nil
}

// GateTryAccept implements the serialisable-isolation same-bar + cooldown
// check-and-accept, the repository's only multi-statement transaction.
func (r *Repository) GateTryAccept(ctx context.Context, gate string, barTS, now time.Time, cooldown time.Duration) (bool, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return false, apperrors.Wrap(apperrors.KindPersistence, "gate_try_accept: begin tx", err)
	}
	defer tx.Rollback()

	var lastBarTS, lastTS sql.NullString
	err = tx.QueryRowContext(ctx, `SELECT last_accepted_bar_ts, last_accepted_ts FROM signal_gates WHERE gate_name = ?`, gate).
		Scan(&lastBarTS, &lastTS)
	if err != nil && err != sql.ErrNoRows {
		return false, apperrors.Wrap(apperrors.KindPersistence, "gate_try_accept: read", err)
	}

	if lastBarTS.Valid {
		prevBarTS, perr := time.Parse(rfc3339Nano, lastBarTS.String)
		if perr == nil && prevBarTS.Equal(barTS) {
			return false, nil
		}
	}
	if lastTS.Valid {
		prevTS, perr := time.Parse(rfc3339Nano, lastTS.String)
		if perr == nil && cooldown > 0 && now.Sub(prevTS) < cooldown {
			return false, nil
		}
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO signal_gates (gate_name, last_accepted_bar_ts, last_accepted_ts, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(gate_name) DO UPDATE SET
			last_accepted_bar_ts = excluded.last_accepted_bar_ts,
			last_accepted_ts = excluded.last_accepted_ts,
			updated_at = excluded.updated_at`,
		gate, barTS.Format(rfc3339Nano), now.Format(rfc3339Nano), now.Format(rfc3339Nano))
	if err != nil {
		return false, apperrors.Wrap(apperrors.KindPersistence, "gate_try_accept: write", err)
	}

	if err := tx.Commit(); err != nil {
		return false, apperrors.Wrap(apperrors.KindPersistence, "gate_try_accept: commit", err)
	}
	return true, nil
}

// Order intents --------------------------------------------------------------

func (r *Repository) SaveOrderIntent(ctx context.Context, oi core.OrderIntent) error {
	_, exists, err := r.GetOrderIntent(ctx, oi.ClientOrderID)
	if err != nil {
		return err
	}
	if exists {
		return nil // idempotent by client_order_id
	}
	_, err = r.db.ExecContext(ctx, `INSERT INTO order_intents
		(client_order_id, broker_order_id, symbol, side, quantity, limit_price, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		oi.ClientOrderID, oi.BrokerOrderID, oi.Symbol, string(oi.Side),
		oi.Quantity.String(), oi.LimitPrice.String(), string(oi.State),
		oi.CreatedAt.Format(rfc3339Nano), nullableTime(oi.UpdatedAt))
	if err != nil {
		return apperrors.Wrap(apperrors.KindPersistence, "save_order_intent", err)
	}
	return nil
}

func (r *Repository) UpdateOrderIntent(ctx context.Context, clientOrderID, brokerOrderID string, st core.OrderState, updatedAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE order_intents SET broker_order_id = ?, state = ?, updated_at = ? WHERE client_order_id = ?`,
		brokerOrderID, string(st), updatedAt.Format(rfc3339Nano), clientOrderID)
	if err != nil {
		return apperrors.Wrap(apperrors.KindPersistence, "update_order_intent", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperrors.New(apperrors.KindPersistence, fmt.Sprintf("update_order_intent: no row for %s", clientOrderID))
	}
	return nil
}

func (r *Repository) GetOrderIntent(ctx context.Context, clientOrderID string) (core.OrderIntent, bool, error) {
	row := r.db.QueryRowContext(ctx, `SELECT client_order_id, broker_order_id, symbol, side, quantity, limit_price, state, created_at, updated_at
		FROM order_intents WHERE client_order_id = ?`, clientOrderID)
	oi, err := scanOrderIntent(row)
	if err == sql.ErrNoRows {
		return core.OrderIntent{}, false, nil
	}
	if err != nil {
		return core.OrderIntent{}, false, apperrors.Wrap(apperrors.KindPersistence, "get_order_intent", err)
	}
	return oi, true, nil
}

func (r *Repository) ListOpenOrderIntents(ctx context.Context) ([]core.OrderIntent, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT client_order_id, broker_order_id, symbol, side, quantity, limit_price, state, created_at, updated_at
		FROM order_intents WHERE state IN (?, ?, ?, ?)`,
		string(core.OrderPendingNew), string(core.OrderAccepted), string(core.OrderPendingCancel), string(core.OrderPendingReplace))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindPersistence, "list_open_order_intents", err)
	}
	defer rows.Close()

	var out []core.OrderIntent
	for rows.Next() {
		oi, err := scanOrderIntentRows(rows)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.KindPersistence, "list_open_order_intents: scan", err)
		}
		out = append(out, oi)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrderIntent(row rowScanner) (core.OrderIntent, error) {
	return scanOrderIntentRows(row)
}

func scanOrderIntentRows(row rowScanner) (core.OrderIntent, error) {
	var oi core.OrderIntent
	var brokerOrderID, updatedAt sql.NullString
	var qty, price string
	var side, st, createdAt string
	err := row.Scan(&oi.ClientOrderID, &brokerOrderID, &oi.Symbol, &side, &qty, &price, &st, &createdAt, &updatedAt)
	if err != nil {
		return core.OrderIntent{}, err
	}
	oi.BrokerOrderID = brokerOrderID.String
	oi.Side = core.Side(side)
	oi.Quantity, err = decimal.NewFromString(qty)
	if err != nil {
		return core.OrderIntent{}, err
	}
	oi.LimitPrice, err = decimal.NewFromString(price)
	if err != nil {
		return core.OrderIntent{}, err
	}
	oi.State = core.OrderState(st)
	oi.CreatedAt, err = time.Parse(rfc3339Nano, createdAt)
	if err != nil {
		return core.OrderIntent{}, err
	}
	if updatedAt.Valid && updatedAt.String != "" {
		oi.UpdatedAt, _ = time.Parse(rfc3339Nano, updatedAt.String)
	}
	return oi, nil
}

// Fills -----------------------------------------------------------------------

// InsertFillIdempotent returns (inserted, err): inserted is false when the
// (broker_order_id, dedupe_key) pair already existed.
func (r *Repository) InsertFillIdempotent(ctx context.Context, f core.Fill) (bool, error) {
	_, err := r.db.ExecContext(ctx, `INSERT INTO fills (broker_order_id, client_order_id, filled_qty, filled_price, dedupe_key, filled_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		f.BrokerOrderID, f.ClientOrderID, f.FilledQty.String(), f.FilledPrice.String(), f.DedupeKey, f.FilledAt.Format(rfc3339Nano))
	if err != nil {
		if isUniqueConstraintErr(err) {
			return false, nil
		}
		return false, apperrors.Wrap(apperrors.KindPersistence, "insert_fill_idempotent", err)
	}
	return true, nil
}

func isUniqueConstraintErr(err error) bool {
	sqliteErr, ok := err.(sqlite3.Error)
	return ok && sqliteErr.Code == sqlite3.ErrConstraint
}

// Exit attempts -----------------------------------------------------------------

func (r *Repository) GetExitBackoffSeconds(ctx context.Context, symbol string) (int, error) {
	var attempt int
	err := r.db.QueryRowContext(ctx, `SELECT attempt_count FROM exit_attempts WHERE symbol = ?`, symbol).Scan(&attempt)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, apperrors.Wrap(apperrors.KindPersistence, "get_exit_backoff_seconds", err)
	}
	if attempt <= 0 {
		return 0, nil
	}
	return backoffSeconds(attempt), nil
}

// backoffSeconds implements min(2^(attempt-1), 300).
func backoffSeconds(attempt int) int {
	seconds := 1 << uint(attempt-1)
	if seconds > 300 || seconds <= 0 {
		return 300
	}
	return seconds
}

func (r *Repository) RecordExitAttempt(ctx context.Context, symbol string, at time.Time) error {
	var attempt int
	err := r.db.QueryRowContext(ctx, `SELECT attempt_count FROM exit_attempts WHERE symbol = ?`, symbol).Scan(&attempt)
	if err != nil && err != sql.ErrNoRows {
		return apperrors.Wrap(apperrors.KindPersistence, "record_exit_attempt: read", err)
	}
	attempt++
	next := at.Add(time.Duration(backoffSeconds(attempt)) * time.Second)
	_, err = r.db.ExecContext(ctx, `INSERT INTO exit_attempts (symbol, attempt_count, last_attempt_at, next_retry_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET attempt_count = excluded.attempt_count, last_attempt_at = excluded.last_attempt_at, next_retry_at = excluded.next_retry_at`,
		symbol, attempt, at.Format(rfc3339Nano), next.Format(rfc3339Nano))
	if err != nil {
		return apperrors.Wrap(apperrors.KindPersistence, "record_exit_attempt: write", err)
	}
	return nil
}

func (r *Repository) ClearExitAttempt(ctx context.Context, symbol string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM exit_attempts WHERE symbol = ?`, symbol)
	if err != nil {
		return apperrors.Wrap(apperrors.KindPersistence, "clear_exit_attempt", err)
	}
	return nil
}

// Circuit breaker -----------------------------------------------------------------

func (r *Repository) GetCircuitBreakerCount(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT count FROM circuit_breaker_state WHERE id = 1`).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, apperrors.Wrap(apperrors.KindPersistence, "get_circuit_breaker_count", err)
	}
	return count, nil
}

func (r *Repository) SaveCircuitBreakerCount(ctx context.Context, n int) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO circuit_breaker_state (id, count, last_reset_at) VALUES (1, ?, COALESCE((SELECT last_reset_at FROM circuit_breaker_state WHERE id = 1), ?))
		ON CONFLICT(id) DO UPDATE SET count = excluded.count`, n, time.Now().UTC().Format(rfc3339Nano))
	if err != nil {
		return apperrors.Wrap(apperrors.KindPersistence, "save_circuit_breaker_count", err)
	}
	return nil
}

func (r *Repository) ResetCircuitBreaker(ctx context.Context, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO circuit_breaker_state (id, count, last_reset_at) VALUES (1, 0, ?)
		ON CONFLICT(id) DO UPDATE SET count = 0, last_reset_at = excluded.last_reset_at`, at.Format(rfc3339Nano))
	if err != nil {
		return apperrors.Wrap(apperrors.KindPersistence, "reset_circuit_breaker", err)
	}
	return nil
}

// Drawdown ------------------------------------------------------------------------

func (r *Repository) GetDrawdownState(ctx context.Context) (core.DrawdownState, error) {
	var level, peak, pct, lastUpdated, lastPeakReset string
	var manualRecovery int
	err := r.db.QueryRowContext(ctx, `SELECT level, peak_equity, current_drawdown_pct, last_updated, last_peak_reset_time, manual_recovery_requested
		FROM drawdown_state WHERE id = 1`).Scan(&level, &peak, &pct, &lastUpdated, &lastPeakReset, &manualRecovery)
	if err == sql.ErrNoRows {
		return core.DrawdownState{Level: core.DrawdownNormal, PeakEquity: decimal.Zero, CurrentDrawdownPct: decimal.Zero}, nil
	}
	if err != nil {
		return core.DrawdownState{}, apperrors.Wrap(apperrors.KindPersistence, "get_drawdown_state", err)
	}
	peakDec, _ := decimal.NewFromString(peak)
	pctDec, _ := decimal.NewFromString(pct)
	lu, _ := time.Parse(rfc3339Nano, lastUpdated)
	lpr, _ := time.Parse(rfc3339Nano, lastPeakReset)
	return core.DrawdownState{
		Level:                   core.DrawdownLevel(level),
		PeakEquity:              peakDec,
		CurrentDrawdownPct:      pctDec,
		LastUpdated:             lu,
		LastPeakResetTime:       lpr,
		ManualRecoveryRequested: manualRecovery != 0,
	}, nil
}

func (r *Repository) SaveDrawdownState(ctx context.Context, s core.DrawdownState) error {
	mr := 0
	if s.ManualRecoveryRequested {
		mr = 1
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO drawdown_state (id, level, peak_equity, current_drawdown_pct, last_updated, last_peak_reset_time, manual_recovery_requested)
		VALUES (1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET level=excluded.level, peak_equity=excluded.peak_equity, current_drawdown_pct=excluded.current_drawdown_pct,
			last_updated=excluded.last_updated, last_peak_reset_time=excluded.last_peak_reset_time, manual_recovery_requested=excluded.manual_recovery_requested`,
		string(s.Level), s.PeakEquity.String(), s.CurrentDrawdownPct.String(), s.LastUpdated.Format(rfc3339Nano), s.LastPeakResetTime.Format(rfc3339Nano), mr)
	if err != nil {
		return apperrors.Wrap(apperrors.KindPersistence, "save_drawdown_state", err)
	}
	return nil
}

// Equity curve ----------------------------------------------------------------------

func (r *Repository) InsertEquitySnapshot(ctx context.Context, p core.EquityPoint) error {
	_, err := r.db.ExecContext(ctx, `INSERT OR IGNORE INTO equity_curve (timestamp, equity) VALUES (?, ?)`,
		p.Timestamp.Format(rfc3339Nano), p.Equity.String())
	if err != nil {
		return apperrors.Wrap(apperrors.KindPersistence, "insert_equity_snapshot", err)
	}
	return nil
}

// Position tracking --------------------------------------------------------------------

func (r *Repository) SavePosition(ctx context.Context, p core.PositionTracking) error {
	pending := 0
	if p.PendingExit {
		pending = 1
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO position_tracking (symbol, quantity, entry_price, atr_value, trailing_stop_price, last_update_at, pending_exit)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET quantity=excluded.quantity, entry_price=excluded.entry_price, atr_value=excluded.atr_value,
			trailing_stop_price=excluded.trailing_stop_price, last_update_at=excluded.last_update_at, pending_exit=excluded.pending_exit`,
		p.Symbol, p.Quantity.String(), p.EntryPrice.String(), p.ATRValue.String(), p.TrailingStopPrice.String(), p.LastUpdateAt.Format(rfc3339Nano), pending)
	if err != nil {
		return apperrors.Wrap(apperrors.KindPersistence, "save_position", err)
	}
	return nil
}

func (r *Repository) GetPosition(ctx context.Context, symbol string) (core.PositionTracking, bool, error) {
	row := r.db.QueryRowContext(ctx, `SELECT symbol, quantity, entry_price, atr_value, trailing_stop_price, last_update_at, pending_exit
		FROM position_tracking WHERE symbol = ?`, symbol)
	p, err := scanPosition(row)
	if err == sql.ErrNoRows {
		return core.PositionTracking{}, false, nil
	}
	if err != nil {
		return core.PositionTracking{}, false, apperrors.Wrap(apperrors.KindPersistence, "get_position", err)
	}
	return p, true, nil
}

func (r *Repository) ListPositions(ctx context.Context) ([]core.PositionTracking, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT symbol, quantity, entry_price, atr_value, trailing_stop_price, last_update_at, pending_exit FROM position_tracking`)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindPersistence, "list_positions", err)
	}
	defer rows.Close()
	var out []core.PositionTracking
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.KindPersistence, "list_positions: scan", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repository) DeletePosition(ctx context.Context, symbol string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM position_tracking WHERE symbol = ?`, symbol)
	if err != nil {
		return apperrors.Wrap(apperrors.KindPersistence, "delete_position", err)
	}
	return nil
}

func scanPosition(row rowScanner) (core.PositionTracking, error) {
	var p core.PositionTracking
	var qty, entry, atr, trailing, lastUpdate string
	var pending int
	err := row.Scan(&p.Symbol, &qty, &entry, &atr, &trailing, &lastUpdate, &pending)
	if err != nil {
		return core.PositionTracking{}, err
	}
	p.Quantity, _ = decimal.NewFromString(qty)
	p.EntryPrice, _ = decimal.NewFromString(entry)
	p.ATRValue, _ = decimal.NewFromString(atr)
	p.TrailingStopPrice, _ = decimal.NewFromString(trailing)
	p.LastUpdateAt, _ = time.Parse(rfc3339Nano, lastUpdate)
	p.PendingExit = pending != 0
	return p, nil
}

// Bars -----------------------------------------------------------------------------------

func (r *Repository) SaveBar(ctx context.Context, b core.Bar) error {
	_, err := r.db.ExecContext(ctx, `INSERT OR IGNORE INTO bars (symbol, timeframe, timestamp, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		b.Symbol, b.Timeframe, b.Timestamp.Format(rfc3339Nano), b.Open.String(), b.High.String(), b.Low.String(), b.Close.String(), b.Volume.String())
	if err != nil {
		return apperrors.Wrap(apperrors.KindPersistence, "save_bar", err)
	}
	return nil
}

// Reconciliation reports -----------------------------------------------------------------

func (r *Repository) InsertReconciliationReport(ctx context.Context, rep core.ReconciliationReport) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO reconciliation_reports (id, created_at, body) VALUES (?, ?, ?)`,
		rep.ID, rep.CreatedAt.Format(rfc3339Nano), rep.Body)
	if err != nil {
		return apperrors.Wrap(apperrors.KindPersistence, "insert_reconciliation_report", err)
	}
	return nil
}

func nullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.Format(rfc3339Nano)
}

var _ core.StateRepository = (*Repository)(nil)
