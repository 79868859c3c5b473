// Package journal persists the full trading history to DuckDB. The
// ledger keeps a bounded window in memory; the journal keeps
// everything and feeds the inspection TUI and report generation.
package journal

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/moznion/go-optional"
	"go.uber.org/zap"

	"github.com/meridian-lab/meridian-trading/internal/logger"
	"github.com/meridian-lab/meridian-trading/internal/types"
)

// InMemory opens a throwaway journal, used by replay runs and tests.
const InMemory = ":memory:"

type Journal struct {
	db     *sql.DB
	logger *logger.Logger
	sq     squirrel.StatementBuilderType
}

// NewJournal opens (or creates) the journal database at path and
// ensures the schema exists.
func NewJournal(path string, log *logger.Logger) (*Journal, error) {
	if path != InMemory {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}

	journal := &Journal{
		db:     db,
		logger: log,
		sq:     squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
	}

	if err := journal.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return journal, nil
}

func (j *Journal) initialize() error {
	_, err := j.db.Exec(`
		CREATE TABLE IF NOT EXISTS trades (
			trade_id TEXT PRIMARY KEY,
			instrument TEXT,
			side TEXT,
			entry_price DOUBLE,
			entry_time TIMESTAMP,
			lots INTEGER,
			lot_size DOUBLE,
			margin_used DOUBLE,
			stop_loss DOUBLE,
			take_profit DOUBLE,
			status TEXT,
			exit_price DOUBLE,
			exit_time TIMESTAMP,
			exit_reason TEXT,
			realized_pnl DOUBLE,
			realized_pnl_pct DOUBLE,
			max_favorable_excursion DOUBLE,
			max_adverse_excursion DOUBLE,
			adopted BOOLEAN
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create trades table: %w", err)
	}

	_, err = j.db.Exec(`
		CREATE TABLE IF NOT EXISTS signals (
			signal_id TEXT PRIMARY KEY,
			time TIMESTAMP,
			instrument TEXT,
			action TEXT,
			price DOUBLE,
			confidence DOUBLE,
			stop_loss DOUBLE,
			take_profit DOUBLE,
			reason TEXT,
			provider TEXT,
			outcome TEXT,
			detail TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create signals table: %w", err)
	}

	_, err = j.db.Exec(`
		CREATE TABLE IF NOT EXISTS equity (
			time TIMESTAMP,
			balance DOUBLE
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create equity table: %w", err)
	}

	return nil
}

// RecordTrade upserts a trade by ID. It is called once when the trade
// opens and again when it settles, so the row always holds the latest
// lifecycle state.
func (j *Journal) RecordTrade(trade types.Trade) error {
	insertQuery := j.sq.
		Insert("trades").
		Options("OR REPLACE").
		Columns(
			"trade_id", "instrument", "side", "entry_price", "entry_time",
			"lots", "lot_size", "margin_used", "stop_loss", "take_profit",
			"status", "exit_price", "exit_time", "exit_reason",
			"realized_pnl", "realized_pnl_pct",
			"max_favorable_excursion", "max_adverse_excursion", "adopted",
		).
		Values(
			trade.ID, trade.Instrument, trade.Side, trade.EntryPrice, trade.EntryTime,
			trade.Lots, trade.LotSize, trade.MarginUsed,
			optionFloat(trade.StopLoss), optionFloat(trade.TakeProfit),
			trade.Status, optionFloat(trade.ExitPrice), optionTime(trade.ExitTime), optionReason(trade.ExitReason),
			trade.RealizedPnL, trade.RealizedPnLPct,
			trade.MaxFavorableExcursion, trade.MaxAdverseExcursion, trade.Adopted,
		).
		RunWith(j.db)

	if _, err := insertQuery.Exec(); err != nil {
		return fmt.Errorf("failed to record trade: %w", err)
	}

	return nil
}

// RecordSignal appends one signal evaluation.
func (j *Journal) RecordSignal(record types.SignalRecord) error {
	insertQuery := j.sq.
		Insert("signals").
		Columns(
			"signal_id", "time", "instrument", "action", "price", "confidence",
			"stop_loss", "take_profit", "reason", "provider", "outcome", "detail",
		).
		Values(
			uuid.New().String(), record.Time, record.Instrument,
			record.Signal.Action, record.Signal.Price, record.Signal.Confidence,
			optionFloat(record.Signal.StopLoss), optionFloat(record.Signal.TakeProfit),
			record.Signal.Reason, record.Signal.Source.Provider,
			record.Outcome, record.Detail,
		).
		RunWith(j.db)

	if _, err := insertQuery.Exec(); err != nil {
		return fmt.Errorf("failed to record signal: %w", err)
	}

	return nil
}

// RecordEquity appends one equity curve point.
func (j *Journal) RecordEquity(point types.EquityPoint) error {
	insertQuery := j.sq.
		Insert("equity").
		Columns("time", "balance").
		Values(point.Time, point.Balance).
		RunWith(j.db)

	if _, err := insertQuery.Exec(); err != nil {
		return fmt.Errorf("failed to record equity point: %w", err)
	}

	return nil
}

// Trades returns journaled trades matching the filter, oldest first.
// A positive Limit returns the most recent matches.
func (j *Journal) Trades(filter types.TradeFilter) ([]types.Trade, error) {
	selectQuery := j.sq.
		Select(
			"trade_id", "instrument", "side", "entry_price", "entry_time",
			"lots", "lot_size", "margin_used", "stop_loss", "take_profit",
			"status", "exit_price", "exit_time", "exit_reason",
			"realized_pnl", "realized_pnl_pct",
			"max_favorable_excursion", "max_adverse_excursion", "adopted",
		).
		From("trades")

	if filter.Instrument != "" {
		selectQuery = selectQuery.Where(squirrel.Eq{"instrument": filter.Instrument})
	}

	if filter.Status != "" {
		selectQuery = selectQuery.Where(squirrel.Eq{"status": string(filter.Status)})
	}

	if filter.Limit > 0 {
		selectQuery = selectQuery.OrderBy("entry_time DESC").Limit(uint64(filter.Limit))
	} else {
		selectQuery = selectQuery.OrderBy("entry_time ASC")
	}

	rows, err := selectQuery.RunWith(j.db).Query()
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []types.Trade

	for rows.Next() {
		var (
			trade      types.Trade
			side       string
			status     string
			stopLoss   sql.NullFloat64
			takeProfit sql.NullFloat64
			exitPrice  sql.NullFloat64
			exitTime   sql.NullTime
			exitReason sql.NullString
		)

		err := rows.Scan(
			&trade.ID, &trade.Instrument, &side, &trade.EntryPrice, &trade.EntryTime,
			&trade.Lots, &trade.LotSize, &trade.MarginUsed, &stopLoss, &takeProfit,
			&status, &exitPrice, &exitTime, &exitReason,
			&trade.RealizedPnL, &trade.RealizedPnLPct,
			&trade.MaxFavorableExcursion, &trade.MaxAdverseExcursion, &trade.Adopted,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}

		trade.Side = types.Side(side)
		trade.Status = types.TradeStatus(status)

		if stopLoss.Valid {
			trade.StopLoss = optional.Some(stopLoss.Float64)
		}

		if takeProfit.Valid {
			trade.TakeProfit = optional.Some(takeProfit.Float64)
		}

		if exitPrice.Valid {
			trade.ExitPrice = optional.Some(exitPrice.Float64)
		}

		if exitTime.Valid {
			trade.ExitTime = optional.Some(exitTime.Time)
		}

		if exitReason.Valid {
			trade.ExitReason = optional.Some(types.ExitReason(exitReason.String))
		}

		trades = append(trades, trade)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trades: %w", err)
	}

	if filter.Limit > 0 {
		reverse(trades)
	}

	return trades, nil
}

// Signals returns the most recent limit signal records, oldest first.
// A non-positive limit returns everything.
func (j *Journal) Signals(limit int) ([]types.SignalRecord, error) {
	selectQuery := j.sq.
		Select(
			"time", "instrument", "action", "price", "confidence",
			"stop_loss", "take_profit", "reason", "provider", "outcome", "detail",
		).
		From("signals")

	if limit > 0 {
		selectQuery = selectQuery.OrderBy("time DESC").Limit(uint64(limit))
	} else {
		selectQuery = selectQuery.OrderBy("time ASC")
	}

	rows, err := selectQuery.RunWith(j.db).Query()
	if err != nil {
		return nil, fmt.Errorf("failed to query signals: %w", err)
	}
	defer rows.Close()

	var records []types.SignalRecord

	for rows.Next() {
		var (
			record     types.SignalRecord
			action     string
			stopLoss   sql.NullFloat64
			takeProfit sql.NullFloat64
			outcome    string
		)

		err := rows.Scan(
			&record.Time, &record.Instrument, &action,
			&record.Signal.Price, &record.Signal.Confidence,
			&stopLoss, &takeProfit, &record.Signal.Reason,
			&record.Signal.Source.Provider, &outcome, &record.Detail,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan signal: %w", err)
		}

		record.Signal.Time = record.Time
		record.Signal.Instrument = record.Instrument
		record.Signal.Action = types.SignalAction(action)
		record.Outcome = types.SignalOutcome(outcome)

		if stopLoss.Valid {
			record.Signal.StopLoss = optional.Some(stopLoss.Float64)
		}

		if takeProfit.Valid {
			record.Signal.TakeProfit = optional.Some(takeProfit.Float64)
		}

		records = append(records, record)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating signals: %w", err)
	}

	if limit > 0 {
		reverse(records)
	}

	return records, nil
}

// EquityCurve returns all equity points in time order.
func (j *Journal) EquityCurve() ([]types.EquityPoint, error) {
	selectQuery := j.sq.
		Select("time", "balance").
		From("equity").
		OrderBy("time ASC").
		RunWith(j.db)

	rows, err := selectQuery.Query()
	if err != nil {
		return nil, fmt.Errorf("failed to query equity curve: %w", err)
	}
	defer rows.Close()

	var points []types.EquityPoint

	for rows.Next() {
		var point types.EquityPoint
		if err := rows.Scan(&point.Time, &point.Balance); err != nil {
			return nil, fmt.Errorf("failed to scan equity point: %w", err)
		}

		points = append(points, point)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating equity points: %w", err)
	}

	return points, nil
}

// Export writes the journal tables to Parquet files in the directory.
func (j *Journal) Export(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// COPY has no placeholder support, so paths are interpolated.
	for _, table := range []string{"trades", "signals", "equity"} {
		target := filepath.Join(dir, table+".parquet")

		_, err := j.db.Exec(fmt.Sprintf(`COPY %s TO '%s' (FORMAT PARQUET)`, table, target))
		if err != nil {
			return fmt.Errorf("failed to export %s to Parquet: %w", table, err)
		}
	}

	j.logger.Info("journal exported to Parquet files", zap.String("dir", dir))

	return nil
}

// Cleanup drops and recreates all journal tables.
func (j *Journal) Cleanup() error {
	_, err := j.db.Exec(`
		DROP TABLE IF EXISTS trades;
		DROP TABLE IF EXISTS signals;
		DROP TABLE IF EXISTS equity;
	`)
	if err != nil {
		return fmt.Errorf("failed to cleanup tables: %w", err)
	}

	return j.initialize()
}

// Close releases the database handle.
func (j *Journal) Close() error {
	return j.db.Close()
}

func optionFloat(value optional.Option[float64]) any {
	if v, err := value.Take(); err == nil {
		return v
	}

	return nil
}

func optionTime(value optional.Option[time.Time]) any {
	if v, err := value.Take(); err == nil {
		return v
	}

	return nil
}

func optionReason(value optional.Option[types.ExitReason]) any {
	if v, err := value.Take(); err == nil {
		return string(v)
	}

	return nil
}

func reverse[T any](items []T) {
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
}
