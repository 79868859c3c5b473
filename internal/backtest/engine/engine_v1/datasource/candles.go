// Package datasource reads collected market data files for replay.
// Files are DuckDB databases holding a candles table, the format the
// collect command writes.
package datasource

import (
	"database/sql"
	"os"
	"time"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/moznion/go-optional"
	"go.uber.org/zap"

	"github.com/meridian-lab/meridian-trading/internal/logger"
	"github.com/meridian-lab/meridian-trading/internal/types"
	"github.com/meridian-lab/meridian-trading/pkg/errors"
)

// CandleSource reads candles from a collected DuckDB file.
type CandleSource struct {
	db     *sql.DB
	sq     squirrel.StatementBuilderType
	logger *logger.Logger
}

func NewCandleSource(path string, log *logger.Logger) (*CandleSource, error) {
	// Opening a missing path would create an empty store; refuse it
	// instead.
	if _, err := os.Stat(path); err != nil {
		return nil, errors.Wrapf(errors.ErrCodeDataNotFound, err, "data file %s is not readable", path)
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeDataNotFound, err, "failed to open data file %s", path)
	}

	return &CandleSource{
		db:     db,
		sq:     squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		logger: log,
	}, nil
}

// Instruments lists the instruments present in the file.
func (s *CandleSource) Instruments() ([]string, error) {
	rows, err := s.sq.
		Select("DISTINCT instrument").
		From("candles").
		OrderBy("instrument").
		RunWith(s.db).
		Query()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to list instruments", err)
	}
	defer rows.Close()

	var instruments []string

	for rows.Next() {
		var instrument string
		if err := rows.Scan(&instrument); err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan instrument", err)
		}

		instruments = append(instruments, instrument)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to read instruments", err)
	}

	return instruments, nil
}

// Count returns the number of candles for the instrument inside the
// optional time window.
func (s *CandleSource) Count(instrument string, start, end optional.Option[time.Time]) (int, error) {
	query := s.windowed(s.sq.Select("COUNT(*)").From("candles"), instrument, start, end)

	var count int
	if err := query.RunWith(s.db).QueryRow().Scan(&count); err != nil {
		return 0, errors.Wrap(errors.ErrCodeQueryFailed, "failed to count candles", err)
	}

	return count, nil
}

// ReadCandles returns the instrument's candles inside the optional
// window, oldest first.
func (s *CandleSource) ReadCandles(instrument string, start, end optional.Option[time.Time]) ([]types.Candle, error) {
	query := s.windowed(
		s.sq.
			Select("instrument", "time", "open", "high", "low", "close", "volume").
			From("candles"),
		instrument, start, end,
	).OrderBy("time ASC")

	rows, err := query.RunWith(s.db).Query()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to read candles", err)
	}
	defer rows.Close()

	var candles []types.Candle

	for rows.Next() {
		var candle types.Candle
		if err := rows.Scan(
			&candle.Instrument, &candle.Time,
			&candle.Open, &candle.High, &candle.Low, &candle.Close, &candle.Volume,
		); err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan candle", err)
		}

		candle.Time = candle.Time.UTC()
		candles = append(candles, candle)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to read candles", err)
	}

	s.logger.Debug("Read candles from data file",
		zap.String("instrument", instrument),
		zap.Int("count", len(candles)),
	)

	return candles, nil
}

func (s *CandleSource) windowed(query squirrel.SelectBuilder, instrument string, start, end optional.Option[time.Time]) squirrel.SelectBuilder {
	query = query.Where(squirrel.Eq{"instrument": instrument})

	if from, err := start.Take(); err == nil {
		query = query.Where(squirrel.GtOrEq{"time": from})
	}

	if to, err := end.Take(); err == nil {
		query = query.Where(squirrel.LtOrEq{"time": to})
	}

	return query
}

func (s *CandleSource) Close() error {
	return s.db.Close()
}
