// Package stats turns trade and signal history into a performance
// report. Every function tolerates degenerate input: an empty history
// produces a zeroed report, never an error.
package stats

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-lab/meridian-trading/internal/types"
)

// tradingDaysPerYear annualizes the per-trade Sharpe ratio.
const tradingDaysPerYear = 252

// Stop distances inside this band of entry price count as
// well-calibrated for signal quality scoring.
const (
	StopBandLowerPct = 0.008
	StopBandUpperPct = 0.012
)

// Input collects everything a report is computed from. Open trades in
// Trades are ignored; only closed ones carry realized results.
type Input struct {
	Instrument     string
	Trades         []types.Trade
	Equity         []types.EquityPoint
	Signals        []types.SignalRecord
	InitialBalance float64
	FinalBalance   float64
}

// BuildReport computes the full performance report.
func BuildReport(input Input) types.PerformanceReport {
	report := types.PerformanceReport{
		ID:             uuid.New().String(),
		GeneratedAt:    time.Now().UTC(),
		Instrument:     input.Instrument,
		InitialBalance: input.InitialBalance,
		FinalBalance:   input.FinalBalance,
	}

	if input.InitialBalance > 0 {
		report.TotalReturnPct = (input.FinalBalance - input.InitialBalance) / input.InitialBalance * 100
	}

	closed := closedTrades(input.Trades)
	report.TotalTrades = len(closed)

	var (
		grossProfit float64
		grossLoss   float64
		sumMFE      float64
		sumMAE      float64
	)

	for _, trade := range closed {
		switch {
		case trade.RealizedPnL > 0:
			report.WinningTrades++
			grossProfit += trade.RealizedPnL
		case trade.RealizedPnL < 0:
			report.LosingTrades++
			grossLoss += -trade.RealizedPnL
		}

		report.TotalPnL += trade.RealizedPnL
		sumMFE += trade.MaxFavorableExcursion
		sumMAE += trade.MaxAdverseExcursion
	}

	if len(closed) > 0 {
		report.WinRate = float64(report.WinningTrades) / float64(len(closed))
		report.AvgMFEPct = sumMFE / float64(len(closed)) * 100
		report.AvgMAEPct = sumMAE / float64(len(closed)) * 100
	}

	if report.WinningTrades > 0 {
		report.AvgWin = grossProfit / float64(report.WinningTrades)
	}

	if report.LosingTrades > 0 {
		report.AvgLoss = -grossLoss / float64(report.LosingTrades)

		report.ProfitFactor = grossProfit / grossLoss
		report.RiskReward = report.AvgWin / math.Abs(report.AvgLoss)
	}

	report.Expectancy = report.WinRate*report.AvgWin - (1-report.WinRate)*math.Abs(report.AvgLoss)
	report.SharpeRatio = sharpeRatio(closed)
	report.MaxDrawdown, report.MaxDrawdownPct = MaxDrawdown(input.Equity)
	report.SignalQuality = signalQuality(input.Signals)

	for _, record := range input.Signals {
		report.SignalStats.Record(record.Signal.Action, record.Outcome)
	}

	return report
}

func closedTrades(trades []types.Trade) []types.Trade {
	var closed []types.Trade

	for _, trade := range trades {
		if trade.Status == types.TradeStatusClosed {
			closed = append(closed, trade)
		}
	}

	return closed
}

// sharpeRatio annualizes mean over standard deviation of per-trade
// returns. Fewer than two trades or a near-zero deviation yields 0.
func sharpeRatio(closed []types.Trade) float64 {
	if len(closed) < 2 {
		return 0
	}

	returns := make([]float64, len(closed))
	for i, trade := range closed {
		returns[i] = trade.RealizedPnLPct / 100
	}

	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns))

	std := math.Sqrt(variance)
	if std < 1e-9 {
		return 0
	}

	return mean / std * math.Sqrt(tradingDaysPerYear)
}

// MaxDrawdown walks the equity curve and returns the deepest
// peak-to-trough fall in absolute terms and as a percentage of the
// peak.
func MaxDrawdown(equity []types.EquityPoint) (float64, float64) {
	if len(equity) == 0 {
		return 0, 0
	}

	var (
		peak   = equity[0].Balance
		maxAbs float64
		maxPct float64
	)

	for _, point := range equity {
		if point.Balance > peak {
			peak = point.Balance
		}

		drawdown := peak - point.Balance
		if drawdown > maxAbs {
			maxAbs = drawdown
		}

		if peak > 0 {
			pct := drawdown / peak * 100
			if pct > maxPct {
				maxPct = pct
			}
		}
	}

	return maxAbs, maxPct
}

// signalQuality scores how well-formed the directional signals were:
// how many carried both protective levels, and how many stops landed
// inside the calibration band around entry price.
func signalQuality(records []types.SignalRecord) types.SignalQuality {
	var (
		directional int
		withLevels  int
		withStops   int
		inBand      int
	)

	for _, record := range records {
		if !record.Signal.Action.IsDirectional() {
			continue
		}

		directional++

		if record.Signal.HasProtectiveLevels() {
			withLevels++
		}

		stop, err := record.Signal.StopLoss.Take()
		if err != nil || record.Signal.Price <= 0 {
			continue
		}

		withStops++

		distance := math.Abs(record.Signal.Price-stop) / record.Signal.Price
		if distance >= StopBandLowerPct && distance <= StopBandUpperPct {
			inBand++
		}
	}

	var quality types.SignalQuality

	if directional > 0 {
		quality.DirectionalWithLevelsPct = float64(withLevels) / float64(directional) * 100
	}

	if withStops > 0 {
		quality.StopDistanceInBandPct = float64(inBand) / float64(withStops) * 100
	}

	return quality
}
