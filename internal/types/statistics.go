package types

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// SignalStats tallies every evaluated signal by outcome, including holds
// and rejections.
type SignalStats struct {
	Total    int `yaml:"total" json:"total"`
	Long     int `yaml:"long" json:"long"`
	Short    int `yaml:"short" json:"short"`
	Hold     int `yaml:"hold" json:"hold"`
	Executed int `yaml:"executed" json:"executed"`
	Rejected int `yaml:"rejected" json:"rejected"`
	Errors   int `yaml:"errors" json:"errors"`
}

// Record folds one evaluated signal into the tally.
func (s *SignalStats) Record(action SignalAction, outcome SignalOutcome) {
	s.Total++

	switch action {
	case SignalActionLong:
		s.Long++
	case SignalActionShort:
		s.Short++
	default:
		s.Hold++
	}

	switch outcome {
	case SignalOutcomeExecuted:
		s.Executed++
	case SignalOutcomeHold:
	case SignalOutcomeProviderError:
		s.Errors++
	default:
		s.Rejected++
	}
}

// SignalQuality summarizes how actionable the directional signals were.
type SignalQuality struct {
	// DirectionalWithLevelsPct is the share of directional signals that
	// carried both protective levels, in percent.
	DirectionalWithLevelsPct float64 `yaml:"directional_with_levels_pct" json:"directional_with_levels_pct"`
	// StopDistanceInBandPct is the share of stop distances falling inside
	// the 0.8%..1.2% band around entry, in percent.
	StopDistanceInBandPct float64 `yaml:"stop_distance_in_band_pct" json:"stop_distance_in_band_pct"`
}

// PerformanceReport is the full metrics record for a set of closed
// trades, produced by the replay engine and on demand for live sessions.
type PerformanceReport struct {
	// ID is the unique identifier for this run.
	ID string `yaml:"id" json:"id"`
	// GeneratedAt is when this report was computed.
	GeneratedAt time.Time `yaml:"generated_at" json:"generated_at"`
	// Instrument of the run. Empty for multi-instrument live sessions.
	Instrument string `yaml:"instrument" json:"instrument"`

	TotalTrades   int     `yaml:"total_trades" json:"total_trades"`
	WinningTrades int     `yaml:"winning_trades" json:"winning_trades"`
	LosingTrades  int     `yaml:"losing_trades" json:"losing_trades"`
	WinRate       float64 `yaml:"win_rate" json:"win_rate"`

	TotalPnL float64 `yaml:"total_pnl" json:"total_pnl"`
	AvgWin   float64 `yaml:"avg_win" json:"avg_win"`
	AvgLoss  float64 `yaml:"avg_loss" json:"avg_loss"`
	// ProfitFactor is gross profit over gross loss; zero when there are
	// no losing trades.
	ProfitFactor float64 `yaml:"profit_factor" json:"profit_factor"`
	// Expectancy is the mean expected P&L per trade.
	Expectancy float64 `yaml:"expectancy" json:"expectancy"`
	// RiskReward is average win over average loss magnitude.
	RiskReward float64 `yaml:"risk_reward" json:"risk_reward"`
	// SharpeRatio is annualized from per-trade returns; zero with fewer
	// than two trades.
	SharpeRatio float64 `yaml:"sharpe_ratio" json:"sharpe_ratio"`

	// MaxDrawdown is the largest peak-to-trough equity drop, absolute
	// and as a percent of the peak.
	MaxDrawdown    float64 `yaml:"max_drawdown" json:"max_drawdown"`
	MaxDrawdownPct float64 `yaml:"max_drawdown_pct" json:"max_drawdown_pct"`

	// AvgMFEPct and AvgMAEPct are mean excursions across trades, in percent.
	AvgMFEPct float64 `yaml:"avg_mfe_pct" json:"avg_mfe_pct"`
	AvgMAEPct float64 `yaml:"avg_mae_pct" json:"avg_mae_pct"`

	InitialBalance float64 `yaml:"initial_balance" json:"initial_balance"`
	FinalBalance   float64 `yaml:"final_balance" json:"final_balance"`
	TotalReturnPct float64 `yaml:"total_return_pct" json:"total_return_pct"`

	SignalQuality SignalQuality `yaml:"signal_quality" json:"signal_quality"`
	SignalStats   SignalStats   `yaml:"signal_stats" json:"signal_stats"`
}

// WritePerformanceReport writes a report to a YAML file.
func WritePerformanceReport(path string, report PerformanceReport) error {
	data, err := yaml.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal performance report to YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write performance report to file: %w", err)
	}

	return nil
}

// ReadPerformanceReport reads a report from a YAML file.
func ReadPerformanceReport(path string) (PerformanceReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return PerformanceReport{}, fmt.Errorf("failed to read performance report file: %w", err)
	}

	var report PerformanceReport
	if err := yaml.Unmarshal(data, &report); err != nil {
		return PerformanceReport{}, fmt.Errorf("failed to unmarshal performance report: %w", err)
	}

	return report, nil
}
