package strategy

import (
	"context"
	"encoding/json"
	"math"

	"github.com/go-playground/validator/v10"
	"github.com/moznion/go-optional"

	"github.com/meridian-lab/meridian-trading/internal/indicator"
	"github.com/meridian-lab/meridian-trading/internal/types"
	"github.com/meridian-lab/meridian-trading/pkg/errors"
)

// TrendMomentumConfig contains configuration for the trend momentum provider.
type TrendMomentumConfig struct {
	FastPeriod    int     `json:"fastPeriod" yaml:"fast_period" jsonschema:"title=Fast EMA Period,description=Period of the fast EMA" validate:"omitempty,gte=2"`
	SlowPeriod    int     `json:"slowPeriod" yaml:"slow_period" jsonschema:"title=Slow EMA Period,description=Period of the slow EMA" validate:"omitempty,gte=2"`
	RSIPeriod     int     `json:"rsiPeriod" yaml:"rsi_period" jsonschema:"title=RSI Period" validate:"omitempty,gte=2"`
	RSIOverbought float64 `json:"rsiOverbought" yaml:"rsi_overbought" jsonschema:"title=RSI Overbought,description=Longs are filtered above this RSI" validate:"omitempty,gte=50,lte=100"`
	RSIOversold   float64 `json:"rsiOversold" yaml:"rsi_oversold" jsonschema:"title=RSI Oversold,description=Shorts are filtered below this RSI" validate:"omitempty,gte=0,lte=50"`
	ATRPeriod     int     `json:"atrPeriod" yaml:"atr_period" jsonschema:"title=ATR Period" validate:"omitempty,gte=2"`
	RiskReward    float64 `json:"riskReward" yaml:"risk_reward" jsonschema:"title=Risk Reward,description=Target distance as a multiple of stop distance" validate:"omitempty,gte=1"`
}

func (c *TrendMomentumConfig) applyDefaults() {
	if c.FastPeriod == 0 {
		c.FastPeriod = 9
	}

	if c.SlowPeriod == 0 {
		c.SlowPeriod = 21
	}

	if c.RSIPeriod == 0 {
		c.RSIPeriod = 14
	}

	if c.RSIOverbought == 0 {
		c.RSIOverbought = 70
	}

	if c.RSIOversold == 0 {
		c.RSIOversold = 30
	}

	if c.ATRPeriod == 0 {
		c.ATRPeriod = 14
	}

	if c.RiskReward == 0 {
		c.RiskReward = DefaultRiskReward
	}
}

// Validate validates the TrendMomentumConfig struct.
func (c *TrendMomentumConfig) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid trend momentum config", err)
	}

	if c.FastPeriod >= c.SlowPeriod {
		return errors.Newf(errors.ErrCodeInvalidConfiguration,
			"fast period %d must be below slow period %d", c.FastPeriod, c.SlowPeriod)
	}

	return nil
}

// parseTrendMomentumConfig parses a JSON configuration string into a TrendMomentumConfig.
func parseTrendMomentumConfig(jsonConfig string) (*TrendMomentumConfig, error) {
	var config TrendMomentumConfig
	if err := json.Unmarshal([]byte(jsonConfig), &config); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to parse trend momentum config", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// TrendMomentum follows EMA crossovers filtered by RSI exhaustion.
// A fresh cross raises confidence; an established trend still signals
// at lower confidence so a restart mid-trend is not blind.
type TrendMomentum struct {
	config TrendMomentumConfig
}

var _ SignalProvider = (*TrendMomentum)(nil)

func NewTrendMomentum(config TrendMomentumConfig) (*TrendMomentum, error) {
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &TrendMomentum{config: config}, nil
}

func (p *TrendMomentum) Name() string {
	return string(ProviderTrendMomentum)
}

func (p *TrendMomentum) requiredCandles() int {
	required := p.config.SlowPeriod
	if p.config.RSIPeriod > required {
		required = p.config.RSIPeriod
	}

	if p.config.ATRPeriod > required {
		required = p.config.ATRPeriod
	}

	return required + 1
}

func (p *TrendMomentum) Evaluate(_ context.Context, current types.Candle, history []types.Candle, bias types.Bias) (optional.Option[types.Signal], error) {
	if len(history) < p.requiredCandles() {
		return optional.None[types.Signal](), errors.NewInsufficientDataErrorf(
			p.requiredCandles(), len(history), current.Instrument,
			"trend momentum needs %d candles, have %d", p.requiredCandles(), len(history))
	}

	emaFast, err := indicator.EMA(history, p.config.FastPeriod)
	if err != nil {
		return optional.None[types.Signal](), err
	}

	emaSlow, err := indicator.EMA(history, p.config.SlowPeriod)
	if err != nil {
		return optional.None[types.Signal](), err
	}

	prevFast, err := indicator.EMA(history[:len(history)-1], p.config.FastPeriod)
	if err != nil {
		return optional.None[types.Signal](), err
	}

	prevSlow, err := indicator.EMA(history[:len(history)-1], p.config.SlowPeriod)
	if err != nil {
		return optional.None[types.Signal](), err
	}

	rsi, err := indicator.RSI(history, p.config.RSIPeriod)
	if err != nil {
		return optional.None[types.Signal](), err
	}

	atr, err := indicator.ATR(history, p.config.ATRPeriod)
	if err != nil {
		return optional.None[types.Signal](), err
	}

	action := types.SignalActionHold
	reason := "no_trend"
	crossed := false

	switch {
	case emaFast > emaSlow:
		if rsi >= p.config.RSIOverbought {
			reason = "rsi_overbought"

			break
		}

		action = types.SignalActionLong
		crossed = prevFast <= prevSlow

		if crossed {
			reason = "ema_cross_up"
		} else {
			reason = "trend_up"
		}
	case emaFast < emaSlow:
		if rsi <= p.config.RSIOversold {
			reason = "rsi_oversold"

			break
		}

		action = types.SignalActionShort
		crossed = prevFast >= prevSlow

		if crossed {
			reason = "ema_cross_down"
		} else {
			reason = "trend_down"
		}
	}

	// An open position in the other direction holds until its own exit;
	// flips wait for the next flat cycle.
	if action.IsDirectional() && bias != types.BiasNone {
		if side, _ := types.SideFromAction(action); side.Bias() != bias {
			action = types.SignalActionHold
			reason = "position_bias"
		}
	}

	signal := types.Signal{
		Time:       current.Time,
		Instrument: current.Instrument,
		Action:     action,
		Price:      current.Close,
		Reason:     reason,
		Source:     types.SignalSource{Provider: p.Name()},
	}

	if action.IsDirectional() {
		separation := math.Abs(emaFast-emaSlow) / emaSlow

		confidence := 0.4 + math.Min(0.4, separation*40)
		if crossed {
			confidence += 0.2
		}

		signal.Confidence = math.Min(confidence, 1.0)

		stopLoss, takeProfit := ProtectiveLevels(action, current.Close, atr, p.config.RiskReward)
		signal.StopLoss = optional.Some(stopLoss)
		signal.TakeProfit = optional.Some(takeProfit)
	}

	return optional.Some(signal), nil
}
