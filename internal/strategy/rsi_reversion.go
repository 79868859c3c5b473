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

// RSIReversionConfig contains configuration for the RSI reversion provider.
type RSIReversionConfig struct {
	RSIPeriod  int     `json:"rsiPeriod" yaml:"rsi_period" jsonschema:"title=RSI Period" validate:"omitempty,gte=2"`
	Oversold   float64 `json:"oversold" yaml:"oversold" jsonschema:"title=Oversold,description=Longs trigger at or below this RSI" validate:"omitempty,gte=0,lte=50"`
	Overbought float64 `json:"overbought" yaml:"overbought" jsonschema:"title=Overbought,description=Shorts trigger at or above this RSI" validate:"omitempty,gte=50,lte=100"`
	ATRPeriod  int     `json:"atrPeriod" yaml:"atr_period" jsonschema:"title=ATR Period" validate:"omitempty,gte=2"`
	RiskReward float64 `json:"riskReward" yaml:"risk_reward" jsonschema:"title=Risk Reward" validate:"omitempty,gte=1"`
}

func (c *RSIReversionConfig) applyDefaults() {
	if c.RSIPeriod == 0 {
		c.RSIPeriod = 14
	}

	if c.Oversold == 0 {
		c.Oversold = 30
	}

	if c.Overbought == 0 {
		c.Overbought = 70
	}

	if c.ATRPeriod == 0 {
		c.ATRPeriod = 14
	}

	if c.RiskReward == 0 {
		c.RiskReward = DefaultRiskReward
	}
}

// Validate validates the RSIReversionConfig struct.
func (c *RSIReversionConfig) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid rsi reversion config", err)
	}

	return nil
}

// parseRSIReversionConfig parses a JSON configuration string into an RSIReversionConfig.
func parseRSIReversionConfig(jsonConfig string) (*RSIReversionConfig, error) {
	var config RSIReversionConfig
	if err := json.Unmarshal([]byte(jsonConfig), &config); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to parse rsi reversion config", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// RSIReversion fades RSI extremes: long at or below oversold, short at
// or above overbought.
type RSIReversion struct {
	config RSIReversionConfig
}

var _ SignalProvider = (*RSIReversion)(nil)

func NewRSIReversion(config RSIReversionConfig) (*RSIReversion, error) {
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &RSIReversion{config: config}, nil
}

func (p *RSIReversion) Name() string {
	return string(ProviderRSIReversion)
}

func (p *RSIReversion) requiredCandles() int {
	required := p.config.RSIPeriod
	if p.config.ATRPeriod > required {
		required = p.config.ATRPeriod
	}

	return required + 1
}

func (p *RSIReversion) Evaluate(_ context.Context, current types.Candle, history []types.Candle, bias types.Bias) (optional.Option[types.Signal], error) {
	if len(history) < p.requiredCandles() {
		return optional.None[types.Signal](), errors.NewInsufficientDataErrorf(
			p.requiredCandles(), len(history), current.Instrument,
			"rsi reversion needs %d candles, have %d", p.requiredCandles(), len(history))
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
	reason := "rsi_neutral"
	confidence := 0.0

	switch {
	case rsi <= p.config.Oversold:
		action = types.SignalActionLong
		reason = "rsi_oversold"
		confidence = 0.4 + 0.6*(p.config.Oversold-rsi)/p.config.Oversold
	case rsi >= p.config.Overbought:
		action = types.SignalActionShort
		reason = "rsi_overbought"
		confidence = 0.4 + 0.6*(rsi-p.config.Overbought)/(100-p.config.Overbought)
	}

	if action.IsDirectional() && bias != types.BiasNone {
		if side, _ := types.SideFromAction(action); side.Bias() != bias {
			action = types.SignalActionHold
			reason = "position_bias"
			confidence = 0
		}
	}

	signal := types.Signal{
		Time:       current.Time,
		Instrument: current.Instrument,
		Action:     action,
		Price:      current.Close,
		Confidence: math.Min(confidence, 1.0),
		Reason:     reason,
		Source:     types.SignalSource{Provider: p.Name()},
	}

	if action.IsDirectional() {
		stopLoss, takeProfit := ProtectiveLevels(action, current.Close, atr, p.config.RiskReward)
		signal.StopLoss = optional.Some(stopLoss)
		signal.TakeProfit = optional.Some(takeProfit)
	}

	return optional.Some(signal), nil
}
