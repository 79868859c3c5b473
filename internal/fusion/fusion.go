// Package fusion combines a slow trend-filter provider with a fast
// entry-trigger provider into one signal. The fused provider is itself
// a SignalProvider, so engines never care whether they run a single
// timeframe or two.
package fusion

import (
	"context"
	"fmt"

	"github.com/moznion/go-optional"
	"go.uber.org/zap"

	"github.com/meridian-lab/meridian-trading/internal/logger"
	"github.com/meridian-lab/meridian-trading/internal/strategy"
	"github.com/meridian-lab/meridian-trading/internal/types"
	"github.com/meridian-lab/meridian-trading/pkg/errors"
)

type Policy string

const (
	// PolicyStrict requires both timeframes directional and agreeing.
	PolicyStrict Policy = "strict"
	// PolicyWeighted lets the fast timeframe act alone at reduced
	// confidence and resolves conflicts by relative strength.
	PolicyWeighted Policy = "weighted"
)

const (
	DefaultSlowThreshold  = 0.50
	DefaultFastThreshold  = 0.35
	DefaultMinSlowBuckets = 60
)

type Config struct {
	Policy       Policy         `yaml:"policy" json:"policy" validate:"omitempty,oneof=strict weighted"`
	FastInterval types.Interval `yaml:"fast_interval" json:"fast_interval"`
	SlowInterval types.Interval `yaml:"slow_interval" json:"slow_interval"`
	// SlowThreshold and FastThreshold gate each timeframe's confidence
	// before any fusion logic runs; a sub-threshold signal is a HOLD.
	SlowThreshold float64 `yaml:"slow_threshold" json:"slow_threshold" validate:"gte=0,lte=1"`
	FastThreshold float64 `yaml:"fast_threshold" json:"fast_threshold" validate:"gte=0,lte=1"`
	// MinSlowBuckets is advisory: below it the slow read is logged as
	// thin but evaluation continues.
	MinSlowBuckets int `yaml:"min_slow_buckets" json:"min_slow_buckets" validate:"gte=0"`
}

func (c *Config) applyDefaults() {
	if c.Policy == "" {
		c.Policy = PolicyStrict
	}

	if c.FastInterval == "" {
		c.FastInterval = types.Interval15m
	}

	if c.SlowInterval == "" {
		c.SlowInterval = types.Interval1h
	}

	if c.SlowThreshold == 0 {
		c.SlowThreshold = DefaultSlowThreshold
	}

	if c.FastThreshold == 0 {
		c.FastThreshold = DefaultFastThreshold
	}

	if c.MinSlowBuckets == 0 {
		c.MinSlowBuckets = DefaultMinSlowBuckets
	}
}

// MultiTimeframe fuses a slow and a fast provider over one fast-interval
// candle history; the slow series is aggregated from the fast one so
// both timeframes always describe the same underlying data.
type MultiTimeframe struct {
	config Config
	slow   strategy.SignalProvider
	fast   strategy.SignalProvider
	logger *logger.Logger
}

var _ strategy.SignalProvider = (*MultiTimeframe)(nil)

func NewMultiTimeframe(config Config, slow, fast strategy.SignalProvider, log *logger.Logger) (*MultiTimeframe, error) {
	config.applyDefaults()

	if slow == nil || fast == nil {
		return nil, errors.New(errors.ErrCodeProviderNotSet, "fusion requires both a slow and a fast provider")
	}

	if config.SlowInterval.Duration() <= config.FastInterval.Duration() {
		return nil, errors.Newf(errors.ErrCodeFusionConfigError,
			"slow interval %s must be longer than fast interval %s", config.SlowInterval, config.FastInterval)
	}

	if config.Policy != PolicyStrict && config.Policy != PolicyWeighted {
		return nil, errors.Newf(errors.ErrCodeFusionConfigError, "unknown fusion policy %q", config.Policy)
	}

	return &MultiTimeframe{config: config, slow: slow, fast: fast, logger: log}, nil
}

func (m *MultiTimeframe) Name() string {
	return "multi_timeframe"
}

func (m *MultiTimeframe) Evaluate(ctx context.Context, current types.Candle, history []types.Candle, bias types.Bias) (optional.Option[types.Signal], error) {
	aggregated := AggregateCandles(history, m.config.SlowInterval)
	if len(aggregated) == 0 {
		return optional.None[types.Signal](), errors.NewInsufficientDataErrorf(1, 0, current.Instrument,
			"no history to aggregate into %s buckets", m.config.SlowInterval)
	}

	if len(aggregated) < m.config.MinSlowBuckets {
		m.logger.Warn("slow timeframe history is thin, continuing",
			zap.String("instrument", current.Instrument),
			zap.Int("buckets", len(aggregated)),
			zap.Int("wanted", m.config.MinSlowBuckets),
		)
	}

	slowResult, err := m.slow.Evaluate(ctx, aggregated[len(aggregated)-1], aggregated, bias)
	if err != nil {
		return optional.None[types.Signal](), err
	}

	fastResult, err := m.fast.Evaluate(ctx, current, history, bias)
	if err != nil {
		return optional.None[types.Signal](), err
	}

	slowSignal := signalOrHold(slowResult, current)
	fastSignal := signalOrHold(fastResult, current)

	// Thresholds come first: a timeframe below its confidence floor is
	// a HOLD for every rule that follows.
	slowAction := gate(slowSignal, m.config.SlowThreshold)
	fastAction := gate(fastSignal, m.config.FastThreshold)

	fused := types.Signal{
		Time:       current.Time,
		Instrument: current.Instrument,
		Action:     types.SignalActionHold,
		Price:      current.Close,
		Source: types.SignalSource{
			Provider:       m.Name(),
			Policy:         string(m.config.Policy),
			SlowAction:     slowSignal.Action,
			SlowConfidence: slowSignal.Confidence,
			FastAction:     fastSignal.Action,
			FastConfidence: fastSignal.Confidence,
		},
	}

	if m.config.Policy == PolicyStrict {
		m.fuseStrict(&fused, slowAction, fastAction, slowSignal, fastSignal)
	} else {
		m.fuseWeighted(&fused, slowAction, fastAction, slowSignal, fastSignal)
	}

	return optional.Some(fused), nil
}

// fuseStrict: both timeframes must be directional and agree; the slow
// one gates direction only and never supplies levels.
func (m *MultiTimeframe) fuseStrict(fused *types.Signal, slowAction, fastAction types.SignalAction, slowSignal, fastSignal types.Signal) {
	switch {
	case !slowAction.IsDirectional():
		fused.Reason = fmt.Sprintf("%s_no_signal", m.config.SlowInterval)
	case !fastAction.IsDirectional():
		fused.Reason = fmt.Sprintf("%s_no_signal", m.config.FastInterval)
	case slowAction != fastAction:
		fused.Reason = "directions_mismatch"
	default:
		fused.Action = fastAction
		fused.Confidence = 0.4*slowSignal.Confidence + 0.6*fastSignal.Confidence
		fused.Reason = "aligned"

		m.adoptFastLevels(fused, fastSignal)
	}
}

// fuseWeighted: the fast timeframe may act alone at a discount, the
// slow one never originates an entry, and conflicts defer to whichever
// side is more confident — with a slow win still producing a HOLD.
func (m *MultiTimeframe) fuseWeighted(fused *types.Signal, slowAction, fastAction types.SignalAction, slowSignal, fastSignal types.Signal) {
	switch {
	case !slowAction.IsDirectional() && !fastAction.IsDirectional():
		fused.Reason = "both_hold"
	case !slowAction.IsDirectional():
		fused.Action = fastAction
		fused.Confidence = fastSignal.Confidence * 0.7
		fused.Reason = fmt.Sprintf("%s_only", m.config.FastInterval)

		m.adoptFastLevels(fused, fastSignal)
	case !fastAction.IsDirectional():
		// A trend filter cannot originate an entry.
		fused.Reason = fmt.Sprintf("%s_only_no_entry", m.config.SlowInterval)
	case slowAction == fastAction:
		fused.Action = fastAction
		fused.Confidence = 0.4*slowSignal.Confidence + 0.6*fastSignal.Confidence
		fused.Reason = "aligned_weighted"

		m.adoptFastLevels(fused, fastSignal)
	case slowSignal.Confidence >= fastSignal.Confidence:
		fused.Reason = fmt.Sprintf("conflict_%s_stronger", m.config.SlowInterval)
	default:
		fused.Action = fastAction
		fused.Confidence = fastSignal.Confidence * 0.6
		fused.Reason = fmt.Sprintf("conflict_%s_stronger", m.config.FastInterval)

		m.adoptFastLevels(fused, fastSignal)
	}
}

// adoptFastLevels copies protective levels from the fast signal only;
// slow levels are never used even when present.
func (m *MultiTimeframe) adoptFastLevels(fused *types.Signal, fastSignal types.Signal) {
	fused.StopLoss = fastSignal.StopLoss
	fused.TakeProfit = fastSignal.TakeProfit
}

func signalOrHold(result optional.Option[types.Signal], current types.Candle) types.Signal {
	if signal, err := result.Take(); err == nil {
		return signal
	}

	return types.Signal{
		Time:       current.Time,
		Instrument: current.Instrument,
		Action:     types.SignalActionHold,
		Price:      current.Close,
	}
}

// gate returns the effective action after the confidence threshold:
// directional below threshold degrades to HOLD.
func gate(signal types.Signal, threshold float64) types.SignalAction {
	if signal.Action.IsDirectional() && signal.Confidence >= threshold {
		return signal.Action
	}

	return types.SignalActionHold
}
