package engine

import (
	"encoding/json"
	"reflect"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
	"github.com/moznion/go-optional"

	"github.com/meridian-lab/meridian-trading/internal/config"
	"github.com/meridian-lab/meridian-trading/internal/logger"
	"github.com/meridian-lab/meridian-trading/internal/margin"
	"github.com/meridian-lab/meridian-trading/internal/sizing"
	"github.com/meridian-lab/meridian-trading/internal/strategy"
	"github.com/meridian-lab/meridian-trading/internal/types"
	"github.com/meridian-lab/meridian-trading/pkg/errors"
)

const (
	// DefaultInitialBalance is the starting paper balance of a replay.
	DefaultInitialBalance = 100000.0

	// DefaultWarmupBars is how many leading bars feed indicators before
	// the first signal is evaluated.
	DefaultWarmupBars = 200
)

// ReplayConfig describes one replay run.
type ReplayConfig struct {
	// Instrument to replay. Empty selects the data file's only
	// instrument; in-memory series use their first candle's instrument.
	Instrument string         `yaml:"instrument" json:"instrument" jsonschema:"title=Instrument"`
	Interval   types.Interval `yaml:"interval" json:"interval" jsonschema:"title=Interval,description=Candle interval of the series,default=15m"`

	InitialBalance float64 `yaml:"initial_balance" json:"initial_balance" jsonschema:"title=Initial Balance,default=100000" validate:"gte=0"`
	WarmupBars     int     `yaml:"warmup_bars" json:"warmup_bars" jsonschema:"title=Warmup Bars,description=Leading bars consumed before signals are evaluated,default=200" validate:"gte=0"`

	// MarginRate prices margin in replay as entry * lot size * rate.
	MarginRate float64 `yaml:"margin_rate" json:"margin_rate" jsonschema:"title=Margin Rate,default=0.12" validate:"gte=0,lte=1"`

	LotSize       float64 `yaml:"lot_size" json:"lot_size" jsonschema:"title=Lot Size,default=1" validate:"gte=0"`
	MinConfidence float64 `yaml:"min_confidence" json:"min_confidence" jsonschema:"title=Min Confidence,default=0.35" validate:"gte=0,lte=1"`

	StartTime optional.Option[time.Time] `yaml:"start_time" json:"start_time" jsonschema:"title=Start Time,description=Optional start of the replay window"`
	EndTime   optional.Option[time.Time] `yaml:"end_time" json:"end_time" jsonschema:"title=End Time,description=Optional end of the replay window"`

	Sizing    sizing.Config          `yaml:"sizing" json:"sizing" jsonschema:"title=Sizing"`
	Lifecycle config.LifecycleConfig `yaml:"lifecycle" json:"lifecycle" jsonschema:"title=Lifecycle"`
	Strategy  config.StrategyConfig  `yaml:"strategy" json:"strategy" jsonschema:"title=Strategy"`
}

// UnmarshalYAML maps nullable times onto the optional fields.
func (c *ReplayConfig) UnmarshalYAML(unmarshal func(interface{}) error) error {
	type plainConfig struct {
		Instrument     string                 `yaml:"instrument"`
		Interval       types.Interval         `yaml:"interval"`
		InitialBalance float64                `yaml:"initial_balance"`
		WarmupBars     int                    `yaml:"warmup_bars"`
		MarginRate     float64                `yaml:"margin_rate"`
		LotSize        float64                `yaml:"lot_size"`
		MinConfidence  float64                `yaml:"min_confidence"`
		StartTime      *time.Time             `yaml:"start_time"`
		EndTime        *time.Time             `yaml:"end_time"`
		Sizing         sizing.Config          `yaml:"sizing"`
		Lifecycle      config.LifecycleConfig `yaml:"lifecycle"`
		Strategy       config.StrategyConfig  `yaml:"strategy"`
	}

	var plain plainConfig
	if err := unmarshal(&plain); err != nil {
		return err
	}

	c.Instrument = plain.Instrument
	c.Interval = plain.Interval
	c.InitialBalance = plain.InitialBalance
	c.WarmupBars = plain.WarmupBars
	c.MarginRate = plain.MarginRate
	c.LotSize = plain.LotSize
	c.MinConfidence = plain.MinConfidence
	c.Sizing = plain.Sizing
	c.Lifecycle = plain.Lifecycle
	c.Strategy = plain.Strategy

	if plain.StartTime != nil {
		c.StartTime = optional.Some(*plain.StartTime)
	}

	if plain.EndTime != nil {
		c.EndTime = optional.Some(*plain.EndTime)
	}

	return nil
}

func (c *ReplayConfig) applyDefaults() {
	if c.Interval == "" {
		c.Interval = types.Interval15m
	}

	if c.InitialBalance == 0 {
		c.InitialBalance = DefaultInitialBalance
	}

	if c.WarmupBars == 0 {
		c.WarmupBars = DefaultWarmupBars
	}

	if c.MarginRate == 0 {
		c.MarginRate = margin.DefaultMarginRate
	}

	if c.LotSize == 0 {
		c.LotSize = 1
	}

	if c.MinConfidence == 0 {
		c.MinConfidence = 0.35
	}

	if c.Strategy.Provider == "" {
		c.Strategy.Provider = string(strategy.ProviderTrendMomentum)
	}
}

// Validate checks structural constraints and that the configured
// strategy actually builds.
func (c *ReplayConfig) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeReplayConfigError, "invalid replay config", err)
	}

	if _, err := types.ParseInterval(string(c.Interval)); err != nil {
		return err
	}

	if _, err := c.instrumentConfig().Provider(logger.NewNopLogger()); err != nil {
		return errors.Wrap(errors.ErrCodeReplayConfigError, "strategy does not build", err)
	}

	return nil
}

// instrumentConfig expresses the replay target in the live config's
// instrument shape so both paths build providers identically.
func (c *ReplayConfig) instrumentConfig() config.InstrumentConfig {
	return config.InstrumentConfig{
		Symbol:        c.Instrument,
		Interval:      c.Interval,
		MinConfidence: c.MinConfidence,
		LotSize:       c.LotSize,
		Strategy:      c.Strategy,
	}
}

// DefaultReplayConfig returns a config with every default applied and
// the trend momentum provider selected.
func DefaultReplayConfig() ReplayConfig {
	var cfg ReplayConfig
	cfg.applyDefaults()

	return cfg
}

// GenerateSchemaJSON returns the JSON schema of the replay config.
func (c *ReplayConfig) GenerateSchemaJSON() (string, error) {
	reflector := jsonschema.Reflector{
		DoNotReference: true,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if t.String() == "optional.Option[time.Time]" {
				return &jsonschema.Schema{
					Type:   "string",
					Format: "date-time",
				}
			}

			return nil
		},
	}

	schema := reflector.Reflect(c)
	schema.Title = "replay-config"

	schemaBytes, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeReplayConfigError, "failed to generate schema", err)
	}

	return string(schemaBytes), nil
}
