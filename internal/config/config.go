// Package config loads and validates the YAML deployment file that
// describes a trading run: which instruments to watch, which signal
// providers to run on them, broker credentials, margin pricing, risk
// caps and engine cadences. The parsed Config also assembles the
// domain objects the engines consume, so wiring mistakes surface at
// load time instead of mid-session.
package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/meridian-lab/meridian-trading/internal/broker"
	"github.com/meridian-lab/meridian-trading/internal/fusion"
	"github.com/meridian-lab/meridian-trading/internal/ledger"
	"github.com/meridian-lab/meridian-trading/internal/lifecycle"
	"github.com/meridian-lab/meridian-trading/internal/logger"
	"github.com/meridian-lab/meridian-trading/internal/margin"
	"github.com/meridian-lab/meridian-trading/internal/sizing"
	"github.com/meridian-lab/meridian-trading/internal/strategy"
	"github.com/meridian-lab/meridian-trading/internal/types"
	"github.com/meridian-lab/meridian-trading/pkg/errors"
	"github.com/meridian-lab/meridian-trading/pkg/schema"
)

const (
	DefaultSnapshotPath = "data/state.json"
	DefaultJournalPath  = "data/journal.duckdb"

	// DefaultPollSeconds caps the signal loop's sleep; the loop wakes
	// earlier when a candle close is nearer.
	DefaultPollSeconds = 120

	// DefaultMonitorSeconds is the mark-price exit check cadence.
	DefaultMonitorSeconds = 25

	// DefaultReconcileEvery runs a broker reconcile every Nth monitor
	// cycle, on top of the eager reconcile at startup.
	DefaultReconcileEvery = 10

	DefaultDataDirectory  = "data/market"
	DefaultCollectMinutes = 5
	DefaultRefreshMinutes = 60
	DefaultBackfillDays   = 30
)

// Config is the root of the deployment file.
type Config struct {
	Engine      EngineConfig       `yaml:"engine" json:"engine"`
	Broker      BrokerConfig       `yaml:"broker" json:"broker" validate:"required"`
	Margin      MarginConfig       `yaml:"margin" json:"margin"`
	Sizing      sizing.Config      `yaml:"sizing" json:"sizing"`
	Lifecycle   LifecycleConfig    `yaml:"lifecycle" json:"lifecycle"`
	Data        DataConfig         `yaml:"data" json:"data"`
	Instruments []InstrumentConfig `yaml:"instruments" json:"instruments" validate:"required,min=1,dive"`
}

// EngineConfig sets paths and cadences for the live engine. Durations
// are written as unit-suffixed integers so the YAML stays obvious.
type EngineConfig struct {
	SnapshotPath string `yaml:"snapshot_path" json:"snapshot_path" jsonschema:"title=Snapshot Path,description=State snapshot file; empty string disables persistence only when set explicitly"`
	JournalPath  string `yaml:"journal_path" json:"journal_path" jsonschema:"title=Journal Path,description=DuckDB journal file"`

	PollSeconds    int `yaml:"poll_seconds" json:"poll_seconds" jsonschema:"title=Poll Seconds,description=Upper bound on the signal loop sleep,default=120" validate:"gte=0"`
	MonitorSeconds int `yaml:"monitor_seconds" json:"monitor_seconds" jsonschema:"title=Monitor Seconds,description=Mark price exit check cadence,default=25" validate:"gte=0"`
	ReconcileEvery int `yaml:"reconcile_every" json:"reconcile_every" jsonschema:"title=Reconcile Every,description=Reconcile against the broker every Nth monitor cycle,default=10" validate:"gte=0"`

	// MetricsAddr serves Prometheus metrics and a health endpoint when
	// set, for example ":9090". Empty disables the listener.
	MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr,omitempty" jsonschema:"title=Metrics Address,description=Listen address for /metrics and /health; empty disables"`
}

// Poll returns the signal loop's maximum sleep.
func (c EngineConfig) Poll() time.Duration {
	return time.Duration(c.PollSeconds) * time.Second
}

// Monitor returns the exit check cadence.
func (c EngineConfig) Monitor() time.Duration {
	return time.Duration(c.MonitorSeconds) * time.Second
}

// BrokerConfig selects and authenticates the broker adapter.
type BrokerConfig struct {
	Type      string `yaml:"type" json:"type" jsonschema:"title=Broker Type,default=binance-futures-paper" validate:"required,oneof=binance-futures-paper binance-futures-live"`
	ApiKey    string `yaml:"api_key" json:"api_key" jsonschema:"title=API Key" validate:"required"`
	SecretKey string `yaml:"secret_key" json:"secret_key" jsonschema:"title=Secret Key" validate:"required"`
	BaseURL   string `yaml:"base_url" json:"base_url,omitempty" jsonschema:"title=Base URL,description=Override the API base URL"`
	Asset     string `yaml:"asset" json:"asset,omitempty" jsonschema:"title=Settlement Asset,default=USDT"`

	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second,omitempty" jsonschema:"title=Requests Per Second" validate:"omitempty,gt=0"`
	RequestBurst      int     `yaml:"request_burst" json:"request_burst,omitempty" jsonschema:"title=Request Burst" validate:"omitempty,gt=0"`
}

// MarginConfig prices margin for instruments without an explicit
// per-lot schedule: margin = price * lot size * rate.
type MarginConfig struct {
	Rate float64 `yaml:"rate" json:"rate" jsonschema:"title=Margin Rate,description=Fallback margin rate on notional,default=0.12" validate:"gte=0,lte=1"`
}

// LifecycleConfig sets settlement costs and the holding-time limit.
// Zero values fall back to the lifecycle package defaults.
type LifecycleConfig struct {
	CommissionRate  float64 `yaml:"commission_rate" json:"commission_rate" jsonschema:"title=Commission Rate,description=Per-leg commission as a fraction of notional,default=0.0005" validate:"gte=0"`
	MaxHoldingHours int     `yaml:"max_holding_hours" json:"max_holding_hours" jsonschema:"title=Max Holding Hours,description=Force-close positions held this long,default=48" validate:"gte=0"`
}

// Ruleset builds the position lifecycle rules from this section.
func (c LifecycleConfig) Ruleset() *lifecycle.Ruleset {
	return lifecycle.NewRuleset(lifecycle.Config{
		CommissionRate: c.CommissionRate,
		MaxHolding:     time.Duration(c.MaxHoldingHours) * time.Hour,
	})
}

// DataConfig sets the market data collection cadences.
type DataConfig struct {
	Directory      string `yaml:"directory" json:"directory" jsonschema:"title=Data Directory,description=Directory for collected candle data"`
	CollectMinutes int    `yaml:"collect_minutes" json:"collect_minutes" jsonschema:"title=Collect Minutes,description=Collector task cycle,default=5" validate:"gte=0"`
	RefreshMinutes int    `yaml:"refresh_minutes" json:"refresh_minutes" jsonschema:"title=Refresh Minutes,description=Per-instrument refresh spacing,default=60" validate:"gte=0"`
	BackfillDays   int    `yaml:"backfill_days" json:"backfill_days" jsonschema:"title=Backfill Days,description=History depth fetched on first sight of an instrument,default=30" validate:"gte=0"`
}

// Collect returns the collector task cycle.
func (c DataConfig) Collect() time.Duration {
	return time.Duration(c.CollectMinutes) * time.Minute
}

// Refresh returns the per-instrument refresh spacing.
func (c DataConfig) Refresh() time.Duration {
	return time.Duration(c.RefreshMinutes) * time.Minute
}

// Backfill returns the history depth fetched for new instruments.
func (c DataConfig) Backfill() time.Duration {
	return time.Duration(c.BackfillDays) * 24 * time.Hour
}

// InstrumentConfig describes one watched instrument.
type InstrumentConfig struct {
	Symbol   string         `yaml:"symbol" json:"symbol" jsonschema:"title=Symbol" validate:"required"`
	Interval types.Interval `yaml:"interval" json:"interval" jsonschema:"title=Interval,description=Candle interval signals are evaluated on,default=15m"`

	// MinConfidence gates entries: directional signals below it are
	// recorded and dropped.
	MinConfidence float64 `yaml:"min_confidence" json:"min_confidence" jsonschema:"title=Min Confidence,default=0.35" validate:"gte=0,lte=1"`

	// LotSize is the contract quantity of one lot on the venue.
	LotSize float64 `yaml:"lot_size" json:"lot_size" jsonschema:"title=Lot Size,description=Contract quantity per lot,default=1" validate:"gte=0"`

	// MarginPerLot pins the margin requirement for this instrument.
	// Zero prices margin through the rate fallback instead.
	MarginPerLot float64 `yaml:"margin_per_lot" json:"margin_per_lot,omitempty" jsonschema:"title=Margin Per Lot,description=Explicit margin per lot; zero uses the rate fallback" validate:"gte=0"`

	Strategy StrategyConfig `yaml:"strategy" json:"strategy"`
}

// StrategyConfig selects the signal provider for an instrument.
// Options use the provider's JSON schema keys; run the generate
// command to print the schemas.
type StrategyConfig struct {
	Provider string         `yaml:"provider" json:"provider" jsonschema:"title=Provider,default=trend_momentum"`
	Options  map[string]any `yaml:"options" json:"options,omitempty" jsonschema:"title=Options,description=Provider options keyed by the provider's JSON schema"`

	// Fusion runs the instrument on two timeframes fused into one
	// decision. Nil runs the provider on the instrument interval alone.
	Fusion *FusionConfig `yaml:"fusion" json:"fusion,omitempty" jsonschema:"title=Fusion"`
}

// FusionConfig layers a slow trend filter over the instrument's fast
// provider. The fast interval is always the instrument interval; the
// slow provider defaults to the instrument's own provider and options.
type FusionConfig struct {
	fusion.Config `yaml:",inline"`

	SlowProvider string         `yaml:"slow_provider" json:"slow_provider,omitempty" jsonschema:"title=Slow Provider,description=Provider for the slow timeframe; defaults to the instrument provider"`
	SlowOptions  map[string]any `yaml:"slow_options" json:"slow_options,omitempty" jsonschema:"title=Slow Options"`
}

// Load reads and parses the config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "failed to read config file %s", path)
	}

	return Parse(data)
}

// Parse parses YAML config data, applies defaults and validates.
func Parse(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to parse config", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Engine.SnapshotPath == "" {
		c.Engine.SnapshotPath = DefaultSnapshotPath
	}

	if c.Engine.JournalPath == "" {
		c.Engine.JournalPath = DefaultJournalPath
	}

	if c.Engine.PollSeconds == 0 {
		c.Engine.PollSeconds = DefaultPollSeconds
	}

	if c.Engine.MonitorSeconds == 0 {
		c.Engine.MonitorSeconds = DefaultMonitorSeconds
	}

	if c.Engine.ReconcileEvery == 0 {
		c.Engine.ReconcileEvery = DefaultReconcileEvery
	}

	if c.Broker.Type == "" {
		c.Broker.Type = string(broker.BrokerBinanceFuturesPaper)
	}

	if c.Margin.Rate == 0 {
		c.Margin.Rate = margin.DefaultMarginRate
	}

	if c.Data.Directory == "" {
		c.Data.Directory = DefaultDataDirectory
	}

	if c.Data.CollectMinutes == 0 {
		c.Data.CollectMinutes = DefaultCollectMinutes
	}

	if c.Data.RefreshMinutes == 0 {
		c.Data.RefreshMinutes = DefaultRefreshMinutes
	}

	if c.Data.BackfillDays == 0 {
		c.Data.BackfillDays = DefaultBackfillDays
	}

	for i := range c.Instruments {
		instrument := &c.Instruments[i]

		if instrument.Interval == "" {
			instrument.Interval = types.Interval15m
		}

		if instrument.MinConfidence == 0 {
			instrument.MinConfidence = fusion.DefaultFastThreshold
		}

		if instrument.LotSize == 0 {
			instrument.LotSize = 1
		}

		if instrument.Strategy.Provider == "" {
			instrument.Strategy.Provider = string(strategy.ProviderTrendMomentum)
		}
	}
}

// Validate checks struct constraints and the cross-field rules the
// tags cannot express: unique symbols, known intervals, parseable
// strategy options and sane fusion timeframes.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid config", err)
	}

	if len(c.Instruments) > ledger.MaxActiveInstruments {
		return errors.Newf(errors.ErrCodeInstrumentLimit, "%d instruments configured, the watch list holds at most %d", len(c.Instruments), ledger.MaxActiveInstruments)
	}

	seen := make(map[string]struct{}, len(c.Instruments))
	for _, instrument := range c.Instruments {
		if _, dup := seen[instrument.Symbol]; dup {
			return errors.Newf(errors.ErrCodeInvalidConfiguration, "instrument %s configured twice", instrument.Symbol)
		}
		seen[instrument.Symbol] = struct{}{}

		if _, err := types.ParseInterval(string(instrument.Interval)); err != nil {
			return errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "instrument %s", instrument.Symbol)
		}

		if err := instrument.Strategy.validate(instrument.Interval); err != nil {
			return errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "instrument %s", instrument.Symbol)
		}
	}

	return nil
}

func (s StrategyConfig) validate(fast types.Interval) error {
	if _, err := buildProvider(s.Provider, s.Options); err != nil {
		return err
	}

	if s.Fusion == nil {
		return nil
	}

	slowName, slowOptions := s.slowProvider()
	if _, err := buildProvider(slowName, slowOptions); err != nil {
		return err
	}

	slow := s.Fusion.SlowInterval
	if slow == "" {
		slow = types.Interval1h
	}

	if _, err := types.ParseInterval(string(slow)); err != nil {
		return err
	}

	if slow.Duration() <= fast.Duration() {
		return errors.Newf(errors.ErrCodeFusionConfigError, "slow interval %s must exceed fast interval %s", slow, fast)
	}

	return nil
}

// slowProvider resolves the slow timeframe's provider and options,
// falling back to the instrument's own.
func (s StrategyConfig) slowProvider() (string, map[string]any) {
	name := s.Fusion.SlowProvider
	if name == "" {
		name = s.Provider
	}

	options := s.Fusion.SlowOptions
	if options == nil {
		options = s.Options
	}

	return name, options
}

// Provider builds the signal provider this instrument trades on,
// wrapping it in a multi-timeframe fusion when one is configured.
func (c InstrumentConfig) Provider(log *logger.Logger) (strategy.SignalProvider, error) {
	fast, err := buildProvider(c.Strategy.Provider, c.Strategy.Options)
	if err != nil {
		return nil, err
	}

	if c.Strategy.Fusion == nil {
		return fast, nil
	}

	slowName, slowOptions := c.Strategy.slowProvider()
	slow, err := buildProvider(slowName, slowOptions)
	if err != nil {
		return nil, err
	}

	fusionConfig := c.Strategy.Fusion.Config
	fusionConfig.FastInterval = c.Interval

	return fusion.NewMultiTimeframe(fusionConfig, slow, fast, log)
}

func buildProvider(name string, options map[string]any) (strategy.SignalProvider, error) {
	jsonConfig, err := jsonOptions(options)
	if err != nil {
		return nil, err
	}

	parsed, err := strategy.ParseProviderConfig(name, jsonConfig)
	if err != nil {
		return nil, err
	}

	return strategy.NewSignalProvider(strategy.ProviderType(name), parsed)
}

// jsonOptions re-encodes a YAML options map as the JSON document the
// provider registry parses.
func jsonOptions(options map[string]any) (string, error) {
	if len(options) == 0 {
		return "{}", nil
	}

	raw, err := json.Marshal(options)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInvalidConfiguration, "strategy options are not JSON encodable", err)
	}

	return string(raw), nil
}

// Symbols lists configured instruments in file order.
func (c *Config) Symbols() []string {
	symbols := make([]string, 0, len(c.Instruments))
	for _, instrument := range c.Instruments {
		symbols = append(symbols, instrument.Symbol)
	}

	return symbols
}

// Instrument looks up one instrument's configuration by symbol.
func (c *Config) Instrument(symbol string) (InstrumentConfig, bool) {
	for _, instrument := range c.Instruments {
		if instrument.Symbol == symbol {
			return instrument, true
		}
	}

	return InstrumentConfig{}, false
}

// LotSizes collects contract sizes per instrument for the broker
// adapter and the reconciler.
func (c *Config) LotSizes() map[string]float64 {
	sizes := make(map[string]float64, len(c.Instruments))
	for _, instrument := range c.Instruments {
		sizes[instrument.Symbol] = instrument.LotSize
	}

	return sizes
}

// MarginSchedule collects the explicit per-lot margins. Instruments
// without one price margin through the rate fallback.
func (c *Config) MarginSchedule() map[string]float64 {
	schedule := make(map[string]float64)
	for _, instrument := range c.Instruments {
		if instrument.MarginPerLot > 0 {
			schedule[instrument.Symbol] = instrument.MarginPerLot
		}
	}

	return schedule
}

// Oracle builds the margin oracle: explicit schedules first, the
// configured rate for everything else.
func (c *Config) Oracle() margin.Oracle {
	return margin.NewTieredOracle(c.MarginSchedule(), c.Margin.Rate, c.LotSizes())
}

// BrokerType returns the typed broker selector.
func (c *Config) BrokerType() broker.BrokerType {
	return broker.BrokerType(c.Broker.Type)
}

// BinanceConfig assembles the broker adapter configuration, merging
// the per-instrument lot sizes into it.
func (c *Config) BinanceConfig() *broker.BinanceFuturesConfig {
	return &broker.BinanceFuturesConfig{
		ApiKey:            c.Broker.ApiKey,
		SecretKey:         c.Broker.SecretKey,
		BaseURL:           c.Broker.BaseURL,
		Asset:             c.Broker.Asset,
		LotSizes:          c.LotSizes(),
		RequestsPerSecond: c.Broker.RequestsPerSecond,
		RequestBurst:      c.Broker.RequestBurst,
	}
}

// Schema returns the JSON schema of the config file.
func Schema() (string, error) {
	return schema.ToJSONSchema(Config{})
}

// Sample returns a complete two-instrument example config with
// defaults applied, for the generate command.
func Sample() Config {
	config := Config{
		Broker: BrokerConfig{
			Type:      string(broker.BrokerBinanceFuturesPaper),
			ApiKey:    "YOUR_API_KEY",
			SecretKey: "YOUR_SECRET_KEY",
		},
		Instruments: []InstrumentConfig{
			{
				Symbol:       "BTCUSDT",
				Interval:     types.Interval15m,
				LotSize:      0.001,
				MarginPerLot: 50,
				Strategy: StrategyConfig{
					Provider: string(strategy.ProviderTrendMomentum),
					Fusion: &FusionConfig{
						Config: fusion.Config{SlowInterval: types.Interval1h},
					},
				},
			},
			{
				Symbol:   "ETHUSDT",
				Interval: types.Interval15m,
				LotSize:  0.01,
				Strategy: StrategyConfig{
					Provider: string(strategy.ProviderRSIReversion),
					Options:  map[string]any{"rsiPeriod": 14, "riskReward": 1.5},
				},
			},
		},
	}

	config.applyDefaults()

	return config
}
