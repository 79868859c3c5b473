// Package marketdata moves candles from external vendors into the
// per-instrument DuckDB stores the rest of the system reads. It covers
// one-shot historical downloads, incremental refreshes for the
// collector and a realtime follow mode.
package marketdata

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/meridian-lab/meridian-trading/internal/logger"
	"github.com/meridian-lab/meridian-trading/internal/types"
	"github.com/meridian-lab/meridian-trading/pkg/errors"
	"github.com/meridian-lab/meridian-trading/pkg/marketdata/provider"
	"github.com/meridian-lab/meridian-trading/pkg/marketdata/writer"
)

// OnProgress reports download progress. Current and total are in
// seconds of window covered.
type OnProgress = func(current float64, total float64, message string)

// ClientConfig holds the configuration for the market data client.
type ClientConfig struct {
	Provider      provider.ProviderType `validate:"required,oneof=polygon binance"`
	Directory     string                `validate:"required"`
	PolygonApiKey string                `validate:"required_if=Provider polygon"`
}

// DownloadParams describes one historical download window.
type DownloadParams struct {
	Instrument string         `validate:"required"`
	Interval   types.Interval `validate:"required"`
	Start      time.Time      `validate:"required"`
	End        time.Time      `validate:"required,gtfield=Start"`
}

// Result reports where a pass wrote and how many candles it stored.
type Result struct {
	Path    string
	Written int
}

// StorePath returns the store file for one instrument.
func StorePath(directory, instrument string) string {
	return filepath.Join(directory, instrument+".duckdb")
}

// Client downloads candles from one provider and writes them into the
// instrument stores under the configured directory.
type Client struct {
	provider   provider.Provider
	config     ClientConfig
	validate   *validator.Validate
	onProgress OnProgress
	log        *logger.Logger
}

// NewClient creates a market data client. The progress callback may be
// nil.
func NewClient(config ClientConfig, onProgress OnProgress, log *logger.Logger) (*Client, error) {
	validate := validator.New()
	if err := validate.Struct(config); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid market data configuration", err)
	}

	marketProvider, err := provider.New(config.Provider, config.PolygonApiKey)
	if err != nil {
		return nil, err
	}

	return &Client{
		provider:   marketProvider,
		config:     config,
		validate:   validate,
		onProgress: onProgress,
		log:        log,
	}, nil
}

// NewClientWithProvider wires a caller-supplied provider instead of
// building one from the config.
func NewClientWithProvider(config ClientConfig, marketProvider provider.Provider, onProgress OnProgress, log *logger.Logger) (*Client, error) {
	validate := validator.New()
	if err := validate.Struct(config); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid market data configuration", err)
	}

	return &Client{
		provider:   marketProvider,
		config:     config,
		validate:   validate,
		onProgress: onProgress,
		log:        log,
	}, nil
}

// Download fetches the full window into the instrument's store.
func (c *Client) Download(ctx context.Context, params DownloadParams) (Result, error) {
	if err := c.validate.Struct(params); err != nil {
		return Result{}, errors.Wrap(errors.ErrCodeInvalidParameter, "invalid download parameters", err)
	}

	if _, err := types.ParseInterval(string(params.Interval)); err != nil {
		return Result{}, err
	}

	path := StorePath(c.config.Directory, params.Instrument)

	store := writer.NewDuckDBWriter(path)
	if err := store.Initialize(); err != nil {
		return Result{}, err
	}
	defer store.Close()

	written := 0
	total := params.End.Sub(params.Start).Seconds()
	message := fmt.Sprintf("Downloading %s from %s", params.Instrument, c.provider.Name())

	for candle, err := range c.provider.Candles(ctx, params.Instrument, params.Interval, params.Start, params.End) {
		if err != nil {
			return Result{}, err
		}

		if err := store.Write(candle); err != nil {
			return Result{}, err
		}

		written++

		c.progress(candle.Time.Sub(params.Start).Seconds(), total, message)
	}

	if _, err := store.Finalize(); err != nil {
		return Result{}, err
	}

	c.log.Info("Download complete",
		zap.String("instrument", params.Instrument),
		zap.Int("candles", written),
		zap.String("path", path),
	)

	return Result{Path: path, Written: written}, nil
}

// Refresh tops the instrument's store up to now. An empty store is
// backfilled over the whole backfill window; otherwise fetching restarts
// at the newest stored bar, whose upsert heals a bar that was still
// forming when last written. Bars not yet closed at now are skipped.
func (c *Client) Refresh(ctx context.Context, instrument string, interval types.Interval, backfill time.Duration, now time.Time) (Result, error) {
	path := StorePath(c.config.Directory, instrument)

	store := writer.NewDuckDBWriter(path)
	if err := store.Initialize(); err != nil {
		return Result{}, err
	}
	defer store.Close()

	start := now.Add(-backfill)

	if latest, err := store.LatestTime(instrument); err != nil {
		return Result{}, err
	} else if head, err := latest.Take(); err == nil {
		start = head
	}

	if !start.Before(now) {
		return Result{Path: path}, nil
	}

	written := 0

	for candle, err := range c.provider.Candles(ctx, instrument, interval, start, now) {
		if err != nil {
			return Result{}, err
		}

		if candle.Time.Add(interval.Duration()).After(now) {
			continue
		}

		if err := store.Write(candle); err != nil {
			return Result{}, err
		}

		written++
	}

	if _, err := store.Finalize(); err != nil {
		return Result{}, err
	}

	c.log.Debug("Store refreshed",
		zap.String("instrument", instrument),
		zap.Int("candles", written),
	)

	return Result{Path: path, Written: written}, nil
}

// Follow tails the provider's realtime feed and commits each finalized
// candle into its instrument store. Returns when the context is
// cancelled or the feed fails.
func (c *Client) Follow(ctx context.Context, instruments []string, interval types.Interval) error {
	stores := make(map[string]*writer.StreamWriter, len(instruments))

	for _, instrument := range instruments {
		store := writer.NewStreamWriter(StorePath(c.config.Directory, instrument))
		if err := store.Initialize(); err != nil {
			return err
		}
		defer store.Close()

		stores[instrument] = store
	}

	c.log.Info("Following live candles",
		zap.Strings("instruments", instruments),
		zap.String("interval", string(interval)),
	)

	for candle, err := range c.provider.Stream(ctx, instruments, interval) {
		if err != nil {
			return err
		}

		store, ok := stores[candle.Instrument]
		if !ok {
			continue
		}

		if err := store.Write(candle); err != nil {
			return err
		}

		c.log.Debug("Stored candle",
			zap.String("instrument", candle.Instrument),
			zap.Time("time", candle.Time),
			zap.Float64("close", candle.Close),
		)
	}

	return nil
}

func (c *Client) progress(current, total float64, message string) {
	if c.onProgress == nil {
		return
	}

	c.onProgress(current, total, message)
}

// ProviderInfo contains metadata about a market data provider.
type ProviderInfo struct {
	Name         string `json:"name"`
	DisplayName  string `json:"displayName"`
	Description  string `json:"description"`
	RequiresAuth bool   `json:"requiresAuth"`
}

var dataProviderRegistry = map[provider.ProviderType]ProviderInfo{
	provider.ProviderPolygon: {
		Name:         string(provider.ProviderPolygon),
		DisplayName:  "Polygon.io",
		Description:  "US market data with historical and realtime OHLCV aggregates",
		RequiresAuth: true,
	},
	provider.ProviderBinance: {
		Name:         string(provider.ProviderBinance),
		DisplayName:  "Binance",
		Description:  "Cryptocurrency exchange market data, no authentication required",
		RequiresAuth: false,
	},
}

// GetSupportedDataProviders returns all provider names, sorted.
func GetSupportedDataProviders() []string {
	names := make([]string, 0, len(dataProviderRegistry))
	for providerType := range dataProviderRegistry {
		names = append(names, string(providerType))
	}

	sort.Strings(names)

	return names
}

// GetDataProviderInfo returns metadata for a specific provider.
func GetDataProviderInfo(name string) (ProviderInfo, error) {
	info, exists := dataProviderRegistry[provider.ProviderType(name)]
	if !exists {
		return ProviderInfo{}, errors.Newf(errors.ErrCodeInvalidDataProvider, "unsupported market data provider: %s", name)
	}

	return info, nil
}
