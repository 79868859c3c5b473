// Package provider fetches candle data from external market data
// vendors. Historical windows and realtime feeds are both exposed as
// iterators so callers decide where the candles go.
package provider

import (
	"context"
	"iter"
	"time"

	"github.com/meridian-lab/meridian-trading/internal/types"
	"github.com/meridian-lab/meridian-trading/pkg/errors"
)

// ProviderType identifies a market data vendor.
type ProviderType string

const (
	ProviderPolygon ProviderType = "polygon"
	ProviderBinance ProviderType = "binance"
)

// Provider yields candles from one vendor.
type Provider interface {
	// Name returns the vendor name.
	Name() string
	// Candles yields the closed candles inside [start, end), oldest
	// first. The iterator stops after yielding an error.
	Candles(ctx context.Context, instrument string, interval types.Interval, start, end time.Time) iter.Seq2[types.Candle, error]
	// Stream yields finalized candles from the vendor's realtime feed
	// until the context is cancelled.
	Stream(ctx context.Context, instruments []string, interval types.Interval) iter.Seq2[types.Candle, error]
}

// New creates a provider of the given type. The API key is only
// required for vendors that authenticate market data access.
func New(providerType ProviderType, apiKey string) (Provider, error) {
	switch providerType {
	case ProviderBinance:
		return NewBinanceProvider(), nil
	case ProviderPolygon:
		return NewPolygonProvider(apiKey)
	default:
		return nil, errors.Newf(errors.ErrCodeInvalidDataProvider, "unsupported market data provider: %s", providerType)
	}
}
