// Package strategy defines the signal provider interface and the
// built-in providers. A provider turns candle history into at most one
// Signal per cycle; it never talks to the broker and never holds
// position state, which is what keeps live and replay evaluation
// identical.
package strategy

import (
	"context"
	"sort"

	"github.com/moznion/go-optional"

	"github.com/meridian-lab/meridian-trading/internal/types"
	"github.com/meridian-lab/meridian-trading/pkg/errors"
	"github.com/meridian-lab/meridian-trading/pkg/schema"
)

// SignalProvider produces a signal for the bar under evaluation.
// history contains every bar the provider is allowed to see, oldest
// first, with current as its last element; providers must be
// deterministic over identical inputs and tolerant of a growing window.
// bias describes any currently held position so a provider can avoid
// proposing an immediate flip.
type SignalProvider interface {
	Name() string
	Evaluate(ctx context.Context, current types.Candle, history []types.Candle, bias types.Bias) (optional.Option[types.Signal], error)
}

type ProviderType string

const (
	ProviderTrendMomentum ProviderType = "trend_momentum"
	ProviderRSIReversion  ProviderType = "rsi_reversion"
)

type ProviderInfo struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Description string `json:"description"`
}

var providerRegistry = map[ProviderType]ProviderInfo{
	ProviderTrendMomentum: {
		Name:        string(ProviderTrendMomentum),
		DisplayName: "Trend Momentum",
		Description: "EMA crossover trend following with an RSI exhaustion filter and ATR-derived protective levels",
	},
	ProviderRSIReversion: {
		Name:        string(ProviderRSIReversion),
		DisplayName: "RSI Reversion",
		Description: "Mean reversion on RSI extremes with ATR-derived protective levels",
	},
}

func GetSupportedProviders() []string {
	providers := make([]string, 0, len(providerRegistry))
	for providerType := range providerRegistry {
		providers = append(providers, string(providerType))
	}

	sort.Strings(providers)

	return providers
}

// GetProviderInfo returns metadata for a specific signal provider.
func GetProviderInfo(providerName string) (ProviderInfo, error) {
	info, exists := providerRegistry[ProviderType(providerName)]
	if !exists {
		return ProviderInfo{}, errors.Newf(errors.ErrCodeUnsupportedProvider, "unsupported signal provider: %s", providerName)
	}

	return info, nil
}

// GetProviderConfigSchema returns the JSON schema for a provider's configuration.
func GetProviderConfigSchema(providerName string) (string, error) {
	switch ProviderType(providerName) {
	case ProviderTrendMomentum:
		return schema.ToJSONSchema(TrendMomentumConfig{})
	case ProviderRSIReversion:
		return schema.ToJSONSchema(RSIReversionConfig{})
	default:
		return "", errors.Newf(errors.ErrCodeUnsupportedProvider, "unsupported signal provider: %s", providerName)
	}
}

// ParseProviderConfig parses a JSON configuration string for the given provider.
func ParseProviderConfig(providerName string, jsonConfig string) (any, error) {
	switch ProviderType(providerName) {
	case ProviderTrendMomentum:
		return parseTrendMomentumConfig(jsonConfig)
	case ProviderRSIReversion:
		return parseRSIReversionConfig(jsonConfig)
	default:
		return nil, errors.Newf(errors.ErrCodeUnsupportedProvider, "unsupported signal provider: %s", providerName)
	}
}

// NewSignalProvider creates a signal provider by type. A nil config
// selects the provider's defaults.
func NewSignalProvider(providerType ProviderType, config any) (SignalProvider, error) {
	switch providerType {
	case ProviderTrendMomentum:
		if config == nil {
			return NewTrendMomentum(TrendMomentumConfig{})
		}

		cfg, ok := config.(*TrendMomentumConfig)
		if !ok {
			return nil, errors.New(errors.ErrCodeInvalidConfiguration, "invalid config type for trend momentum provider")
		}

		return NewTrendMomentum(*cfg)
	case ProviderRSIReversion:
		if config == nil {
			return NewRSIReversion(RSIReversionConfig{})
		}

		cfg, ok := config.(*RSIReversionConfig)
		if !ok {
			return nil, errors.New(errors.ErrCodeInvalidConfiguration, "invalid config type for rsi reversion provider")
		}

		return NewRSIReversion(*cfg)
	default:
		return nil, errors.Newf(errors.ErrCodeUnsupportedProvider, "unsupported signal provider: %s", providerType)
	}
}
