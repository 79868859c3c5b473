// Package broker abstracts the futures exchange. The engine only ever
// sees the Client interface; adapters translate to a concrete API.
package broker

import (
	"context"
	"time"

	"github.com/moznion/go-optional"

	"github.com/meridian-lab/meridian-trading/internal/types"
	"github.com/meridian-lab/meridian-trading/pkg/errors"
	"github.com/meridian-lab/meridian-trading/pkg/schema"
)

// Position is an open position as the broker reports it. The broker is
// the source of truth; reconciliation aligns the ledger to this.
type Position struct {
	Instrument    string     `json:"instrument"`
	Side          types.Side `json:"side"`
	Lots          int        `json:"lots"`
	EntryPrice    float64    `json:"entryPrice"`
	MarkPrice     float64    `json:"markPrice"`
	UnrealizedPnL float64    `json:"unrealizedPnl"`
}

// Balance is the margin account balance for the settlement asset.
type Balance struct {
	Asset     string  `json:"asset"`
	Total     float64 `json:"total"`
	Available float64 `json:"available"`
}

// OrderRequest asks for an immediate market fill. Side is the order
// direction: closing a LONG position is a SHORT order with ReduceOnly
// set.
type OrderRequest struct {
	Instrument string
	Side       types.Side
	Lots       int
	// ReduceOnly marks closing orders so they can never flip the
	// position.
	ReduceOnly bool
}

// OrderResult reports what actually happened. Filled is the only
// confirmation the engine accepts; a nil error alone never means the
// order went through.
type OrderResult struct {
	OrderID    string
	Filled     bool
	FilledLots int
	FillPrice  float64
	Status     string
}

// Client is the broker surface the trading engine depends on.
type Client interface {
	// Name identifies the adapter in logs and status output.
	Name() string
	// GetCandles returns OHLCV bars for [from, to) at the interval,
	// oldest first.
	GetCandles(ctx context.Context, instrument string, from, to time.Time, interval types.Interval) ([]types.Candle, error)
	// GetOpenPositions returns open positions, optionally filtered to
	// one instrument.
	GetOpenPositions(ctx context.Context, instrument optional.Option[string]) ([]Position, error)
	// GetBalance returns the settlement asset balance.
	GetBalance(ctx context.Context) (Balance, error)
	// PlaceMarketOrder submits a market order and reports the fill.
	PlaceMarketOrder(ctx context.Context, request OrderRequest) (OrderResult, error)
}

type BrokerType string

const (
	BrokerBinanceFuturesPaper BrokerType = "binance-futures-paper"
	BrokerBinanceFuturesLive  BrokerType = "binance-futures-live"
)

type BrokerInfo struct {
	Name           string `json:"name"`
	DisplayName    string `json:"displayName"`
	Description    string `json:"description"`
	IsPaperTrading bool   `json:"isPaperTrading"`
}

var brokerRegistry = map[BrokerType]BrokerInfo{
	BrokerBinanceFuturesPaper: {
		Name:           string(BrokerBinanceFuturesPaper),
		DisplayName:    "Binance USD-M Futures Testnet",
		Description:    "Binance futures testnet for running the engine without real funds",
		IsPaperTrading: true,
	},
	BrokerBinanceFuturesLive: {
		Name:           string(BrokerBinanceFuturesLive),
		DisplayName:    "Binance USD-M Futures",
		Description:    "Binance USD-M futures live environment for real-funds trading",
		IsPaperTrading: false,
	},
}

func GetSupportedBrokers() []string {
	brokers := make([]string, 0, len(brokerRegistry))
	for brokerType := range brokerRegistry {
		brokers = append(brokers, string(brokerType))
	}

	return brokers
}

// GetBrokerInfo returns metadata for a specific broker.
func GetBrokerInfo(brokerName string) (BrokerInfo, error) {
	info, exists := brokerRegistry[BrokerType(brokerName)]
	if !exists {
		return BrokerInfo{}, errors.Newf(errors.ErrCodeInvalidParameter, "unsupported broker: %s", brokerName)
	}

	return info, nil
}

// GetBrokerConfigSchema returns the JSON schema for a broker's
// configuration.
func GetBrokerConfigSchema(brokerName string) (string, error) {
	switch BrokerType(brokerName) {
	case BrokerBinanceFuturesPaper, BrokerBinanceFuturesLive:
		return schema.ToJSONSchema(BinanceFuturesConfig{})
	default:
		return "", errors.Newf(errors.ErrCodeInvalidParameter, "unsupported broker: %s", brokerName)
	}
}

// ParseBrokerConfig parses a JSON configuration string for the broker.
func ParseBrokerConfig(brokerName string, jsonConfig string) (any, error) {
	switch BrokerType(brokerName) {
	case BrokerBinanceFuturesPaper, BrokerBinanceFuturesLive:
		return parseBinanceFuturesConfig(jsonConfig)
	default:
		return nil, errors.Newf(errors.ErrCodeInvalidParameter, "unsupported broker: %s", brokerName)
	}
}

// NewClient creates a broker client of the given type.
func NewClient(brokerType BrokerType, config any) (Client, error) {
	switch brokerType {
	case BrokerBinanceFuturesPaper:
		cfg, ok := config.(*BinanceFuturesConfig)
		if !ok {
			return nil, errors.New(errors.ErrCodeInvalidConfiguration, "invalid config type for binance futures paper broker")
		}

		return NewBinanceFutures(*cfg, true)

	case BrokerBinanceFuturesLive:
		cfg, ok := config.(*BinanceFuturesConfig)
		if !ok {
			return nil, errors.New(errors.ErrCodeInvalidConfiguration, "invalid config type for binance futures live broker")
		}

		return NewBinanceFutures(*cfg, false)

	default:
		return nil, errors.Newf(errors.ErrCodeInvalidParameter, "unsupported broker: %s", brokerType)
	}
}
