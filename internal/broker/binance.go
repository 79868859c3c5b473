package broker

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/moznion/go-optional"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/meridian-lab/meridian-trading/internal/types"
	"github.com/meridian-lab/meridian-trading/pkg/errors"
)

const (
	// BinanceQuantityPrecision is the decimal precision quantities are
	// formatted with. Production systems should use symbol-specific
	// precision from exchange info (LOT_SIZE filter).
	BinanceQuantityPrecision = 8

	// binanceKlinePageSize is the kline page size used for pagination.
	binanceKlinePageSize = 500

	// binanceInsufficientMarginCode is the API error for orders the
	// account cannot cover.
	binanceInsufficientMarginCode = -2019
)

// Service interfaces for mocking the Binance futures API

// KlinesService interface for fetching candles.
type KlinesService interface {
	Symbol(symbol string) KlinesService
	Interval(interval string) KlinesService
	StartTime(startTime int64) KlinesService
	EndTime(endTime int64) KlinesService
	Limit(limit int) KlinesService
	Do(ctx context.Context) ([]*futures.Kline, error)
}

// PositionRiskService interface for reading open positions.
type PositionRiskService interface {
	Symbol(symbol string) PositionRiskService
	Do(ctx context.Context) ([]*futures.PositionRisk, error)
}

// BalanceService interface for reading account balances.
type BalanceService interface {
	Do(ctx context.Context) ([]*futures.Balance, error)
}

// CreateOrderService interface for submitting orders.
type CreateOrderService interface {
	Symbol(symbol string) CreateOrderService
	Side(side futures.SideType) CreateOrderService
	Type(orderType futures.OrderType) CreateOrderService
	Quantity(quantity string) CreateOrderService
	ReduceOnly(reduceOnly bool) CreateOrderService
	NewOrderResponseType(responseType futures.NewOrderRespType) CreateOrderService
	Do(ctx context.Context) (*futures.CreateOrderResponse, error)
}

// BinanceFuturesAPI abstracts the futures client for testing.
type BinanceFuturesAPI interface {
	NewKlinesService() KlinesService
	NewPositionRiskService() PositionRiskService
	NewBalanceService() BalanceService
	NewCreateOrderService() CreateOrderService
}

// realFuturesAPI wraps the actual futures.Client.
type realFuturesAPI struct {
	client *futures.Client
}

func (r *realFuturesAPI) NewKlinesService() KlinesService {
	return &realKlinesService{service: r.client.NewKlinesService()}
}

func (r *realFuturesAPI) NewPositionRiskService() PositionRiskService {
	return &realPositionRiskService{service: r.client.NewGetPositionRiskService()}
}

func (r *realFuturesAPI) NewBalanceService() BalanceService {
	return &realBalanceService{service: r.client.NewGetBalanceService()}
}

func (r *realFuturesAPI) NewCreateOrderService() CreateOrderService {
	return &realCreateOrderService{service: r.client.NewCreateOrderService()}
}

// Real service wrappers

type realKlinesService struct {
	service *futures.KlinesService
}

func (s *realKlinesService) Symbol(symbol string) KlinesService {
	s.service = s.service.Symbol(symbol)

	return s
}

func (s *realKlinesService) Interval(interval string) KlinesService {
	s.service = s.service.Interval(interval)

	return s
}

func (s *realKlinesService) StartTime(startTime int64) KlinesService {
	s.service = s.service.StartTime(startTime)

	return s
}

func (s *realKlinesService) EndTime(endTime int64) KlinesService {
	s.service = s.service.EndTime(endTime)

	return s
}

func (s *realKlinesService) Limit(limit int) KlinesService {
	s.service = s.service.Limit(limit)

	return s
}

func (s *realKlinesService) Do(ctx context.Context) ([]*futures.Kline, error) {
	return s.service.Do(ctx)
}

type realPositionRiskService struct {
	service *futures.GetPositionRiskService
}

func (s *realPositionRiskService) Symbol(symbol string) PositionRiskService {
	s.service = s.service.Symbol(symbol)

	return s
}

func (s *realPositionRiskService) Do(ctx context.Context) ([]*futures.PositionRisk, error) {
	return s.service.Do(ctx)
}

type realBalanceService struct {
	service *futures.GetBalanceService
}

func (s *realBalanceService) Do(ctx context.Context) ([]*futures.Balance, error) {
	return s.service.Do(ctx)
}

type realCreateOrderService struct {
	service *futures.CreateOrderService
}

func (s *realCreateOrderService) Symbol(symbol string) CreateOrderService {
	s.service = s.service.Symbol(symbol)

	return s
}

func (s *realCreateOrderService) Side(side futures.SideType) CreateOrderService {
	s.service = s.service.Side(side)

	return s
}

func (s *realCreateOrderService) Type(orderType futures.OrderType) CreateOrderService {
	s.service = s.service.Type(orderType)

	return s
}

func (s *realCreateOrderService) Quantity(quantity string) CreateOrderService {
	s.service = s.service.Quantity(quantity)

	return s
}

func (s *realCreateOrderService) ReduceOnly(reduceOnly bool) CreateOrderService {
	s.service = s.service.ReduceOnly(reduceOnly)

	return s
}

func (s *realCreateOrderService) NewOrderResponseType(responseType futures.NewOrderRespType) CreateOrderService {
	s.service = s.service.NewOrderResponseType(responseType)

	return s
}

func (s *realCreateOrderService) Do(ctx context.Context) (*futures.CreateOrderResponse, error) {
	return s.service.Do(ctx)
}

// BinanceFutures implements Client against the Binance USD-M futures
// API. It is stateless; every call goes to the exchange through a
// client-side rate limiter and a circuit breaker.
type BinanceFutures struct {
	api     BinanceFuturesAPI
	config  BinanceFuturesConfig
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

var _ Client = (*BinanceFutures)(nil)

// NewBinanceFutures creates the adapter. If useTestnet is true it
// connects to the futures testnet; a configured BaseURL overrides
// either.
func NewBinanceFutures(config BinanceFuturesConfig, useTestnet bool) (*BinanceFutures, error) {
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	if useTestnet {
		futures.UseTestnet = true
	}

	client := futures.NewClient(config.ApiKey, config.SecretKey)
	if config.BaseURL != "" {
		client.BaseURL = config.BaseURL
	}

	return newBinanceFuturesWithAPI(&realFuturesAPI{client: client}, config), nil
}

// newBinanceFuturesWithAPI wires a custom API implementation. Tests
// use it with mock services.
func newBinanceFuturesWithAPI(api BinanceFuturesAPI, config BinanceFuturesConfig) *BinanceFutures {
	config.applyDefaults()

	return &BinanceFutures{
		api:    api,
		config: config,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:     "binance-futures",
			Interval: time.Minute,
			Timeout:  30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
		limiter: rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.RequestBurst),
	}
}

func (b *BinanceFutures) Name() string {
	return "binance-futures"
}

// GetCandles pages through klines until the range is covered. Bars are
// stamped with their open time.
func (b *BinanceFutures) GetCandles(ctx context.Context, instrument string, from, to time.Time, interval types.Interval) ([]types.Candle, error) {
	if _, err := types.ParseInterval(string(interval)); err != nil {
		return nil, err
	}

	var candles []types.Candle

	startMillis := from.UnixMilli()
	endMillis := to.UnixMilli()

	for startMillis < endMillis {
		currentStart := startMillis

		result, err := b.call(ctx, errors.ErrCodeHistoryFetchFailed, func() (any, error) {
			return b.api.NewKlinesService().
				Symbol(instrument).
				Interval(string(interval)).
				StartTime(currentStart).
				EndTime(endMillis).
				Limit(binanceKlinePageSize).
				Do(ctx)
		})
		if err != nil {
			return nil, err
		}

		klines := result.([]*futures.Kline)
		if len(klines) == 0 {
			break
		}

		for _, k := range klines {
			open, _ := strconv.ParseFloat(k.Open, 64)
			high, _ := strconv.ParseFloat(k.High, 64)
			low, _ := strconv.ParseFloat(k.Low, 64)
			closePrice, _ := strconv.ParseFloat(k.Close, 64)
			volume, _ := strconv.ParseFloat(k.Volume, 64)

			candles = append(candles, types.Candle{
				Instrument: instrument,
				Time:       time.UnixMilli(k.OpenTime).UTC(),
				Open:       open,
				High:       high,
				Low:        low,
				Close:      closePrice,
				Volume:     volume,
			})
		}

		if len(klines) < binanceKlinePageSize {
			break
		}

		// Next page starts just past the last bar to avoid duplicates.
		startMillis = klines[len(klines)-1].CloseTime + 1
	}

	return candles, nil
}

// GetOpenPositions reads position risk and keeps entries with nonzero
// quantity.
func (b *BinanceFutures) GetOpenPositions(ctx context.Context, instrument optional.Option[string]) ([]Position, error) {
	result, err := b.call(ctx, errors.ErrCodeQueryFailed, func() (any, error) {
		service := b.api.NewPositionRiskService()
		if symbol, err := instrument.Take(); err == nil {
			service = service.Symbol(symbol)
		}

		return service.Do(ctx)
	})
	if err != nil {
		return nil, err
	}

	risks := result.([]*futures.PositionRisk)
	positions := make([]Position, 0, len(risks))

	for _, risk := range risks {
		amount, _ := strconv.ParseFloat(risk.PositionAmt, 64)
		if amount == 0 {
			continue
		}

		entryPrice, _ := strconv.ParseFloat(risk.EntryPrice, 64)
		markPrice, _ := strconv.ParseFloat(risk.MarkPrice, 64)
		unrealized, _ := strconv.ParseFloat(risk.UnRealizedProfit, 64)

		side := types.SideLong
		if amount < 0 {
			side = types.SideShort
		}

		positions = append(positions, Position{
			Instrument:    risk.Symbol,
			Side:          side,
			Lots:          b.lotsForQuantity(risk.Symbol, math.Abs(amount)),
			EntryPrice:    entryPrice,
			MarkPrice:     markPrice,
			UnrealizedPnL: unrealized,
		})
	}

	return positions, nil
}

// GetBalance returns the configured settlement asset balance.
func (b *BinanceFutures) GetBalance(ctx context.Context) (Balance, error) {
	result, err := b.call(ctx, errors.ErrCodeQueryFailed, func() (any, error) {
		return b.api.NewBalanceService().Do(ctx)
	})
	if err != nil {
		return Balance{}, err
	}

	for _, balance := range result.([]*futures.Balance) {
		if balance.Asset != b.config.Asset {
			continue
		}

		total, _ := strconv.ParseFloat(balance.Balance, 64)
		available, _ := strconv.ParseFloat(balance.AvailableBalance, 64)

		return Balance{Asset: balance.Asset, Total: total, Available: available}, nil
	}

	return Balance{}, errors.Newf(errors.ErrCodeInvalidConfiguration,
		"no %s balance in futures account", b.config.Asset)
}

// PlaceMarketOrder submits a market order and reports the fill from
// the RESULT response. Callers must check Filled; an accepted but
// unfilled order is not a success.
func (b *BinanceFutures) PlaceMarketOrder(ctx context.Context, request OrderRequest) (OrderResult, error) {
	if request.Lots < 1 {
		return OrderResult{}, errors.Newf(errors.ErrCodeInvalidParameter, "order lots must be at least 1, got %d", request.Lots)
	}

	var side futures.SideType

	switch request.Side {
	case types.SideLong:
		side = futures.SideTypeBuy
	case types.SideShort:
		side = futures.SideTypeSell
	default:
		return OrderResult{}, errors.Newf(errors.ErrCodeInvalidParameter, "unsupported order side: %s", request.Side)
	}

	lotSize := b.config.LotSize(request.Instrument)
	quantity := strconv.FormatFloat(float64(request.Lots)*lotSize, 'f', BinanceQuantityPrecision, 64)

	result, err := b.call(ctx, errors.ErrCodeOrderFailed, func() (any, error) {
		return b.api.NewCreateOrderService().
			Symbol(request.Instrument).
			Side(side).
			Type(futures.OrderTypeMarket).
			Quantity(quantity).
			ReduceOnly(request.ReduceOnly).
			NewOrderResponseType(futures.NewOrderRespTypeRESULT).
			Do(ctx)
	})
	if err != nil {
		return OrderResult{}, err
	}

	response := result.(*futures.CreateOrderResponse)

	executedQuantity, _ := strconv.ParseFloat(response.ExecutedQuantity, 64)
	avgPrice, _ := strconv.ParseFloat(response.AvgPrice, 64)

	return OrderResult{
		OrderID:    strconv.FormatInt(response.OrderID, 10),
		Filled:     response.Status == futures.OrderStatusTypeFilled,
		FilledLots: b.lotsForQuantity(request.Instrument, executedQuantity),
		FillPrice:  avgPrice,
		Status:     string(response.Status),
	}, nil
}

// call runs one API request through the rate limiter and circuit
// breaker, classifying failures into the broker error taxonomy.
// apiErrorCode is used for API-level rejections, which are permanent;
// timeouts, network failures and an open breaker classify as
// transient regardless of the operation.
func (b *BinanceFutures) call(ctx context.Context, apiErrorCode errors.ErrorCode, fn func() (any, error)) (any, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(errors.ErrCodeBrokerTimeout, "rate limiter wait aborted", err)
	}

	result, err := b.breaker.Execute(fn)
	if err != nil {
		return nil, classifyBinanceError(err, apiErrorCode)
	}

	return result, nil
}

func classifyBinanceError(err error, apiErrorCode errors.ErrorCode) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return errors.Wrap(errors.ErrCodeBrokerUnavailable, "binance circuit breaker rejected the request", err)
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errors.Wrap(errors.ErrCodeBrokerTimeout, "binance request timed out", err)
	}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == binanceInsufficientMarginCode {
			return errors.Wrap(errors.ErrCodeInsufficientMargin, "binance rejected order for insufficient margin", err)
		}

		return errors.Wrapf(apiErrorCode, err, "binance api error %d", apiErr.Code)
	}

	return errors.Wrap(errors.ErrCodeBrokerUnavailable, "binance request failed", err)
}

func (b *BinanceFutures) lotsForQuantity(instrument string, quantity float64) int {
	lotSize := b.config.LotSize(instrument)

	return int(math.Round(quantity / lotSize))
}
