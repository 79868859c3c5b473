// Package mockserver provides an in-process Binance USD-M futures venue
// for integration tests. It serves the REST endpoints the broker adapter
// and the market data client call, plus a kline websocket stream, backed
// by deterministic generated candle series and a small margin-account
// simulation.
package mockserver

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/meridian-lab/meridian-trading/internal/types"
	"github.com/meridian-lab/meridian-trading/mocks"
)

const (
	defaultKlineLimit = 500
	maxKlineLimit     = 1500

	// takerFeeRate is charged on the notional of every fill.
	takerFeeRate = 0.0004

	defaultSeed           = 42
	defaultStreamInterval = 20 * time.Millisecond
	defaultFinalizeEvery  = 4
	streamSeriesLength    = 256
)

// SeriesConfig describes the canonical candle history served for one
// instrument. The websocket stream continues the series past its end.
type SeriesConfig struct {
	Symbol       string
	Start        time.Time
	Interval     types.Interval
	Count        int
	InitialPrice float64
	Volatility   float64
	Trend        float64
}

// ServerConfig holds the mock venue configuration.
type ServerConfig struct {
	// InitialBalances maps settlement asset to wallet balance.
	InitialBalances map[string]float64
	// Series is the candle history per instrument.
	Series []SeriesConfig
	// Seed drives all generated data. Same seed, same venue.
	Seed int64
	// StreamInterval is the websocket tick spacing.
	StreamInterval time.Duration
	// FinalizeEvery is how many stream ticks make up one closed kline.
	FinalizeEvery int
}

type position struct {
	Symbol     string
	Amount     float64
	EntryPrice float64
}

// OrderRecord is one fill the venue executed.
type OrderRecord struct {
	ID         int64
	Symbol     string
	Side       string
	Quantity   float64
	FillPrice  float64
	ReduceOnly bool
	Time       time.Time
}

type rejection struct {
	Code    int
	Message string
}

// MockFuturesServer is the venue. Start it, point the client's base URL
// at BaseURL, and drive the scenario through the setter methods.
type MockFuturesServer struct {
	mu sync.RWMutex

	httpServer *http.Server
	listener   net.Listener
	upgrader   websocket.Upgrader

	balances   map[string]float64
	positions  map[string]*position
	orders     []OrderRecord
	orderSeq   int64
	nextReject *rejection

	series       map[string][]types.Candle
	streamSeries map[string][]types.Candle
	intervals    map[string]types.Interval
	marks        map[string]float64

	streamInterval time.Duration
	finalizeEvery  int

	wsMu          sync.RWMutex
	wsConnections map[*websocket.Conn]bool
	stopStreaming chan struct{}
}

// NewMockFuturesServer builds the venue and pregenerates every candle
// series, so paged requests always see consistent data.
func NewMockFuturesServer(config ServerConfig) *MockFuturesServer {
	seed := config.Seed
	if seed == 0 {
		seed = defaultSeed
	}

	server := &MockFuturesServer{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
		balances:       make(map[string]float64),
		positions:      make(map[string]*position),
		series:         make(map[string][]types.Candle),
		streamSeries:   make(map[string][]types.Candle),
		intervals:      make(map[string]types.Interval),
		marks:          make(map[string]float64),
		orderSeq:       1000,
		streamInterval: config.StreamInterval,
		finalizeEvery:  config.FinalizeEvery,
		wsConnections:  make(map[*websocket.Conn]bool),
		stopStreaming:  make(chan struct{}),
	}

	if server.streamInterval == 0 {
		server.streamInterval = defaultStreamInterval
	}

	if server.finalizeEvery < 1 {
		server.finalizeEvery = defaultFinalizeEvery
	}

	for asset, amount := range config.InitialBalances {
		server.balances[asset] = amount
	}

	for i, sc := range config.Series {
		volatility := sc.Volatility
		if volatility == 0 {
			volatility = 0.002
		}

		gen := mocks.NewDataGenerator(seed + int64(i))
		bars := gen.Generate(mocks.GeneratorConfig{
			Instrument:     sc.Symbol,
			StartTime:      sc.Start,
			Interval:       sc.Interval.Duration(),
			Count:          sc.Count,
			InitialPrice:   sc.InitialPrice,
			Volatility:     volatility,
			Trend:          sc.Trend,
			VolumeBase:     5000,
			VolumeVariance: 0.3,
		})

		last := bars[len(bars)-1]
		server.series[sc.Symbol] = bars
		server.intervals[sc.Symbol] = sc.Interval
		server.marks[sc.Symbol] = last.Close

		// The stream picks up where the history ends.
		server.streamSeries[sc.Symbol] = gen.Generate(mocks.GeneratorConfig{
			Instrument:     sc.Symbol,
			StartTime:      last.Time.Add(sc.Interval.Duration()),
			Interval:       sc.Interval,
			Count:          streamSeriesLength,
			InitialPrice:   last.Close,
			Volatility:     volatility,
			Trend:          sc.Trend,
			VolumeBase:     5000,
			VolumeVariance: 0.3,
		})
	}

	return server
}

// Start listens on the given address, ":0" for a random port.
func (s *MockFuturesServer) Start(address string) error {
	if address == "" {
		address = ":0"
	}

	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}

	s.listener = listener

	router := mux.NewRouter()

	// The broker adapter speaks fapi, the market data client api/v3.
	// Klines share one shape.
	router.HandleFunc("/fapi/v1/klines", s.handleKlines).Methods("GET")
	router.HandleFunc("/api/v3/klines", s.handleKlines).Methods("GET")

	// Balance and position risk moved from v2 to v3 across client
	// versions; both routes serve the same payload.
	router.HandleFunc("/fapi/v2/balance", s.handleBalance).Methods("GET")
	router.HandleFunc("/fapi/v3/balance", s.handleBalance).Methods("GET")
	router.HandleFunc("/fapi/v2/positionRisk", s.handlePositionRisk).Methods("GET")
	router.HandleFunc("/fapi/v3/positionRisk", s.handlePositionRisk).Methods("GET")

	router.HandleFunc("/fapi/v1/order", s.handleCreateOrder).Methods("POST")

	router.HandleFunc("/ws/{stream}", s.handleWebSocket)

	s.httpServer = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != http.ErrServerClosed {
			fmt.Printf("mock venue error: %v\n", err)
		}
	}()

	return nil
}

// Stop shuts the venue down and drops every websocket connection.
func (s *MockFuturesServer) Stop() error {
	close(s.stopStreaming)

	s.wsMu.Lock()
	for conn := range s.wsConnections {
		conn.Close()
	}

	s.wsConnections = make(map[*websocket.Conn]bool)
	s.wsMu.Unlock()

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		return s.httpServer.Shutdown(ctx)
	}

	return nil
}

// Address returns the listening address.
func (s *MockFuturesServer) Address() string {
	if s.listener == nil {
		return ""
	}

	return s.listener.Addr().String()
}

// BaseURL returns the REST base URL.
func (s *MockFuturesServer) BaseURL() string {
	return "http://" + s.Address()
}

// WebSocketURL returns the websocket base URL.
func (s *MockFuturesServer) WebSocketURL() string {
	return "ws://" + s.Address()
}

// Series returns a copy of the canonical candle history for a symbol.
func (s *MockFuturesServer) Series(symbol string) []types.Candle {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.Candle, len(s.series[symbol]))
	copy(out, s.series[symbol])

	return out
}

// MarkPrice returns the current mark price for a symbol.
func (s *MockFuturesServer) MarkPrice(symbol string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.marks[symbol]
}

// SetMarkPrice overrides the mark price fills and position risk use.
func (s *MockFuturesServer) SetMarkPrice(symbol string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.marks[symbol] = price
}

// WalletBalance returns the wallet balance for an asset.
func (s *MockFuturesServer) WalletBalance(asset string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.balances[asset]
}

// SetWalletBalance sets the wallet balance for an asset.
func (s *MockFuturesServer) SetWalletBalance(asset string, amount float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.balances[asset] = amount
}

// SetPosition seeds an open position, signed quantity convention
// (negative is short).
func (s *MockFuturesServer) SetPosition(symbol string, amount, entryPrice float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if amount == 0 {
		delete(s.positions, symbol)

		return
	}

	s.positions[symbol] = &position{Symbol: symbol, Amount: amount, EntryPrice: entryPrice}
}

// Position returns the signed open quantity and entry price for a
// symbol, zeros when flat.
func (s *MockFuturesServer) Position(symbol string) (amount, entryPrice float64) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if pos, ok := s.positions[symbol]; ok {
		return pos.Amount, pos.EntryPrice
	}

	return 0, 0
}

// Orders returns every fill the venue executed, oldest first.
func (s *MockFuturesServer) Orders() []OrderRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]OrderRecord, len(s.orders))
	copy(out, s.orders)

	return out
}

// RejectNextOrder makes the next order fail with the given Binance API
// error code, then clears itself.
func (s *MockFuturesServer) RejectNextOrder(code int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextReject = &rejection{Code: code, Message: message}
}

// apiError writes a Binance-style error body the client parses into a
// common.APIError.
func apiError(w http.ResponseWriter, status, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"code": code, "msg": message})
}

func fmt8(v float64) string {
	return strconv.FormatFloat(v, 'f', 8, 64)
}

// quoteAsset extracts the settlement asset from a symbol name.
func quoteAsset(symbol string) string {
	for _, quote := range []string{"USDT", "USDC", "BUSD", "BTC", "ETH"} {
		if strings.HasSuffix(symbol, quote) {
			return quote
		}
	}

	return "USDT"
}

// handleKlines serves the canonical series filtered by the requested
// window. Both open and close bounds are on the kline open time, which
// is what paged fetches advance on.
func (s *MockFuturesServer) handleKlines(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	interval := r.URL.Query().Get("interval")

	if symbol == "" || interval == "" {
		apiError(w, http.StatusBadRequest, -1102, "Mandatory parameter was not sent.")

		return
	}

	s.mu.RLock()
	bars, ok := s.series[symbol]
	period := s.intervals[symbol].Duration()
	s.mu.RUnlock()

	if !ok {
		apiError(w, http.StatusBadRequest, -1121, "Invalid symbol.")

		return
	}

	start := int64(math.MinInt64)
	end := int64(math.MaxInt64)

	if raw := r.URL.Query().Get("startTime"); raw != "" {
		start, _ = strconv.ParseInt(raw, 10, 64)
	}

	if raw := r.URL.Query().Get("endTime"); raw != "" {
		end, _ = strconv.ParseInt(raw, 10, 64)
	}

	limit := defaultKlineLimit

	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = min(parsed, maxKlineLimit)
		}
	}

	klines := make([][]any, 0, limit)

	for _, bar := range bars {
		openMillis := bar.Time.UnixMilli()
		if openMillis < start || openMillis > end {
			continue
		}

		klines = append(klines, []any{
			openMillis,
			fmt8(bar.Open),
			fmt8(bar.High),
			fmt8(bar.Low),
			fmt8(bar.Close),
			fmt8(bar.Volume),
			bar.Time.Add(period).UnixMilli() - 1,
			fmt8(bar.Close * bar.Volume),
			100,
			fmt8(bar.Volume / 2),
			fmt8(bar.Close * bar.Volume / 2),
			"0",
		})

		if len(klines) >= limit {
			break
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(klines)
}

// handleBalance serves the futures wallet balances.
func (s *MockFuturesServer) handleBalance(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	balances := make([]map[string]any, 0, len(s.balances))
	for asset, amount := range s.balances {
		balances = append(balances, map[string]any{
			"accountAlias":       "mockSgsR",
			"asset":              asset,
			"balance":            fmt8(amount),
			"crossWalletBalance": fmt8(amount),
			"crossUnPnl":         "0.00000000",
			"availableBalance":   fmt8(amount),
			"maxWithdrawAmount":  fmt8(amount),
			"marginAvailable":    true,
			"updateTime":         time.Now().UnixMilli(),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(balances)
}

// handlePositionRisk serves open positions, optionally filtered by
// symbol. Flat symbols are omitted.
func (s *MockFuturesServer) handlePositionRisk(w http.ResponseWriter, r *http.Request) {
	filter := r.URL.Query().Get("symbol")

	s.mu.RLock()
	defer s.mu.RUnlock()

	risks := make([]map[string]any, 0, len(s.positions))

	for symbol, pos := range s.positions {
		if filter != "" && filter != symbol {
			continue
		}

		mark := s.marks[symbol]
		unrealized := (mark - pos.EntryPrice) * pos.Amount

		risks = append(risks, map[string]any{
			"symbol":           symbol,
			"positionAmt":      fmt8(pos.Amount),
			"entryPrice":       fmt8(pos.EntryPrice),
			"markPrice":        fmt8(mark),
			"unRealizedProfit": fmt8(unrealized),
			"liquidationPrice": "0",
			"leverage":         "10",
			"maxNotionalValue": "1000000",
			"marginType":       "cross",
			"isolatedMargin":   "0.00000000",
			"isAutoAddMargin":  "false",
			"positionSide":     "BOTH",
			"notional":         fmt8(math.Abs(pos.Amount) * mark),
			"isolatedWallet":   "0",
			"updateTime":       time.Now().UnixMilli(),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(risks)
}

// handleCreateOrder fills market orders at the mark price and books the
// position and wallet changes. Only market orders are supported.
func (s *MockFuturesServer) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		apiError(w, http.StatusBadRequest, -1102, "Failed to parse parameters.")

		return
	}

	symbol := r.FormValue("symbol")
	side := r.FormValue("side")
	orderType := r.FormValue("type")
	quantityRaw := r.FormValue("quantity")
	reduceOnly := r.FormValue("reduceOnly") == "true"

	if symbol == "" || side == "" || orderType == "" || quantityRaw == "" {
		apiError(w, http.StatusBadRequest, -1102, "Mandatory parameter was not sent.")

		return
	}

	if orderType != "MARKET" {
		apiError(w, http.StatusBadRequest, -1116, "Invalid orderType.")

		return
	}

	quantity, err := strconv.ParseFloat(quantityRaw, 64)
	if err != nil || quantity <= 0 {
		apiError(w, http.StatusBadRequest, -1013, "Invalid quantity.")

		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.nextReject != nil {
		reject := s.nextReject
		s.nextReject = nil

		apiError(w, http.StatusBadRequest, reject.Code, reject.Message)

		return
	}

	mark, ok := s.marks[symbol]
	if !ok {
		apiError(w, http.StatusBadRequest, -1121, "Invalid symbol.")

		return
	}

	signed := quantity
	if side == "SELL" {
		signed = -quantity
	}

	pos := s.positions[symbol]

	if reduceOnly {
		if pos == nil || pos.Amount*signed >= 0 {
			apiError(w, http.StatusBadRequest, -2022, "ReduceOnly Order is rejected.")

			return
		}

		// Binance truncates reduce-only orders to the open amount.
		if quantity > math.Abs(pos.Amount) {
			quantity = math.Abs(pos.Amount)
			signed = math.Copysign(quantity, signed)
		}
	}

	realized := 0.0

	switch {
	case pos == nil || pos.Amount == 0:
		s.positions[symbol] = &position{Symbol: symbol, Amount: signed, EntryPrice: mark}
	case pos.Amount*signed > 0:
		// Increasing the position averages the entry.
		total := math.Abs(pos.Amount) + quantity
		pos.EntryPrice = (math.Abs(pos.Amount)*pos.EntryPrice + quantity*mark) / total
		pos.Amount += signed
	default:
		closed := math.Min(quantity, math.Abs(pos.Amount))
		if pos.Amount > 0 {
			realized = (mark - pos.EntryPrice) * closed
		} else {
			realized = (pos.EntryPrice - mark) * closed
		}

		pos.Amount += signed

		switch {
		case pos.Amount == 0:
			delete(s.positions, symbol)
		case pos.Amount*signed > 0:
			// Crossed through flat; the remainder is a fresh
			// position at the fill price.
			pos.EntryPrice = mark
		}
	}

	commission := quantity * mark * takerFeeRate
	s.balances[quoteAsset(symbol)] += realized - commission

	s.orderSeq++
	order := OrderRecord{
		ID:         s.orderSeq,
		Symbol:     symbol,
		Side:       side,
		Quantity:   quantity,
		FillPrice:  mark,
		ReduceOnly: reduceOnly,
		Time:       time.Now().UTC(),
	}
	s.orders = append(s.orders, order)

	response := map[string]any{
		"orderId":       order.ID,
		"symbol":        symbol,
		"status":        "FILLED",
		"clientOrderId": uuid.New().String(),
		"price":         "0",
		"avgPrice":      fmt8(mark),
		"origQty":       fmt8(quantity),
		"executedQty":   fmt8(quantity),
		"cumQty":        fmt8(quantity),
		"cumQuote":      fmt8(quantity * mark),
		"timeInForce":   "GTC",
		"type":          "MARKET",
		"origType":      "MARKET",
		"reduceOnly":    reduceOnly,
		"closePosition": false,
		"side":          side,
		"positionSide":  "BOTH",
		"stopPrice":     "0",
		"workingType":   "CONTRACT_PRICE",
		"priceProtect":  false,
		"updateTime":    time.Now().UnixMilli(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

type wsKlinePayload struct {
	StartTime int64  `json:"t"`
	EndTime   int64  `json:"T"`
	Symbol    string `json:"s"`
	Interval  string `json:"i"`
	Open      string `json:"o"`
	Close     string `json:"c"`
	High      string `json:"h"`
	Low       string `json:"l"`
	Volume    string `json:"v"`
	IsFinal   bool   `json:"x"`
}

type wsKlineEvent struct {
	Event  string         `json:"e"`
	Time   int64          `json:"E"`
	Symbol string         `json:"s"`
	Kline  wsKlinePayload `json:"k"`
}

// handleWebSocket serves streams named <symbol>@kline_<interval>.
func (s *MockFuturesServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	stream := mux.Vars(r)["stream"]

	parts := strings.Split(stream, "@kline_")
	if len(parts) != 2 {
		http.Error(w, "invalid stream name", http.StatusBadRequest)

		return
	}

	symbol := strings.ToUpper(parts[0])
	interval := parts[1]

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s.wsMu.Lock()
	s.wsConnections[conn] = true
	s.wsMu.Unlock()

	defer func() {
		s.wsMu.Lock()
		delete(s.wsConnections, conn)
		s.wsMu.Unlock()
		conn.Close()
	}()

	s.streamKlines(conn, symbol, interval)
}

// streamKlines walks the continuation series, emitting in-progress
// updates and finalizing every bar after finalizeEvery ticks. Finals
// move the venue mark price.
func (s *MockFuturesServer) streamKlines(conn *websocket.Conn, symbol, interval string) {
	s.mu.RLock()
	bars := s.streamSeries[symbol]
	s.mu.RUnlock()

	if len(bars) == 0 {
		return
	}

	parsed, err := types.ParseInterval(interval)
	if err != nil {
		return
	}

	period := parsed.Duration()

	ticker := time.NewTicker(s.streamInterval)
	defer ticker.Stop()

	for _, bar := range bars {
		for tick := 1; tick <= s.finalizeEvery; tick++ {
			select {
			case <-s.stopStreaming:
				return
			case <-ticker.C:
			}

			final := tick == s.finalizeEvery

			// Pre-final updates walk the close from the open
			// toward the bar close.
			price := bar.Open + (bar.Close-bar.Open)*float64(tick)/float64(s.finalizeEvery)
			high := math.Max(bar.Open, price)
			low := math.Min(bar.Open, price)

			if final {
				price = bar.Close
				high = bar.High
				low = bar.Low
			}

			event := wsKlineEvent{
				Event:  "kline",
				Time:   time.Now().UnixMilli(),
				Symbol: symbol,
				Kline: wsKlinePayload{
					StartTime: bar.Time.UnixMilli(),
					EndTime:   bar.Time.Add(period).UnixMilli() - 1,
					Symbol:    symbol,
					Interval:  interval,
					Open:      fmt8(bar.Open),
					Close:     fmt8(price),
					High:      fmt8(high),
					Low:       fmt8(low),
					Volume:    fmt8(bar.Volume * float64(tick) / float64(s.finalizeEvery)),
					IsFinal:   final,
				},
			}

			if err := conn.WriteJSON(event); err != nil {
				return
			}

			if final {
				s.SetMarkPrice(symbol, bar.Close)
			}
		}
	}
}
