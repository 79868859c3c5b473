package mockserver

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"

	"github.com/meridian-lab/meridian-trading/internal/types"
)

type MockServerTestSuite struct {
	suite.Suite
	server *MockFuturesServer
	start  time.Time
}

func TestMockServerSuite(t *testing.T) {
	suite.Run(t, new(MockServerTestSuite))
}

func (suite *MockServerTestSuite) SetupTest() {
	suite.start = time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	suite.server = NewMockFuturesServer(ServerConfig{
		InitialBalances: map[string]float64{"USDT": 10_000},
		Series: []SeriesConfig{
			{
				Symbol:       "BTCUSDT",
				Start:        suite.start,
				Interval:     types.Interval15m,
				Count:        1203,
				InitialPrice: 50_000,
			},
		},
		Seed:           12345,
		StreamInterval: 10 * time.Millisecond,
		FinalizeEvery:  3,
	})

	suite.Require().NoError(suite.server.Start(":0"))
}

func (suite *MockServerTestSuite) TearDownTest() {
	if suite.server != nil {
		suite.server.Stop()
	}
}

// get fetches a path and decodes the JSON body into out.
func (suite *MockServerTestSuite) get(path string, query url.Values, out any) int {
	target := suite.server.BaseURL() + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	resp, err := http.Get(target)
	suite.Require().NoError(err)

	defer resp.Body.Close()

	if out != nil {
		suite.Require().NoError(json.NewDecoder(resp.Body).Decode(out))
	}

	return resp.StatusCode
}

// postOrder submits an order form and decodes the response.
func (suite *MockServerTestSuite) postOrder(form url.Values, out any) int {
	resp, err := http.Post(
		suite.server.BaseURL()+"/fapi/v1/order",
		"application/x-www-form-urlencoded",
		strings.NewReader(form.Encode()),
	)
	suite.Require().NoError(err)

	defer resp.Body.Close()

	if out != nil {
		suite.Require().NoError(json.NewDecoder(resp.Body).Decode(out))
	}

	return resp.StatusCode
}

func marketOrder(side, quantity string, reduceOnly bool) url.Values {
	form := url.Values{}
	form.Set("symbol", "BTCUSDT")
	form.Set("side", side)
	form.Set("type", "MARKET")
	form.Set("quantity", quantity)

	if reduceOnly {
		form.Set("reduceOnly", "true")
	}

	return form
}

func (suite *MockServerTestSuite) TestServerLifecycle() {
	suite.NotEmpty(suite.server.Address())
	suite.Contains(suite.server.BaseURL(), "http://")
	suite.Contains(suite.server.WebSocketURL(), "ws://")
}

func (suite *MockServerTestSuite) TestKlinesWindowAndLimit() {
	query := url.Values{}
	query.Set("symbol", "BTCUSDT")
	query.Set("interval", "15m")
	query.Set("limit", "500")

	var klines [][]any
	status := suite.get("/fapi/v1/klines", query, &klines)

	suite.Equal(http.StatusOK, status)
	suite.Require().Len(klines, 500)
	suite.Require().Len(klines[0], 12)

	suite.InDelta(float64(suite.start.UnixMilli()), klines[0][0].(float64), 0.5)
}

func (suite *MockServerTestSuite) TestKlinesPaging() {
	fetch := func(startMillis int64) [][]any {
		query := url.Values{}
		query.Set("symbol", "BTCUSDT")
		query.Set("interval", "15m")
		query.Set("startTime", strconv.FormatInt(startMillis, 10))
		query.Set("limit", "500")

		var klines [][]any
		suite.Equal(http.StatusOK, suite.get("/fapi/v1/klines", query, &klines))

		return klines
	}

	first := fetch(suite.start.UnixMilli())
	suite.Require().Len(first, 500)

	// Advance past the last close time, the way paged fetches do.
	second := fetch(int64(first[499][6].(float64)) + 1)
	suite.Require().Len(second, 500)
	suite.Greater(second[0][0].(float64), first[499][0].(float64))

	third := fetch(int64(second[499][6].(float64)) + 1)
	suite.Len(third, 203)
}

func (suite *MockServerTestSuite) TestKlinesSpotAliasServesSameSeries() {
	query := url.Values{}
	query.Set("symbol", "BTCUSDT")
	query.Set("interval", "15m")
	query.Set("limit", "1")

	var futuresKlines, spotKlines [][]any
	suite.get("/fapi/v1/klines", query, &futuresKlines)
	suite.get("/api/v3/klines", query, &spotKlines)

	suite.Require().Len(futuresKlines, 1)
	suite.Require().Len(spotKlines, 1)
	suite.Equal(futuresKlines[0], spotKlines[0])
}

func (suite *MockServerTestSuite) TestKlinesMissingParams() {
	status := suite.get("/fapi/v1/klines", url.Values{}, nil)
	suite.Equal(http.StatusBadRequest, status)
}

func (suite *MockServerTestSuite) TestKlinesUnknownSymbol() {
	query := url.Values{}
	query.Set("symbol", "DOGEUSDT")
	query.Set("interval", "15m")

	var body map[string]any
	status := suite.get("/fapi/v1/klines", query, &body)

	suite.Equal(http.StatusBadRequest, status)
	suite.InDelta(-1121, body["code"].(float64), 0.5)
}

func (suite *MockServerTestSuite) TestBalanceEndpoint() {
	var balances []map[string]any
	status := suite.get("/fapi/v2/balance", url.Values{}, &balances)

	suite.Equal(http.StatusOK, status)
	suite.Require().Len(balances, 1)
	suite.Equal("USDT", balances[0]["asset"])
	suite.Equal("10000.00000000", balances[0]["balance"])
	suite.Equal("10000.00000000", balances[0]["availableBalance"])
}

func (suite *MockServerTestSuite) TestPositionRiskEmptyWhenFlat() {
	var risks []map[string]any
	status := suite.get("/fapi/v2/positionRisk", url.Values{}, &risks)

	suite.Equal(http.StatusOK, status)
	suite.Empty(risks)
}

func (suite *MockServerTestSuite) TestPositionRiskReportsSeededPosition() {
	suite.server.SetMarkPrice("BTCUSDT", 51_000)
	suite.server.SetPosition("BTCUSDT", -0.06, 52_000)

	var risks []map[string]any
	suite.get("/fapi/v2/positionRisk", url.Values{}, &risks)

	suite.Require().Len(risks, 1)
	suite.Equal("BTCUSDT", risks[0]["symbol"])
	suite.Equal("-0.06000000", risks[0]["positionAmt"])
	suite.Equal("52000.00000000", risks[0]["entryPrice"])
	suite.Equal("51000.00000000", risks[0]["markPrice"])

	// Short 0.06 from 52k marked at 51k is 60 up.
	suite.Equal("60.00000000", risks[0]["unRealizedProfit"])

	query := url.Values{}
	query.Set("symbol", "ETHUSDT")

	var filtered []map[string]any
	suite.get("/fapi/v2/positionRisk", query, &filtered)
	suite.Empty(filtered)
}

func (suite *MockServerTestSuite) TestMarketBuyOpensPosition() {
	suite.server.SetMarkPrice("BTCUSDT", 50_000)

	var order map[string]any
	status := suite.postOrder(marketOrder("BUY", "0.02", false), &order)

	suite.Equal(http.StatusOK, status)
	suite.Equal("FILLED", order["status"])
	suite.Equal("50000.00000000", order["avgPrice"])
	suite.Equal("0.02000000", order["executedQty"])

	amount, entry := suite.server.Position("BTCUSDT")
	suite.InDelta(0.02, amount, 1e-9)
	suite.InDelta(50_000, entry, 1e-9)

	// Taker fee on 1000 notional.
	suite.InDelta(10_000-0.4, suite.server.WalletBalance("USDT"), 1e-9)

	suite.Require().Len(suite.server.Orders(), 1)
	suite.Equal("BUY", suite.server.Orders()[0].Side)
}

func (suite *MockServerTestSuite) TestAveragingMovesEntry() {
	suite.server.SetMarkPrice("BTCUSDT", 50_000)
	suite.postOrder(marketOrder("BUY", "0.02", false), nil)

	suite.server.SetMarkPrice("BTCUSDT", 52_000)
	suite.postOrder(marketOrder("BUY", "0.02", false), nil)

	amount, entry := suite.server.Position("BTCUSDT")
	suite.InDelta(0.04, amount, 1e-9)
	suite.InDelta(51_000, entry, 1e-9)
}

func (suite *MockServerTestSuite) TestReduceOnlyClosesAndRealizes() {
	suite.server.SetMarkPrice("BTCUSDT", 50_000)
	suite.postOrder(marketOrder("BUY", "0.02", false), nil)

	suite.server.SetMarkPrice("BTCUSDT", 53_000)

	var order map[string]any
	status := suite.postOrder(marketOrder("SELL", "0.02", true), &order)

	suite.Equal(http.StatusOK, status)
	suite.Equal("FILLED", order["status"])

	amount, _ := suite.server.Position("BTCUSDT")
	suite.Zero(amount)

	// 60 realized, minus 0.4 entry fee and 0.424 exit fee.
	suite.InDelta(10_000+60-0.4-0.424, suite.server.WalletBalance("USDT"), 1e-9)
}

func (suite *MockServerTestSuite) TestReduceOnlyTruncatesToOpenAmount() {
	suite.server.SetMarkPrice("BTCUSDT", 50_000)
	suite.postOrder(marketOrder("BUY", "0.02", false), nil)

	var order map[string]any
	suite.postOrder(marketOrder("SELL", "0.10", true), &order)

	suite.Equal("0.02000000", order["executedQty"])

	amount, _ := suite.server.Position("BTCUSDT")
	suite.Zero(amount)
}

func (suite *MockServerTestSuite) TestReduceOnlyRejectedWhenFlat() {
	var body map[string]any
	status := suite.postOrder(marketOrder("SELL", "0.02", true), &body)

	suite.Equal(http.StatusBadRequest, status)
	suite.InDelta(-2022, body["code"].(float64), 0.5)
}

func (suite *MockServerTestSuite) TestFlipCrossesThroughFlat() {
	suite.server.SetMarkPrice("BTCUSDT", 50_000)
	suite.postOrder(marketOrder("BUY", "0.02", false), nil)

	suite.server.SetMarkPrice("BTCUSDT", 51_000)
	suite.postOrder(marketOrder("SELL", "0.05", false), nil)

	amount, entry := suite.server.Position("BTCUSDT")
	suite.InDelta(-0.03, amount, 1e-9)
	suite.InDelta(51_000, entry, 1e-9)
}

func (suite *MockServerTestSuite) TestScriptedRejection() {
	suite.server.SetMarkPrice("BTCUSDT", 50_000)
	suite.server.RejectNextOrder(-2019, "Margin is insufficient.")

	var body map[string]any
	status := suite.postOrder(marketOrder("BUY", "0.02", false), &body)

	suite.Equal(http.StatusBadRequest, status)
	suite.InDelta(-2019, body["code"].(float64), 0.5)
	suite.Equal("Margin is insufficient.", body["msg"])

	// The rejection is one-shot.
	status = suite.postOrder(marketOrder("BUY", "0.02", false), nil)
	suite.Equal(http.StatusOK, status)
}

func (suite *MockServerTestSuite) TestOrderUnknownSymbol() {
	form := marketOrder("BUY", "0.02", false)
	form.Set("symbol", "DOGEUSDT")

	var body map[string]any
	status := suite.postOrder(form, &body)

	suite.Equal(http.StatusBadRequest, status)
	suite.InDelta(-1121, body["code"].(float64), 0.5)
}

func (suite *MockServerTestSuite) TestLimitOrdersUnsupported() {
	form := marketOrder("BUY", "0.02", false)
	form.Set("type", "LIMIT")
	form.Set("price", "49000")

	status := suite.postOrder(form, nil)
	suite.Equal(http.StatusBadRequest, status)
}

func (suite *MockServerTestSuite) TestWebSocketKlineFinals() {
	wsURL := suite.server.WebSocketURL() + "/ws/btcusdt@kline_15m"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	suite.Require().NoError(err)

	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	finals := 0
	updates := 0

	for finals < 2 {
		_, message, err := conn.ReadMessage()
		suite.Require().NoError(err)

		var event wsKlineEvent
		suite.Require().NoError(json.Unmarshal(message, &event))

		suite.Equal("kline", event.Event)
		suite.Equal("BTCUSDT", event.Symbol)
		suite.Equal("15m", event.Kline.Interval)

		if event.Kline.IsFinal {
			finals++
		} else {
			updates++
		}
	}

	// Two ticks of in-progress updates per closed bar.
	suite.GreaterOrEqual(updates, 2)
}
