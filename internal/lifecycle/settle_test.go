package lifecycle

import (
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/stretchr/testify/suite"

	"github.com/meridian-lab/meridian-trading/internal/types"
)

type SettleTestSuite struct {
	suite.Suite

	ruleset *Ruleset
}

func TestSettleSuite(t *testing.T) {
	suite.Run(t, new(SettleTestSuite))
}

func (suite *SettleTestSuite) SetupTest() {
	suite.ruleset = NewRuleset(Config{})
}

func (suite *SettleTestSuite) TestDefaults() {
	suite.Equal(48*time.Hour, suite.ruleset.MaxHolding())

	custom := NewRuleset(Config{CommissionRate: 0.001, MaxHolding: 24 * time.Hour})
	suite.Equal(24*time.Hour, custom.MaxHolding())
}

func (suite *SettleTestSuite) TestSettleLongWin() {
	entry := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	exitAt := entry.Add(6 * time.Hour)

	trade := &types.Trade{
		ID:         "trade-1",
		Instrument: "GOLD",
		Side:       types.SideLong,
		EntryPrice: 8500,
		EntryTime:  entry,
		Lots:       10,
		LotSize:    1,
		MarginUsed: 10000,
		Status:     types.TradeStatusOpen,
	}

	restitution := suite.ruleset.Settle(trade, 8600, types.ExitReasonTakeProfit, exitAt)

	// gross = 100*10 = 1000; commission = (85000+86000)*0.0005 = 85.5
	suite.InDelta(914.5, trade.RealizedPnL, 1e-9)
	suite.InDelta(9.145, trade.RealizedPnLPct, 1e-9)
	suite.InDelta(10914.5, restitution, 1e-9)

	suite.Equal(types.TradeStatusClosed, trade.Status)
	suite.Equal(8600.0, trade.ExitPrice.Unwrap())
	suite.Equal(exitAt, trade.ExitTime.Unwrap())
	suite.Equal(types.ExitReasonTakeProfit, trade.ExitReason.Unwrap())
	suite.Equal(8600.0, trade.LastPrice)
}

func (suite *SettleTestSuite) TestSettleShortWin() {
	trade := &types.Trade{
		Side:       types.SideShort,
		EntryPrice: 100,
		EntryTime:  time.Now(),
		Lots:       2,
		LotSize:    5,
		MarginUsed: 1000,
		Status:     types.TradeStatusOpen,
	}

	restitution := suite.ruleset.Settle(trade, 90, types.ExitReasonTakeProfit, time.Now())

	// gross = 10*2*5 = 100; commission = (1000+900)*0.0005 = 0.95
	suite.InDelta(99.05, trade.RealizedPnL, 1e-9)
	suite.InDelta(9.905, trade.RealizedPnLPct, 1e-9)
	suite.InDelta(1099.05, restitution, 1e-9)
}

func (suite *SettleTestSuite) TestSettleLongLoss() {
	trade := &types.Trade{
		Side:       types.SideLong,
		EntryPrice: 100,
		EntryTime:  time.Now(),
		Lots:       1,
		LotSize:    1,
		MarginUsed: 50,
		Status:     types.TradeStatusOpen,
	}

	restitution := suite.ruleset.Settle(trade, 95, types.ExitReasonStopLoss, time.Now())

	// gross = -5; commission = (100+95)*0.0005 = 0.0975
	suite.InDelta(-5.0975, trade.RealizedPnL, 1e-9)
	suite.InDelta(-10.195, trade.RealizedPnLPct, 1e-9)
	suite.InDelta(44.9025, restitution, 1e-9)
}

func (suite *SettleTestSuite) TestSettleZeroMargin() {
	trade := &types.Trade{
		Side:       types.SideLong,
		EntryPrice: 100,
		EntryTime:  time.Now(),
		Lots:       1,
		LotSize:    1,
		MarginUsed: 0,
		Status:     types.TradeStatusOpen,
	}

	restitution := suite.ruleset.Settle(trade, 101, types.ExitReasonExternal, time.Now())

	suite.Equal(0.0, trade.RealizedPnLPct)
	suite.InDelta(trade.RealizedPnL, restitution, 1e-9)
}

func (suite *SettleTestSuite) TestSettledTradeKeepsLevels() {
	trade := &types.Trade{
		Side:       types.SideLong,
		EntryPrice: 100,
		EntryTime:  time.Now(),
		Lots:       1,
		LotSize:    1,
		MarginUsed: 50,
		StopLoss:   optional.Some(95.0),
		TakeProfit: optional.Some(110.0),
		Status:     types.TradeStatusOpen,
	}

	suite.ruleset.Settle(trade, 110, types.ExitReasonTakeProfit, time.Now())

	suite.True(trade.StopLoss.IsSome())
	suite.True(trade.TakeProfit.IsSome())
}
