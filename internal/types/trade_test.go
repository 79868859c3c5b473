package types

import (
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/stretchr/testify/suite"
)

type TradeTestSuite struct {
	suite.Suite
}

func TestTradeSuite(t *testing.T) {
	suite.Run(t, new(TradeTestSuite))
}

func (suite *TradeTestSuite) TestSideDirection() {
	suite.Equal(1.0, SideLong.Direction())
	suite.Equal(-1.0, SideShort.Direction())
}

func (suite *TradeTestSuite) TestSideOpposite() {
	suite.Equal(SideShort, SideLong.Opposite())
	suite.Equal(SideLong, SideShort.Opposite())
}

func (suite *TradeTestSuite) TestSideBias() {
	suite.Equal(BiasLong, SideLong.Bias())
	suite.Equal(BiasShort, SideShort.Bias())
	suite.Equal(BiasNone, Side("").Bias())
}

func (suite *TradeTestSuite) TestSideFromAction() {
	side, ok := SideFromAction(SignalActionLong)
	suite.True(ok)
	suite.Equal(SideLong, side)

	side, ok = SideFromAction(SignalActionShort)
	suite.True(ok)
	suite.Equal(SideShort, side)

	_, ok = SideFromAction(SignalActionHold)
	suite.False(ok)
}

func (suite *TradeTestSuite) TestIsOpen() {
	trade := Trade{Status: TradeStatusOpen}
	suite.True(trade.IsOpen())

	trade.Status = TradeStatusClosed
	suite.False(trade.IsOpen())
}

func (suite *TradeTestSuite) TestHoldingDuration() {
	entry := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	trade := Trade{EntryTime: entry, Status: TradeStatusOpen}

	now := entry.Add(3 * time.Hour)
	suite.Equal(3*time.Hour, trade.HoldingDuration(now))

	trade.ExitTime = optional.Some(entry.Add(90 * time.Minute))
	suite.Equal(90*time.Minute, trade.HoldingDuration(now))
}

func (suite *TradeTestSuite) TestEntryNotional() {
	trade := Trade{EntryPrice: 8500.0, Lots: 10, LotSize: 5.0}
	suite.Equal(425000.0, trade.EntryNotional())
}

func (suite *TradeTestSuite) TestRecordExcursionLong() {
	trade := Trade{Side: SideLong, EntryPrice: 100.0}

	trade.RecordExcursion(104.0, 99.0)
	suite.InDelta(0.04, trade.MaxFavorableExcursion, 1e-9)
	suite.InDelta(-0.01, trade.MaxAdverseExcursion, 1e-9)

	// A smaller move must not shrink either excursion.
	trade.RecordExcursion(102.0, 99.5)
	suite.InDelta(0.04, trade.MaxFavorableExcursion, 1e-9)
	suite.InDelta(-0.01, trade.MaxAdverseExcursion, 1e-9)

	trade.RecordExcursion(110.0, 97.0)
	suite.InDelta(0.10, trade.MaxFavorableExcursion, 1e-9)
	suite.InDelta(-0.03, trade.MaxAdverseExcursion, 1e-9)
}

func (suite *TradeTestSuite) TestRecordExcursionShort() {
	trade := Trade{Side: SideShort, EntryPrice: 100.0}

	trade.RecordExcursion(103.0, 96.0)
	suite.InDelta(0.04, trade.MaxFavorableExcursion, 1e-9)
	suite.InDelta(-0.03, trade.MaxAdverseExcursion, 1e-9)
}

func (suite *TradeTestSuite) TestRecordExcursionZeroEntryPrice() {
	trade := Trade{Side: SideLong, EntryPrice: 0}

	trade.RecordExcursion(104.0, 99.0)
	suite.Equal(0.0, trade.MaxFavorableExcursion)
	suite.Equal(0.0, trade.MaxAdverseExcursion)
}

func (suite *TradeTestSuite) TestTradeFilterMatches() {
	trade := Trade{Instrument: "GOLD", Status: TradeStatusClosed}

	suite.True(TradeFilter{}.Matches(&trade))
	suite.True(TradeFilter{Instrument: "GOLD"}.Matches(&trade))
	suite.True(TradeFilter{Status: TradeStatusClosed}.Matches(&trade))
	suite.False(TradeFilter{Instrument: "COPPER"}.Matches(&trade))
	suite.False(TradeFilter{Status: TradeStatusOpen}.Matches(&trade))
}
