package reconcile

import (
	"github.com/moznion/go-optional"
	"go.uber.org/mock/gomock"

	"github.com/meridian-lab/meridian-trading/internal/broker"
	"github.com/meridian-lab/meridian-trading/internal/lifecycle"
	"github.com/meridian-lab/meridian-trading/internal/logger"
	"github.com/meridian-lab/meridian-trading/internal/types"
	"github.com/meridian-lab/meridian-trading/mocks"
	"github.com/meridian-lab/meridian-trading/pkg/errors"
)

// mockReconciler builds a reconciler on the generated broker and oracle
// mocks, sharing the suite's ledger and journal.
func (suite *ReconcilerTestSuite) mockReconciler(client *mocks.MockClient, oracle *mocks.MockOracle) *Reconciler {
	return NewReconciler(
		client,
		suite.ledger,
		lifecycle.NewRuleset(lifecycle.Config{}),
		oracle,
		suite.journal,
		map[string]float64{"ETHUSDT": 0.05},
		logger.NewNopLogger(),
	)
}

func (suite *ReconcilerTestSuite) TestAdoptBooksOracleQuotedMargin() {
	ctrl := gomock.NewController(suite.T())

	client := mocks.NewMockClient(ctrl)
	client.EXPECT().
		GetOpenPositions(gomock.Any(), optional.None[string]()).
		Return([]broker.Position{
			{Instrument: "ETHUSDT", Side: types.SideLong, Lots: 4, EntryPrice: 2500, MarkPrice: 2525},
		}, nil)

	oracle := mocks.NewMockOracle(ctrl)
	oracle.EXPECT().
		MarginPerLot(gomock.Any(), "ETHUSDT", 2500.0).
		Return(37.5, nil)

	result, err := suite.mockReconciler(client, oracle).Reconcile(suite.ctx)
	suite.Require().NoError(err)
	suite.Require().Len(result.Adopted, 1)

	trade := result.Adopted[0]
	suite.Equal(0.05, trade.LotSize)
	suite.Equal(2525.0, trade.LastPrice)
	suite.InDelta(150.0, trade.MarginUsed, 1e-9)
	suite.Len(suite.journal.trades, 1)

	// Adopted margin is informational; the balance stays untouched.
	suite.Equal(10000.0, suite.ledger.Balance())
}

func (suite *ReconcilerTestSuite) TestAdoptSkippedWhenOracleUnavailable() {
	ctrl := gomock.NewController(suite.T())

	client := mocks.NewMockClient(ctrl)
	client.EXPECT().
		GetOpenPositions(gomock.Any(), optional.None[string]()).
		Return([]broker.Position{
			{Instrument: "ETHUSDT", Side: types.SideShort, Lots: 2, EntryPrice: 2500, MarkPrice: 2480},
		}, nil)

	oracle := mocks.NewMockOracle(ctrl)
	oracle.EXPECT().
		MarginPerLot(gomock.Any(), "ETHUSDT", 2500.0).
		Return(0.0, errors.New(errors.ErrCodeBrokerTimeout, "margin endpoint timed out"))

	result, err := suite.mockReconciler(client, oracle).Reconcile(suite.ctx)
	suite.Require().NoError(err)
	suite.Empty(result.Adopted)

	_, open := suite.ledger.OpenTradeFor("ETHUSDT")
	suite.False(open)
	suite.Empty(suite.journal.trades)
}
