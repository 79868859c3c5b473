package sizing

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/meridian-lab/meridian-trading/pkg/errors"
)

type SizingTestSuite struct {
	suite.Suite

	sizer *Sizer
}

func TestSizingSuite(t *testing.T) {
	suite.Run(t, new(SizingTestSuite))
}

func (suite *SizingTestSuite) SetupTest() {
	suite.sizer = NewSizer(Config{})
}

func (suite *SizingTestSuite) TestReferenceScenario() {
	// balance 100000, margin/lot 1000: fraction cap 20000, fixed cap
	// 10000 wins, 10 lots, 10000 committed.
	result, err := suite.sizer.Size(100000, 1000)
	suite.Require().NoError(err)
	suite.Equal(10, result.Lots)
	suite.Equal(10000.0, result.MarginRequired)
	suite.Equal(10000.0, result.Cap)
}

func (suite *SizingTestSuite) TestBalanceFractionCapWins() {
	// fraction cap 20% of 40000 = 8000 < fixed cap 10000
	result, err := suite.sizer.Size(40000, 1000)
	suite.Require().NoError(err)
	suite.Equal(8, result.Lots)
	suite.Equal(8000.0, result.MarginRequired)
	suite.Equal(8000.0, result.Cap)
}

func (suite *SizingTestSuite) TestFloorNeverRoundsUp() {
	result, err := suite.sizer.Size(100000, 1300)
	suite.Require().NoError(err)
	suite.Equal(7, result.Lots)
	suite.Equal(9100.0, result.MarginRequired)
}

func (suite *SizingTestSuite) TestForcedSingleLotWithHeadroom() {
	// cap = 20% of 8000 = 1600 < 1 lot at 1700, but balance covers
	// 1.1 * 1700 = 1870.
	result, err := suite.sizer.Size(8000, 1700)
	suite.Require().NoError(err)
	suite.Equal(1, result.Lots)
	suite.Equal(1700.0, result.MarginRequired)
}

func (suite *SizingTestSuite) TestForcedLotRejectedWithoutHeadroom() {
	// cap = 20% of 1800 = 360; forced lot needs 1.1*1700 = 1870 > 1800.
	_, err := suite.sizer.Size(1800, 1700)
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeSizingRejected))
}

func (suite *SizingTestSuite) TestForcedLotExactHeadroomBoundary() {
	result, err := suite.sizer.Size(1.1*1000, 1000)
	suite.Require().NoError(err)
	suite.Equal(1, result.Lots)
}

func (suite *SizingTestSuite) TestZeroBalanceRejected() {
	_, err := suite.sizer.Size(0, 1000)
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeSizingRejected))
}

func (suite *SizingTestSuite) TestInvalidMarginPerLot() {
	_, err := suite.sizer.Size(100000, 0)
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeMarginInvalid))
}

func (suite *SizingTestSuite) TestCustomConfig() {
	sizer := NewSizer(Config{FixedCap: 5000, BalanceFraction: 0.5})

	result, err := sizer.Size(8000, 1000)
	suite.Require().NoError(err)
	// min(5000, 4000) = 4000
	suite.Equal(4, result.Lots)
	suite.Equal(4000.0, result.Cap)
}

func (suite *SizingTestSuite) TestMarginNeverExceedsAvailable() {
	balances := []float64{1200, 5000, 15000, 100000, 1000000}
	margins := []float64{100, 999, 1000, 3333}

	for _, balance := range balances {
		for _, marginPerLot := range margins {
			result, err := suite.sizer.Size(balance, marginPerLot)
			if err != nil {
				continue
			}

			suite.GreaterOrEqual(result.Lots, 1)
			suite.LessOrEqual(result.MarginRequired, balance,
				"balance %f margin/lot %f", balance, marginPerLot)
		}
	}
}
