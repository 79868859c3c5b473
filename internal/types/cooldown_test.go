package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type CooldownTestSuite struct {
	suite.Suite
}

func TestCooldownSuite(t *testing.T) {
	suite.Run(t, new(CooldownTestSuite))
}

func (suite *CooldownTestSuite) TestDurationEscalation() {
	suite.Equal(time.Duration(0), CooldownDurationFor(0))
	suite.Equal(30*time.Minute, CooldownDurationFor(1))
	suite.Equal(2*time.Hour, CooldownDurationFor(2))
	suite.Equal(24*time.Hour, CooldownDurationFor(3))
	suite.Equal(24*time.Hour, CooldownDurationFor(7))
}

func (suite *CooldownTestSuite) TestActive() {
	now := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	cooldown := Cooldown{
		Instrument:        "GOLD",
		Until:             now.Add(30 * time.Minute),
		ConsecutiveLosses: 1,
		Reason:            "1 consecutive loss",
	}

	suite.True(cooldown.Active(now))
	suite.True(cooldown.Active(now.Add(29 * time.Minute)))
	suite.False(cooldown.Active(now.Add(30 * time.Minute)))
	suite.False(cooldown.Active(now.Add(time.Hour)))
}

func (suite *CooldownTestSuite) TestRemaining() {
	now := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	cooldown := Cooldown{Until: now.Add(2 * time.Hour)}

	suite.Equal(2*time.Hour, cooldown.Remaining(now))
	suite.Equal(time.Hour, cooldown.Remaining(now.Add(time.Hour)))
	suite.Equal(time.Duration(0), cooldown.Remaining(now.Add(3*time.Hour)))
}
