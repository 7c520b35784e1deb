package portfolio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trogers1052/crypto-portfolio/internal/models"
)

func TestCheckThresholds(t *testing.T) {
	pos := &models.Position{
		Owner:          "alice",
		Symbol:         "BTC",
		AveragePrice:   dec("3.3"),
		LowPriceLevel:  dec("1.65"),
		HighPriceLevel: dec("6.6"),
	}

	t.Run("below low", func(t *testing.T) {
		alert := CheckThresholds(pos, dec("1.5"), testToday)
		require.NotNil(t, alert)
		assert.Equal(t, models.RuleTypeBelowLow, alert.RuleType)
		assert.True(t, dec("1.65").Equal(alert.Threshold))
		assert.True(t, dec("1.5").Equal(alert.TriggeredValue))
		assert.Equal(t, "alice", alert.Owner)
		assert.Equal(t, testToday, alert.TriggeredAt)
	})

	t.Run("above high", func(t *testing.T) {
		alert := CheckThresholds(pos, dec("7"), testToday)
		require.NotNil(t, alert)
		assert.Equal(t, models.RuleTypeAboveHigh, alert.RuleType)
	})

	t.Run("within band and on the boundary", func(t *testing.T) {
		assert.Nil(t, CheckThresholds(pos, dec("3"), testToday))
		assert.Nil(t, CheckThresholds(pos, dec("6.6"), testToday))
		assert.Nil(t, CheckThresholds(pos, dec("1.65"), testToday))
	})

	t.Run("zero levels never trigger", func(t *testing.T) {
		flat := &models.Position{Symbol: "BTC"}
		assert.Nil(t, CheckThresholds(flat, dec("0.01"), testToday))
		assert.Nil(t, CheckThresholds(nil, dec("1"), testToday))
	})
}
