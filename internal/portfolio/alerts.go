package portfolio

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trogers1052/crypto-portfolio/internal/models"
)

// CheckThresholds compares a unit close price with the position's alert levels and
// returns the crossing, or nil. Positions whose levels are zero (nothing held, or a
// zero average price) never trigger.
func CheckThresholds(pos *models.Position, close decimal.Decimal, at time.Time) *models.AlertHistory {
	if pos == nil || pos.LowPriceLevel.IsZero() || pos.HighPriceLevel.IsZero() {
		return nil
	}

	var ruleType string
	var threshold decimal.Decimal
	switch {
	case close.LessThan(pos.LowPriceLevel):
		ruleType, threshold = models.RuleTypeBelowLow, pos.LowPriceLevel
	case close.GreaterThan(pos.HighPriceLevel):
		ruleType, threshold = models.RuleTypeAboveHigh, pos.HighPriceLevel
	default:
		return nil
	}

	return &models.AlertHistory{
		Owner:          pos.Owner,
		Symbol:         pos.Symbol,
		RuleType:       ruleType,
		TriggeredValue: close,
		Threshold:      threshold,
		Message: fmt.Sprintf("%s closed at %s, crossing %s level %s",
			pos.Symbol, close.StringFixed(2), ruleType, threshold.StringFixed(2)),
		TriggeredAt: at,
	}
}
