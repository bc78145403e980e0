// Package strategy implements the wick-break trading rules: trigger
// detection over intraday bars, position sizing, and option contract
// selection. Everything here is pure; broker access lives in the engine.
package strategy

import (
	"time"

	"github.com/eddiefleurent/stamford_scalper/internal/models"
)

// Detect scans a bar series for a rolling wick-break trigger.
//
// Bars earlier than first-bar-time + ignoreWindow are discarded. The
// reference candle is always the immediately preceding bar (the rolling
// variant: the reference advances every step, it is not a persisted pattern
// root). The entry condition fires when a candle's body direction matches
// the reference candle's direction and its close pierces the reference
// high (up) or low (down).
//
// Returns at most one trigger per call. Deterministic, no side effects.
func Detect(series *models.BarSeries, ignoreWindow time.Duration) (models.Trigger, bool) {
	first, ok := series.First()
	if !ok {
		return models.Trigger{}, false
	}

	bars := series.TrimBefore(first.Time.Add(ignoreWindow))
	if len(bars) < 2 {
		return models.Trigger{}, false
	}

	ref := bars[0]
	for _, candle := range bars[1:] {
		dir := candle.Direction()
		if dir == ref.Direction() {
			if dir == models.DirectionUp && candle.Close > ref.High {
				return models.Trigger{Time: candle.Time, Direction: dir}, true
			}
			if dir == models.DirectionDown && candle.Close < ref.Low {
				return models.Trigger{Time: candle.Time, Direction: dir}, true
			}
		}
		// The reference resets every step whether or not the entry fired.
		ref = candle
	}

	return models.Trigger{}, false
}
