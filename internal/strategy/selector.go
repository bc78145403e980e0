package strategy

import (
	"fmt"
	"math"
	"time"

	"github.com/eddiefleurent/stamford_scalper/internal/broker"
	"github.com/eddiefleurent/stamford_scalper/internal/models"
)

// SelectorConfig holds the contract selection parameters.
type SelectorConfig struct {
	ExpiryDaysAhead int     // calendar days from the trading date to expiry
	OTMThreshold    float64 // max strike distance before the ±1 OTM fallback
	Venue           string  // routing tag carried on the contract
}

// SelectContract chooses the option contract expressing a trigger direction.
//
// The primary strike is ceil(refPrice) for up and floor(refPrice) for down.
// If that lands further than OTMThreshold from the reference price, the
// strike falls back to exactly one unit out-of-the-money in the trade
// direction: floor(refPrice)+1 for up, floor(refPrice)-1 for down.
//
// Expiry is raw calendar arithmetic from now's date; holiday adjustment is
// the broker's concern. A missing or non-finite refPrice returns a
// broker.ErrStalePrice error — the fallback-to-last-close policy lives in
// the engine, not here.
func SelectContract(symbol string, direction models.Direction, refPrice float64,
	now time.Time, cfg SelectorConfig) (models.ContractSpec, error) {

	if math.IsNaN(refPrice) || math.IsInf(refPrice, 0) || refPrice <= 0 {
		return models.ContractSpec{}, fmt.Errorf("selecting contract for %s: reference price %v: %w",
			symbol, refPrice, broker.ErrStalePrice)
	}
	if !direction.Valid() {
		return models.ContractSpec{}, fmt.Errorf("selecting contract for %s: invalid direction %q", symbol, direction)
	}

	var strike float64
	var right models.OptionRight
	if direction == models.DirectionUp {
		strike = math.Ceil(refPrice)
		right = models.RightCall
	} else {
		strike = math.Floor(refPrice)
		right = models.RightPut
	}

	if math.Abs(strike-refPrice) > cfg.OTMThreshold {
		if direction == models.DirectionUp {
			strike = math.Floor(refPrice) + 1
		} else {
			strike = math.Floor(refPrice) - 1
		}
	}

	expiry := now.AddDate(0, 0, cfg.ExpiryDaysAhead)
	expiry = time.Date(expiry.Year(), expiry.Month(), expiry.Day(), 0, 0, 0, 0, time.UTC)

	return models.ContractSpec{
		Symbol: symbol,
		Expiry: expiry,
		Strike: strike,
		Right:  right,
		Venue:  cfg.Venue,
	}, nil
}
