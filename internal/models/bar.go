// Package models provides the core data structures for the wick-break bot:
// intraday bars, triggers, option contracts and the order lifecycle state machine.
package models

import (
	"fmt"
	"time"
)

// Direction represents the directional sense of a candle or trigger.
type Direction string

const (
	// DirectionUp indicates a bullish candle or trigger.
	DirectionUp Direction = "up"
	// DirectionDown indicates a bearish candle or trigger.
	DirectionDown Direction = "down"
)

// Opposite returns the opposing direction.
func (d Direction) Opposite() Direction {
	if d == DirectionUp {
		return DirectionDown
	}
	return DirectionUp
}

// Valid returns true if the Direction is one of the defined constants.
func (d Direction) Valid() bool {
	return d == DirectionUp || d == DirectionDown
}

// Bar is a single OHLC bar for a fixed interval. Immutable once produced
// by the market data source.
type Bar struct {
	Time  time.Time `json:"time"`
	Open  float64   `json:"open"`
	High  float64   `json:"high"`
	Low   float64   `json:"low"`
	Close float64   `json:"close"`
}

// Direction classifies the bar's body. A flat bar (close == open) classifies
// as down; the tie-break is deliberate so that identical input always yields
// identical triggers.
func (b Bar) Direction() Direction {
	if b.Close > b.Open {
		return DirectionUp
	}
	return DirectionDown
}

// BarSeries is an ordered sequence of bars for one symbol covering one
// trading session. Timestamps must be non-decreasing; gaps are tolerated
// but not detected.
type BarSeries struct {
	Symbol string `json:"symbol"`
	Bars   []Bar  `json:"bars"`
}

// NewBarSeries constructs a series and validates timestamp ordering.
func NewBarSeries(symbol string, bars []Bar) (*BarSeries, error) {
	for i := 1; i < len(bars); i++ {
		if bars[i].Time.Before(bars[i-1].Time) {
			return nil, fmt.Errorf("bar series for %s: timestamps out of order at index %d (%s before %s)",
				symbol, i, bars[i].Time.Format(time.RFC3339), bars[i-1].Time.Format(time.RFC3339))
		}
	}
	return &BarSeries{Symbol: symbol, Bars: bars}, nil
}

// Len returns the number of bars in the series.
func (s *BarSeries) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Bars)
}

// First returns the earliest bar, or false if the series is empty.
func (s *BarSeries) First() (Bar, bool) {
	if s.Len() == 0 {
		return Bar{}, false
	}
	return s.Bars[0], true
}

// Last returns the latest bar, or false if the series is empty.
func (s *BarSeries) Last() (Bar, bool) {
	if s.Len() == 0 {
		return Bar{}, false
	}
	return s.Bars[len(s.Bars)-1], true
}

// TrimBefore returns the bars at or after the cutoff instant. The receiver
// is not modified.
func (s *BarSeries) TrimBefore(cutoff time.Time) []Bar {
	if s == nil {
		return nil
	}
	for i, b := range s.Bars {
		if !b.Time.Before(cutoff) {
			return s.Bars[i:]
		}
	}
	return nil
}

// Trigger is a wick-break detection result: the bar at which the entry
// condition fired and the direction to trade. At most one per series per
// evaluation; consumed immediately, never persisted.
type Trigger struct {
	Time      time.Time `json:"time"`
	Direction Direction `json:"direction"`
}
