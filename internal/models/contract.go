package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// OptionRight is the contract right: call or put.
type OptionRight string

const (
	// RightCall represents a call option contract.
	RightCall OptionRight = "call"
	// RightPut represents a put option contract.
	RightPut OptionRight = "put"
)

// Valid returns true if the OptionRight is one of the defined constants.
func (r OptionRight) Valid() bool {
	return r == RightCall || r == RightPut
}

// ContractSpec identifies a single option contract. Immutable; passed by value.
type ContractSpec struct {
	Symbol string      `json:"symbol"`
	Expiry time.Time   `json:"expiry"`
	Strike float64     `json:"strike"`
	Right  OptionRight `json:"right"`
	Venue  string      `json:"venue"`
}

// OCCSymbol renders the contract in OCC format:
// TICKER + YYMMDD + C/P + strike*1000 zero-padded to 8 digits.
// Example: AAPL250422C00195000.
func (c ContractSpec) OCCSymbol() string {
	right := "C"
	if c.Right == RightPut {
		right = "P"
	}
	return fmt.Sprintf("%s%s%s%08d",
		strings.ToUpper(c.Symbol),
		c.Expiry.Format("060102"),
		right,
		int64(c.Strike*1000+0.5))
}

// String returns a human-readable description for logging.
func (c ContractSpec) String() string {
	return fmt.Sprintf("%s %s %.2f %s", c.Symbol, c.Expiry.Format("2006-01-02"), c.Strike, c.Right)
}

// ParseOCCSymbol extracts the underlying, expiry, strike and right from an
// OCC option symbol. Returns an error for malformed symbols.
func ParseOCCSymbol(symbol string) (ContractSpec, error) {
	// Minimum: 1-char ticker + 6-digit date + right + 8-digit strike.
	if len(symbol) < 16 {
		return ContractSpec{}, fmt.Errorf("option symbol too short: %q", symbol)
	}
	strikeStr := symbol[len(symbol)-8:]
	rightChar := symbol[len(symbol)-9]
	dateStr := symbol[len(symbol)-15 : len(symbol)-9]
	ticker := symbol[:len(symbol)-15]

	var right OptionRight
	switch rightChar {
	case 'C':
		right = RightCall
	case 'P':
		right = RightPut
	default:
		return ContractSpec{}, fmt.Errorf("option symbol %q: right must be C or P, got %q", symbol, rightChar)
	}

	expiry, err := time.Parse("060102", dateStr)
	if err != nil {
		return ContractSpec{}, fmt.Errorf("option symbol %q: bad expiry: %w", symbol, err)
	}

	strikeInt, err := strconv.ParseInt(strikeStr, 10, 64)
	if err != nil {
		return ContractSpec{}, fmt.Errorf("option symbol %q: bad strike: %w", symbol, err)
	}

	return ContractSpec{
		Symbol: ticker,
		Expiry: expiry,
		Strike: float64(strikeInt) / 1000.0,
		Right:  right,
	}, nil
}

// OrderSide is the side of an order intent.
type OrderSide string

const (
	// SideBuy opens or adds to a long position.
	SideBuy OrderSide = "buy"
	// SideSell closes or reduces a long position.
	SideSell OrderSide = "sell"
)

// OrderIntent is a unit of work sent to the broker. Limit == nil means a
// market order. OCAGroup links exit legs with one-cancels-all semantics;
// the broker enforces the cancellation, not this bot.
type OrderIntent struct {
	Side     OrderSide `json:"side"`
	Quantity int       `json:"quantity"`
	Limit    *float64  `json:"limit,omitempty"`
	OCAGroup string    `json:"oca_group,omitempty"`
}

// IsMarket returns true for market orders.
func (o OrderIntent) IsMarket() bool {
	return o.Limit == nil
}

// FillResult is what the bot reads back after a market order is accepted.
// AvgPrice anchors the bracket prices.
type FillResult struct {
	AvgPrice float64 `json:"avg_price"`
}

// Position is a broker-side open position observed during EOD cleanup.
// Quantity is signed: positive long, negative short. The bot only observes
// and neutralizes these; it never owns them.
type Position struct {
	Contract ContractSpec `json:"contract"`
	Quantity int          `json:"quantity"`
}
