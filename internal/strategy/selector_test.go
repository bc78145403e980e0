package strategy

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/eddiefleurent/stamford_scalper/internal/broker"
	"github.com/eddiefleurent/stamford_scalper/internal/models"
)

func TestSelectContractStrikeAndRight(t *testing.T) {
	now := time.Date(2026, 4, 22, 13, 30, 0, 0, time.UTC)
	cfg := SelectorConfig{ExpiryDaysAhead: 0, OTMThreshold: 1.0, Venue: "SMART"}

	tests := []struct {
		name       string
		direction  models.Direction
		refPrice   float64
		wantStrike float64
		wantRight  models.OptionRight
	}{
		{"up rounds strike up", models.DirectionUp, 2.5, 3, models.RightCall},
		{"down rounds strike down", models.DirectionDown, 2.5, 2, models.RightPut},
		{"up at whole number stays", models.DirectionUp, 100, 100, models.RightCall},
		{"down at whole number stays", models.DirectionDown, 100, 100, models.RightPut},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			contract, err := SelectContract("SPY", tt.direction, tt.refPrice, now, cfg)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if contract.Strike != tt.wantStrike {
				t.Errorf("strike = %v, want %v", contract.Strike, tt.wantStrike)
			}
			if contract.Right != tt.wantRight {
				t.Errorf("right = %v, want %v", contract.Right, tt.wantRight)
			}
			if contract.Symbol != "SPY" || contract.Venue != "SMART" {
				t.Errorf("unexpected identity fields: %+v", contract)
			}
		})
	}
}

func TestSelectContractOTMFallback(t *testing.T) {
	now := time.Date(2026, 4, 22, 13, 30, 0, 0, time.UTC)
	cfg := SelectorConfig{ExpiryDaysAhead: 0, OTMThreshold: 0.5}

	// floor(100.9) = 100 is 0.9 away, beyond the 0.5 threshold; the fallback
	// is one whole unit below: 99.
	contract, err := SelectContract("SPY", models.DirectionDown, 100.9, now, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if contract.Strike != 99 {
		t.Errorf("fallback strike = %v, want 99", contract.Strike)
	}
	if contract.Right != models.RightPut {
		t.Errorf("right = %v, want put", contract.Right)
	}

	// For the up direction the fallback lands on floor+1, which coincides
	// with ceil for any non-integer reference.
	contract, err = SelectContract("SPY", models.DirectionUp, 100.1, now, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if contract.Strike != 101 {
		t.Errorf("fallback strike = %v, want 101", contract.Strike)
	}
}

func TestSelectContractExpiry(t *testing.T) {
	now := time.Date(2026, 4, 22, 13, 30, 45, 0, time.UTC)

	contract, err := SelectContract("SPY", models.DirectionUp, 400.5, now,
		SelectorConfig{ExpiryDaysAhead: 2, OTMThreshold: 1.0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2026, 4, 24, 0, 0, 0, 0, time.UTC)
	if !contract.Expiry.Equal(want) {
		t.Errorf("expiry = %v, want %v", contract.Expiry, want)
	}
}

func TestSelectContractStalePrice(t *testing.T) {
	now := time.Date(2026, 4, 22, 13, 30, 0, 0, time.UTC)
	cfg := SelectorConfig{OTMThreshold: 1.0}

	for _, price := range []float64{0, -5, math.NaN(), math.Inf(1)} {
		_, err := SelectContract("SPY", models.DirectionUp, price, now, cfg)
		if !errors.Is(err, broker.ErrStalePrice) {
			t.Errorf("price %v: error = %v, want ErrStalePrice", price, err)
		}
	}
}

func TestSelectContractInvalidDirection(t *testing.T) {
	now := time.Date(2026, 4, 22, 13, 30, 0, 0, time.UTC)
	_, err := SelectContract("SPY", models.Direction("sideways"), 100, now,
		SelectorConfig{OTMThreshold: 1.0})
	if err == nil {
		t.Fatal("expected error for invalid direction")
	}
}
