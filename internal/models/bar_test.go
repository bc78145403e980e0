package models

import (
	"testing"
	"time"
)

func TestBarDirection(t *testing.T) {
	tests := []struct {
		name string
		bar  Bar
		want Direction
	}{
		{"close above open", Bar{Open: 100, Close: 101}, DirectionUp},
		{"close below open", Bar{Open: 100, Close: 99}, DirectionDown},
		{"flat bar classifies down", Bar{Open: 100, Close: 100}, DirectionDown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.bar.Direction(); got != tt.want {
				t.Errorf("Direction() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDirectionOpposite(t *testing.T) {
	if DirectionUp.Opposite() != DirectionDown {
		t.Error("expected up.Opposite() == down")
	}
	if DirectionDown.Opposite() != DirectionUp {
		t.Error("expected down.Opposite() == up")
	}
}

func TestNewBarSeriesRejectsOutOfOrder(t *testing.T) {
	base := time.Date(2026, 4, 22, 7, 0, 0, 0, time.UTC)
	bars := []Bar{
		{Time: base.Add(5 * time.Minute)},
		{Time: base},
	}
	if _, err := NewBarSeries("SPY", bars); err == nil {
		t.Fatal("expected error for out-of-order timestamps")
	}
}

func TestNewBarSeriesAllowsDuplicateTimestamps(t *testing.T) {
	base := time.Date(2026, 4, 22, 7, 0, 0, 0, time.UTC)
	bars := []Bar{{Time: base}, {Time: base}}
	if _, err := NewBarSeries("SPY", bars); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestBarSeriesTrimBefore(t *testing.T) {
	base := time.Date(2026, 4, 22, 7, 0, 0, 0, time.UTC)
	var bars []Bar
	for i := 0; i < 4; i++ {
		bars = append(bars, Bar{Time: base.Add(time.Duration(i) * 5 * time.Minute)})
	}
	series, err := NewBarSeries("SPY", bars)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	trimmed := series.TrimBefore(base.Add(5 * time.Minute))
	if len(trimmed) != 3 {
		t.Fatalf("expected 3 bars after trim, got %d", len(trimmed))
	}
	if !trimmed[0].Time.Equal(base.Add(5 * time.Minute)) {
		t.Errorf("first trimmed bar at %v, want %v", trimmed[0].Time, base.Add(5*time.Minute))
	}
	if series.Len() != 4 {
		t.Errorf("TrimBefore must not modify the receiver, Len() = %d", series.Len())
	}

	if got := series.TrimBefore(base.Add(time.Hour)); got != nil {
		t.Errorf("expected nil when cutoff is past all bars, got %d bars", len(got))
	}
}

func TestBarSeriesFirstLastEmpty(t *testing.T) {
	series := &BarSeries{Symbol: "SPY"}
	if _, ok := series.First(); ok {
		t.Error("First() on empty series should report false")
	}
	if _, ok := series.Last(); ok {
		t.Error("Last() on empty series should report false")
	}

	var nilSeries *BarSeries
	if nilSeries.Len() != 0 {
		t.Error("nil series Len() should be 0")
	}
}
