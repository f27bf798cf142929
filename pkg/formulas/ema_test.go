package formulas

import (
	"math"
	"testing"
)

func TestMovingAverage(t *testing.T) {
	tests := []struct {
		name      string
		closes    []float64
		length    int
		wantOK    bool
		want      float64
		tolerance float64
	}{
		{name: "insufficient history", closes: []float64{1, 2}, length: 5, wantOK: false},
		{name: "zero length", closes: []float64{1, 2, 3}, length: 0, wantOK: false},
		{name: "exact window", closes: []float64{10, 20, 30}, length: 3, wantOK: true, want: 20, tolerance: 0.01},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := MovingAverage(tt.closes, tt.length)
			if ok != tt.wantOK {
				t.Fatalf("MovingAverage() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && math.Abs(got-tt.want) > tt.tolerance {
				t.Errorf("MovingAverage() = %v, want %v (±%v)", got, tt.want, tt.tolerance)
			}
		})
	}
}

func TestEMA_FallsBackToMeanWhenHistoryShorterThanWindow(t *testing.T) {
	closes := []float64{100, 102, 101}
	got, ok := EMA(closes, 10)
	if !ok {
		t.Fatal("EMA() ok = false, want true")
	}
	want := Mean(closes)
	if math.Abs(got-want) > 0.001 {
		t.Errorf("EMA() = %v, want fallback mean %v", got, want)
	}
}

func TestEMA_EmptyHistoryIsNotOK(t *testing.T) {
	_, ok := EMA(nil, 10)
	if ok {
		t.Error("EMA() ok = true, want false for empty history")
	}
}

func TestEMA_LongHistoryUsesTalib(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	got, ok := EMA(closes, 10)
	if !ok {
		t.Fatal("EMA() ok = false, want true")
	}
	if got <= 0 {
		t.Errorf("EMA() = %v, want a positive trending value", got)
	}
}
