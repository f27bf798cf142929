package formulas

import (
	"math"
	"testing"
)

func TestMean(t *testing.T) {
	tests := []struct {
		name      string
		data      []float64
		want      float64
		tolerance float64
	}{
		{name: "empty", data: []float64{}, want: 0, tolerance: 0},
		{name: "single value", data: []float64{5}, want: 5, tolerance: 0},
		{name: "mixed values", data: []float64{1, 2, 3, 4}, want: 2.5, tolerance: 0.0001},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Mean(tt.data); math.Abs(got-tt.want) > tt.tolerance {
				t.Errorf("Mean() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStdDev(t *testing.T) {
	tests := []struct {
		name      string
		data      []float64
		want      float64
		tolerance float64
	}{
		{name: "fewer than two points", data: []float64{5}, want: 0, tolerance: 0},
		{name: "constant series", data: []float64{2, 2, 2, 2}, want: 0, tolerance: 0.0001},
		{name: "spread series", data: []float64{1, 2, 3, 4, 5}, want: 1.5811, tolerance: 0.001},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StdDev(tt.data); math.Abs(got-tt.want) > tt.tolerance {
				t.Errorf("StdDev() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestReturns(t *testing.T) {
	tests := []struct {
		name   string
		prices []float64
		want   []float64
	}{
		{name: "empty", prices: []float64{}, want: nil},
		{name: "single price", prices: []float64{100}, want: nil},
		{name: "two prices up", prices: []float64{100, 110}, want: []float64{0.10}},
		{name: "zero price guards division", prices: []float64{0, 10}, want: []float64{0}},
		{name: "three prices", prices: []float64{100, 110, 99}, want: []float64{0.10, -0.10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Returns(tt.prices)
			if len(got) != len(tt.want) {
				t.Fatalf("Returns() length = %d, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if math.Abs(got[i]-tt.want[i]) > 0.0001 {
					t.Errorf("Returns()[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestPercentile(t *testing.T) {
	population := []float64{10, 20, 30, 40, 50}

	if got := Percentile(30, population); math.Abs(got-0.5) > 0.05 {
		t.Errorf("Percentile(median) = %v, want ~0.5", got)
	}
	if got := Percentile(5, population); got > 0.2 {
		t.Errorf("Percentile(below range) = %v, want near 0", got)
	}
	if got := Percentile(1, nil); got != 0.5 {
		t.Errorf("Percentile(empty population) = %v, want 0.5", got)
	}
}

func TestMaxDrawdown(t *testing.T) {
	dd, peak := MaxDrawdown([]float64{100, 120, 90, 110})
	if math.Abs(dd-0.25) > 0.001 {
		t.Errorf("MaxDrawdown() dd = %v, want 0.25", dd)
	}
	if peak != 120 {
		t.Errorf("MaxDrawdown() peak = %v, want 120", peak)
	}

	if dd, peak := MaxDrawdown(nil); dd != 0 || peak != 0 {
		t.Errorf("MaxDrawdown(empty) = (%v, %v), want (0, 0)", dd, peak)
	}
}

func TestIsFlat(t *testing.T) {
	if !IsFlat([]float64{100, 100, 100.0000001}, 5) {
		t.Error("IsFlat() = false, want true for near-constant series")
	}
	if IsFlat([]float64{100, 101, 99, 103, 97, 105}, 5) {
		t.Error("IsFlat() = true, want false for a varied series")
	}
}
