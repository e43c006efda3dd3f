package money

import (
	"math"
	"testing"
)

func TestRound2(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{86.0, 86.0},
		{1.005, 1.01},
		{2.675, 2.68},
		{-1.005, -1.01},
		{99.994999, 99.99},
		{0, 0},
	}

	for _, tt := range tests {
		if got := Round2(tt.in); got != tt.want {
			t.Errorf("Round2(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFormat(t *testing.T) {
	if got := Format(11000); got != "11000.00" {
		t.Errorf("Format(11000) = %s, want 11000.00", got)
	}
	if got := Format(0.1 + 0.2); got != "0.30" {
		t.Errorf("Format(0.1+0.2) = %s, want 0.30", got)
	}
}

func TestPercent(t *testing.T) {
	if got := Percent(1, 3); got != 33.33 {
		t.Errorf("Percent(1,3) = %v, want 33.33", got)
	}
	if got := Percent(5, 0); got != 0 {
		t.Errorf("Percent(5,0) = %v, want 0", got)
	}
}

func TestNonFinitePassThrough(t *testing.T) {
	inf := math.Inf(1)
	if got := Round2(inf); !math.IsInf(got, 1) {
		t.Errorf("Round2(+Inf) = %v, want +Inf", got)
	}
	if got := Round2(math.Inf(-1)); !math.IsInf(got, -1) {
		t.Errorf("Round2(-Inf) = %v, want -Inf", got)
	}
	if got := Round2(math.NaN()); !math.IsNaN(got) {
		t.Errorf("Round2(NaN) = %v, want NaN", got)
	}
	if got := Percent(inf, 2); !math.IsInf(got, 1) {
		t.Errorf("Percent(+Inf, 2) = %v, want +Inf", got)
	}
	if got := Format(inf); got != "+Inf" {
		t.Errorf("Format(+Inf) = %s, want +Inf", got)
	}
}
