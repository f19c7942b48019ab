package occupancy

import (
	"math"
	"testing"
	"time"
)

func TestDecayFactor(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cfg := DecayConfig{MinDelay: 10, Window: 600}

	tests := []struct {
		name    string
		cfg     DecayConfig
		elapsed time.Duration
		want    float64
	}{
		{
			name:    "holds at full weight during grace period",
			cfg:     cfg,
			elapsed: 5 * time.Second,
			want:    1.0,
		},
		{
			name:    "still full weight at exact grace boundary",
			cfg:     cfg,
			elapsed: 10 * time.Second,
			want:    1.0,
		},
		{
			name:    "half weight at window midpoint",
			cfg:     cfg,
			elapsed: 10*time.Second + 300*time.Second,
			want:    0.5,
		},
		{
			name:    "exactly zero at window end",
			cfg:     cfg,
			elapsed: 10*time.Second + 600*time.Second,
			want:    0.0,
		},
		{
			name:    "zero past window end",
			cfg:     cfg,
			elapsed: time.Hour,
			want:    0.0,
		},
		{
			name:    "disabled decay drops contribution immediately",
			cfg:     DecayConfig{Disabled: true, MinDelay: 10, Window: 600},
			elapsed: 1 * time.Second,
			want:    0.0,
		},
		{
			name:    "zero window drops to zero after grace",
			cfg:     DecayConfig{MinDelay: 10, Window: 0},
			elapsed: 11 * time.Second,
			want:    0.0,
		},
		{
			name:    "future transition treated as fresh",
			cfg:     cfg,
			elapsed: -30 * time.Second,
			want:    1.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DecayFactor(tt.cfg, base, base.Add(tt.elapsed))
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("DecayFactor() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDecayFactorNeverActivated(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	got := DecayFactor(DecayConfig{MinDelay: 10, Window: 600}, time.Time{}, now)
	if got != 0 {
		t.Errorf("DecayFactor() with zero transition time = %v, want 0", got)
	}
}

func TestDecayFactorMonotonic(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cfg := DecayConfig{MinDelay: 10, Window: 600}

	prev := 1.0
	for elapsed := 0; elapsed <= 620; elapsed += 5 {
		got := DecayFactor(cfg, base, base.Add(time.Duration(elapsed)*time.Second))
		if got > prev+1e-9 {
			t.Fatalf("decay factor rose from %v to %v at %ds", prev, got, elapsed)
		}
		if got < 0 || got > 1 {
			t.Fatalf("decay factor %v out of range at %ds", got, elapsed)
		}
		prev = got
	}
}
