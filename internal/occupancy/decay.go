package occupancy

import (
	"math"
	"time"
)

// DecayFactor returns the evidence weight multiplier for a sensor that
// stopped being active at inactiveSince, evaluated at now.
//
// The factor holds at 1.0 through the grace period (MinDelay), then
// eases from 1.0 to exactly 0.0 over Window seconds along a half
// cosine. With decay disabled the sensor stops contributing the moment
// it goes inactive.
func DecayFactor(cfg DecayConfig, inactiveSince, now time.Time) float64 {
	if !cfg.Enabled() {
		return 0
	}
	if inactiveSince.IsZero() {
		return 0
	}

	elapsed := now.Sub(inactiveSince).Seconds()
	if elapsed < 0 {
		// Clock skew between sources, treat as just transitioned
		elapsed = 0
	}

	if elapsed <= cfg.MinDelay {
		return 1.0
	}
	if cfg.Window <= 0 {
		return 0
	}

	progress := (elapsed - cfg.MinDelay) / cfg.Window
	if progress >= 1 {
		return 0
	}

	return 0.5 * (1 + math.Cos(math.Pi*progress))
}
