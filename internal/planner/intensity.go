package planner

import (
	"fitsched/internal/config"
	"fitsched/internal/health"
)

// intensityFor is the pure decision table mapping recovery tier and
// discipline to an intensity tier. A 48-hour training load above the
// configured ceiling downshifts the result one tier.
func intensityFor(tier health.RecoveryTier, d config.Discipline, load48h, ceiling float64) config.IntensityTier {
	out := baseIntensity(tier, d)
	if ceiling > 0 && load48h > ceiling {
		out = out.Downshift()
	}
	return out
}

func baseIntensity(tier health.RecoveryTier, d config.Discipline) config.IntensityTier {
	switch tier {
	case health.TierPoor:
		return config.TierReduced
	case health.TierFair:
		switch d {
		case config.DisciplineRun, config.DisciplineBike:
			return config.TierReduced
		default:
			return config.TierNormal
		}
	default:
		// good, excellent, and the neutral default for unknown
		return config.TierNormal
	}
}
