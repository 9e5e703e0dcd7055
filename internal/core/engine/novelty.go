package engine

import (
	"slices"

	"github.com/comitanigiacomo/kanso-resilience-engine/internal/core/domain"
)

// noveltyEveryReviews completed reviews trigger one novelty injection.
const noveltyEveryReviews = 2

// ApplyNovelty swaps at most one habit per tier for a pre-seeded variant of
// the same tier. The swap is a function of cycle alone and is skipped when
// cycle equals lastApplied, so re-running it within a cycle is a no-op.
func ApplyNovelty(habits domain.HabitSet, profile domain.IdentityProfile, cycle, lastApplied int) (domain.HabitSet, bool) {
	out := *habits.Clone()
	if cycle == lastApplied || cycle < 0 {
		return out, false
	}

	applied := false
	for _, tier := range domain.EnergyTiers {
		current := out.Tier(tier)
		variants := noveltyVariants(profile.Type, tier, profile.Identity)
		if len(current) == 0 || len(variants) == 0 {
			continue
		}
		variant := variants[cycle%len(variants)]
		if slices.Contains(current, variant) {
			continue
		}
		next := append([]string(nil), current...)
		next[cycle%len(next)] = variant
		out.SetTier(tier, next)
		applied = true
	}
	return out, applied
}
