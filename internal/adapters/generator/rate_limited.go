package generator

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/comitanigiacomo/kanso-resilience-engine/internal/core/domain"
)

type rateLimitedGenerator struct {
	base    domain.ContentGenerator
	limiter *rate.Limiter
}

// WrapWithRateLimit caps generator calls at perMinute. Calls over the limit
// fail fast with ErrGeneratorUnavailable so callers take the template path.
// A non-positive perMinute returns gen unchanged.
func WrapWithRateLimit(gen domain.ContentGenerator, perMinute float64, burst int) domain.ContentGenerator {
	if perMinute <= 0 {
		return gen
	}
	if burst < 1 {
		burst = 1
	}
	return &rateLimitedGenerator{
		base:    gen,
		limiter: rate.NewLimiter(rate.Limit(perMinute/60), burst),
	}
}

func (g *rateLimitedGenerator) reserve(operation string) error {
	if g.limiter.Allow() {
		return nil
	}
	generatorRequestsTotal.WithLabelValues(operation, "rate_limited").Inc()
	return fmt.Errorf("%w: rate limit exceeded", domain.ErrGeneratorUnavailable)
}

func (g *rateLimitedGenerator) GenerateHabitSet(ctx context.Context, identity string, t domain.IdentityType, level int) (*domain.HabitSet, error) {
	if err := g.reserve("habit_set"); err != nil {
		return nil, err
	}
	return g.base.GenerateHabitSet(ctx, identity, t, level)
}

func (g *rateLimitedGenerator) GenerateDailyAdaptation(ctx context.Context, identity string, mode domain.AdaptationMode, current domain.HabitSet) (*domain.HabitSet, error) {
	if err := g.reserve("daily_adaptation"); err != nil {
		return nil, err
	}
	return g.base.GenerateDailyAdaptation(ctx, identity, mode, current)
}

func (g *rateLimitedGenerator) GenerateWeeklyReviewContent(ctx context.Context, req domain.WeeklyContentRequest) (*domain.WeeklyContent, error) {
	if err := g.reserve("weekly_review"); err != nil {
		return nil, err
	}
	return g.base.GenerateWeeklyReviewContent(ctx, req)
}
