package services

import (
	"context"
	"fmt"
	"log"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/comitanigiacomo/kanso-resilience-engine/internal/core/domain"
	"github.com/comitanigiacomo/kanso-resilience-engine/internal/core/engine"
)

const defaultContentCacheSize = 256

var contentFallbackTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "kanso_content_fallback_total",
	Help: "Generated content replaced by the template path, by operation and reason",
}, []string{"operation", "reason"})

// ContentService fronts the content generator. Every method returns a
// structurally valid result: generated content for entitled users when the
// generator answers with something usable, the template otherwise.
type ContentService struct {
	gen   domain.ContentGenerator
	cache *lru.Cache[string, *domain.HabitSet]
}

// NewContentService accepts a nil generator, in which case only templates are
// served.
func NewContentService(gen domain.ContentGenerator, cacheSize int) (*ContentService, error) {
	if cacheSize <= 0 {
		cacheSize = defaultContentCacheSize
	}
	cache, err := lru.New[string, *domain.HabitSet](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create content cache: %w", err)
	}
	return &ContentService{gen: gen, cache: cache}, nil
}

func habitSetKey(identity string, t domain.IdentityType, level int) string {
	return fmt.Sprintf("%s|%d|%s", t.Effective(), level, strings.ToLower(strings.TrimSpace(identity)))
}

func (s *ContentService) fallback(op, reason string, err error) {
	contentFallbackTotal.WithLabelValues(op, reason).Inc()
	if err != nil {
		log.Printf("[CONTENT] %s falling back to template (%s): %v", op, reason, err)
	}
}

// HabitSet returns the habit set for an identity at a difficulty level.
func (s *ContentService) HabitSet(ctx context.Context, entitled bool, identity string, t domain.IdentityType, level int) *domain.HabitSet {
	level = engine.ClampLevel(t, level)
	template := engine.TemplateHabitSet(identity, t, level)
	if !entitled || s.gen == nil {
		s.fallback("habit_set", "not_entitled", nil)
		return template
	}

	key := habitSetKey(identity, t, level)
	if cached, ok := s.cache.Get(key); ok {
		return cached.Clone()
	}

	set, err := s.gen.GenerateHabitSet(ctx, identity, t, level)
	if err != nil {
		s.fallback("habit_set", "error", err)
		return template
	}
	if err := set.Validate(); err != nil {
		s.fallback("habit_set", "invalid", err)
		return template
	}

	set = set.Clone()
	set.Level = level
	s.cache.Add(key, set.Clone())
	return set
}

// Adaptation returns an easier or harder variant of today's set.
func (s *ContentService) Adaptation(ctx context.Context, entitled bool, profile domain.IdentityProfile, mode domain.AdaptationMode, current domain.HabitSet) *domain.HabitSet {
	template := engine.TemplateAdaptation(profile, mode, current)
	if !entitled || s.gen == nil {
		s.fallback("adaptation", "not_entitled", nil)
		return template
	}

	set, err := s.gen.GenerateDailyAdaptation(ctx, profile.Identity, mode, current)
	if err != nil {
		s.fallback("adaptation", "error", err)
		return template
	}
	if err := set.Validate(); err != nil {
		s.fallback("adaptation", "invalid", err)
		return template
	}

	set = set.Clone()
	set.Level = template.Level
	return set
}

// WeeklyContent returns the reflection, archetype and narrative of a review.
// Generated fields left blank are filled from the template.
func (s *ContentService) WeeklyContent(ctx context.Context, entitled bool, req domain.WeeklyContentRequest) *domain.WeeklyContent {
	template := engine.TemplateWeeklyContent(req)
	if !entitled || s.gen == nil {
		s.fallback("weekly_content", "not_entitled", nil)
		return template
	}

	content, err := s.gen.GenerateWeeklyReviewContent(ctx, req)
	if err != nil || content == nil {
		s.fallback("weekly_content", "error", err)
		return template
	}

	out := *content
	if strings.TrimSpace(out.Reflection) == "" {
		out.Reflection = template.Reflection
	}
	if strings.TrimSpace(out.Archetype) == "" {
		out.Archetype = template.Archetype
	}
	if strings.TrimSpace(out.Narrative) == "" {
		out.Narrative = template.Narrative
	}
	return &out
}
