package engine

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/comitanigiacomo/kanso-resilience-engine/internal/core/domain"
)

//go:embed progression.yaml
var progressionYAML []byte

type tierHabits struct {
	High   []string `yaml:"high"`
	Medium []string `yaml:"medium"`
	Low    []string `yaml:"low"`
}

func (t tierHabits) tier(e domain.EnergyTier) []string {
	switch e {
	case domain.EnergyHigh:
		return t.High
	case domain.EnergyMedium:
		return t.Medium
	case domain.EnergyLow:
		return t.Low
	}
	return nil
}

type progression struct {
	Levels   []tierHabits `yaml:"levels"`
	Variants tierHabits   `yaml:"variants"`
}

var progressions = mustLoadProgressions(progressionYAML)

func mustLoadProgressions(data []byte) map[domain.IdentityType]progression {
	var raw map[string]progression
	if err := yaml.Unmarshal(data, &raw); err != nil {
		panic(fmt.Sprintf("engine: invalid progression table: %v", err))
	}
	out := make(map[domain.IdentityType]progression, len(raw))
	for k, p := range raw {
		if len(p.Levels) == 0 {
			panic(fmt.Sprintf("engine: progression %s has no levels", k))
		}
		out[domain.IdentityType(k)] = p
	}
	return out
}

func progressionFor(t domain.IdentityType) progression {
	if p, ok := progressions[t.Effective()]; ok {
		return p
	}
	return progressions[domain.IdentitySkill]
}

// MaxLevel is the highest difficulty level defined for an identity type.
func MaxLevel(t domain.IdentityType) int {
	return len(progressionFor(t).Levels) - 1
}

// ClampLevel bounds level to the progression table of t.
func ClampLevel(t domain.IdentityType, level int) int {
	return min(max(level, 0), MaxLevel(t))
}

// TemplateHabitSet builds the pre-seeded habit set for an identity at a level.
func TemplateHabitSet(identity string, t domain.IdentityType, level int) *domain.HabitSet {
	level = ClampLevel(t, level)
	row := progressionFor(t).Levels[level]
	return &domain.HabitSet{
		High:   personalize(row.High, identity),
		Medium: personalize(row.Medium, identity),
		Low:    personalize(row.Low, identity),
		Level:  level,
	}
}

func noveltyVariants(t domain.IdentityType, tier domain.EnergyTier, identity string) []string {
	return personalize(progressionFor(t).Variants.tier(tier), identity)
}

func personalize(habits []string, identity string) []string {
	if identity == "" {
		identity = "yourself"
	}
	out := make([]string, len(habits))
	for i, h := range habits {
		out[i] = strings.ReplaceAll(h, "{identity}", identity)
	}
	return out
}
