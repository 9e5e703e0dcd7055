package engine

import (
	"fmt"
	"strings"

	"github.com/comitanigiacomo/kanso-resilience-engine/internal/core/domain"
)

var personaArchetypes = map[domain.Persona]string{
	domain.PersonaTitan:    "The Summit Climber",
	domain.PersonaGrinder:  "The Steady Builder",
	domain.PersonaSurvivor: "The Resilient Walker",
	domain.PersonaGhost:    "The Quiet Restarter",
}

var personaReflections = map[domain.Persona]string{
	domain.PersonaTitan:    "You showed up with intensity almost every day. Protect this rhythm and rest on purpose.",
	domain.PersonaGrinder:  "Solid, repeatable effort. The habits are becoming part of your week.",
	domain.PersonaSurvivor: "Some days slipped, but you kept coming back. That return is the skill.",
	domain.PersonaGhost:    "This week was quiet. Nothing is lost; one small action restarts the story.",
}

// WeeklyNarrative is the deterministic narrative attached to every draft.
func WeeklyNarrative(profile domain.IdentityProfile, persona domain.Persona) string {
	identity := profile.Identity
	if identity == "" {
		identity = "yourself"
	}
	return fmt.Sprintf("%s This week you were %s on the way to becoming %s.",
		personaReflections[persona], personaArchetypes[persona], identity)
}

// TemplateWeeklyContent is the fallback for the generated weekly content.
func TemplateWeeklyContent(req domain.WeeklyContentRequest) *domain.WeeklyContent {
	return &domain.WeeklyContent{
		Reflection: personaReflections[req.Persona],
		Archetype:  personaArchetypes[req.Persona],
		Narrative:  WeeklyNarrative(req.Identity, req.Persona),
	}
}

// TemplateAdaptation is the fallback for a daily easier/harder variant.
func TemplateAdaptation(profile domain.IdentityProfile, mode domain.AdaptationMode, current domain.HabitSet) *domain.HabitSet {
	delta := 1
	if mode == domain.AdaptEasier {
		delta = -1
	}
	return TemplateHabitSet(profile.Identity, profile.Type, current.Level+delta)
}

func titleIdentity(identity string) string {
	if identity == "" {
		return "Your identity"
	}
	return "Becoming " + strings.TrimSpace(identity)
}
