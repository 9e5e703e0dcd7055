package domain

import (
	"context"
	"errors"
)

var ErrGeneratorUnavailable = errors.New("content generator unavailable")

type AdaptationMode string

const (
	AdaptEasier AdaptationMode = "easier"
	AdaptHarder AdaptationMode = "harder"
)

type WeeklyContentRequest struct {
	Identity     IdentityProfile `json:"identity"`
	Persona      Persona         `json:"persona"`
	Momentum     float64         `json:"momentum"`
	MissedHabits map[string]int  `json:"missed_habits"`
}

// WeeklyContent is the prose of a review. Habit sets for the next cycle are
// generated when the review is sealed, at the level the chosen option sets.
type WeeklyContent struct {
	Reflection string `json:"reflection"`
	Archetype  string `json:"archetype"`
	Narrative  string `json:"narrative"`
}

// ContentGenerator is the generative-text boundary. Every call may fail or
// return malformed content; callers keep a template fallback.
type ContentGenerator interface {
	GenerateHabitSet(ctx context.Context, identity string, t IdentityType, level int) (*HabitSet, error)
	GenerateDailyAdaptation(ctx context.Context, identity string, mode AdaptationMode, current HabitSet) (*HabitSet, error)
	GenerateWeeklyReviewContent(ctx context.Context, req WeeklyContentRequest) (*WeeklyContent, error)
}
