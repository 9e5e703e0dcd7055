package domain

import (
	"errors"
	"time"
)

var (
	ErrReviewNotDue          = errors.New("weekly review is not due")
	ErrNoReviewPending       = errors.New("no weekly review pending")
	ErrReviewAlreadyDrafted  = errors.New("weekly review already drafted")
	ErrOptionNotOffered      = errors.New("evolution option not offered in this review")
	ErrNoPromotionSuggested  = errors.New("no stage promotion suggested")
	ErrResonanceNotAffirmed  = errors.New("every resonance statement must be affirmed")
	ErrMaintenanceIncomplete = errors.New("maintenance stage not complete")
	ErrUnknownContinuation   = errors.New("unknown maintenance continuation")
)

type Persona string

const (
	PersonaTitan    Persona = "TITAN"
	PersonaGrinder  Persona = "GRINDER"
	PersonaSurvivor Persona = "SURVIVOR"
	PersonaGhost    Persona = "GHOST"
)

// Struggling reports whether the persona counts as a regression for overreach.
func (p Persona) Struggling() bool {
	return p == PersonaSurvivor || p == PersonaGhost
}

type OptionKind string

const (
	OptionIncrease       OptionKind = "increase"
	OptionMaintain       OptionKind = "maintain"
	OptionDecrease       OptionKind = "decrease"
	OptionMinimal        OptionKind = "minimal"
	OptionFreshStart     OptionKind = "fresh_start"
	OptionChangeIdentity OptionKind = "change_identity"
)

// DifficultyDelta is the signed level shift an option applies to the habit set.
func (k OptionKind) DifficultyDelta() int {
	switch k {
	case OptionIncrease:
		return 1
	case OptionDecrease:
		return -1
	case OptionMinimal:
		return -2
	}
	return 0
}

func (k OptionKind) IsIncrease() bool {
	return k.DifficultyDelta() > 0
}

type EvolutionOption struct {
	Kind        OptionKind `json:"kind"`
	Label       string     `json:"label"`
	Description string     `json:"description"`
}

type WeeklyStats struct {
	WeekKey        string  `json:"week_key"`
	StartDate      string  `json:"start_date"`
	EndDate        string  `json:"end_date"`
	ActiveDays     int     `json:"active_days"`
	ZeroDays       int     `json:"zero_days"`
	HighEnergyDays int     `json:"high_energy_days"`
	ScoreSum       float64 `json:"score_sum"`
	CompletionRate float64 `json:"completion_rate"`
}

type StageSuggestion struct {
	From                Stage    `json:"from"`
	To                  Stage    `json:"to"`
	ResonanceStatements []string `json:"resonance_statements"`
}

type MaintenanceContinuation string

const (
	ContinueDeepen  MaintenanceContinuation = "deepen"
	ContinueEvolve  MaintenanceContinuation = "evolve"
	ContinueRestart MaintenanceContinuation = "restart"
)

// WeeklyReview is the read model drafted by the classifier for one ISO week.
type WeeklyReview struct {
	CycleIndex          int                       `json:"cycle_index"`
	WeekKey             string                    `json:"week_key"`
	GeneratedAt         time.Time                 `json:"generated_at"`
	Momentum            float64                   `json:"momentum"`
	Persona             Persona                   `json:"persona"`
	Weeks               []WeeklyStats             `json:"weeks"`
	MissedHabits        map[string]int            `json:"missed_habits"`
	Options             []EvolutionOption         `json:"options"`
	Suggestion          *StageSuggestion          `json:"suggestion,omitempty"`
	StageChange         *StageChange              `json:"stage_change,omitempty"`
	NoveltyDue          bool                      `json:"novelty_due"`
	GhostWeeks          int                       `json:"ghost_weeks"`
	OverreachCount      int                       `json:"overreach_count"`
	MaintenanceComplete bool                      `json:"maintenance_complete"`
	Continuations       []MaintenanceContinuation `json:"continuations,omitempty"`
	Reflection          string                    `json:"reflection,omitempty"`
	Archetype           string                    `json:"archetype,omitempty"`
	Narrative           string                    `json:"narrative,omitempty"`
}

// StageChange records a stage move the classifier applied on its own.
type StageChange struct {
	From   Stage  `json:"from"`
	To     Stage  `json:"to"`
	Reason string `json:"reason"`
}

func (r *WeeklyReview) Offers(kind OptionKind) bool {
	for _, o := range r.Options {
		if o.Kind == kind {
			return true
		}
	}
	return false
}

func (r *WeeklyReview) Clone() *WeeklyReview {
	if r == nil {
		return nil
	}
	c := *r
	c.Weeks = append([]WeeklyStats(nil), r.Weeks...)
	c.Options = append([]EvolutionOption(nil), r.Options...)
	c.Continuations = append([]MaintenanceContinuation(nil), r.Continuations...)
	if r.MissedHabits != nil {
		c.MissedHabits = make(map[string]int, len(r.MissedHabits))
		for k, v := range r.MissedHabits {
			c.MissedHabits[k] = v
		}
	}
	if r.Suggestion != nil {
		s := *r.Suggestion
		s.ResonanceStatements = append([]string(nil), r.Suggestion.ResonanceStatements...)
		c.Suggestion = &s
	}
	if r.StageChange != nil {
		sc := *r.StageChange
		c.StageChange = &sc
	}
	return &c
}

type ReviewPhase string

const (
	NoReviewPending ReviewPhase = "NO_REVIEW_PENDING"
	ReviewDrafted   ReviewPhase = "REVIEW_DRAFTED"
	ReviewSealed    ReviewPhase = "REVIEW_SEALED"
)

type SealedReview struct {
	CycleIndex int        `json:"cycle_index"`
	WeekKey    string     `json:"week_key"`
	Chosen     OptionKind `json:"chosen"`
	SealedAt   time.Time  `json:"sealed_at"`
}

// ReviewCycle is the lifecycle of the weekly review. Draft is only set in
// ReviewDrafted and Sealed only in ReviewSealed.
type ReviewCycle struct {
	Phase  ReviewPhase   `json:"phase"`
	Draft  *WeeklyReview `json:"draft,omitempty"`
	Sealed *SealedReview `json:"sealed,omitempty"`
}

func (c ReviewCycle) Pending() (*WeeklyReview, bool) {
	if c.Phase == ReviewDrafted && c.Draft != nil {
		return c.Draft, true
	}
	return nil, false
}

func (c *ReviewCycle) Open(review *WeeklyReview) error {
	if c.Phase == ReviewDrafted {
		return ErrReviewAlreadyDrafted
	}
	c.Phase = ReviewDrafted
	c.Draft = review
	c.Sealed = nil
	return nil
}

// Seal discards the draft and records the chosen option.
func (c *ReviewCycle) Seal(kind OptionKind, now time.Time) (*WeeklyReview, error) {
	draft, ok := c.Pending()
	if !ok {
		return nil, ErrNoReviewPending
	}
	if !draft.Offers(kind) {
		return nil, ErrOptionNotOffered
	}
	c.Phase = ReviewSealed
	c.Draft = nil
	c.Sealed = &SealedReview{
		CycleIndex: draft.CycleIndex,
		WeekKey:    draft.WeekKey,
		Chosen:     kind,
		SealedAt:   now,
	}
	return draft, nil
}

func (c ReviewCycle) Clone() ReviewCycle {
	out := ReviewCycle{Phase: c.Phase, Draft: c.Draft.Clone()}
	if c.Sealed != nil {
		s := *c.Sealed
		out.Sealed = &s
	}
	return out
}
