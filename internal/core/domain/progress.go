package domain

import (
	"errors"
	"sort"
	"time"
	_ "time/tzdata"
)

var ErrInvalidTimezone = errors.New("unknown timezone")

// Settings holds user preferences. Timezone is an IANA name; day keys are
// computed in it.
type Settings struct {
	Timezone string `json:"timezone"`
}

// ParseTimezone validates an IANA timezone name. The empty name means UTC.
func ParseTimezone(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, ErrInvalidTimezone
	}
	return loc, nil
}

// DayAdaptation replaces the habit set for a single date. The regular set
// and its level are left alone.
type DayAdaptation struct {
	Date   string         `json:"date"`
	Mode   AdaptationMode `json:"mode"`
	Habits HabitSet       `json:"habits"`
}

// EvolutionTracker carries the counters the classifier and evolution rules
// share across weekly cycles.
type EvolutionTracker struct {
	ConsecutiveIncreases  int        `json:"consecutive_increases"`
	LastChosen            OptionKind `json:"last_chosen,omitempty"`
	ConsecutiveOverreach  int        `json:"consecutive_overreach"`
	GhostWeeks            int        `json:"ghost_weeks"`
	CompletedReviews      int        `json:"completed_reviews"`
	LastNoveltyReview     int        `json:"last_novelty_review"`
	NoveltyAppliedCycle   int        `json:"novelty_applied_cycle"`
	LastReviewRunAt       *time.Time `json:"last_review_run_at,omitempty"`
	PendingIdentityChange bool       `json:"pending_identity_change"`
}

// Profile is the profile-scope document mirrored to the remote replica.
type Profile struct {
	UserID             string           `json:"user_id"`
	Identity           IdentityProfile  `json:"identity"`
	Habits             *HabitSet        `json:"habits,omitempty"`
	Adaptation         *DayAdaptation   `json:"adaptation,omitempty"`
	Resilience         ResilienceState  `json:"resilience"`
	Review             ReviewCycle      `json:"review"`
	Evolution          EvolutionTracker `json:"evolution"`
	Settings           Settings         `json:"settings"`
	Entitlement        Entitlement      `json:"entitlement"`
	HasEverBeenPremium bool             `json:"has_ever_been_premium"`
	LastRolloverDate   string           `json:"last_rollover_date,omitempty"`
	LastUpdated        int64            `json:"last_updated"`
}

func (p Profile) Clone() Profile {
	c := p
	c.Habits = p.Habits.Clone()
	if p.Adaptation != nil {
		a := *p.Adaptation
		a.Habits = *p.Adaptation.Habits.Clone()
		c.Adaptation = &a
	}
	c.Resilience = p.Resilience.Clone()
	c.Review = p.Review.Clone()
	c.Entitlement = p.Entitlement.Clone()
	if p.Evolution.LastReviewRunAt != nil {
		t := *p.Evolution.LastReviewRunAt
		c.Evolution.LastReviewRunAt = &t
	}
	return c
}

// Progress is the full local replica: the profile document, every day log,
// and the ephemeral undo slot which is never persisted.
type Progress struct {
	Profile
	Logs map[string]*DailyLog `json:"logs"`
	Undo *UndoSnapshot        `json:"-"`
}

func NewProgress(userID string) *Progress {
	return &Progress{
		Profile: Profile{
			UserID:     userID,
			Resilience: NewResilienceState(),
			Review:     ReviewCycle{Phase: NoReviewPending},
			Evolution:  EvolutionTracker{NoveltyAppliedCycle: -1},
		},
		Logs: make(map[string]*DailyLog),
	}
}

// HabitsFor returns the set in force on date: the day's adaptation if there
// is one, the regular set otherwise.
func (p *Profile) HabitsFor(date string) *HabitSet {
	if p.Adaptation != nil && p.Adaptation.Date == date {
		return &p.Adaptation.Habits
	}
	return p.Habits
}

func (p *Progress) Clone() *Progress {
	if p == nil {
		return nil
	}
	c := &Progress{
		Profile: p.Profile.Clone(),
		Logs:    make(map[string]*DailyLog, len(p.Logs)),
		Undo:    p.Undo.Clone(),
	}
	for k, l := range p.Logs {
		c.Logs[k] = l.Clone()
	}
	return c
}

func (p *Progress) Log(date string) *DailyLog {
	return p.Logs[date]
}

// EnsureLog returns the log for date, creating it when missing.
func (p *Progress) EnsureLog(date string) *DailyLog {
	if p.Logs == nil {
		p.Logs = make(map[string]*DailyLog)
	}
	l, ok := p.Logs[date]
	if !ok {
		l = NewDailyLog(date)
		p.Logs[date] = l
	}
	return l
}

// Location resolves the user's timezone, falling back to UTC.
func (p *Progress) Location() *time.Location {
	loc, err := ParseTimezone(p.Settings.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// SortedDates returns the log dates in ascending order.
func (p *Progress) SortedDates() []string {
	dates := make([]string, 0, len(p.Logs))
	for d := range p.Logs {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	return dates
}

// Snapshot splits the replica into its remote documents.
func (p *Progress) Snapshot() *RemoteSnapshot {
	s := &RemoteSnapshot{Profile: p.Profile.Clone()}
	for _, d := range p.SortedDates() {
		s.Logs = append(s.Logs, p.Logs[d].Clone())
	}
	return s
}

// ChangedLogsSince returns the day logs stamped after the given logical time.
func (p *Progress) ChangedLogsSince(since int64) []*DailyLog {
	var out []*DailyLog
	for _, d := range p.SortedDates() {
		if l := p.Logs[d]; l.UpdatedAt > since {
			out = append(out, l.Clone())
		}
	}
	return out
}

// RemoteSnapshot is the remote image: one profile plus one document per date.
type RemoteSnapshot struct {
	Profile Profile     `json:"profile"`
	Logs    []*DailyLog `json:"logs"`
}

func (s *RemoteSnapshot) ToProgress() *Progress {
	p := &Progress{
		Profile: s.Profile.Clone(),
		Logs:    make(map[string]*DailyLog, len(s.Logs)),
	}
	for _, l := range s.Logs {
		p.Logs[l.Date] = l.Clone()
	}
	return p
}

// ReplicaBatch is one atomic write: the full profile plus modified day logs.
type ReplicaBatch struct {
	ID      string      `json:"id"`
	UserID  string      `json:"user_id"`
	Profile Profile     `json:"profile"`
	Logs    []*DailyLog `json:"logs"`
}
