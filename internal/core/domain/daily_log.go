package domain

import (
	"errors"
	"slices"
	"time"
)

// DateLayout is the calendar-date key used for day logs.
const DateLayout = "2006-01-02"

var ErrInvalidDate = errors.New("invalid date, expected YYYY-MM-DD")

// DailyLog is the record of one local calendar date.
// CompletedHabitNames is the authoritative source for retrospective scoring.
type DailyLog struct {
	Date                string     `json:"date"`
	CompletedIndices    []int      `json:"completed_indices"`
	CompletedHabitNames []string   `json:"completed_habit_names"`
	Energy              EnergyTier `json:"energy,omitempty"`
	Note                string     `json:"note,omitempty"`
	Intention           string     `json:"intention,omitempty"`
	DailyScore          *float64   `json:"daily_score,omitempty"`
	UpdatedAt           int64      `json:"updated_at"`
}

func NewDailyLog(date string) *DailyLog {
	return &DailyLog{
		Date:                date,
		CompletedIndices:    []int{},
		CompletedHabitNames: []string{},
	}
}

func (l *DailyLog) HasIndex(index int) bool {
	return slices.Contains(l.CompletedIndices, index)
}

func (l *DailyLog) AddCompletion(index int, name string) {
	l.CompletedIndices = append(l.CompletedIndices, index)
	if name != "" && !slices.Contains(l.CompletedHabitNames, name) {
		l.CompletedHabitNames = append(l.CompletedHabitNames, name)
	}
}

func (l *DailyLog) HasCompletions() bool {
	return len(l.CompletedIndices) > 0 || len(l.CompletedHabitNames) > 0
}

func (l *DailyLog) IsScored() bool {
	return l.DailyScore != nil
}

func (l *DailyLog) Clone() *DailyLog {
	if l == nil {
		return nil
	}
	c := *l
	c.CompletedIndices = append([]int{}, l.CompletedIndices...)
	c.CompletedHabitNames = append([]string{}, l.CompletedHabitNames...)
	if l.DailyScore != nil {
		s := *l.DailyScore
		c.DailyScore = &s
	}
	return &c
}

// SameContent compares everything except UpdatedAt.
func (l *DailyLog) SameContent(o *DailyLog) bool {
	if l == nil || o == nil {
		return l == o
	}
	if l.Date != o.Date || l.Energy != o.Energy || l.Note != o.Note || l.Intention != o.Intention {
		return false
	}
	if (l.DailyScore == nil) != (o.DailyScore == nil) {
		return false
	}
	if l.DailyScore != nil && *l.DailyScore != *o.DailyScore {
		return false
	}
	return slices.Equal(l.CompletedIndices, o.CompletedIndices) &&
		slices.Equal(l.CompletedHabitNames, o.CompletedHabitNames)
}

// DateKey formats t as a calendar date in t's own location.
func DateKey(t time.Time) string {
	return t.Format(DateLayout)
}

func ParseDate(date string) (time.Time, error) {
	t, err := time.Parse(DateLayout, date)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return t, nil
}

// DaysBetween returns the number of calendar days from a to b.
func DaysBetween(a, b string) int {
	ta, errA := ParseDate(a)
	tb, errB := ParseDate(b)
	if errA != nil || errB != nil {
		return 0
	}
	return int(tb.Sub(ta).Hours() / 24)
}

// AddDays shifts a date key by n calendar days.
func AddDays(date string, n int) string {
	t, err := ParseDate(date)
	if err != nil {
		return date
	}
	return t.AddDate(0, 0, n).Format(DateLayout)
}
