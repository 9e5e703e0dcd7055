package domain

import (
	"errors"
	"strings"
)

var (
	ErrHabitSetIncomplete   = errors.New("habit set must have at least one habit per energy tier")
	ErrHabitIndexOutOfRange = errors.New("habit index out of range")
	ErrInvalidEnergyTier    = errors.New("invalid energy tier")
)

type EnergyTier string

const (
	EnergyHigh   EnergyTier = "HIGH"
	EnergyMedium EnergyTier = "MEDIUM"
	EnergyLow    EnergyTier = "LOW"
)

// EnergyTiers lists the tiers in flattening order.
var EnergyTiers = []EnergyTier{EnergyHigh, EnergyMedium, EnergyLow}

func (t EnergyTier) IsValid() bool {
	switch t {
	case EnergyHigh, EnergyMedium, EnergyLow:
		return true
	}
	return false
}

// Weight is the scoring weight of a habit completed in this tier.
func (t EnergyTier) Weight() float64 {
	switch t {
	case EnergyHigh:
		return 3
	case EnergyMedium:
		return 2
	case EnergyLow:
		return 1
	}
	return 0
}

func ParseEnergyTier(s string) (EnergyTier, error) {
	t := EnergyTier(strings.ToUpper(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", ErrInvalidEnergyTier
	}
	return t, nil
}

// HabitSet holds the habits of the active identity grouped by energy tier.
// Habits are addressed by their flattened index: HIGH first, then MEDIUM, then LOW.
type HabitSet struct {
	High   []string `json:"high"`
	Medium []string `json:"medium"`
	Low    []string `json:"low"`
	Level  int      `json:"level"`
}

func NewHabitSet(high, medium, low []string, level int) (*HabitSet, error) {
	h := &HabitSet{
		High:   trimAll(high),
		Medium: trimAll(medium),
		Low:    trimAll(low),
		Level:  level,
	}
	if err := h.Validate(); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *HabitSet) Validate() error {
	if h == nil || len(h.High) == 0 || len(h.Medium) == 0 || len(h.Low) == 0 {
		return ErrHabitSetIncomplete
	}
	for _, tier := range EnergyTiers {
		for _, name := range h.Tier(tier) {
			if strings.TrimSpace(name) == "" {
				return ErrHabitSetIncomplete
			}
		}
	}
	return nil
}

func (h *HabitSet) Tier(t EnergyTier) []string {
	switch t {
	case EnergyHigh:
		return h.High
	case EnergyMedium:
		return h.Medium
	case EnergyLow:
		return h.Low
	}
	return nil
}

func (h *HabitSet) SetTier(t EnergyTier, habits []string) {
	switch t {
	case EnergyHigh:
		h.High = habits
	case EnergyMedium:
		h.Medium = habits
	case EnergyLow:
		h.Low = habits
	}
}

func (h *HabitSet) Len() int {
	return len(h.High) + len(h.Medium) + len(h.Low)
}

// At resolves a flattened habit index to its display text and tier.
func (h *HabitSet) At(index int) (string, EnergyTier, error) {
	if index < 0 {
		return "", "", ErrHabitIndexOutOfRange
	}
	for _, tier := range EnergyTiers {
		habits := h.Tier(tier)
		if index < len(habits) {
			return habits[index], tier, nil
		}
		index -= len(habits)
	}
	return "", "", ErrHabitIndexOutOfRange
}

// TierOf finds the tier a habit name belongs to in this set.
func (h *HabitSet) TierOf(name string) (EnergyTier, bool) {
	for _, tier := range EnergyTiers {
		for _, habit := range h.Tier(tier) {
			if habit == name {
				return tier, true
			}
		}
	}
	return "", false
}

func (h *HabitSet) Names() []string {
	names := make([]string, 0, h.Len())
	for _, tier := range EnergyTiers {
		names = append(names, h.Tier(tier)...)
	}
	return names
}

func (h *HabitSet) Clone() *HabitSet {
	if h == nil {
		return nil
	}
	return &HabitSet{
		High:   append([]string(nil), h.High...),
		Medium: append([]string(nil), h.Medium...),
		Low:    append([]string(nil), h.Low...),
		Level:  h.Level,
	}
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
