package domain

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrIdentityRequired    = errors.New("identity is required")
	ErrInvalidIdentityType = errors.New("invalid identity type")
	ErrNotOnboarded        = errors.New("identity onboarding not completed")
)

type IdentityType string

const (
	IdentitySkill     IdentityType = "SKILL"
	IdentityCharacter IdentityType = "CHARACTER"
	IdentityRecovery  IdentityType = "RECOVERY"
)

func ParseIdentityType(s string) (IdentityType, error) {
	t := IdentityType(strings.ToUpper(strings.TrimSpace(s)))
	switch t {
	case IdentitySkill, IdentityCharacter, IdentityRecovery:
		return t, nil
	case "":
		return "", nil
	}
	return "", ErrInvalidIdentityType
}

// Effective maps an unset type onto SKILL rules.
func (t IdentityType) Effective() IdentityType {
	if t == "" {
		return IdentitySkill
	}
	return t
}

type Stage string

const (
	StageInitiation  Stage = "INITIATION"
	StageIntegration Stage = "INTEGRATION"
	StageExpansion   Stage = "EXPANSION"
	StageMaintenance Stage = "MAINTENANCE"
)

var stageOrder = []Stage{StageInitiation, StageIntegration, StageExpansion, StageMaintenance}

func (s Stage) Rank() int {
	for i, st := range stageOrder {
		if st == s {
			return i
		}
	}
	return 0
}

func (s Stage) Next() (Stage, bool) {
	r := s.Rank()
	if r+1 >= len(stageOrder) {
		return s, false
	}
	return stageOrder[r+1], true
}

func (s Stage) Previous() (Stage, bool) {
	r := s.Rank()
	if r == 0 {
		return s, false
	}
	return stageOrder[r-1], true
}

type IdentityProfile struct {
	Identity       string       `json:"identity"`
	Type           IdentityType `json:"type"`
	Stage          Stage        `json:"stage"`
	StageEnteredAt time.Time    `json:"stage_entered_at"`
	WeeksInStage   int          `json:"weeks_in_stage"`
}

func NewIdentityProfile(identity string, t IdentityType, now time.Time) (IdentityProfile, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return IdentityProfile{}, ErrIdentityRequired
	}
	return IdentityProfile{
		Identity:       identity,
		Type:           t,
		Stage:          StageInitiation,
		StageEnteredAt: now,
	}, nil
}

func (p IdentityProfile) Onboarded() bool {
	return p.Identity != ""
}

// EnterStage moves to a stage and resets the stage clock.
func (p *IdentityProfile) EnterStage(s Stage, now time.Time) {
	p.Stage = s
	p.StageEnteredAt = now
	p.WeeksInStage = 0
}
