package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"reflect"
	"sync/atomic"
	"time"

	"github.com/comitanigiacomo/kanso-resilience-engine/internal/core/domain"
	"github.com/comitanigiacomo/kanso-resilience-engine/internal/core/engine"
)

const progressKeyPrefix = "progress:"

var ErrServiceStopped = errors.New("progress service is not running")

// DayReport is what a day boundary produced.
type DayReport struct {
	Rollover engine.RolloverReport   `json:"rollover"`
	Missed   engine.MissedDayOutcome `json:"missed"`
}

type command struct {
	ctx   context.Context
	run   func(current *domain.Progress, now time.Time) (*domain.Progress, error)
	stamp bool
	done  chan error
}

// ProgressService owns one user's local replica. Every read and mutation is
// funnelled through a single goroutine; a mutation works on a copy which
// replaces the state only after it was persisted.
type ProgressService struct {
	userID  string
	store   domain.LocalStore
	content *ContentService
	now     func() time.Time

	cmds    chan command
	stopped chan struct{}
	started atomic.Bool
	state   *domain.Progress

	listeners []func()
}

func NewProgressService(userID string, store domain.LocalStore, content *ContentService) *ProgressService {
	return &ProgressService{
		userID:  userID,
		store:   store,
		content: content,
		now:     time.Now,
		cmds:    make(chan command),
		stopped: make(chan struct{}),
	}
}

// OnChange registers fn to be called after every committed mutation. fn
// must not block. Register listeners before Start.
func (s *ProgressService) OnChange(fn func()) {
	s.listeners = append(s.listeners, fn)
}

func (s *ProgressService) storeKey() string {
	return progressKeyPrefix + s.userID
}

// Start loads the persisted replica and starts the dispatch loop, which runs
// until ctx is cancelled.
func (s *ProgressService) Start(ctx context.Context) error {
	p, err := s.load(ctx)
	if err != nil {
		return err
	}
	s.state = p
	s.started.Store(true)

	go func() {
		defer close(s.stopped)
		for {
			select {
			case cmd := <-s.cmds:
				cmd.done <- s.execute(cmd)
			case <-ctx.Done():
				log.Printf("[ENGINE] Progress service for user %s shutting down", s.userID)
				return
			}
		}
	}()
	return nil
}

func (s *ProgressService) load(ctx context.Context) (*domain.Progress, error) {
	raw, err := s.store.Get(ctx, s.storeKey())
	if errors.Is(err, domain.ErrNotFound) {
		log.Printf("[ENGINE] No local replica for user %s, starting fresh", s.userID)
		return domain.NewProgress(s.userID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load local replica: %w", err)
	}

	p := domain.NewProgress(s.userID)
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("decode local replica: %w", err)
	}
	if p.Logs == nil {
		p.Logs = make(map[string]*domain.DailyLog)
	}
	return p, nil
}

func (s *ProgressService) dispatch(ctx context.Context, cmd command) error {
	if !s.started.Load() {
		return ErrServiceStopped
	}
	cmd.ctx = ctx
	cmd.done = make(chan error, 1)

	select {
	case s.cmds <- cmd:
	case <-s.stopped:
		return ErrServiceStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-cmd.done
}

func (s *ProgressService) execute(cmd command) error {
	now := s.now().In(s.state.Location())
	next, err := cmd.run(s.state, now)
	if err != nil || next == nil {
		return err
	}

	if cmd.stamp && !stampChanges(s.state, next, now) {
		s.state = next
		return nil
	}

	raw, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode local replica: %w", err)
	}
	if err := s.store.Set(cmd.ctx, s.storeKey(), raw); err != nil {
		return fmt.Errorf("persist local replica: %w", err)
	}

	s.state = next
	if cmd.stamp {
		for _, fn := range s.listeners {
			fn()
		}
	}
	return nil
}

// stampChanges bumps LastUpdated and the UpdatedAt of every modified day
// log. It reports false when next carries no change at all.
func stampChanges(prev, next *domain.Progress, now time.Time) bool {
	ts := max(now.UnixMilli(), prev.LastUpdated+1)
	next.LastUpdated = prev.LastUpdated

	changed := false
	for date, l := range next.Logs {
		if old := prev.Logs[date]; old == nil || !old.SameContent(l) {
			l.UpdatedAt = ts
			changed = true
		}
	}
	if !changed && reflect.DeepEqual(prev.Profile, next.Profile) {
		return false
	}
	next.LastUpdated = ts
	return true
}

// catchUpDay runs the idempotent day-boundary rules before a user action.
func catchUpDay(p *domain.Progress, now time.Time) DayReport {
	if !p.Identity.Onboarded() {
		return DayReport{Missed: engine.MissedNone}
	}
	return DayReport{
		Rollover: engine.RolloverDay(p, now),
		Missed:   engine.DetectMissedDay(p, now),
	}
}

func (s *ProgressService) mutate(ctx context.Context, catchUp bool, fn func(p *domain.Progress, now time.Time) error) error {
	return s.dispatch(ctx, command{
		stamp: true,
		run: func(current *domain.Progress, now time.Time) (*domain.Progress, error) {
			next := current.Clone()
			if catchUp {
				catchUpDay(next, now)
			}
			if err := fn(next, now); err != nil {
				return nil, err
			}
			return next, nil
		},
	})
}

func (s *ProgressService) read(ctx context.Context, fn func(p *domain.Progress, now time.Time)) error {
	return s.dispatch(ctx, command{
		run: func(current *domain.Progress, now time.Time) (*domain.Progress, error) {
			fn(current, now)
			return nil, nil
		},
	})
}

// Snapshot returns a copy of the current replica.
func (s *ProgressService) Snapshot(ctx context.Context) (*domain.Progress, error) {
	var out *domain.Progress
	err := s.read(ctx, func(p *domain.Progress, _ time.Time) {
		out = p.Clone()
	})
	return out, err
}

// Replace installs a replica obtained from the remote store. It fails with
// ErrStaleReplica if the local replica moved past expected in the meantime.
func (s *ProgressService) Replace(ctx context.Context, next *domain.Progress, expected int64) error {
	return s.dispatch(ctx, command{
		run: func(current *domain.Progress, _ time.Time) (*domain.Progress, error) {
			if current.LastUpdated != expected {
				return nil, domain.ErrStaleReplica
			}
			replacement := next.Clone()
			replacement.UserID = s.userID
			replacement.Undo = nil
			if replacement.Logs == nil {
				replacement.Logs = make(map[string]*domain.DailyLog)
			}
			return replacement, nil
		},
	})
}

func (s *ProgressService) entitlementState(ctx context.Context) (entitled bool, profile domain.IdentityProfile, habits *domain.HabitSet, err error) {
	err = s.read(ctx, func(p *domain.Progress, now time.Time) {
		entitled = p.Entitlement.IsValid(now)
		profile = p.Identity
		habits = p.Habits.Clone()
	})
	return
}

// Onboard starts a new identity. custom may be nil, in which case the first
// habit set is generated (entitled users) or taken from the template.
func (s *ProgressService) Onboard(ctx context.Context, identity string, t domain.IdentityType, custom *domain.HabitSet) error {
	habits := custom
	if habits == nil {
		entitled, _, _, err := s.entitlementState(ctx)
		if err != nil {
			return err
		}
		habits = s.content.HabitSet(ctx, entitled, identity, t, 0)
	}
	return s.mutate(ctx, false, func(p *domain.Progress, now time.Time) error {
		return engine.Onboard(p, identity, t, habits, now)
	})
}

func (s *ProgressService) CompleteHabit(ctx context.Context, index int) (bool, error) {
	var accepted bool
	err := s.mutate(ctx, true, func(p *domain.Progress, now time.Time) error {
		var err error
		accepted, err = engine.RecordCompletion(p, index, now)
		return err
	})
	return accepted, err
}

func (s *ProgressService) Undo(ctx context.Context) (bool, error) {
	var restored bool
	err := s.mutate(ctx, false, func(p *domain.Progress, _ time.Time) error {
		restored = engine.Undo(p)
		return nil
	})
	return restored, err
}

func (s *ProgressService) SetEnergy(ctx context.Context, tier domain.EnergyTier) error {
	return s.mutate(ctx, true, func(p *domain.Progress, now time.Time) error {
		return engine.SetEnergy(p, tier, now)
	})
}

func (s *ProgressService) SetNote(ctx context.Context, note, intention string) error {
	return s.mutate(ctx, true, func(p *domain.Progress, now time.Time) error {
		engine.SetNote(p, note, intention, now)
		return nil
	})
}

// SetTimezone changes the zone day keys are computed in. Existing logs keep
// their dates.
func (s *ProgressService) SetTimezone(ctx context.Context, name string) error {
	if _, err := domain.ParseTimezone(name); err != nil {
		return err
	}
	return s.mutate(ctx, false, func(p *domain.Progress, _ time.Time) error {
		p.Settings.Timezone = name
		return nil
	})
}

// Rollover runs the day-boundary rules explicitly and reports what they did.
func (s *ProgressService) Rollover(ctx context.Context) (DayReport, error) {
	var report DayReport
	err := s.mutate(ctx, false, func(p *domain.Progress, now time.Time) error {
		report = catchUpDay(p, now)
		return nil
	})
	return report, err
}

func (s *ProgressService) ApplyRecovery(ctx context.Context, option domain.RecoveryOption) error {
	return s.mutate(ctx, true, func(p *domain.Progress, now time.Time) error {
		return engine.ApplyRecovery(p, option, now)
	})
}

func (s *ProgressService) Freeze(ctx context.Context) error {
	return s.mutate(ctx, true, func(p *domain.Progress, now time.Time) error {
		return engine.Freeze(p, now)
	})
}

// DraftWeeklyReview runs the classifier. Entitled users get generated
// reflection content on a freshly drafted review.
func (s *ProgressService) DraftWeeklyReview(ctx context.Context) (*domain.WeeklyReview, error) {
	var (
		draft    *domain.WeeklyReview
		fresh    bool
		entitled bool
		req      domain.WeeklyContentRequest
	)
	err := s.mutate(ctx, true, func(p *domain.Progress, now time.Time) error {
		_, pending := p.Review.Pending()
		d, err := engine.DraftWeeklyReview(p, now)
		if err != nil {
			return err
		}
		draft = d.Clone()
		fresh = !pending
		entitled = p.Entitlement.IsValid(now)
		req = domain.WeeklyContentRequest{
			Identity:     p.Identity,
			Persona:      d.Persona,
			Momentum:     d.Momentum,
			MissedHabits: d.MissedHabits,
		}
		return nil
	})
	if err != nil || !fresh || !entitled {
		return draft, err
	}

	content := s.content.WeeklyContent(ctx, true, req)
	err = s.mutate(ctx, false, func(p *domain.Progress, _ time.Time) error {
		current, ok := p.Review.Pending()
		if !ok || current.CycleIndex != draft.CycleIndex {
			return nil
		}
		current.Reflection = content.Reflection
		current.Archetype = content.Archetype
		current.Narrative = content.Narrative
		draft = current.Clone()
		return nil
	})
	return draft, err
}

// SealWeeklyReview applies the chosen option. When the habit set was
// replaced for an entitled user, a generated set is installed if nothing
// changed its level meanwhile.
func (s *ProgressService) SealWeeklyReview(ctx context.Context, kind domain.OptionKind) (engine.EvolutionResult, error) {
	var (
		result   engine.EvolutionResult
		entitled bool
		profile  domain.IdentityProfile
	)
	err := s.mutate(ctx, true, func(p *domain.Progress, now time.Time) error {
		var err error
		result, err = engine.SealWeeklyReview(p, kind, now)
		entitled = p.Entitlement.IsValid(now)
		profile = p.Identity
		return err
	})
	if err != nil || !result.Regenerated || !entitled {
		return result, err
	}

	level := result.Habits.Level
	generated := s.content.HabitSet(ctx, true, profile.Identity, profile.Type, level)
	err = s.mutate(ctx, false, func(p *domain.Progress, _ time.Time) error {
		if engine.InstallHabitSet(p, generated, level) {
			result.Habits = *p.Habits.Clone()
		}
		return nil
	})
	return result, err
}

func (s *ProgressService) AcceptPromotion(ctx context.Context, affirmed []bool) error {
	return s.mutate(ctx, false, func(p *domain.Progress, now time.Time) error {
		return engine.AcceptPromotion(p, affirmed, now)
	})
}

func (s *ProgressService) ResolveMaintenance(ctx context.Context, choice domain.MaintenanceContinuation, newIdentity string) error {
	var entitled bool
	var profile domain.IdentityProfile
	err := s.mutate(ctx, false, func(p *domain.Progress, now time.Time) error {
		entitled = p.Entitlement.IsValid(now)
		if err := engine.ResolveMaintenance(p, choice, newIdentity, now); err != nil {
			return err
		}
		profile = p.Identity
		return nil
	})
	if err != nil || choice != domain.ContinueEvolve || !entitled {
		return err
	}

	generated := s.content.HabitSet(ctx, true, profile.Identity, profile.Type, 0)
	return s.mutate(ctx, false, func(p *domain.Progress, _ time.Time) error {
		if p.Identity.Identity == profile.Identity {
			engine.InstallHabitSet(p, generated, 0)
		}
		return nil
	})
}

// AdaptToday replaces today's set with an easier or harder variant. The
// regular set comes back at the next day boundary.
func (s *ProgressService) AdaptToday(ctx context.Context, mode domain.AdaptationMode) (*domain.HabitSet, error) {
	if mode != domain.AdaptEasier && mode != domain.AdaptHarder {
		return nil, fmt.Errorf("unknown adaptation mode %q", mode)
	}

	var (
		entitled bool
		profile  domain.IdentityProfile
		current  *domain.HabitSet
	)
	err := s.read(ctx, func(p *domain.Progress, now time.Time) {
		entitled = p.Entitlement.IsValid(now)
		profile = p.Identity
		current = p.HabitsFor(domain.DateKey(now)).Clone()
	})
	if err != nil {
		return nil, err
	}
	if current.Validate() != nil {
		return nil, domain.ErrNotOnboarded
	}

	adapted := s.content.Adaptation(ctx, entitled, profile, mode, *current)
	err = s.mutate(ctx, true, func(p *domain.Progress, now time.Time) error {
		active := p.HabitsFor(domain.DateKey(now))
		if active == nil || !reflect.DeepEqual(*active, *current) {
			return domain.ErrStaleReplica
		}
		return engine.AdaptDay(p, mode, adapted, now)
	})
	if err != nil {
		return nil, err
	}
	return adapted, nil
}

// ApplyVerifiedEntitlement is the privileged setter for entitlements coming
// from a trusted verification step.
func (s *ProgressService) ApplyVerifiedEntitlement(ctx context.Context, ent domain.Entitlement) (bool, error) {
	var bonus bool
	err := s.mutate(ctx, false, func(p *domain.Progress, now time.Time) error {
		bonus = engine.ApplyVerifiedEntitlement(p, ent, now)
		return nil
	})
	return bonus, err
}

func (s *ProgressService) RepairScore(ctx context.Context, date string) (float64, error) {
	var score float64
	err := s.mutate(ctx, false, func(p *domain.Progress, _ time.Time) error {
		var err error
		score, err = engine.RepairScore(p, date)
		return err
	})
	return score, err
}
