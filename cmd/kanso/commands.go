package main

import (
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/comitanigiacomo/kanso-resilience-engine/internal/core/domain"
	"github.com/comitanigiacomo/kanso-resilience-engine/internal/core/workers"
)

type runFunc func(cmd *cobra.Command, a *app, args []string) error

// withApp opens the local replica around fn. With --sync the replica is
// reconciled before fn runs and pushed afterwards.
func withApp(opts *options, fn runFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := openApp(opts)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.start(ctx); err != nil {
			return err
		}

		if opts.sync && a.sync != nil {
			if _, err := a.sync.Reconcile(ctx); err != nil {
				if err := a.remoteError(err); err != nil {
					return err
				}
			}
		}

		if err := fn(cmd, a, args); err != nil {
			return err
		}

		if opts.sync {
			return a.syncOnce(ctx)
		}
		return nil
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func newOnboardCmd(opts *options) *cobra.Command {
	var identityType, high, medium, low string

	cmd := &cobra.Command{
		Use:   "onboard [identity]",
		Short: "Start a new identity with its first habit set",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
			t, err := domain.ParseIdentityType(identityType)
			if err != nil {
				return err
			}

			var custom *domain.HabitSet
			if high != "" || medium != "" || low != "" {
				custom, err = domain.NewHabitSet(splitList(high), splitList(medium), splitList(low), 0)
				if err != nil {
					return err
				}
			}

			if err := a.progress.Onboard(cmd.Context(), args[0], t, custom); err != nil {
				return err
			}
			p, err := a.progress.Snapshot(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, p.Habits)
		}),
	}
	cmd.Flags().StringVar(&identityType, "type", "", "identity type: skill, character or recovery")
	cmd.Flags().StringVar(&high, "high", "", "comma separated high energy habits")
	cmd.Flags().StringVar(&medium, "medium", "", "comma separated medium energy habits")
	cmd.Flags().StringVar(&low, "low", "", "comma separated low energy habits")
	return cmd
}

func newCompleteCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "complete [index]",
		Short: "Mark today's habit at index as done",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
			index, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid habit index %q", args[0])
			}
			recorded, err := a.progress.CompleteHabit(cmd.Context(), index)
			if err != nil {
				return err
			}
			if !recorded {
				fmt.Fprintln(cmd.OutOrStdout(), "already completed today")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "completed")
			return nil
		}),
	}
}

func newEnergyCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "energy [high|medium|low]",
		Short: "Record today's energy",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
			tier, err := domain.ParseEnergyTier(args[0])
			if err != nil {
				return err
			}
			return a.progress.SetEnergy(cmd.Context(), tier)
		}),
	}
}

func newNoteCmd(opts *options) *cobra.Command {
	var intention string

	cmd := &cobra.Command{
		Use:   "note [text]",
		Short: "Attach a note and intention to today",
		Args:  cobra.MaximumNArgs(1),
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
			var note string
			if len(args) == 1 {
				note = args[0]
			}
			return a.progress.SetNote(cmd.Context(), note, intention)
		}),
	}
	cmd.Flags().StringVar(&intention, "intention", "", "today's intention")
	return cmd
}

func newRolloverCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "rollover",
		Short: "Score elapsed days and evaluate missed ones",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, _ []string) error {
			report, err := a.progress.Rollover(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, report)
		}),
	}
}

func newRecoverCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "recover [low_energy_reset|use_shield|gentle_restart]",
		Short: "Choose how to recover after a cracked streak",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
			return a.progress.ApplyRecovery(cmd.Context(), domain.RecoveryOption(args[0]))
		}),
	}
}

func newFreezeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "freeze",
		Short: "Spend a shield to pause the streak for a day",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, _ []string) error {
			return a.progress.Freeze(cmd.Context())
		}),
	}
}

func newAdaptCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "adapt [easier|harder]",
		Short: "Swap today's habit set for an easier or harder variant",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
			habits, err := a.progress.AdaptToday(cmd.Context(), domain.AdaptationMode(strings.ToLower(args[0])))
			if err != nil {
				return err
			}
			return printJSON(cmd, habits)
		}),
	}
}

func newReviewCmd(opts *options) *cobra.Command {
	review := &cobra.Command{
		Use:   "review",
		Short: "Weekly review",
	}

	draft := &cobra.Command{
		Use:   "draft",
		Short: "Classify the last week and list the evolution options",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, _ []string) error {
			r, err := a.progress.DraftWeeklyReview(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, r)
		}),
	}

	seal := &cobra.Command{
		Use:   "seal [option]",
		Short: "Apply one of the drafted evolution options",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
			result, err := a.progress.SealWeeklyReview(cmd.Context(), domain.OptionKind(args[0]))
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		}),
	}

	var affirmed []bool
	accept := &cobra.Command{
		Use:   "accept",
		Short: "Accept a suggested stage promotion",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, _ []string) error {
			return a.progress.AcceptPromotion(cmd.Context(), affirmed)
		}),
	}
	accept.Flags().BoolSliceVar(&affirmed, "affirm", nil, "answers to the resonance statements, e.g. true,true,false")

	review.AddCommand(draft, seal, accept)
	return review
}

func newMaintenanceCmd(opts *options) *cobra.Command {
	var identity string

	cmd := &cobra.Command{
		Use:   "maintenance [deepen|evolve|restart]",
		Short: "Decide how to continue after the maintenance stage",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
			return a.progress.ResolveMaintenance(cmd.Context(), domain.MaintenanceContinuation(args[0]), identity)
		}),
	}
	cmd.Flags().StringVar(&identity, "identity", "", "new identity when evolving")
	return cmd
}

func newRepairCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "repair [date]",
		Short: "Recompute the stored score of a past day",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
			score, err := a.progress.RepairScore(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %.2f\n", args[0], score)
			return nil
		}),
	}
}

func newTimezoneCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "timezone [name]",
		Short: "Set the IANA timezone days are counted in, e.g. Europe/Rome",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
			return a.progress.SetTimezone(cmd.Context(), args[0])
		}),
	}
}

type statusView struct {
	UserID      string                 `json:"user_id"`
	Identity    domain.IdentityProfile `json:"identity"`
	Timezone    string                 `json:"timezone,omitempty"`
	Habits      *domain.HabitSet       `json:"habits,omitempty"`
	Today       *domain.DailyLog       `json:"today,omitempty"`
	Resilience  domain.ResilienceState `json:"resilience"`
	Review      domain.ReviewPhase     `json:"review"`
	Premium     bool                   `json:"premium"`
	LastUpdated int64                  `json:"last_updated"`
	Synced      bool                   `json:"synced"`
}

func newStatusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the local replica",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, _ []string) error {
			p, err := a.progress.Snapshot(cmd.Context())
			if err != nil {
				return err
			}
			now := time.Now().In(p.Location())
			today := domain.DateKey(now)
			view := statusView{
				UserID:      p.UserID,
				Identity:    p.Identity,
				Timezone:    p.Settings.Timezone,
				Habits:      p.HabitsFor(today),
				Today:       p.Logs[today],
				Resilience:  p.Resilience,
				Review:      p.Review.Phase,
				Premium:     p.Entitlement.IsValid(now),
				LastUpdated: p.LastUpdated,
			}
			if a.sync != nil && a.sync.Reconciled() {
				view.Synced = a.sync.LastSynced() == p.LastUpdated
			}
			return printJSON(cmd, view)
		}),
	}
}

func newSyncCmd(opts *options) *cobra.Command {
	var watch, pull bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconcile with the replica server and push local changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if !watch {
				if err := a.start(ctx); err != nil {
					return err
				}
				if pull && a.sync != nil {
					if err := a.sync.Pull(ctx); err != nil {
						return a.remoteError(err)
					}
					log.Printf("[SYNC] Local replica replaced by the remote image")
					return nil
				}
				return a.syncOnce(ctx)
			}

			if a.sync == nil {
				return a.syncOnce(ctx)
			}
			worker := workers.NewSyncWorker(a.sync, a.cfg.Client.SyncInterval)
			a.progress.OnChange(worker.Notify)
			if err := a.start(ctx); err != nil {
				return err
			}
			worker.Start(ctx)

			log.Printf("[SYNC] Watching replica for user %s every %s", a.userID, a.cfg.Client.SyncInterval)
			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "keep running and push every change")
	cmd.Flags().BoolVar(&pull, "pull", false, "discard the local replica in favour of the remote one")
	return cmd
}
