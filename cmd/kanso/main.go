package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/comitanigiacomo/kanso-resilience-engine/internal/adapters/generator"
	"github.com/comitanigiacomo/kanso-resilience-engine/internal/adapters/localstore"
	"github.com/comitanigiacomo/kanso-resilience-engine/internal/adapters/remote"
	"github.com/comitanigiacomo/kanso-resilience-engine/internal/config"
	"github.com/comitanigiacomo/kanso-resilience-engine/internal/core/domain"
	"github.com/comitanigiacomo/kanso-resilience-engine/internal/core/replica"
	"github.com/comitanigiacomo/kanso-resilience-engine/internal/core/services"
)

const defaultUserID = "local"

// options are the persistent flags shared by every subcommand.
type options struct {
	configFile string
	dataDir    string
	userID     string
	sync       bool
}

// app is one open local replica.
type app struct {
	cfg      *config.Config
	userID   string
	store    *localstore.BadgerStore
	progress *services.ProgressService
	sync     *replica.Synchronizer
	cancel   context.CancelFunc
}

func (a *app) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if err := a.store.Close(); err != nil {
		log.Printf("[STORE] Close failed: %v", err)
	}
}

func openApp(opts *options) (*app, error) {
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return nil, err
	}

	userID := opts.userID
	if userID == "" {
		userID = cfg.Client.UserID
	}
	if userID == "" {
		userID = defaultUserID
	}

	dir := opts.dataDir
	if dir == "" {
		dir = cfg.Client.DataDir
	}
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve data directory: %w", err)
		}
		dir = filepath.Join(home, ".kanso")
	}

	store, err := localstore.OpenBadgerStore(localstore.DefaultConfig(filepath.Join(dir, userID)))
	if err != nil {
		return nil, err
	}

	var gen domain.ContentGenerator
	if cfg.Generator.APIKey != "" {
		openai, err := generator.NewOpenAIGenerator(cfg.Generator)
		if err != nil {
			store.Close()
			return nil, err
		}
		gen = generator.WrapWithRateLimit(openai, cfg.Generator.RatePerMinute, 2)
	}
	content, err := services.NewContentService(gen, cfg.Generator.CacheSize)
	if err != nil {
		store.Close()
		return nil, err
	}

	progress := services.NewProgressService(userID, store, content)

	a := &app{
		cfg:      cfg,
		userID:   userID,
		store:    store,
		progress: progress,
	}
	if cfg.Client.RemoteURL != "" && cfg.Client.Token != "" {
		a.sync = replica.NewSynchronizer(userID, progress, remote.NewHTTPStore(cfg.Client.RemoteURL, cfg.Client.Token, nil))
	}
	return a, nil
}

// start launches the progress service. Listeners must be registered first.
func (a *app) start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)
	return a.progress.Start(ctx)
}

// syncOnce reconciles and pushes. A remote outage leaves the local replica
// authoritative until the next sync, so it is reported but not fatal.
func (a *app) syncOnce(ctx context.Context) error {
	if a.sync == nil {
		return errors.New("sync is not configured: set KANSO_REMOTE_URL and KANSO_TOKEN")
	}
	if !a.sync.Reconciled() {
		action, err := a.sync.Reconcile(ctx)
		if err != nil {
			return a.remoteError(err)
		}
		log.Printf("[SYNC] Reconciled: %s", action)
	}
	outcome, err := a.sync.Push(ctx, false)
	if err != nil {
		return a.remoteError(err)
	}
	log.Printf("[SYNC] Push %s", outcome)
	return nil
}

func (a *app) remoteError(err error) error {
	if remote.IsTransient(err) {
		log.Printf("[SYNC] Remote unavailable, changes kept locally: %v", err)
		return nil
	}
	return err
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "kanso",
		Short: "Local-first habit resilience tracker",
		Long: `kanso keeps your identity, habits and resilience state in a local
replica and synchronizes it with a Kanso replica server.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "optional config file (yaml, json or toml)")
	root.PersistentFlags().StringVar(&opts.dataDir, "data-dir", "", "local replica directory (default ~/.kanso)")
	root.PersistentFlags().StringVar(&opts.userID, "user", "", "user id of the local replica")
	root.PersistentFlags().BoolVar(&opts.sync, "sync", false, "reconcile before and push after the command")

	root.AddCommand(
		newOnboardCmd(opts),
		newCompleteCmd(opts),
		newEnergyCmd(opts),
		newNoteCmd(opts),
		newRolloverCmd(opts),
		newRecoverCmd(opts),
		newFreezeCmd(opts),
		newAdaptCmd(opts),
		newReviewCmd(opts),
		newMaintenanceCmd(opts),
		newRepairCmd(opts),
		newTimezoneCmd(opts),
		newStatusCmd(opts),
		newSyncCmd(opts),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
