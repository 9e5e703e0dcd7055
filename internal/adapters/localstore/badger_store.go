package localstore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/comitanigiacomo/kanso-resilience-engine/internal/core/domain"
)

var _ domain.LocalStore = (*BadgerStore)(nil)

type Config struct {
	// Path is the database directory. Required unless InMemory.
	Path string

	InMemory bool

	// SyncWrites fsyncs every write. The replica blob is small, so this is on
	// by default.
	SyncWrites bool

	// Verbose forwards badger's own logging to the standard logger.
	Verbose bool

	GCInterval     time.Duration
	GCDiscardRatio float64
}

func DefaultConfig(path string) Config {
	return Config{
		Path:           path,
		SyncWrites:     true,
		GCInterval:     10 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

func InMemoryConfig() Config {
	return Config{InMemory: true}
}

type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...interface{}) {
	log.Printf("[STORE] badger error: "+format, args...)
}

func (badgerLogger) Warningf(format string, args ...interface{}) {
	log.Printf("[STORE] badger warning: "+format, args...)
}

func (badgerLogger) Infof(string, ...interface{})  {}
func (badgerLogger) Debugf(string, ...interface{}) {}

// BadgerStore is the durable LocalStore. Each Set is its own transaction, so
// readers see either the previous blob or the new one.
type BadgerStore struct {
	db     *badger.DB
	stopGC chan struct{}
	gcDone chan struct{}
}

func OpenBadgerStore(cfg Config) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("localstore: path is required for a persistent store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("localstore: create directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}

	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Verbose {
		opts = opts.WithLogger(badgerLogger{})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("localstore: open badger: %w", err)
	}

	s := &BadgerStore{db: db}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.stopGC = make(chan struct{})
		s.gcDone = make(chan struct{})
		go s.runGC(cfg.GCInterval, cfg.GCDiscardRatio)
	}
	return s, nil
}

func (s *BadgerStore) runGC(interval time.Duration, ratio float64) {
	defer close(s.gcDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopGC:
			return
		case <-ticker.C:
			if err := s.db.RunValueLogGC(ratio); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				log.Printf("[STORE] Value log GC failed: %v", err)
			}
		}
	}
}

func (s *BadgerStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("localstore: get %s: %w", key, err)
	}
	return out, nil
}

func (s *BadgerStore) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("localstore: set %s: %w", key, err)
	}
	return nil
}

func (s *BadgerStore) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("localstore: remove %s: %w", key, err)
	}
	return nil
}

func (s *BadgerStore) Close() error {
	if s.stopGC != nil {
		close(s.stopGC)
		<-s.gcDone
	}
	return s.db.Close()
}
