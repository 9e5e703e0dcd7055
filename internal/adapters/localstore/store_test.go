package localstore

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comitanigiacomo/kanso-resilience-engine/internal/core/domain"
)

func exerciseLocalStore(t *testing.T, store domain.LocalStore) {
	ctx := context.Background()

	t.Run("Fail: Should report a missing key", func(t *testing.T) {
		_, err := store.Get(ctx, "progress:nobody")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("Success: Last write wins", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "progress:u1", []byte(`{"v":1}`)))
		require.NoError(t, store.Set(ctx, "progress:u1", []byte(`{"v":2}`)))

		got, err := store.Get(ctx, "progress:u1")
		require.NoError(t, err)
		assert.Equal(t, `{"v":2}`, string(got))
	})

	t.Run("Success: Returned blobs are copies", func(t *testing.T) {
		value := []byte("abc")
		require.NoError(t, store.Set(ctx, "copy", value))
		value[0] = 'z'

		got, err := store.Get(ctx, "copy")
		require.NoError(t, err)
		got[1] = 'z'

		again, err := store.Get(ctx, "copy")
		require.NoError(t, err)
		assert.Equal(t, "abc", string(again))
	})

	t.Run("Success: Remove is idempotent", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "gone", []byte("x")))
		require.NoError(t, store.Remove(ctx, "gone"))
		require.NoError(t, store.Remove(ctx, "gone"))

		_, err := store.Get(ctx, "gone")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("Success: Concurrent writers never tear a value", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				assert.NoError(t, store.Set(ctx, "race", []byte(fmt.Sprintf("value-%02d", i))))
			}(i)
		}
		wg.Wait()

		got, err := store.Get(ctx, "race")
		require.NoError(t, err)
		assert.Regexp(t, `^value-\d{2}$`, string(got))
	})
}

func TestMemoryStore(t *testing.T) {
	exerciseLocalStore(t, NewMemoryStore())
}

func TestBadgerStore(t *testing.T) {
	t.Run("In memory", func(t *testing.T) {
		store, err := OpenBadgerStore(InMemoryConfig())
		require.NoError(t, err)
		defer store.Close()

		exerciseLocalStore(t, store)
	})

	t.Run("Success: Should survive a reopen", func(t *testing.T) {
		dir := t.TempDir()
		ctx := context.Background()

		store, err := OpenBadgerStore(DefaultConfig(dir))
		require.NoError(t, err)
		require.NoError(t, store.Set(ctx, "progress:u1", []byte(`{"last_updated":42}`)))
		require.NoError(t, store.Close())

		reopened, err := OpenBadgerStore(DefaultConfig(dir))
		require.NoError(t, err)
		defer reopened.Close()

		got, err := reopened.Get(ctx, "progress:u1")
		require.NoError(t, err)
		assert.JSONEq(t, `{"last_updated":42}`, string(got))
	})

	t.Run("Fail: Should require a path", func(t *testing.T) {
		_, err := OpenBadgerStore(Config{})
		assert.Error(t, err)
	})

	t.Run("Fail: Should honor a cancelled context", func(t *testing.T) {
		store, err := OpenBadgerStore(InMemoryConfig())
		require.NoError(t, err)
		defer store.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, store.Set(ctx, "k", []byte("v")), context.Canceled)
	})
}
