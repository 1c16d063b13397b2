package handoff

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relawan/internal/platform/metrics"
)

// countingStore wraps a store and counts Clear calls per session.
type countingStore struct {
	Store
	mu      sync.Mutex
	clears  map[string]int
	peekErr error
}

func newCountingStore() *countingStore {
	return &countingStore{Store: NewMemoryStore(time.Minute), clears: map[string]int{}}
}

func (s *countingStore) Peek(ctx context.Context, session string) (Marker, error) {
	if s.peekErr != nil {
		return Marker{}, s.peekErr
	}
	return s.Store.Peek(ctx, session)
}

func (s *countingStore) Clear(ctx context.Context, session string) error {
	s.mu.Lock()
	s.clears[session]++
	s.mu.Unlock()
	return s.Store.Clear(ctx, session)
}

func (s *countingStore) clearCount(session string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clears[session]
}

func TestWriterAndScope(t *testing.T) {
	ctx := context.Background()
	store := newCountingStore()
	m := metrics.New(prometheus.NewRegistry())

	require.NoError(t, NewWriter(store, "sess-1", m).Complete(ctx, "abc123"))

	var seen Marker
	err := Scope(ctx, store, "sess-1", m, func(marker Marker) error {
		seen = marker
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, Marker{Completed: true, RegistrationID: "abc123"}, seen)
	assert.Equal(t, 1, store.clearCount("sess-1"))

	after, err := store.Peek(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, Marker{}, after)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HandoffOperations.WithLabelValues("set", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HandoffOperations.WithLabelValues("clear", "ok")))
}

func TestScopeClearsOnEveryExitPath(t *testing.T) {
	ctx := context.Background()

	t.Run("no identifier was ever set", func(t *testing.T) {
		store := newCountingStore()
		var seen Marker
		require.NoError(t, Scope(ctx, store, "s", nil, func(m Marker) error {
			seen = m
			return nil
		}))
		assert.Equal(t, Marker{}, seen)
		assert.Equal(t, 1, store.clearCount("s"))
	})

	t.Run("fn fails", func(t *testing.T) {
		store := newCountingStore()
		boom := errors.New("boom")
		err := Scope(ctx, store, "s", nil, func(Marker) error { return boom })
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, store.clearCount("s"))
	})

	t.Run("fn panics", func(t *testing.T) {
		store := newCountingStore()
		assert.PanicsWithValue(t, "render failed", func() {
			_ = Scope(ctx, store, "s", nil, func(Marker) error { panic("render failed") })
		})
		assert.Equal(t, 1, store.clearCount("s"))
	})

	t.Run("read fails", func(t *testing.T) {
		store := newCountingStore()
		store.peekErr = errors.New("redis down")
		called := false
		err := Scope(ctx, store, "s", nil, func(Marker) error {
			called = true
			return nil
		})
		assert.ErrorIs(t, err, store.peekErr)
		assert.False(t, called)
		assert.Equal(t, 1, store.clearCount("s"))
	})
}

func TestLeaseReleaseIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newCountingStore()
	require.NoError(t, store.Set(ctx, "s", Marker{Completed: true, RegistrationID: "id-1"}))

	lease, err := Acquire(ctx, store, "s", nil)
	require.NoError(t, err)
	assert.Equal(t, "id-1", lease.Marker().RegistrationID)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = lease.Release(ctx)
		}()
	}
	wg.Wait()
	require.NoError(t, lease.Release(ctx))

	assert.Equal(t, 1, store.clearCount("s"))
}

func TestReleaseSurvivesCancelledContext(t *testing.T) {
	store := newCountingStore()
	ctx, cancel := context.WithCancel(context.Background())
	lease, err := Acquire(ctx, store, "s", nil)
	require.NoError(t, err)

	cancel()
	require.NoError(t, lease.Release(ctx))
	assert.Equal(t, 1, store.clearCount("s"))
}
