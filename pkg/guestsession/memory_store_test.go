package guestsession_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/guestkit/pkg/guestsession"
)

// fakeMedium is an in-memory Medium with failure injection and an optional
// external change channel.
type fakeMedium struct {
	mu       sync.Mutex
	data     []byte
	saves    int
	failNext int // number of upcoming saves that should fail
	watchCh  chan struct{}
}

func (m *fakeMedium) Load(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data, nil
}

func (m *fakeMedium) Save(ctx context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.failNext > 0 {
		m.failNext--
		return fmt.Errorf("medium full")
	}
	m.data = append([]byte(nil), data...)
	return nil
}

func (m *fakeMedium) Watch(ctx context.Context) (<-chan struct{}, error) {
	return m.watchCh, nil
}

func (m *fakeMedium) setData(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = append([]byte(nil), data...)
}

func (m *fakeMedium) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

func newStore(t *testing.T, opts ...guestsession.StoreOption) *guestsession.MemoryStore {
	t.Helper()
	store, err := guestsession.NewMemoryStore(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestMemoryStore_CRUD(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	sess := guestsession.NewSession(testVisit(), time.Hour)
	require.NoError(t, store.Put(ctx, sess))

	t.Run("get returns a copy", func(t *testing.T) {
		got, err := store.Get(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, sess.ID, got.ID)

		got.OrderCount = 99
		again, err := store.Get(ctx, sess.ID)
		require.NoError(t, err)
		assert.Zero(t, again.OrderCount)
	})

	t.Run("get unknown id", func(t *testing.T) {
		_, err := store.Get(ctx, uuid.New())
		assert.ErrorIs(t, err, guestsession.ErrSessionNotFound)
	})

	t.Run("update replaces fields", func(t *testing.T) {
		updated, err := store.Get(ctx, sess.ID)
		require.NoError(t, err)
		updated.OrderCount = 2
		updated.TotalSpent = 36.00
		require.NoError(t, store.Update(ctx, updated))

		got, err := store.Get(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, got.OrderCount)
		assert.InDelta(t, 36.00, got.TotalSpent, 0.001)
	})

	t.Run("update unknown id", func(t *testing.T) {
		ghost := guestsession.NewSession(testVisit(), time.Hour)
		assert.ErrorIs(t, store.Update(ctx, ghost), guestsession.ErrSessionNotFound)
	})

	t.Run("update activity", func(t *testing.T) {
		at := time.Now().Add(time.Minute)
		require.NoError(t, store.UpdateActivity(ctx, sess.ID, at))

		got, err := store.Get(ctx, sess.ID)
		require.NoError(t, err)
		assert.WithinDuration(t, at, got.LastActivity, time.Millisecond)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, sess.ID))
		require.NoError(t, store.Delete(ctx, sess.ID))

		_, err := store.Get(ctx, sess.ID)
		assert.ErrorIs(t, err, guestsession.ErrSessionNotFound)
	})
}

func TestMemoryStore_LazyExpiry(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	sess := guestsession.NewSession(testVisit(), -time.Minute)
	require.NoError(t, store.Put(ctx, sess))

	t.Run("get reports expired and removes", func(t *testing.T) {
		_, err := store.Get(ctx, sess.ID)
		assert.ErrorIs(t, err, guestsession.ErrSessionExpired)

		_, err = store.Get(ctx, sess.ID)
		assert.ErrorIs(t, err, guestsession.ErrSessionNotFound)
	})
}

func TestMemoryStore_Indices(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	fp := "deadbeefdeadbeefdeadbeefdeadbeef"
	mk := func(storeID, tableID string) *guestsession.Session {
		v := testVisit()
		v.StoreID = storeID
		v.TableID = tableID
		v.Fingerprint = fp
		sess := guestsession.NewSession(v, time.Hour)
		require.NoError(t, store.Put(ctx, sess))
		return sess
	}

	s1 := mk("store-a", "t1")
	s2 := mk("store-b", "t1")
	mk("store-a", "t2")

	t.Run("by fingerprint and store", func(t *testing.T) {
		got, err := store.ByFingerprint(ctx, fp, "store-b")
		require.NoError(t, err)
		assert.Equal(t, s2.ID, got.ID)

		_, err = store.ByFingerprint(ctx, fp, "store-c")
		assert.ErrorIs(t, err, guestsession.ErrSessionNotFound)
	})

	t.Run("active by fingerprint spans stores", func(t *testing.T) {
		got, err := store.ActiveByFingerprint(ctx, fp)
		require.NoError(t, err)
		assert.Len(t, got, 3)
	})

	t.Run("active by store", func(t *testing.T) {
		got, err := store.ActiveByStore(ctx, "store-a")
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("active by table", func(t *testing.T) {
		got, err := store.ActiveByTable(ctx, "t1")
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("results sorted by creation time", func(t *testing.T) {
		got, err := store.ActiveByTable(ctx, "t1")
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.False(t, got[1].CreatedAt.Before(got[0].CreatedAt))
	})

	t.Run("delete removes from every index", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, s1.ID))

		byStore, err := store.ActiveByStore(ctx, "store-a")
		require.NoError(t, err)
		assert.Len(t, byStore, 1)

		byTable, err := store.ActiveByTable(ctx, "t1")
		require.NoError(t, err)
		assert.Len(t, byTable, 1)

		byFp, err := store.ActiveByFingerprint(ctx, fp)
		require.NoError(t, err)
		assert.Len(t, byFp, 2)
	})

	t.Run("expired filtered from listings without deletion", func(t *testing.T) {
		v := testVisit()
		v.StoreID = "store-a"
		v.Fingerprint = fp
		dead := guestsession.NewSession(v, -time.Minute)
		require.NoError(t, store.Put(ctx, dead))

		got, err := store.ActiveByStore(ctx, "store-a")
		require.NoError(t, err)
		assert.Len(t, got, 1)

		stats, err := store.Stats(ctx)
		require.NoError(t, err)
		assert.Greater(t, stats.Total, stats.Active)
	})
}

func TestMemoryStore_Cleanup(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	require.NoError(t, store.Put(ctx, guestsession.NewSession(testVisit(), -2*time.Hour)))
	require.NoError(t, store.Put(ctx, guestsession.NewSession(testVisit(), -2*time.Hour)))
	keeper := guestsession.NewSession(testVisit(), time.Hour)
	require.NoError(t, store.Put(ctx, keeper))

	removed, err := store.Cleanup(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
	assert.WithinDuration(t, time.Now(), stats.LastCleanup, time.Second)

	_, err = store.Get(ctx, keeper.ID)
	assert.NoError(t, err)
}

func TestMemoryStore_Stats(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	v := testVisit()
	require.NoError(t, store.Put(ctx, guestsession.NewSession(v, time.Hour)))

	auth := testVisit()
	auth.CustomerID = "cust-1"
	require.NoError(t, store.Put(ctx, guestsession.NewSession(auth, time.Hour)))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 2, stats.Active)
	assert.Equal(t, 1, stats.Authenticated)
	assert.Equal(t, 1, stats.Anonymous)
	assert.Equal(t, int64(2), stats.TotalCreated)
	assert.Equal(t, 2, stats.ByStore["store-1"])
}

func TestMemoryStore_Persistence(t *testing.T) {
	ctx := context.Background()

	t.Run("snapshot survives restart", func(t *testing.T) {
		medium := &fakeMedium{}
		first := newStore(t, guestsession.WithMedium(medium))

		sess := guestsession.NewSession(testVisit(), time.Hour)
		sess.OrderCount = 3
		require.NoError(t, first.Put(ctx, sess))
		require.NoError(t, first.Close())

		second := newStore(t, guestsession.WithMedium(medium))
		got, err := second.Get(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, got.OrderCount)
		assert.WithinDuration(t, sess.ExpiresAt, got.ExpiresAt, time.Millisecond)

		stats, err := second.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), stats.TotalCreated)
	})

	t.Run("incompatible snapshot version starts empty", func(t *testing.T) {
		medium := &fakeMedium{}
		medium.setData([]byte(`{"sessions":{},"metadata":{"version":"0","total_created":7}}`))

		store := newStore(t, guestsession.WithMedium(medium))
		stats, err := store.Stats(ctx)
		require.NoError(t, err)
		assert.Zero(t, stats.Total)
		assert.Zero(t, stats.TotalCreated)
	})

	t.Run("cleanup timestamp persists without removals", func(t *testing.T) {
		medium := &fakeMedium{}
		first := newStore(t, guestsession.WithMedium(medium))

		_, err := first.Cleanup(ctx, time.Now().Add(-time.Hour))
		require.NoError(t, err)

		// A second instance rehydrating from the same medium sees the sweep
		// time even though the sweep removed nothing.
		second := newStore(t, guestsession.WithMedium(medium))
		stats, err := second.Stats(ctx)
		require.NoError(t, err)
		assert.WithinDuration(t, time.Now(), stats.LastCleanup, time.Second)
	})

	t.Run("corrupt snapshot starts empty", func(t *testing.T) {
		medium := &fakeMedium{}
		medium.setData([]byte(`{not json`))

		store := newStore(t, guestsession.WithMedium(medium))
		stats, err := store.Stats(ctx)
		require.NoError(t, err)
		assert.Zero(t, stats.Total)
	})
}

func TestMemoryStore_SaveFailureEvictsOldestHalf(t *testing.T) {
	ctx := context.Background()
	medium := &fakeMedium{}
	store := newStore(t, guestsession.WithMedium(medium))

	var sessions []*guestsession.Session
	for i := range 4 {
		sess := guestsession.NewSession(testVisit(), time.Hour)
		sess.CreatedAt = time.Now().Add(time.Duration(i) * time.Minute)
		require.NoError(t, store.Put(ctx, sess))
		sessions = append(sessions, sess)
	}

	// Next save fails once; the store evicts the oldest half and retries.
	medium.mu.Lock()
	medium.failNext = 1
	medium.mu.Unlock()

	victim := guestsession.NewSession(testVisit(), time.Hour)
	victim.CreatedAt = time.Now().Add(time.Hour)
	require.NoError(t, store.Put(ctx, victim))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)

	// The two oldest are gone, the newest survive.
	_, err = store.Get(ctx, sessions[0].ID)
	assert.ErrorIs(t, err, guestsession.ErrSessionNotFound)
	_, err = store.Get(ctx, sessions[1].ID)
	assert.ErrorIs(t, err, guestsession.ErrSessionNotFound)
	_, err = store.Get(ctx, sessions[3].ID)
	assert.NoError(t, err)
	_, err = store.Get(ctx, victim.ID)
	assert.NoError(t, err)
}

func TestMemoryStore_MemoryOnlyAfterDoubleFailure(t *testing.T) {
	ctx := context.Background()
	medium := &fakeMedium{}
	store := newStore(t, guestsession.WithMedium(medium))

	medium.mu.Lock()
	medium.failNext = 2
	medium.mu.Unlock()

	sess := guestsession.NewSession(testVisit(), time.Hour)
	require.NoError(t, store.Put(ctx, sess))

	saves := medium.saveCount()
	require.NoError(t, store.Put(ctx, guestsession.NewSession(testVisit(), time.Hour)))

	// No further save attempts once memory-only.
	assert.Equal(t, saves, medium.saveCount())

	// Reads and writes keep working.
	_, err := store.Get(ctx, sess.ID)
	assert.NoError(t, err)
}

func TestMemoryStore_CloseStopsWatch(t *testing.T) {
	// The medium never closes its watch channel; Close must still return.
	watch := make(chan struct{})
	store, err := guestsession.NewMemoryStore(guestsession.WithMedium(&fakeMedium{watchCh: watch}))
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = store.Close()
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close did not return while the watch channel stayed open")
	}
}

func TestMemoryStore_ResyncFromWatch(t *testing.T) {
	ctx := context.Background()

	// Writer instance produces the snapshot another instance will pick up.
	writerMedium := &fakeMedium{}
	writer := newStore(t, guestsession.WithMedium(writerMedium))

	sess := guestsession.NewSession(testVisit(), time.Hour)
	require.NoError(t, writer.Put(ctx, sess))
	require.NoError(t, writer.Close())

	// Reader starts empty and learns about the session via Watch.
	watch := make(chan struct{}, 1)
	readerMedium := &fakeMedium{watchCh: watch}
	reader := newStore(t, guestsession.WithMedium(readerMedium))

	_, err := reader.Get(ctx, sess.ID)
	require.ErrorIs(t, err, guestsession.ErrSessionNotFound)

	data, err := writerMedium.Load(ctx)
	require.NoError(t, err)
	readerMedium.setData(data)
	watch <- struct{}{}

	require.Eventually(t, func() bool {
		_, err := reader.Get(ctx, sess.ID)
		return err == nil
	}, time.Second, 10*time.Millisecond)
}
