package guestsession_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/guestkit/pkg/guestsession"
)

func TestFileMedium(t *testing.T) {
	ctx := context.Background()

	t.Run("load before first save", func(t *testing.T) {
		m := guestsession.NewFileMedium(filepath.Join(t.TempDir(), "snap.json"))

		data, err := m.Load(ctx)
		require.NoError(t, err)
		assert.Nil(t, data)
	})

	t.Run("save and load round trip", func(t *testing.T) {
		m := guestsession.NewFileMedium(filepath.Join(t.TempDir(), "snap.json"))

		require.NoError(t, m.Save(ctx, []byte(`{"sessions":{}}`)))
		data, err := m.Load(ctx)
		require.NoError(t, err)
		assert.JSONEq(t, `{"sessions":{}}`, string(data))
	})

	t.Run("creates parent directories", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "dir", "snap.json")
		m := guestsession.NewFileMedium(path)

		require.NoError(t, m.Save(ctx, []byte("x")))
		_, err := os.Stat(path)
		assert.NoError(t, err)
	})

	t.Run("save leaves no temp file behind", func(t *testing.T) {
		dir := t.TempDir()
		m := guestsession.NewFileMedium(filepath.Join(dir, "snap.json"))

		require.NoError(t, m.Save(ctx, []byte("x")))
		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "snap.json", entries[0].Name())
	})

	t.Run("no change detection", func(t *testing.T) {
		m := guestsession.NewFileMedium(filepath.Join(t.TempDir(), "snap.json"))

		ch, err := m.Watch(ctx)
		require.NoError(t, err)
		assert.Nil(t, ch)
	})
}

func TestFileMedium_StorePersistence(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sessions.json")

	first, err := guestsession.NewMemoryStore(guestsession.WithMedium(guestsession.NewFileMedium(path)))
	require.NoError(t, err)

	sess := guestsession.NewSession(testVisit(), time.Hour)
	require.NoError(t, first.Put(ctx, sess))
	require.NoError(t, first.Close())

	second, err := guestsession.NewMemoryStore(guestsession.WithMedium(guestsession.NewFileMedium(path)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.Close() })

	got, err := second.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.Fingerprint, got.Fingerprint)
	assert.WithinDuration(t, sess.CreatedAt, got.CreatedAt, time.Millisecond)
	assert.WithinDuration(t, sess.ExpiresAt, got.ExpiresAt, time.Millisecond)
}
