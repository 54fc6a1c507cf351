package notice

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"github.com/mcdonaldj/sitebak/internal/statestore"
)

func newCenter(t *testing.T) (*Center, *statestore.Store) {
	t.Helper()
	store := statestore.New(filepath.Join(t.TempDir(), "state.db"))
	return New(store, zerolog.Nop()), store
}

func TestAddAndList(t *testing.T) {
	c, _ := newCenter(t)

	empty, err := c.List()
	require.NoError(t, err)
	assert.Empty(t, empty)

	require.NoError(t, c.Add(LevelError, "upload failed"))
	require.NoError(t, c.Add(LevelInfo, "restore complete"))

	got, err := c.List()
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "upload failed", got[0].Message)
	assert.Equal(t, LevelError, got[0].Level)
	assert.Equal(t, "restore complete", got[1].Message)
	assert.NotEmpty(t, got[0].ID)
	assert.False(t, got[0].CreatedAt.IsZero())
}

func TestPutInsideTransaction(t *testing.T) {
	c, store := newCenter(t)

	require.NoError(t, store.Update(func(tx *bolt.Tx) error {
		return Put(tx, Notice{Level: LevelWarning, Message: "job dropped"})
	}))

	got, err := c.List()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "job dropped", got[0].Message)
	assert.NotEmpty(t, got[0].ID)
}

func TestDismissAndClear(t *testing.T) {
	c, _ := newCenter(t)
	require.NoError(t, c.Add(LevelInfo, "a"))
	require.NoError(t, c.Add(LevelInfo, "b"))

	list, err := c.List()
	require.NoError(t, err)

	ok, err := c.Dismiss(list[0].ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Dismiss("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	list, err = c.List()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "b", list[0].Message)

	require.NoError(t, c.Clear())
	list, err = c.List()
	require.NoError(t, err)
	assert.Empty(t, list)
}
