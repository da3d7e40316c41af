package archive

import (
	"testing"

	"github.com/pallas-trace/pallas/thread"
	"github.com/stretchr/testify/require"
)

func TestAddStringDedupsByRef(t *testing.T) {
	g := NewGlobalArchive(nil)

	require.NoError(t, g.AddString(1, "hello"))
	err := g.AddString(1, "world")
	require.Error(t, err)
	require.Equal(t, 1, g.CollisionCount())

	got, ok := g.GetString(1)
	require.True(t, ok)
	require.Equal(t, "hello", got)
}

func TestArchiveFallsThroughToGlobal(t *testing.T) {
	g := NewGlobalArchive(nil)
	require.NoError(t, g.AddString(1, "global-string"))

	a := g.NewArchive(7)
	require.NoError(t, a.AddString(2, "local-string"))

	got, ok := a.GetString(2)
	require.True(t, ok)
	require.Equal(t, "local-string", got)

	got, ok = a.GetString(1)
	require.True(t, ok)
	require.Equal(t, "global-string", got)

	_, ok = a.GetString(99)
	require.False(t, ok)
}

func TestArchiveForLocationWalksParentChain(t *testing.T) {
	g := NewGlobalArchive(nil)
	// The outermost LocationGroup in a Location's parent chain is the
	// process-level group; its id is the same id the owning Archive was
	// created with.
	a := g.NewArchive(100)

	require.NoError(t, g.DefineLocationGroup(100, "node0", 0, false))
	require.NoError(t, g.DefineLocation(1, "thread0", 100))

	got, err := g.ArchiveForLocation(1)
	require.NoError(t, err)
	require.Equal(t, a, got)

	_, err = g.ArchiveForLocation(999)
	require.Error(t, err)
}

func TestArchiveThreadRegistryAndEviction(t *testing.T) {
	g := NewGlobalArchive(nil)
	a := g.NewArchive(1)
	a.cacheSize = 2

	t0 := a.NewThread(thread.ID(0), nil)
	a.NewThread(thread.ID(1), nil)
	a.NewThread(thread.ID(2), nil)

	// id 0 was least-recently-used and should have been evicted once a
	// third thread pushed the cache past its bound.
	_, err := a.GetThread(thread.ID(0))
	require.Error(t, err)

	_, err = a.GetThread(thread.ID(2))
	require.NoError(t, err)

	require.NotNil(t, t0)
	require.Len(t, a.Threads(), 2)
}

func TestArchiveCloseMarksClosed(t *testing.T) {
	g := NewGlobalArchive(nil)
	a := g.NewArchive(1)

	require.False(t, a.Closed())
	a.Close()
	require.True(t, a.Closed())
}
