package cache

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/go-defuse/pkg/goal"
)

func keys(ids ...int) []goal.StoredKey {
	r := make([]goal.StoredKey, 0, len(ids))
	for _, id := range ids {
		r = append(r, goal.StoredKey{Session: "s", Type: goal.TypeIntraMethod, DefID: id, UseID: id})
	}
	return r
}

func TestLRUCache_Basic(t *testing.T) {
	c := New(Options{MaxSize: 3})

	c.Set("a", keys(1))
	c.Set("b", keys(2, 3))
	c.Set("c", keys())

	assert.Equal(t, 3, c.Len())

	val, found := c.Get("b")
	require.True(t, found)
	require.Len(t, val, 2)
	assert.Equal(t, 3, val[1].DefID)
	assert.Empty(t, val[0].Session, "sessions are not cached")
}

func TestLRUCache_GetReturnsCopy(t *testing.T) {
	c := New(Options{})
	c.Set("a", keys(1))

	val, _ := c.Get("a")
	val[0].DefID = 99

	again, _ := c.Get("a")
	assert.Equal(t, 1, again[0].DefID)
}

func TestLRUCache_LRU_Eviction(t *testing.T) {
	var evicted []string
	c := New(Options{MaxSize: 3, OnEvict: func(key string) { evicted = append(evicted, key) }})

	c.Set("a", keys(1))
	c.Set("b", keys(2))
	c.Set("c", keys(3))

	// Access 'a' to make it most recently used
	c.Get("a")

	// Add new item - should evict 'b' (least recently used)
	c.Set("d", keys(4))

	assert.Equal(t, 3, c.Len())
	assert.Equal(t, []string{"b"}, evicted)

	_, found := c.Get("b")
	assert.False(t, found, "b should have been evicted")

	_, found = c.Get("a")
	assert.True(t, found, "a should still be present")

	_, found = c.Get("c")
	assert.True(t, found, "c should still be present")

	_, found = c.Get("d")
	assert.True(t, found, "d should be present")
}

func TestLRUCache_Delete(t *testing.T) {
	c := New(Options{MaxSize: 10})

	c.Set("a", keys(1))
	c.Set("b", keys(2))

	require.NoError(t, c.Delete("a"))
	assert.ErrorIs(t, c.Delete("a"), ErrKeyNotFound)

	assert.Equal(t, 1, c.Len())

	_, found := c.Get("a")
	assert.False(t, found)

	val, found := c.Get("b")
	require.True(t, found)
	assert.Equal(t, 2, val[0].UseID)
}

func TestLRUCache_Clear(t *testing.T) {
	c := New(Options{MaxSize: 10})

	c.Set("a", keys(1))
	c.Set("b", keys(2))

	c.Clear()

	assert.Equal(t, 0, c.Len())
}

func TestLRUCache_Update(t *testing.T) {
	c := New(Options{MaxSize: 10})

	c.Set("a", keys(1))
	c.Set("a", keys(2))

	val, found := c.Get("a")
	require.True(t, found)
	assert.Equal(t, 2, val[0].DefID)

	assert.Equal(t, 1, c.Len())
}

func TestLRUCache_SaveLoad(t *testing.T) {
	c := New(Options{MaxSize: 10})
	c.Set("old", keys(1))
	c.Set("new", keys(2, 3))

	var buf bytes.Buffer
	require.NoError(t, c.Save(&buf))

	c2 := New(Options{MaxSize: 1})
	require.NoError(t, c2.Load(&buf))

	assert.Equal(t, 1, c2.Len(), "loading keeps the most recent entries within the limit")
	val, found := c2.Get("new")
	require.True(t, found)
	assert.Len(t, val, 2)
}

func TestLRUCache_LoadGarbage(t *testing.T) {
	c := New(Options{})
	assert.Error(t, c.Load(bytes.NewBufferString("not msgpack")))
}

func TestLRUCache_PersistToDir(t *testing.T) {
	dir := t.TempDir()

	c := New(Options{})
	require.NoError(t, LoadFromDir(c, dir), "a missing cache file is not an error")

	c.Set("fp", keys(7))
	require.NoError(t, PersistToDir(c, dir))

	c2 := New(Options{})
	require.NoError(t, LoadFromDir(c2, dir))
	val, found := c2.Get("fp")
	require.True(t, found)
	assert.Equal(t, 7, val[0].DefID)
}

func TestLRUCache_Stats(t *testing.T) {
	c := New(Options{})
	assert.Equal(t, 0.0, c.HitRate())

	c.Set("a", keys(1))
	c.Get("a")
	c.Get("missing")

	s := c.Stats()
	assert.Equal(t, int64(1), s.HitCount)
	assert.Equal(t, int64(1), s.MissCount)
	assert.Equal(t, 1, s.Length)
	assert.Equal(t, 0.5, c.HitRate())
}
