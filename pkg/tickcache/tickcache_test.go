package tickcache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestCache_PutGet(t *testing.T) {
	c := openTestCache(t)
	at := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)

	c.Put("s:NIFTY", 101.5, at)
	entry, ok := c.Get("s:NIFTY")
	require.True(t, ok)
	require.Equal(t, 101.5, entry.Price)
	require.True(t, entry.At.Equal(at))

	_, ok = c.Get("s:UNKNOWN")
	require.False(t, ok)
}

func TestCache_PutOverwrites(t *testing.T) {
	c := openTestCache(t)
	at := time.Now()

	c.Put("s:NIFTY", 100, at)
	c.Put("s:NIFTY", 102, at.Add(time.Second))
	entry, ok := c.Get("s:NIFTY")
	require.True(t, ok)
	require.Equal(t, float64(102), entry.Price)
}

func TestCache_InvalidPutIgnored(t *testing.T) {
	c := openTestCache(t)

	c.Put("", 100, time.Now())
	c.Put("s:NIFTY", 0, time.Now())
	c.Put("s:NIFTY", -1, time.Now())
	_, ok := c.Get("s:NIFTY")
	require.False(t, ok)
}

func TestCache_Walk(t *testing.T) {
	c := openTestCache(t)
	at := time.Now()
	c.Put("s:NIFTY", 100, at)
	c.Put("s:BANKNIFTY", 200, at)

	seen := map[string]float64{}
	require.NoError(t, c.Walk(func(key string, entry Entry) {
		seen[key] = entry.Price
	}))
	require.Len(t, seen, 2)
	require.Equal(t, float64(100), seen["s:NIFTY"])
	require.Equal(t, float64(200), seen["s:BANKNIFTY"])
}
