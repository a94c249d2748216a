package cache

import (
	"context"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTTLGetSet(t *testing.T) {
	c := NewTTL[string, int](2, time.Minute)
	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)
	_, ok = c.Get("a")
	assert.False(t, ok, "超出容量时淘汰最久未使用的条目")
	v, ok := c.Get("c")
	assert.True(t, ok)
	assert.Equal(t, 3, v)

	c.Remove("c")
	assert.Equal(t, 1, c.Len())
	s := c.Stats()
	assert.Equal(t, uint64(1), s.Hits)
	assert.Equal(t, uint64(2), s.Misses)
}

func TestTTLExpire(t *testing.T) {
	c := NewTTL[int, string](0, 30*time.Millisecond)
	c.Set(1, "x")
	assert.Eventually(t, func() bool {
		_, ok := c.Get(1)
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestGetOrLoad(t *testing.T) {
	c := NewTTL[string, string](10, time.Minute)
	var loads atomic.Int32
	release := make(chan struct{})
	load := func(context.Context) (string, error) {
		loads.Add(1)
		<-release
		return "v", nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.GetOrLoad(context.Background(), "k", load)
			assert.NoError(t, err)
			assert.Equal(t, "v", v)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.Equal(t, int32(1), loads.Load())

	v, err := c.GetOrLoad(context.Background(), "k", func(context.Context) (string, error) {
		t.Fatal("命中缓存时不应加载")
		return "", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "v", v)
}

func TestGetOrLoadErrorNotCached(t *testing.T) {
	c := NewTTL[string, int](10, time.Minute)
	boom := errors.New("boom")
	_, err := c.GetOrLoad(context.Background(), "k", func(context.Context) (int, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, c.Len())

	v, err := c.GetOrLoad(context.Background(), "k", func(context.Context) (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "cache.db")
	d, err := OpenDisk(path)
	require.NoError(t, err)

	key := Key("https://example.com/a.png")
	assert.Len(t, key, 32)
	_, ok := d.Get(key)
	assert.False(t, ok)

	require.NoError(t, d.Put(key, []byte{1, 2, 3}))
	got, ok := d.Get(key)
	assert.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3}, got)
	assert.Equal(t, 1, d.Count())
	require.NoError(t, d.Close())

	d, err = OpenDisk(path)
	require.NoError(t, err)
	defer d.Close()
	got, ok = d.Get(key)
	assert.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3}, got)
}

func TestDiskPrune(t *testing.T) {
	d, err := OpenDisk(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	defer d.Close()

	now := time.Unix(1_700_000_000, 0)
	d.now = func() time.Time { return now }

	n, err := d.Prune()
	require.NoError(t, err)
	assert.Zero(t, n, "未设置上限时不清理")

	for i, key := range []string{"a", "b", "c", "d"} {
		now = time.Unix(1_700_000_000, 0).Add(time.Duration(i) * time.Hour)
		require.NoError(t, d.Put(key, []byte(key)))
	}
	d.SetLimit(2, 0)
	n, err = d.Prune()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, d.Count())
	_, ok := d.Get("a")
	assert.False(t, ok, "最旧的条目先被删除")
	_, ok = d.Get("d")
	assert.True(t, ok)

	d.SetLimit(0, 50*time.Minute)
	n, err = d.Prune()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, ok = d.Get("c")
	assert.False(t, ok)
	_, ok = d.Get("d")
	assert.True(t, ok)
}

func TestDiskPrunesOnPut(t *testing.T) {
	d, err := OpenDisk(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	defer d.Close()
	d.SetLimit(10, 0)

	for i := 0; i < pruneEvery; i++ {
		require.NoError(t, d.Put(Key(strconv.Itoa(i)), []byte{byte(i)}))
	}
	assert.Equal(t, 10, d.Count())
}
