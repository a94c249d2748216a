// Package cache 提供带过期时间的内存缓存与基于 bbolt 的图片磁盘缓存
package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// Stats 缓存命中统计
type Stats struct {
	Hits   uint64
	Misses uint64
	Len    int
}

// TTL 容量受限、条目按时间过期的缓存，并发安全
type TTL[K comparable, V any] struct {
	lru    *expirable.LRU[K, V]
	group  singleflight.Group
	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewTTL size<=0 时不限容量
func NewTTL[K comparable, V any](size int, ttl time.Duration) *TTL[K, V] {
	return &TTL[K, V]{lru: expirable.NewLRU[K, V](size, nil, ttl)}
}

// Get 读取未过期的值
func (c *TTL[K, V]) Get(key K) (V, bool) {
	v, ok := c.lru.Get(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}

// Set 写入
func (c *TTL[K, V]) Set(key K, value V) {
	c.lru.Add(key, value)
}

// Remove 删除
func (c *TTL[K, V]) Remove(key K) {
	c.lru.Remove(key)
}

// Len 未过期的条目数
func (c *TTL[K, V]) Len() int {
	return c.lru.Len()
}

// Stats 命中统计
func (c *TTL[K, V]) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load(), Len: c.lru.Len()}
}

// GetOrLoad 未命中时调用 load 并缓存结果。相同 key 的并发加载只执行一次，
// load 返回错误时不缓存
func (c *TTL[K, V]) GetOrLoad(ctx context.Context, key K, load func(context.Context) (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	res, err, _ := c.group.Do(fmt.Sprint(key), func() (any, error) {
		if v, ok := c.lru.Get(key); ok {
			return v, nil
		}
		v, err := load(ctx)
		if err != nil {
			return v, err
		}
		c.lru.Add(key, v)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return res.(V), nil
}
