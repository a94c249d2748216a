// Package limiter 按 key 维护令牌桶，用于插件级别的用户限流
package limiter

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

const (
	maxKeys = 4096
	// 闲置超过该时长的令牌桶会被回收，此时桶一定已经补满
	idleTTL = 10 * time.Minute
)

// Manager 为每个 key 维护一个 rate.Limiter
type Manager struct {
	mu       sync.Mutex
	every    time.Duration
	burst    int
	limiters *expirable.LRU[string, *rate.Limiter]
}

// New 每 every 补充一个令牌，桶容量 burst。every<=0 时不限流
func New(every time.Duration, burst int) *Manager {
	if burst <= 0 {
		burst = 1
	}
	ttl := idleTTL
	if d := every * time.Duration(burst); d > ttl {
		ttl = d
	}
	return &Manager{
		every:    every,
		burst:    burst,
		limiters: expirable.NewLRU[string, *rate.Limiter](maxKeys, nil, ttl),
	}
}

func (m *Manager) load(key string) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.limiters.Get(key)
	if !ok {
		l = rate.NewLimiter(rate.Every(m.every), m.burst)
	}
	// 重新写入以刷新过期时间
	m.limiters.Add(key, l)
	return l
}

// Allow 是否放行 key 的本次请求
func (m *Manager) Allow(key string) bool {
	if m == nil || m.every <= 0 {
		return true
	}
	return m.load(key).Allow()
}

// Reserve 与 Allow 相同，但被拒绝时返回需要等待的时长
func (m *Manager) Reserve(key string) (time.Duration, bool) {
	if m == nil || m.every <= 0 {
		return 0, true
	}
	r := m.load(key).Reserve()
	if !r.OK() {
		return m.every, false
	}
	if d := r.Delay(); d > 0 {
		r.Cancel()
		return d, false
	}
	return 0, true
}

// Len 当前维护的 key 数量
func (m *Manager) Len() int {
	if m == nil {
		return 0
	}
	return m.limiters.Len()
}
