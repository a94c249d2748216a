package plugin

import (
	"context"
	"fmt"
	"math"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"qqbot/internal/cache"
	"qqbot/internal/common"
	"qqbot/internal/limiter"
)

// 同一用户在同一插件上的冷却提示间隔
const cooldownNoticeInterval = 30 * time.Second

// Dispatcher 按优先级把消息交给插件
type Dispatcher struct {
	env      *Env
	plugins  []Plugin
	limiters map[string]*limiter.Manager
	notified *cache.TTL[string, struct{}]
	timeout  time.Duration
	wg       sync.WaitGroup
}

// NewDispatcher plugins 会按优先级重新排序
func NewDispatcher(env *Env, plugins []Plugin) *Dispatcher {
	ps := append([]Plugin(nil), plugins...)
	Sort(ps)
	d := &Dispatcher{
		env:      env,
		plugins:  ps,
		limiters: make(map[string]*limiter.Manager, len(ps)),
		notified: cache.NewTTL[string, struct{}](1024, cooldownNoticeInterval),
		timeout:  env.Config.HandleTimeout(),
	}
	for _, p := range ps {
		every, burst := env.Config.LimitEvery(), env.Config.Limit.Burst
		if rl, ok := p.(RateLimited); ok {
			every, burst = rl.Limit()
		}
		d.limiters[p.Name()] = limiter.New(every, burst)
	}
	env.Dispatcher = d
	return d
}

// Plugins 分发顺序
func (d *Dispatcher) Plugins() []Plugin {
	return d.plugins
}

// LimiterKeys 各插件当前维护的限流 key 数量
func (d *Dispatcher) LimiterKeys() map[string]int {
	out := make(map[string]int, len(d.limiters))
	for name, m := range d.limiters {
		out[name] = m.Len()
	}
	return out
}

// Dispatch 依次判定插件：群开关 -> Should -> 限流 -> Handle。
// Handle 在独立 goroutine 中执行，遇到第一个阻止后续的插件时停止
func (d *Dispatcher) Dispatch(e *common.QQEvent) {
	ctx := context.Background()
	for _, p := range d.plugins {
		if e.IsGroup() && !d.env.Switches.Enabled(ctx, e.GroupID, p) {
			continue
		}
		if !d.should(p, e) {
			continue
		}
		if wait, ok := d.limiters[p.Name()].Reserve(strconv.FormatInt(e.UserID, 10)); !ok {
			d.cooldown(p, e, wait)
		} else {
			d.run(p, e)
		}
		if blocks(p) {
			return
		}
	}
}

func (d *Dispatcher) should(p Plugin, e *common.QQEvent) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("[插件] %s 判定时 panic: %v\n%s", p.Name(), r, debug.Stack())
			ok = false
		}
	}()
	return p.Should(e)
}

func (d *Dispatcher) cooldown(p Plugin, e *common.QQEvent, wait time.Duration) {
	key := p.Name() + ":" + strconv.FormatInt(e.UserID, 10)
	log.Debugf("[限流] %s 用户:%d 需等待 %v", p.Name(), e.UserID, wait)
	if _, ok := d.notified.Get(key); ok {
		return
	}
	d.notified.Set(key, struct{}{})
	secs := int(math.Ceil(wait.Seconds()))
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		common.SendReply(e, fmt.Sprintf("%s 冷却中，请 %d 秒后再试", p.Name(), secs))
	}()
}

func (d *Dispatcher) run(p Plugin, e *common.QQEvent) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("[插件] %s panic: %v\n%s", p.Name(), r, debug.Stack())
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		start := time.Now()
		if err := p.Handle(ctx, e); err != nil {
			log.Errorf("[插件] %s 处理失败: %v", p.Name(), err)
			return
		}
		log.Debugf("[插件] %s 处理完成，耗时 %v", p.Name(), time.Since(start))
	}()
}

// Wait 等待所有正在执行的插件结束
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
