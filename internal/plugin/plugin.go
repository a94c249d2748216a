// Package plugin 插件注册表与消息分发
package plugin

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"qqbot/internal/cache"
	"qqbot/internal/common"
	"qqbot/internal/render"
	"qqbot/internal/storage"
)

// Plugin 一个独立的功能单元
type Plugin interface {
	Name() string
	// Brief 一句话介绍，显示在菜单里
	Brief() string
	// Help 详细用法
	Help() string
	// Priority 越小越先判定
	Priority() int
	// Should 是否处理该消息，必须快速返回
	Should(e *common.QQEvent) bool
	Handle(ctx context.Context, e *common.QQEvent) error
}

// Initializer 需要在启动时读取配置或恢复状态的插件
type Initializer interface {
	Init(env *Env) error
}

// Blocker 处理后是否阻止后续插件，未实现时视为阻止
type Blocker interface {
	Block() bool
}

// DefaultOff 默认在群内关闭，需要管理员启用
type DefaultOff interface {
	DefaultOff() bool
}

// Protected 不能被群管理关闭的插件
type Protected interface {
	Protected() bool
}

// RateLimited 自定义限流参数，every<=0 表示不限流
type RateLimited interface {
	Limit() (every time.Duration, burst int)
}

// Closer 插件持有需要在退出时释放的资源
type Closer interface {
	Close() error
}

// Env 插件共享的运行环境
type Env struct {
	Config   *common.Config
	Store    *storage.Store
	Disk     *cache.Disk
	Render   *render.Renderer
	Switches *Switches
	Started  time.Time
	// 由 NewDispatcher 设置
	Dispatcher *Dispatcher
}

// Base 提供 Plugin 的元信息部分，插件嵌入后只需实现 Should 与 Handle
type Base struct {
	PluginName string
	Desc       string
	Usage      string
	Order      int
}

// Name 插件名
func (b Base) Name() string { return b.PluginName }

// Brief 简介
func (b Base) Brief() string { return b.Desc }

// Help 用法
func (b Base) Help() string {
	if b.Usage == "" {
		return b.Desc
	}
	return b.Usage
}

// Priority 优先级
func (b Base) Priority() int { return b.Order }

var (
	registry   = make(map[string]Plugin)
	registryMu sync.RWMutex
)

// Register 注册插件，应在插件包的 init 中调用。重名时 panic
func Register(p Plugin) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, ok := registry[p.Name()]; ok {
		panic(fmt.Sprintf("plugin %q registered twice", p.Name()))
	}
	registry[p.Name()] = p
}

// Plugins 按优先级、名称排序的全部插件
func Plugins() []Plugin {
	registryMu.RLock()
	out := make([]Plugin, 0, len(registry))
	for _, p := range registry {
		out = append(out, p)
	}
	registryMu.RUnlock()
	Sort(out)
	return out
}

// Sort 按优先级、名称排序
func Sort(ps []Plugin) {
	sort.SliceStable(ps, func(i, j int) bool {
		if ps[i].Priority() != ps[j].Priority() {
			return ps[i].Priority() < ps[j].Priority()
		}
		return ps[i].Name() < ps[j].Name()
	})
}

// Lookup 按名称查找插件
func Lookup(name string) (Plugin, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	p, ok := registry[name]
	return p, ok
}

// Init 初始化所有实现了 Initializer 的插件
func Init(env *Env, ps []Plugin) error {
	for _, p := range ps {
		i, ok := p.(Initializer)
		if !ok {
			continue
		}
		if err := i.Init(env); err != nil {
			return errors.Wrapf(err, "初始化插件 %s 失败", p.Name())
		}
		log.Debugf("[插件] %s 初始化完成", p.Name())
	}
	log.Infof("[插件] 已加载 %d 个插件", len(ps))
	return nil
}

// Close 释放所有实现了 Closer 的插件
func Close(ps []Plugin) {
	for _, p := range ps {
		if c, ok := p.(Closer); ok {
			if err := c.Close(); err != nil {
				log.Warnf("[插件] 关闭 %s 失败: %v", p.Name(), err)
			}
		}
	}
}

func blocks(p Plugin) bool {
	if b, ok := p.(Blocker); ok {
		return b.Block()
	}
	return true
}

func defaultOn(p Plugin) bool {
	if d, ok := p.(DefaultOff); ok {
		return !d.DefaultOff()
	}
	return true
}

// IsProtected 插件是否不能被关闭
func IsProtected(p Plugin) bool {
	if pr, ok := p.(Protected); ok {
		return pr.Protected()
	}
	return false
}
