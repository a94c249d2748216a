package plugin

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"qqbot/internal/cache"
	"qqbot/internal/storage"
)

// Switches 插件在各群的开关，读取经过内存缓存
type Switches struct {
	store *storage.Store
	cache *cache.TTL[string, bool]
}

// NewSwitches store 为 nil 时所有插件使用默认开关
func NewSwitches(store *storage.Store, ttl time.Duration) *Switches {
	return &Switches{store: store, cache: cache.NewTTL[string, bool](1024, ttl)}
}

func switchKey(groupID int64, name string) string {
	return fmt.Sprintf("%d:%s", groupID, name)
}

// Enabled 插件在群内是否启用，私聊（groupID=0）总是启用
func (s *Switches) Enabled(ctx context.Context, groupID int64, p Plugin) bool {
	if groupID == 0 || IsProtected(p) {
		return true
	}
	def := defaultOn(p)
	if s == nil || s.store == nil {
		return def
	}
	on, err := s.cache.GetOrLoad(ctx, switchKey(groupID, p.Name()), func(ctx context.Context) (bool, error) {
		return s.store.PluginEnabled(ctx, groupID, p.Name(), def)
	})
	if err != nil {
		log.Warnf("[插件] 读取 %s 开关失败: %v", p.Name(), err)
		return def
	}
	return on
}

// Set 修改开关
func (s *Switches) Set(ctx context.Context, groupID int64, name string, on bool) error {
	if s == nil || s.store == nil {
		return errors.New("未配置数据库")
	}
	if err := s.store.SetPluginEnabled(ctx, groupID, name, on); err != nil {
		return err
	}
	s.cache.Set(switchKey(groupID, name), on)
	return nil
}

// Stats 开关缓存命中情况
func (s *Switches) Stats() cache.Stats {
	if s == nil {
		return cache.Stats{}
	}
	return s.cache.Stats()
}
