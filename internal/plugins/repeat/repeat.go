// Package repeat 群里连续出现相同消息时跟着复读一次
package repeat

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"qqbot/internal/common"
	"qqbot/internal/plugin"
)

func init() {
	plugin.Register(New())
}

// 消息队列，用于检测连续相同消息
type messageQueue struct {
	messages []string
	mu       sync.Mutex
}

// Repeat 复读插件
type Repeat struct {
	plugin.Base
	groupQueues sync.Map // map[int64]*messageQueue
}

// New 创建插件
func New() *Repeat {
	return &Repeat{Base: plugin.Base{
		PluginName: "repeat",
		Desc:       "复读：群里连续三条相同消息时跟一句",
		Order:      0,
	}}
}

// Limit 复读不限流
func (r *Repeat) Limit() (time.Duration, int) { return 0, 0 }

// Should 记录群消息，队列中最近 RepeatMessageQueueSize 条都相同时返回 true 并清空队列
func (r *Repeat) Should(e *common.QQEvent) bool {
	if !e.IsGroup() || e.Content == "" {
		return false
	}
	v, _ := r.groupQueues.LoadOrStore(e.GroupID, &messageQueue{
		messages: make([]string, 0, common.RepeatMessageQueueSize),
	})
	q := v.(*messageQueue)

	q.mu.Lock()
	defer q.mu.Unlock()
	q.messages = append(q.messages, e.Content)
	if len(q.messages) > common.RepeatMessageQueueSize {
		q.messages = q.messages[len(q.messages)-common.RepeatMessageQueueSize:]
	}
	if len(q.messages) < common.RepeatMessageQueueSize {
		return false
	}
	for _, m := range q.messages[1:] {
		if m != q.messages[0] {
			return false
		}
	}
	// 清空队列，避免重复触发
	q.messages = q.messages[:0]
	return true
}

// Handle 发送相同的消息
func (r *Repeat) Handle(ctx context.Context, e *common.QQEvent) error {
	log.Infof("[重复消息] 群 %d 检测到连续 %d 条相同消息: %s", e.GroupID, common.RepeatMessageQueueSize, e.Content)
	return common.SendText(ctx, e, e.Content)
}
