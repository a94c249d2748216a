// Package wife 今日老婆：每人每天在群里抽一位群友
package wife

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/pkg/errors"

	"qqbot/internal/common"
	"qqbot/internal/onebot"
	"qqbot/internal/plugin"
	"qqbot/internal/storage"
)

func init() {
	plugin.Register(New())
}

const avatarURL = "https://q1.qlogo.cn/g?b=qq&nk=%d&s=640"

// Wife 今日老婆插件
type Wife struct {
	plugin.Base
	env  *plugin.Env
	now  func() time.Time
	pick func(n int) int
}

// New 创建插件
func New() *Wife {
	return &Wife{
		Base: plugin.Base{
			PluginName: "wife",
			Desc:       "今日老婆：每天随机抽一位群友",
			Usage:      "今日老婆",
			Order:      11,
		},
		now:  time.Now,
		pick: rand.IntN,
	}
}

// Init 保存运行环境
func (w *Wife) Init(env *plugin.Env) error {
	w.env = env
	return nil
}

// Should 群聊中的今日老婆
func (w *Wife) Should(e *common.QQEvent) bool {
	if !e.IsGroup() {
		return false
	}
	_, ok := plugin.MatchCommand(e.Content, "今日老婆", "抽老婆")
	return ok
}

// Handle 当天已经抽过时返回同一个人
func (w *Wife) Handle(ctx context.Context, e *common.QQEvent) error {
	day := w.now().Format(storage.DayLayout)
	wife, existing, err := w.env.Store.DrawWife(ctx, e.GroupID, e.UserID, day, func(ctx context.Context) (storage.Wife, error) {
		return w.draw(ctx, e)
	})
	if err != nil {
		return err
	}
	prefix := "今天你的群老婆是"
	if existing {
		prefix = "你今天已经有老婆了，是"
	}
	return common.SendMessage(ctx, e, onebot.Message{
		onebot.At(e.UserID),
		onebot.Text(" " + prefix),
		onebot.Image(fmt.Sprintf(avatarURL, wife.UserID)),
		onebot.Text(fmt.Sprintf("【%s】(%d)哒", wife.Name, wife.UserID)),
	})
}

// draw 从群成员中排除自己和机器人后随机抽取
func (w *Wife) draw(ctx context.Context, e *common.QQEvent) (storage.Wife, error) {
	c := common.GetConn()
	if c == nil {
		return storage.Wife{}, onebot.ErrNotConnected
	}
	members, err := onebot.GetGroupMemberList(ctx, c, e.GroupID)
	if err != nil {
		return storage.Wife{}, err
	}
	candidates := make([]onebot.GroupMember, 0, len(members))
	for _, m := range members {
		if m.UserID != e.UserID && m.UserID != w.env.Config.SelfID() {
			candidates = append(candidates, m)
		}
	}
	if len(candidates) == 0 {
		return storage.Wife{}, errors.New("群里没有可以抽的群友")
	}
	m := candidates[w.pick(len(candidates))]
	return storage.Wife{UserID: m.UserID, Name: m.DisplayName()}, nil
}
