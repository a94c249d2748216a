// Package signin 每日签到、连续签到积分与排行
package signin

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg" // 头像可能是 jpeg
	_ "image/png"
	"math/rand/v2"
	"time"

	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"

	"qqbot/internal/common"
	"qqbot/internal/download"
	"qqbot/internal/onebot"
	"qqbot/internal/plugin"
	"qqbot/internal/render"
	"qqbot/internal/storage"
)

func init() {
	plugin.Register(New())
}

const (
	basePoints = 10
	// 连续签到加成最多计算 7 天
	maxStreakBonus = 7
	rankSize       = 10
)

// Config plugins.signin
type Config struct {
	Avatar string `yaml:"avatar"`
}

// Signin 签到插件
type Signin struct {
	plugin.Base
	env   *plugin.Env
	cfg   Config
	now   func() time.Time
	bonus func() int
}

// New 创建插件
func New() *Signin {
	return &Signin{
		Base: plugin.Base{
			PluginName: "signin",
			Desc:       "每日签到，连续签到有额外积分",
			Usage:      "签到：每日签到\n签到排行：本群积分排行",
			Order:      10,
		},
		cfg:   Config{Avatar: "https://q1.qlogo.cn/g?b=qq&nk=%d&s=640"},
		now:   time.Now,
		bonus: func() int { return rand.IntN(10) },
	}
}

// Init 读取配置
func (s *Signin) Init(env *plugin.Env) error {
	s.env = env
	return env.Config.PluginConfig(s.Name(), &s.cfg)
}

// Should 群聊中的签到/签到排行
func (s *Signin) Should(e *common.QQEvent) bool {
	if !e.IsGroup() {
		return false
	}
	_, ok := plugin.MatchCommand(e.Content, "签到", "打卡", "签到排行")
	return ok
}

// Gain 本次签到积分：基础分 + 连续签到加成 + 随机奖励
func (s *Signin) Gain(streak int) int {
	return basePoints + 2*min(streak, maxStreakBonus) + s.bonus()
}

// Handle 签到或查看排行
func (s *Signin) Handle(ctx context.Context, e *common.QQEvent) error {
	if _, ok := plugin.MatchCommand(e.Content, "签到排行"); ok {
		return s.rank(ctx, e)
	}
	day := s.now().Format(storage.DayLayout)
	rec, already, err := s.env.Store.SignIn(ctx, e.GroupID, e.UserID, day, s.Gain)
	if err != nil {
		return err
	}
	name := e.SenderName()
	if name == "" {
		name = s.env.Store.Nickname(ctx, e.GroupID, e.UserID)
	}

	title := "签到成功"
	lines := []string{
		fmt.Sprintf("获得积分：%d", rec.Gained),
		fmt.Sprintf("连续签到：%d 天", rec.Streak),
	}
	if already {
		title = "今天已经签到过了"
		lines = []string{fmt.Sprintf("连续签到：%d 天", rec.Streak)}
	}
	lines = append(lines,
		fmt.Sprintf("累计签到：%d 天", rec.TotalDays),
		fmt.Sprintf("当前积分：%s", humanize.Comma(int64(rec.Points))),
	)

	if img := s.card(ctx, e.UserID, name+" "+title, lines, day); img != nil {
		return common.SendMessage(ctx, e, onebot.Message{onebot.At(e.UserID), onebot.ImageBytes(img)})
	}
	text := name + " " + title
	for _, l := range lines {
		text += "\n" + l
	}
	return common.SendMessage(ctx, e, onebot.Message{onebot.At(e.UserID), onebot.Text(" " + text)})
}

// card 绘制签到卡片，失败时返回 nil
func (s *Signin) card(ctx context.Context, userID int64, title string, lines []string, day string) []byte {
	if s.env.Render == nil || !s.env.Render.Supports(append([]string{title, day}, lines...)...) {
		return nil
	}
	c := render.Card{Title: title, Lines: lines, Footer: day, Accent: "#f59e0b"}
	if s.cfg.Avatar != "" {
		data, err := download.Image(ctx, s.env.Disk, fmt.Sprintf(s.cfg.Avatar, userID))
		if err == nil {
			c.Avatar, _, err = image.Decode(bytes.NewReader(data))
		}
		if err != nil {
			log.Debugf("[签到] 获取头像失败: %v", err)
			c.Avatar = nil
		}
	}
	img, err := s.env.Render.Card(c)
	if err != nil {
		log.Warnf("[签到] 绘制卡片失败: %v", err)
		return nil
	}
	return img
}

func (s *Signin) rank(ctx context.Context, e *common.QQEvent) error {
	records, err := s.env.Store.SigninRank(ctx, e.GroupID, rankSize)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return common.SendText(ctx, e, "本群还没有人签到过")
	}
	text := "签到积分排行"
	for i, r := range records {
		text += fmt.Sprintf("\n%d. %s  %s 分（连续 %d 天）", i+1,
			s.env.Store.Nickname(ctx, e.GroupID, r.UserID), humanize.Comma(int64(r.Points)), r.Streak)
	}
	return common.SendText(ctx, e, text)
}
