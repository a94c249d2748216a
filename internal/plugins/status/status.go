// Package status 查看机器人运行状态
package status

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"

	"qqbot/internal/common"
	"qqbot/internal/plugin"
	"qqbot/internal/render"
)

func init() {
	plugin.Register(New())
}

// Status 运行状态插件
type Status struct {
	plugin.Base
	env *plugin.Env
	now func() time.Time
}

// New 创建插件
func New() *Status {
	return &Status{
		Base: plugin.Base{
			PluginName: "status",
			Desc:       "查看机器人运行状态",
			Usage:      "运行状态",
			Order:      3,
		},
		now: time.Now,
	}
}

// Init 保存运行环境
func (s *Status) Init(env *plugin.Env) error {
	s.env = env
	return nil
}

// Should 运行状态命令
func (s *Status) Should(e *common.QQEvent) bool {
	_, ok := plugin.MatchCommand(e.Content, "运行状态", "status")
	return ok && s.env != nil
}

// Handle 发送状态卡片，绘制失败时发送文字
func (s *Status) Handle(ctx context.Context, e *common.QQEvent) error {
	lines := s.Lines()
	title := s.env.Config.BotName() + " 运行状态"
	if s.env.Render != nil && s.env.Render.Supports(append([]string{title}, lines...)...) {
		img, err := s.env.Render.Card(render.Card{
			Title:  title,
			Lines:  lines,
			Footer: s.now().Format("2006-01-02 15:04:05"),
			Accent: "#10b981",
		})
		if err == nil {
			return common.SendImage(ctx, e, img)
		}
		log.Warnf("[状态] 绘制卡片失败: %v", err)
	}
	return common.SendText(ctx, e, "运行状态\n"+strings.Join(lines, "\n"))
}

// Lines 各项状态
func (s *Status) Lines() []string {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	connected := "未连接"
	if common.GetConn() != nil {
		connected = "已连接"
	}
	lines := []string{
		fmt.Sprintf("连接：%s  QQ：%d", connected, s.env.Config.SelfID()),
		"运行时间：" + uptime(s.now().Sub(s.env.Started)),
		fmt.Sprintf("内存：%s / %s  GC %d 次", humanize.IBytes(ms.HeapAlloc), humanize.IBytes(ms.Sys), ms.NumGC),
		fmt.Sprintf("协程：%d  %s %s/%s", runtime.NumGoroutine(), runtime.Version(), runtime.GOOS, runtime.GOARCH),
	}
	if d := s.env.Dispatcher; d != nil {
		total := 0
		for _, n := range d.LimiterKeys() {
			total += n
		}
		lines = append(lines,
			fmt.Sprintf("插件：%d 个", len(d.Plugins())),
			fmt.Sprintf("限流记录：%d 条", total))
	}
	if s.env.Disk != nil {
		lines = append(lines, fmt.Sprintf("图片缓存：%s 张", humanize.Comma(int64(s.env.Disk.Count()))))
	}
	if s.env.Switches != nil {
		st := s.env.Switches.Stats()
		lines = append(lines, fmt.Sprintf("开关缓存：%d 条  命中 %d / 未命中 %d", st.Len, st.Hits, st.Misses))
	}
	return lines
}

// uptime 形如 3天4小时5分
func uptime(d time.Duration) string {
	d = d.Truncate(time.Second)
	days := int(d / (24 * time.Hour))
	d -= time.Duration(days) * 24 * time.Hour
	h, m, sec := int(d/time.Hour), int(d%time.Hour/time.Minute), int(d%time.Minute/time.Second)
	switch {
	case days > 0:
		return fmt.Sprintf("%d天%d小时%d分", days, h, m)
	case h > 0:
		return fmt.Sprintf("%d小时%d分", h, m)
	case m > 0:
		return fmt.Sprintf("%d分%d秒", m, sec)
	}
	return fmt.Sprintf("%d秒", sec)
}
