// Package schedule 群定时消息，任务保存在数据库中，重启后恢复
package schedule

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"qqbot/internal/common"
	"qqbot/internal/onebot"
	"qqbot/internal/plugin"
	"qqbot/internal/storage"
)

func init() {
	plugin.Register(New())
}

const (
	maxPerGroup = 10
	minInterval = time.Minute
	sendTimeout = 30 * time.Second
)

// Schedule 定时消息插件
type Schedule struct {
	plugin.Base
	env     *plugin.Env
	cron    *cron.Cron
	mu      sync.Mutex
	entries map[int64]cron.EntryID
}

// New 创建插件
func New() *Schedule {
	return &Schedule{
		Base: plugin.Base{
			PluginName: "schedule",
			Desc:       "群定时消息（群主、管理员或主人）",
			Usage: "添加定时 <分 时 日 月 周> <内容>：例如 添加定时 0 8 * * * 早上好\n" +
				"添加定时 @daily <内容>\n" +
				"删除定时 <编号>\n" +
				"定时列表",
			Order: 12,
		},
		entries: make(map[int64]cron.EntryID),
	}
}

// Init 启动调度器并恢复已保存的任务
func (s *Schedule) Init(env *plugin.Env) error {
	s.env = env
	logger := cron.PrintfLogger(log.StandardLogger())
	s.cron = cron.New(cron.WithLogger(logger), cron.WithChain(cron.Recover(logger)))
	if env.Store != nil {
		schedules, err := env.Store.AllSchedules(context.Background())
		if err != nil {
			return err
		}
		for _, sc := range schedules {
			if err := s.add(sc); err != nil {
				log.Warnf("[定时] 恢复任务 #%d 失败: %v", sc.ID, err)
			}
		}
		log.Infof("[定时] 已恢复 %d 个任务", len(s.entries))
	}
	s.cron.Start()
	return nil
}

// Close 停止调度器，等待正在执行的任务结束
func (s *Schedule) Close() error {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	return nil
}

// Should 群聊中的定时命令
func (s *Schedule) Should(e *common.QQEvent) bool {
	if !e.IsGroup() || s.cron == nil || s.env.Store == nil {
		return false
	}
	_, ok := plugin.MatchCommand(e.Content, "添加定时", "删除定时", "定时列表")
	return ok
}

// Handle 添加、删除或列出本群的定时任务
func (s *Schedule) Handle(ctx context.Context, e *common.QQEvent) error {
	if _, ok := plugin.MatchCommand(e.Content, "定时列表"); ok {
		return s.list(ctx, e)
	}
	if !e.SenderIsAdmin() && !s.env.Config.IsMaster(e.UserID) {
		common.SendReply(e, "只有群主、管理员或主人可以修改定时任务")
		return nil
	}
	if args, ok := plugin.MatchCommand(e.Content, "删除定时"); ok {
		return s.remove(ctx, e, args)
	}
	args, _ := plugin.MatchCommand(e.Content, "添加定时")
	return s.create(ctx, e, args)
}

// ParseArgs 拆分出 cron 表达式与消息内容，内容保持原样（包括换行）
func ParseArgs(args string) (spec, content string, err error) {
	first, _ := cutField(args)
	n := 5
	if strings.HasPrefix(first, "@") {
		n = 1
		if first == "@every" {
			n = 2
		}
	}
	fields := make([]string, 0, n)
	rest := args
	for i := 0; i < n; i++ {
		var f string
		if f, rest = cutField(rest); f == "" {
			return "", "", errors.New("格式错误")
		}
		fields = append(fields, f)
	}
	if content = strings.TrimSpace(rest); content == "" {
		return "", "", errors.New("缺少消息内容")
	}
	spec = strings.Join(fields, " ")
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return "", "", errors.Wrap(err, "时间格式错误")
	}
	if interval := shortestInterval(sched, time.Now()); interval < minInterval {
		return "", "", errors.Errorf("发送间隔不能小于 %v", minInterval)
	}
	return spec, content, nil
}

// cutField 取出开头的一个空白分隔字段
func cutField(s string) (field, rest string) {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	i := strings.IndexFunc(s, unicode.IsSpace)
	if i < 0 {
		return s, ""
	}
	return s[:i], s[i:]
}

// shortestInterval 从 from 开始的若干次触发中最短的间隔
func shortestInterval(sched cron.Schedule, from time.Time) time.Duration {
	prev := sched.Next(from)
	shortest := time.Duration(math.MaxInt64)
	for i := 0; i < 8 && !prev.IsZero(); i++ {
		next := sched.Next(prev)
		if next.IsZero() {
			break
		}
		shortest = min(shortest, next.Sub(prev))
		prev = next
	}
	return shortest
}

func (s *Schedule) create(ctx context.Context, e *common.QQEvent, args string) error {
	spec, content, err := ParseArgs(args)
	if err != nil {
		common.SendReply(e, err.Error()+"\n用法：\n"+s.Usage)
		return nil
	}
	existing, err := s.env.Store.ListSchedules(ctx, e.GroupID)
	if err != nil {
		return err
	}
	if len(existing) >= maxPerGroup {
		common.SendReply(e, fmt.Sprintf("每个群最多 %d 个定时任务", maxPerGroup))
		return nil
	}
	sc := storage.Schedule{GroupID: e.GroupID, Creator: e.UserID, Spec: spec, Content: content}
	if sc.ID, err = s.env.Store.AddSchedule(ctx, sc); err != nil {
		return err
	}
	if err := s.add(sc); err != nil {
		_, _ = s.env.Store.RemoveSchedule(ctx, sc.GroupID, sc.ID)
		return err
	}
	common.SendReply(e, fmt.Sprintf("已添加定时任务 #%d，下次发送：%s", sc.ID, s.next(sc.ID)))
	return nil
}

func (s *Schedule) remove(ctx context.Context, e *common.QQEvent, args string) error {
	id, err := strconv.ParseInt(strings.TrimPrefix(args, "#"), 10, 64)
	if err != nil {
		common.SendReply(e, "用法：删除定时 <编号>")
		return nil
	}
	ok, err := s.env.Store.RemoveSchedule(ctx, e.GroupID, id)
	if err != nil {
		return err
	}
	if !ok {
		common.SendReply(e, fmt.Sprintf("本群没有定时任务 #%d", id))
		return nil
	}
	s.mu.Lock()
	if entry, found := s.entries[id]; found {
		s.cron.Remove(entry)
		delete(s.entries, id)
	}
	s.mu.Unlock()
	common.SendReply(e, fmt.Sprintf("已删除定时任务 #%d", id))
	return nil
}

func (s *Schedule) list(ctx context.Context, e *common.QQEvent) error {
	schedules, err := s.env.Store.ListSchedules(ctx, e.GroupID)
	if err != nil {
		return err
	}
	if len(schedules) == 0 {
		common.SendReply(e, "本群没有定时任务")
		return nil
	}
	name := s.env.Config.BotName()
	self := s.env.Config.SelfID()
	fm := make(onebot.ForwardMessage, 0, len(schedules))
	for _, sc := range schedules {
		fm = append(fm, onebot.TextNode(name, self, fmt.Sprintf("#%d [%s] 下次：%s\n%s", sc.ID, sc.Spec, s.next(sc.ID), sc.Content)))
	}
	return common.SendForward(ctx, e, fm)
}

// add 把任务交给调度器
func (s *Schedule) add(sc storage.Schedule) error {
	entry, err := s.cron.AddFunc(sc.Spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		if err := common.SendGroup(ctx, sc.GroupID, onebot.Message{onebot.Text(sc.Content)}); err != nil {
			log.Warnf("[定时] 任务 #%d 发送失败: %v", sc.ID, err)
		}
	})
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.entries[sc.ID] = entry
	s.mu.Unlock()
	return nil
}

func (s *Schedule) next(id int64) string {
	s.mu.Lock()
	entry, ok := s.entries[id]
	s.mu.Unlock()
	if !ok {
		return "-"
	}
	en := s.cron.Entry(entry)
	if !en.Valid() {
		return "-"
	}
	next := en.Next
	if next.IsZero() {
		next = en.Schedule.Next(time.Now())
	}
	return next.Format("01-02 15:04")
}
