// Package manage 群管理员开关插件
package manage

import (
	"context"
	"fmt"

	"qqbot/internal/common"
	"qqbot/internal/onebot"
	"qqbot/internal/plugin"
)

func init() {
	plugin.Register(New())
}

// Manage 插件开关管理
type Manage struct {
	plugin.Base
	env    *plugin.Env
	lookup func(string) (plugin.Plugin, bool)
	list   func() []plugin.Plugin
}

// New 创建插件
func New() *Manage {
	return &Manage{
		Base: plugin.Base{
			PluginName: "manage",
			Desc:       "插件开关管理（群主、管理员或主人）",
			Usage:      "启用 <插件名>\n禁用 <插件名>\n插件状态",
			Order:      2,
		},
		lookup: plugin.Lookup,
		list:   plugin.Plugins,
	}
}

// Protected 管理插件不能关闭
func (m *Manage) Protected() bool { return true }

// Init 保存运行环境
func (m *Manage) Init(env *plugin.Env) error {
	m.env = env
	return nil
}

// Should 群聊中的启用/禁用/插件状态
func (m *Manage) Should(e *common.QQEvent) bool {
	if !e.IsGroup() {
		return false
	}
	_, ok := plugin.MatchCommand(e.Content, "启用", "禁用", "插件状态")
	return ok
}

// Handle 修改或查看本群的插件开关
func (m *Manage) Handle(ctx context.Context, e *common.QQEvent) error {
	if args, ok := plugin.MatchCommand(e.Content, "插件状态"); ok && args == "" {
		return m.status(ctx, e)
	}
	if !e.SenderIsAdmin() && !m.env.Config.IsMaster(e.UserID) {
		return common.SendText(ctx, e, "只有群主、管理员或主人可以修改插件开关")
	}
	on := true
	name, ok := plugin.MatchCommand(e.Content, "启用")
	if !ok {
		name, _ = plugin.MatchCommand(e.Content, "禁用")
		on = false
	}
	if name == "" {
		return common.SendText(ctx, e, m.Help())
	}
	p, ok := m.lookup(name)
	if !ok {
		return common.SendText(ctx, e, fmt.Sprintf("没有叫 %s 的插件", name))
	}
	if !on && plugin.IsProtected(p) {
		return common.SendText(ctx, e, fmt.Sprintf("%s 不能关闭", name))
	}
	if err := m.env.Switches.Set(ctx, e.GroupID, name, on); err != nil {
		return err
	}
	state := "启用"
	if !on {
		state = "禁用"
	}
	return common.SendText(ctx, e, fmt.Sprintf("已在本群%s %s", state, name))
}

func (m *Manage) status(ctx context.Context, e *common.QQEvent) error {
	name, uin := m.env.Config.BotName(), m.env.Config.SelfID()
	fm := onebot.ForwardMessage{onebot.TextNode(name, uin, "本群插件状态")}
	for _, p := range m.list() {
		mark := "✅"
		if !m.env.Switches.Enabled(ctx, e.GroupID, p) {
			mark = "❌"
		}
		fm = append(fm, onebot.TextNode(name, uin, fmt.Sprintf("%s %s：%s", mark, p.Name(), p.Brief())))
	}
	return common.SendForward(ctx, e, fm)
}
