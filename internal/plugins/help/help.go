// Package help 功能菜单
package help

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

// Help 菜单插件
type Help struct {
	plugin.Base
	env  *plugin.Env
	list func() []plugin.Plugin
}

// New 创建插件
func New() *Help {
	return &Help{
		Base: plugin.Base{
			PluginName: "help",
			Desc:       "功能菜单",
			Usage:      "帮助 / 菜单：查看所有功能\n帮助 <插件名>：查看某个功能的用法",
			Order:      1,
		},
		list: plugin.Plugins,
	}
}

// Protected 菜单不能关闭
func (h *Help) Protected() bool { return true }

// Init 保存运行环境
func (h *Help) Init(env *plugin.Env) error {
	h.env = env
	return nil
}

// Should 帮助/菜单/help
func (h *Help) Should(e *common.QQEvent) bool {
	_, ok := plugin.MatchCommand(e.Content, "帮助", "菜单", "help")
	return ok
}

// Handle 不带参数时以合并转发发送菜单，带插件名时发送该插件的用法
func (h *Help) Handle(ctx context.Context, e *common.QQEvent) error {
	args, _ := plugin.MatchCommand(e.Content, "帮助", "菜单", "help")
	plugins := h.list()
	if args != "" {
		for _, p := range plugins {
			if p.Name() == args {
				return common.SendText(ctx, e, fmt.Sprintf("【%s】%s\n%s", p.Name(), p.Brief(), p.Help()))
			}
		}
		return common.SendText(ctx, e, fmt.Sprintf("没有叫 %s 的功能，发送「帮助」查看全部", args))
	}

	name, uin := "小牛", int64(0)
	if h.env != nil {
		name, uin = h.env.Config.BotName(), h.env.Config.SelfID()
	}
	fm := onebot.ForwardMessage{onebot.TextNode(name, uin, fmt.Sprintf("%s的功能菜单，发送「帮助 <插件名>」查看用法", name))}
	for _, p := range plugins {
		line := fmt.Sprintf("%s：%s", p.Name(), p.Brief())
		if e.IsGroup() && h.env != nil && !h.env.Switches.Enabled(ctx, e.GroupID, p) {
			line += "（本群已关闭）"
		}
		fm = append(fm, onebot.TextNode(name, uin, line))
	}
	return common.SendForward(ctx, e, fm)
}
