package help

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qqbot/internal/common"
	"qqbot/internal/onebot"
	"qqbot/internal/onebot/onebottest"
	"qqbot/internal/plugin"
)

type stub struct {
	plugin.Base
	off bool
}

func (stub) Should(*common.QQEvent) bool { return false }

func (stub) Handle(context.Context, *common.QQEvent) error { return nil }

func (s stub) DefaultOff() bool { return s.off }

func newHelp(t *testing.T) (*Help, *onebottest.Recorder) {
	t.Helper()
	cfg, err := common.Parse([]byte("account:\n  self-id: 10000\n"))
	require.NoError(t, err)
	h := New()
	h.list = func() []plugin.Plugin {
		return []plugin.Plugin{
			h,
			stub{Base: plugin.Base{PluginName: "signin", Desc: "每日签到", Usage: "发送 签到"}},
			stub{Base: plugin.Base{PluginName: "nsfw", Desc: "需要开启"}, off: true},
		}
	}
	require.NoError(t, h.Init(&plugin.Env{Config: cfg, Switches: plugin.NewSwitches(nil, time.Minute)}))
	rec := onebottest.New()
	common.SetConn(rec)
	t.Cleanup(func() { common.ClearConn(rec) })
	return h, rec
}

func TestShould(t *testing.T) {
	h := New()
	assert.True(t, h.Should(&common.QQEvent{Content: "帮助"}))
	assert.True(t, h.Should(&common.QQEvent{Content: "/菜单"}))
	assert.True(t, h.Should(&common.QQEvent{Content: "help signin"}))
	assert.False(t, h.Should(&common.QQEvent{Content: "帮助我"}))
}

func TestMenuAsForward(t *testing.T) {
	h, rec := newHelp(t)
	e := &common.QQEvent{MsgType: "group", GroupID: 1, UserID: 2, Content: "菜单"}
	require.NoError(t, h.Handle(context.Background(), e))

	calls := rec.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "send_group_forward_msg", calls[0].Action)
	nodes := calls[0].Params.Get("messages").Array()
	require.Len(t, nodes, 4)
	assert.Equal(t, "10000", nodes[0].Get("data.uin").String())
	assert.Equal(t, "signin：每日签到", nodes[2].Get("data.content.0.data.text").String())
	assert.Equal(t, "nsfw：需要开启（本群已关闭）", nodes[3].Get("data.content.0.data.text").String())
}

func TestMenuFallsBackToText(t *testing.T) {
	h, rec := newHelp(t)
	rec.Fail("send_private_forward_msg", errors.Wrap(onebot.ErrAPIFailed, "风控"))
	e := &common.QQEvent{MsgType: "private", UserID: 2, Content: "帮助"}
	require.NoError(t, h.Handle(context.Background(), e))

	texts := rec.Texts()
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "signin：每日签到\n——————\nnsfw：需要开启")
}

func TestPluginUsage(t *testing.T) {
	h, rec := newHelp(t)
	ctx := context.Background()
	require.NoError(t, h.Handle(ctx, &common.QQEvent{MsgType: "private", UserID: 2, Content: "帮助 signin"}))
	require.NoError(t, h.Handle(ctx, &common.QQEvent{MsgType: "private", UserID: 2, Content: "帮助 天气"}))
	assert.Equal(t, []string{"【signin】每日签到\n发送 签到", "没有叫 天气 的功能，发送「帮助」查看全部"}, rec.Texts())
}
