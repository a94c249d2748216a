package schedule

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"qqbot/internal/common"
	"qqbot/internal/onebot"
	"qqbot/internal/onebot/onebottest"
	"qqbot/internal/plugin"
	"qqbot/internal/storage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func event(userID int64, role, content string) *common.QQEvent {
	return common.NewQQEvent(&onebot.MessageEvent{
		MessageType: "group",
		GroupID:     7,
		UserID:      userID,
		Message:     onebot.Message{onebot.Text(content)},
		Sender:      onebot.Sender{UserID: userID, Role: role},
	})
}

func setup(t *testing.T, store *storage.Store) (*Schedule, *onebottest.Recorder) {
	t.Helper()
	cfg, err := common.Parse([]byte("account:\n  masters: [1]\n  self-id: 10000\n"))
	require.NoError(t, err)
	s := New()
	require.NoError(t, s.Init(&plugin.Env{Config: cfg, Store: store}))
	t.Cleanup(func() { _ = s.Close() })

	rec := onebottest.New()
	common.SetConn(rec)
	t.Cleanup(func() { common.ClearConn(rec) })
	return s, rec
}

func openStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "q.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestParseArgs(t *testing.T) {
	spec, content, err := ParseArgs("0 8 * * 1-5  早上好  打工人")
	require.NoError(t, err)
	assert.Equal(t, "0 8 * * 1-5", spec)
	assert.Equal(t, "早上好  打工人", content)

	_, content, err = ParseArgs("0 8 * * * 第一行\n第二行   空格")
	require.NoError(t, err)
	assert.Equal(t, "第一行\n第二行   空格", content)

	spec, content, err = ParseArgs("@daily 晚安")
	require.NoError(t, err)
	assert.Equal(t, "@daily", spec)
	assert.Equal(t, "晚安", content)

	spec, _, err = ParseArgs("@every 1h 喝水")
	require.NoError(t, err)
	assert.Equal(t, "@every 1h", spec)

	_, _, err = ParseArgs("0 8 * * *")
	assert.Error(t, err, "缺少内容")
	_, _, err = ParseArgs("@every 1s 刷屏")
	assert.ErrorContains(t, err, "发送间隔不能小于")
	_, _, err = ParseArgs("@every")
	assert.Error(t, err)
	_, _, err = ParseArgs("* * * * * 每分钟")
	assert.NoError(t, err)
	_, _, err = ParseArgs("61 8 * * * 早")
	assert.Error(t, err)
	_, _, err = ParseArgs("")
	assert.Error(t, err)
}

func TestPermissionAndList(t *testing.T) {
	store := openStore(t)
	s, rec := setup(t, store)
	ctx := context.Background()

	e := event(2, "member", "添加定时 0 8 * * * 早上好")
	require.True(t, s.Should(e))
	assert.False(t, s.Should(&common.QQEvent{MsgType: "private", UserID: 2, Content: "定时列表"}))
	require.NoError(t, s.Handle(ctx, e))
	assert.Equal(t, []string{"只有群主、管理员或主人可以修改定时任务"}, rec.Texts())

	rec.Reset()
	require.NoError(t, s.Handle(ctx, event(2, "member", "定时列表")))
	assert.Equal(t, []string{"本群没有定时任务"}, rec.Texts())

	rec.Reset()
	require.NoError(t, s.Handle(ctx, event(2, "admin", "添加定时 0 8 * * * 早上好")))
	texts := rec.Texts()
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "已添加定时任务 #1，下次发送：")

	rec.Reset()
	require.NoError(t, s.Handle(ctx, event(2, "member", "定时列表")))
	assert.Equal(t, []string{"send_group_forward_msg"}, rec.Actions())
	assert.Contains(t, rec.Calls()[0].Params.Get("messages.0.data.content.0.data.text").String(), "#1 [0 8 * * *]")

	rec.Reset()
	require.NoError(t, s.Handle(ctx, event(1, "member", "删除定时 #1")))
	assert.Equal(t, []string{"已删除定时任务 #1"}, rec.Texts())
	assert.Empty(t, s.entries)

	rec.Reset()
	require.NoError(t, s.Handle(ctx, event(1, "member", "删除定时 1")))
	assert.Equal(t, []string{"本群没有定时任务 #1"}, rec.Texts())
}

func TestLimitPerGroup(t *testing.T) {
	s, rec := setup(t, openStore(t))
	ctx := context.Background()
	for i := 0; i < maxPerGroup; i++ {
		require.NoError(t, s.Handle(ctx, event(1, "member", "添加定时 @daily 晚安")))
	}
	rec.Reset()
	require.NoError(t, s.Handle(ctx, event(1, "member", "添加定时 @daily 晚安")))
	assert.Equal(t, []string{"每个群最多 10 个定时任务"}, rec.Texts())
}

func TestAddRejectsShortInterval(t *testing.T) {
	store := openStore(t)
	s, rec := setup(t, store)
	require.NoError(t, s.Handle(context.Background(), event(1, "member", "添加定时 @every 10s 刷屏")))
	texts := rec.Texts()
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "发送间隔不能小于 1m0s")
	all, err := store.AllSchedules(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

// 已保存的任务在启动时直接恢复，不再检查间隔
func TestJobRunsAndRestores(t *testing.T) {
	store := openStore(t)
	_, err := store.AddSchedule(context.Background(), storage.Schedule{GroupID: 7, Creator: 1, Spec: "@every 1s", Content: "喝水"})
	require.NoError(t, err)
	_, err = store.AddSchedule(context.Background(), storage.Schedule{GroupID: 7, Creator: 1, Spec: "bad spec", Content: "x"})
	require.NoError(t, err)

	s, rec := setup(t, store)
	assert.Len(t, s.entries, 1, "无效的任务被跳过")
	assert.Eventually(t, func() bool {
		for _, c := range rec.Calls() {
			if c.Params.Get("group_id").Int() == 7 && c.Params.Get("message.0.data.text").String() == "喝水" {
				return true
			}
		}
		return false
	}, 3*time.Second, 50*time.Millisecond)
}
