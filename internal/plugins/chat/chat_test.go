package chat

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"qqbot/internal/common"
	"qqbot/internal/onebot"
	"qqbot/internal/onebot/onebottest"
	"qqbot/internal/plugin"
	"qqbot/internal/render"
	"qqbot/internal/storage"
)

type fakeAPI struct {
	mu       sync.Mutex
	requests []gjson.Result
	answer   string
	status   int
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, gjson.ParseBytes(body))
	f.mu.Unlock()
	if r.Header.Get("Authorization") != "Bearer test-key" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if f.status != 0 {
		w.WriteHeader(f.status)
		return
	}
	_, _ = io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"`+f.answer+`"}}]}`)
}

func (f *fakeAPI) last() gjson.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func setup(t *testing.T, api *fakeAPI) (*Chat, *storage.Store, *onebottest.Recorder) {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	t.Setenv("DEEPSEEK_API_KEY", "test-key")

	cfg, err := common.Parse([]byte("account:\n  self-id: 10000\n  masters: [1]\nplugins:\n  chat:\n    base-url: " + srv.URL +
		"\n    owner-name: niuf\n    relations:\n      - qq: 2\n        tag: 爸爸的女朋友\n        hint: 要有礼貌\n"))
	require.NoError(t, err)
	store, err := storage.Open(filepath.Join(t.TempDir(), "q.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	store.SelfID = cfg.SelfID

	c := New()
	require.NoError(t, c.Init(&plugin.Env{Config: cfg, Store: store}))

	rec := onebottest.New()
	common.SetConn(rec)
	t.Cleanup(func() { common.ClearConn(rec) })
	return c, store, rec
}

func groupEvent(userID int64, raw string) *common.QQEvent {
	return common.NewQQEvent(&onebot.MessageEvent{
		MessageType: "group",
		GroupID:     5,
		UserID:      userID,
		RawMessage:  raw,
		Message:     onebot.ParseString(raw),
	})
}

func TestShould(t *testing.T) {
	c, _, _ := setup(t, &fakeAPI{})
	assert.True(t, c.Should(&common.QQEvent{MsgType: "private", UserID: 3, Content: "hi"}))
	assert.True(t, c.Should(groupEvent(3, "[CQ:at,qq=10000] 在吗")))
	assert.True(t, c.Should(groupEvent(3, "小牛在吗")))
	assert.True(t, c.Should(groupEvent(3, "[CQ:at,qq=1] 主人在吗")))
	assert.False(t, c.Should(groupEvent(3, "今天天气不错")))
	assert.True(t, c.Should(groupEvent(3, "[CQ:at,qq=7] 去问问小牛")))
	assert.True(t, c.Should(&common.QQEvent{MsgType: "group", GroupID: 5, UserID: 3, Content: "找小牛聊聊"}))
	assert.False(t, c.Should(&common.QQEvent{MsgType: "group", GroupID: 5, UserID: 3, Content: "随便聊聊"}))
	assert.False(t, New().Should(groupEvent(3, "小牛")), "未初始化时不处理")
}

func TestPrivateChatKeepsHistory(t *testing.T) {
	api := &fakeAPI{answer: "你好呀"}
	c, store, rec := setup(t, api)
	ctx := context.Background()

	e := &common.QQEvent{MsgType: "private", UserID: 3, Content: "你好"}
	require.NoError(t, c.Handle(ctx, e))
	assert.Equal(t, []string{"你好呀"}, rec.Texts())

	require.NoError(t, c.Handle(ctx, &common.QQEvent{MsgType: "private", UserID: 3, Content: "再见"}))
	req := api.last()
	msgs := req.Get("messages").Array()
	require.Len(t, msgs, 4)
	assert.Equal(t, "system", msgs[0].Get("role").String())
	assert.Contains(t, msgs[0].Get("content").String(), "普通客人")
	assert.Equal(t, "你好", msgs[1].Get("content").String())
	assert.Equal(t, "assistant", msgs[2].Get("role").String())
	assert.Equal(t, "再见", msgs[3].Get("content").String())
	assert.Equal(t, "deepseek-chat", req.Get("model").String())

	history, err := store.Conversation(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, history, 4)

	require.NoError(t, c.Handle(ctx, &common.QQEvent{MsgType: "private", UserID: 3, Content: "清空记忆"}))
	history, err = store.Conversation(ctx, 3)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestGroupChatUsesContext(t *testing.T) {
	api := &fakeAPI{answer: "收到"}
	c, store, rec := setup(t, api)
	ctx := context.Background()

	_, err := store.UpdateNickname(ctx, 5, 1, "老爸")
	require.NoError(t, err)
	require.NoError(t, store.AddGroupContext(ctx, 5, 1, "大家好"))
	require.NoError(t, store.AddGroupContext(ctx, 5, 2, "早上好"))
	require.NoError(t, store.AddGroupContext(ctx, 5, 3, "小牛 讲个笑话"))

	require.NoError(t, c.Handle(ctx, groupEvent(3, "小牛 讲个笑话")))
	assert.Equal(t, []string{"收到"}, rec.Texts())

	msgs := api.last().Get("messages").Array()
	require.Len(t, msgs, 3)
	assert.Contains(t, msgs[0].Get("content").String(), "群聊")
	history := msgs[1].Get("content").String()
	assert.Contains(t, history, "【你的爸爸/主人】老爸 发言说: 大家好")
	assert.Contains(t, history, "【爸爸的女朋友】"+storage.StableID(2)+" 发言说: 早上好")
	assert.Equal(t, "["+storage.StableID(3)+"]: 小牛 讲个笑话", msgs[2].Get("content").String())

	ctxMsgs, err := store.GroupContext(ctx, 5)
	require.NoError(t, err)
	last := ctxMsgs[len(ctxMsgs)-1]
	assert.Equal(t, int64(10000), last.UserID)
	assert.Equal(t, "收到", last.Content)
}

func TestAtMasterAndEmptyMention(t *testing.T) {
	api := &fakeAPI{answer: "主人在忙"}
	c, _, rec := setup(t, api)
	ctx := context.Background()

	require.NoError(t, c.Handle(ctx, groupEvent(3, "[CQ:at,qq=1]")))
	msgs := api.last().Get("messages").Array()
	assert.Contains(t, msgs[0].Get("content").String(), "@了你的主人")
	assert.Contains(t, msgs[len(msgs)-1].Get("content").String(), atMasterEmpty)

	require.NoError(t, c.Handle(ctx, groupEvent(3, "[CQ:at,qq=10000]")))
	assert.Equal(t, []string{"主人在忙", emptyMessageReply}, rec.Texts())
}

func TestAPIErrorRepliesTired(t *testing.T) {
	c, _, rec := setup(t, &fakeAPI{status: http.StatusBadRequest})
	err := c.Handle(context.Background(), &common.QQEvent{MsgType: "private", UserID: 1, Content: "hi"})
	assert.Error(t, err)
	assert.Equal(t, []string{errorMessage}, rec.Texts())
}

func TestLongAnswerAsImage(t *testing.T) {
	api := &fakeAPI{answer: strings.Repeat("long answer ", common.MaxTextLength/12+1)}
	c, _, rec := setup(t, api)
	e := &common.QQEvent{MsgType: "private", UserID: 3, Content: "写篇作文"}

	require.NoError(t, c.Handle(context.Background(), e))
	require.Len(t, rec.Texts(), 2, "没有渲染器时分段发送")

	rec.Reset()
	c.env.Render = render.New("")
	require.NoError(t, c.Handle(context.Background(), e))
	calls := rec.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "image", calls[0].Params.Get("message.0.type").String())
}

func TestLongChineseAnswerWithoutCJKFont(t *testing.T) {
	api := &fakeAPI{answer: strings.Repeat("很长的回答", common.MaxTextLength/5+1)}
	c, _, rec := setup(t, api)
	c.env.Render = render.New("")

	require.NoError(t, c.Handle(context.Background(), &common.QQEvent{MsgType: "private", UserID: 3, Content: "写篇作文"}))
	texts := rec.Texts()
	require.Len(t, texts, 2)
	assert.Equal(t, common.MaxTextLength, utf8.RuneCountInString(texts[0]))
}
