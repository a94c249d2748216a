package repeat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qqbot/internal/common"
	"qqbot/internal/onebot/onebottest"
)

func group(g int64, text string) *common.QQEvent {
	return &common.QQEvent{MsgType: "group", GroupID: g, UserID: 1, Content: text}
}

func TestShouldTriggersOnThirdSameMessage(t *testing.T) {
	r := New()
	assert.False(t, r.Should(group(1, "草")))
	assert.False(t, r.Should(group(1, "草")))
	assert.False(t, r.Should(group(2, "草")), "按群分别计数")
	assert.True(t, r.Should(group(1, "草")))
	// 触发后队列清空
	assert.False(t, r.Should(group(1, "草")))
	assert.False(t, r.Should(group(1, "草")))
	assert.True(t, r.Should(group(1, "草")))
}

func TestShouldResetsOnDifferentMessage(t *testing.T) {
	r := New()
	assert.False(t, r.Should(group(1, "a")))
	assert.False(t, r.Should(group(1, "a")))
	assert.False(t, r.Should(group(1, "b")))
	assert.False(t, r.Should(group(1, "a")))
	assert.False(t, r.Should(group(1, "")), "空消息不计入")
	assert.False(t, r.Should(&common.QQEvent{MsgType: "private", UserID: 1, Content: "a"}))
}

func TestHandleRepeats(t *testing.T) {
	rec := onebottest.New()
	common.SetConn(rec)
	defer common.ClearConn(rec)

	require.NoError(t, New().Handle(context.Background(), group(1, "+1")))
	assert.Equal(t, []string{"+1"}, rec.Texts())
}
