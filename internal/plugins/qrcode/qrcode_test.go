package qrcode

import (
	"bytes"
	"context"
	"encoding/base64"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qqbot/internal/common"
	"qqbot/internal/onebot/onebottest"
)

func TestEncode(t *testing.T) {
	data, err := Encode("https://example.com")
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, imageSize, img.Bounds().Dx())
}

func TestHandle(t *testing.T) {
	rec := onebottest.New()
	common.SetConn(rec)
	defer common.ClearConn(rec)
	q := New()

	e := &common.QQEvent{MsgType: "private", UserID: 1, Content: "/二维码 你好"}
	require.True(t, q.Should(e))
	assert.False(t, q.Should(&common.QQEvent{Content: "二维码生成器"}))
	require.NoError(t, q.Handle(context.Background(), e))

	calls := rec.Calls()
	require.Len(t, calls, 1)
	file := calls[0].Params.Get("message.0.data.file").String()
	require.True(t, strings.HasPrefix(file, "base64://"))
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(file, "base64://"))
	require.NoError(t, err)
	_, err = png.Decode(bytes.NewReader(data))
	assert.NoError(t, err)

	rec.Reset()
	require.NoError(t, q.Handle(context.Background(), &common.QQEvent{MsgType: "private", UserID: 1, Content: "二维码"}))
	assert.Equal(t, []string{"用法：二维码 <文字或链接>"}, rec.Texts())

	rec.Reset()
	long := &common.QQEvent{MsgType: "private", UserID: 1, Content: "二维码 " + strings.Repeat("长", maxContentLength+1)}
	require.NoError(t, q.Handle(context.Background(), long))
	assert.Equal(t, []string{"内容太长了"}, rec.Texts())
}
