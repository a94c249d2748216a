// Package qrcode 把文字生成二维码图片
package qrcode

import (
	"context"
	"unicode/utf8"

	qr "github.com/skip2/go-qrcode"

	"qqbot/internal/common"
	"qqbot/internal/plugin"
)

func init() {
	plugin.Register(New())
}

const (
	imageSize = 256
	// 再长的内容扫出来也不好用
	maxContentLength = 500
)

// QRCode 二维码插件
type QRCode struct {
	plugin.Base
}

// New 创建插件
func New() *QRCode {
	return &QRCode{Base: plugin.Base{
		PluginName: "qrcode",
		Desc:       "生成二维码",
		Usage:      "二维码 <文字或链接>",
		Order:      22,
	}}
}

// Should 二维码命令
func (q *QRCode) Should(e *common.QQEvent) bool {
	_, ok := plugin.MatchCommand(e.Content, "二维码", "qrcode")
	return ok
}

// Handle 生成并发送 PNG
func (q *QRCode) Handle(ctx context.Context, e *common.QQEvent) error {
	text, _ := plugin.MatchCommand(e.Content, "二维码", "qrcode")
	switch {
	case text == "":
		common.SendReply(e, "用法："+q.Usage)
		return nil
	case utf8.RuneCountInString(text) > maxContentLength:
		common.SendReply(e, "内容太长了")
		return nil
	}
	png, err := Encode(text)
	if err != nil {
		return err
	}
	return common.SendImage(ctx, e, png)
}

// Encode 中等纠错级别的 PNG 二维码
func Encode(text string) ([]byte, error) {
	return qr.Encode(text, qr.Medium, imageSize)
}
