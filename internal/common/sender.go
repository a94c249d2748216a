package common

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	log "github.com/sirupsen/logrus"

	"qqbot/internal/onebot"
)

var (
	conn   onebot.Caller
	connMu sync.RWMutex
)

// SetConn 设置当前 OneBot 连接（由 server 调用）
func SetConn(c onebot.Caller) {
	connMu.Lock()
	defer connMu.Unlock()
	conn = c
}

// GetConn 获取当前 OneBot 连接
func GetConn() onebot.Caller {
	connMu.RLock()
	defer connMu.RUnlock()
	return conn
}

// ClearConn 清除连接，只有 c 仍是当前连接时才清除
func ClearConn(c onebot.Caller) {
	connMu.Lock()
	defer connMu.Unlock()
	if conn == c {
		conn = nil
	}
}

func caller() (onebot.Caller, error) {
	c := GetConn()
	if c == nil {
		return nil, onebot.ErrNotConnected
	}
	return c, nil
}

// SendReply 发送纯文本回复，失败只记录日志
func SendReply(e *QQEvent, text string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := SendText(ctx, e, text); err != nil {
		log.Warnf("[发送失败]: %v", err)
	}
}

// SendText 发送纯文本，超长时按 MaxTextLength 分段
func SendText(ctx context.Context, e *QQEvent, text string) error {
	for _, piece := range SplitText(text, MaxTextLength) {
		if err := SendMessage(ctx, e, onebot.Message{onebot.Text(piece)}); err != nil {
			return err
		}
	}
	return nil
}

// SendMessage 向事件来源发送消息
func SendMessage(ctx context.Context, e *QQEvent, m onebot.Message) error {
	c, err := caller()
	if err != nil {
		return err
	}
	if _, err := onebot.SendMsg(ctx, c, e.MsgType, e.UserID, e.GroupID, m); err != nil {
		return err
	}
	log.Infof("[发送] -> 用户:%d 群:%d 内容:%s", e.UserID, e.GroupID, m.Summary())
	return nil
}

// SendImage 发送一张 PNG/JPEG 图片
func SendImage(ctx context.Context, e *QQEvent, img []byte) error {
	return SendMessage(ctx, e, onebot.Message{onebot.ImageBytes(img)})
}

// SendGroup 主动向群发送消息
func SendGroup(ctx context.Context, groupID int64, m onebot.Message) error {
	c, err := caller()
	if err != nil {
		return err
	}
	if _, err := onebot.SendGroupMsg(ctx, c, groupID, m); err != nil {
		return err
	}
	log.Infof("[发送] -> 群:%d 内容:%s", groupID, m.Summary())
	return nil
}

// SendForward 发送合并转发。按 onebot.MaxForwardNodes 分块发送，某一块失败时，
// 该块及其后的所有节点改为纯文本分段发送
func SendForward(ctx context.Context, e *QQEvent, fm onebot.ForwardMessage) error {
	if len(fm) == 0 {
		return nil
	}
	c, err := caller()
	if err != nil {
		return err
	}
	chunks := fm.Chunk(onebot.MaxForwardNodes)
	for i, chunk := range chunks {
		if e.IsGroup() {
			err = onebot.SendGroupForwardMsg(ctx, c, e.GroupID, chunk)
		} else {
			err = onebot.SendPrivateForwardMsg(ctx, c, e.UserID, chunk)
		}
		if err == nil {
			continue
		}
		log.Warnf("[发送] 合并转发失败，改为纯文本发送: %v", err)
		var rest onebot.ForwardMessage
		for _, ch := range chunks[i:] {
			rest = append(rest, ch...)
		}
		return SendText(ctx, e, rest.PlainText())
	}
	log.Infof("[发送] -> 用户:%d 群:%d 合并转发 %d 条", e.UserID, e.GroupID, len(fm))
	return nil
}

// SplitText 按行切分文本，每段不超过 limit 个字符；单行过长时强制截断
func SplitText(text string, limit int) []string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		if text == "" {
			return nil
		}
		return []string{text}
	}
	var (
		pieces []string
		sb     strings.Builder
		n      int
	)
	flush := func() {
		if sb.Len() > 0 {
			pieces = append(pieces, sb.String())
			sb.Reset()
			n = 0
		}
	}
	for _, line := range strings.SplitAfter(text, "\n") {
		ln := utf8.RuneCountInString(line)
		if n+ln > limit {
			flush()
		}
		for ln > limit {
			runes := []rune(line)
			pieces = append(pieces, string(runes[:limit]))
			line = string(runes[limit:])
			ln -= limit
		}
		sb.WriteString(line)
		n += ln
	}
	flush()
	out := pieces[:0]
	for _, p := range pieces {
		if p = strings.TrimRight(p, "\n"); p != "" {
			out = append(out, p)
		}
	}
	return out
}
