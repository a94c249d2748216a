// Package onebot 实现 OneBot v11 的消息段、CQ码、合并转发节点以及基于 websocket 的 API 调用
package onebot

import (
	"encoding/base64"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
)

// EscapeText 转义CQ码文本中的 & [ ]
func EscapeText(s string) string {
	if !strings.ContainsAny(s, "&[]") {
		return s
	}
	return textEscaper.Replace(s)
}

// EscapeValue 转义CQ码参数值，额外处理逗号
func EscapeValue(s string) string {
	if !strings.ContainsAny(s, "&[],") {
		return s
	}
	return valueEscaper.Replace(s)
}

// UnescapeText 反转义CQ码文本
func UnescapeText(s string) string {
	if !strings.Contains(s, "&") {
		return s
	}
	return textUnescaper.Replace(s)
}

// UnescapeValue 反转义CQ码参数值
func UnescapeValue(s string) string {
	if !strings.Contains(s, "&") {
		return s
	}
	return valueUnescaper.Replace(s)
}

var (
	textEscaper    = strings.NewReplacer("&", "&amp;", "[", "&#91;", "]", "&#93;")
	valueEscaper   = strings.NewReplacer("&", "&amp;", "[", "&#91;", "]", "&#93;", ",", "&#44;")
	textUnescaper  = strings.NewReplacer("&#91;", "[", "&#93;", "]", "&amp;", "&")
	valueUnescaper = strings.NewReplacer("&#44;", ",", "&#91;", "[", "&#93;", "]", "&amp;", "&")
)

// Pair 消息段参数
type Pair struct {
	K string
	V string
}

// Element 单个消息段
type Element struct {
	Type string
	Data []Pair
}

// Message 消息段数组
type Message []Element

// Get 获取参数值，不存在时返回空串
func (e Element) Get(k string) string {
	for _, p := range e.Data {
		if p.K == k {
			return p.V
		}
	}
	return ""
}

// CQCode 转为CQ码字符串，text 段只做转义
func (e Element) CQCode() string {
	var sb strings.Builder
	e.writeCQCode(&sb)
	return sb.String()
}

func (e Element) writeCQCode(sb *strings.Builder) {
	if e.Type == "text" {
		sb.WriteString(EscapeText(e.Get("text")))
		return
	}
	sb.WriteString("[CQ:")
	sb.WriteString(e.Type)
	for _, p := range e.Data {
		sb.WriteByte(',')
		sb.WriteString(p.K)
		sb.WriteByte('=')
		sb.WriteString(EscapeValue(p.V))
	}
	sb.WriteByte(']')
}

type elementJSON struct {
	Type string            `json:"type"`
	Data map[string]string `json:"data"`
}

// MarshalJSON 输出 {"type":"...","data":{...}}
func (e Element) MarshalJSON() ([]byte, error) {
	data := make(map[string]string, len(e.Data))
	for _, p := range e.Data {
		data[p.K] = p.V
	}
	return sonic.Marshal(elementJSON{Type: e.Type, Data: data})
}

// CQString 整条消息转为CQ码字符串
func (m Message) CQString() string {
	var sb strings.Builder
	for _, e := range m {
		e.writeCQCode(&sb)
	}
	return sb.String()
}

// PlainText 拼接所有 text 段并去掉首尾空白
func (m Message) PlainText() string {
	var sb strings.Builder
	for _, e := range m {
		if e.Type == "text" {
			sb.WriteString(e.Get("text"))
		}
	}
	return strings.TrimSpace(sb.String())
}

// Summary 用于日志和纯文本降级，非文本段显示为占位符
func (m Message) Summary() string {
	var sb strings.Builder
	for _, e := range m {
		switch e.Type {
		case "text":
			sb.WriteString(e.Get("text"))
		case "image":
			sb.WriteString("[图片]")
		case "at":
			sb.WriteString("@" + e.Get("qq"))
		case "face":
			sb.WriteString("[表情]")
		case "reply":
		default:
			sb.WriteString("[" + e.Type + "]")
		}
	}
	return sb.String()
}

// Text 文本段
func Text(s string) Element {
	return Element{Type: "text", Data: []Pair{{K: "text", V: s}}}
}

// At @某人，qq 为 0 时表示 @全体成员
func At(qq int64) Element {
	target := "all"
	if qq != 0 {
		target = strconv.FormatInt(qq, 10)
	}
	return Element{Type: "at", Data: []Pair{{K: "qq", V: target}}}
}

// Reply 回复某条消息
func Reply(messageID int64) Element {
	return Element{Type: "reply", Data: []Pair{{K: "id", V: strconv.FormatInt(messageID, 10)}}}
}

// Face QQ表情
func Face(id int) Element {
	return Element{Type: "face", Data: []Pair{{K: "id", V: strconv.Itoa(id)}}}
}

// Image 图片段，file 可以是 http(s) 链接、file:// 路径或 base64://
func Image(file string) Element {
	return Element{Type: "image", Data: []Pair{{K: "file", V: file}}}
}

// ImageBytes 以 base64 方式内联图片
func ImageBytes(b []byte) Element {
	return Image("base64://" + base64.StdEncoding.EncodeToString(b))
}
