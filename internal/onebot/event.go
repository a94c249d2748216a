package onebot

import (
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Sender 消息发送者信息
type Sender struct {
	UserID   int64
	Nickname string
	Card     string
	Role     string
}

// DisplayName 优先群名片，其次昵称
func (s Sender) DisplayName() string {
	if s.Card != "" {
		return s.Card
	}
	return s.Nickname
}

// IsAdmin 群主或管理员
func (s Sender) IsAdmin() bool {
	return s.Role == "owner" || s.Role == "admin"
}

// MessageEvent post_type=message 的上报
type MessageEvent struct {
	Time        int64
	SelfID      int64
	MessageType string
	SubType     string
	MessageID   int64
	UserID      int64
	GroupID     int64
	RawMessage  string
	Message     Message
	Sender      Sender
}

// ParseEvent 解析一帧上报数据，仅消息事件返回 true
func ParseEvent(data []byte) (*MessageEvent, bool) {
	if !gjson.ValidBytes(data) {
		return nil, false
	}
	r := gjson.ParseBytes(data)
	if r.Get("post_type").String() != "message" {
		return nil, false
	}
	ev := &MessageEvent{
		Time:        r.Get("time").Int(),
		SelfID:      r.Get("self_id").Int(),
		MessageType: r.Get("message_type").String(),
		SubType:     r.Get("sub_type").String(),
		MessageID:   r.Get("message_id").Int(),
		UserID:      r.Get("user_id").Int(),
		GroupID:     r.Get("group_id").Int(),
		RawMessage:  r.Get("raw_message").String(),
		Message:     ParseMessage(r.Get("message")),
		Sender: Sender{
			UserID:   r.Get("sender.user_id").Int(),
			Nickname: r.Get("sender.nickname").String(),
			Card:     r.Get("sender.card").String(),
			Role:     r.Get("sender.role").String(),
		},
	}
	if ev.RawMessage == "" {
		ev.RawMessage = ev.Message.CQString()
	}
	return ev, true
}

// IsGroup 群消息
func (e *MessageEvent) IsGroup() bool {
	return e.MessageType == "group" && e.GroupID != 0
}

// IsPrivate 私聊消息
func (e *MessageEvent) IsPrivate() bool {
	return e.MessageType == "private"
}

// AtTargets 消息中所有被@的QQ号，@全体成员记为 0
func (e *MessageEvent) AtTargets() []int64 {
	var targets []int64
	for _, el := range e.Message {
		if el.Type != "at" {
			continue
		}
		qq := el.Get("qq")
		if qq == "all" {
			targets = append(targets, 0)
			continue
		}
		if id, err := strconv.ParseInt(qq, 10, 64); err == nil {
			targets = append(targets, id)
		}
	}
	return targets
}

// Mentions 是否@了指定QQ号
func (e *MessageEvent) Mentions(qq int64) bool {
	if qq == 0 {
		return false
	}
	for _, t := range e.AtTargets() {
		if t == qq {
			return true
		}
	}
	return false
}

// IsToMe 私聊、@机器人，或消息文字中提到机器人昵称
func (e *MessageEvent) IsToMe(selfID int64, nicknames []string) bool {
	if e.IsPrivate() || e.Mentions(selfID) {
		return true
	}
	text := e.Message.PlainText()
	for _, n := range nicknames {
		if n != "" && strings.Contains(text, n) {
			return true
		}
	}
	return false
}
