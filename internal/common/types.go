package common

import (
	"qqbot/internal/onebot"
)

// QQEvent 表示一个QQ消息事件
type QQEvent struct {
	MsgType    string
	UserID     int64
	GroupID    int64
	Content    string // 去掉CQ码后的纯文本
	RawContent string // 原始消息
	Event      *onebot.MessageEvent
}

// NewQQEvent 从 OneBot 消息事件构造
func NewQQEvent(ev *onebot.MessageEvent) *QQEvent {
	return &QQEvent{
		MsgType:    ev.MessageType,
		UserID:     ev.UserID,
		GroupID:    ev.GroupID,
		Content:    ev.Message.PlainText(),
		RawContent: ev.RawMessage,
		Event:      ev,
	}
}

// IsGroup 群聊
func (e *QQEvent) IsGroup() bool {
	return e.MsgType == "group" && e.GroupID > 0
}

// IsPrivate 私聊
func (e *QQEvent) IsPrivate() bool {
	return e.MsgType == "private"
}

// SenderName 发送者群名片或昵称
func (e *QQEvent) SenderName() string {
	if e.Event == nil {
		return ""
	}
	return e.Event.Sender.DisplayName()
}

// SenderIsAdmin 发送者是否群主或管理员
func (e *QQEvent) SenderIsAdmin() bool {
	return e.Event != nil && e.Event.Sender.IsAdmin()
}
