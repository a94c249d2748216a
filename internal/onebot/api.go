package onebot

import (
	"context"
)

// SendMsg 按 message_type 发送消息，返回 message_id
func SendMsg(ctx context.Context, c Caller, messageType string, userID, groupID int64, m Message) (int64, error) {
	params := map[string]any{
		"message_type": messageType,
		"message":      m,
	}
	if messageType == "group" {
		params["group_id"] = groupID
	} else {
		params["user_id"] = userID
	}
	data, err := c.CallAPI(ctx, "send_msg", params)
	if err != nil {
		return 0, err
	}
	return data.Get("message_id").Int(), nil
}

// SendGroupMsg 发送群消息
func SendGroupMsg(ctx context.Context, c Caller, groupID int64, m Message) (int64, error) {
	return SendMsg(ctx, c, "group", 0, groupID, m)
}

// SendPrivateMsg 发送私聊消息
func SendPrivateMsg(ctx context.Context, c Caller, userID int64, m Message) (int64, error) {
	return SendMsg(ctx, c, "private", userID, 0, m)
}

// SendGroupForwardMsg 发送群合并转发
func SendGroupForwardMsg(ctx context.Context, c Caller, groupID int64, nodes ForwardMessage) error {
	_, err := c.CallAPI(ctx, "send_group_forward_msg", map[string]any{
		"group_id": groupID,
		"messages": nodes,
	})
	return err
}

// SendPrivateForwardMsg 发送私聊合并转发
func SendPrivateForwardMsg(ctx context.Context, c Caller, userID int64, nodes ForwardMessage) error {
	_, err := c.CallAPI(ctx, "send_private_forward_msg", map[string]any{
		"user_id":  userID,
		"messages": nodes,
	})
	return err
}

// GetLoginInfo 获取登录号信息
func GetLoginInfo(ctx context.Context, c Caller) (userID int64, nickname string, err error) {
	data, err := c.CallAPI(ctx, "get_login_info", map[string]any{})
	if err != nil {
		return 0, "", err
	}
	return data.Get("user_id").Int(), data.Get("nickname").String(), nil
}

// GroupMember 群成员
type GroupMember struct {
	UserID   int64
	Nickname string
	Card     string
	Role     string
}

// DisplayName 优先群名片
func (m GroupMember) DisplayName() string {
	if m.Card != "" {
		return m.Card
	}
	return m.Nickname
}

// GetGroupMemberList 获取群成员列表
func GetGroupMemberList(ctx context.Context, c Caller, groupID int64) ([]GroupMember, error) {
	data, err := c.CallAPI(ctx, "get_group_member_list", map[string]any{"group_id": groupID})
	if err != nil {
		return nil, err
	}
	members := make([]GroupMember, 0, len(data.Array()))
	for _, r := range data.Array() {
		members = append(members, GroupMember{
			UserID:   r.Get("user_id").Int(),
			Nickname: r.Get("nickname").String(),
			Card:     r.Get("card").String(),
			Role:     r.Get("role").String(),
		})
	}
	return members, nil
}
