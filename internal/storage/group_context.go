package storage

import (
	"context"
	"database/sql"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// GroupContextMessage 群聊上下文消息（短期，包含所有用户）
type GroupContextMessage struct {
	UserID  int64
	Content string
	Time    time.Time
}

// AddGroupContext 添加群聊消息到上下文，空消息与超长消息不加入，只保留最近 MaxGroupContextMessages 条
func (s *Store) AddGroupContext(ctx context.Context, groupID, userID int64, content string) error {
	if groupID == 0 || content == "" {
		return nil
	}
	if n := utf8.RuneCountInString(content); n > MaxMessageLength {
		log.Debugf("[群聊上下文] 群%d: 消息过长（%d字符），已过滤", groupID, n)
		return nil
	}
	return errors.Wrap(s.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO group_context (group_id, user_id, content, created_at) VALUES (?, ?, ?, ?)`,
			groupID, userID, content, time.Now().Unix()); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			DELETE FROM group_context WHERE group_id = ? AND id NOT IN (
				SELECT id FROM group_context WHERE group_id = ? ORDER BY id DESC LIMIT ?)`,
			groupID, groupID, MaxGroupContextMessages)
		return err
	}), "保存群聊上下文失败")
}

// GroupContext 按时间顺序返回群聊上下文
func (s *Store) GroupContext(ctx context.Context, groupID int64) ([]GroupContextMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, content, created_at FROM (
			SELECT id, user_id, content, created_at FROM group_context WHERE group_id = ? ORDER BY id DESC LIMIT ?
		) ORDER BY id`, groupID, MaxGroupContextMessages)
	if err != nil {
		return nil, errors.Wrap(err, "查询群聊上下文失败")
	}
	defer rows.Close()
	var out []GroupContextMessage
	for rows.Next() {
		var (
			m  GroupContextMessage
			ts int64
		)
		if err := rows.Scan(&m.UserID, &m.Content, &ts); err != nil {
			return nil, errors.Wrap(err, "读取群聊上下文失败")
		}
		m.Time = time.Unix(ts, 0)
		out = append(out, m)
	}
	return out, rows.Err()
}
