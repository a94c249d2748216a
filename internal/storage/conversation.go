package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
)

// Message 一条私聊对话消息
type Message struct {
	Role    string // "user" 或 "assistant"
	Content string
	UserID  int64 // assistant 消息为 0
	Time    time.Time
}

// AppendConversation 追加一条私聊消息，只保留最近 MaxHistoryMessages 条
func (s *Store) AppendConversation(ctx context.Context, userID int64, role, content string) error {
	return errors.Wrap(s.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO conversations (user_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
			userID, role, content, time.Now().Unix()); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			DELETE FROM conversations WHERE user_id = ? AND id NOT IN (
				SELECT id FROM conversations WHERE user_id = ? ORDER BY id DESC LIMIT ?)`,
			userID, userID, MaxHistoryMessages)
		return err
	}), "保存对话历史失败")
}

// Conversation 按时间顺序返回用户的对话历史
func (s *Store) Conversation(ctx context.Context, userID int64) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content, created_at FROM (
			SELECT id, role, content, created_at FROM conversations WHERE user_id = ? ORDER BY id DESC LIMIT ?
		) ORDER BY id`, userID, MaxHistoryMessages)
	if err != nil {
		return nil, errors.Wrap(err, "查询对话历史失败")
	}
	defer rows.Close()
	var out []Message
	for rows.Next() {
		var (
			m  Message
			ts int64
		)
		if err := rows.Scan(&m.Role, &m.Content, &ts); err != nil {
			return nil, errors.Wrap(err, "读取对话历史失败")
		}
		m.Time = time.Unix(ts, 0)
		if m.Role == "user" {
			m.UserID = userID
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ClearConversation 清空用户的对话历史
func (s *Store) ClearConversation(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE user_id = ?`, userID)
	return errors.Wrap(err, "清空对话历史失败")
}
