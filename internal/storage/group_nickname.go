package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
)

// UpdateNickname 更新群昵称映射，昵称未变化时不写入，返回是否有变化
func (s *Store) UpdateNickname(ctx context.Context, groupID, userID int64, nickname string) (bool, error) {
	if nickname == "" || groupID == 0 {
		return false, nil
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO group_nicknames (group_id, user_id, nickname, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (group_id, user_id) DO UPDATE SET nickname = excluded.nickname, updated_at = excluded.updated_at
		WHERE group_nicknames.nickname != excluded.nickname`,
		groupID, userID, nickname, time.Now().Unix())
	if err != nil {
		return false, errors.Wrap(err, "更新昵称失败")
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Nickname 获取用户在群里的昵称，不存在时返回稳定标识符。
// groupID=0 表示私聊，直接返回稳定标识符
func (s *Store) Nickname(ctx context.Context, groupID, userID int64) string {
	if userID == 0 || userID == s.selfID() {
		return s.BotName
	}
	if groupID == 0 {
		return StableID(userID)
	}
	var n string
	err := s.db.QueryRowContext(ctx,
		`SELECT nickname FROM group_nicknames WHERE group_id = ? AND user_id = ?`, groupID, userID).Scan(&n)
	if err != nil || n == "" {
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			logDBError("查询昵称", err)
		}
		return StableID(userID)
	}
	return n
}
