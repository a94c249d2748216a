package storage

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
)

// Wife 当天抽到的群友
type Wife struct {
	UserID int64
	Name   string
}

// WifeOf 查询当天已抽到的结果
func (s *Store) WifeOf(ctx context.Context, groupID, userID int64, day string) (Wife, bool, error) {
	var w Wife
	err := s.db.QueryRowContext(ctx, `
		SELECT wife_id, wife_name FROM wife_draws WHERE group_id = ? AND user_id = ? AND day = ?`,
		groupID, userID, day).Scan(&w.UserID, &w.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return w, false, nil
	}
	if err != nil {
		return w, false, errors.Wrap(err, "查询今日老婆失败")
	}
	return w, true, nil
}

// DrawWife 每人每天只抽一次：当天已有结果时直接返回（existing=true），否则调用 pick 并保存
func (s *Store) DrawWife(ctx context.Context, groupID, userID int64, day string, pick func(context.Context) (Wife, error)) (w Wife, existing bool, err error) {
	if w, ok, err := s.WifeOf(ctx, groupID, userID, day); err != nil || ok {
		return w, ok, err
	}
	picked, err := pick(ctx)
	if err != nil {
		return w, false, err
	}
	// 并发抽取时以先写入的为准
	if _, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO wife_draws (group_id, user_id, day, wife_id, wife_name) VALUES (?, ?, ?, ?, ?)`,
		groupID, userID, day, picked.UserID, picked.Name); err != nil {
		return w, false, errors.Wrap(err, "保存今日老婆失败")
	}
	w, _, err = s.WifeOf(ctx, groupID, userID, day)
	return w, false, err
}
