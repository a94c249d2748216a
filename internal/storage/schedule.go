package storage

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// Schedule 群定时消息
type Schedule struct {
	ID        int64
	GroupID   int64
	Creator   int64
	Spec      string // 5 段 cron 表达式
	Content   string
	CreatedAt time.Time
}

// AddSchedule 保存定时任务，返回新任务的 ID
func (s *Store) AddSchedule(ctx context.Context, sc Schedule) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO schedules (group_id, creator, spec, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		sc.GroupID, sc.Creator, sc.Spec, sc.Content, time.Now().Unix())
	if err != nil {
		return 0, errors.Wrap(err, "保存定时任务失败")
	}
	return res.LastInsertId()
}

// RemoveSchedule 删除群内的定时任务，任务不存在时返回 false
func (s *Store) RemoveSchedule(ctx context.Context, groupID, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM schedules WHERE group_id = ? AND id = ?`, groupID, id)
	if err != nil {
		return false, errors.Wrap(err, "删除定时任务失败")
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ListSchedules 群内所有定时任务
func (s *Store) ListSchedules(ctx context.Context, groupID int64) ([]Schedule, error) {
	return s.querySchedules(ctx, `WHERE group_id = ?`, groupID)
}

// AllSchedules 所有定时任务，启动时恢复用
func (s *Store) AllSchedules(ctx context.Context) ([]Schedule, error) {
	return s.querySchedules(ctx, ``)
}

func (s *Store) querySchedules(ctx context.Context, where string, args ...any) ([]Schedule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, group_id, creator, spec, content, created_at FROM schedules `+where+` ORDER BY id`, args...)
	if err != nil {
		return nil, errors.Wrap(err, "查询定时任务失败")
	}
	defer rows.Close()
	var out []Schedule
	for rows.Next() {
		var (
			sc Schedule
			ts int64
		)
		if err := rows.Scan(&sc.ID, &sc.GroupID, &sc.Creator, &sc.Spec, &sc.Content, &ts); err != nil {
			return nil, errors.Wrap(err, "读取定时任务失败")
		}
		sc.CreatedAt = time.Unix(ts, 0)
		out = append(out, sc)
	}
	return out, rows.Err()
}
