package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
)

// SignRecord 签到记录
type SignRecord struct {
	GroupID   int64
	UserID    int64
	LastDay   string
	Streak    int // 连续签到天数
	TotalDays int
	Points    int
	Gained    int // 本次签到获得的积分
}

// SignIn 在 day（格式 DayLayout）签到。前一天签到过时连续天数加一，否则重置为 1；
// gain 根据连续天数计算本次积分。当天已签到时返回 already=true 且不做修改
func (s *Store) SignIn(ctx context.Context, groupID, userID int64, day string, gain func(streak int) int) (rec SignRecord, already bool, err error) {
	today, err := time.Parse(DayLayout, day)
	if err != nil {
		return rec, false, errors.Wrap(err, "日期格式不正确")
	}
	yesterday := today.AddDate(0, 0, -1).Format(DayLayout)

	err = s.WithTx(ctx, func(tx *sql.Tx) error {
		rec = SignRecord{GroupID: groupID, UserID: userID}
		err := tx.QueryRowContext(ctx, `
			SELECT last_day, streak, total_days, points FROM signin WHERE group_id = ? AND user_id = ?`,
			groupID, userID).Scan(&rec.LastDay, &rec.Streak, &rec.TotalDays, &rec.Points)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		if rec.LastDay == day {
			already = true
			return nil
		}
		if rec.LastDay == yesterday {
			rec.Streak++
		} else {
			rec.Streak = 1
		}
		rec.LastDay = day
		rec.TotalDays++
		if gain != nil {
			rec.Gained = gain(rec.Streak)
		}
		rec.Points += rec.Gained
		_, err = tx.ExecContext(ctx, `
			INSERT INTO signin (group_id, user_id, last_day, streak, total_days, points) VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (group_id, user_id) DO UPDATE SET
				last_day = excluded.last_day, streak = excluded.streak,
				total_days = excluded.total_days, points = excluded.points`,
			groupID, userID, rec.LastDay, rec.Streak, rec.TotalDays, rec.Points)
		return err
	})
	if err != nil {
		return rec, false, errors.Wrap(err, "签到失败")
	}
	return rec, already, nil
}

// SigninRank 群内积分排行
func (s *Store) SigninRank(ctx context.Context, groupID int64, limit int) ([]SignRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, last_day, streak, total_days, points FROM signin
		WHERE group_id = ? ORDER BY points DESC, user_id LIMIT ?`, groupID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "查询签到排行失败")
	}
	defer rows.Close()
	var out []SignRecord
	for rows.Next() {
		r := SignRecord{GroupID: groupID}
		if err := rows.Scan(&r.UserID, &r.LastDay, &r.Streak, &r.TotalDays, &r.Points); err != nil {
			return nil, errors.Wrap(err, "读取签到排行失败")
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
