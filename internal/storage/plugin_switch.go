package storage

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
)

// SetPluginEnabled 设置插件在群内的开关
func (s *Store) SetPluginEnabled(ctx context.Context, groupID int64, plugin string, enabled bool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO plugin_switches (group_id, plugin, enabled) VALUES (?, ?, ?)
		ON CONFLICT (group_id, plugin) DO UPDATE SET enabled = excluded.enabled`,
		groupID, plugin, enabled)
	return errors.Wrap(err, "保存插件开关失败")
}

// PluginEnabled 插件在群内是否启用，未设置过时返回 def
func (s *Store) PluginEnabled(ctx context.Context, groupID int64, plugin string, def bool) (bool, error) {
	var enabled bool
	err := s.db.QueryRowContext(ctx,
		`SELECT enabled FROM plugin_switches WHERE group_id = ? AND plugin = ?`, groupID, plugin).Scan(&enabled)
	if errors.Is(err, sql.ErrNoRows) {
		return def, nil
	}
	if err != nil {
		return def, errors.Wrap(err, "查询插件开关失败")
	}
	return enabled, nil
}
