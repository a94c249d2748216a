package storage

// 共享常量
const (
	MaxHistoryMessages      = 50  // 最多保留的私聊对话历史条数
	MaxGroupContextMessages = 50  // 群聊上下文最多保留的消息数量
	MaxMessageLength        = 500 // 单条消息最大字符数，超过此长度的消息不加入上下文
	DayLayout               = "2006-01-02"
)

var schemaStatements = []string{
	`PRAGMA journal_mode=WAL`,
	`CREATE TABLE IF NOT EXISTS group_nicknames (
		group_id   INTEGER NOT NULL,
		user_id    INTEGER NOT NULL,
		nickname   TEXT    NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (group_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS conversations (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id    INTEGER NOT NULL,
		role       TEXT    NOT NULL,
		content    TEXT    NOT NULL,
		created_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations (user_id, id)`,
	`CREATE TABLE IF NOT EXISTS group_context (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		group_id   INTEGER NOT NULL,
		user_id    INTEGER NOT NULL,
		content    TEXT    NOT NULL,
		created_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_group_context_group ON group_context (group_id, id)`,
	`CREATE TABLE IF NOT EXISTS plugin_switches (
		group_id INTEGER NOT NULL,
		plugin   TEXT    NOT NULL,
		enabled  INTEGER NOT NULL,
		PRIMARY KEY (group_id, plugin)
	)`,
	`CREATE TABLE IF NOT EXISTS signin (
		group_id   INTEGER NOT NULL,
		user_id    INTEGER NOT NULL,
		last_day   TEXT    NOT NULL,
		streak     INTEGER NOT NULL,
		total_days INTEGER NOT NULL,
		points     INTEGER NOT NULL,
		PRIMARY KEY (group_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS wife_draws (
		group_id  INTEGER NOT NULL,
		user_id   INTEGER NOT NULL,
		day       TEXT    NOT NULL,
		wife_id   INTEGER NOT NULL,
		wife_name TEXT    NOT NULL,
		PRIMARY KEY (group_id, user_id, day)
	)`,
	`CREATE TABLE IF NOT EXISTS schedules (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		group_id   INTEGER NOT NULL,
		creator    INTEGER NOT NULL,
		spec       TEXT    NOT NULL,
		content    TEXT    NOT NULL,
		created_at INTEGER NOT NULL
	)`,
}
