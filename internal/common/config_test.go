package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	c, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, "reverse", c.Server.Mode)
	assert.Equal(t, 30*time.Second, c.APITimeout())
	assert.Equal(t, 5*time.Second, c.LimitEvery())
	assert.Equal(t, "小牛", c.BotName())
	assert.Contains(t, c.Account.Nicknames, "小牛")

	var chat struct {
		Model string `yaml:"model"`
	}
	require.NoError(t, c.PluginConfig("chat", &chat))
	assert.Equal(t, "deepseek-chat", chat.Model)
	require.NoError(t, c.PluginConfig("missing", &chat))
}

func TestParseOverridesAndEnv(t *testing.T) {
	t.Setenv("BOT_QQ", "1000")
	t.Setenv("MASTER_QQ", "42")
	c, err := Parse([]byte("account:\n  masters: [7]\nserver:\n  listen: \":9000\"\n"))
	require.NoError(t, err)
	assert.Equal(t, int64(1000), c.SelfID())
	assert.True(t, c.IsMaster(7))
	assert.True(t, c.IsMaster(42))
	assert.False(t, c.IsMaster(0))
	assert.Equal(t, ":9000", c.Server.Listen)

	c.SetSelfID(2000)
	assert.Equal(t, int64(2000), c.SelfID())
}

func TestValidate(t *testing.T) {
	_, err := Parse([]byte("server:\n  mode: carrier-pigeon\n"))
	assert.Error(t, err)
	_, err = Parse([]byte("server:\n  api-timeout: 0\n"))
	assert.Error(t, err)
	_, err = Parse([]byte("server:\n  mode: forward\n  url: \"\"\n"))
	assert.Error(t, err)
	_, err = Parse([]byte(":::"))
	assert.ErrorContains(t, err, "顶层应为键值映射")
	_, err = Parse([]byte("- a\n- b\n"))
	assert.Error(t, err)
	_, err = Parse([]byte("server: [1, 2\n"))
	assert.Error(t, err)

	c, err := Parse([]byte("# 只有注释\n"))
	require.NoError(t, err)
	assert.Equal(t, "reverse", c.Server.Mode)
}

func TestLoadWritesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "config.yml")
	_, err := Load(path)
	assert.ErrorIs(t, err, os.ErrNotExist)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), data)

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "data/qqbot.db", c.Database.SQLite)
	assert.Equal(t, 2000, c.Cache.DiskEntries)
	assert.Equal(t, 7*24*time.Hour, c.DiskMaxAge())
}
