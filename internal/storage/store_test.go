package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "data", "qqbot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenEmptyPath(t *testing.T) {
	_, err := Open(" ")
	assert.Error(t, err)
}

func TestNickname(t *testing.T) {
	s := openTest(t)
	s.SelfID = func() int64 { return 10000 }
	ctx := context.Background()

	changed, err := s.UpdateNickname(ctx, 1, 42, "阿牛")
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = s.UpdateNickname(ctx, 1, 42, "阿牛")
	require.NoError(t, err)
	assert.False(t, changed, "昵称未变化时不写入")
	changed, err = s.UpdateNickname(ctx, 1, 42, "阿牛2")
	require.NoError(t, err)
	assert.True(t, changed)

	assert.Equal(t, "阿牛2", s.Nickname(ctx, 1, 42))
	assert.Equal(t, StableID(42), s.Nickname(ctx, 2, 42))
	assert.Equal(t, StableID(42), s.Nickname(ctx, 0, 42))
	assert.Equal(t, "小牛", s.Nickname(ctx, 1, 10000))
	assert.Equal(t, "小牛", s.Nickname(ctx, 1, 0))

	changed, err = s.UpdateNickname(ctx, 0, 42, "x")
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestStableID(t *testing.T) {
	id := StableID(123456)
	assert.Equal(t, id, StableID(123456))
	assert.True(t, strings.HasPrefix(id, "用户"))
	assert.Len(t, []rune(id), 4)
}

func TestConversationKeepsLatest(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	for i := 0; i < MaxHistoryMessages+5; i++ {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		require.NoError(t, s.AppendConversation(ctx, 42, role, fmt.Sprint(i)))
	}
	require.NoError(t, s.AppendConversation(ctx, 43, "user", "other"))

	msgs, err := s.Conversation(ctx, 42)
	require.NoError(t, err)
	require.Len(t, msgs, MaxHistoryMessages)
	assert.Equal(t, "5", msgs[0].Content)
	assert.Equal(t, fmt.Sprint(MaxHistoryMessages+4), msgs[len(msgs)-1].Content)
	assert.Equal(t, int64(0), msgs[0].UserID, "assistant")
	assert.Equal(t, int64(42), msgs[1].UserID)

	require.NoError(t, s.ClearConversation(ctx, 42))
	msgs, err = s.Conversation(ctx, 42)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	msgs, err = s.Conversation(ctx, 43)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestGroupContext(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	require.NoError(t, s.AddGroupContext(ctx, 1, 42, ""))
	require.NoError(t, s.AddGroupContext(ctx, 1, 42, strings.Repeat("长", MaxMessageLength+1)))
	require.NoError(t, s.AddGroupContext(ctx, 0, 42, "私聊"))
	msgs, err := s.GroupContext(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	for i := 0; i < MaxGroupContextMessages+3; i++ {
		require.NoError(t, s.AddGroupContext(ctx, 1, int64(i), fmt.Sprint("m", i)))
	}
	msgs, err = s.GroupContext(ctx, 1)
	require.NoError(t, err)
	require.Len(t, msgs, MaxGroupContextMessages)
	assert.Equal(t, "m3", msgs[0].Content)
	assert.Equal(t, int64(3), msgs[0].UserID)
}

func TestPluginSwitch(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	on, err := s.PluginEnabled(ctx, 1, "chat", true)
	require.NoError(t, err)
	assert.True(t, on)

	require.NoError(t, s.SetPluginEnabled(ctx, 1, "chat", false))
	on, err = s.PluginEnabled(ctx, 1, "chat", true)
	require.NoError(t, err)
	assert.False(t, on)

	require.NoError(t, s.SetPluginEnabled(ctx, 1, "chat", true))
	on, err = s.PluginEnabled(ctx, 1, "chat", false)
	require.NoError(t, err)
	assert.True(t, on)

	on, err = s.PluginEnabled(ctx, 2, "chat", false)
	require.NoError(t, err)
	assert.False(t, on)
}

func TestSignIn(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	gain := func(streak int) int { return 10 * streak }

	rec, already, err := s.SignIn(ctx, 1, 42, "2024-02-28", gain)
	require.NoError(t, err)
	assert.False(t, already)
	assert.Equal(t, 1, rec.Streak)
	assert.Equal(t, 10, rec.Points)

	rec, already, err = s.SignIn(ctx, 1, 42, "2024-02-28", gain)
	require.NoError(t, err)
	assert.True(t, already)
	assert.Equal(t, 10, rec.Points)

	rec, _, err = s.SignIn(ctx, 1, 42, "2024-02-29", gain)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Streak)
	assert.Equal(t, 20, rec.Gained)
	assert.Equal(t, 30, rec.Points)
	assert.Equal(t, 2, rec.TotalDays)

	// 断签后重新计算
	rec, _, err = s.SignIn(ctx, 1, 42, "2024-03-02", gain)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Streak)
	assert.Equal(t, 40, rec.Points)
	assert.Equal(t, 3, rec.TotalDays)

	_, _, err = s.SignIn(ctx, 1, 43, "2024-03-02", gain)
	require.NoError(t, err)
	_, _, err = s.SignIn(ctx, 1, 42, "bad-day", gain)
	assert.Error(t, err)

	rank, err := s.SigninRank(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, rank, 2)
	assert.Equal(t, int64(42), rank[0].UserID)
	assert.Equal(t, int64(43), rank[1].UserID)
}

func TestDrawWife(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	picks := 0
	pick := func(context.Context) (Wife, error) {
		picks++
		return Wife{UserID: int64(100 + picks), Name: fmt.Sprint("群友", picks)}, nil
	}

	w, existing, err := s.DrawWife(ctx, 1, 42, "2024-01-01", pick)
	require.NoError(t, err)
	assert.False(t, existing)
	assert.Equal(t, Wife{UserID: 101, Name: "群友1"}, w)

	w, existing, err = s.DrawWife(ctx, 1, 42, "2024-01-01", pick)
	require.NoError(t, err)
	assert.True(t, existing)
	assert.Equal(t, int64(101), w.UserID)
	assert.Equal(t, 1, picks)

	w, _, err = s.DrawWife(ctx, 1, 42, "2024-01-02", pick)
	require.NoError(t, err)
	assert.Equal(t, int64(102), w.UserID)

	boom := errors.New("no members")
	_, _, err = s.DrawWife(ctx, 2, 42, "2024-01-01", func(context.Context) (Wife, error) { return Wife{}, boom })
	assert.ErrorIs(t, err, boom)
	_, ok, err := s.WifeOf(ctx, 2, 42, "2024-01-01")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSchedules(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	id1, err := s.AddSchedule(ctx, Schedule{GroupID: 1, Creator: 42, Spec: "0 8 * * *", Content: "早安"})
	require.NoError(t, err)
	id2, err := s.AddSchedule(ctx, Schedule{GroupID: 2, Creator: 42, Spec: "*/5 * * * *", Content: "喝水"})
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)

	list, err := s.ListSchedules(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "早安", list[0].Content)
	assert.Equal(t, "0 8 * * *", list[0].Spec)

	ok, err := s.RemoveSchedule(ctx, 1, id2)
	require.NoError(t, err)
	assert.False(t, ok, "不能删除其他群的任务")

	all, err := s.AllSchedules(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	ok, err = s.RemoveSchedule(ctx, 2, id2)
	require.NoError(t, err)
	assert.True(t, ok)
	all, err = s.AllSchedules(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
