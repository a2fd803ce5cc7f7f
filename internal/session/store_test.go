package session_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wenqu/procurement-assistant/internal/domain"
	"github.com/wenqu/procurement-assistant/internal/session"
)

func newStore(t *testing.T) (*session.Store, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := session.NewStore(dir)
	require.NoError(t, err)
	return store, dir
}

func TestAppend_IdempotentAgainstLastEntry(t *testing.T) {
	store, _ := newStore(t)

	store.Append("s", domain.RoleUser, "你好")
	store.Append("s", domain.RoleUser, "你好")
	store.Append("s", domain.RoleAssistant, "你好")

	history := store.History("s")
	require.Len(t, history, 2)
	assert.Equal(t, domain.RoleUser, history[0].Role)
	assert.Equal(t, domain.RoleAssistant, history[1].Role)
}

func TestAppend_StrictlyIncreasingTimestamps(t *testing.T) {
	store, _ := newStore(t)

	for i := 0; i < 20; i++ {
		store.Append("s", domain.RoleUser, "msg "+string(rune('a'+i)))
	}

	history := store.History("s")
	require.Len(t, history, 20)
	for i := 1; i < len(history); i++ {
		assert.True(t, history[i].Timestamp.After(history[i-1].Timestamp),
			"timestamp %d not after %d", i, i-1)
	}
}

func TestAppend_TruncatesHistory(t *testing.T) {
	store, _ := newStore(t)

	for i := 0; i < domain.MaxHistoryLength+10; i++ {
		store.Append("s", domain.RoleUser, "msg "+strconv.Itoa(i))
	}

	assert.Len(t, store.History("s"), domain.MaxHistoryLength)
}

func TestCacheResult_RoundTrip(t *testing.T) {
	store, _ := newStore(t)

	assert.Nil(t, store.RecentCache("s"))

	store.CacheResult("s", "统计数量", "<div>结果</div>", 7)

	cache := store.RecentCache("s")
	require.NotNil(t, cache)
	assert.Equal(t, "统计数量", cache.UserMessage)
	assert.Equal(t, 7, cache.DataCount)

	// Caches are per session.
	assert.Nil(t, store.RecentCache("other"))
}

func TestPersistAndReload(t *testing.T) {
	store, dir := newStore(t)

	store.Append("s1", domain.RoleUser, "问题")
	store.Append("s1", domain.RoleAssistant, "回答")
	store.Update("s1", func(sess *domain.Session) {
		sess.PsqlUsed = true
		sess.QueryCount = 2
	})
	require.NoError(t, store.Persist("s1"))

	path := filepath.Join(dir, "chat_session_s1.json")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	// Written with 2-space indentation.
	assert.Contains(t, string(data), "\n  \"session_id\"")

	// A fresh store sees the persisted state.
	store2, err := session.NewStore(dir)
	require.NoError(t, err)
	sess, loadedPath := store2.Load("s1")
	assert.Equal(t, path, loadedPath)
	assert.True(t, sess.PsqlUsed)
	assert.Equal(t, 2, sess.QueryCount)
	require.Len(t, sess.ConversationHistory, 2)
	assert.Equal(t, "问题", sess.ConversationHistory[0].Content)
}

func TestPersist_MergesWithDisk(t *testing.T) {
	storeA, dir := newStore(t)
	storeA.Append("s", domain.RoleUser, "older")
	require.NoError(t, storeA.Persist("s"))

	// A second process appends to the same session file.
	storeB, err := session.NewStore(dir)
	require.NoError(t, err)
	storeB.Append("s", domain.RoleUser, "newer")
	require.NoError(t, storeB.Persist("s"))

	storeC, err := session.NewStore(dir)
	require.NoError(t, err)
	sess, _ := storeC.Load("s")
	require.Len(t, sess.ConversationHistory, 2)
	assert.Equal(t, "older", sess.ConversationHistory[0].Content)
	assert.Equal(t, "newer", sess.ConversationHistory[1].Content)
}

func TestSaveMessages_ReplacesHistory(t *testing.T) {
	store, _ := newStore(t)
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	messages := []domain.Message{
		{Role: domain.RoleUser, Content: "a", Timestamp: base},
		{Role: domain.RoleAssistant, Content: "b", Timestamp: base.Add(time.Second)},
	}
	require.NoError(t, store.SaveMessages("s", messages))

	sess, _ := store.Load("s")
	require.Len(t, sess.ConversationHistory, 2)
	assert.Equal(t, "a", sess.ConversationHistory[0].Content)
}

func TestLoad_LegacyFilenameConvention(t *testing.T) {
	store, dir := newStore(t)

	legacy := domain.NewSession("old")
	legacy.ConversationHistory = []domain.Message{
		{Role: domain.RoleUser, Content: "legacy", Timestamp: time.Now()},
	}
	data, err := json.MarshalIndent(legacy, "", "  ")
	require.NoError(t, err)
	path := filepath.Join(dir, "old_conversation.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	sess, loadedPath := store.Load("old")
	assert.Equal(t, path, loadedPath)
	require.Len(t, sess.ConversationHistory, 1)
	assert.Equal(t, "legacy", sess.ConversationHistory[0].Content)
}

func TestList(t *testing.T) {
	store, dir := newStore(t)

	store.Append("a", domain.RoleUser, "first")
	require.NoError(t, store.Persist("a"))
	store.Append("b", domain.RoleUser, "second")
	store.Append("b", domain.RoleAssistant, "reply")
	require.NoError(t, store.Persist("b"))

	// A stray non-session file is ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	infos := store.List()
	require.Len(t, infos, 2)
	// Sorted by last_updated descending.
	assert.Equal(t, "b", infos[0].SessionID)
	assert.Equal(t, 2, infos[0].MessageCount)
	assert.Equal(t, "a", infos[1].SessionID)
	assert.Greater(t, infos[0].FileSize, int64(0))
}
