package session_test

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wenqu/procurement-assistant/internal/domain"
)

// fullSessionJSON builds an indented session file with enough history that a
// prefix cut lands inside the conversation array.
func fullSessionJSON(t *testing.T, id string, messageCount int) []byte {
	t.Helper()
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	sess := domain.NewSession(id)
	sess.Created = base
	sess.LastUpdated = base.Add(time.Hour)
	sess.PsqlUsed = true
	sess.QueryCount = messageCount / 2
	for i := 0; i < messageCount; i++ {
		role := domain.RoleUser
		if i%2 == 1 {
			role = domain.RoleAssistant
		}
		sess.ConversationHistory = append(sess.ConversationHistory, domain.Message{
			Role:      role,
			Content:   fmt.Sprintf("消息内容编号 %d，包含一些正文文字用于撑起文件体积", i),
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		})
	}
	data, err := json.MarshalIndent(sess, "", "  ")
	require.NoError(t, err)
	return data
}

func writeSessionFile(t *testing.T, dir, id string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, "chat_session_"+id+".json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestLoad_ValidFile(t *testing.T) {
	store, dir := newStore(t)
	writeSessionFile(t, dir, "v", fullSessionJSON(t, "v", 4))

	sess, _ := store.Load("v")
	assert.Len(t, sess.ConversationHistory, 4)
	assert.True(t, sess.PsqlUsed)
}

func TestLoad_TrailingGarbageRepaired(t *testing.T) {
	store, dir := newStore(t)
	data := fullSessionJSON(t, "g", 4)
	corrupted := append(data, []byte("\ngarbage after the document")...)
	path := writeSessionFile(t, dir, "g", corrupted)

	sess, _ := store.Load("g")
	assert.Len(t, sess.ConversationHistory, 4)

	// Repair succeeded, so no backup was taken.
	_, err := os.Stat(path + ".bak")
	assert.True(t, os.IsNotExist(err))
}

func TestLoad_TruncatedScalarSectionRepaired(t *testing.T) {
	store, dir := newStore(t)

	// Cut inside the scalar fields, before the history array opens.
	cut := []byte(`{
  "session_id": "t",
  "created": "2026-08-01T10:00:00Z",
  "last_updated": "2026-08-01T11:00:00Z",
  "psql_used": tr`)
	path := writeSessionFile(t, dir, "t", cut)

	sess, _ := store.Load("t")
	assert.Equal(t, "t", sess.SessionID)
	assert.Empty(t, sess.ConversationHistory)

	_, err := os.Stat(path + ".bak")
	assert.True(t, os.IsNotExist(err))
}

func TestLoad_UnrecoverablePrefixBacksUpAndResets(t *testing.T) {
	store, dir := newStore(t)
	data := fullSessionJSON(t, "x", 12)
	prefix := data[:len(data)*40/100]
	path := writeSessionFile(t, dir, "x", prefix)

	sess, _ := store.Load("x")

	// Fresh empty session, recent created timestamp.
	assert.Empty(t, sess.ConversationHistory)
	assert.WithinDuration(t, time.Now(), sess.Created, time.Minute)

	// The corrupt original is renamed, never deleted.
	_, err := os.Stat(path + ".bak")
	require.NoError(t, err)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// The next exchange persists normally.
	store.Append("x", domain.RoleUser, "继续")
	require.NoError(t, store.Persist("x"))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var reloaded domain.Session
	require.NoError(t, json.Unmarshal(raw, &reloaded))
	assert.Len(t, reloaded.ConversationHistory, 1)
}

func TestLoad_LegacyMessagesField(t *testing.T) {
	store, dir := newStore(t)
	legacy := `{
  "session_id": "m",
  "created": "2026-08-01T10:00:00Z",
  "last_updated": "2026-08-01T10:05:00Z",
  "messages": [
    {"role": "user", "content": "旧格式", "timestamp": "2026-08-01T10:01:00Z"}
  ]
}`
	writeSessionFile(t, dir, "m", []byte(legacy))

	sess, _ := store.Load("m")
	require.Len(t, sess.ConversationHistory, 1)
	assert.Equal(t, "旧格式", sess.ConversationHistory[0].Content)
}
