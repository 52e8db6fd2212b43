package storage

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gptcli/model"
)

func newTestStorage(t *testing.T) *SessionStorage {
	t.Helper()
	s, err := NewSessionStorage(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestSessionRoundTrip(t *testing.T) {
	s := newTestStorage(t)

	session := NewSession("work", "gpt-4o", 128000)
	session.Mode = "tools"
	call := model.ToolCall{ID: "call_1", Name: "Read", Arguments: `{"file_path":"a.go"}`, Continuation: []byte("sig")}
	session.Messages = []model.Message{
		model.NewUserMessage("hello"),
		{Role: model.RoleUser, Parts: []model.ContentPart{
			model.TextPart("look"),
			model.ImagePart("image/png", "aGk=", "low"),
		}},
		{Role: model.RoleAssistant, ToolCalls: []model.ToolCall{call}},
		model.NewToolResult(call, "1\tpackage a"),
		{Role: model.RoleAssistant, Content: "[Previous conversation summary]\n...", Summary: &model.SummaryMetadata{Level: 2, ModelUsed: "gpt-4o"}},
	}
	session.UsageHistory = []UsageRecord{NewUsageRecord("gpt-4o", model.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15})}

	require.NoError(t, s.Save(session))

	loaded, err := s.Load(session.ID)
	require.NoError(t, err)
	assert.Equal(t, "work", loaded.Name)
	assert.Equal(t, 128000, loaded.ContextLength)
	assert.Equal(t, "tools", loaded.Mode)
	require.Len(t, loaded.Messages, 5)
	assert.Equal(t, model.PartImage, loaded.Messages[1].Parts[1].Type)
	assert.Equal(t, []byte("sig"), loaded.Messages[2].ToolCalls[0].Continuation)
	assert.Equal(t, "call_1", loaded.Messages[3].ToolCallID)
	assert.Equal(t, []byte("sig"), loaded.Messages[3].Continuation)
	require.True(t, loaded.Messages[4].IsSummary())
	assert.Equal(t, 2, loaded.Messages[4].Summary.Level)
	assert.Equal(t, 15, loaded.TotalUsage().TotalTokens)

	info, err := os.Stat(filepath.Join(s.sessionsDir, session.ID+".json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestLoadMissing(t *testing.T) {
	s := newTestStorage(t)

	_, err := s.Load("nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = s.LoadByName("nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, s.Delete("nope"), ErrSessionNotFound)
}

func TestListOrderAndRename(t *testing.T) {
	s := newTestStorage(t)

	first := NewSession("first", "m", 0)
	require.NoError(t, s.Save(first))
	time.Sleep(5 * time.Millisecond)
	second := NewSession("second", "m", 0)
	second.Messages = append(second.Messages, model.NewUserMessage("hi"))
	require.NoError(t, s.Save(second))

	list, err := s.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "second", list[0].Name)
	assert.Equal(t, 1, list[0].MessageCount)

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, s.Rename(first.ID, "renamed"))
	loaded, err := s.LoadByName("renamed")
	require.NoError(t, err)
	assert.Equal(t, first.ID, loaded.ID)

	list, err = s.List()
	require.NoError(t, err)
	assert.Equal(t, "renamed", list[0].Name)

	require.NoError(t, s.Delete(second.ID))
	list, err = s.List()
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestBackupAndRestore(t *testing.T) {
	s := newTestStorage(t)

	session := NewSession("b", "m", 0)
	session.Messages = []model.Message{model.NewUserMessage("original")}
	require.NoError(t, s.Save(session))

	_, err := s.RestoreBackup(session.ID)
	assert.ErrorIs(t, err, ErrNoBackup)

	path, err := s.Backup(session.ID)
	require.NoError(t, err)
	assert.FileExists(t, path)

	session.Messages = append(session.Messages, model.NewAssistantMessage("changed"))
	require.NoError(t, s.Save(session))

	restored, err := s.RestoreBackup(session.ID)
	require.NoError(t, err)
	require.Len(t, restored.Messages, 1)
	assert.Equal(t, "original", restored.Messages[0].Content)

	loaded, err := s.Load(session.ID)
	require.NoError(t, err)
	assert.Len(t, loaded.Messages, 1)

	_, err = s.Backup("missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestCurrentSessionName(t *testing.T) {
	s := newTestStorage(t)

	name, err := s.LoadCurrentSessionName()
	require.NoError(t, err)
	assert.Empty(t, name)

	require.NoError(t, s.SaveCurrentSessionName("project"))
	name, err = s.LoadCurrentSessionName()
	require.NoError(t, err)
	assert.Equal(t, "project", name)
}

func TestSessionLock(t *testing.T) {
	s := newTestStorage(t)

	locked, _, err := s.CheckSessionLock("abc")
	require.NoError(t, err)
	assert.False(t, locked)

	require.NoError(t, s.LockSession("abc"))
	locked, _, err = s.CheckSessionLock("abc")
	require.NoError(t, err)
	assert.False(t, locked, "own lock is not reported")

	require.NoError(t, os.WriteFile(filepath.Join(s.sessionsDir, "abc.lock"), []byte("garbage"), 0600))
	locked, _, err = s.CheckSessionLock("abc")
	require.NoError(t, err)
	assert.False(t, locked)
	assert.NoFileExists(t, filepath.Join(s.sessionsDir, "abc.lock"))

	lockPath := filepath.Join(s.sessionsDir, "abc.lock")
	require.NoError(t, os.WriteFile(lockPath, []byte(strconv.Itoa(os.Getppid())), 0600))
	locked, pid, err := s.CheckSessionLock("abc")
	require.NoError(t, err)
	assert.True(t, locked)
	assert.Equal(t, os.Getppid(), pid)

	require.NoError(t, os.WriteFile(lockPath, []byte("99999999"), 0600))
	locked, _, err = s.CheckSessionLock("abc")
	require.NoError(t, err)
	assert.False(t, locked, "stale lock is cleared")
	assert.NoFileExists(t, lockPath)

	require.NoError(t, s.UnlockSession("abc"))
}

func TestDeleteBackups(t *testing.T) {
	s := newTestStorage(t)

	session := NewSession("d", "m", 0)
	require.NoError(t, s.Save(session))
	_, err := s.Backup(session.ID)
	require.NoError(t, err)
	_, err = s.Backup(session.ID)
	require.NoError(t, err)

	n, err := s.DeleteBackups(session.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = s.RestoreBackup(session.ID)
	assert.ErrorIs(t, err, ErrNoBackup)
}

func TestGenerateSessionName(t *testing.T) {
	assert.Equal(t, "fix the parser", GenerateSessionName("  fix the\nparser "))
	assert.Equal(t, "abcdefghijklmnopqrstuvwxyzabcd...", GenerateSessionName("abcdefghijklmnopqrstuvwxyzabcdefgh"))
	assert.Contains(t, GenerateSessionName(""), "Session ")
}

func TestSearch(t *testing.T) {
	s := newTestStorage(t)

	a := NewSession("a", "m", 0)
	a.Messages = []model.Message{
		model.NewUserMessage("How do I configure the Parser?"),
		{Role: model.RoleTool, Content: "parser output"},
		model.NewAssistantMessage("unrelated"),
	}
	require.NoError(t, s.Save(a))
	b := NewSession("b", "m", 0)
	b.Messages = []model.Message{model.NewAssistantMessage("the parser handles fences")}
	require.NoError(t, s.Save(b))

	local := SearchMessages(a.Messages, "parser")
	require.Len(t, local, 1)
	assert.Equal(t, 0, local[0].MessageIndex)
	assert.Contains(t, local[0].Preview, "Parser")

	all, err := NewSearchIndex(s).SearchAllSessions("PARSER")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	none, err := NewSearchIndex(s).SearchAllSessions("  ")
	require.NoError(t, err)
	assert.Empty(t, none)
}
