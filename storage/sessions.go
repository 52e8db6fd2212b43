package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"gptcli/model"
)

// ErrSessionNotFound is returned when no session matches an ID or name.
var ErrSessionNotFound = errors.New("session not found")

// ErrNoBackup is returned by RestoreBackup when a session has no backups.
var ErrNoBackup = errors.New("no backup available")

// UsageRecord is the token usage of one completed turn.
type UsageRecord struct {
	Timestamp        time.Time `json:"timestamp"`
	Model            string    `json:"model"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	TotalTokens      int       `json:"total_tokens"`
}

// NewUsageRecord builds a record for u stamped with the current time.
func NewUsageRecord(modelName string, u model.Usage) UsageRecord {
	return UsageRecord{
		Timestamp:        time.Now(),
		Model:            modelName,
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
}

// Session is a persisted conversation.
type Session struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Model         string          `json:"model"`
	ContextLength int             `json:"context_length"`
	Mode          string          `json:"mode,omitempty"`
	Messages      []model.Message `json:"messages"`
	UsageHistory  []UsageRecord   `json:"usage_history,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// NewSession creates an empty session with a fresh ID.
func NewSession(name, modelName string, contextLength int) *Session {
	now := time.Now()
	return &Session{
		ID:            uuid.New().String(),
		Name:          name,
		Model:         modelName,
		ContextLength: contextLength,
		Messages:      []model.Message{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// TotalUsage sums the session's usage history.
func (s *Session) TotalUsage() model.Usage {
	var total model.Usage
	for _, r := range s.UsageHistory {
		total.PromptTokens += r.PromptTokens
		total.CompletionTokens += r.CompletionTokens
		total.TotalTokens += r.TotalTokens
	}
	return total
}

// SessionMetadata is a lightweight version of Session for listing
type SessionMetadata struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Model        string    `json:"model"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
	TotalTokens  int       `json:"total_tokens"`
}

// SessionStorage persists sessions as JSON files. Writes are serialized.
type SessionStorage struct {
	mu          sync.Mutex
	dataDir     string
	sessionsDir string
	backupsDir  string
}

// NewSessionStorage creates the sessions directory under dataDir.
func NewSessionStorage(dataDir string) (*SessionStorage, error) {
	sessionsDir := filepath.Join(dataDir, "sessions")
	backupsDir := filepath.Join(sessionsDir, "backups")

	// 0700 - user-only access
	if err := os.MkdirAll(backupsDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create sessions directory: %w", err)
	}

	return &SessionStorage{
		dataDir:     dataDir,
		sessionsDir: sessionsDir,
		backupsDir:  backupsDir,
	}, nil
}

func (s *SessionStorage) path(id string) string {
	return filepath.Join(s.sessionsDir, id+".json")
}

// Save writes a session to disk, assigning an ID if needed.
func (s *SessionStorage) Save(session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	session.UpdatedAt = time.Now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = session.UpdatedAt
	}

	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	// Session files contain conversation history; write atomically with 0600.
	tmp := s.path(session.ID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := os.Rename(tmp, s.path(session.ID)); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write session file: %w", err)
	}
	return nil
}

// Load reads a session by ID.
func (s *SessionStorage) Load(id string) (*Session, error) {
	data, err := os.ReadFile(s.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}
	return decodeSession(data)
}

func decodeSession(data []byte) (*Session, error) {
	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	if session.Messages == nil {
		session.Messages = []model.Message{}
	}
	return &session, nil
}

// LoadByName returns the most recently updated session called name.
func (s *SessionStorage) LoadByName(name string) (*Session, error) {
	metas, err := s.List()
	if err != nil {
		return nil, err
	}
	for _, m := range metas {
		if m.Name == name {
			return s.Load(m.ID)
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, name)
}

// List returns metadata for all sessions, sorted by update time (newest first)
func (s *SessionStorage) List() ([]SessionMetadata, error) {
	entries, err := os.ReadDir(s.sessionsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read sessions directory: %w", err)
	}

	var sessions []SessionMetadata
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.sessionsDir, entry.Name()))
		if err != nil {
			continue // Skip unreadable files
		}
		session, err := decodeSession(data)
		if err != nil {
			continue // Skip corrupted files
		}
		sessions = append(sessions, SessionMetadata{
			ID:           session.ID,
			Name:         session.Name,
			Model:        session.Model,
			CreatedAt:    session.CreatedAt,
			UpdatedAt:    session.UpdatedAt,
			MessageCount: len(session.Messages),
			TotalTokens:  session.TotalUsage().TotalTokens,
		})
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})
	return sessions, nil
}

// Delete removes a session and its backups.
func (s *SessionStorage) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(id)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}
		return fmt.Errorf("failed to delete session file: %w", err)
	}
	backups, _ := filepath.Glob(filepath.Join(s.backupsDir, id+"-*.json"))
	for _, b := range backups {
		_ = os.Remove(b)
	}
	return nil
}

// Rename updates the name of a session
func (s *SessionStorage) Rename(id, newName string) error {
	session, err := s.Load(id)
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}
	session.Name = newName
	if err := s.Save(session); err != nil {
		return fmt.Errorf("failed to save renamed session: %w", err)
	}
	return nil
}

// Backup copies the session's current file into the backups directory and
// returns the backup path.
func (s *SessionStorage) Backup(id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read session file: %w", err)
	}

	name := fmt.Sprintf("%s-%s.json", id, time.Now().Format("20060102-150405.000000000"))
	dest := filepath.Join(s.backupsDir, name)
	if err := os.WriteFile(dest, data, 0600); err != nil {
		return "", fmt.Errorf("failed to write backup: %w", err)
	}
	return dest, nil
}

// Backups lists the backup files of a session, newest first.
func (s *SessionStorage) Backups(id string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.backupsDir, id+"-*.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}
	// The timestamp suffix sorts lexically.
	sort.Sort(sort.Reverse(sort.StringSlice(matches)))
	return matches, nil
}

// RestoreBackup replaces the session with its newest backup and returns the
// restored session.
func (s *SessionStorage) RestoreBackup(id string) (*Session, error) {
	backups, err := s.Backups(id)
	if err != nil {
		return nil, err
	}
	if len(backups) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoBackup, id)
	}

	data, err := os.ReadFile(backups[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read backup: %w", err)
	}
	session, err := decodeSession(data)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.WriteFile(s.path(id), data, 0600); err != nil {
		return nil, fmt.Errorf("failed to restore session file: %w", err)
	}
	return session, nil
}

// DeleteBackups removes every backup of a session and returns how many
// were deleted.
func (s *SessionStorage) DeleteBackups(id string) (int, error) {
	backups, err := s.Backups(id)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, b := range backups {
		if err := os.Remove(b); err != nil && !errors.Is(err, os.ErrNotExist) {
			return i, fmt.Errorf("failed to delete backup: %w", err)
		}
	}
	return len(backups), nil
}

func (s *SessionStorage) currentPath() string {
	return filepath.Join(s.dataDir, "current_session")
}

// SaveCurrentSessionName records the name of the active session.
func (s *SessionStorage) SaveCurrentSessionName(name string) error {
	return os.WriteFile(s.currentPath(), []byte(name), 0600)
}

// LoadCurrentSessionName returns the name of the last active session, or
// "" if none was recorded.
func (s *SessionStorage) LoadCurrentSessionName() (string, error) {
	data, err := os.ReadFile(s.currentPath())
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// LockSession creates a lock file holding this process's PID, marking the
// session as in use.
func (s *SessionStorage) LockSession(sessionID string) error {
	lockPath := filepath.Join(s.sessionsDir, sessionID+".lock")
	return os.WriteFile(lockPath, []byte(fmt.Sprintf("%d", os.Getpid())), 0600)
}

// UnlockSession removes the lock file for a session
func (s *SessionStorage) UnlockSession(sessionID string) error {
	err := os.Remove(filepath.Join(s.sessionsDir, sessionID+".lock"))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// CheckSessionLock reports whether another process holds the session's lock.
// A lock written by this process does not count.
func (s *SessionStorage) CheckSessionLock(sessionID string) (bool, int, error) {
	lockPath := filepath.Join(s.sessionsDir, sessionID+".lock")
	data, err := os.ReadFile(lockPath)
	if errors.Is(err, os.ErrNotExist) {
		return false, 0, nil
	}
	if err != nil {
		return false, 0, fmt.Errorf("failed to read lock file: %w", err)
	}

	var pid int
	if _, err := fmt.Sscanf(string(data), "%d", &pid); err != nil {
		// Invalid lock file, clean it up
		_ = os.Remove(lockPath)
		return false, 0, nil
	}
	if pid == os.Getpid() {
		return false, 0, nil
	}
	// Signal 0 probes for a live process without delivering anything.
	proc, err := os.FindProcess(pid)
	if err != nil || proc.Signal(syscall.Signal(0)) != nil {
		_ = os.Remove(lockPath)
		return false, 0, nil
	}
	return true, pid, nil
}

// GenerateSessionName derives a session name from the first user message.
func GenerateSessionName(firstMessage string) string {
	name := strings.Join(strings.Fields(firstMessage), " ")
	if r := []rune(name); len(r) > 30 {
		name = string(r[:30]) + "..."
	}
	if name == "" {
		return fmt.Sprintf("Session %s", time.Now().Format("Jan 2, 3:04 PM"))
	}
	return name
}
