package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wenqu/procurement-assistant/internal/domain"
)

// Store keeps per-session conversation state in memory and mirrors it to one
// JSON file per session. Different session ids never interact; concurrent
// requests on the same id are serialized by a per-session lock.
type Store struct {
	dir     string
	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	mu    sync.Mutex
	sess  *domain.Session
	cache *domain.DataCache
}

// Info summarizes one persisted session file for listings.
type Info struct {
	SessionID    string    `json:"session_id"`
	Filename     string    `json:"filename"`
	MessageCount int       `json:"message_count"`
	LastUpdated  time.Time `json:"last_updated"`
	Created      time.Time `json:"created"`
	FileSize     int64     `json:"file_size"`
}

// NewStore creates the session directory if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create session dir: %w", err)
	}
	return &Store{dir: dir, entries: make(map[string]*entry)}, nil
}

func (s *Store) entryFor(id string) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		e = &entry{}
		s.entries[id] = e
	}
	return e
}

// loadLocked populates the entry from disk on first touch. Caller holds e.mu.
func (s *Store) loadLocked(id string, e *entry) {
	if e.sess != nil {
		return
	}
	sess, _ := s.loadFromDisk(id)
	if sess == nil {
		sess = domain.NewSession(id)
	}
	e.sess = sess
}

// Get returns a snapshot of the session, lazily creating it.
func (s *Store) Get(id string) domain.Session {
	e := s.entryFor(id)
	e.mu.Lock()
	defer e.mu.Unlock()
	s.loadLocked(id, e)
	return snapshot(e.sess)
}

// History returns a copy of the conversation history.
func (s *Store) History(id string) []domain.Message {
	e := s.entryFor(id)
	e.mu.Lock()
	defer e.mu.Unlock()
	s.loadLocked(id, e)
	out := make([]domain.Message, len(e.sess.ConversationHistory))
	copy(out, e.sess.ConversationHistory)
	return out
}

// Append adds a message with a fresh timestamp. Idempotent against the last
// entry: an identical role and content is skipped. Timestamps are kept
// strictly increasing within a session.
func (s *Store) Append(id string, role domain.MessageRole, content string) {
	e := s.entryFor(id)
	e.mu.Lock()
	defer e.mu.Unlock()
	s.loadLocked(id, e)

	history := e.sess.ConversationHistory
	if n := len(history); n > 0 {
		last := history[n-1]
		if last.Role == role && last.Content == content {
			return
		}
	}

	ts := time.Now()
	if n := len(history); n > 0 && !ts.After(history[n-1].Timestamp) {
		ts = history[n-1].Timestamp.Add(time.Millisecond)
	}

	e.sess.ConversationHistory = append(history, domain.Message{
		Role:      role,
		Content:   content,
		Timestamp: ts,
	})
	if len(e.sess.ConversationHistory) > domain.MaxHistoryLength {
		e.sess.ConversationHistory = e.sess.ConversationHistory[len(e.sess.ConversationHistory)-domain.MaxHistoryLength:]
	}
	e.sess.LastUpdated = ts
}

// Update applies fn to the session under its lock.
func (s *Store) Update(id string, fn func(*domain.Session)) {
	e := s.entryFor(id)
	e.mu.Lock()
	defer e.mu.Unlock()
	s.loadLocked(id, e)
	fn(e.sess)
	e.sess.LastUpdated = time.Now()
}

// CacheResult overwrites the single data-cache slot for the session.
func (s *Store) CacheResult(id, userMessage, responseData string, dataCount int) {
	e := s.entryFor(id)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache = &domain.DataCache{
		QueryTime:    time.Now(),
		UserMessage:  userMessage,
		DataCount:    dataCount,
		ResponseData: responseData,
	}
}

// RecentCache returns the cached result if it is still fresh; expired entries
// are ignored, not deleted.
func (s *Store) RecentCache(id string) *domain.DataCache {
	e := s.entryFor(id)
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.cache.Fresh(time.Now()) {
		return nil
	}
	c := *e.cache
	return &c
}

// Persist merges the in-memory session with whatever is on disk and writes it
// back. History becomes the union keyed by timestamp; scalars take the
// in-memory value; the earliest created wins.
func (s *Store) Persist(id string) error {
	e := s.entryFor(id)
	e.mu.Lock()
	defer e.mu.Unlock()
	s.loadLocked(id, e)

	base, path := s.loadFromDisk(id)
	merged := domain.Merge(base, e.sess)
	e.sess = merged

	if path == "" {
		path = filepath.Join(s.dir, "chat_session_"+id+".json")
	}

	data, err := json.MarshalIndent(merged, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	// Unique tmp name so concurrent writers never clobber each other mid-write.
	tmp := path + ".tmp." + uuid.NewString()
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}

// SaveMessages replaces the in-memory history with the given messages and
// persists; merge semantics still apply against the on-disk state.
func (s *Store) SaveMessages(id string, messages []domain.Message) error {
	e := s.entryFor(id)
	e.mu.Lock()
	s.loadLocked(id, e)
	e.sess.ConversationHistory = append([]domain.Message{}, messages...)
	e.sess.Normalize()
	e.sess.LastUpdated = time.Now()
	e.mu.Unlock()

	return s.Persist(id)
}

// Load reads the persisted session for id with self-healing, returning the
// session and the file path it came from ("" when no file exists). In-memory
// state is refreshed from the result.
func (s *Store) Load(id string) (domain.Session, string) {
	e := s.entryFor(id)
	e.mu.Lock()
	defer e.mu.Unlock()

	sess, path := s.loadFromDisk(id)
	if sess == nil {
		sess = domain.NewSession(id)
	}
	if e.sess != nil {
		sess = domain.Merge(sess, e.sess)
	}
	e.sess = sess
	return snapshot(sess), path
}

// List returns summaries of all persisted sessions, newest first.
func (s *Store) List() []Info {
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		log.Error().Err(err).Str("dir", s.dir).Msg("failed to read session dir")
		return nil
	}

	var infos []Info
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		name := de.Name()
		id, ok := sessionIDFromFilename(name)
		if !ok {
			continue
		}

		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			continue
		}
		sess, err := parseSession(data)
		if err != nil {
			// Listing never triggers repair; the file heals on next load.
			continue
		}

		fi, err := de.Info()
		var size int64
		if err == nil {
			size = fi.Size()
		}

		if sess.SessionID == "" {
			sess.SessionID = id
		}
		infos = append(infos, Info{
			SessionID:    sess.SessionID,
			Filename:     name,
			MessageCount: len(sess.ConversationHistory),
			LastUpdated:  sess.LastUpdated,
			Created:      sess.Created,
			FileSize:     size,
		})
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].LastUpdated.After(infos[j].LastUpdated)
	})
	return infos
}

// FilePath returns the on-disk path for a session, or the canonical path a
// new file would get.
func (s *Store) FilePath(id string) string {
	if path := s.findExisting(id); path != "" {
		return path
	}
	return filepath.Join(s.dir, "chat_session_"+id+".json")
}

// findExisting resolves the file for a session id, accepting both the
// chat_session_<id>.json and <id>_conversation.json conventions.
func (s *Store) findExisting(id string) string {
	for _, name := range []string{
		"chat_session_" + id + ".json",
		id + "_conversation.json",
	} {
		path := filepath.Join(s.dir, name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

func sessionIDFromFilename(name string) (string, bool) {
	if !strings.HasSuffix(name, ".json") {
		return "", false
	}
	base := strings.TrimSuffix(name, ".json")
	if strings.HasPrefix(base, "chat_session_") {
		return strings.TrimPrefix(base, "chat_session_"), true
	}
	if strings.HasSuffix(base, "_conversation") {
		return strings.TrimSuffix(base, "_conversation"), true
	}
	return "", false
}

func snapshot(sess *domain.Session) domain.Session {
	out := *sess
	out.ConversationHistory = make([]domain.Message, len(sess.ConversationHistory))
	copy(out.ConversationHistory, sess.ConversationHistory)
	return out
}
