package domain

import (
	"sort"
	"time"
)

// MaxHistoryLength bounds the conversation history per session; the oldest
// entries are truncated on overflow.
const MaxHistoryLength = 100

// DataCacheTTL is how long a cached analysis result stays usable for
// follow-up questions.
const DataCacheTTL = 30 * time.Minute

// Session is a single conversation thread keyed by an opaque session id.
type Session struct {
	SessionID           string     `json:"session_id"`
	Created             time.Time  `json:"created"`
	LastUpdated         time.Time  `json:"last_updated"`
	PsqlUsed            bool       `json:"psql_used"`
	QueryCount          int        `json:"query_count"`
	LastQueryTime       *time.Time `json:"last_query_time"`
	DatabaseUnderstood  bool       `json:"database_understood"`
	ConversationHistory []Message  `json:"conversation_history"`
}

// NewSession creates an empty session with fresh timestamps.
func NewSession(id string) *Session {
	now := time.Now()
	return &Session{
		SessionID:           id,
		Created:             now,
		LastUpdated:         now,
		ConversationHistory: []Message{},
	}
}

// Normalize sorts the history by timestamp, removes entries sharing a
// timestamp with an earlier one, and truncates to the most recent
// MaxHistoryLength entries.
func (s *Session) Normalize() {
	sort.SliceStable(s.ConversationHistory, func(i, j int) bool {
		return s.ConversationHistory[i].Timestamp.Before(s.ConversationHistory[j].Timestamp)
	})

	deduped := s.ConversationHistory[:0]
	var last time.Time
	for i, m := range s.ConversationHistory {
		if i > 0 && m.Timestamp.Equal(last) {
			continue
		}
		deduped = append(deduped, m)
		last = m.Timestamp
	}
	s.ConversationHistory = deduped

	if len(s.ConversationHistory) > MaxHistoryLength {
		s.ConversationHistory = s.ConversationHistory[len(s.ConversationHistory)-MaxHistoryLength:]
	}
}

// Merge combines a persisted session (base) with the in-memory one (overlay).
// History becomes the union keyed by timestamp; scalar fields take the
// overlay value; the earliest created timestamp wins.
func Merge(base, overlay *Session) *Session {
	if base == nil {
		out := *overlay
		out.Normalize()
		return &out
	}

	merged := *overlay

	seen := make(map[int64]bool, len(overlay.ConversationHistory))
	for _, m := range overlay.ConversationHistory {
		seen[m.Timestamp.UnixNano()] = true
	}
	history := append([]Message{}, overlay.ConversationHistory...)
	for _, m := range base.ConversationHistory {
		if !seen[m.Timestamp.UnixNano()] {
			history = append(history, m)
		}
	}
	merged.ConversationHistory = history

	if !base.Created.IsZero() && base.Created.Before(overlay.Created) {
		merged.Created = base.Created
	}

	merged.Normalize()
	return &merged
}

// DataCache is the single most-recent analysis result kept per session to
// enrich follow-up natural-language references.
type DataCache struct {
	QueryTime    time.Time `json:"query_time"`
	UserMessage  string    `json:"user_message"`
	DataCount    int       `json:"data_count"`
	ResponseData string    `json:"response_data"`
}

// Fresh reports whether the cache entry is still within its validity window.
func (c *DataCache) Fresh(now time.Time) bool {
	if c == nil {
		return false
	}
	return now.Sub(c.QueryTime) <= DataCacheTTL
}
