package handler

import (
	"encoding/json"
	"net/http"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wenqu/procurement-assistant/internal/api/response"
	"github.com/wenqu/procurement-assistant/internal/domain"
	"github.com/wenqu/procurement-assistant/internal/session"
)

// SessionHandler serves session persistence endpoints.
type SessionHandler struct {
	store *session.Store
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(store *session.Store) *SessionHandler {
	return &SessionHandler{store: store}
}

type saveChatRequest struct {
	SessionID string           `json:"session_id"`
	Messages  []domain.Message `json:"messages"`
}

type loadChatRequest struct {
	SessionID string `json:"session_id"`
}

// Save handles POST /save_chat.
func (h *SessionHandler) Save(w http.ResponseWriter, r *http.Request) {
	var req saveChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, domain.ErrKindInput, "请求体不是有效的 JSON")
		return
	}
	if req.SessionID == "" {
		response.Error(w, http.StatusBadRequest, domain.ErrKindInput, "session_id 不能为空")
		return
	}

	var err error
	if len(req.Messages) > 0 {
		err = h.store.SaveMessages(req.SessionID, req.Messages)
	} else {
		err = h.store.Persist(req.SessionID)
	}
	if err != nil {
		log.Error().Err(err).Str("session_id", req.SessionID).Msg("failed to save session")
		response.Error(w, http.StatusInternalServerError, domain.ErrKindInternal, "会话保存失败")
		return
	}

	path := h.store.FilePath(req.SessionID)
	response.OK(w, map[string]any{
		"status":     "success",
		"session_id": req.SessionID,
		"file_path":  path,
		"filename":   filepath.Base(path),
	})
}

// Load handles POST /load_chat.
func (h *SessionHandler) Load(w http.ResponseWriter, r *http.Request) {
	var req loadChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, domain.ErrKindInput, "请求体不是有效的 JSON")
		return
	}
	if req.SessionID == "" {
		response.Error(w, http.StatusBadRequest, domain.ErrKindInput, "session_id 不能为空")
		return
	}

	sess, path := h.store.Load(req.SessionID)

	payload := map[string]any{
		"status":        "success",
		"session_id":    sess.SessionID,
		"messages":      sess.ConversationHistory,
		"message_count": len(sess.ConversationHistory),
	}
	if !sess.LastUpdated.IsZero() {
		payload["last_updated"] = sess.LastUpdated.Format(time.RFC3339)
	}
	if path != "" {
		payload["file_path"] = path
	}
	response.OK(w, payload)
}

// List handles GET /list-sessions.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	infos := h.store.List()
	if infos == nil {
		infos = []session.Info{}
	}
	response.OK(w, map[string]any{
		"status":         "success",
		"total_sessions": len(infos),
		"sessions":       infos,
	})
}
