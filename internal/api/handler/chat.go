package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/wenqu/procurement-assistant/internal/api/response"
	"github.com/wenqu/procurement-assistant/internal/chat"
	"github.com/wenqu/procurement-assistant/internal/domain"
)

// ChatHandler serves the conversational endpoints.
type ChatHandler struct {
	service  *chat.Service
	validate *validator.Validate
}

// NewChatHandler creates a new chat handler
func NewChatHandler(service *chat.Service) *ChatHandler {
	return &ChatHandler{
		service:  service,
		validate: validator.New(),
	}
}

// Post handles POST /chat. Malformed bodies are the only 400; pipeline
// failures come back as 200 payloads with status "error" so the frontend
// renders them inline. Unexpected panics surface as 500 via Recoverer.
func (h *ChatHandler) Post(w http.ResponseWriter, r *http.Request) {
	var req domain.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, domain.ErrKindInput, "请求体不是有效的 JSON")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(w, http.StatusBadRequest, domain.ErrKindInput, "message 不能为空")
		return
	}

	resp := h.service.Process(r.Context(), req)
	if resp.ErrorKind == domain.ErrKindInternal {
		response.JSON(w, http.StatusInternalServerError, resp)
		return
	}
	response.OK(w, resp)
}

// Page handles GET /chat with the embedded chat page.
func (h *ChatHandler) Page(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(chatPage))
}
