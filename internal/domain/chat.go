package domain

// ChatRequest is the inbound chat payload.
type ChatRequest struct {
	Message     string `json:"message" validate:"required,max=4000"`
	MessageType string `json:"message_type" validate:"omitempty,oneof=data_analysis normal_chat"`
	SessionID   string `json:"session_id"`
}

// Response types surfaced to the client.
const (
	ResponseTypeSQLAnalysis   = "intelligent_sql_analysis"
	ResponseTypeDatabaseIntro = "database_intro"
	ResponseTypeNormalChat    = "normal_chat"
)

// Error kinds surfaced to the client.
const (
	ErrKindInput          = "input_error"
	ErrKindLLMUnavailable = "llm_unavailable"
	ErrKindUnsafeSQL      = "unsafe_sql"
	ErrKindDBError        = "db_error"
	ErrKindInternal       = "internal_error"
)

// ChatResponse is the outbound chat payload. Message is HTML.
type ChatResponse struct {
	Status       string   `json:"status"`
	ResponseType string   `json:"response_type,omitempty"`
	Message      string   `json:"message"`
	DataCount    *int     `json:"data_count,omitempty"`
	SQLQuery     string   `json:"sql_query,omitempty"`
	TablesUsed   []string `json:"tables_used,omitempty"`
	ErrorKind    string   `json:"error_kind,omitempty"`
	SessionID    string   `json:"session_id,omitempty"`
}

// SuccessResponse builds a success payload.
func SuccessResponse(responseType, message string) ChatResponse {
	return ChatResponse{
		Status:       "success",
		ResponseType: responseType,
		Message:      message,
	}
}

// ErrorResponse builds an error payload of the given kind.
func ErrorResponse(kind, message string) ChatResponse {
	return ChatResponse{
		Status:    "error",
		ErrorKind: kind,
		Message:   message,
	}
}

// IntPtr is a convenience for optional counters in payloads.
func IntPtr(n int) *int { return &n }
