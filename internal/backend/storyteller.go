package backend

// StartRequest represents the request body for POST /start
type StartRequest struct {
	TargetLanguage string `json:"target_language"`
	Level          string `json:"level"`
	NativeLanguage string `json:"native_language"`
}

// StartResponse represents the response from POST /start
type StartResponse struct {
	SessionID string `json:"session_id"`
	Response  string `json:"response"`
}

// ChatRequest represents the request body for POST /chat
type ChatRequest struct {
	SessionID      string `json:"session_id"`
	Message        string `json:"message"`
	TargetLanguage string `json:"target_language"`
	Level          string `json:"level"`
	NativeLanguage string `json:"native_language"`
}

// ChatResponse represents the response from POST /chat
type ChatResponse struct {
	Response string `json:"response"`
}

// Endpoint paths
const (
	PathStart = "/start"
	PathChat  = "/chat"
)
