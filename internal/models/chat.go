package models

import "time"

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// ChatMessage represents a single message in a conversation. Messages are
// appended, never mutated or reordered; old ones are only dropped by the
// history cap.
type ChatMessage struct {
	ID        string                 `json:"id"`
	Role      string                 `json:"role"`
	Content   string                 `json:"content"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// ChatSession holds per-session conversation state. The system prompt lives
// out of band and is never subject to the history cap.
type ChatSession struct {
	SessionID    string                 `json:"session_id"`
	Messages     []*ChatMessage         `json:"messages"`
	SystemPrompt string                 `json:"system_prompt,omitempty"`
	Settings     map[string]interface{} `json:"settings,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
}

// SessionInfo is the listing view of a session (metadata only).
type SessionInfo struct {
	SessionID    string    `json:"session_id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
	LastMessage  string    `json:"last_message,omitempty"`
}

// ContextInfo records what retrieval contributed to one chat turn.
type ContextInfo struct {
	RetrievedDocuments int      `json:"retrieved_documents"`
	Sources            []string `json:"sources,omitempty"`
	RAGDisabled        bool     `json:"rag_disabled,omitempty"`
}

// TokenUsage is the provider-reported token accounting for one completion.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// ChatResult is the structured success payload of one chat turn.
type ChatResult struct {
	Response    string      `json:"response"`
	MessageID   string      `json:"message_id"`
	Usage       TokenUsage  `json:"usage"`
	Provider    string      `json:"provider,omitempty"`
	ContextInfo ContextInfo `json:"context_info"`
	Timestamp   time.Time   `json:"timestamp"`
}

// SessionStats summarizes one session.
type SessionStats struct {
	SessionID         string    `json:"session_id"`
	TotalMessages     int       `json:"total_messages"`
	UserMessages      int       `json:"user_messages"`
	AssistantMessages int       `json:"assistant_messages"`
	TotalTokensUsed   int       `json:"total_tokens_used"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}
