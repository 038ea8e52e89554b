package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"rag-chat/internal/llm"
	"rag-chat/internal/models"
	"rag-chat/internal/repositories"
)

const defaultSystemPrompt = `You are a helpful AI assistant with access to a knowledge base of uploaded documents.

Guidelines:
- Answer questions using both your training data and the provided context from documents
- If retrieved context is relevant, incorporate it naturally into your response and cite sources
- If no relevant context is found, rely on your training data but mention this
- Handle multi-turn conversations with context awareness
- Be concise and accurate

Current session context will include relevant document excerpts when available.`

// contextCharBudget caps how much of each retrieved chunk is injected into a
// provider call.
const contextCharBudget = 500

// SessionNotFoundError signals an unknown or deleted session id.
type SessionNotFoundError struct {
	SessionID string
}

func (e *SessionNotFoundError) Error() string {
	return "session not found: " + e.SessionID
}

// ChatConfig carries the chat-layer tunables.
type ChatConfig struct {
	MaxHistory   int
	RAGResults   int
	DefaultModel string
	MaxTokens    int
	Temperature  float64
	SystemPrompt string
}

// sessionEntry pairs a session with its own lock so concurrent turns on one
// session serialize without blocking unrelated sessions.
type sessionEntry struct {
	mu      sync.Mutex
	session *models.ChatSession
}

// ChatService owns all in-memory chat sessions and assembles provider calls
// from history plus retrieved context. Sessions live for the process lifetime
// unless explicitly deleted.
type ChatService struct {
	index    repositories.VectorIndex
	provider llm.Provider
	config   ChatConfig
	logger   *log.Logger

	mu       sync.RWMutex
	sessions map[string]*sessionEntry
}

// NewChatService creates the session store. The provider is injected once at
// startup; there is no per-call backend detection.
func NewChatService(index repositories.VectorIndex, provider llm.Provider, config ChatConfig, logger *log.Logger) *ChatService {
	if config.MaxHistory <= 0 {
		config.MaxHistory = 50
	}
	if config.RAGResults <= 0 {
		config.RAGResults = 5
	}
	if config.SystemPrompt == "" {
		config.SystemPrompt = defaultSystemPrompt
	}

	return &ChatService{
		index:    index,
		provider: provider,
		config:   config,
		logger:   logger,
		sessions: make(map[string]*sessionEntry),
	}
}

// CreateSession allocates a new session with the given system prompt and
// settings, both optional.
func (s *ChatService) CreateSession(systemPrompt string, settings map[string]interface{}) *models.ChatSession {
	if systemPrompt == "" {
		systemPrompt = s.config.SystemPrompt
	}
	if settings == nil {
		settings = make(map[string]interface{})
	}

	now := time.Now()
	session := &models.ChatSession{
		SessionID:    uuid.New().String(),
		Messages:     []*models.ChatMessage{},
		SystemPrompt: systemPrompt,
		Settings:     settings,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	s.mu.Lock()
	s.sessions[session.SessionID] = &sessionEntry{session: session}
	s.mu.Unlock()

	s.logger.Printf("Created chat session %s", session.SessionID)
	return session
}

func (s *ChatService) entry(sessionID string) (*sessionEntry, error) {
	s.mu.RLock()
	entry, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, &SessionNotFoundError{SessionID: sessionID}
	}
	return entry, nil
}

// GetSession returns a snapshot copy of a session.
func (s *ChatService) GetSession(sessionID string) (*models.ChatSession, error) {
	entry, err := s.entry(sessionID)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	return snapshotSession(entry.session), nil
}

// AddMessage appends a message and enforces the history cap. Returns the
// stored message.
func (s *ChatService) AddMessage(sessionID, role, content string, metadata map[string]interface{}) (*models.ChatMessage, error) {
	entry, err := s.entry(sessionID)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	return s.appendLocked(entry.session, role, content, metadata), nil
}

// appendLocked appends and applies the cap. Caller holds the session lock.
func (s *ChatService) appendLocked(session *models.ChatSession, role, content string, metadata map[string]interface{}) *models.ChatMessage {
	msg := &models.ChatMessage{
		ID:        uuid.New().String(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
		Metadata:  metadata,
	}
	session.Messages = append(session.Messages, msg)
	session.UpdatedAt = msg.Timestamp

	s.enforceCapLocked(session)
	return msg
}

// enforceCapLocked applies the sliding-window cap: system messages are pinned,
// the most recent non-system messages fill the remainder. If system messages
// alone reach the cap, only the most recent cap of them survive.
func (s *ChatService) enforceCapLocked(session *models.ChatSession) {
	limit := s.config.MaxHistory
	if len(session.Messages) <= limit {
		return
	}

	var system, rest []*models.ChatMessage
	for _, msg := range session.Messages {
		if msg.Role == models.RoleSystem {
			system = append(system, msg)
		} else {
			rest = append(rest, msg)
		}
	}

	if len(system) >= limit {
		session.Messages = system[len(system)-limit:]
		return
	}

	keep := limit - len(system)
	if len(rest) > keep {
		rest = rest[len(rest)-keep:]
	}

	merged := make([]*models.ChatMessage, 0, len(system)+len(rest))
	merged = append(merged, system...)
	merged = append(merged, rest...)
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Timestamp.Before(merged[j].Timestamp)
	})
	session.Messages = merged
}

// GenerateResponse runs one chat turn: append the user message, retrieve
// context when RAG is enabled, call the provider, append the reply. The
// session lock is held only for the in-memory appends, never across the
// provider call. On provider failure the user message stays in history and no
// assistant message is appended.
func (s *ChatService) GenerateResponse(ctx context.Context, sessionID, userMessage string, useRAG bool, ragQuery string) (*models.ChatResult, error) {
	entry, err := s.entry(sessionID)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	s.appendLocked(entry.session, models.RoleUser, userMessage, nil)
	entry.mu.Unlock()

	// Retrieval happens outside the session lock.
	contextInfo := models.ContextInfo{}
	contextBlock := ""
	if useRAG {
		query := ragQuery
		if query == "" {
			query = userMessage
		}

		results, err := s.index.Search(ctx, query, s.config.RAGResults, nil)
		if err != nil {
			s.logger.Printf("RAG search failed for session %s: %v", sessionID, err)
		} else if len(results) > 0 {
			contextInfo.RetrievedDocuments = len(results)
			contextInfo.Sources = dedupeSources(results)
			contextBlock = formatContext(results)
		}
	} else {
		contextInfo.RAGDisabled = true
	}

	// Snapshot history and settings under the lock, then release it for the
	// network call.
	entry.mu.Lock()
	apiMessages := prepareProviderMessages(entry.session, contextBlock)
	systemPrompt := entry.session.SystemPrompt
	opts := s.resolveOptions(entry.session)
	entry.mu.Unlock()

	completion, err := s.provider.Complete(ctx, systemPrompt, apiMessages, opts)
	if err != nil {
		s.logger.Printf("Provider %s failed for session %s: %v", s.provider.Name(), sessionID, err)
		return nil, fmt.Errorf("response generation failed: %w", err)
	}

	metadata := map[string]interface{}{
		"provider": s.provider.Name(),
		"model":    completion.Model,
		"usage": map[string]interface{}{
			"input_tokens":  completion.Usage.InputTokens,
			"output_tokens": completion.Usage.OutputTokens,
		},
		"retrieved_documents": contextInfo.RetrievedDocuments,
	}
	if len(contextInfo.Sources) > 0 {
		metadata["sources"] = contextInfo.Sources
	}
	if contextInfo.RAGDisabled {
		metadata["rag_disabled"] = true
	}

	entry.mu.Lock()
	assistantMsg := s.appendLocked(entry.session, models.RoleAssistant, completion.Text, metadata)
	entry.mu.Unlock()

	return &models.ChatResult{
		Response:  completion.Text,
		MessageID: assistantMsg.ID,
		Usage: models.TokenUsage{
			InputTokens:  completion.Usage.InputTokens,
			OutputTokens: completion.Usage.OutputTokens,
		},
		Provider:    s.provider.Name(),
		ContextInfo: contextInfo,
		Timestamp:   assistantMsg.Timestamp,
	}, nil
}

// resolveOptions merges per-session settings over the global defaults.
func (s *ChatService) resolveOptions(session *models.ChatSession) llm.Options {
	opts := llm.Options{
		Model:       s.config.DefaultModel,
		MaxTokens:   s.config.MaxTokens,
		Temperature: s.config.Temperature,
	}

	if v, ok := session.Settings["model"].(string); ok && v != "" {
		opts.Model = v
	}
	switch v := session.Settings["max_tokens"].(type) {
	case int:
		opts.MaxTokens = v
	case float64:
		opts.MaxTokens = int(v)
	}
	switch v := session.Settings["temperature"].(type) {
	case float64:
		opts.Temperature = v
	case int:
		opts.Temperature = float64(v)
	}

	return opts
}

// prepareProviderMessages builds the provider-facing turn list: user and
// assistant messages in chronological order, with the context block attached
// to the final user turn for this call only. Stored messages are never
// mutated; system-role history entries are not replayed as turns.
func prepareProviderMessages(session *models.ChatSession, contextBlock string) []llm.Message {
	var apiMessages []llm.Message
	lastUserIdx := -1

	for _, msg := range session.Messages {
		if msg.Role != models.RoleUser && msg.Role != models.RoleAssistant {
			continue
		}
		apiMessages = append(apiMessages, llm.Message{Role: msg.Role, Content: msg.Content})
		if msg.Role == models.RoleUser {
			lastUserIdx = len(apiMessages) - 1
		}
	}

	if contextBlock != "" && lastUserIdx >= 0 {
		apiMessages[lastUserIdx].Content += "\n\nRelevant context from knowledge base:\n" +
			contextBlock +
			"\n\nPlease use this context to inform your response when relevant, and cite sources when appropriate."
	}

	return apiMessages
}

// formatContext renders retrieved chunks as labeled sections joined by blank
// lines, each truncated to the character budget.
func formatContext(results []*models.SearchResult) string {
	parts := make([]string, 0, len(results))
	for i, doc := range results {
		source := "Unknown source"
		if s, ok := doc.Metadata["source_file"].(string); ok && s != "" {
			source = s
		}

		content := truncateRunes(doc.Content, contextCharBudget)

		parts = append(parts, fmt.Sprintf("[Source %d: %s]\n%s", i+1, source, content))
	}
	return strings.Join(parts, "\n\n")
}

// truncateRunes cuts s to at most limit runes, appending an ellipsis marker
// when anything was cut. Slicing on runes keeps multi-byte content valid.
func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}

func dedupeSources(results []*models.SearchResult) []string {
	seen := make(map[string]bool)
	var sources []string
	for _, doc := range results {
		source := "unknown"
		if s, ok := doc.Metadata["source_file"].(string); ok && s != "" {
			source = s
		}
		if !seen[source] {
			seen[source] = true
			sources = append(sources, source)
		}
	}
	return sources
}

// GetHistory returns the most recent limit messages, or all when limit <= 0.
func (s *ChatService) GetHistory(sessionID string, limit int) ([]*models.ChatMessage, error) {
	entry, err := s.entry(sessionID)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	messages := entry.session.Messages
	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}

	out := make([]*models.ChatMessage, len(messages))
	copy(out, messages)
	return out, nil
}

// UpdateSystemPrompt replaces the session's system prompt and records the
// change as a system message in history.
func (s *ChatService) UpdateSystemPrompt(sessionID, systemPrompt string) error {
	entry, err := s.entry(sessionID)
	if err != nil {
		return err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	entry.session.SystemPrompt = systemPrompt
	s.appendLocked(entry.session, models.RoleSystem, "System prompt updated: "+systemPrompt, nil)
	return nil
}

// UpdateSettings merges new settings over the session's current ones.
func (s *ChatService) UpdateSettings(sessionID string, settings map[string]interface{}) error {
	entry, err := s.entry(sessionID)
	if err != nil {
		return err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	for k, v := range settings {
		entry.session.Settings[k] = v
	}
	entry.session.UpdatedAt = time.Now()
	return nil
}

// ClearConversation drops all non-system messages from a session.
func (s *ChatService) ClearConversation(sessionID string) error {
	entry, err := s.entry(sessionID)
	if err != nil {
		return err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	var system []*models.ChatMessage
	for _, msg := range entry.session.Messages {
		if msg.Role == models.RoleSystem {
			system = append(system, msg)
		}
	}
	entry.session.Messages = system
	entry.session.UpdatedAt = time.Now()
	return nil
}

// DeleteSession removes a session permanently. Returns whether it existed.
func (s *ChatService) DeleteSession(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return false
	}
	delete(s.sessions, sessionID)
	s.logger.Printf("Deleted chat session %s", sessionID)
	return true
}

// ListSessions returns metadata for every live session.
func (s *ChatService) ListSessions() []*models.SessionInfo {
	s.mu.RLock()
	entries := make([]*sessionEntry, 0, len(s.sessions))
	for _, entry := range s.sessions {
		entries = append(entries, entry)
	}
	s.mu.RUnlock()

	infos := make([]*models.SessionInfo, 0, len(entries))
	for _, entry := range entries {
		entry.mu.Lock()
		session := entry.session
		info := &models.SessionInfo{
			SessionID:    session.SessionID,
			CreatedAt:    session.CreatedAt,
			UpdatedAt:    session.UpdatedAt,
			MessageCount: len(session.Messages),
		}
		if n := len(session.Messages); n > 0 {
			info.LastMessage = truncateRunes(session.Messages[n-1].Content, 100)
		}
		entry.mu.Unlock()
		infos = append(infos, info)
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].UpdatedAt.After(infos[j].UpdatedAt)
	})
	return infos
}

// GetStatistics summarizes one session.
func (s *ChatService) GetStatistics(sessionID string) (*models.SessionStats, error) {
	entry, err := s.entry(sessionID)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	session := entry.session
	stats := &models.SessionStats{
		SessionID:     session.SessionID,
		TotalMessages: len(session.Messages),
		CreatedAt:     session.CreatedAt,
		UpdatedAt:     session.UpdatedAt,
	}

	for _, msg := range session.Messages {
		switch msg.Role {
		case models.RoleUser:
			stats.UserMessages++
		case models.RoleAssistant:
			stats.AssistantMessages++
			if usage, ok := msg.Metadata["usage"].(map[string]interface{}); ok {
				if v, ok := usage["input_tokens"].(int); ok {
					stats.TotalTokensUsed += v
				}
				if v, ok := usage["output_tokens"].(int); ok {
					stats.TotalTokensUsed += v
				}
			}
		}
	}

	return stats, nil
}

// Export renders a session in the requested format: json (full session dump),
// txt (timestamped transcript) or md (markdown transcript).
func (s *ChatService) Export(sessionID, format string) (string, error) {
	session, err := s.GetSession(sessionID)
	if err != nil {
		return "", err
	}

	switch strings.ToLower(format) {
	case "json":
		data, err := json.MarshalIndent(session, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to marshal session: %w", err)
		}
		return string(data), nil

	case "txt":
		var sb strings.Builder
		sb.WriteString("Chat Session: " + session.SessionID + "\n")
		sb.WriteString("Created: " + session.CreatedAt.Format(time.RFC3339) + "\n")
		sb.WriteString("Updated: " + session.UpdatedAt.Format(time.RFC3339) + "\n")
		sb.WriteString(strings.Repeat("-", 50))
		for _, msg := range session.Messages {
			sb.WriteString(fmt.Sprintf("\n\n[%s] %s:\n%s",
				msg.Timestamp.Format("2006-01-02 15:04:05"), strings.ToUpper(msg.Role), msg.Content))
		}
		return sb.String(), nil

	case "md":
		var sb strings.Builder
		sb.WriteString("# Chat Session: " + session.SessionID + "\n")
		sb.WriteString("**Created:** " + session.CreatedAt.Format(time.RFC3339) + "\n")
		sb.WriteString("**Updated:** " + session.UpdatedAt.Format(time.RFC3339) + "\n")
		for _, msg := range session.Messages {
			title := strings.ToUpper(msg.Role[:1]) + msg.Role[1:]
			sb.WriteString(fmt.Sprintf("\n## %s - %s\n\n%s\n",
				title, msg.Timestamp.Format("2006-01-02 15:04:05"), msg.Content))
		}
		return sb.String(), nil

	default:
		return "", fmt.Errorf("unsupported export format: %q", format)
	}
}

// snapshotSession deep-copies enough of a session that callers can read it
// without holding the lock.
func snapshotSession(session *models.ChatSession) *models.ChatSession {
	out := &models.ChatSession{
		SessionID:    session.SessionID,
		SystemPrompt: session.SystemPrompt,
		CreatedAt:    session.CreatedAt,
		UpdatedAt:    session.UpdatedAt,
		Settings:     make(map[string]interface{}, len(session.Settings)),
		Messages:     make([]*models.ChatMessage, len(session.Messages)),
	}
	for k, v := range session.Settings {
		out.Settings[k] = v
	}
	copy(out.Messages, session.Messages)
	return out
}
