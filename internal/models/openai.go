package models

import "encoding/json"

// Message roles accepted from clients
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// ChatMessage is one turn of a conversation
type ChatMessage struct {
	Role    string `json:"role" binding:"required,oneof=user assistant system"`
	Content string `json:"content"`
}

// ChatRequest is the inbound payload of /api/chat and /api/chat/completions.
// Either Message or a non-empty Messages must be set; Messages wins when both are.
type ChatRequest struct {
	Message  string        `json:"message,omitempty"`
	Messages []ChatMessage `json:"messages,omitempty" binding:"omitempty,dive"`
	Model    string        `json:"model,omitempty"`
	Stream   bool          `json:"stream,omitempty"`
}

// Conversation returns the ordered message list to send upstream, or nil when
// the request carries no content.
func (r *ChatRequest) Conversation() []ChatMessage {
	if len(r.Messages) > 0 {
		return r.Messages
	}
	if r.Message != "" {
		return []ChatMessage{{Role: RoleUser, Content: r.Message}}
	}
	return nil
}

// ChatResponse is the normalized non-streaming reply
type ChatResponse struct {
	Response string `json:"response"`
	Model    string `json:"model"`
}

// ErrorResponse is the body of every failed request and the final SSE error frame
type ErrorResponse struct {
	Error string `json:"error"`
}

// ModelInfo describes one selectable model
type ModelInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ModelsResponse is the body of GET /api/models
type ModelsResponse struct {
	Models  []ModelInfo `json:"models"`
	Default string      `json:"default"`
}

// HealthResponse is the body of GET /api/
type HealthResponse struct {
	Message   string `json:"message"`
	Version   string `json:"version"`
	Timestamp string `json:"timestamp"`
}

// Upstream (OpenRouter, OpenAI-compatible) wire types

// CompletionRequest is the body sent to the upstream completions endpoint
type CompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Stream      bool          `json:"stream"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

// CompletionResponse is the subset of the upstream reply the passthrough reads
type CompletionResponse struct {
	ID      string             `json:"id,omitempty"`
	Model   string             `json:"model"`
	Choices []CompletionChoice `json:"choices"`
	Usage   *Usage             `json:"usage,omitempty"`
}

type CompletionChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason,omitempty"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Completion pairs the decoded upstream reply with its raw body so callers
// can return either the normalized or the verbatim form.
type Completion struct {
	Raw      json.RawMessage
	Response CompletionResponse
}

// Normalize reduces the completion to {response, model}, falling back to
// the requested model when upstream omits it.
func (c *Completion) Normalize(requestedModel string) ChatResponse {
	model := c.Response.Model
	if model == "" {
		model = requestedModel
	}
	var content string
	if len(c.Response.Choices) > 0 {
		content = c.Response.Choices[0].Message.Content
	}
	return ChatResponse{Response: content, Model: model}
}
