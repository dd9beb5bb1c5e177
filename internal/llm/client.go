// Package llm defines the model client abstraction used by discussion
// participants.
package llm

import (
	"context"
)

// Role represents a message sender role.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message represents a single message in a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatRequest contains parameters for a model call.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	System      string    `json:"system,omitempty"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature *float64  `json:"temperature,omitempty"`
}

// ChatResponse contains the model's response to a chat request.
type ChatResponse struct {
	Content string `json:"content"`
}

// Client is the interface for model interactions. Implementations must
// honor ctx cancellation and deadlines; callers bound every call with a
// per-call timeout.
type Client interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}
