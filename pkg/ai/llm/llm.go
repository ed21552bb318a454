// Package llm defines the chat-completion interface the assistant talks to,
// including tool (function) calling.
package llm

import (
	"context"

	"github.com/calmcall/finassist/pkg/ai"
)

var (
	// ErrRecoverable indicates a temporary LLM failure that may succeed if retried.
	ErrRecoverable = ai.ErrRecoverable

	// ErrFatal indicates a permanent LLM failure that will not succeed if retried.
	ErrFatal = ai.ErrFatal
)

// MessageRole represents the role of a message in a chat conversation.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleTool      MessageRole = "tool"
)

// Message represents a single message in a chat conversation.
type Message struct {
	Role    MessageRole
	Content string

	// ToolCalls is set on assistant messages that requested tools.
	ToolCalls []FunctionCall

	// ToolCallID and Name identify the call a tool message answers.
	ToolCallID string
	Name       string
}

// FunctionCall represents a function call request from the LLM.
type FunctionCall struct {
	ID        string
	Name      string
	Arguments string // JSON-encoded arguments
}

// ChatRequest contains parameters for a chat completion request.
type ChatRequest struct {
	Messages    []Message
	MaxTokens   int
	Temperature float32
	TopP        float32
	Functions   []FunctionDefinition
}

// ChatResponse contains the response from a chat completion request.
type ChatResponse struct {
	Message      Message
	TokensUsed   int
	FinishReason string
}

// FunctionCalls returns the tool calls the model asked for, if any.
func (r ChatResponse) FunctionCalls() []FunctionCall {
	return r.Message.ToolCalls
}

// FunctionDefinition defines a function that the LLM can call.
type FunctionDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON schema
}

// LLMCapabilities describes the capabilities of an LLM provider.
type LLMCapabilities struct {
	Provider           string
	Model              string
	SupportsFunctions  bool
	SupportsSystemRole bool
	MaxTokens          int
}

// LLM is the main interface for large language model providers.
type LLM interface {
	// Chat performs a chat completion request.
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)

	// Capabilities returns the provider's capabilities.
	Capabilities() LLMCapabilities
}

// SystemMessage is shorthand for a system prompt message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage is shorthand for a user message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// ToolResult answers call with content.
func ToolResult(call FunctionCall, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: call.ID, Name: call.Name}
}
