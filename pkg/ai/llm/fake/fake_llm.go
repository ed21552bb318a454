package fake

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/calmcall/finassist/pkg/ai/llm"
)

// FakeLLM is a scripted LLM for tests and offline development. Scripted
// responses are returned in order; once they run out it echoes the user.
type FakeLLM struct {
	mu       sync.Mutex
	script   []llm.ChatResponse
	err      error
	requests []llm.ChatRequest
	name     string
}

// NewFakeLLM creates a fake that replies with the given texts in order.
func NewFakeLLM(responses ...string) *FakeLLM {
	f := &FakeLLM{name: "fake"}
	for _, r := range responses {
		f.script = append(f.script, Reply(r))
	}
	return f
}

// NewScriptedLLM creates a fake that returns resps in order.
func NewScriptedLLM(resps ...llm.ChatResponse) *FakeLLM {
	return &FakeLLM{name: "fake", script: resps}
}

// NewFailingLLM creates a fake whose every call fails with err.
func NewFailingLLM(err error) *FakeLLM {
	return &FakeLLM{name: "fake-failing", err: err}
}

// Named sets the provider name reported by Capabilities.
func (f *FakeLLM) Named(name string) *FakeLLM {
	f.name = name
	return f
}

// Reply builds a plain text assistant response.
func Reply(text string) llm.ChatResponse {
	return llm.ChatResponse{
		Message:      llm.Message{Role: llm.RoleAssistant, Content: text},
		TokensUsed:   len(strings.Fields(text)) + 10,
		FinishReason: "stop",
	}
}

// CallTool builds a response that asks for a single tool call.
func CallTool(id, name, args string) llm.ChatResponse {
	return llm.ChatResponse{
		Message: llm.Message{
			Role:      llm.RoleAssistant,
			ToolCalls: []llm.FunctionCall{{ID: id, Name: name, Arguments: args}},
		},
		TokensUsed:   50,
		FinishReason: "tool_calls",
	}
}

// Chat returns the next scripted response.
func (f *FakeLLM) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, req)
	if err := ctx.Err(); err != nil {
		return llm.ChatResponse{}, err
	}
	if f.err != nil {
		return llm.ChatResponse{}, f.err
	}
	if len(f.script) > 0 {
		resp := f.script[0]
		f.script = f.script[1:]
		return resp, nil
	}

	var last string
	for _, m := range req.Messages {
		if m.Role == llm.RoleUser {
			last = m.Content
		}
	}
	return Reply(fmt.Sprintf("I hear you. (You said: %s)", last)), nil
}

// Requests returns every request seen so far.
func (f *FakeLLM) Requests() []llm.ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]llm.ChatRequest, len(f.requests))
	copy(out, f.requests)
	return out
}

// Capabilities returns the fake LLM capabilities.
func (f *FakeLLM) Capabilities() llm.LLMCapabilities {
	return llm.LLMCapabilities{
		Provider:           f.name,
		Model:              "fake-model",
		SupportsFunctions:  true,
		SupportsSystemRole: true,
		MaxTokens:          4096,
	}
}
