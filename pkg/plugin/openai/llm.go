package openai

import (
	"context"
	"errors"
	"log/slog"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/calmcall/finassist/pkg/ai"
	"github.com/calmcall/finassist/pkg/ai/llm"
)

const defaultChatModel = "gpt-4.1-mini"

// LLM implements llm.LLM on the chat completions API.
type LLM struct {
	client *openai.Client
	model  string
}

// NewLLM creates an OpenAI chat provider.
func NewLLM(cfg Config) *LLM {
	model := cfg.Model
	if model == "" {
		model = defaultChatModel
	}
	return &LLM{client: newClient(cfg), model: model}
}

// Chat performs one chat completion. Tool calls in the reply are returned on
// the response message.
func (o *LLM) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	start := time.Now()

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.model,
		Messages:    toOpenAIMessages(req.Messages),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Tools:       toOpenAITools(req.Functions),
	})
	if err != nil {
		return llm.ChatResponse{}, classify("chat", err)
	}
	if len(resp.Choices) == 0 {
		return llm.ChatResponse{}, ai.NewRecoverableError(providerName, "chat", errors.New("no completion choices returned"))
	}

	choice := resp.Choices[0]
	out := llm.ChatResponse{
		Message: llm.Message{
			Role:    llm.RoleAssistant,
			Content: choice.Message.Content,
		},
		TokensUsed:   resp.Usage.TotalTokens,
		FinishReason: string(choice.FinishReason),
	}
	for _, tc := range choice.Message.ToolCalls {
		out.Message.ToolCalls = append(out.Message.ToolCalls, llm.FunctionCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}

	slog.Debug("openai chat completion",
		slog.String("model", o.model),
		slog.Int("messages", len(req.Messages)),
		slog.Int("tool_calls", len(out.Message.ToolCalls)),
		slog.Int("tokens", out.TokensUsed),
		slog.Duration("duration", time.Since(start)))

	return out, nil
}

func (o *LLM) Capabilities() llm.LLMCapabilities {
	return llm.LLMCapabilities{
		Provider:           providerName,
		Model:              o.model,
		SupportsFunctions:  true,
		SupportsSystemRole: true,
		MaxTokens:          128000,
	}
}

func toOpenAIMessages(msgs []llm.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		msg := openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		}
		switch m.Role {
		case llm.RoleTool:
			msg.Role = openai.ChatMessageRoleTool
			msg.ToolCallID = m.ToolCallID
			msg.Name = m.Name
		case llm.RoleAssistant:
			for _, call := range m.ToolCalls {
				msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
					ID:   call.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      call.Name,
						Arguments: call.Arguments,
					},
				})
			}
		}
		out = append(out, msg)
	}
	return out
}

func toOpenAITools(defs []llm.FunctionDefinition) []openai.Tool {
	if len(defs) == 0 {
		return nil
	}
	tools := make([]openai.Tool, len(defs))
	for i, fn := range defs {
		tools[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        fn.Name,
				Description: fn.Description,
				Parameters:  fn.Parameters,
			},
		}
	}
	return tools
}
