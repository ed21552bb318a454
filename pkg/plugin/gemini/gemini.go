// Package gemini provides a Google Gemini chat provider with function
// calling.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/calmcall/finassist/pkg/ai"
	"github.com/calmcall/finassist/pkg/ai/llm"
	"github.com/calmcall/finassist/pkg/plugin"
)

const (
	providerName = "gemini"
	defaultModel = "gemini-2.5-flash"
)

// Config holds Gemini settings.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string // optional, for proxies and tests
}

// LLM implements llm.LLM on the Gemini API.
type LLM struct {
	client *genai.Client
	model  string
}

// New creates a Gemini chat provider.
func New(ctx context.Context, cfg Config) (*LLM, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini API key is required")
	}
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions.BaseURL = cfg.BaseURL
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	return &LLM{client: client, model: model}, nil
}

func (g *LLM) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	start := time.Now()

	system, contents := toContents(req.Messages)
	config := &genai.GenerateContentConfig{SystemInstruction: system}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Temperature > 0 {
		config.Temperature = genai.Ptr(req.Temperature)
	}
	if req.TopP > 0 {
		config.TopP = genai.Ptr(req.TopP)
	}
	if tools := toTools(req.Functions); tools != nil {
		config.Tools = tools
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return llm.ChatResponse{}, classify(err)
	}

	out, err := fromResponse(resp)
	if err != nil {
		return llm.ChatResponse{}, err
	}

	slog.Debug("gemini generate content",
		slog.String("model", g.model),
		slog.Int("contents", len(contents)),
		slog.Int("tool_calls", len(out.Message.ToolCalls)),
		slog.Duration("duration", time.Since(start)))
	return out, nil
}

func (g *LLM) Capabilities() llm.LLMCapabilities {
	return llm.LLMCapabilities{
		Provider:           providerName,
		Model:              g.model,
		SupportsFunctions:  true,
		SupportsSystemRole: true,
		MaxTokens:          1 << 20,
	}
}

// toContents splits system messages into one instruction and converts the
// rest into alternating user/model contents. Consecutive tool results are
// folded into a single user turn.
func toContents(msgs []llm.Message) (*genai.Content, []*genai.Content) {
	var system []string
	var contents []*genai.Content

	for _, m := range msgs {
		switch m.Role {
		case llm.RoleSystem:
			if s := strings.TrimSpace(m.Content); s != "" {
				system = append(system, s)
			}

		case llm.RoleUser:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))

		case llm.RoleAssistant:
			var parts []*genai.Part
			if m.Content != "" {
				parts = append(parts, &genai.Part{Text: m.Content})
			}
			for _, call := range m.ToolCalls {
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
					ID:   call.ID,
					Name: call.Name,
					Args: decodeArgs(call.Arguments),
				}})
			}
			if len(parts) > 0 {
				contents = append(contents, &genai.Content{Role: genai.RoleModel, Parts: parts})
			}

		case llm.RoleTool:
			part := &genai.Part{FunctionResponse: &genai.FunctionResponse{
				ID:       m.ToolCallID,
				Name:     m.Name,
				Response: map[string]any{"output": m.Content},
			}}
			if n := len(contents); n > 0 && isToolTurn(contents[n-1]) {
				contents[n-1].Parts = append(contents[n-1].Parts, part)
				continue
			}
			contents = append(contents, &genai.Content{Role: genai.RoleUser, Parts: []*genai.Part{part}})
		}
	}

	if len(system) == 0 {
		return nil, contents
	}
	return genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser), contents
}

func isToolTurn(c *genai.Content) bool {
	if c.Role != genai.RoleUser || len(c.Parts) == 0 {
		return false
	}
	for _, p := range c.Parts {
		if p.FunctionResponse == nil {
			return false
		}
	}
	return true
}

func decodeArgs(raw string) map[string]any {
	args := map[string]any{}
	if strings.TrimSpace(raw) == "" {
		return args
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return map[string]any{}
	}
	return args
}

func toTools(defs []llm.FunctionDefinition) []*genai.Tool {
	if len(defs) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, len(defs))
	for i, fn := range defs {
		decls[i] = &genai.FunctionDeclaration{
			Name:                 fn.Name,
			Description:          fn.Description,
			ParametersJsonSchema: fn.Parameters,
		}
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

// fromResponse reads text and function calls from the first candidate.
// Gemini may omit call ids; those get generated ones so tool results can be
// matched up.
func fromResponse(resp *genai.GenerateContentResponse) (llm.ChatResponse, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return llm.ChatResponse{}, ai.NewRecoverableError(providerName, "chat", errors.New("no candidates returned"))
	}
	cand := resp.Candidates[0]

	out := llm.ChatResponse{
		Message:      llm.Message{Role: llm.RoleAssistant},
		FinishReason: strings.ToLower(string(cand.FinishReason)),
	}
	if resp.UsageMetadata != nil {
		out.TokensUsed = int(resp.UsageMetadata.TotalTokenCount)
	}

	var text strings.Builder
	for _, part := range cand.Content.Parts {
		switch {
		case part.FunctionCall != nil:
			args, err := json.Marshal(part.FunctionCall.Args)
			if err != nil {
				return llm.ChatResponse{}, ai.NewFatalError(providerName, "chat", fmt.Errorf("encode function args: %w", err))
			}
			id := part.FunctionCall.ID
			if id == "" {
				id = "call_" + uuid.NewString()
			}
			out.Message.ToolCalls = append(out.Message.ToolCalls, llm.FunctionCall{
				ID:        id,
				Name:      part.FunctionCall.Name,
				Arguments: string(args),
			})
		case part.Text != "" && !part.Thought:
			text.WriteString(part.Text)
		}
	}
	out.Message.Content = text.String()
	return out, nil
}

func classify(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return ai.ClassifyStatus(providerName, "chat", apiErr.Code, err)
	}
	return ai.Classify(providerName, "chat", err)
}

func init() {
	plugin.RegisterWithMetadata(&plugin.Plugin{
		Kind: plugin.KindLLM,
		Name: providerName,
		Factory: func(cfg map[string]any) (any, error) {
			key := plugin.String(cfg, "api_key", "GOOGLE_GENERATIVE_AI_API_KEY", os.Getenv("GEMINI_API_KEY"))
			if key == "" {
				return nil, errors.New("gemini API key is required (set GOOGLE_GENERATIVE_AI_API_KEY or provide api_key in config)")
			}
			return New(context.Background(), Config{
				APIKey:  key,
				Model:   plugin.String(cfg, "model", "GEMINI_MODEL", defaultModel),
				BaseURL: plugin.String(cfg, "base_url", "", ""),
			})
		},
		Description: "Google Gemini chat with function calling",
		Version:     "1.0.0",
		Config: map[string]any{
			"api_key": "Gemini API key (or set GOOGLE_GENERATIVE_AI_API_KEY env var)",
			"model":   defaultModel,
		},
	})
}
