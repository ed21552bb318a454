package budget

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// EnvelopeType tags graph payloads sent to the UI.
const EnvelopeType = "budget_sankey"

// Envelope is the wire shape published on the "ui" data channel.
type Envelope struct {
	Type  string     `json:"type"`
	Nodes []FlowNode `json:"nodes"`
	Links []FlowLink `json:"links"`
}

// NewEnvelope wraps g for transport.
func NewEnvelope(g Graph) Envelope {
	return Envelope{Type: EnvelopeType, Nodes: g.Nodes, Links: g.Links}
}

// Marshal encodes the envelope as JSON bytes.
func (e Envelope) Marshal() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return data, nil
}

// IsEnvelope reports whether data looks like a graph envelope without fully
// decoding it.
func IsEnvelope(data []byte) bool {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return false
	}
	return probe.Type == EnvelopeType
}

// DecodeEnvelope parses a published envelope and re-normalizes it, so a
// receiver never renders a graph with dangling links.
func DecodeEnvelope(data []byte) (Graph, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Graph{}, fmt.Errorf("%w: decode envelope: %v", ErrInvalidGraphInput, err)
	}
	if env.Type != EnvelopeType {
		return Graph{}, fmt.Errorf("%w: unexpected envelope type %q", ErrInvalidGraphInput, env.Type)
	}
	return Normalize(env.Nodes, env.Links)
}

// ToolArguments is the argument object an LLM sends when it asks for a chart.
type ToolArguments struct {
	Nodes   []FlowNode `json:"nodes" validate:"required,min=1"`
	Links   []FlowLink `json:"links" validate:"required,min=1"`
	Balance bool       `json:"balance,omitempty"`
}

var validate = validator.New()

// ParseToolArguments decodes and validates raw tool-call arguments. The
// returned error wraps ErrInvalidGraphInput for any malformed input.
func ParseToolArguments(raw string) (ToolArguments, error) {
	var args ToolArguments
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return ToolArguments{}, fmt.Errorf("%w: decode arguments: %v", ErrInvalidGraphInput, err)
	}
	if err := validate.Struct(args); err != nil {
		return ToolArguments{}, fmt.Errorf("%w: %s", ErrInvalidGraphInput, formatValidationError(err))
	}
	return args, nil
}

// Build normalizes the arguments and, when requested, balances every parent.
func (a ToolArguments) Build() (Graph, error) {
	g, err := Normalize(a.Nodes, a.Links)
	if err != nil {
		return Graph{}, err
	}
	if a.Balance {
		g, _ = BalanceAll(g)
	}
	return g, nil
}

func formatValidationError(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		field := strings.ToLower(e.Field())
		switch e.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", field))
		case "min":
			msgs = append(msgs, fmt.Sprintf("%s needs at least %s entries", field, e.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid", field))
		}
	}
	return strings.Join(msgs, "; ")
}
