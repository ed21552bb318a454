// Package agent implements the CalmCall assistant: a conversation loop that
// moves through Idle → Listening → Thinking → Speaking, lets the model call
// tools between replies, and keeps the transcript of what was said.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/calmcall/finassist/pkg/ai/llm"
	"github.com/calmcall/finassist/pkg/ai/stt"
	"github.com/calmcall/finassist/pkg/ai/tts"
	"github.com/calmcall/finassist/pkg/session"
)

// State is the assistant's position in the conversation.
type State int32

const (
	StateIdle State = iota
	StateListening
	StateThinking
	StateSpeaking
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateListening:
		return "Listening"
	case StateThinking:
		return "Thinking"
	case StateSpeaking:
		return "Speaking"
	default:
		return fmt.Sprintf("Unknown(%d)", s)
	}
}

const (
	// DefaultMaxToolRounds bounds model ↔ tool exchanges within one turn.
	DefaultMaxToolRounds = 4

	// MaxResumeItems bounds how much of a resumed transcript is replayed
	// to the model.
	MaxResumeItems = 120

	// DefaultInstructions is used when no persona prompt is given.
	DefaultInstructions = "You are a helpful, concise voice assistant. Keep responses short and speak-friendly."

	fallbackReply = "I'm here with you. Could you say that another way?"
)

var (
	// ErrEmptyInput is returned for a turn with nothing to respond to.
	ErrEmptyInput = errors.New("empty user input")

	// ErrNoSpeech is returned when a voice turn needs STT or TTS that was
	// not configured.
	ErrNoSpeech = errors.New("speech provider not configured")
)

// Config holds the collaborators of an Assistant.
type Config struct {
	LLM llm.LLM

	// STT and TTS are needed only for Respond and Speak.
	STT stt.Transcriber
	TTS tts.TTS

	Tools        *Toolset
	Instructions string
	Voice        string

	// Transcript resumes an earlier conversation: its last MaxResumeItems
	// items become the opening history and transcript.
	Transcript []session.TranscriptItem

	MaxToolRounds int
	Temperature   float32

	Observer Observer
	Now      func() time.Time
	Logger   *slog.Logger
}

// Assistant runs one conversation. Turns are serialized.
type Assistant struct {
	cfg      Config
	observer Observer
	logger   *slog.Logger

	state atomic.Int32

	turnMu     sync.Mutex
	mu         sync.Mutex
	history    []llm.Message
	transcript []session.TranscriptItem
}

// ToolOutcome records one tool call made during a turn.
type ToolOutcome struct {
	Name   string `json:"name"`
	Result string `json:"result"`
}

// Reply is the assistant's answer to one user turn.
type Reply struct {
	Text      string
	ToolCalls []ToolOutcome
	Rounds    int
}

// VoiceReply is the result of a full audio turn.
type VoiceReply struct {
	Transcript string
	Reply      Reply
	Audio      tts.Synthesis
}

// New creates an Assistant.
func New(cfg Config) (*Assistant, error) {
	if cfg.LLM == nil {
		return nil, fmt.Errorf("LLM is required")
	}
	if strings.TrimSpace(cfg.Instructions) == "" {
		cfg.Instructions = DefaultInstructions
	}
	if cfg.MaxToolRounds <= 0 {
		cfg.MaxToolRounds = DefaultMaxToolRounds
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	a := &Assistant{
		cfg:      cfg,
		observer: observerOrNop(cfg.Observer),
		logger:   logger,
	}
	a.resume(cfg.Transcript)
	a.state.Store(int32(StateIdle))
	return a, nil
}

func (a *Assistant) resume(items []session.TranscriptItem) {
	if len(items) > MaxResumeItems {
		items = items[len(items)-MaxResumeItems:]
	}
	for _, item := range items {
		text := strings.TrimSpace(item.Message)
		if text == "" {
			continue
		}
		switch item.Origin {
		case session.OriginLocal:
			a.history = append(a.history, llm.UserMessage(text))
		case session.OriginRemote:
			a.history = append(a.history, llm.Message{Role: llm.RoleAssistant, Content: text})
		default:
			continue
		}
		a.transcript = append(a.transcript, item)
	}
}

// State returns the current state.
func (a *Assistant) State() State {
	return State(a.state.Load())
}

func (a *Assistant) setState(s State) {
	old := State(a.state.Swap(int32(s)))
	if old != s {
		a.observer.StateChanged(old, s)
	}
}

// Turn answers userText. The model may call tools up to MaxToolRounds times
// before it must reply; any calls it asks for after that are ignored.
func (a *Assistant) Turn(ctx context.Context, userText string) (Reply, error) {
	defer a.setState(StateIdle)
	return a.turn(ctx, userText)
}

func (a *Assistant) turn(ctx context.Context, userText string) (Reply, error) {
	userText = strings.TrimSpace(userText)
	if userText == "" {
		return Reply{}, ErrEmptyInput
	}

	a.turnMu.Lock()
	defer a.turnMu.Unlock()

	a.setState(StateThinking)
	mark := a.checkpoint()
	a.appendHistory(llm.UserMessage(userText))
	a.record(userText, session.OriginLocal)

	var reply Reply
	for round := 0; ; round++ {
		resp, err := a.cfg.LLM.Chat(ctx, llm.ChatRequest{
			Messages:    a.messages(),
			Functions:   a.cfg.Tools.Definitions(),
			Temperature: a.cfg.Temperature,
		})
		if err != nil {
			a.rollback(mark)
			return Reply{}, fmt.Errorf("assistant turn: %w", err)
		}

		calls := resp.FunctionCalls()
		if len(calls) == 0 || round >= a.cfg.MaxToolRounds {
			if len(calls) > 0 {
				a.logger.Warn("tool round limit reached, ignoring calls",
					slog.Int("rounds", round),
					slog.Int("ignored_calls", len(calls)))
			}
			reply.Rounds = round
			reply.Text = strings.TrimSpace(resp.Message.Content)
			break
		}

		a.appendHistory(llm.Message{
			Role:      llm.RoleAssistant,
			Content:   resp.Message.Content,
			ToolCalls: calls,
		})
		for _, call := range calls {
			result := a.cfg.Tools.Call(ctx, call)
			a.appendHistory(llm.ToolResult(call, result))
			reply.ToolCalls = append(reply.ToolCalls, ToolOutcome{Name: call.Name, Result: result})
		}
	}

	if reply.Text == "" {
		reply.Text = fallbackReply
	}
	a.appendHistory(llm.Message{Role: llm.RoleAssistant, Content: reply.Text})
	a.record(reply.Text, session.OriginRemote)

	a.logger.Debug("assistant turn completed",
		slog.Int("rounds", reply.Rounds),
		slog.Int("tool_calls", len(reply.ToolCalls)))
	return reply, nil
}

// Speak synthesizes text with the configured TTS and voice.
func (a *Assistant) Speak(ctx context.Context, text string) (tts.Synthesis, error) {
	defer a.setState(StateIdle)
	return a.speak(ctx, text)
}

func (a *Assistant) speak(ctx context.Context, text string) (tts.Synthesis, error) {
	if a.cfg.TTS == nil {
		return tts.Synthesis{}, ErrNoSpeech
	}
	a.setState(StateSpeaking)

	out, err := a.cfg.TTS.Synthesize(ctx, tts.SynthesizeRequest{
		Text:  text,
		Voice: a.cfg.Voice,
	})
	if err != nil {
		return tts.Synthesis{}, fmt.Errorf("synthesize reply: %w", err)
	}
	return out, nil
}

// Respond runs a full voice turn: transcribe audio, answer it, and speak the
// answer.
func (a *Assistant) Respond(ctx context.Context, audio []byte, mimeType string) (VoiceReply, error) {
	if a.cfg.STT == nil || a.cfg.TTS == nil {
		return VoiceReply{}, ErrNoSpeech
	}
	defer a.setState(StateIdle)

	a.setState(StateListening)
	tr, err := a.cfg.STT.Transcribe(ctx, audio, mimeType)
	if err != nil {
		return VoiceReply{}, fmt.Errorf("transcribe: %w", err)
	}
	out := VoiceReply{Transcript: tr.Text}

	out.Reply, err = a.turn(ctx, tr.Text)
	if err != nil {
		return out, err
	}

	out.Audio, err = a.speak(ctx, out.Reply.Text)
	if err != nil {
		return out, err
	}
	return out, nil
}

// Transcript returns a copy of what has been said so far.
func (a *Assistant) Transcript() []session.TranscriptItem {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]session.TranscriptItem(nil), a.transcript...)
}

// History returns a copy of the conversation sent to the model, without the
// system prompt.
func (a *Assistant) History() []llm.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]llm.Message(nil), a.history...)
}

func (a *Assistant) messages() []llm.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	msgs := make([]llm.Message, 0, len(a.history)+1)
	msgs = append(msgs, llm.SystemMessage(a.cfg.Instructions))
	return append(msgs, a.history...)
}

func (a *Assistant) appendHistory(m llm.Message) {
	a.mu.Lock()
	a.history = append(a.history, m)
	a.mu.Unlock()
}

// turnMark records the history and transcript lengths before a turn.
type turnMark struct{ history, transcript int }

func (a *Assistant) checkpoint() turnMark {
	a.mu.Lock()
	defer a.mu.Unlock()
	return turnMark{history: len(a.history), transcript: len(a.transcript)}
}

// rollback drops everything a failed turn added, so the next turn does not
// follow an unanswered user message.
func (a *Assistant) rollback(m turnMark) {
	a.mu.Lock()
	a.history = a.history[:m.history]
	a.transcript = a.transcript[:m.transcript]
	a.mu.Unlock()
}

func (a *Assistant) record(message, origin string) {
	a.mu.Lock()
	a.transcript = append(a.transcript, session.TranscriptItem{
		Timestamp: a.cfg.Now().UnixMilli(),
		Message:   message,
		Origin:    origin,
	})
	a.mu.Unlock()
}
