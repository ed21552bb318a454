package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/calmcall/finassist/pkg/ai/llm"
	"github.com/calmcall/finassist/pkg/budget"
	"github.com/calmcall/finassist/pkg/job"
	"github.com/calmcall/finassist/pkg/search/tavily"
	"github.com/calmcall/finassist/pkg/session"
)

// TopicChat is the data topic chat messages travel on.
const TopicChat = "lk-chat-topic"

// pendingTurns bounds how many chat messages may wait for the assistant.
const pendingTurns = 16

// ChatMessage is the chat packet exchanged with the web client.
type ChatMessage struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"`
	Message   string `json:"message"`
}

// RoomTransport is the part of *job.Room a session needs.
type RoomTransport interface {
	job.GraphPublisher
	PublishJSON(ctx context.Context, topic string, v any) error
	OnText(h job.TextHandler)
	OnGraphReceived(h job.GraphHandler)
}

// SessionConfig configures a RoomSession.
type SessionConfig struct {
	Job   *job.Job
	Room  RoomTransport
	LLM   llm.LLM
	Store session.Store

	Search   *tavily.Client
	Observer Observer
	Now      func() time.Time
	Logger   *slog.Logger
}

// RoomSession runs one Assistant for a job. Chat messages from participants
// become turns, replies go back on TopicChat, charts go out on the UI topic,
// and the transcript is cached when the session ends.
type RoomSession struct {
	job       *job.Job
	room      RoomTransport
	cache     *session.Cache
	assistant *Assistant
	turns     chan string
	now       func() time.Time
	logger    *slog.Logger
}

// NewRoomSession wires the assistant, its tools and the session cache for
// cfg.Job. The cache is keyed by room name, which is also the session id the
// client was given.
func NewRoomSession(cfg SessionConfig) (*RoomSession, error) {
	if cfg.Job == nil || cfg.Room == nil {
		return nil, fmt.Errorf("job and room are required")
	}
	if cfg.Store == nil {
		cfg.Store = session.NewMemoryStore(0)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(
		slog.String("job_id", cfg.Job.ID),
		slog.String("room", cfg.Job.RoomName),
		slog.String("mode", cfg.Job.Mode.String()))

	cache := session.NewCache(cfg.Store, cfg.Job.RoomName, session.WithClock(cfg.Now), session.WithLogger(logger))
	tools := ToolsForMode(cfg.Job.Mode, Deps{
		Publisher: cfg.Room,
		Cache:     cache,
		Search:    cfg.Search,
		Observer:  cfg.Observer,
		Logger:    logger,
	})

	assistant, err := New(Config{
		LLM:          cfg.LLM,
		Tools:        tools,
		Instructions: session.Prompt(cfg.Job.Mode),
		Observer:     cfg.Observer,
		Now:          cfg.Now,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}

	return &RoomSession{
		job:       cfg.Job,
		room:      cfg.Room,
		cache:     cache,
		assistant: assistant,
		turns:     make(chan string, pendingTurns),
		now:       cfg.Now,
		logger:    logger,
	}, nil
}

// Assistant returns the session's assistant.
func (s *RoomSession) Assistant() *Assistant { return s.assistant }

// Run serves the room until ctx or the job ends. Turns are handled one at a
// time in arrival order.
func (s *RoomSession) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	context.AfterFunc(s.job.Context.Ctx, func() { cancel(s.job.Context.Cause()) })

	s.room.OnText(s.enqueue)
	s.room.OnGraphReceived(func(g budget.Graph, identity string) {
		if err := s.cache.SaveGraph(ctx, g); err != nil {
			s.logger.Warn("failed to cache client graph",
				slog.String("identity", identity),
				slog.String("error", err.Error()))
		}
	})

	s.logger.Info("Room session started")
	defer s.saveTranscript()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Room session ended", slog.String("reason", context.Cause(ctx).Error()))
			return nil
		case text := <-s.turns:
			s.handleTurn(ctx, text)
		}
	}
}

// enqueue accepts a chat packet. Messages arriving while the queue is full
// are dropped.
func (s *RoomSession) enqueue(data, identity string) {
	text := chatText(data)
	if text == "" {
		return
	}
	select {
	case s.turns <- text:
	default:
		s.logger.Warn("Dropping chat message, assistant is busy", slog.String("identity", identity))
	}
}

func (s *RoomSession) handleTurn(ctx context.Context, text string) {
	reply, err := s.assistant.Turn(ctx, text)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Error("assistant turn failed", slog.String("error", err.Error()))
		reply.Text = fallbackReply
	}

	msg := ChatMessage{
		ID:        uuid.NewString(),
		Timestamp: s.now().UnixMilli(),
		Message:   reply.Text,
	}
	if err := s.room.PublishJSON(ctx, TopicChat, msg); err != nil {
		s.logger.Warn("failed to publish reply", slog.String("error", err.Error()))
	}
}

func (s *RoomSession) saveTranscript() {
	items := s.assistant.Transcript()
	if len(items) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), job.ShutdownHookTimeout)
	defer cancel()
	if err := s.cache.SaveTranscript(ctx, items); err != nil {
		s.logger.Warn("failed to cache transcript", slog.String("error", err.Error()))
	}
}

// chatText extracts the message from a chat packet. Packets that are not a
// ChatMessage are taken as plain text.
func chatText(data string) string {
	var msg ChatMessage
	if err := json.Unmarshal([]byte(data), &msg); err == nil && msg.Message != "" {
		return strings.TrimSpace(msg.Message)
	}
	trimmed := strings.TrimSpace(data)
	if strings.HasPrefix(trimmed, "{") {
		return ""
	}
	return trimmed
}
