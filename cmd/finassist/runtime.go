package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/calmcall/finassist/internal/config"
	"github.com/calmcall/finassist/internal/metrics"
	"github.com/calmcall/finassist/internal/providers"
	"github.com/calmcall/finassist/pkg/agent"
	"github.com/calmcall/finassist/pkg/job"
	"github.com/calmcall/finassist/pkg/search/tavily"
	"github.com/calmcall/finassist/pkg/session"
)

// runtime holds what every long-running command shares.
type runtime struct {
	cfg       config.Config
	providers providers.Set
	store     session.Store
	search    *tavily.Client
	metrics   *metrics.Metrics
	logger    *slog.Logger

	closeStore func() error
}

func newRuntime(ctx context.Context, cfg config.Config, logger *slog.Logger) (*runtime, error) {
	m := metrics.New("")

	set, err := providers.Build(cfg, providers.Options{
		OnSwitch: m.FallbackHook,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build providers: %w", err)
	}

	rt := &runtime{
		cfg:        cfg,
		providers:  set,
		search:     tavily.NewClient(cfg.Keys.Tavily, "", nil),
		metrics:    m,
		logger:     logger,
		closeStore: func() error { return nil },
	}

	if cfg.Session.RedisURL != "" {
		store, err := session.OpenRedisStore(ctx, cfg.Session.RedisURL, cfg.Session.TTL)
		if err != nil {
			return nil, err
		}
		rt.store = store
		rt.closeStore = store.Close
		logger.Info("Using Redis session store")
	} else {
		rt.store = session.NewMemoryStore(cfg.Session.TTL)
		logger.Info("Using in-memory session store", slog.Duration("ttl", cfg.Session.TTL))
	}

	if !rt.search.Configured() {
		logger.Warn("TAVILY_API_KEY not set, web search is disabled")
	}
	return rt, nil
}

func (rt *runtime) Close() error {
	return rt.closeStore()
}

// observer returns the metrics observer as an agent.Observer.
func (rt *runtime) observer() agent.Observer {
	return rt.metrics
}

// runRoomJob joins roomName with token and serves an assistant there until
// ctx ends or the job is shut down.
func (rt *runtime) runRoomJob(ctx context.Context, jobID, url, token, roomName string) error {
	j, err := job.New(ctx, job.Config{ID: jobID, RoomName: roomName, Timeout: job.DefaultJobTimeout})
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	defer j.Shutdown("job finished")

	room, err := job.NewRoom(j.Context.Ctx, job.RoomConfig{URL: url, Token: token, RoomName: roomName})
	if err != nil {
		return fmt.Errorf("failed to create room: %w", err)
	}
	if err := room.Connect(); err != nil {
		return err
	}
	j.Context.OnShutdown(func(reason string) {
		if err := room.Disconnect(); err != nil {
			rt.logger.Warn("Failed to disconnect room", slog.String("error", err.Error()))
		}
	})

	go rt.watchRoom(j, room)

	s, err := agent.NewRoomSession(agent.SessionConfig{
		Job:      j,
		Room:     room,
		LLM:      rt.providers.LLM,
		Store:    rt.store,
		Search:   rt.search,
		Observer: rt.observer(),
		Logger:   rt.logger,
	})
	if err != nil {
		return err
	}
	return s.Run(ctx)
}

// watchRoom logs room events and ends the job once the last participant
// leaves.
func (rt *runtime) watchRoom(j *job.Job, room *job.Room) {
	for event := range room.Events {
		switch event.Type {
		case job.EventParticipantConnected:
			rt.logger.Info("Participant joined",
				slog.String("job_id", j.ID),
				slog.String("identity", event.Participant.GetIdentity()))
		case job.EventParticipantDisconnected:
			rt.logger.Info("Participant left",
				slog.String("job_id", j.ID),
				slog.String("identity", event.Participant.GetIdentity()))
			if len(room.GetParticipants()) == 0 {
				go j.Shutdown("all participants left")
			}
		case job.EventGraphReceived:
			rt.logger.Debug("Graph received from participant",
				slog.String("job_id", j.ID),
				slog.Int("links", len(event.Graph.Links)))
		}
	}
}
