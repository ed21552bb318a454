// Package job owns the lifecycle of one agent assignment and the LiveKit room
// connection it runs in. Room is the transport boundary for budget graphs:
// tools publish through GraphPublisher and the UI's graphs come back through
// OnGraphReceived.
package job

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/calmcall/finassist/pkg/session"
)

// New creates a Job for cfg.RoomName. The persona mode is taken from the room
// name suffix.
func New(parentCtx context.Context, cfg Config) (*Job, error) {
	roomName := strings.TrimSpace(cfg.RoomName)
	if roomName == "" {
		return nil, fmt.Errorf("room name is required")
	}

	jobID := cfg.ID
	if jobID == "" {
		jobID = generateJobID()
	}

	ctx := parentCtx
	var cancel context.CancelFunc
	if cfg.Timeout > 0 {
		ctx, cancel = context.WithTimeout(parentCtx, cfg.Timeout)
	}

	jobContext := NewJobContext(ctx)
	if cancel != nil {
		context.AfterFunc(jobContext.Ctx, cancel)
	}

	job := &Job{
		ID:       jobID,
		RoomName: roomName,
		Mode:     session.ModeFromRoomName(roomName),
		Context:  jobContext,
	}

	slog.Info("Created new job",
		slog.String("job_id", jobID),
		slog.String("room_name", roomName),
		slog.String("mode", job.Mode.String()),
		slog.Duration("timeout", cfg.Timeout))

	return job, nil
}

// Shutdown gracefully shuts down the job with the given reason.
func (j *Job) Shutdown(reason string) {
	slog.Info("Shutting down job",
		slog.String("job_id", j.ID),
		slog.String("reason", reason))

	j.Context.Shutdown(reason)
}

// Wait blocks until the job context is cancelled and returns its error.
func (j *Job) Wait() error {
	<-j.Context.Done()
	return j.Context.Err()
}

// IsActive returns true if the job is still running.
func (j *Job) IsActive() bool {
	return !j.Context.IsShutdown()
}

func (j *Job) String() string {
	status := "active"
	if j.Context.IsShutdown() {
		status = "shutdown"
	}
	return fmt.Sprintf("Job{ID: %s, Room: %s, Mode: %s, Status: %s}", j.ID, j.RoomName, j.Mode, status)
}
