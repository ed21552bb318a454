package job

import (
	"context"
	"sync"
	"time"

	"github.com/calmcall/finassist/pkg/session"
)

// Job is one agent assignment: a room to join and the lifecycle of the work
// done there.
type Job struct {
	ID       string
	RoomName string

	// Mode is the persona selected by the room name suffix.
	Mode session.Mode

	Context *JobContext
}

// JobContext manages the lifecycle and cleanup of a job.
type JobContext struct {
	// Ctx is cancelled when the job ends.
	Ctx context.Context

	cancel        context.CancelCauseFunc
	shutdownHooks []func(string)
	shutdownDone  bool
	reason        string
	shutdownMu    sync.Mutex
}

// Config contains configuration options for creating a new Job.
type Config struct {
	// ID for the job (if empty, one will be generated)
	ID string

	// RoomName is the LiveKit room to join
	RoomName string

	// Timeout for the overall job execution
	Timeout time.Duration
}

const (
	// AssignmentTimeout bounds how long the worker waits to accept a job.
	AssignmentTimeout = 7500 * time.Millisecond

	// DefaultJobTimeout is the default timeout for job execution
	DefaultJobTimeout = 30 * time.Minute

	// ShutdownHookTimeout bounds how long Shutdown waits for hooks.
	ShutdownHookTimeout = 5 * time.Second
)
