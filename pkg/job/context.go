package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrShutdown is the cancellation cause of a job context ended by Shutdown.
var ErrShutdown = errors.New("job shut down")

// NewJobContext creates a JobContext that ends on Shutdown or when parent
// ends.
func NewJobContext(parent context.Context) *JobContext {
	ctx, cancel := context.WithCancelCause(parent)
	return &JobContext{
		Ctx:    ctx,
		cancel: cancel,
	}
}

// Shutdown runs every registered hook concurrently, waits up to
// ShutdownHookTimeout for them, then cancels the context with a cause
// wrapping ErrShutdown and reason. Only the first call has any effect.
func (jc *JobContext) Shutdown(reason string) {
	jc.shutdownMu.Lock()
	defer jc.shutdownMu.Unlock()

	if jc.shutdownDone {
		return
	}
	jc.shutdownDone = true
	jc.reason = reason

	slog.Info("Job shutdown initiated",
		slog.String("reason", reason),
		slog.Int("hooks", len(jc.shutdownHooks)))

	var wg sync.WaitGroup
	for _, hook := range jc.shutdownHooks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runHook(hook, reason)
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(ShutdownHookTimeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		slog.Warn("Shutdown hooks timed out", slog.Duration("timeout", ShutdownHookTimeout))
	}

	jc.cancel(fmt.Errorf("%w: %s", ErrShutdown, reason))
}

// OnShutdown registers a hook for Shutdown. A hook registered after shutdown
// runs right away, in its own goroutine, with the original reason.
func (jc *JobContext) OnShutdown(hook func(reason string)) {
	jc.shutdownMu.Lock()
	defer jc.shutdownMu.Unlock()

	if jc.shutdownDone {
		go runHook(hook, jc.reason)
		return
	}
	jc.shutdownHooks = append(jc.shutdownHooks, hook)
}

func runHook(hook func(string), reason string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Shutdown hook panicked", slog.Any("panic", r))
		}
	}()
	hook(reason)
}

// IsShutdown reports whether the job context has ended, for any reason.
func (jc *JobContext) IsShutdown() bool {
	return jc.Ctx.Err() != nil
}

func (jc *JobContext) Done() <-chan struct{} {
	return jc.Ctx.Done()
}

func (jc *JobContext) Err() error {
	return jc.Ctx.Err()
}

// Cause reports why the context ended: an ErrShutdown wrapper, the parent's
// cause, or nil while the job is running.
func (jc *JobContext) Cause() error {
	return context.Cause(jc.Ctx)
}

func generateJobID() string {
	return "job_" + uuid.NewString()
}
