// Package worker keeps a signalling connection to the dispatch server and
// hands each job assignment to a JobHandler.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"
)

// Signal and command types.
const (
	SignalTypePing     = "ping"
	SignalTypePong     = "pong"
	SignalTypeStartJob = "startJob"
	SignalTypeShutdown = "shutdown"

	CommandTypeJobStatus = "jobStatus"
)

// Job statuses reported back to the server.
const (
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// Assignment is a job the server asked this worker to run.
type Assignment struct {
	JobID    string
	RoomName string
	Token    string
}

// JobHandler runs one assignment until it ends or ctx is cancelled.
type JobHandler interface {
	HandleJob(ctx context.Context, a Assignment) error
}

// JobHandlerFunc adapts a function to JobHandler.
type JobHandlerFunc func(ctx context.Context, a Assignment) error

func (f JobHandlerFunc) HandleJob(ctx context.Context, a Assignment) error { return f(ctx, a) }

type Worker struct {
	url      string
	token    string
	wsClient *WebSocketClient
	handler  JobHandler
	logger   *slog.Logger
	in       chan *Signal
	out      chan *Command

	mu             sync.RWMutex
	connected      bool
	backoffAttempt int

	jobs       sync.WaitGroup
	jobsMu     sync.Mutex
	jobCancels map[string]context.CancelFunc
	stop       chan struct{}
	stopOnce   sync.Once
}

type Config struct {
	URL   string
	Token string
}

// New creates a worker. A nil handler logs and ignores assignments.
func New(config Config, handler JobHandler, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		url:        config.URL,
		token:      config.Token,
		handler:    handler,
		logger:     logger,
		in:         make(chan *Signal, 100),
		out:        make(chan *Command, 100),
		wsClient:   NewWebSocketClient(config.URL, config.Token, logger),
		jobCancels: make(map[string]context.CancelFunc),
		stop:       make(chan struct{}),
	}
}

// Run connects and serves signals until ctx ends or the server sends a
// shutdown signal, reconnecting with backoff on failure.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("Starting worker", slog.String("url", w.url))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-w.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Worker shutting down")
			return w.shutdown()
		default:
		}

		if err := w.connectAndRun(ctx); err != nil {
			w.logger.Error("Worker connection failed", slog.String("error", err.Error()))
			if err := w.backoffDelay(ctx); err != nil {
				w.logger.Info("Worker shutting down")
				_ = w.shutdown()
				return err
			}
		}
	}
}

func (w *Worker) connectAndRun(ctx context.Context) error {
	w.logger.Info("Connecting to dispatch server")

	if err := w.wsClient.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer func() {
		if err := w.wsClient.Close(); err != nil {
			w.logger.Error("Error closing WebSocket during cleanup", slog.String("error", err.Error()))
		}
	}()

	w.setConnected(true)
	defer w.setConnected(false)

	runCtx, runCancel := context.WithCancel(ctx)
	defer runCancel()

	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	wg.Add(3)
	go func() {
		defer wg.Done()
		if err := w.readSignals(runCtx); err != nil {
			errCh <- fmt.Errorf("read signals: %w", err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := w.writeCommands(runCtx); err != nil {
			errCh <- fmt.Errorf("write commands: %w", err)
		}
	}()
	go func() {
		defer wg.Done()
		w.processSignals(runCtx)
	}()

	select {
	case err := <-errCh:
		runCancel()
		_ = w.wsClient.Close() // unblock the reader
		wg.Wait()
		return err
	case <-ctx.Done():
		runCancel()
		_ = w.wsClient.Close()
		wg.Wait()
		return nil
	}
}

func (w *Worker) readSignals(ctx context.Context) error {
	for {
		signal, err := w.wsClient.ReadSignal(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		select {
		case w.in <- signal:
		case <-ctx.Done():
			return nil
		}
	}
}

func (w *Worker) writeCommands(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd := <-w.out:
			if err := w.wsClient.WriteCommand(ctx, cmd); err != nil {
				return err
			}
		}
	}
}

func (w *Worker) processSignals(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case signal := <-w.in:
			w.handleSignal(ctx, signal)
		}
	}
}

func (w *Worker) handleSignal(ctx context.Context, signal *Signal) {
	w.logger.Debug("Processing signal", slog.String("type", signal.Type))

	switch signal.Type {
	case SignalTypePing:
		w.send(ctx, &Command{Type: SignalTypePong, Data: signal.Data})

	case SignalTypeStartJob:
		a, err := parseAssignment(signal.Data)
		if err != nil {
			w.logger.Warn("Rejecting start job signal", slog.String("error", err.Error()))
			w.send(ctx, jobStatus(stringField(signal.Data, "job_id"), JobStatusFailed, err))
			return
		}
		w.startJob(a)

	case SignalTypeShutdown:
		w.logger.Info("Received shutdown signal")
		w.stopOnce.Do(func() { close(w.stop) })

	default:
		w.logger.Warn("Unknown signal type", slog.String("type", signal.Type))
	}
}

// startJob runs a in its own goroutine. Jobs outlive the signalling
// connection and are only cancelled by shutdown.
func (w *Worker) startJob(a Assignment) {
	w.logger.Info("Received start job signal",
		slog.String("job_id", a.JobID),
		slog.String("room_name", a.RoomName))

	if w.handler == nil {
		w.logger.Warn("No job handler configured, ignoring job", slog.String("job_id", a.JobID))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.jobsMu.Lock()
	if _, running := w.jobCancels[a.JobID]; running {
		w.jobsMu.Unlock()
		cancel()
		w.logger.Warn("Job already running", slog.String("job_id", a.JobID))
		return
	}
	w.jobCancels[a.JobID] = cancel
	w.jobsMu.Unlock()

	w.send(ctx, jobStatus(a.JobID, JobStatusRunning, nil))

	w.jobs.Add(1)
	go func() {
		defer w.jobs.Done()
		defer func() {
			w.jobsMu.Lock()
			delete(w.jobCancels, a.JobID)
			w.jobsMu.Unlock()
			cancel()
		}()

		err := w.handler.HandleJob(ctx, a)
		if err != nil && !errors.Is(err, context.Canceled) {
			w.logger.Error("Job failed",
				slog.String("job_id", a.JobID),
				slog.String("error", err.Error()))
			w.send(context.Background(), jobStatus(a.JobID, JobStatusFailed, err))
			return
		}
		w.logger.Info("Job completed", slog.String("job_id", a.JobID))
		w.send(context.Background(), jobStatus(a.JobID, JobStatusCompleted, nil))
	}()
}

// ActiveJobs returns the number of jobs currently running.
func (w *Worker) ActiveJobs() int {
	w.jobsMu.Lock()
	defer w.jobsMu.Unlock()
	return len(w.jobCancels)
}

// send queues cmd without blocking; it is dropped when the queue is full.
func (w *Worker) send(ctx context.Context, cmd *Command) {
	select {
	case w.out <- cmd:
	case <-ctx.Done():
	default:
		w.logger.Warn("Command queue full, dropping command", slog.String("type", cmd.Type))
	}
}

func jobStatus(jobID, status string, err error) *Command {
	data := map[string]any{"job_id": jobID, "status": status}
	if err != nil {
		data["error"] = err.Error()
	}
	return &Command{Type: CommandTypeJobStatus, Data: data}
}

func parseAssignment(data map[string]any) (Assignment, error) {
	a := Assignment{
		JobID:    stringField(data, "job_id"),
		RoomName: stringField(data, "room"),
		Token:    stringField(data, "token"),
	}
	if a.RoomName == "" {
		return Assignment{}, errors.New("start job signal missing room")
	}
	if a.Token == "" {
		return Assignment{}, errors.New("start job signal missing token")
	}
	if a.JobID == "" {
		a.JobID = a.RoomName
	}
	return a, nil
}

func stringField(data map[string]any, key string) string {
	s, _ := data[key].(string)
	return strings.TrimSpace(s)
}

// backoffFor returns the reconnect delay for attempt: 1s, 2s, 4s, 8s, then
// 10s.
func backoffFor(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(math.Min(math.Pow(2, float64(attempt-1)), 10)) * time.Second
}

func (w *Worker) backoffDelay(ctx context.Context) error {
	w.mu.Lock()
	w.backoffAttempt++
	attempt := w.backoffAttempt
	w.mu.Unlock()

	delay := backoffFor(attempt)
	w.logger.Info("Reconnecting with backoff",
		slog.Int("attempt", attempt),
		slog.Duration("delay", delay))

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) setConnected(connected bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if connected && !w.connected {
		w.backoffAttempt = 0
		w.logger.Info("Worker connected successfully")
	}
	w.connected = connected
}

func (w *Worker) IsConnected() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.connected
}

// shutdown cancels running jobs and waits for them to return.
func (w *Worker) shutdown() error {
	w.logger.Info("Shutting down worker")

	w.jobsMu.Lock()
	for _, cancel := range w.jobCancels {
		cancel()
	}
	w.jobsMu.Unlock()
	w.jobs.Wait()

	if err := w.wsClient.Close(); err != nil {
		w.logger.Error("Error closing WebSocket", slog.String("error", err.Error()))
		return err
	}

	w.logger.Info("Worker shutdown complete")
	return nil
}
