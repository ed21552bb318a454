package worker

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/matryer/is"
)

func newTestWorker(h JobHandler) *Worker {
	return New(Config{URL: "wss://example.com", Token: "test"}, h, slog.Default())
}

func TestWorker_New(t *testing.T) {
	is := is.New(t)

	w := newTestWorker(nil)
	is.Equal(w.url, "wss://example.com")
	is.Equal(w.token, "test")
	is.True(w.in != nil)
	is.True(w.out != nil)
	is.True(!w.IsConnected())

	w.setConnected(true)
	is.True(w.IsConnected())
	w.setConnected(false)
	is.True(!w.IsConnected())
}

func TestWorker_HandleSignal_Ping(t *testing.T) {
	w := newTestWorker(nil)

	w.handleSignal(context.Background(), &Signal{Type: SignalTypePing, Data: map[string]any{"id": "p1"}})

	select {
	case cmd := <-w.out:
		if cmd.Type != SignalTypePong || cmd.Data["id"] != "p1" {
			t.Errorf("unexpected reply %+v", cmd)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("expected pong")
	}
}

func TestWorker_HandleSignal_StartJob(t *testing.T) {
	is := is.New(t)

	got := make(chan Assignment, 1)
	w := newTestWorker(JobHandlerFunc(func(ctx context.Context, a Assignment) error {
		got <- a
		return nil
	}))

	w.handleSignal(context.Background(), &Signal{
		Type: SignalTypeStartJob,
		Data: map[string]any{"job_id": "j1", "room": "calmcall_1_budgeting", "token": "jwt"},
	})

	select {
	case a := <-got:
		is.Equal(a, Assignment{JobID: "j1", RoomName: "calmcall_1_budgeting", Token: "jwt"})
	case <-time.After(time.Second):
		t.Fatal("handler not called")
	}

	var statuses []string
	deadline := time.After(time.Second)
	for len(statuses) < 2 {
		select {
		case cmd := <-w.out:
			is.Equal(cmd.Type, CommandTypeJobStatus)
			statuses = append(statuses, cmd.Data["status"].(string))
		case <-deadline:
			t.Fatalf("statuses so far: %v", statuses)
		}
	}
	is.Equal(statuses, []string{JobStatusRunning, JobStatusCompleted})
}

func TestWorker_HandleSignal_StartJobInvalid(t *testing.T) {
	is := is.New(t)
	w := newTestWorker(JobHandlerFunc(func(ctx context.Context, a Assignment) error {
		t.Error("handler should not run")
		return nil
	}))

	w.handleSignal(context.Background(), &Signal{Type: SignalTypeStartJob, Data: map[string]any{"job_id": "j2"}})

	cmd := <-w.out
	is.Equal(cmd.Data["status"], JobStatusFailed)
	is.Equal(cmd.Data["job_id"], "j2")
}

func TestWorker_JobFailureReported(t *testing.T) {
	is := is.New(t)
	w := newTestWorker(JobHandlerFunc(func(ctx context.Context, a Assignment) error {
		return errors.New("room connect failed")
	}))

	w.startJob(Assignment{JobID: "j3", RoomName: "r", Token: "t"})
	w.jobs.Wait()

	<-w.out // running
	cmd := <-w.out
	is.Equal(cmd.Data["status"], JobStatusFailed)
	is.Equal(cmd.Data["error"], "room connect failed")
	is.Equal(w.ActiveJobs(), 0)
}

func TestWorker_HandleSignal_Unknown(t *testing.T) {
	w := newTestWorker(nil)
	w.handleSignal(context.Background(), &Signal{Type: "unknownType"})

	select {
	case <-w.out:
		t.Error("no response expected for unknown signal type")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBackoffFor(t *testing.T) {
	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second},
		{10, 10 * time.Second},
	}
	for _, tt := range tests {
		if got := backoffFor(tt.attempt); got != tt.expected {
			t.Errorf("backoffFor(%d) = %v, want %v", tt.attempt, got, tt.expected)
		}
	}
}

func TestBackoffDelay_Cancelled(t *testing.T) {
	w := newTestWorker(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := w.backoffDelay(ctx); err != context.DeadlineExceeded {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestWorker_Run(t *testing.T) {
	is := is.New(t)

	var authHeader string
	replies := make(chan Command, 4)
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader = r.Header.Get("Authorization")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_ = conn.WriteJSON(Signal{Type: SignalTypePing, Data: map[string]any{"id": "p1"}})
		_ = conn.WriteJSON(Signal{Type: SignalTypeStartJob, Data: map[string]any{"job_id": "j1", "room": "r1", "token": "jwt"}})
		for i := 0; i < 3; i++ {
			var cmd Command
			if err := conn.ReadJSON(&cmd); err != nil {
				return
			}
			replies <- cmd
		}
		_ = conn.WriteJSON(Signal{Type: SignalTypeShutdown})
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	var mu sync.Mutex
	var handled []string
	w := New(Config{
		URL:   "ws" + strings.TrimPrefix(srv.URL, "http"),
		Token: "worker-token",
	}, JobHandlerFunc(func(ctx context.Context, a Assignment) error {
		mu.Lock()
		handled = append(handled, a.RoomName)
		mu.Unlock()
		return nil
	}), slog.Default())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	is.NoErr(w.Run(ctx)) // returns after the shutdown signal

	mu.Lock()
	is.Equal(handled, []string{"r1"})
	mu.Unlock()

	types := map[string]int{}
	for len(replies) > 0 {
		cmd := <-replies
		types[cmd.Type]++
	}
	is.Equal(types[SignalTypePong], 1)
	is.Equal(types[CommandTypeJobStatus], 2)
	is.Equal(authHeader, "Bearer worker-token")
}
