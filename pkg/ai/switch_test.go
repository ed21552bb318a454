package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/matryer/is"
)

func TestSwitch_Do(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	var calls []string
	s := NewSwitch("llm", "a", "primary", "b", "secondary")
	var switched int
	s.OnSwitch(func(from, to string, cause error) { switched++ })

	err := s.Do(ctx, func(p string) error {
		calls = append(calls, p)
		if p == "a" {
			return errors.New("down")
		}
		return nil
	})
	is.NoErr(err)
	is.Equal(calls, []string{"a", "b"})

	err = s.Do(ctx, func(p string) error {
		calls = append(calls, p)
		return errors.New("still failing")
	})
	is.True(err != nil)
	is.Equal(calls, []string{"a", "b", "b"}) // retried once, never loops back
	is.Equal(switched, 1)

	_, name := s.Active()
	is.Equal(name, "secondary")
}

type statusErr int

func (e statusErr) Error() string   { return fmt.Sprintf("status %d", int(e)) }
func (e statusErr) StatusCode() int { return int(e) }

func TestClassify(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantRetryable bool
	}{
		{name: "rate limited", err: statusErr(http.StatusTooManyRequests), wantRetryable: true},
		{name: "server error", err: statusErr(http.StatusBadGateway), wantRetryable: true},
		{name: "bad key", err: statusErr(http.StatusUnauthorized), wantRetryable: false},
		{name: "deadline", err: context.DeadlineExceeded, wantRetryable: true},
		{name: "plain", err: errors.New("connection reset"), wantRetryable: true},
		{name: "already fatal", err: NewFatalError("x", "y", errors.New("z")), wantRetryable: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Classify("openai", "chat", tt.err)
			if IsRecoverable(err) != tt.wantRetryable {
				t.Fatalf("IsRecoverable = %v, want %v (%v)", IsRecoverable(err), tt.wantRetryable, err)
			}
			if IsFatal(err) == tt.wantRetryable {
				t.Fatalf("IsFatal = %v for %v", IsFatal(err), err)
			}
			if !errors.Is(err, tt.err) {
				t.Fatalf("classified error lost its cause: %v", err)
			}
		})
	}
}
