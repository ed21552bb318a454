package ai

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// SwitchFunc is called once when a Switch moves from primary to secondary.
type SwitchFunc func(from, to string, cause error)

// Switch routes calls to a primary provider until the first failure, then
// to the secondary for the rest of its lifetime.
type Switch[T any] struct {
	kind          string
	primary       T
	secondary     T
	primaryName   string
	secondaryName string
	switched      atomic.Bool
	onSwitch      SwitchFunc
	logger        *slog.Logger
}

// NewSwitch creates a Switch for providers of the given kind, e.g. "tts".
func NewSwitch[T any](kind string, primary T, primaryName string, secondary T, secondaryName string) *Switch[T] {
	return &Switch[T]{
		kind:          kind,
		primary:       primary,
		secondary:     secondary,
		primaryName:   primaryName,
		secondaryName: secondaryName,
		logger:        slog.Default(),
	}
}

// OnSwitch registers fn to be told about the switch.
func (s *Switch[T]) OnSwitch(fn SwitchFunc) { s.onSwitch = fn }

// SetLogger replaces the logger.
func (s *Switch[T]) SetLogger(l *slog.Logger) { s.logger = l }

// Switched reports whether the secondary is in use.
func (s *Switch[T]) Switched() bool { return s.switched.Load() }

// Active returns the provider currently in use and its name.
func (s *Switch[T]) Active() (T, string) {
	if s.switched.Load() {
		return s.secondary, s.secondaryName
	}
	return s.primary, s.primaryName
}

// Do calls fn with the active provider. If the primary fails the switch
// flips to the secondary and fn is retried exactly once. Errors from the
// secondary, and failures caused by ctx ending, are returned unchanged.
func (s *Switch[T]) Do(ctx context.Context, fn func(T) error) error {
	onSecondary := s.switched.Load()
	active, _ := s.Active()

	err := fn(active)
	if err == nil || onSecondary || ctx.Err() != nil {
		return err
	}

	if s.switched.CompareAndSwap(false, true) {
		s.logger.Warn("switching to fallback provider",
			slog.String("kind", s.kind),
			slog.String("from", s.primaryName),
			slog.String("to", s.secondaryName),
			slog.String("error", err.Error()))
		if s.onSwitch != nil {
			s.onSwitch(s.primaryName, s.secondaryName, err)
		}
	}
	return fn(s.secondary)
}
