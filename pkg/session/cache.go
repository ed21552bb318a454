package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/calmcall/finassist/pkg/budget"
)

// Storage keys, shared with the browser client.
const (
	KeySankey     = "finassist.sankey.latest"
	KeyTranscript = "finassist.transcript.latest"
	KeyOnboarding = "calmcall-onboarding"
)

// Transcript origins.
const (
	OriginLocal  = "local"
	OriginRemote = "remote"
)

// SankeyPayload is the cached copy of the last graph shown to the user.
type SankeyPayload struct {
	Nodes   []budget.FlowNode `json:"nodes"`
	Links   []budget.FlowLink `json:"links"`
	SavedAt int64             `json:"savedAt"`
}

// Graph returns the cached graph, re-normalized.
func (p SankeyPayload) Graph() (budget.Graph, error) {
	return budget.Normalize(p.Nodes, p.Links)
}

// TranscriptItem is one utterance. Timestamp is milliseconds since epoch and
// Origin is "local" for the user and "remote" for the assistant.
type TranscriptItem struct {
	Timestamp int64  `json:"timestamp"`
	Message   string `json:"message"`
	Origin    string `json:"origin"`
}

// TranscriptPayload is the cached transcript of the last conversation.
type TranscriptPayload struct {
	Items   []TranscriptItem `json:"items"`
	EndedAt int64            `json:"endedAt"`
}

// OnboardingData is what the onboarding flow collects.
type OnboardingData struct {
	Name string `json:"name" validate:"required,max=100"`
	Age  string `json:"age" validate:"max=10"`
}

// Cache is a caller-owned view of one session's cached state. Values are
// JSON encoded into the underlying Store under "<session>:<key>".
type Cache struct {
	store     Store
	sessionID string
	now       func() time.Time
	logger    *slog.Logger
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithClock overrides the clock used for savedAt and endedAt stamps.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) { c.now = now }
}

// WithLogger sets the logger used to report unreadable entries.
func WithLogger(logger *slog.Logger) CacheOption {
	return func(c *Cache) { c.logger = logger }
}

// NewCache returns the cache for sessionID backed by store.
func NewCache(store Store, sessionID string, opts ...CacheOption) *Cache {
	c := &Cache{
		store:     store,
		sessionID: sessionID,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SessionID returns the id this cache is scoped to.
func (c *Cache) SessionID() string { return c.sessionID }

func (c *Cache) key(name string) string {
	if c.sessionID == "" {
		return name
	}
	return c.sessionID + ":" + name
}

func (c *Cache) put(ctx context.Context, name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	if err := c.store.Set(ctx, c.key(name), data); err != nil {
		return fmt.Errorf("save %s: %w", name, err)
	}
	return nil
}

// get decodes the entry into v. Corrupt entries read as absent.
func (c *Cache) get(ctx context.Context, name string, v any) (bool, error) {
	data, ok, err := c.store.Get(ctx, c.key(name))
	if err != nil {
		return false, fmt.Errorf("read %s: %w", name, err)
	}
	if !ok || len(data) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		c.logger.Warn("discarding unreadable cache entry",
			slog.String("session", c.sessionID),
			slog.String("key", name),
			slog.String("error", err.Error()))
		return false, nil
	}
	return true, nil
}

func (c *Cache) clear(ctx context.Context, name string) error {
	if err := c.store.Clear(ctx, c.key(name)); err != nil {
		return fmt.Errorf("clear %s: %w", name, err)
	}
	return nil
}

// SaveGraph stores g as the latest graph. A graph without links is ignored.
func (c *Cache) SaveGraph(ctx context.Context, g budget.Graph) error {
	if g.Empty() {
		return nil
	}
	return c.put(ctx, KeySankey, SankeyPayload{
		Nodes:   g.Nodes,
		Links:   g.Links,
		SavedAt: c.now().UnixMilli(),
	})
}

// LatestGraph returns the last saved graph, if any.
func (c *Cache) LatestGraph(ctx context.Context) (SankeyPayload, bool, error) {
	var p SankeyPayload
	ok, err := c.get(ctx, KeySankey, &p)
	if err != nil || !ok {
		return SankeyPayload{}, false, err
	}
	return p, true, nil
}

// ClearGraph forgets the latest graph.
func (c *Cache) ClearGraph(ctx context.Context) error {
	return c.clear(ctx, KeySankey)
}

// SaveTranscript stores items as the latest transcript, stamped with the
// current time.
func (c *Cache) SaveTranscript(ctx context.Context, items []TranscriptItem) error {
	if items == nil {
		items = []TranscriptItem{}
	}
	return c.put(ctx, KeyTranscript, TranscriptPayload{
		Items:   items,
		EndedAt: c.now().UnixMilli(),
	})
}

// LatestTranscript returns the last saved transcript, if any.
func (c *Cache) LatestTranscript(ctx context.Context) (TranscriptPayload, bool, error) {
	var p TranscriptPayload
	ok, err := c.get(ctx, KeyTranscript, &p)
	if err != nil || !ok {
		return TranscriptPayload{}, false, err
	}
	return p, true, nil
}

// ClearTranscript forgets the latest transcript.
func (c *Cache) ClearTranscript(ctx context.Context) error {
	return c.clear(ctx, KeyTranscript)
}

// SaveOnboarding stores what the user told us during onboarding.
func (c *Cache) SaveOnboarding(ctx context.Context, data OnboardingData) error {
	return c.put(ctx, KeyOnboarding, data)
}

// Onboarding returns the stored onboarding data, if any.
func (c *Cache) Onboarding(ctx context.Context) (OnboardingData, bool, error) {
	var d OnboardingData
	ok, err := c.get(ctx, KeyOnboarding, &d)
	if err != nil || !ok {
		return OnboardingData{}, false, err
	}
	return d, true, nil
}

// ClearAll forgets everything cached for the session.
func (c *Cache) ClearAll(ctx context.Context) error {
	for _, name := range []string{KeySankey, KeyTranscript, KeyOnboarding} {
		if err := c.clear(ctx, name); err != nil {
			return err
		}
	}
	return nil
}
