package job

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go"
	"github.com/matryer/is"

	"github.com/calmcall/finassist/pkg/budget"
)

type recordingPublisher struct {
	mu      sync.Mutex
	packets []*livekit.UserPacket
	kinds   []livekit.DataPacket_Kind
	err     error
}

func (p *recordingPublisher) PublishDataPacket(pkt *livekit.UserPacket, kind livekit.DataPacket_Kind) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.packets = append(p.packets, pkt)
	p.kinds = append(p.kinds, kind)
	return nil
}

var _ dataPublisher = (*lksdk.LocalParticipant)(nil)

func newTestRoom(t *testing.T, bufferSize int) *Room {
	t.Helper()
	room, err := NewRoom(context.Background(), RoomConfig{
		URL:             "wss://test.livekit.io",
		Token:           "test-token",
		RoomName:        "calmcall_1_budgeting",
		EventBufferSize: bufferSize,
	})
	if err != nil {
		t.Fatalf("failed to create room: %v", err)
	}
	t.Cleanup(func() { _ = room.Disconnect() })
	return room
}

// attach simulates a connected room with p as the local participant.
func attach(r *Room, p dataPublisher) {
	r.mu.Lock()
	r.publisher = p
	r.connected = true
	r.mu.Unlock()
}

func testGraph(t *testing.T) budget.Graph {
	t.Helper()
	g, err := budget.Normalize(
		[]budget.FlowNode{{ID: "Income"}, {ID: "Needs"}},
		[]budget.FlowLink{
			{Source: "Income", Target: "Needs", Value: 2500},
			{Source: "Needs", Target: "Rent", Value: 1500},
		})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	return g
}

func TestNewRoom(t *testing.T) {
	tests := []struct {
		name    string
		config  RoomConfig
		wantErr bool
	}{
		{name: "valid config", config: RoomConfig{URL: "wss://test.livekit.io", Token: "t", RoomName: "r"}},
		{name: "missing URL", config: RoomConfig{Token: "t", RoomName: "r"}, wantErr: true},
		{name: "missing token", config: RoomConfig{URL: "wss://test.livekit.io", RoomName: "r"}, wantErr: true},
		{name: "missing room name", config: RoomConfig{URL: "wss://test.livekit.io", Token: "t"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			room, err := NewRoom(context.Background(), tt.config)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			defer room.Disconnect()

			if room.IsConnected() {
				t.Error("new room should not be connected")
			}
			if room.Name() != "r" {
				t.Errorf("unexpected name %q", room.Name())
			}
		})
	}
}

func TestRoom_PublishGraph(t *testing.T) {
	is := is.New(t)
	room := newTestRoom(t, 0)
	pub := &recordingPublisher{}
	attach(room, pub)

	g := testGraph(t)
	is.NoErr(room.PublishGraph(context.Background(), g))

	is.Equal(len(pub.packets), 1)
	is.Equal(pub.packets[0].GetTopic(), TopicUI)
	is.Equal(pub.kinds[0], livekit.DataPacket_RELIABLE)
	got, err := budget.DecodeEnvelope(pub.packets[0].GetPayload())
	is.NoErr(err)
	is.Equal(got, g)
}

func TestRoom_PublishGraph_Errors(t *testing.T) {
	is := is.New(t)
	g := testGraph(t)

	room := newTestRoom(t, 0)
	is.True(errors.Is(room.PublishGraph(context.Background(), g), ErrNotConnected))

	boom := errors.New("data channel closed")
	attach(room, &recordingPublisher{err: boom})
	is.True(errors.Is(room.PublishGraph(context.Background(), g), boom))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	is.True(errors.Is(room.PublishGraph(ctx, g), context.Canceled))
}

func TestRoom_PublishJSON(t *testing.T) {
	is := is.New(t)
	room := newTestRoom(t, 0)
	pub := &recordingPublisher{}
	attach(room, pub)

	is.NoErr(room.PublishJSON(context.Background(), "transcript", map[string]string{"message": "hi"}))

	is.Equal(pub.packets[0].GetTopic(), "transcript")
	is.Equal(pub.kinds[0], livekit.DataPacket_RELIABLE)
	var got map[string]string
	is.NoErr(json.Unmarshal(pub.packets[0].GetPayload(), &got))
	is.Equal(got["message"], "hi")
}

func TestRoom_HandleData(t *testing.T) {
	is := is.New(t)
	room := newTestRoom(t, 10)

	var gotGraph budget.Graph
	var gotText, gotFrom string
	room.OnGraphReceived(func(g budget.Graph, identity string) {
		gotGraph = g
		gotFrom = identity
	})
	room.OnText(func(text, identity string) { gotText = text })

	from := &livekit.ParticipantInfo{Sid: "PA_1", Identity: "user-1"}

	g := testGraph(t)
	data, err := budget.NewEnvelope(g).Marshal()
	is.NoErr(err)
	room.handleData(data, from)
	is.Equal(gotGraph, g)
	is.Equal(gotFrom, "user-1")

	room.handleData([]byte("hello agent"), from)
	is.Equal(gotText, "hello agent")

	// a bad envelope reaches neither handler
	gotText = ""
	room.handleData([]byte(`{"type":"budget_sankey","nodes":[],"links":[]}`), from)
	is.Equal(gotText, "")

	var types []EventType
	for len(room.Events) > 0 {
		types = append(types, (<-room.Events).Type)
	}
	is.Equal(types, []EventType{
		EventDataReceived, EventGraphReceived,
		EventDataReceived,
		EventDataReceived,
	})
}

func TestRoom_EventChannelFull(t *testing.T) {
	room := newTestRoom(t, 2)

	room.sendEvent(NewEvent(EventParticipantConnected))
	room.sendEvent(NewEvent(EventParticipantConnected))
	room.sendEvent(NewEvent(EventParticipantDisconnected)) // dropped

	for i := 0; i < 2; i++ {
		select {
		case ev := <-room.Events:
			if ev.Type != EventParticipantConnected {
				t.Errorf("unexpected event %s", ev.Type)
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("expected event %d", i)
		}
	}

	select {
	case ev := <-room.Events:
		t.Errorf("third event should have been dropped, got %s", ev.Type)
	default:
	}
}

func TestRoom_DisconnectClosesChannel(t *testing.T) {
	room := newTestRoom(t, 0)
	_ = room.Disconnect()

	if _, ok := <-room.Events; ok {
		t.Error("expected events channel to be closed")
	}

	// sending after close must not panic
	room.sendEvent(NewEvent(EventDataReceived))

	if err := room.Connect(); err == nil {
		t.Error("expected error connecting a closed room")
	}
}

func TestRoom_GetParticipants(t *testing.T) {
	room := newTestRoom(t, 0)

	if n := len(room.GetParticipants()); n != 0 {
		t.Errorf("expected 0 participants, got %d", n)
	}

	room.mu.Lock()
	room.participants["user-1"] = &livekit.ParticipantInfo{Sid: "PA_1", Identity: "user-1"}
	room.mu.Unlock()

	participants := room.GetParticipants()
	if participants["user-1"] == nil || participants["user-1"].Identity != "user-1" {
		t.Errorf("expected to find user-1, got %v", participants)
	}
}

func TestMemoryPublisher(t *testing.T) {
	is := is.New(t)
	p := NewMemoryPublisher()

	_, ok := p.Latest()
	is.True(!ok)

	g := testGraph(t)
	is.NoErr(p.PublishGraph(context.Background(), g))
	latest, ok := p.Latest()
	is.True(ok)
	is.Equal(latest, g)

	p.FailWith(ErrNotConnected)
	is.True(errors.Is(p.PublishGraph(context.Background(), g), ErrNotConnected))
	is.Equal(len(p.Graphs()), 1)
}
