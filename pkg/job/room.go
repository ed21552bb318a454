package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go"
	"github.com/pion/webrtc/v3"

	"github.com/calmcall/finassist/pkg/budget"
)

// TopicUI is the data channel topic the browser listens on for UI payloads.
const TopicUI = "ui"

// ErrNotConnected is returned when publishing on a room that has no live
// connection.
var ErrNotConnected = errors.New("room not connected")

// GraphHandler receives a graph published by a participant.
type GraphHandler func(g budget.Graph, identity string)

// TextHandler receives a non-graph data packet as text.
type TextHandler func(text, identity string)

// dataPublisher is the part of *lksdk.LocalParticipant the room publishes
// through.
type dataPublisher interface {
	PublishDataPacket(pkt *livekit.UserPacket, kind livekit.DataPacket_Kind) error
}

// Room wraps the LiveKit room connection and provides event handling.
type Room struct {
	// Events carries room events. Events are dropped when the buffer is full.
	Events chan *Event

	config    RoomConfig
	room      *lksdk.Room
	publisher dataPublisher

	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.RWMutex
	connected    bool
	eventsClosed bool
	participants map[string]*livekit.ParticipantInfo

	graphHandlers []GraphHandler
	textHandlers  []TextHandler
}

// RoomConfig contains configuration for connecting to a room.
type RoomConfig struct {
	URL      string
	Token    string
	RoomName string

	// EventBufferSize defaults to 100.
	EventBufferSize int
}

// NewRoom creates a Room wrapper. Call Connect to join.
func NewRoom(ctx context.Context, config RoomConfig) (*Room, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("URL is required")
	}
	if config.Token == "" {
		return nil, fmt.Errorf("token is required")
	}
	if config.RoomName == "" {
		return nil, fmt.Errorf("room name is required")
	}

	bufferSize := config.EventBufferSize
	if bufferSize == 0 {
		bufferSize = 100
	}

	roomCtx, cancel := context.WithCancel(ctx)
	return &Room{
		Events:       make(chan *Event, bufferSize),
		config:       config,
		ctx:          roomCtx,
		cancel:       cancel,
		participants: make(map[string]*livekit.ParticipantInfo),
	}, nil
}

// Connect joins the LiveKit room.
func (r *Room) Connect() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.connected {
		return fmt.Errorf("room is already connected")
	}
	if r.eventsClosed {
		return fmt.Errorf("room is closed")
	}

	callback := &lksdk.RoomCallback{
		OnParticipantConnected:    r.onParticipantConnected,
		OnParticipantDisconnected: r.onParticipantDisconnected,
		ParticipantCallback: lksdk.ParticipantCallback{
			OnTrackSubscribed:   r.onTrackSubscribed,
			OnTrackUnsubscribed: r.onTrackUnsubscribed,
			OnDataReceived:      r.onDataReceived,
		},
	}

	room, err := lksdk.ConnectToRoomWithToken(r.config.URL, r.config.Token, callback)
	if err != nil {
		return fmt.Errorf("failed to connect to room: %w", err)
	}

	r.room = room
	r.publisher = room.LocalParticipant
	r.connected = true

	slog.Info("Connected to LiveKit room",
		slog.String("room_name", r.config.RoomName),
		slog.String("url", r.config.URL))

	return nil
}

// Disconnect leaves the room and closes the events channel.
func (r *Room) Disconnect() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cancel()

	if r.connected {
		r.connected = false
		r.publisher = nil
		if r.room != nil {
			r.room.Disconnect()
		}
		slog.Info("Disconnected from LiveKit room", slog.String("room_name", r.config.RoomName))
	}

	if !r.eventsClosed {
		close(r.Events)
		r.eventsClosed = true
	}

	return nil
}

// Name returns the configured room name.
func (r *Room) Name() string { return r.config.RoomName }

// IsConnected returns true if the room is currently connected.
func (r *Room) IsConnected() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.connected
}

// GetParticipants returns a copy of the remote participants by identity.
func (r *Room) GetParticipants() map[string]*livekit.ParticipantInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]*livekit.ParticipantInfo, len(r.participants))
	for k, v := range r.participants {
		result[k] = v
	}
	return result
}

// PublishGraph sends g to every participant as a reliable "budget_sankey"
// envelope on the ui topic.
func (r *Room) PublishGraph(ctx context.Context, g budget.Graph) error {
	data, err := budget.NewEnvelope(g).Marshal()
	if err != nil {
		return err
	}
	if err := r.publish(ctx, TopicUI, data); err != nil {
		return fmt.Errorf("publish graph: %w", err)
	}
	slog.Debug("Published budget graph",
		slog.String("room_name", r.config.RoomName),
		slog.Int("nodes", len(g.Nodes)),
		slog.Int("links", len(g.Links)))
	return nil
}

// PublishJSON sends v, JSON encoded, as a reliable packet on topic.
func (r *Room) PublishJSON(ctx context.Context, topic string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", topic, err)
	}
	return r.publish(ctx, topic, data)
}

func (r *Room) publish(ctx context.Context, topic string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.RLock()
	p := r.publisher
	r.mu.RUnlock()
	if p == nil {
		return ErrNotConnected
	}

	return p.PublishDataPacket(&livekit.UserPacket{
		Payload: data,
		Topic:   &topic,
	}, livekit.DataPacket_RELIABLE)
}

// OnGraphReceived registers h for graphs published by participants. Packets
// are re-normalized before h sees them; invalid graphs are dropped.
func (r *Room) OnGraphReceived(h GraphHandler) {
	r.mu.Lock()
	r.graphHandlers = append(r.graphHandlers, h)
	r.mu.Unlock()
}

// OnText registers h for data packets that are not graph envelopes.
func (r *Room) OnText(h TextHandler) {
	r.mu.Lock()
	r.textHandlers = append(r.textHandlers, h)
	r.mu.Unlock()
}

func participantInfo(p *lksdk.RemoteParticipant, state livekit.ParticipantInfo_State) *livekit.ParticipantInfo {
	return &livekit.ParticipantInfo{
		Sid:      p.SID(),
		Identity: p.Identity(),
		State:    state,
	}
}

func (r *Room) onParticipantConnected(participant *lksdk.RemoteParticipant) {
	info := participantInfo(participant, livekit.ParticipantInfo_ACTIVE)

	r.mu.Lock()
	r.participants[participant.Identity()] = info
	r.mu.Unlock()

	r.sendEvent(NewEvent(EventParticipantConnected).WithParticipant(info))

	slog.Info("Participant connected",
		slog.String("identity", participant.Identity()),
		slog.String("sid", participant.SID()))
}

func (r *Room) onParticipantDisconnected(participant *lksdk.RemoteParticipant) {
	info := participantInfo(participant, livekit.ParticipantInfo_DISCONNECTED)

	r.mu.Lock()
	delete(r.participants, participant.Identity())
	r.mu.Unlock()

	r.sendEvent(NewEvent(EventParticipantDisconnected).WithParticipant(info))

	slog.Info("Participant disconnected",
		slog.String("identity", participant.Identity()),
		slog.String("sid", participant.SID()))
}

func trackInfo(publication *lksdk.RemoteTrackPublication) *livekit.TrackInfo {
	return &livekit.TrackInfo{
		Sid:  publication.SID(),
		Name: publication.Name(),
		Type: publication.Kind().ProtoType(),
	}
}

func (r *Room) onTrackSubscribed(track *webrtc.TrackRemote, publication *lksdk.RemoteTrackPublication, participant *lksdk.RemoteParticipant) {
	r.sendEvent(NewEvent(EventTrackSubscribed).
		WithParticipant(participantInfo(participant, livekit.ParticipantInfo_ACTIVE)).
		WithTrack(trackInfo(publication)))

	slog.Info("Track subscribed",
		slog.String("participant", participant.Identity()),
		slog.String("track_sid", publication.SID()),
		slog.String("codec", track.Codec().MimeType))
}

func (r *Room) onTrackUnsubscribed(track *webrtc.TrackRemote, publication *lksdk.RemoteTrackPublication, participant *lksdk.RemoteParticipant) {
	r.sendEvent(NewEvent(EventTrackUnsubscribed).
		WithParticipant(participantInfo(participant, livekit.ParticipantInfo_ACTIVE)).
		WithTrack(trackInfo(publication)))
}

func (r *Room) onDataReceived(data []byte, participant *lksdk.RemoteParticipant) {
	r.handleData(data, participantInfo(participant, livekit.ParticipantInfo_ACTIVE))
}

// handleData routes one inbound packet to the events channel and handlers.
func (r *Room) handleData(data []byte, from *livekit.ParticipantInfo) {
	r.sendEvent(NewEvent(EventDataReceived).WithParticipant(from).WithData(data))

	r.mu.RLock()
	graphHandlers := append([]GraphHandler(nil), r.graphHandlers...)
	textHandlers := append([]TextHandler(nil), r.textHandlers...)
	r.mu.RUnlock()

	if budget.IsEnvelope(data) {
		g, err := budget.DecodeEnvelope(data)
		if err != nil {
			slog.Warn("Dropping invalid budget graph",
				slog.String("identity", from.Identity),
				slog.String("error", err.Error()))
			return
		}
		r.sendEvent(NewEvent(EventGraphReceived).WithParticipant(from).WithGraph(g))
		for _, h := range graphHandlers {
			h(g, from.Identity)
		}
		return
	}

	for _, h := range textHandlers {
		h(string(data), from.Identity)
	}
}

// sendEvent delivers event without blocking; it is dropped when the channel
// is full or the room is closed.
func (r *Room) sendEvent(event *Event) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.eventsClosed {
		return
	}

	select {
	case r.Events <- event:
	case <-r.ctx.Done():
	default:
		slog.Warn("Events channel is full, dropping event",
			slog.String("event_type", string(event.Type)))
	}
}
