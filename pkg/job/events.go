package job

import (
	"time"

	"github.com/livekit/protocol/livekit"

	"github.com/calmcall/finassist/pkg/budget"
)

// EventType represents the type of room event.
type EventType string

const (
	EventParticipantConnected    EventType = "participant_connected"
	EventParticipantDisconnected EventType = "participant_disconnected"
	EventTrackSubscribed         EventType = "track_subscribed"
	EventTrackUnsubscribed       EventType = "track_unsubscribed"

	// EventDataReceived is fired for every data packet from a participant.
	EventDataReceived EventType = "data_received"

	// EventGraphReceived is fired when a data packet decodes as a budget graph
	// envelope.
	EventGraphReceived EventType = "graph_received"
)

// Event represents a room event with associated data.
type Event struct {
	Type        EventType
	Timestamp   time.Time
	Participant *livekit.ParticipantInfo
	Track       *livekit.TrackInfo
	Data        []byte
	Graph       *budget.Graph
}

// NewEvent creates a new event with the current timestamp.
func NewEvent(eventType EventType) *Event {
	return &Event{
		Type:      eventType,
		Timestamp: time.Now(),
	}
}

func (e *Event) WithParticipant(participant *livekit.ParticipantInfo) *Event {
	e.Participant = participant
	return e
}

func (e *Event) WithTrack(track *livekit.TrackInfo) *Event {
	e.Track = track
	return e
}

func (e *Event) WithData(data []byte) *Event {
	e.Data = data
	return e
}

func (e *Event) WithGraph(g budget.Graph) *Event {
	e.Graph = &g
	return e
}
