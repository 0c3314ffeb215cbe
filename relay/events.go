package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type EventType string

const (
	EventChat  EventType = "CHAT"
	EventJoin  EventType = "JOIN"
	EventLeave EventType = "LEAVE"

	EventSessionConnect    EventType = "SESSION_CONNECT"
	EventSessionDisconnect EventType = "SESSION_DISCONNECT"

	EventSystemNotification EventType = "SYSTEM_NOTIFICATION"
)

var errMissingFields = errors.New("event missing required fields")

// RoomEvent is the unit relayed on room channels. Immutable once
// constructed; optional fields are absent from the wire, not null.
type RoomEvent struct {
	Type     EventType `json:"type"`
	RoomID   string    `json:"roomId"`
	Sender   string    `json:"sender,omitempty"`
	SenderID string    `json:"senderId,omitempty"`
	Message  string    `json:"message,omitempty"`
	// Epoch millis at emission time.
	Timestamp int64 `json:"timestamp"`
	// Local participant count at emission. A pointer so that zero (last
	// leaver) still serializes while CHAT events omit the field.
	ParticipantCount *int `json:"participantCount,omitempty"`
}

// LifecycleEvent travels on the fixed session channels. It exists for
// cross-instance observability; membership never depends on it.
type LifecycleEvent struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"sessionId"`
	Sender    string    `json:"sender,omitempty"`
	RoomID    string    `json:"roomId,omitempty"`
	ServerID  string    `json:"serverId,omitempty"`
	Timestamp int64     `json:"timestamp"`
}

// BroadcastEvent travels on the global broadcast and system
// notification channels.
type BroadcastEvent struct {
	Type      EventType `json:"type"`
	Message   string    `json:"message"`
	Level     string    `json:"level,omitempty"`
	ServerID  string    `json:"serverId,omitempty"`
	Timestamp int64     `json:"timestamp"`
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

func countOf(n int) *int {
	return &n
}

func NewChatEvent(roomID, sessionID, sender, text string) RoomEvent {
	return RoomEvent{
		Type:      EventChat,
		RoomID:    roomID,
		Sender:    sender,
		SenderID:  sessionID,
		Message:   text,
		Timestamp: nowMillis(),
	}
}

func NewJoinEvent(roomID, sessionID, sender string, participants int) RoomEvent {
	return RoomEvent{
		Type:             EventJoin,
		RoomID:           roomID,
		Sender:           sender,
		SenderID:         sessionID,
		Message:          fmt.Sprintf("%s joined %s", sender, roomID),
		Timestamp:        nowMillis(),
		ParticipantCount: countOf(participants),
	}
}

func NewLeaveEvent(roomID, sessionID, sender string, participants int) RoomEvent {
	return RoomEvent{
		Type:             EventLeave,
		RoomID:           roomID,
		Sender:           sender,
		SenderID:         sessionID,
		Message:          fmt.Sprintf("%s left %s", sender, roomID),
		Timestamp:        nowMillis(),
		ParticipantCount: countOf(participants),
	}
}

// DecodeRoomEvent parses a room channel payload. A payload that
// parses but lacks type or room id is rejected the same way as
// malformed JSON: the caller drops it.
func DecodeRoomEvent(payload []byte) (RoomEvent, error) {
	var ev RoomEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return RoomEvent{}, err
	}
	if ev.Type == "" || ev.RoomID == "" {
		return RoomEvent{}, errMissingFields
	}
	return ev, nil
}

func DecodeLifecycleEvent(payload []byte) (LifecycleEvent, error) {
	var ev LifecycleEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return LifecycleEvent{}, err
	}
	if ev.Type == "" || ev.SessionID == "" {
		return LifecycleEvent{}, errMissingFields
	}
	return ev, nil
}

func DecodeBroadcastEvent(payload []byte) (BroadcastEvent, error) {
	var ev BroadcastEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return BroadcastEvent{}, err
	}
	if ev.Type == "" {
		return BroadcastEvent{}, errMissingFields
	}
	return ev, nil
}
