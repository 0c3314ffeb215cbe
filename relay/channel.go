package relay

import "strings"

// Broker channel names. These are wire-visible: every component
// sharing the broker routes by these exact strings.
const (
	roomChannelPrefix = "room:"

	ChannelSessionConnect    = "session:connect"
	ChannelSessionDisconnect = "session:disconnect"
	ChannelGlobalBroadcast   = "broadcast:global"
	ChannelSystemNotify      = "system:notifications"
)

// RoomChannel maps a room id to its broker channel.
func RoomChannel(roomID string) string {
	return roomChannelPrefix + roomID
}

// GlobalChannels lists the fixed channels every instance subscribes
// to at startup and never releases.
func GlobalChannels() []string {
	return []string{
		ChannelSessionConnect,
		ChannelSessionDisconnect,
		ChannelGlobalBroadcast,
		ChannelSystemNotify,
	}
}

// Category tags a broker channel with its handling semantics. The
// dispatcher routes through a category lookup instead of branching on
// raw channel strings.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryRoom
	CategorySessionConnect
	CategorySessionDisconnect
	CategoryGlobalBroadcast
	CategorySystemNotify
)

func (c Category) String() string {
	switch c {
	case CategoryRoom:
		return "room"
	case CategorySessionConnect:
		return "session_connect"
	case CategorySessionDisconnect:
		return "session_disconnect"
	case CategoryGlobalBroadcast:
		return "global_broadcast"
	case CategorySystemNotify:
		return "system_notify"
	default:
		return "unknown"
	}
}

var fixedChannels = map[string]Category{
	ChannelSessionConnect:    CategorySessionConnect,
	ChannelSessionDisconnect: CategorySessionDisconnect,
	ChannelGlobalBroadcast:   CategoryGlobalBroadcast,
	ChannelSystemNotify:      CategorySystemNotify,
}

// Classify resolves a channel name to its category. For room channels
// the room id is returned as well.
func Classify(channel string) (Category, string) {
	if cat, ok := fixedChannels[channel]; ok {
		return cat, ""
	}
	if roomID, ok := strings.CutPrefix(channel, roomChannelPrefix); ok && roomID != "" {
		return CategoryRoom, roomID
	}
	return CategoryUnknown, ""
}

// Shared key derivations for the presence mirror. Kept next to the
// channel names so the full wire/key surface lives in one place.

func SessionInfoKey(sessionID string) string {
	return "sessions:" + sessionID
}

func SessionRoomKey(sessionID string) string {
	return "sessions:" + sessionID + ":room"
}

func RoomParticipantsKey(roomID string) string {
	return "rooms:" + roomID + ":participants"
}

func RoomInfoKey(roomID string) string {
	return "rooms:" + roomID + ":info"
}
