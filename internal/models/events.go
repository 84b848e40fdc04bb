package models

import "encoding/json"

// Gateway event names. Inbound events are sent by clients over the
// WebSocket connection; outbound events are emitted by the server.
const (
	EventJoinRoom    = "join-room"
	EventLeaveRoom   = "leave-room"
	EventSendMessage = "send-message"
	EventTypingStart = "typing-start"
	EventTypingStop  = "typing-stop"

	EventRoomHistory  = "room-history"
	EventNewMessage   = "new-message"
	EventOnlineRoster = "online-roster"
	EventUserJoined   = "user-joined"
	EventUserLeft     = "user-left"
	EventTypingUpdate = "typing-update"
	EventAITyping     = "ai-typing"
	EventError        = "error"
)

// Envelope wraps every gateway frame in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type RoomPayload struct {
	RoomID int64 `json:"roomId"`
}

type SendMessagePayload struct {
	RoomID  int64  `json:"roomId"`
	Content string `json:"content"`
}

type RoomHistoryPayload struct {
	Messages []*Message `json:"messages"`
	RoomName string     `json:"roomName"`
}

type NewMessagePayload struct {
	Message *Message `json:"message"`
}

type RosterEntry struct {
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
}

type OnlineRosterPayload struct {
	Users []RosterEntry `json:"users"`
}

// PresencePayload carries user-joined and user-left notifications.
type PresencePayload struct {
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
}

type TypingUpdatePayload struct {
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
	IsTyping bool   `json:"isTyping"`
}

type AITypingPayload struct {
	IsTyping bool `json:"isTyping"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
