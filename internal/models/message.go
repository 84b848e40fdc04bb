package models

import "time"

const (
	MessageTypeUser = "user"
	MessageTypeAI   = "ai"
)

// MaxContentLength caps message content; longer sends are dropped.
const MaxContentLength = 4000

// Message is a persisted chat message. A nil SenderID marks an AI-authored
// message; AITriggeredBy then references the user whose mention triggered it.
type Message struct {
	ID                int64     `json:"id"`
	RoomID            int64     `json:"room_id"`
	SenderID          *int64    `json:"sender_id"`
	SenderName        string    `json:"sender_name,omitempty"`
	Content           string    `json:"content"`
	Type              string    `json:"type"`
	AITriggeredBy     *int64    `json:"ai_triggered_by,omitempty"`
	AITriggeredByName string    `json:"ai_triggered_by_name,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}
