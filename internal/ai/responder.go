package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"devchat/internal/database"
	"devchat/internal/models"
	"devchat/pkg/logger"
)

const (
	// contextWindow bounds the prompt: only this many of the most recent
	// messages are ever included, regardless of room age.
	contextWindow = 10

	maxAttempts = 3

	// FallbackReply is sent when all generation attempts fail. The AI path
	// never surfaces a hard failure to the room.
	FallbackReply = "Sorry, I'm unable to process that request right now. Please try again later."
)

// Broadcaster fans an event out to every connection in a room channel.
type Broadcaster interface {
	BroadcastEvent(event string, data interface{})
}

// Responder orchestrates one assistant reply per triggering message. It is
// invoked on its own goroutine and must never block the message pipeline.
type Responder struct {
	gen    Generator
	db     database.MessageRepository
	policy RetryPolicy
	sleep  func(time.Duration)
}

func NewResponder(gen Generator, db database.MessageRepository, policy RetryPolicy) *Responder {
	return &Responder{
		gen:    gen,
		db:     db,
		policy: policy,
		sleep:  time.Sleep,
	}
}

// Respond emits the ai-typing lifecycle around the model call, persists the
// reply (or the fallback) as an AI message, and broadcasts it. The typing
// indicator always clears before the message is broadcast, and a trigger
// whose sender has disconnected still lands in the room.
func (r *Responder) Respond(ctx context.Context, room Broadcaster, roomID int64, roomName, query string, triggeredBy *models.User) {
	room.BroadcastEvent(models.EventAITyping, models.AITypingPayload{IsTyping: true})

	history, err := r.db.ListRecentMessages(ctx, roomID, contextWindow)
	if err != nil {
		logger.Error("Error loading AI context for room %d: %v", roomID, err)
		history = nil
	}

	prompt := buildPrompt(roomName, query, history)
	reply := r.generateWithRetry(ctx, prompt)

	saved, err := r.db.SaveMessage(ctx, roomID, nil, reply, models.MessageTypeAI, &triggeredBy.ID)

	room.BroadcastEvent(models.EventAITyping, models.AITypingPayload{IsTyping: false})

	if err != nil {
		logger.Error("Error saving AI message for room %d: %v", roomID, err)
		return
	}
	room.BroadcastEvent(models.EventNewMessage, models.NewMessagePayload{Message: saved})
}

func (r *Responder) generateWithRetry(ctx context.Context, prompt string) string {
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		text, err := r.gen.Generate(ctx, prompt)
		if err == nil {
			return text
		}

		logger.Error("AI generation attempt %d/%d failed: %v", attempt, maxAttempts, err)
		if attempt < maxAttempts {
			delay := r.policy(err, attempt)
			logger.Debug("Retrying AI generation in %s", delay)
			r.sleep(delay)
		}
	}
	return FallbackReply
}

func buildPrompt(roomName, query string, history []*models.Message) string {
	var b strings.Builder

	fmt.Fprintf(&b, `You are a helpful AI assistant in a collaborative developer chat room called %q.
Keep your responses concise, technical, and relevant to software development.
Use markdown formatting for code blocks when appropriate.

`, roomName)

	if len(history) > 0 {
		b.WriteString("Recent chat context:\n")
		for _, m := range history {
			fmt.Fprintf(&b, "%s: %s\n", displayName(m), m.Content)
		}
		b.WriteString("\n")
	}

	b.WriteString("User asked: ")
	b.WriteString(query)
	return b.String()
}

func displayName(m *models.Message) string {
	if m.Type == models.MessageTypeAI {
		return "AI"
	}
	if m.SenderName == "" {
		return "User"
	}
	return m.SenderName
}
