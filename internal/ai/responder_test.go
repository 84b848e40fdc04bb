package ai

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devchat/internal/database"
	"devchat/internal/models"
)

type scriptedGenerator struct {
	replies []string
	errs    []error
	prompts []string
}

func (g *scriptedGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.prompts = append(g.prompts, prompt)
	i := len(g.prompts) - 1
	if i < len(g.errs) && g.errs[i] != nil {
		return "", g.errs[i]
	}
	if i < len(g.replies) {
		return g.replies[i], nil
	}
	return "", errors.New("no scripted reply")
}

type recordedEvent struct {
	event string
	data  interface{}
}

type recordingBroadcaster struct {
	events []recordedEvent
}

func (b *recordingBroadcaster) BroadcastEvent(event string, data interface{}) {
	b.events = append(b.events, recordedEvent{event: event, data: data})
}

func newTestResponder(t *testing.T, gen Generator) (*Responder, *database.MemoryDB, *[]time.Duration) {
	t.Helper()

	db := database.NewMemoryDB()
	var delays []time.Duration
	r := NewResponder(gen, db, func(err error, attempt int) time.Duration {
		return time.Duration(attempt) * time.Second
	})
	r.sleep = func(d time.Duration) { delays = append(delays, d) }
	return r, db, &delays
}

func seedRoomWithUser(t *testing.T, db *database.MemoryDB) (*models.Room, *models.User) {
	t.Helper()

	user, err := db.CreateUser(context.Background(), "alice", "alice@example.com", "hash")
	require.NoError(t, err)
	room, err := db.CreateRoom(context.Background(), "Go Help", "ABC234", user.ID)
	require.NoError(t, err)
	return room, user
}

func TestResponderSuccess(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{"Use a sync.WaitGroup."}}
	r, db, delays := newTestResponder(t, gen)
	room, user := seedRoomWithUser(t, db)

	b := &recordingBroadcaster{}
	r.Respond(context.Background(), b, room.ID, room.Name, "how do I wait for goroutines?", user)

	require.Len(t, b.events, 3)
	assert.Equal(t, models.EventAITyping, b.events[0].event)
	assert.Equal(t, models.AITypingPayload{IsTyping: true}, b.events[0].data)
	assert.Equal(t, models.EventAITyping, b.events[1].event)
	assert.Equal(t, models.AITypingPayload{IsTyping: false}, b.events[1].data)
	assert.Equal(t, models.EventNewMessage, b.events[2].event)

	payload, ok := b.events[2].data.(models.NewMessagePayload)
	require.True(t, ok)
	assert.Equal(t, "Use a sync.WaitGroup.", payload.Message.Content)
	assert.Equal(t, models.MessageTypeAI, payload.Message.Type)
	assert.Nil(t, payload.Message.SenderID)
	require.NotNil(t, payload.Message.AITriggeredBy)
	assert.Equal(t, user.ID, *payload.Message.AITriggeredBy)
	assert.Equal(t, "alice", payload.Message.AITriggeredByName)

	assert.Empty(t, *delays, "no retries on first success")

	// The reply is persisted and shows up in room history.
	history, err := db.ListRecentMessages(context.Background(), room.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "Use a sync.WaitGroup.", history[0].Content)
}

func TestResponderRetriesThenSucceeds(t *testing.T) {
	gen := &scriptedGenerator{
		errs:    []error{errors.New("transient"), errors.New("transient")},
		replies: []string{"", "", "third time lucky"},
	}
	r, db, delays := newTestResponder(t, gen)
	room, user := seedRoomWithUser(t, db)

	b := &recordingBroadcaster{}
	r.Respond(context.Background(), b, room.ID, room.Name, "hello?", user)

	assert.Len(t, gen.prompts, 3)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *delays)

	payload, ok := b.events[len(b.events)-1].data.(models.NewMessagePayload)
	require.True(t, ok)
	assert.Equal(t, "third time lucky", payload.Message.Content)
}

func TestResponderFallbackAfterExhaustedRetries(t *testing.T) {
	gen := &scriptedGenerator{
		errs: []error{errors.New("down"), errors.New("down"), errors.New("down")},
	}
	r, db, delays := newTestResponder(t, gen)
	room, user := seedRoomWithUser(t, db)

	b := &recordingBroadcaster{}
	r.Respond(context.Background(), b, room.ID, room.Name, "hello?", user)

	assert.Len(t, gen.prompts, 3)
	// Two sleeps: no delay after the final attempt.
	assert.Len(t, *delays, 2)

	payload, ok := b.events[len(b.events)-1].data.(models.NewMessagePayload)
	require.True(t, ok)
	assert.Equal(t, FallbackReply, payload.Message.Content)
	assert.Equal(t, models.MessageTypeAI, payload.Message.Type)

	// The fallback is a real room message, persisted like any other reply.
	history, err := db.ListRecentMessages(context.Background(), room.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, FallbackReply, history[0].Content)
}

func TestResponderPromptIncludesRecentContext(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{"ok"}}
	r, db, _ := newTestResponder(t, gen)
	room, user := seedRoomWithUser(t, db)

	_, err := db.SaveMessage(context.Background(), room.ID, &user.ID, "anyone seen this panic?", models.MessageTypeUser, nil)
	require.NoError(t, err)
	_, err = db.SaveMessage(context.Background(), room.ID, nil, "Looks like a nil map write.", models.MessageTypeAI, &user.ID)
	require.NoError(t, err)

	b := &recordingBroadcaster{}
	r.Respond(context.Background(), b, room.ID, room.Name, "how do I fix it?", user)

	require.Len(t, gen.prompts, 1)
	prompt := gen.prompts[0]
	assert.Contains(t, prompt, `chat room called "Go Help"`)
	assert.Contains(t, prompt, "Recent chat context:\n")
	assert.Contains(t, prompt, "alice: anyone seen this panic?\n")
	assert.Contains(t, prompt, "AI: Looks like a nil map write.\n")
	assert.Contains(t, prompt, "User asked: how do I fix it?")
}

func TestResponderPromptWithoutHistory(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{"ok"}}
	r, db, _ := newTestResponder(t, gen)
	room, user := seedRoomWithUser(t, db)

	b := &recordingBroadcaster{}
	r.Respond(context.Background(), b, room.ID, room.Name, "first question", user)

	require.Len(t, gen.prompts, 1)
	assert.NotContains(t, gen.prompts[0], "Recent chat context:")
	assert.Contains(t, gen.prompts[0], "User asked: first question")
}

func TestResponderContextWindowBounded(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{"ok"}}
	r, db, _ := newTestResponder(t, gen)
	room, user := seedRoomWithUser(t, db)

	for i := 0; i < 25; i++ {
		_, err := db.SaveMessage(context.Background(), room.ID, &user.ID, "filler", models.MessageTypeUser, nil)
		require.NoError(t, err)
	}
	_, err := db.SaveMessage(context.Background(), room.ID, &user.ID, "the newest message", models.MessageTypeUser, nil)
	require.NoError(t, err)

	b := &recordingBroadcaster{}
	r.Respond(context.Background(), b, room.ID, room.Name, "recap please", user)

	require.Len(t, gen.prompts, 1)
	prompt := gen.prompts[0]
	assert.Contains(t, prompt, "the newest message")
	assert.LessOrEqual(t, strings.Count(prompt, "alice: "), contextWindow)
}
