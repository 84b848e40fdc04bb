package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"devchat/internal/ai"
	"devchat/internal/database"
	"devchat/internal/models"
	"devchat/internal/services"
	"devchat/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second

	maxFrameSize = 8192
	sendBuffer   = 256

	historyLimit = 50
)

// Client is one live gateway connection. It belongs to at most one room
// channel at a time; joining a new room implicitly leaves the previous one.
// All inbound events are handled sequentially on the read goroutine, which
// is the only goroutine that touches c.hub.
type Client struct {
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	connID string
	user   *models.User

	hub *Hub

	manager   *Manager
	rooms     *services.RoomService
	db        database.Database
	responder *ai.Responder
}

func NewClient(conn *websocket.Conn, user *models.User, manager *Manager, rooms *services.RoomService, db database.Database, responder *ai.Responder) *Client {
	return &Client{
		conn:      conn,
		send:      make(chan []byte, sendBuffer),
		done:      make(chan struct{}),
		connID:    uuid.NewString(),
		user:      user,
		manager:   manager,
		rooms:     rooms,
		db:        db,
		responder: responder,
	}
}

func (c *Client) ReadPump() {
	defer func() {
		// Abrupt transport loss is an implicit leave, not an error.
		if c.hub != nil {
			c.hub.Unregister(c)
			c.hub = nil
		}
		close(c.done)
		c.conn.Close()
		logger.Debug("Connection %s closed for %s", c.connID, c.user.Username)
	}()

	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Error("WebSocket error: %v", err)
			}
			break
		}

		var env models.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			logger.Debug("Dropping malformed frame from %s: %v", c.user.Username, err)
			continue
		}

		c.dispatch(&env)
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Error("Write error: %v", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

func (c *Client) dispatch(env *models.Envelope) {
	ctx := context.Background()

	switch env.Event {
	case models.EventJoinRoom:
		var p models.RoomPayload
		if json.Unmarshal(env.Data, &p) == nil {
			c.handleJoin(ctx, p.RoomID)
		}
	case models.EventLeaveRoom:
		var p models.RoomPayload
		if json.Unmarshal(env.Data, &p) == nil {
			c.handleLeave(p.RoomID)
		}
	case models.EventSendMessage:
		var p models.SendMessagePayload
		if json.Unmarshal(env.Data, &p) == nil {
			c.handleSendMessage(ctx, &p)
		}
	case models.EventTypingStart:
		var p models.RoomPayload
		if json.Unmarshal(env.Data, &p) == nil {
			c.handleTyping(p.RoomID, true)
		}
	case models.EventTypingStop:
		var p models.RoomPayload
		if json.Unmarshal(env.Data, &p) == nil {
			c.handleTyping(p.RoomID, false)
		}
	default:
		logger.Debug("Unknown event %q from %s", env.Event, c.user.Username)
	}
}

func (c *Client) handleJoin(ctx context.Context, roomID int64) {
	room, _, err := c.rooms.AuthorizeMember(ctx, roomID, c.user.ID)
	if err != nil {
		c.sendError(joinErrorMessage(err))
		return
	}

	history, err := c.db.ListRecentMessages(ctx, roomID, historyLimit)
	if err != nil {
		logger.Error("Error loading history for room %d: %v", roomID, err)
		c.sendError("Failed to join room")
		return
	}
	if history == nil {
		history = []*models.Message{}
	}

	// Single-room-at-a-time: joining a new room leaves the previous one.
	if c.hub != nil && c.hub.roomID != roomID {
		c.hub.Unregister(c)
		c.hub = nil
	}

	hub := c.manager.GetHubForRoom(roomID, room.Name)
	c.hub = hub
	hub.Register(c, history)
}

func (c *Client) handleLeave(roomID int64) {
	// Leaving a room the connection is not in is a safe no-op.
	if c.hub == nil || c.hub.roomID != roomID {
		return
	}
	c.hub.Unregister(c)
	c.hub = nil
}

func (c *Client) handleSendMessage(ctx context.Context, p *models.SendMessagePayload) {
	content := strings.TrimSpace(p.Content)
	if content == "" || len(content) > models.MaxContentLength {
		return
	}

	// Membership is re-verified on every send; a revoked membership stops
	// delivery on the very next attempt.
	room, _, err := c.rooms.AuthorizeMember(ctx, p.RoomID, c.user.ID)
	if err != nil {
		c.sendError(sendErrorMessage(err))
		return
	}

	msg, err := c.db.SaveMessage(ctx, p.RoomID, &c.user.ID, content, models.MessageTypeUser, nil)
	if err != nil {
		logger.Error("Error saving message: %v", err)
		c.sendError("Failed to send message")
		return
	}

	hub := c.manager.GetHubForRoom(p.RoomID, room.Name)
	hub.BroadcastEvent(models.EventNewMessage, models.NewMessagePayload{Message: msg})

	if err := c.db.TouchRoom(ctx, p.RoomID); err != nil {
		logger.Error("Error updating room activity: %v", err)
	}

	if query, ok := ai.ExtractQuery(content); ok {
		// The AI round-trip must not block message delivery; the trigger is
		// a property of the message, so it outlives this connection.
		go c.responder.Respond(context.Background(), hub, p.RoomID, room.Name, query, c.user)
	}
}

func (c *Client) handleTyping(roomID int64, isTyping bool) {
	if c.hub == nil || c.hub.roomID != roomID {
		return
	}
	c.hub.BroadcastEventExcept(c, models.EventTypingUpdate, models.TypingUpdatePayload{
		UserID:   c.user.ID,
		Username: c.user.Username,
		IsTyping: isTyping,
	})
}

func (c *Client) sendError(message string) {
	payload, err := marshalEvent(models.EventError, models.ErrorPayload{Message: message})
	if err != nil {
		logger.Error("Error marshaling error event: %v", err)
		return
	}
	c.queue(payload)
}

// queue never blocks the room loop; events for a connection whose buffer is
// full are dropped.
func (c *Client) queue(data []byte) {
	select {
	case c.send <- data:
	default:
		logger.Debug("Dropping event for slow connection %s", c.connID)
	}
}

func joinErrorMessage(err error) string {
	switch {
	case errors.Is(err, services.ErrRoomNotFound):
		return "Room not found"
	case errors.Is(err, services.ErrAccessDenied):
		return "Access denied to this room"
	default:
		return "Failed to join room"
	}
}

func sendErrorMessage(err error) string {
	switch {
	case errors.Is(err, services.ErrRoomNotFound):
		return "Room not found"
	case errors.Is(err, services.ErrAccessDenied):
		return "Access denied"
	default:
		return "Failed to send message"
	}
}
