package websocket

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"devchat/internal/models"
	"devchat/pkg/logger"
)

const hubIdleTimeout = 10 * time.Minute

// registration carries the history preloaded by the joining connection so
// the hub loop never blocks on the database.
type registration struct {
	client  *Client
	history []*models.Message
}

type outbound struct {
	data    []byte
	exclude *Client
}

// Hub owns the presence set of one room. All mutations and fan-outs for
// the room flow through the single Run goroutine, so every roster
// broadcast reflects the state after the join/leave that triggered it.
type Hub struct {
	roomID   int64
	roomName string

	register   chan *registration
	unregister chan *Client
	broadcast  chan *outbound
	done       chan struct{}

	clients map[*Client]bool

	clientCount  atomic.Int32
	lastActivity atomic.Int64
}

func newHub(roomID int64, roomName string) *Hub {
	h := &Hub{
		roomID:     roomID,
		roomName:   roomName,
		register:   make(chan *registration),
		unregister: make(chan *Client),
		broadcast:  make(chan *outbound, 16),
		done:       make(chan struct{}),
		clients:    make(map[*Client]bool),
	}
	h.touch()
	return h
}

func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			return

		case reg := <-h.register:
			h.clients[reg.client] = true
			h.touch()
			h.sendTo(reg.client, models.EventRoomHistory, models.RoomHistoryPayload{
				Messages: reg.history,
				RoomName: h.roomName,
			})
			h.sendToOthers(reg.client, models.EventUserJoined, presenceOf(reg.client))
			h.sendToAll(models.EventOnlineRoster, models.OnlineRosterPayload{Users: h.roster()})
			logger.Info("User %s joined room %d", reg.client.user.Username, h.roomID)

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				h.touch()
				h.sendToAll(models.EventUserLeft, presenceOf(client))
				h.sendToAll(models.EventOnlineRoster, models.OnlineRosterPayload{Users: h.roster()})
				logger.Info("User %s left room %d", client.user.Username, h.roomID)
			}

		case out := <-h.broadcast:
			h.touch()
			for client := range h.clients {
				if client != out.exclude {
					client.queue(out.data)
				}
			}
		}
	}
}

// Register adds the connection and emits history, user-joined and the
// recomputed roster. The history slice is delivered to the joiner only.
func (h *Hub) Register(client *Client, history []*models.Message) {
	select {
	case h.register <- &registration{client: client, history: history}:
	case <-h.done:
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// BroadcastEvent fans an event out to every connection in the room. Events
// for a reaped hub are dropped; nobody is connected to receive them.
func (h *Hub) BroadcastEvent(event string, data interface{}) {
	h.broadcastExcept(nil, event, data)
}

// BroadcastEventExcept fans out to everyone but the given connection.
func (h *Hub) BroadcastEventExcept(exclude *Client, event string, data interface{}) {
	h.broadcastExcept(exclude, event, data)
}

func (h *Hub) broadcastExcept(exclude *Client, event string, data interface{}) {
	payload, err := marshalEvent(event, data)
	if err != nil {
		logger.Error("Error marshaling %s event for room %d: %v", event, h.roomID, err)
		return
	}
	select {
	case h.broadcast <- &outbound{data: payload, exclude: exclude}:
	case <-h.done:
	}
}

func (h *Hub) RoomID() int64 {
	return h.roomID
}

func (h *Hub) ClientCount() int {
	return int(h.clientCount.Load())
}

func (h *Hub) lastActive() time.Time {
	return time.Unix(h.lastActivity.Load(), 0)
}

func (h *Hub) touch() {
	h.clientCount.Store(int32(len(h.clients)))
	h.lastActivity.Store(time.Now().Unix())
}

// roster enumerates live connections, deduped by user id. "Online" means
// connected right now, not persistent membership.
func (h *Hub) roster() []models.RosterEntry {
	seen := make(map[int64]bool, len(h.clients))
	entries := make([]models.RosterEntry, 0, len(h.clients))
	for client := range h.clients {
		if seen[client.user.ID] {
			continue
		}
		seen[client.user.ID] = true
		entries = append(entries, models.RosterEntry{
			UserID:   client.user.ID,
			Username: client.user.Username,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Username < entries[j].Username })
	return entries
}

func (h *Hub) sendTo(client *Client, event string, data interface{}) {
	payload, err := marshalEvent(event, data)
	if err != nil {
		logger.Error("Error marshaling %s event: %v", event, err)
		return
	}
	client.queue(payload)
}

func (h *Hub) sendToAll(event string, data interface{}) {
	payload, err := marshalEvent(event, data)
	if err != nil {
		logger.Error("Error marshaling %s event: %v", event, err)
		return
	}
	for client := range h.clients {
		client.queue(payload)
	}
}

func (h *Hub) sendToOthers(exclude *Client, event string, data interface{}) {
	payload, err := marshalEvent(event, data)
	if err != nil {
		logger.Error("Error marshaling %s event: %v", event, err)
		return
	}
	for client := range h.clients {
		if client != exclude {
			client.queue(payload)
		}
	}
}

func presenceOf(client *Client) models.PresencePayload {
	return models.PresencePayload{
		UserID:   client.user.ID,
		Username: client.user.Username,
	}
}

// Hub Manager
type Manager struct {
	hubs  map[int64]*Hub
	mutex sync.Mutex
}

func NewManager() *Manager {
	manager := &Manager{
		hubs: make(map[int64]*Hub),
	}

	go manager.reapIdleHubs()
	return manager
}

func (m *Manager) GetHubForRoom(roomID int64, roomName string) *Hub {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	hub, exists := m.hubs[roomID]
	if !exists {
		hub = newHub(roomID, roomName)
		m.hubs[roomID] = hub
		go hub.Run()
	}
	return hub
}

func (m *Manager) reapIdleHubs() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		m.mutex.Lock()
		for roomID, hub := range m.hubs {
			if hub.ClientCount() == 0 && time.Since(hub.lastActive()) > hubIdleTimeout {
				close(hub.done)
				delete(m.hubs, roomID)
				logger.Debug("Reaped idle hub for room %d", roomID)
			}
		}
		m.mutex.Unlock()
	}
}
