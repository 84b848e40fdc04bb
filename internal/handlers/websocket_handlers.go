package handlers

import (
	"net/http"

	"devchat/internal/ai"
	"devchat/internal/auth"
	"devchat/internal/database"
	"devchat/internal/services"
	ws "devchat/internal/websocket"
	"devchat/pkg/logger"

	"github.com/gorilla/websocket"
)

type WebSocketHandlers struct {
	authService *auth.Service
	roomService *services.RoomService
	hubManager  *ws.Manager
	db          database.Database
	responder   *ai.Responder
	upgrader    websocket.Upgrader
}

func NewWebSocketHandlers(authService *auth.Service, roomService *services.RoomService, hubManager *ws.Manager, db database.Database, responder *ai.Responder) *WebSocketHandlers {
	return &WebSocketHandlers{
		authService: authService,
		roomService: roomService,
		hubManager:  hubManager,
		db:          db,
		responder:   responder,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // Configure for production
		},
	}
}

// HandleWebSocket is the connection-admission gate: the credential check
// runs exactly once here, before any room-scoped event is accepted.
func (h *WebSocketHandlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	tokenStr := TokenFromRequest(r)
	if tokenStr == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	user, err := h.authService.GetUserFromToken(r.Context(), tokenStr)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Upgrade error: %v", err)
		return
	}

	client := ws.NewClient(conn, user, h.hubManager, h.roomService, h.db, h.responder)

	go client.WritePump()
	go client.ReadPump()

	logger.Info("Gateway connection established for %s", user.Username)
}
