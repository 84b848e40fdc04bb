package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devchat/internal/auth"
	"devchat/internal/config"
	"devchat/internal/database"
	"devchat/internal/models"
	"devchat/internal/services"
)

type fixture struct {
	db    *database.MemoryDB
	auth  *auth.Service
	rooms *RoomHandlers
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg := &config.Config{
		JWT: config.JWTConfig{Secret: []byte("test-secret"), ExpiresIn: time.Hour},
	}
	db := database.NewMemoryDB()
	authService := auth.NewService(db, cfg)
	roomService, err := services.NewRoomService(db)
	require.NoError(t, err)

	return &fixture{
		db:    db,
		auth:  authService,
		rooms: NewRoomHandlers(roomService, authService),
	}
}

// signup registers a user through the auth service and returns their token.
func (f *fixture) signup(t *testing.T, name string) (*models.User, string) {
	t.Helper()

	resp, err := f.auth.Register(context.Background(), &models.RegisterRequest{
		Username: name,
		Email:    name + "@example.com",
		Password: "secret-password",
	})
	require.NoError(t, err)
	return &resp.User, resp.Token
}

func jsonRequest(method, path, token string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func decodeRoom(t *testing.T, rec *httptest.ResponseRecorder) *models.Room {
	t.Helper()

	var resp struct {
		Room *models.Room `json:"room"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Room)
	return resp.Room
}

func TestCreateRoomHandler(t *testing.T) {
	f := newFixture(t)
	_, token := f.signup(t, "alice")

	rec := httptest.NewRecorder()
	f.rooms.CreateRoom(rec, jsonRequest(http.MethodPost, "/rooms", token, models.CreateRoomRequest{Name: "Go Help"}))

	require.Equal(t, http.StatusCreated, rec.Code)
	room := decodeRoom(t, rec)
	assert.Equal(t, "Go Help", room.Name)
	assert.Len(t, room.Code, 6)
}

func TestCreateRoomHandlerRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	_, token := f.signup(t, "alice")

	rec := httptest.NewRecorder()
	f.rooms.CreateRoom(rec, jsonRequest(http.MethodPost, "/rooms", token, models.CreateRoomRequest{Name: "  "}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/rooms", strings.NewReader("{not json"))
	req.Header.Set("Authorization", "Bearer "+token)
	f.rooms.CreateRoom(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRoomHandlersRequireAuth(t *testing.T) {
	f := newFixture(t)

	endpoints := []struct {
		name string
		call func(w http.ResponseWriter, r *http.Request)
		req  *http.Request
	}{
		{"create", f.rooms.CreateRoom, jsonRequest(http.MethodPost, "/rooms", "", models.CreateRoomRequest{Name: "x"})},
		{"list", f.rooms.ListMyRooms, jsonRequest(http.MethodGet, "/rooms/mine", "", nil)},
		{"get", f.rooms.GetRoom, jsonRequest(http.MethodGet, "/rooms/1", "", nil)},
		{"join", f.rooms.JoinRoom, jsonRequest(http.MethodPost, "/rooms/join", "", models.JoinRoomRequest{Code: "ABC234"})},
		{"leave", f.rooms.LeaveRoom, jsonRequest(http.MethodPost, "/rooms/1/leave", "", nil)},
		{"messages", f.rooms.GetMessages, jsonRequest(http.MethodGet, "/rooms/1/messages", "", nil)},
	}

	for _, ep := range endpoints {
		t.Run(ep.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			ep.call(rec, ep.req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}

	t.Run("garbage token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		f.rooms.ListMyRooms(rec, jsonRequest(http.MethodGet, "/rooms/mine", "not-a-token", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestJoinAndListRooms(t *testing.T) {
	f := newFixture(t)
	_, aliceToken := f.signup(t, "alice")
	_, bobToken := f.signup(t, "bob")

	rec := httptest.NewRecorder()
	f.rooms.CreateRoom(rec, jsonRequest(http.MethodPost, "/rooms", aliceToken, models.CreateRoomRequest{Name: "Go Help"}))
	require.Equal(t, http.StatusCreated, rec.Code)
	room := decodeRoom(t, rec)

	rec = httptest.NewRecorder()
	f.rooms.JoinRoom(rec, jsonRequest(http.MethodPost, "/rooms/join", bobToken, models.JoinRoomRequest{Code: room.Code}))
	require.Equal(t, http.StatusOK, rec.Code)

	var joinResp struct {
		Room       *models.Room       `json:"room"`
		Membership *models.Membership `json:"membership"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &joinResp))
	assert.Equal(t, room.ID, joinResp.Room.ID)
	assert.Equal(t, models.RoleMember, joinResp.Membership.Role)

	rec = httptest.NewRecorder()
	f.rooms.ListMyRooms(rec, jsonRequest(http.MethodGet, "/rooms/mine", bobToken, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var listResp struct {
		Rooms []*models.Room `json:"rooms"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listResp))
	require.Len(t, listResp.Rooms, 1)
	assert.Equal(t, "Go Help", listResp.Rooms[0].Name)
}

func TestJoinRoomUnknownCode(t *testing.T) {
	f := newFixture(t)
	_, token := f.signup(t, "alice")

	rec := httptest.NewRecorder()
	f.rooms.JoinRoom(rec, jsonRequest(http.MethodPost, "/rooms/join", token, models.JoinRoomRequest{Code: "ZZZZZZ"}))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetRoomStatusMapping(t *testing.T) {
	f := newFixture(t)
	_, aliceToken := f.signup(t, "alice")
	_, carolToken := f.signup(t, "carol")

	rec := httptest.NewRecorder()
	f.rooms.CreateRoom(rec, jsonRequest(http.MethodPost, "/rooms", aliceToken, models.CreateRoomRequest{Name: "Go Help"}))
	room := decodeRoom(t, rec)

	t.Run("member sees room", func(t *testing.T) {
		rec := httptest.NewRecorder()
		f.rooms.GetRoom(rec, jsonRequest(http.MethodGet, fmt.Sprintf("/rooms/%d", room.ID), aliceToken, nil))
		require.Equal(t, http.StatusOK, rec.Code)
		got := decodeRoom(t, rec)
		assert.Equal(t, models.RoleOwner, got.MembershipRole)
	})

	t.Run("non-member forbidden", func(t *testing.T) {
		rec := httptest.NewRecorder()
		f.rooms.GetRoom(rec, jsonRequest(http.MethodGet, fmt.Sprintf("/rooms/%d", room.ID), carolToken, nil))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("unknown room", func(t *testing.T) {
		rec := httptest.NewRecorder()
		f.rooms.GetRoom(rec, jsonRequest(http.MethodGet, "/rooms/9999", aliceToken, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("bad room id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		f.rooms.GetRoom(rec, jsonRequest(http.MethodGet, "/rooms/abc", aliceToken, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestLeaveRoomStatusMapping(t *testing.T) {
	f := newFixture(t)
	_, aliceToken := f.signup(t, "alice")
	_, bobToken := f.signup(t, "bob")

	rec := httptest.NewRecorder()
	f.rooms.CreateRoom(rec, jsonRequest(http.MethodPost, "/rooms", aliceToken, models.CreateRoomRequest{Name: "Go Help"}))
	room := decodeRoom(t, rec)

	rec = httptest.NewRecorder()
	f.rooms.JoinRoom(rec, jsonRequest(http.MethodPost, "/rooms/join", bobToken, models.JoinRoomRequest{Code: room.Code}))
	require.Equal(t, http.StatusOK, rec.Code)

	t.Run("owner cannot leave", func(t *testing.T) {
		rec := httptest.NewRecorder()
		f.rooms.LeaveRoom(rec, jsonRequest(http.MethodPost, fmt.Sprintf("/rooms/%d/leave", room.ID), aliceToken, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("member leaves", func(t *testing.T) {
		rec := httptest.NewRecorder()
		f.rooms.LeaveRoom(rec, jsonRequest(http.MethodPost, fmt.Sprintf("/rooms/%d/leave", room.ID), bobToken, nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("leaving again is not found", func(t *testing.T) {
		rec := httptest.NewRecorder()
		f.rooms.LeaveRoom(rec, jsonRequest(http.MethodPost, fmt.Sprintf("/rooms/%d/leave", room.ID), bobToken, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestGetMessagesHandler(t *testing.T) {
	f := newFixture(t)
	alice, token := f.signup(t, "alice")

	rec := httptest.NewRecorder()
	f.rooms.CreateRoom(rec, jsonRequest(http.MethodPost, "/rooms", token, models.CreateRoomRequest{Name: "Go Help"}))
	room := decodeRoom(t, rec)

	for i := 0; i < 3; i++ {
		_, err := f.db.SaveMessage(context.Background(), room.ID, &alice.ID, fmt.Sprintf("message %d", i), models.MessageTypeUser, nil)
		require.NoError(t, err)
	}

	rec = httptest.NewRecorder()
	f.rooms.GetMessages(rec, jsonRequest(http.MethodGet, fmt.Sprintf("/rooms/%d/messages?limit=2", room.ID), token, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Messages []*models.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Messages, 2)
	assert.Equal(t, "message 1", resp.Messages[0].Content)
	assert.Equal(t, "message 2", resp.Messages[1].Content)

	t.Run("bad cursor", func(t *testing.T) {
		rec := httptest.NewRecorder()
		f.rooms.GetMessages(rec, jsonRequest(http.MethodGet, fmt.Sprintf("/rooms/%d/messages?before=nope", room.ID), token, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("bad limit", func(t *testing.T) {
		rec := httptest.NewRecorder()
		f.rooms.GetMessages(rec, jsonRequest(http.MethodGet, fmt.Sprintf("/rooms/%d/messages?limit=nope", room.ID), token, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestTokenFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Authorization", "Bearer header-token")
	assert.Equal(t, "header-token", TokenFromRequest(req))

	req = httptest.NewRequest(http.MethodGet, "/ws?token=query-token", nil)
	assert.Equal(t, "query-token", TokenFromRequest(req))

	// Header wins when both are present.
	req = httptest.NewRequest(http.MethodGet, "/ws?token=query-token", nil)
	req.Header.Set("Authorization", "Bearer header-token")
	assert.Equal(t, "header-token", TokenFromRequest(req))

	req = httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.Equal(t, "", TokenFromRequest(req))
}
