package database

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"devchat/internal/models"
)

// MemoryDB is an in-memory Database used by tests and local development.
// It mirrors the semantics of PostgresDB: not-found lookups return
// (nil, nil), history queries return oldest first, and room activity
// timestamps never move backwards.
type MemoryDB struct {
	mu sync.Mutex

	users       map[int64]*models.User
	rooms       map[int64]*models.Room
	memberships map[string]*models.Membership
	messages    []*models.Message

	nextID int64
}

func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		users:       make(map[int64]*models.User),
		rooms:       make(map[int64]*models.Room),
		memberships: make(map[string]*models.Membership),
	}
}

func (db *MemoryDB) Close() error { return nil }

func (db *MemoryDB) id() int64 {
	db.nextID++
	return db.nextID
}

func membershipKey(roomID, userID int64) string {
	return fmt.Sprintf("%d:%d", roomID, userID)
}

// User Repository Implementation
func (db *MemoryDB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, u := range db.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("user not found")
}

func (db *MemoryDB) CreateUser(ctx context.Context, username, email, passwordHash string) (*models.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, u := range db.users {
		if u.Email == email {
			return nil, fmt.Errorf("email already registered")
		}
	}

	user := &models.User{
		ID:           db.id(),
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now(),
	}
	db.users[user.ID] = user

	copied := *user
	return &copied, nil
}

func (db *MemoryDB) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	user, ok := db.users[id]
	if !ok {
		return nil, fmt.Errorf("user not found")
	}
	copied := *user
	copied.PasswordHash = ""
	return &copied, nil
}

// Room Repository Implementation
func (db *MemoryDB) CreateRoom(ctx context.Context, name, code string, ownerID int64) (*models.Room, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	now := time.Now()
	room := &models.Room{
		ID:           db.id(),
		Name:         name,
		Code:         strings.ToUpper(code),
		OwnerID:      ownerID,
		IsActive:     true,
		LastActiveAt: now,
		CreatedAt:    now,
	}
	db.rooms[room.ID] = room

	db.memberships[membershipKey(room.ID, ownerID)] = &models.Membership{
		ID:       db.id(),
		RoomID:   room.ID,
		UserID:   ownerID,
		Role:     models.RoleOwner,
		Status:   models.MembershipActive,
		JoinedAt: now,
	}

	copied := *room
	copied.MembershipRole = models.RoleOwner
	return &copied, nil
}

func (db *MemoryDB) GetRoomByID(ctx context.Context, id int64) (*models.Room, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	room, ok := db.rooms[id]
	if !ok {
		return nil, nil
	}
	copied := *room
	db.fillOwnerName(&copied)
	return &copied, nil
}

func (db *MemoryDB) GetRoomByCode(ctx context.Context, code string) (*models.Room, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, room := range db.rooms {
		if room.Code == strings.ToUpper(code) {
			copied := *room
			db.fillOwnerName(&copied)
			return &copied, nil
		}
	}
	return nil, nil
}

func (db *MemoryDB) ListUserRooms(ctx context.Context, userID int64) ([]*models.Room, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var rooms []*models.Room
	for _, m := range db.memberships {
		if m.UserID != userID || m.Status != models.MembershipActive {
			continue
		}
		room, ok := db.rooms[m.RoomID]
		if !ok || !room.IsActive {
			continue
		}
		copied := *room
		copied.MembershipRole = m.Role
		db.fillOwnerName(&copied)
		rooms = append(rooms, &copied)
	}

	sort.Slice(rooms, func(i, j int) bool { return rooms[i].LastActiveAt.After(rooms[j].LastActiveAt) })
	return rooms, nil
}

func (db *MemoryDB) TouchRoom(ctx context.Context, roomID int64) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	room, ok := db.rooms[roomID]
	if !ok {
		return nil
	}
	if now := time.Now(); now.After(room.LastActiveAt) {
		room.LastActiveAt = now
	}
	return nil
}

// SetRoomActive toggles the room's activity flag (test hook; there is no
// HTTP surface for archiving rooms).
func (db *MemoryDB) SetRoomActive(roomID int64, active bool) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if room, ok := db.rooms[roomID]; ok {
		room.IsActive = active
	}
}

// Membership Repository Implementation
func (db *MemoryDB) GetActiveMembership(ctx context.Context, roomID, userID int64) (*models.Membership, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	m, ok := db.memberships[membershipKey(roomID, userID)]
	if !ok || m.Status != models.MembershipActive {
		return nil, nil
	}
	copied := *m
	return &copied, nil
}

func (db *MemoryDB) UpsertActiveMembership(ctx context.Context, roomID, userID int64, role string) (*models.Membership, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	key := membershipKey(roomID, userID)
	m, ok := db.memberships[key]
	if !ok {
		m = &models.Membership{
			ID:       db.id(),
			RoomID:   roomID,
			UserID:   userID,
			JoinedAt: time.Now(),
		}
		db.memberships[key] = m
	}
	m.Role = role
	m.Status = models.MembershipActive
	m.LeftAt = nil

	copied := *m
	return &copied, nil
}

func (db *MemoryDB) MarkMembershipLeft(ctx context.Context, roomID, userID int64) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	m, ok := db.memberships[membershipKey(roomID, userID)]
	if !ok || m.Status != models.MembershipActive {
		return nil
	}
	now := time.Now()
	m.Status = models.MembershipLeft
	m.LeftAt = &now
	return nil
}

// Message Repository Implementation
func (db *MemoryDB) SaveMessage(ctx context.Context, roomID int64, senderID *int64, content, msgType string, aiTriggeredBy *int64) (*models.Message, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	msg := &models.Message{
		ID:            db.id(),
		RoomID:        roomID,
		SenderID:      senderID,
		Content:       content,
		Type:          msgType,
		AITriggeredBy: aiTriggeredBy,
		CreatedAt:     time.Now(),
	}
	if senderID != nil {
		if u, ok := db.users[*senderID]; ok {
			msg.SenderName = u.Username
		}
	}
	if aiTriggeredBy != nil {
		if u, ok := db.users[*aiTriggeredBy]; ok {
			msg.AITriggeredByName = u.Username
		}
	}
	db.messages = append(db.messages, msg)

	copied := *msg
	return &copied, nil
}

func (db *MemoryDB) ListRecentMessages(ctx context.Context, roomID int64, limit int) ([]*models.Message, error) {
	return db.ListMessagesBefore(ctx, roomID, 0, limit)
}

func (db *MemoryDB) ListMessagesBefore(ctx context.Context, roomID, beforeID int64, limit int) ([]*models.Message, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var matched []*models.Message
	for _, msg := range db.messages {
		if msg.RoomID != roomID {
			continue
		}
		if beforeID != 0 && msg.ID >= beforeID {
			continue
		}
		copied := *msg
		matched = append(matched, &copied)
	}

	// Newest-first window of size limit, then oldest first.
	if limit > 0 && len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}
	return matched, nil
}

func (db *MemoryDB) fillOwnerName(room *models.Room) {
	if u, ok := db.users[room.OwnerID]; ok {
		room.OwnerName = u.Username
	}
}

var _ Database = (*MemoryDB)(nil)
