package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"devchat/internal/database"
	"devchat/internal/models"

	"github.com/jaevor/go-nanoid"
)

// Authorization failures surfaced to handlers and the gateway. Handlers map
// these onto HTTP status codes; the gateway maps them onto error events.
var (
	ErrAccessDenied     = errors.New("access denied")
	ErrRoomNotFound     = errors.New("room not found")
	ErrOwnerCannotLeave = errors.New("owner cannot leave room")
	ErrNotAMember       = errors.New("not a member of this room")
)

const (
	roomCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	roomCodeLength   = 6

	defaultHistoryLimit = 50
	maxHistoryLimit     = 100
)

type RoomService struct {
	db      database.Database
	newCode func() string
}

func NewRoomService(db database.Database) (*RoomService, error) {
	newCode, err := nanoid.CustomASCII(roomCodeAlphabet, roomCodeLength)
	if err != nil {
		return nil, fmt.Errorf("failed to build room code generator: %w", err)
	}

	return &RoomService{db: db, newCode: newCode}, nil
}

func (s *RoomService) CreateRoom(ctx context.Context, req *models.CreateRoomRequest, ownerID int64) (*models.Room, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("room name is required")
	}
	if len(name) > models.MaxRoomNameLength {
		return nil, fmt.Errorf("room name must be at most %d characters", models.MaxRoomNameLength)
	}

	code, err := s.uniqueRoomCode(ctx)
	if err != nil {
		return nil, err
	}

	return s.db.CreateRoom(ctx, name, code, ownerID)
}

func (s *RoomService) uniqueRoomCode(ctx context.Context) (string, error) {
	for attempts := 0; attempts < 10; attempts++ {
		code := s.newCode()
		existing, err := s.db.GetRoomByCode(ctx, code)
		if err != nil {
			return "", err
		}
		if existing == nil {
			return code, nil
		}
	}
	return "", fmt.Errorf("unable to generate unique room code")
}

// AuthorizeMember is the membership gate: it requires an active room and an
// active membership for (roomID, userID). It is consulted on every join and
// re-checked on every send, so a revoked membership takes effect on the
// next action, not only at reconnect.
func (s *RoomService) AuthorizeMember(ctx context.Context, roomID, userID int64) (*models.Room, *models.Membership, error) {
	room, err := s.db.GetRoomByID(ctx, roomID)
	if err != nil {
		return nil, nil, err
	}
	if room == nil || !room.IsActive {
		return nil, nil, ErrRoomNotFound
	}

	membership, err := s.db.GetActiveMembership(ctx, roomID, userID)
	if err != nil {
		return nil, nil, err
	}
	if membership == nil {
		return nil, nil, ErrAccessDenied
	}

	room.MembershipRole = membership.Role
	return room, membership, nil
}

func (s *RoomService) ListMyRooms(ctx context.Context, userID int64) ([]*models.Room, error) {
	return s.db.ListUserRooms(ctx, userID)
}

func (s *RoomService) GetRoom(ctx context.Context, roomID, userID int64) (*models.Room, error) {
	room, _, err := s.AuthorizeMember(ctx, roomID, userID)
	return room, err
}

func (s *RoomService) JoinRoomByCode(ctx context.Context, code string, userID int64) (*models.Room, *models.Membership, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if normalized == "" {
		return nil, nil, fmt.Errorf("room code is required")
	}

	room, err := s.db.GetRoomByCode(ctx, normalized)
	if err != nil {
		return nil, nil, err
	}
	if room == nil || !room.IsActive {
		return nil, nil, ErrRoomNotFound
	}

	// Rejoining after a leave reactivates the existing membership row; the
	// owner keeps their role.
	role := models.RoleMember
	if room.OwnerID == userID {
		role = models.RoleOwner
	}

	membership, err := s.db.UpsertActiveMembership(ctx, room.ID, userID, role)
	if err != nil {
		return nil, nil, err
	}

	if err := s.db.TouchRoom(ctx, room.ID); err != nil {
		return nil, nil, err
	}

	room.MembershipRole = membership.Role
	return room, membership, nil
}

func (s *RoomService) LeaveRoom(ctx context.Context, roomID, userID int64) error {
	room, err := s.db.GetRoomByID(ctx, roomID)
	if err != nil {
		return err
	}
	if room == nil || !room.IsActive {
		return ErrRoomNotFound
	}

	membership, err := s.db.GetActiveMembership(ctx, roomID, userID)
	if err != nil {
		return err
	}
	if membership == nil {
		return ErrNotAMember
	}
	if membership.Role == models.RoleOwner {
		return ErrOwnerCannotLeave
	}

	return s.db.MarkMembershipLeft(ctx, roomID, userID)
}

// GetMessages returns room history for an authorized member, oldest first.
// beforeID of 0 starts from the newest message.
func (s *RoomService) GetMessages(ctx context.Context, roomID, userID, beforeID int64, limit int) ([]*models.Message, error) {
	if _, _, err := s.AuthorizeMember(ctx, roomID, userID); err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	return s.db.ListMessagesBefore(ctx, roomID, beforeID, limit)
}
