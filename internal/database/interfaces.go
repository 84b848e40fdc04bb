package database

import (
	"context"

	"devchat/internal/models"
)

type UserRepository interface {
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateUser(ctx context.Context, username, email, passwordHash string) (*models.User, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
}

type RoomRepository interface {
	// CreateRoom inserts the room and its owner membership atomically.
	CreateRoom(ctx context.Context, name, code string, ownerID int64) (*models.Room, error)
	GetRoomByID(ctx context.Context, id int64) (*models.Room, error)
	GetRoomByCode(ctx context.Context, code string) (*models.Room, error)
	ListUserRooms(ctx context.Context, userID int64) ([]*models.Room, error)
	// TouchRoom bumps last_active_at, never moving it backwards.
	TouchRoom(ctx context.Context, roomID int64) error
}

type MembershipRepository interface {
	// GetActiveMembership returns (nil, nil) when no active membership exists.
	GetActiveMembership(ctx context.Context, roomID, userID int64) (*models.Membership, error)
	UpsertActiveMembership(ctx context.Context, roomID, userID int64, role string) (*models.Membership, error)
	MarkMembershipLeft(ctx context.Context, roomID, userID int64) error
}

type MessageRepository interface {
	SaveMessage(ctx context.Context, roomID int64, senderID *int64, content, msgType string, aiTriggeredBy *int64) (*models.Message, error)
	// ListRecentMessages returns up to limit messages, oldest first.
	ListRecentMessages(ctx context.Context, roomID int64, limit int) ([]*models.Message, error)
	// ListMessagesBefore paginates backwards; beforeID of 0 starts from the
	// newest message. Results are oldest first.
	ListMessagesBefore(ctx context.Context, roomID, beforeID int64, limit int) ([]*models.Message, error)
}

type Database interface {
	UserRepository
	RoomRepository
	MembershipRepository
	MessageRepository
	Close() error
}
